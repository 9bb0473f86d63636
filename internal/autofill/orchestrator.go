package autofill

import (
	"context"
	"fmt"
	"strings"

	"ats-autopilot/internal/confidence"
	"ats-autopilot/internal/match"
	"ats-autopilot/internal/models"
)

// Options tune one autofill run.
type Options struct {
	// MinConfidence is the lowest per-field score that still gets filled.
	MinConfidence int
	// DryRun resolves and scores everything but never touches the page.
	DryRun bool
	// SkipCaptchaCheck bypasses the solver (used by preview).
	SkipCaptchaCheck bool
}

func (o Options) withDefaults() Options {
	if o.MinConfidence <= 0 {
		o.MinConfidence = 60
	}
	return o
}

// FieldOutcome reports what happened for one detected field.
type FieldOutcome struct {
	Field  models.DetectedField   `json:"field"`
	Match  models.FieldMatch      `json:"match"`
	Score  models.ConfidenceScore `json:"score"`
	Filled bool                   `json:"filled"`
}

// Result is the outcome of one autofill run.
type Result struct {
	Fields          []FieldOutcome               `json:"fields"`
	Confidence      models.ApplicationConfidence `json:"confidence"`
	FilledCount     int                          `json:"filled_count"`
	SkippedCount    int                          `json:"skipped_count"`
	ReviewFields    []string                     `json:"review_fields"`
	CaptchaDetected bool                         `json:"captcha_detected"`
}

// Orchestrator wires the detector, matcher, validator, scorer, and solver.
type Orchestrator struct {
	detector  FieldDetector
	solver    CaptchaSolver
	validator Validator
	matcher   *match.Engine
}

// New constructs an orchestrator. solver may be nil when no CAPTCHA
// integration is configured; validator defaults to RuleValidator.
func New(detector FieldDetector, solver CaptchaSolver, validator Validator, matcher *match.Engine) *Orchestrator {
	if validator == nil {
		validator = RuleValidator{}
	}
	if matcher == nil {
		matcher = match.NewEngine()
	}
	return &Orchestrator{detector: detector, solver: solver, validator: validator, matcher: matcher}
}

// AutofillForm runs the full detect, match, validate, score, fill sequence.
// When the application verdict is not ready to submit, no field below the
// review bar is filled and the review set is surfaced instead.
func (o *Orchestrator) AutofillForm(ctx context.Context, page Page, src match.Sources, opts Options) (Result, error) {
	opts = opts.withDefaults()

	if !opts.SkipCaptchaCheck && o.solver != nil {
		blocked, err := o.clearCaptcha(ctx, page)
		if err != nil {
			return Result{}, err
		}
		if blocked {
			return Result{CaptchaDetected: true},
				models.NewSubmissionError(models.ErrKindCaptcha, "captcha detected and not solved", nil)
		}
	}

	fields, err := o.detector.DetectFields(ctx, page)
	if err != nil {
		return Result{}, fmt.Errorf("detect fields: %w", err)
	}

	res := o.evaluate(fields, src)
	if opts.DryRun {
		return res, nil
	}

	for i := range res.Fields {
		out := &res.Fields[i]
		if out.Score.Overall < opts.MinConfidence || out.Match.Value == "" {
			res.SkippedCount++
			continue
		}
		if err := o.fillField(ctx, page, out.Field, out.Match.Value); err != nil {
			return res, fmt.Errorf("fill %q: %w", out.Field.Selector, err)
		}
		out.Filled = true
		res.FilledCount++
	}
	return res, nil
}

// PreviewAutofill is the dry-run entry point: resolve and score without a
// page interaction. fields may come from a prior detection snapshot.
func (o *Orchestrator) PreviewAutofill(fields []models.DetectedField, src match.Sources) Result {
	return o.evaluate(fields, src)
}

func (o *Orchestrator) evaluate(fields []models.DetectedField, src match.Sources) Result {
	res := Result{
		Fields:       make([]FieldOutcome, 0, len(fields)),
		ReviewFields: []string{},
	}
	matches := o.matcher.MatchAll(fields, src)
	scores := make(map[string]models.ConfidenceScore, len(matches))

	for _, m := range matches {
		validated := o.validator.Validate(m.Field, m.Value)
		score := confidence.ScoreField(m, validated)
		scores[m.Field.ID] = score
		res.Fields = append(res.Fields, FieldOutcome{Field: m.Field, Match: m, Score: score})
		if m.RequiresReview || score.Recommendation == models.ManualRequired {
			res.ReviewFields = append(res.ReviewFields, m.Field.ID)
		}
	}
	res.Confidence = confidence.ScoreApplication(matches, scores)
	return res
}

// clearCaptcha detects, solves, and applies a CAPTCHA token. Returns true when
// a CAPTCHA blocks the page after our best effort.
func (o *Orchestrator) clearCaptcha(ctx context.Context, page Page) (bool, error) {
	det, err := o.solver.Detect(ctx, page)
	if err != nil {
		return false, fmt.Errorf("captcha detect: %w", err)
	}
	if !det.Detected {
		return false, nil
	}
	tok, err := o.solver.Solve(ctx, det)
	if err != nil || !tok.Success {
		return true, nil
	}
	if err := o.solver.ApplyToken(ctx, page, det, tok); err != nil {
		return true, nil
	}
	return false, nil
}

func (o *Orchestrator) fillField(ctx context.Context, page Page, field models.DetectedField, value string) error {
	switch field.Type {
	case models.FieldSelect, models.FieldRadio:
		return page.Select(ctx, field.Selector, value)
	case models.FieldCheckbox:
		return page.SetChecked(ctx, field.Selector, truthy(value))
	case models.FieldFile:
		return page.UploadFile(ctx, field.Selector, value)
	default:
		return page.Fill(ctx, field.Selector, value)
	}
}

func truthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "true", "on", "1":
		return true
	}
	return false
}
