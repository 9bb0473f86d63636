package autofill

import (
	"context"
	"errors"
	"testing"

	"ats-autopilot/internal/match"
	"ats-autopilot/internal/models"
)

type fakePage struct {
	url      string
	filled   map[string]string
	selected map[string]string
	checked  map[string]bool
	uploaded map[string]string
}

func newFakePage() *fakePage {
	return &fakePage{
		url:      "https://boards.greenhouse.io/acme/jobs/1",
		filled:   map[string]string{},
		selected: map[string]string{},
		checked:  map[string]bool{},
		uploaded: map[string]string{},
	}
}

func (p *fakePage) URL() string { return p.url }
func (p *fakePage) Fill(_ context.Context, sel, v string) error {
	p.filled[sel] = v
	return nil
}
func (p *fakePage) Select(_ context.Context, sel, v string) error {
	p.selected[sel] = v
	return nil
}
func (p *fakePage) SetChecked(_ context.Context, sel string, c bool) error {
	p.checked[sel] = c
	return nil
}
func (p *fakePage) UploadFile(_ context.Context, sel, path string) error {
	p.uploaded[sel] = path
	return nil
}

type fakeDetector struct {
	fields []models.DetectedField
	err    error
}

func (d *fakeDetector) DetectFields(context.Context, Page) ([]models.DetectedField, error) {
	return d.fields, d.err
}

type fakeSolver struct {
	detected bool
	solved   bool
}

func (s *fakeSolver) Detect(context.Context, Page) (CaptchaDetection, error) {
	return CaptchaDetection{Detected: s.detected, Type: "recaptcha_v2"}, nil
}
func (s *fakeSolver) Solve(context.Context, CaptchaDetection) (CaptchaToken, error) {
	return CaptchaToken{Success: s.solved, Token: "tok"}, nil
}
func (s *fakeSolver) ApplyToken(context.Context, Page, CaptchaDetection, CaptchaToken) error {
	return nil
}

func testFields() []models.DetectedField {
	return []models.DetectedField{
		{ID: "email", Selector: "#email", Label: "Email Address", Type: models.FieldEmail,
			Category: models.CategoryContact, Required: true, Confidence: 90},
		{ID: "phone", Selector: "#phone", Label: "Phone Number", Type: models.FieldPhone,
			Category: models.CategoryContact, Required: true, Confidence: 85},
		{ID: "essay", Selector: "#essay", Label: "Describe your ideal team", Type: models.FieldTextarea,
			Category: models.CategoryCustomQuestion, Required: false, Confidence: 60},
	}
}

func testSources() match.Sources {
	return match.Sources{
		Profile: models.Profile{
			FirstName: "Ada", LastName: "Lovelace",
			Email: "a@b.com", Phone: "+1 555 0100",
		},
	}
}

func TestAutofillForm_FillsHighConfidenceOnly(t *testing.T) {
	page := newFakePage()
	o := New(&fakeDetector{fields: testFields()}, nil, nil, nil)

	res, err := o.AutofillForm(context.Background(), page, testSources(), Options{})
	if err != nil {
		t.Fatalf("autofill: %v", err)
	}

	if page.filled["#email"] != "a@b.com" {
		t.Fatalf("email not filled: %v", page.filled)
	}
	if page.filled["#phone"] != "+1 555 0100" {
		t.Fatalf("phone not filled: %v", page.filled)
	}
	if _, ok := page.filled["#essay"]; ok {
		t.Fatal("unresolved custom question must not be filled")
	}
	if res.FilledCount != 2 || res.SkippedCount != 1 {
		t.Fatalf("expected 2 filled / 1 skipped, got %d/%d", res.FilledCount, res.SkippedCount)
	}
	if !res.Confidence.ReadyToSubmit {
		t.Fatalf("both required fields resolved from profile, expected ready: %+v", res.Confidence)
	}
	if len(res.ReviewFields) != 1 || res.ReviewFields[0] != "essay" {
		t.Fatalf("expected essay flagged for review, got %v", res.ReviewFields)
	}
}

func TestAutofillForm_DryRunTouchesNothing(t *testing.T) {
	page := newFakePage()
	o := New(&fakeDetector{fields: testFields()}, nil, nil, nil)

	res, err := o.AutofillForm(context.Background(), page, testSources(), Options{DryRun: true})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if len(page.filled)+len(page.selected)+len(page.checked)+len(page.uploaded) != 0 {
		t.Fatal("dry run must not touch the page")
	}
	if res.FilledCount != 0 {
		t.Fatalf("dry run reported fills: %d", res.FilledCount)
	}
	if len(res.Fields) != 3 {
		t.Fatalf("dry run must still score all fields, got %d", len(res.Fields))
	}
}

func TestAutofillForm_CaptchaBlocks(t *testing.T) {
	page := newFakePage()
	o := New(&fakeDetector{fields: testFields()}, &fakeSolver{detected: true, solved: false}, nil, nil)

	res, err := o.AutofillForm(context.Background(), page, testSources(), Options{})
	if err == nil {
		t.Fatal("expected captcha error")
	}
	if models.KindOf(err) != models.ErrKindCaptcha {
		t.Fatalf("expected captcha kind, got %s", models.KindOf(err))
	}
	if !res.CaptchaDetected {
		t.Fatal("result must flag the captcha")
	}
	if len(page.filled) != 0 {
		t.Fatal("no fills after captcha block")
	}
}

func TestAutofillForm_SolvedCaptchaProceeds(t *testing.T) {
	page := newFakePage()
	o := New(&fakeDetector{fields: testFields()}, &fakeSolver{detected: true, solved: true}, nil, nil)

	if _, err := o.AutofillForm(context.Background(), page, testSources(), Options{}); err != nil {
		t.Fatalf("solved captcha should not block: %v", err)
	}
	if len(page.filled) == 0 {
		t.Fatal("expected fills after solving captcha")
	}
}

func TestAutofillForm_DetectorError(t *testing.T) {
	o := New(&fakeDetector{err: errors.New("page gone")}, nil, nil, nil)
	if _, err := o.AutofillForm(context.Background(), newFakePage(), testSources(), Options{}); err == nil {
		t.Fatal("detector errors must propagate")
	}
}

func TestPreviewAutofill(t *testing.T) {
	o := New(&fakeDetector{}, nil, nil, nil)
	res := o.PreviewAutofill(testFields(), testSources())
	if len(res.Fields) != 3 {
		t.Fatalf("expected 3 scored fields, got %d", len(res.Fields))
	}
	if res.Confidence.OverallScore < 0 || res.Confidence.OverallScore > 100 {
		t.Fatalf("overall out of range: %d", res.Confidence.OverallScore)
	}
}

func TestRuleValidator(t *testing.T) {
	v := RuleValidator{}
	cases := []struct {
		field models.DetectedField
		value string
		want  bool
	}{
		{models.DetectedField{Type: models.FieldEmail}, "a@b.com", true},
		{models.DetectedField{Type: models.FieldEmail}, "not-an-email", false},
		{models.DetectedField{Type: models.FieldPhone}, "+1 (555) 010-0000", true},
		{models.DetectedField{Type: models.FieldPhone}, "call me", false},
		{models.DetectedField{Type: models.FieldDate}, "2025-06-01", true},
		{models.DetectedField{Type: models.FieldDate}, "someday", false},
		{models.DetectedField{Type: models.FieldNumber}, "42", true},
		{models.DetectedField{Type: models.FieldSelect, Options: []string{"Yes", "No"}}, "yes", true},
		{models.DetectedField{Type: models.FieldSelect, Options: []string{"Yes", "No"}}, "maybe", false},
		{models.DetectedField{Type: models.FieldCheckbox}, "Yes", true},
		{models.DetectedField{Type: models.FieldText}, "", false},
	}
	for i, c := range cases {
		if got := v.Validate(c.field, c.value); got != c.want {
			t.Fatalf("case %d (%s %q): got %v want %v", i, c.field.Type, c.value, got, c.want)
		}
	}
}
