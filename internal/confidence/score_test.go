package confidence

import (
	"testing"

	"ats-autopilot/internal/models"
)

func emailMatch() models.FieldMatch {
	return models.FieldMatch{
		Field: models.DetectedField{
			ID: "email", Label: "Email Address", Type: models.FieldEmail,
			Category: models.CategoryContact, Required: true, Confidence: 90,
		},
		Value:      "a@b.com",
		Source:     models.SourceProfile,
		Confidence: 98,
	}
}

func TestScoreField_EmailScenario(t *testing.T) {
	score := ScoreField(emailMatch(), true)
	if score.Overall < 85 {
		t.Fatalf("expected overall >= 85, got %d", score.Overall)
	}
	if score.Recommendation != models.AutoSubmit {
		t.Fatalf("expected auto_submit, got %s", score.Recommendation)
	}
	if score.ValidationScore != 100 {
		t.Fatalf("validated field must score 100, got %d", score.ValidationScore)
	}
	if score.SourceScore != 95 {
		t.Fatalf("profile source must score 95, got %d", score.SourceScore)
	}
	if len(score.Factors) != 4 {
		t.Fatalf("expected 4 factors, got %d", len(score.Factors))
	}
}

func TestScoreField_FailedValidation(t *testing.T) {
	score := ScoreField(emailMatch(), false)
	if score.ValidationScore != 30 {
		t.Fatalf("unvalidated field must score 30, got %d", score.ValidationScore)
	}
	if score.Overall >= ScoreField(emailMatch(), true).Overall {
		t.Fatal("failed validation must lower the overall score")
	}
}

func TestScoreField_RequiredVsOptionalVerdicts(t *testing.T) {
	mk := func(required bool, matchConf, detectorConf int) models.ConfidenceScore {
		return ScoreField(models.FieldMatch{
			Field: models.DetectedField{
				ID: "f", Label: "Question", Type: models.FieldText,
				Category: models.CategoryUnknown, Required: required, Confidence: detectorConf,
			},
			Value:      "something",
			Source:     models.SourceAIGenerated,
			Confidence: matchConf,
		}, false)
	}

	low := mk(true, 10, 10)
	if low.Recommendation != models.ManualRequired {
		t.Fatalf("low required field: expected manual_required, got %s (overall %d)", low.Recommendation, low.Overall)
	}

	mid := mk(true, 70, 80)
	if mid.Overall < 60 || mid.Overall >= 85 {
		t.Fatalf("fixture drifted out of the review band: %d", mid.Overall)
	}
	if mid.Recommendation != models.ReviewRecommended {
		t.Fatalf("mid required field: expected review_recommended, got %s", mid.Recommendation)
	}

	midOpt := mk(false, 70, 80)
	if midOpt.Recommendation != models.AutoSubmit {
		t.Fatalf("mid optional field: expected auto_submit, got %s (overall %d)", midOpt.Recommendation, midOpt.Overall)
	}
}

func TestScoreApplication_Rollup(t *testing.T) {
	matches := []models.FieldMatch{
		emailMatch(),
		{
			Field:      models.DetectedField{ID: "cover", Label: "Cover Letter", Required: false, Confidence: 40},
			Value:      "hello",
			Source:     models.SourceAIGenerated,
			Confidence: 36,
		},
	}
	scores := map[string]models.ConfidenceScore{
		"email": ScoreField(matches[0], true),
		"cover": ScoreField(matches[1], false),
	}
	agg := ScoreApplication(matches, scores)

	if agg.OverallScore < 0 || agg.OverallScore > 100 {
		t.Fatalf("overall score out of range: %d", agg.OverallScore)
	}
	if len(agg.CriticalIssues) != 0 {
		t.Fatalf("unexpected critical issues: %v", agg.CriticalIssues)
	}
	if !agg.ReadyToSubmit {
		t.Fatalf("expected ready, got %+v", agg)
	}
	if len(agg.HighConfidenceFields) != 1 || agg.HighConfidenceFields[0] != "email" {
		t.Fatalf("expected email in high-confidence set, got %v", agg.HighConfidenceFields)
	}
	// Optional low-confidence fields never block submission.
	if len(agg.LowConfidenceFields) != 1 || agg.LowConfidenceFields[0] != "cover" {
		t.Fatalf("expected cover in low-confidence set, got %v", agg.LowConfidenceFields)
	}
}

func TestScoreApplication_EmptyRequiredBlocks(t *testing.T) {
	m := models.FieldMatch{
		Field:      models.DetectedField{ID: "q1", Label: "Work authorization", Required: true, Confidence: 90},
		Value:      "",
		Source:     models.SourceAIGenerated,
		Confidence: 30,
	}
	scores := map[string]models.ConfidenceScore{"q1": ScoreField(m, false)}
	agg := ScoreApplication([]models.FieldMatch{m}, scores)

	if agg.ReadyToSubmit {
		t.Fatal("empty required field must block submission")
	}
	if len(agg.CriticalIssues) == 0 {
		t.Fatal("empty required field must raise a critical issue")
	}
}

func TestScoreApplication_NoRequiredFieldsDefaultsTo100(t *testing.T) {
	m := models.FieldMatch{
		Field:      models.DetectedField{ID: "opt", Label: "Nickname", Required: false, Confidence: 80},
		Value:      "Ada",
		Source:     models.SourceProfile,
		Confidence: 80,
	}
	scores := map[string]models.ConfidenceScore{"opt": ScoreField(m, true)}
	agg := ScoreApplication([]models.FieldMatch{m}, scores)

	fieldScore := scores["opt"].Overall
	want := int(0.4*float64(fieldScore) + 0.6*100 + 0.5) // round
	if agg.OverallScore != want {
		t.Fatalf("expected %d with required-mean defaulted to 100, got %d", want, agg.OverallScore)
	}
	if !agg.ReadyToSubmit {
		t.Fatal("no required fields and decent score should be ready")
	}
}

func TestScoreApplication_RequiredLowConfidenceBlocks(t *testing.T) {
	m := models.FieldMatch{
		Field:      models.DetectedField{ID: "q", Label: "Years of experience", Required: true, Confidence: 50},
		Value:      "maybe",
		Source:     models.SourceAIGenerated,
		Confidence: 40,
	}
	score := ScoreField(m, false)
	if score.Overall >= 60 {
		t.Fatalf("fixture drifted: expected low score, got %d", score.Overall)
	}
	agg := ScoreApplication([]models.FieldMatch{m}, map[string]models.ConfidenceScore{"q": score})
	if agg.ReadyToSubmit {
		t.Fatal("required low-confidence field must block submission")
	}
}
