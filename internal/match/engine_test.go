package match

import (
	"testing"
	"time"

	"ats-autopilot/internal/models"
)

func testSources() Sources {
	end := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	return Sources{
		Profile: models.Profile{
			FirstName:      "Ada",
			LastName:       "Lovelace",
			Email:          "a@b.com",
			Phone:          "+1 555 0100",
			City:           "Boston",
			DesiredSalary:  "120000",
			WorkAuthorized: true,
		},
		Resume: models.Resume{
			Skills: []string{"Go", "Redis"},
			Experience: []models.ExperienceEntry{
				{Company: "Acme", StartDate: time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC), EndDate: &end},
				{Company: "Initech", StartDate: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)},
			},
		},
		SavedAnswers: []models.SavedAnswer{
			{Question: "Why do you want to work here", Answer: "I admire the mission."},
			{Question: "Are you willing to relocate", Answer: "Yes"},
		},
	}
}

func fixedEngine() *Engine {
	e := NewEngine()
	e.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return e
}

func TestMatch_CategoryRuleEmail(t *testing.T) {
	e := fixedEngine()
	field := models.DetectedField{
		ID: "f1", Label: "Email Address", Type: models.FieldEmail,
		Category: models.CategoryContact, Required: true, Confidence: 90,
	}
	m := e.Match(field, testSources())
	if m.Value != "a@b.com" {
		t.Fatalf("expected profile email, got %q", m.Value)
	}
	if m.Source != models.SourceProfile {
		t.Fatalf("expected profile source, got %s", m.Source)
	}
	if m.Confidence < 85 {
		t.Fatalf("expected confidence >= 85, got %d", m.Confidence)
	}
	if m.RequiresReview {
		t.Fatal("high-confidence contact match must not require review")
	}
}

func TestMatch_FirstNameVariants(t *testing.T) {
	e := fixedEngine()
	for _, label := range []string{"First Name", "first_name", "first-name", "FirstName"} {
		field := models.DetectedField{Label: label, Category: models.CategoryPersonalInfo, Confidence: 80}
		m := e.Match(field, testSources())
		if m.Value != "Ada" {
			t.Fatalf("label %q: expected Ada, got %q", label, m.Value)
		}
	}
}

func TestMatch_YearsOfExperienceFromResume(t *testing.T) {
	e := fixedEngine()
	field := models.DetectedField{Label: "Years of Experience", Category: models.CategoryExperience, Confidence: 70}
	m := e.Match(field, testSources())
	// 2018-01 to 2023-06 is 65 months, 2023-06 to 2025-06 is 24 months: 89
	// months rounds to 7 years.
	if m.Value != "7" {
		t.Fatalf("expected 7 years, got %q", m.Value)
	}
	if m.Source != models.SourceResume {
		t.Fatalf("expected resume source, got %s", m.Source)
	}
}

func TestMatch_SynonymFallback(t *testing.T) {
	e := fixedEngine()
	// Unknown category forces the synonym path.
	field := models.DetectedField{Label: "Mobile Number:", Category: models.CategoryUnknown, Confidence: 50}
	m := e.Match(field, testSources())
	if m.Value != "+1 555 0100" {
		t.Fatalf("expected phone via synonym table, got %q", m.Value)
	}
	if m.Source != models.SourceProfile {
		t.Fatalf("expected profile source, got %s", m.Source)
	}
}

func TestMatch_SavedAnswerJaccard(t *testing.T) {
	e := fixedEngine()
	field := models.DetectedField{Label: "Why do you want to work here?", Category: models.CategoryUnknown, Confidence: 60}
	m := e.Match(field, testSources())
	if m.Source != models.SourceSavedAnswer {
		t.Fatalf("expected saved_answer source, got %s (value %q)", m.Source, m.Value)
	}
	if m.Value != "I admire the mission." {
		t.Fatalf("wrong saved answer: %q", m.Value)
	}
}

func TestMatch_NoMatchReturnsPlaceholder(t *testing.T) {
	e := fixedEngine()
	field := models.DetectedField{Label: "Describe a conflict with a coworker", Category: models.CategoryCustomQuestion, Confidence: 60}
	m := e.Match(field, testSources())
	if m.Value != "" {
		t.Fatalf("expected empty placeholder, got %q", m.Value)
	}
	if m.Source != models.SourceAIGenerated {
		t.Fatalf("expected ai_generated source, got %s", m.Source)
	}
	if !m.RequiresReview {
		t.Fatal("custom questions always require review")
	}
}

func TestMatch_ReviewBelowThreshold(t *testing.T) {
	e := fixedEngine()
	field := models.DetectedField{Label: "completely unrelated widget", Category: models.CategoryUnknown, Confidence: 0}
	m := e.Match(field, testSources())
	if m.Confidence >= 70 {
		t.Fatalf("expected low confidence, got %d", m.Confidence)
	}
	if !m.RequiresReview {
		t.Fatal("low-confidence matches must require review")
	}
}

func TestJaccard(t *testing.T) {
	a := tokenSet("why do you want to work here")
	b := tokenSet("Why do you want to work here?")
	if sim := jaccard(a, b); sim <= 0.6 {
		t.Fatalf("near-identical questions should clear threshold, got %f", sim)
	}
	c := tokenSet("favorite color")
	if sim := jaccard(a, c); sim != 0 {
		t.Fatalf("disjoint sets must score 0, got %f", sim)
	}
}

func TestNormalizeLabel(t *testing.T) {
	cases := map[string]string{
		"E-mail Address:":  "e mail address",
		"  Phone_Number ":  "phone number",
		"LinkedIn Profile": "linkedin profile",
	}
	for in, want := range cases {
		if got := normalizeLabel(in); got != want {
			t.Fatalf("normalizeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
