package models

// FieldType classifies a detected form input.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldTextarea FieldType = "textarea"
	FieldSelect   FieldType = "select"
	FieldCheckbox FieldType = "checkbox"
	FieldRadio    FieldType = "radio"
	FieldFile     FieldType = "file"
	FieldDate     FieldType = "date"
	FieldEmail    FieldType = "email"
	FieldPhone    FieldType = "phone"
	FieldNumber   FieldType = "number"
)

// FieldCategory is the detector's semantic grouping for a form field.
type FieldCategory string

const (
	CategoryPersonalInfo   FieldCategory = "personal_info"
	CategoryContact        FieldCategory = "contact"
	CategoryEmployment     FieldCategory = "employment"
	CategoryEducation      FieldCategory = "education"
	CategorySkills         FieldCategory = "skills"
	CategoryExperience     FieldCategory = "experience"
	CategorySalary         FieldCategory = "salary"
	CategoryAvailability   FieldCategory = "availability"
	CategoryAuthorization  FieldCategory = "authorization"
	CategoryCustomQuestion FieldCategory = "custom_question"
	CategoryUnknown        FieldCategory = "unknown"
)

// Known reports whether the category carries semantic meaning for matching.
func (c FieldCategory) Known() bool {
	return c != "" && c != CategoryUnknown
}

// DetectedField is one form input discovered on a target page.
// Immutable once produced for a page snapshot.
type DetectedField struct {
	ID         string        `json:"id"`
	Selector   string        `json:"selector"`
	Label      string        `json:"label"`
	Type       FieldType     `json:"type"`
	Options    []string      `json:"options,omitempty"`
	Required   bool          `json:"required"`
	Category   FieldCategory `json:"category"`
	Confidence int           `json:"confidence"` // detector's own 0-100 estimate
}

// MatchSource identifies where a resolved field value came from.
type MatchSource string

const (
	SourceProfile     MatchSource = "profile"
	SourceResume      MatchSource = "resume"
	SourceSavedAnswer MatchSource = "saved_answer"
	SourceAIGenerated MatchSource = "ai_generated"
)

// FieldMatch is the resolution of a DetectedField to a value.
// A re-match produces a new FieldMatch; instances are never mutated.
type FieldMatch struct {
	Field          DetectedField `json:"field"`
	Value          string        `json:"value"`
	Source         MatchSource   `json:"source"`
	Confidence     int           `json:"confidence"`
	RequiresReview bool          `json:"requires_review"`
}

// Recommendation is the per-field or per-application submission verdict.
type Recommendation string

const (
	AutoSubmit        Recommendation = "auto_submit"
	ReviewRecommended Recommendation = "review_recommended"
	ManualRequired    Recommendation = "manual_required"
)

// Factor is one named contribution to a confidence score.
type Factor struct {
	Name        string  `json:"name"`
	Score       int     `json:"score"`
	Weight      float64 `json:"weight"`
	Impact      int     `json:"impact"`
	Description string  `json:"description,omitempty"`
}

// ConfidenceScore is the per-field scoring breakdown.
type ConfidenceScore struct {
	Overall         int            `json:"overall"`
	DetectionScore  int            `json:"detection_score"`
	MatchScore      int            `json:"match_score"`
	ValidationScore int            `json:"validation_score"`
	SourceScore     int            `json:"source_score"`
	Factors         []Factor       `json:"factors"`
	Recommendation  Recommendation `json:"recommendation"`
}

// ApplicationConfidence aggregates field scores for one application.
type ApplicationConfidence struct {
	OverallScore         int                        `json:"overall_score"`
	FieldScores          map[string]ConfidenceScore `json:"field_scores"`
	LowConfidenceFields  []string                   `json:"low_confidence_fields"`
	HighConfidenceFields []string                   `json:"high_confidence_fields"`
	CriticalIssues       []string                   `json:"critical_issues"`
	Warnings             []string                   `json:"warnings"`
	ReadyToSubmit        bool                       `json:"ready_to_submit"`
}
