package models

import "time"

// Profile holds the user's structured profile data used for form filling.
type Profile struct {
	UserID            string `json:"user_id"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	Email             string `json:"email"`
	Phone             string `json:"phone"`
	Address           string `json:"address"`
	City              string `json:"city"`
	State             string `json:"state"`
	PostalCode        string `json:"postal_code"`
	Country           string `json:"country"`
	LinkedInURL       string `json:"linkedin_url"`
	GitHubURL         string `json:"github_url"`
	PortfolioURL      string `json:"portfolio_url"`
	CurrentCompany    string `json:"current_company"`
	CurrentTitle      string `json:"current_title"`
	DesiredSalary     string `json:"desired_salary"`
	NoticePeriod      string `json:"notice_period"`
	WorkAuthorized    bool   `json:"work_authorized"`
	NeedsSponsorship  bool   `json:"needs_sponsorship"`
	AvailabilityDate  string `json:"availability_date"`
	PreferredLocation string `json:"preferred_location"`
}

// FullName joins first and last name, tolerating either being empty.
func (p Profile) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	default:
		return p.FirstName + " " + p.LastName
	}
}

// ExperienceEntry is one work history item from a resume.
type ExperienceEntry struct {
	Company     string     `json:"company"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty"` // nil for current positions
}

// EducationEntry is one education history item from a resume.
type EducationEntry struct {
	School         string `json:"school"`
	Degree         string `json:"degree"`
	FieldOfStudy   string `json:"field_of_study"`
	GraduationYear int    `json:"graduation_year"`
}

// Resume is the structured resume content used for form filling.
type Resume struct {
	ID         string            `json:"id"`
	UserID     string            `json:"user_id"`
	FilePath   string            `json:"file_path"`
	Skills     []string          `json:"skills"`
	Experience []ExperienceEntry `json:"experience"`
	Education  []EducationEntry  `json:"education"`
	Summary    string            `json:"summary"`
}

// SavedAnswer is a previously answered application question.
type SavedAnswer struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	SavedAt  time.Time `json:"saved_at"`
}

// JobPosting is the slice of job data the dispatcher needs to submit.
type JobPosting struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Company  string `json:"company"`
	URL      string `json:"url"`
	Location string `json:"location"`
	Source   string `json:"source"`
}

// ApplicationData is the prepared bundle an ATS adapter submits.
type ApplicationData struct {
	Job         JobPosting        `json:"job"`
	Profile     Profile           `json:"profile"`
	Resume      Resume            `json:"resume"`
	FieldValues map[string]string `json:"field_values,omitempty"`
	CoverLetter string            `json:"cover_letter,omitempty"`
	Extra       map[string]any    `json:"extra,omitempty"`
}
