package match

import (
	"regexp"
	"strconv"
	"strings"

	"ats-autopilot/internal/models"
)

// categoryRule resolves a label matching pattern to a value from the sources.
type categoryRule struct {
	pattern *regexp.Regexp
	source  models.MatchSource
	resolve func(e *Engine, src Sources) string
}

func profileRule(pattern string, pick func(models.Profile) string) categoryRule {
	return categoryRule{
		pattern: regexp.MustCompile(pattern),
		source:  models.SourceProfile,
		resolve: func(_ *Engine, src Sources) string { return pick(src.Profile) },
	}
}

func resumeRule(pattern string, pick func(e *Engine, r models.Resume) string) categoryRule {
	return categoryRule{
		pattern: regexp.MustCompile(pattern),
		source:  models.SourceResume,
		resolve: func(e *Engine, src Sources) string { return pick(e, src.Resume) },
	}
}

// categoryRules is the per-category regex rule table. First match wins, so
// more specific patterns come first within a category.
func categoryRules() map[models.FieldCategory][]categoryRule {
	return map[models.FieldCategory][]categoryRule{
		models.CategoryPersonalInfo: {
			profileRule(`(?i)first[\s_-]?name`, func(p models.Profile) string { return p.FirstName }),
			profileRule(`(?i)last[\s_-]?name|surname|family[\s_-]?name`, func(p models.Profile) string { return p.LastName }),
			profileRule(`(?i)full[\s_-]?name|^name$|your[\s_-]?name`, func(p models.Profile) string { return p.FullName() }),
		},
		models.CategoryContact: {
			profileRule(`(?i)e[\s_-]?mail`, func(p models.Profile) string { return p.Email }),
			profileRule(`(?i)phone|telephone|mobile|cell`, func(p models.Profile) string { return p.Phone }),
			profileRule(`(?i)street|address[\s_-]?line|^address`, func(p models.Profile) string { return p.Address }),
			profileRule(`(?i)city|town`, func(p models.Profile) string { return p.City }),
			profileRule(`(?i)state|province|region`, func(p models.Profile) string { return p.State }),
			profileRule(`(?i)zip|postal`, func(p models.Profile) string { return p.PostalCode }),
			profileRule(`(?i)country`, func(p models.Profile) string { return p.Country }),
			profileRule(`(?i)linked[\s_-]?in`, func(p models.Profile) string { return p.LinkedInURL }),
			profileRule(`(?i)git[\s_-]?hub`, func(p models.Profile) string { return p.GitHubURL }),
			profileRule(`(?i)portfolio|personal[\s_-]?(web)?site`, func(p models.Profile) string { return p.PortfolioURL }),
		},
		models.CategoryEmployment: {
			profileRule(`(?i)current[\s_-]?(company|employer)|employer`, func(p models.Profile) string { return p.CurrentCompany }),
			profileRule(`(?i)current[\s_-]?(title|role|position)|job[\s_-]?title`, func(p models.Profile) string { return p.CurrentTitle }),
		},
		models.CategoryExperience: {
			resumeRule(`(?i)years[\s_-]?of[\s_-]?experience|experience[\s_-]?\(?years\)?|total[\s_-]?experience`,
				func(e *Engine, r models.Resume) string {
					years := totalExperienceYears(r, e.now())
					if years == 0 && len(r.Experience) == 0 {
						return ""
					}
					return strconv.Itoa(years)
				}),
			resumeRule(`(?i)summary|about[\s_-]?(you|yourself)`, func(_ *Engine, r models.Resume) string { return r.Summary }),
		},
		models.CategoryEducation: {
			resumeRule(`(?i)school|university|college|institution`, func(_ *Engine, r models.Resume) string {
				if len(r.Education) == 0 {
					return ""
				}
				return r.Education[0].School
			}),
			resumeRule(`(?i)degree`, func(_ *Engine, r models.Resume) string {
				if len(r.Education) == 0 {
					return ""
				}
				return r.Education[0].Degree
			}),
			resumeRule(`(?i)field[\s_-]?of[\s_-]?study|major`, func(_ *Engine, r models.Resume) string {
				if len(r.Education) == 0 {
					return ""
				}
				return r.Education[0].FieldOfStudy
			}),
			resumeRule(`(?i)graduat`, func(_ *Engine, r models.Resume) string {
				if len(r.Education) == 0 || r.Education[0].GraduationYear == 0 {
					return ""
				}
				return strconv.Itoa(r.Education[0].GraduationYear)
			}),
		},
		models.CategorySkills: {
			resumeRule(`(?i)skills?|technologies|tech[\s_-]?stack`, func(_ *Engine, r models.Resume) string {
				return strings.Join(r.Skills, ", ")
			}),
		},
		models.CategorySalary: {
			profileRule(`(?i)salary|compensation|pay|rate`, func(p models.Profile) string { return p.DesiredSalary }),
		},
		models.CategoryAvailability: {
			profileRule(`(?i)start[\s_-]?date|available|availability`, func(p models.Profile) string { return p.AvailabilityDate }),
			profileRule(`(?i)notice[\s_-]?period`, func(p models.Profile) string { return p.NoticePeriod }),
		},
		models.CategoryAuthorization: {
			profileRule(`(?i)authoriz|legally|eligible[\s_-]?to[\s_-]?work`, func(p models.Profile) string {
				return yesNo(p.WorkAuthorized)
			}),
			profileRule(`(?i)sponsor`, func(p models.Profile) string {
				return yesNo(p.NeedsSponsorship)
			}),
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// synonymGroup maps a closed set of normalized label spellings to one profile
// field. This is an explicit list, not an embedding lookup.
type synonymGroup struct {
	terms   []string
	resolve func(models.Profile) string
}

func synonymGroups() []synonymGroup {
	return []synonymGroup{
		{terms: []string{"phone", "telephone", "mobile", "cell", "phone number", "mobile number", "contact number"},
			resolve: func(p models.Profile) string { return p.Phone }},
		{terms: []string{"email", "e mail", "email address", "e mail address"},
			resolve: func(p models.Profile) string { return p.Email }},
		{terms: []string{"name", "full name"},
			resolve: func(p models.Profile) string { return p.FullName() }},
		{terms: []string{"first name", "given name"},
			resolve: func(p models.Profile) string { return p.FirstName }},
		{terms: []string{"last name", "surname", "family name"},
			resolve: func(p models.Profile) string { return p.LastName }},
		{terms: []string{"company", "employer", "organization", "current company"},
			resolve: func(p models.Profile) string { return p.CurrentCompany }},
		{terms: []string{"title", "position", "role", "job title", "current title"},
			resolve: func(p models.Profile) string { return p.CurrentTitle }},
		{terms: []string{"location", "city", "where are you located"},
			resolve: func(p models.Profile) string { return p.City }},
		{terms: []string{"linkedin", "linkedin url", "linkedin profile"},
			resolve: func(p models.Profile) string { return p.LinkedInURL }},
		{terms: []string{"github", "github url", "github profile"},
			resolve: func(p models.Profile) string { return p.GitHubURL }},
		{terms: []string{"website", "portfolio", "personal site", "personal website"},
			resolve: func(p models.Profile) string { return p.PortfolioURL }},
		{terms: []string{"salary", "expected salary", "desired salary", "compensation", "salary expectation"},
			resolve: func(p models.Profile) string { return p.DesiredSalary }},
		{terms: []string{"notice period"},
			resolve: func(p models.Profile) string { return p.NoticePeriod }},
		{terms: []string{"country"},
			resolve: func(p models.Profile) string { return p.Country }},
		{terms: []string{"zip", "zip code", "postal code", "postcode"},
			resolve: func(p models.Profile) string { return p.PostalCode }},
	}
}
