// Package match resolves detected form fields to candidate values from the
// user's profile, resume, or previously saved answers. All matching is
// deterministic: regex category rules, a closed synonym table, then Jaccard
// similarity against saved questions.
package match

import (
	"math"
	"strings"
	"time"

	"ats-autopilot/internal/models"
)

// reviewThreshold is the confidence below which a match is flagged for human review.
const reviewThreshold = 70

// jaccardThreshold is the minimum similarity for a saved-answer match.
const jaccardThreshold = 0.6

// Sources bundles the data a match can draw from.
type Sources struct {
	Profile      models.Profile
	Resume       models.Resume
	SavedAnswers []models.SavedAnswer
}

// Engine resolves fields to values. Stateless apart from its rule tables;
// safe for concurrent use.
type Engine struct {
	rules    map[models.FieldCategory][]categoryRule
	synonyms []synonymGroup
	now      func() time.Time
}

// NewEngine builds an engine with the built-in rule and synonym tables.
func NewEngine() *Engine {
	return &Engine{
		rules:    categoryRules(),
		synonyms: synonymGroups(),
		now:      time.Now,
	}
}

// Match resolves one field. Resolution order: category rules, synonym table,
// saved answers, then an empty ai_generated placeholder.
func (e *Engine) Match(field models.DetectedField, src Sources) models.FieldMatch {
	value, source, categoryHit := e.resolve(field, src)
	confidence := matchConfidence(field, value, source, categoryHit)
	return models.FieldMatch{
		Field:          field,
		Value:          value,
		Source:         source,
		Confidence:     confidence,
		RequiresReview: confidence < reviewThreshold || field.Category == models.CategoryCustomQuestion,
	}
}

// MatchAll resolves every field against the same sources.
func (e *Engine) MatchAll(fields []models.DetectedField, src Sources) []models.FieldMatch {
	out := make([]models.FieldMatch, 0, len(fields))
	for _, f := range fields {
		out = append(out, e.Match(f, src))
	}
	return out
}

func (e *Engine) resolve(field models.DetectedField, src Sources) (string, models.MatchSource, bool) {
	if field.Category.Known() {
		if rules, ok := e.rules[field.Category]; ok {
			for _, r := range rules {
				if r.pattern.MatchString(field.Label) {
					if v := r.resolve(e, src); v != "" {
						return v, r.source, true
					}
				}
			}
		}
	}

	label := normalizeLabel(field.Label)
	for _, g := range e.synonyms {
		for _, term := range g.terms {
			if label == term {
				if v := g.resolve(src.Profile); v != "" {
					return v, models.SourceProfile, false
				}
			}
		}
	}

	if answer, ok := bestSavedAnswer(field.Label, src.SavedAnswers); ok {
		return answer, models.SourceSavedAnswer, false
	}

	// Placeholder signaling the value needs an external generator or a human.
	return "", models.SourceAIGenerated, false
}

// matchConfidence scores the resolution quality on [0,100]: base 50, +20 for a
// category rule hit, +15 for a profile source, up to +15 scaled from the
// detector's own confidence, -20 for suspiciously short values, -10 for very
// long ones.
func matchConfidence(field models.DetectedField, value string, source models.MatchSource, categoryHit bool) int {
	score := 50
	if categoryHit {
		score += 20
	}
	if source == models.SourceProfile {
		score += 15
	}
	score += field.Confidence * 15 / 100
	if len(value) < 2 {
		score -= 20
	}
	if len(value) > 1000 {
		score -= 10
	}
	return clamp(score)
}

// bestSavedAnswer picks the saved question with the highest Jaccard similarity
// to the field label, accepting it above the threshold.
func bestSavedAnswer(label string, answers []models.SavedAnswer) (string, bool) {
	best := 0.0
	answer := ""
	labelSet := tokenSet(label)
	for _, a := range answers {
		sim := jaccard(labelSet, tokenSet(a.Question))
		if sim > best {
			best = sim
			answer = a.Answer
		}
	}
	return answer, best > jaccardThreshold
}

// jaccard computes intersection-over-union of two word sets.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}

// normalizeLabel lower-cases and strips punctuation so "E-mail Address:"
// matches the synonym entry "email address".
func normalizeLabel(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// totalExperienceYears sums month differences across resume experience
// entries, treating open-ended entries as running until now, and rounds to
// whole years.
func totalExperienceYears(resume models.Resume, now time.Time) int {
	months := 0
	for _, e := range resume.Experience {
		end := now
		if e.EndDate != nil {
			end = *e.EndDate
		}
		if end.Before(e.StartDate) {
			continue
		}
		months += monthsBetween(e.StartDate, end)
	}
	return int(math.Round(float64(months) / 12.0))
}

func monthsBetween(start, end time.Time) int {
	years := end.Year() - start.Year()
	months := int(end.Month()) - int(start.Month())
	total := years*12 + months
	if total < 0 {
		return 0
	}
	return total
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
