// Package confidence converts per-field match quality into numeric scores and
// an application-level submission verdict. Scoring never errors for low
// values; it returns a verdict.
package confidence

import (
	"fmt"
	"math"

	"ats-autopilot/internal/models"
)

// Weights for the four per-field signals. These are policy constants carried
// over from production behavior; do not tune without a product decision.
const (
	detectionWeight  = 0.25
	matchWeight      = 0.35
	validationWeight = 0.25
	sourceWeight     = 0.15
)

// Verdict thresholds.
const (
	autoSubmitThreshold = 85
	reviewThreshold     = 60
	criticalThreshold   = 40
)

// ScoreField combines the detector's signal, the match quality, validation
// outcome, and source trust into one per-field score and recommendation.
func ScoreField(match models.FieldMatch, validated bool) models.ConfidenceScore {
	field := match.Field
	detection := detectionScore(field)
	validation := 30
	if validated {
		validation = 100
	}
	source := sourceScore(match.Source)

	overall := int(math.Round(
		detectionWeight*float64(detection) +
			matchWeight*float64(match.Confidence) +
			validationWeight*float64(validation) +
			sourceWeight*float64(source)))
	overall = clamp(overall)

	return models.ConfidenceScore{
		Overall:         overall,
		DetectionScore:  detection,
		MatchScore:      match.Confidence,
		ValidationScore: validation,
		SourceScore:     source,
		Factors: []models.Factor{
			{Name: "detection", Score: detection, Weight: detectionWeight, Impact: weighted(detection, detectionWeight),
				Description: "field detector certainty"},
			{Name: "match", Score: match.Confidence, Weight: matchWeight, Impact: weighted(match.Confidence, matchWeight),
				Description: "semantic match quality"},
			{Name: "validation", Score: validation, Weight: validationWeight, Impact: weighted(validation, validationWeight),
				Description: "type-specific syntactic check"},
			{Name: "source", Score: source, Weight: sourceWeight, Impact: weighted(source, sourceWeight),
				Description: fmt.Sprintf("value source: %s", match.Source)},
		},
		Recommendation: recommend(overall, field.Required),
	}
}

// detectionScore starts from the detector's own 0-100 estimate and rewards
// structural hints that make autofill safer.
func detectionScore(field models.DetectedField) int {
	score := field.Confidence
	if field.Category.Known() {
		score += 10
	}
	if len(field.Options) > 0 {
		score += 5
	}
	switch field.Type {
	case models.FieldEmail, models.FieldPhone, models.FieldDate:
		score += 5
	}
	return clamp(score)
}

func sourceScore(source models.MatchSource) int {
	switch source {
	case models.SourceProfile:
		return 95
	case models.SourceSavedAnswer:
		return 90
	case models.SourceResume:
		return 85
	default:
		return 50
	}
}

// recommend maps a score to the per-field verdict. Required fields escalate
// to manual review below the review threshold; optional fields never block.
func recommend(score int, required bool) models.Recommendation {
	if score >= autoSubmitThreshold {
		return models.AutoSubmit
	}
	if required {
		if score >= reviewThreshold {
			return models.ReviewRecommended
		}
		return models.ManualRequired
	}
	if score >= reviewThreshold {
		return models.AutoSubmit
	}
	return models.ReviewRecommended
}

// ScoreApplication rolls per-field scores into one application verdict.
// Required fields carry 60% of the weight; with no required fields the
// required-mean defaults to 100.
func ScoreApplication(matches []models.FieldMatch, scores map[string]models.ConfidenceScore) models.ApplicationConfidence {
	agg := models.ApplicationConfidence{
		FieldScores:          scores,
		LowConfidenceFields:  []string{},
		HighConfidenceFields: []string{},
		CriticalIssues:       []string{},
		Warnings:             []string{},
	}

	var allSum, reqSum float64
	var allN, reqN int
	requiredLow := false

	for _, m := range matches {
		field := m.Field
		score, ok := scores[field.ID]
		if !ok {
			continue
		}
		allSum += float64(score.Overall)
		allN++

		if score.Overall >= autoSubmitThreshold {
			agg.HighConfidenceFields = append(agg.HighConfidenceFields, field.ID)
		}
		if score.Overall < reviewThreshold {
			agg.LowConfidenceFields = append(agg.LowConfidenceFields, field.ID)
			if field.Required {
				requiredLow = true
			}
		}

		if field.Required {
			reqSum += float64(score.Overall)
			reqN++
			switch {
			case m.Value == "":
				agg.CriticalIssues = append(agg.CriticalIssues,
					fmt.Sprintf("required field %q has no value", labelOrID(field)))
			case score.Overall < criticalThreshold:
				agg.CriticalIssues = append(agg.CriticalIssues,
					fmt.Sprintf("required field %q scored %d", labelOrID(field), score.Overall))
			case score.Overall < reviewThreshold:
				agg.Warnings = append(agg.Warnings,
					fmt.Sprintf("required field %q scored %d", labelOrID(field), score.Overall))
			}
		}
	}

	allMean := 0.0
	if allN > 0 {
		allMean = allSum / float64(allN)
	}
	reqMean := 100.0
	if reqN > 0 {
		reqMean = reqSum / float64(reqN)
	}
	agg.OverallScore = clamp(int(math.Round(0.4*allMean + 0.6*reqMean)))

	agg.ReadyToSubmit = len(agg.CriticalIssues) == 0 &&
		agg.OverallScore >= reviewThreshold &&
		!requiredLow
	return agg
}

func labelOrID(f models.DetectedField) string {
	if f.Label != "" {
		return f.Label
	}
	return f.ID
}

func weighted(score int, weight float64) int {
	return int(math.Round(float64(score) * weight))
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
