package autofill

import (
	"regexp"
	"strings"
	"time"

	"ats-autopilot/internal/models"
)

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phoneRe = regexp.MustCompile(`^\+?[\d\s().-]{7,20}$`)
	numRe   = regexp.MustCompile(`^-?\d+([.,]\d+)?$`)
)

// RuleValidator is the default syntactic validator used when no external one
// is injected.
type RuleValidator struct{}

// Validate applies a type-specific check. Empty values never validate.
func (RuleValidator) Validate(field models.DetectedField, value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	switch field.Type {
	case models.FieldEmail:
		return emailRe.MatchString(value)
	case models.FieldPhone:
		return phoneRe.MatchString(value)
	case models.FieldNumber:
		return numRe.MatchString(value)
	case models.FieldDate:
		return validDate(value)
	case models.FieldSelect, models.FieldRadio:
		return optionAllowed(field.Options, value)
	case models.FieldCheckbox:
		switch strings.ToLower(value) {
		case "yes", "no", "true", "false", "on", "off", "1", "0":
			return true
		}
		return false
	case models.FieldFile:
		return strings.ContainsRune(value, '.')
	default:
		return len(value) <= 5000
	}
}

func validDate(value string) bool {
	for _, layout := range []string{"2006-01-02", "01/02/2006", "1/2/2006", "Jan 2, 2006", "January 2, 2006"} {
		if _, err := time.Parse(layout, value); err == nil {
			return true
		}
	}
	return false
}

// optionAllowed accepts a value present in the enumerated options,
// case-insensitively. Fields without options accept anything non-empty.
func optionAllowed(options []string, value string) bool {
	if len(options) == 0 {
		return true
	}
	for _, o := range options {
		if strings.EqualFold(strings.TrimSpace(o), value) {
			return true
		}
	}
	return false
}
