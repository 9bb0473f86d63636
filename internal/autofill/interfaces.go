// Package autofill sequences field detection, semantic matching, validation,
// and confidence scoring against a live application page, pausing for human
// review when the application-level verdict is not safe for unattended
// submission.
package autofill

import (
	"context"

	"ats-autopilot/internal/models"
)

// Page is the browser-automation capability consumed as an opaque collaborator.
type Page interface {
	URL() string
	Fill(ctx context.Context, selector, value string) error
	Select(ctx context.Context, selector, value string) error
	SetChecked(ctx context.Context, selector string, checked bool) error
	UploadFile(ctx context.Context, selector, path string) error
}

// FieldDetector supplies the list of detected form fields for a page snapshot.
type FieldDetector interface {
	DetectFields(ctx context.Context, page Page) ([]models.DetectedField, error)
}

// CaptchaDetection describes a CAPTCHA found on a page.
type CaptchaDetection struct {
	Detected bool
	Type     string
	SiteKey  string
}

// CaptchaToken is the solver's output.
type CaptchaToken struct {
	Success bool
	Token   string
}

// CaptchaSolver is the third-party CAPTCHA integration, consumed abstractly.
type CaptchaSolver interface {
	Detect(ctx context.Context, page Page) (CaptchaDetection, error)
	Solve(ctx context.Context, detection CaptchaDetection) (CaptchaToken, error)
	ApplyToken(ctx context.Context, page Page, detection CaptchaDetection, token CaptchaToken) error
}

// Validator performs the field-type-specific syntactic check on a candidate value.
type Validator interface {
	Validate(field models.DetectedField, value string) bool
}
