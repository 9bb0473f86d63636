package dispatch

import (
	"context"

	"github.com/google/uuid"

	"ats-autopilot/internal/models"
)

// DryRunAdapter accepts every submission without contacting any ATS. Used in
// development and as the default adapter when browser automation is disabled.
type DryRunAdapter struct{}

func (DryRunAdapter) Apply(_ context.Context, _ models.ApplicationData) (models.SubmissionResult, error) {
	return models.SubmissionResult{
		Success:       true,
		ApplicationID: "dryrun-" + uuid.NewString(),
	}, nil
}
