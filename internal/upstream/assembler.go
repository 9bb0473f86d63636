package upstream

import (
	"context"

	"ats-autopilot/internal/models"
)

// Assembler builds the submission bundle for a claimed application.
type Assembler struct {
	clients *Clients
}

func NewAssembler(clients *Clients) *Assembler {
	return &Assembler{clients: clients}
}

// Prepare gathers the profile, resume, and posting for a job. Profile and
// resume are mandatory; a missing posting record degrades to the identifiers
// already carried on the job itself.
func (a *Assembler) Prepare(ctx context.Context, job models.ScheduledJob) (models.ApplicationData, error) {
	profile, err := a.clients.FetchProfile(ctx, job.UserID)
	if err != nil {
		return models.ApplicationData{}, err
	}
	resume, err := a.clients.FetchResume(ctx, job.UserID)
	if err != nil {
		return models.ApplicationData{}, err
	}
	posting, err := a.clients.FetchJob(ctx, job.JobID)
	if err != nil {
		posting = models.JobPosting{ID: job.JobID, URL: job.JobURL, Source: job.Platform}
	}

	app := models.ApplicationData{
		Job:     posting,
		Profile: profile,
		Resume:  resume,
	}
	if cl, ok := job.Metadata["cover_letter"].(string); ok {
		app.CoverLetter = cl
	}
	return app, nil
}
