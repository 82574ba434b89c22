package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/prospector/internal/models"
)

// ErrJobNotFound is returned when a job ID has no record.
var ErrJobNotFound = errors.New("job not found")

// JobStore is the persisted job record contract consumed by the scraper.
// The scheduler polls Get for cancellation and reports status and progress
// through it; update failures are logged by callers, never fatal.
type JobStore interface {
	Create(ctx context.Context, job *models.ScrapeJob) error
	Get(ctx context.Context, jobID string) (*models.ScrapeJob, error)
	UpdateStatus(ctx context.Context, jobID string, status models.JobStatus, errMsg string) error
	UpdateProgress(ctx context.Context, jobID string, progress models.Progress) error
}
