package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

// JobStorage implements interfaces.JobStore over badgerhold.
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates the job record store.
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStore {
	return &JobStorage{
		db:     db,
		logger: logger,
	}
}

// Create persists a new job record.
func (s *JobStorage) Create(ctx context.Context, job *models.ScrapeJob) error {
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	if err := s.db.Store().Insert(job.ID, job); err != nil {
		return fmt.Errorf("failed to create job %s: %w", job.ID, err)
	}

	s.logger.Debug().Str("job_id", job.ID).Str("keyword", job.Params.Keyword).Msg("Job created")
	return nil
}

// Get returns the job record or interfaces.ErrJobNotFound.
func (s *JobStorage) Get(ctx context.Context, jobID string) (*models.ScrapeJob, error) {
	var job models.ScrapeJob
	if err := s.db.Store().Get(jobID, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	return &job, nil
}

// UpdateStatus transitions the job's lifecycle state. Terminal states
// record the end time.
func (s *JobStorage) UpdateStatus(ctx context.Context, jobID string, status models.JobStatus, errMsg string) error {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}

	now := time.Now()
	job.Status = status
	job.Error = errMsg
	job.UpdatedAt = now

	switch status {
	case models.JobStatusActive:
		if job.StartedAt == nil {
			job.StartedAt = &now
		}
	case models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusStuckTimeout:
		if job.EndedAt == nil {
			job.EndedAt = &now
		}
	}

	if err := s.db.Store().Update(jobID, job); err != nil {
		return fmt.Errorf("failed to update job %s status: %w", jobID, err)
	}

	s.logger.Debug().Str("job_id", jobID).Str("status", string(status)).Msg("Job status updated")
	return nil
}

// UpdateProgress stores the latest progress event on the record.
func (s *JobStorage) UpdateProgress(ctx context.Context, jobID string, progress models.Progress) error {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}

	job.Progress = progress
	job.UpdatedAt = time.Now()

	if err := s.db.Store().Update(jobID, job); err != nil {
		return fmt.Errorf("failed to update job %s progress: %w", jobID, err)
	}
	return nil
}
