// Package worker runs queued scrape jobs on a bounded set of workers.
package worker

import (
	"context"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

// Runner executes one scrape job to completion.
type Runner interface {
	Run(ctx context.Context, job *models.ScrapeJob) ([]models.BusinessRecord, error)
}

// ResultSink receives the records of a finished job.
type ResultSink func(jobID string, records []models.BusinessRecord)

// Pool manages a set of workers draining the job queue.
type Pool struct {
	jobs       interfaces.JobStore
	runner     Runner
	sink       ResultSink
	logger     arbor.ILogger
	numWorkers int

	queue  chan string
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewPool(jobs interfaces.JobStore, runner Runner, sink ResultSink, logger arbor.ILogger, numWorkers int) *Pool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		jobs:       jobs,
		runner:     runner,
		sink:       sink,
		logger:     logger,
		numWorkers: numWorkers,
		queue:      make(chan string, 64),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start starts the worker pool
func (p *Pool) Start() {
	p.logger.Info().
		Int("num_workers", p.numWorkers).
		Msg("Starting worker pool")

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop stops the worker pool gracefully
func (p *Pool) Stop() {
	p.logger.Info().Msg("Stopping worker pool...")
	p.cancel()
	p.wg.Wait()
	p.logger.Info().Msg("Worker pool stopped")
}

// Submit queues a job for execution. Returns false when the pool is
// shutting down or the queue is full.
func (p *Pool) Submit(jobID string) bool {
	if p.ctx.Err() != nil {
		return false
	}
	select {
	case p.queue <- jobID:
		return true
	default:
		p.logger.Warn().Str("job_id", jobID).Msg("Job queue full, submission rejected")
		return false
	}
}

func (p *Pool) worker(workerID int) {
	defer p.wg.Done()

	p.logger.Debug().
		Int("worker_id", workerID).
		Msg("Worker started")

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug().
				Int("worker_id", workerID).
				Msg("Worker stopping")
			return
		case jobID := <-p.queue:
			p.processJob(workerID, jobID)
		}
	}
}

func (p *Pool) processJob(workerID int, jobID string) {
	job, err := p.jobs.Get(p.ctx, jobID)
	if err != nil {
		p.logger.Error().
			Err(err).
			Str("job_id", jobID).
			Msg("Failed to load queued job")
		return
	}

	p.logger.Info().
		Int("worker_id", workerID).
		Str("job_id", jobID).
		Str("keyword", job.Params.Keyword).
		Msg("Processing job")

	records, err := p.runner.Run(p.ctx, job)
	if err != nil {
		p.logger.Error().
			Err(err).
			Str("job_id", jobID).
			Msg("Job failed")
		if updateErr := p.jobs.UpdateStatus(p.ctx, jobID, models.JobStatusFailed, err.Error()); updateErr != nil {
			p.logger.Warn().Err(updateErr).Str("job_id", jobID).Msg("Failed to record job failure")
		}
		return
	}

	p.logger.Info().
		Str("job_id", jobID).
		Int("records", len(records)).
		Msg("Job completed")

	if p.sink != nil {
		p.sink(jobID, records)
	}
}
