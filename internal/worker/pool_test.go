package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

type memJobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.ScrapeJob
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[string]*models.ScrapeJob)}
}

func (s *memJobStore) Create(ctx context.Context, job *models.ScrapeJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *memJobStore) Get(ctx context.Context, jobID string) (*models.ScrapeJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		copied := *job
		return &copied, nil
	}
	return nil, interfaces.ErrJobNotFound
}

func (s *memJobStore) UpdateStatus(ctx context.Context, jobID string, status models.JobStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		job.Status = status
		job.Error = errMsg
	}
	return nil
}

func (s *memJobStore) UpdateProgress(ctx context.Context, jobID string, progress models.Progress) error {
	return nil
}

type stubRunner struct {
	mu      sync.Mutex
	ran     []string
	err     error
	records []models.BusinessRecord
}

func (r *stubRunner) Run(ctx context.Context, job *models.ScrapeJob) ([]models.BusinessRecord, error) {
	r.mu.Lock()
	r.ran = append(r.ran, job.ID)
	r.mu.Unlock()
	return r.records, r.err
}

func TestPool_RunsSubmittedJobs(t *testing.T) {
	store := newMemJobStore()
	runner := &stubRunner{records: []models.BusinessRecord{{Name: "A"}}}

	results := make(chan []models.BusinessRecord, 1)
	pool := NewPool(store, runner, func(jobID string, records []models.BusinessRecord) {
		results <- records
	}, common.GetLogger(), 2)
	pool.Start()
	defer pool.Stop()

	job := &models.ScrapeJob{ID: "j1", Params: models.ScrapeParams{Keyword: "k", CountryCode: "US"}}
	require.NoError(t, store.Create(context.Background(), job))
	require.True(t, pool.Submit("j1"))

	select {
	case records := <-results:
		assert.Len(t, records, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("job never completed")
	}
}

func TestPool_RecordsFailure(t *testing.T) {
	store := newMemJobStore()
	runner := &stubRunner{err: errors.New("browser launch failed")}

	pool := NewPool(store, runner, nil, common.GetLogger(), 1)
	pool.Start()
	defer pool.Stop()

	job := &models.ScrapeJob{ID: "j1", Params: models.ScrapeParams{Keyword: "k", CountryCode: "US"}}
	require.NoError(t, store.Create(context.Background(), job))
	require.True(t, pool.Submit("j1"))

	require.Eventually(t, func() bool {
		got, err := store.Get(context.Background(), "j1")
		return err == nil && got.Status == models.JobStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	got, err := store.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, "browser launch failed", got.Error)
}

func TestPool_SubmitAfterStop(t *testing.T) {
	pool := NewPool(newMemJobStore(), &stubRunner{}, nil, common.GetLogger(), 1)
	pool.Start()
	pool.Stop()
	assert.False(t, pool.Submit("j1"))
}
