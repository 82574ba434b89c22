package scraper

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
	"github.com/ternarybob/prospector/internal/services/browser"
)

// stubPage records the last navigation so fakes can key behavior off it.
type stubPage struct {
	mu        sync.Mutex
	navigated string
	closed    bool
}

func (p *stubPage) Navigate(ctx context.Context, url string, wait browser.WaitMode, timeout time.Duration) error {
	p.mu.Lock()
	p.navigated = url
	p.mu.Unlock()
	return nil
}

func (p *stubPage) lastURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.navigated
}

func (p *stubPage) Evaluate(ctx context.Context, expr string, out interface{}) error { return nil }
func (p *stubPage) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	return nil
}
func (p *stubPage) Click(ctx context.Context, sel string) error { return nil }
func (p *stubPage) IsClosed() bool                              { return p.closed }
func (p *stubPage) Close() error                                { p.closed = true; return nil }

// fakeSession hands every WithPage call a fresh stub page and records
// the navigated search URLs in order.
type fakeSession struct {
	mu         sync.Mutex
	stop       func() bool
	closed     bool
	searchURLs []string
}

func (s *fakeSession) WithPage(ctx context.Context, fn func(browser.Page) error) error {
	s.mu.Lock()
	stop := s.stop
	s.mu.Unlock()
	if stop != nil && stop() {
		return nil
	}

	page := &stubPage{}
	err := fn(page)
	if url := page.lastURL(); url != "" {
		s.mu.Lock()
		s.searchURLs = append(s.searchURLs, url)
		s.mu.Unlock()
	}
	return err
}

func (s *fakeSession) SetStopCheck(fn func() bool) {
	s.mu.Lock()
	s.stop = fn
	s.mu.Unlock()
}

func (s *fakeSession) ActivePages() int { return 0 }

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) visited() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.searchURLs))
	copy(out, s.searchURLs)
	return out
}

// fakeSearcher returns canned listings keyed by the navigated URL.
// listingsFor falls back to the default set when non-nil.
type fakeSearcher struct {
	mu          sync.Mutex
	listings    []models.Listing
	listingsFor func(searchURL string) []models.Listing
	searches    int
}

func (f *fakeSearcher) Search(ctx context.Context, page browser.Page, minCards int) ([]models.Listing, error) {
	f.mu.Lock()
	f.searches++
	f.mu.Unlock()

	url := page.(*stubPage).lastURL()
	if f.listingsFor != nil {
		return f.listingsFor(url), nil
	}
	return f.listings, nil
}

// fakeExtractor produces one record per URL, optionally blocking to
// simulate hung detail tasks.
type fakeExtractor struct {
	mu        sync.Mutex
	needsPage bool
	delay     time.Duration
	block     chan struct{} // non-nil: Extract waits for close or ctx
	calls     []string
}

func (f *fakeExtractor) NeedsPage(params *models.ScrapeParams) bool { return f.needsPage }

func (f *fakeExtractor) Extract(ctx context.Context, req *interfaces.DetailRequest) (*models.BusinessRecord, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.URL)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil, ctx.Err()
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &models.BusinessRecord{
		Name:       "Business " + req.URL,
		URL:        req.URL,
		SearchTerm: req.Params.Keyword,
		SearchType: "Google Maps",
	}, nil
}

func (f *fakeExtractor) extracted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// fakeJobStore is an in-memory job record store. Tests flip statuses
// directly to simulate external cancellation.
type fakeJobStore struct {
	mu       sync.Mutex
	jobs     map[string]*models.ScrapeJob
	statuses []models.JobStatus
	progress []models.Progress
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[string]*models.ScrapeJob)}
}

func (s *fakeJobStore) Create(ctx context.Context, job *models.ScrapeJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *fakeJobStore) Get(ctx context.Context, jobID string) (*models.ScrapeJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, interfaces.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *fakeJobStore) UpdateStatus(ctx context.Context, jobID string, status models.JobStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		job.Status = status
		job.Error = errMsg
	}
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeJobStore) UpdateProgress(ctx context.Context, jobID string, progress models.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		job.Progress = progress
	}
	s.progress = append(s.progress, progress)
	return nil
}

func (s *fakeJobStore) delete(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, jobID)
}

func (s *fakeJobStore) setStatus(jobID string, status models.JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		job.Status = status
	}
}

func (s *fakeJobStore) recordedStatuses() []models.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.JobStatus, len(s.statuses))
	copy(out, s.statuses)
	return out
}

func (s *fakeJobStore) recordedProgress() []models.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Progress, len(s.progress))
	copy(out, s.progress)
	return out
}

// fakeDedup tracks marks and answers checks from a preset seen map.
type fakeDedup struct {
	mu       sync.Mutex
	seen     map[string]bool
	marks    []string
	checkErr error
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{seen: make(map[string]bool)}
}

func (d *fakeDedup) BatchCheck(ctx context.Context, userID string, urls []string) ([]bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.checkErr != nil {
		// Degrade open, matching the production deduplicator.
		return make([]bool, len(urls)), nil
	}
	out := make([]bool, len(urls))
	for i, u := range urls {
		out[i] = d.seen[u]
	}
	return out, nil
}

func (d *fakeDedup) Mark(ctx context.Context, userID string, url string) error {
	return d.BatchMark(ctx, userID, []string{url})
}

func (d *fakeDedup) BatchMark(ctx context.Context, userID string, urls []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range urls {
		d.seen[u] = true
		d.marks = append(d.marks, u)
	}
	return nil
}

func (d *fakeDedup) markCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.marks)
}
