// Package scraper runs the two-tier extraction scheduler: tier-A zone
// discovery produces detail URLs, tier-B turns them into records.
package scraper

import (
	"sync"
	"time"

	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/models"
)

// ProgressMonitor watches record count and percentage for stalls. A run
// is stuck when the record count has not grown for the records timeout,
// or the percentage has not changed for the percentage timeout. Once
// stuck, the verdict is sticky.
type ProgressMonitor struct {
	mu                sync.Mutex
	recordsTimeout    time.Duration
	percentageTimeout time.Duration

	lastRecords      int
	lastRecordsAt    time.Time
	lastPercentage   float64
	lastPercentageAt time.Time

	stuck *models.StuckDetection
	clock func() time.Time
}

// NewProgressMonitor creates a monitor with both watermarks anchored at
// now, so a run that never produces anything still times out.
func NewProgressMonitor(config *common.ScraperConfig) *ProgressMonitor {
	m := &ProgressMonitor{
		recordsTimeout:    config.StuckRecordsTimeout,
		percentageTimeout: config.StuckPercentageTimeout,
		clock:             time.Now,
	}
	now := m.clock()
	m.lastRecordsAt = now
	m.lastPercentageAt = now
	return m
}

// Update feeds the latest progress. Watermarks move only when the value
// actually changed.
func (m *ProgressMonitor) Update(records int, percentage float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	if records != m.lastRecords {
		m.lastRecords = records
		m.lastRecordsAt = now
	}
	if percentage != m.lastPercentage {
		m.lastPercentage = percentage
		m.lastPercentageAt = now
	}
}

// Check returns the stuck verdict, or nil while the run is healthy.
func (m *ProgressMonitor) Check() *models.StuckDetection {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stuck != nil {
		return m.stuck
	}

	now := m.clock()
	if since := now.Sub(m.lastRecordsAt); since >= m.recordsTimeout {
		m.stuck = &models.StuckDetection{Reason: "records", StuckFor: since.Milliseconds()}
		return m.stuck
	}
	if since := now.Sub(m.lastPercentageAt); since >= m.percentageTimeout {
		m.stuck = &models.StuckDetection{Reason: "percentage", StuckFor: since.Milliseconds()}
		return m.stuck
	}
	return nil
}
