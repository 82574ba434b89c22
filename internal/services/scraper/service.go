package scraper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
	"github.com/ternarybob/prospector/internal/services/browser"
	"github.com/ternarybob/prospector/internal/services/geo"
	"github.com/ternarybob/prospector/internal/services/limiter"
)

// ErrInvalidCountry rejects jobs whose country code has no entry in the
// region index.
var ErrInvalidCountry = errors.New("invalid country code")

const defaultSearchBase = "https://www.google.com/maps/search"

// PageSession is the slice of browser.Session the scheduler drives.
type PageSession interface {
	WithPage(ctx context.Context, fn func(browser.Page) error) error
	SetStopCheck(fn func() bool)
	ActivePages() int
	Close() error
}

// Service is the two-tier scheduler. Tier-A walks geographic zones and
// harvests detail URLs; tier-B extracts business records from them.
type Service struct {
	config    *common.Config
	session   PageSession
	searcher  ListingSearcher
	extractor interfaces.DetailExtractor
	jobs      interfaces.JobStore
	dedup     interfaces.DedupStore
	zones     *geo.Generator
	regions   interfaces.RegionIndex
	logger    arbor.ILogger

	searchBase       string
	watchdogInterval time.Duration
	rng              *rand.Rand
}

// NewService wires the scheduler. The session must already be open.
func NewService(
	config *common.Config,
	session PageSession,
	searcher ListingSearcher,
	extractor interfaces.DetailExtractor,
	jobs interfaces.JobStore,
	dedup interfaces.DedupStore,
	zones *geo.Generator,
	regions interfaces.RegionIndex,
	logger arbor.ILogger,
) *Service {
	return &Service{
		config:           config,
		session:          session,
		searcher:         searcher,
		extractor:        extractor,
		jobs:             jobs,
		dedup:            dedup,
		zones:            zones,
		regions:          regions,
		logger:           logger,
		searchBase:       defaultSearchBase,
		watchdogInterval: 5 * time.Second,
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// runState is the shared mutable state of one job run.
type runState struct {
	job    *models.ScrapeJob
	params *models.ScrapeParams

	mu             sync.Mutex
	results        []models.BusinessRecord
	processedZones map[string]struct{}
	seenURLs       map[string]struct{}
	stopReason     string
	stuck          *models.StuckDetection
	cancelled      bool

	tasks       *taskRegistry
	monitor     *ProgressMonitor
	limitCity   *limiter.Limiter
	limitDetail *limiter.Limiter

	countryName string
	stateName   string
}

func (rs *runState) stop(reason string) {
	rs.mu.Lock()
	if rs.stopReason == "" {
		rs.stopReason = reason
	}
	rs.mu.Unlock()
}

func (rs *runState) stopped() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.stopReason != ""
}

func (rs *runState) reason() string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.stopReason
}

func (rs *runState) resultCount() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.results)
}

// remaining returns how many records are still wanted; unbounded runs
// report a large sentinel.
func (rs *runState) remaining() int {
	if rs.params.Unbounded() {
		return math.MaxInt32
	}
	return rs.params.MaxRecords - rs.resultCount()
}

// pushResult appends unless the run has stopped or the cap is already
// reached. Hitting the cap raises the stop flag.
func (rs *runState) pushResult(record *models.BusinessRecord) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.stopReason != "" {
		return false
	}
	if !rs.params.Unbounded() && len(rs.results) >= rs.params.MaxRecords {
		rs.stopReason = "record cap reached"
		return false
	}
	rs.results = append(rs.results, *record)
	if !rs.params.Unbounded() && len(rs.results) >= rs.params.MaxRecords {
		if rs.stopReason == "" {
			rs.stopReason = "record cap reached"
		}
	}
	return true
}

// markZone returns false when the zone was already processed this run.
func (rs *runState) markZone(key string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if _, done := rs.processedZones[key]; done {
		return false
	}
	rs.processedZones[key] = struct{}{}
	return true
}

// markSeen returns false when the URL was already scheduled this run.
func (rs *runState) markSeen(url string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if _, dup := rs.seenURLs[url]; dup {
		return false
	}
	rs.seenURLs[url] = struct{}{}
	return true
}

// Run executes one scrape job to completion and returns the collected
// records, capped at maxRecords.
func (s *Service) Run(ctx context.Context, job *models.ScrapeJob) ([]models.BusinessRecord, error) {
	params := &job.Params
	if err := params.Validate(); err != nil {
		return nil, err
	}
	countryName, ok := s.regions.CountryName(params.CountryCode)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCountry, params.CountryCode)
	}

	rs := &runState{
		job:            job,
		params:         params,
		processedZones: make(map[string]struct{}),
		seenURLs:       make(map[string]struct{}),
		tasks:          newTaskRegistry(s.config.Scraper.TaskStuckTimeout),
		monitor:        NewProgressMonitor(&s.config.Scraper),
		limitCity:      limiter.New(s.config.Scraper.CityConcurrency),
		limitDetail:    limiter.New(s.config.Scraper.DetailConcurrency),
		countryName:    countryName,
	}
	if params.StateCode != "" {
		if name, ok := s.regions.StateName(params.CountryCode, params.StateCode); ok {
			rs.stateName = name
		} else {
			rs.stateName = params.StateCode
		}
	}

	if err := s.jobs.UpdateStatus(ctx, job.ID, models.JobStatusActive, ""); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to mark job active")
	}
	s.session.SetStopCheck(rs.stopped)

	watchCtx, stopWatchdog := context.WithCancel(ctx)
	defer stopWatchdog()
	s.startWatchdog(watchCtx, rs)

	s.logger.Info().
		Str("job_id", job.ID).
		Str("keyword", params.Keyword).
		Str("country", params.CountryCode).
		Str("state", params.StateCode).
		Str("city", params.City).
		Int("max_records", params.MaxRecords).
		Msg("Starting scrape run")

	if rs.remaining() > 0 {
		s.runScope(ctx, rs)
	}

	s.finish(ctx, rs)
	stopWatchdog()

	if err := s.session.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to close browser session")
	}

	s.finalizeJob(ctx, rs)

	rs.mu.Lock()
	defer rs.mu.Unlock()
	results := rs.results
	if !params.Unbounded() && len(results) > params.MaxRecords {
		results = results[:params.MaxRecords]
	}
	return results, nil
}

// startWatchdog checks wall clock, the progress monitor, and external
// cancellation every tick; any trigger raises the stop flag.
func (s *Service) startWatchdog(ctx context.Context, rs *runState) {
	start := time.Now()
	common.SafeGoWithContext(ctx, s.logger, "scrape-watchdog", func() {
		ticker := time.NewTicker(s.watchdogInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			if time.Since(start) >= s.config.Scraper.JobTimeout {
				s.logger.Warn().Str("job_id", rs.job.ID).Msg("Job wall-clock timeout")
				rs.stop("job timeout")
				return
			}
			if sd := rs.monitor.Check(); sd != nil {
				s.logger.Warn().
					Str("job_id", rs.job.ID).
					Str("reason", sd.Reason).
					Int64("stuck_for_ms", sd.StuckFor).
					Msg("Progress monitor flagged the run as stuck")
				rs.mu.Lock()
				rs.stuck = sd
				rs.mu.Unlock()
				rs.stop("stuck")
				return
			}
			job, err := s.jobs.Get(ctx, rs.job.ID)
			switch {
			case errors.Is(err, interfaces.ErrJobNotFound):
				s.logger.Info().Str("job_id", rs.job.ID).Msg("Job record deleted, cancelling run")
				rs.mu.Lock()
				rs.cancelled = true
				rs.mu.Unlock()
				rs.stop("cancelled")
				return
			case err == nil && (job.Status == models.JobStatusFailed || job.Status == models.JobStatusPaused):
				s.logger.Info().Str("job_id", rs.job.ID).Str("status", string(job.Status)).Msg("Job cancelled externally")
				rs.mu.Lock()
				rs.cancelled = true
				rs.mu.Unlock()
				rs.stop("cancelled")
				return
			}
		}
	})
}

// runScope picks the geographic strategy from the job parameters.
func (s *Service) runScope(ctx context.Context, rs *runState) {
	params := rs.params
	switch {
	case params.City != "" && params.StateCode != "":
		config := s.zones.CreateCityZones(ctx, params.City, params.StateCode, rs.stateName, params.CountryCode,
			true, s.config.Scraper.ZoneBatchSize, s.config.Scraper.MaxTotalZones)
		s.runBatchedZones(ctx, rs, config)

	case params.StateCode != "":
		candidates := s.regions.CitiesOfState(params.CountryCode, params.StateCode)
		buckets := geo.Bucketize(candidates, s.regions, params.CountryCode, s.config.Scraper.MinPopulation, s.rng)
		if buckets.Len() == 0 {
			config := s.zones.CreateStateZones(ctx, params.StateCode, rs.stateName, params.CountryCode,
				s.config.Scraper.ZoneBatchSize, s.config.Scraper.MaxTotalZones)
			s.runBatchedZones(ctx, rs, config)
			return
		}
		s.runBuckets(ctx, rs, buckets)

	default:
		candidates := s.regions.CitiesOfCountry(params.CountryCode)
		buckets := geo.Bucketize(candidates, s.regions, params.CountryCode, s.config.Scraper.MinPopulation, s.rng)
		if buckets.Len() == 0 {
			config := s.zones.CreateCountryZones(ctx, params.CountryCode,
				s.config.Scraper.ZoneBatchSize, s.config.Scraper.MaxTotalZones)
			s.runBatchedZones(ctx, rs, config)
			return
		}
		s.runBuckets(ctx, rs, buckets)
	}
}

// runBatchedZones scrapes the center zone first, then walks the grid
// batches starting at a random batch for variety, wrapping around.
func (s *Service) runBatchedZones(ctx context.Context, rs *runState, config *models.ZoneConfig) {
	center := s.zones.CenterZone(config)
	s.scrapeZone(ctx, rs, center)

	total := geo.TotalBatches(config)
	if total == 0 {
		return
	}

	start := s.rng.Intn(total)
	for i := 0; i < total; i++ {
		if rs.stopped() {
			return
		}
		batchNumber := (start + i) % total
		batch := s.zones.GenerateZoneBatch(config, batchNumber)
		s.rng.Shuffle(len(batch), func(a, b int) { batch[a], batch[b] = batch[b], batch[a] })

		s.runZonesParallel(ctx, rs, batch)
	}
}

// runZonesParallel runs one batch of zones under the city limiter and
// waits for all of them, all-settled.
func (s *Service) runZonesParallel(ctx context.Context, rs *runState, zones []models.Zone) {
	var wg sync.WaitGroup
	for _, zone := range zones {
		if rs.stopped() {
			break
		}
		zone := zone
		wg.Add(1)
		common.SafeGo(s.logger, "zone-"+zone.Label, func() {
			defer wg.Done()
			err := rs.limitCity.Do(ctx, func() error {
				s.scrapeZone(ctx, rs, zone)
				return nil
			})
			if err != nil {
				s.logger.Debug().Err(err).Str("zone", zone.Label).Msg("Zone skipped")
			}
		})
	}
	wg.Wait()
}

// runBuckets walks population tiers big to small, scheduling every
// candidate city as a name-anchored zone.
func (s *Service) runBuckets(ctx context.Context, rs *runState, buckets *geo.Buckets) {
	for _, tier := range buckets.Tiers() {
		if rs.stopped() {
			return
		}
		zones := make([]models.Zone, 0, len(tier))
		for _, candidate := range tier {
			zones = append(zones, models.Zone{
				Type:      models.ZoneCenter,
				CityName:  candidate.CityName,
				StateCode: candidate.StateCode,
				StateName: candidate.StateName,
				Label:     candidate.CityName,
			})
		}
		s.runZonesParallel(ctx, rs, zones)
	}
}

// scrapeZone is tier-A for one zone: navigate, harvest listings, filter,
// dedup, and hand survivors to tier-B.
func (s *Service) scrapeZone(ctx context.Context, rs *runState, zone models.Zone) {
	key := zoneKey(rs.params, zone)
	if !rs.markZone(key) {
		return
	}
	if rs.stopped() {
		return
	}

	searchURL := s.searchURL(rs, zone)
	err := s.session.WithPage(ctx, func(page browser.Page) error {
		if err := page.Navigate(ctx, searchURL, browser.WaitDOMContentLoaded, s.config.Browser.SearchNavTimeout); err != nil {
			return err
		}
		if rs.stopped() {
			return nil
		}

		remaining := rs.remaining()
		if remaining <= 0 {
			rs.stop("record cap reached")
			return nil
		}
		minCards := int(math.Ceil(math.Min(float64(remaining), 50) * 2.0))

		listings, err := s.searcher.Search(ctx, page, minCards)
		if err != nil {
			return err
		}
		if rs.stopped() {
			return nil
		}

		listings = applyListingFilters(listings, rs.params)
		listings = s.filterDuplicates(ctx, rs, listings)

		scheduled := 0
		for _, listing := range listings {
			if scheduled >= remaining || rs.stopped() {
				break
			}
			if !rs.markSeen(listing.URL) {
				continue
			}
			if s.scheduleDetail(ctx, rs, listing, zone) {
				scheduled++
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("zone", zone.Label).Str("url", searchURL).Msg("Zone scrape failed")
	}

	s.reportProgress(ctx, rs, zoneLocation(rs, zone))
}

// filterDuplicates drops listings already delivered to this user, when
// requested. Store failures let everything through.
func (s *Service) filterDuplicates(ctx context.Context, rs *runState, listings []models.Listing) []models.Listing {
	if !rs.params.AvoidDuplicate || rs.params.UserID == "" || len(listings) == 0 {
		return listings
	}

	urls := make([]string, len(listings))
	for i, l := range listings {
		urls[i] = l.URL
	}
	seen, err := s.dedup.BatchCheck(ctx, rs.params.UserID, urls)
	if err != nil || len(seen) != len(listings) {
		return listings
	}

	kept := listings[:0]
	for i, l := range listings {
		if !seen[i] {
			kept = append(kept, l)
		}
	}
	return kept
}

// scheduleDetail registers and launches one tier-B task. Returns false
// when the scheduling budget is exhausted.
func (s *Service) scheduleDetail(ctx context.Context, rs *runState, listing models.Listing, zone models.Zone) bool {
	if !rs.params.Unbounded() {
		if rs.resultCount()+rs.tasks.ActiveCount() >= rs.params.MaxRecords {
			return false
		}
	}

	task := rs.tasks.Add(listing.URL)
	req := &interfaces.DetailRequest{
		URL:            listing.URL,
		Listing:        listing,
		Params:         rs.params,
		SearchLocation: zoneLocation(rs, zone),
	}

	run := func() {
		if rs.stopped() {
			rs.tasks.finish(task, taskCompleted)
			return
		}
		rs.tasks.setStatus(task, taskActive)
		record, err := s.extractor.Extract(ctx, req)
		if err != nil {
			s.logger.Warn().Err(err).Str("url", listing.URL).Msg("Detail extraction failed")
			rs.tasks.finish(task, taskFailed)
			return
		}
		if record == nil {
			rs.tasks.finish(task, taskCompleted)
			return
		}

		if rs.pushResult(record) {
			// Mark regardless of whether the duplicate check was enabled.
			if rs.params.UserID != "" {
				_ = s.dedup.Mark(ctx, rs.params.UserID, listing.URL)
			}
			s.reportProgress(ctx, rs, req.SearchLocation)
		}
		rs.tasks.finish(task, taskCompleted)
	}

	if s.extractor.NeedsPage(rs.params) {
		common.SafeGo(s.logger, "detail-page", func() {
			if err := rs.limitDetail.Do(ctx, func() error { run(); return nil }); err != nil {
				rs.tasks.finish(task, taskFailed)
			}
		})
	} else {
		// Page-less tasks bypass the detail limiter; the extraction
		// adapter's own REST limiter bounds them.
		common.SafeGo(s.logger, "detail-rest", run)
	}
	return true
}

// finish drains tier-B per the stop reason: a clean scope exit waits for
// everything, a stuck stop gets a bounded grace period.
func (s *Service) finish(ctx context.Context, rs *runState) {
	if !rs.stopped() {
		if err := rs.tasks.WaitAll(ctx); err != nil {
			s.logger.Debug().Err(err).Msg("Wait for detail tasks interrupted")
		}
		return
	}

	if rs.reason() == "stuck" {
		grace := s.config.Scraper.StuckGracePeriod
		s.logger.Info().Dur("grace", grace).Msg("Stuck stop, granting detail tasks a grace period")
		graceCtx, cancel := context.WithTimeout(ctx, grace)
		defer cancel()
		_ = rs.tasks.WaitAll(graceCtx)
	}
}

// finalizeJob records the terminal status unless the job was cancelled
// externally.
func (s *Service) finalizeJob(ctx context.Context, rs *runState) {
	rs.mu.Lock()
	cancelled := rs.cancelled
	stuck := rs.stuck
	records := len(rs.results)
	rs.mu.Unlock()

	if cancelled {
		return
	}

	if stuck != nil {
		progress := models.Progress{
			Percentage:       computePercentage(rs.params, records),
			RecordsCollected: records,
			MaxRecords:       rs.params.MaxRecords,
			Status:           string(models.JobStatusStuckTimeout),
			StuckDetection:   stuck,
		}
		if err := s.jobs.UpdateProgress(ctx, rs.job.ID, progress); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to store final progress")
		}
		if err := s.jobs.UpdateStatus(ctx, rs.job.ID, models.JobStatusStuckTimeout, "no progress within stuck timeout"); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to store final status")
		}
		return
	}

	progress := models.Progress{
		Percentage:       100,
		RecordsCollected: records,
		MaxRecords:       rs.params.MaxRecords,
		Status:           string(models.JobStatusCompleted),
	}
	if err := s.jobs.UpdateProgress(ctx, rs.job.ID, progress); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to store final progress")
	}
	if err := s.jobs.UpdateStatus(ctx, rs.job.ID, models.JobStatusCompleted, ""); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to store final status")
	}
}

// reportProgress pushes the current counters to the job store and feeds
// the stall monitor.
func (s *Service) reportProgress(ctx context.Context, rs *runState, location string) {
	records := rs.resultCount()
	percentage := computePercentage(rs.params, records)
	rs.monitor.Update(records, percentage)

	progress := models.Progress{
		Percentage:       percentage,
		RecordsCollected: records,
		MaxRecords:       rs.params.MaxRecords,
		CurrentLocation:  location,
		Status:           string(models.JobStatusActive),
	}
	if err := s.jobs.UpdateProgress(ctx, rs.job.ID, progress); err != nil {
		s.logger.Debug().Err(err).Msg("Progress update failed")
	}
}

func computePercentage(params *models.ScrapeParams, records int) float64 {
	if params.Unbounded() || params.MaxRecords == 0 {
		return 0
	}
	pct := float64(records) / float64(params.MaxRecords) * 100
	return math.Min(100, pct)
}

// applyListingFilters enforces the rating and review filters on the
// tier-A card metadata. When a filter is present, cards that did not
// render the value are dropped.
func applyListingFilters(listings []models.Listing, params *models.ScrapeParams) []models.Listing {
	if params.RatingFilter == nil && params.ReviewFilter == nil {
		return listings
	}

	kept := listings[:0]
	for _, l := range listings {
		if params.RatingFilter != nil {
			if l.Rating == nil || !params.RatingFilter.Matches(*l.Rating) {
				continue
			}
		}
		if params.ReviewFilter != nil {
			if l.ReviewCount == nil || !params.ReviewFilter.Matches(*l.ReviewCount) {
				continue
			}
		}
		kept = append(kept, l)
	}
	return kept
}

// zoneKey identifies a zone within processedZones. Coordinate zones key
// on their grid point so name reuse across batches stays distinct.
func zoneKey(params *models.ScrapeParams, zone models.Zone) string {
	key := params.CountryCode + "|" + zone.StateCode + "|" + zone.CityName
	if zone.Coords != nil {
		key += fmt.Sprintf("|@%.6f,%.6f", zone.Coords.Lat, zone.Coords.Lng)
	}
	return key
}

// searchURL builds the tier-A query URL: coordinate-anchored for grid
// zones, name-anchored for center zones.
func (s *Service) searchURL(rs *runState, zone models.Zone) string {
	keyword := url.PathEscape(rs.params.Keyword)
	if zone.Coords != nil {
		return fmt.Sprintf("%s/%s/@%f,%f,14z?hl=en", s.searchBase, keyword, zone.Coords.Lat, zone.Coords.Lng)
	}
	location := url.PathEscape(zoneLocation(rs, zone))
	return fmt.Sprintf("%s/%s+in+%s?hl=en", s.searchBase, keyword, location)
}

// zoneLocation formats the human-readable location for search URLs and
// progress events.
func zoneLocation(rs *runState, zone models.Zone) string {
	parts := make([]string, 0, 3)
	if zone.CityName != "" {
		parts = append(parts, zone.CityName)
	}
	if zone.StateName != "" {
		parts = append(parts, zone.StateName)
	} else if zone.StateCode != "" {
		parts = append(parts, zone.StateCode)
	}
	if rs.countryName != "" {
		parts = append(parts, rs.countryName)
	}
	return strings.Join(parts, ", ")
}
