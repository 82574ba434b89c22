// Package app wires configuration, storage, and the scrape pipeline
// into one application object.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/httpclient"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
	"github.com/ternarybob/prospector/internal/services/browser"
	"github.com/ternarybob/prospector/internal/services/dedup"
	"github.com/ternarybob/prospector/internal/services/extract"
	"github.com/ternarybob/prospector/internal/services/geo"
	"github.com/ternarybob/prospector/internal/services/scraper"
	badgerstore "github.com/ternarybob/prospector/internal/storage/badger"
)

// App holds the long-lived services shared across job runs. Browser
// sessions are per-run and created inside Run.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	JobStore interfaces.JobStore
	Dedup    interfaces.DedupStore
	Regions  interfaces.RegionIndex

	db       *badgerstore.BadgerDB
	resolver interfaces.BoundsResolver
	api      *extract.ScrapeAPIClient
	miner    *extract.EmailMiner
}

// New initializes storage and the shared service clients.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	db, err := badgerstore.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	regions, err := geo.LoadRegionIndex()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to load region index: %w", err)
	}

	urlSet := badgerstore.NewURLSetStorage(db, logger)

	return &App{
		Config:   config,
		Logger:   logger,
		JobStore: badgerstore.NewJobStorage(db, logger),
		Dedup:    dedup.NewService(urlSet, config.Dedup.TTLDays, logger),
		Regions:  regions,
		db:       db,
		resolver: geo.NewNominatimResolver(&config.Geocoder, logger),
		api: extract.NewScrapeAPIClient(&config.ScrapeAPI,
			httpclient.NewPooledHTTPClient(config.ScrapeAPI.RequestTimeout, config.ScrapeAPI.Concurrency), logger),
		miner: extract.NewEmailMiner(httpclient.NewDefaultHTTPClient(30 * time.Second)),
	}, nil
}

// SubmitJob validates the parameters and persists a new waiting job.
func (a *App) SubmitJob(ctx context.Context, params models.ScrapeParams) (*models.ScrapeJob, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	job := &models.ScrapeJob{
		ID:     uuid.New().String(),
		Params: params,
		Status: models.JobStatusWaiting,
	}
	if err := a.JobStore.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Run executes one job with a dedicated browser session. Satisfies the
// worker pool's Runner contract.
func (a *App) Run(ctx context.Context, job *models.ScrapeJob) ([]models.BusinessRecord, error) {
	factory := browser.NewChromeFactory(&a.Config.Browser, a.Logger)
	session, err := browser.NewSession(ctx, factory, &a.Config.Browser, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}

	adapter := extract.NewAdapter(a.api, a.miner, session, &a.Config.Browser, a.Logger)
	searcher := scraper.NewPanelSearcher(a.Logger)
	zones := geo.NewGenerator(a.resolver, a.Logger)

	service := scraper.NewService(a.Config, session, searcher, adapter,
		a.JobStore, a.Dedup, zones, a.Regions, a.Logger)
	return service.Run(ctx, job)
}

// Close releases the storage layer.
func (a *App) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}
