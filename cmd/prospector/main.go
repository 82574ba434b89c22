package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospector/internal/app"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/models"
	"github.com/ternarybob/prospector/internal/worker"
)

var (
	configPath = flag.String("config", "", "Configuration file path (TOML)")

	keyword            = flag.String("keyword", "", "Search keyword (required)")
	country            = flag.String("country", "", "ISO-3166 alpha-2 country code (required)")
	state              = flag.String("state", "", "State/admin code")
	city               = flag.String("city", "", "City name")
	maxRecords         = flag.Int("max", -1, "Record cap (-1 = unbounded)")
	userID             = flag.String("user", "", "User id for URL deduplication")
	avoidDuplicate     = flag.Bool("avoid-duplicate", false, "Skip listings already delivered to this user")
	extractEmail       = flag.Bool("email", false, "Mine the business website for a contact email")
	negativeReviews    = flag.Bool("negative-reviews", false, "Extract 1-2 star reviews")
	reviewYears        = flag.Int("review-years", 0, "Only keep reviews within this many years (0 = off)")
	onlyWithoutWebsite = flag.Bool("only-without-website", false, "Keep only businesses without a website")
	ratingFilter       = flag.String("rating", "", "Rating filter, e.g. gte:4.5")
	reviewFilter       = flag.String("reviews", "", "Review count filter, e.g. gt:100")
	outPath            = flag.String("out", "", "Write results JSON to this file instead of stdout")

	showVersion = flag.Bool("version", false, "Print version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("Prospector version %s (%s)\n", common.Version, common.Build)
		os.Exit(0)
	}

	config, err := common.LoadFromFile(*configPath)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config)
	common.PrintBanner(common.Version)

	params, err := buildParams()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid parameters")
		os.Exit(1)
	}

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer application.Close()

	ctx := context.Background()
	job, err := application.SubmitJob(ctx, params)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to submit job")
		os.Exit(1)
	}
	logger.Info().Str("job_id", job.ID).Msg("Job submitted")

	done := make(chan []models.BusinessRecord, 1)
	pool := worker.NewPool(application.JobStore, application, func(jobID string, records []models.BusinessRecord) {
		done <- records
	}, logger, 1)
	pool.Start()
	defer pool.Stop()

	if !pool.Submit(job.ID) {
		logger.Fatal().Msg("Failed to queue job")
		os.Exit(1)
	}

	stopProgress := make(chan struct{})
	go streamProgress(ctx, application, job.ID, logger, stopProgress)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var records []models.BusinessRecord
	select {
	case records = <-done:
	case <-sigChan:
		logger.Info().Msg("Interrupt received, cancelling job")
		// Flipping the record to failed makes the run's watchdog stop it.
		if err := application.JobStore.UpdateStatus(ctx, job.ID, models.JobStatusFailed, "cancelled by user"); err != nil {
			logger.Warn().Err(err).Msg("Failed to cancel job")
		}
		select {
		case records = <-done:
		case <-time.After(30 * time.Second):
			logger.Warn().Msg("Job did not stop within 30s")
		}
	}
	close(stopProgress)

	if err := writeResults(records, *outPath); err != nil {
		logger.Fatal().Err(err).Msg("Failed to write results")
		os.Exit(1)
	}
	logger.Info().Int("records", len(records)).Msg("Done")
}

// streamProgress polls the job record and logs progress changes until
// the run finishes.
func streamProgress(ctx context.Context, application *app.App, jobID string, logger arbor.ILogger, stop <-chan struct{}) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var last models.Progress
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		job, err := application.JobStore.Get(ctx, jobID)
		if err != nil {
			continue
		}
		if job.Progress != last {
			last = job.Progress
			logger.Info().
				Float64("percentage", job.Progress.Percentage).
				Int("records", job.Progress.RecordsCollected).
				Str("location", job.Progress.CurrentLocation).
				Str("status", string(job.Status)).
				Msg("Progress")
		}
	}
}

func buildParams() (models.ScrapeParams, error) {
	params := models.ScrapeParams{
		Keyword:                *keyword,
		CountryCode:            strings.ToUpper(*country),
		StateCode:              strings.ToUpper(*state),
		City:                   *city,
		MaxRecords:             *maxRecords,
		ReviewTimeRange:        *reviewYears,
		IsExtractEmail:         *extractEmail,
		ExtractNegativeReviews: *negativeReviews,
		AvoidDuplicate:         *avoidDuplicate,
		OnlyWithoutWebsite:     *onlyWithoutWebsite,
		UserID:                 *userID,
	}

	if *ratingFilter != "" {
		op, value, err := parseFilter(*ratingFilter)
		if err != nil {
			return params, fmt.Errorf("invalid -rating: %w", err)
		}
		params.RatingFilter = &models.RatingFilter{Operator: op, Value: value}
	}
	if *reviewFilter != "" {
		op, value, err := parseFilter(*reviewFilter)
		if err != nil {
			return params, fmt.Errorf("invalid -reviews: %w", err)
		}
		params.ReviewFilter = &models.ReviewFilter{Operator: op, Value: int(value)}
	}

	return params, params.Validate()
}

// parseFilter splits "gte:4.5" into its operator and value.
func parseFilter(raw string) (models.FilterOperator, float64, error) {
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("expected operator:value, got %q", raw)
	}
	op := models.FilterOperator(parts[0])
	switch op {
	case models.FilterGT, models.FilterGTE, models.FilterLT, models.FilterLTE:
	default:
		return "", 0, fmt.Errorf("unknown operator %q", parts[0])
	}
	value, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return "", 0, fmt.Errorf("bad value %q", parts[1])
	}
	return op, value, nil
}

func writeResults(records []models.BusinessRecord, path string) error {
	if records == nil {
		records = []models.BusinessRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	if path == "" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	return os.WriteFile(path, data, 0644)
}
