package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Logging     LoggingConfig   `toml:"logging"`
	Storage     StorageConfig   `toml:"storage"`
	Browser     BrowserConfig   `toml:"browser"`
	Scraper     ScraperConfig   `toml:"scraper"`
	ScrapeAPI   ScrapeAPIConfig `toml:"scrape_api"`
	Geocoder    GeocoderConfig  `toml:"geocoder"`
	Dedup       DedupConfig     `toml:"dedup"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// BrowserConfig controls the chromedp session and page pool
type BrowserConfig struct {
	MaxPages            int           `toml:"max_pages"`             // Page pool capacity
	Headless            bool          `toml:"headless"`              // Run Chrome headless
	NoSandbox           bool          `toml:"no_sandbox"`            // Disable Chrome sandbox (containers)
	UserAgent           string        `toml:"user_agent"`            // Stable user agent for all pages
	BlockHeavyResources bool          `toml:"block_heavy_resources"` // Block images/fonts/media on new pages
	BlockStylesheets    bool          `toml:"block_stylesheets"`     // Also block stylesheets
	SearchNavTimeout    time.Duration `toml:"search_nav_timeout"`    // Tier-A navigation timeout
	DetailNavTimeout    time.Duration `toml:"detail_nav_timeout"`    // Tier-B navigation timeout
	SessionMaxAge       time.Duration `toml:"session_max_age"`       // Session TTL before rotation
	SessionDrainTimeout time.Duration `toml:"session_drain_timeout"` // Wait for holders before force-close
	SessionRetryLimit   int           `toml:"session_retry_limit"`   // withPage retries on session-class errors
}

// ScraperConfig controls the two-tier scheduler
type ScraperConfig struct {
	CityConcurrency        int           `toml:"city_concurrency"`         // Tier-A zone discovery limiter
	DetailConcurrency      int           `toml:"detail_concurrency"`       // Tier-B page-path limiter
	ZoneBatchSize          int           `toml:"zone_batch_size"`          // Zones generated per batch
	MaxTotalZones          int           `toml:"max_total_zones"`          // Cap on grid zones per run
	MinPopulation          int           `toml:"min_population"`           // Bucketizer drop threshold
	JobTimeout             time.Duration `toml:"job_timeout"`              // Wall-clock cap per run
	TaskStuckTimeout       time.Duration `toml:"task_stuck_timeout"`       // Detail task excluded from budget after this
	StuckRecordsTimeout    time.Duration `toml:"stuck_records_timeout"`    // No record growth for this long = stuck
	StuckPercentageTimeout time.Duration `toml:"stuck_percentage_timeout"` // No percentage change for this long = stuck
	StuckGracePeriod       time.Duration `toml:"stuck_grace_period"`       // Drain window after a stuck stop
}

// ScrapeAPIConfig controls the external detail-scrape REST API
type ScrapeAPIConfig struct {
	BaseURL        string        `toml:"base_url"`
	APIKey         string        `toml:"api_key"`
	MaxRetries     int           `toml:"max_retries"`     // Retries for retryable failures
	Concurrency    int           `toml:"concurrency"`     // Outbound call cap, independent of detail limiter
	RequestTimeout time.Duration `toml:"request_timeout"` // Per-call HTTP timeout
}

// GeocoderConfig controls the external bounds resolver
type GeocoderConfig struct {
	BaseURL        string        `toml:"base_url"`
	RatePerSecond  float64       `toml:"rate_per_second"` // Politeness cap for the public endpoint
	RequestTimeout time.Duration `toml:"request_timeout"`
}

// DedupConfig controls the per-user URL set
type DedupConfig struct {
	TTLDays int `toml:"ttl_days"` // Entry lifetime; refreshed on every mark
}

// DefaultConfig returns the configuration defaults applied before file and env overrides.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/prospector",
			},
		},
		Browser: BrowserConfig{
			MaxPages:            5,
			Headless:            true,
			NoSandbox:           true,
			UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			BlockHeavyResources: true,
			BlockStylesheets:    false,
			SearchNavTimeout:    45 * time.Second,
			DetailNavTimeout:    25 * time.Second,
			SessionMaxAge:       60 * time.Second,
			SessionDrainTimeout: 3 * time.Second,
			SessionRetryLimit:   1,
		},
		Scraper: ScraperConfig{
			CityConcurrency:        2,
			DetailConcurrency:      3,
			ZoneBatchSize:          50,
			MaxTotalZones:          2000,
			MinPopulation:          5000,
			JobTimeout:             90 * time.Minute,
			TaskStuckTimeout:       180 * time.Second,
			StuckRecordsTimeout:    10 * time.Minute,
			StuckPercentageTimeout: 5 * time.Minute,
			StuckGracePeriod:       30 * time.Second,
		},
		ScrapeAPI: ScrapeAPIConfig{
			BaseURL:        "https://api.scrapingbee.com/v1",
			MaxRetries:     2,
			Concurrency:    3,
			RequestTimeout: 60 * time.Second,
		},
		Geocoder: GeocoderConfig{
			BaseURL:        "https://nominatim.openstreetmap.org",
			RatePerSecond:  1,
			RequestTimeout: 15 * time.Second,
		},
		Dedup: DedupConfig{
			TTLDays: 365,
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks constraints that would otherwise surface as runtime misbehavior.
func (c *Config) Validate() error {
	if c.Browser.MaxPages <= 0 {
		return fmt.Errorf("browser.max_pages must be greater than 0, got: %d", c.Browser.MaxPages)
	}
	if c.Scraper.CityConcurrency <= 0 || c.Scraper.DetailConcurrency <= 0 {
		return fmt.Errorf("scraper concurrency must be greater than 0")
	}
	if c.Scraper.ZoneBatchSize <= 0 {
		return fmt.Errorf("scraper.zone_batch_size must be greater than 0, got: %d", c.Scraper.ZoneBatchSize)
	}
	if c.Dedup.TTLDays <= 0 {
		return fmt.Errorf("dedup.ttl_days must be greater than 0, got: %d", c.Dedup.TTLDays)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config.
// Bare tunable names are supported alongside PROSPECTOR_-prefixed ones.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("PROSPECTOR_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if level := os.Getenv("PROSPECTOR_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if path := os.Getenv("PROSPECTOR_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
	if key := os.Getenv("SCRAPE_API_KEY"); key != "" {
		config.ScrapeAPI.APIKey = key
	}
	if base := os.Getenv("SCRAPE_API_BASE_URL"); base != "" {
		config.ScrapeAPI.BaseURL = base
	}

	envInt("CITY_CONCURRENCY", &config.Scraper.CityConcurrency)
	envInt("DETAIL_CONCURRENCY", &config.Scraper.DetailConcurrency)
	envInt("POOL_MAX_PAGES", &config.Browser.MaxPages)
	envInt("ZONE_BATCH_SIZE", &config.Scraper.ZoneBatchSize)
	envInt("MAX_TOTAL_ZONES", &config.Scraper.MaxTotalZones)
	envInt("MIN_POPULATION", &config.Scraper.MinPopulation)
	envInt("BROWSER_SESSION_RETRY_LIMIT", &config.Browser.SessionRetryLimit)
	envInt("SCRAPE_API_MAX_RETRIES", &config.ScrapeAPI.MaxRetries)
	envInt("SCRAPE_API_CONCURRENCY", &config.ScrapeAPI.Concurrency)
	envInt("DEDUP_URL_TTL_DAYS", &config.Dedup.TTLDays)

	envDurationMS("SEARCH_NAV_TIMEOUT_MS", &config.Browser.SearchNavTimeout)
	envDurationMS("DETAIL_NAV_TIMEOUT_MS", &config.Browser.DetailNavTimeout)
	envDurationMS("BROWSER_SESSION_MAX_MS", &config.Browser.SessionMaxAge)
	envDurationMS("BROWSER_SESSION_DRAIN_TIMEOUT_MS", &config.Browser.SessionDrainTimeout)
	envDurationMS("TASK_STUCK_TIMEOUT_MS", &config.Scraper.TaskStuckTimeout)
	envDurationMS("JOB_TIMEOUT_MS", &config.Scraper.JobTimeout)
	envDurationMS("STUCK_RECORDS_TIMEOUT_MS", &config.Scraper.StuckRecordsTimeout)
	envDurationMS("STUCK_PERCENTAGE_TIMEOUT_MS", &config.Scraper.StuckPercentageTimeout)
	envDurationMS("STUCK_JOB_GRACE_PERIOD_MS", &config.Scraper.StuckGracePeriod)

	envBool("BLOCK_HEAVY_RESOURCES", &config.Browser.BlockHeavyResources)
	envBool("BLOCK_STYLESHEETS", &config.Browser.BlockStylesheets)
	envBool("PROSPECTOR_HEADLESS", &config.Browser.Headless)
}

func envInt(name string, target *int) {
	if raw := os.Getenv(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			*target = v
		}
	}
}

func envDurationMS(name string, target *time.Duration) {
	if raw := os.Getenv(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			*target = time.Duration(v) * time.Millisecond
		}
	}
}

func envBool(name string, target *bool) {
	if raw := os.Getenv(name); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			*target = v
		}
	}
}
