package models

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// JobStatus represents the lifecycle state of a scrape job.
type JobStatus string

const (
	JobStatusWaiting      JobStatus = "waiting"
	JobStatusActive       JobStatus = "active"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusFailed       JobStatus = "failed"
	JobStatusStuckTimeout JobStatus = "stuck_timeout"
	JobStatusDelayed      JobStatus = "delayed"
	JobStatusPaused       JobStatus = "paused"
)

// FilterOperator is a comparison operator for rating/review filters.
type FilterOperator string

const (
	FilterGT  FilterOperator = "gt"
	FilterGTE FilterOperator = "gte"
	FilterLT  FilterOperator = "lt"
	FilterLTE FilterOperator = "lte"
)

// RatingFilter restricts listings by star rating.
type RatingFilter struct {
	Operator FilterOperator `json:"operator" validate:"required,oneof=gt gte lt lte"`
	Value    float64        `json:"value" validate:"gte=0,lte=5"`
}

// ReviewFilter restricts listings by review count.
type ReviewFilter struct {
	Operator FilterOperator `json:"operator" validate:"required,oneof=gt gte lt lte"`
	Value    int            `json:"value" validate:"gte=0,lte=10000"`
}

// Matches reports whether v satisfies the operator/value pair.
func (f *RatingFilter) Matches(v float64) bool {
	return compare(f.Operator, v, f.Value)
}

// Matches reports whether v satisfies the operator/value pair.
func (f *ReviewFilter) Matches(v int) bool {
	return compare(f.Operator, float64(v), float64(f.Value))
}

func compare(op FilterOperator, v, threshold float64) bool {
	switch op {
	case FilterGT:
		return v > threshold
	case FilterGTE:
		return v >= threshold
	case FilterLT:
		return v < threshold
	case FilterLTE:
		return v <= threshold
	}
	return false
}

// ScrapeParams is the parameter record a scrape job is started with.
// A negative MaxRecords means unbounded; zero completes immediately
// with an empty result.
type ScrapeParams struct {
	Keyword                string        `json:"keyword" validate:"required"`
	CountryCode            string        `json:"country_code" validate:"required,iso3166_1_alpha2"`
	StateCode              string        `json:"state_code,omitempty"`
	City                   string        `json:"city,omitempty"`
	MaxRecords             int           `json:"max_records" validate:"gte=-1"`
	RatingFilter           *RatingFilter `json:"rating_filter,omitempty"`
	ReviewFilter           *ReviewFilter `json:"review_filter,omitempty"`
	ReviewTimeRange        int           `json:"review_time_range,omitempty" validate:"gte=0,lte=10"` // years
	IsExtractEmail         bool          `json:"is_extract_email,omitempty"`
	IsValidate             bool          `json:"is_validate,omitempty"`
	ExtractNegativeReviews bool          `json:"extract_negative_reviews,omitempty"`
	AvoidDuplicate         bool          `json:"avoid_duplicate,omitempty"`
	OnlyWithoutWebsite     bool          `json:"only_without_website,omitempty"`
	UserID                 string        `json:"user_id,omitempty"`
}

var validate = validator.New()

// Validate checks the parameter record against its constraints.
func (p *ScrapeParams) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid scrape parameters: %w", err)
	}
	if p.RatingFilter != nil {
		if err := validate.Struct(p.RatingFilter); err != nil {
			return fmt.Errorf("invalid rating filter: %w", err)
		}
	}
	if p.ReviewFilter != nil {
		if err := validate.Struct(p.ReviewFilter); err != nil {
			return fmt.Errorf("invalid review filter: %w", err)
		}
	}
	return nil
}

// Unbounded reports whether no record cap was supplied.
func (p *ScrapeParams) Unbounded() bool {
	return p.MaxRecords < 0
}

// StuckDetection describes why a run was flagged as stuck.
type StuckDetection struct {
	Reason   string `json:"reason"` // "records" or "percentage"
	StuckFor int64  `json:"stuck_for_ms"`
}

// Progress is the streaming progress event a running job emits.
type Progress struct {
	Percentage       float64         `json:"percentage"`
	RecordsCollected int             `json:"records_collected"`
	MaxRecords       int             `json:"max_records"`
	CurrentLocation  string          `json:"current_location,omitempty"`
	Status           string          `json:"status,omitempty"`
	StuckDetection   *StuckDetection `json:"stuck_detection,omitempty"`
}

// ScrapeJob is the persisted job record.
type ScrapeJob struct {
	ID        string       `json:"id" badgerhold:"key"`
	Params    ScrapeParams `json:"params"`
	Status    JobStatus    `json:"status"`
	Progress  Progress     `json:"progress"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	StartedAt *time.Time   `json:"started_at,omitempty"`
	EndedAt   *time.Time   `json:"ended_at,omitempty"`
}
