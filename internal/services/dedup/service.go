package dedup

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospector/internal/interfaces"
)

// Service implements interfaces.DedupStore over a keyed set storage.
// Store failures never block extraction: checks degrade to all-false and
// marks are swallowed after logging.
type Service struct {
	storage interfaces.URLSetStorage
	ttl     time.Duration
	logger  arbor.ILogger
}

// NewService creates the deduplicator. ttlDays below 1 falls back to 365.
func NewService(storage interfaces.URLSetStorage, ttlDays int, logger arbor.ILogger) *Service {
	if ttlDays < 1 {
		ttlDays = 365
	}
	return &Service{
		storage: storage,
		ttl:     time.Duration(ttlDays) * 24 * time.Hour,
		logger:  logger,
	}
}

func setKey(userID, normalizedURL string) string {
	return "dedup:" + userID + ":" + normalizedURL
}

// BatchCheck returns one bool per URL; true when the normalized URL is
// already marked for the user. On storage failure every URL reports
// false so extraction proceeds.
func (s *Service) BatchCheck(ctx context.Context, userID string, urls []string) ([]bool, error) {
	results := make([]bool, len(urls))
	if userID == "" || len(urls) == 0 {
		return results, nil
	}

	keys := make([]string, len(urls))
	for i, u := range urls {
		keys[i] = setKey(userID, NormalizeURL(u))
	}

	found, err := s.storage.ExistsBatch(ctx, keys)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Int("urls", len(urls)).
			Msg("Dedup check failed, letting all listings through")
		return results, nil
	}
	return found, nil
}

// Mark adds the normalized URL to the user's set, refreshing its TTL.
// Idempotent; errors are swallowed after logging.
func (s *Service) Mark(ctx context.Context, userID string, url string) error {
	return s.BatchMark(ctx, userID, []string{url})
}

// BatchMark marks several URLs in one storage roundtrip.
func (s *Service) BatchMark(ctx context.Context, userID string, urls []string) error {
	if userID == "" || len(urls) == 0 {
		return nil
	}

	keys := make([]string, len(urls))
	for i, u := range urls {
		keys[i] = setKey(userID, NormalizeURL(u))
	}

	if err := s.storage.SetWithTTL(ctx, keys, s.ttl); err != nil {
		s.logger.Warn().
			Err(err).
			Int("urls", len(urls)).
			Msg("Failed to mark URLs in dedup store")
	}
	return nil
}
