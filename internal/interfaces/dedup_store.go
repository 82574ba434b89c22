package interfaces

import (
	"context"
	"time"
)

// DedupStore is the per-user persistent set of normalized detail URLs.
// BatchCheck degrades open (all false) on backing-store failure; Mark
// errors are swallowed by the implementation and only logged.
type DedupStore interface {
	// BatchCheck returns one bool per input URL, true when the normalized
	// URL is already marked for the user.
	BatchCheck(ctx context.Context, userID string, urls []string) ([]bool, error)
	// Mark adds the normalized URL to the user's set and refreshes its TTL.
	Mark(ctx context.Context, userID string, url string) error
	// BatchMark marks several URLs in one backing-store roundtrip.
	BatchMark(ctx context.Context, userID string, urls []string) error
}

// URLSetStorage is the low-level keyed set the deduplicator is built on.
type URLSetStorage interface {
	// SetWithTTL inserts or refreshes keys with the given lifetime.
	SetWithTTL(ctx context.Context, keys []string, ttl time.Duration) error
	// ExistsBatch returns one bool per key.
	ExistsBatch(ctx context.Context, keys []string) ([]bool, error)
}
