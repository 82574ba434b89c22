package badger

import (
	"context"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospector/internal/interfaces"
)

// URLSetStorage implements interfaces.URLSetStorage with native Badger
// TTL entries, so expired URL marks disappear without a sweeper.
type URLSetStorage struct {
	db     *badgerdb.DB
	logger arbor.ILogger
}

// NewURLSetStorage creates the URL set over an open connection.
func NewURLSetStorage(db *BadgerDB, logger arbor.ILogger) interfaces.URLSetStorage {
	return &URLSetStorage{
		db:     db.Store().Badger(),
		logger: logger,
	}
}

// SetWithTTL inserts or refreshes keys with the given lifetime in a
// single transaction.
func (s *URLSetStorage) SetWithTTL(ctx context.Context, keys []string, ttl time.Duration) error {
	if len(keys) == 0 {
		return nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, key := range keys {
		entry := badgerdb.NewEntry([]byte(key), []byte{1}).WithTTL(ttl)
		if err := wb.SetEntry(entry); err != nil {
			return fmt.Errorf("failed to stage url mark: %w", err)
		}
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to write url marks: %w", err)
	}
	return nil
}

// ExistsBatch returns one bool per key in a single read transaction.
func (s *URLSetStorage) ExistsBatch(ctx context.Context, keys []string) ([]bool, error) {
	results := make([]bool, len(keys))

	err := s.db.View(func(txn *badgerdb.Txn) error {
		for i, key := range keys {
			_, err := txn.Get([]byte(key))
			switch err {
			case nil:
				results[i] = true
			case badgerdb.ErrKeyNotFound:
				// Not marked.
			default:
				return fmt.Errorf("failed to check url mark: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
