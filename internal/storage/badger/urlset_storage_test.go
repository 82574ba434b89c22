package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/prospector/internal/common"
)

func TestURLSetStorage_SetAndExists(t *testing.T) {
	store := NewURLSetStorage(testDB(t), common.GetLogger())
	ctx := context.Background()

	keys := []string{"dedup:u1:url-a", "dedup:u1:url-b"}
	require.NoError(t, store.SetWithTTL(ctx, keys, time.Hour))

	found, err := store.ExistsBatch(ctx, []string{"dedup:u1:url-a", "dedup:u1:url-c", "dedup:u1:url-b"})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, found)
}

func TestURLSetStorage_SetIdempotent(t *testing.T) {
	store := NewURLSetStorage(testDB(t), common.GetLogger())
	ctx := context.Background()

	require.NoError(t, store.SetWithTTL(ctx, []string{"dedup:u1:url-a"}, time.Hour))
	require.NoError(t, store.SetWithTTL(ctx, []string{"dedup:u1:url-a"}, time.Hour))

	found, err := store.ExistsBatch(ctx, []string{"dedup:u1:url-a"})
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, found)
}

func TestURLSetStorage_Expiry(t *testing.T) {
	store := NewURLSetStorage(testDB(t), common.GetLogger())
	ctx := context.Background()

	require.NoError(t, store.SetWithTTL(ctx, []string{"dedup:u1:short"}, time.Second))
	time.Sleep(1100 * time.Millisecond)

	found, err := store.ExistsBatch(ctx, []string{"dedup:u1:short"})
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, found)
}

func TestURLSetStorage_EmptyBatch(t *testing.T) {
	store := NewURLSetStorage(testDB(t), common.GetLogger())
	ctx := context.Background()

	require.NoError(t, store.SetWithTTL(ctx, nil, time.Hour))

	found, err := store.ExistsBatch(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, found)
}
