package geo

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/prospector/internal/models"
)

func intp(v int) *int { return &v }

func TestBucketize_TiersAndDrop(t *testing.T) {
	candidates := []models.Candidate{
		{CityName: "Metropolis", Population: intp(2_500_000)},
		{CityName: "Bigville", Population: intp(1_000_000)},
		{CityName: "Midtown", Population: intp(250_000)},
		{CityName: "Smallburg", Population: intp(40_000)},
		{CityName: "Hamlet", Population: intp(900)},
		{CityName: "Mysteryville"},
	}

	b := Bucketize(candidates, nil, "US", 5000, nil)

	assert.Len(t, b.Big, 2)
	assert.Len(t, b.Mid, 1)
	assert.Len(t, b.Small, 1)
	assert.Len(t, b.Unknown, 1)
	assert.Equal(t, 5, b.Len(), "Hamlet is dropped below the population floor")

	ordered := b.Ordered()
	assert.Equal(t, "Midtown", ordered[2].CityName)
	assert.Equal(t, "Smallburg", ordered[3].CityName)
	assert.Equal(t, "Mysteryville", ordered[4].CityName)
}

func TestBucketize_ResolvesMissingPopulations(t *testing.T) {
	idx, err := LoadRegionIndex()
	require.NoError(t, err)

	candidates := []models.Candidate{
		{CityName: "Los Angeles", StateCode: "CA"},
		{CityName: "Fresno", StateCode: "CA"},
		{CityName: "Santa Cruz", StateCode: "CA"},
		{CityName: "Nowhere Gulch", StateCode: "CA"},
	}

	b := Bucketize(candidates, idx, "US", 5000, nil)

	require.Len(t, b.Big, 1)
	assert.Equal(t, "Los Angeles", b.Big[0].CityName)
	require.Len(t, b.Mid, 1)
	assert.Equal(t, "Fresno", b.Mid[0].CityName)
	require.Len(t, b.Small, 1)
	assert.Equal(t, "Santa Cruz", b.Small[0].CityName)
	require.Len(t, b.Unknown, 1)
	assert.Equal(t, "Nowhere Gulch", b.Unknown[0].CityName)
}

func TestBucketize_EveryEmittedCandidateMeetsFloor(t *testing.T) {
	idx, err := LoadRegionIndex()
	require.NoError(t, err)

	candidates := idx.CitiesOfState("US", "CA")
	require.NotEmpty(t, candidates)

	const minPop = 50_000
	b := Bucketize(candidates, idx, "US", minPop, rand.New(rand.NewSource(1)))

	for _, c := range b.Ordered() {
		if c.Population != nil {
			assert.GreaterOrEqual(t, *c.Population, minPop, "city %s", c.CityName)
		}
	}
	// Buckets are a subset of the input.
	assert.LessOrEqual(t, b.Len(), len(candidates))
}

func TestBucketize_ShuffleKeepsMembership(t *testing.T) {
	var candidates []models.Candidate
	for i := 0; i < 30; i++ {
		candidates = append(candidates, models.Candidate{
			CityName:   string(rune('A' + i)),
			Population: intp(150_000 + i),
		})
	}

	b := Bucketize(candidates, nil, "US", 5000, rand.New(rand.NewSource(42)))
	require.Len(t, b.Mid, 30)

	members := map[string]bool{}
	for _, c := range b.Mid {
		members[c.CityName] = true
	}
	for _, c := range candidates {
		assert.True(t, members[c.CityName])
	}
}
