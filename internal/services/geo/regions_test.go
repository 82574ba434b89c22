package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRegionIndex(t *testing.T) {
	idx, err := LoadRegionIndex()
	require.NoError(t, err)

	name, ok := idx.CountryName("us")
	assert.True(t, ok)
	assert.Equal(t, "United States", name)

	_, ok = idx.CountryName("XX")
	assert.False(t, ok)

	state, ok := idx.StateName("US", "ca")
	assert.True(t, ok)
	assert.Equal(t, "California", state)

	cities := idx.CitiesOfState("US", "CA")
	assert.NotEmpty(t, cities)

	all := idx.CitiesOfCountry("US")
	assert.Greater(t, len(all), len(cities))
}

func TestRegionIndex_Population(t *testing.T) {
	idx, err := LoadRegionIndex()
	require.NoError(t, err)

	pop := idx.Population("US", "CA", "fresno")
	require.NotNil(t, pop, "lookup is case-insensitive")
	assert.Equal(t, 542107, *pop)

	assert.Nil(t, idx.Population("US", "CA", "Atlantis"))
	assert.Nil(t, idx.Population("ZZ", "", "Fresno"))
}

func TestLoadRegionIndexFromJSON_Invalid(t *testing.T) {
	_, err := LoadRegionIndexFromJSON([]byte("{not json"))
	assert.Error(t, err)
}
