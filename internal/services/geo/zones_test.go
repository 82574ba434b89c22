package geo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

type fixtureResolver struct {
	bounds *models.Bounds
	err    error
}

func (f *fixtureResolver) ResolveBounds(ctx context.Context, q interfaces.GeoQuery) (*models.Bounds, error) {
	return f.bounds, f.err
}

// Roughly Fresno, CA: ~30x25 km box.
func fresnoBounds() *models.Bounds {
	return &models.Bounds{
		North:     36.92,
		South:     36.66,
		East:      -119.65,
		West:      -119.93,
		CenterLat: 36.79,
		CenterLng: -119.79,
	}
}

func TestCreateCityZones_Shallow(t *testing.T) {
	g := NewGenerator(&fixtureResolver{bounds: fresnoBounds()}, arbor.NewLogger())

	cfg := g.CreateCityZones(context.Background(), "Fresno", "CA", "California", "US", false, 50, 2000)
	assert.Nil(t, cfg.Bounds)
	assert.Equal(t, 0, TotalBatches(cfg))

	center := g.CenterZone(cfg)
	assert.Equal(t, models.ZoneCenter, center.Type)
	assert.Nil(t, center.Coords)
	assert.Equal(t, "Fresno", center.CityName)
}

func TestCreateCityZones_GeocodeFailureFallsBackToCenter(t *testing.T) {
	g := NewGenerator(&fixtureResolver{err: errors.New("geocoder down")}, arbor.NewLogger())

	cfg := g.CreateCityZones(context.Background(), "Fresno", "CA", "California", "US", true, 50, 2000)
	assert.Nil(t, cfg.Bounds)
	assert.Nil(t, g.GenerateZoneBatch(cfg, 0))
}

func TestCreateCityZones_GridSpacingFromArea(t *testing.T) {
	cases := []struct {
		name        string
		bounds      *models.Bounds
		wantSpacing float64
	}{
		{
			// ~4x4 km: under 25 km².
			name:        "tiny town",
			bounds:      &models.Bounds{North: 36.718, South: 36.682, East: -119.77, West: -119.815, CenterLat: 36.7, CenterLng: -119.79},
			wantSpacing: 1,
		},
		{
			// Fresno-sized box: over 200 km², under 1000 km².
			name:        "mid city",
			bounds:      fresnoBounds(),
			wantSpacing: 4,
		},
		{
			// ~110x90 km: far over 1000 km².
			name:        "metro sprawl",
			bounds:      &models.Bounds{North: 37.5, South: 36.5, East: -119.0, West: -120.0, CenterLat: 37.0, CenterLng: -119.5},
			wantSpacing: 5,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGenerator(&fixtureResolver{bounds: tc.bounds}, arbor.NewLogger())
			cfg := g.CreateCityZones(context.Background(), "X", "CA", "California", "US", true, 50, 2000)
			require.NotNil(t, cfg.Bounds)
			assert.Equal(t, tc.wantSpacing, cfg.GridSpacingKm)
			assert.Greater(t, cfg.TotalPossibleZones, 0)
		})
	}
}

func TestGenerateZoneBatch_IndicesAndBounds(t *testing.T) {
	g := NewGenerator(&fixtureResolver{bounds: fresnoBounds()}, arbor.NewLogger())
	cfg := g.CreateCityZones(context.Background(), "Fresno", "CA", "California", "US", true, 10, 2000)
	require.NotNil(t, cfg.Bounds)

	total := TotalBatches(cfg)
	require.GreaterOrEqual(t, total, 2)

	seen := map[string]bool{}
	for batch := 0; batch < total; batch++ {
		zones := g.GenerateZoneBatch(cfg, batch)

		primaries := 0
		for _, z := range zones {
			require.NotNil(t, z.Coords, "grid zones carry coordinates")
			assert.GreaterOrEqual(t, z.Coords.Lat, cfg.Bounds.South)
			assert.LessOrEqual(t, z.Coords.Lat, cfg.Bounds.North)
			assert.GreaterOrEqual(t, z.Coords.Lng, cfg.Bounds.West)
			assert.LessOrEqual(t, z.Coords.Lng, cfg.Bounds.East)

			assert.False(t, seen[z.Label], "duplicate zone label %s", z.Label)
			seen[z.Label] = true

			if z.Type == models.ZoneGrid {
				primaries++
			}
		}
		assert.LessOrEqual(t, primaries, cfg.BatchSize)
	}
}

func TestGenerateZoneBatch_OverlapZonesForDenseGrids(t *testing.T) {
	// Small area forces 1 km spacing, which emits overlap zones.
	bounds := &models.Bounds{North: 36.72, South: 36.68, East: -119.76, West: -119.82, CenterLat: 36.7, CenterLng: -119.79}
	g := NewGenerator(&fixtureResolver{bounds: bounds}, arbor.NewLogger())
	cfg := g.CreateCityZones(context.Background(), "X", "CA", "California", "US", true, 5, 2000)
	require.NotNil(t, cfg.Bounds)
	require.LessOrEqual(t, cfg.GridSpacingKm, 3.0)

	zones := g.GenerateZoneBatch(cfg, 0)

	overlaps := 0
	primaries := 0
	for _, z := range zones {
		switch z.Type {
		case models.ZoneGrid:
			primaries++
		case models.ZoneGridOverlap:
			overlaps++
			assert.Contains(t, z.Label, "-overlap-")
		}
	}
	assert.Equal(t, primaries*4, overlaps)
}

func TestGenerateZoneBatch_MaxTotalZonesCap(t *testing.T) {
	g := NewGenerator(&fixtureResolver{bounds: fresnoBounds()}, arbor.NewLogger())
	cfg := g.CreateCityZones(context.Background(), "Fresno", "CA", "California", "US", true, 10, 15)
	require.NotNil(t, cfg.Bounds)

	assert.Equal(t, 2, TotalBatches(cfg))

	batch0 := g.GenerateZoneBatch(cfg, 0)
	batch1 := g.GenerateZoneBatch(cfg, 1)
	batch2 := g.GenerateZoneBatch(cfg, 2)

	count := func(zones []models.Zone) int {
		n := 0
		for _, z := range zones {
			if z.Type == models.ZoneGrid {
				n++
			}
		}
		return n
	}

	assert.Equal(t, 10, count(batch0))
	assert.Equal(t, 5, count(batch1), "second batch is truncated at the zone cap")
	assert.Empty(t, batch2)
}

func TestCreateStateAndCountryZones(t *testing.T) {
	g := NewGenerator(&fixtureResolver{bounds: fresnoBounds()}, arbor.NewLogger())

	stateCfg := g.CreateStateZones(context.Background(), "CA", "California", "US", 50, 2000)
	require.NotNil(t, stateCfg.Bounds)
	assert.Empty(t, stateCfg.CityName)

	countryCfg := g.CreateCountryZones(context.Background(), "US", 50, 2000)
	require.NotNil(t, countryCfg.Bounds)
	assert.Empty(t, countryCfg.StateCode)

	// Shared grid logic: identical bounds produce identical zone counts.
	assert.Equal(t, stateCfg.TotalPossibleZones, countryCfg.TotalPossibleZones)
}
