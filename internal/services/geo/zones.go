// Package geo turns administrative regions into coordinate-indexed
// search zones and orders candidate cities by population.
package geo

import (
	"context"
	"fmt"
	"math"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

const kmPerDegree = 111.0

// Generator builds zone configurations and lazy zone batches.
type Generator struct {
	resolver interfaces.BoundsResolver
	logger   arbor.ILogger
}

// NewGenerator creates a zone generator over a bounds resolver.
func NewGenerator(resolver interfaces.BoundsResolver, logger arbor.ILogger) *Generator {
	return &Generator{resolver: resolver, logger: logger}
}

// CreateCityZones builds the zone configuration for one city. When deep
// is false, or the city cannot be geocoded, the configuration carries no
// bounds and only the center zone is searchable.
func (g *Generator) CreateCityZones(ctx context.Context, city, stateCode, stateName, countryCode string, deep bool, batchSize, maxTotalZones int) *models.ZoneConfig {
	config := &models.ZoneConfig{
		CityName:      city,
		StateCode:     stateCode,
		StateName:     stateName,
		CountryCode:   countryCode,
		BatchSize:     batchSize,
		MaxTotalZones: maxTotalZones,
	}

	if !deep {
		return config
	}

	bounds, err := g.resolver.ResolveBounds(ctx, interfaces.GeoQuery{
		City:        city,
		StateCode:   stateCode,
		CountryCode: countryCode,
	})
	if err != nil || bounds == nil {
		g.logger.Warn().
			Err(err).
			Str("city", city).
			Str("country", countryCode).
			Msg("Geocoding failed, falling back to center-only zone")
		return config
	}

	g.fillGrid(config, bounds)
	return config
}

// CreateStateZones builds the zone configuration for a whole state; used
// when a state has no known cities to bucketize.
func (g *Generator) CreateStateZones(ctx context.Context, stateCode, stateName, countryCode string, batchSize, maxTotalZones int) *models.ZoneConfig {
	config := &models.ZoneConfig{
		StateCode:     stateCode,
		StateName:     stateName,
		CountryCode:   countryCode,
		BatchSize:     batchSize,
		MaxTotalZones: maxTotalZones,
	}

	bounds, err := g.resolver.ResolveBounds(ctx, interfaces.GeoQuery{
		StateCode:   stateCode,
		CountryCode: countryCode,
	})
	if err != nil || bounds == nil {
		g.logger.Warn().Err(err).Str("state", stateCode).Msg("State geocoding failed, falling back to center-only zone")
		return config
	}

	g.fillGrid(config, bounds)
	return config
}

// CreateCountryZones builds the zone configuration for a whole country;
// used when a country has no known cities to bucketize.
func (g *Generator) CreateCountryZones(ctx context.Context, countryCode string, batchSize, maxTotalZones int) *models.ZoneConfig {
	config := &models.ZoneConfig{
		CountryCode:   countryCode,
		BatchSize:     batchSize,
		MaxTotalZones: maxTotalZones,
	}

	bounds, err := g.resolver.ResolveBounds(ctx, interfaces.GeoQuery{CountryCode: countryCode})
	if err != nil || bounds == nil {
		g.logger.Warn().Err(err).Str("country", countryCode).Msg("Country geocoding failed, falling back to center-only zone")
		return config
	}

	g.fillGrid(config, bounds)
	return config
}

// fillGrid derives grid spacing from the bounded area and computes the
// total possible zone count.
func (g *Generator) fillGrid(config *models.ZoneConfig, bounds *models.Bounds) {
	latDelta := bounds.North - bounds.South
	lngDelta := bounds.East - bounds.West
	if latDelta <= 0 || lngDelta <= 0 {
		g.logger.Debug().
			Str("city", config.CityName).
			Msg("Zero-area bounds, keeping center-only configuration")
		return
	}

	avgLat := (bounds.North + bounds.South) / 2
	areaKm2 := latDelta * kmPerDegree * lngDelta * kmPerDegree * math.Cos(avgLat*math.Pi/180)

	var spacing float64
	switch {
	case areaKm2 < 25:
		spacing = 1
	case areaKm2 < 50:
		spacing = 2
	case areaKm2 < 200:
		spacing = 3
	case areaKm2 < 1000:
		spacing = 4
	default:
		spacing = 5
	}

	latSpacing := spacing / kmPerDegree
	lngSpacing := spacing / (kmPerDegree * math.Cos(avgLat*math.Pi/180))

	rows := int(math.Ceil(latDelta / latSpacing))
	cols := int(math.Ceil(lngDelta / lngSpacing))

	config.Bounds = bounds
	config.GridSpacingKm = spacing
	config.TotalPossibleZones = rows * cols
}

// CenterZone returns the always-present name-based zone for a config.
func (g *Generator) CenterZone(config *models.ZoneConfig) models.Zone {
	label := config.CityName
	if label == "" {
		label = config.StateName
	}
	if label == "" {
		label = config.CountryCode
	}
	return models.Zone{
		Type:      models.ZoneCenter,
		CityName:  config.CityName,
		StateCode: config.StateCode,
		StateName: config.StateName,
		Label:     fmt.Sprintf("%s-center", label),
	}
}

// TotalBatches returns how many batches the config yields given its caps.
func TotalBatches(config *models.ZoneConfig) int {
	if config.Bounds == nil || config.TotalPossibleZones == 0 || config.BatchSize <= 0 {
		return 0
	}
	total := config.TotalPossibleZones
	if config.MaxTotalZones > 0 && total > config.MaxTotalZones {
		total = config.MaxTotalZones
	}
	return int(math.Ceil(float64(total) / float64(config.BatchSize)))
}

// GenerateZoneBatch produces the grid zones with indices
// [batchNumber*batchSize, min((batchNumber+1)*batchSize, maxTotalZones))
// by row-major traversal of the bounding box. Spacing of 3 km or less
// additionally emits four overlap zones per primary point, offset by 30%
// of the spacing on each axis and clipped to bounds.
func (g *Generator) GenerateZoneBatch(config *models.ZoneConfig, batchNumber int) []models.Zone {
	if config.Bounds == nil || config.TotalPossibleZones == 0 {
		return nil
	}

	bounds := config.Bounds
	lngDelta := bounds.East - bounds.West
	avgLat := (bounds.North + bounds.South) / 2

	latSpacing := config.GridSpacingKm / kmPerDegree
	lngSpacing := config.GridSpacingKm / (kmPerDegree * math.Cos(avgLat*math.Pi/180))

	cols := int(math.Ceil(lngDelta / lngSpacing))
	if cols < 1 {
		cols = 1
	}

	limit := config.TotalPossibleZones
	if config.MaxTotalZones > 0 && limit > config.MaxTotalZones {
		limit = config.MaxTotalZones
	}

	start := batchNumber * config.BatchSize
	end := start + config.BatchSize
	if end > limit {
		end = limit
	}
	if start >= end {
		return nil
	}

	clip := func(lat, lng float64) models.Coords {
		return models.Coords{
			Lat: math.Min(bounds.North, math.Max(bounds.South, lat)),
			Lng: math.Min(bounds.East, math.Max(bounds.West, lng)),
		}
	}

	zones := make([]models.Zone, 0, end-start)
	for i := start; i < end; i++ {
		row := i / cols
		col := i % cols

		lat := bounds.South + (float64(row)+0.5)*latSpacing
		lng := bounds.West + (float64(col)+0.5)*lngSpacing
		coords := clip(lat, lng)

		zones = append(zones, models.Zone{
			Type:      models.ZoneGrid,
			CityName:  config.CityName,
			StateCode: config.StateCode,
			StateName: config.StateName,
			Label:     fmt.Sprintf("zone-%d", i),
			Coords:    &coords,
		})

		if config.GridSpacingKm <= 3 {
			offsets := []models.Coords{
				{Lat: latSpacing * 0.3, Lng: 0},
				{Lat: -latSpacing * 0.3, Lng: 0},
				{Lat: 0, Lng: lngSpacing * 0.3},
				{Lat: 0, Lng: -lngSpacing * 0.3},
			}
			for j, off := range offsets {
				overlap := clip(lat+off.Lat, lng+off.Lng)
				zones = append(zones, models.Zone{
					Type:      models.ZoneGridOverlap,
					CityName:  config.CityName,
					StateCode: config.StateCode,
					StateName: config.StateName,
					Label:     fmt.Sprintf("zone-%d-overlap-%d", i, j+1),
					Coords:    &overlap,
				})
			}
		}
	}

	return zones
}
