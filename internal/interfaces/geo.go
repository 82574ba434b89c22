package interfaces

import (
	"context"

	"github.com/ternarybob/prospector/internal/models"
)

// GeoQuery names an administrative region to resolve.
type GeoQuery struct {
	City        string
	StateCode   string
	CountryCode string
}

// BoundsResolver resolves a region to its bounding box and center.
// Implementations are external geocoding services; a nil result with an
// error degrades the caller to center-only zones.
type BoundsResolver interface {
	ResolveBounds(ctx context.Context, query GeoQuery) (*models.Bounds, error)
}

// PopulationResolver maps (iso2, adminCode?, cityName) to a population.
// Pure lookup against a preloaded index; no I/O at call time.
type PopulationResolver interface {
	Population(iso2, adminCode, cityName string) *int
}

// RegionIndex enumerates the administrative children of a country.
type RegionIndex interface {
	PopulationResolver
	// CountryName returns the display name for an ISO-3166 alpha-2 code.
	CountryName(iso2 string) (string, bool)
	// StateName returns the display name for a state/admin code.
	StateName(iso2, stateCode string) (string, bool)
	// CitiesOfState lists candidate cities of one state.
	CitiesOfState(iso2, stateCode string) []models.Candidate
	// CitiesOfCountry lists candidate (state, city) pairs of a country.
	CitiesOfCountry(iso2 string) []models.Candidate
}
