package models

// ZoneType discriminates how a zone anchors its search.
type ZoneType string

const (
	// ZoneCenter is a name-based query with no coordinates.
	ZoneCenter ZoneType = "center"
	// ZoneGrid is a coordinate-anchored query on the primary grid.
	ZoneGrid ZoneType = "grid"
	// ZoneGridOverlap is a coordinate-anchored query offset from a primary
	// grid point to catch listings straddling cell boundaries.
	ZoneGridOverlap ZoneType = "grid-overlap"
)

// Coords is a geographic point.
type Coords struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Zone is one unit of tier-A search.
type Zone struct {
	Type      ZoneType `json:"type"`
	CityName  string   `json:"city_name,omitempty"`
	StateCode string   `json:"state_code,omitempty"`
	StateName string   `json:"state_name,omitempty"`
	Label     string   `json:"label"`
	Coords    *Coords  `json:"coords"` // nil for center zones
}

// Bounds is a geographic bounding box with its center point.
type Bounds struct {
	North     float64 `json:"north"`
	South     float64 `json:"south"`
	East      float64 `json:"east"`
	West      float64 `json:"west"`
	CenterLat float64 `json:"center_lat"`
	CenterLng float64 `json:"center_lng"`
}

// ZoneConfig is the per-run grid configuration for one geographic scope.
type ZoneConfig struct {
	CityName           string  `json:"city_name,omitempty"`
	StateCode          string  `json:"state_code,omitempty"`
	StateName          string  `json:"state_name,omitempty"`
	CountryCode        string  `json:"country_code"`
	Bounds             *Bounds `json:"bounds"` // nil when the scope was not geocoded
	GridSpacingKm      float64 `json:"grid_spacing_km"`
	TotalPossibleZones int     `json:"total_possible_zones"`
	BatchSize          int     `json:"batch_size"`
	MaxTotalZones      int     `json:"max_total_zones"`
}

// Candidate is a city considered for tier-A scheduling under state or
// country scope.
type Candidate struct {
	CityName   string `json:"city_name"`
	StateCode  string `json:"state_code,omitempty"`
	StateName  string `json:"state_name,omitempty"`
	Population *int   `json:"population,omitempty"`
}
