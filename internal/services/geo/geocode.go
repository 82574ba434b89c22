package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/httpclient"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
)

// NominatimResolver resolves region bounds through a Nominatim-style
// geocoding endpoint. Requests are rate limited to stay inside the
// public endpoint's usage policy.
type NominatimResolver struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

// NewNominatimResolver creates the production bounds resolver.
func NewNominatimResolver(config *common.GeocoderConfig, logger arbor.ILogger) *NominatimResolver {
	rps := config.RatePerSecond
	if rps <= 0 {
		rps = 1
	}
	return &NominatimResolver{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpclient.NewDefaultHTTPClient(config.RequestTimeout),
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger,
	}
}

type nominatimResult struct {
	Lat         string   `json:"lat"`
	Lon         string   `json:"lon"`
	BoundingBox []string `json:"boundingbox"` // [south, north, west, east]
	Importance  float64  `json:"importance"`
}

// ResolveBounds geocodes the query and returns its bounding box with
// center. The first (highest-importance) match wins.
func (r *NominatimResolver) ResolveBounds(ctx context.Context, query interfaces.GeoQuery) (*models.Bounds, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("format", "json")
	params.Set("limit", "1")
	if query.City != "" {
		params.Set("city", query.City)
	}
	if query.StateCode != "" {
		params.Set("state", query.StateCode)
	}
	params.Set("country", query.CountryCode)

	reqURL := fmt.Sprintf("%s/search?%s", r.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build geocode request: %w", err)
	}
	req.Header.Set("User-Agent", "prospector/"+common.Version)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to decode geocode response: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no geocode match for %q %q %q", query.City, query.StateCode, query.CountryCode)
	}

	best := results[0]
	if len(best.BoundingBox) != 4 {
		return nil, fmt.Errorf("geocode match missing bounding box")
	}

	south, err1 := strconv.ParseFloat(best.BoundingBox[0], 64)
	north, err2 := strconv.ParseFloat(best.BoundingBox[1], 64)
	west, err3 := strconv.ParseFloat(best.BoundingBox[2], 64)
	east, err4 := strconv.ParseFloat(best.BoundingBox[3], 64)
	lat, err5 := strconv.ParseFloat(best.Lat, 64)
	lng, err6 := strconv.ParseFloat(best.Lon, 64)
	for _, err := range []error{err1, err2, err3, err4, err5, err6} {
		if err != nil {
			return nil, fmt.Errorf("failed to parse geocode coordinates: %w", err)
		}
	}

	r.logger.Debug().
		Str("city", query.City).
		Str("country", query.CountryCode).
		Float64("lat", lat).
		Float64("lng", lng).
		Msg("Geocoded region bounds")

	return &models.Bounds{
		North:     north,
		South:     south,
		East:      east,
		West:      west,
		CenterLat: lat,
		CenterLng: lng,
	}, nil
}
