package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL   = "https://nominatim.openstreetmap.org"
	defaultUserAgent = "openvolunteer/volmatch (ops@openvolunteer.org)"

	httpTimeout = 10 * time.Second
)

// ErrResolutionFailed is returned when the geocoding provider is
// unreachable or cannot resolve the given place. Callers treat it as "no
// location" and fall back to the statewide policy, never as a fatal error.
var ErrResolutionFailed = errors.New("geo resolution failed")

// Location is a resolved, already coarsened coordinate pair.
type Location struct {
	Lat         float64
	Lng         float64
	DisplayName string
}

// Resolver resolves free-text city/region input against a Nominatim-style
// search endpoint. Coordinates are coarsened before they leave this type.
type Resolver struct {
	logger     *zap.Logger
	HTTPClient *http.Client
	BaseURL    string
	UserAgent  string
}

// NewResolver returns a Resolver pointed at the public Nominatim endpoint.
func NewResolver(logger *zap.Logger) *Resolver {
	return &Resolver{
		logger:     logger,
		BaseURL:    defaultBaseURL,
		UserAgent:  defaultUserAgent,
		HTTPClient: &http.Client{Timeout: httpTimeout},
	}
}

// nominatimResult mirrors a single entry of the provider's JSON response.
// Nominatim returns coordinates as strings.
type nominatimResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Resolve geocodes "city, region" and returns the coarsened coordinates.
func (r *Resolver) Resolve(ctx context.Context, city, region string) (*Location, error) {
	query := city
	if region != "" {
		query = fmt.Sprintf("%s, %s", city, region)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+"/search", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResolutionFailed, err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", r.UserAgent)
	req.URL.RawQuery = params.Encode()

	r.logger.Debug("geocoding request", zap.String("query", query))

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResolutionFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrResolutionFailed, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: provider returned %s", ErrResolutionFailed, resp.Status)
	}

	var results []nominatimResult
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("%w: parse response: %w", ErrResolutionFailed, err)
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("%w: no result for %q", ErrResolutionFailed, query)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: parse lat %q: %w", ErrResolutionFailed, results[0].Lat, err)
	}

	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: parse lon %q: %w", ErrResolutionFailed, results[0].Lon, err)
	}

	loc := &Location{
		Lat:         Coarsen(lat),
		Lng:         Coarsen(lng),
		DisplayName: results[0].DisplayName,
	}

	r.logger.Debug("geocoding resolved",
		zap.String("query", query),
		zap.Float64("lat", loc.Lat),
		zap.Float64("lng", loc.Lng),
	)

	return loc, nil
}
