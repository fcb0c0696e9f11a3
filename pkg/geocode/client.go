// Package geocode provides address lookup via Census Geocoder (primary) and Google (fallback).
package geocode

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Client resolves free-text addresses to coordinates and back.
type Client interface {
	// Search geocodes a free-text address query, returning candidate matches.
	Search(ctx context.Context, query string) ([]Feature, error)

	// Reverse converts a lng/lat pair to a display address.
	Reverse(ctx context.Context, lng, lat float64) (*Feature, error)
}

// Feature is a single geocoding match.
type Feature struct {
	DisplayName string  `json:"display_name"`
	Longitude   float64 `json:"lng"`
	Latitude    float64 `json:"lat"`
	Source      string  `json:"source"`  // "census" or "google"
	Quality     string  `json:"quality"` // "rooftop", "range", "centroid", "approximate"
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithGoogleAPIKey enables Google Geocoding API as a fallback and for reverse lookups.
func WithGoogleAPIKey(key string) Option {
	return func(g *geocoder) {
		g.googleKey = key
	}
}

// WithHTTPClient sets a custom HTTP client for both Census and Google requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second rate limit for upstream calls.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

type geocoder struct {
	httpClient *http.Client
	googleKey  string
	limiter    *rate.Limiter
}

// NewClient creates a new geocoding Client with the given options.
func NewClient(opts ...Option) Client {
	g := &geocoder{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(50, 50), // Census default: 50 req/s
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Search geocodes a free-text address, trying Census first, then Google if configured.
func (g *geocoder) Search(ctx context.Context, query string) ([]Feature, error) {
	features, censusErr := g.searchCensus(ctx, query)
	if censusErr == nil && len(features) > 0 {
		return features, nil
	}

	if g.googleKey != "" {
		googleFeatures, googleErr := g.searchGoogle(ctx, query)
		if googleErr == nil && len(googleFeatures) > 0 {
			return googleFeatures, nil
		}
	}

	if censusErr != nil {
		return nil, censusErr
	}

	// No match from any provider is not an error, just an empty result.
	return nil, nil
}

// Reverse converts coordinates to a display address using Google, which is the
// only configured provider with a reverse endpoint.
func (g *geocoder) Reverse(ctx context.Context, lng, lat float64) (*Feature, error) {
	return g.reverseGoogle(ctx, lng, lat)
}
