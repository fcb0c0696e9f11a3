package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results []googleResult `json:"results"`
	Status  string         `json:"status"`
}

type googleResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
	FormattedAddress string `json:"formatted_address"`
}

// searchGoogle geocodes a free-text address using the Google Geocoding API.
func (g *geocoder) searchGoogle(ctx context.Context, query string) ([]Feature, error) {
	params := url.Values{
		"address": {query},
	}
	results, err := g.queryGoogle(ctx, params)
	if err != nil {
		return nil, err
	}

	features := make([]Feature, 0, len(results))
	for _, r := range results {
		features = append(features, googleFeature(r))
	}
	return features, nil
}

// reverseGoogle converts lng/lat to a display address via Google reverse geocoding.
func (g *geocoder) reverseGoogle(ctx context.Context, lng, lat float64) (*Feature, error) {
	params := url.Values{
		"latlng": {fmt.Sprintf("%f,%f", lat, lng)},
	}
	results, err := g.queryGoogle(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	f := googleFeature(results[0])
	return &f, nil
}

func (g *geocoder) queryGoogle(ctx context.Context, params url.Values) ([]googleResult, error) {
	if g.googleKey == "" {
		return nil, eris.New("geocode: google api key not configured")
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: google rate limit")
	}

	params.Set("key", g.googleKey)
	reqURL := googleGeocodeURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google build request")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("geocode: google returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: google read body")
	}

	var googleResp googleGeocodeResponse
	if err := json.Unmarshal(body, &googleResp); err != nil {
		return nil, eris.Wrap(err, "geocode: google parse response")
	}

	if googleResp.Status == "ZERO_RESULTS" {
		return nil, nil
	}
	if googleResp.Status != "OK" {
		return nil, eris.Errorf("geocode: google status %s", googleResp.Status)
	}
	return googleResp.Results, nil
}

func googleFeature(r googleResult) Feature {
	return Feature{
		DisplayName: r.FormattedAddress,
		Longitude:   r.Geometry.Location.Lng,
		Latitude:    r.Geometry.Location.Lat,
		Source:      "google",
		Quality:     googleLocationTypeToQuality(r.Geometry.LocationType),
	}
}

// googleLocationTypeToQuality maps Google's location_type to our quality taxonomy.
func googleLocationTypeToQuality(locType string) string {
	switch strings.ToUpper(locType) {
	case "ROOFTOP":
		return "rooftop"
	case "RANGE_INTERPOLATED":
		return "range"
	case "GEOMETRIC_CENTER":
		return "centroid"
	case "APPROXIMATE":
		return "approximate"
	default:
		return "approximate"
	}
}
