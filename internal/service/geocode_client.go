package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Geocoder resolves a shipping address to coordinates
type Geocoder interface {
	Geocode(ctx context.Context, address string) (lat, lng float64, err error)
}

// HTTPGeocoder talks to the mapping service
type HTTPGeocoder struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewHTTPGeocoder creates a geocoder client
func NewHTTPGeocoder(baseURL, apiKey string) *HTTPGeocoder {
	return &HTTPGeocoder{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

// Geocode resolves an address string to {lat,lng}
func (g *HTTPGeocoder) Geocode(ctx context.Context, address string) (float64, float64, error) {
	q := url.Values{}
	q.Set("q", address)
	q.Set("key", g.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		g.BaseURL+"/v1/geocode?"+q.Encode(), nil)
	if err != nil {
		return 0, 0, err
	}

	resp, err := g.HTTP.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("geocoder request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("geocoder returned %d", resp.StatusCode)
	}

	var out struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, 0, fmt.Errorf("failed to decode geocoder response: %w", err)
	}
	return out.Lat, out.Lng, nil
}
