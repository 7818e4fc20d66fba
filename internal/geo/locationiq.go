// Package geo resolves customer addresses to coordinates.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dvloznov/customer-insights/internal/domain"
)

// DefaultBaseURL is the LocationIQ forward-geocoding endpoint.
const DefaultBaseURL = "https://us1.locationiq.com/v1/search"

const userAgent = "address/1.0"

// Geocoder looks up a single address. A nil result with a nil error means
// the service had no match.
type Geocoder interface {
	Lookup(ctx context.Context, address string) (*domain.Coordinates, error)
}

// LocationIQ is a Geocoder backed by the LocationIQ search API.
type LocationIQ struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewLocationIQ creates a client with the given key and request timeout.
func NewLocationIQ(baseURL, apiKey string, timeout time.Duration) *LocationIQ {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &LocationIQ{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// lat/lon arrive as JSON strings.
type searchResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Lookup returns the top match for address.
func (c *LocationIQ) Lookup(ctx context.Context, address string) (*domain.Coordinates, error) {
	params := url.Values{}
	params.Set("key", c.APIKey)
	params.Set("q", address)
	params.Set("format", "json")
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("LocationIQ.Lookup: building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("LocationIQ.Lookup: %w", err)
	}
	defer resp.Body.Close()

	// LocationIQ answers 404 with {"error":"Unable to geocode"} for no match.
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("LocationIQ.Lookup: unexpected status %d: %s", resp.StatusCode, body)
	}

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("LocationIQ.Lookup: decoding response: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("LocationIQ.Lookup: parsing lat %q: %w", results[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("LocationIQ.Lookup: parsing lon %q: %w", results[0].Lon, err)
	}

	return &domain.Coordinates{Latitude: lat, Longitude: lon}, nil
}
