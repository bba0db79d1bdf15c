package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
)

const geocodingEndpoint = "https://api.openweathermap.org/geo/1.0/direct"

const maxSuggestions = 5

// fallbackCities backs the autocomplete when the geocoding API is
// unavailable or returns nothing useful.
var fallbackCities = []string{
	"Bhubaneswar",
	"Mumbai",
	"Delhi",
	"Bengaluru",
	"Kolkata",
	"Chennai",
	"Hyderabad",
	"Pune",
	"Ahmedabad",
	"Jaipur",
	"London",
	"New York",
	"San Francisco",
	"Tokyo",
	"Sydney",
}

// Geocoder resolves free-text queries to city name suggestions via the
// OpenWeatherMap geocoding API, sharing the weather API key.
type Geocoder struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewGeocoder(httpClient *http.Client, apiKey string) *Geocoder {
	return &Geocoder{
		apiKey:     apiKey,
		baseURL:    geocodingEndpoint,
		httpClient: httpClient,
	}
}

// SearchCities returns up to five deduped suggestions for a query. A blank
// query yields an empty slice; upstream failures degrade to the static list.
func (g *Geocoder) SearchCities(ctx context.Context, query string) []string {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return []string{}
	}

	if g.apiKey == "" {
		return filterFallback(trimmed)
	}

	suggestions, err := g.lookup(ctx, trimmed)
	if err != nil {
		log.Printf("WARN (Geocoder): City lookup failed, falling back to static list: %v", err)
		return filterFallback(trimmed)
	}
	if len(suggestions) == 0 {
		return filterFallback(trimmed)
	}
	return dedupe(suggestions)
}

func (g *Geocoder) lookup(ctx context.Context, query string) ([]string, error) {
	values := url.Values{}
	values.Set("q", query)
	values.Set("limit", fmt.Sprint(maxSuggestions))
	values.Set("appid", g.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+values.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build geocoding request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoding API returned status %d", resp.StatusCode)
	}

	var payload []struct {
		Name    string `json:"name"`
		State   string `json:"state"`
		Country string `json:"country"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode geocoding payload: %w", err)
	}

	var suggestions []string
	for _, item := range payload {
		if item.Name == "" {
			continue
		}
		parts := []string{item.Name}
		if item.State != "" {
			parts = append(parts, item.State)
		}
		if item.Country != "" {
			parts = append(parts, item.Country)
		}
		suggestions = append(suggestions, strings.Join(parts, ", "))
	}
	return suggestions, nil
}

func filterFallback(query string) []string {
	needle := strings.ToLower(query)
	matches := []string{}
	for _, city := range fallbackCities {
		if strings.Contains(strings.ToLower(city), needle) {
			matches = append(matches, city)
			if len(matches) == maxSuggestions {
				break
			}
		}
	}
	return matches
}

func dedupe(suggestions []string) []string {
	seen := make(map[string]struct{}, len(suggestions))
	deduped := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, s)
		if len(deduped) == maxSuggestions {
			break
		}
	}
	return deduped
}
