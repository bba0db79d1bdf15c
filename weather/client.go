package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
)

const currentWeatherEndpoint = "https://api.openweathermap.org/data/2.5/weather"

// Report is the normalized weather bundle the digest email is rendered from.
// Numeric values are pre-rounded to whole units for display.
type Report struct {
	City        string
	Date        string
	Temp        int
	Description string
	TempMin     int
	TempMax     int
	Humidity    int
	WindSpeed   int // km/h
	RainChance  int // percent
	IconURL     string
}

// Client fetches current weather from OpenWeatherMap. Upstream failures never
// propagate to callers: a synthetic sample report is substituted instead, so
// the digest pipeline cannot block on this dependency.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	circuit    *gobreaker.CircuitBreaker
}

func NewClient(httpClient *http.Client, apiKey string) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweather",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		apiKey:     apiKey,
		baseURL:    currentWeatherEndpoint,
		httpClient: httpClient,
		circuit:    cb,
	}
}

// FetchForCity returns the weather report for a city, falling back to sample
// data when the API key is missing or the upstream call fails.
func (c *Client) FetchForCity(ctx context.Context, city string) Report {
	if c.apiKey == "" {
		return FallbackReport(city)
	}

	report, err := c.fetchCurrent(ctx, city)
	if err != nil {
		log.Printf("WARN (Weather): Falling back to sample weather for %s: %v", city, err)
		return FallbackReport(city)
	}
	return report
}

func (c *Client) fetchCurrent(ctx context.Context, city string) (Report, error) {
	values := url.Values{}
	values.Set("q", city)
	values.Set("units", "metric")
	values.Set("appid", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+values.Encode(), nil)
	if err != nil {
		return Report{}, fmt.Errorf("failed to build weather request: %w", err)
	}

	result, err := c.circuit.Execute(func() (interface{}, error) {
		resp, execErr := c.httpClient.Do(req)
		if execErr != nil {
			return nil, execErr
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("weather API returned status %d", resp.StatusCode)
		}

		var payload currentWeatherPayload
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("failed to decode weather payload: %w", err)
		}
		return payload, nil
	})
	if err != nil {
		return Report{}, err
	}

	payload, ok := result.(currentWeatherPayload)
	if !ok || len(payload.Weather) == 0 {
		return Report{}, fmt.Errorf("weather payload missing conditions for %q", city)
	}

	return buildReport(city, payload), nil
}

type currentWeatherPayload struct {
	Main struct {
		Temp     float64 `json:"temp"`
		TempMin  float64 `json:"temp_min"`
		TempMax  float64 `json:"temp_max"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"` // m/s
	} `json:"wind"`
	Clouds struct {
		All float64 `json:"all"`
	} `json:"clouds"`
	Pop *float64 `json:"pop"` // probability of precipitation, 0..1
}

func buildReport(city string, payload currentWeatherPayload) Report {
	primary := payload.Weather[0]

	description := primary.Description
	if description == "" {
		description = "Weather update"
	}

	icon := primary.Icon
	if icon == "" {
		icon = "01d"
	}

	// The current-weather endpoint rarely carries `pop`; cloud cover is the
	// stand-in the original service shipped with.
	rainChance := int(math.Min(100, math.Round(payload.Clouds.All)))
	if payload.Pop != nil {
		rainChance = int(math.Round(*payload.Pop * 100))
	}

	tempMin := payload.Main.TempMin
	if tempMin == 0 {
		tempMin = payload.Main.Temp
	}
	tempMax := payload.Main.TempMax
	if tempMax == 0 {
		tempMax = payload.Main.Temp
	}

	return Report{
		City:        city,
		Date:        FormatDate(time.Now()),
		Temp:        int(math.Round(payload.Main.Temp)),
		Description: description,
		TempMin:     int(math.Round(tempMin)),
		TempMax:     int(math.Round(tempMax)),
		Humidity:    int(math.Round(payload.Main.Humidity)),
		WindSpeed:   int(math.Round(payload.Wind.Speed * 3.6)),
		RainChance:  rainChance,
		IconURL:     fmt.Sprintf("https://openweathermap.org/img/wn/%s@2x.png", icon),
	}
}

// FallbackReport returns the fixed synthetic bundle substituted when live
// data is unavailable.
func FallbackReport(city string) Report {
	return Report{
		City:        city,
		Date:        FormatDate(time.Now()),
		Temp:        27,
		Description: "Partly cloudy with a light breeze",
		TempMin:     24,
		TempMax:     30,
		Humidity:    68,
		WindSpeed:   9,
		RainChance:  15,
		IconURL:     "https://openweathermap.org/img/wn/03d@2x.png",
	}
}

// FormatDate renders a timestamp the way digest emails display it.
func FormatDate(t time.Time) string {
	return t.Format("Monday, January 2, 2006")
}
