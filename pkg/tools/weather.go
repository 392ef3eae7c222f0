package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/knosphere/backend/pkg/ai"
)

const (
	geocodingURL = "https://geocoding-api.open-meteo.com/v1/search"
	forecastURL  = "https://api.open-meteo.com/v1/forecast"
)

type weatherArgs struct {
	Location string `json:"location" jsonschema_description:"City or place name to get the current weather for"`
}

// weatherCode maps the WMO weather interpretation codes Open-Meteo returns
// to short descriptions.
var weatherCode = map[int]string{
	0: "clear sky", 1: "mainly clear", 2: "partly cloudy", 3: "overcast",
	45: "fog", 48: "depositing rime fog",
	51: "light drizzle", 53: "moderate drizzle", 55: "dense drizzle",
	61: "slight rain", 63: "moderate rain", 65: "heavy rain",
	71: "slight snowfall", 73: "moderate snowfall", 75: "heavy snowfall",
	80: "slight rain showers", 81: "moderate rain showers", 82: "violent rain showers",
	95: "thunderstorm", 96: "thunderstorm with slight hail", 99: "thunderstorm with heavy hail",
}

// NewWeatherTool reports current weather via the Open-Meteo public API,
// which needs no credentials.
func NewWeatherTool() ai.Tool {
	return ai.Tool{
		Name:        "weather",
		Description: "Get the current weather for a city or place.",
		Parameters:  mustSchema(weatherArgs{}),
		Handler: func(ctx context.Context, arguments string) (string, error) {
			var args weatherArgs
			if err := decodeArgs(arguments, &args); err != nil {
				return "", err
			}
			if args.Location == "" {
				return "", fmt.Errorf("location is required")
			}
			return currentWeather(ctx, args.Location)
		},
	}
}

type geocodingResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Country   string  `json:"country"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

type forecastResponse struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		WindSpeed   float64 `json:"wind_speed_10m"`
		WeatherCode int     `json:"weather_code"`
	} `json:"current"`
}

func currentWeather(ctx context.Context, location string) (string, error) {
	query := url.Values{"name": {location}, "count": {"1"}}
	var geo geocodingResponse
	if err := getJSON(ctx, geocodingURL+"?"+query.Encode(), &geo); err != nil {
		return "", fmt.Errorf("geocoding failed: %w", err)
	}
	if len(geo.Results) == 0 {
		return "", fmt.Errorf("no location found for %q", location)
	}
	place := geo.Results[0]

	query = url.Values{
		"latitude":  {fmt.Sprintf("%.4f", place.Latitude)},
		"longitude": {fmt.Sprintf("%.4f", place.Longitude)},
		"current":   {"temperature_2m,weather_code,wind_speed_10m"},
	}
	var forecast forecastResponse
	if err := getJSON(ctx, forecastURL+"?"+query.Encode(), &forecast); err != nil {
		return "", fmt.Errorf("forecast failed: %w", err)
	}

	description, ok := weatherCode[forecast.Current.WeatherCode]
	if !ok {
		description = fmt.Sprintf("weather code %d", forecast.Current.WeatherCode)
	}
	return fmt.Sprintf("%s, %s: %s, %.1f°C, wind %.1f km/h",
		place.Name, place.Country, description,
		forecast.Current.Temperature, forecast.Current.WindSpeed), nil
}

func getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	return json.Unmarshal(body, out)
}
