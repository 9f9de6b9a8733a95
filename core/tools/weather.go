package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bytedance/sonic/decoder"
)

const (
	geocodingEndpoint = "https://geocoding-api.open-meteo.com/v1/search"
	forecastEndpoint  = "https://api.open-meteo.com/v1/forecast"
)

// WeatherReport is the current weather for a resolved location.
type WeatherReport struct {
	Location    string
	Temperature float64
	Condition   string
	Humidity    float64
	WindSpeed   float64
}

// weatherClient reads current conditions from the open-meteo public API.
type weatherClient struct {
	client *http.Client
}

// Current geocodes city and fetches its weather. A nil report with nil error
// means the location could not be resolved.
func (w *weatherClient) Current(ctx context.Context, city string) (*WeatherReport, error) {
	geoURL := geocodingEndpoint + "?name=" + url.QueryEscape(city) + "&count=1&language=en&format=json"
	var geo struct {
		Results []struct {
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
			Name      string  `json:"name"`
		} `json:"results"`
	}
	if err := w.getJSON(ctx, geoURL, &geo); err != nil {
		return nil, fmt.Errorf("failed to geocode location: %w", err)
	}
	if len(geo.Results) == 0 {
		return nil, nil
	}
	place := geo.Results[0]

	forecastURL := fmt.Sprintf(
		"%s?latitude=%f&longitude=%f&current=temperature_2m,relative_humidity_2m,weather_code,wind_speed_10m",
		forecastEndpoint, place.Latitude, place.Longitude)
	var forecast struct {
		Current struct {
			Temperature float64 `json:"temperature_2m"`
			Humidity    float64 `json:"relative_humidity_2m"`
			WeatherCode int     `json:"weather_code"`
			WindSpeed   float64 `json:"wind_speed_10m"`
		} `json:"current"`
	}
	if err := w.getJSON(ctx, forecastURL, &forecast); err != nil {
		return nil, fmt.Errorf("failed to fetch weather: %w", err)
	}

	return &WeatherReport{
		Location:    place.Name,
		Temperature: forecast.Current.Temperature,
		Condition:   conditionFromWMOCode(forecast.Current.WeatherCode),
		Humidity:    forecast.Current.Humidity,
		WindSpeed:   forecast.Current.WindSpeed,
	}, nil
}

func (w *weatherClient) getJSON(ctx context.Context, requestURL string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return err
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	return decoder.NewStreamDecoder(resp.Body).Decode(target)
}

// conditionFromWMOCode collapses WMO weather codes into a handful of
// speakable conditions.
func conditionFromWMOCode(code int) string {
	switch {
	case code >= 95:
		return "Thunderstorm"
	case code >= 71 && code <= 77:
		return "Snowy"
	case code >= 51 && code <= 67:
		return "Rainy"
	case code >= 45 && code <= 48:
		return "Foggy"
	case code > 0 && code <= 3:
		return "Partly Cloudy"
	default:
		return "Clear"
	}
}
