package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"time"
)

// WeatherTool looks up current conditions on OpenWeatherMap. Every failure
// is reported to the model as a placeholder sentence rather than an error.
type WeatherTool struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
	Logger  *slog.Logger
}

func NewWeatherTool(apiKey, baseURL string, timeout time.Duration, logger *slog.Logger) *WeatherTool {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &WeatherTool{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
		Logger:  logger,
	}
}

func (w *WeatherTool) Name() string {
	return string(Weather)
}

func (w *WeatherTool) Description() string {
	return "Get current weather information"
}

func (w *WeatherTool) Parameters() map[string]any {
	return objectSchema("location", map[string]any{
		"location": stringParam("The city to get weather for"),
	})
}

type weatherResponse struct {
	Main *struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
}

func unavailable(location string) string {
	return fmt.Sprintf("Weather in %s is not available", location)
}

func (w *WeatherTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Location any `json:"location"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		w.Logger.Warn("weather arguments rejected", slog.Any("err", err))
		return unavailable(""), nil
	}

	var location string
	switch v := args.Location.(type) {
	case string:
		location = v
	case nil:
	default:
		location = fmt.Sprint(v)
		w.Logger.Warn("weather location is not a string", slog.String("location", location))
		return unavailable(location), nil
	}

	report, err := w.lookup(ctx, location)
	if err != nil {
		w.Logger.Warn("weather lookup failed", slog.String("location", location), slog.Any("err", err))
		return unavailable(location), nil
	}
	return report, nil
}

func (w *WeatherTool) lookup(ctx context.Context, location string) (string, error) {
	if location == "" {
		return "", fmt.Errorf("location is empty")
	}
	if w.APIKey == "" {
		return "", fmt.Errorf("weather api key is not configured")
	}

	q := url.Values{}
	q.Set("q", location)
	q.Set("units", "metric")
	q.Set("appid", w.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := w.Client.Do(req)
	if err != nil {
		// The request URL carries the API key.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = redactQuery(urlErr.URL)
		}
		return "", fmt.Errorf("failed to fetch weather: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read weather response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("weather api status %d: %s", resp.StatusCode, body)
	}

	var data weatherResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return "", fmt.Errorf("failed to decode weather response: %w", err)
	}
	if data.Main == nil || len(data.Weather) == 0 {
		return "", fmt.Errorf("weather response is missing fields")
	}

	return fmt.Sprintf("Weather in %s: %d°C, %s", location, int(math.Floor(data.Main.Temp+0.5)), data.Weather[0].Description), nil
}

func redactQuery(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<redacted>"
	}
	u.RawQuery = ""
	return u.String()
}
