// Package weather provides current weather conditions via the
// weatherstack API.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/nugget/scout/internal/httpkit"
	"github.com/nugget/scout/internal/tools"
)

const weatherstackEndpoint = "https://api.weatherstack.com/current"

// Client fetches weather data from weatherstack.
type Client struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a weatherstack client.
func NewClient(apiKey string, logger *slog.Logger) *Client {
	return &Client{
		apiKey:   apiKey,
		endpoint: weatherstackEndpoint,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(15 * time.Second),
		),
		logger: logger,
	}
}

// Current fetches current conditions for a location. The raw provider
// JSON is returned unmodified for the model to read directly.
//
// weatherstack reports failures as 200 responses with a success:false
// body, so the error envelope is detected explicitly.
func (c *Client) Current(ctx context.Context, location string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("weatherstack: API key not configured")
	}

	params := url.Values{
		"access_key": {c.apiKey},
		"query":      {location},
	}
	reqURL := fmt.Sprintf("%s?%s", c.endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("weatherstack: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("weatherstack: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return "", fmt.Errorf("weatherstack: HTTP %d: %s", resp.StatusCode, body)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("weatherstack: read response: %w", err)
	}

	var envelope struct {
		Success *bool `json:"success"`
		Error   struct {
			Code int    `json:"code"`
			Type string `json:"type"`
			Info string `json:"info"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("weatherstack: non-JSON response")
	}
	if envelope.Success != nil && !*envelope.Success {
		return "", fmt.Errorf("weatherstack: %s (code %d)", envelope.Error.Info, envelope.Error.Code)
	}

	c.logger.Debug("weather fetched", "location", location, "bytes", len(body))
	return string(body), nil
}

// Tool builds the weather_current tool backed by this client.
func (c *Client) Tool() *tools.Tool {
	return &tools.Tool{
		Name: "weather_current",
		Description: "Get current weather conditions for a location, including " +
			"temperature, humidity, and wind.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"location": map[string]any{
					"type":        "string",
					"description": "The location to check (e.g., 'Paris', 'New York')",
				},
			},
			"required": []string{"location"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			location, _ := args["location"].(string)
			if location == "" {
				return "", fmt.Errorf("location is required")
			}
			return c.Current(ctx, location)
		},
	}
}
