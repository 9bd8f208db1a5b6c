// Package markets provides stock market data via the Alpha Vantage
// API.
package markets

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

const alphaVantageEndpoint = "https://www.alphavantage.co/query"

// Client fetches quotes from Alpha Vantage.
type Client struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an Alpha Vantage client.
func NewClient(apiKey string, logger *slog.Logger) *Client {
	return &Client{
		apiKey:   apiKey,
		endpoint: alphaVantageEndpoint,
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(15 * time.Second),
		),
		logger: logger,
	}
}

// GlobalQuote fetches the current quote for a ticker symbol. The raw
// provider JSON is returned unmodified — the model reads the provider's
// field names directly, and reshaping the payload would only strip
// information.
func (c *Client) GlobalQuote(ctx context.Context, symbol string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("alphavantage: API key not configured")
	}

	params := url.Values{
		"function": {"GLOBAL_QUOTE"},
		"symbol":   {symbol},
		"apikey":   {c.apiKey},
	}
	reqURL := fmt.Sprintf("%s?%s", c.endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("alphavantage: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("alphavantage: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return "", fmt.Errorf("alphavantage: HTTP %d: %s", resp.StatusCode, body)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("alphavantage: read response: %w", err)
	}
	if !json.Valid(body) {
		return "", fmt.Errorf("alphavantage: non-JSON response")
	}

	c.logger.Debug("quote fetched", "symbol", symbol, "bytes", len(body))
	return string(body), nil
}

// Tool builds the stock_quote tool backed by this client.
func (c *Client) Tool() *tools.Tool {
	return &tools.Tool{
		Name: "stock_quote",
		Description: "Get the current stock quote for a ticker symbol, including " +
			"price, volume, and daily change.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symbol": map[string]any{
					"type":        "string",
					"description": "The ticker symbol (e.g., AAPL, MSFT)",
				},
			},
			"required": []string{"symbol"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			symbol, _ := args["symbol"].(string)
			if symbol == "" {
				return "", fmt.Errorf("symbol is required")
			}
			return c.GlobalQuote(ctx, symbol)
		},
	}
}
