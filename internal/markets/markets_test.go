package markets

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGlobalQuotePassesThroughJSON(t *testing.T) {
	raw := `{"Global Quote":{"01. symbol":"AAPL","05. price":"189.4300","10. change percent":"1.2%"}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("function") != "GLOBAL_QUOTE" {
			t.Errorf("function = %q, want GLOBAL_QUOTE", q.Get("function"))
		}
		if q.Get("symbol") != "AAPL" {
			t.Errorf("symbol = %q, want AAPL", q.Get("symbol"))
		}
		if q.Get("apikey") != "test-key" {
			t.Errorf("apikey = %q, want test-key", q.Get("apikey"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(raw))
	}))
	defer srv.Close()

	c := NewClient("test-key", slog.New(slog.DiscardHandler))
	c.endpoint = srv.URL

	got, err := c.GlobalQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GlobalQuote() error: %v", err)
	}
	if got != raw {
		t.Errorf("GlobalQuote() = %q, want provider JSON unmodified", got)
	}
}

func TestGlobalQuoteRejectsNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("<html>rate limited</html>"))
	}))
	defer srv.Close()

	c := NewClient("test-key", slog.New(slog.DiscardHandler))
	c.endpoint = srv.URL

	if _, err := c.GlobalQuote(context.Background(), "AAPL"); err == nil {
		t.Error("GlobalQuote() = nil error for non-JSON body, want error")
	}
}

func TestGlobalQuoteRequiresAPIKey(t *testing.T) {
	c := NewClient("", slog.New(slog.DiscardHandler))
	if _, err := c.GlobalQuote(context.Background(), "AAPL"); err == nil {
		t.Error("GlobalQuote() without API key = nil error, want error")
	}
}

func TestToolRequiresSymbol(t *testing.T) {
	c := NewClient("test-key", slog.New(slog.DiscardHandler))
	tool := c.Tool()

	if tool.Name != "stock_quote" {
		t.Errorf("tool name = %q, want stock_quote", tool.Name)
	}
	if _, err := tool.Handler(context.Background(), map[string]any{}); err == nil {
		t.Error("Handler() without symbol = nil error, want error")
	}

	// Parameters must be a valid JSON schema object.
	if _, err := json.Marshal(tool.Parameters); err != nil {
		t.Errorf("tool parameters not marshalable: %v", err)
	}
}
