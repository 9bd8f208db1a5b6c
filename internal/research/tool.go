package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nugget/scout/internal/summarize"
	"github.com/nugget/scout/internal/tools"
)

// defaultMaxResults is how many search results feed the summarizer
// when the model does not ask for a specific count.
const defaultMaxResults = 3

// Tool builds the deep_research tool: search the web, clean each
// result's content, and return per-result summaries.
func Tool(provider Provider, summarizer *summarize.Summarizer, logger *slog.Logger) *tools.Tool {
	return &tools.Tool{
		Name: "deep_research",
		Description: "Search the web for current information on a topic and return " +
			"summarized findings with source URLs. Use for questions about recent " +
			"events or anything outside your training data.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query",
				},
			},
			"required": []string{"query"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			query, _ := args["query"].(string)
			if query == "" {
				return "", fmt.Errorf("query is required")
			}
			return run(ctx, provider, summarizer, logger, query)
		},
	}
}

// summarizedResult is one entry in the tool's output payload.
type summarizedResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Summary string `json:"summary"`
}

func run(ctx context.Context, provider Provider, summarizer *summarize.Summarizer, logger *slog.Logger, query string) (string, error) {
	results, err := provider.Search(ctx, query, defaultMaxResults)
	if err != nil {
		return "", fmt.Errorf("search: %w", err)
	}

	logger.Debug("research search complete", "query", query, "results", len(results))

	out := make([]summarizedResult, 0, len(results))
	for _, r := range results {
		cleaned := CleanContent(r.Content)
		if cleaned == "" {
			continue
		}
		summary, err := summarizer.Summarize(ctx, cleaned)
		if err != nil {
			// One unreadable page should not sink the whole research
			// call. Skip it and keep what summarized cleanly.
			logger.Warn("result summarization failed", "url", r.URL, "error", err)
			continue
		}
		out = append(out, summarizedResult{
			Title:   r.Title,
			URL:     r.URL,
			Summary: summary,
		})
	}

	payload, err := json.Marshal(map[string]any{
		"query":   query,
		"results": out,
	})
	if err != nil {
		return "", fmt.Errorf("marshal results: %w", err)
	}
	return string(payload), nil
}
