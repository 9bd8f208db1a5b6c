// Package research provides the web research pipeline: a pluggable
// search provider, a content cleaner, and a tool handler that searches
// the web and summarizes what it finds.
package research

import "context"

// Result is a single search result with its page content.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Provider is the interface that search backends implement.
type Provider interface {
	// Name returns the provider identifier (e.g., "tavily").
	Name() string

	// Search executes a query and returns results with content.
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}
