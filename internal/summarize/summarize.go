// Package summarize condenses arbitrary text with an LLM, falling back
// to a map-reduce pipeline when the input is too long for a single
// call.
package summarize

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nugget/scout/internal/llm"
)

const (
	// singleCallLimit is the input size, in characters, under which a
	// single summarization call is used instead of the chunked
	// pipeline.
	singleCallLimit = 1000

	// chunkSize is the target character count per chunk in the
	// map phase.
	chunkSize = 1000

	// chunkOverlap is how many characters consecutive chunks share, so
	// a sentence split at a boundary still appears whole in one chunk.
	chunkOverlap = 100

	// maxParallelChunks caps concurrent model calls during the map
	// phase.
	maxParallelChunks = 4
)

// Summarizer condenses text using a configured model.
type Summarizer struct {
	client llm.Client
	model  string
	logger *slog.Logger
}

// New creates a Summarizer that uses the given model for all calls.
func New(client llm.Client, model string, logger *slog.Logger) *Summarizer {
	return &Summarizer{client: client, model: model, logger: logger}
}

// Complete sends a free-form prompt and returns the model's text
// response. Used by callers that need a one-shot completion (e.g.
// title generation) without carrying their own LLM plumbing.
func (s *Summarizer) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := s.client.Chat(ctx, s.model, []llm.Message{
		{Role: "user", Content: prompt},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	return strings.TrimSpace(resp.Message.Content), nil
}

// Summarize condenses text into a short summary. Inputs under the
// single-call limit go straight to the model; longer inputs are split
// into overlapping chunks, summarized in parallel, and the chunk
// summaries combined in a reduce step.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("no content to summarize")
	}

	if len(text) <= singleCallLimit {
		return s.Complete(ctx, summaryPrompt(text))
	}

	chunks := chunkText(text, chunkSize, chunkOverlap)
	s.logger.Debug("summarizing in chunks", "chunks", len(chunks), "chars", len(text))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	summaries := make([]string, len(chunks))
	sem := make(chan struct{}, maxParallelChunks)
	errs := make(chan error, len(chunks))
	var wg sync.WaitGroup

	for i, chunk := range chunks {
		wg.Add(1)
		go func(idx int, part string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}

			result, err := s.Complete(ctx, summaryPrompt(part))
			if err != nil {
				errs <- fmt.Errorf("chunk %d: %w", idx+1, err)
				cancel()
				return
			}
			summaries[idx] = result
		}(i, chunk)
	}

	wg.Wait()
	close(errs)
	if err := <-errs; err != nil {
		return "", err
	}

	// Reduce: combine the chunk summaries into one.
	combined := strings.Join(summaries, "\n\n")
	return s.Complete(ctx, fmt.Sprintf(
		"Combine these partial summaries into one concise summary:\n\n%s",
		combined,
	))
}

func summaryPrompt(text string) string {
	return fmt.Sprintf("Summarize the following content concisely:\n\n%s", text)
}

// chunkText splits text into chunks of approximately size characters,
// with overlap characters shared between consecutive chunks. Splitting
// is by character position; the overlap keeps boundary sentences intact
// in at least one chunk.
func chunkText(text string, size, overlap int) []string {
	if size <= 0 || len(text) <= size {
		return []string{text}
	}
	if overlap >= size {
		overlap = size / 2
	}

	var chunks []string
	step := size - overlap
	for start := 0; start < len(text); start += step {
		end := start + size
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			break
		}
		chunks = append(chunks, text[start:end])
	}
	return chunks
}
