package summarize

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/nugget/scout/internal/llm"
)

// fakeClient records prompts and returns canned content.
type fakeClient struct {
	mu      sync.Mutex
	prompts []string
	respond func(prompt string) (string, error)
}

func (f *fakeClient) Chat(_ context.Context, _ string, messages []llm.Message, _ []map[string]any) (*llm.ChatResponse, error) {
	prompt := messages[len(messages)-1].Content
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	content := "summary"
	var err error
	if f.respond != nil {
		content, err = f.respond(prompt)
	}
	if err != nil {
		return nil, err
	}
	return &llm.ChatResponse{
		Done:    true,
		Message: llm.Message{Role: "assistant", Content: content},
	}, nil
}

func (f *fakeClient) ChatStream(ctx context.Context, model string, messages []llm.Message, tools []map[string]any, _ llm.StreamCallback) (*llm.ChatResponse, error) {
	return f.Chat(ctx, model, messages, tools)
}

func (f *fakeClient) Ping(context.Context) error { return nil }

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func testSummarizer(fc *fakeClient) *Summarizer {
	return New(fc, "test-model", slog.New(slog.DiscardHandler))
}

func TestSummarizeShortInputSingleCall(t *testing.T) {
	fc := &fakeClient{}
	s := testSummarizer(fc)

	got, err := s.Summarize(context.Background(), "a short document")
	if err != nil {
		t.Fatalf("Summarize() error: %v", err)
	}
	if got != "summary" {
		t.Errorf("Summarize() = %q, want %q", got, "summary")
	}
	if fc.callCount() != 1 {
		t.Errorf("model called %d times for short input, want 1", fc.callCount())
	}
}

func TestSummarizeLongInputMapReduce(t *testing.T) {
	fc := &fakeClient{}
	s := testSummarizer(fc)

	long := strings.Repeat("sentence about solar panels. ", 150) // ~4350 chars
	_, err := s.Summarize(context.Background(), long)
	if err != nil {
		t.Fatalf("Summarize() error: %v", err)
	}

	// Map calls for each chunk plus one reduce call.
	wantChunks := len(chunkText(strings.TrimSpace(long), chunkSize, chunkOverlap))
	if fc.callCount() != wantChunks+1 {
		t.Errorf("model called %d times, want %d chunks + 1 reduce", fc.callCount(), wantChunks)
	}
}

func TestSummarizeEmptyInput(t *testing.T) {
	s := testSummarizer(&fakeClient{})

	if _, err := s.Summarize(context.Background(), "   "); err == nil {
		t.Error("Summarize(empty) = nil error, want error")
	}
}

func TestSummarizePropagatesChunkFailure(t *testing.T) {
	fc := &fakeClient{
		respond: func(string) (string, error) {
			return "", errors.New("model down")
		},
	}
	s := testSummarizer(fc)

	long := strings.Repeat("text ", 500)
	if _, err := s.Summarize(context.Background(), long); err == nil {
		t.Error("Summarize() = nil error, want chunk failure")
	}
}

func TestChunkTextCoversInput(t *testing.T) {
	text := strings.Repeat("abcdefghij", 250) // 2500 chars
	chunks := chunkText(text, 1000, 100)

	if len(chunks) < 2 {
		t.Fatalf("chunkText() produced %d chunks, want several", len(chunks))
	}
	// Reassembling with the overlap removed must reproduce the input.
	var rebuilt strings.Builder
	rebuilt.WriteString(chunks[0])
	for _, c := range chunks[1:] {
		rebuilt.WriteString(c[min(100, len(c)):])
	}
	if rebuilt.String() != text {
		t.Error("chunks with overlap removed do not reassemble to the input")
	}
	for i, c := range chunks {
		if len(c) > 1000 {
			t.Errorf("chunk %d is %d chars, want <= 1000", i, len(c))
		}
	}
}

func TestChunkTextShortInput(t *testing.T) {
	chunks := chunkText("short", 1000, 100)
	if len(chunks) != 1 || chunks[0] != "short" {
		t.Errorf("chunkText(short) = %v, want single chunk", chunks)
	}
}
