package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nugget/scout/internal/agent"
	"github.com/nugget/scout/internal/llm"
	"github.com/nugget/scout/internal/thread"
	"github.com/nugget/scout/internal/tools"
)

// cannedClient answers every chat call with fixed content.
type cannedClient struct {
	content string
}

func (c *cannedClient) Chat(ctx context.Context, model string, messages []llm.Message, toolDefs []map[string]any) (*llm.ChatResponse, error) {
	return c.ChatStream(ctx, model, messages, toolDefs, nil)
}

func (c *cannedClient) ChatStream(_ context.Context, model string, _ []llm.Message, _ []map[string]any, callback llm.StreamCallback) (*llm.ChatResponse, error) {
	if callback != nil {
		callback(llm.StreamEvent{Kind: llm.KindToken, Token: c.content})
	}
	return &llm.ChatResponse{
		Model:   model,
		Done:    true,
		Message: llm.Message{Role: "assistant", Content: c.content},
	}, nil
}

func (c *cannedClient) Ping(context.Context) error { return nil }

func testServer(t *testing.T) (*httptest.Server, *thread.Store) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	store, err := thread.NewStore(filepath.Join(t.TempDir(), "api_test.db"))
	if err != nil {
		t.Fatalf("NewStore(): %v", err)
	}
	t.Cleanup(func() { store.Close() })

	a := agent.New(logger, &cannedClient{content: "canned answer"}, "test-model", tools.NewRegistry(), store, nil, 0)
	srv := httptest.NewServer(NewServer("127.0.0.1", 0, a, store, logger).Handler())
	t.Cleanup(srv.Close)
	return srv, store
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestChatEndpoint(t *testing.T) {
	srv, store := testServer(t)

	resp := postJSON(t, srv.URL+"/v1/chat", ChatRequest{Message: "hello"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var cr ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if cr.Response != "canned answer" {
		t.Errorf("response = %q, want canned answer", cr.Response)
	}
	if cr.ThreadID == "" {
		t.Fatal("thread_id empty, want generated ID")
	}

	msgs, err := store.Load(context.Background(), cr.ThreadID)
	if err != nil {
		t.Fatalf("Load(): %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("stored %d messages, want 2", len(msgs))
	}
}

func TestChatRequiresMessage(t *testing.T) {
	srv, _ := testServer(t)

	resp := postJSON(t, srv.URL+"/v1/chat", ChatRequest{})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestChatStreamEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	resp := postJSON(t, srv.URL+"/v1/chat/stream", ChatRequest{Message: "hello"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	var sawToken, sawDone, sawTerminator bool
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			sawTerminator = true
			continue
		}
		var frame map[string]any
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			t.Fatalf("non-JSON frame %q: %v", data, err)
		}
		switch frame["type"] {
		case "token":
			sawToken = true
		case "done":
			sawDone = true
			if frame["thread_id"] == "" {
				t.Error("done frame missing thread_id")
			}
		}
	}
	if !sawToken || !sawDone || !sawTerminator {
		t.Errorf("stream frames: token=%v done=%v terminator=%v, want all", sawToken, sawDone, sawTerminator)
	}
}

func TestThreadEndpoints(t *testing.T) {
	srv, store := testServer(t)
	ctx := context.Background()

	// New thread IDs come from POST /v1/threads.
	resp := postJSON(t, srv.URL+"/v1/threads", nil)
	var created map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	resp.Body.Close()
	id := created["thread_id"]
	if id == "" {
		t.Fatal("POST /v1/threads returned empty thread_id")
	}

	if err := store.Append(ctx, id, llm.Message{Role: "user", Content: "stored question"}); err != nil {
		t.Fatalf("Append(): %v", err)
	}
	if err := store.SetTitle(ctx, id, "Stored Thread", 1); err != nil {
		t.Fatalf("SetTitle(): %v", err)
	}

	listResp, err := http.Get(srv.URL + "/v1/threads")
	if err != nil {
		t.Fatalf("GET /v1/threads: %v", err)
	}
	defer listResp.Body.Close()
	var list struct {
		Threads []thread.Summary `json:"threads"`
	}
	if err := json.NewDecoder(listResp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Threads) != 1 || list.Threads[0].Title != "Stored Thread" {
		t.Errorf("thread list = %+v, want one titled thread", list.Threads)
	}

	getResp, err := http.Get(srv.URL + "/v1/threads/" + id)
	if err != nil {
		t.Fatalf("GET /v1/threads/{id}: %v", err)
	}
	defer getResp.Body.Close()
	var got struct {
		ThreadID string        `json:"thread_id"`
		Title    string        `json:"title"`
		Messages []llm.Message `json:"messages"`
	}
	if err := json.NewDecoder(getResp.Body).Decode(&got); err != nil {
		t.Fatalf("decode thread: %v", err)
	}
	if got.Title != "Stored Thread" || len(got.Messages) != 1 {
		t.Errorf("thread = %+v, want title and one message", got)
	}
}

func TestHealthAndVersion(t *testing.T) {
	srv, _ := testServer(t)

	for _, path := range []string{"/health", "/v1/version"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
	}
}
