package agent

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nugget/scout/internal/llm"
	"github.com/nugget/scout/internal/thread"
	"github.com/nugget/scout/internal/title"
	"github.com/nugget/scout/internal/tools"
)

// scriptedClient replays a fixed sequence of responses, one per call.
type scriptedClient struct {
	mu        sync.Mutex
	responses []llm.ChatResponse
	calls     int
	sawTools  []bool
}

func (s *scriptedClient) Chat(ctx context.Context, model string, messages []llm.Message, toolDefs []map[string]any) (*llm.ChatResponse, error) {
	return s.ChatStream(ctx, model, messages, toolDefs, nil)
}

func (s *scriptedClient) ChatStream(_ context.Context, _ string, _ []llm.Message, toolDefs []map[string]any, callback llm.StreamCallback) (*llm.ChatResponse, error) {
	s.mu.Lock()
	idx := s.calls
	s.calls++
	s.sawTools = append(s.sawTools, toolDefs != nil)
	s.mu.Unlock()

	resp := s.responses[len(s.responses)-1]
	if idx < len(s.responses) {
		resp = s.responses[idx]
	}
	if callback != nil && resp.Message.Content != "" {
		for _, word := range strings.SplitAfter(resp.Message.Content, " ") {
			callback(llm.StreamEvent{Kind: llm.KindToken, Token: word})
		}
	}
	resp.Done = true
	return &resp, nil
}

func (s *scriptedClient) Ping(context.Context) error { return nil }

func toolCall(id, name string, args map[string]any) llm.ToolCall {
	var tc llm.ToolCall
	tc.ID = id
	tc.Function.Name = name
	tc.Function.Arguments = args
	return tc
}

func testAgent(t *testing.T, client llm.Client, maxIter int) (*Agent, *thread.Store) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	store, err := thread.NewStore(filepath.Join(t.TempDir(), "agent_test.db"))
	if err != nil {
		t.Fatalf("NewStore(): %v", err)
	}
	t.Cleanup(func() { store.Close() })
	registry := tools.NewRegistry()
	return New(logger, client, "test-model", registry, store, nil, maxIter), store
}

func TestRunPlainAnswer(t *testing.T) {
	client := &scriptedClient{responses: []llm.ChatResponse{
		{Message: llm.Message{Role: "assistant", Content: "Hello there."}},
	}}
	a, store := testAgent(t, client, 0)
	ctx := context.Background()

	var tokens strings.Builder
	result, err := a.Run(ctx, "", "hi", func(ev llm.StreamEvent) {
		if ev.Kind == llm.KindToken {
			tokens.WriteString(ev.Token)
		}
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.Content != "Hello there." {
		t.Errorf("result content = %q, want model answer", result.Content)
	}
	if result.ThreadID == "" {
		t.Error("result thread ID empty, want generated ID")
	}
	if tokens.String() != "Hello there." {
		t.Errorf("streamed tokens = %q, want full answer", tokens.String())
	}

	msgs, err := store.Load(ctx, result.ThreadID)
	if err != nil {
		t.Fatalf("Load(): %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("stored %d messages, want user + assistant", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("stored roles = %s, %s; want user, assistant", msgs[0].Role, msgs[1].Role)
	}
}

func TestRunToolLoop(t *testing.T) {
	client := &scriptedClient{responses: []llm.ChatResponse{
		{Message: llm.Message{
			Role: "assistant",
			ToolCalls: []llm.ToolCall{toolCall("call_1", "calculator", map[string]any{
				"first_num": float64(6), "second_num": float64(7), "operation": "mul",
			})},
		}},
		{Message: llm.Message{Role: "assistant", Content: "6 times 7 is 42."}},
	}}
	a, store := testAgent(t, client, 0)
	ctx := context.Background()

	var started, finished []string
	result, err := a.Run(ctx, "", "what is 6*7?", func(ev llm.StreamEvent) {
		switch ev.Kind {
		case llm.KindToolCallStart:
			started = append(started, ev.ToolCall.Function.Name)
		case llm.KindToolCallDone:
			finished = append(finished, ev.ToolName)
			if ev.ToolError != "" {
				t.Errorf("tool error = %q, want none", ev.ToolError)
			}
			if !strings.Contains(ev.ToolResult, "42") {
				t.Errorf("tool result = %q, want 42", ev.ToolResult)
			}
		}
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.Content != "6 times 7 is 42." {
		t.Errorf("result content = %q", result.Content)
	}
	if result.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", result.Iterations)
	}
	if len(started) != 1 || started[0] != "calculator" {
		t.Errorf("tool start events = %v, want [calculator]", started)
	}
	if len(finished) != 1 {
		t.Errorf("tool done events = %v, want one", finished)
	}

	// Stored transcript: user, assistant(tool call), tool, assistant.
	msgs, err := store.Load(ctx, result.ThreadID)
	if err != nil {
		t.Fatalf("Load(): %v", err)
	}
	wantRoles := []string{"user", "assistant", "tool", "assistant"}
	if len(msgs) != len(wantRoles) {
		t.Fatalf("stored %d messages, want %d", len(msgs), len(wantRoles))
	}
	for i, want := range wantRoles {
		if msgs[i].Role != want {
			t.Errorf("msgs[%d].Role = %s, want %s", i, msgs[i].Role, want)
		}
	}
	if msgs[2].ToolCallID != "call_1" || msgs[2].ToolName != "calculator" {
		t.Errorf("tool message correlation = (%q, %q)", msgs[2].ToolCallID, msgs[2].ToolName)
	}
}

func TestRunToolErrorFedBackAsContent(t *testing.T) {
	client := &scriptedClient{responses: []llm.ChatResponse{
		{Message: llm.Message{
			Role:      "assistant",
			ToolCalls: []llm.ToolCall{toolCall("call_1", "no_such_tool", nil)},
		}},
		{Message: llm.Message{Role: "assistant", Content: "I could not do that."}},
	}}
	a, store := testAgent(t, client, 0)
	ctx := context.Background()

	result, err := a.Run(ctx, "", "use a tool", nil)
	if err != nil {
		t.Fatalf("Run() error: %v, want tool failure contained in turn", err)
	}
	msgs, err := store.Load(ctx, result.ThreadID)
	if err != nil {
		t.Fatalf("Load(): %v", err)
	}
	var toolMsg *llm.Message
	for i := range msgs {
		if msgs[i].Role == "tool" {
			toolMsg = &msgs[i]
		}
	}
	if toolMsg == nil {
		t.Fatal("no tool message stored")
	}
	if !strings.HasPrefix(toolMsg.Content, "Error:") {
		t.Errorf("tool message content = %q, want Error: prefix", toolMsg.Content)
	}
}

func TestRunIterationCapForcesTextAnswer(t *testing.T) {
	// The model asks for a tool every time; the loop must cut it off.
	loopingCall := llm.ChatResponse{Message: llm.Message{
		Role: "assistant",
		ToolCalls: []llm.ToolCall{toolCall("call_x", "calculator", map[string]any{
			"first_num": float64(1), "second_num": float64(1), "operation": "add",
		})},
	}}
	client := &scriptedClient{responses: []llm.ChatResponse{loopingCall}}
	a, _ := testAgent(t, client, 3)
	ctx := context.Background()

	result, err := a.Run(ctx, "", "loop forever", nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !result.Exhausted {
		t.Error("result.Exhausted = false, want true")
	}
	if result.Iterations != 3 {
		t.Errorf("iterations = %d, want cap of 3", result.Iterations)
	}

	// The wrap-up call must offer no tools.
	client.mu.Lock()
	defer client.mu.Unlock()
	if client.calls != 4 {
		t.Fatalf("model called %d times, want 3 iterations + 1 wrap-up", client.calls)
	}
	if client.sawTools[len(client.sawTools)-1] {
		t.Error("wrap-up call offered tools, want none")
	}
}

func TestRunContinuesExistingThread(t *testing.T) {
	client := &scriptedClient{responses: []llm.ChatResponse{
		{Message: llm.Message{Role: "assistant", Content: "first answer"}},
		{Message: llm.Message{Role: "assistant", Content: "second answer"}},
	}}
	a, store := testAgent(t, client, 0)
	ctx := context.Background()

	first, err := a.Run(ctx, "", "first question", nil)
	if err != nil {
		t.Fatalf("Run(first) error: %v", err)
	}
	second, err := a.Run(ctx, first.ThreadID, "second question", nil)
	if err != nil {
		t.Fatalf("Run(second) error: %v", err)
	}
	if second.ThreadID != first.ThreadID {
		t.Errorf("second turn thread = %s, want %s", second.ThreadID, first.ThreadID)
	}

	msgs, err := store.Load(ctx, first.ThreadID)
	if err != nil {
		t.Fatalf("Load(): %v", err)
	}
	if len(msgs) != 4 {
		t.Errorf("stored %d messages across two turns, want 4", len(msgs))
	}
}

func TestRunUpdatesTitle(t *testing.T) {
	client := &scriptedClient{responses: []llm.ChatResponse{
		{Message: llm.Message{Role: "assistant", Content: "an answer"}},
	}}
	logger := slog.New(slog.DiscardHandler)
	store, err := thread.NewStore(filepath.Join(t.TempDir(), "agent_test.db"))
	if err != nil {
		t.Fatalf("NewStore(): %v", err)
	}
	t.Cleanup(func() { store.Close() })

	generator := title.NewGenerator(staticCompleter("Generated Title"), logger)
	maintainer := title.NewMaintainer(store, generator, logger)
	a := New(logger, client, "test-model", tools.NewRegistry(), store, maintainer, 0)

	result, err := a.Run(context.Background(), "", "how do tides work?", nil)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	ts, err := store.TitleState(context.Background(), result.ThreadID)
	if err != nil {
		t.Fatalf("TitleState(): %v", err)
	}
	if ts.Title != "how do tides work?" {
		t.Errorf("title = %q, want first-message title for young thread", ts.Title)
	}
}

// staticCompleter satisfies title.Completer with a fixed response.
type staticCompleter string

func (s staticCompleter) Complete(context.Context, string) (string, error) {
	return string(s), nil
}
