// Package agent implements the conversational loop: load thread
// history, call the model, execute any tools it requests, and persist
// the exchange.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nugget/scout/internal/llm"
	"github.com/nugget/scout/internal/thread"
	"github.com/nugget/scout/internal/title"
	"github.com/nugget/scout/internal/tools"
)

const defaultMaxIterations = 10

const systemPrompt = `You are Scout, a research assistant. You can search the web, ` +
	`do arithmetic, look up stock quotes, and check the weather using your tools. ` +
	`Use tools when they help; answer directly when they don't. Cite source URLs ` +
	`when you used web research.`

// Result is the outcome of one completed turn.
type Result struct {
	ThreadID     string `json:"thread_id"`
	Content      string `json:"content"`
	Model        string `json:"model"`
	Iterations   int    `json:"iterations"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	Exhausted    bool   `json:"exhausted"`
}

// Agent runs conversational turns against a thread store.
type Agent struct {
	logger        *slog.Logger
	llm           llm.Client
	model         string
	registry      *tools.Registry
	store         *thread.Store
	titles        *title.Maintainer
	maxIterations int
}

// New creates an agent. maxIterations caps tool-call round trips per
// turn; zero or negative selects the default.
func New(logger *slog.Logger, client llm.Client, model string, registry *tools.Registry, store *thread.Store, titles *title.Maintainer, maxIterations int) *Agent {
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	return &Agent{
		logger:        logger,
		llm:           client,
		model:         model,
		registry:      registry,
		store:         store,
		titles:        titles,
		maxIterations: maxIterations,
	}
}

// Run executes one turn: append the user message, iterate model calls
// and tool executions until the model produces text, persist everything,
// and refresh the thread title. An empty threadID starts a new thread.
//
// Persistence failures abort the turn: a reply the user sees but the
// thread forgets would corrupt every later turn's context.
func (a *Agent) Run(ctx context.Context, threadID, userText string, callback llm.StreamCallback) (*Result, error) {
	if userText == "" {
		return nil, fmt.Errorf("empty user message")
	}
	if threadID == "" {
		threadID = thread.NewThreadID()
	}

	history, err := a.store.Load(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load thread: %w", err)
	}

	userMsg := llm.Message{Role: "user", Content: userText}
	if err := a.store.Append(ctx, threadID, userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, userMsg)

	toolDefs := a.registry.List()
	emit := func(ev llm.StreamEvent) {
		if callback != nil {
			callback(ev)
		}
	}

	var totalInput, totalOutput int

	for i := range a.maxIterations {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("turn cancelled: %w", err)
		}

		iterStart := time.Now()
		resp, err := a.llm.ChatStream(ctx, a.model, messages, toolDefs, callback)
		if err != nil {
			return nil, fmt.Errorf("llm call failed (iter %d): %w", i, err)
		}
		totalInput += resp.InputTokens
		totalOutput += resp.OutputTokens

		a.logger.Debug("llm response",
			"thread_id", threadID,
			"iter", i,
			"tool_calls", len(resp.Message.ToolCalls),
			"elapsed", time.Since(iterStart).Round(time.Millisecond),
		)

		// No tool calls — the model has answered.
		if len(resp.Message.ToolCalls) == 0 {
			result := &Result{
				ThreadID:     threadID,
				Content:      resp.Message.Content,
				Model:        resp.Model,
				Iterations:   i + 1,
				InputTokens:  totalInput,
				OutputTokens: totalOutput,
			}
			return a.finish(ctx, threadID, resp.Message, result, emit)
		}

		messages = append(messages, resp.Message)
		if err := a.store.Append(ctx, threadID, resp.Message); err != nil {
			return nil, fmt.Errorf("persist assistant message: %w", err)
		}

		for _, tc := range resp.Message.ToolCalls {
			tc := tc
			emit(llm.StreamEvent{Kind: llm.KindToolCallStart, ToolCall: &tc})

			toolStart := time.Now()
			result, err := a.registry.Execute(ctx, tc.Function.Name, tc.Function.Arguments)
			toolErr := ""
			if err != nil {
				// Tool failures go back to the model as content so it
				// can recover or explain, not up the stack.
				result = "Error: " + err.Error()
				toolErr = err.Error()
				a.logger.Error("tool execution failed",
					"thread_id", threadID,
					"tool", tc.Function.Name,
					"error", err,
				)
			} else {
				a.logger.Debug("tool execution done",
					"thread_id", threadID,
					"tool", tc.Function.Name,
					"result_len", len(result),
					"elapsed", time.Since(toolStart).Round(time.Millisecond),
				)
			}

			emit(llm.StreamEvent{
				Kind:       llm.KindToolCallDone,
				ToolName:   tc.Function.Name,
				ToolResult: result,
				ToolError:  toolErr,
			})

			toolMsg := llm.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: tc.ID,
				ToolName:   tc.Function.Name,
			}
			messages = append(messages, toolMsg)
			if err := a.store.Append(ctx, threadID, toolMsg); err != nil {
				return nil, fmt.Errorf("persist tool message: %w", err)
			}
		}
	}

	// Iteration cap reached: ask for a plain-text wrap-up with no tools
	// on offer, so the turn always ends with something to show.
	a.logger.Warn("max tool iterations reached",
		"thread_id", threadID,
		"max_iterations", a.maxIterations,
	)
	messages = append(messages, llm.Message{
		Role:    "system",
		Content: "Tool budget exhausted. Summarize what you found so far as a final answer.",
	})
	resp, err := a.llm.ChatStream(ctx, a.model, messages, nil, callback)
	if err != nil {
		return nil, fmt.Errorf("forced text response failed: %w", err)
	}
	totalInput += resp.InputTokens
	totalOutput += resp.OutputTokens

	result := &Result{
		ThreadID:     threadID,
		Content:      resp.Message.Content,
		Model:        resp.Model,
		Iterations:   a.maxIterations,
		InputTokens:  totalInput,
		OutputTokens: totalOutput,
		Exhausted:    true,
	}
	return a.finish(ctx, threadID, resp.Message, result, emit)
}

// finish persists the final assistant message, refreshes the title,
// and emits the done event.
func (a *Agent) finish(ctx context.Context, threadID string, msg llm.Message, result *Result, emit llm.StreamCallback) (*Result, error) {
	final := llm.Message{Role: "assistant", Content: msg.Content}
	if err := a.store.Append(ctx, threadID, final); err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}

	if a.titles != nil {
		a.titles.Update(ctx, threadID)
	}

	emit(llm.StreamEvent{
		Kind: llm.KindDone,
		Response: &llm.ChatResponse{
			Model:        result.Model,
			Done:         true,
			Message:      final,
			InputTokens:  result.InputTokens,
			OutputTokens: result.OutputTokens,
		},
	})
	return result, nil
}
