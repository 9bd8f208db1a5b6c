// Package api implements the HTTP API: chat endpoints (plain and SSE
// streaming), thread management, and health introspection.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nugget/scout/internal/agent"
	"github.com/nugget/scout/internal/buildinfo"
	"github.com/nugget/scout/internal/llm"
	"github.com/nugget/scout/internal/thread"
	"github.com/nugget/scout/internal/web"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address string
	port    int
	agent   *agent.Agent
	store   *thread.Store
	logger  *slog.Logger
	server  *http.Server
}

// NewServer creates the API server.
func NewServer(address string, port int, a *agent.Agent, store *thread.Store, logger *slog.Logger) *Server {
	return &Server{
		address: address,
		port:    port,
		agent:   a,
		store:   store,
		logger:  logger.With("component", "api"),
	}
}

// Handler builds the full route table. Exposed separately from Start
// so tests can drive the server through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Chat endpoints
	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("POST /v1/chat/stream", s.handleChatStream)

	// Thread endpoints
	mux.HandleFunc("GET /v1/threads", s.handleThreadList)
	mux.HandleFunc("POST /v1/threads", s.handleThreadCreate)
	mux.HandleFunc("GET /v1/threads/{id}", s.handleThreadGet)

	// Health endpoints
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/chat", http.StatusFound)
	})

	// Chat web UI and websocket
	web.RegisterRoutes(mux, s.agent, s.store, s.logger)

	return s.withLogging(mux)
}

// Start runs the server until it fails or Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // Long for streaming responses
	}

	s.logger.Info("starting API server", "address", s.address, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// ChatRequest is the request body for POST /v1/chat and /v1/chat/stream.
type ChatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
}

// ChatResponse is the response body for POST /v1/chat.
type ChatResponse struct {
	Response     string `json:"response"`
	ThreadID     string `json:"thread_id"`
	Model        string `json:"model"`
	Iterations   int    `json:"iterations"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}

	result, err := s.agent.Run(r.Context(), req.ThreadID, req.Message, nil)
	if err != nil {
		s.logger.Error("turn failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "agent error: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, ChatResponse{
		Response:     result.Content,
		ThreadID:     result.ThreadID,
		Model:        result.Model,
		Iterations:   result.Iterations,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
	}, s.logger)
}

// streamFrame is one SSE data payload for /v1/chat/stream.
type streamFrame struct {
	Type     string `json:"type"`
	Token    string `json:"token,omitempty"`
	Tool     string `json:"tool,omitempty"`
	Error    string `json:"error,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`
	Content  string `json:"content,omitempty"`
	Model    string `json:"model,omitempty"`
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorResponse(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	rc := http.NewResponseController(w)

	callback := func(event llm.StreamEvent) {
		switch event.Kind {
		case llm.KindToken:
			s.writeSSE(w, streamFrame{Type: "token", Token: event.Token})
		case llm.KindToolCallStart:
			s.writeSSE(w, streamFrame{Type: "tool_start", Tool: event.ToolCall.Function.Name})
		case llm.KindToolCallDone:
			s.writeSSE(w, streamFrame{Type: "tool_done", Tool: event.ToolName, Error: event.ToolError})
		default:
			// Keepalive comment during quiet stretches.
			fmt.Fprintf(w, ": keepalive\n\n")
		}
		flusher.Flush()

		// Reset the write deadline so long tool loops don't trip the
		// server-level write timeout.
		if err := rc.SetWriteDeadline(time.Now().Add(120 * time.Second)); err != nil {
			s.logger.Debug("failed to reset write deadline", "error", err)
		}
	}

	result, err := s.agent.Run(r.Context(), req.ThreadID, req.Message, callback)
	if err != nil {
		s.logger.Error("turn failed", "error", err)
		// Status code is already committed; report the failure in-band.
		s.writeSSE(w, streamFrame{Type: "error", Error: err.Error()})
		flusher.Flush()
		return
	}

	s.writeSSE(w, streamFrame{
		Type:     "done",
		ThreadID: result.ThreadID,
		Content:  result.Content,
		Model:    result.Model,
	})
	fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (s *Server) writeSSE(w http.ResponseWriter, frame streamFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		s.logger.Debug("failed to marshal SSE frame", "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		s.logger.Debug("failed to write SSE frame", "error", err)
	}
}

func (s *Server) handleThreadList(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.Threads(r.Context())
	if err != nil {
		s.logger.Error("thread list failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "storage error")
		return
	}
	if summaries == nil {
		summaries = []thread.Summary{}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"threads": summaries}, s.logger)
}

func (s *Server) handleThreadCreate(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"thread_id": thread.NewThreadID()}, s.logger)
}

func (s *Server) handleThreadGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	messages, err := s.store.Load(r.Context(), id)
	if err != nil {
		s.logger.Error("thread load failed", "thread_id", id, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "storage error")
		return
	}
	if messages == nil {
		messages = []llm.Message{}
	}

	title := ""
	if ts, err := s.store.TitleState(r.Context(), id); err == nil {
		title = ts.Title
	} else if !errors.Is(err, thread.ErrNotFound) {
		s.logger.Error("title state failed", "thread_id", id, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"thread_id": id,
		"title":     title,
		"messages":  messages,
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"status": "healthy",
		"uptime": buildinfo.Uptime().Round(time.Second).String(),
	}, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}
