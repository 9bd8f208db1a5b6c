package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/scout/internal/agent"
	"github.com/nugget/scout/internal/llm"
	"github.com/nugget/scout/internal/thread"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The UI is served from the same origin; other origins have no
	// business on this socket.
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	},
}

// clientMessage is what the browser sends: one user turn.
type clientMessage struct {
	Message  string `json:"message"`
	ThreadID string `json:"thread_id,omitempty"`
}

// serverFrame is one message pushed to the browser.
type serverFrame struct {
	Type     string `json:"type"`
	Token    string `json:"token,omitempty"`
	Tool     string `json:"tool,omitempty"`
	Error    string `json:"error,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`
	HTML     string `json:"html,omitempty"`
	Title    string `json:"title,omitempty"`
}

// chatSocket runs chat turns over a websocket connection.
type chatSocket struct {
	agent  *agent.Agent
	store  *thread.Store
	logger *slog.Logger
}

func (cs *chatSocket) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		cs.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// Gorilla connections allow one concurrent writer; the agent
	// callback and the turn epilogue share this mutex.
	var writeMu sync.Mutex
	send := func(frame serverFrame) {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
		if err := conn.WriteJSON(frame); err != nil {
			cs.logger.Debug("websocket write failed", "error", err)
		}
	}

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				cs.logger.Debug("websocket read failed", "error", err)
			}
			return
		}
		if msg.Message == "" {
			send(serverFrame{Type: "error", Error: "message is required"})
			continue
		}

		cs.runTurn(r.Context(), msg, send)
	}
}

func (cs *chatSocket) runTurn(ctx context.Context, msg clientMessage, send func(serverFrame)) {
	callback := func(event llm.StreamEvent) {
		switch event.Kind {
		case llm.KindToken:
			send(serverFrame{Type: "token", Token: event.Token})
		case llm.KindToolCallStart:
			send(serverFrame{Type: "tool_start", Tool: event.ToolCall.Function.Name})
		case llm.KindToolCallDone:
			send(serverFrame{Type: "tool_done", Tool: event.ToolName, Error: event.ToolError})
		}
	}

	result, err := cs.agent.Run(ctx, msg.ThreadID, msg.Message, callback)
	if err != nil {
		cs.logger.Error("turn failed", "error", err)
		send(serverFrame{Type: "error", Error: err.Error()})
		return
	}

	html, err := RenderMarkdown(result.Content)
	if err != nil {
		cs.logger.Warn("markdown rendering failed", "error", err)
		html = ""
	}
	send(serverFrame{
		Type:     "done",
		ThreadID: result.ThreadID,
		HTML:     html,
	})

	// Push the refreshed title so the sidebar updates live.
	ts, err := cs.store.TitleState(ctx, result.ThreadID)
	if err != nil {
		if !errors.Is(err, thread.ErrNotFound) {
			cs.logger.Debug("title state lookup failed", "error", err)
		}
		return
	}
	if ts.Title != "" {
		send(serverFrame{Type: "title", ThreadID: result.ThreadID, Title: ts.Title})
	}
}
