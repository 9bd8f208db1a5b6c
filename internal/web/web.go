// Package web provides the chat web interface for Scout: an embedded
// single-page UI and a websocket endpoint that streams turns to it.
package web

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/nugget/scout/internal/agent"
	"github.com/nugget/scout/internal/thread"
)

//go:embed static/*
var staticFiles embed.FS

// Handler returns an http.Handler that serves the chat UI.
func Handler() http.Handler {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}

	fileServer := http.FileServer(http.FS(subFS))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" || r.URL.Path == "" {
			r.URL.Path = "/index.html"
		}
		fileServer.ServeHTTP(w, r)
	})
}

// RegisterRoutes adds the chat UI and its websocket to a mux.
func RegisterRoutes(mux *http.ServeMux, a *agent.Agent, store *thread.Store, logger *slog.Logger) {
	handler := Handler()

	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		r.URL.Path = "/"
		handler.ServeHTTP(w, r)
	})

	mux.HandleFunc("/chat/", func(w http.ResponseWriter, r *http.Request) {
		r.URL.Path = r.URL.Path[len("/chat"):]
		if r.URL.Path == "" {
			r.URL.Path = "/"
		}
		handler.ServeHTTP(w, r)
	})

	ws := &chatSocket{
		agent:  a,
		store:  store,
		logger: logger.With("component", "web"),
	}
	mux.HandleFunc("GET /ws/chat", ws.handle)
}
