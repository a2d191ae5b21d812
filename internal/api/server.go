// Package api exposes projects over HTTP and the realtime websocket.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/serroba/taskgrid/internal/collab"
	"github.com/serroba/taskgrid/internal/ws"
	"go.uber.org/zap"
)

// Server handles HTTP requests for the project API.
type Server struct {
	service  *collab.Service
	hub      *ws.Hub
	logger   *zap.Logger
	upgrader websocket.Upgrader

	// sockets counts websocket handlers, which http.Server.Shutdown does
	// not wait for once the connection is hijacked.
	sockets sync.WaitGroup
}

// ServerConfig holds configuration for creating a server.
type ServerConfig struct {
	Service *collab.Service
	Hub     *ws.Hub
	Logger  *zap.Logger
}

// NewServer creates a new API server.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		service: cfg.Service,
		hub:     cfg.Hub,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
	}
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Project endpoints
	mux.HandleFunc("GET /api/load-group", s.handleLoadGroup)
	mux.HandleFunc("GET /api/project-version", s.handleProjectVersion)
	mux.HandleFunc("GET /api/group-projects", s.handleGroupProjects)
	mux.HandleFunc("POST /api/patch-task", s.handlePatchTask)
	mux.HandleFunc("POST /api/save-group", s.handleSaveGroup)

	// Realtime
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	return s.requestMiddleware(mux)
}

// CloseSockets disconnects every websocket client and waits until their
// handlers have returned, so no operation is still being applied.
// Call it after http.Server.Shutdown.
func (s *Server) CloseSockets(ctx context.Context) error {
	s.hub.CloseAll()

	done := make(chan struct{})

	go func() {
		s.sockets.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// writeJSON writes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
