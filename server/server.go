// Package server exposes file selection and chat to host applications over
// HTTP. Selection and chat stream events as server-sent events; /ws carries
// the same events over a websocket that also accepts stop requests.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/martinemde/wand/agentloop"
	"github.com/martinemde/wand/events"
	"github.com/martinemde/wand/logging"
	"github.com/martinemde/wand/pipeline"
	"github.com/martinemde/wand/unifiedllm"
)

// Deps are the services the handlers call.
type Deps struct {
	Preprocessor *pipeline.Preprocessor
	Assistant    *pipeline.Assistant
	// Models lists the models of the configured provider.
	Models func(ctx context.Context) unifiedllm.ModelList
	// Workspace is used by the tool routes when a request names none.
	Workspace string
}

// Server serves Deps over HTTP.
type Server struct {
	deps     Deps
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// New creates a Server.
func New(deps Deps, logger *slog.Logger) *Server {
	return &Server{
		deps:   deps,
		logger: logging.OrDiscard(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Hosts are local desktop shells with arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the routed handler with CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /models", s.listModels)
	mux.HandleFunc("GET /tools", s.listTools)
	mux.HandleFunc("POST /tools", s.saveTool)
	mux.HandleFunc("DELETE /tools/temporary", s.clearTemporaryTools)
	mux.HandleFunc("POST /select", s.selectFiles)
	mux.HandleFunc("POST /chat", s.chat)
	mux.HandleFunc("GET /ws", s.serveWS)
	return s.logRequests(corsMiddleware(mux))
}

// Run listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// Streams stay open for the length of a chat.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	if s.deps.Models == nil {
		writeJSON(w, http.StatusOK, unifiedllm.ModelList{Error: "model listing is not configured"})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Models(r.Context()))
}

func (s *Server) toolStore(r *http.Request) *agentloop.ToolStore {
	root := r.URL.Query().Get("workspace")
	if root == "" {
		root = s.deps.Workspace
	}
	return agentloop.NewToolStore(root)
}

func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	manifests, err := s.toolStore(r).List()
	if manifests == nil {
		manifests = []agentloop.ToolManifest{}
	}
	resp := map[string]any{"tools": manifests}
	if err != nil {
		s.logger.Warn("stored tools unreadable", "error", err)
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) saveTool(w http.ResponseWriter, r *http.Request) {
	var m agentloop.ToolManifest
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := m.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.toolStore(r).Save(m); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) clearTemporaryTools(w http.ResponseWriter, r *http.Request) {
	removed, err := s.toolStore(r).ClearTemporary()
	if removed == nil {
		removed = []string{}
	}
	resp := map[string]any{"removed": removed}
	if err != nil {
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) selectFiles(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Query == "" {
		writeJSONError(w, http.StatusBadRequest, "query is required")
		return
	}
	s.stream(w, s.deps.Preprocessor.WhichFiles(r.Context(), req))
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req pipeline.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Query == "" {
		writeJSONError(w, http.StatusBadRequest, "query is required")
		return
	}
	s.stream(w, s.deps.Assistant.Chat(r.Context(), req))
}

// stream writes seq as server-sent events. A failed write abandons the
// sequence, which stops the producer.
func (s *Server) stream(w http.ResponseWriter, seq iter.Seq[events.Event]) {
	sw := events.NewSSEWriter(w)
	if sw == nil {
		writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	for ev := range seq {
		if err := sw.Send(ev); err != nil {
			s.logger.Debug("stream closed by client", "error", err)
			return
		}
	}
	_ = sw.Send(events.Event{Type: KindDone})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
