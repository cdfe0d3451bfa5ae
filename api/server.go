package api

import (
	"bytes"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/danielmmetz/hn-tools/sse"
)

const maxArgsSize = 1 << 20

// Server routes HTTP requests to the tool registry.
type Server struct {
	registry *Registry
	events   *sse.Broker
	auth     *AuthHandler
}

// NewServer wires the routes. With a nil auth handler the tool and event routes are open.
func NewServer(registry *Registry, events *sse.Broker, auth *AuthHandler) *Server {
	return &Server{registry: registry, events: events, auth: auth}
}

func (s *Server) Handler() http.Handler {
	protect := func(h http.Handler) http.Handler { return h }
	if s.auth != nil {
		protect = func(h http.Handler) http.Handler { return RequireBearer(s.auth.Verifier(), h) }
	}

	mux := http.NewServeMux()
	mux.Handle("GET /api/tools", protect(http.HandlerFunc(s.listTools)))
	mux.Handle("POST /api/tools/{name}", protect(http.HandlerFunc(s.callTool)))
	if s.events != nil {
		mux.Handle("GET /api/events", protect(s.events))
	}
	mux.Handle("GET /api/health", NewHealthHandler(s.registry.session(), s.events))
	mux.Handle("GET /metrics", s.registry.deps.Metrics.Handler())
	if s.auth != nil {
		mux.HandleFunc("GET /api/auth/login", s.auth.Login)
		mux.HandleFunc("GET /api/auth/callback", s.auth.Callback)
	}
	return LogRequests(mux)
}

func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]any{"tools": s.registry.Tools()})
}

// callTool answers 200 even when the tool itself fails; the failure is in the result.
func (s *Server) callTool(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, ok := s.registry.tools[name]; !ok {
		http.Error(w, fmt.Sprintf(`{"error":"unknown tool %q"}`, name), http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxArgsSize+1))
	if err != nil {
		http.Error(w, `{"error":"read body"}`, http.StatusBadRequest)
		return
	}
	if len(body) > maxArgsSize {
		http.Error(w, `{"error":"arguments too large"}`, http.StatusRequestEntityTooLarge)
		return
	}
	body = bytes.TrimSpace(body)
	if len(body) > 0 && (!json.Valid(body) || body[0] != '{') {
		http.Error(w, `{"error":"arguments must be a JSON object"}`, http.StatusBadRequest)
		return
	}

	res, _ := s.registry.Call(r.Context(), name, body)
	writeJSON(w, r, res)
}

// writeJSON writes data as JSON. GET responses carry an ETag and honour If-None-Match.
func writeJSON(w http.ResponseWriter, r *http.Request, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodGet {
		etag := fmt.Sprintf(`"%x"`, md5.Sum(body))
		if match := r.Header.Get("If-None-Match"); match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
	}
	w.Write(body)
}
