// Package httpapi exposes the engine's HTTP surface: the websocket endpoint,
// a room listing for lobby browsers, and diagnostics for operators.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"partyline/server/internal/gateway"
	"partyline/server/internal/net/ws"
	"partyline/server/internal/results"
	"partyline/server/internal/room"
	"partyline/server/internal/telemetry"
	"partyline/server/logging"
)

// MatchLister reads back stored match summaries.
type MatchLister interface {
	RecentMatches(ctx context.Context, limit int) ([]results.MatchRow, error)
}

// Server wires the HTTP routes over the engine's components.
type Server struct {
	registry  *room.Registry
	gateway   *gateway.Gateway
	ws        http.Handler
	counters  *telemetry.Counters
	router    *logging.Router
	matches   MatchLister
	startedAt time.Time
}

// NewServer constructs the HTTP surface. Counters, router and matches may be
// nil; the corresponding diagnostics sections are simply omitted.
func NewServer(registry *room.Registry, gw *gateway.Gateway, ws http.Handler, counters *telemetry.Counters, router *logging.Router, matches MatchLister) *Server {
	return &Server{
		registry:  registry,
		gateway:   gw,
		ws:        ws,
		counters:  counters,
		router:    router,
		matches:   matches,
		startedAt: time.Now(),
	}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// CORS stays wide open: displays and controllers are static pages
	// served from wherever is convenient.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if req.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, req)
		})
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/diagnostics", s.handleDiagnostics)
	r.Get("/rooms", s.handleRooms)
	r.Get("/rooms/{roomID}", s.handleRoom)
	r.Get("/matches", s.handleMatches)
	r.Handle("/ws", s.ws)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.startedAt).Truncate(time.Second).String(),
	})
}

func (s *Server) handleRooms(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"rooms": s.registry.List()})
}

func (s *Server) handleRoom(w http.ResponseWriter, req *http.Request) {
	roomID := chi.URLParam(req, "roomID")
	r, ok := s.registry.Get(roomID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "room not found")
		return
	}
	s.writeJSON(w, http.StatusOK, r.Snapshot())
}

func (s *Server) handleMatches(w http.ResponseWriter, req *http.Request) {
	if s.matches == nil {
		s.writeError(w, http.StatusNotFound, "match history disabled")
		return
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	rows, err := s.matches.RecentMatches(req.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "match history unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"matches": rows})
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, _ *http.Request) {
	diag := map[string]any{
		"uptime":     time.Since(s.startedAt).Truncate(time.Second).String(),
		"goroutines": runtime.NumGoroutine(),
		"sessions":   s.gateway.Bound(),
		"rooms":      s.registry.List(),
	}
	if statser, ok := s.ws.(interface{ SessionStats() []ws.SessionStat }); ok {
		diag["sessionStats"] = statser.SessionStats()
	}
	if s.counters != nil {
		diag["counters"] = s.counters.Snapshot()
	}
	if s.router != nil {
		diag["logging"] = s.router.Stats()
	}
	s.writeJSON(w, http.StatusOK, diag)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
