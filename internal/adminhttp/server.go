// Package adminhttp exposes the daemon's operational surface: liveness,
// a small set of gauges, and a read-only rule-catalogue dump for
// operators who'd rather curl than type a chat command.
//
// Grounded on the teacher's internal/handler/lp/delivery.go (a chi-routed
// handler struct taking its dependencies by constructor injection, wired
// into the router the same way the teacher's fx module wires LPHandler).
package adminhttp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/signupwatch/daemon/internal/recency"
	"github.com/signupwatch/daemon/internal/rulestore"
)

// LastEventSource reports the last time the dispatcher processed a
// StreamEventReceived event from the upstream watcher.
type LastEventSource interface {
	LastUpstreamEvent() time.Time
}

// Server wires the admin HTTP surface's dependencies into a chi.Router.
type Server struct {
	store      *rulestore.Store
	recencyBuf *recency.Buffer
	dispatcher LastEventSource
	startedAt  time.Time
	logger     *slog.Logger
}

// New builds a Server. Call Handler to obtain the http.Handler to serve.
func New(store *rulestore.Store, recencyBuf *recency.Buffer, dispatcher LastEventSource, logger *slog.Logger) *Server {
	return &Server{
		store:      store,
		recencyBuf: recencyBuf,
		dispatcher: dispatcher,
		startedAt:  time.Now(),
		logger:     logger,
	}
}

// Handler builds the routed http.Handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/debug/rules", s.handleDebugRules)
	return r
}

type healthzResponse struct {
	Status          string    `json:"status"`
	UptimeSeconds   float64   `json:"uptimeSeconds"`
	LastUpstreamUTC time.Time `json:"lastUpstreamEventUtc,omitzero"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthzResponse{
		Status:        "alive",
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
	}
	if last := s.dispatcher.LastUpstreamEvent(); !last.IsZero() {
		resp.LastUpstreamUTC = last.UTC()
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleMetrics writes a small set of plain-text gauges in a
// Prometheus-exposition-compatible shape. No client library is wired
// because spec.md's Non-goals place a metrics/observability layer outside
// the core's scope; this is a minimal hand-rolled ops surface, not a
// full metrics pipeline.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	rules := s.store.All()
	var enabled, expired int
	now := time.Now()
	for _, rule := range rules {
		if rule.Enabled {
			enabled++
		}
		if rule.IsExpired(now) {
			expired++
		}
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "signupwatch_rules_total %d\n", len(rules))
	fmt.Fprintf(w, "signupwatch_rules_enabled %d\n", enabled)
	fmt.Fprintf(w, "signupwatch_rules_expired %d\n", expired)
	fmt.Fprintf(w, "signupwatch_recency_buffer_size %d\n", s.recencyBuf.Len())
	fmt.Fprintf(w, "signupwatch_uptime_seconds %f\n", time.Since(s.startedAt).Seconds())
}

func (s *Server) handleDebugRules(w http.ResponseWriter, r *http.Request) {
	rules := s.store.All()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(rules); err != nil {
		s.logger.Error("adminhttp: failed to encode rules", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
