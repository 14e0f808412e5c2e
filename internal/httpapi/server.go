// Package httpapi exposes route administration, diagnostics and the live
// observer stream over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ibs-source/mqtt-router/internal/admin"
	"github.com/ibs-source/mqtt-router/internal/config"
	"github.com/ibs-source/mqtt-router/internal/log"
	"github.com/ibs-source/mqtt-router/internal/message"
	"github.com/ibs-source/mqtt-router/internal/observer"
	"github.com/ibs-source/mqtt-router/internal/route"
	"github.com/ibs-source/mqtt-router/internal/router"
	"github.com/ibs-source/mqtt-router/internal/storage"
	"github.com/ibs-source/mqtt-router/internal/subscription"
)

// RouteAdmin mutates and lists routes.
type RouteAdmin interface {
	ListRoutes(ctx context.Context) ([]route.Route, error)
	AddRoute(ctx context.Context, topicPattern string, dest route.Destination) (admin.Outcome, error)
	RemoveRoute(ctx context.Context, id string) (admin.Outcome, error)
}

// ActivitySource returns recent messages, most recent first.
type ActivitySource interface {
	Snapshot() []message.Activity
}

// RouterStats reports routing counters.
type RouterStats interface {
	Stats() router.Stats
}

// SubscriptionStatus reports the broker connection and subscription set.
type SubscriptionStatus interface {
	State() subscription.State
	Active() []string
	LastError() error
}

// ObserverHub registers live observers.
type ObserverHub interface {
	Register() *observer.Observer
	Unregister(o *observer.Observer)
	Count() int
	Dropped() uint64
	Published() uint64
}

// Pinger checks that the backing store answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the handlers read from.
type Deps struct {
	Admin         RouteAdmin
	Activity      ActivitySource
	Collections   storage.Enumerator
	Router        RouterStats
	Subscriptions SubscriptionStatus
	Hub           ObserverHub
	Store         Pinger
}

// Server is the HTTP API server
type Server struct {
	deps         Deps
	pingInterval time.Duration
	server       *http.Server
	log          *log.Logger
}

// NewServer creates a new HTTP API server
func NewServer(cfg *config.HTTPConfig, deps Deps, logger *log.Logger) *Server {
	s := &Server{
		deps:         deps,
		pingInterval: cfg.PingInterval,
		log:          logger,
	}

	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/routes", s.listRoutes)
	mux.HandleFunc("POST /api/routes", s.createRoute)
	mux.HandleFunc("DELETE /api/routes/{id}", s.deleteRoute)

	mux.HandleFunc("GET /api/logs", s.recentActivity)
	mux.HandleFunc("GET /api/collections", s.collections)
	mux.HandleFunc("GET /api/stats", s.stats)
	mux.HandleFunc("GET /healthz", s.health)

	mux.HandleFunc("GET /ws", s.observe)

	return s.recovery(s.logging(mux))
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("HTTP API listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// recovery turns handler panics into 500 responses
func (s *Server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic serving %s %s: %v", r.Method, r.URL.Path, rec)
				s.writeError(w, http.StatusInternalServerError, "Internal server error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the status code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logging logs every request at debug level. /ws is passed through
// unwrapped because the upgrade needs the underlying http.Hijacker.
func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.DebugWithFields(map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		}, "HTTP request")
	})
}

// writeError writes a {"success":false} response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, msg string, err error) {
	resp := errorResponse{Success: false, Message: msg}
	if err != nil {
		resp.Error = err.Error()
	}
	s.writeJSON(w, statusCode, resp)
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("failed to encode response: %v", err)
	}
}
