package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ibs-source/mqtt-router/internal/admin"
	"github.com/ibs-source/mqtt-router/internal/message"
	"github.com/ibs-source/mqtt-router/internal/route"
	"github.com/ibs-source/mqtt-router/internal/router"
	"github.com/ibs-source/mqtt-router/internal/subscription"
)

const healthTimeout = 2 * time.Second

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type createRouteRequest struct {
	TopicPattern string `json:"topicPattern"`
	Namespace    string `json:"namespace"`
	Collection   string `json:"collection"`
}

type syncResponse struct {
	Subscribed   []string          `json:"subscribed"`
	Unsubscribed []string          `json:"unsubscribed"`
	Failed       map[string]string `json:"failed,omitempty"`
	Deferred     bool              `json:"deferred"`
	Error        string            `json:"error,omitempty"`
}

type routeResponse struct {
	Success      bool          `json:"success"`
	Message      string        `json:"message"`
	Route        route.Route   `json:"route"`
	Subscription *syncResponse `json:"subscription,omitempty"`
}

type collectionCount struct {
	Collection string `json:"collection"`
	Count      int64  `json:"count"`
}

type namespaceCollections struct {
	Namespace   string            `json:"namespace"`
	Collections []collectionCount `json:"collections"`
}

type brokerStats struct {
	State         string   `json:"state"`
	Subscriptions []string `json:"subscriptions"`
	LastError     string   `json:"lastError,omitempty"`
}

type observerStats struct {
	Count     int    `json:"count"`
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
}

type statsResponse struct {
	Router    router.Stats  `json:"router"`
	Broker    brokerStats   `json:"broker"`
	Observers observerStats `json:"observers"`
}

func newSyncResponse(out admin.Outcome) *syncResponse {
	sr := &syncResponse{
		Subscribed:   nonNil(out.Sync.Subscribed),
		Unsubscribed: nonNil(out.Sync.Unsubscribed),
		Deferred:     out.Sync.Deferred,
	}
	if len(out.Sync.Failed) > 0 {
		sr.Failed = make(map[string]string, len(out.Sync.Failed))
		for p, err := range out.Sync.Failed {
			sr.Failed[p] = err.Error()
		}
	}
	if out.SyncErr != nil {
		sr.Error = out.SyncErr.Error()
	}
	return sr
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func syncMessage(action string, sync subscription.Result, syncErr error) string {
	switch {
	case syncErr != nil:
		return fmt.Sprintf("Route %s; subscription sync failed and will be retried.", action)
	case sync.Deferred:
		return fmt.Sprintf("Route %s; broker offline, subscriptions will sync on reconnect.", action)
	case len(sync.Failed) > 0:
		return fmt.Sprintf("Route %s; subscription failed and will be retried.", action)
	default:
		return fmt.Sprintf("Route %s successfully.", action)
	}
}

// listRoutes handles GET /api/routes
func (s *Server) listRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := s.deps.Admin.ListRoutes(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to retrieve routes.", err)
		return
	}
	if routes == nil {
		routes = []route.Route{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "routes": routes})
}

// createRoute handles POST /api/routes
func (s *Server) createRoute(w http.ResponseWriter, r *http.Request) {
	var req createRouteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body.", err)
		return
	}

	var missing []string
	if req.TopicPattern == "" {
		missing = append(missing, "topicPattern")
	}
	if req.Namespace == "" {
		missing = append(missing, "namespace")
	}
	if req.Collection == "" {
		missing = append(missing, "collection")
	}
	if len(missing) > 0 {
		s.writeError(w, http.StatusBadRequest, "Missing required fields: "+strings.Join(missing, ", "), nil)
		return
	}

	dest := route.Destination{Namespace: req.Namespace, Collection: req.Collection}
	out, err := s.deps.Admin.AddRoute(r.Context(), req.TopicPattern, dest)
	switch {
	case errors.Is(err, route.ErrInvalidRoute):
		s.writeError(w, http.StatusBadRequest, "Invalid route.", err)
		return
	case errors.Is(err, route.ErrDuplicateRoute):
		s.writeError(w, http.StatusConflict,
			fmt.Sprintf("Route with topic pattern '%s' already exists.", req.TopicPattern), err)
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, "Failed to create route.", err)
		return
	}

	s.writeJSON(w, http.StatusCreated, routeResponse{
		Success:      true,
		Message:      syncMessage("created", out.Sync, out.SyncErr),
		Route:        out.Route,
		Subscription: newSyncResponse(out),
	})
}

// deleteRoute handles DELETE /api/routes/{id}
func (s *Server) deleteRoute(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	out, err := s.deps.Admin.RemoveRoute(r.Context(), id)
	switch {
	case errors.Is(err, route.ErrRouteNotFound):
		s.writeError(w, http.StatusNotFound, "Route not found.", nil)
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, "Failed to delete route.", err)
		return
	}

	s.writeJSON(w, http.StatusOK, routeResponse{
		Success:      true,
		Message:      syncMessage("deleted", out.Sync, out.SyncErr),
		Route:        out.Route,
		Subscription: newSyncResponse(out),
	})
}

// recentActivity handles GET /api/logs
func (s *Server) recentActivity(w http.ResponseWriter, _ *http.Request) {
	items := s.deps.Activity.Snapshot()
	if items == nil {
		items = []message.Activity{}
	}
	s.writeJSON(w, http.StatusOK, items)
}

// collections handles GET /api/collections
func (s *Server) collections(w http.ResponseWriter, r *http.Request) {
	cols, err := s.deps.Collections.Collections(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to list collections.", err)
		return
	}

	out := []namespaceCollections{}
	for _, c := range cols {
		if len(out) == 0 || out[len(out)-1].Namespace != c.Namespace {
			out = append(out, namespaceCollections{Namespace: c.Namespace})
		}
		last := &out[len(out)-1]
		last.Collections = append(last.Collections, collectionCount{Collection: c.Name, Count: c.Count})
	}
	s.writeJSON(w, http.StatusOK, out)
}

// stats handles GET /api/stats
func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	broker := brokerStats{
		State:         s.deps.Subscriptions.State().String(),
		Subscriptions: s.deps.Subscriptions.Active(),
	}
	if err := s.deps.Subscriptions.LastError(); err != nil {
		broker.LastError = err.Error()
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		Router: s.deps.Router.Stats(),
		Broker: broker,
		Observers: observerStats{
			Count:     s.deps.Hub.Count(),
			Published: s.deps.Hub.Published(),
			Dropped:   s.deps.Hub.Dropped(),
		},
	})
}

// health handles GET /healthz. The store must answer a ping; the broker
// state is informational since the client reconnects on its own.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{
		"status": "ok",
		"broker": s.deps.Subscriptions.State().String(),
		"store":  "ok",
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := s.deps.Store.Ping(ctx); err != nil {
		resp["status"] = "unavailable"
		resp["store"] = err.Error()
		s.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}
