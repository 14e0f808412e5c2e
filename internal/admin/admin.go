// Package admin mutates the routing table and keeps broker subscriptions in step.
package admin

import (
	"context"

	"github.com/ibs-source/mqtt-router/internal/log"
	"github.com/ibs-source/mqtt-router/internal/route"
	"github.com/ibs-source/mqtt-router/internal/subscription"
)

// Reconciler brings broker subscriptions in line with the routing table.
type Reconciler interface {
	Reconcile(ctx context.Context) (subscription.Result, error)
}

// Outcome is the result of a route mutation. The mutation is durable even
// when Sync reports failures or SyncErr is set; the next reconcile retries.
type Outcome struct {
	Route   route.Route
	Sync    subscription.Result
	SyncErr error
}

// Admin is the administrative entry point for routes.
type Admin struct {
	store      route.Store
	reconciler Reconciler
	log        *log.Logger
}

// New creates an Admin.
func New(store route.Store, reconciler Reconciler, logger *log.Logger) *Admin {
	return &Admin{store: store, reconciler: reconciler, log: logger}
}

// ListRoutes returns every route.
func (a *Admin) ListRoutes(ctx context.Context) ([]route.Route, error) {
	return a.store.List(ctx)
}

// AddRoute stores a new route and reconciles subscriptions before returning.
func (a *Admin) AddRoute(ctx context.Context, topicPattern string, dest route.Destination) (Outcome, error) {
	if err := route.Validate(topicPattern, dest); err != nil {
		return Outcome{}, err
	}

	r, err := a.store.Create(ctx, topicPattern, dest)
	if err != nil {
		return Outcome{}, err
	}
	a.log.Info("Route %s added: %s -> %s", r.ID, r.TopicPattern, r.Destination)

	return a.sync(ctx, r), nil
}

// RemoveRoute deletes a route and reconciles subscriptions before returning.
func (a *Admin) RemoveRoute(ctx context.Context, id string) (Outcome, error) {
	r, err := a.store.Delete(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	a.log.Info("Route %s removed: %s", r.ID, r.TopicPattern)

	return a.sync(ctx, r), nil
}

func (a *Admin) sync(ctx context.Context, r route.Route) Outcome {
	res, err := a.reconciler.Reconcile(ctx)
	if err != nil {
		a.log.Warn("Subscription sync after change to route %s failed: %v", r.ID, err)
	}
	return Outcome{Route: r, Sync: res, SyncErr: err}
}
