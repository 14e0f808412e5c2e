// Package subscription keeps the broker subscription set equal to the
// distinct topic patterns of the routing table.
package subscription

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ibs-source/mqtt-router/internal/log"
	"github.com/ibs-source/mqtt-router/internal/route"
)

// State is the broker connection state as seen by the manager.
type State int32

const (
	// Disconnected means no session exists.
	Disconnected State = iota
	// Connecting means a connection attempt is in progress.
	Connecting
	// Connected means the session is up and subscriptions can be issued.
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Broker is the single MQTT connection the manager drives.
// Only the manager calls these methods.
type Broker interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context, pattern string) error
	Unsubscribe(ctx context.Context, pattern string) error
	IsConnected() bool
	Close() error
}

// Listener receives connection events from the broker.
// Implementations must not be invoked from the broker's network loop.
type Listener interface {
	Connecting()
	Connected()
	Disconnected(err error)
}

// Result reports what one reconcile pass did.
type Result struct {
	Subscribed   []string
	Unsubscribed []string
	Failed       map[string]error
	// Deferred is set when the broker was not connected; the next
	// connection runs a full pass.
	Deferred bool
}

// OK reports whether every desired pattern is subscribed.
func (r Result) OK() bool {
	return !r.Deferred && len(r.Failed) == 0
}

// Manager owns the broker connection state and the current subscription set.
type Manager struct {
	broker           Broker
	routes           route.Store
	subscribeTimeout time.Duration
	log              *log.Logger

	// reconcileMu serializes passes.
	reconcileMu sync.Mutex

	mu    sync.RWMutex
	state State
	// session increments on every Connected; current belongs to it.
	session uint64
	current map[string]struct{}
	baseCtx context.Context
	lastErr error
}

// NewManager creates a manager. subscribeTimeout bounds every
// subscribe and unsubscribe call.
func NewManager(broker Broker, routes route.Store, subscribeTimeout time.Duration, logger *log.Logger) *Manager {
	return &Manager{
		broker:           broker,
		routes:           routes,
		subscribeTimeout: subscribeTimeout,
		log:              logger,
		state:            Disconnected,
		current:          make(map[string]struct{}),
		baseCtx:          context.Background(),
	}
}

// Start enters Connecting and asks the broker to connect in the background.
// The broker keeps retrying; Connected fires once a session is up.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()

	m.Connecting()

	go func() {
		if err := m.broker.Connect(ctx); err != nil {
			m.log.Warn("MQTT connect failed: %v", err)
			m.mu.Lock()
			if m.state != Connected {
				m.state = Disconnected
				m.lastErr = err
			}
			m.mu.Unlock()
		}
	}()
}

// Connecting implements Listener.
func (m *Manager) Connecting() {
	m.mu.Lock()
	m.state = Connecting
	m.mu.Unlock()
	m.log.Info("MQTT connecting")
}

// Connected implements Listener. The broker forgot every subscription,
// so the recorded set is cleared and a full pass runs.
func (m *Manager) Connected() {
	m.mu.Lock()
	m.state = Connected
	m.lastErr = nil
	m.session++
	m.current = make(map[string]struct{})
	ctx := m.baseCtx
	m.mu.Unlock()

	m.log.Info("MQTT connected, resubscribing")

	res, err := m.Reconcile(ctx)
	if err != nil {
		m.log.Error("Reconcile after connect failed: %v", err)
		return
	}
	m.logResult(res)
}

// Disconnected implements Listener. paho delivers connection events on
// separate goroutines, so a loss reported after the reconnect already
// completed is ignored.
func (m *Manager) Disconnected(err error) {
	if m.broker.IsConnected() {
		m.log.Debug("Ignoring stale MQTT disconnect: %v", err)
		return
	}
	m.mu.Lock()
	m.state = Disconnected
	m.lastErr = err
	m.mu.Unlock()
	m.log.Warn("MQTT disconnected: %v", err)
}

// Reconcile subscribes to patterns present in the routing table and not yet
// subscribed, and unsubscribes from patterns no longer present.
// A failed subscribe is reported in the result and left for the next pass.
// A pass overtaken by a new session stops early; that session runs its own.
func (m *Manager) Reconcile(ctx context.Context) (Result, error) {
	m.reconcileMu.Lock()
	defer m.reconcileMu.Unlock()

	routes, err := m.routes.List(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list routes: %w", err)
	}
	desired := route.Patterns(routes)

	m.mu.RLock()
	state, session := m.state, m.session
	m.mu.RUnlock()
	if state != Connected {
		return Result{Deferred: true}, nil
	}

	wanted := make(map[string]struct{}, len(desired))
	for _, p := range desired {
		wanted[p] = struct{}{}
	}

	var res Result
	for _, p := range desired {
		if m.isCurrent(p) {
			continue
		}
		if err := m.subscribe(ctx, p); err != nil {
			if res.Failed == nil {
				res.Failed = make(map[string]error)
			}
			res.Failed[p] = err
			m.log.Warn("Subscribe to %s failed: %v", p, err)
			continue
		}
		if !m.setCurrent(session, p, true) {
			m.log.Debug("Session changed while subscribing to %s", p)
			return res, nil
		}
		res.Subscribed = append(res.Subscribed, p)
	}

	for _, p := range m.Active() {
		if _, ok := wanted[p]; ok {
			continue
		}
		if err := m.unsubscribe(ctx, p); err != nil {
			m.log.Warn("Unsubscribe from %s failed: %v", p, err)
		}
		if !m.setCurrent(session, p, false) {
			return res, nil
		}
		res.Unsubscribed = append(res.Unsubscribed, p)
	}

	return res, nil
}

func (m *Manager) subscribe(ctx context.Context, pattern string) error {
	ctx, cancel := context.WithTimeout(ctx, m.subscribeTimeout)
	defer cancel()
	return m.broker.Subscribe(ctx, pattern)
}

func (m *Manager) unsubscribe(ctx context.Context, pattern string) error {
	ctx, cancel := context.WithTimeout(ctx, m.subscribeTimeout)
	defer cancel()
	return m.broker.Unsubscribe(ctx, pattern)
}

func (m *Manager) isCurrent(pattern string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.current[pattern]
	return ok
}

// setCurrent records a subscribe or unsubscribe made during session.
// It returns false, recording nothing, when session is no longer current.
func (m *Manager) setCurrent(session uint64, pattern string, on bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session != m.session {
		return false
	}
	if on {
		m.current[pattern] = struct{}{}
	} else {
		delete(m.current, pattern)
	}
	return true
}

// Active returns the currently subscribed patterns, sorted.
func (m *Manager) Active() []string {
	m.mu.RLock()
	out := make([]string, 0, len(m.current))
	for p := range m.current {
		out = append(out, p)
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out
}

// State returns the connection state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// LastError returns the error of the last disconnect or failed connect.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Close disconnects from the broker.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.state = Disconnected
	m.session++
	m.current = make(map[string]struct{})
	m.mu.Unlock()
	return m.broker.Close()
}

func (m *Manager) logResult(res Result) {
	if res.Deferred {
		m.log.Info("Subscription sync deferred until connected")
		return
	}
	if len(res.Subscribed) > 0 || len(res.Unsubscribed) > 0 {
		m.log.Info("Subscriptions synced: +%v -%v", res.Subscribed, res.Unsubscribed)
	}
	if len(res.Failed) > 0 {
		m.log.Warn("%d subscriptions pending retry", len(res.Failed))
	}
}
