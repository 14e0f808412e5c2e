package subscription

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ibs-source/mqtt-router/internal/log"
	"github.com/ibs-source/mqtt-router/internal/route"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRejected = errors.New("rejected")

type fakeBroker struct {
	mu           sync.Mutex
	subscribed   map[string]bool
	subCalls     []string
	unsubCalls   []string
	failSub      map[string]bool
	connectErr   error
	connectCalls int
	connected    bool
	closed       bool

	// hold, when set, parks the next Subscribe until it is closed;
	// entered is closed once that Subscribe has started.
	hold    chan struct{}
	entered chan struct{}
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{subscribed: make(map[string]bool), failSub: make(map[string]bool)}
}

func (b *fakeBroker) Connect(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connectCalls++
	return b.connectErr
}

func (b *fakeBroker) Subscribe(_ context.Context, pattern string) error {
	b.mu.Lock()
	hold := b.hold
	b.hold = nil
	b.mu.Unlock()
	if hold != nil {
		close(b.entered)
		<-hold
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subCalls = append(b.subCalls, pattern)
	if b.failSub[pattern] {
		return errRejected
	}
	b.subscribed[pattern] = true
	return nil
}

func (b *fakeBroker) Unsubscribe(_ context.Context, pattern string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsubCalls = append(b.unsubCalls, pattern)
	delete(b.subscribed, pattern)
	return nil
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBroker) setConnected(on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = on
}

func (b *fakeBroker) holdNextSubscribe() (release func(), entered <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hold = make(chan struct{})
	b.entered = make(chan struct{})
	return func() { close(b.hold) }, b.entered
}

func (b *fakeBroker) subscribeCalls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.subCalls...)
}

func (b *fakeBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBroker) setFail(pattern string, fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failSub[pattern] = fail
}

func (b *fakeBroker) subCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subCalls)
}

func newTestManager(t *testing.T) (*Manager, *fakeBroker, *route.MemoryStore) {
	t.Helper()
	broker := newFakeBroker()
	store := route.NewMemoryStore()
	m := NewManager(broker, store, time.Second, log.NewWithOutput(io.Discard, "error"))
	return m, broker, store
}

func dest(coll string) route.Destination {
	return route.Destination{Namespace: "ns", Collection: coll}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
}

func TestReconcile_DeferredWhileDisconnected(t *testing.T) {
	m, broker, store := newTestManager(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "a/b", dest("x"))
	require.NoError(t, err)

	res, err := m.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, res.Deferred)
	assert.False(t, res.OK())
	assert.Empty(t, m.Active())
	assert.Equal(t, 0, broker.subCount())
}

func TestConnected_SubscribesAllPatterns(t *testing.T) {
	m, broker, store := newTestManager(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "a/+", dest("x"))
	require.NoError(t, err)
	_, err = store.Create(ctx, "b/#", dest("y"))
	require.NoError(t, err)

	m.Connected()

	assert.Equal(t, Connected, m.State())
	assert.Equal(t, []string{"a/+", "b/#"}, m.Active())
	assert.Equal(t, 2, broker.subCount())
}

func TestReconcile_AddAndRemove(t *testing.T) {
	m, broker, store := newTestManager(t)
	ctx := context.Background()
	m.Connected()

	r, err := store.Create(ctx, "a/b", dest("x"))
	require.NoError(t, err)

	res, err := m.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, []string{"a/b"}, res.Subscribed)
	assert.Equal(t, []string{"a/b"}, m.Active())

	// Idempotent when nothing changed.
	res, err = m.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Subscribed)
	assert.Empty(t, res.Unsubscribed)
	assert.Equal(t, 1, broker.subCount())

	_, err = store.Delete(ctx, r.ID)
	require.NoError(t, err)

	res, err = m.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b"}, res.Unsubscribed)
	assert.Empty(t, m.Active())
	assert.Equal(t, []string{"a/b"}, broker.unsubCalls)
}

func TestReconcile_FailedSubscribeKeepsRoute(t *testing.T) {
	m, broker, store := newTestManager(t)
	ctx := context.Background()
	m.Connected()

	broker.setFail("bad/topic", true)
	_, err := store.Create(ctx, "bad/topic", dest("x"))
	require.NoError(t, err)

	res, err := m.Reconcile(ctx)
	require.NoError(t, err)
	require.Contains(t, res.Failed, "bad/topic")
	assert.ErrorIs(t, res.Failed["bad/topic"], errRejected)
	assert.Empty(t, m.Active())

	routes, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, routes, 1, "route survives a failed subscribe")

	// The next pass retries.
	broker.setFail("bad/topic", false)
	res, err = m.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bad/topic"}, res.Subscribed)
	assert.Equal(t, []string{"bad/topic"}, m.Active())
}

func TestReconnect_ResubscribesEverything(t *testing.T) {
	m, broker, store := newTestManager(t)
	ctx := context.Background()

	_, err := store.Create(ctx, "a", dest("x"))
	require.NoError(t, err)
	m.Connected()
	require.Equal(t, 1, broker.subCount())

	m.Disconnected(errors.New("connection reset"))
	assert.Equal(t, Disconnected, m.State())
	assert.EqualError(t, m.LastError(), "connection reset")

	// A route added while disconnected is deferred.
	_, err = store.Create(ctx, "b", dest("y"))
	require.NoError(t, err)
	res, err := m.Reconcile(ctx)
	require.NoError(t, err)
	assert.True(t, res.Deferred)

	m.Connecting()
	assert.Equal(t, Connecting, m.State())
	m.Connected()

	assert.Equal(t, []string{"a", "b"}, m.Active())
	assert.Equal(t, 3, broker.subCount(), "a is subscribed again on the new session")
}

func TestDisconnected_IgnoredWhenSessionAlreadyBack(t *testing.T) {
	m, broker, store := newTestManager(t)
	_, err := store.Create(context.Background(), "a", dest("x"))
	require.NoError(t, err)

	m.Connected()
	broker.setConnected(true)

	// Loss of the previous session delivered after the reconnect.
	m.Disconnected(errors.New("connection reset"))

	assert.Equal(t, Connected, m.State())
	assert.NoError(t, m.LastError())

	res, err := m.Reconcile(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Deferred)
	assert.Equal(t, []string{"a"}, m.Active())
}

func TestConnected_DuringPassResubscribesOnNewSession(t *testing.T) {
	m, broker, store := newTestManager(t)
	ctx := context.Background()
	m.Connected()

	_, err := store.Create(ctx, "a/b", dest("x"))
	require.NoError(t, err)

	release, entered := broker.holdNextSubscribe()
	passDone := make(chan struct{})
	go func() {
		defer close(passDone)
		_, _ = m.Reconcile(ctx)
	}()
	<-entered

	// The session drops and comes back while the subscribe is in flight.
	reconnected := make(chan struct{})
	go func() {
		defer close(reconnected)
		m.Connected()
	}()
	require.Eventually(t, func() bool {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.session == 2
	}, time.Second, 5*time.Millisecond)

	release()
	<-passDone
	<-reconnected

	assert.Equal(t, []string{"a/b", "a/b"}, broker.subscribeCalls(), "new session subscribes again")
	assert.Equal(t, []string{"a/b"}, m.Active())
}

func TestReconcile_SharedPatternAcrossRoutes(t *testing.T) {
	m, broker, _ := newTestManager(t)

	shared := &listStore{routes: []route.Route{
		{ID: "1", TopicPattern: "x/#", Destination: dest("a")},
		{ID: "2", TopicPattern: "x/#", Destination: dest("b")},
	}}
	m.routes = shared
	m.Connected()

	assert.Equal(t, []string{"x/#"}, m.Active())
	assert.Equal(t, 1, broker.subCount())
}

func TestReconcile_ListError(t *testing.T) {
	m, _, _ := newTestManager(t)
	m.routes = &listStore{err: errors.New("redis down")}
	m.Connected()

	_, err := m.Reconcile(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}

func TestReconcile_Concurrent(t *testing.T) {
	m, broker, store := newTestManager(t)
	ctx := context.Background()
	m.Connected()

	for _, p := range []string{"a", "b", "c", "d"} {
		_, err := store.Create(ctx, p, dest(p))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Reconcile(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"a", "b", "c", "d"}, m.Active())
	assert.Equal(t, 4, broker.subCount(), "each pattern subscribed once")
}

func TestStartAndClose(t *testing.T) {
	m, broker, _ := newTestManager(t)
	broker.connectErr = errors.New("refused")

	m.Start(context.Background())

	require.Eventually(t, func() bool {
		return m.State() == Disconnected && m.LastError() != nil
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, m.Close())
	assert.True(t, broker.closed)
}

// listStore is a read-only route.Store returning a fixed table.
type listStore struct {
	routes []route.Route
	err    error
}

func (s *listStore) List(_ context.Context) ([]route.Route, error) { return s.routes, s.err }

func (s *listStore) Create(_ context.Context, _ string, _ route.Destination) (route.Route, error) {
	return route.Route{}, errors.New("read-only")
}

func (s *listStore) Delete(_ context.Context, _ string) (route.Route, error) {
	return route.Route{}, route.ErrRouteNotFound
}
