// Package hotpath coordinates the broker to storage pipeline hot path.
package hotpath

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ibs-source/mqtt-router/internal/config"
	"github.com/ibs-source/mqtt-router/internal/log"
	"github.com/ibs-source/mqtt-router/internal/router"
	"github.com/ibs-source/mqtt-router/internal/subscription"
)

// Router processes one inbound message.
type Router interface {
	OnMessage(topic string, raw []byte)
	Stats() router.Stats
	Wait(ctx context.Context) error
}

// Subscriptions is the subscription manager as seen by the resync loop.
type Subscriptions interface {
	Reconcile(ctx context.Context) (subscription.Result, error)
	State() subscription.State
	Active() []string
}

// Observers reports observer hub counters.
type Observers interface {
	Count() int
	Dropped() uint64
}

type inbound struct {
	topic   string
	payload []byte
}

// HotPath orchestrates the broker→router pipeline
type HotPath struct {
	router          Router
	subs            Subscriptions
	observers       Observers
	msgChan         chan inbound
	resyncTicker    *time.Ticker
	statsTicker     *time.Ticker
	workers         int
	shutdownTimeout time.Duration
	log             *log.Logger

	// mu guards accepting and the close of msgChan against Enqueue.
	mu        sync.RWMutex
	accepting bool
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// New creates a new hot path orchestrator
func New(r Router, subs Subscriptions, observers Observers, cfg *config.RouterConfig, logger *log.Logger) *HotPath {
	return &HotPath{
		router:          r,
		subs:            subs,
		observers:       observers,
		msgChan:         make(chan inbound, cfg.BufferCapacity),
		resyncTicker:    time.NewTicker(cfg.ResyncInterval),
		statsTicker:     time.NewTicker(cfg.StatsInterval),
		workers:         cfg.Workers,
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             logger,
		accepting:       true,
		stopCh:          make(chan struct{}),
	}
}

// Enqueue hands an inbound message to the workers. It blocks while the
// queue is full and returns false once shutdown has begun.
func (hp *HotPath) Enqueue(topic string, payload []byte) bool {
	hp.mu.RLock()
	defer hp.mu.RUnlock()

	if !hp.accepting {
		return false
	}

	select {
	case hp.msgChan <- inbound{topic: topic, payload: payload}:
		return true
	case <-hp.stopCh:
		return false
	}
}

// QueueDepth returns the number of queued messages.
func (hp *HotPath) QueueDepth() int {
	return len(hp.msgChan)
}

// startLoop starts a loop goroutine and reports non-canceled errors
func (hp *HotPath) startLoop(
	ctx context.Context,
	wg *sync.WaitGroup,
	name string,
	loop func(context.Context) error,
	errCh chan<- error,
) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("%s loop error: %w", name, err)
		}
	}()
}

// Run starts the workers and background loops and blocks until ctx ends.
// Queued messages are drained and in-flight writes awaited before it returns.
func (hp *HotPath) Run(ctx context.Context) error {
	hp.log.Info("Starting hot path orchestrator")

	var loops, workers sync.WaitGroup
	// Buffer size for error channel to accommodate all loops
	errCh := make(chan error, 2+hp.workers)

	hp.startLoop(ctx, &loops, "resync", hp.resyncLoop, errCh)
	hp.startLoop(ctx, &loops, "stats", hp.statsLoop, errCh)

	hp.log.Info("Starting %d routing workers", hp.workers)
	for i := 0; i < hp.workers; i++ {
		hp.startLoop(ctx, &workers, fmt.Sprintf("route-%d", i), hp.routeLoop, errCh)
	}

	var runErr error
	select {
	case <-ctx.Done():
		hp.log.Info("Shutting down hot path orchestrator")
		runErr = ctx.Err()
	case err := <-errCh:
		hp.log.Error("Hot path error: %v", err)
		runErr = err
	}

	hp.stopAccepting()
	hp.resyncTicker.Stop()
	hp.statsTicker.Stop()
	workers.Wait()
	loops.Wait()

	hp.log.Info("Queue drained, waiting for in-flight writes")
	waitCtx, cancel := context.WithTimeout(context.Background(), hp.shutdownTimeout)
	defer cancel()
	if err := hp.router.Wait(waitCtx); err != nil {
		hp.log.Warn("In-flight writes still pending at shutdown: %v", err)
	}

	hp.logStats()
	return runErr
}

// stopAccepting refuses new messages and closes the queue so workers drain it.
func (hp *HotPath) stopAccepting() {
	hp.stopOnce.Do(func() {
		close(hp.stopCh)
		hp.mu.Lock()
		hp.accepting = false
		close(hp.msgChan)
		hp.mu.Unlock()
	})
}

// routeLoop hands queued messages to the router until the queue is closed.
// It ignores ctx so that queued messages are still routed during shutdown.
func (hp *HotPath) routeLoop(_ context.Context) error {
	for msg := range hp.msgChan {
		hp.router.OnMessage(msg.topic, msg.payload)
	}
	return nil
}

// resyncLoop periodically reconciles to retry failed subscriptions
func (hp *HotPath) resyncLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-hp.resyncTicker.C:
			res, err := hp.subs.Reconcile(ctx)
			if err != nil {
				hp.log.Error("Failed to resync subscriptions: %v", err)
				continue
			}
			if len(res.Subscribed) > 0 || len(res.Unsubscribed) > 0 {
				hp.log.Info("Resync: subscribed %v, unsubscribed %v", res.Subscribed, res.Unsubscribed)
			}
			if len(res.Failed) > 0 {
				hp.log.Warn("Resync: %d subscriptions still failing", len(res.Failed))
			}
		}
	}
}

// statsLoop periodically logs pipeline statistics
func (hp *HotPath) statsLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-hp.statsTicker.C:
			hp.logStats()
		}
	}
}

func (hp *HotPath) logStats() {
	s := hp.router.Stats()
	hp.log.InfoWithFields(map[string]interface{}{
		"received":         s.Received,
		"matched":          s.Matched,
		"unmatched":        s.Unmatched,
		"writes_ok":        s.WritesOK,
		"writes_failed":    s.WritesFailed,
		"writes_timed_out": s.WritesTimedOut,
		"in_flight":        s.InFlight,
		"queue":            hp.QueueDepth(),
		"observers":        hp.observers.Count(),
		"observer_drops":   hp.observers.Dropped(),
		"broker":           hp.subs.State().String(),
		"subscriptions":    len(hp.subs.Active()),
	}, "Pipeline statistics")
}

// Close cleans up resources
func (hp *HotPath) Close() error {
	hp.resyncTicker.Stop()
	hp.statsTicker.Stop()
	return nil
}
