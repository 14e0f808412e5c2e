// Package router fans inbound broker messages out to storage, the activity
// buffer and live observers.
package router

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ibs-source/mqtt-router/internal/log"
	"github.com/ibs-source/mqtt-router/internal/message"
	"github.com/ibs-source/mqtt-router/internal/route"
	"github.com/ibs-source/mqtt-router/internal/storage"
)

// RouteLister reads the routing table.
type RouteLister interface {
	List(ctx context.Context) ([]route.Route, error)
}

// Recorder keeps recent activity.
type Recorder interface {
	Append(a message.Activity)
}

// Publisher broadcasts to live observers.
type Publisher interface {
	Publish(msg message.ObserverMessage)
}

// Stats is a snapshot of routing counters.
type Stats struct {
	Received         uint64            `json:"received"`
	Matched          uint64            `json:"matched"`
	Unmatched        uint64            `json:"unmatched"`
	WritesOK         uint64            `json:"writesOk"`
	WritesFailed     uint64            `json:"writesFailed"`
	WritesTimedOut   uint64            `json:"writesTimedOut"`
	InFlight         int64             `json:"inFlight"`
	FailuresByTarget map[string]uint64 `json:"failuresByDestination"`
	LastError        string            `json:"lastError,omitempty"`
}

// Router handles one inbound message at a time per caller; it is safe for
// concurrent use.
type Router struct {
	routes       RouteLister
	writer       storage.Writer
	recorder     Recorder
	publisher    Publisher
	writeTimeout time.Duration
	log          *log.Logger
	now          func() time.Time

	received   atomic.Uint64
	matched    atomic.Uint64
	unmatched  atomic.Uint64
	writesOK   atomic.Uint64
	writesFail atomic.Uint64
	writesTO   atomic.Uint64
	inFlight   atomic.Int64

	wg       sync.WaitGroup
	mu       sync.Mutex
	failures map[string]uint64
	lastErr  string
}

// New creates a router. Each storage write is bounded by writeTimeout.
func New(routes RouteLister, writer storage.Writer, recorder Recorder, publisher Publisher,
	writeTimeout time.Duration, logger *log.Logger) *Router {
	return &Router{
		routes:       routes,
		writer:       writer,
		recorder:     recorder,
		publisher:    publisher,
		writeTimeout: writeTimeout,
		log:          logger,
		now:          time.Now,
		failures:     make(map[string]uint64),
	}
}

// OnMessage routes one inbound message. It never returns an error: storage
// failures are logged and counted, and never affect other destinations.
func (r *Router) OnMessage(topic string, raw []byte) {
	observedAt := r.now().UTC()
	payload := message.DecodePayload(raw)
	r.received.Add(1)

	matches := r.match(topic)
	if len(matches) == 0 {
		r.unmatched.Add(1)
	} else {
		r.matched.Add(1)
	}

	r.recorder.Append(message.Activity{Topic: topic, Payload: payload, ObservedAt: observedAt})

	ids := make([]string, 0, len(matches))
	for _, rt := range matches {
		ids = append(ids, rt.ID)
		r.write(rt, message.Record{
			RouteID:    rt.ID,
			Topic:      topic,
			Payload:    payload,
			ObservedAt: observedAt,
		})
	}

	r.publisher.Publish(message.ObserverMessage{
		Topic:           topic,
		Payload:         payload,
		ObservedAt:      observedAt,
		MatchedRouteIDs: ids,
	})
}

// match returns every route whose pattern matches topic. A lookup failure
// counts as no match.
func (r *Router) match(topic string) []route.Route {
	routes, err := r.routes.List(context.Background())
	if err != nil {
		r.log.Warn("Route lookup for %s failed: %v", topic, err)
		r.setLastError(err)
		return nil
	}

	var out []route.Route
	for _, rt := range routes {
		if route.Matches(rt.TopicPattern, topic) {
			out = append(out, rt)
		}
	}
	return out
}

// write persists rec asynchronously with its own deadline.
func (r *Router) write(rt route.Route, rec message.Record) {
	r.wg.Add(1)
	r.inFlight.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.inFlight.Add(-1)

		ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
		defer cancel()

		err := r.writer.Write(ctx, rt.Destination, rec)
		if err == nil && ctx.Err() != nil {
			err = storage.ErrTimeout
		}
		switch {
		case err == nil:
			r.writesOK.Add(1)
			return
		case errors.Is(err, storage.ErrTimeout) || errors.Is(err, context.DeadlineExceeded):
			r.writesTO.Add(1)
		default:
			r.writesFail.Add(1)
		}

		r.log.WarnWithFields(map[string]interface{}{
			"route":       rt.ID,
			"topic":       rec.Topic,
			"destination": rt.Destination.String(),
		}, "Storage write failed: %v", err)
		r.recordFailure(rt.Destination, err)
	}()
}

func (r *Router) recordFailure(dest route.Destination, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[dest.String()]++
	r.lastErr = err.Error()
}

func (r *Router) setLastError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastErr = err.Error()
}

// Stats returns a snapshot of the routing counters.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	failures := make(map[string]uint64, len(r.failures))
	for k, v := range r.failures {
		failures[k] = v
	}
	lastErr := r.lastErr
	r.mu.Unlock()

	return Stats{
		Received:         r.received.Load(),
		Matched:          r.matched.Load(),
		Unmatched:        r.unmatched.Load(),
		WritesOK:         r.writesOK.Load(),
		WritesFailed:     r.writesFail.Load(),
		WritesTimedOut:   r.writesTO.Load(),
		InFlight:         r.inFlight.Load(),
		FailuresByTarget: failures,
		LastError:        lastErr,
	}
}

// Wait blocks until in-flight writes finish or ctx ends.
func (r *Router) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
