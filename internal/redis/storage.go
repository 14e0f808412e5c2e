package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/ibs-source/mqtt-router/internal/message"
	"github.com/ibs-source/mqtt-router/internal/route"
	"github.com/ibs-source/mqtt-router/internal/storage"
	"github.com/redis/go-redis/v9"
)

// Storage writes records into one Redis stream per destination.
type Storage struct {
	c      *Client
	maxLen int64
}

// NewStorage returns a destination writer. A positive maxLen caps every
// stream approximately at that many entries.
func NewStorage(c *Client, maxLen int64) *Storage {
	return &Storage{c: c, maxLen: maxLen}
}

func (s *Storage) streamKey(dest route.Destination) string {
	return s.c.key("data", dest.Namespace, dest.Collection)
}

// Write appends rec to the destination stream and records the destination
// in the namespace index.
func (s *Storage) Write(ctx context.Context, dest route.Destination, rec message.Record) error {
	args := &redis.XAddArgs{
		Stream: s.streamKey(dest),
		Values: []interface{}{
			"topic", rec.Topic,
			"payload", rec.Payload.Bytes(),
			"encoding", rec.Payload.Kind().String(),
			"observedAt", rec.ObservedAt.UTC().Format(time.RFC3339Nano),
			"route", rec.RouteID,
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}

	_, err := s.c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, args)
		pipe.SAdd(ctx, s.c.key("namespaces"), dest.Namespace)
		pipe.SAdd(ctx, s.c.key("namespaces", dest.Namespace), dest.Collection)
		return nil
	})
	if err != nil {
		return classify(ctx, dest, err)
	}
	return nil
}

// classify maps a Redis failure onto the storage error taxonomy.
func classify(ctx context.Context, dest route.Destination, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: write to %s: %v", storage.ErrTimeout, dest, err)
	}
	return fmt.Errorf("%w: write to %s: %v", storage.ErrUnavailable, dest, err)
}

// Collections lists every destination that received at least one record,
// with the current length of its stream.
func (s *Storage) Collections(ctx context.Context) ([]storage.Collection, error) {
	namespaces, err := s.c.rdb.SMembers(ctx, s.c.key("namespaces")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}
	sort.Strings(namespaces)

	var out []storage.Collection
	for _, ns := range namespaces {
		names, err := s.c.rdb.SMembers(ctx, s.c.key("namespaces", ns)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list collections of %s: %w", ns, err)
		}
		sort.Strings(names)

		pipe := s.c.rdb.Pipeline()
		lens := make([]*redis.IntCmd, len(names))
		for i, name := range names {
			lens[i] = pipe.XLen(ctx, s.streamKey(route.Destination{Namespace: ns, Collection: name}))
		}
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to count collections of %s: %w", ns, err)
		}

		for i, name := range names {
			n, _ := lens[i].Result()
			if n == 0 {
				s.pruneCollection(ctx, ns, name)
				continue
			}
			out = append(out, storage.Collection{Namespace: ns, Name: name, Count: n})
		}
	}
	return out, nil
}

var (
	_ storage.Writer     = (*Storage)(nil)
	_ storage.Enumerator = (*Storage)(nil)
)
