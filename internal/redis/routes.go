package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/ibs-source/mqtt-router/internal/route"
	"github.com/redis/go-redis/v9"
)

// createScript inserts a route unless its pattern is already indexed.
// KEYS: routes, routes:topics, routes:ids. ARGV: id, pattern, body.
var createScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[2], ARGV[2]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
redis.call('HSET', KEYS[2], ARGV[2], ARGV[1])
redis.call('HSET', KEYS[3], ARGV[1], ARGV[2])
return 1
`)

// deleteScript removes a route and its index entries, returning its body.
// KEYS: routes, routes:topics, routes:ids. ARGV: id.
var deleteScript = redis.NewScript(`
local body = redis.call('HGET', KEYS[1], ARGV[1])
if not body then
	return false
end
local pattern = redis.call('HGET', KEYS[3], ARGV[1])
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[1])
if pattern and redis.call('HGET', KEYS[2], pattern) == ARGV[1] then
	redis.call('HDEL', KEYS[2], pattern)
end
return body
`)

// storedRoute is the persisted form of a route.
type storedRoute struct {
	ID           string `json:"id"`
	TopicPattern string `json:"topicPattern"`
	Namespace    string `json:"namespace"`
	Collection   string `json:"collection"`
}

func (s storedRoute) route() route.Route {
	return route.Route{
		ID:           s.ID,
		TopicPattern: s.TopicPattern,
		Destination:  route.Destination{Namespace: s.Namespace, Collection: s.Collection},
	}
}

// RouteStore is the durable routing table kept in three Redis hashes.
// Mutations run as single Lua scripts so duplicate checks are atomic.
type RouteStore struct {
	c *Client
}

// NewRouteStore returns a route store on top of c.
func NewRouteStore(c *Client) *RouteStore {
	return &RouteStore{c: c}
}

func (s *RouteStore) keys() []string {
	return []string{
		s.c.key("routes"),
		s.c.key("routes", "topics"),
		s.c.key("routes", "ids"),
	}
}

// List returns every stored route.
func (s *RouteStore) List(ctx context.Context) ([]route.Route, error) {
	entries, err := s.c.rdb.HGetAll(ctx, s.c.key("routes")).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}

	routes := make([]route.Route, 0, len(entries))
	for id, body := range entries {
		var sr storedRoute
		if err := json.Unmarshal([]byte(body), &sr); err != nil {
			s.c.log.Warn("Skipping unreadable route %s: %v", id, err)
			continue
		}
		routes = append(routes, sr.route())
	}
	return routes, nil
}

// Create stores a new route, failing with route.ErrDuplicateRoute when the pattern exists.
func (s *RouteStore) Create(ctx context.Context, topicPattern string, dest route.Destination) (route.Route, error) {
	if err := route.Validate(topicPattern, dest); err != nil {
		return route.Route{}, err
	}

	sr := storedRoute{
		ID:           uuid.NewString(),
		TopicPattern: topicPattern,
		Namespace:    dest.Namespace,
		Collection:   dest.Collection,
	}
	body, err := json.Marshal(sr)
	if err != nil {
		return route.Route{}, fmt.Errorf("failed to encode route: %w", err)
	}

	created, err := createScript.Run(ctx, s.c.rdb, s.keys(), sr.ID, sr.TopicPattern, body).Int()
	if err != nil {
		return route.Route{}, fmt.Errorf("failed to create route: %w", err)
	}
	if created == 0 {
		return route.Route{}, fmt.Errorf("%w: %s", route.ErrDuplicateRoute, topicPattern)
	}

	s.c.log.Debug("Stored route %s: %s -> %s", sr.ID, topicPattern, dest)
	return sr.route(), nil
}

// Delete removes the route with the given id and returns it.
func (s *RouteStore) Delete(ctx context.Context, id string) (route.Route, error) {
	body, err := deleteScript.Run(ctx, s.c.rdb, s.keys(), id).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return route.Route{}, fmt.Errorf("%w: %s", route.ErrRouteNotFound, id)
		}
		return route.Route{}, fmt.Errorf("failed to delete route: %w", err)
	}

	var sr storedRoute
	if err := json.Unmarshal([]byte(body), &sr); err != nil {
		return route.Route{}, fmt.Errorf("failed to decode deleted route %s: %w", id, err)
	}

	s.c.log.Debug("Deleted route %s: %s", sr.ID, sr.TopicPattern)
	return sr.route(), nil
}

var _ route.Store = (*RouteStore)(nil)
