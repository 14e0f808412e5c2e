package route

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. It does not survive restarts.
type MemoryStore struct {
	mu      sync.RWMutex
	routes  map[string]Route
	byTopic map[string]string
	order   []string
}

// NewMemoryStore creates an empty in-memory routing table.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		routes:  make(map[string]Route),
		byTopic: make(map[string]string),
	}
}

// List returns routes in creation order.
func (s *MemoryStore) List(_ context.Context) ([]Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Route, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.routes[id])
	}
	return out, nil
}

// Create stores a new route unless the pattern is already taken.
func (s *MemoryStore) Create(_ context.Context, topicPattern string, dest Destination) (Route, error) {
	if err := Validate(topicPattern, dest); err != nil {
		return Route{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byTopic[topicPattern]; exists {
		return Route{}, ErrDuplicateRoute
	}

	r := Route{ID: uuid.NewString(), TopicPattern: topicPattern, Destination: dest}
	s.routes[r.ID] = r
	s.byTopic[topicPattern] = r.ID
	s.order = append(s.order, r.ID)
	return r, nil
}

// Delete removes the route with the given id.
func (s *MemoryStore) Delete(_ context.Context, id string) (Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.routes[id]
	if !ok {
		return Route{}, ErrRouteNotFound
	}
	delete(s.routes, id)
	delete(s.byTopic, r.TopicPattern)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return r, nil
}

var _ Store = (*MemoryStore)(nil)
