package route

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDest = Destination{Namespace: "telemetry", Collection: "temperature"}

func TestMemoryStore_CreateAndList(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	r1, err := s.Create(ctx, "sensors/+/temp", testDest)
	require.NoError(t, err)
	assert.NotEmpty(t, r1.ID)
	assert.Equal(t, "sensors/+/temp", r1.TopicPattern)

	r2, err := s.Create(ctx, "a/#", Destination{Namespace: "x", Collection: "y"})
	require.NoError(t, err)

	routes, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Route{r1, r2}, routes)
}

func TestMemoryStore_DuplicateLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	first, err := s.Create(ctx, "a/b", testDest)
	require.NoError(t, err)

	_, err = s.Create(ctx, "a/b", Destination{Namespace: "other", Collection: "other"})
	require.ErrorIs(t, err, ErrDuplicateRoute)

	routes, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Route{first}, routes)
}

func TestMemoryStore_InvalidRoute(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Create(context.Background(), "a/#/b", testDest)
	require.ErrorIs(t, err, ErrInvalidRoute)

	_, err = s.Create(context.Background(), "a/b", Destination{Namespace: "db"})
	require.ErrorIs(t, err, ErrInvalidRoute)
}

func TestValidate_Destination(t *testing.T) {
	tests := []struct {
		name  string
		dest  Destination
		valid bool
	}{
		{"plain", Destination{Namespace: "iot", Collection: "temps"}, true},
		{"dotted", Destination{Namespace: "iot.eu", Collection: "temps-v2"}, true},
		{"empty namespace", Destination{Collection: "temps"}, false},
		{"blank collection", Destination{Namespace: "iot", Collection: " "}, false},
		{"separator in namespace", Destination{Namespace: "a:b", Collection: "c"}, false},
		{"separator in collection", Destination{Namespace: "a", Collection: "b:c"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate("a/b", tt.dest)
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidRoute)
		})
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	r, err := s.Create(ctx, "a/b", testDest)
	require.NoError(t, err)

	removed, err := s.Delete(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r, removed)

	_, err = s.Delete(ctx, r.ID)
	require.ErrorIs(t, err, ErrRouteNotFound)

	// The pattern is free again.
	_, err = s.Create(ctx, "a/b", testDest)
	require.NoError(t, err)
}

func TestMemoryStore_ConcurrentCreateSamePattern(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	var wins atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Create(ctx, "race/topic", testDest); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	routes, _ := s.List(ctx)
	assert.Len(t, routes, 1)
}

func TestPatterns(t *testing.T) {
	routes := []Route{
		{ID: "1", TopicPattern: "a/b"},
		{ID: "2", TopicPattern: "a/#"},
		{ID: "3", TopicPattern: "a/b"},
	}
	assert.Equal(t, []string{"a/b", "a/#"}, Patterns(routes))
}
