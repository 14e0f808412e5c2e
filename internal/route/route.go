// Package route defines routing rules, their validation and MQTT topic matching.
package route

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateRoute is returned when a route with the same topic pattern exists.
	ErrDuplicateRoute = errors.New("duplicate route")
	// ErrRouteNotFound is returned when no route has the requested id.
	ErrRouteNotFound = errors.New("route not found")
	// ErrInvalidRoute is returned for malformed patterns or destinations.
	ErrInvalidRoute = errors.New("invalid route")
)

// Destination identifies where matched messages are written.
type Destination struct {
	Namespace  string `json:"namespace"`
	Collection string `json:"collection"`
}

// String renders the destination as namespace/collection.
func (d Destination) String() string {
	return d.Namespace + "/" + d.Collection
}

// Route maps a topic pattern to a storage destination.
type Route struct {
	ID           string      `json:"id"`
	TopicPattern string      `json:"topicPattern"`
	Destination  Destination `json:"destination"`
}

// Store is the durable routing table.
// Create must fail with ErrDuplicateRoute when the pattern already exists,
// atomically with respect to concurrent Create calls.
// Delete must fail with ErrRouteNotFound for unknown ids.
type Store interface {
	List(ctx context.Context) ([]Route, error)
	Create(ctx context.Context, topicPattern string, dest Destination) (Route, error)
	Delete(ctx context.Context, id string) (Route, error)
}

// destinationSeparator joins destination segments in storage keys, so it may
// not appear inside a namespace or collection name.
const destinationSeparator = ":"

// Validate checks a pattern and destination before they are stored.
func Validate(topicPattern string, dest Destination) error {
	if err := ValidatePattern(topicPattern); err != nil {
		return err
	}
	if err := validateName("namespace", dest.Namespace); err != nil {
		return err
	}
	return validateName("collection", dest.Collection)
}

func validateName(field, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrInvalidRoute, field)
	}
	if strings.Contains(name, destinationSeparator) {
		return fmt.Errorf("%w: %s cannot contain %q", ErrInvalidRoute, field, destinationSeparator)
	}
	return nil
}

// Patterns returns the distinct topic patterns of routes.
func Patterns(routes []Route) []string {
	seen := make(map[string]struct{}, len(routes))
	patterns := make([]string, 0, len(routes))
	for _, r := range routes {
		if _, ok := seen[r.TopicPattern]; ok {
			continue
		}
		seen[r.TopicPattern] = struct{}{}
		patterns = append(patterns, r.TopicPattern)
	}
	return patterns
}
