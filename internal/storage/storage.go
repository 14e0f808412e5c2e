// Package storage defines the contract between the router and the destination store.
package storage

import (
	"context"
	"errors"

	"github.com/ibs-source/mqtt-router/internal/message"
	"github.com/ibs-source/mqtt-router/internal/route"
)

var (
	// ErrUnavailable is returned when the store cannot accept the write.
	ErrUnavailable = errors.New("storage unavailable")
	// ErrTimeout is returned when a write exceeds its deadline.
	ErrTimeout = errors.New("storage timeout")
)

// Writer persists a record into a destination.
type Writer interface {
	Write(ctx context.Context, dest route.Destination, rec message.Record) error
}

// Collection describes one destination and how many records it holds.
type Collection struct {
	Namespace string `json:"namespace"`
	Name      string `json:"collection"`
	Count     int64  `json:"count"`
}

// Enumerator lists the destinations that have received records.
type Enumerator interface {
	Collections(ctx context.Context) ([]Collection, error)
}
