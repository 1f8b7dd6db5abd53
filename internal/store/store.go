// Package store defines the audit event persistence contract.
package store

import (
	"context"

	"github.com/ipscope/ipscope/pkg/types"
)

type EventStore interface {
	AppendEvent(ctx context.Context, ev types.Event) error
	QueryEvents(ctx context.Context, q types.EventQuery) ([]types.Event, error)
	Close() error
}

type noopStore struct{}

func (noopStore) AppendEvent(context.Context, types.Event) error { return nil }

func (noopStore) QueryEvents(context.Context, types.EventQuery) ([]types.Event, error) {
	return []types.Event{}, nil
}

func (noopStore) Close() error { return nil }

// Noop returns a store that discards appends and answers queries with an
// empty result. Used when auditing is disabled.
func Noop() EventStore { return noopStore{} }
