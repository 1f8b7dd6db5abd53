package composite

import (
	"context"

	"github.com/ipscope/ipscope/internal/store"
	"github.com/ipscope/ipscope/pkg/types"
)

// Store fans appends out to several event stores. Queries go to the
// primary only.
type Store struct {
	primary store.EventStore
	others  []store.EventStore
}

func New(primary store.EventStore, others ...store.EventStore) *Store {
	return &Store{primary: primary, others: others}
}

func (s *Store) AppendEvent(ctx context.Context, ev types.Event) error {
	var firstErr error
	if err := s.primary.AppendEvent(ctx, ev); err != nil && firstErr == nil {
		firstErr = err
	}
	for _, o := range s.others {
		if err := o.AppendEvent(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Store) QueryEvents(ctx context.Context, q types.EventQuery) ([]types.Event, error) {
	return s.primary.QueryEvents(ctx, q)
}

func (s *Store) Close() error {
	var firstErr error
	if err := s.primary.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	for _, o := range s.others {
		if err := o.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
