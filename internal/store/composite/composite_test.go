package composite

import (
	"context"
	"errors"
	"testing"

	"github.com/ipscope/ipscope/pkg/types"
)

type fakeEventStore struct {
	appendErr error
	appended  int
	closed    bool
}

func (f *fakeEventStore) AppendEvent(ctx context.Context, ev types.Event) error {
	f.appended++
	return f.appendErr
}
func (f *fakeEventStore) QueryEvents(ctx context.Context, q types.EventQuery) ([]types.Event, error) {
	return []types.Event{{ID: "x"}}, nil
}
func (f *fakeEventStore) Close() error { f.closed = true; return nil }

func TestAppendEventCollectsFirstError(t *testing.T) {
	primary := &fakeEventStore{appendErr: errors.New("primary")}
	secondary := &fakeEventStore{appendErr: errors.New("secondary")}
	s := New(primary, secondary)

	err := s.AppendEvent(context.Background(), types.Event{ID: "1"})
	if err == nil || err.Error() != "primary" {
		t.Fatalf("expected primary error, got %v", err)
	}
	if primary.appended != 1 || secondary.appended != 1 {
		t.Fatalf("expected both stores to receive append, got %d %d", primary.appended, secondary.appended)
	}
}

func TestQueryUsesPrimary(t *testing.T) {
	s := New(&fakeEventStore{})
	got, err := s.QueryEvents(context.Background(), types.EventQuery{})
	if err != nil || len(got) != 1 || got[0].ID != "x" {
		t.Fatalf("unexpected query result: %v %v", got, err)
	}
}

func TestClosePropagates(t *testing.T) {
	primary := &fakeEventStore{}
	other := &fakeEventStore{}
	s := New(primary, other)
	_ = s.Close()
	if !primary.closed || !other.closed {
		t.Fatalf("expected stores closed")
	}
}
