// Package events fans task progress events out to live subscribers.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/ipscope/ipscope/pkg/types"
)

const defaultSubscriberBuffer = 100

// Subscription is one live listener on a task's event stream. Events
// arrive on C; Close detaches the listener and closes C. A subscription
// that falls behind loses events rather than stalling the publisher.
type Subscription struct {
	C <-chan types.Event

	taskID  string
	ch      chan types.Event
	broker  *Broker
	dropped atomic.Int64
	once    sync.Once
}

// Close detaches the subscription and closes C. Safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.detach(s)
		close(s.ch)
	})
}

// Dropped returns how many events this subscription missed.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Broker routes published task events to the subscriptions registered
// for that task id. Delivery is non-blocking.
type Broker struct {
	mu      sync.RWMutex
	byTask  map[string][]*Subscription
	dropped atomic.Int64
}

func NewBroker() *Broker {
	return &Broker{byTask: make(map[string][]*Subscription)}
}

// Subscribe registers a listener for taskID with the given channel
// buffer (<=0 picks the default).
func (b *Broker) Subscribe(taskID string, buf int) *Subscription {
	if buf <= 0 {
		buf = defaultSubscriberBuffer
	}
	ch := make(chan types.Event, buf)
	sub := &Subscription{C: ch, taskID: taskID, ch: ch, broker: b}

	b.mu.Lock()
	b.byTask[taskID] = append(b.byTask[taskID], sub)
	b.mu.Unlock()
	return sub
}

// Publish delivers ev to every subscription on ev.TaskID. Full buffers
// drop the event and bump the drop counters.
func (b *Broker) Publish(ev types.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.byTask[ev.TaskID] {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
			b.dropped.Add(1)
		}
	}
}

// DroppedCount returns the total number of events dropped across all
// subscriptions due to slow consumers.
func (b *Broker) DroppedCount() int64 {
	return b.dropped.Load()
}

func (b *Broker) detach(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.byTask[sub.taskID]
	for i, s := range subs {
		if s == sub {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.byTask, sub.taskID)
	} else {
		b.byTask[sub.taskID] = subs
	}
}
