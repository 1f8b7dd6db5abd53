// Package webhook ships task events to an HTTP endpoint in batches.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ipscope/ipscope/pkg/types"
)

// payload is the envelope POSTed to the endpoint.
type payload struct {
	Source string        `json:"source"`
	SentAt time.Time     `json:"sent_at"`
	Count  int           `json:"count"`
	Events []types.Event `json:"events"`
}

// Store buffers events and ships them when the batch fills or the flush
// interval elapses. A background goroutine drives interval flushes;
// failed interval shipments are re-buffered, bounded at ten batches.
type Store struct {
	url       string
	batchSize int
	timeout   time.Duration
	headers   map[string]string
	client    *http.Client

	mu     sync.Mutex
	buf    []types.Event
	closed bool

	stop chan struct{}
	done chan struct{}
}

func New(url string, batchSize int, flushInterval time.Duration, timeout time.Duration, headers map[string]string) (*Store, error) {
	if url == "" {
		return nil, fmt.Errorf("webhook url is empty")
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 10 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hcopy := make(map[string]string, len(headers))
	for k, v := range headers {
		hcopy[k] = v
	}
	s := &Store{
		url:       url,
		batchSize: batchSize,
		timeout:   timeout,
		headers:   hcopy,
		client:    &http.Client{Timeout: timeout},
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.flushLoop(flushInterval)
	return s, nil
}

func (s *Store) AppendEvent(ctx context.Context, ev types.Event) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("webhook store closed")
	}
	s.buf = append(s.buf, ev)
	var batch []types.Event
	if len(s.buf) >= s.batchSize {
		batch = s.buf
		s.buf = nil
	}
	s.mu.Unlock()

	if batch == nil {
		return nil
	}
	return s.ship(ctx, batch)
}

func (s *Store) QueryEvents(_ context.Context, _ types.EventQuery) ([]types.Event, error) {
	return nil, fmt.Errorf("webhook store does not support queries")
}

// Close stops the flush loop and ships whatever is still buffered.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	batch := s.buf
	s.buf = nil
	s.mu.Unlock()

	close(s.stop)
	<-s.done

	if len(batch) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.ship(ctx, batch)
}

func (s *Store) flushLoop(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.flushPending()
		}
	}
}

// flushPending ships the buffered events. On failure the batch goes back
// to the front of the buffer so the next tick retries it; the buffer is
// capped so a dead endpoint cannot grow it without bound.
func (s *Store) flushPending() {
	s.mu.Lock()
	batch := s.buf
	s.buf = nil
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	err := s.ship(ctx, batch)
	cancel()
	if err == nil {
		return
	}

	s.mu.Lock()
	s.buf = append(batch, s.buf...)
	if max := 10 * s.batchSize; len(s.buf) > max {
		s.buf = s.buf[len(s.buf)-max:]
	}
	s.mu.Unlock()
}

func (s *Store) ship(ctx context.Context, batch []types.Event) error {
	b, err := json.Marshal(payload{
		Source: "ipscope",
		SentAt: time.Now().UTC(),
		Count:  len(batch),
		Events: batch,
	})
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %s", resp.Status)
	}
	return nil
}
