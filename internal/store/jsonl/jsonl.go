// Package jsonl persists task events as newline-delimited JSON for
// offline grep and ingest pipelines.
package jsonl

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ipscope/ipscope/pkg/types"
)

const backupTimeFormat = "20060102T150405.000000000"

// line is the on-disk shape: one object per event with the task fields
// promoted to top-level keys so jq/grep filters work without unwrapping.
type line struct {
	TS     string         `json:"ts"`
	ID     string         `json:"id,omitempty"`
	Type   string         `json:"type"`
	TaskID string         `json:"task_id"`
	IP     string         `json:"ip,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Store appends events to a single file, rotating it to a timestamped
// backup when it grows past maxBytes and pruning the oldest backups
// beyond maxBackups.
type Store struct {
	path       string
	maxBytes   int64
	maxBackups int

	mu   sync.Mutex
	file *os.File
	size int64
}

func New(path string, maxSizeMB int, maxBackups int) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("jsonl path is empty")
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 100
	}
	if maxBackups <= 0 {
		maxBackups = 3
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open jsonl: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat jsonl: %w", err)
	}

	return &Store{
		path:       path,
		maxBytes:   int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
		file:       f,
		size:       st.Size(),
	}, nil
}

func (s *Store) AppendEvent(_ context.Context, ev types.Event) error {
	b, err := json.Marshal(line{
		TS:     ev.Timestamp.UTC().Format(time.RFC3339Nano),
		ID:     ev.ID,
		Type:   ev.Type,
		TaskID: ev.TaskID,
		IP:     ev.IP,
		Fields: ev.Fields,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return fmt.Errorf("jsonl store closed")
	}
	if s.size > 0 && s.size+int64(len(b)) > s.maxBytes {
		if err := s.rotateLocked(); err != nil {
			return err
		}
	}
	n, err := s.file.Write(b)
	s.size += int64(n)
	if err != nil {
		return fmt.Errorf("write jsonl: %w", err)
	}
	return nil
}

func (s *Store) QueryEvents(_ context.Context, _ types.EventQuery) ([]types.Event, error) {
	return nil, fmt.Errorf("jsonl store does not support queries")
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// rotateLocked moves the current file aside under a timestamped name and
// reopens a fresh one, then prunes the oldest backups. Backup names sort
// lexically by age.
func (s *Store) rotateLocked() error {
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close for rotate: %w", err)
	}
	backup := s.path + "." + time.Now().UTC().Format(backupTimeFormat)
	if err := os.Rename(s.path, backup); err != nil {
		return fmt.Errorf("rotate jsonl: %w", err)
	}

	backups, _ := filepath.Glob(s.path + ".*")
	sort.Strings(backups)
	for len(backups) > s.maxBackups {
		_ = os.Remove(backups[0])
		backups = backups[1:]
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("reopen jsonl: %w", err)
	}
	s.file = f
	s.size = 0
	return nil
}
