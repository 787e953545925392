package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one append-only record in the event log (spec.md §4.2).
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"ts"`
	Channel   string         `json:"channel"`
	Type      string         `json:"type"`
	EntityID  string         `json:"entity_id"`
	Payload   map[string]any `json:"payload,omitempty"`
	ProjectID string         `json:"project_id,omitempty"`
}

// Well-known channels (spec.md §4.2).
const (
	ChannelTasks        = "tasks"
	ChannelQueue        = "queue"
	ChannelReview       = "review"
	ChannelQuickActions = "quick_actions"
	ChannelSystem       = "system"
	ChannelAgents       = "agents"
	ChannelNotify       = "notifications"
)

// EventLog is an append-only, fsync-on-write JSONL event log. Writers must
// fsync before returning (spec.md §4.2); readers retrieve the most recent N
// lines without parsing the whole file.
type EventLog struct {
	path string
	mu   sync.Mutex
}

// NewEventLog opens (creating if needed) the event log file at path.
func NewEventLog(path string) (*EventLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: mkdir for event log %s: %w", path, err)
	}
	return &EventLog{path: path}, nil
}

// Append writes one event, assigning an id and timestamp if unset, and
// fsyncs before returning.
func (l *EventLog) Append(e Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("store: marshal event: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("store: open event log %s: %w", l.path, err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("store: append event log %s: %w", l.path, err)
	}
	return f.Sync()
}

// Tail returns the most recent n events (or fewer, if the log is shorter)
// in append order.
func (l *EventLog) Tail(n int) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: open event log %s: %w", l.path, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("store: scan event log %s: %w", l.path, err)
	}

	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}

	events := make([]Event, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		var e Event
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("store: decode event line: %w", err)
		}
		events = append(events, e)
	}
	return events, nil
}
