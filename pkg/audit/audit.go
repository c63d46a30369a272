// Package audit is the engine's audit sink: structured events for every
// freeze and for rejected mutations of frozen claims, written to a
// configurable sink and optionally anchored in a hash-chained store.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chittyos/claimchain/pkg/auth"
)

// EventType categorizes audit events.
type EventType string

const (
	EventMutation EventType = "MUTATION"
	EventFreeze   EventType = "FREEZE"
	EventWarning  EventType = "WARNING"
)

// Well-known actions emitted by the engine.
const (
	ActionClaimCreated     = "claim_created"
	ActionComponentAdded   = "component_added"
	ActionComponentRemoved = "component_removed"
	ActionClaimFrozen      = "claim_frozen"
	ActionFrozenMutation   = "frozen_mutation_rejected"
)

// Event is a structured audit record.
type Event struct {
	ID        string         `json:"id"`
	ActorID   string         `json:"actor_id"`
	Type      EventType      `json:"type"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Logger records audit events. Implementations must tolerate concurrent use.
type Logger interface {
	Record(ctx context.Context, eventType EventType, action, resource string, metadata map[string]any) error
}

// writerLogger writes one JSON event per line to an io.Writer.
type writerLogger struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewLogger creates a Logger writing to os.Stdout.
func NewLogger() Logger {
	return NewLoggerWithWriter(os.Stdout)
}

// NewLoggerWithWriter creates a Logger writing to w. Injection point for
// tests and custom sinks.
func NewLoggerWithWriter(w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	return &writerLogger{writer: w}
}

func (l *writerLogger) Record(ctx context.Context, eventType EventType, action, resource string, metadata map[string]any) error {
	event := Event{
		ID:        uuid.New().String(),
		ActorID:   auth.ActorID(ctx),
		Type:      eventType,
		Action:    action,
		Resource:  resource,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	// AUDIT: prefix for easy log filtering
	_, err = l.writer.Write(append([]byte("AUDIT: "), append(raw, '\n')...))
	return err
}

// Nop returns a Logger that discards everything.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Record(context.Context, EventType, string, string, map[string]any) error {
	return nil
}
