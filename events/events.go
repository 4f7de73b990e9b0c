// Package events defines the engine's publish side: typed session events
// fanned out to registered handlers (WebSocket hub, persistence hooks,
// tests). The engine publishes through the Bus interface only; it has no
// subscriber concept of its own.
package events

import (
	"context"
	"log/slog"
	"sync"
)

// Name identifies an event emitted by the recording engine.
type Name string

const (
	SessionStarted   Name = "sessionStarted"
	SessionPaused    Name = "sessionPaused"
	SessionResumed   Name = "sessionResumed"
	SessionCompleted Name = "sessionCompleted"
	SessionFailed    Name = "sessionFailed"
	ActionRecorded   Name = "actionRecorded"
	ActionDeleted    Name = "actionDeleted"
	ActionUpdated    Name = "actionUpdated"
	ScreenshotTaken  Name = "screenshotTaken"
)

// Event is one engine notification, scoped to a session.
type Event struct {
	Name      Name   `json:"name"`
	SessionID string `json:"sessionId"`
	Payload   any    `json:"payload,omitempty"`
}

// Bus is the engine's event sink.
type Bus interface {
	Publish(ctx context.Context, ev Event)
}

// Handler consumes one event. A returned error is logged by the fanout
// and never propagates to the publisher.
type Handler func(ctx context.Context, ev Event) error

// Fanout delivers every published event to all subscribed handlers.
// One failing handler does not block the others.
type Fanout struct {
	mu     sync.RWMutex
	subs   map[int]Handler
	next   int
	logger *slog.Logger
}

// NewFanout creates an empty fanout bus.
func NewFanout(logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{subs: make(map[int]Handler), logger: logger}
}

// Subscribe registers h and returns a cancel function that removes it.
func (f *Fanout) Subscribe(h Handler) func() {
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = h
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

// Publish delivers ev to all current subscribers.
func (f *Fanout) Publish(ctx context.Context, ev Event) {
	f.mu.RLock()
	handlers := make([]Handler, 0, len(f.subs))
	for _, h := range f.subs {
		handlers = append(handlers, h)
	}
	f.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, ev); err != nil {
			f.logger.Warn("events: handler failed", "event", ev.Name, "session", ev.SessionID, "error", err)
		}
	}
}

// Nop is a Bus that discards everything. Useful in tests and when no
// broadcast collaborator is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
