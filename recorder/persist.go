package recorder

import (
	"context"
	"time"

	"github.com/hazyhaar/recwatch/action"
)

// SessionMeta is the durable identity of a session, written once at start.
type SessionMeta struct {
	ID          string
	TargetURL   string
	BrowserType string
	Viewport    Viewport
	Status      Status
	StartedAt   time.Time
}

// SessionUpdate mutates a stored session. Zero-valued fields are left
// unchanged; a non-nil Actions slice replaces the stored action list
// wholesale.
type SessionUpdate struct {
	Status        Status
	GeneratedCode *string
	CompletedAt   *time.Time
	Actions       []action.Action
}

// Store receives durable copies of session state. Persistence is
// best-effort from the engine's point of view: a failing store is logged,
// never propagated to the in-flight operation. Appends may be retried, so
// implementations must treat (sessionID, action.ID) as idempotent.
type Store interface {
	CreateSessionRecord(ctx context.Context, meta SessionMeta) error
	AppendActionToRecord(ctx context.Context, sessionID string, a action.Action) error
	UpdateSessionRecord(ctx context.Context, sessionID string, upd SessionUpdate) error
}

// NopStore discards everything. Used when the engine runs without a
// database.
type NopStore struct{}

func (NopStore) CreateSessionRecord(context.Context, SessionMeta) error { return nil }

func (NopStore) AppendActionToRecord(context.Context, string, action.Action) error { return nil }

func (NopStore) UpdateSessionRecord(context.Context, string, SessionUpdate) error { return nil }
