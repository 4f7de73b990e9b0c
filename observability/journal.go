// Package observability keeps a durable journal of engine events in
// SQLite. Writes are best-effort: a failing journal never blocks or fails
// the recording operation that produced the event.
package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/recwatch/events"
	"github.com/hazyhaar/recwatch/idgen"
)

// Schema is applied on open, idempotently.
const Schema = `
CREATE TABLE IF NOT EXISTS session_event_logs (
	entry_id   TEXT PRIMARY KEY,
	event_name TEXT NOT NULL,
	session_id TEXT NOT NULL,
	payload    TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_session_event_logs_session
	ON session_event_logs(session_id, created_at);
`

// Journal writes engine events and manages retention cleanup.
type Journal struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
}

// Option configures a Journal.
type Option func(*Journal)

// WithIDGenerator sets a custom generator for entry ids.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(j *Journal) { j.newID = gen }
}

// WithLogger sets the logger used for swallowed write failures.
func WithLogger(logger *slog.Logger) Option {
	return func(j *Journal) { j.logger = logger }
}

// NewJournal creates a journal backed by the given database.
func NewJournal(db *sql.DB, opts ...Option) *Journal {
	j := &Journal{
		db:     db,
		newID:  idgen.Prefixed("evt_", idgen.Default),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(j)
	}
	return j
}

// Record writes one event. Errors are logged, never returned, so a
// failing journal store never blocks the engine.
func (j *Journal) Record(ctx context.Context, ev events.Event) {
	payload := ""
	if ev.Payload != nil {
		data, err := json.Marshal(ev.Payload)
		if err != nil {
			j.logger.Warn("journal payload marshal failed", "event", ev.Name, "error", err)
		} else {
			payload = string(data)
		}
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO session_event_logs (entry_id, event_name, session_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		j.newID(), string(ev.Name), ev.SessionID, payload, time.Now().UnixMilli())
	if err != nil {
		j.logger.Warn("journal write failed", "event", ev.Name, "session", ev.SessionID, "error", err)
	}
}

// Handler adapts the journal to the event bus.
func (j *Journal) Handler() events.Handler {
	return func(ctx context.Context, ev events.Event) error {
		j.Record(ctx, ev)
		return nil
	}
}

// Entry is one journalled event read back.
type Entry struct {
	EntryID   string
	EventName string
	SessionID string
	Payload   string
	CreatedAt time.Time
}

// SessionEntries returns a session's journal oldest first.
func (j *Journal) SessionEntries(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT entry_id, event_name, session_id, payload, created_at
		FROM session_event_logs WHERE session_id = ? ORDER BY created_at, entry_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("observability: read journal for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e  Entry
			ts int64
		)
		if err := rows.Scan(&e.EntryID, &e.EventName, &e.SessionID, &e.Payload, &ts); err != nil {
			return nil, fmt.Errorf("observability: read journal for %s: %w", sessionID, err)
		}
		e.CreatedAt = time.UnixMilli(ts)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("observability: read journal for %s: %w", sessionID, err)
	}
	return out, nil
}

// Cleanup deletes entries older than retention. Zero retention disables it.
func (j *Journal) Cleanup(ctx context.Context, retention time.Duration) error {
	if retention <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-retention).UnixMilli()
	if _, err := j.db.ExecContext(ctx,
		`DELETE FROM session_event_logs WHERE created_at < ?`, cutoff); err != nil {
		return fmt.Errorf("observability: cleanup: %w", err)
	}
	return nil
}
