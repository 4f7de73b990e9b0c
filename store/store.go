// Package store persists recording sessions and their action logs to
// SQLite. The live engine treats it as a write-behind copy; the HTTP
// layer reads it back for history and as a fallback for sessions that
// have already left the in-memory registry.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/recwatch/action"
	"github.com/hazyhaar/recwatch/dbopen"
	"github.com/hazyhaar/recwatch/recorder"
)

// Schema is applied on open, idempotently.
const Schema = `
CREATE TABLE IF NOT EXISTS recording_sessions (
	id             TEXT PRIMARY KEY,
	target_url     TEXT NOT NULL,
	browser_type   TEXT NOT NULL,
	viewport_w     INTEGER NOT NULL,
	viewport_h     INTEGER NOT NULL,
	status         TEXT NOT NULL,
	generated_code TEXT NOT NULL DEFAULT '',
	started_at     INTEGER NOT NULL,
	completed_at   INTEGER
);

CREATE TABLE IF NOT EXISTS recorded_actions (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL REFERENCES recording_sessions(id) ON DELETE CASCADE,
	seq         INTEGER NOT NULL,
	type        TEXT NOT NULL,
	selector    TEXT NOT NULL DEFAULT '',
	value       TEXT NOT NULL DEFAULT '',
	url         TEXT NOT NULL DEFAULT '',
	key         TEXT NOT NULL DEFAULT '',
	ts          INTEGER NOT NULL,
	description TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_recorded_actions_session
	ON recorded_actions(session_id, seq);
`

// Store wraps a SQLite handle. Safe for concurrent use.
type Store struct {
	db *sql.DB
}

// New wraps an already-opened database. Callers typically open with
// dbopen.Open(path, dbopen.WithSchema(store.Schema)).
func New(db *sql.DB) *Store { return &Store{db: db} }

// SessionRecord is a fully hydrated stored session.
type SessionRecord struct {
	ID            string            `json:"id"`
	TargetURL     string            `json:"targetUrl"`
	BrowserType   string            `json:"browserType"`
	Viewport      recorder.Viewport `json:"viewport"`
	Status        recorder.Status   `json:"status"`
	GeneratedCode string            `json:"generatedCode,omitempty"`
	StartedAt     time.Time         `json:"startedAt"`
	CompletedAt   *time.Time        `json:"completedAt,omitempty"`
	Actions       []action.Action   `json:"actions"`
}

// CreateSessionRecord inserts the durable identity of a new session.
// Re-creating an existing id is a no-op so delivery retries stay safe.
func (s *Store) CreateSessionRecord(ctx context.Context, meta recorder.SessionMeta) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recording_sessions
			(id, target_url, browser_type, viewport_w, viewport_h, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		meta.ID, meta.TargetURL, meta.BrowserType,
		meta.Viewport.Width, meta.Viewport.Height,
		string(meta.Status), meta.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("store: create session %s: %w", meta.ID, err)
	}
	return nil
}

// AppendActionToRecord stores one captured action at the tail of the
// session's log. Action ids are stable, so a redelivered append updates
// the existing row in place instead of duplicating it.
func (s *Store) AppendActionToRecord(ctx context.Context, sessionID string, a action.Action) error {
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO recorded_actions
				(id, session_id, seq, type, selector, value, url, key, ts, description)
			VALUES (?, ?,
				(SELECT COALESCE(MAX(seq), -1) + 1 FROM recorded_actions WHERE session_id = ?),
				?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				selector = excluded.selector,
				value = excluded.value,
				url = excluded.url,
				key = excluded.key,
				description = excluded.description`,
			a.ID, sessionID, sessionID,
			string(a.Type), a.Selector, a.Value, a.URL, a.Key, a.Timestamp, a.Description)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: append action %s to %s: %w", a.ID, sessionID, err)
	}
	return nil
}

// UpdateSessionRecord applies upd to a stored session. A non-nil Actions
// slice replaces the stored log wholesale, preserving slice order.
func (s *Store) UpdateSessionRecord(ctx context.Context, sessionID string, upd recorder.SessionUpdate) error {
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		if upd.Status != "" {
			if _, err := tx.ExecContext(ctx,
				`UPDATE recording_sessions SET status = ? WHERE id = ?`,
				string(upd.Status), sessionID); err != nil {
				return err
			}
		}
		if upd.GeneratedCode != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE recording_sessions SET generated_code = ? WHERE id = ?`,
				*upd.GeneratedCode, sessionID); err != nil {
				return err
			}
		}
		if upd.CompletedAt != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE recording_sessions SET completed_at = ? WHERE id = ?`,
				upd.CompletedAt.UnixMilli(), sessionID); err != nil {
				return err
			}
		}
		if upd.Actions == nil {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM recorded_actions WHERE session_id = ?`, sessionID); err != nil {
			return err
		}
		for i, a := range upd.Actions {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO recorded_actions
					(id, session_id, seq, type, selector, value, url, key, ts, description)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				a.ID, sessionID, i,
				string(a.Type), a.Selector, a.Value, a.URL, a.Key, a.Timestamp, a.Description); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: update session %s: %w", sessionID, err)
	}
	return nil
}

// ReadSessionRecord loads one stored session with its full action log.
// Missing ids surface as recorder.ErrNotFound.
func (s *Store) ReadSessionRecord(ctx context.Context, sessionID string) (SessionRecord, error) {
	var (
		rec         SessionRecord
		status      string
		startedAt   int64
		completedAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, target_url, browser_type, viewport_w, viewport_h,
		       status, generated_code, started_at, completed_at
		FROM recording_sessions WHERE id = ?`, sessionID).
		Scan(&rec.ID, &rec.TargetURL, &rec.BrowserType,
			&rec.Viewport.Width, &rec.Viewport.Height,
			&status, &rec.GeneratedCode, &startedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRecord{}, fmt.Errorf("store: %w: session %q", recorder.ErrNotFound, sessionID)
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("store: read session %s: %w", sessionID, err)
	}
	rec.Status = recorder.Status(status)
	rec.StartedAt = time.UnixMilli(startedAt)
	if completedAt.Valid {
		t := time.UnixMilli(completedAt.Int64)
		rec.CompletedAt = &t
	}

	rec.Actions, err = s.readActions(ctx, sessionID)
	if err != nil {
		return SessionRecord{}, err
	}
	return rec, nil
}

// ListSessionRecords returns stored sessions newest first, without their
// action logs. limit <= 0 means no limit.
func (s *Store) ListSessionRecords(ctx context.Context, limit int) ([]SessionRecord, error) {
	q := `
		SELECT id, target_url, browser_type, viewport_w, viewport_h,
		       status, generated_code, started_at, completed_at
		FROM recording_sessions ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var (
			rec         SessionRecord
			status      string
			startedAt   int64
			completedAt sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &rec.TargetURL, &rec.BrowserType,
			&rec.Viewport.Width, &rec.Viewport.Height,
			&status, &rec.GeneratedCode, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("store: list sessions: %w", err)
		}
		rec.Status = recorder.Status(status)
		rec.StartedAt = time.UnixMilli(startedAt)
		if completedAt.Valid {
			t := time.UnixMilli(completedAt.Int64)
			rec.CompletedAt = &t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	return out, nil
}

func (s *Store) readActions(ctx context.Context, sessionID string) ([]action.Action, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, selector, value, url, key, ts, description
		FROM recorded_actions WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: read actions for %s: %w", sessionID, err)
	}
	defer rows.Close()

	var out []action.Action
	for rows.Next() {
		var (
			a  action.Action
			at string
		)
		if err := rows.Scan(&a.ID, &at, &a.Selector, &a.Value, &a.URL, &a.Key, &a.Timestamp, &a.Description); err != nil {
			return nil, fmt.Errorf("store: read actions for %s: %w", sessionID, err)
		}
		a.Type = action.Type(at)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: read actions for %s: %w", sessionID, err)
	}
	return out, nil
}
