// Package ledger keeps an append-only journal of the commands bindings
// submit, for auditing what a dashboard changed and when.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dokzlo13/visbind/internal/binding"
)

// Entry is one journaled write.
type Entry struct {
	ID        int64             `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Mode      binding.WriteMode `json:"mode"`
	BindingID string            `json:"binding_id"`
	WidgetID  string            `json:"widget_id,omitempty"`
	Key       string            `json:"key,omitempty"`
	OID       string            `json:"oid"`
	Value     any               `json:"value"`
	SessionID string            `json:"session_id,omitempty"`
}

// Ledger appends and queries journaled writes.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

var _ binding.Journal = (*Ledger)(nil)

// New creates a new Ledger using the provided database connection
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db, now: time.Now}
}

// Record appends w. A commit whose session is already journaled is ignored,
// so a session never appears twice.
func (l *Ledger) Record(ctx context.Context, w binding.Write) error {
	value, err := json.Marshal(w.Value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	at := w.At
	if at.IsZero() {
		at = l.now()
	}

	insertSQL := `INSERT INTO write_ledger (timestamp, mode, binding_id, widget_id, point_key, oid, value, session_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if w.SessionID != "" {
		insertSQL = `INSERT OR IGNORE INTO write_ledger (timestamp, mode, binding_id, widget_id, point_key, oid, value, session_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	}

	_, err = l.db.ExecContext(ctx, insertSQL,
		at.UTC().UnixMilli(), string(w.Mode), w.BindingID, w.Owner, w.Key, w.OID, string(value), w.SessionID)
	if err != nil {
		return fmt.Errorf("failed to record write: %w", err)
	}
	return nil
}

// Recent returns the latest entries, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, timestamp, mode, binding_id, widget_id, point_key, oid, value, session_id
		FROM write_ledger
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ByPoint returns the latest entries written to oid, newest first.
func (l *Ledger) ByPoint(ctx context.Context, oid string, limit int) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, timestamp, mode, binding_id, widget_id, point_key, oid, value, session_id
		FROM write_ledger
		WHERE oid = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, oid, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// DeleteOlderThan removes entries older than the specified duration (retention policy)
func (l *Ledger) DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := l.now().Add(-retention).UTC().UnixMilli()
	result, err := l.db.ExecContext(ctx, `
		DELETE FROM write_ledger WHERE timestamp < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		var entry Entry
		var mode string
		var timestamp int64
		var widgetID, key, value, sessionID sql.NullString

		err := rows.Scan(
			&entry.ID, &timestamp, &mode, &entry.BindingID, &widgetID, &key, &entry.OID, &value, &sessionID,
		)
		if err != nil {
			return nil, err
		}

		entry.Timestamp = time.UnixMilli(timestamp).UTC()
		entry.Mode = binding.WriteMode(mode)
		entry.WidgetID = widgetID.String
		entry.Key = key.String
		entry.SessionID = sessionID.String

		if value.Valid && value.String != "" {
			if err := json.Unmarshal([]byte(value.String), &entry.Value); err != nil {
				return nil, fmt.Errorf("failed to unmarshal value: %w", err)
			}
		}

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
