// Package sqlite is the append-only audit-ledger adapter backing
// outbound.AuditLedger, storing activation decisions and provisioning runs
// in a local SQLite file via the pure-Go modernc.org/sqlite driver (no cgo,
// matching the teacher's "single static binary" deployment posture).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/jitgroups/broker/internal/port/outbound"
)

// Ledger persists outbound.AuditRecord entries in a single SQLite table.
type Ledger struct {
	db *sql.DB
}

var _ outbound.AuditLedger = (*Ledger)(nil)

// Open opens (or creates) the ledger database at path.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open ledger db: %w", err)
	}

	// A single connection keeps writes serialized without needing an
	// explicit mutex; modernc's SQLite driver pragmas are connection-scoped.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS audit_records (
		id         TEXT PRIMARY KEY,
		kind       TEXT NOT NULL,
		group_id   TEXT NOT NULL,
		subject    TEXT NOT NULL,
		outcome    TEXT NOT NULL,
		detail     TEXT NOT NULL DEFAULT '',
		ts         TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create audit_records table: %w", err)
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_records_group_ts ON audit_records(group_id, ts DESC)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create group/ts index: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Record inserts rec, assigning an id and timestamp when not already set.
func (l *Ledger) Record(ctx context.Context, rec outbound.AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	_, err := l.db.ExecContext(ctx, `INSERT INTO audit_records (id, kind, group_id, subject, outcome, detail, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Kind), rec.GroupID, rec.Subject, rec.Outcome, rec.Detail,
		// Fixed-width UTC form, so ORDER BY ts sorts chronologically.
		rec.Timestamp.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"),
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert audit record: %w", err)
	}
	return nil
}

// RecentByGroup returns the most recent limit records for groupID, newest first.
func (l *Ledger) RecentByGroup(ctx context.Context, groupID string, limit int) ([]outbound.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `SELECT id, kind, group_id, subject, outcome, detail, ts
		FROM audit_records WHERE group_id = ? ORDER BY ts DESC LIMIT ?`, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query audit records: %w", err)
	}
	defer rows.Close()

	out := make([]outbound.AuditRecord, 0, limit)
	for rows.Next() {
		var (
			rec  outbound.AuditRecord
			kind string
			ts   string
		)
		if err := rows.Scan(&rec.ID, &kind, &rec.GroupID, &rec.Subject, &rec.Outcome, &rec.Detail, &ts); err != nil {
			return nil, fmt.Errorf("sqlite: scan audit record: %w", err)
		}
		rec.Kind = outbound.AuditRecordKind(kind)
		rec.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the underlying database handle.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}
