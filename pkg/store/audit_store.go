package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FTHTrading/boutique-sub000/pkg/audit"
)

// AuditLog is the SQL-backed hash-chained audit log. Insert is the only
// write; the table has no update or delete path. The chain head is read
// and extended inside one transaction, serialized by a mutex.
type AuditLog struct {
	db    *DB
	clock func() time.Time

	mu sync.Mutex
}

func NewAuditLog(db *DB) *AuditLog {
	return &AuditLog{db: db, clock: time.Now}
}

// WithClock overrides the timestamp source, for tests.
func (l *AuditLog) WithClock(clock func() time.Time) *AuditLog {
	l.clock = clock
	return l
}

// Record appends one entry, linking it to the current chain head.
func (l *AuditLog) Record(ctx context.Context, actor, action, subjectRef string, metadata map[string]interface{}) (*audit.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin audit record: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		seq  int64
		prev string
	)
	row := tx.QueryRowContext(ctx, `SELECT seq, entry_hash FROM audit_entries ORDER BY seq DESC LIMIT 1`)
	if err := row.Scan(&seq, &prev); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: read audit chain head: %w", err)
	}

	entry := audit.Entry{
		ID:           uuid.New().String(),
		Actor:        actor,
		Action:       action,
		SubjectRef:   subjectRef,
		Metadata:     metadata,
		Timestamp:    l.clock().UTC(),
		PreviousHash: prev,
	}
	hash, err := audit.EntryHash(&entry)
	if err != nil {
		return nil, fmt.Errorf("store: hash audit entry: %w", err)
	}
	entry.EntryHash = hash

	var meta string
	if metadata != nil {
		data, err := json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("store: marshal audit metadata: %w", err)
		}
		meta = string(data)
	}

	insert := l.db.rebind(`INSERT INTO audit_entries (id, seq, actor, action, subject_ref, metadata, timestamp, previous_hash, entry_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, insert,
		entry.ID, seq+1, entry.Actor, entry.Action, entry.SubjectRef, meta,
		formatTime(entry.Timestamp), entry.PreviousHash, entry.EntryHash,
	); err != nil {
		return nil, fmt.Errorf("store: insert audit entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit audit entry: %w", err)
	}
	return &entry, nil
}

const auditColumns = `id, actor, action, subject_ref, metadata, timestamp, previous_hash, entry_hash`

// BySubject returns all entries for a subject reference in chain order.
func (l *AuditLog) BySubject(ctx context.Context, subjectRef string) ([]audit.Entry, error) {
	query := l.db.rebind(`SELECT ` + auditColumns + ` FROM audit_entries WHERE subject_ref = ? ORDER BY seq`)
	return l.query(ctx, query, subjectRef)
}

// All returns the complete chain in order, for verification.
func (l *AuditLog) All(ctx context.Context) ([]audit.Entry, error) {
	return l.query(ctx, `SELECT `+auditColumns+` FROM audit_entries ORDER BY seq`)
}

func (l *AuditLog) query(ctx context.Context, query string, args ...any) ([]audit.Entry, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []audit.Entry
	for rows.Next() {
		var (
			e         audit.Entry
			meta      sql.NullString
			timestamp string
		)
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.SubjectRef, &meta, &timestamp, &e.PreviousHash, &e.EntryHash); err != nil {
			return nil, fmt.Errorf("store: scan audit entry: %w", err)
		}
		e.Timestamp = parseTime(timestamp)
		if meta.Valid && meta.String != "" {
			_ = json.Unmarshal([]byte(meta.String), &e.Metadata)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate audit entries: %w", err)
	}
	return out, nil
}
