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

	"github.com/FTHTrading/boutique-sub000/pkg/gate"
	"github.com/FTHTrading/boutique-sub000/pkg/screening"
)

// FindingStore persists findings append-only. There is no UPDATE path
// for finding content; Resolve appends resolution fields exactly once.
type FindingStore struct {
	db    *DB
	clock func() time.Time

	// mu serializes seq assignment across concurrent appends.
	mu sync.Mutex
}

func NewFindingStore(db *DB) *FindingStore {
	return &FindingStore{db: db, clock: time.Now}
}

// WithClock overrides the creation timestamp source, for tests.
func (s *FindingStore) WithClock(clock func() time.Time) *FindingStore {
	s.clock = clock
	return s
}

// Append inserts every finding as a new row. Duplicates from repeated
// screening runs are kept: each run is a distinct audit event.
func (s *FindingStore) Append(ctx context.Context, ref gate.SubjectRef, findings []screening.Finding) ([]screening.Finding, error) {
	if len(findings) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM findings`).Scan(&seq); err != nil {
		return nil, fmt.Errorf("store: next finding seq: %w", err)
	}

	insert := s.db.rebind(`INSERT INTO findings (
		id, seq, subject_kind, subject_id, flag_type, severity, message, recommendation,
		requires_human_review, blocks_execution, metadata, resolved, resolved_by, resolved_at, resolution_notes, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	now := s.clock().UTC()
	persisted := make([]screening.Finding, 0, len(findings))
	for _, f := range findings {
		f.ID = uuid.New().String()
		f.SubjectKind = string(ref.Kind)
		f.SubjectID = ref.ID
		f.CreatedAt = now
		seq++

		var meta string
		if f.Metadata != nil {
			data, err := json.Marshal(f.Metadata)
			if err != nil {
				return nil, fmt.Errorf("store: marshal finding metadata: %w", err)
			}
			meta = string(data)
		}

		if _, err := tx.ExecContext(ctx, insert,
			f.ID, seq, f.SubjectKind, f.SubjectID, string(f.Type), int(f.Severity), f.Message, f.Recommendation,
			f.RequiresHumanReview, f.BlocksExecution, meta, false, "", nil, "", formatTime(now),
		); err != nil {
			return nil, fmt.Errorf("store: insert finding: %w", err)
		}
		persisted = append(persisted, f)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit append: %w", err)
	}
	return persisted, nil
}

const findingColumns = `id, subject_kind, subject_id, flag_type, severity, message, recommendation,
	requires_human_review, blocks_execution, metadata, resolved, resolved_by, resolved_at, resolution_notes, created_at`

// ListBySubject returns the full finding history in append order.
func (s *FindingStore) ListBySubject(ctx context.Context, ref gate.SubjectRef) ([]screening.Finding, error) {
	query := s.db.rebind(`SELECT ` + findingColumns + `
		FROM findings WHERE subject_kind = ? AND subject_id = ? ORDER BY seq`)
	rows, err := s.db.QueryContext(ctx, query, string(ref.Kind), ref.ID)
	if err != nil {
		return nil, fmt.Errorf("store: list findings for %s: %w", ref, err)
	}
	defer func() { _ = rows.Close() }()

	var out []screening.Finding
	for rows.Next() {
		f, err := scanFinding(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list findings for %s: %w", ref, err)
	}
	return out, nil
}

// Get loads one finding by id.
func (s *FindingStore) Get(ctx context.Context, id string) (*screening.Finding, error) {
	query := s.db.rebind(`SELECT ` + findingColumns + ` FROM findings WHERE id = ?`)
	row := s.db.QueryRowContext(ctx, query, id)

	f, err := scanFinding(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: finding %s", gate.ErrNotFound, id)
		}
		return nil, err
	}
	return f, nil
}

// Resolve marks a finding resolved exactly once. The conditional UPDATE
// makes a second resolution attempt fail with ErrPrecondition and leaves
// the original resolution untouched.
func (s *FindingStore) Resolve(ctx context.Context, id, resolver, notes string, at time.Time) error {
	query := s.db.rebind(`UPDATE findings SET resolved = ?, resolved_by = ?, resolved_at = ?, resolution_notes = ?
		WHERE id = ? AND resolved = ?`)
	res, err := s.db.ExecContext(ctx, query, true, resolver, formatTime(at), notes, id, false)
	if err != nil {
		return fmt.Errorf("store: resolve finding %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: finding %s is already resolved", gate.ErrPrecondition, id)
	}
	return nil
}

func scanFinding(scan func(dest ...any) error) (*screening.Finding, error) {
	var (
		f          screening.Finding
		flagType   string
		severity   int
		meta       sql.NullString
		resolvedAt sql.NullString
		createdAt  string
	)
	if err := scan(
		&f.ID, &f.SubjectKind, &f.SubjectID, &flagType, &severity, &f.Message, &f.Recommendation,
		&f.RequiresHumanReview, &f.BlocksExecution, &meta, &f.Resolved, &f.ResolvedBy, &resolvedAt, &f.ResolutionNotes, &createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("store: scan finding: %w", err)
	}

	f.Type = screening.FlagType(flagType)
	f.Severity = screening.Severity(severity)
	f.CreatedAt = parseTime(createdAt)
	if meta.Valid && meta.String != "" {
		_ = json.Unmarshal([]byte(meta.String), &f.Metadata)
	}
	if resolvedAt.Valid && resolvedAt.String != "" {
		t := parseTime(resolvedAt.String)
		f.ResolvedAt = &t
	}
	return &f, nil
}
