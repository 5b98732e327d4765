package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/FTHTrading/boutique-sub000/pkg/gate"
)

// SubjectStore persists subjects. The status column is authoritative and
// every status change is a conditional UPDATE, so concurrent reviewers
// race at the database rather than in application memory.
type SubjectStore struct {
	db *DB
}

func NewSubjectStore(db *DB) *SubjectStore {
	return &SubjectStore{db: db}
}

// Put registers a new subject. Subjects enter the gate unscreened unless
// the caller supplies an explicit status.
func (s *SubjectStore) Put(ctx context.Context, subject *gate.Subject) error {
	if err := subject.Validate(); err != nil {
		return err
	}
	if subject.Status == "" {
		subject.Status = gate.StatusUnscreened
	}

	payload, err := json.Marshal(subject)
	if err != nil {
		return fmt.Errorf("store: marshal subject %s: %w", subject.Ref, err)
	}
	now := formatTime(time.Now())

	query := s.db.rebind(`INSERT INTO subjects (kind, id, status, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query,
		string(subject.Ref.Kind), subject.Ref.ID, string(subject.Status), string(payload), now, now,
	); err != nil {
		return fmt.Errorf("store: insert subject %s: %w", subject.Ref, err)
	}
	return nil
}

// Get loads a subject. The stored payload is a snapshot; the status
// column overrides whatever status the snapshot carried.
func (s *SubjectStore) Get(ctx context.Context, ref gate.SubjectRef) (*gate.Subject, error) {
	query := s.db.rebind(`SELECT status, payload FROM subjects WHERE kind = ? AND id = ?`)
	row := s.db.QueryRowContext(ctx, query, string(ref.Kind), ref.ID)

	var status, payload string
	if err := row.Scan(&status, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: subject %s", gate.ErrNotFound, ref)
		}
		return nil, fmt.Errorf("store: load subject %s: %w", ref, err)
	}

	var subject gate.Subject
	if err := json.Unmarshal([]byte(payload), &subject); err != nil {
		return nil, fmt.Errorf("store: decode subject %s: %w", ref, err)
	}
	subject.Status = gate.Status(status)
	return &subject, nil
}

// SetScreened records the automated screening outcome. The WHERE clause
// excludes approved rows, so screening is structurally unable to
// overwrite a human approval.
func (s *SubjectStore) SetScreened(ctx context.Context, ref gate.SubjectRef, to gate.Status) error {
	if to != gate.StatusUnderReview && to != gate.StatusRejected {
		return fmt.Errorf("%w: screening cannot set status %q", gate.ErrValidation, to)
	}

	query := s.db.rebind(`UPDATE subjects SET status = ?, updated_at = ?
		WHERE kind = ? AND id = ? AND status <> ?`)
	res, err := s.db.ExecContext(ctx, query,
		string(to), formatTime(time.Now()),
		string(ref.Kind), ref.ID, string(gate.StatusApproved),
	)
	if err != nil {
		return fmt.Errorf("store: set screened status for %s: %w", ref, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.Get(ctx, ref); err != nil {
			return err
		}
		return fmt.Errorf("%w: subject %s is approved", gate.ErrPrecondition, ref)
	}
	return nil
}

// Transition performs a compare-and-set status update. When two
// reviewers race, exactly one UPDATE matches; the loser sees
// ErrPrecondition with the status unchanged.
func (s *SubjectStore) Transition(ctx context.Context, ref gate.SubjectRef, from, to gate.Status) error {
	query := s.db.rebind(`UPDATE subjects SET status = ?, updated_at = ?
		WHERE kind = ? AND id = ? AND status = ?`)
	res, err := s.db.ExecContext(ctx, query,
		string(to), formatTime(time.Now()),
		string(ref.Kind), ref.ID, string(from),
	)
	if err != nil {
		return fmt.Errorf("store: transition %s: %w", ref, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		current, err := s.Get(ctx, ref)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: subject %s is %s, expected %s", gate.ErrPrecondition, ref, current.Status, from)
	}
	return nil
}
