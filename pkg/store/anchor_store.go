package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/FTHTrading/boutique-sub000/pkg/anchor"
	"github.com/FTHTrading/boutique-sub000/pkg/gate"
)

// AnchorStore persists proof anchors. Save is an upsert keyed by anchor
// id: per-chain submission updates replace the submissions snapshot.
type AnchorStore struct {
	db *DB
}

func NewAnchorStore(db *DB) *AnchorStore {
	return &AnchorStore{db: db}
}

func (s *AnchorStore) Save(ctx context.Context, a *anchor.Anchor) error {
	chains, err := json.Marshal(a.RequestedChains)
	if err != nil {
		return fmt.Errorf("store: marshal anchor chains: %w", err)
	}
	subs, err := json.Marshal(a.Submissions)
	if err != nil {
		return fmt.Errorf("store: marshal anchor submissions: %w", err)
	}

	query := s.db.rebind(`INSERT INTO anchors (id, object_type, object_id, canonical_hash, requested_chains, submissions, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			submissions = EXCLUDED.submissions,
			status = EXCLUDED.status`)
	if _, err := s.db.ExecContext(ctx, query,
		a.ID, a.ObjectType, a.ObjectID, a.CanonicalHash, string(chains), string(subs), string(a.Status), formatTime(a.CreatedAt),
	); err != nil {
		return fmt.Errorf("store: save anchor %s: %w", a.ID, err)
	}
	return nil
}

func (s *AnchorStore) Get(ctx context.Context, id string) (*anchor.Anchor, error) {
	query := s.db.rebind(`SELECT id, object_type, object_id, canonical_hash, requested_chains, submissions, status, created_at
		FROM anchors WHERE id = ?`)
	row := s.db.QueryRowContext(ctx, query, id)

	var (
		a         anchor.Anchor
		chains    string
		subs      string
		status    string
		createdAt string
	)
	if err := row.Scan(&a.ID, &a.ObjectType, &a.ObjectID, &a.CanonicalHash, &chains, &subs, &status, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: anchor %s", gate.ErrNotFound, id)
		}
		return nil, fmt.Errorf("store: load anchor %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(chains), &a.RequestedChains); err != nil {
		return nil, fmt.Errorf("store: decode anchor chains: %w", err)
	}
	if err := json.Unmarshal([]byte(subs), &a.Submissions); err != nil {
		return nil, fmt.Errorf("store: decode anchor submissions: %w", err)
	}
	a.Status = anchor.Status(status)
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}
