package anchor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/FTHTrading/boutique-sub000/pkg/audit"
	"github.com/FTHTrading/boutique-sub000/pkg/canonical"
	"github.com/FTHTrading/boutique-sub000/pkg/gate"
)

// submitTimeout bounds a single chain submission. One slow ledger must
// not hold the others' results hostage.
const submitTimeout = 30 * time.Second

// Service canonicalizes objects, hashes them and anchors the digest to
// the configured ledgers.
type Service struct {
	ledgers map[string]Ledger
	store   Store
	limiter *rate.Limiter
	clock   func() time.Time

	auditLog audit.Logger
	logger   *slog.Logger
}

// NewService creates an anchoring service over the given ledgers.
func NewService(store Store, ledgers ...Ledger) *Service {
	m := make(map[string]Ledger, len(ledgers))
	for _, l := range ledgers {
		m[l.Name()] = l
	}
	return &Service{
		ledgers: m,
		store:   store,
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		clock:   time.Now,
		logger:  slog.Default().With("component", "anchor"),
	}
}

// SetAuditLog injects the audit logger.
func (s *Service) SetAuditLog(l audit.Logger) { s.auditLog = l }

// SetRateLimit overrides the default ledger submission rate limit.
func (s *Service) SetRateLimit(rps float64, burst int) {
	s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

// WithClock overrides the clock, for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Anchor canonicalizes objectData, computes its SHA-256 digest and
// submits it to every requested chain that has signing credentials. The
// call returns once all submissions have been attempted; confirmation is
// polled later via Refresh. Chains fail independently.
func (s *Service) Anchor(ctx context.Context, objectType, objectID string, objectData interface{}, chains []string) (*Anchor, error) {
	if objectType == "" || objectID == "" {
		return nil, fmt.Errorf("%w: object type and id required", gate.ErrValidation)
	}

	hash, err := canonical.Hash(objectData)
	if err != nil {
		return nil, fmt.Errorf("%w: canonicalize object: %v", gate.ErrValidation, err)
	}

	a := &Anchor{
		ID:              uuid.New().String(),
		ObjectType:      objectType,
		ObjectID:        objectID,
		CanonicalHash:   hash,
		RequestedChains: append([]string(nil), chains...),
		CreatedAt:       s.clock().UTC(),
	}

	memo := Memo{ObjectType: objectType, ObjectID: objectID, Hash: hash}
	a.Submissions = s.submitAll(ctx, memo, chains)
	a.Status = Aggregate(a.Submissions)

	if err := s.store.Save(ctx, a); err != nil {
		return nil, fmt.Errorf("save anchor: %w", err)
	}
	s.record(ctx, a)
	return a, nil
}

// submitAll fans out one goroutine per requested chain. Each submission
// is isolated: its own timeout, its own error, its own result slot.
func (s *Service) submitAll(ctx context.Context, memo Memo, chains []string) []Submission {
	subs := make([]Submission, len(chains))
	var wg sync.WaitGroup
	for i, chain := range chains {
		subs[i] = Submission{Chain: chain, Status: StatusPending}

		ledger, ok := s.ledgers[chain]
		if !ok {
			subs[i].Status = StatusFailed
			subs[i].LastError = fmt.Sprintf("unknown chain %q", chain)
			continue
		}
		if !ledger.HasCredentials() {
			// Dry-run: recorded, not submitted.
			continue
		}

		wg.Add(1)
		go func(i int, l Ledger) {
			defer wg.Done()
			subs[i] = s.submitOne(ctx, l, memo)
		}(i, ledger)
	}
	wg.Wait()
	return subs
}

func (s *Service) submitOne(ctx context.Context, l Ledger, memo Memo) Submission {
	sub := Submission{Chain: l.Name(), Status: StatusPending}

	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	if err := s.limiter.Wait(ctx); err != nil {
		sub.Status = StatusFailed
		sub.LastError = fmt.Sprintf("rate limit wait: %v", err)
		return sub
	}

	txID, err := l.Submit(ctx, memo)
	if err != nil {
		s.logger.Warn("ledger submission failed", "chain", l.Name(), "object", memo.ObjectID, "error", err)
		sub.Status = StatusFailed
		sub.LastError = err.Error()
		return sub
	}

	now := s.clock().UTC()
	sub.TxID = txID
	sub.Status = StatusSubmitted
	sub.SubmittedAt = &now
	return sub
}

// Refresh polls confirmation state for every submitted chain and
// recomputes the aggregate status.
func (s *Service) Refresh(ctx context.Context, anchorID string) (*Anchor, error) {
	a, err := s.store.Get(ctx, anchorID)
	if err != nil {
		return nil, err
	}

	changed := false
	for i := range a.Submissions {
		sub := &a.Submissions[i]
		if sub.Status != StatusSubmitted {
			continue
		}
		ledger, ok := s.ledgers[sub.Chain]
		if !ok {
			continue
		}
		confirmed, err := ledger.Confirmed(ctx, sub.TxID)
		if err != nil {
			// Transient: leave the submission as-is and retry next poll.
			s.logger.Warn("confirmation check failed", "chain", sub.Chain, "tx", sub.TxID, "error", err)
			continue
		}
		if confirmed {
			sub.Status = StatusConfirmed
			sub.Confirmed = true
			changed = true
		}
	}

	next := Aggregate(a.Submissions)
	if next != a.Status {
		a.Status = next
		changed = true
	}
	if changed {
		if err := s.store.Save(ctx, a); err != nil {
			return nil, fmt.Errorf("save anchor: %w", err)
		}
	}
	return a, nil
}

// Get returns the stored anchor without touching the ledgers.
func (s *Service) Get(ctx context.Context, anchorID string) (*Anchor, error) {
	return s.store.Get(ctx, anchorID)
}

func (s *Service) record(ctx context.Context, a *Anchor) {
	if s.auditLog == nil {
		return
	}
	ref := fmt.Sprintf("%s/%s", a.ObjectType, a.ObjectID)
	meta := map[string]interface{}{
		"anchor_id": a.ID,
		"hash":      a.CanonicalHash,
		"status":    string(a.Status),
		"chains":    a.RequestedChains,
	}
	if _, err := s.auditLog.Record(ctx, gate.SystemActor, "ANCHOR_REQUESTED", ref, meta); err != nil {
		s.logger.Error("audit write failed", "anchor", a.ID, "error", err)
	}
}
