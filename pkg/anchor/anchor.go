// Package anchor implements tamper-evident timestamping of object state.
// An object is canonicalized, hashed, and the digest embedded in a
// minimal memo transaction on one or more external distributed ledgers.
// Chains are independent side effects: a failure on one never rolls back
// or blocks a submission on another.
package anchor

import (
	"context"
	"time"
)

// Status tracks an anchor (or one chain submission) through its lifecycle.
type Status string

const (
	// StatusPending means the anchor was recorded but not submitted:
	// either no signing credentials are configured (dry-run mode) or the
	// chain has not been attempted yet. Dry-run is an explicit, testable
	// mode, not a silent failure.
	StatusPending   Status = "PENDING"
	StatusSubmitted Status = "SUBMITTED"
	StatusConfirmed Status = "CONFIRMED"
	StatusFailed    Status = "FAILED"
)

// Submission is the per-chain outcome of an anchoring request.
type Submission struct {
	Chain       string     `json:"chain"`
	TxID        string     `json:"tx_id,omitempty"`
	Status      Status     `json:"status"`
	Confirmed   bool       `json:"confirmed"`
	LastError   string     `json:"last_error,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

// Anchor records one anchoring request. Chain fields fill in
// asynchronously as ledger submissions complete; callers poll rather
// than block on ledger finality.
type Anchor struct {
	ID              string       `json:"id"`
	ObjectType      string       `json:"object_type"`
	ObjectID        string       `json:"object_id"`
	CanonicalHash   string       `json:"canonical_hash"`
	RequestedChains []string     `json:"requested_chains"`
	Submissions     []Submission `json:"submissions"`
	Status          Status       `json:"status"`
	CreatedAt       time.Time    `json:"created_at"`
}

// Memo is the payload embedded in the ledger transaction.
type Memo struct {
	ObjectType string `json:"object_type"`
	ObjectID   string `json:"object_id"`
	Hash       string `json:"hash"`
}

// Ledger is one external distributed ledger network. Finality and
// confirmation semantics live entirely on the ledger side.
type Ledger interface {
	Name() string
	// HasCredentials reports whether signing credentials are configured.
	// Without credentials the chain is skipped and the anchor stays in
	// dry-run PENDING for that chain.
	HasCredentials() bool
	// Submit embeds the memo in a minimal self-transfer transaction and
	// returns the transaction identifier.
	Submit(ctx context.Context, memo Memo) (string, error)
	// Confirmed reports whether the transaction has reached finality.
	Confirmed(ctx context.Context, txID string) (bool, error)
}

// Store persists anchors. Implementations must tolerate concurrent
// per-chain updates to the same anchor.
type Store interface {
	Save(ctx context.Context, a *Anchor) error
	Get(ctx context.Context, id string) (*Anchor, error)
}

// Aggregate derives the overall status from the per-chain submissions:
// CONFIRMED only when every requested chain confirmed; FAILED only when
// every attempted chain failed; PENDING while nothing was submitted.
func Aggregate(subs []Submission) Status {
	if len(subs) == 0 {
		return StatusPending
	}
	confirmed, failed, pending := 0, 0, 0
	for _, s := range subs {
		switch s.Status {
		case StatusConfirmed:
			confirmed++
		case StatusFailed:
			failed++
		case StatusPending:
			pending++
		}
	}
	switch {
	case confirmed == len(subs):
		return StatusConfirmed
	case failed == len(subs):
		return StatusFailed
	case pending == len(subs):
		return StatusPending
	default:
		return StatusSubmitted
	}
}
