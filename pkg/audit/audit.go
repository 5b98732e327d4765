// Package audit provides the append-only audit log. Every evaluation
// run, finding resolution, human approval/rejection and proof-anchor
// submission writes exactly one entry. No update or delete operation
// exists anywhere in this package: the log is the system of record for
// whether the approval gate was actually observed.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FTHTrading/boutique-sub000/pkg/canonical"
)

// Entry is a tamper-evident audit record. PreviousHash links each entry
// to the preceding one; EntryHash covers the full content including the
// link, so any in-place edit breaks the chain.
type Entry struct {
	ID         string                 `json:"id"`
	Actor      string                 `json:"actor"`
	Action     string                 `json:"action"`
	SubjectRef string                 `json:"subject_ref"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`

	PreviousHash string `json:"previous_hash"`
	EntryHash    string `json:"entry_hash"`
}

// Logger records audit events.
type Logger interface {
	Record(ctx context.Context, actor, action, subjectRef string, metadata map[string]interface{}) (*Entry, error)
}

// Reader retrieves recorded entries for a subject.
type Reader interface {
	BySubject(ctx context.Context, subjectRef string) ([]Entry, error)
}

// chainGenesis is the PreviousHash of the first entry.
const chainGenesis = ""

// EntryHash computes the content hash of an entry over its canonical
// form, excluding the EntryHash field itself.
func EntryHash(e *Entry) (string, error) {
	return canonical.Hash(map[string]interface{}{
		"id":            e.ID,
		"actor":         e.Actor,
		"action":        e.Action,
		"subject_ref":   e.SubjectRef,
		"metadata":      e.Metadata,
		"timestamp":     e.Timestamp.UTC().Format(time.RFC3339Nano),
		"previous_hash": e.PreviousHash,
	})
}

// Log is an in-memory hash-chained audit log. It backs tests and small
// deployments; production uses the SQL store, which shares the same
// chaining scheme.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	clock   func() time.Time
}

// NewLog creates an empty audit log using wall-clock time.
func NewLog() *Log {
	return &Log{clock: time.Now}
}

// WithClock overrides the clock, for tests.
func (l *Log) WithClock(clock func() time.Time) *Log {
	l.clock = clock
	return l
}

// Record appends one immutable entry, linking it to the chain head.
func (l *Log) Record(ctx context.Context, actor, action, subjectRef string, metadata map[string]interface{}) (*Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := chainGenesis
	if n := len(l.entries); n > 0 {
		prev = l.entries[n-1].EntryHash
	}

	entry := Entry{
		ID:           uuid.New().String(),
		Actor:        actor,
		Action:       action,
		SubjectRef:   subjectRef,
		Metadata:     metadata,
		Timestamp:    l.clock().UTC(),
		PreviousHash: prev,
	}
	hash, err := EntryHash(&entry)
	if err != nil {
		return nil, fmt.Errorf("audit: hash entry: %w", err)
	}
	entry.EntryHash = hash

	l.entries = append(l.entries, entry)
	return &entry, nil
}

// BySubject returns all entries for a subject reference in append order.
func (l *Log) BySubject(ctx context.Context, subjectRef string) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Entry
	for _, e := range l.entries {
		if e.SubjectRef == subjectRef {
			out = append(out, e)
		}
	}
	return out, nil
}

// Entries returns a copy of the full log in append order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// VerifyChain recomputes every hash and link. It returns an error naming
// the first index at which the chain is broken or an entry was altered.
func VerifyChain(entries []Entry) error {
	for i := range entries {
		e := entries[i]
		if i == 0 {
			if e.PreviousHash != chainGenesis {
				return fmt.Errorf("audit: entry 0 has non-genesis previous hash")
			}
		} else if e.PreviousHash != entries[i-1].EntryHash {
			return fmt.Errorf("audit: chain broken at index %d", i)
		}

		computed, err := EntryHash(&e)
		if err != nil {
			return fmt.Errorf("audit: rehash index %d: %w", i, err)
		}
		if computed != e.EntryHash {
			return fmt.Errorf("audit: entry %d content altered", i)
		}
	}
	return nil
}
