// Package gate implements the human-gated approval state machine shared
// by deals, instruments and proposals. Automated screening can move a
// subject into under_review or rejected only; the sole path to the
// positive terminal state is an explicit, audited human approval from
// under_review.
package gate

import (
	"fmt"

	"github.com/FTHTrading/boutique-sub000/pkg/screening"
)

// Kind tags the subject variant.
type Kind string

const (
	KindDeal       Kind = "deal"
	KindInstrument Kind = "instrument"
	KindProposal   Kind = "proposal"
)

// Valid reports whether k names a known subject kind.
func (k Kind) Valid() bool {
	switch k {
	case KindDeal, KindInstrument, KindProposal:
		return true
	}
	return false
}

// PositiveLabel is the domain name each kind uses for the approved state.
func (k Kind) PositiveLabel() string {
	switch k {
	case KindDeal:
		return "cleared"
	case KindInstrument:
		return "verified"
	default:
		return "approved"
	}
}

// Status is the gate status of a subject.
type Status string

const (
	StatusUnscreened  Status = "unscreened"
	StatusUnderReview Status = "under_review"
	StatusRejected    Status = "rejected"
	StatusApproved    Status = "approved"
)

// SubjectRef identifies a subject across stores and the audit log.
type SubjectRef struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

func (r SubjectRef) String() string {
	return fmt.Sprintf("%s/%s", r.Kind, r.ID)
}

// Validate rejects malformed references before any store access.
func (r SubjectRef) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown subject kind %q", ErrValidation, r.Kind)
	}
	if r.ID == "" {
		return fmt.Errorf("%w: empty subject id", ErrValidation)
	}
	return nil
}

// Subject is the tagged variant over the three screened record shapes.
// Exactly one payload field matching Ref.Kind is set; Expected is the
// optional cross-check snapshot for instruments.
type Subject struct {
	Ref    SubjectRef `json:"ref"`
	Status Status     `json:"status"`

	Deal       *screening.Deal       `json:"deal,omitempty"`
	Instrument *screening.Instrument `json:"instrument,omitempty"`
	Expected   *screening.Expected   `json:"expected,omitempty"`
	Proposal   *screening.Proposal   `json:"proposal,omitempty"`
}

// Validate checks that the payload matches the declared kind.
func (s *Subject) Validate() error {
	if err := s.Ref.Validate(); err != nil {
		return err
	}
	switch s.Ref.Kind {
	case KindDeal:
		if s.Deal == nil {
			return fmt.Errorf("%w: deal subject missing deal payload", ErrValidation)
		}
	case KindInstrument:
		if s.Instrument == nil {
			return fmt.Errorf("%w: instrument subject missing instrument payload", ErrValidation)
		}
	case KindProposal:
		if s.Proposal == nil {
			return fmt.Errorf("%w: proposal subject missing proposal payload", ErrValidation)
		}
	}
	return nil
}
