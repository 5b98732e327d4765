package gate

import "errors"

var (
	// ErrValidation marks malformed input, rejected before any persistence.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing subject, finding or reference row.
	ErrNotFound = errors.New("not found")
	// ErrPrecondition marks a state-machine violation: approving a subject
	// not under review, resolving an already-resolved finding, or losing a
	// compare-and-set race.
	ErrPrecondition = errors.New("precondition failed")
	// ErrExternalService marks a collaborator failure (document analysis,
	// ledger). Callers downgrade it to advisory output; it never aborts an
	// evaluation.
	ErrExternalService = errors.New("external service failed")
)
