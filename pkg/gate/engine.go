package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/FTHTrading/boutique-sub000/pkg/audit"
	"github.com/FTHTrading/boutique-sub000/pkg/refdata"
	"github.com/FTHTrading/boutique-sub000/pkg/screening"
)

// Clock provides evaluation time for the engine. Threaded explicitly so
// rule evaluation stays a pure, testable function.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// SubjectStore is the subject persistence surface the engine requires.
// Implementations back the conditional updates with compare-and-set
// semantics at the storage layer.
type SubjectStore interface {
	Get(ctx context.Context, ref SubjectRef) (*Subject, error)

	// SetScreened records the outcome of automated screening. to must be
	// StatusUnderReview or StatusRejected; implementations refuse any
	// other value and never overwrite an approved subject.
	SetScreened(ctx context.Context, ref SubjectRef, to Status) error

	// Transition performs a single conditional update: status moves from
	// from to to only if the stored status still equals from. A lost race
	// or stale expectation surfaces as ErrPrecondition.
	Transition(ctx context.Context, ref SubjectRef, from, to Status) error
}

// FindingStore persists findings append-only. Repeated screening appends
// repeated findings: each run is a distinct audit event.
type FindingStore interface {
	Append(ctx context.Context, ref SubjectRef, findings []screening.Finding) ([]screening.Finding, error)
	ListBySubject(ctx context.Context, ref SubjectRef) ([]screening.Finding, error)
	Get(ctx context.Context, id string) (*screening.Finding, error)

	// Resolve marks a finding resolved exactly once; a second attempt
	// fails with ErrPrecondition. Original content is never edited.
	Resolve(ctx context.Context, id, resolver, notes string, at time.Time) error
}

// DocumentAnalyzer is the text-generation collaborator. Its output is
// advisory only and is clamped by the engine before persistence.
type DocumentAnalyzer interface {
	ReviewText(ctx context.Context, text string) ([]screening.Finding, error)
}

// PolicyAdvisor contributes extra advisory findings from staff-authored
// policy expressions.
type PolicyAdvisor interface {
	Advise(ctx context.Context, kind string, subject map[string]interface{}) []screening.Finding
}

// Engine orchestrates screening, clearance and the human approval gate.
type Engine struct {
	subjects SubjectStore
	findings FindingStore
	ref      refdata.Store
	clock    Clock

	auditLog audit.Logger
	docs     DocumentAnalyzer
	advisor  PolicyAdvisor
	logger   *slog.Logger
}

// NewEngine creates an engine. If clock is nil a wall clock is used.
func NewEngine(subjects SubjectStore, findings FindingStore, ref refdata.Store, clock ...Clock) *Engine {
	var c Clock = wallClock{}
	if len(clock) > 0 && clock[0] != nil {
		c = clock[0]
	}
	return &Engine{
		subjects: subjects,
		findings: findings,
		ref:      ref,
		clock:    c,
		logger:   slog.Default().With("component", "gate"),
	}
}

// SetAuditLog injects the audit logger.
func (e *Engine) SetAuditLog(l audit.Logger) { e.auditLog = l }

// SetDocumentAnalyzer injects the text-generation collaborator.
func (e *Engine) SetDocumentAnalyzer(d DocumentAnalyzer) { e.docs = d }

// SetPolicyAdvisor injects the staff policy rule advisor.
func (e *Engine) SetPolicyAdvisor(a PolicyAdvisor) { e.advisor = a }

// SetLogger overrides the default slog logger.
func (e *Engine) SetLogger(l *slog.Logger) { e.logger = l }

// SystemActor is the audit actor recorded for automated screening runs.
const SystemActor = "system"

// Audit action names.
const (
	ActionScreened        = "SCREENED"
	ActionApproved        = "APPROVED"
	ActionRejected        = "REJECTED"
	ActionFindingResolved = "FINDING_RESOLVED"
)

// Screen runs the applicable rule set for the subject, persists the
// resulting findings and recomputes the gate status. The automated path
// can only produce under_review or rejected; it is structurally unable
// to write approved.
func (e *Engine) Screen(ctx context.Context, ref SubjectRef) ([]screening.Finding, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	subject, err := e.subjects.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if subject.Status == StatusApproved {
		return nil, fmt.Errorf("%w: subject %s is already %s", ErrPrecondition, ref, ref.Kind.PositiveLabel())
	}

	findings := e.evaluate(ctx, subject)

	persisted, err := e.findings.Append(ctx, ref, findings)
	if err != nil {
		return nil, fmt.Errorf("persist findings for %s: %w", ref, err)
	}

	// Clearance is recomputed over the full finding history, never cached.
	all, err := e.findings.ListBySubject(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("list findings for %s: %w", ref, err)
	}
	next := StatusUnderReview
	if screening.HasBlocking(all) {
		next = StatusRejected
	}
	if err := e.subjects.SetScreened(ctx, ref, next); err != nil {
		return nil, fmt.Errorf("update status for %s: %w", ref, err)
	}

	e.record(ctx, SystemActor, ActionScreened, ref, map[string]interface{}{
		"findings": len(persisted),
		"blocking": next == StatusRejected,
		"status":   string(next),
	})
	return persisted, nil
}

// evaluate runs the deterministic rule set for the subject kind, then
// merges advisory findings from the policy advisor and, for instruments
// with raw text, the document collaborator.
func (e *Engine) evaluate(ctx context.Context, subject *Subject) []screening.Finding {
	var findings []screening.Finding
	switch subject.Ref.Kind {
	case KindDeal:
		findings = screening.EvaluateDeal(subject.Deal, e.ref)
	case KindInstrument:
		findings = screening.EvaluateInstrument(subject.Instrument, subject.Expected, e.clock.Now())
		findings = append(findings, e.documentFindings(ctx, subject.Instrument)...)
	case KindProposal:
		findings = screening.EvaluateProposal(subject.Proposal)
	}

	if e.advisor != nil {
		if m, err := toMap(subject); err == nil {
			findings = append(findings, clampAdvisory(e.advisor.Advise(ctx, string(subject.Ref.Kind), m))...)
		}
	}
	return findings
}

// documentFindings runs the unstructured-document pass. Collaborator
// output is never authoritative: severities are clamped and a failed call
// becomes an advisory finding rather than an error.
func (e *Engine) documentFindings(ctx context.Context, inst *screening.Instrument) []screening.Finding {
	if e.docs == nil || inst.RawText == "" {
		return nil
	}
	suggested, err := e.docs.ReviewText(ctx, inst.RawText)
	if err != nil {
		e.logger.Warn("document analysis unavailable", "instrument", inst.ID, "error", err)
		return []screening.Finding{{
			Type:                screening.FlagDocumentation,
			Severity:            screening.SeverityLow,
			Message:             "automated document analysis was unavailable for this instrument",
			Recommendation:      "Review the instrument text manually",
			RequiresHumanReview: true,
			Metadata:            map[string]interface{}{"error": err.Error()},
		}}
	}
	return clampAdvisory(suggested)
}

// clampAdvisory caps collaborator findings at MEDIUM severity and strips
// any blocking bit: advisory sources cannot block execution and can
// never reach a terminal state by themselves.
func clampAdvisory(findings []screening.Finding) []screening.Finding {
	out := make([]screening.Finding, 0, len(findings))
	for _, f := range findings {
		if f.Severity > screening.SeverityMedium {
			f.Severity = screening.SeverityMedium
		}
		f.BlocksExecution = false
		f.RequiresHumanReview = true
		out = append(out, f)
	}
	return out
}

// Approve moves a subject from under_review to approved. This is the
// only operation in the system that writes the approved status, and it
// requires an explicit human actor.
func (e *Engine) Approve(ctx context.Context, ref SubjectRef, approver, notes string) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if approver == "" {
		return fmt.Errorf("%w: approver identity required", ErrValidation)
	}
	if _, err := e.subjects.Get(ctx, ref); err != nil {
		return err
	}

	// Clearance gate: approval is refused while any unresolved blocking
	// finding exists, regardless of the stored status.
	all, err := e.findings.ListBySubject(ctx, ref)
	if err != nil {
		return fmt.Errorf("list findings for %s: %w", ref, err)
	}
	if screening.HasBlocking(all) {
		return fmt.Errorf("%w: subject %s has unresolved blocking findings", ErrPrecondition, ref)
	}

	if err := e.subjects.Transition(ctx, ref, StatusUnderReview, StatusApproved); err != nil {
		return err
	}
	e.record(ctx, approver, ActionApproved, ref, map[string]interface{}{
		"notes": notes,
		"label": ref.Kind.PositiveLabel(),
	})
	return nil
}

// Reject moves a subject from under_review to rejected on explicit human
// decision. A rejected subject may be screened again after remediation.
func (e *Engine) Reject(ctx context.Context, ref SubjectRef, reviewer, reason string) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if reviewer == "" {
		return fmt.Errorf("%w: reviewer identity required", ErrValidation)
	}
	if err := e.subjects.Transition(ctx, ref, StatusUnderReview, StatusRejected); err != nil {
		return err
	}
	e.record(ctx, reviewer, ActionRejected, ref, map[string]interface{}{"reason": reason})
	return nil
}

// ResolveFinding marks a finding resolved. The finding's original content
// is untouched; only resolver identity, timestamp and notes are appended.
func (e *Engine) ResolveFinding(ctx context.Context, findingID, resolver, notes string) error {
	if findingID == "" || resolver == "" {
		return fmt.Errorf("%w: finding id and resolver required", ErrValidation)
	}
	if err := e.findings.Resolve(ctx, findingID, resolver, notes, e.clock.Now()); err != nil {
		return err
	}

	f, err := e.findings.Get(ctx, findingID)
	if err != nil {
		return err
	}
	ref := SubjectRef{Kind: Kind(f.SubjectKind), ID: f.SubjectID}
	e.record(ctx, resolver, ActionFindingResolved, ref, map[string]interface{}{
		"finding_id": findingID,
		"flag_type":  string(f.Type),
	})
	return nil
}

// Clearance recomputes the derived "no unresolved blocking findings"
// boolean from the full finding history.
func (e *Engine) Clearance(ctx context.Context, ref SubjectRef) (bool, error) {
	if err := ref.Validate(); err != nil {
		return false, err
	}
	all, err := e.findings.ListBySubject(ctx, ref)
	if err != nil {
		return false, err
	}
	return !screening.HasBlocking(all), nil
}

// Findings returns the ordered finding history for a subject.
func (e *Engine) Findings(ctx context.Context, ref SubjectRef) ([]screening.Finding, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return e.findings.ListBySubject(ctx, ref)
}

// record writes one audit entry. Audit persistence is best-effort on top
// of the already-committed mutation: a failure goes to the fallback log
// channel and does not roll anything back.
func (e *Engine) record(ctx context.Context, actor, action string, ref SubjectRef, metadata map[string]interface{}) {
	if e.auditLog == nil {
		return
	}
	if _, err := e.auditLog.Record(ctx, actor, action, ref.String(), metadata); err != nil {
		e.logger.Error("audit write failed", "action", action, "subject", ref.String(), "error", err)
	}
}

func toMap(v interface{}) (map[string]interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
