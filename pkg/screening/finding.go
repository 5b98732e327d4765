// Package screening implements the policy rule sets that screen trade
// deals, banking instruments and commercial proposals. Evaluation is a
// pure function over a subject snapshot and the reference tables: no I/O,
// no clock reads, and a fixed rule order so that identical input always
// produces identical ordered output.
package screening

import "time"

// Severity orders findings from informational to critical.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	}
	return "UNKNOWN"
}

// ParseSeverity maps a severity label back to its ordered value.
// Unknown labels map to SeverityLow so collaborator output can never
// escalate a finding past what the label warrants.
func ParseSeverity(label string) Severity {
	switch label {
	case "MEDIUM":
		return SeverityMedium
	case "HIGH":
		return SeverityHigh
	case "CRITICAL":
		return SeverityCritical
	default:
		return SeverityLow
	}
}

// FlagType categorizes what policy concern a finding addresses.
type FlagType string

const (
	FlagSanctions            FlagType = "sanctions"
	FlagExportControl        FlagType = "export-control"
	FlagLicensing            FlagType = "licensing"
	FlagAML                  FlagType = "aml"
	FlagDocumentation        FlagType = "documentation"
	FlagIncotermObligation   FlagType = "incoterm-obligation"
	FlagValueThreshold       FlagType = "value-threshold"
	FlagCommodityRestriction FlagType = "commodity-restriction"
	FlagFieldFormat          FlagType = "field-format"
	FlagFieldMismatch        FlagType = "field-mismatch"
	FlagExpiry               FlagType = "expiry"
)

// Finding is one rule's verdict on a subject. Content is immutable once
// persisted; resolution only appends resolver identity, timestamp and
// notes. BlocksExecution is deliberately independent of Severity: a rule
// author may mark a LOW finding as blocking or a CRITICAL one as advisory.
type Finding struct {
	ID          string   `json:"id,omitempty"`
	SubjectKind string   `json:"subject_kind,omitempty"`
	SubjectID   string   `json:"subject_id,omitempty"`
	Type        FlagType `json:"flag_type"`
	Severity    Severity `json:"severity"`

	Message        string `json:"message"`
	Recommendation string `json:"recommendation,omitempty"`

	RequiresHumanReview bool `json:"requires_human_review"`
	BlocksExecution     bool `json:"blocks_execution"`

	// Metadata is an open map; collaborator output may carry fields the
	// engine does not understand and they are preserved as-is.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	Resolved        bool       `json:"resolved"`
	ResolvedBy      string     `json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Blocking reports whether the finding currently blocks clearance.
func (f *Finding) Blocking() bool {
	return f.BlocksExecution && !f.Resolved
}

// HasBlocking reports whether any finding in the list is unresolved and
// marked blocking. This is the clearance predicate: a subject is clearable
// only when HasBlocking over its full finding history is false.
func HasBlocking(findings []Finding) bool {
	for i := range findings {
		if findings[i].Blocking() {
			return true
		}
	}
	return false
}
