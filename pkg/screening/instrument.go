package screening

import (
	"fmt"
	"math"
	"regexp"
	"time"
)

// Instrument is the snapshot of a banking instrument (letter of credit,
// bank guarantee) at evaluation time. RawText carries the unstructured
// source document; it is analyzed separately by the document collaborator
// and never inside the pure rule set.
type Instrument struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Amount      float64    `json:"amount"`
	Currency    string     `json:"currency"`
	BIC         string     `json:"bic,omitempty"`
	Beneficiary string     `json:"beneficiary,omitempty"`
	Expiry      *time.Time `json:"expiry,omitempty"`
	RawText     string     `json:"raw_text,omitempty"`
}

// Expected is the snapshot the instrument is cross-checked against,
// typically taken from the deal it funds. Nil fields skip their check.
type Expected struct {
	Amount      *float64 `json:"amount,omitempty"`
	Currency    string   `json:"currency,omitempty"`
	Beneficiary string   `json:"beneficiary,omitempty"`
}

var bicPattern = regexp.MustCompile(`^[A-Z]{6}[A-Z0-9]{2}([A-Z0-9]{3})?$`)

const (
	// amountTolerance is the absolute tolerance for amount cross-checks.
	amountTolerance = 0.01
	// expiryWarningWindow flags instruments expiring soon.
	expiryWarningWindow = 30 * 24 * time.Hour
)

// EvaluateInstrument screens an instrument. now is the evaluation
// timestamp, threaded explicitly so the function stays pure. Rules run in
// a fixed order: BIC format, cross-checks against expected, expiry.
//
// CRITICAL instrument findings are blocking: an instrument with any
// unresolved CRITICAL failure cannot pass to verification.
func EvaluateInstrument(inst *Instrument, expected *Expected, now time.Time) []Finding {
	findings := make([]Finding, 0, 4)

	findings = append(findings, bicFindings(inst)...)
	if expected != nil {
		findings = append(findings, crossCheckFindings(inst, expected)...)
	}
	findings = append(findings, expiryFindings(inst, now)...)

	return findings
}

func bicFindings(inst *Instrument) []Finding {
	if inst.BIC == "" {
		return []Finding{{
			Type:                FlagFieldFormat,
			Severity:            SeverityMedium,
			Message:             "no BIC present on the instrument",
			Recommendation:      "Obtain the issuing bank's BIC to enable bank verification",
			RequiresHumanReview: true,
		}}
	}
	if !bicPattern.MatchString(inst.BIC) {
		return []Finding{{
			Type:                FlagFieldFormat,
			Severity:            SeverityCritical,
			Message:             fmt.Sprintf("BIC %q is not a valid ISO 9362 code", inst.BIC),
			Recommendation:      "Reject the instrument or obtain a corrected BIC from the issuer",
			RequiresHumanReview: true,
			BlocksExecution:     true,
		}}
	}
	return nil
}

func crossCheckFindings(inst *Instrument, expected *Expected) []Finding {
	var out []Finding

	if expected.Currency != "" && inst.Currency != expected.Currency {
		out = append(out, Finding{
			Type:                FlagFieldMismatch,
			Severity:            SeverityCritical,
			Message:             fmt.Sprintf("instrument currency %s does not match expected %s", inst.Currency, expected.Currency),
			Recommendation:      "Confirm the funding currency with the issuing bank",
			RequiresHumanReview: true,
			BlocksExecution:     true,
		})
	}
	if expected.Amount != nil && math.Abs(inst.Amount-*expected.Amount) > amountTolerance {
		out = append(out, Finding{
			Type:                FlagFieldMismatch,
			Severity:            SeverityCritical,
			Message:             fmt.Sprintf("instrument amount %.2f differs from expected %.2f", inst.Amount, *expected.Amount),
			Recommendation:      "Reconcile the instrument amount against the underlying deal",
			RequiresHumanReview: true,
			BlocksExecution:     true,
		})
	}
	if expected.Beneficiary != "" && inst.Beneficiary != expected.Beneficiary {
		out = append(out, Finding{
			Type:                FlagFieldMismatch,
			Severity:            SeverityCritical,
			Message:             fmt.Sprintf("beneficiary %q does not match expected %q", inst.Beneficiary, expected.Beneficiary),
			Recommendation:      "Verify the beneficiary with both counterparties before settlement",
			RequiresHumanReview: true,
			BlocksExecution:     true,
		})
	}
	return out
}

func expiryFindings(inst *Instrument, now time.Time) []Finding {
	if inst.Expiry == nil {
		return nil
	}
	remaining := inst.Expiry.Sub(now)
	daysLeft := int(remaining.Hours() / 24)

	if remaining <= 0 {
		return []Finding{{
			Type:                FlagExpiry,
			Severity:            SeverityCritical,
			Message:             fmt.Sprintf("instrument expired on %s", inst.Expiry.Format("2006-01-02")),
			Recommendation:      "Request a re-issued or amended instrument",
			RequiresHumanReview: true,
			BlocksExecution:     true,
			Metadata:            map[string]interface{}{"days_remaining": daysLeft},
		}}
	}
	if remaining <= expiryWarningWindow {
		return []Finding{{
			Type:                FlagExpiry,
			Severity:            SeverityMedium,
			Message:             fmt.Sprintf("instrument expires in %d days", daysLeft),
			Recommendation:      "Complete drawdown or request an extension before expiry",
			RequiresHumanReview: true,
			Metadata:            map[string]interface{}{"days_remaining": daysLeft},
		}}
	}
	return nil
}
