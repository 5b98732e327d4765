package screening

import "fmt"

// Proposal is the snapshot of a commercial proposal at evaluation time.
type Proposal struct {
	ID            string  `json:"id"`
	Counterparty  string  `json:"counterparty"`
	CommodityID   string  `json:"commodity_id"`
	Value         float64 `json:"value"`
	Currency      string  `json:"currency"`
	MarginPercent float64 `json:"margin_percent"`
	PaymentTerms  string  `json:"payment_terms"`
	// CreditScore is the counterparty risk score on a 0-100 scale,
	// higher meaning stronger credit.
	CreditScore float64 `json:"credit_score"`
}

// Payment terms ordered by the credit exposure they create.
const (
	TermPrepay = "prepay"
	TermNet15  = "net-15"
	TermNet30  = "net-30"
)

// termRank orders payment terms by exposure: prepay(0) < net-15(1) < net-30(2).
func termRank(term string) (int, bool) {
	switch term {
	case TermPrepay:
		return 0, true
	case TermNet15:
		return 1, true
	case TermNet30:
		return 2, true
	}
	return 0, false
}

// recommendedTerm maps a credit score to the most generous payment term
// policy allows for that score band.
func recommendedTerm(score float64) string {
	switch {
	case score >= 80:
		return TermNet30
	case score >= 65:
		return TermNet15
	default:
		return TermPrepay
	}
}

// Margin thresholds in percent.
const (
	marginFloor   = 15
	marginWarning = 20
)

// High-value/marginal-credit advisory bounds.
const (
	highValueFloor    = 10_000
	marginalScoreCeil = 70
)

// EvaluateProposal screens a proposal. Rules run in a fixed order:
// required fields, payment terms vs credit band, margin, combined
// value/credit advisory.
func EvaluateProposal(p *Proposal) []Finding {
	findings := make([]Finding, 0, 4)

	findings = append(findings, requiredFieldFindings(p)...)
	findings = append(findings, paymentTermFindings(p)...)
	findings = append(findings, marginFindings(p)...)

	if p.Value > highValueFloor && p.CreditScore < marginalScoreCeil {
		findings = append(findings, Finding{
			Type:           FlagValueThreshold,
			Severity:       SeverityLow,
			Message:        fmt.Sprintf("high-value proposal (%.2f %s) against marginal credit score %.0f", p.Value, p.Currency, p.CreditScore),
			Recommendation: "Consider credit insurance or a partial prepayment",
		})
	}

	return findings
}

func requiredFieldFindings(p *Proposal) []Finding {
	var out []Finding
	required := []struct {
		name  string
		empty bool
	}{
		{"counterparty", p.Counterparty == ""},
		{"commodity_id", p.CommodityID == ""},
		{"currency", p.Currency == ""},
		{"payment_terms", p.PaymentTerms == ""},
	}
	for _, f := range required {
		if f.empty {
			out = append(out, Finding{
				Type:                FlagFieldFormat,
				Severity:            SeverityMedium,
				Message:             fmt.Sprintf("required field %s is missing", f.name),
				Recommendation:      "Complete the proposal before sending",
				RequiresHumanReview: true,
			})
		}
	}
	if p.Value <= 0 {
		out = append(out, Finding{
			Type:                FlagFieldFormat,
			Severity:            SeverityMedium,
			Message:             "proposal value must be positive",
			RequiresHumanReview: true,
		})
	}
	return out
}

func paymentTermFindings(p *Proposal) []Finding {
	if p.PaymentTerms == "" {
		return nil // already reported as a missing field
	}
	proposed, ok := termRank(p.PaymentTerms)
	if !ok {
		return []Finding{{
			Type:                FlagFieldFormat,
			Severity:            SeverityMedium,
			Message:             fmt.Sprintf("unknown payment terms %q", p.PaymentTerms),
			Recommendation:      "Use one of: prepay, net-15, net-30",
			RequiresHumanReview: true,
		}}
	}

	recommended := recommendedTerm(p.CreditScore)
	maxRank, _ := termRank(recommended)
	if proposed > maxRank {
		return []Finding{{
			Type:                FlagValueThreshold,
			Severity:            SeverityHigh,
			Message:             fmt.Sprintf("payment terms %s exceed the %s limit for credit score %.0f", p.PaymentTerms, recommended, p.CreditScore),
			Recommendation:      fmt.Sprintf("Tighten terms to %s or obtain a credit exception", recommended),
			RequiresHumanReview: true,
		}}
	}
	return nil
}

func marginFindings(p *Proposal) []Finding {
	switch {
	case p.MarginPercent < marginFloor:
		return []Finding{{
			Type:                FlagValueThreshold,
			Severity:            SeverityHigh,
			Message:             fmt.Sprintf("margin %.1f%% is below the %d%% floor", p.MarginPercent, marginFloor),
			Recommendation:      "Reprice the proposal or obtain pricing-desk approval",
			RequiresHumanReview: true,
			BlocksExecution:     true,
		}}
	case p.MarginPercent < marginWarning:
		return []Finding{{
			Type:           FlagValueThreshold,
			Severity:       SeverityMedium,
			Message:        fmt.Sprintf("margin %.1f%% is below the %d%% target", p.MarginPercent, marginWarning),
			Recommendation: "Review pricing against current market levels",
		}}
	}
	return nil
}
