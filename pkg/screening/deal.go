package screening

import (
	"fmt"
	"sort"
	"strings"

	"github.com/FTHTrading/boutique-sub000/pkg/refdata"
)

// Deal is the snapshot of a trade deal at evaluation time.
type Deal struct {
	ID                 string  `json:"id"`
	CommodityID        string  `json:"commodity_id"`
	Value              float64 `json:"value"`
	Currency           string  `json:"currency"`
	OriginCountry      string  `json:"origin_country"`
	DestinationCountry string  `json:"destination_country"`
	Incoterm           string  `json:"incoterm"`
	Quantity           float64 `json:"quantity"`
	QuantityUnit       string  `json:"quantity_unit,omitempty"`
}

// AML value thresholds in deal currency units.
const (
	amlReportingAdvisoryMin  = 10_000
	amlEnhancedDiligenceMin  = 50_000
	amlReportingThresholdMin = 100_000
)

// EvaluateDeal screens a deal against the reference tables. Rules run in
// a fixed order (destination sanctions, origin sanctions, AML thresholds,
// commodity restrictions, incoterm advisories, documentation) so output
// is deterministic for identical input. Missing reference rows are
// findings, never errors.
func EvaluateDeal(deal *Deal, ref refdata.Store) []Finding {
	findings := make([]Finding, 0, 8)

	findings = append(findings, sanctionsFindings(deal.DestinationCountry, "destination", ref)...)
	findings = append(findings, sanctionsFindings(deal.OriginCountry, "origin", ref)...)
	findings = append(findings, amlFindings(deal)...)
	findings = append(findings, commodityFindings(deal, ref)...)
	findings = append(findings, incotermFindings(deal)...)
	findings = append(findings, documentationFindings(deal, ref)...)

	return findings
}

func sanctionsFindings(country, role string, ref refdata.Store) []Finding {
	j, ok := ref.Jurisdiction(country)
	if !ok {
		return []Finding{{
			Type:                FlagSanctions,
			Severity:            SeverityHigh,
			Message:             fmt.Sprintf("%s jurisdiction %q not present in reference data; sanctions screening incomplete", role, country),
			Recommendation:      "Request compliance to add the jurisdiction before proceeding",
			RequiresHumanReview: true,
		}}
	}

	switch j.SanctionsTier {
	case refdata.TierCritical:
		return []Finding{{
			Type:                FlagSanctions,
			Severity:            SeverityCritical,
			Message:             fmt.Sprintf("%s country %s is in a critical sanctions-risk tier", role, j.Code),
			Recommendation:      "Do not proceed without legal sign-off; full sanctions screening of all parties required",
			RequiresHumanReview: true,
			BlocksExecution:     true,
		}}
	case refdata.TierHigh:
		return []Finding{{
			Type:                FlagSanctions,
			Severity:            SeverityHigh,
			Message:             fmt.Sprintf("%s country %s is in a high sanctions-risk tier", role, j.Code),
			Recommendation:      "Screen all counterparties against current sanctions lists",
			RequiresHumanReview: true,
		}}
	case refdata.TierMedium:
		return []Finding{{
			Type:           FlagSanctions,
			Severity:       SeverityMedium,
			Message:        fmt.Sprintf("%s country %s is in a medium sanctions-risk tier", role, j.Code),
			Recommendation: "Verify counterparty ownership structure",
		}}
	}
	return nil
}

func amlFindings(deal *Deal) []Finding {
	var out []Finding
	if deal.Value >= amlEnhancedDiligenceMin {
		out = append(out, Finding{
			Type:                FlagAML,
			Severity:            SeverityHigh,
			Message:             fmt.Sprintf("deal value %.2f %s meets the enhanced due-diligence threshold", deal.Value, deal.Currency),
			Recommendation:      "Perform enhanced due diligence on source of funds and beneficial ownership",
			RequiresHumanReview: true,
		})
	}
	if deal.Value >= amlReportingThresholdMin {
		out = append(out, Finding{
			Type:                FlagValueThreshold,
			Severity:            SeverityHigh,
			Message:             fmt.Sprintf("deal value %.2f %s exceeds the large-transaction reporting threshold", deal.Value, deal.Currency),
			Recommendation:      "Assess whether a regulatory transaction report is required",
			RequiresHumanReview: true,
		})
	}
	if deal.Value >= amlReportingAdvisoryMin && deal.Value < amlEnhancedDiligenceMin {
		out = append(out, Finding{
			Type:           FlagValueThreshold,
			Severity:       SeverityLow,
			Message:        fmt.Sprintf("deal value %.2f %s is above the reporting advisory floor", deal.Value, deal.Currency),
			Recommendation: "Retain settlement records for the standard reporting window",
		})
	}
	return out
}

func commodityFindings(deal *Deal, ref refdata.Store) []Finding {
	c, ok := ref.Commodity(deal.CommodityID)
	if !ok {
		// A commodity we cannot classify cannot be cleared: the lookup
		// failure is itself a blocking finding.
		return []Finding{{
			Type:                FlagCommodityRestriction,
			Severity:            SeverityHigh,
			Message:             fmt.Sprintf("commodity %q is not present in the commodity table", deal.CommodityID),
			Recommendation:      "Have compliance classify the commodity before clearance",
			RequiresHumanReview: true,
			BlocksExecution:     true,
		}}
	}
	if c.Restricted {
		return []Finding{{
			Type:                FlagCommodityRestriction,
			Severity:            SeverityHigh,
			Message:             fmt.Sprintf("commodity %s (%s) is restricted: %s", c.ID, c.Name, c.RestrictedReason),
			Recommendation:      "Confirm export licensing before any shipment commitment",
			RequiresHumanReview: true,
			BlocksExecution:     true,
		}}
	}
	return nil
}

// incotermFindings are informational obligations attached to the agreed
// incoterm. They never block.
func incotermFindings(deal *Deal) []Finding {
	switch strings.ToUpper(deal.Incoterm) {
	case "DDP":
		return []Finding{{
			Type:           FlagIncotermObligation,
			Severity:       SeverityMedium,
			Message:        "DDP places import clearance, duties and taxes on the seller",
			Recommendation: "Confirm the seller can act as importer of record in the destination country",
		}}
	case "FOB", "CIF":
		return []Finding{{
			Type:           FlagIncotermObligation,
			Severity:       SeverityLow,
			Message:        fmt.Sprintf("%s transfers risk at the loading port; confirm marine insurance coverage", strings.ToUpper(deal.Incoterm)),
			Recommendation: "Verify insurance certificates before loading",
		}}
	case "EXW":
		return []Finding{{
			Type:           FlagIncotermObligation,
			Severity:       SeverityLow,
			Message:        "EXW places export clearance on the buyer",
			Recommendation: "Confirm the buyer holds any required export licences",
		}}
	}
	return nil
}

func documentationFindings(deal *Deal, ref refdata.Store) []Finding {
	docs := make([]string, 0, 4)
	if j, ok := ref.Jurisdiction(deal.DestinationCountry); ok {
		docs = append(docs, j.RequiredDocuments...)
	}
	if c, ok := ref.Commodity(deal.CommodityID); ok {
		docs = append(docs, ref.CategoryDocuments(c.Category)...)
	}
	if len(docs) == 0 {
		return nil
	}

	sort.Strings(docs)
	docs = dedupe(docs)
	return []Finding{{
		Type:           FlagDocumentation,
		Severity:       SeverityMedium,
		Message:        fmt.Sprintf("deal requires documentation: %s", strings.Join(docs, ", ")),
		Recommendation: "Collect the listed documents before settlement",
		Metadata:       map[string]interface{}{"required_documents": docs},
	}}
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
