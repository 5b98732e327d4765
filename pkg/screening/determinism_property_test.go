// Property-based determinism tests: for any subject snapshot and fixed
// reference data, evaluating twice yields byte-identical ordered output.
package screening

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func marshalFindings(t []Finding) string {
	b, _ := json.Marshal(t)
	return string(b)
}

func TestDealEvaluationDeterminism(t *testing.T) {
	ref := newFakeRef()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	countries := gen.OneConstOf("SY", "RU", "EG", "CH", "BR", "ZZ")
	commodities := gen.OneConstOf("CU-CATH", "DU-238", "XX-UNKNOWN", "")
	incoterms := gen.OneConstOf("DDP", "FOB", "CIF", "EXW", "FCA", "")

	properties.Property("deal evaluation is deterministic", prop.ForAll(
		func(value float64, origin, destination, commodity, incoterm string) bool {
			deal := &Deal{
				ID:                 "DL-P",
				CommodityID:        commodity,
				Value:              value,
				Currency:           "USD",
				OriginCountry:      origin,
				DestinationCountry: destination,
				Incoterm:           incoterm,
			}
			first := marshalFindings(EvaluateDeal(deal, ref))
			second := marshalFindings(EvaluateDeal(deal, ref))
			return first == second
		},
		gen.Float64Range(0, 1_000_000),
		countries, countries, commodities, incoterms,
	))

	properties.TestingRun(t)
}

func TestInstrumentEvaluationDeterminism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("instrument evaluation is deterministic", prop.ForAll(
		func(amount float64, bic string, expiryDays int) bool {
			expiry := now.AddDate(0, 0, expiryDays)
			inst := &Instrument{Amount: amount, Currency: "USD", BIC: bic, Expiry: &expiry}
			expected := &Expected{Amount: &amount, Currency: "USD"}
			first := marshalFindings(EvaluateInstrument(inst, expected, now))
			second := marshalFindings(EvaluateInstrument(inst, expected, now))
			return first == second
		},
		gen.Float64Range(0, 10_000_000),
		gen.AlphaString(),
		gen.IntRange(-60, 365),
	))

	properties.TestingRun(t)
}
