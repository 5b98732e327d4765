package docai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/FTHTrading/boutique-sub000/pkg/gate"
	"github.com/FTHTrading/boutique-sub000/pkg/screening"
)

// suggestionSchema is the shape the collaborator must return. Unknown
// extra properties are allowed and carried through as finding metadata.
const suggestionSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["suggestions"],
  "properties": {
    "suggestions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["message"],
        "properties": {
          "flag_type": {"type": "string"},
          "severity": {"type": "string"},
          "message": {"type": "string", "minLength": 1},
          "recommendation": {"type": "string"}
        }
      }
    }
  }
}`

const reviewPrompt = `You are reviewing the text of a trade finance instrument.
List any inconsistencies, unusual clauses, or missing standard terms.
Respond with JSON only, in the form
{"suggestions":[{"flag_type":"documentation","severity":"LOW|MEDIUM","message":"...","recommendation":"..."}]}.

Instrument text:
`

// Analyzer turns collaborator completions into advisory findings.
type Analyzer struct {
	client Client
	schema *jsonschema.Schema
}

// NewAnalyzer compiles the response schema and wraps the client.
func NewAnalyzer(client Client) (*Analyzer, error) {
	schema, err := jsonschema.CompileString("docai://suggestions.json", suggestionSchema)
	if err != nil {
		return nil, fmt.Errorf("docai: compile schema: %w", err)
	}
	return &Analyzer{client: client, schema: schema}, nil
}

// ReviewText sends the instrument text for analysis and returns the
// validated suggestions as advisory findings. Findings from this path
// carry source metadata and are clamped again by the gate engine before
// persistence.
func (a *Analyzer) ReviewText(ctx context.Context, text string) ([]screening.Finding, error) {
	raw, err := a.client.Generate(ctx, reviewPrompt+text)
	if err != nil {
		return nil, err
	}

	payload := extractJSON(raw)
	if payload == "" {
		return nil, fmt.Errorf("%w: no JSON object in completion", gate.ErrExternalService)
	}

	var doc interface{}
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, fmt.Errorf("%w: malformed collaborator JSON: %v", gate.ErrExternalService, err)
	}
	if err := a.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: collaborator output failed validation: %v", gate.ErrExternalService, err)
	}

	root, _ := doc.(map[string]interface{})
	rawSuggestions, _ := root["suggestions"].([]interface{})

	findings := make([]screening.Finding, 0, len(rawSuggestions))
	for _, s := range rawSuggestions {
		entry, ok := s.(map[string]interface{})
		if !ok {
			continue
		}
		findings = append(findings, suggestionToFinding(entry))
	}
	return findings, nil
}

// suggestionToFinding maps one validated suggestion to a finding.
// Unknown severity labels become LOW, and the result is capped
// at MEDIUM; any fields beyond the known ones survive in Metadata.
func suggestionToFinding(entry map[string]interface{}) screening.Finding {
	f := screening.Finding{
		Type:                screening.FlagDocumentation,
		Severity:            screening.SeverityLow,
		RequiresHumanReview: true,
		Metadata:            map[string]interface{}{"source": "docai"},
	}

	for k, v := range entry {
		switch k {
		case "flag_type":
			if s, ok := v.(string); ok && knownFlag(screening.FlagType(s)) {
				f.Type = screening.FlagType(s)
			}
		case "severity":
			if s, ok := v.(string); ok {
				f.Severity = screening.ParseSeverity(s)
			}
		case "message":
			f.Message, _ = v.(string)
		case "recommendation":
			f.Recommendation, _ = v.(string)
		default:
			f.Metadata[k] = v
		}
	}

	if f.Severity > screening.SeverityMedium {
		f.Severity = screening.SeverityMedium
	}
	return f
}

func knownFlag(t screening.FlagType) bool {
	switch t {
	case screening.FlagSanctions, screening.FlagExportControl, screening.FlagLicensing,
		screening.FlagAML, screening.FlagDocumentation, screening.FlagIncotermObligation,
		screening.FlagValueThreshold, screening.FlagCommodityRestriction,
		screening.FlagFieldFormat, screening.FlagFieldMismatch, screening.FlagExpiry:
		return true
	}
	return false
}

// extractJSON pulls the outermost JSON object out of a completion that
// may be wrapped in prose or code fences.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
