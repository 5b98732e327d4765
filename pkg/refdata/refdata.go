// Package refdata holds the slowly-changing compliance lookup tables:
// jurisdictions (sanctions tiers, documentation requirements) and
// commodities (HS codes, restriction flags). The tables are maintained by
// compliance staff as versioned YAML packs and are read-only from the
// rule evaluator's perspective.
package refdata

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// SanctionsTier classifies a jurisdiction's sanctions exposure.
type SanctionsTier string

const (
	TierNone     SanctionsTier = "none"
	TierMedium   SanctionsTier = "medium"
	TierHigh     SanctionsTier = "high"
	TierCritical SanctionsTier = "critical"
)

// Jurisdiction is one row of the jurisdiction table.
type Jurisdiction struct {
	Code              string        `yaml:"code" json:"code"`
	Name              string        `yaml:"name" json:"name"`
	SanctionsTier     SanctionsTier `yaml:"sanctions_tier" json:"sanctions_tier"`
	AMLNotes          string        `yaml:"aml_notes" json:"aml_notes,omitempty"`
	LicensingNotes    string        `yaml:"licensing_notes" json:"licensing_notes,omitempty"`
	RequiredDocuments []string      `yaml:"required_documents" json:"required_documents,omitempty"`
	SourceURLs        []string      `yaml:"source_urls" json:"source_urls,omitempty"`
	LastReviewed      time.Time     `yaml:"last_reviewed" json:"last_reviewed"`
	ReviewedBy        string        `yaml:"reviewed_by" json:"reviewed_by"`
}

// Commodity is one row of the commodity table.
type Commodity struct {
	ID               string `yaml:"id" json:"id"`
	Name             string `yaml:"name" json:"name"`
	Category         string `yaml:"category" json:"category"`
	HSCode           string `yaml:"hs_code" json:"hs_code"`
	Restricted       bool   `yaml:"restricted" json:"restricted"`
	RestrictedReason string `yaml:"restricted_reason" json:"restricted_reason,omitempty"`
}

// Store is the read-only lookup surface consumed by rule evaluation.
type Store interface {
	Jurisdiction(code string) (*Jurisdiction, bool)
	Commodity(id string) (*Commodity, bool)
	// CategoryDocuments returns documents required for a commodity category,
	// sorted, or nil if the category carries no extra documentation.
	CategoryDocuments(category string) []string
}

// packVersion is the pack schema version this build understands.
// Packs with a different major version are refused at load time.
const packVersion = "1.0.0"

// Pack is the on-disk YAML representation of the reference tables.
type Pack struct {
	Version           string              `yaml:"version"`
	Jurisdictions     []Jurisdiction      `yaml:"jurisdictions"`
	Commodities       []Commodity         `yaml:"commodities"`
	CategoryDocuments map[string][]string `yaml:"category_documents"`
}

// Tables is an immutable in-memory Store built from a Pack.
type Tables struct {
	jurisdictions map[string]*Jurisdiction
	commodities   map[string]*Commodity
	categoryDocs  map[string][]string
}

// LoadFile reads and indexes a reference pack from a YAML file.
func LoadFile(path string) (*Tables, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("refdata: read pack: %w", err)
	}
	return Load(raw)
}

// Load parses a YAML pack and builds the lookup tables.
func Load(raw []byte) (*Tables, error) {
	var pack Pack
	if err := yaml.Unmarshal(raw, &pack); err != nil {
		return nil, fmt.Errorf("refdata: parse pack: %w", err)
	}
	if err := checkPackVersion(pack.Version); err != nil {
		return nil, err
	}

	t := &Tables{
		jurisdictions: make(map[string]*Jurisdiction, len(pack.Jurisdictions)),
		commodities:   make(map[string]*Commodity, len(pack.Commodities)),
		categoryDocs:  make(map[string][]string, len(pack.CategoryDocuments)),
	}
	for i := range pack.Jurisdictions {
		j := pack.Jurisdictions[i]
		if j.Code == "" {
			return nil, fmt.Errorf("refdata: jurisdiction %d missing code", i)
		}
		t.jurisdictions[strings.ToUpper(j.Code)] = &j
	}
	for i := range pack.Commodities {
		c := pack.Commodities[i]
		if c.ID == "" {
			return nil, fmt.Errorf("refdata: commodity %d missing id", i)
		}
		t.commodities[c.ID] = &c
	}
	for cat, docs := range pack.CategoryDocuments {
		sorted := append([]string(nil), docs...)
		sort.Strings(sorted)
		t.categoryDocs[cat] = sorted
	}
	return t, nil
}

func checkPackVersion(v string) error {
	if v == "" {
		return fmt.Errorf("refdata: pack missing version")
	}
	got, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("refdata: invalid pack version %q: %w", v, err)
	}
	want := semver.MustParse(packVersion)
	if got.Major() != want.Major() {
		return fmt.Errorf("refdata: pack version %s incompatible with supported %s", v, packVersion)
	}
	return nil
}

// Jurisdiction looks up a jurisdiction by ISO code (case-insensitive).
func (t *Tables) Jurisdiction(code string) (*Jurisdiction, bool) {
	j, ok := t.jurisdictions[strings.ToUpper(code)]
	return j, ok
}

// Commodity looks up a commodity by internal identifier.
func (t *Tables) Commodity(id string) (*Commodity, bool) {
	c, ok := t.commodities[id]
	return c, ok
}

// CategoryDocuments returns the sorted document list for a category.
func (t *Tables) CategoryDocuments(category string) []string {
	return t.categoryDocs[category]
}
