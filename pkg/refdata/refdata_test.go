package refdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePack = `
version: "1.2.0"
jurisdictions:
  - code: "SY"
    name: "Syria"
    sanctions_tier: "critical"
    required_documents: ["end-user certificate"]
    reviewed_by: "compliance"
  - code: "br"
    name: "Brazil"
    sanctions_tier: "none"
commodities:
  - id: "CU-CATH"
    name: "Copper cathodes"
    category: "base-metals"
    hs_code: "7403.11"
  - id: "DU-238"
    name: "Depleted uranium"
    category: "nuclear"
    restricted: true
    restricted_reason: "dual-use controlled material"
category_documents:
  base-metals: ["certificate of origin", "assay certificate"]
`

func TestLoadPack(t *testing.T) {
	tables, err := Load([]byte(samplePack))
	require.NoError(t, err)

	j, ok := tables.Jurisdiction("SY")
	require.True(t, ok)
	assert.Equal(t, TierCritical, j.SanctionsTier)

	// Lookup is case-insensitive.
	j, ok = tables.Jurisdiction("BR")
	require.True(t, ok)
	assert.Equal(t, "Brazil", j.Name)

	c, ok := tables.Commodity("DU-238")
	require.True(t, ok)
	assert.True(t, c.Restricted)

	_, ok = tables.Commodity("NOPE")
	assert.False(t, ok)

	docs := tables.CategoryDocuments("base-metals")
	assert.Equal(t, []string{"assay certificate", "certificate of origin"}, docs)
}

func TestLoadRejectsIncompatibleMajor(t *testing.T) {
	_, err := Load([]byte(`version: "2.0.0"`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incompatible")
}

func TestLoadRejectsMissingVersion(t *testing.T) {
	_, err := Load([]byte(`jurisdictions: []`))
	require.Error(t, err)
}

func TestLoadRejectsJurisdictionWithoutCode(t *testing.T) {
	_, err := Load([]byte("version: \"1.0.0\"\njurisdictions:\n  - name: \"Nowhere\"\n"))
	require.Error(t, err)
}
