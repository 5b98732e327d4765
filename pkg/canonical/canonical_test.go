package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJCSSortsKeys(t *testing.T) {
	out, err := JCS(map[string]interface{}{
		"zulu":  1,
		"alpha": "x",
		"mike":  true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"x","mike":true,"zulu":1}`, string(out))
}

func TestHashIndependentOfKeyOrder(t *testing.T) {
	// Same logical object constructed in different source orders must
	// produce the same digest.
	a := map[string]interface{}{
		"amount":   120000,
		"currency": "USD",
		"parties":  []interface{}{"buyer", "seller"},
	}
	b := map[string]interface{}{
		"parties":  []interface{}{"buyer", "seller"},
		"currency": "USD",
		"amount":   120000,
	}

	ha, err := Hash(a)
	require.NoError(t, err)
	hb, err := Hash(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)
}

func TestHashStableAcrossCalls(t *testing.T) {
	obj := map[string]interface{}{"doc": "lc-draft", "rev": 3}
	h1, err := Hash(obj)
	require.NoError(t, err)
	h2, err := Hash(obj)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestJCSDisablesHTMLEscaping(t *testing.T) {
	out, err := JCS(map[string]interface{}{"clause": "a<b&c>d"})
	require.NoError(t, err)
	assert.Equal(t, `{"clause":"a<b&c>d"}`, string(out))
}
