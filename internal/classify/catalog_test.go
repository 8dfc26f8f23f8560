package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	catalog := DefaultCatalog()

	require.NoError(t, catalog.Validate())
	assert.Equal(t, "initial", catalog.Fallback().Key)

	// Every built-in rule resolves to a declared state.
	for _, rule := range catalog.Rules {
		_, ok := catalog.Lookup(rule.StateKey)
		assert.True(t, ok, "rule state %q missing from catalog", rule.StateKey)
	}
}

func TestLoadCatalogFromYAML(t *testing.T) {
	content := `
fallback_key: landing
states:
  - key: landing
    display_name: Landing
    indicator_keywords: ["welcome", "sign in"]
    legal_actions: ["login"]
  - key: dashboard
    indicator_keywords: ["overview", "settings"]
rules:
  - require_all: ["overview"]
    state_key: dashboard
    confidence: 0.8
`
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)

	assert.Equal(t, "landing", catalog.FallbackKey)
	require.Len(t, catalog.States, 2)
	assert.Equal(t, []string{"welcome", "sign in"}, catalog.States[0].IndicatorKeywords)
	require.Len(t, catalog.Rules, 1)
	assert.Equal(t, "dashboard", catalog.Rules[0].StateKey)
}

func TestLoadCatalogRejectsInvalid(t *testing.T) {
	content := `
states:
  - key: broken
    indicator_keywords: []
`
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := LoadCatalog(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no indicator keywords")
}

func TestLoadCatalogMissingFile(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
