package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCatalog() StateCatalog {
	return StateCatalog{
		FallbackKey: "initial",
		States: []ScreenState{
			{Key: "initial", IndicatorKeywords: []string{"sign in"}},
			{Key: "main_app", IndicatorKeywords: []string{"post", "chat"}},
		},
		Rules: []HeuristicRule{
			{RequireAll: []string{"post"}, StateKey: "main_app", Confidence: 0.8},
		},
	}
}

func TestStateCatalogValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(c *StateCatalog)
		wantErr string
	}{
		{
			name:   "valid catalog",
			mutate: func(c *StateCatalog) {},
		},
		{
			name:    "no states",
			mutate:  func(c *StateCatalog) { c.States = nil },
			wantErr: "at least one state",
		},
		{
			name:    "empty key",
			mutate:  func(c *StateCatalog) { c.States[0].Key = "" },
			wantErr: "empty key",
		},
		{
			name:    "duplicate key",
			mutate:  func(c *StateCatalog) { c.States[1].Key = "initial" },
			wantErr: "duplicate state key",
		},
		{
			name:    "no indicator keywords",
			mutate:  func(c *StateCatalog) { c.States[0].IndicatorKeywords = nil },
			wantErr: "no indicator keywords",
		},
		{
			name:    "rule references unknown state",
			mutate:  func(c *StateCatalog) { c.Rules[0].StateKey = "ghost" },
			wantErr: "unknown state",
		},
		{
			name:    "rule confidence out of range",
			mutate:  func(c *StateCatalog) { c.Rules[0].Confidence = 1.5 },
			wantErr: "outside [0,1]",
		},
		{
			name:    "unknown fallback",
			mutate:  func(c *StateCatalog) { c.FallbackKey = "ghost" },
			wantErr: "not declared",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			catalog := validCatalog()
			tc.mutate(&catalog)
			err := catalog.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestStateCatalogLookupAndFallback(t *testing.T) {
	catalog := validCatalog()

	state, ok := catalog.Lookup("main_app")
	require.True(t, ok)
	assert.Equal(t, "main_app", state.Key)

	_, ok = catalog.Lookup("ghost")
	assert.False(t, ok)

	assert.Equal(t, "initial", catalog.Fallback().Key)

	// Without a fallback key the first declared state wins.
	catalog.FallbackKey = ""
	assert.Equal(t, "initial", catalog.Fallback().Key)
}

func TestScreenStateAllowsAction(t *testing.T) {
	open := ScreenState{Key: "anything"}
	assert.True(t, open.AllowsAction("create_post"), "empty legal actions permit everything")

	gated := ScreenState{Key: "initial", LegalActions: []string{"login_guest", "login_user"}}
	assert.True(t, gated.AllowsAction("login_guest"))
	assert.False(t, gated.AllowsAction("create_post"))
}
