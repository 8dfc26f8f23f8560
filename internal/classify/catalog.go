package classify

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/ocularqa/ocular/api/schemas"
)

// DefaultCatalog returns the built-in state catalog for the target
// application. Scenario-specific behavior is expressed as catalog data,
// not code; deployments with different screens load their own YAML catalog
// via LoadCatalog.
func DefaultCatalog() schemas.StateCatalog {
	return schemas.StateCatalog{
		FallbackKey: "initial",
		States: []schemas.ScreenState{
			{
				Key:               "initial",
				DisplayName:       "Landing / Login",
				Description:       "Entry screen offering guest access or sign-in.",
				IndicatorKeywords: []string{"continue as guest", "sign in"},
				LegalActions:      []string{"login_guest", "login_user"},
			},
			{
				Key:               "guest_logged_in",
				DisplayName:       "Guest Session",
				Description:       "A guest session is active but the main feed has not loaded.",
				IndicatorKeywords: []string{"guest", "welcome"},
				LegalActions:      []string{"open_feed", "logout"},
			},
			{
				Key:               "main_app",
				DisplayName:       "Main Application",
				Description:       "The primary feed with posts, chat and comments visible.",
				IndicatorKeywords: []string{"post", "chat", "comment"},
				LegalActions:      []string{"create_post", "open_chat", "open_comments", "logout"},
			},
			{
				Key:               "post_creation",
				DisplayName:       "Post Creation",
				Description:       "The new-post composer is open.",
				IndicatorKeywords: []string{"create", "post", "publish"},
				LegalActions:      []string{"submit_post", "cancel"},
			},
			{
				Key:               "chat_open",
				DisplayName:       "Chat Panel",
				Description:       "The chat panel is open with a message input.",
				IndicatorKeywords: []string{"chat", "message", "send"},
				LegalActions:      []string{"send_message", "close_chat"},
			},
		},
		Rules: []schemas.HeuristicRule{
			{RequireAll: []string{"create", "post"}, StateKey: "post_creation", Confidence: 0.8},
			{RequireAll: []string{"message", "send"}, StateKey: "chat_open", Confidence: 0.8},
			{RequireAll: []string{"guest"}, StateKey: "guest_logged_in", Confidence: 0.75},
		},
	}
}

// LoadCatalog reads a state catalog from a YAML file.
func LoadCatalog(path string) (schemas.StateCatalog, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return schemas.StateCatalog{}, fmt.Errorf("failed to read catalog file %q: %w", path, err)
	}

	var catalog schemas.StateCatalog
	if err := v.Unmarshal(&catalog); err != nil {
		return schemas.StateCatalog{}, fmt.Errorf("failed to unmarshal catalog %q: %w", path, err)
	}
	if err := catalog.Validate(); err != nil {
		return schemas.StateCatalog{}, fmt.Errorf("invalid catalog %q: %w", path, err)
	}
	return catalog, nil
}
