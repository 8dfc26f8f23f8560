package classify

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocularqa/ocular/api/schemas"
	"github.com/ocularqa/ocular/internal/config"
)

func newTestClassifier(t *testing.T, catalog schemas.StateCatalog) *Classifier {
	t.Helper()
	c, err := NewClassifier(catalog, config.ClassifierConfig{ConfidenceFloor: 0.7})
	require.NoError(t, err)
	return c
}

func elementsFromTexts(texts ...string) []schemas.ObservedElement {
	elements := make([]schemas.ObservedElement, 0, len(texts))
	for _, text := range texts {
		elements = append(elements, schemas.NewObservedElement(text, 1.0,
			schemas.BoundingBox{X: 10, Y: 10, Width: 100, Height: 20}, schemas.SourceDOM))
	}
	return elements
}

func TestNewClassifierRejectsInvalidCatalog(t *testing.T) {
	_, err := NewClassifier(schemas.StateCatalog{}, config.ClassifierConfig{})
	assert.Error(t, err)
}

func TestClassifyFullKeywordMatch(t *testing.T) {
	c := newTestClassifier(t, DefaultCatalog())

	result := c.Classify(elementsFromTexts("Continue as Guest", "Sign In"))

	assert.Equal(t, "initial", result.State.Key)
	assert.InDelta(t, 1.0, result.Confidence, 1e-9)
	assert.ElementsMatch(t, []string{"continue as guest", "sign in"}, result.MatchedKeywords)
	assert.Empty(t, result.MissingKeywords)
}

func TestClassifyPartialMatchReportsMissing(t *testing.T) {
	c := newTestClassifier(t, DefaultCatalog())

	// Two of main_app's three keywords present; no rule matches either.
	result := c.Classify(elementsFromTexts("New Post", "Comment here"))

	assert.Equal(t, "main_app", result.State.Key)
	assert.InDelta(t, 2.0/3.0, result.Confidence, 1e-9)
	assert.ElementsMatch(t, []string{"post", "comment"}, result.MatchedKeywords)
	assert.ElementsMatch(t, []string{"chat"}, result.MissingKeywords)
}

func TestClassifyTieBreakKeepsDeclarationOrder(t *testing.T) {
	catalog := schemas.StateCatalog{
		States: []schemas.ScreenState{
			{Key: "first", IndicatorKeywords: []string{"shared"}},
			{Key: "second", IndicatorKeywords: []string{"shared"}},
		},
	}
	c := newTestClassifier(t, catalog)

	for i := 0; i < 10; i++ {
		result := c.Classify(elementsFromTexts("shared text"))
		require.Equal(t, "first", result.State.Key, "tie must resolve to the earlier-declared state")
	}
}

func TestClassifyHeuristicRuleOverridesLowScore(t *testing.T) {
	c := newTestClassifier(t, DefaultCatalog())

	// "guest" alone scores 0.5 on guest_logged_in, below the 0.7 floor.
	// The compound rule resolves it at its configured confidence.
	result := c.Classify(elementsFromTexts("Browsing as guest"))

	assert.Equal(t, "guest_logged_in", result.State.Key)
	assert.InDelta(t, 0.75, result.Confidence, 1e-9)
}

func TestClassifyRuleNotConsultedAboveFloor(t *testing.T) {
	catalog := schemas.StateCatalog{
		States: []schemas.ScreenState{
			{Key: "strong", IndicatorKeywords: []string{"alpha"}},
			{Key: "ruled", IndicatorKeywords: []string{"beta", "gamma"}},
		},
		Rules: []schemas.HeuristicRule{
			{RequireAll: []string{"alpha"}, StateKey: "ruled", Confidence: 0.9},
		},
	}
	c := newTestClassifier(t, catalog)

	result := c.Classify(elementsFromTexts("alpha"))

	assert.Equal(t, "strong", result.State.Key, "a confident primary match must not be overridden")
	assert.InDelta(t, 1.0, result.Confidence, 1e-9)
}

func TestClassifyNothingMatchesFallsBack(t *testing.T) {
	c := newTestClassifier(t, DefaultCatalog())

	result := c.Classify(elementsFromTexts("completely unrelated text"))

	assert.Equal(t, "initial", result.State.Key)
	assert.Zero(t, result.Confidence)
	assert.Empty(t, result.MatchedKeywords)
}

func TestClassifyEmptyElements(t *testing.T) {
	c := newTestClassifier(t, DefaultCatalog())

	result := c.Classify(nil)

	assert.Equal(t, "initial", result.State.Key)
	assert.Zero(t, result.Confidence)
}

func TestClassifyIsIdempotent(t *testing.T) {
	c := newTestClassifier(t, DefaultCatalog())
	elements := elementsFromTexts("Create", "Post", "Publish")

	first := c.Classify(elements)
	second := c.Classify(elements)

	ignoreTime := cmpopts.IgnoreFields(schemas.ClassificationResult{}, "Timestamp")
	if diff := cmp.Diff(first, second, ignoreTime); diff != "" {
		t.Errorf("classification not idempotent (-first +second):\n%s", diff)
	}
}

func TestClassifyMoreKeywordsRaiseConfidence(t *testing.T) {
	c := newTestClassifier(t, DefaultCatalog())

	one := c.Classify(elementsFromTexts("chat"))
	two := c.Classify(elementsFromTexts("chat", "message", "send"))

	assert.Equal(t, "chat_open", two.State.Key)
	assert.Greater(t, two.Confidence, one.Confidence)
}
