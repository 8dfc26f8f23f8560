// Package classify scores a fixed catalog of named screen states against
// the text observed on screen. Classification is pure computation: no I/O,
// no driver calls, no hidden mutable state.
package classify

import (
	"strings"
	"time"

	"github.com/ocularqa/ocular/api/schemas"
	"github.com/ocularqa/ocular/internal/config"
)

// Classifier matches observed elements against a state catalog.
type Classifier struct {
	catalog         schemas.StateCatalog
	confidenceFloor float64
}

// NewClassifier validates the catalog and returns a classifier. The
// confidence floor gates the secondary heuristic pass.
func NewClassifier(catalog schemas.StateCatalog, cfg config.ClassifierConfig) (*Classifier, error) {
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	floor := cfg.ConfidenceFloor
	if floor <= 0 || floor > 1 {
		floor = 0.7
	}
	return &Classifier{catalog: catalog, confidenceFloor: floor}, nil
}

// Catalog returns the catalog this classifier was built with.
func (c *Classifier) Catalog() schemas.StateCatalog {
	return c.catalog
}

// Classify scores every catalog state by indicator-keyword overlap and
// returns the best match. Ties keep the earlier-declared state. When the
// primary score stays below the confidence floor, compound heuristic rules
// may override; if nothing matches at all the catalog fallback is returned
// at confidence 0. Classify never fails.
func (c *Classifier) Classify(elements []schemas.ObservedElement) schemas.ClassificationResult {
	haystack := buildHaystack(elements)

	best := c.catalog.States[0]
	bestScore := -1.0
	var bestMatched, bestMissing []string

	for _, state := range c.catalog.States {
		matched, missing := matchKeywords(haystack, state.IndicatorKeywords)
		score := float64(len(matched)) / float64(len(state.IndicatorKeywords))
		if score > 1 {
			score = 1
		}
		// Strictly greater: catalog declaration order is the tie-break.
		if score > bestScore {
			best = state
			bestScore = score
			bestMatched = matched
			bestMissing = missing
		}
	}

	// Secondary pass: single-keyword overlap is noisy (OCR errors, partial
	// renders), so compound rules catch common states the primary pass
	// misses when it was inconclusive.
	if bestScore < c.confidenceFloor {
		if rule, ok := c.matchRule(haystack); ok {
			state, _ := c.catalog.Lookup(rule.StateKey)
			matched, missing := matchKeywords(haystack, state.IndicatorKeywords)
			return schemas.ClassificationResult{
				State:           state,
				Confidence:      rule.Confidence,
				MatchedKeywords: matched,
				MissingKeywords: missing,
				Elements:        elements,
				Timestamp:       time.Now(),
			}
		}
	}

	if bestScore <= 0 {
		fallback := c.catalog.Fallback()
		return schemas.ClassificationResult{
			State:           fallback,
			Confidence:      0,
			MatchedKeywords: nil,
			MissingKeywords: append([]string(nil), fallback.IndicatorKeywords...),
			Elements:        elements,
			Timestamp:       time.Now(),
		}
	}

	return schemas.ClassificationResult{
		State:           best,
		Confidence:      bestScore,
		MatchedKeywords: bestMatched,
		MissingKeywords: bestMissing,
		Elements:        elements,
		Timestamp:       time.Now(),
	}
}

// matchRule returns the first heuristic rule whose keywords are all present.
func (c *Classifier) matchRule(haystack string) (schemas.HeuristicRule, bool) {
	for _, rule := range c.catalog.Rules {
		all := true
		for _, kw := range rule.RequireAll {
			if !strings.Contains(haystack, strings.ToLower(kw)) {
				all = false
				break
			}
		}
		if all {
			return rule, true
		}
	}
	return schemas.HeuristicRule{}, false
}

// buildHaystack joins all element texts, lowercased, into one search string.
func buildHaystack(elements []schemas.ObservedElement) string {
	var sb strings.Builder
	for _, el := range elements {
		if el.Text == "" {
			continue
		}
		sb.WriteString(el.Text)
		sb.WriteByte(' ')
	}
	return sb.String()
}

func matchKeywords(haystack string, keywords []string) (matched, missing []string) {
	for _, kw := range keywords {
		if strings.Contains(haystack, strings.ToLower(kw)) {
			matched = append(matched, kw)
		} else {
			missing = append(missing, kw)
		}
	}
	return matched, missing
}
