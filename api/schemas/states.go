package schemas

import (
	"fmt"
	"time"
)

// -- Screen State Catalog Schemas --

// ScreenState is one catalog entry: a named classification of "what the UI
// is currently showing". Catalog entries are static configuration, loaded
// once at engine construction.
type ScreenState struct {
	// Key uniquely identifies the state within its catalog (e.g. "initial",
	// "guest_logged_in", "post_creation").
	Key         string `json:"key" mapstructure:"key"`
	DisplayName string `json:"displayName" mapstructure:"display_name"`
	Description string `json:"description,omitempty" mapstructure:"description"`
	// IndicatorKeywords raise match confidence when present in extracted
	// text. Must be non-empty. Matching is lowercase substring.
	IndicatorKeywords []string `json:"indicatorKeywords" mapstructure:"indicator_keywords"`
	// LegalActions lists the action identifiers permitted while this state
	// is active.
	LegalActions []string `json:"legalActions,omitempty" mapstructure:"legal_actions"`
}

// AllowsAction reports whether the named action is legal in this state.
// An empty LegalActions list permits everything.
func (s ScreenState) AllowsAction(action string) bool {
	if len(s.LegalActions) == 0 {
		return true
	}
	for _, a := range s.LegalActions {
		if a == action {
			return true
		}
	}
	return false
}

// HeuristicRule is a compound boolean override applied when the primary
// keyword-overlap pass is inconclusive: if the haystack contains every
// keyword in RequireAll, the rule resolves to StateKey at Confidence.
// The specific confidence values are tunable configuration, not load-bearing
// business rules.
type HeuristicRule struct {
	RequireAll []string `json:"requireAll" mapstructure:"require_all"`
	StateKey   string   `json:"stateKey" mapstructure:"state_key"`
	Confidence float64  `json:"confidence" mapstructure:"confidence"`
}

// StateCatalog is an ordered set of screen states plus the secondary
// heuristic rules. Declaration order is significant: it is the tie-break
// for equal classification scores.
type StateCatalog struct {
	States []ScreenState `json:"states" mapstructure:"states"`
	Rules  []HeuristicRule `json:"rules,omitempty" mapstructure:"rules"`
	// FallbackKey names the state returned when nothing matches at all.
	FallbackKey string `json:"fallbackKey" mapstructure:"fallback_key"`
}

// Validate enforces the catalog invariants: unique keys, non-empty
// indicator keywords, rules referencing known states, and a fallback that
// exists when declared.
func (c StateCatalog) Validate() error {
	if len(c.States) == 0 {
		return fmt.Errorf("state catalog must declare at least one state")
	}
	seen := make(map[string]bool, len(c.States))
	for i, s := range c.States {
		if s.Key == "" {
			return fmt.Errorf("state at index %d has an empty key", i)
		}
		if seen[s.Key] {
			return fmt.Errorf("duplicate state key %q", s.Key)
		}
		seen[s.Key] = true
		if len(s.IndicatorKeywords) == 0 {
			return fmt.Errorf("state %q has no indicator keywords", s.Key)
		}
	}
	for i, r := range c.Rules {
		if len(r.RequireAll) == 0 {
			return fmt.Errorf("heuristic rule at index %d has no keywords", i)
		}
		if !seen[r.StateKey] {
			return fmt.Errorf("heuristic rule at index %d references unknown state %q", i, r.StateKey)
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			return fmt.Errorf("heuristic rule at index %d has confidence %v outside [0,1]", i, r.Confidence)
		}
	}
	if c.FallbackKey != "" && !seen[c.FallbackKey] {
		return fmt.Errorf("fallback state %q is not declared in the catalog", c.FallbackKey)
	}
	return nil
}

// Lookup returns the state with the given key.
func (c StateCatalog) Lookup(key string) (ScreenState, bool) {
	for _, s := range c.States {
		if s.Key == key {
			return s, true
		}
	}
	return ScreenState{}, false
}

// Fallback returns the designated fallback state, defaulting to the first
// declared state when no fallback key is configured.
func (c StateCatalog) Fallback() ScreenState {
	if c.FallbackKey != "" {
		if s, ok := c.Lookup(c.FallbackKey); ok {
			return s
		}
	}
	return c.States[0]
}

// -- Classification Result Schemas --

// ClassificationResult is the outcome of one analysis pass. It references
// exactly one catalog state and owns the elements observed during the pass.
type ClassificationResult struct {
	State ScreenState `json:"state"`
	// Confidence = matched keywords / defined keywords, capped at 1.0.
	Confidence      float64           `json:"confidence"`
	MatchedKeywords []string          `json:"matchedKeywords"`
	MissingKeywords []string          `json:"missingKeywords"`
	Elements        []ObservedElement `json:"elements,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

// -- Layout Partition Schemas --

// Region groups the elements assigned to one coarse screen area together
// with their union bounding box.
type Region struct {
	Elements []ObservedElement `json:"elements"`
	Box      BoundingBox       `json:"boundingBox"`
}

// LayoutPartition buckets observed elements into coarse screen regions.
// A region pointer is nil when no element landed in it. Derived purely from
// the element list and viewport dimensions; never persisted.
type LayoutPartition struct {
	Top    *Region `json:"top,omitempty"`
	Left   *Region `json:"left,omitempty"`
	Right  *Region `json:"right,omitempty"`
	Center *Region `json:"center,omitempty"`
}
