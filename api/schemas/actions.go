package schemas

import (
	"time"
)

// -- Action Schemas --

// ActionMethod records which resolution strategy performed an action.
type ActionMethod string

const (
	// MethodDOM means the action used a native click on a DOM handle.
	MethodDOM ActionMethod = "dom"
	// MethodCoordinates means the action dispatched a synthetic click at
	// OCR-derived coordinates.
	MethodCoordinates ActionMethod = "coordinates"
)

// Soft failure reasons surfaced by the action executor and verification loop.
const (
	ReasonElementNotFound       = "element_not_found"
	ReasonNoStateChange         = "no_state_change"
	ReasonUnexpectedStateChange = "unexpected_state_change"
	ReasonMaxRetriesExceeded    = "max_retries_exceeded"
)

// ActionRequest asks the executor to resolve and perform one logical action.
type ActionRequest struct {
	// TargetText selects the click target by case-insensitive substring
	// match against element text or aria-label.
	TargetText string `json:"targetText"`
	// TargetSelector is a DOM-specific escape hatch; when set it bypasses
	// text matching entirely.
	TargetSelector string `json:"targetSelector,omitempty"`
	// ExpectedState names the catalog state the UI should transition to.
	// Empty means "don't verify the destination".
	ExpectedState string `json:"expectedState,omitempty"`
	// Description is for logging and diagnostics only.
	Description string `json:"description,omitempty"`
}

// ActionOutcome reports how a single action resolution went. Soft failures
// are values, not errors, so callers can decide to retry, skip, or abort.
type ActionOutcome struct {
	Success bool         `json:"success"`
	Method  ActionMethod `json:"method,omitempty"`
	Reason  string       `json:"reason,omitempty"`
	// Target is the display text of the element that was clicked.
	Target string `json:"target,omitempty"`
}

// -- Verification Schemas --

// AttemptRecord captures one act-and-reclassify cycle for diagnostics.
type AttemptRecord struct {
	Attempt  int            `json:"attempt"`
	Outcome  ActionOutcome  `json:"outcome"`
	Before   string         `json:"beforeState"`
	After    string         `json:"afterState,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// VerificationOutcome is the terminal result of an execute-and-verify run.
type VerificationOutcome struct {
	Success  bool                  `json:"success"`
	Reason   string                `json:"reason,omitempty"`
	Before   *ClassificationResult `json:"before,omitempty"`
	After    *ClassificationResult `json:"after,omitempty"`
	Attempts int                   `json:"attempts"`
	History  []AttemptRecord       `json:"history,omitempty"`
}

// FailureRecord is the structured diagnostic persisted alongside a
// screenshot whenever a hard failure occurs, so failures are debuggable
// post-hoc without reproduction.
type FailureRecord struct {
	ID              string        `json:"id"`
	Timestamp       time.Time     `json:"timestamp"`
	SessionID       string        `json:"sessionId,omitempty"`
	RequestedAction ActionRequest `json:"requestedAction"`
	BeforeState     string        `json:"beforeState,omitempty"`
	AfterState      string        `json:"afterState,omitempty"`
	Reason          string        `json:"reason"`
	Suggestions     []string      `json:"suggestions,omitempty"`
	ScreenshotPath  string        `json:"screenshotPath,omitempty"`
}

// -- Scenario Schemas --

// StepKind enumerates the declarative scenario vocabulary.
type StepKind string

const (
	StepNavigate     StepKind = "navigate"
	StepWait         StepKind = "wait"
	StepClick        StepKind = "click"
	StepVerify       StepKind = "verify"
	StepWaitForState StepKind = "wait_for_state"
	StepScreenshot   StepKind = "screenshot"
)

// ScenarioStep is one declarative step in an ordered scenario.
type ScenarioStep struct {
	Kind StepKind `json:"kind" mapstructure:"kind"`
	// URL for navigate steps.
	URL string `json:"url,omitempty" mapstructure:"url"`
	// DurationMs for wait steps; TimeoutMs for wait_for_state steps.
	DurationMs int `json:"durationMs,omitempty" mapstructure:"duration_ms"`
	TimeoutMs  int `json:"timeoutMs,omitempty" mapstructure:"timeout_ms"`
	// TargetText for click/verify steps.
	TargetText string `json:"targetText,omitempty" mapstructure:"target_text"`
	// ExpectedState for click steps; TargetState for wait_for_state steps.
	ExpectedState string `json:"expectedState,omitempty" mapstructure:"expected_state"`
	TargetState   string `json:"targetState,omitempty" mapstructure:"target_state"`
	// Name for screenshot steps.
	Name        string `json:"name,omitempty" mapstructure:"name"`
	Description string `json:"description,omitempty" mapstructure:"description"`
	// Session routes the step to a named session in multi-user scenarios.
	// Empty targets the default session.
	Session string `json:"session,omitempty" mapstructure:"session"`
	// ContinueOnFailure lets the scenario keep going past a soft failure.
	ContinueOnFailure bool `json:"continueOnFailure,omitempty" mapstructure:"continue_on_failure"`
}

// Scenario is an ordered sequence of steps plus the sessions it needs.
type Scenario struct {
	Name     string         `json:"name" mapstructure:"name"`
	Sessions []string       `json:"sessions,omitempty" mapstructure:"sessions"`
	Steps    []ScenarioStep `json:"steps" mapstructure:"steps"`
}
