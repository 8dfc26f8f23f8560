package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ocularqa/ocular/api/schemas"
	"github.com/ocularqa/ocular/internal/config"
)

// ErrMaxRetriesExceeded marks a verification that exhausted its retry
// budget. The returned outcome always carries the full attempt history.
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// ErrWaitTimeout marks a WaitForState that ran out of wall-clock budget.
var ErrWaitTimeout = errors.New("timed out waiting for state")

// ErrUnexpectedState marks an action that landed in a state other than the
// expected one. Terminal and never retried.
var ErrUnexpectedState = errors.New("unexpected state change")

// Loop drives the classify-act-reclassify state machine.
type Loop struct {
	pipeline  *Pipeline
	actor     Actor
	recorder  *Recorder
	sessionID string

	maxRetries   int
	retryDelay   time.Duration
	waitTimeout  time.Duration
	pollInterval time.Duration

	logger *zap.Logger
}

// NewLoop assembles a verification loop. The recorder may be nil to skip
// failure artifact persistence (tests).
func NewLoop(pipeline *Pipeline, actor Actor, recorder *Recorder, sessionID string, cfg config.VerifyConfig, logger *zap.Logger) *Loop {
	l := &Loop{
		pipeline:     pipeline,
		actor:        actor,
		recorder:     recorder,
		sessionID:    sessionID,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		waitTimeout:  cfg.WaitForStateTimeout,
		pollInterval: cfg.PollInterval,
		logger:       logger.Named("verify"),
	}
	if l.maxRetries < 1 {
		l.maxRetries = 3
	}
	if l.waitTimeout <= 0 {
		l.waitTimeout = 10 * time.Second
	}
	if l.pollInterval <= 0 {
		l.pollInterval = time.Second
	}
	return l
}

// ExecuteAndVerify runs the full classify → act → re-classify cycle for
// one action request, retrying up to the configured budget.
//
// Per attempt: classify the current screen; short-circuit with success if
// the expected state is already active (no click dispatched); otherwise
// act, re-classify, and compare. An unexpected state change terminates
// without retry: the action worked, the expectation is suspect, and
// retrying an already-changed screen is unlikely to reach the original
// target. A no-op or unresolved element retries after the delay.
//
// Soft failures come back as outcome values; only an exhausted retry
// budget (ErrMaxRetriesExceeded) and unrecoverable pipeline failures
// surface as errors, and both persist diagnostics first.
func (l *Loop) ExecuteAndVerify(ctx context.Context, request schemas.ActionRequest) (schemas.VerificationOutcome, error) {
	log := l.logger.With(
		zap.String("target", request.TargetText),
		zap.String("expected_state", request.ExpectedState),
	)

	outcome := schemas.VerificationOutcome{}
	var lastReason string
	var lastScreenshot []byte

	for attempt := 1; attempt <= l.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		started := time.Now()
		outcome.Attempts = attempt

		before, screenshot, err := l.pipeline.Run(ctx)
		if err != nil {
			l.recordFailure(request, nil, nil, fmt.Sprintf("classification failed: %v", err), lastScreenshot)
			return outcome, fmt.Errorf("classification pass failed: %w", err)
		}
		lastScreenshot = screenshot
		outcome.Before = &before

		// Idempotent short-circuit: no redundant clicking when the UI is
		// already where the caller wants it.
		if request.ExpectedState != "" && before.State.Key == request.ExpectedState {
			log.Debug("Already in expected state; skipping action.", zap.Int("attempt", attempt))
			outcome.Success = true
			outcome.After = &before
			return outcome, nil
		}

		actOutcome, err := l.actor.Act(ctx, request, before.Elements)
		if err != nil {
			return outcome, fmt.Errorf("action dispatch failed: %w", err)
		}

		record := schemas.AttemptRecord{
			Attempt: attempt,
			Outcome: actOutcome,
			Before:  before.State.Key,
		}

		if !actOutcome.Success {
			record.Reason = actOutcome.Reason
			record.Duration = time.Since(started)
			outcome.History = append(outcome.History, record)
			lastReason = actOutcome.Reason
			log.Warn("Action did not resolve.", zap.Int("attempt", attempt), zap.String("reason", actOutcome.Reason))
			if attempt < l.maxRetries {
				if err := sleepCtx(ctx, l.retryDelay); err != nil {
					return outcome, err
				}
			}
			continue
		}

		after, screenshot, err := l.pipeline.Run(ctx)
		if err != nil {
			l.recordFailure(request, &before, nil, fmt.Sprintf("re-classification failed: %v", err), lastScreenshot)
			return outcome, fmt.Errorf("re-classification pass failed: %w", err)
		}
		lastScreenshot = screenshot
		outcome.After = &after
		record.After = after.State.Key
		record.Duration = time.Since(started)

		switch {
		case request.ExpectedState == "" || after.State.Key == request.ExpectedState:
			outcome.History = append(outcome.History, record)
			outcome.Success = true
			log.Info("Action verified.",
				zap.Int("attempt", attempt),
				zap.String("before", before.State.Key),
				zap.String("after", after.State.Key))
			return outcome, nil

		case after.State.Key != before.State.Key:
			// The state moved, just not where expected. Diagnostically
			// distinct from "nothing happened" and never retried.
			record.Reason = schemas.ReasonUnexpectedStateChange
			outcome.History = append(outcome.History, record)
			outcome.Reason = schemas.ReasonUnexpectedStateChange
			log.Warn("Unexpected state transition.",
				zap.String("before", before.State.Key),
				zap.String("after", after.State.Key),
				zap.String("expected", request.ExpectedState))
			l.recordFailure(request, &before, &after, schemas.ReasonUnexpectedStateChange, screenshot)
			return outcome, nil

		default:
			record.Reason = schemas.ReasonNoStateChange
			outcome.History = append(outcome.History, record)
			lastReason = schemas.ReasonNoStateChange
			log.Warn("No state change after action.", zap.Int("attempt", attempt), zap.String("state", before.State.Key))
			if attempt < l.maxRetries {
				if err := sleepCtx(ctx, l.retryDelay); err != nil {
					return outcome, err
				}
			}
		}
	}

	if lastReason == "" {
		lastReason = schemas.ReasonNoStateChange
	}
	// The outcome-level reason marks budget exhaustion; the per-attempt
	// reasons stay in the history.
	outcome.Reason = schemas.ReasonMaxRetriesExceeded
	var beforeRef *schemas.ClassificationResult
	if outcome.Before != nil {
		beforeRef = outcome.Before
	}
	l.recordFailure(request, beforeRef, outcome.After, lastReason, lastScreenshot)
	return outcome, fmt.Errorf("%w after %d attempts (%s)", ErrMaxRetriesExceeded, outcome.Attempts, lastReason)
}

// WaitForState polls classification at the configured interval until the
// target state is active or the wall-clock timeout elapses. This is the
// only wall-clock-bounded wait in the system; everything else is bounded
// by attempt count.
func (l *Loop) WaitForState(ctx context.Context, stateKey string, timeout time.Duration) (schemas.ClassificationResult, error) {
	if timeout <= 0 {
		timeout = l.waitTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(l.pollInterval), 1)
	var last schemas.ClassificationResult
	for {
		if err := limiter.Wait(waitCtx); err != nil {
			l.logger.Warn("Timed out waiting for state.",
				zap.String("target_state", stateKey),
				zap.String("last_state", last.State.Key),
				zap.Duration("timeout", timeout))
			return last, fmt.Errorf("%w: wanted %q, last saw %q", ErrWaitTimeout, stateKey, last.State.Key)
		}
		result, _, err := l.pipeline.Run(waitCtx)
		if err != nil {
			if waitCtx.Err() != nil {
				return last, fmt.Errorf("%w: wanted %q, last saw %q", ErrWaitTimeout, stateKey, last.State.Key)
			}
			return last, fmt.Errorf("classification failed while waiting for %q: %w", stateKey, err)
		}
		last = result
		if result.State.Key == stateKey {
			return result, nil
		}
	}
}

// WaitForConfidence polls until classification confidence reaches the
// floor or the timeout elapses, and returns the final result either way.
// Used as the settle primitive after state-changing actions in place of
// fixed sleeps.
func (l *Loop) WaitForConfidence(ctx context.Context, floor float64, timeout time.Duration) (schemas.ClassificationResult, error) {
	if timeout <= 0 {
		timeout = l.waitTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(l.pollInterval), 1)
	var last schemas.ClassificationResult
	for {
		if err := limiter.Wait(waitCtx); err != nil {
			return last, nil
		}
		result, _, err := l.pipeline.Run(waitCtx)
		if err != nil {
			if waitCtx.Err() != nil {
				return last, nil
			}
			return last, err
		}
		last = result
		if result.Confidence >= floor {
			return result, nil
		}
	}
}

// recordFailure persists diagnostics for a terminal failure.
func (l *Loop) recordFailure(request schemas.ActionRequest, before, after *schemas.ClassificationResult, reason string, screenshot []byte) {
	if l.recorder == nil {
		return
	}
	record := schemas.FailureRecord{
		Timestamp:       time.Now(),
		SessionID:       l.sessionID,
		RequestedAction: request,
		Reason:          reason,
		Suggestions:     suggestions(reason, before, after),
	}
	if before != nil {
		record.BeforeState = before.State.Key
	}
	if after != nil {
		record.AfterState = after.State.Key
	}
	l.recorder.Record(record, screenshot)
}

// sleepCtx pauses for d, honoring cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
