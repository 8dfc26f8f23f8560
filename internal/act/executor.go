// Package act resolves logical action requests ("click the text containing
// 'guest'") into concrete input events, preferring exact DOM handles and
// falling back to OCR-derived coordinates.
package act

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ocularqa/ocular/api/schemas"
	"github.com/ocularqa/ocular/internal/browser"
	"github.com/ocularqa/ocular/internal/config"
)

// Executor performs exactly one simulated input event per Act call.
// Retries are the verification loop's responsibility, never this
// component's.
type Executor struct {
	driver      browser.Driver
	settleDelay time.Duration
	ocrFloor    float64
	logger      *zap.Logger
}

// NewExecutor wires an executor against the given driver.
func NewExecutor(driver browser.Driver, cfg config.ExecutorConfig, logger *zap.Logger) *Executor {
	settle := cfg.SettleDelay
	if settle <= 0 {
		settle = 2 * time.Second
	}
	return &Executor{
		driver:      driver,
		settleDelay: settle,
		ocrFloor:    cfg.OCRConfidenceFloor,
		logger:      logger.Named("executor"),
	}
}

// Act resolves the request against the observed elements and clicks.
// Resolution order, first success wins:
//  1. explicit selector escape hatch,
//  2. DOM element whose text or aria-label contains the target,
//  3. OCR element containing the target, scored by confidence plus
//     normalized area to prefer large, confident text blocks over small
//     incidental matches.
//
// A successful click is followed by the fixed settle delay because UI
// transitions in the target application are asynchronous and unobserved
// within the same tick.
func (x *Executor) Act(ctx context.Context, request schemas.ActionRequest, elements []schemas.ObservedElement) (schemas.ActionOutcome, error) {
	log := x.logger.With(zap.String("target", request.TargetText), zap.String("description", request.Description))

	if request.TargetSelector != "" {
		if err := x.driver.ClickSelector(ctx, request.TargetSelector); err != nil {
			if ctx.Err() != nil {
				return schemas.ActionOutcome{}, ctx.Err()
			}
			log.Debug("Selector click failed.", zap.Error(err))
			return schemas.ActionOutcome{Success: false, Reason: schemas.ReasonElementNotFound}, nil
		}
		return x.settled(ctx, schemas.ActionOutcome{
			Success: true,
			Method:  schemas.MethodDOM,
			Target:  request.TargetSelector,
		})
	}

	// 1. DOM lookup: exact handles beat coordinates.
	if el, ok := findDOMMatch(elements, request.TargetText); ok {
		marker := el.Attributes["marker"]
		if err := x.driver.ClickMarker(ctx, marker); err != nil {
			if ctx.Err() != nil {
				return schemas.ActionOutcome{}, ctx.Err()
			}
			log.Debug("DOM click failed; trying coordinate fallback.", zap.Error(err))
		} else {
			log.Debug("Clicked via DOM handle.", zap.String("text", el.DisplayText))
			return x.settled(ctx, schemas.ActionOutcome{
				Success: true,
				Method:  schemas.MethodDOM,
				Target:  el.DisplayText,
			})
		}
	}

	// 2. OCR-coordinate fallback.
	if el, ok := x.findOCRMatch(elements, request.TargetText); ok {
		if err := x.driver.ClickAt(ctx, el.Center()); err != nil {
			if ctx.Err() != nil {
				return schemas.ActionOutcome{}, ctx.Err()
			}
			log.Debug("Coordinate click failed.", zap.Error(err))
			return schemas.ActionOutcome{Success: false, Reason: schemas.ReasonElementNotFound}, nil
		}
		log.Debug("Clicked via OCR coordinates.",
			zap.String("text", el.DisplayText),
			zap.Float64("x", el.Center().X),
			zap.Float64("y", el.Center().Y))
		return x.settled(ctx, schemas.ActionOutcome{
			Success: true,
			Method:  schemas.MethodCoordinates,
			Target:  el.DisplayText,
		})
	}

	log.Debug("No element resolved for action target.")
	return schemas.ActionOutcome{Success: false, Reason: schemas.ReasonElementNotFound}, nil
}

// settled applies the fixed post-click pause, honoring cancellation.
func (x *Executor) settled(ctx context.Context, outcome schemas.ActionOutcome) (schemas.ActionOutcome, error) {
	select {
	case <-time.After(x.settleDelay):
		return outcome, nil
	case <-ctx.Done():
		return outcome, ctx.Err()
	}
}

// findDOMMatch returns the first visible DOM element whose text or
// aria-label contains the target.
func findDOMMatch(elements []schemas.ObservedElement, target string) (schemas.ObservedElement, bool) {
	for _, el := range elements {
		if el.Source != schemas.SourceDOM {
			continue
		}
		if !el.Visible() || el.Attributes["marker"] == "" {
			continue
		}
		if el.ContainsText(target) {
			return el, true
		}
	}
	return schemas.ObservedElement{}, false
}

// findOCRMatch returns the best-scoring OCR element containing the target.
// Score = confidence + normalized area within the viewport.
func (x *Executor) findOCRMatch(elements []schemas.ObservedElement, target string) (schemas.ObservedElement, bool) {
	viewport := x.driver.Viewport()
	var best schemas.ObservedElement
	bestScore := -1.0
	for _, el := range elements {
		if el.Source != schemas.SourceOCR || el.Confidence < x.ocrFloor {
			continue
		}
		if !el.ContainsText(target) {
			continue
		}
		score := el.Confidence + el.Box.NormalizedArea(viewport)
		if score > bestScore {
			best = el
			bestScore = score
		}
	}
	return best, bestScore >= 0
}
