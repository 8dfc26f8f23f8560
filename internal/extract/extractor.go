// Package extract normalizes DOM introspection and OCR output into one
// uniform list of observed elements for downstream classification.
package extract

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ocularqa/ocular/api/schemas"
	"github.com/ocularqa/ocular/internal/browser"
	"github.com/ocularqa/ocular/internal/config"
	"github.com/ocularqa/ocular/internal/ocr"
)

// ExtractionError reports that a required extraction backend was unusable.
// It is raised only when the caller demanded OCR; otherwise extraction
// degrades to DOM-only results.
type ExtractionError struct {
	Backend string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction backend %q unusable: %v", e.Backend, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// Observation is the product of one extraction pass: the normalized
// elements plus the screenshot they came from (kept for diagnostics).
type Observation struct {
	Elements   []schemas.ObservedElement
	Screenshot []byte
	Viewport   schemas.Viewport
}

// Extractor harvests observed elements from a browser session, combining
// the live DOM with OCR over a screenshot.
type Extractor struct {
	driver     browser.Driver
	recognizer ocr.Recognizer
	cfg        config.ExtractorConfig
	logger     *zap.Logger
}

// NewExtractor wires the extractor. A nil recognizer disables the OCR pass
// regardless of configuration.
func NewExtractor(driver browser.Driver, recognizer ocr.Recognizer, cfg config.ExtractorConfig, logger *zap.Logger) *Extractor {
	return &Extractor{
		driver:     driver,
		recognizer: recognizer,
		cfg:        cfg,
		logger:     logger.Named("extractor"),
	}
}

// Observe runs one full extraction pass: screenshot, DOM snapshot, OCR,
// merge. The two sources are concatenated without cross-source
// deduplication; downstream matching tolerates duplicates. OCR failure
// degrades to DOM-only results unless RequireOCR is set.
func (e *Extractor) Observe(ctx context.Context) (*Observation, error) {
	screenshot, err := e.driver.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}

	nodes, err := e.driver.DOMSnapshot(ctx, e.cfg.ClassSubstrings)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot DOM: %w", err)
	}

	elements := DOMElements(nodes)

	if e.ocrActive() {
		words, ocrErr := e.recognizeWords(ctx, screenshot)
		if ocrErr != nil {
			if e.cfg.RequireOCR {
				return nil, &ExtractionError{Backend: "ocr", Err: ocrErr}
			}
			e.logger.Warn("OCR pass failed; degrading to DOM-only extraction.", zap.Error(ocrErr))
		} else {
			elements = append(elements, OCRElements(words, e.cfg.ConfidenceFloor)...)
		}
	} else if e.cfg.RequireOCR {
		return nil, &ExtractionError{Backend: "ocr", Err: fmt.Errorf("ocr disabled but required")}
	}

	e.logger.Debug("Extraction pass complete.", zap.Int("elements", len(elements)))
	return &Observation{
		Elements:   elements,
		Screenshot: screenshot,
		Viewport:   e.driver.Viewport(),
	}, nil
}

func (e *Extractor) ocrActive() bool {
	return e.cfg.OCREnabled && e.recognizer != nil
}

func (e *Extractor) recognizeWords(ctx context.Context, screenshot []byte) ([]ocr.Word, error) {
	ocrCtx := ctx
	if e.cfg.OCRTimeout > 0 {
		var cancel context.CancelFunc
		ocrCtx, cancel = context.WithTimeout(ctx, e.cfg.OCRTimeout)
		defer cancel()
	}
	return e.recognizer.Recognize(ocrCtx, screenshot)
}

// DOMElements converts harvested DOM nodes into observed elements.
// DOM-sourced elements are exact, so confidence is fixed at 1.0.
func DOMElements(nodes []schemas.DOMNode) []schemas.ObservedElement {
	elements := make([]schemas.ObservedElement, 0, len(nodes))
	for _, node := range nodes {
		text := node.Text
		if text == "" {
			text = node.AriaLabel
		}
		el := schemas.NewObservedElement(text, 1.0, node.Box, schemas.SourceDOM)
		attrs := make(map[string]string, 4)
		if node.AriaLabel != "" {
			attrs["ariaLabel"] = node.AriaLabel
		}
		if node.TestID != "" {
			attrs["testId"] = node.TestID
		}
		if node.ClassName != "" {
			attrs["className"] = node.ClassName
		}
		if node.Marker != "" {
			attrs["marker"] = node.Marker
		}
		el.Attributes = attrs
		if !el.Visible() {
			continue
		}
		elements = append(elements, el)
	}
	return elements
}

// OCRElements converts recognized words into observed elements, dropping
// tokens whose normalized confidence falls below the floor.
func OCRElements(words []ocr.Word, confidenceFloor float64) []schemas.ObservedElement {
	elements := make([]schemas.ObservedElement, 0, len(words))
	for _, w := range words {
		confidence := w.Confidence / 100.0
		if confidence < confidenceFloor {
			continue
		}
		box := schemas.BoundingBox{X: w.Left, Y: w.Top, Width: w.Width, Height: w.Height}
		el := schemas.NewObservedElement(w.Text, confidence, box, schemas.SourceOCR)
		if el.Text == "" || !el.Visible() {
			continue
		}
		elements = append(elements, el)
	}
	return elements
}
