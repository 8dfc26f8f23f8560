package schemas

import (
	"strings"
)

// -- Observed Element Schemas --

// ElementSource identifies where an observed element was harvested from.
type ElementSource string

const (
	// SourceDOM marks elements read from the live DOM (exact, confidence 1.0).
	SourceDOM ElementSource = "dom"
	// SourceOCR marks elements recognized from a screenshot bitmap.
	SourceOCR ElementSource = "ocr"
)

// Point is a viewport-relative coordinate pair in CSS pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoundingBox is a viewport-relative rectangle in CSS pixels.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the midpoint of the box, used as a synthetic click target.
func (b BoundingBox) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Area returns the box area in square pixels.
func (b BoundingBox) Area() float64 {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// NormalizedArea returns the box area as a fraction of the viewport area.
// Out-of-range results are clamped to [0,1] so the value can be summed with
// a confidence score.
func (b BoundingBox) NormalizedArea(viewport Viewport) float64 {
	va := float64(viewport.Width) * float64(viewport.Height)
	if va <= 0 {
		return 0
	}
	ratio := b.Area() / va
	if ratio > 1 {
		return 1
	}
	return ratio
}

// Viewport holds the browser viewport dimensions in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ObservedElement is one visually or DOM-detected token/widget captured
// during a single analysis pass. Instances are created fresh on every pass
// and never persisted.
type ObservedElement struct {
	// Text is the normalized (lowercased, trimmed) text used for matching.
	Text string `json:"text"`
	// DisplayText retains the original casing for logs and diagnostics.
	DisplayText string `json:"displayText"`
	// Confidence is in [0,1]. DOM-sourced elements are always 1.0; OCR
	// elements carry the engine-reported value normalized from 0-100.
	Confidence float64 `json:"confidence"`
	Box        BoundingBox   `json:"boundingBox"`
	Source     ElementSource `json:"source"`
	// Attributes carries DOM-only metadata (ariaLabel, testId, className).
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NewObservedElement normalizes the raw text and clamps confidence into [0,1].
func NewObservedElement(rawText string, confidence float64, box BoundingBox, source ElementSource) ObservedElement {
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}
	trimmed := strings.TrimSpace(rawText)
	return ObservedElement{
		Text:        strings.ToLower(trimmed),
		DisplayText: trimmed,
		Confidence:  confidence,
		Box:         box,
		Source:      source,
	}
}

// Center returns the element's click target.
func (e ObservedElement) Center() Point {
	return e.Box.Center()
}

// ContainsText reports whether the element's normalized text or aria-label
// contains the needle (case-insensitive substring match).
func (e ObservedElement) ContainsText(needle string) bool {
	n := strings.ToLower(strings.TrimSpace(needle))
	if n == "" {
		return false
	}
	if strings.Contains(e.Text, n) {
		return true
	}
	if label, ok := e.Attributes["ariaLabel"]; ok {
		return strings.Contains(strings.ToLower(label), n)
	}
	return false
}

// Visible reports whether the element occupies any screen area.
func (e ObservedElement) Visible() bool {
	return e.Box.Width > 0 && e.Box.Height > 0
}
