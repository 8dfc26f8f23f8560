// Package browser implements the browser driver capability on top of the
// Chrome DevTools Protocol via chromedp. Each Session owns an isolated
// browser context and profile directory; sessions never share state.
package browser

import (
	"context"

	"github.com/ocularqa/ocular/api/schemas"
)

// Driver is the consumed browser capability: navigation, observation
// (screenshot + DOM snapshot) and synthetic input. One Driver instance is
// one sequential flow of control; callers must not interleave operations
// on the same instance.
type Driver interface {
	// ID returns the stable session identifier.
	ID() string

	// Navigate loads the URL and waits for the document to become ready.
	Navigate(ctx context.Context, url string) error

	// Screenshot captures the current viewport as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)

	// DOMSnapshot harvests the visible interactive/content elements,
	// tagging each with a marker attribute usable by ClickMarker.
	DOMSnapshot(ctx context.Context, classSubstrings []string) ([]schemas.DOMNode, error)

	// ClickMarker clicks the element carrying the given snapshot marker.
	ClickMarker(ctx context.Context, marker string) error

	// ClickSelector clicks the element matched by a CSS selector.
	ClickSelector(ctx context.Context, selector string) error

	// ClickAt dispatches a synthetic mouse click at viewport coordinates.
	ClickAt(ctx context.Context, p schemas.Point) error

	// Type sends text to the element matched by a CSS selector.
	Type(ctx context.Context, selector, text string) error

	// SendKeys dispatches raw key input to the focused element.
	SendKeys(ctx context.Context, keys string) error

	// Viewport returns the configured viewport dimensions.
	Viewport() schemas.Viewport

	// SetViewport resizes the emulated viewport.
	SetViewport(ctx context.Context, vp schemas.Viewport) error

	// Close tears the session down, releasing the browser context and
	// profile directory.
	Close(ctx context.Context) error
}
