package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ocularqa/ocular/api/schemas"
	"github.com/ocularqa/ocular/internal/config"
)

// Session is a chromedp-backed Driver. It owns one isolated browser
// context (its own allocator and profile directory) for its whole lifetime.
type Session struct {
	id     string
	logger *zap.Logger
	cfg    config.BrowserConfig

	allocCtx    context.Context
	allocCancel context.CancelFunc
	browserCtx  context.Context
	ctxCancel   context.CancelFunc

	profileDir    string
	ownProfileDir bool

	mu       sync.RWMutex
	viewport schemas.Viewport

	closeOnce sync.Once
}

var _ Driver = (*Session)(nil)

// markerAttr is the temporary attribute DOM snapshots stamp onto harvested
// elements so they can be clicked natively within the same pass.
const markerAttr = "data-ocular-id"

// NewSession launches an isolated browser context. The session must be
// closed to release the browser and its profile directory.
func NewSession(parentCtx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Session, error) {
	sessionID := uuid.New().String()
	log := logger.Named("session").With(zap.String("session_id", sessionID))

	s := &Session{
		id:     sessionID,
		logger: log,
		cfg:    cfg,
		viewport: schemas.Viewport{
			Width:  cfg.ViewportWidth,
			Height: cfg.ViewportHeight,
		},
	}

	// Exclusive profile directory per session. A configured base directory
	// keeps profiles inspectable; otherwise a throwaway temp dir is used.
	if cfg.ProfileDir != "" {
		s.profileDir = filepath.Join(cfg.ProfileDir, "profile-"+sessionID)
		if err := os.MkdirAll(s.profileDir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create profile directory: %w", err)
		}
	} else {
		dir, err := os.MkdirTemp("", "ocular-profile-")
		if err != nil {
			return nil, fmt.Errorf("failed to create profile directory: %w", err)
		}
		s.profileDir = dir
		s.ownProfileDir = true
	}

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.UserDataDir(s.profileDir),
		chromedp.WindowSize(s.viewport.Width, s.viewport.Height),
	)
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	for _, arg := range cfg.Args {
		opts = append(opts, chromedp.Flag(strings.TrimPrefix(arg, "--"), true))
	}

	s.allocCtx, s.allocCancel = chromedp.NewExecAllocator(parentCtx, opts...)
	s.browserCtx, s.ctxCancel = chromedp.NewContext(s.allocCtx)

	// Start the browser process eagerly so launch failures surface here,
	// not on the first navigation.
	if err := chromedp.Run(s.browserCtx); err != nil {
		s.teardown()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	if err := chromedp.Run(s.browserCtx,
		chromedp.EmulateViewport(int64(s.viewport.Width), int64(s.viewport.Height)),
	); err != nil {
		s.teardown()
		return nil, fmt.Errorf("failed to set initial viewport: %w", err)
	}

	log.Info("Browser session started.", zap.String("profile_dir", s.profileDir))
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// run executes chromedp actions under the operation context while keeping
// the CDP target values from the session's browser context.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := s.browserCtx.Err(); err != nil {
		return fmt.Errorf("session closed: %w", err)
	}
	opCtx, cancel := mergeContext(s.browserCtx, ctx)
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}

// Navigate loads the URL and waits for the document body to be ready.
func (s *Session) Navigate(ctx context.Context, url string) error {
	timeout := s.cfg.NavigationTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info("Navigating.", zap.String("url", url))
	err := s.run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("navigation to '%s' timed out after %v: %w", url, timeout, navCtx.Err())
		}
		return fmt.Errorf("navigation to '%s' failed: %w", url, err)
	}
	return nil
}

// Screenshot captures the current viewport as PNG bytes.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot capture failed: %w", err)
	}
	return buf, nil
}

// domSnapshotJS walks interactive and content elements, filters to visible
// ones, stamps the marker attribute and returns one record per element.
// The container class substrings are injected as a JSON array.
const domSnapshotJS = `
(function(classSubstrings, markerAttr) {
    const selectors = [
        'button', '[role=button]', 'a[href]', '[aria-label]', '[data-testid]',
        'input:not([type=hidden])', 'textarea', 'select'
    ];
    const seen = new Set();
    const nodes = [];
    for (const sel of selectors) {
        for (const node of document.querySelectorAll(sel)) seen.add(node);
    }
    if (classSubstrings.length > 0) {
        for (const node of document.querySelectorAll('[class]')) {
            const cls = (node.className || '').toString().toLowerCase();
            if (classSubstrings.some(sub => cls.includes(sub))) seen.add(node);
        }
    }
    let counter = 0;
    for (const node of seen) {
        const rect = node.getBoundingClientRect();
        if (rect.width <= 0 || rect.height <= 0) continue;
        const style = window.getComputedStyle(node);
        if (style.display === 'none' || style.visibility === 'hidden') continue;
        const marker = 'n' + (counter++);
        node.setAttribute(markerAttr, marker);
        nodes.push({
            tag: node.tagName.toLowerCase(),
            text: (node.innerText || node.value || '').trim().slice(0, 256),
            className: (node.className || '').toString(),
            ariaLabel: node.getAttribute('aria-label') || '',
            testId: node.getAttribute('data-testid') || '',
            box: { x: rect.left, y: rect.top, width: rect.width, height: rect.height },
            marker: marker
        });
    }
    return nodes;
})(%s, %s);
`

// DOMSnapshot harvests visible elements from the live page.
func (s *Session) DOMSnapshot(ctx context.Context, classSubstrings []string) ([]schemas.DOMNode, error) {
	lowered := make([]string, 0, len(classSubstrings))
	for _, sub := range classSubstrings {
		if sub != "" {
			lowered = append(lowered, sub)
		}
	}
	script := fmt.Sprintf(domSnapshotJS, jsonEncode(lowered), jsonEncode(markerAttr))

	var raw json.RawMessage
	err := s.run(ctx,
		chromedp.Evaluate(script, &raw, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("DOM snapshot evaluation failed: %w", err)
	}

	var nodes []schemas.DOMNode
	if err := json.Unmarshal(raw, &nodes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal DOM snapshot: %w", err)
	}
	s.logger.Debug("DOM snapshot harvested.", zap.Int("nodes", len(nodes)))
	return nodes, nil
}

// ClickMarker clicks the element stamped with the given snapshot marker.
func (s *Session) ClickMarker(ctx context.Context, marker string) error {
	selector := fmt.Sprintf(`[%s=%q]`, markerAttr, marker)
	return s.ClickSelector(ctx, selector)
}

// ClickSelector scrolls the element into view and clicks it natively.
func (s *Session) ClickSelector(ctx context.Context, selector string) error {
	opCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := s.run(opCtx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("click timed out for selector '%s': %w", selector, opCtx.Err())
		}
		return fmt.Errorf("click failed for selector '%s': %w", selector, err)
	}
	return nil
}

// ClickAt dispatches a synthetic press/release pair at viewport coordinates.
func (s *Session) ClickAt(ctx context.Context, p schemas.Point) error {
	press := input.DispatchMouseEvent(input.MousePressed, p.X, p.Y).
		WithButton(input.Left).
		WithClickCount(1)
	release := input.DispatchMouseEvent(input.MouseReleased, p.X, p.Y).
		WithButton(input.Left).
		WithClickCount(1)

	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.run(opCtx, press, release); err != nil {
		return fmt.Errorf("coordinate click at (%.0f, %.0f) failed: %w", p.X, p.Y, err)
	}
	return nil
}

// Type sends text into the element matched by the selector.
func (s *Session) Type(ctx context.Context, selector, text string) error {
	opCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	err := s.run(opCtx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("type failed for selector '%s': %w", selector, err)
	}
	return nil
}

// SendKeys dispatches raw key input to the focused element.
func (s *Session) SendKeys(ctx context.Context, keys string) error {
	opCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.run(opCtx, chromedp.KeyEvent(keys)); err != nil {
		return fmt.Errorf("key dispatch failed: %w", err)
	}
	return nil
}

// Viewport returns the current viewport dimensions.
func (s *Session) Viewport() schemas.Viewport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.viewport
}

// SetViewport resizes the emulated viewport.
func (s *Session) SetViewport(ctx context.Context, vp schemas.Viewport) error {
	if vp.Width <= 0 || vp.Height <= 0 {
		return fmt.Errorf("viewport must be positive, got %dx%d", vp.Width, vp.Height)
	}
	if err := s.run(ctx, chromedp.EmulateViewport(int64(vp.Width), int64(vp.Height))); err != nil {
		return fmt.Errorf("failed to set viewport: %w", err)
	}
	s.mu.Lock()
	s.viewport = vp
	s.mu.Unlock()
	return nil
}

// Close tears down the browser context and releases the profile directory.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.logger.Info("Closing browser session.")
		s.teardown()
	})
	return nil
}

func (s *Session) teardown() {
	if s.ctxCancel != nil {
		s.ctxCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	if s.ownProfileDir && s.profileDir != "" {
		if err := os.RemoveAll(s.profileDir); err != nil {
			s.logger.Warn("Failed to remove profile directory.", zap.Error(err))
		}
	}
}

// mergeContext derives an operation context from the session's browser
// context (preserving the CDP target values chromedp requires) that is also
// cancelled when the caller's context is.
func mergeContext(sessionCtx, opCtx context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(sessionCtx)
	go func() {
		select {
		case <-opCtx.Done():
			cancel()
		case <-merged.Done():
		}
	}()
	return merged, cancel
}

// jsonEncode safely encodes a value for injection into a JS snippet.
func jsonEncode(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
