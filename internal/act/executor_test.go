package act

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ocularqa/ocular/api/schemas"
	"github.com/ocularqa/ocular/internal/config"
)

// fakeDriver records input dispatches and fails on request.
type fakeDriver struct {
	markerClicks   []string
	selectorClicks []string
	pointClicks    []schemas.Point

	failMarker   error
	failSelector error
	failPoint    error
	viewport     schemas.Viewport
}

func (d *fakeDriver) ID() string                                   { return "fake" }
func (d *fakeDriver) Navigate(context.Context, string) error       { return nil }
func (d *fakeDriver) Screenshot(context.Context) ([]byte, error)   { return nil, nil }
func (d *fakeDriver) Type(context.Context, string, string) error   { return nil }
func (d *fakeDriver) SendKeys(context.Context, string) error       { return nil }
func (d *fakeDriver) SetViewport(context.Context, schemas.Viewport) error { return nil }
func (d *fakeDriver) Close(context.Context) error                  { return nil }

func (d *fakeDriver) DOMSnapshot(context.Context, []string) ([]schemas.DOMNode, error) {
	return nil, nil
}

func (d *fakeDriver) ClickMarker(_ context.Context, marker string) error {
	if d.failMarker != nil {
		return d.failMarker
	}
	d.markerClicks = append(d.markerClicks, marker)
	return nil
}

func (d *fakeDriver) ClickSelector(_ context.Context, selector string) error {
	if d.failSelector != nil {
		return d.failSelector
	}
	d.selectorClicks = append(d.selectorClicks, selector)
	return nil
}

func (d *fakeDriver) ClickAt(_ context.Context, p schemas.Point) error {
	if d.failPoint != nil {
		return d.failPoint
	}
	d.pointClicks = append(d.pointClicks, p)
	return nil
}

func (d *fakeDriver) Viewport() schemas.Viewport {
	if d.viewport.Width == 0 {
		return schemas.Viewport{Width: 1280, Height: 800}
	}
	return d.viewport
}

func newTestExecutor(driver *fakeDriver) *Executor {
	return NewExecutor(driver, config.ExecutorConfig{
		SettleDelay:        time.Millisecond,
		OCRConfidenceFloor: 0.3,
	}, zap.NewNop())
}

func domElement(text, marker string, box schemas.BoundingBox) schemas.ObservedElement {
	el := schemas.NewObservedElement(text, 1.0, box, schemas.SourceDOM)
	el.Attributes = map[string]string{"marker": marker}
	return el
}

func ocrElement(text string, confidence float64, box schemas.BoundingBox) schemas.ObservedElement {
	return schemas.NewObservedElement(text, confidence, box, schemas.SourceOCR)
}

func TestActPrefersDOMOverOCR(t *testing.T) {
	driver := &fakeDriver{}
	x := newTestExecutor(driver)

	elements := []schemas.ObservedElement{
		ocrElement("Continue as Guest", 0.99, schemas.BoundingBox{X: 100, Y: 100, Width: 200, Height: 40}),
		domElement("Continue as Guest", "n3", schemas.BoundingBox{X: 100, Y: 100, Width: 200, Height: 40}),
	}

	outcome, err := x.Act(context.Background(), schemas.ActionRequest{TargetText: "guest"}, elements)

	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, schemas.MethodDOM, outcome.Method)
	assert.Equal(t, []string{"n3"}, driver.markerClicks)
	assert.Empty(t, driver.pointClicks)
}

func TestActDOMFailureFallsBackToCoordinates(t *testing.T) {
	driver := &fakeDriver{failMarker: errors.New("node detached")}
	x := newTestExecutor(driver)

	elements := []schemas.ObservedElement{
		domElement("Continue as Guest", "n3", schemas.BoundingBox{X: 100, Y: 100, Width: 200, Height: 40}),
		ocrElement("Continue as Guest", 0.9, schemas.BoundingBox{X: 100, Y: 100, Width: 200, Height: 40}),
	}

	outcome, err := x.Act(context.Background(), schemas.ActionRequest{TargetText: "guest"}, elements)

	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, schemas.MethodCoordinates, outcome.Method)
	require.Len(t, driver.pointClicks, 1)
	assert.InDelta(t, 200.0, driver.pointClicks[0].X, 1e-9)
	assert.InDelta(t, 120.0, driver.pointClicks[0].Y, 1e-9)
}

func TestActOCRScoringPrefersConfidentLargeMatch(t *testing.T) {
	driver := &fakeDriver{}
	x := newTestExecutor(driver)

	small := ocrElement("guest entry", 0.5, schemas.BoundingBox{X: 0, Y: 0, Width: 10, Height: 10})
	large := ocrElement("continue as guest", 0.9, schemas.BoundingBox{X: 400, Y: 400, Width: 300, Height: 60})

	outcome, err := x.Act(context.Background(), schemas.ActionRequest{TargetText: "guest"},
		[]schemas.ObservedElement{small, large})

	require.NoError(t, err)
	assert.True(t, outcome.Success)
	require.Len(t, driver.pointClicks, 1)
	assert.Equal(t, large.Center(), driver.pointClicks[0])
}

func TestActOCRFloorFiltersCandidates(t *testing.T) {
	driver := &fakeDriver{}
	x := newTestExecutor(driver)

	faint := ocrElement("guest", 0.1, schemas.BoundingBox{X: 10, Y: 10, Width: 100, Height: 20})

	outcome, err := x.Act(context.Background(), schemas.ActionRequest{TargetText: "guest"},
		[]schemas.ObservedElement{faint})

	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, schemas.ReasonElementNotFound, outcome.Reason)
	assert.Empty(t, driver.pointClicks)
}

func TestActNothingMatches(t *testing.T) {
	driver := &fakeDriver{}
	x := newTestExecutor(driver)

	outcome, err := x.Act(context.Background(), schemas.ActionRequest{TargetText: "missing"},
		[]schemas.ObservedElement{domElement("unrelated", "n1", schemas.BoundingBox{Width: 50, Height: 20})})

	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, schemas.ReasonElementNotFound, outcome.Reason)
}

func TestActSelectorEscapeHatch(t *testing.T) {
	driver := &fakeDriver{}
	x := newTestExecutor(driver)

	outcome, err := x.Act(context.Background(),
		schemas.ActionRequest{TargetSelector: "#submit"}, nil)

	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, schemas.MethodDOM, outcome.Method)
	assert.Equal(t, []string{"#submit"}, driver.selectorClicks)
}

func TestActSelectorFailureIsSoft(t *testing.T) {
	driver := &fakeDriver{failSelector: errors.New("no node")}
	x := newTestExecutor(driver)

	outcome, err := x.Act(context.Background(),
		schemas.ActionRequest{TargetSelector: "#gone"}, nil)

	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Equal(t, schemas.ReasonElementNotFound, outcome.Reason)
}

func TestActIgnoresInvisibleAndUnmarkedDOM(t *testing.T) {
	driver := &fakeDriver{}
	x := newTestExecutor(driver)

	invisible := domElement("guest", "n1", schemas.BoundingBox{Width: 0, Height: 0})
	unmarked := schemas.NewObservedElement("guest", 1.0,
		schemas.BoundingBox{Width: 50, Height: 20}, schemas.SourceDOM)

	outcome, err := x.Act(context.Background(), schemas.ActionRequest{TargetText: "guest"},
		[]schemas.ObservedElement{invisible, unmarked})

	require.NoError(t, err)
	assert.False(t, outcome.Success)
	assert.Empty(t, driver.markerClicks)
}

func TestActHonorsCancellation(t *testing.T) {
	driver := &fakeDriver{failMarker: context.Canceled}
	x := newTestExecutor(driver)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := x.Act(ctx, schemas.ActionRequest{TargetText: "guest"},
		[]schemas.ObservedElement{domElement("guest", "n1", schemas.BoundingBox{Width: 50, Height: 20})})

	assert.ErrorIs(t, err, context.Canceled)
}
