// Package scenario executes declarative step sequences against one or more
// browser sessions. Multi-user scenarios run as independent sequential
// flows: steps execute strictly in declaration order, so an action in
// session A fully completes before a check in session B begins.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ocularqa/ocular/api/schemas"
	"github.com/ocularqa/ocular/internal/act"
	"github.com/ocularqa/ocular/internal/browser"
	"github.com/ocularqa/ocular/internal/classify"
	"github.com/ocularqa/ocular/internal/config"
	"github.com/ocularqa/ocular/internal/extract"
	"github.com/ocularqa/ocular/internal/layout"
	"github.com/ocularqa/ocular/internal/ocr"
	"github.com/ocularqa/ocular/internal/verify"
)

// defaultSession is the session name used when a scenario declares none.
const defaultSession = "main"

// DriverFactory creates a browser session. Injectable so tests can run the
// full step machinery against fakes.
type DriverFactory func(ctx context.Context) (browser.Driver, error)

// runtime bundles one session's full component stack.
type runtime struct {
	name     string
	driver   browser.Driver
	pipeline *verify.Pipeline
	loop     *verify.Loop
	history  *classify.History
}

// StepResult records the outcome of one executed step.
type StepResult struct {
	Index    int
	Step     schemas.ScenarioStep
	Session  string
	Success  bool
	Reason   string
	Duration time.Duration
}

// Report is the outcome of a whole scenario run.
type Report struct {
	Scenario string
	Steps    []StepResult
	Success  bool
}

// Runner builds per-session component stacks and steps scenarios through
// them.
type Runner struct {
	cfg        *config.Config
	catalog    schemas.StateCatalog
	newDriver  DriverFactory
	recognizer ocr.Recognizer
	logger     *zap.Logger
}

// NewRunner wires a runner. A nil driver factory defaults to launching
// real chromedp sessions; a nil recognizer defaults to the configured
// tesseract binary when OCR is enabled.
func NewRunner(cfg *config.Config, catalog schemas.StateCatalog, newDriver DriverFactory, recognizer ocr.Recognizer, logger *zap.Logger) (*Runner, error) {
	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("invalid state catalog: %w", err)
	}
	r := &Runner{
		cfg:        cfg,
		catalog:    catalog,
		newDriver:  newDriver,
		recognizer: recognizer,
		logger:     logger.Named("runner"),
	}
	if r.newDriver == nil {
		r.newDriver = func(ctx context.Context) (browser.Driver, error) {
			return browser.NewSession(ctx, cfg.Browser, logger)
		}
	}
	if r.recognizer == nil && cfg.Extractor.OCREnabled {
		r.recognizer = ocr.NewTesseract(cfg.Extractor.TesseractPath, cfg.Extractor.Languages, logger)
	}
	return r, nil
}

// Run executes the scenario and returns a per-step report. Soft step
// failures marked ContinueOnFailure keep the run going; anything else
// aborts after diagnostics are persisted by the verification loop.
func (r *Runner) Run(ctx context.Context, scenario schemas.Scenario) (*Report, error) {
	log := r.logger.With(zap.String("scenario", scenario.Name))

	names := scenario.Sessions
	if len(names) == 0 {
		names = []string{defaultSession}
	}

	sessions, err := r.startSessions(ctx, names)
	if err != nil {
		return nil, err
	}
	defer r.closeSessions(sessions)

	report := &Report{Scenario: scenario.Name, Success: true}
	log.Info("Scenario started.", zap.Int("steps", len(scenario.Steps)), zap.Int("sessions", len(sessions)))

	for i, step := range scenario.Steps {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		rt, err := r.route(sessions, step.Session)
		if err != nil {
			return report, err
		}

		started := time.Now()
		stepErr := r.execute(ctx, rt, step)
		result := StepResult{
			Index:    i,
			Step:     step,
			Session:  rt.name,
			Success:  stepErr == nil,
			Duration: time.Since(started),
		}
		if stepErr != nil {
			result.Reason = stepErr.Error()
		}
		report.Steps = append(report.Steps, result)

		if stepErr != nil {
			report.Success = false
			soft := errors.Is(stepErr, verify.ErrMaxRetriesExceeded) ||
				errors.Is(stepErr, verify.ErrWaitTimeout) ||
				errors.Is(stepErr, verify.ErrUnexpectedState)
			if step.ContinueOnFailure && soft {
				log.Warn("Step failed; continuing per scenario policy.",
					zap.Int("step", i), zap.String("kind", string(step.Kind)), zap.Error(stepErr))
				continue
			}
			log.Error("Step failed; aborting scenario.",
				zap.Int("step", i), zap.String("kind", string(step.Kind)), zap.Error(stepErr))
			return report, fmt.Errorf("step %d (%s) failed: %w", i, step.Kind, stepErr)
		}
		log.Debug("Step complete.", zap.Int("step", i), zap.String("kind", string(step.Kind)), zap.String("session", rt.name))
	}

	log.Info("Scenario complete.", zap.Bool("success", report.Success))
	return report, nil
}

// startSessions launches every named session concurrently; any launch
// failure tears the others down.
func (r *Runner) startSessions(ctx context.Context, names []string) (map[string]*runtime, error) {
	sessions := make(map[string]*runtime, len(names))
	results := make([]*runtime, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			rt, err := r.buildRuntime(gctx, name)
			if err != nil {
				return fmt.Errorf("failed to start session %q: %w", name, err)
			}
			results[i] = rt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, rt := range results {
			if rt != nil {
				_ = rt.driver.Close(context.Background())
			}
		}
		return nil, err
	}

	for _, rt := range results {
		sessions[rt.name] = rt
	}
	return sessions, nil
}

// buildRuntime assembles the full component stack for one session. The
// pure stages (classifier, partitioner) are constructed per session only
// because the classifier carries no shared mutable state either way.
func (r *Runner) buildRuntime(ctx context.Context, name string) (*runtime, error) {
	driver, err := r.newDriver(ctx)
	if err != nil {
		return nil, err
	}

	classifier, err := classify.NewClassifier(r.catalog, r.cfg.Classifier)
	if err != nil {
		_ = driver.Close(context.Background())
		return nil, err
	}

	sessionLogger := r.logger.With(zap.String("scenario_session", name))
	extractor := extract.NewExtractor(driver, r.recognizer, r.cfg.Extractor, sessionLogger)
	partitioner := layout.NewPartitioner(r.cfg.Layout)
	history := classify.NewHistory(r.cfg.Classifier.HistoryCap)
	pipeline := verify.NewPipeline(extractor, partitioner, classifier, history, sessionLogger)
	executor := act.NewExecutor(driver, r.cfg.Executor, sessionLogger)
	recorder := verify.NewRecorder(r.cfg.Diagnostics.Dir, sessionLogger)
	loop := verify.NewLoop(pipeline, executor, recorder, driver.ID(), r.cfg.Verify, sessionLogger)

	return &runtime{
		name:     name,
		driver:   driver,
		pipeline: pipeline,
		loop:     loop,
		history:  history,
	}, nil
}

func (r *Runner) closeSessions(sessions map[string]*runtime) {
	g := new(errgroup.Group)
	for _, rt := range sessions {
		g.Go(func() error {
			return rt.driver.Close(context.Background())
		})
	}
	if err := g.Wait(); err != nil {
		r.logger.Warn("Session teardown reported errors.", zap.Error(err))
	}
}

func (r *Runner) route(sessions map[string]*runtime, name string) (*runtime, error) {
	if name == "" {
		name = defaultSession
		if _, ok := sessions[name]; !ok && len(sessions) == 1 {
			for _, rt := range sessions {
				return rt, nil
			}
		}
	}
	rt, ok := sessions[name]
	if !ok {
		return nil, fmt.Errorf("step references undeclared session %q", name)
	}
	return rt, nil
}

// execute dispatches one step to the session's component stack.
func (r *Runner) execute(ctx context.Context, rt *runtime, step schemas.ScenarioStep) error {
	switch step.Kind {
	case schemas.StepNavigate:
		if step.URL == "" {
			return fmt.Errorf("navigate step requires a url")
		}
		return rt.driver.Navigate(ctx, step.URL)

	case schemas.StepWait:
		return sleepCtx(ctx, time.Duration(step.DurationMs)*time.Millisecond)

	case schemas.StepClick:
		request := schemas.ActionRequest{
			TargetText:    step.TargetText,
			ExpectedState: step.ExpectedState,
			Description:   step.Description,
		}
		outcome, err := rt.loop.ExecuteAndVerify(ctx, request)
		if err != nil {
			return err
		}
		// An unexpected transition comes back as a soft outcome with no
		// error; the step still failed.
		if !outcome.Success {
			after := "unknown"
			if outcome.After != nil {
				after = outcome.After.State.Key
			}
			return fmt.Errorf("%w: click %q reached state %q, expected %q",
				verify.ErrUnexpectedState, step.TargetText, after, step.ExpectedState)
		}
		return nil

	case schemas.StepVerify:
		return r.verifyVisible(ctx, rt, step.TargetText)

	case schemas.StepWaitForState:
		timeout := time.Duration(step.TimeoutMs) * time.Millisecond
		_, err := rt.loop.WaitForState(ctx, step.TargetState, timeout)
		return err

	case schemas.StepScreenshot:
		return r.saveScreenshot(ctx, rt, step.Name)

	default:
		return fmt.Errorf("unknown step kind %q", step.Kind)
	}
}

// verifyVisible asserts the target text is present among the currently
// observed elements.
func (r *Runner) verifyVisible(ctx context.Context, rt *runtime, target string) error {
	if target == "" {
		return fmt.Errorf("verify step requires target text")
	}
	result, _, err := rt.pipeline.Run(ctx)
	if err != nil {
		return err
	}
	for _, el := range result.Elements {
		if el.ContainsText(target) {
			return nil
		}
	}
	return fmt.Errorf("%w: text %q not visible in state %q", verify.ErrWaitTimeout, target, result.State.Key)
}

// saveScreenshot captures the viewport into the diagnostics directory
// under the given name. Used for documentation screenshots.
func (r *Runner) saveScreenshot(ctx context.Context, rt *runtime, name string) error {
	if name == "" {
		name = fmt.Sprintf("screenshot-%d", time.Now().UnixMilli())
	}
	shot, err := rt.driver.Screenshot(ctx)
	if err != nil {
		return err
	}
	dir := r.cfg.Diagnostics.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	path := filepath.Join(dir, name+".png")
	if err := os.WriteFile(path, shot, 0o640); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	r.logger.Info("Screenshot saved.", zap.String("path", path))
	return nil
}

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
