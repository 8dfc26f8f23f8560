package verify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ocularqa/ocular/api/schemas"
)

// Recorder persists failure artifacts (screenshot + structured record) to
// the diagnostics directory so hard failures are debuggable post-hoc
// without reproduction.
type Recorder struct {
	dir    string
	logger *zap.Logger
}

// NewRecorder creates the diagnostics directory lazily on first write.
func NewRecorder(dir string, logger *zap.Logger) *Recorder {
	return &Recorder{dir: dir, logger: logger.Named("diagnostics")}
}

// Record writes the failure record as JSON alongside the screenshot (when
// present) and returns the record path. Recording failures are logged, not
// propagated: diagnostics must never mask the original failure.
func (r *Recorder) Record(record schemas.FailureRecord, screenshot []byte) string {
	if r.dir == "" {
		return ""
	}
	if err := os.MkdirAll(r.dir, 0o750); err != nil {
		r.logger.Warn("Failed to create diagnostics directory.", zap.Error(err))
		return ""
	}

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now()
	}

	base := fmt.Sprintf("%s-%s", record.Timestamp.Format("20060102-150405"), record.ID[:8])

	if len(screenshot) > 0 {
		shotPath := filepath.Join(r.dir, base+".png")
		if err := os.WriteFile(shotPath, screenshot, 0o640); err != nil {
			r.logger.Warn("Failed to persist failure screenshot.", zap.Error(err))
		} else {
			record.ScreenshotPath = shotPath
		}
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		r.logger.Warn("Failed to marshal failure record.", zap.Error(err))
		return ""
	}
	recordPath := filepath.Join(r.dir, base+".json")
	if err := os.WriteFile(recordPath, data, 0o640); err != nil {
		r.logger.Warn("Failed to persist failure record.", zap.Error(err))
		return ""
	}

	r.logger.Info("Failure diagnostics persisted.",
		zap.String("record", recordPath),
		zap.String("reason", record.Reason))
	return recordPath
}

// suggestions derives human hints from the terminal before/after states.
func suggestions(reason string, before, after *schemas.ClassificationResult) []string {
	var out []string
	switch reason {
	case schemas.ReasonElementNotFound:
		out = append(out, "target text was not present in DOM or OCR output; check the screenshot for rendering or OCR quality issues")
		if before != nil && len(before.MissingKeywords) > 0 {
			out = append(out, fmt.Sprintf("state %q was missing keywords %v; the screen may not have finished loading", before.State.Key, before.MissingKeywords))
		}
	case schemas.ReasonUnexpectedStateChange:
		if after != nil {
			out = append(out, fmt.Sprintf("the click worked but landed in %q; the expected-state assertion may be wrong", after.State.Key))
		}
	case schemas.ReasonNoStateChange:
		out = append(out, "the UI did not change after the click; consider a longer settle delay or verify the element is interactive")
	}
	return out
}
