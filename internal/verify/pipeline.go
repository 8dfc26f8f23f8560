// Package verify orchestrates the classify-act-reclassify cycle: every
// state-changing action is paired with a re-classification that confirms
// the intended transition, with bounded retries and structured failure
// reporting.
package verify

import (
	"context"

	"go.uber.org/zap"

	"github.com/ocularqa/ocular/api/schemas"
	"github.com/ocularqa/ocular/internal/classify"
	"github.com/ocularqa/ocular/internal/extract"
	"github.com/ocularqa/ocular/internal/layout"
)

// Observer produces one extraction pass. Implemented by extract.Extractor;
// tests substitute deterministic fakes.
type Observer interface {
	Observe(ctx context.Context) (*extract.Observation, error)
}

// Actor resolves and performs one action. Implemented by act.Executor.
type Actor interface {
	Act(ctx context.Context, request schemas.ActionRequest, elements []schemas.ObservedElement) (schemas.ActionOutcome, error)
}

// Pipeline runs the full observation pipeline: extract, partition,
// classify. The pure stages (partitioner, classifier) never touch I/O, so
// the pipeline is testable with a fake observer alone.
type Pipeline struct {
	observer    Observer
	partitioner *layout.Partitioner
	classifier  *classify.Classifier
	history     *classify.History
	logger      *zap.Logger
}

// NewPipeline assembles the observation pipeline. A nil history disables
// result recording.
func NewPipeline(observer Observer, partitioner *layout.Partitioner, classifier *classify.Classifier, history *classify.History, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		observer:    observer,
		partitioner: partitioner,
		classifier:  classifier,
		history:     history,
		logger:      logger.Named("pipeline"),
	}
}

// Run performs one classification pass and returns the result together
// with the screenshot it was derived from.
func (p *Pipeline) Run(ctx context.Context) (schemas.ClassificationResult, []byte, error) {
	obs, err := p.observer.Observe(ctx)
	if err != nil {
		return schemas.ClassificationResult{}, nil, err
	}

	partition := p.partitioner.Partition(obs.Elements, obs.Viewport)
	result := p.classifier.Classify(obs.Elements)

	if p.history != nil {
		p.history.Append(result)
	}

	p.logger.Debug("Classification pass complete.",
		zap.String("state", result.State.Key),
		zap.Float64("confidence", result.Confidence),
		zap.Int("elements", len(obs.Elements)),
		zap.Int("top", regionSize(partition.Top)),
		zap.Int("left", regionSize(partition.Left)),
		zap.Int("right", regionSize(partition.Right)),
		zap.Int("center", regionSize(partition.Center)),
	)
	return result, obs.Screenshot, nil
}

func regionSize(r *schemas.Region) int {
	if r == nil {
		return 0
	}
	return len(r.Elements)
}
