package bpe_prep

import (
	"context"
	"fmt"
	"time"

	"github.com/wbrown/bpe_prep/pkg/logger"
	"github.com/wbrown/bpe_prep/pkg/metrics"
)

// Stage is one named, all-or-nothing unit of pipeline work.
type Stage interface {
	Name() string
	Run(ctx context.Context) error
}

// StageFunc adapts a function to a Stage.
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context) error
}

func NewStage(name string, fn func(ctx context.Context) error) StageFunc {
	return StageFunc{StageName: name, Fn: fn}
}

func (stage StageFunc) Name() string {
	return stage.StageName
}

func (stage StageFunc) Run(ctx context.Context) error {
	return stage.Fn(ctx)
}

// ResumablePipeline runs stages in order, skipping those its status
// already records as complete.
type ResumablePipeline struct {
	Status  *StatusTracker
	Metrics *metrics.Metrics
}

// NewResumablePipeline loads the status persisted at statusPath.
func NewResumablePipeline(statusPath string, m *metrics.Metrics) (
	*ResumablePipeline, error) {
	status, err := LoadStatus(statusPath)
	if err != nil {
		return nil, err
	}
	return &ResumablePipeline{Status: status, Metrics: m}, nil
}

// Run
// Executes stages in order. A completed stage is skipped without running
// it. A stage is recorded as complete only after it returns nil, and the
// first failure stops the run with a *StageError naming the stage.
func (pipeline *ResumablePipeline) Run(ctx context.Context,
	stages ...Stage) error {
	seen := make(map[string]bool, len(stages))
	for _, stage := range stages {
		if seen[stage.Name()] {
			return fmt.Errorf("%w: %s", ErrDuplicateStage, stage.Name())
		}
		seen[stage.Name()] = true
	}

	for _, stage := range stages {
		name := stage.Name()
		log := logger.WithStage(name)
		if pipeline.Status.IsComplete(name) {
			log.Info("stage already complete, skipping")
			pipeline.Metrics.ObserveStage(name, "skipped", 0)
			continue
		}
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: name, Err: err}
		}
		log.Info("stage starting")
		start := time.Now()
		if err := stage.Run(ctx); err != nil {
			pipeline.Metrics.ObserveStage(name, "failed", time.Since(start))
			log.Error("stage failed", "error", err)
			return &StageError{Stage: name, Err: err}
		}
		elapsed := time.Since(start)
		if err := pipeline.Status.MarkComplete(name); err != nil {
			pipeline.Metrics.ObserveStage(name, "failed", elapsed)
			return &StageError{Stage: name, Err: err}
		}
		pipeline.Metrics.ObserveStage(name, "completed", elapsed)
		log.Info("stage complete", "elapsed", elapsed.Round(time.Millisecond))
	}
	if pipeline.Metrics != nil {
		pipeline.Metrics.LastSuccessfulRunTime.SetToCurrentTime()
	}
	return nil
}
