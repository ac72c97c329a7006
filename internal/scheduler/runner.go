package scheduler

import (
	"context"
	"errors"

	"mediarelay/internal/engine"
)

type engineRunner struct {
	engine *engine.Engine
}

// EngineRunner adapts an engine to the Runner interface.
func EngineRunner(e *engine.Engine) Runner {
	return engineRunner{engine: e}
}

func (r engineRunner) RunReconciliation(ctx context.Context) error {
	_, err := r.engine.RunReconciliation(ctx)
	return err
}

// RunSubtitles reconciles active requests, then recycles stale ones. Both
// halves run even when the first fails.
func (r engineRunner) RunSubtitles(ctx context.Context) error {
	_, reconcileErr := r.engine.RunSubtitleReconciliation(ctx)
	_, cleanupErr := r.engine.CleanupStaleSubtitles(ctx, 0)
	return errors.Join(reconcileErr, cleanupErr)
}

func (r engineRunner) RunSweep(ctx context.Context) error {
	_, err := r.engine.RunStalenessSweep(ctx)
	return err
}
