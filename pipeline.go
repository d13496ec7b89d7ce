package lake

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Stage is one step of a batch job. Stages run strictly one after another;
// a stage may depend on what earlier stages wrote to storage.
type Stage interface {
	Name() string
	Run(ctx context.Context) error
}

// StageFunc adapts a function to the Stage interface.
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context) error
}

// Name implements Stage.
func (s StageFunc) Name() string { return s.StageName }

// Run implements Stage.
func (s StageFunc) Run(ctx context.Context) error { return s.Fn(ctx) }

// RunStages runs each stage in order and stops at the first failure or once
// ctx is done. Nothing written by earlier stages is undone.
func RunStages(ctx context.Context, log Logger, stats Statter, stages ...Stage) error {
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "before stage %s", s.Name())
		}
		start := time.Now()
		log.Printf("stage %s: starting", s.Name())
		if err := s.Run(ctx); err != nil {
			return errors.Wrapf(err, "stage %s", s.Name())
		}
		took := time.Since(start)
		stats.Timing("stage."+s.Name(), took, 1)
		log.Printf("stage %s: done in %v", s.Name(), took)
	}
	return nil
}
