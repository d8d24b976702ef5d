// Package orchestrate fans evaluation out across worker goroutines.
// Episodes are independent by construction: every dialogue grades
// against its own store view and the policy guards its internals, so
// the only coordination needed is bounding concurrency and keeping
// verdicts in input order.
package orchestrate

import (
	"context"
	"errors"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/mnemonlabs/mnemon/internal/corpus"
	"github.com/mnemonlabs/mnemon/internal/trainer"
)

// Options bounds the evaluation pool.
type Options struct {
	// Workers is the number of dialogues evaluated concurrently.
	// Values below 1 mean sequential.
	Workers int
}

// Coordinator runs a trainer's evaluation across a worker pool.
type Coordinator struct {
	trainer *trainer.Trainer
	workers int
}

// New builds a coordinator around a trainer.
func New(t *trainer.Trainer, opts Options) *Coordinator {
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	return &Coordinator{trainer: t, workers: workers}
}

// Evaluate grades all dialogues, at most Workers at a time, with
// exploration pinned to zero for the duration. Verdicts come back in
// input order regardless of completion order.
func (c *Coordinator) Evaluate(ctx context.Context, dialogues []corpus.Dialogue) (*trainer.Report, error) {
	if len(dialogues) == 0 {
		return nil, errors.New("orchestrate: no dialogues to evaluate")
	}

	restore := c.trainer.PinExploration()
	defer restore()

	state, err := trainer.NewRunState(c.trainer.Storage(), map[string]string{
		"mode":    "eval",
		"workers": strconv.Itoa(c.workers),
	})
	if err != nil {
		return nil, err
	}
	if err := state.Start(); err != nil {
		return nil, err
	}
	bus := c.trainer.Bus()
	bus.PublishWithData(trainer.EventRunStart, state.ID(), map[string]interface{}{
		"mode":      "eval",
		"dialogues": len(dialogues),
		"workers":   c.workers,
	})

	verdicts := make([]trainer.Verdict, len(dialogues))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, d := range dialogues {
		g.Go(func() error {
			v, err := c.trainer.EvaluateDialogue(gctx, state.ID(), i, d)
			if err != nil {
				return err
			}
			verdicts[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		_ = state.Halt(err.Error())
		bus.PublishWithData(trainer.EventRunError, state.ID(), map[string]interface{}{
			"error": err.Error(),
		})
		return c.trainer.BuildReport(state.ID()), err
	}

	if err := state.Complete(); err != nil {
		return nil, err
	}
	report := c.trainer.BuildReport(state.ID())
	report.Verdicts = verdicts
	bus.PublishWithData(trainer.EventRunComplete, state.ID(), map[string]interface{}{
		"graded":   report.Graded,
		"accuracy": report.Accuracy,
	})
	return report, nil
}
