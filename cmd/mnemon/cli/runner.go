package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/mnemonlabs/mnemon/internal/config"
	"github.com/mnemonlabs/mnemon/internal/corpus"
	"github.com/mnemonlabs/mnemon/internal/extract"
	"github.com/mnemonlabs/mnemon/internal/guard"
	"github.com/mnemonlabs/mnemon/internal/judge"
	"github.com/mnemonlabs/mnemon/internal/memory"
	"github.com/mnemonlabs/mnemon/internal/observe"
	"github.com/mnemonlabs/mnemon/internal/orchestrate"
	"github.com/mnemonlabs/mnemon/internal/plugin"
	"github.com/mnemonlabs/mnemon/internal/policy"
	"github.com/mnemonlabs/mnemon/internal/provider"
	"github.com/mnemonlabs/mnemon/internal/respond"
	"github.com/mnemonlabs/mnemon/internal/reward"
	"github.com/mnemonlabs/mnemon/internal/store"
	"github.com/mnemonlabs/mnemon/internal/trainer"
	"github.com/mnemonlabs/mnemon/internal/ui"
)

// Runner wires a trainer from configuration and drives one train or
// eval invocation.
type Runner struct {
	Observer *observe.Observer
	Storage  *store.SQLiteStore
	Provider provider.Provider
	Config   *config.Config
	UI       ui.UI

	// Resume names a run whose latest checkpoint seeds the policy.
	Resume string
	// Checkpoint names a specific checkpoint to load (eval).
	Checkpoint string
	// JudgeKind selects the grader: "llm" or "plugin".
	JudgeKind string
	// JudgePlugin is the plugin binary path when JudgeKind is "plugin".
	JudgePlugin string
	// Workers bounds parallel evaluation; 0 or 1 is sequential.
	Workers int
}

func NewRunner(obs *observe.Observer, storage *store.SQLiteStore, p provider.Provider, cfg *config.Config) *Runner {
	return &Runner{
		Observer:  obs,
		Storage:   storage,
		Provider:  p,
		Config:    cfg,
		UI:        ui.SilentUI{},
		JudgeKind: "llm",
	}
}

// Train runs the training loop and prints the final report.
func (r *Runner) Train(ctx context.Context, dialogues []corpus.Dialogue) error {
	r.UI.UpdateStatus("Starting training...")

	t, cleanup, err := r.buildTrainer()
	if err != nil {
		r.Observer.Log().Error().Err(err).Msg("Failed to build trainer")
		return err
	}
	defer cleanup()

	report, err := t.Train(ctx, dialogues)
	if err != nil {
		r.UI.UpdateStatus("Training failed")
		return err
	}

	fmt.Printf("run %s: %d episodes, %d steps, avg reward %.3f, epsilon %.4f\n",
		report.RunID, report.Episodes, report.Steps, report.AvgReward, report.Epsilon)
	fmt.Printf("actions: %d add / %d update / %d delete / %d none (%d forced, %d dropped)\n",
		report.Adds, report.Updates, report.Deletes, report.Nones, report.ForcedNones, report.DroppedSteps)
	return nil
}

// Evaluate grades the dialogues with exploration pinned to zero and
// prints accuracy and per-dialogue verdicts.
func (r *Runner) Evaluate(ctx context.Context, dialogues []corpus.Dialogue) error {
	r.UI.UpdateStatus("Starting evaluation...")

	t, cleanup, err := r.buildTrainer()
	if err != nil {
		r.Observer.Log().Error().Err(err).Msg("Failed to build trainer")
		return err
	}
	defer cleanup()

	var report *trainer.Report
	if r.Workers > 1 {
		coord := orchestrate.New(t, orchestrate.Options{Workers: r.Workers})
		report, err = coord.Evaluate(ctx, dialogues)
	} else {
		report, err = t.Evaluate(ctx, dialogues)
	}
	if err != nil {
		r.UI.UpdateStatus("Evaluation failed")
		return err
	}

	for _, v := range report.Verdicts {
		mark := "✗"
		if v.Correct {
			mark = "✓"
		}
		fmt.Printf("%s %s: %q (gold %q)\n", mark, v.Dialogue, v.Answer, v.Golden)
	}
	fmt.Printf("run %s: %d/%d correct (%.1f%%), avg reward %.3f\n",
		report.RunID, report.Correct, report.Graded, report.Accuracy*100, report.AvgReward)
	return nil
}

// buildTrainer assembles the trainer and its collaborators from the
// configuration. The returned cleanup closes whatever the wiring
// opened (chromem handle, judge plugin process).
func (r *Runner) buildTrainer() (*trainer.Trainer, func(), error) {
	cleanup := func() {}

	pol, err := policy.DefaultRegistry().Build(r.Config.Policy.Name, r.Config.PolicyParams())
	if err != nil {
		return nil, cleanup, err
	}
	if err := r.restorePolicy(pol); err != nil {
		return nil, cleanup, err
	}

	stores, closeStores, err := r.openCollections()
	if err != nil {
		return nil, cleanup, err
	}

	thresholds := r.Config.Thresholds()
	metrics := trainer.NewMetrics()
	metered := trainer.Metered(r.Provider, metrics)

	var extractor extract.Extractor
	var annotator memory.Annotator
	if r.Provider.Name() == "stub" {
		// The stub cannot speak the facts protocol; pass turns through.
		extractor = extract.NewStaticExtractor(metered)
		annotator = memory.NewThresholdAnnotator(thresholds)
	} else {
		extractor = extract.NewLLMExtractor(metered)
		if llmAnnotator {
			annotator = extract.NewLLMAnnotator(metered, r.Observer, thresholds)
		} else {
			annotator = memory.NewThresholdAnnotator(thresholds)
		}
	}

	j, closeJudge, err := r.buildJudge(metered)
	if err != nil {
		closeStores()
		return nil, cleanup, err
	}

	bus := trainer.NewEventBus()
	t, err := trainer.New(trainer.Options{
		Policy:    pol,
		Rewards:   reward.NewModel(r.Config.RewardParams()),
		Extractor: extractor,
		Annotator: annotator,
		Generator: respond.NewLLMGenerator(metered),
		Judge:     j,
		Provider:  metered,
		Stores:    stores,
		Storage:   r.Storage,
		Guard:     guard.New(r.Config.Guard),
		Observe:   r.Observer,
		Bus:       bus,
		Metrics:   metrics,
		Config: trainer.Config{
			Epochs:     r.Config.Training.Epochs,
			BatchSize:  r.Config.Training.BatchSize,
			TopK:       r.Config.Training.TopK,
			Seed:       r.Config.Policy.Seed,
			Thresholds: thresholds,
		},
	})
	if err != nil {
		closeJudge()
		closeStores()
		return nil, cleanup, err
	}
	ui.Bridge(bus, metrics, r.UI)

	cleanup = func() {
		closeJudge()
		closeStores()
	}
	return t, cleanup, nil
}

// restorePolicy seeds the policy from a checkpoint when one was asked
// for, either by id or as the latest of a resumed run.
func (r *Runner) restorePolicy(pol policy.Policy) error {
	var blob []byte
	var err error

	switch {
	case r.Checkpoint != "":
		_, blob, err = r.Storage.GetCheckpoint(r.Checkpoint)
		if err != nil {
			return fmt.Errorf("failed to load checkpoint %s: %w", r.Checkpoint, err)
		}
	case r.Resume != "":
		_, blob, err = r.Storage.LatestCheckpoint(r.Resume)
		if err != nil {
			return fmt.Errorf("failed to load latest checkpoint of %s: %w", r.Resume, err)
		}
	default:
		return nil
	}
	if err := pol.Restore(blob); err != nil {
		return fmt.Errorf("failed to restore policy: %w", err)
	}
	r.Observer.Log().Info().Str("policy", pol.Name()).Msg("restored policy from checkpoint")
	return nil
}

// openCollections picks the record store backend for episode views.
func (r *Runner) openCollections() (trainer.StoreProvider, func(), error) {
	switch r.Config.Store.Backend {
	case "memory":
		return trainer.EphemeralStores(), func() {}, nil
	case "sqlite":
		return trainer.PartitionedStores(r.Storage), func() {}, nil
	case "chromem":
		ch, err := store.NewChromemStore(filepath.Join(mnemonDir(), "chromem"))
		if err != nil {
			return nil, nil, err
		}
		return trainer.PartitionedStores(ch), func() { _ = ch.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", r.Config.Store.Backend)
	}
}

// buildJudge selects the grader. The plugin path launches an external
// process that must be reaped by the cleanup function.
func (r *Runner) buildJudge(p provider.Provider) (judge.Judge, func(), error) {
	switch r.JudgeKind {
	case "", "llm":
		return judge.NewLLMJudge(p), func() {}, nil
	case "plugin":
		if r.JudgePlugin == "" {
			return nil, nil, fmt.Errorf("judge plugin path required for --judge plugin")
		}
		host, err := plugin.LoadJudge(r.JudgePlugin)
		if err != nil {
			return nil, nil, err
		}
		return host.Judge(), host.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown judge %q (use llm or plugin)", r.JudgeKind)
	}
}
