// Package trainer runs the decision-training loop. It turns dialogues
// into episodes, batches episode trajectories into policy updates, and
// grades trained policies by answering each dialogue's question from
// the memories the policy chose to keep.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/mnemonlabs/mnemon/internal/corpus"
	"github.com/mnemonlabs/mnemon/internal/executor"
	"github.com/mnemonlabs/mnemon/internal/extract"
	"github.com/mnemonlabs/mnemon/internal/guard"
	"github.com/mnemonlabs/mnemon/internal/judge"
	"github.com/mnemonlabs/mnemon/internal/memory"
	"github.com/mnemonlabs/mnemon/internal/observe"
	"github.com/mnemonlabs/mnemon/internal/policy"
	"github.com/mnemonlabs/mnemon/internal/provider"
	"github.com/mnemonlabs/mnemon/internal/respond"
	"github.com/mnemonlabs/mnemon/internal/reward"
	"github.com/mnemonlabs/mnemon/internal/store"
)

// Config carries the loop hyperparameters. Zero fields fall back to
// DefaultConfig values.
type Config struct {
	// Epochs is the number of passes over the training dialogues.
	Epochs int
	// BatchSize is the number of episodes per policy update.
	BatchSize int
	// TopK bounds retrieval per decision.
	TopK int
	// Seed fixes the epoch shuffle; 0 seeds from the clock.
	Seed       int64
	Thresholds memory.Thresholds
	Backoff    executor.Backoff
}

// DefaultConfig returns the stock loop parameters.
func DefaultConfig() Config {
	return Config{
		Epochs:     10,
		BatchSize:  10,
		TopK:       5,
		Thresholds: memory.DefaultThresholds(),
		Backoff:    executor.DefaultBackoff(),
	}
}

// Options wires the trainer's collaborators. Policy, Rewards,
// Extractor and Stores are required; Generator, Judge and Provider
// only for evaluation. Nil Guard, Bus, Metrics and Observe get
// working defaults.
type Options struct {
	Policy    policy.Policy
	Rewards   *reward.Model
	Extractor extract.Extractor
	Annotator memory.Annotator
	Generator respond.Generator
	Judge     judge.Judge
	Provider  provider.Provider
	Stores    StoreProvider
	Storage   store.Storage
	Guard     *guard.Guard
	Observe   *observe.Observer
	Bus       *EventBus
	Metrics   *Metrics
	Config    Config
}

// Trainer owns one policy and drives its training and evaluation.
type Trainer struct {
	policy    policy.Policy
	rewards   *reward.Model
	extractor extract.Extractor
	annotator memory.Annotator
	generator respond.Generator
	judge     judge.Judge
	provider  provider.Provider
	stores    StoreProvider
	storage   store.Storage
	guard     *guard.Guard
	observe   *observe.Observer
	bus       *EventBus
	metrics   *Metrics
	cfg       Config

	rng      *rand.Rand
	failures atomic.Int64
}

// New builds a trainer from options, filling defaults for optional
// collaborators.
func New(opts Options) (*Trainer, error) {
	switch {
	case opts.Policy == nil:
		return nil, errors.New("trainer: policy required")
	case opts.Rewards == nil:
		return nil, errors.New("trainer: reward model required")
	case opts.Extractor == nil:
		return nil, errors.New("trainer: extractor required")
	case opts.Stores == nil:
		return nil, errors.New("trainer: store provider required")
	}

	cfg := opts.Config
	def := DefaultConfig()
	if cfg.Epochs <= 0 {
		cfg.Epochs = def.Epochs
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.Thresholds == (memory.Thresholds{}) {
		cfg.Thresholds = def.Thresholds
	}
	if cfg.Backoff == (executor.Backoff{}) {
		cfg.Backoff = def.Backoff
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	t := &Trainer{
		policy:    opts.Policy,
		rewards:   opts.Rewards,
		extractor: opts.Extractor,
		annotator: opts.Annotator,
		generator: opts.Generator,
		judge:     opts.Judge,
		provider:  opts.Provider,
		stores:    opts.Stores,
		storage:   opts.Storage,
		guard:     opts.Guard,
		observe:   opts.Observe,
		bus:       opts.Bus,
		metrics:   opts.Metrics,
		cfg:       cfg,
		rng:       rand.New(rand.NewSource(seed)),
	}
	if t.guard == nil {
		t.guard = guard.New(guard.DefaultBudget)
	}
	if t.observe == nil {
		t.observe = observe.New(io.Discard, false)
	}
	if t.bus == nil {
		t.bus = NewEventBus()
	}
	if t.metrics == nil {
		t.metrics = NewMetrics()
	}
	return t, nil
}

// Metrics returns the shared counters.
func (t *Trainer) Metrics() *Metrics {
	return t.metrics
}

// Bus returns the event bus consumers subscribe to.
func (t *Trainer) Bus() *EventBus {
	return t.bus
}

// Storage returns the attached storage backend, nil when running
// in-memory only.
func (t *Trainer) Storage() store.Storage {
	return t.storage
}

// Policy returns the policy being trained.
func (t *Trainer) Policy() policy.Policy {
	return t.policy
}

// PinExploration forces greedy decisions and returns a restore
// function. Evaluation wraps itself in it so exploration never leaks
// into grading.
func (t *Trainer) PinExploration() func() {
	eps := t.policy.Epsilon()
	t.policy.SetEpsilon(0)
	return func() { t.policy.SetEpsilon(eps) }
}

// Report summarizes a finished run.
type Report struct {
	RunID   string  `json:"run_id"`
	Epsilon float64 `json:"epsilon"`
	MetricsSnapshot
	Verdicts []Verdict `json:"verdicts,omitempty"`
}

// BuildReport assembles a report from the current counters.
func (t *Trainer) BuildReport(runID string) *Report {
	return &Report{
		RunID:           runID,
		Epsilon:         t.policy.Epsilon(),
		MetricsSnapshot: t.metrics.Snapshot(),
	}
}

// Train runs the full loop over the dialogues: per epoch a shuffled
// pass, per dialogue one episode against a fresh store view, per
// batch of episodes one policy update followed by exploration decay
// and a checkpoint.
func (t *Trainer) Train(ctx context.Context, dialogues []corpus.Dialogue) (*Report, error) {
	ctx, span := t.observe.StartSpan(ctx, "Train")
	defer span.End()

	if len(dialogues) == 0 {
		return nil, errors.New("trainer: no dialogues to train on")
	}

	state, err := NewRunState(t.storage, map[string]string{
		"mode":   "train",
		"policy": t.policy.Name(),
	})
	if err != nil {
		return nil, err
	}
	if err := state.Start(); err != nil {
		return nil, err
	}
	t.bus.PublishWithData(EventRunStart, state.ID(), map[string]interface{}{
		"mode":      "train",
		"epochs":    t.cfg.Epochs,
		"dialogues": len(dialogues),
	})
	t.observe.Log().Info().
		Str("run", state.ID()).
		Int("dialogues", len(dialogues)).
		Int("epochs", t.cfg.Epochs).
		Str("policy", t.policy.Name()).
		Msg("starting training")

	order := make([]int, len(dialogues))
	for i := range order {
		order[i] = i
	}

	episodes := 0
	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		epochLog := t.observe.Log().With().Int("epoch", epoch).Logger()
		t.bus.PublishWithData(EventEpochStart, state.ID(), map[string]interface{}{"epoch": epoch})
		t.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		for start := 0; start < len(order); start += t.cfg.BatchSize {
			end := start + t.cfg.BatchSize
			if end > len(order) {
				end = len(order)
			}

			var batch []policy.Trajectory
			for _, di := range order[start:end] {
				d := dialogues[di]
				episodes++

				if v := t.preflight(episodes, len(d.Turns())); v != nil {
					return t.halt(state, v)
				}

				key := fmt.Sprintf("%s-e%d-d%d", state.ID(), epoch, di)
				epStore, err := t.stores(ctx, key)
				if err != nil {
					return t.fail(state, fmt.Errorf("failed to open episode store: %w", err))
				}
				traj, err := t.runEpisode(ctx, state.ID(), episodes, epStore, d)
				if err != nil {
					return t.fail(state, err)
				}
				t.metrics.RecordEpisode()
				if len(traj) > 0 {
					batch = append(batch, traj)
				}

				records, err := epStore.Count(ctx)
				if err != nil {
					records = 0
				}
				t.bus.PublishWithData(EventEpisodeEnd, state.ID(), map[string]interface{}{
					"episode": episodes,
					"steps":   len(traj),
					"records": records,
				})
				if v := t.guard.CheckStoreSize(records); v != nil {
					return t.halt(state, v)
				}
				if v := t.guard.CheckFailures(int(t.failures.Load())); v != nil {
					return t.halt(state, v)
				}
			}

			if err := t.updatePolicy(state, batch); err != nil {
				return t.fail(state, err)
			}
		}
		epochLog.Info().
			Str("epsilon", fmt.Sprintf("%.4f", t.policy.Epsilon())).
			Int("episodes", episodes).
			Msg("epoch complete")
	}

	if err := state.Complete(); err != nil {
		return nil, err
	}
	report := t.BuildReport(state.ID())
	t.bus.PublishWithData(EventRunComplete, state.ID(), map[string]interface{}{
		"episodes":   report.Episodes,
		"avg_reward": report.AvgReward,
	})
	t.observe.Log().Info().
		Str("run", state.ID()).
		Int("steps", int(report.Steps)).
		Str("avg_reward", fmt.Sprintf("%.3f", report.AvgReward)).
		Msg("training complete")
	return report, nil
}

// runEpisode replays one dialogue against the given store view and
// returns the trajectory of executed decisions.
func (t *Trainer) runEpisode(ctx context.Context, runID string, episode int, epStore memory.Store, d corpus.Dialogue) (policy.Trajectory, error) {
	ctx, span := t.observe.StartSpan(ctx, "Episode")
	defer span.End()

	t.bus.PublishWithData(EventEpisodeStart, runID, map[string]interface{}{"episode": episode})
	epLog := t.observe.Log().With().Int("episode", episode).Logger()
	exec := executor.New(epStore, t.cfg.Backoff, t.observe)

	var traj policy.Trajectory
	for _, turn := range d.Turns() {
		if err := ctx.Err(); err != nil {
			return traj, err
		}
		t.metrics.RecordTurn()
		tctx := memory.WithTimestamp(ctx, turn.When)

		fact, err := t.extractor.Extract(tctx, turn.Text)
		if err != nil {
			t.failures.Add(1)
			t.metrics.RecordSkippedTurn()
			epLog.Warn().Err(err).Msg("extraction failed, skipping turn")
			continue
		}
		if fact == nil {
			t.metrics.RecordSkippedTurn()
			continue
		}

		retrieved, err := epStore.Search(tctx, fact.Embedding, t.cfg.TopK)
		if err != nil {
			t.failures.Add(1)
			t.metrics.RecordSkippedTurn()
			epLog.Warn().Err(err).Msg("retrieval failed, skipping turn")
			continue
		}
		retrieved = dedupeByID(retrieved)

		st := memory.NewState(tctx, *fact, retrieved, t.cfg.Thresholds, t.annotator)
		action, logProb, err := t.policy.Decide(st)
		if err != nil {
			return traj, fmt.Errorf("policy decision failed: %w", err)
		}

		if err := executor.ValidateAction(action, retrieved); err != nil {
			epLog.Warn().Str("action", action.String()).Err(err).Msg("invalid target, forcing NONE")
			t.metrics.RecordForcedNone()
			action = policy.None()
			logProb = 0
		}

		outcome, err := exec.Apply(tctx, action, *fact, retrieved)
		if err != nil {
			t.failures.Add(1)
			t.metrics.RecordDroppedStep()
			epLog.Warn().Str("action", action.String()).Err(err).Msg("action failed, dropping step")
			continue
		}
		t.failures.Store(0)

		r := t.rewards.Score(action, st)
		traj = append(traj, policy.Step{
			State:   st,
			Action:  action,
			Reward:  r,
			LogProb: logProb,
		})
		t.metrics.RecordStep(action.Kind(), r)
		t.bus.PublishWithData(EventDecision, runID, map[string]interface{}{
			"action": action.Kind().String(),
			"reward": r,
			"record": outcome.ID,
		})
	}
	return traj, nil
}

// updatePolicy feeds one batch to the policy. A rejected batch is
// logged and dropped; parameters, exploration and checkpoints all
// stay as they were.
func (t *Trainer) updatePolicy(state *RunState, batch []policy.Trajectory) error {
	if len(batch) == 0 {
		return nil
	}
	if err := t.policy.Update(batch); err != nil {
		if errors.Is(err, policy.ErrUpdateFailed) {
			t.metrics.RecordSkippedUpdate()
			t.observe.Log().Warn().Err(err).Msg("policy update rejected, keeping parameters")
			return nil
		}
		return err
	}
	t.metrics.RecordPolicyUpdate()
	t.policy.DecayEpsilon()

	steps := 0
	for _, tr := range batch {
		steps += len(tr)
	}
	t.bus.PublishWithData(EventPolicyUpdate, state.ID(), map[string]interface{}{
		"trajectories": len(batch),
		"steps":        steps,
		"epsilon":      t.policy.Epsilon(),
	})
	return t.saveCheckpoint(state)
}

// saveCheckpoint persists the policy after a committed update. With no
// storage attached it is a no-op.
func (t *Trainer) saveCheckpoint(state *RunState) error {
	if t.storage == nil {
		return nil
	}
	blob, err := t.policy.Checkpoint()
	if err != nil {
		return fmt.Errorf("failed to serialize policy: %w", err)
	}
	step := int(t.metrics.Snapshot().PolicyUpdates)
	ckpt := &store.Checkpoint{
		ID:   fmt.Sprintf("%s-step-%06d", state.ID(), step),
		Run:  state.ID(),
		Step: step,
		Path: filepath.Join(state.ID(), fmt.Sprintf("step-%06d.json", step)),
	}
	if err := t.storage.SaveCheckpoint(ckpt, blob); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	t.metrics.RecordCheckpoint()
	t.bus.PublishWithData(EventCheckpointSaved, state.ID(), map[string]interface{}{
		"step": step,
		"path": ckpt.Path,
	})
	return nil
}

// Verdict is the graded outcome of one evaluation dialogue.
type Verdict struct {
	Dialogue string `json:"dialogue"`
	Question string `json:"question"`
	Golden   string `json:"golden"`
	Answer   string `json:"answer"`
	Correct  bool   `json:"correct"`
	Steps    int    `json:"steps"`
	Records  int    `json:"records"`
}

// Evaluate replays each dialogue greedily, answers its question from
// the resulting store, and grades the answer. Exploration is pinned
// to zero for the duration and restored afterwards.
func (t *Trainer) Evaluate(ctx context.Context, dialogues []corpus.Dialogue) (*Report, error) {
	ctx, span := t.observe.StartSpan(ctx, "Evaluate")
	defer span.End()

	if err := t.evaluable(); err != nil {
		return nil, err
	}
	if len(dialogues) == 0 {
		return nil, errors.New("trainer: no dialogues to evaluate")
	}

	restore := t.PinExploration()
	defer restore()

	state, err := NewRunState(t.storage, map[string]string{
		"mode":   "eval",
		"policy": t.policy.Name(),
	})
	if err != nil {
		return nil, err
	}
	if err := state.Start(); err != nil {
		return nil, err
	}
	t.bus.PublishWithData(EventRunStart, state.ID(), map[string]interface{}{
		"mode":      "eval",
		"dialogues": len(dialogues),
	})

	verdicts := make([]Verdict, 0, len(dialogues))
	for i, d := range dialogues {
		if v := t.preflight(i+1, len(d.Turns())); v != nil {
			return t.halt(state, v)
		}
		verdict, err := t.EvaluateDialogue(ctx, state.ID(), i, d)
		if err != nil {
			return t.fail(state, err)
		}
		verdicts = append(verdicts, verdict)
		if v := t.guard.CheckStoreSize(verdict.Records); v != nil {
			return t.halt(state, v)
		}
		if v := t.guard.CheckFailures(int(t.failures.Load())); v != nil {
			return t.halt(state, v)
		}
	}

	if err := state.Complete(); err != nil {
		return nil, err
	}
	report := t.BuildReport(state.ID())
	report.Verdicts = verdicts
	t.bus.PublishWithData(EventRunComplete, state.ID(), map[string]interface{}{
		"graded":   report.Graded,
		"accuracy": report.Accuracy,
	})
	t.observe.Log().Info().
		Str("run", state.ID()).
		Int("graded", int(report.Graded)).
		Str("accuracy", fmt.Sprintf("%.3f", report.Accuracy)).
		Msg("evaluation complete")
	return report, nil
}

// EvaluateDialogue ingests one dialogue into its own store view and
// grades the answer to its question. Grading failures count as wrong
// rather than aborting the run. Callers pin exploration themselves;
// the method is safe to fan out across goroutines.
func (t *Trainer) EvaluateDialogue(ctx context.Context, runID string, index int, d corpus.Dialogue) (Verdict, error) {
	if err := t.evaluable(); err != nil {
		return Verdict{}, err
	}

	key := fmt.Sprintf("%s-d%d", runID, index)
	epStore, err := t.stores(ctx, key)
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to open episode store: %w", err)
	}
	traj, err := t.runEpisode(ctx, runID, index+1, epStore, d)
	if err != nil {
		return Verdict{}, err
	}
	t.metrics.RecordEpisode()

	records, err := epStore.Count(ctx)
	if err != nil {
		records = 0
	}
	verdict := Verdict{
		Dialogue: d.ID,
		Question: d.Question,
		Golden:   d.Answer,
		Steps:    len(traj),
		Records:  records,
	}
	if verdict.Dialogue == "" {
		verdict.Dialogue = fmt.Sprintf("d%d", index)
	}

	verdict.Answer, verdict.Correct = t.answer(ctx, epStore, d)
	t.metrics.RecordVerdict(verdict.Correct)
	t.bus.PublishWithData(EventAnswerGraded, runID, map[string]interface{}{
		"dialogue": verdict.Dialogue,
		"correct":  verdict.Correct,
	})
	return verdict, nil
}

// answer retrieves against the question, generates, and grades. Every
// failure on the way degrades to a wrong answer with a warning.
func (t *Trainer) answer(ctx context.Context, epStore memory.Store, d corpus.Dialogue) (string, bool) {
	var retrieved []memory.Retrieved
	vec, err := t.provider.Embed(ctx, d.Question)
	if err != nil {
		t.observe.Log().Warn().Err(err).Msg("failed to embed question")
	} else {
		retrieved, err = epStore.Search(ctx, vec, t.cfg.TopK)
		if err != nil {
			t.observe.Log().Warn().Err(err).Msg("failed to retrieve for question")
		}
	}

	answer, err := t.generator.Generate(ctx, d.Question, d.AskedAt(), retrieved)
	if err != nil {
		t.observe.Log().Warn().Err(err).Msg("answer generation failed, counting wrong")
		return "", false
	}
	correct, err := t.judge.Grade(ctx, d.Question, d.Answer, answer)
	if err != nil {
		t.observe.Log().Warn().Err(err).Msg("grading failed, counting wrong")
		return answer, false
	}
	return answer, correct
}

func (t *Trainer) evaluable() error {
	switch {
	case t.generator == nil:
		return errors.New("trainer: evaluation needs a generator")
	case t.judge == nil:
		return errors.New("trainer: evaluation needs a judge")
	case t.provider == nil:
		return errors.New("trainer: evaluation needs a provider for question embeddings")
	}
	return nil
}

// preflight runs the guard checks that precede an episode.
func (t *Trainer) preflight(episodes, turns int) *guard.Violation {
	if v := t.guard.CheckEpisodes(episodes); v != nil {
		return v
	}
	if v := t.guard.CheckTurns(turns); v != nil {
		return v
	}
	return t.guard.CheckTokens(int(t.metrics.TotalTokens()))
}

// halt stops the run on a guard violation.
func (t *Trainer) halt(state *RunState, v *guard.Violation) (*Report, error) {
	t.observe.Log().Warn().Str("violation", v.Rule).Msg("guard violation, halting run")
	_ = state.Halt(v.Message)
	t.bus.PublishWithData(EventGuardViolation, state.ID(), map[string]interface{}{
		"rule":    v.Rule,
		"message": v.Message,
	})
	return t.BuildReport(state.ID()), fmt.Errorf("guard violation: %s", v.Message)
}

// fail stops the run on an unrecoverable error.
func (t *Trainer) fail(state *RunState, err error) (*Report, error) {
	t.observe.Log().Error().Str("run", state.ID()).Err(err).Msg("run failed")
	_ = state.Halt(err.Error())
	t.bus.PublishWithData(EventRunError, state.ID(), map[string]interface{}{
		"error": err.Error(),
	})
	return t.BuildReport(state.ID()), err
}

// dedupeByID drops repeated record ids, keeping the first and thus
// highest-scored occurrence.
func dedupeByID(retrieved []memory.Retrieved) []memory.Retrieved {
	if len(retrieved) < 2 {
		return retrieved
	}
	seen := make(map[string]struct{}, len(retrieved))
	out := retrieved[:0]
	for _, r := range retrieved {
		if _, ok := seen[r.Record.ID]; ok {
			continue
		}
		seen[r.Record.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}
