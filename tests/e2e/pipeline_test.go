package e2e

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mnemonlabs/mnemon/internal/corpus"
	"github.com/mnemonlabs/mnemon/internal/extract"
	"github.com/mnemonlabs/mnemon/internal/judge"
	"github.com/mnemonlabs/mnemon/internal/memory"
	"github.com/mnemonlabs/mnemon/internal/observe"
	"github.com/mnemonlabs/mnemon/internal/policy"
	"github.com/mnemonlabs/mnemon/internal/provider"
	"github.com/mnemonlabs/mnemon/internal/respond"
	"github.com/mnemonlabs/mnemon/internal/reward"
	"github.com/mnemonlabs/mnemon/internal/store"
	"github.com/mnemonlabs/mnemon/internal/trainer"
)

// scriptedModel simulates a capable model end to end: it answers the
// extraction, response and grading prompts the way a real model would,
// and embeds through the stub's bag-of-words vectors.
type scriptedModel struct {
	embedder *provider.StubProvider
}

func newScriptedModel() *scriptedModel {
	return &scriptedModel{embedder: provider.NewStubProvider()}
}

func (s *scriptedModel) Name() string { return "scripted" }

func (s *scriptedModel) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.embedder.Embed(ctx, text)
}

func (s *scriptedModel) Chat(_ context.Context, messages []provider.Message) (*provider.Response, error) {
	system := messages[0].Content
	user := messages[len(messages)-1].Content
	usage := provider.Usage{PromptTokens: 20, CompletionTokens: 10, TotalTokens: 30}

	switch {
	// Fact extraction: treat the whole turn as one fact.
	case strings.Contains(system, "extract long-term personal facts"):
		b, _ := json.Marshal(map[string][]string{"facts": {user}})
		return &provider.Response{Content: string(b), Usage: usage}, nil

	// Answer generation: hand back the memory texts verbatim.
	case strings.Contains(system, "stored memories"):
		var facts []string
		for _, line := range strings.Split(user, "\n") {
			if !strings.HasPrefix(line, "- ") {
				continue
			}
			if _, text, ok := strings.Cut(line[2:], ": "); ok {
				facts = append(facts, text)
			}
		}
		if len(facts) == 0 {
			return &provider.Response{Content: "I do not know.", Usage: usage}, nil
		}
		return &provider.Response{Content: strings.Join(facts, "; "), Usage: usage}, nil

	// Grading: correct when the candidate mentions the gold answer.
	case strings.Contains(system, "expert grader"):
		gold, candidate := "", ""
		for _, line := range strings.Split(user, "\n") {
			if v, ok := strings.CutPrefix(line, "Gold answer: "); ok {
				gold = v
			}
			if v, ok := strings.CutPrefix(line, "Candidate answer: "); ok {
				candidate = v
			}
		}
		label := "WRONG"
		if gold != "" && strings.Contains(strings.ToLower(candidate), strings.ToLower(gold)) {
			label = "CORRECT"
		}
		return &provider.Response{Content: `{"label": "` + label + `"}`, Usage: usage}, nil
	}

	return &provider.Response{Content: "OK", Usage: usage}, nil
}

func newPipelineTrainer(t *testing.T, model *scriptedModel) (*trainer.Trainer, *store.SQLiteStore) {
	t.Helper()

	tmpDir := t.TempDir()
	storage, err := store.NewSQLiteStore(
		filepath.Join(tmpDir, "metadata.db"),
		filepath.Join(tmpDir, "checkpoints"),
	)
	if err != nil {
		t.Fatalf("failed to open storage: %v", err)
	}
	t.Cleanup(func() { storage.Close() })

	thresholds := memory.DefaultThresholds()
	cfg := policy.DefaultConfig()
	cfg.Seed = 42

	tr, err := trainer.New(trainer.Options{
		Policy:    policy.NewSoftmax(cfg),
		Rewards:   reward.NewModel(reward.DefaultConfig()),
		Extractor: extract.NewLLMExtractor(model),
		Annotator: memory.NewThresholdAnnotator(thresholds),
		Generator: respond.NewLLMGenerator(model),
		Judge:     judge.NewLLMJudge(model),
		Provider:  model,
		Stores:    trainer.EphemeralStores(),
		Storage:   storage,
		Observe:   observe.New(io.Discard, false),
		Config: trainer.Config{
			Epochs:    4,
			BatchSize: 2,
			TopK:      5,
			Seed:      42,
		},
	})
	if err != nil {
		t.Fatalf("failed to build trainer: %v", err)
	}
	return tr, storage
}

func TestPipeline_TrainThenEvaluate(t *testing.T) {
	model := newScriptedModel()
	tr, storage := newPipelineTrainer(t, model)
	dialogues := corpus.Sample()

	report, err := tr.Train(context.Background(), dialogues)
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	if report.Episodes != int64(4*len(dialogues)) {
		t.Errorf("episodes = %d, want %d", report.Episodes, 4*len(dialogues))
	}
	if report.Steps == 0 {
		t.Error("expected executed decision steps")
	}
	if math.IsNaN(report.AvgReward) || math.IsInf(report.AvgReward, 0) {
		t.Errorf("avg reward is not finite: %v", report.AvgReward)
	}

	// Exploration decays once per episode batch.
	eps0 := policy.DefaultConfig().Epsilon
	if report.Epsilon >= eps0 {
		t.Errorf("epsilon %v did not decay from %v", report.Epsilon, eps0)
	}

	// The trained policy checkpoints after each committed update.
	run, err := storage.GetRun(report.RunID)
	if err != nil {
		t.Fatalf("run row missing: %v", err)
	}
	if run.Status != store.StatusCompleted {
		t.Errorf("run status = %q, want completed", run.Status)
	}
	ckpt, blob, err := storage.LatestCheckpoint(report.RunID)
	if err != nil {
		t.Fatalf("expected a checkpoint: %v", err)
	}
	if ckpt.Digest == "" || len(blob) == 0 {
		t.Error("checkpoint missing digest or blob")
	}

	evalReport, err := tr.Evaluate(context.Background(), dialogues)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if evalReport.Graded != int64(len(dialogues)) {
		t.Errorf("graded = %d, want %d", evalReport.Graded, len(dialogues))
	}
	if len(evalReport.Verdicts) != len(dialogues) {
		t.Fatalf("verdicts = %d, want %d", len(evalReport.Verdicts), len(dialogues))
	}
	for _, v := range evalReport.Verdicts {
		if v.Question == "" || v.Golden == "" {
			t.Errorf("verdict %s missing question or gold answer", v.Dialogue)
		}
	}

	// Exploration must be restored after evaluation.
	if got := tr.Policy().Epsilon(); got != report.Epsilon {
		t.Errorf("epsilon after eval = %v, want %v restored", got, report.Epsilon)
	}
}

func TestPipeline_CheckpointRoundTrip(t *testing.T) {
	model := newScriptedModel()
	tr, storage := newPipelineTrainer(t, model)

	report, err := tr.Train(context.Background(), corpus.Sample())
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	_, blob, err := storage.LatestCheckpoint(report.RunID)
	if err != nil {
		t.Fatalf("expected a checkpoint: %v", err)
	}

	restored := policy.NewSoftmax(policy.DefaultConfig())
	if err := restored.Restore(blob); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if restored.Epsilon() != tr.Policy().Epsilon() {
		t.Errorf("restored epsilon = %v, want %v", restored.Epsilon(), tr.Policy().Epsilon())
	}

	again, err := restored.Checkpoint()
	if err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}
	if string(again) != string(blob) {
		t.Error("checkpoint did not round-trip byte-identically")
	}
}
