package ui

import (
	"fmt"

	"github.com/mnemonlabs/mnemon/internal/trainer"
)

// Bridge subscribes a UI to a trainer's event bus. Events arrive on
// the training goroutine, so UI implementations must hand rendering
// off themselves (the TUI sends into its program, SilentUI drops).
func Bridge(bus *trainer.EventBus, metrics *trainer.Metrics, u UI) {
	b := &bridge{metrics: metrics, ui: u}
	bus.SubscribeAll(b.handle)
}

type bridge struct {
	metrics *trainer.Metrics
	ui      UI

	total   int
	epsilon float64
}

func (b *bridge) handle(ev trainer.Event) {
	switch ev.Type {
	case trainer.EventRunStart:
		dialogues := intField(ev.Data, "dialogues")
		epochs := intField(ev.Data, "epochs")
		if epochs < 1 {
			epochs = 1
		}
		b.total = dialogues * epochs
		mode := "Training"
		if s, _ := ev.Data["mode"].(string); s == "eval" {
			mode = "Evaluating"
		}
		b.ui.UpdateStatus(fmt.Sprintf("%s %s", mode, ev.RunID))

	case trainer.EventEpochStart:
		b.ui.Log(fmt.Sprintf("epoch %d", intField(ev.Data, "epoch")))

	case trainer.EventEpisodeEnd:
		b.ui.UpdateProgress(b.progress(intField(ev.Data, "episode")))

	case trainer.EventDecision:
		action, _ := ev.Data["action"].(string)
		b.ui.Log(fmt.Sprintf("%s reward=%.2f", action, floatField(ev.Data, "reward")))

	case trainer.EventPolicyUpdate:
		b.epsilon = floatField(ev.Data, "epsilon")
		b.ui.Log(fmt.Sprintf("policy update over %d trajectories, epsilon %.4f",
			intField(ev.Data, "trajectories"), b.epsilon))

	case trainer.EventCheckpointSaved:
		b.ui.Log(fmt.Sprintf("checkpoint step %d saved", intField(ev.Data, "step")))

	case trainer.EventAnswerGraded:
		verdict := "wrong"
		if correct, _ := ev.Data["correct"].(bool); correct {
			verdict = "correct"
		}
		dialogue, _ := ev.Data["dialogue"].(string)
		b.ui.Log(fmt.Sprintf("graded %s: %s", dialogue, verdict))

	case trainer.EventGuardViolation:
		rule, _ := ev.Data["rule"].(string)
		b.ui.UpdateStatus(fmt.Sprintf("Halted: %s", rule))

	case trainer.EventRunComplete:
		snap := b.metrics.Snapshot()
		b.ui.UpdateProgress(b.progress(int(snap.Episodes)))
		b.ui.UpdateStatus("Completed")

	case trainer.EventRunError:
		msg, _ := ev.Data["error"].(string)
		b.ui.UpdateStatus(fmt.Sprintf("Failed: %s", msg))
	}
}

func (b *bridge) progress(episode int) Progress {
	snap := b.metrics.Snapshot()
	return Progress{
		Episode:   episode,
		Total:     b.total,
		AvgReward: snap.AvgReward,
		Epsilon:   b.epsilon,
		Accuracy:  snap.Accuracy,
	}
}

// intField reads an int out of event data regardless of how the
// publisher typed it.
func intField(data map[string]interface{}, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func floatField(data map[string]interface{}, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
