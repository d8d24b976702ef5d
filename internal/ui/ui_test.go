package ui

import (
	"testing"

	"github.com/mnemonlabs/mnemon/internal/policy"
	"github.com/mnemonlabs/mnemon/internal/trainer"
)

func TestSilentUI_DoesNothing(t *testing.T) {
	u := SilentUI{}
	// Should not panic
	u.UpdateStatus("test status")
	u.UpdateProgress(Progress{Episode: 1, Total: 10})
	u.Log("test message")
	u.Log("")
}

func TestSilentUI_ImplementsInterface(t *testing.T) {
	var _ UI = SilentUI{}
	var _ UI = &SilentUI{}
}

// MockUI records everything the bridge forwards.
type MockUI struct {
	StatusUpdates   []string
	ProgressUpdates []Progress
	LogMessages     []string
}

func (m *MockUI) UpdateStatus(status string) {
	m.StatusUpdates = append(m.StatusUpdates, status)
}

func (m *MockUI) UpdateProgress(p Progress) {
	m.ProgressUpdates = append(m.ProgressUpdates, p)
}

func (m *MockUI) Log(msg string) {
	m.LogMessages = append(m.LogMessages, msg)
}

func TestMockUI_ImplementsInterface(t *testing.T) {
	var _ UI = &MockUI{}
}

func TestBridge_RunLifecycle(t *testing.T) {
	bus := trainer.NewEventBus()
	metrics := trainer.NewMetrics()
	mock := &MockUI{}
	Bridge(bus, metrics, mock)

	bus.PublishWithData(trainer.EventRunStart, "run-1", map[string]interface{}{
		"mode":      "train",
		"epochs":    2,
		"dialogues": 3,
	})
	if len(mock.StatusUpdates) != 1 {
		t.Fatalf("expected 1 status update after run start, got %d", len(mock.StatusUpdates))
	}
	if mock.StatusUpdates[0] != "Training run-1" {
		t.Errorf("unexpected status %q", mock.StatusUpdates[0])
	}

	metrics.RecordStep(policy.KindAdd, 1.5)
	bus.PublishWithData(trainer.EventEpisodeEnd, "run-1", map[string]interface{}{
		"episode": 1,
		"steps":   1,
		"records": 1,
	})
	if len(mock.ProgressUpdates) != 1 {
		t.Fatalf("expected 1 progress update, got %d", len(mock.ProgressUpdates))
	}
	p := mock.ProgressUpdates[0]
	if p.Episode != 1 || p.Total != 6 {
		t.Errorf("progress = %d/%d, want 1/6", p.Episode, p.Total)
	}
	if p.AvgReward != 1.5 {
		t.Errorf("avg reward = %v, want 1.5", p.AvgReward)
	}

	bus.PublishWithData(trainer.EventPolicyUpdate, "run-1", map[string]interface{}{
		"trajectories": 3,
		"steps":        7,
		"epsilon":      0.19,
	})
	bus.PublishWithData(trainer.EventEpisodeEnd, "run-1", map[string]interface{}{"episode": 2})
	if got := mock.ProgressUpdates[len(mock.ProgressUpdates)-1].Epsilon; got != 0.19 {
		t.Errorf("epsilon = %v, want 0.19", got)
	}

	bus.PublishWithData(trainer.EventRunComplete, "run-1", map[string]interface{}{})
	if got := mock.StatusUpdates[len(mock.StatusUpdates)-1]; got != "Completed" {
		t.Errorf("final status = %q, want Completed", got)
	}
}

func TestBridge_EvalAndViolation(t *testing.T) {
	bus := trainer.NewEventBus()
	metrics := trainer.NewMetrics()
	mock := &MockUI{}
	Bridge(bus, metrics, mock)

	bus.PublishWithData(trainer.EventRunStart, "run-2", map[string]interface{}{
		"mode":      "eval",
		"dialogues": 4,
	})
	if mock.StatusUpdates[0] != "Evaluating run-2" {
		t.Errorf("unexpected status %q", mock.StatusUpdates[0])
	}

	bus.PublishWithData(trainer.EventAnswerGraded, "run-2", map[string]interface{}{
		"dialogue": "sample-coffee",
		"correct":  true,
	})
	if len(mock.LogMessages) == 0 {
		t.Fatal("expected a log line for the graded answer")
	}
	if mock.LogMessages[0] != "graded sample-coffee: correct" {
		t.Errorf("unexpected log %q", mock.LogMessages[0])
	}

	bus.PublishWithData(trainer.EventGuardViolation, "run-2", map[string]interface{}{
		"rule":    "max_episodes",
		"message": "episode limit exceeded: 11",
	})
	if got := mock.StatusUpdates[len(mock.StatusUpdates)-1]; got != "Halted: max_episodes" {
		t.Errorf("violation status = %q", got)
	}
}
