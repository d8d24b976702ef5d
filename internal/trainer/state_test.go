package trainer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mnemonlabs/mnemon/internal/store"
)

func TestRunState_InMemory(t *testing.T) {
	state, err := NewRunState(nil, map[string]string{"mode": "train"})
	if err != nil {
		t.Fatalf("NewRunState: %v", err)
	}

	if !strings.HasPrefix(state.ID(), "run-") {
		t.Errorf("expected run id prefix 'run-', got %q", state.ID())
	}
	if state.Status() != store.StatusInitialized {
		t.Errorf("expected status initialized, got %q", state.Status())
	}

	if err := state.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if state.Status() != store.StatusRunning {
		t.Errorf("expected status running, got %q", state.Status())
	}

	if err := state.Complete(); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if state.Status() != store.StatusCompleted {
		t.Errorf("expected status completed, got %q", state.Status())
	}
}

func TestRunState_HaltRecordsReason(t *testing.T) {
	state, err := NewRunState(nil, nil)
	if err != nil {
		t.Fatalf("NewRunState: %v", err)
	}

	if err := state.Halt("max_episodes reached"); err != nil {
		t.Fatalf("Halt: %v", err)
	}

	run := state.Run()
	if run.Status != store.StatusHalted {
		t.Errorf("expected status halted, got %q", run.Status)
	}
	if run.Metadata["halt_reason"] != "max_episodes reached" {
		t.Errorf("expected halt reason recorded, got %q", run.Metadata["halt_reason"])
	}
}

func TestRunState_Persisted(t *testing.T) {
	dir, err := os.MkdirTemp("", "trainer-state-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	storage, err := store.NewSQLiteStore(filepath.Join(dir, "test.db"), filepath.Join(dir, "ckpt"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer storage.Close()

	state, err := NewRunState(storage, map[string]string{"mode": "eval"})
	if err != nil {
		t.Fatalf("NewRunState: %v", err)
	}
	if err := state.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	persisted, err := storage.GetRun(state.ID())
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if persisted.Status != store.StatusRunning {
		t.Errorf("expected persisted status running, got %q", persisted.Status)
	}
	if persisted.Metadata["mode"] != "eval" {
		t.Errorf("expected mode metadata persisted, got %v", persisted.Metadata)
	}

	resumed, err := ResumeRunState(storage, state.ID())
	if err != nil {
		t.Fatalf("ResumeRunState: %v", err)
	}
	if resumed.ID() != state.ID() {
		t.Errorf("expected resumed id %q, got %q", state.ID(), resumed.ID())
	}
	if err := resumed.Complete(); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	persisted, err = storage.GetRun(state.ID())
	if err != nil {
		t.Fatalf("GetRun after complete: %v", err)
	}
	if persisted.Status != store.StatusCompleted {
		t.Errorf("expected persisted status completed, got %q", persisted.Status)
	}
}

func TestRunState_ResumeUnknown(t *testing.T) {
	dir, err := os.MkdirTemp("", "trainer-state-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	storage, err := store.NewSQLiteStore(filepath.Join(dir, "test.db"), filepath.Join(dir, "ckpt"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer storage.Close()

	if _, err := ResumeRunState(storage, "run-nope"); err == nil {
		t.Fatal("expected error resuming unknown run")
	}
}

func TestRunState_SetMetadata(t *testing.T) {
	state, err := NewRunState(nil, nil)
	if err != nil {
		t.Fatalf("NewRunState: %v", err)
	}
	if err := state.SetMetadata("checkpoint", "run-x/step-000003.json"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if got := state.Run().Metadata["checkpoint"]; got != "run-x/step-000003.json" {
		t.Errorf("expected metadata set, got %q", got)
	}
}
