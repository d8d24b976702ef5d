package trainer

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mnemonlabs/mnemon/internal/store"
)

// RunState tracks one train or eval invocation and mirrors its status
// transitions into storage when a backend is attached. With a nil
// storage the run lives in memory only, which is what tests and
// throwaway experiments want.
type RunState struct {
	mu      sync.RWMutex
	storage store.Storage
	run     *store.Run
}

// NewRunState creates a fresh run in status initialized.
func NewRunState(storage store.Storage, metadata map[string]string) (*RunState, error) {
	run := &store.Run{
		ID:        fmt.Sprintf("run-%s", uuid.NewString()[:8]),
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
		Status:    store.StatusInitialized,
		Metadata:  metadata,
	}
	if run.Metadata == nil {
		run.Metadata = make(map[string]string)
	}
	if storage != nil {
		if err := storage.CreateRun(run); err != nil {
			return nil, fmt.Errorf("failed to create run: %w", err)
		}
	}
	return &RunState{storage: storage, run: run}, nil
}

// ResumeRunState attaches to an existing run row.
func ResumeRunState(storage store.Storage, runID string) (*RunState, error) {
	run, err := storage.GetRun(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return &RunState{storage: storage, run: run}, nil
}

// ID returns the run identifier.
func (s *RunState) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run.ID
}

// Run returns a copy of the current run row.
func (s *RunState) Run() store.Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run := *s.run
	run.Metadata = make(map[string]string, len(s.run.Metadata))
	for k, v := range s.run.Metadata {
		run.Metadata[k] = v
	}
	return run
}

// Status returns the current run status.
func (s *RunState) Status() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run.Status
}

// Start marks the run as running.
func (s *RunState) Start() error {
	return s.transition(store.StatusRunning, "")
}

// Complete marks the run as completed.
func (s *RunState) Complete() error {
	return s.transition(store.StatusCompleted, "")
}

// Halt marks the run as halted and records the reason.
func (s *RunState) Halt(reason string) error {
	return s.transition(store.StatusHalted, reason)
}

// SetMetadata stores a key on the run row and persists it.
func (s *RunState) SetMetadata(key, value string) error {
	s.mu.Lock()
	s.run.Metadata[key] = value
	s.run.UpdatedAt = time.Now().UTC()
	s.mu.Unlock()
	return s.persist()
}

func (s *RunState) transition(status, reason string) error {
	s.mu.Lock()
	s.run.Status = status
	s.run.UpdatedAt = time.Now().UTC()
	if reason != "" {
		s.run.Metadata["halt_reason"] = reason
	}
	s.mu.Unlock()
	return s.persist()
}

func (s *RunState) persist() error {
	if s.storage == nil {
		return nil
	}
	s.mu.RLock()
	run := *s.run
	s.mu.RUnlock()
	if err := s.storage.UpdateRun(&run); err != nil {
		return fmt.Errorf("failed to update run %s: %w", run.ID, err)
	}
	return nil
}
