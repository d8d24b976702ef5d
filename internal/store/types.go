package store

import (
	"errors"
	"time"

	"github.com/mnemonlabs/mnemon/internal/memory"
)

// ErrNotFound marks lookups of runs, checkpoints or records that do
// not exist.
var ErrNotFound = errors.New("store: not found")

// Run statuses as written to the runs table.
const (
	StatusInitialized = "initialized"
	StatusRunning     = "running"
	StatusHalted      = "halted"
	StatusCompleted   = "completed"
)

// Run represents one train or eval invocation.
type Run struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Status    string
	Metadata  map[string]string
}

// Checkpoint is the metadata row for a serialized policy blob kept on
// the filesystem under the checkpoint directory.
type Checkpoint struct {
	ID        string
	Run       string
	Step      int
	Path      string // relative path under the checkpoint directory
	CreatedAt time.Time
	Digest    string // sha-256 of the blob, filled on save
}

// Storage persists run metadata, checkpoints and configuration.
type Storage interface {
	// Run management
	CreateRun(run *Run) error
	GetRun(id string) (*Run, error)
	UpdateRun(run *Run) error
	ListRuns() ([]*Run, error)

	// Checkpoint management
	// SaveCheckpoint persists the blob and the metadata row.
	SaveCheckpoint(ckpt *Checkpoint, blob []byte) error
	GetCheckpoint(id string) (*Checkpoint, []byte, error)
	LatestCheckpoint(run string) (*Checkpoint, []byte, error)

	// Configuration management
	SetConfig(key, value string) error
	GetConfig(key string) (string, error)

	Close() error
}

// Collections hands out named record stores. Each dialogue trains
// against its own collection so episodes stay isolated.
type Collections interface {
	Collection(name string) (memory.Store, error)
	Close() error
}
