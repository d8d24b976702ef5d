package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps runs, checkpoints, configuration and record
// collections in a single database file. Checkpoint blobs live next to
// it under checkpointDir.
type SQLiteStore struct {
	db            *sql.DB
	checkpointDir string
}

var _ Storage = (*SQLiteStore)(nil)
var _ Collections = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath, checkpointDir string) (*SQLiteStore, error) {
	// Ensure directories exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}
	if err := os.MkdirAll(checkpointDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{
		db:            db,
		checkpointDir: checkpointDir,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at DATETIME,
			updated_at DATETIME,
			status TEXT,
			metadata TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			id TEXT PRIMARY KEY,
			run TEXT,
			step INTEGER,
			path TEXT,
			created_at DATETIME,
			digest TEXT,
			FOREIGN KEY(run) REFERENCES runs(id)
		);`,
		`CREATE TABLE IF NOT EXISTS configuration (
			key TEXT PRIMARY KEY,
			value TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			collection TEXT,
			content TEXT,
			vector BLOB,
			created_at DATETIME,
			updated_at DATETIME
		);`,
		`CREATE INDEX IF NOT EXISTS idx_records_collection ON records(collection);`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Configuration Implementation

func (s *SQLiteStore) SetConfig(key, value string) error {
	query := `INSERT INTO configuration (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	_, err := s.db.Exec(query, key, value)
	return err
}

func (s *SQLiteStore) GetConfig(key string) (string, error) {
	query := `SELECT value FROM configuration WHERE key = ?`
	row := s.db.QueryRow(query, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

// Run Implementation

func (s *SQLiteStore) CreateRun(run *Run) error {
	metaJSON, err := json.Marshal(run.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `INSERT INTO runs (id, created_at, updated_at, status, metadata) VALUES (?, ?, ?, ?, ?)`
	_, err = s.db.Exec(query, run.ID, run.CreatedAt, run.UpdatedAt, run.Status, string(metaJSON))
	return err
}

func (s *SQLiteStore) GetRun(id string) (*Run, error) {
	query := `SELECT id, created_at, updated_at, status, metadata FROM runs WHERE id = ?`
	row := s.db.QueryRow(query, id)

	var run Run
	var metaJSON string
	if err := row.Scan(&run.ID, &run.CreatedAt, &run.UpdatedAt, &run.Status, &metaJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: run %s", ErrNotFound, id)
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(metaJSON), &run.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &run, nil
}

func (s *SQLiteStore) UpdateRun(run *Run) error {
	metaJSON, err := json.Marshal(run.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `UPDATE runs SET updated_at = ?, status = ?, metadata = ? WHERE id = ?`
	_, err = s.db.Exec(query, time.Now().UTC(), run.Status, string(metaJSON), run.ID)
	return err
}

func (s *SQLiteStore) ListRuns() ([]*Run, error) {
	query := `SELECT id, created_at, updated_at, status, metadata FROM runs ORDER BY created_at DESC`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		var metaJSON string
		if err := rows.Scan(&run.ID, &run.CreatedAt, &run.UpdatedAt, &run.Status, &metaJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(metaJSON), &run.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		runs = append(runs, &run)
	}
	return runs, nil
}

// Checkpoint Implementation

func (s *SQLiteStore) SaveCheckpoint(ckpt *Checkpoint, blob []byte) error {
	// 1. Save blob to filesystem, digest filled from content
	sum := sha256.Sum256(blob)
	ckpt.Digest = hex.EncodeToString(sum[:])

	fullPath := filepath.Join(s.checkpointDir, ckpt.Path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0750); err != nil {
		return fmt.Errorf("failed to create checkpoint dir: %w", err)
	}
	if err := os.WriteFile(fullPath, blob, 0600); err != nil {
		return fmt.Errorf("failed to write checkpoint blob: %w", err)
	}

	// 2. Save metadata to DB
	query := `INSERT INTO checkpoints (id, run, step, path, created_at, digest) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.Exec(query, ckpt.ID, ckpt.Run, ckpt.Step, ckpt.Path, ckpt.CreatedAt, ckpt.Digest)
	return err
}

func (s *SQLiteStore) GetCheckpoint(id string) (*Checkpoint, []byte, error) {
	query := `SELECT id, run, step, path, created_at, digest FROM checkpoints WHERE id = ?`
	return s.readCheckpoint(s.db.QueryRow(query, id), fmt.Sprintf("checkpoint %s", id))
}

func (s *SQLiteStore) LatestCheckpoint(run string) (*Checkpoint, []byte, error) {
	query := `SELECT id, run, step, path, created_at, digest FROM checkpoints WHERE run = ? ORDER BY step DESC, created_at DESC LIMIT 1`
	return s.readCheckpoint(s.db.QueryRow(query, run), fmt.Sprintf("checkpoints for run %s", run))
}

func (s *SQLiteStore) readCheckpoint(row *sql.Row, what string) (*Checkpoint, []byte, error) {
	var ckpt Checkpoint
	if err := row.Scan(&ckpt.ID, &ckpt.Run, &ckpt.Step, &ckpt.Path, &ckpt.CreatedAt, &ckpt.Digest); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, what)
		}
		return nil, nil, err
	}

	fullPath := filepath.Join(s.checkpointDir, ckpt.Path)
	blob, err := os.ReadFile(fullPath) // #nosec G304
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read checkpoint blob: %w", err)
	}

	sum := sha256.Sum256(blob)
	if got := hex.EncodeToString(sum[:]); got != ckpt.Digest {
		return nil, nil, fmt.Errorf("checkpoint %s digest mismatch", ckpt.ID)
	}

	return &ckpt, blob, nil
}
