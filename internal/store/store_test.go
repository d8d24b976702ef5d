package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mnemonlabs/mnemon/internal/memory"
)

func TestSQLiteStore(t *testing.T) {
	tmpDir, _ := os.MkdirTemp("", "store-test-*")
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "mnemon.db")
	ckptDir := filepath.Join(tmpDir, "checkpoints")

	s, err := NewSQLiteStore(dbPath, ckptDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	t.Run("Runs", func(t *testing.T) {
		run := &Run{
			ID:        "run-1700000000",
			CreatedAt: time.Now().UTC(),
			Status:    StatusInitialized,
			Metadata:  map[string]string{"corpus": "lme.json"},
		}

		if err := s.CreateRun(run); err != nil {
			t.Fatalf("CreateRun failed: %v", err)
		}

		got, err := s.GetRun("run-1700000000")
		if err != nil {
			t.Fatalf("GetRun failed: %v", err)
		}
		if got.Metadata["corpus"] != "lme.json" {
			t.Errorf("Expected metadata 'lme.json', got '%s'", got.Metadata["corpus"])
		}

		got.Status = StatusCompleted
		if err := s.UpdateRun(got); err != nil {
			t.Fatalf("UpdateRun failed: %v", err)
		}

		updated, _ := s.GetRun("run-1700000000")
		if updated.Status != StatusCompleted {
			t.Errorf("Expected status completed, got '%s'", updated.Status)
		}

		if _, err := s.GetRun("non-existent"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}

		second := &Run{ID: "run-1700000099", CreatedAt: time.Now().UTC().Add(time.Minute), Status: StatusRunning}
		if err := s.CreateRun(second); err != nil {
			t.Fatalf("CreateRun failed: %v", err)
		}
		list, err := s.ListRuns()
		if err != nil {
			t.Fatalf("ListRuns failed: %v", err)
		}
		if len(list) != 2 {
			t.Fatalf("Expected 2 runs, got %d", len(list))
		}
		if list[0].ID != "run-1700000099" {
			t.Errorf("Expected newest run first, got '%s'", list[0].ID)
		}
	})

	t.Run("Checkpoints", func(t *testing.T) {
		blob := []byte(`{"version":1}`)
		ckpt := &Checkpoint{
			ID:        "ckpt-1",
			Run:       "run-1700000000",
			Step:      1,
			Path:      filepath.Join("run-1700000000", "step-000001.ckpt"),
			CreatedAt: time.Now().UTC(),
		}

		if err := s.SaveCheckpoint(ckpt, blob); err != nil {
			t.Fatalf("SaveCheckpoint failed: %v", err)
		}
		if ckpt.Digest == "" {
			t.Error("Expected digest to be filled on save")
		}

		gotMeta, gotBlob, err := s.GetCheckpoint("ckpt-1")
		if err != nil {
			t.Fatalf("GetCheckpoint failed: %v", err)
		}
		if string(gotBlob) != string(blob) {
			t.Errorf("Expected blob %q, got %q", blob, gotBlob)
		}
		if gotMeta.Digest != ckpt.Digest {
			t.Errorf("Expected digest %q, got %q", ckpt.Digest, gotMeta.Digest)
		}

		later := &Checkpoint{
			ID:        "ckpt-2",
			Run:       "run-1700000000",
			Step:      2,
			Path:      filepath.Join("run-1700000000", "step-000002.ckpt"),
			CreatedAt: time.Now().UTC(),
		}
		if err := s.SaveCheckpoint(later, []byte(`{"version":1,"step":2}`)); err != nil {
			t.Fatalf("SaveCheckpoint failed: %v", err)
		}

		latest, _, err := s.LatestCheckpoint("run-1700000000")
		if err != nil {
			t.Fatalf("LatestCheckpoint failed: %v", err)
		}
		if latest.ID != "ckpt-2" {
			t.Errorf("Expected latest checkpoint ckpt-2, got '%s'", latest.ID)
		}

		if _, _, err := s.LatestCheckpoint("no-such-run"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}

		// Tampered blob must fail the digest check
		os.WriteFile(filepath.Join(ckptDir, ckpt.Path), []byte("tampered"), 0600)
		if _, _, err := s.GetCheckpoint("ckpt-1"); err == nil {
			t.Error("Expected digest mismatch error for tampered blob")
		}
	})

	t.Run("Config", func(t *testing.T) {
		if err := s.SetConfig("provider", "openai"); err != nil {
			t.Fatalf("SetConfig failed: %v", err)
		}

		val, err := s.GetConfig("provider")
		if err != nil {
			t.Fatalf("GetConfig failed: %v", err)
		}
		if val != "openai" {
			t.Errorf("Expected 'openai', got '%s'", val)
		}

		if err := s.SetConfig("provider", "ollama"); err != nil {
			t.Fatalf("SetConfig overwrite failed: %v", err)
		}
		val, _ = s.GetConfig("provider")
		if val != "ollama" {
			t.Errorf("Expected 'ollama', got '%s'", val)
		}

		val2, _ := s.GetConfig("unknown")
		if val2 != "" {
			t.Errorf("Expected empty string for unknown config, got '%s'", val2)
		}
	})

	t.Run("Collections", func(t *testing.T) {
		ctx := memory.WithTimestamp(context.Background(), time.Date(2023, time.May, 20, 2, 21, 0, 0, time.UTC))

		col, err := s.Collection("dlg-1")
		if err != nil {
			t.Fatalf("Collection failed: %v", err)
		}

		id, err := col.Insert(ctx, "likes coffee", []float32{1, 0, 0})
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if _, err := col.Insert(ctx, "lives in Lisbon", []float32{0, 1, 0}); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}

		results, err := col.Search(ctx, []float32{1, 0, 0}, 5)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("Expected 2 results, got %d", len(results))
		}
		if results[0].Record.Text != "likes coffee" {
			t.Errorf("Expected best match 'likes coffee', got '%s'", results[0].Record.Text)
		}
		if results[0].Score < 0.99 {
			t.Errorf("Expected near-perfect score, got %f", results[0].Score)
		}
		if !results[0].Record.CreatedAt.Equal(time.Date(2023, time.May, 20, 2, 21, 0, 0, time.UTC)) {
			t.Errorf("Expected pinned created_at, got %v", results[0].Record.CreatedAt)
		}
		if !results[0].Record.UpdatedAt.IsZero() {
			t.Errorf("Expected zero updated_at before update, got %v", results[0].Record.UpdatedAt)
		}

		laterCtx := memory.WithTimestamp(context.Background(), time.Date(2023, time.June, 1, 9, 0, 0, 0, time.UTC))
		if err := col.Update(laterCtx, id, "likes espresso", []float32{0.9, 0.1, 0}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		results, _ = col.Search(ctx, []float32{1, 0, 0}, 1)
		if results[0].Record.Text != "likes espresso" {
			t.Errorf("Expected updated text, got '%s'", results[0].Record.Text)
		}
		if !results[0].Record.CreatedAt.Equal(time.Date(2023, time.May, 20, 2, 21, 0, 0, time.UTC)) {
			t.Errorf("Expected created_at preserved across update, got %v", results[0].Record.CreatedAt)
		}
		if results[0].Record.UpdatedAt.IsZero() {
			t.Error("Expected updated_at set after update")
		}

		if err := col.Update(ctx, "ghost", "x", []float32{1, 0, 0}); !errors.Is(err, memory.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}

		if err := col.Delete(ctx, id); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := col.Delete(ctx, id); !errors.Is(err, memory.ErrNotFound) {
			t.Errorf("Expected ErrNotFound on double delete, got %v", err)
		}

		n, err := col.Count(ctx)
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if n != 1 {
			t.Errorf("Expected 1 record left, got %d", n)
		}

		// Collections are isolated from each other
		other, _ := s.Collection("dlg-2")
		if n, _ := other.Count(ctx); n != 0 {
			t.Errorf("Expected empty sibling collection, got %d records", n)
		}
	})
}
