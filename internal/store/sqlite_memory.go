package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/mnemonlabs/mnemon/internal/memory"
)

// Collection returns a record store scoped to one collection name.
func (s *SQLiteStore) Collection(name string) (memory.Store, error) {
	return &SQLiteCollection{db: s.db, name: name}, nil
}

// SQLiteCollection implements memory.Store over the shared records
// table, filtered by collection name.
type SQLiteCollection struct {
	db   *sql.DB
	name string
}

var _ memory.Store = (*SQLiteCollection)(nil)

func (c *SQLiteCollection) Insert(ctx context.Context, text string, embedding []float32) (string, error) {
	blob, err := encodeVector(embedding)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	now := memory.TimestampFrom(ctx)
	query := `INSERT INTO records (id, collection, content, vector, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := c.db.ExecContext(ctx, query, id, c.name, text, blob, now, nil); err != nil {
		return "", fmt.Errorf("failed to insert record: %w", err)
	}
	return id, nil
}

func (c *SQLiteCollection) Update(ctx context.Context, id, text string, embedding []float32) error {
	blob, err := encodeVector(embedding)
	if err != nil {
		return err
	}

	query := `UPDATE records SET content = ?, vector = ?, updated_at = ? WHERE id = ? AND collection = ?`
	res, err := c.db.ExecContext(ctx, query, text, blob, memory.TimestampFrom(ctx), id, c.name)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: record %s", memory.ErrNotFound, id)
	}
	return nil
}

func (c *SQLiteCollection) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM records WHERE id = ? AND collection = ?`
	res, err := c.db.ExecContext(ctx, query, id, c.name)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: record %s", memory.ErrNotFound, id)
	}
	return nil
}

func (c *SQLiteCollection) Search(ctx context.Context, embedding []float32, topk int) ([]memory.Retrieved, error) {
	if topk <= 0 {
		return nil, nil
	}

	// Naive implementation: load all, compute cosine, sort. Fine for
	// per-dialogue collections of at most a few hundred records.
	query := `SELECT id, content, vector, created_at, updated_at FROM records WHERE collection = ?`
	rows, err := c.db.QueryContext(ctx, query, c.name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scored []memory.Retrieved
	for rows.Next() {
		var rec memory.Record
		var blob []byte
		var updated sql.NullTime

		if err := rows.Scan(&rec.ID, &rec.Text, &blob, &rec.CreatedAt, &updated); err != nil {
			continue
		}
		vector, err := decodeVector(blob)
		if err != nil {
			continue
		}
		rec.Embedding = vector
		if updated.Valid {
			rec.UpdatedAt = updated.Time
		}

		scored = append(scored, memory.Retrieved{
			Record: rec,
			Score:  memory.Cosine(embedding, vector),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > topk {
		scored = scored[:topk]
	}
	return scored, nil
}

func (c *SQLiteCollection) Count(ctx context.Context) (int, error) {
	row := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE collection = ?`, c.name)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func encodeVector(vector []float32) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, vector); err != nil {
		return nil, fmt.Errorf("failed to encode vector: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeVector(blob []byte) ([]float32, error) {
	vector := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, &vector); err != nil {
		return nil, fmt.Errorf("failed to decode vector: %w", err)
	}
	return vector, nil
}
