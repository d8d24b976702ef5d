package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/mnemonlabs/mnemon/internal/memory"
)

// ChromemStore hands out record collections backed by the embedded
// chromem-go vector database. With a persist path the database survives
// restarts, otherwise it lives in memory.
type ChromemStore struct {
	db          *chromem.DB
	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

var _ Collections = (*ChromemStore)(nil)

func NewChromemStore(path string) (*ChromemStore, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem db: %w", err)
		}
	}
	return &ChromemStore{db: db, collections: make(map[string]*chromem.Collection)}, nil
}

func (s *ChromemStore) Collection(name string) (memory.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[name]
	if !ok {
		var err error
		// Embeddings always come from the caller, so no embedding func.
		col, err = s.db.GetOrCreateCollection(name, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to open collection %s: %w", name, err)
		}
		s.collections[name] = col
	}
	return &ChromemCollection{col: col}, nil
}

func (s *ChromemStore) Close() error {
	// chromem persists on write, nothing held open.
	return nil
}

// ChromemCollection implements memory.Store over one chromem
// collection. Record timestamps travel in document metadata.
type ChromemCollection struct {
	col *chromem.Collection
}

var _ memory.Store = (*ChromemCollection)(nil)

const (
	metaCreatedAt = "created_at"
	metaUpdatedAt = "updated_at"
)

func (c *ChromemCollection) Insert(ctx context.Context, text string, embedding []float32) (string, error) {
	id := uuid.NewString()
	doc := chromem.Document{
		ID:        id,
		Content:   text,
		Embedding: embedding,
		Metadata:  map[string]string{metaCreatedAt: memory.TimestampFrom(ctx).Format(time.RFC3339)},
	}
	if err := c.col.AddDocument(ctx, doc); err != nil {
		return "", fmt.Errorf("failed to add document: %w", err)
	}
	return id, nil
}

func (c *ChromemCollection) Update(ctx context.Context, id, text string, embedding []float32) error {
	existing, err := c.col.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: record %s", memory.ErrNotFound, id)
	}

	// AddDocument replaces the stored document with the same ID.
	doc := chromem.Document{
		ID:        id,
		Content:   text,
		Embedding: embedding,
		Metadata: map[string]string{
			metaCreatedAt: existing.Metadata[metaCreatedAt],
			metaUpdatedAt: memory.TimestampFrom(ctx).Format(time.RFC3339),
		},
	}
	if err := c.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to replace document: %w", err)
	}
	return nil
}

func (c *ChromemCollection) Delete(ctx context.Context, id string) error {
	if _, err := c.col.GetByID(ctx, id); err != nil {
		return fmt.Errorf("%w: record %s", memory.ErrNotFound, id)
	}
	if err := c.col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (c *ChromemCollection) Search(ctx context.Context, embedding []float32, topk int) ([]memory.Retrieved, error) {
	if topk <= 0 {
		return nil, nil
	}

	// chromem rejects nResults above the collection size.
	n := topk
	if count := c.col.Count(); n > count {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	results, err := c.col.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	retrieved := make([]memory.Retrieved, 0, len(results))
	for _, res := range results {
		rec := memory.Record{
			ID:        res.ID,
			Text:      res.Content,
			Embedding: res.Embedding,
		}
		if ts, err := time.Parse(time.RFC3339, res.Metadata[metaCreatedAt]); err == nil {
			rec.CreatedAt = ts
		}
		if ts, err := time.Parse(time.RFC3339, res.Metadata[metaUpdatedAt]); err == nil {
			rec.UpdatedAt = ts
		}
		retrieved = append(retrieved, memory.Retrieved{Record: rec, Score: float64(res.Similarity)})
	}
	return retrieved, nil
}

func (c *ChromemCollection) Count(_ context.Context) (int, error) {
	return c.col.Count(), nil
}
