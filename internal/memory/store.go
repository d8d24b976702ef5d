package memory

import (
	"context"
	"errors"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrNotFound means the record id does not exist in the store.
	ErrNotFound = errors.New("memory: record not found")
	// ErrUnavailable means the backing store could not be reached.
	// Callers retry these; ErrNotFound they do not.
	ErrUnavailable = errors.New("memory: store unavailable")
)

// Store is the vector-similarity boundary the decision engine mutates
// through. Implementations assign ids on Insert and keep them stable
// across Update.
type Store interface {
	Insert(ctx context.Context, text string, embedding []float32) (string, error)
	Update(ctx context.Context, id, text string, embedding []float32) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, embedding []float32, topk int) ([]Retrieved, error)
	Count(ctx context.Context) (int, error)
}

// Cosine returns the cosine similarity of two equal-length vectors.
// Mismatched or zero-magnitude vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// InMemoryStore keeps records in process memory. It backs unit tests
// and the partitioned store views used by parallel evaluation.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []Record
	index   map[string]int
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore returns an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{index: make(map[string]int)}
}

// Insert stores a new record and returns its id. CreatedAt comes from
// the context clock so ingestion can run under historical dates.
func (s *InMemoryStore) Insert(ctx context.Context, text string, embedding []float32) (string, error) {
	rec := Record{
		ID:        uuid.NewString(),
		Text:      text,
		Embedding: slices.Clone(embedding),
		CreatedAt: TimestampFrom(ctx),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[rec.ID] = len(s.records)
	s.records = append(s.records, rec)
	return rec.ID, nil
}

// Update overwrites text and embedding together, preserving CreatedAt.
func (s *InMemoryStore) Update(ctx context.Context, id, text string, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return ErrNotFound
	}
	s.records[i].Text = text
	s.records[i].Embedding = slices.Clone(embedding)
	s.records[i].UpdatedAt = TimestampFrom(ctx)
	return nil
}

// Delete removes a record by id.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[id]
	if !ok {
		return ErrNotFound
	}
	last := len(s.records) - 1
	if i != last {
		s.records[i] = s.records[last]
		s.index[s.records[i].ID] = i
	}
	s.records = s.records[:last]
	delete(s.index, id)
	return nil
}

// Search returns up to topk records ordered by descending cosine
// similarity to the query embedding.
func (s *InMemoryStore) Search(_ context.Context, embedding []float32, topk int) ([]Retrieved, error) {
	if topk <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]Retrieved, 0, len(s.records))
	for _, rec := range s.records {
		results = append(results, Retrieved{
			Record: cloneRecord(rec),
			Score:  Cosine(embedding, rec.Embedding),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topk {
		results = results[:topk]
	}
	return results, nil
}

// Count reports the number of stored records.
func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func cloneRecord(rec Record) Record {
	rec.Embedding = slices.Clone(rec.Embedding)
	return rec
}
