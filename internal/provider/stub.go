package provider

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync"
)

const stubDimension = 64

// StubProvider is a deterministic in-process provider for tests and
// the no-network demo path. Chat cycles through the canned responses;
// Embed hashes tokens into a stable bag-of-words vector, so texts that
// share words land near each other without a model.
type StubProvider struct {
	mu        sync.Mutex
	responses []Response
	next      int
	dimension int
}

func NewStubProvider(responses ...string) *StubProvider {
	p := &StubProvider{dimension: stubDimension}
	for _, r := range responses {
		p.responses = append(p.responses, Response{
			Content: r,
			Usage:   Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		})
	}
	return p
}

// SetDimension overrides the embedding width.
func (m *StubProvider) SetDimension(dim int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dim > 0 {
		m.dimension = dim
	}
}

func (m *StubProvider) Chat(ctx context.Context, messages []Message) (*Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.responses) == 0 {
		return &Response{Content: "OK", Usage: Usage{TotalTokens: 1}}, nil
	}

	resp := m.responses[m.next%len(m.responses)]
	m.next++
	return &resp, nil
}

var stubTokenizer = strings.NewReplacer(",", " ", ".", " ", ";", " ", ":", " ", "!", " ", "?", " ", "'", " ")

func (m *StubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	m.mu.Lock()
	dim := m.dimension
	m.mu.Unlock()

	vec := make([]float32, dim)
	for _, tok := range strings.Fields(stubTokenizer.Replace(strings.ToLower(text))) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[int(h.Sum32()%uint32(dim))]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

func (m *StubProvider) Name() string {
	return "stub"
}
