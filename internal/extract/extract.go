// Package extract turns conversation turns into candidate facts for
// the decision engine. A turn yields at most one fact; turns without
// long-term information yield none.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mnemonlabs/mnemon/internal/memory"
	"github.com/mnemonlabs/mnemon/internal/provider"
)

// ErrExtractionFailed means the extractor could not produce a verdict
// for the turn; the caller skips the turn without a decision.
var ErrExtractionFailed = errors.New("extract: extraction failed")

// Extractor maps a user utterance to zero or one candidate fact.
// A nil fact with a nil error means the turn carried nothing worth
// remembering.
type Extractor interface {
	Extract(ctx context.Context, turn string) (*memory.CandidateFact, error)
}

// StaticExtractor treats the utterance itself as the fact, embedding
// included. It keeps demos and tests off the chat model: only the
// embedding endpoint runs.
type StaticExtractor struct {
	provider provider.Provider
	minWords int
}

var _ Extractor = (*StaticExtractor)(nil)

// NewStaticExtractor builds a pass-through extractor. Utterances under
// three words are treated as chatter and skipped.
func NewStaticExtractor(p provider.Provider) *StaticExtractor {
	return &StaticExtractor{
		provider: p,
		minWords: 3,
	}
}

func (e *StaticExtractor) Extract(ctx context.Context, turn string) (*memory.CandidateFact, error) {
	text := strings.TrimSpace(turn)
	if len(strings.Fields(text)) < e.minWords {
		return nil, nil
	}

	embedding, err := e.provider.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	return &memory.CandidateFact{
		Text:      text,
		Embedding: embedding,
	}, nil
}
