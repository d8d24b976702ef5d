package memory

import (
	"context"
	"strings"
	"time"
)

// Record is a single stored memory. IDs are assigned by the store and
// stay stable across updates; text and embedding change together.
type Record struct {
	ID        string
	Text      string
	Embedding []float32
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CandidateFact is an extracted fact awaiting a decision. It lives for
// exactly one decision cycle.
type CandidateFact struct {
	Text      string
	Embedding []float32
}

// Retrieved pairs a stored record with its similarity to the query
// embedding. Search results are ordered by descending score.
type Retrieved struct {
	Record Record
	Score  float64
}

// Thresholds are the similarity boundaries shared by state annotation
// and reward shaping.
type Thresholds struct {
	// Redundancy is the similarity above which adding stops paying
	// information gain.
	Redundancy float64
	// Duplicate is the similarity above which the fact counts as a
	// near-verbatim copy of a stored record.
	Duplicate float64
	// LowRelevance is the similarity below which retrieved context is
	// treated as noise.
	LowRelevance float64
}

// DefaultThresholds returns the boundaries the trainer ships with.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Redundancy:   0.85,
		Duplicate:    0.95,
		LowRelevance: 0.20,
	}
}

// Annotator decides whether a candidate fact contradicts a stored
// memory. Implementations that call out to a model should degrade to
// false on failure rather than block the decision cycle.
type Annotator interface {
	Contradicts(ctx context.Context, fact CandidateFact, top Retrieved) bool
}

// State is the immutable input to a policy decision: the candidate
// fact, the retrieval result, and the derived features.
type State struct {
	Fact          CandidateFact
	Retrieved     []Retrieved
	MaxSimilarity float64
	Duplicate     bool
	Contradiction bool
}

// NewState derives the decision state from a fact and its retrieval
// result. The retrieval slice must already be ordered by descending
// score and de-duplicated by record id.
func NewState(ctx context.Context, fact CandidateFact, retrieved []Retrieved, th Thresholds, ann Annotator) State {
	s := State{
		Fact:      fact,
		Retrieved: retrieved,
	}
	if len(retrieved) == 0 {
		return s
	}
	top := retrieved[0]
	s.MaxSimilarity = top.Score
	s.Duplicate = top.Score > th.Duplicate
	if ann != nil {
		s.Contradiction = ann.Contradicts(ctx, fact, top)
	}
	return s
}

// ThresholdAnnotator flags contradictions from surface negation cues,
// gated on a minimum similarity so unrelated facts never conflict.
// It is the zero-cost default; wire an LLM-backed annotator for
// anything beyond preference-drift corpora.
type ThresholdAnnotator struct {
	MinSimilarity float64
}

// NewThresholdAnnotator gates cue matching on the redundancy boundary:
// a fact can only conflict with a record it substantially overlaps.
func NewThresholdAnnotator(th Thresholds) *ThresholdAnnotator {
	return &ThresholdAnnotator{MinSimilarity: th.Redundancy}
}

var _ Annotator = (*ThresholdAnnotator)(nil)

// Contradicts reports a conflict when the pair is similar enough and
// exactly one side carries a negation cue.
func (a *ThresholdAnnotator) Contradicts(_ context.Context, fact CandidateFact, top Retrieved) bool {
	if top.Score < a.MinSimilarity {
		return false
	}
	return hasNegationCue(fact.Text) != hasNegationCue(top.Record.Text)
}

var negationCues = []string{
	" not ",
	"n't",
	" no longer ",
	" never ",
	" stopped ",
	" quit ",
	" instead of ",
	" rather than ",
}

var cueNormalizer = strings.NewReplacer(",", " ", ".", " ", ";", " ", "!", " ", "?", " ")

func hasNegationCue(text string) bool {
	t := " " + cueNormalizer.Replace(strings.ToLower(text)) + " "
	for _, cue := range negationCues {
		if strings.Contains(t, cue) {
			return true
		}
	}
	return false
}

type timestampKey struct{}

// WithTimestamp pins the clock used for record timestamps, letting
// ingestion run under a dialogue's historical session date.
func WithTimestamp(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, timestampKey{}, t)
}

// TimestampFrom returns the pinned time, or the wall clock when none
// is set.
func TimestampFrom(ctx context.Context) time.Time {
	if t, ok := ctx.Value(timestampKey{}).(time.Time); ok {
		return t
	}
	return time.Now().UTC()
}
