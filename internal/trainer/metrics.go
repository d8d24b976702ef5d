package trainer

import (
	"context"
	"math"
	"sync/atomic"

	"github.com/mnemonlabs/mnemon/internal/policy"
	"github.com/mnemonlabs/mnemon/internal/provider"
)

// Metrics tracks training and evaluation counters. All methods are
// safe for concurrent use so parallel evaluation workers can share one
// instance.
type Metrics struct {
	episodes atomic.Int64
	turns    atomic.Int64
	steps    atomic.Int64

	adds    atomic.Int64
	updates atomic.Int64
	deletes atomic.Int64
	nones   atomic.Int64

	forcedNones    atomic.Int64
	skippedTurns   atomic.Int64
	droppedSteps   atomic.Int64
	policyUpdates  atomic.Int64
	skippedUpdates atomic.Int64
	checkpoints    atomic.Int64

	rewardBits atomic.Uint64

	promptTokens     atomic.Int64
	completionTokens atomic.Int64

	graded  atomic.Int64
	correct atomic.Int64
}

// NewMetrics creates a zeroed metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordEpisode counts a finished episode.
func (m *Metrics) RecordEpisode() {
	m.episodes.Add(1)
}

// RecordTurn counts a processed dialogue turn.
func (m *Metrics) RecordTurn() {
	m.turns.Add(1)
}

// RecordStep counts an executed decision and accumulates its reward.
func (m *Metrics) RecordStep(kind policy.Kind, reward float64) {
	m.steps.Add(1)
	switch kind {
	case policy.KindAdd:
		m.adds.Add(1)
	case policy.KindUpdate:
		m.updates.Add(1)
	case policy.KindDelete:
		m.deletes.Add(1)
	default:
		m.nones.Add(1)
	}
	m.addReward(reward)
}

// RecordForcedNone counts a decision demoted to NONE because its
// target fell outside the retrieval result.
func (m *Metrics) RecordForcedNone() {
	m.forcedNones.Add(1)
}

// RecordSkippedTurn counts a turn that produced no decision.
func (m *Metrics) RecordSkippedTurn() {
	m.skippedTurns.Add(1)
}

// RecordDroppedStep counts a decision whose execution failed after
// retries and therefore never reached a trajectory.
func (m *Metrics) RecordDroppedStep() {
	m.droppedSteps.Add(1)
}

// RecordPolicyUpdate counts a committed policy update.
func (m *Metrics) RecordPolicyUpdate() {
	m.policyUpdates.Add(1)
}

// RecordSkippedUpdate counts a rejected batch that left the policy
// unchanged.
func (m *Metrics) RecordSkippedUpdate() {
	m.skippedUpdates.Add(1)
}

// RecordCheckpoint counts a persisted checkpoint.
func (m *Metrics) RecordCheckpoint() {
	m.checkpoints.Add(1)
}

// RecordUsage accumulates model token usage.
func (m *Metrics) RecordUsage(u provider.Usage) {
	m.promptTokens.Add(int64(u.PromptTokens))
	m.completionTokens.Add(int64(u.CompletionTokens))
}

// RecordVerdict counts a graded answer.
func (m *Metrics) RecordVerdict(correct bool) {
	m.graded.Add(1)
	if correct {
		m.correct.Add(1)
	}
}

// TotalTokens returns prompt plus completion tokens so far.
func (m *Metrics) TotalTokens() int64 {
	return m.promptTokens.Load() + m.completionTokens.Load()
}

func (m *Metrics) addReward(r float64) {
	for {
		old := m.rewardBits.Load()
		next := math.Float64bits(math.Float64frombits(old) + r)
		if m.rewardBits.CompareAndSwap(old, next) {
			return
		}
	}
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Episodes       int64   `json:"episodes"`
	Turns          int64   `json:"turns"`
	Steps          int64   `json:"steps"`
	Adds           int64   `json:"adds"`
	Updates        int64   `json:"updates"`
	Deletes        int64   `json:"deletes"`
	Nones          int64   `json:"nones"`
	ForcedNones    int64   `json:"forced_nones"`
	SkippedTurns   int64   `json:"skipped_turns"`
	DroppedSteps   int64   `json:"dropped_steps"`
	PolicyUpdates  int64   `json:"policy_updates"`
	SkippedUpdates int64   `json:"skipped_updates"`
	Checkpoints    int64   `json:"checkpoints"`
	TotalReward    float64 `json:"total_reward"`
	AvgReward      float64 `json:"avg_reward"`
	PromptTokens   int64   `json:"prompt_tokens"`
	TotalTokens    int64   `json:"total_tokens"`
	Graded         int64   `json:"graded"`
	Correct        int64   `json:"correct"`
	Accuracy       float64 `json:"accuracy"`
}

// Snapshot returns current counter values with derived ratios.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Episodes:       m.episodes.Load(),
		Turns:          m.turns.Load(),
		Steps:          m.steps.Load(),
		Adds:           m.adds.Load(),
		Updates:        m.updates.Load(),
		Deletes:        m.deletes.Load(),
		Nones:          m.nones.Load(),
		ForcedNones:    m.forcedNones.Load(),
		SkippedTurns:   m.skippedTurns.Load(),
		DroppedSteps:   m.droppedSteps.Load(),
		PolicyUpdates:  m.policyUpdates.Load(),
		SkippedUpdates: m.skippedUpdates.Load(),
		Checkpoints:    m.checkpoints.Load(),
		TotalReward:    math.Float64frombits(m.rewardBits.Load()),
		PromptTokens:   m.promptTokens.Load(),
		TotalTokens:    m.promptTokens.Load() + m.completionTokens.Load(),
		Graded:         m.graded.Load(),
		Correct:        m.correct.Load(),
	}
	if s.Steps > 0 {
		s.AvgReward = s.TotalReward / float64(s.Steps)
	}
	if s.Graded > 0 {
		s.Accuracy = float64(s.Correct) / float64(s.Graded)
	}
	return s
}

// MeteredProvider wraps a provider and feeds its token usage into a
// metrics collector. Embeddings report no usage and pass through.
type MeteredProvider struct {
	provider.Provider
	metrics *Metrics
}

// Metered wraps p so chat usage lands in m.
func Metered(p provider.Provider, m *Metrics) *MeteredProvider {
	return &MeteredProvider{Provider: p, metrics: m}
}

// Chat forwards to the wrapped provider and records usage on success.
func (p *MeteredProvider) Chat(ctx context.Context, messages []provider.Message) (*provider.Response, error) {
	resp, err := p.Provider.Chat(ctx, messages)
	if err == nil && resp != nil {
		p.metrics.RecordUsage(resp.Usage)
	}
	return resp, err
}
