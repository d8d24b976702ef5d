// Package reward scores executed memory actions. Rewards are additive
// and unclamped: a base value per action kind plus adjustments derived
// from the decision state, so the policy feels the opportunity cost of
// hoarding, ignoring, or clobbering memories.
package reward

import (
	"github.com/mnemonlabs/mnemon/internal/memory"
	"github.com/mnemonlabs/mnemon/internal/policy"
)

// Config carries the base rewards, adjustment magnitudes, and the
// similarity thresholds shared with state annotation.
type Config struct {
	BaseAdd    float64
	BaseUpdate float64
	BaseDelete float64
	BaseNone   float64

	// InfoGainScale scales the novelty term: for ADD the distance of
	// max similarity below the redundancy threshold, for UPDATE the
	// distance of target similarity above it. Zero at the threshold.
	InfoGainScale float64
	// DuplicatePenalty hits ADD of a near-verbatim duplicate.
	DuplicatePenalty float64
	// ContradictionPenalty hits NONE and ADD while a contradiction is
	// flagged; UpdateBonus and DeleteBonus pay the corrective actions
	// against the conflicting record instead.
	ContradictionPenalty float64
	UpdateBonus          float64
	DeleteBonus          float64
	// MissedInfoPenalty hits NONE when the fact was novel;
	// CorrectIgnoreBonus pays NONE when the fact was a duplicate.
	MissedInfoPenalty  float64
	CorrectIgnoreBonus float64
	// NoChangePenalty hits UPDATE of a record the fact duplicates.
	NoChangePenalty float64
	// IrrelevancePenalty hits UPDATE and DELETE of records barely
	// related to the fact.
	IrrelevancePenalty float64

	Thresholds memory.Thresholds
}

// DefaultConfig returns the stock magnitudes. Base rewards keep the
// strict ADD > UPDATE > DELETE > NONE ordering when no adjustment
// applies.
func DefaultConfig() Config {
	return Config{
		BaseAdd:    1.0,
		BaseUpdate: 0.8,
		BaseDelete: 0.5,
		BaseNone:   0.1,

		InfoGainScale:        1.0,
		DuplicatePenalty:     2.0,
		ContradictionPenalty: 1.0,
		UpdateBonus:          1.2,
		DeleteBonus:          1.5,
		MissedInfoPenalty:    1.0,
		CorrectIgnoreBonus:   0.4,
		NoChangePenalty:      1.3,
		IrrelevancePenalty:   1.8,

		Thresholds: memory.DefaultThresholds(),
	}
}

// Model scores actions against decision states.
type Model struct {
	cfg Config
}

// NewModel builds a scoring model.
func NewModel(cfg Config) *Model {
	return &Model{cfg: cfg}
}

// Score returns the reward for an executed action. Callers validate
// targets upstream; a target absent from the retrieval result scores
// as a zero-similarity mutation.
func (m *Model) Score(action policy.Action, state memory.State) float64 {
	switch action.Kind() {
	case policy.KindAdd:
		return m.scoreAdd(state)
	case policy.KindUpdate:
		return m.scoreUpdate(state, action.Target())
	case policy.KindDelete:
		return m.scoreDelete(state, action.Target())
	default:
		return m.scoreNone(state)
	}
}

func (m *Model) scoreAdd(state memory.State) float64 {
	r := m.cfg.BaseAdd
	r += m.cfg.InfoGainScale * (m.cfg.Thresholds.Redundancy - state.MaxSimilarity)
	if state.Duplicate {
		r -= m.cfg.DuplicatePenalty
	}
	if state.Contradiction {
		r -= m.cfg.ContradictionPenalty
	}
	return r
}

func (m *Model) scoreUpdate(state memory.State, target string) float64 {
	sim := targetSimilarity(state, target)
	r := m.cfg.BaseUpdate
	r += m.cfg.InfoGainScale * (sim - m.cfg.Thresholds.Redundancy)
	if targetsTop(state, target) {
		if state.Contradiction {
			r += m.cfg.UpdateBonus
		}
		if state.Duplicate {
			r -= m.cfg.NoChangePenalty
		}
	}
	if sim < m.cfg.Thresholds.LowRelevance {
		r -= m.cfg.IrrelevancePenalty
	}
	return r
}

func (m *Model) scoreDelete(state memory.State, target string) float64 {
	r := m.cfg.BaseDelete
	if state.Contradiction && targetsTop(state, target) {
		r += m.cfg.DeleteBonus
	}
	if targetSimilarity(state, target) < m.cfg.Thresholds.LowRelevance {
		r -= m.cfg.IrrelevancePenalty
	}
	return r
}

func (m *Model) scoreNone(state memory.State) float64 {
	r := m.cfg.BaseNone
	if state.Contradiction {
		r -= m.cfg.ContradictionPenalty
	}
	if state.Duplicate {
		r += m.cfg.CorrectIgnoreBonus
	} else if state.MaxSimilarity < m.cfg.Thresholds.Redundancy {
		r -= m.cfg.MissedInfoPenalty
	}
	return r
}

func targetSimilarity(state memory.State, target string) float64 {
	for _, r := range state.Retrieved {
		if r.Record.ID == target {
			return r.Score
		}
	}
	return 0
}

func targetsTop(state memory.State, target string) bool {
	return len(state.Retrieved) > 0 && state.Retrieved[0].Record.ID == target
}
