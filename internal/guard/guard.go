// Package guard enforces training budgets so a misbehaving corpus or
// policy cannot run away with compute or storage.
package guard

import "fmt"

// Budget defines the limits for one training or evaluation run.
// A zero limit disables its check.
type Budget struct {
	MaxEpisodes            int `json:"max_episodes" yaml:"max_episodes"`
	MaxTurnsPerEpisode     int `json:"max_turns_per_episode" yaml:"max_turns_per_episode"`
	MaxStoreRecords        int `json:"max_store_records" yaml:"max_store_records"`
	MaxConsecutiveFailures int `json:"max_consecutive_failures" yaml:"max_consecutive_failures"`
	MaxTotalTokens         int `json:"max_total_tokens" yaml:"max_total_tokens"`
}

// DefaultBudget provides safe defaults.
var DefaultBudget = Budget{
	MaxEpisodes:            10000,
	MaxTurnsPerEpisode:     500,
	MaxStoreRecords:        10000,
	MaxConsecutiveFailures: 5,
	MaxTotalTokens:         0,
}

// Violation represents a specific breach of the budget.
type Violation struct {
	Rule    string
	Message string
	Fatal   bool
}

// Guard enforces the budget.
type Guard struct {
	budget Budget
}

func New(b Budget) *Guard {
	return &Guard{budget: b}
}

// Budget returns the guard's current budget configuration.
func (g *Guard) Budget() Budget {
	return g.budget
}

// CheckEpisodes verifies the episode count is within limits.
func (g *Guard) CheckEpisodes(episodes int) *Violation {
	if g.budget.MaxEpisodes > 0 && episodes > g.budget.MaxEpisodes {
		return &Violation{Rule: "max_episodes", Message: fmt.Sprintf("episode limit exceeded: %d", episodes), Fatal: true}
	}
	return nil
}

// CheckTurns verifies a single episode's turn count.
func (g *Guard) CheckTurns(turns int) *Violation {
	if g.budget.MaxTurnsPerEpisode > 0 && turns > g.budget.MaxTurnsPerEpisode {
		return &Violation{Rule: "max_turns_per_episode", Message: fmt.Sprintf("turn limit exceeded: %d", turns), Fatal: true}
	}
	return nil
}

// CheckStoreSize verifies the record store has not grown past its cap.
func (g *Guard) CheckStoreSize(records int) *Violation {
	if g.budget.MaxStoreRecords > 0 && records > g.budget.MaxStoreRecords {
		return &Violation{Rule: "max_store_records", Message: fmt.Sprintf("store record limit exceeded: %d", records), Fatal: true}
	}
	return nil
}

// CheckFailures verifies consecutive decision-cycle failures.
func (g *Guard) CheckFailures(consecutive int) *Violation {
	if g.budget.MaxConsecutiveFailures > 0 && consecutive > g.budget.MaxConsecutiveFailures {
		return &Violation{Rule: "max_consecutive_failures", Message: fmt.Sprintf("consecutive failure limit exceeded: %d", consecutive), Fatal: true}
	}
	return nil
}

// CheckTokens verifies cumulative provider token usage.
func (g *Guard) CheckTokens(total int) *Violation {
	if g.budget.MaxTotalTokens > 0 && total > g.budget.MaxTotalTokens {
		return &Violation{Rule: "max_total_tokens", Message: fmt.Sprintf("token budget exceeded: %d", total), Fatal: true}
	}
	return nil
}
