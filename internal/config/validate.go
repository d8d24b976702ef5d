package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mnemonlabs/mnemon/internal/policy"
)

var knownStores = []string{"sqlite", "chromem", "memory"}

var knownProviders = []string{"openai", "anthropic", "gemini", "ollama", "cli", "stub"}

// Validate checks the structural validity of a Config: positive loop
// sizes, probability-shaped policy parameters, ordered similarity
// thresholds, and known policy, store and provider names.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Training.Epochs < 1 {
		errs = append(errs, errors.New("config: training.epochs must be at least 1"))
	}
	if cfg.Training.BatchSize < 1 {
		errs = append(errs, errors.New("config: training.batch_size must be at least 1"))
	}
	if cfg.Training.TopK < 1 {
		errs = append(errs, errors.New("config: training.topk must be at least 1"))
	}
	if cfg.Training.Split < 0 || cfg.Training.Split > 1 {
		errs = append(errs, fmt.Errorf("config: training.split %v outside [0, 1]", cfg.Training.Split))
	}

	if names := policy.DefaultRegistry().Names(); !slices.Contains(names, cfg.Policy.Name) {
		errs = append(errs, fmt.Errorf("config: unknown policy %q (registered: %s)", cfg.Policy.Name, strings.Join(names, ", ")))
	}
	if cfg.Policy.LearningRate <= 0 {
		errs = append(errs, errors.New("config: policy.learning_rate must be positive"))
	}
	if cfg.Policy.Gamma <= 0 || cfg.Policy.Gamma > 1 {
		errs = append(errs, fmt.Errorf("config: policy.gamma %v outside (0, 1]", cfg.Policy.Gamma))
	}
	if cfg.Policy.Epsilon < 0 || cfg.Policy.Epsilon > 1 {
		errs = append(errs, fmt.Errorf("config: policy.epsilon %v outside [0, 1]", cfg.Policy.Epsilon))
	}
	if cfg.Policy.EpsilonDecay <= 0 || cfg.Policy.EpsilonDecay > 1 {
		errs = append(errs, fmt.Errorf("config: policy.epsilon_decay %v outside (0, 1]", cfg.Policy.EpsilonDecay))
	}
	if cfg.Policy.EpsilonMin < 0 || cfg.Policy.EpsilonMin > 1 {
		errs = append(errs, fmt.Errorf("config: policy.epsilon_min %v outside [0, 1]", cfg.Policy.EpsilonMin))
	}
	if cfg.Policy.Clip < 0 || cfg.Policy.Clip >= 1 {
		errs = append(errs, fmt.Errorf("config: policy.clip %v outside [0, 1)", cfg.Policy.Clip))
	}

	th := cfg.Reward.Thresholds
	if th.LowRelevance < 0 || th.LowRelevance >= th.Redundancy {
		errs = append(errs, fmt.Errorf("config: reward.thresholds.low_relevance %v must sit in [0, redundancy)", th.LowRelevance))
	}
	if th.Redundancy >= th.Duplicate {
		errs = append(errs, fmt.Errorf("config: reward.thresholds.redundancy %v must sit below duplicate %v", th.Redundancy, th.Duplicate))
	}
	if th.Duplicate > 1 {
		errs = append(errs, fmt.Errorf("config: reward.thresholds.duplicate %v above 1", th.Duplicate))
	}

	if !slices.Contains(knownStores, cfg.Store.Backend) {
		errs = append(errs, fmt.Errorf("config: unknown store backend %q (supported: %s)", cfg.Store.Backend, strings.Join(knownStores, ", ")))
	}
	if !slices.Contains(knownProviders, cfg.Provider.Name) {
		errs = append(errs, fmt.Errorf("config: unknown provider %q (supported: %s)", cfg.Provider.Name, strings.Join(knownProviders, ", ")))
	}
	if cfg.Provider.Dimensions < 1 {
		errs = append(errs, errors.New("config: provider.dimensions must be at least 1"))
	}

	errs = append(errs, validateGuard(cfg)...)

	return errors.Join(errs...)
}

func validateGuard(cfg *Config) []error {
	var errs []error
	limits := map[string]int{
		"guard.max_episodes":             cfg.Guard.MaxEpisodes,
		"guard.max_turns_per_episode":    cfg.Guard.MaxTurnsPerEpisode,
		"guard.max_store_records":        cfg.Guard.MaxStoreRecords,
		"guard.max_consecutive_failures": cfg.Guard.MaxConsecutiveFailures,
		"guard.max_total_tokens":         cfg.Guard.MaxTotalTokens,
	}
	for name, v := range limits {
		if v < 0 {
			errs = append(errs, fmt.Errorf("config: %s must not be negative", name))
		}
	}
	return errs
}
