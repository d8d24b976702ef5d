// Package config handles YAML configuration loading, environment
// variable expansion, and validation for mnemon.
package config

import (
	"github.com/mnemonlabs/mnemon/internal/guard"
	"github.com/mnemonlabs/mnemon/internal/memory"
	"github.com/mnemonlabs/mnemon/internal/policy"
	"github.com/mnemonlabs/mnemon/internal/reward"
)

// Config is the top-level configuration structure, normally loaded
// from mnemon.yaml.
type Config struct {
	Training TrainingConfig `yaml:"training"`
	Policy   PolicyConfig   `yaml:"policy"`
	Reward   RewardConfig   `yaml:"reward"`
	Store    StoreConfig    `yaml:"store"`
	Provider ProviderConfig `yaml:"provider"`
	Guard    guard.Budget   `yaml:"guard"`
}

// TrainingConfig controls the training loop.
type TrainingConfig struct {
	// Epochs is the number of passes over the training dialogues.
	Epochs int `yaml:"epochs"`

	// BatchSize is the number of episodes per policy update.
	BatchSize int `yaml:"batch_size"`

	// TopK is the retrieval depth per candidate fact.
	TopK int `yaml:"topk"`

	// Split is the train fraction used when a corpus is split.
	Split float64 `yaml:"split"`
}

// PolicyConfig selects and parameterizes the decision policy.
type PolicyConfig struct {
	// Name must match a registered policy (e.g. "softmax").
	Name string `yaml:"name"`

	LearningRate float64 `yaml:"learning_rate"`
	Gamma        float64 `yaml:"gamma"`
	Epsilon      float64 `yaml:"epsilon"`
	EpsilonDecay float64 `yaml:"epsilon_decay"`
	EpsilonMin   float64 `yaml:"epsilon_min"`
	Clip         float64 `yaml:"clip"`

	// Seed fixes the exploration RNG; zero seeds from the clock.
	Seed int64 `yaml:"seed"`
}

// RewardConfig mirrors reward.Config for YAML.
type RewardConfig struct {
	Thresholds ThresholdsConfig `yaml:"thresholds"`

	BaseAdd    float64 `yaml:"base_add"`
	BaseUpdate float64 `yaml:"base_update"`
	BaseDelete float64 `yaml:"base_delete"`
	BaseNone   float64 `yaml:"base_none"`

	InfoGainScale        float64 `yaml:"info_gain_scale"`
	DuplicatePenalty     float64 `yaml:"duplicate_penalty"`
	ContradictionPenalty float64 `yaml:"contradiction_penalty"`
	UpdateBonus          float64 `yaml:"update_bonus"`
	DeleteBonus          float64 `yaml:"delete_bonus"`
	MissedInfoPenalty    float64 `yaml:"missed_info_penalty"`
	CorrectIgnoreBonus   float64 `yaml:"correct_ignore_bonus"`
	NoChangePenalty      float64 `yaml:"no_change_penalty"`
	IrrelevancePenalty   float64 `yaml:"irrelevance_penalty"`
}

// ThresholdsConfig carries the shared similarity boundaries.
type ThresholdsConfig struct {
	Redundancy   float64 `yaml:"redundancy"`
	Duplicate    float64 `yaml:"duplicate"`
	LowRelevance float64 `yaml:"low_relevance"`
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	// Backend is one of sqlite, chromem, memory.
	Backend string `yaml:"backend"`

	// DataDir overrides the default ~/.mnemon data directory.
	DataDir string `yaml:"data_dir"`
}

// ProviderConfig selects the model provider. API keys are not
// configured here; they come from the encrypted credential store or
// the environment.
type ProviderConfig struct {
	// Name is one of openai, anthropic, gemini, ollama, cli, stub.
	Name string `yaml:"name"`

	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`

	// Dimensions is the embedding width requested from the provider.
	Dimensions int `yaml:"dimensions"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		Training: TrainingConfig{Epochs: 10, BatchSize: 10, TopK: 5, Split: 0.8},
		Policy: PolicyConfig{
			Name:         "softmax",
			LearningRate: 0.1,
			Gamma:        0.95,
			Epsilon:      0.2,
			EpsilonDecay: 0.95,
			EpsilonMin:   0.01,
			Clip:         0.2,
		},
		Reward:   defaultReward(),
		Store:    StoreConfig{Backend: "sqlite"},
		Provider: ProviderConfig{Name: "openai", Dimensions: 1536},
		Guard:    guard.DefaultBudget,
	}
}

func defaultReward() RewardConfig {
	d := reward.DefaultConfig()
	return RewardConfig{
		Thresholds: ThresholdsConfig{
			Redundancy:   d.Thresholds.Redundancy,
			Duplicate:    d.Thresholds.Duplicate,
			LowRelevance: d.Thresholds.LowRelevance,
		},
		BaseAdd:              d.BaseAdd,
		BaseUpdate:           d.BaseUpdate,
		BaseDelete:           d.BaseDelete,
		BaseNone:             d.BaseNone,
		InfoGainScale:        d.InfoGainScale,
		DuplicatePenalty:     d.DuplicatePenalty,
		ContradictionPenalty: d.ContradictionPenalty,
		UpdateBonus:          d.UpdateBonus,
		DeleteBonus:          d.DeleteBonus,
		MissedInfoPenalty:    d.MissedInfoPenalty,
		CorrectIgnoreBonus:   d.CorrectIgnoreBonus,
		NoChangePenalty:      d.NoChangePenalty,
		IrrelevancePenalty:   d.IrrelevancePenalty,
	}
}

// PolicyParams maps the policy section onto policy.Config.
func (c *Config) PolicyParams() policy.Config {
	return policy.Config{
		LearningRate: c.Policy.LearningRate,
		Gamma:        c.Policy.Gamma,
		Epsilon:      c.Policy.Epsilon,
		EpsilonDecay: c.Policy.EpsilonDecay,
		EpsilonMin:   c.Policy.EpsilonMin,
		Clip:         c.Policy.Clip,
		Seed:         c.Policy.Seed,
	}
}

// RewardParams maps the reward section onto reward.Config.
func (c *Config) RewardParams() reward.Config {
	return reward.Config{
		BaseAdd:              c.Reward.BaseAdd,
		BaseUpdate:           c.Reward.BaseUpdate,
		BaseDelete:           c.Reward.BaseDelete,
		BaseNone:             c.Reward.BaseNone,
		InfoGainScale:        c.Reward.InfoGainScale,
		DuplicatePenalty:     c.Reward.DuplicatePenalty,
		ContradictionPenalty: c.Reward.ContradictionPenalty,
		UpdateBonus:          c.Reward.UpdateBonus,
		DeleteBonus:          c.Reward.DeleteBonus,
		MissedInfoPenalty:    c.Reward.MissedInfoPenalty,
		CorrectIgnoreBonus:   c.Reward.CorrectIgnoreBonus,
		NoChangePenalty:      c.Reward.NoChangePenalty,
		IrrelevancePenalty:   c.Reward.IrrelevancePenalty,
		Thresholds:           c.Thresholds(),
	}
}

// Thresholds maps the shared similarity boundaries onto
// memory.Thresholds.
func (c *Config) Thresholds() memory.Thresholds {
	return memory.Thresholds{
		Redundancy:   c.Reward.Thresholds.Redundancy,
		Duplicate:    c.Reward.Thresholds.Duplicate,
		LowRelevance: c.Reward.Thresholds.LowRelevance,
	}
}
