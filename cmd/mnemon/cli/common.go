package cli

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mnemonlabs/mnemon/internal/config"
	"github.com/mnemonlabs/mnemon/internal/corpus"
	"github.com/mnemonlabs/mnemon/internal/credential"
	"github.com/mnemonlabs/mnemon/internal/observe"
	"github.com/mnemonlabs/mnemon/internal/provider"
	"github.com/mnemonlabs/mnemon/internal/store"
)

func newObserver() *observe.Observer {
	if ciMode {
		return observe.NewJSON(os.Stdout, verbose)
	}
	return observe.New(os.Stdout, verbose)
}

// mnemonDir resolves the data directory: --data-dir first, then
// ~/.mnemon.
func mnemonDir() string {
	if dataDir != "" {
		return dataDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".mnemon")
}

// openStorage opens the metadata database. Runs, checkpoints and
// configuration always live in sqlite regardless of the record store
// backend.
func openStorage(obs *observe.Observer) *store.SQLiteStore {
	dir := mnemonDir()
	storage, err := store.NewSQLiteStore(
		filepath.Join(dir, "metadata.db"),
		filepath.Join(dir, "checkpoints"),
	)
	if err != nil {
		obs.Log().Fatal().Err(err).Msg("Failed to init store")
	}
	return storage
}

// getStorage is openStorage for commands that have no observer.
func getStorage() *store.SQLiteStore {
	dir := mnemonDir()
	storage, err := store.NewSQLiteStore(
		filepath.Join(dir, "metadata.db"),
		filepath.Join(dir, "checkpoints"),
	)
	if err != nil {
		fmt.Printf("Failed to init store: %v\n", err)
		os.Exit(1)
	}
	return storage
}

// loadSettings loads the configuration file, layers command-line
// overrides on top, and validates the result.
func loadSettings(obs *observe.Observer) *config.Config {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			obs.Log().Fatal().Err(err).Msg("Failed to load config")
		}
		cfg = loaded
	}

	if providerType != "" {
		cfg.Provider.Name = providerType
	}
	if modelName != "" {
		cfg.Provider.Model = modelName
	}
	if storeBackend != "" {
		cfg.Store.Backend = storeBackend
	}
	if seed != 0 {
		cfg.Policy.Seed = seed
	}

	if err := config.Validate(cfg); err != nil {
		obs.Log().Fatal().Err(err).Msg("Invalid configuration")
	}
	return cfg
}

// loadDialogues loads a corpus glob, or the built-in sample corpus
// when no pattern is given. Invalid dialogues abort; lint warnings are
// logged and the dialogue stays in.
func loadDialogues(obs *observe.Observer, pattern string) []corpus.Dialogue {
	if pattern == "" {
		obs.Log().Warn().Msg("no corpus given, using the built-in sample corpus")
		return corpus.Sample()
	}
	dialogues, err := corpus.LoadGlob(pattern)
	if err != nil {
		obs.Log().Fatal().Err(err).Msg("Failed to load corpus")
	}
	for _, d := range dialogues {
		res := d.Validate()
		if !res.Valid {
			obs.Log().Fatal().Str("dialogue", d.ID).Str("errors", strings.Join(res.Errors, ", ")).Msg("Invalid dialogue")
		}
		for _, w := range res.Warnings {
			obs.Log().Warn().Str("dialogue", d.ID).Msg(w)
		}
	}
	return dialogues
}

// buildProvider constructs the configured provider. API keys come from
// the encrypted credential vault via the config table, with the
// provider's conventional environment variable as fallback.
func buildProvider(cfg *config.Config, storage store.Storage) (provider.Provider, error) {
	apiKey := func(name, env string) string {
		stored, _ := storage.GetConfig(credential.ConfigKey(name))
		if stored != "" {
			if vault, err := credential.NewVault(); err == nil {
				if opened, err := vault.Open(stored); err == nil && opened != "" {
					return opened
				}
			}
		}
		return os.Getenv(env)
	}

	switch cfg.Provider.Name {
	case "openai":
		return provider.NewOpenAIProvider(apiKey("openai", "OPENAI_API_KEY"), cfg.Provider.BaseURL, cfg.Provider.Model, cfg.Provider.Dimensions)
	case "anthropic":
		p, err := provider.NewAnthropicProvider(apiKey("anthropic", "ANTHROPIC_API_KEY"), cfg.Provider.Model)
		if err != nil {
			return nil, err
		}
		if cfg.Provider.BaseURL != "" {
			p.SetBaseURL(cfg.Provider.BaseURL)
		}
		return p, nil
	case "gemini":
		return provider.NewGeminiProvider(apiKey("gemini", "GEMINI_API_KEY"), cfg.Provider.Model)
	case "ollama":
		return provider.NewOllamaProvider(cfg.Provider.Model)
	case "cli":
		return detectCLIProvider(storage)
	case "stub":
		return provider.NewStubProvider(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider.Name)
	}
}

func detectCLIProvider(s store.Storage) (provider.Provider, error) {
	// Configured path wins
	cliPath, _ := s.GetConfig("provider.cli.path")
	if cliPath != "" {
		return provider.NewCLIProvider(cliPath, []string{})
	}

	// Auto-detect common tools
	tools := []string{"claude", "codex", "gemini", "llm"}
	for _, t := range tools {
		path, err := exec.LookPath(t)
		if err == nil {
			return provider.NewCLIProvider(path, []string{})
		}
	}

	return nil, fmt.Errorf("no local CLI agents detected (tried claude, codex, gemini, llm)")
}
