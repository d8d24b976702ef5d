package cli

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/mnemonlabs/mnemon/internal/ui"
	"github.com/mnemonlabs/mnemon/internal/ui/tui"
)

var (
	configPath   string
	dataDir      string
	verbose      bool
	ciMode       bool
	providerType string
	modelName    string
	storeBackend string
	seed         int64
	resumeRun    string
	interactive  bool
	llmAnnotator bool
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "mnemon",
	Short: "Trainable memory-action engine for dialogue agents",
	Long: `Mnemon learns which memory mutation (ADD, UPDATE, DELETE, NONE) to take
for each fact extracted from a conversation, using a GRPO-style
policy-gradient loop over dialogue corpora.`,
}

var trainCmd = &cobra.Command{
	Use:   "train [corpus-glob]",
	Short: "Train the action policy on a dialogue corpus",
	Long: `Train replays each dialogue as an episode: extract a fact per turn,
retrieve similar memories, decide, mutate the store, score the decision.
Without a corpus glob the built-in sample corpus is used.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pattern := ""
		if len(args) > 0 {
			pattern = args[0]
		}
		runTraining(pattern)
	},
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to mnemon.yaml (defaults apply when omitted)")
	RootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default ~/.mnemon)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	RootCmd.PersistentFlags().BoolVar(&ciMode, "ci", false, "CI mode: JSON logs, non-interactive")

	RootCmd.AddCommand(trainCmd)
	trainCmd.Flags().StringVarP(&providerType, "provider", "p", "", "Model provider (openai, anthropic, gemini, ollama, cli, stub)")
	trainCmd.Flags().StringVarP(&modelName, "model", "m", "", "Model name (default depends on provider)")
	trainCmd.Flags().StringVar(&storeBackend, "store", "", "Record store backend (sqlite, chromem, memory)")
	trainCmd.Flags().Int64Var(&seed, "seed", 0, "Seed for exploration and shuffling (0 seeds from the clock)")
	trainCmd.Flags().StringVar(&resumeRun, "resume", "", "Resume from the latest checkpoint of a run")
	trainCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Show the training dashboard")
	trainCmd.Flags().BoolVar(&llmAnnotator, "llm-annotator", false, "Detect contradictions with the chat model instead of negation cues")
}

func runTraining(pattern string) {
	obs := newObserver()
	defer obs.Close()

	cfg := loadSettings(obs)
	storage := openStorage(obs)
	defer storage.Close()

	p, err := buildProvider(cfg, storage)
	if err != nil {
		obs.Log().Fatal().Err(err).Msg("Failed to initialize provider")
	}

	dialogues := loadDialogues(obs, pattern)
	runner := NewRunner(obs, storage, p, cfg)
	runner.Resume = resumeRun

	if interactive && !ciMode {
		total := cfg.Training.Epochs * len(dialogues)
		model := tui.NewModel("mnemon training", total)
		program := tea.NewProgram(model)
		runner.UI = tui.NewTUI(program)

		go func() {
			_ = runner.Train(context.Background(), dialogues)
			program.Quit()
		}()

		if _, err := program.Run(); err != nil {
			fmt.Printf("dashboard error: %v\n", err)
			os.Exit(1)
		}
	} else {
		runner.UI = ui.SilentUI{}
		if err := runner.Train(context.Background(), dialogues); err != nil {
			os.Exit(1)
		}
	}
}
