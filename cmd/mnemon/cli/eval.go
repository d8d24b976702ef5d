package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var (
	checkpointID string
	judgeKind    string
	judgePlugin  string
	evalWorkers  int
)

var evalCmd = &cobra.Command{
	Use:   "eval [corpus-glob]",
	Short: "Evaluate a trained policy on held-out dialogues",
	Long: `Eval replays each dialogue greedily (exploration pinned to zero),
answers its probe question from the memories the policy kept, and
grades the answer against the gold answer.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		pattern := ""
		if len(args) > 0 {
			pattern = args[0]
		}
		runEvaluation(pattern)
	},
}

func init() {
	RootCmd.AddCommand(evalCmd)
	evalCmd.Flags().StringVarP(&providerType, "provider", "p", "", "Model provider (openai, anthropic, gemini, ollama, cli, stub)")
	evalCmd.Flags().StringVarP(&modelName, "model", "m", "", "Model name (default depends on provider)")
	evalCmd.Flags().StringVar(&storeBackend, "store", "", "Record store backend (sqlite, chromem, memory)")
	evalCmd.Flags().StringVar(&checkpointID, "checkpoint", "", "Checkpoint id to load before evaluating")
	evalCmd.Flags().StringVar(&resumeRun, "run", "", "Load the latest checkpoint of this run")
	evalCmd.Flags().StringVar(&judgeKind, "judge", "llm", "Grader: llm or plugin")
	evalCmd.Flags().StringVar(&judgePlugin, "judge-plugin", "", "Path to a judge plugin binary")
	evalCmd.Flags().IntVar(&evalWorkers, "workers", 1, "Dialogues evaluated in parallel")
}

func runEvaluation(pattern string) {
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
	runner.Checkpoint = checkpointID
	runner.Resume = resumeRun
	runner.JudgeKind = judgeKind
	runner.JudgePlugin = judgePlugin
	runner.Workers = evalWorkers

	if err := runner.Evaluate(context.Background(), dialogues); err != nil {
		os.Exit(1)
	}
}
