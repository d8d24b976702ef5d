package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnemonlabs/mnemon/internal/respond"
)

var askCollection string

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from a stored memory collection",
	Long: `Ask embeds the question, retrieves the most similar memories from the
named collection, and generates an answer from them. Collections are
written by training and evaluation runs against a persistent backend.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runAsk(args[0])
	},
}

func init() {
	RootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&providerType, "provider", "p", "", "Model provider (openai, anthropic, gemini, ollama, cli, stub)")
	askCmd.Flags().StringVarP(&modelName, "model", "m", "", "Model name (default depends on provider)")
	askCmd.Flags().StringVar(&askCollection, "collection", "default", "Memory collection to query")
}

func runAsk(question string) {
	obs := newObserver()
	defer obs.Close()

	cfg := loadSettings(obs)
	storage := openStorage(obs)
	defer storage.Close()

	p, err := buildProvider(cfg, storage)
	if err != nil {
		obs.Log().Fatal().Err(err).Msg("Failed to initialize provider")
	}

	ctx := context.Background()
	vec, err := p.Embed(ctx, question)
	if err != nil {
		obs.Log().Fatal().Err(err).Msg("Failed to embed question")
	}

	coll, err := storage.Collection(askCollection)
	if err != nil {
		obs.Log().Fatal().Err(err).Msg("Failed to open collection")
	}
	retrieved, err := coll.Search(ctx, vec, cfg.Training.TopK)
	if err != nil {
		obs.Log().Fatal().Err(err).Msg("Retrieval failed")
	}

	answer, err := respond.NewLLMGenerator(p).Generate(ctx, question, time.Now().UTC(), retrieved)
	if err != nil {
		obs.Log().Error().Err(err).Msg("Answer generation failed")
		os.Exit(1)
	}
	fmt.Println(answer)
}
