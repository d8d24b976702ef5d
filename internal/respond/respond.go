// Package respond answers user questions from retrieved memories.
package respond

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mnemonlabs/mnemon/internal/corpus"
	"github.com/mnemonlabs/mnemon/internal/memory"
	"github.com/mnemonlabs/mnemon/internal/provider"
)

// ErrGenerationFailed indicates the chat model could not produce an answer.
var ErrGenerationFailed = errors.New("respond: generation failed")

const answerPrompt = `You answer a question about a user from their stored memories.
Each memory line reads "- <created at>: <text>". Rely only on the
memories: when they conflict, trust the most recently created one, and
when they do not contain the answer, say you do not know. Keep the
answer short and direct.`

// Generator produces an answer to a question from retrieved memories.
type Generator interface {
	Generate(ctx context.Context, question string, askedAt time.Time, memories []memory.Retrieved) (string, error)
}

// LLMGenerator renders retrieved memories into a dated context block
// and asks the chat model for the answer.
type LLMGenerator struct {
	provider provider.Provider
}

var _ Generator = (*LLMGenerator)(nil)

func NewLLMGenerator(p provider.Provider) *LLMGenerator {
	return &LLMGenerator{provider: p}
}

func (g *LLMGenerator) Generate(ctx context.Context, question string, askedAt time.Time, memories []memory.Retrieved) (string, error) {
	var sb strings.Builder
	sb.WriteString("Memories:\n")
	sb.WriteString(ContextLines(memories))
	sb.WriteString("\n\n")
	if askedAt.IsZero() {
		fmt.Fprintf(&sb, "Question: %s", question)
	} else {
		fmt.Fprintf(&sb, "Question (asked %s): %s", askedAt.UTC().Format(corpus.DateLayout), question)
	}

	resp, err := g.provider.Chat(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: answerPrompt},
		{Role: provider.RoleUser, Content: sb.String()},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	return strings.TrimSpace(resp.Content), nil
}

// ContextLines renders memories as "- <created at>: <text>" lines in
// retrieval order, or "(none)" when nothing was retrieved.
func ContextLines(memories []memory.Retrieved) string {
	if len(memories) == 0 {
		return "(none)"
	}
	lines := make([]string, 0, len(memories))
	for _, m := range memories {
		lines = append(lines, fmt.Sprintf("- %s: %s", m.Record.CreatedAt.UTC().Format(corpus.DateLayout), m.Record.Text))
	}
	return strings.Join(lines, "\n")
}
