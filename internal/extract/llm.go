package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mnemonlabs/mnemon/internal/memory"
	"github.com/mnemonlabs/mnemon/internal/observe"
	"github.com/mnemonlabs/mnemon/internal/provider"
)

const extractPrompt = `You extract long-term personal facts about the user from one
conversation turn. A fact is stable, user-specific information: a
preference, a biographical detail, a plan, a possession.

Respond with strict JSON and nothing else:
{"facts": ["<one concise fact>"]}

Use at most one fact. If the turn carries no long-term information,
respond with {"facts": []}.`

const contradictPrompt = `You compare a new statement about a user against a stored memory.
Answer with exactly one word: YES if they cannot both be true, NO
otherwise.`

// LLMExtractor asks the chat model for facts using a strict JSON
// protocol and embeds the first one it returns.
type LLMExtractor struct {
	provider provider.Provider
}

var _ Extractor = (*LLMExtractor)(nil)

func NewLLMExtractor(p provider.Provider) *LLMExtractor {
	return &LLMExtractor{provider: p}
}

func (e *LLMExtractor) Extract(ctx context.Context, turn string) (*memory.CandidateFact, error) {
	resp, err := e.provider.Chat(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: extractPrompt},
		{Role: provider.RoleUser, Content: turn},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	facts, err := parseFacts(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	if len(facts) == 0 {
		return nil, nil
	}

	text := strings.TrimSpace(facts[0])
	if text == "" {
		return nil, nil
	}

	embedding, err := e.provider.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	return &memory.CandidateFact{
		Text:      text,
		Embedding: embedding,
	}, nil
}

// parseFacts accepts the raw model output, tolerating markdown fences
// and prose around the JSON object.
func parseFacts(content string) ([]string, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in %q", content)
	}

	var payload struct {
		Facts []string `json:"facts"`
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), &payload); err != nil {
		return nil, fmt.Errorf("malformed facts payload: %v", err)
	}
	return payload.Facts, nil
}

// LLMAnnotator asks the chat model whether a fact contradicts the most
// similar stored memory. Model failures degrade to "no contradiction"
// so a flaky endpoint cannot stall the decision cycle.
type LLMAnnotator struct {
	provider provider.Provider
	obs      *observe.Observer
	gate     float64
}

var _ memory.Annotator = (*LLMAnnotator)(nil)

// NewLLMAnnotator only consults the model for records at least
// LowRelevance-similar to the fact; anything below cannot conflict.
func NewLLMAnnotator(p provider.Provider, obs *observe.Observer, th memory.Thresholds) *LLMAnnotator {
	return &LLMAnnotator{
		provider: p,
		obs:      obs,
		gate:     th.LowRelevance,
	}
}

func (a *LLMAnnotator) Contradicts(ctx context.Context, fact memory.CandidateFact, top memory.Retrieved) bool {
	if top.Score < a.gate {
		return false
	}

	resp, err := a.provider.Chat(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: contradictPrompt},
		{Role: provider.RoleUser, Content: fmt.Sprintf("New statement: %s\nStored memory: %s", fact.Text, top.Record.Text)},
	})
	if err != nil {
		a.obs.Log().Warn().Err(err).Msg("contradiction check failed, assuming none")
		return false
	}

	verdict := strings.ToUpper(strings.TrimSpace(resp.Content))
	return strings.HasPrefix(verdict, "YES")
}
