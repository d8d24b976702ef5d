// Package judge grades generated answers against gold answers.
package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mnemonlabs/mnemon/internal/provider"
)

// ErrGradingFailed indicates the grader produced no usable verdict.
var ErrGradingFailed = errors.New("judge: grading failed")

const graderSystem = `You are an expert grader that determines if answers to questions match a gold standard answer`

const graderPrompt = `Question: %s
Gold answer: %s
Candidate answer: %s

Does the candidate answer convey the same information as the gold
answer? Respond with strict JSON and nothing else:
{"label": "CORRECT"} or {"label": "WRONG"}`

// Judge decides whether a generated answer matches the gold answer.
type Judge interface {
	Grade(ctx context.Context, question, golden, answer string) (bool, error)
}

// LLMJudge asks the chat model for a CORRECT/WRONG label.
type LLMJudge struct {
	provider provider.Provider
}

var _ Judge = (*LLMJudge)(nil)

func NewLLMJudge(p provider.Provider) *LLMJudge {
	return &LLMJudge{provider: p}
}

func (j *LLMJudge) Grade(ctx context.Context, question, golden, answer string) (bool, error) {
	resp, err := j.provider.Chat(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: graderSystem},
		{Role: provider.RoleUser, Content: fmt.Sprintf(graderPrompt, question, golden, answer)},
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrGradingFailed, err)
	}

	label, err := parseLabel(resp.Content)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(label, "CORRECT"), nil
}

// parseLabel tolerates prose and code fences around the JSON verdict.
func parseLabel(content string) (string, error) {
	raw := content
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}

	var verdict struct {
		Label string `json:"label"`
	}
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return "", fmt.Errorf("%w: %v", ErrGradingFailed, err)
	}
	if verdict.Label == "" {
		return "", fmt.Errorf("%w: missing label in %q", ErrGradingFailed, content)
	}
	return verdict.Label, nil
}
