package judge

import (
	"context"
	"errors"
	"testing"

	"github.com/mnemonlabs/mnemon/internal/provider"
)

func TestLLMJudge(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    bool
		wantErr bool
	}{
		{name: "correct", reply: `{"label": "CORRECT"}`, want: true},
		{name: "wrong", reply: `{"label": "WRONG"}`, want: false},
		{name: "lowercase label", reply: `{"label": "correct"}`, want: true},
		{name: "fenced verdict", reply: "```json\n{\"label\": \"CORRECT\"}\n```", want: true},
		{name: "prose around verdict", reply: `The answers match. {"label": "CORRECT"}`, want: true},
		{name: "no json", reply: "CORRECT", wantErr: true},
		{name: "missing label", reply: `{"reason": "close enough"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := NewLLMJudge(provider.NewStubProvider(tt.reply))
			got, err := j.Grade(context.Background(), "What drink?", "coffee", "They like coffee.")
			if tt.wantErr {
				if !errors.Is(err, ErrGradingFailed) {
					t.Fatalf("expected ErrGradingFailed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Grade failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("provider failure", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		j := NewLLMJudge(provider.NewStubProvider("unused"))
		if _, err := j.Grade(ctx, "q", "gold", "answer"); !errors.Is(err, ErrGradingFailed) {
			t.Errorf("expected ErrGradingFailed, got %v", err)
		}
	})
}
