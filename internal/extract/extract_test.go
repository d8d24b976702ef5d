package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/mnemonlabs/mnemon/internal/memory"
	"github.com/mnemonlabs/mnemon/internal/observe"
	"github.com/mnemonlabs/mnemon/internal/provider"
)

// failingProvider errors on every call.
type failingProvider struct{}

func (failingProvider) Chat(context.Context, []provider.Message) (*provider.Response, error) {
	return nil, fmt.Errorf("chat down")
}

func (failingProvider) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("embed down")
}

func (failingProvider) Name() string { return "failing" }

func TestStaticExtractor(t *testing.T) {
	ctx := context.Background()
	e := NewStaticExtractor(provider.NewStubProvider())

	t.Run("passes the utterance through", func(t *testing.T) {
		fact, err := e.Extract(ctx, "I really love coffee in the morning")
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if fact == nil {
			t.Fatal("expected a fact")
		}
		if fact.Text != "I really love coffee in the morning" {
			t.Errorf("unexpected fact text %q", fact.Text)
		}
		if len(fact.Embedding) == 0 {
			t.Error("expected an embedding")
		}
	})

	t.Run("skips chatter", func(t *testing.T) {
		for _, turn := range []string{"", "ok", "thanks a"} {
			fact, err := e.Extract(ctx, turn)
			if err != nil {
				t.Fatalf("Extract(%q) failed: %v", turn, err)
			}
			if fact != nil {
				t.Errorf("Extract(%q) should yield no fact, got %q", turn, fact.Text)
			}
		}
	})

	t.Run("embed failure", func(t *testing.T) {
		broken := NewStaticExtractor(failingProvider{})
		_, err := broken.Extract(ctx, "I really love coffee in the morning")
		if !errors.Is(err, ErrExtractionFailed) {
			t.Errorf("expected ErrExtractionFailed, got %v", err)
		}
	})
}

func TestLLMExtractor(t *testing.T) {
	ctx := context.Background()

	t.Run("extracts the first fact", func(t *testing.T) {
		e := NewLLMExtractor(provider.NewStubProvider(`{"facts": ["user likes coffee", "user is tired"]}`))
		fact, err := e.Extract(ctx, "user: I need my coffee before work")
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if fact == nil || fact.Text != "user likes coffee" {
			t.Fatalf("expected the first fact, got %+v", fact)
		}
		if len(fact.Embedding) == 0 {
			t.Error("expected an embedding")
		}
	})

	t.Run("tolerates fenced output", func(t *testing.T) {
		e := NewLLMExtractor(provider.NewStubProvider("```json\n{\"facts\": [\"user plays tennis\"]}\n```"))
		fact, err := e.Extract(ctx, "user: tennis again this weekend")
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if fact == nil || fact.Text != "user plays tennis" {
			t.Fatalf("expected fenced JSON to parse, got %+v", fact)
		}
	})

	t.Run("no facts means no decision", func(t *testing.T) {
		e := NewLLMExtractor(provider.NewStubProvider(`{"facts": []}`))
		fact, err := e.Extract(ctx, "user: hello there")
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if fact != nil {
			t.Errorf("expected no fact, got %q", fact.Text)
		}
	})

	t.Run("garbage output", func(t *testing.T) {
		e := NewLLMExtractor(provider.NewStubProvider("sure! here are the facts"))
		_, err := e.Extract(ctx, "user: hello")
		if !errors.Is(err, ErrExtractionFailed) {
			t.Errorf("expected ErrExtractionFailed, got %v", err)
		}
	})

	t.Run("provider failure", func(t *testing.T) {
		e := NewLLMExtractor(failingProvider{})
		_, err := e.Extract(ctx, "user: hello")
		if !errors.Is(err, ErrExtractionFailed) {
			t.Errorf("expected ErrExtractionFailed, got %v", err)
		}
	})
}

func TestLLMAnnotator(t *testing.T) {
	ctx := context.Background()
	obs := observe.New(io.Discard, false)
	th := memory.DefaultThresholds()

	fact := memory.CandidateFact{Text: "user likes coffee, not tea"}
	top := memory.Retrieved{Record: memory.Record{Text: "user likes tea"}, Score: 0.9}

	t.Run("yes verdict", func(t *testing.T) {
		a := NewLLMAnnotator(provider.NewStubProvider("YES"), obs, th)
		if !a.Contradicts(ctx, fact, top) {
			t.Error("expected a contradiction")
		}
	})

	t.Run("no verdict", func(t *testing.T) {
		a := NewLLMAnnotator(provider.NewStubProvider("NO"), obs, th)
		if a.Contradicts(ctx, fact, top) {
			t.Error("expected no contradiction")
		}
	})

	t.Run("below the relevance gate the model is never asked", func(t *testing.T) {
		a := NewLLMAnnotator(failingProvider{}, obs, th)
		far := memory.Retrieved{Record: memory.Record{Text: "user plays tennis"}, Score: 0.05}
		if a.Contradicts(ctx, fact, far) {
			t.Error("expected no contradiction below the gate")
		}
	})

	t.Run("model failure degrades to false", func(t *testing.T) {
		a := NewLLMAnnotator(failingProvider{}, obs, th)
		if a.Contradicts(ctx, fact, top) {
			t.Error("failures must degrade to no contradiction")
		}
	})
}
