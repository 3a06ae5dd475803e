package commentary

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
)

func TestSummarizeTrimsModelText(t *testing.T) {
	t.Parallel()

	var prompts []string
	g := newGemini(func(_ context.Context, prompt string) (string, error) {
		prompts = append(prompts, prompt)
		return "  Ad a1 leads.\n", nil
	})

	text, err := g.Summarize(context.Background(), "context")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if text != "Ad a1 leads." {
		t.Fatalf("unexpected text %q", text)
	}
	if len(prompts) != 1 || prompts[0] != "context" {
		t.Fatalf("unexpected prompts %v", prompts)
	}
}

func TestSummarizeEmptyResponseIsError(t *testing.T) {
	t.Parallel()

	g := newGemini(func(context.Context, string) (string, error) { return " ", nil })
	if _, err := g.Summarize(context.Background(), "context"); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestSummarizeRejectsEmptyContext(t *testing.T) {
	t.Parallel()

	called := false
	g := newGemini(func(context.Context, string) (string, error) {
		called = true
		return "x", nil
	})
	if _, err := g.Summarize(context.Background(), "  "); err == nil {
		t.Fatal("expected error")
	}
	if called {
		t.Fatal("model should not be called")
	}
}

func TestSummarizeBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	g := newGemini(func(context.Context, string) (string, error) {
		calls++
		return "", errors.New("upstream 500")
	})
	for i := 0; i < 3; i++ {
		if _, err := g.Summarize(context.Background(), "context"); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	_, err := g.Summarize(context.Background(), "context")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 upstream calls, got %d", calls)
	}
}

func TestResponseTextUsesFirstCandidateWithText(t *testing.T) {
	t.Parallel()

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: nil},
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("one "), genai.Text("two")}}},
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("ignored")}}},
		},
	}
	if got := responseText(resp); got != "one two" {
		t.Fatalf("unexpected text %q", got)
	}
	if got := responseText(nil); got != "" {
		t.Fatalf("expected empty text, got %q", got)
	}
}

func TestNewGeminiRequiresKey(t *testing.T) {
	t.Parallel()

	if _, err := NewGemini(context.Background(), "", "gemini-1.5-flash"); err == nil {
		t.Fatal("expected error")
	}
}
