package commentary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/adsrocket/adsrocket/internal/breaker"
	"github.com/google/generative-ai-go/genai"
	"github.com/sony/gobreaker"
	"google.golang.org/api/option"
)

const systemInstruction = "You are a performance marketing analyst. Given Meta Ads results, " +
	"write three to five short sentences: name the strongest ad and why, flag any ad " +
	"that spends without converting, and suggest one concrete next step. " +
	"Use the numbers given. Do not invent metrics."

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("model returned no text")

// Summarizer writes commentary for a prepared context.
type Summarizer interface {
	Summarize(ctx context.Context, contextText string) (string, error)
}

type generateFunc func(ctx context.Context, prompt string) (string, error)

// Gemini is a Summarizer backed by the Gemini API. Calls go through a
// circuit breaker that opens after three failures in a row.
type Gemini struct {
	generate generateFunc
	breaker  *gobreaker.CircuitBreaker
	close    func() error
}

func NewGemini(ctx context.Context, apiKey string, model string) (*Gemini, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("gemini model is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	generative := client.GenerativeModel(model)
	generative.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}
	generate := func(ctx context.Context, prompt string) (string, error) {
		resp, err := generative.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return "", err
		}
		return responseText(resp), nil
	}

	g := newGemini(generate)
	g.close = client.Close
	return g, nil
}

func newGemini(generate generateFunc) *Gemini {
	return &Gemini{
		generate: generate,
		breaker:  breaker.New("gemini", nil),
		close:    func() error { return nil },
	}
}

func (g *Gemini) Summarize(ctx context.Context, contextText string) (string, error) {
	if strings.TrimSpace(contextText) == "" {
		return "", errors.New("commentary context is empty")
	}
	out, err := g.breaker.Execute(func() (interface{}, error) {
		text, err := g.generate(ctx, contextText)
		if err != nil {
			return nil, err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, ErrEmptyResponse
		}
		return text, nil
	})
	if err != nil {
		return "", fmt.Errorf("gemini summarize: %w", err)
	}
	return out.(string), nil
}

func (g *Gemini) Close() error {
	return g.close()
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		// The first candidate with content is the answer.
		if b.Len() > 0 {
			break
		}
	}
	return b.String()
}
