package models

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	genai "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// ---------------------------- Google Gemini ----------------------------------

type GeminiModel struct {
	Client *genai.Client
	Model  string
}

func NewGeminiModel(ctx context.Context, model string) (*GeminiModel, error) {
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("missing GOOGLE_API_KEY or GEMINI_API_KEY")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}
	return &GeminiModel{Client: client, Model: model}, nil
}

func (g *GeminiModel) Version() string { return "gemini/" + g.Model }

func (g *GeminiModel) CheckAvailability(ctx context.Context) Availability {
	model := g.Client.GenerativeModel(g.Model)
	if _, err := model.Info(ctx); err != nil {
		return Unavailable(ReasonModelNotReady, err.Error())
	}
	return Available()
}

func (g *GeminiModel) Prewarm(context.Context) {}

func (g *GeminiModel) Respond(ctx context.Context, prompt, schema string) (string, error) {
	model := g.generativeModel(schema)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", classifyGeminiErr(err)
	}
	return geminiText(resp)
}

func (g *GeminiModel) RespondStream(ctx context.Context, prompt, schema string) (<-chan StreamChunk, error) {
	model := g.generativeModel(schema)
	iter := model.GenerateContentStream(ctx, genai.Text(prompt))

	ch := make(chan StreamChunk, 16)
	go func() {
		defer close(ch)
		var sb strings.Builder
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				ch <- StreamChunk{Done: true, FullText: sb.String()}
				return
			}
			if err != nil {
				ch <- StreamChunk{Done: true, FullText: sb.String(), Err: classifyGeminiErr(err)}
				return
			}
			text, err := geminiText(resp)
			if err != nil {
				ch <- StreamChunk{Done: true, FullText: sb.String(), Err: err}
				return
			}
			if text != "" {
				sb.WriteString(text)
				ch <- StreamChunk{Delta: text}
			}
		}
	}()

	return ch, nil
}

func (g *GeminiModel) generativeModel(schema string) *genai.GenerativeModel {
	model := g.Client.GenerativeModel(g.Model)
	if schema != "" {
		model.ResponseMIMEType = "application/json"
	}
	return model
}

func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("gemini: empty response")
	}
	cand := resp.Candidates[0]
	if cand.FinishReason == genai.FinishReasonSafety {
		return "", ErrGuardrail
	}
	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}

func classifyGeminiErr(err error) error {
	if err == nil {
		return nil
	}
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return fmt.Errorf("%w: %s", ErrGuardrail, err)
	}
	if strings.Contains(strings.ToLower(err.Error()), "token count") {
		return fmt.Errorf("%w: %s", ErrContextOverflow, err)
	}
	return err
}

var _ Model = (*GeminiModel)(nil)
