package models

import (
	"context"
	"fmt"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicModel adapts Anthropic's Messages API. The API has no JSON-schema
// response mode, so the schema travels inline in the prompt and streaming is
// served as a single terminal chunk.
type AnthropicModel struct {
	Client    *anthropic.Client
	Model     string
	MaxTokens int
}

// NewAnthropicModel constructs a client. It reads ANTHROPIC_API_KEY from the env.
func NewAnthropicModel(model string) *AnthropicModel {
	key := os.Getenv("ANTHROPIC_API_KEY")
	cl := anthropic.NewClient(
		anthropicopt.WithAPIKey(key),
	)
	return &AnthropicModel{
		Client:    &cl,
		Model:     model,
		MaxTokens: 1024,
	}
}

func (a *AnthropicModel) Version() string { return "anthropic/" + a.Model }

func (a *AnthropicModel) CheckAvailability(context.Context) Availability {
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		return Unavailable(ReasonNotEnabled, "no Anthropic API key configured")
	}
	return Available()
}

func (a *AnthropicModel) Prewarm(context.Context) {}

func (a *AnthropicModel) Respond(ctx context.Context, prompt, schema string) (string, error) {
	fullPrompt := prompt
	if schema != "" {
		fullPrompt = fmt.Sprintf("%s\n\nRespond with a single JSON object matching this schema:\n%s", prompt, schema)
	}

	msg, err := a.Client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.Model),
		MaxTokens: int64(a.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(fullPrompt)),
		},
	})
	if err != nil {
		return "", classifyAnthropicErr(err)
	}
	if string(msg.StopReason) == "refusal" {
		return "", ErrGuardrail
	}

	var b strings.Builder
	for _, cb := range msg.Content {
		if tb, ok := cb.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	return b.String(), nil
}

func (a *AnthropicModel) RespondStream(ctx context.Context, prompt, schema string) (<-chan StreamChunk, error) {
	text, err := a.Respond(ctx, prompt, schema)
	return singleChunkStream(text, err), nil
}

func classifyAnthropicErr(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "prompt is too long") || strings.Contains(msg, "max_tokens"):
		return fmt.Errorf("%w: %s", ErrContextOverflow, err)
	}
	return err
}

var _ Model = (*AnthropicModel)(nil)
