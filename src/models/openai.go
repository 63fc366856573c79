package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIModel is a remote provider adapter, used when the host opts into
// off-device summarization for development or testing.
type OpenAIModel struct {
	Client *openai.Client
	Model  string
}

func NewOpenAIModel(model string) *OpenAIModel {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_KEY") // fallback
	}
	return &OpenAIModel{Client: openai.NewClient(apiKey), Model: model}
}

func (o *OpenAIModel) Version() string { return "openai/" + o.Model }

func (o *OpenAIModel) CheckAvailability(ctx context.Context) Availability {
	if os.Getenv("OPENAI_API_KEY") == "" && os.Getenv("OPENAI_KEY") == "" {
		return Unavailable(ReasonNotEnabled, "no OpenAI API key configured")
	}
	if _, err := o.Client.ListModels(ctx); err != nil {
		return Unavailable(ReasonOther, err.Error())
	}
	return Available()
}

func (o *OpenAIModel) Prewarm(context.Context) {}

func (o *OpenAIModel) Respond(ctx context.Context, prompt, schema string) (string, error) {
	resp, err := o.Client.CreateChatCompletion(ctx, o.request(prompt, schema))
	if err != nil {
		return "", classifyOpenAIErr(err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from OpenAI")
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return "", ErrGuardrail
	}
	return choice.Message.Content, nil
}

func (o *OpenAIModel) RespondStream(ctx context.Context, prompt, schema string) (<-chan StreamChunk, error) {
	stream, err := o.Client.CreateChatCompletionStream(ctx, o.request(prompt, schema))
	if err != nil {
		return nil, classifyOpenAIErr(err)
	}

	ch := make(chan StreamChunk, 16)
	go func() {
		defer close(ch)
		defer stream.Close()
		var sb strings.Builder
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				ch <- StreamChunk{Done: true, FullText: sb.String()}
				return
			}
			if err != nil {
				ch <- StreamChunk{Done: true, FullText: sb.String(), Err: classifyOpenAIErr(err)}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			choice := resp.Choices[0]
			if choice.FinishReason == openai.FinishReasonContentFilter {
				ch <- StreamChunk{Done: true, FullText: sb.String(), Err: ErrGuardrail}
				return
			}
			if choice.Delta.Content != "" {
				sb.WriteString(choice.Delta.Content)
				ch <- StreamChunk{Delta: choice.Delta.Content}
			}
		}
	}()

	return ch, nil
}

func (o *OpenAIModel) request(prompt, schema string) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model: o.Model,
		Messages: []openai.ChatCompletionMessage{{
			Role:    openai.ChatMessageRoleUser,
			Content: prompt,
		}},
	}
	if schema != "" {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return req
}

func classifyOpenAIErr(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := fmt.Sprint(apiErr.Code)
		switch {
		case code == "context_length_exceeded":
			return fmt.Errorf("%w: %s", ErrContextOverflow, apiErr.Message)
		case code == "content_filter" || strings.Contains(strings.ToLower(apiErr.Message), "content management policy"):
			return fmt.Errorf("%w: %s", ErrGuardrail, apiErr.Message)
		}
	}
	return err
}

var _ Model = (*OpenAIModel)(nil)
