package models

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"
)

// ---------------------------- Ollama -----------------------------------------

// OllamaModel runs prompts against a local Ollama daemon. This is the
// on-device path: content never leaves the machine.
type OllamaModel struct {
	Client *ollama.Client
	Model  string
}

func NewOllamaModel(model string) (*OllamaModel, error) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}

	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid OLLAMA_HOST %q: %w", host, err)
	}

	httpClient := &http.Client{
		Timeout: 120 * time.Second,
	}

	return &OllamaModel{
		Client: ollama.NewClient(u, httpClient),
		Model:  model,
	}, nil
}

func (o *OllamaModel) Version() string { return "ollama/" + o.Model }

// CheckAvailability probes the daemon and the model without generating.
// A dead daemon is reported as not_enabled; a daemon missing the requested
// model as model_not_ready.
func (o *OllamaModel) CheckAvailability(ctx context.Context) Availability {
	if err := o.Client.Heartbeat(ctx); err != nil {
		return Unavailable(ReasonNotEnabled, err.Error())
	}
	if _, err := o.Client.Show(ctx, &ollama.ShowRequest{Model: o.Model}); err != nil {
		return Unavailable(ReasonModelNotReady, err.Error())
	}
	return Available()
}

// Prewarm asks the daemon to load the model with an empty generate call.
func (o *OllamaModel) Prewarm(ctx context.Context) {
	keep := &ollama.Duration{Duration: 5 * time.Minute}
	req := &ollama.GenerateRequest{Model: o.Model, KeepAlive: keep}
	_ = o.Client.Generate(ctx, req, func(ollama.GenerateResponse) error { return nil })
}

func (o *OllamaModel) Respond(ctx context.Context, prompt, schema string) (string, error) {
	var text strings.Builder
	req := o.request(prompt, schema, false)
	if err := o.Client.Generate(ctx, req, func(gr ollama.GenerateResponse) error {
		if gr.Response != "" {
			text.WriteString(gr.Response)
		}
		return nil
	}); err != nil {
		return "", classifyOllamaErr(err)
	}
	return text.String(), nil
}

// RespondStream leverages Ollama's native callback-based streaming.
func (o *OllamaModel) RespondStream(ctx context.Context, prompt, schema string) (<-chan StreamChunk, error) {
	req := o.request(prompt, schema, true)

	ch := make(chan StreamChunk, 16)
	go func() {
		defer close(ch)
		var sb strings.Builder
		err := o.Client.Generate(ctx, req, func(gr ollama.GenerateResponse) error {
			if gr.Response != "" {
				sb.WriteString(gr.Response)
				ch <- StreamChunk{Delta: gr.Response}
			}
			return nil
		})
		if err != nil {
			ch <- StreamChunk{Done: true, FullText: sb.String(), Err: classifyOllamaErr(err)}
			return
		}
		ch <- StreamChunk{Done: true, FullText: sb.String()}
	}()

	return ch, nil
}

func (o *OllamaModel) request(prompt, schema string, stream bool) *ollama.GenerateRequest {
	req := &ollama.GenerateRequest{
		Model:  o.Model,
		Prompt: prompt,
		Stream: &stream,
	}
	if schema != "" {
		if json.Valid([]byte(schema)) {
			req.Format = json.RawMessage(schema)
		} else {
			req.Format = json.RawMessage(`"json"`)
		}
	}
	return req
}

// classifyOllamaErr maps daemon failures onto the engine's error taxonomy.
// Ollama reports overflow and refusal only via message text.
func classifyOllamaErr(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context length") || strings.Contains(msg, "context window"):
		return fmt.Errorf("%w: %s", ErrContextOverflow, err)
	case strings.Contains(msg, "connection refused"):
		return fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	return err
}

var _ Model = (*OllamaModel)(nil)
