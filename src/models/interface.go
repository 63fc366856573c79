// Package models wraps language-model providers behind one narrow interface.
// The engine never sees provider session state; it only issues prompts with a
// response schema and classifies the typed errors that come back.
package models

import (
	"context"
	"errors"
)

// Terminal call outcomes the engine distinguishes. Adapters wrap provider
// failures with these sentinels so callers can use errors.Is.
var (
	// ErrGuardrail means the model refused the content on safety grounds.
	ErrGuardrail = errors.New("models: content rejected by safety guardrail")
	// ErrContextOverflow means the prompt exceeded the model's window.
	ErrContextOverflow = errors.New("models: prompt exceeds context window")
	// ErrUnavailable means the capability cannot take calls right now.
	ErrUnavailable = errors.New("models: capability unavailable")
)

// UnavailableReason says why the capability is not usable.
type UnavailableReason string

const (
	ReasonNotEnabled         UnavailableReason = "not_enabled"
	ReasonDeviceNotSupported UnavailableReason = "device_not_supported"
	ReasonModelNotReady      UnavailableReason = "model_not_ready"
	ReasonOther              UnavailableReason = "other"
)

// Availability is a point-in-time answer from CheckAvailability.
type Availability struct {
	Available bool
	Reason    UnavailableReason
	Detail    string
}

// Available is the ready state.
func Available() Availability { return Availability{Available: true} }

// Unavailable builds an unavailable state with a reason.
func Unavailable(reason UnavailableReason, detail string) Availability {
	return Availability{Reason: reason, Detail: detail}
}

// StreamChunk is one increment of a streamed response.
type StreamChunk struct {
	Delta    string // newly generated text
	FullText string // set on the final chunk
	Done     bool
	Err      error
}

// Model is the inference capability. Respond blocks for the full response;
// RespondStream yields chunks on a channel that is closed after the final
// chunk. Streams are finite and not restartable.
type Model interface {
	Respond(ctx context.Context, prompt, schema string) (string, error)
	RespondStream(ctx context.Context, prompt, schema string) (<-chan StreamChunk, error)
	CheckAvailability(ctx context.Context) Availability
	// Prewarm is a best-effort latency hint; errors are swallowed.
	Prewarm(ctx context.Context)
	// Version identifies the underlying model for cache fingerprinting.
	Version() string
}

// singleChunkStream wraps a blocking response in the stream shape, for
// providers without native streaming support.
func singleChunkStream(text string, err error) <-chan StreamChunk {
	ch := make(chan StreamChunk, 1)
	if err != nil {
		ch <- StreamChunk{Err: err, Done: true}
	} else {
		ch <- StreamChunk{Delta: text, FullText: text, Done: true}
	}
	close(ch)
	return ch
}
