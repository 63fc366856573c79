package models

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
)

// ScriptedModel is a deterministic in-memory Model for tests and offline
// development. Responses are served in order; when the script runs out the
// last entry repeats.
type ScriptedModel struct {
	mu        sync.Mutex
	responses []string
	errs      []error

	// AvailableAfter makes the first N availability polls report
	// model_not_ready, mimicking a model that is still loading.
	AvailableAfter int

	calls  int32
	checks int32
}

// NewScriptedModel seeds the script with responses served one per call.
func NewScriptedModel(responses ...string) *ScriptedModel {
	return &ScriptedModel{responses: responses}
}

// Script appends a response/error pair to the script.
func (s *ScriptedModel) Script(response string, err error) *ScriptedModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, response)
	for len(s.errs) < len(s.responses)-1 {
		s.errs = append(s.errs, nil)
	}
	s.errs = append(s.errs, err)
	return s
}

// Calls reports how many generation calls have been made.
func (s *ScriptedModel) Calls() int { return int(atomic.LoadInt32(&s.calls)) }

// Checks reports how many availability polls have been made.
func (s *ScriptedModel) Checks() int { return int(atomic.LoadInt32(&s.checks)) }

func (s *ScriptedModel) Version() string { return "scripted/v1" }

func (s *ScriptedModel) CheckAvailability(context.Context) Availability {
	n := atomic.AddInt32(&s.checks, 1)
	if int(n) <= s.AvailableAfter {
		return Unavailable(ReasonModelNotReady, "still loading")
	}
	return Available()
}

func (s *ScriptedModel) Prewarm(context.Context) {}

func (s *ScriptedModel) next() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := int(atomic.AddInt32(&s.calls, 1)) - 1
	if len(s.responses) == 0 {
		return "", nil
	}
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	var err error
	if idx < len(s.errs) {
		err = s.errs[idx]
	}
	return s.responses[idx], err
}

func (s *ScriptedModel) Respond(ctx context.Context, prompt, schema string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp, err := s.next()
	if err != nil {
		return "", err
	}
	return resp, nil
}

// RespondStream replays the scripted response in small fixed-size deltas so
// consumers exercise real partial-merge behavior.
func (s *ScriptedModel) RespondStream(ctx context.Context, prompt, schema string) (<-chan StreamChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, scriptErr := s.next()

	ch := make(chan StreamChunk, 16)
	go func() {
		defer close(ch)
		if scriptErr != nil {
			ch <- StreamChunk{Done: true, Err: scriptErr}
			return
		}
		const deltaSize = 24
		var sb strings.Builder
		for start := 0; start < len(resp); start += deltaSize {
			end := start + deltaSize
			if end > len(resp) {
				end = len(resp)
			}
			delta := resp[start:end]
			sb.WriteString(delta)
			select {
			case <-ctx.Done():
				ch <- StreamChunk{Done: true, FullText: sb.String(), Err: ctx.Err()}
				return
			case ch <- StreamChunk{Delta: delta}:
			}
		}
		ch <- StreamChunk{Done: true, FullText: resp}
	}()

	return ch, nil
}

var _ Model = (*ScriptedModel)(nil)
