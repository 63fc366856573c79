package models

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestScriptedModelServesInOrder(t *testing.T) {
	m := NewScriptedModel("one", "two")
	ctx := context.Background()

	for _, want := range []string{"one", "two", "two"} {
		got, err := m.Respond(ctx, "p", "")
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("Respond = %q, want %q", got, want)
		}
	}
	if m.Calls() != 3 {
		t.Errorf("Calls = %d, want 3", m.Calls())
	}
}

func TestScriptedModelErrors(t *testing.T) {
	scriptErr := errors.New("boom")
	m := NewScriptedModel().Script("", scriptErr)
	if _, err := m.Respond(context.Background(), "p", ""); !errors.Is(err, scriptErr) {
		t.Fatalf("err = %v, want scripted error", err)
	}
}

func TestScriptedModelStreamReassembles(t *testing.T) {
	resp := `{"headline": "A streamed summary", "body": "Delivered in pieces,` + "\n" + `whitespace intact."}`
	m := NewScriptedModel(resp)

	stream, err := m.RespondStream(context.Background(), "p", "")
	if err != nil {
		t.Fatal(err)
	}
	var (
		b    strings.Builder
		full string
		done bool
	)
	for chunk := range stream {
		if chunk.Err != nil {
			t.Fatal(chunk.Err)
		}
		if chunk.Done {
			done, full = true, chunk.FullText
			continue
		}
		b.WriteString(chunk.Delta)
	}
	if !done {
		t.Fatal("stream ended without a Done chunk")
	}
	if b.String() != resp || full != resp {
		t.Errorf("deltas reassembled to %q, full %q", b.String(), full)
	}
}

func TestScriptedModelAvailabilityRamp(t *testing.T) {
	m := NewScriptedModel("ok")
	m.AvailableAfter = 2
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		state := m.CheckAvailability(ctx)
		if state.Available || state.Reason != ReasonModelNotReady {
			t.Fatalf("poll %d = %+v, want model_not_ready", i, state)
		}
	}
	if state := m.CheckAvailability(ctx); !state.Available {
		t.Fatalf("poll 3 = %+v, want available", state)
	}
	if m.Checks() != 3 {
		t.Errorf("Checks = %d, want 3", m.Checks())
	}
}
