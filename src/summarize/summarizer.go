// Package summarize drives one or more model calls to produce a structured
// summary: a streamed single call for bounded bodies, map/reduce over chunks
// for oversized ones, and a progressive fold for long threads.
package summarize

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/namuan/inbox-glide-sub001/src/models"
	"github.com/namuan/inbox-glide-sub001/src/preprocess"
	"github.com/namuan/inbox-glide-sub001/src/summary"
)

// DefaultCallTimeout bounds one inference call before it is treated as a
// generic failure.
const DefaultCallTimeout = 30 * time.Second

const systemPreamble = "You summarize emails for a busy reader. Be factual and concise; never invent details that are not in the message."

// Summarizer orchestrates model calls for one document at a time. It holds
// no per-request state and is safe for concurrent use, though the scheduler
// serializes calls onto the model anyway.
type Summarizer struct {
	Model       models.Model
	CallTimeout time.Duration
	Logf        func(format string, args ...any)
}

func New(model models.Model) *Summarizer {
	return &Summarizer{
		Model:       model,
		CallTimeout: DefaultCallTimeout,
		Logf:        log.Printf,
	}
}

// Run produces the final summary for doc, emitting monotonic partials along
// the way. budget, when positive, further truncates every prompt body; the
// classifier uses it for the post-overflow retry. Errors come back raw for
// the classifier to interpret.
func (s *Summarizer) Run(ctx context.Context, doc preprocess.Document, budget int, emit func(summary.Summary)) (summary.Summary, error) {
	if len(doc.Chunks) > 0 {
		return s.runChunked(ctx, doc, budget, emit)
	}
	return s.runSingle(ctx, doc, budget, emit)
}

// runSingle is the streamed one-call path.
func (s *Summarizer) runSingle(ctx context.Context, doc preprocess.Document, budget int, emit func(summary.Summary)) (summary.Summary, error) {
	body := clamp(doc.Body, budget)

	threadCtx, err := s.threadPreamble(ctx, doc, budget)
	if err != nil {
		return summary.Summary{}, err
	}

	prompt := s.finalPrompt(doc.Subject, threadCtx, body)
	return s.streamCall(ctx, prompt, emit)
}

// runChunked is the map/reduce path for oversized bodies. Map calls run in
// chunk order; the reduce call alone decides the final category and urgency.
func (s *Summarizer) runChunked(ctx context.Context, doc preprocess.Document, budget int, emit func(summary.Summary)) (summary.Summary, error) {
	chunkSummaries := make([]string, 0, len(doc.Chunks))
	for _, chunk := range doc.Chunks {
		prompt := fmt.Sprintf(
			"%s\n\nSummarize part %d of %d of a long email in 2-3 plain sentences. Keep every concrete fact (names, dates, amounts).\n\nPart text:\n%s",
			systemPreamble, chunk.Index+1, len(doc.Chunks), clamp(chunk.Text, budget),
		)
		text, err := s.call(ctx, prompt, "")
		if err != nil {
			return summary.Summary{}, fmt.Errorf("chunk %d: %w", chunk.Index, err)
		}
		chunkSummaries = append(chunkSummaries, strings.TrimSpace(text))
	}

	var b strings.Builder
	for i, cs := range chunkSummaries {
		fmt.Fprintf(&b, "Part %d: %s\n", i+1, cs)
	}
	reduceBody := clamp(b.String(), budget)

	prompt := s.finalPrompt(doc.Subject, "", "The email was too long to read at once. These are ordered summaries of its parts:\n"+reduceBody)
	return s.streamCall(ctx, prompt, emit)
}

// threadPreamble prepares conversation context. Short context is inlined;
// long threads are folded message by message into a running summary so the
// final prompt stays bounded regardless of thread length.
func (s *Summarizer) threadPreamble(ctx context.Context, doc preprocess.Document, budget int) (string, error) {
	if len(doc.ThreadContext) == 0 {
		return "", nil
	}
	total := 0
	for _, m := range doc.ThreadContext {
		total += utf8.RuneCountInString(m)
	}
	limit := preprocess.DefaultMaxPromptChars / 2
	if budget > 0 && budget/2 < limit {
		limit = budget / 2
	}
	if total <= limit {
		return strings.Join(doc.ThreadContext, "\n---\n"), nil
	}

	running := ""
	for _, msg := range doc.ThreadContext {
		prompt := fmt.Sprintf(
			"%s\n\nMaintain a running summary of an email conversation in at most 4 sentences.\n\nRunning summary so far:\n%s\n\nNext message:\n%s\n\nUpdated running summary:",
			systemPreamble, orNone(running), clamp(msg, limit),
		)
		text, err := s.call(ctx, prompt, "")
		if err != nil {
			return "", fmt.Errorf("thread fold: %w", err)
		}
		running = strings.TrimSpace(text)
	}
	return running, nil
}

func (s *Summarizer) finalPrompt(subject, threadContext, body string) string {
	var b strings.Builder
	b.WriteString(systemPreamble)
	b.WriteString("\n\nProduce a JSON summary of the email below with fields: headline (one sentence), body (2-4 sentences), category (action_required|informational|promotional|newsletter|spam), action_items (array of strings, may be empty), urgency (low|medium|high).")
	if subject != "" {
		b.WriteString("\n\nSubject: ")
		b.WriteString(subject)
	}
	if threadContext != "" {
		b.WriteString("\n\nEarlier in this conversation:\n")
		b.WriteString(threadContext)
	}
	b.WriteString("\n\nEmail body:\n")
	b.WriteString(body)
	return b.String()
}

// call is a bounded blocking model call.
func (s *Summarizer) call(ctx context.Context, prompt, schema string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()
	return s.Model.Respond(callCtx, prompt, schema)
}

// streamCall runs a schema-constrained streaming call, decoding loose
// partials at each chunk boundary and emitting only monotonic refinements.
func (s *Summarizer) streamCall(ctx context.Context, prompt string, emit func(summary.Summary)) (summary.Summary, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	stream, err := s.Model.RespondStream(callCtx, prompt, summary.Schema)
	if err != nil {
		return summary.Summary{}, err
	}

	var (
		buf     strings.Builder
		current summary.Summary
		full    string
	)
	for chunk := range stream {
		if chunk.Err != nil {
			return summary.Summary{}, chunk.Err
		}
		buf.WriteString(chunk.Delta)
		if chunk.Done {
			full = chunk.FullText
			if full == "" {
				full = buf.String()
			}
			break
		}
		if emit == nil {
			continue
		}
		if partial, ok := summary.DecodeLoose(buf.String()); ok {
			merged := summary.Merge(current, partial)
			if refined(current, merged) {
				merged.Variant = summary.VariantGenerated
				current = merged
				emit(current)
			}
		}
	}
	if err := callCtx.Err(); err != nil && full == "" {
		return summary.Summary{}, err
	}

	final, err := summary.Decode(full)
	if err != nil {
		return summary.Summary{}, fmt.Errorf("decode model output: %w", err)
	}
	final.Variant = summary.VariantGenerated
	return final, nil
}

func (s *Summarizer) timeout() time.Duration {
	if s.CallTimeout > 0 {
		return s.CallTimeout
	}
	return DefaultCallTimeout
}

// refined reports whether next reveals strictly more than prev.
func refined(prev, next summary.Summary) bool {
	return len(next.Headline) > len(prev.Headline) ||
		len(next.Body) > len(prev.Body) ||
		(prev.Category == "" && next.Category != "") ||
		(prev.Urgency == "" && next.Urgency != "") ||
		len(next.ActionItems) > len(prev.ActionItems)
}

// clamp truncates to a character budget, never splitting a rune.
func clamp(text string, budget int) string {
	if budget <= 0 || utf8.RuneCountInString(text) <= budget {
		return text
	}
	return string([]rune(text)[:budget])
}

func orNone(s string) string {
	if s == "" {
		return "(none yet)"
	}
	return s
}
