// Package classify converts every terminal inference outcome into a typed
// summary variant. No raw provider error ever crosses the engine boundary;
// the single exception is cancellation, which propagates as an error so
// callers can tell "no answer" apart from a fallback placeholder.
package classify

import (
	"context"
	"errors"
	"log"

	"github.com/namuan/inbox-glide-sub001/src/models"
	"github.com/namuan/inbox-glide-sub001/src/preprocess"
	"github.com/namuan/inbox-glide-sub001/src/summary"
)

// RetryBudget is the tighter prompt budget for the one automatic retry
// after a context-overflow failure.
const RetryBudget = preprocess.DefaultMaxPromptChars / 2

// RunFunc performs a full summarization attempt under a prompt budget
// (0 means the normal budget).
type RunFunc func(ctx context.Context, budget int) (summary.Summary, error)

// Logf is the package's diagnostic hook.
var Logf = log.Printf

// Resolve executes run and maps its outcome:
//
//	success            -> the generated summary
//	guardrail refusal  -> redacted variant
//	context overflow   -> one retry at RetryBudget, then fallback
//	cancellation       -> error (propagated, not converted)
//	anything else      -> fallback variant
func Resolve(ctx context.Context, run RunFunc) (summary.Summary, error) {
	s, err := run(ctx, 0)
	if err == nil {
		return s, nil
	}
	if cancelled(ctx, err) {
		return summary.Summary{}, err
	}

	switch {
	case errors.Is(err, models.ErrGuardrail):
		return summary.Redacted(), nil

	case errors.Is(err, models.ErrContextOverflow):
		Logf("[classify] context overflow, retrying with tighter budget: %v", err)
		s, err = run(ctx, RetryBudget)
		if err == nil {
			return s, nil
		}
		if cancelled(ctx, err) {
			return summary.Summary{}, err
		}
		if errors.Is(err, models.ErrGuardrail) {
			return summary.Redacted(), nil
		}
		Logf("[classify] retry failed: %v", err)
		return summary.Fallback(), nil

	default:
		Logf("[classify] inference failed: %v", err)
		return summary.Fallback(), nil
	}
}

// cancelled distinguishes caller/pressure cancellation from a per-call
// timeout: the call's own deadline produces context.DeadlineExceeded while
// the request context stays live, and that is a generic failure, not a
// cancellation.
func cancelled(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
