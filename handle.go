package glide

import (
	"context"

	"github.com/namuan/inbox-glide-sub001/src/schedule"
	"github.com/namuan/inbox-glide-sub001/src/summary"
)

// Update is one event on a summary request: zero or more monotonic partials
// followed by exactly one terminal update.
type Update = schedule.Update

// ErrCancelled is the terminal signal for requests cancelled before
// completion, distinct from a fallback summary.
var ErrCancelled = schedule.ErrCancelled

// Handle is a caller's view of one summary request.
type Handle struct {
	emailID   string
	requestID string

	sub      *schedule.Subscription
	ch       <-chan Update
	terminal *Update
}

// newImmediateHandle wraps an already-known result in the handle shape, for
// cache hits and paths that never reach the scheduler.
func newImmediateHandle(emailID string, u Update) *Handle {
	ch := make(chan Update, 1)
	ch <- u
	close(ch)
	return &Handle{emailID: emailID, ch: ch, terminal: &u}
}

func newScheduledHandle(sub *schedule.Subscription) *Handle {
	return &Handle{
		emailID:   sub.EmailID,
		requestID: sub.RequestID,
		sub:       sub,
		ch:        sub.Updates(),
	}
}

// EmailID identifies the email this request is for.
func (h *Handle) EmailID() string { return h.emailID }

// RequestID identifies the shared in-flight work; two handles attached to
// the same work report the same ID.
func (h *Handle) RequestID() string { return h.requestID }

// Updates streams partial summaries and ends with the terminal update; the
// channel is closed afterwards. Partials may be dropped for a slow consumer,
// the terminal update never is.
func (h *Handle) Updates() <-chan Update { return h.ch }

// Cancel withdraws the request. Work not yet started resolves ErrCancelled;
// executing work is interrupted best-effort.
func (h *Handle) Cancel() {
	if h.sub != nil {
		h.sub.Cancel()
	}
}

// Wait drains the stream and returns the terminal summary or ErrCancelled.
func (h *Handle) Wait(ctx context.Context) (summary.Summary, error) {
	for {
		select {
		case <-ctx.Done():
			h.Cancel()
			return summary.Summary{}, ctx.Err()
		case u, ok := <-h.ch:
			if !ok {
				return h.result()
			}
			if u.Terminal() {
				// Drain to the close so the channel is fully consumed.
				for range h.ch {
				}
				if u.Err != nil {
					return summary.Summary{}, u.Err
				}
				return *u.Final, nil
			}
		}
	}
}

func (h *Handle) result() (summary.Summary, error) {
	t := h.terminal
	if t == nil && h.sub != nil {
		if u, ok := h.sub.Terminal(); ok {
			t = &u
		}
	}
	if t == nil {
		return summary.Summary{}, ErrCancelled
	}
	if t.Err != nil {
		return summary.Summary{}, t.Err
	}
	return *t.Final, nil
}
