// Package glide is an on-device email summarization engine. It turns raw,
// possibly huge, possibly malformed email content into structured summaries
// using a single scarce inference resource, deduplicating concurrent work,
// deferring under thermal pressure, and streaming partial results as they
// form. Email content never leaves the device through this engine.
package glide

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/namuan/inbox-glide-sub001/src/availability"
	"github.com/namuan/inbox-glide-sub001/src/cache"
	"github.com/namuan/inbox-glide-sub001/src/classify"
	"github.com/namuan/inbox-glide-sub001/src/mail"
	"github.com/namuan/inbox-glide-sub001/src/models"
	"github.com/namuan/inbox-glide-sub001/src/preprocess"
	"github.com/namuan/inbox-glide-sub001/src/schedule"
	"github.com/namuan/inbox-glide-sub001/src/summarize"
	"github.com/namuan/inbox-glide-sub001/src/summary"
)

// Options configure a new Engine. Model is required; everything else has a
// working default.
type Options struct {
	// Model is the inference capability.
	Model models.Model
	// Store is the cache backend; nil means in-memory LRU.
	Store cache.Store
	// Thermal is the host thermal signal; nil means always nominal.
	Thermal schedule.ThermalSource
	// Preprocess tunes normalization, chunking, and language detection.
	Preprocess preprocess.Options
	// CallTimeout bounds each inference call (default 30s).
	CallTimeout time.Duration
	// QueueSize bounds admitted-but-not-started requests.
	QueueSize int
	// Concurrency is the number of inference slots (default 1).
	Concurrency int
	// MaxWaitAttempts bounds availability polling per request (default 6).
	MaxWaitAttempts int
	// Logf receives diagnostic lines; nil uses log.Printf.
	Logf func(format string, args ...any)
}

// Engine orchestrates preprocessing, caching, scheduling, summarization,
// and outcome classification behind one facade.
type Engine struct {
	model      models.Model
	pre        *preprocess.Preprocessor
	monitor    *availability.Monitor
	sched      *schedule.Scheduler
	cache      *cache.Cache
	summarizer *summarize.Summarizer

	maxWaitAttempts int
	logf            func(format string, args ...any)
}

// New creates an Engine with the provided options.
func New(opts Options) (*Engine, error) {
	if opts.Model == nil {
		return nil, errors.New("engine requires a model")
	}
	logf := opts.Logf
	if logf == nil {
		logf = log.Printf
	}

	summarizer := summarize.New(opts.Model)
	summarizer.Logf = logf
	if opts.CallTimeout > 0 {
		summarizer.CallTimeout = opts.CallTimeout
	}

	monitor := availability.NewMonitor(opts.Model)
	maxWait := opts.MaxWaitAttempts
	if maxWait <= 0 {
		maxWait = availability.DefaultMaxAttempts
	}

	e := &Engine{
		model:           opts.Model,
		pre:             preprocess.New(opts.Preprocess),
		monitor:         monitor,
		cache:           cache.New(opts.Store),
		summarizer:      summarizer,
		maxWaitAttempts: maxWait,
		logf:            logf,
	}
	e.sched = schedule.New(schedule.Options{
		Concurrency: opts.Concurrency,
		QueueSize:   opts.QueueSize,
		Thermal:     opts.Thermal,
		Logf:        logf,
	})
	return e, nil
}

// RequestSummary requests a summary for one email on behalf of the user.
// User-initiated requests are never deferred by thermal state. The returned
// handle yields zero or more partial summaries followed by one terminal
// result, or ErrCancelled.
func (e *Engine) RequestSummary(ctx context.Context, msg mail.EmailMessage) (*Handle, error) {
	return e.request(ctx, msg, true)
}

// RequestBatch admits background summarization for many emails at once.
// Batch work defers under high thermal load and is the first to be shed on
// memory pressure. Handles come back in input order.
func (e *Engine) RequestBatch(ctx context.Context, msgs []mail.EmailMessage) ([]*Handle, error) {
	handles := make([]*Handle, 0, len(msgs))
	for _, msg := range msgs {
		h, err := e.request(ctx, msg, false)
		if err != nil {
			return handles, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

func (e *Engine) request(ctx context.Context, msg mail.EmailMessage, urgent bool) (*Handle, error) {
	if msg.ID == "" {
		return nil, errors.New("email message has no ID")
	}

	doc := e.pre.Prepare(msg)

	// Low-content fast path: deterministic, bypasses cache and model.
	if doc.LowContent {
		s := summary.Minimal(msg.Subject)
		return newImmediateHandle(msg.ID, Update{Final: &s}), nil
	}
	if doc.LanguageUnsupported {
		e.logf("[engine] %s: dominant language %q outside supported set, proceeding", msg.ID, doc.Language)
	}

	fingerprint := cache.Fingerprint(doc.Normalized, e.model.Version())
	if s, ok := e.cache.Lookup(ctx, msg.ID, fingerprint); ok {
		return newImmediateHandle(msg.ID, Update{Final: &s}), nil
	}

	// Devices that can never run inference skip the scheduler entirely and
	// get a rule-based extraction instead.
	if state := e.monitor.CheckNow(ctx); !state.Available && state.Reason == models.ReasonDeviceNotSupported {
		s := summarize.Extractive(doc)
		return newImmediateHandle(msg.ID, Update{Final: &s}), nil
	}

	sub, joined, err := e.sched.Submit(msg.ID, urgent, e.runFor(doc, fingerprint))
	if err != nil {
		return nil, err
	}
	if joined {
		e.logf("[engine] %s: attached to in-flight request %s", msg.ID, sub.RequestID)
	}
	return newScheduledHandle(sub), nil
}

// runFor builds the scheduler work for one document. It owns the whole
// in-slot lifecycle: availability wait, summarization, classification, and
// cache write-back.
func (e *Engine) runFor(doc preprocess.Document, fingerprint string) schedule.RunFunc {
	return func(ctx context.Context, emit func(Update)) {
		if state := e.monitor.Last(); !state.Available {
			ok, err := e.monitor.WaitUntilAvailable(ctx, e.maxWaitAttempts)
			if err != nil {
				emit(Update{Err: ErrCancelled})
				return
			}
			if !ok {
				e.logf("[engine] %s: capability unavailable after backoff (%s)", doc.EmailID, e.monitor.Last().Reason)
				s := summary.Fallback()
				emit(Update{Final: &s})
				return
			}
		}

		final, err := classify.Resolve(ctx, func(ctx context.Context, budget int) (summary.Summary, error) {
			return e.summarizer.Run(ctx, doc, budget, func(partial summary.Summary) {
				p := partial
				emit(Update{Partial: &p})
			})
		})
		if err != nil {
			// Classification only propagates cancellation; the result,
			// if any, is discarded and never cached.
			emit(Update{Err: ErrCancelled})
			return
		}
		if ctx.Err() != nil {
			// Cancelled mid-call but the model completed anyway: the
			// caller withdrew, so discard the result without caching.
			emit(Update{Err: ErrCancelled})
			return
		}

		if cacheable(final) {
			if err := e.cache.Put(ctx, doc.EmailID, fingerprint, final); err != nil {
				e.logf("[engine] %s: cache write failed: %v", doc.EmailID, err)
			}
		}
		emit(Update{Final: &final})
	}
}

// cacheable excludes transient placeholders: a fallback summary reflects a
// moment's failure, not the content, and must not be served from cache later.
func cacheable(s summary.Summary) bool {
	return s.Variant == summary.VariantGenerated || s.Variant == summary.VariantRedacted
}

// Invalidate drops the cached summary for one email identity.
func (e *Engine) Invalidate(ctx context.Context, emailID string) error {
	return e.cache.Invalidate(ctx, emailID)
}

// ClearCache drops every cached summary. Call on logout or permission
// revocation.
func (e *Engine) ClearCache(ctx context.Context) error {
	return e.cache.Clear(ctx)
}

// Availability performs a synchronous point query of the capability.
func (e *Engine) Availability(ctx context.Context) models.Availability {
	return e.monitor.CheckNow(ctx)
}

// Prewarm hints the capability to load the model. Fire-and-forget.
func (e *Engine) Prewarm(ctx context.Context) {
	go e.model.Prewarm(ctx)
}

// OnLowMemory sheds all queued (not yet started) work; the active request
// runs to completion. Wire this to the host's low-memory notification.
func (e *Engine) OnLowMemory() int {
	return e.sched.CancelQueued()
}

// Close stops the scheduler and abandons queued work.
func (e *Engine) Close() {
	e.sched.Stop()
}
