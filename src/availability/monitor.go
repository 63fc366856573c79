// Package availability tracks whether the inference capability is usable.
// State changes only through polling; a failed generation call never flips
// the state on its own.
package availability

import (
	"context"
	"sync"
	"time"

	"github.com/namuan/inbox-glide-sub001/src/models"
)

const (
	// DefaultMaxAttempts bounds WaitUntilAvailable polling.
	DefaultMaxAttempts = 6
	// DefaultInitialBackoff is the first retry delay.
	DefaultInitialBackoff = 2 * time.Second
	// DefaultMaxBackoff caps the doubling delay.
	DefaultMaxBackoff = 60 * time.Second
)

// Prober is the slice of the capability the monitor needs.
type Prober interface {
	CheckAvailability(ctx context.Context) models.Availability
}

// Monitor polls a Prober and caches the last observed state.
type Monitor struct {
	prober Prober

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxAttempts    int

	mu   sync.RWMutex
	last models.Availability
}

func NewMonitor(prober Prober) *Monitor {
	return &Monitor{
		prober:         prober,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		MaxAttempts:    DefaultMaxAttempts,
		last:           models.Unavailable(models.ReasonOther, "not yet polled"),
	}
}

// CheckNow performs a synchronous, side-effect-free point query and records
// the result as the last known state.
func (m *Monitor) CheckNow(ctx context.Context) models.Availability {
	state := m.prober.CheckAvailability(ctx)
	m.mu.Lock()
	m.last = state
	m.mu.Unlock()
	return state
}

// Last returns the most recently observed state without polling.
func (m *Monitor) Last() models.Availability {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// WaitUntilAvailable polls with exponential backoff (2s, 4s, ... capped at
// 60s) for at most maxAttempts polls, or the monitor default when
// maxAttempts <= 0. It returns true as soon as the capability is available,
// false when the attempt budget runs out, and the context error if cancelled
// mid-wait. This is the only engine operation allowed to block for extended
// wall-clock time.
func (m *Monitor) WaitUntilAvailable(ctx context.Context, maxAttempts int) (bool, error) {
	if maxAttempts <= 0 {
		maxAttempts = m.MaxAttempts
	}

	delay := m.InitialBackoff
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if state := m.CheckNow(ctx); state.Available {
			return true, nil
		}
		if attempt == maxAttempts {
			break
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return false, err
		}
		delay *= 2
		if delay > m.MaxBackoff {
			delay = m.MaxBackoff
		}
	}
	return false, nil
}

// sleepCtx is replaceable in tests so backoff schedules are assertable
// without wall-clock waits.
var sleepCtx = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
