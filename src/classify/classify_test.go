package classify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/namuan/inbox-glide-sub001/src/models"
	"github.com/namuan/inbox-glide-sub001/src/summary"
)

func init() {
	Logf = func(string, ...any) {}
}

func generated() summary.Summary {
	return summary.Summary{Headline: "ok", Variant: summary.VariantGenerated}
}

func TestResolveSuccess(t *testing.T) {
	s, err := Resolve(context.Background(), func(ctx context.Context, budget int) (summary.Summary, error) {
		if budget != 0 {
			t.Errorf("first attempt budget = %d, want 0", budget)
		}
		return generated(), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.Variant != summary.VariantGenerated {
		t.Errorf("variant = %q", s.Variant)
	}
}

func TestResolveGuardrail(t *testing.T) {
	calls := 0
	s, err := Resolve(context.Background(), func(ctx context.Context, budget int) (summary.Summary, error) {
		calls++
		return summary.Summary{}, fmt.Errorf("provider: %w", models.ErrGuardrail)
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.Variant != summary.VariantRedacted {
		t.Errorf("variant = %q, want redacted", s.Variant)
	}
	if calls != 1 {
		t.Errorf("calls = %d, guardrail must not retry", calls)
	}
}

func TestResolveOverflowRetrySucceeds(t *testing.T) {
	var budgets []int
	s, err := Resolve(context.Background(), func(ctx context.Context, budget int) (summary.Summary, error) {
		budgets = append(budgets, budget)
		if budget == 0 {
			return summary.Summary{}, models.ErrContextOverflow
		}
		return generated(), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.Variant != summary.VariantGenerated {
		t.Errorf("variant = %q", s.Variant)
	}
	if len(budgets) != 2 || budgets[0] != 0 || budgets[1] != RetryBudget {
		t.Errorf("budgets = %v, want [0 %d]", budgets, RetryBudget)
	}
}

func TestResolveOverflowRetriesExactlyOnce(t *testing.T) {
	calls := 0
	s, err := Resolve(context.Background(), func(ctx context.Context, budget int) (summary.Summary, error) {
		calls++
		return summary.Summary{}, models.ErrContextOverflow
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want exactly 2", calls)
	}
	if s.Variant != summary.VariantFallback {
		t.Errorf("variant = %q, want fallback", s.Variant)
	}
}

func TestResolveOverflowThenGuardrail(t *testing.T) {
	calls := 0
	s, err := Resolve(context.Background(), func(ctx context.Context, budget int) (summary.Summary, error) {
		calls++
		if calls == 1 {
			return summary.Summary{}, models.ErrContextOverflow
		}
		return summary.Summary{}, models.ErrGuardrail
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.Variant != summary.VariantRedacted {
		t.Errorf("variant = %q, want redacted after guardrail on retry", s.Variant)
	}
}

func TestResolveGenericFailure(t *testing.T) {
	s, err := Resolve(context.Background(), func(ctx context.Context, budget int) (summary.Summary, error) {
		return summary.Summary{}, errors.New("connection reset")
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.Variant != summary.VariantFallback {
		t.Errorf("variant = %q, want fallback", s.Variant)
	}
}

func TestResolveCancellationPropagates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	_, err := Resolve(ctx, func(ctx context.Context, budget int) (summary.Summary, error) {
		cancel()
		return summary.Summary{}, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestResolveCancellationDuringRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Resolve(ctx, func(ctx context.Context, budget int) (summary.Summary, error) {
		calls++
		if calls == 1 {
			return summary.Summary{}, models.ErrContextOverflow
		}
		cancel()
		return summary.Summary{}, context.Canceled
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want cancellation from retry", err)
	}
}

func TestCallTimeoutIsNotCancellation(t *testing.T) {
	// A per-call deadline on a live request context is a generic failure and
	// must resolve to fallback, not propagate as cancellation.
	s, err := Resolve(context.Background(), func(ctx context.Context, budget int) (summary.Summary, error) {
		return summary.Summary{}, context.DeadlineExceeded
	})
	if err != nil {
		t.Fatalf("deadline on live request propagated: %v", err)
	}
	if s.Variant != summary.VariantFallback {
		t.Errorf("variant = %q, want fallback", s.Variant)
	}
}
