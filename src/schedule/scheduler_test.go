package schedule

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/namuan/inbox-glide-sub001/src/summary"
)

func discardLogf(string, ...any) {}

// gatedRun is a RunFunc that blocks until released, then emits the given
// summary. It reports when it has started.
type gatedRun struct {
	started chan struct{}
	release chan struct{}
	runs    int32
}

func newGatedRun() *gatedRun {
	return &gatedRun{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedRun) fn(headline string) RunFunc {
	return func(ctx context.Context, emit func(Update)) {
		atomic.AddInt32(&g.runs, 1)
		close(g.started)
		select {
		case <-g.release:
			s := summary.Summary{Headline: headline, Variant: summary.VariantGenerated}
			emit(Update{Final: &s})
		case <-ctx.Done():
			emit(Update{Err: ErrCancelled})
		}
	}
}

// waitTerminal drains a subscription and returns its terminal update.
func waitTerminal(t *testing.T, sub *Subscription) Update {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case u, ok := <-sub.Updates():
			if !ok {
				if term, done := sub.Terminal(); done {
					return term
				}
				t.Fatal("stream closed without a terminal update")
			}
			if u.Terminal() {
				for range sub.Updates() {
				}
				return u
			}
		case <-deadline:
			t.Fatal("timed out waiting for terminal update")
		}
	}
}

func TestSubmitRunsAndDelivers(t *testing.T) {
	s := New(Options{Logf: discardLogf})
	defer s.Stop()

	sub, joined, err := s.Submit("m1", true, func(ctx context.Context, emit func(Update)) {
		p := summary.Summary{Headline: "partial"}
		emit(Update{Partial: &p})
		f := summary.Summary{Headline: "final", Variant: summary.VariantGenerated}
		emit(Update{Final: &f})
	})
	if err != nil || joined {
		t.Fatalf("Submit = joined %v, err %v", joined, err)
	}

	var partials, finals int
	for u := range sub.Updates() {
		switch {
		case u.Partial != nil:
			partials++
		case u.Final != nil:
			finals++
			if u.Final.Headline != "final" {
				t.Errorf("final headline = %q", u.Final.Headline)
			}
		}
	}
	if finals != 1 {
		t.Errorf("finals = %d, want exactly 1", finals)
	}
	if partials != 1 {
		t.Errorf("partials = %d, want 1", partials)
	}
}

func TestConcurrentSubmitsShareOneJob(t *testing.T) {
	s := New(Options{Logf: discardLogf})
	defer s.Stop()

	g := newGatedRun()
	first, joined, err := s.Submit("42", true, g.fn("the answer"))
	if err != nil || joined {
		t.Fatalf("first Submit = joined %v, err %v", joined, err)
	}
	<-g.started

	const attachers = 4
	subs := make([]*Subscription, attachers)
	var wg sync.WaitGroup
	for i := 0; i < attachers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub, joined, err := s.Submit("42", true, g.fn("should never run"))
			if err != nil || !joined {
				t.Errorf("attach %d = joined %v, err %v", i, joined, err)
				return
			}
			subs[i] = sub
		}(i)
	}
	wg.Wait()
	close(g.release)

	want := waitTerminal(t, first)
	if want.Final == nil || want.Final.Headline != "the answer" {
		t.Fatalf("terminal = %+v", want)
	}
	for i, sub := range subs {
		if sub == nil {
			continue
		}
		if sub.RequestID != first.RequestID {
			t.Errorf("attach %d has request ID %s, want %s", i, sub.RequestID, first.RequestID)
		}
		got := waitTerminal(t, sub)
		if got.Final == nil || got.Final.Headline != "the answer" {
			t.Errorf("attach %d terminal = %+v", i, got)
		}
	}
	if n := atomic.LoadInt32(&g.runs); n != 1 {
		t.Errorf("run invoked %d times, want 1", n)
	}
}

func TestFIFOOrderOnSingleSlot(t *testing.T) {
	s := New(Options{Logf: discardLogf})
	defer s.Stop()

	g := newGatedRun()
	head, _, err := s.Submit("head", true, g.fn("head"))
	if err != nil {
		t.Fatal(err)
	}
	<-g.started

	var mu sync.Mutex
	var order []string
	mkRun := func(id string) RunFunc {
		return func(ctx context.Context, emit func(Update)) {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
			f := summary.Summary{Headline: id, Variant: summary.VariantGenerated}
			emit(Update{Final: &f})
		}
	}

	var subs []*Subscription
	for _, id := range []string{"a", "b", "c"} {
		sub, _, err := s.Submit(id, true, mkRun(id))
		if err != nil {
			t.Fatal(err)
		}
		subs = append(subs, sub)
	}
	close(g.release)
	waitTerminal(t, head)
	for _, sub := range subs {
		waitTerminal(t, sub)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("execution order = %v, want [a b c]", order)
	}
}

func TestCancelQueuedSparesActive(t *testing.T) {
	s := New(Options{Logf: discardLogf})
	defer s.Stop()

	g := newGatedRun()
	active, _, err := s.Submit("active", false, g.fn("survivor"))
	if err != nil {
		t.Fatal(err)
	}
	<-g.started

	var queued []*Subscription
	for _, id := range []string{"q1", "q2", "q3"} {
		sub, _, err := s.Submit(id, false, g.fn(id))
		if err != nil {
			t.Fatal(err)
		}
		queued = append(queued, sub)
	}

	if n := s.CancelQueued(); n != 3 {
		t.Fatalf("CancelQueued = %d, want 3", n)
	}
	for i, sub := range queued {
		got := waitTerminal(t, sub)
		if !errors.Is(got.Err, ErrCancelled) {
			t.Errorf("queued %d terminal = %+v, want ErrCancelled", i, got)
		}
	}

	// The executing job is untouched and completes normally.
	close(g.release)
	got := waitTerminal(t, active)
	if got.Final == nil || got.Final.Headline != "survivor" {
		t.Errorf("active terminal = %+v", got)
	}
}

func TestQueueFull(t *testing.T) {
	s := New(Options{QueueSize: 1, Logf: discardLogf})
	defer s.Stop()

	g := newGatedRun()
	if _, _, err := s.Submit("active", true, g.fn("active")); err != nil {
		t.Fatal(err)
	}
	<-g.started

	if _, _, err := s.Submit("q1", true, g.fn("q1")); err != nil {
		t.Fatalf("first queued submit: %v", err)
	}
	if _, _, err := s.Submit("q2", true, g.fn("q2")); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	close(g.release)
}

func TestCancelQueuedSubscription(t *testing.T) {
	s := New(Options{Logf: discardLogf})
	defer s.Stop()

	g := newGatedRun()
	active, _, err := s.Submit("active", true, g.fn("active"))
	if err != nil {
		t.Fatal(err)
	}
	<-g.started

	victim, _, err := s.Submit("victim", true, func(ctx context.Context, emit func(Update)) {
		t.Error("cancelled job must not execute")
	})
	if err != nil {
		t.Fatal(err)
	}
	victim.Cancel()
	got := waitTerminal(t, victim)
	if !errors.Is(got.Err, ErrCancelled) {
		t.Fatalf("terminal = %+v, want ErrCancelled", got)
	}

	close(g.release)
	waitTerminal(t, active)

	// The identity frees up once the worker drains the dead job, so a fresh
	// request is admitted as new work rather than joining the corpse.
	deadline := time.After(5 * time.Second)
	for s.InflightCount() != 0 {
		select {
		case <-deadline:
			t.Fatal("cancelled job never left the inflight map")
		case <-time.After(5 * time.Millisecond):
		}
	}
	done := make(chan struct{})
	sub, joined, err := s.Submit("victim", true, func(ctx context.Context, emit func(Update)) {
		close(done)
		f := summary.Summary{Headline: "retry", Variant: summary.VariantGenerated}
		emit(Update{Final: &f})
	})
	if err != nil || joined {
		t.Fatalf("resubmit = joined %v, err %v", joined, err)
	}
	got = waitTerminal(t, sub)
	if got.Final == nil || got.Final.Headline != "retry" {
		t.Errorf("resubmit terminal = %+v", got)
	}
	<-done
}

func TestCancelExecutingInterruptsContext(t *testing.T) {
	s := New(Options{Logf: discardLogf})
	defer s.Stop()

	g := newGatedRun()
	sub, _, err := s.Submit("m1", true, g.fn("never"))
	if err != nil {
		t.Fatal(err)
	}
	<-g.started
	sub.Cancel()

	got := waitTerminal(t, sub)
	if !errors.Is(got.Err, ErrCancelled) {
		t.Fatalf("terminal = %+v, want ErrCancelled", got)
	}
}

// mutableThermal is a test ThermalSource whose level can be changed at runtime.
type mutableThermal struct{ level int32 }

func (m *mutableThermal) Level() ThermalLevel { return ThermalLevel(atomic.LoadInt32(&m.level)) }
func (m *mutableThermal) set(l ThermalLevel)  { atomic.StoreInt32(&m.level, int32(l)) }

func TestThermalDefersBatchNotUrgent(t *testing.T) {
	thermal := &mutableThermal{}
	thermal.set(ThermalSerious)
	s := New(Options{Thermal: thermal, ThermalPoll: 5 * time.Millisecond, Logf: discardLogf})
	defer s.Stop()

	var batchRan int32
	batch, _, err := s.Submit("batch", false, func(ctx context.Context, emit func(Update)) {
		atomic.StoreInt32(&batchRan, 1)
		f := summary.Summary{Headline: "batch", Variant: summary.VariantGenerated}
		emit(Update{Final: &f})
	})
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&batchRan) != 0 {
		t.Fatal("batch work ran while thermal state was serious")
	}

	thermal.set(ThermalNominal)
	got := waitTerminal(t, batch)
	if got.Final == nil || got.Final.Headline != "batch" {
		t.Errorf("batch terminal = %+v", got)
	}
}

func TestUrgentNotBlockedByDeferredBatch(t *testing.T) {
	thermal := &mutableThermal{}
	thermal.set(ThermalSerious)
	s := New(Options{Thermal: thermal, ThermalPoll: 5 * time.Millisecond, Logf: discardLogf})
	defer s.Stop()

	// Batch work is admitted first and parks under thermal pressure.
	var batchRan int32
	batch, _, err := s.Submit("batch", false, func(ctx context.Context, emit func(Update)) {
		atomic.StoreInt32(&batchRan, 1)
		f := summary.Summary{Headline: "batch", Variant: summary.VariantGenerated}
		emit(Update{Final: &f})
	})
	if err != nil {
		t.Fatal(err)
	}

	// An urgent request behind it must run while the signal is still severe.
	urgent, _, err := s.Submit("urgent", true, func(ctx context.Context, emit func(Update)) {
		f := summary.Summary{Headline: "urgent", Variant: summary.VariantGenerated}
		emit(Update{Final: &f})
	})
	if err != nil {
		t.Fatal(err)
	}
	got := waitTerminal(t, urgent)
	if got.Final == nil || got.Final.Headline != "urgent" {
		t.Fatalf("urgent terminal = %+v", got)
	}
	if atomic.LoadInt32(&batchRan) != 0 {
		t.Fatal("batch work ran while thermal state was serious")
	}

	// Once the signal clears the parked batch job still completes.
	thermal.set(ThermalNominal)
	got = waitTerminal(t, batch)
	if got.Final == nil || got.Final.Headline != "batch" {
		t.Errorf("batch terminal = %+v", got)
	}
}

func TestCancelQueuedShedsParkedBatch(t *testing.T) {
	thermal := &mutableThermal{}
	thermal.set(ThermalSerious)
	s := New(Options{Thermal: thermal, ThermalPoll: 5 * time.Millisecond, Logf: discardLogf})
	defer s.Stop()

	parked, _, err := s.Submit("parked", false, func(ctx context.Context, emit func(Update)) {
		t.Error("shed job must not execute")
	})
	if err != nil {
		t.Fatal(err)
	}
	// Give the worker time to park it.
	time.Sleep(30 * time.Millisecond)

	if n := s.CancelQueued(); n != 1 {
		t.Fatalf("CancelQueued = %d, want 1", n)
	}
	got := waitTerminal(t, parked)
	if !errors.Is(got.Err, ErrCancelled) {
		t.Fatalf("terminal = %+v, want ErrCancelled", got)
	}

	// Clearing the signal must not resurrect the shed job.
	thermal.set(ThermalNominal)
	time.Sleep(30 * time.Millisecond)
}

func TestThermalNeverDefersUrgent(t *testing.T) {
	thermal := &mutableThermal{}
	thermal.set(ThermalCritical)
	s := New(Options{Thermal: thermal, ThermalPoll: time.Hour, Logf: discardLogf})
	defer s.Stop()

	sub, _, err := s.Submit("urgent", true, func(ctx context.Context, emit func(Update)) {
		f := summary.Summary{Headline: "urgent", Variant: summary.VariantGenerated}
		emit(Update{Final: &f})
	})
	if err != nil {
		t.Fatal(err)
	}
	got := waitTerminal(t, sub)
	if got.Final == nil {
		t.Fatalf("urgent work deferred under thermal pressure: %+v", got)
	}
}

func TestSubmitAfterStop(t *testing.T) {
	s := New(Options{Logf: discardLogf})
	s.Stop()
	if _, _, err := s.Submit("m1", true, nil); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}
