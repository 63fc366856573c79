// Package schedule serializes summarization work onto the single inference
// slot. It deduplicates concurrent requests per email identity, defers batch
// work under thermal pressure, and sheds queued work on low-memory signals.
package schedule

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/namuan/inbox-glide-sub001/src/summary"
)

var (
	// ErrCancelled is the distinct terminal signal for work cancelled
	// before completion. It is reported to subscribers, never converted
	// into a fallback summary.
	ErrCancelled = errors.New("schedule: request cancelled")
	// ErrQueueFull is returned when admission would exceed the queue.
	ErrQueueFull = errors.New("schedule: request queue is full")
	// ErrStopped is returned after Stop.
	ErrStopped = errors.New("schedule: scheduler stopped")
)

// Update is one event delivered to subscribers: zero or more partials
// followed by exactly one terminal update (Final set, or Err set).
type Update struct {
	Partial *summary.Summary
	Final   *summary.Summary
	Err     error
}

// Terminal reports whether this update ends the stream.
func (u Update) Terminal() bool { return u.Final != nil || u.Err != nil }

// RunFunc performs the actual summarization work for a job. It must emit
// exactly one terminal Update as its last emission. The context is cancelled
// on per-request cancellation and on scheduler shutdown.
type RunFunc func(ctx context.Context, emit func(Update))

// Options configure a Scheduler.
type Options struct {
	// Concurrency is the number of execution slots. The inference resource
	// supports one active call; keep the default unless the capability
	// says otherwise.
	Concurrency int
	// QueueSize bounds admitted-but-not-started work.
	QueueSize int
	// Thermal is the host thermal signal; nil means always nominal.
	Thermal ThermalSource
	// ThermalPoll is how often deferred work re-checks the signal.
	ThermalPoll time.Duration
	// Logf receives diagnostic lines; nil uses log.Printf.
	Logf func(format string, args ...any)
}

// Scheduler is the single point of admission control for inference work.
type Scheduler struct {
	opts  Options
	queue chan *job

	mu       sync.Mutex
	inflight map[string]*job
	deferred []*job // thermally parked batch work, FIFO
	stopped  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// job is the one shared in-progress handle per email identity.
type job struct {
	id      string
	emailID string
	urgent  bool
	run     RunFunc

	mu        sync.Mutex
	subs      []chan Update
	terminal  *Update
	started   bool
	cancelled bool
	runCancel context.CancelFunc
}

// Subscription is one caller's view of a job's update stream. The channel
// carries partial updates and is closed after the terminal update; Terminal
// returns that final update once the channel is closed.
type Subscription struct {
	RequestID string
	EmailID   string
	ch        chan Update
	job       *job
}

// Updates is the event stream. It is closed after the terminal update.
func (s *Subscription) Updates() <-chan Update { return s.ch }

// Terminal returns the job's final update, or false while still running.
func (s *Subscription) Terminal() (Update, bool) {
	s.job.mu.Lock()
	defer s.job.mu.Unlock()
	if s.job.terminal == nil {
		return Update{}, false
	}
	return *s.job.terminal, true
}

// Cancel withdraws this request. Queued work is removed and subscribers see
// ErrCancelled; executing work gets a best-effort context interrupt.
func (s *Subscription) Cancel() { s.job.cancel() }

func New(opts Options) *Scheduler {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 128
	}
	if opts.Thermal == nil {
		opts.Thermal = StaticThermal(ThermalNominal)
	}
	if opts.ThermalPoll <= 0 {
		opts.ThermalPoll = time.Second
	}
	if opts.Logf == nil {
		opts.Logf = log.Printf
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		opts:     opts,
		queue:    make(chan *job, opts.QueueSize),
		inflight: make(map[string]*job),
		ctx:      ctx,
		cancel:   cancel,
	}
	for i := 0; i < opts.Concurrency; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	s.wg.Add(1)
	go s.thermalLoop()
	return s
}

// Submit admits work for emailID, or attaches to in-flight work for the same
// identity. The returned bool is true when the caller joined an existing
// job. The check-then-insert is atomic: two concurrent submits for one
// identity yield one job with two subscribers.
func (s *Scheduler) Submit(emailID string, urgent bool, run RunFunc) (*Subscription, bool, error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil, false, ErrStopped
	}
	if existing, ok := s.inflight[emailID]; ok {
		sub := existing.subscribe()
		s.mu.Unlock()
		return sub, true, nil
	}

	j := &job{
		id:      uuid.NewString(),
		emailID: emailID,
		urgent:  urgent,
		run:     run,
	}
	sub := j.subscribe()

	select {
	case s.queue <- j:
	default:
		s.mu.Unlock()
		return nil, false, ErrQueueFull
	}
	s.inflight[emailID] = j
	s.mu.Unlock()
	return sub, false, nil
}

// CancelQueued sheds all admitted-but-not-started work, notifying each job's
// subscribers with ErrCancelled. The actively executing job is left to
// finish naturally. Wired to the host's low-memory signal.
func (s *Scheduler) CancelQueued() int {
	s.mu.Lock()
	victims := make([]*job, 0, len(s.inflight))
	for _, j := range s.inflight {
		if !j.isStarted() {
			victims = append(victims, j)
			delete(s.inflight, j.emailID)
		}
	}
	// Thermally parked jobs are queued-not-started, so they are among the
	// victims; forget them so they are never re-admitted.
	s.deferred = nil
	s.mu.Unlock()

	for _, j := range victims {
		j.finish(Update{Err: ErrCancelled})
	}
	if len(victims) > 0 {
		s.opts.Logf("[scheduler] low memory: cancelled %d queued request(s)", len(victims))
	}
	return len(victims)
}

// InflightCount reports jobs admitted and not yet completed.
func (s *Scheduler) InflightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// Stop cancels queued work, interrupts the active job's context, and waits
// for workers to drain.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.CancelQueued()
	s.cancel()
	// Closing under the lock keeps readmit from racing a send against the
	// close; it checks stopped under the same lock.
	s.mu.Lock()
	close(s.queue)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for j := range s.queue {
		if j.isCancelled() {
			s.drop(j)
			continue
		}
		// Batch work steps aside under thermal pressure instead of holding
		// the slot, so urgent work behind it is never deferred by proxy.
		if !j.urgent && s.opts.Thermal.Level().Deferring() {
			s.park(j)
			continue
		}
		s.execute(j)
	}
}

// drop removes a job that will never execute from the inflight map and
// resolves its subscribers. finish is idempotent, so jobs already resolved by
// cancel() are unaffected.
func (s *Scheduler) drop(j *job) {
	s.mu.Lock()
	if s.inflight[j.emailID] == j {
		delete(s.inflight, j.emailID)
	}
	s.mu.Unlock()
	j.finish(Update{Err: ErrCancelled})
}

// park sets a batch job aside until the thermal signal clears. Parked jobs
// stay admitted (still in inflight, still joinable) and re-enter the queue in
// their original order.
func (s *Scheduler) park(j *job) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.drop(j)
		return
	}
	s.deferred = append(s.deferred, j)
	s.mu.Unlock()
	s.opts.Logf("[scheduler] thermal %s: deferring request for %s", s.opts.Thermal.Level(), j.emailID)
}

// thermalLoop re-admits parked batch work once the signal drops below the
// deferring severities.
func (s *Scheduler) thermalLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.ThermalPoll)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.opts.Thermal.Level().Deferring() {
				continue
			}
			s.readmit()
		}
	}
}

func (s *Scheduler) readmit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		s.deferred = nil
		return
	}
	for len(s.deferred) > 0 {
		select {
		case s.queue <- s.deferred[0]:
			s.deferred = s.deferred[1:]
		default:
			// Queue full; the rest waits for the next tick.
			return
		}
	}
}

func (s *Scheduler) execute(j *job) {
	runCtx, runCancel := context.WithCancel(s.ctx)
	if !j.start(runCancel) {
		runCancel()
		s.drop(j)
		return
	}
	defer runCancel()

	j.run(runCtx, func(u Update) {
		if u.Terminal() {
			s.mu.Lock()
			if s.inflight[j.emailID] == j {
				delete(s.inflight, j.emailID)
			}
			s.mu.Unlock()
			j.finish(u)
			return
		}
		j.fanout(u)
	})

	// A run that returns without a terminal emission still must resolve
	// its subscribers.
	s.mu.Lock()
	if s.inflight[j.emailID] == j {
		delete(s.inflight, j.emailID)
	}
	s.mu.Unlock()
	j.finish(Update{Err: ErrCancelled})
}

func (j *job) subscribe() *Subscription {
	ch := make(chan Update, 32)
	j.mu.Lock()
	if j.terminal != nil {
		// Completed while the caller was joining: replay the terminal.
		ch <- *j.terminal
		close(ch)
	} else {
		j.subs = append(j.subs, ch)
	}
	j.mu.Unlock()
	return &Subscription{RequestID: j.id, EmailID: j.emailID, ch: ch, job: j}
}

func (j *job) isStarted() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.started
}

func (j *job) isCancelled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelled
}

// start transitions queued -> executing. Returns false if the job was
// cancelled or already resolved (for example by CancelQueued) while waiting.
func (j *job) start(cancel context.CancelFunc) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cancelled || j.terminal != nil {
		return false
	}
	j.started = true
	j.runCancel = cancel
	return true
}

// cancel handles caller-initiated withdrawal. Not-yet-started work resolves
// ErrCancelled immediately; started work gets its context interrupted and
// resolves through the normal terminal path.
func (j *job) cancel() {
	j.mu.Lock()
	if j.terminal != nil {
		j.mu.Unlock()
		return
	}
	j.cancelled = true
	started := j.started
	runCancel := j.runCancel
	j.mu.Unlock()

	if started {
		if runCancel != nil {
			runCancel()
		}
		return
	}
	j.finish(Update{Err: ErrCancelled})
}

// fanout delivers a partial update without blocking the slot. A subscriber
// that is not draining loses partials, never the terminal.
func (j *job) fanout(u Update) {
	j.mu.Lock()
	subs := j.subs
	j.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// finish records the terminal update exactly once, delivers it to every
// subscriber, and closes their channels.
func (j *job) finish(u Update) {
	j.mu.Lock()
	if j.terminal != nil {
		j.mu.Unlock()
		return
	}
	j.terminal = &u
	subs := j.subs
	j.subs = nil
	j.mu.Unlock()

	for _, ch := range subs {
		// Drain one stale partial if the buffer is full so the terminal
		// always lands.
		select {
		case ch <- u:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- u:
			default:
			}
		}
		close(ch)
	}
}
