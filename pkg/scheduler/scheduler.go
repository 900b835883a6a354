// Package scheduler provides a shared tick scheduler for periodic work.
//
// A single loop goroutine owns a min-heap of subscription deadlines and one
// timer armed for the earliest of them. Due ticks are handed to a bounded
// worker pool; a subscription whose previous callback is still running, or
// whose dispatch would block on a saturated queue, has that tick skipped
// rather than queued. Sequence numbers still advance for skipped ticks, so
// callbacks can detect gaps.
package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nimburion/pulse/pkg/observability/logger"
)

const (
	// DefaultWorkers is the number of callback workers when none is configured.
	DefaultWorkers = 8
	// DefaultQueueSize is the dispatch queue capacity when none is configured.
	DefaultQueueSize = 256
)

// Config controls the scheduler's dispatch concurrency.
type Config struct {
	// Workers is the number of goroutines running tick callbacks.
	Workers int
	// QueueSize is the capacity of the dispatch queue between the scheduler
	// loop and the workers.
	QueueSize int
}

func (c *Config) normalize() {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
}

// dispatch pairs a due subscription with the tick it fired for.
type dispatch struct {
	sub  *Subscription
	tick Tick
}

// Scheduler multiplexes any number of periodic subscriptions onto one timer
// loop and a fixed pool of callback workers.
type Scheduler struct {
	log    logger.Logger
	config Config

	mu      sync.Mutex
	subs    subscriptionHeap
	nextID  uint64
	running bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	queue chan dispatch
	wake  chan struct{}
}

// NewScheduler creates a scheduler with the provided logger and configuration.
func NewScheduler(log logger.Logger, config Config) (*Scheduler, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	config.normalize()

	return &Scheduler{
		log:    log,
		config: config,
		queue:  make(chan dispatch, config.QueueSize),
		wake:   make(chan struct{}, 1),
	}, nil
}

// Start launches the scheduler loop and the worker pool. It returns
// immediately; the scheduler runs until Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.running {
		return schedulerError(ErrConflict, "scheduler already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.run(runCtx)

	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(runCtx)
	}

	s.log.Info("scheduler started", "workers", s.config.Workers, "queue_size", s.config.QueueSize)
	return nil
}

// Stop shuts the scheduler down and waits for the loop and all workers to
// finish, honoring the caller's deadline. After Stop returns the scheduler
// cannot be restarted.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	wasRunning := s.running
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if !wasRunning {
		return nil
	}
	cancel()

	waitCh := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-waitCh:
		s.log.Info("scheduler stopped")
		return nil
	}
}

// Subscribe registers a periodic callback. The first tick fires one full
// interval after the call; there is no tick at subscription time. The
// returned subscription stays active until its Cancel method is called or
// the scheduler stops.
func (s *Scheduler) Subscribe(interval time.Duration, onTick func(Tick)) (*Subscription, error) {
	if interval <= 0 {
		return nil, schedulerError(ErrValidation, "interval must be greater than zero")
	}
	if onTick == nil {
		return nil, schedulerError(ErrValidation, "tick callback is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	s.nextID++
	sub := &Subscription{
		id:        s.nextID,
		interval:  interval,
		onTick:    onTick,
		next:      time.Now().Add(interval),
		scheduler: s,
	}
	heap.Push(&s.subs, sub)
	incrementSubscriptions()
	s.poke()

	return sub, nil
}

// Running reports whether the scheduler loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Subscriptions returns the number of active subscriptions.
func (s *Scheduler) Subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs.Len()
}

// remove detaches a cancelled subscription from the deadline heap. Callers
// must have won the subscription's cancelled flag first.
func (s *Scheduler) remove(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.heapIndex >= 0 {
		heap.Remove(&s.subs, sub.heapIndex)
		decrementSubscriptions()
		s.poke()
	}
}

// poke nudges the loop to re-evaluate its earliest deadline. Callers must
// hold s.mu or otherwise guarantee the scheduler is not concurrently closed.
func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// run is the scheduler loop. It sleeps until the earliest deadline, fires
// everything due, and re-arms. A wake signal interrupts the sleep whenever
// the earliest deadline may have changed.
func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		s.dispatchDue(time.Now())

		s.mu.Lock()
		var wait time.Duration
		idle := s.subs.Len() == 0
		if !idle {
			wait = time.Until(s.subs[0].next)
		}
		s.mu.Unlock()

		if idle {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
			}
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// dispatchDue fires every subscription whose deadline has passed. Each due
// subscription yields at most one tick: when the loop fell behind by more
// than one interval the stale deadlines are skipped and only the newest one
// fires. A subscription still running its previous callback, or one that
// cannot be enqueued without blocking, has the tick skipped as well. Every
// deadline consumes a sequence number whether it fired or not.
func (s *Scheduler) dispatchDue(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.subs.Len() > 0 && !s.subs[0].next.After(now) {
		sub := s.subs[0]

		scheduledAt := sub.next
		stale := uint64(0)
		sub.next = sub.next.Add(sub.interval)
		for !sub.next.After(now) {
			scheduledAt = sub.next
			stale++
			sub.next = sub.next.Add(sub.interval)
		}
		sub.seq += stale + 1
		heap.Fix(&s.subs, 0)

		if stale > 0 {
			sub.skips.Add(stale)
			recordTicks(tickStatusSkippedStale, stale)
		}

		tick := Tick{Seq: sub.seq, ScheduledAt: scheduledAt, FiredAt: now}

		if sub.inFlight.Load() {
			sub.skips.Add(1)
			recordTicks(tickStatusSkippedBusy, 1)
			continue
		}

		select {
		case s.queue <- dispatch{sub: sub, tick: tick}:
			sub.inFlight.Store(true)
			recordTicks(tickStatusDispatched, 1)
			observeDispatchLag(now.Sub(scheduledAt))
		default:
			sub.skips.Add(1)
			recordTicks(tickStatusSkippedQueue, 1)
		}
	}
}

// worker runs tick callbacks from the dispatch queue.
func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-s.queue:
			s.invoke(d)
		}
	}
}

// invoke runs one callback, clearing the in-flight flag when it returns. A
// panicking callback is logged and contained so it cannot take down the
// worker pool.
func (s *Scheduler) invoke(d dispatch) {
	defer d.sub.inFlight.Store(false)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("tick callback panicked", "subscription", d.sub.id, "seq", d.tick.Seq, "panic", r)
		}
	}()

	if d.sub.cancelled.Load() {
		return
	}
	d.sub.onTick(d.tick)
}
