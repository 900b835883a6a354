package scheduler

import (
	"sync/atomic"
	"time"
)

// Tick is a single scheduler fire delivered to a subscription callback.
type Tick struct {
	// Seq counts deadlines since Subscribe, starting at 1. Skipped deadlines
	// consume sequence numbers too, so gaps mark coalesced ticks.
	Seq uint64
	// ScheduledAt is the deadline this tick fired for.
	ScheduledAt time.Time
	// FiredAt is when the scheduler dispatched the tick.
	FiredAt time.Time
}

// Subscription is a periodic callback registration. It is returned by
// Scheduler.Subscribe and stays active until cancelled.
type Subscription struct {
	id       uint64
	interval time.Duration
	onTick   func(Tick)

	// next, seq, and heapIndex are guarded by the scheduler's mutex.
	next      time.Time
	seq       uint64
	heapIndex int

	inFlight  atomic.Bool
	cancelled atomic.Bool
	skips     atomic.Uint64

	scheduler *Scheduler
}

// Cancel removes the subscription from the scheduler. It is safe to call
// multiple times and from any goroutine; after the first call no further
// ticks are delivered. A callback already running is not interrupted.
func (sub *Subscription) Cancel() {
	if sub == nil || sub.cancelled.Swap(true) {
		return
	}
	sub.scheduler.remove(sub)
}

// Interval returns the subscription's tick interval.
func (sub *Subscription) Interval() time.Duration {
	return sub.interval
}

// Skipped returns how many ticks were coalesced away because a previous
// callback was still running, the dispatch queue was full, or the loop fell
// behind schedule.
func (sub *Subscription) Skipped() uint64 {
	return sub.skips.Load()
}

// subscriptionHeap orders subscriptions by their next deadline. It keeps
// each subscription's heapIndex current so cancellation can remove entries
// without a scan.
type subscriptionHeap []*Subscription

func (h subscriptionHeap) Len() int { return len(h) }

func (h subscriptionHeap) Less(i, j int) bool { return h[i].next.Before(h[j].next) }

func (h subscriptionHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *subscriptionHeap) Push(x any) {
	sub := x.(*Subscription)
	sub.heapIndex = len(*h)
	*h = append(*h, sub)
}

func (h *subscriptionHeap) Pop() any {
	old := *h
	n := len(old)
	sub := old[n-1]
	old[n-1] = nil
	sub.heapIndex = -1
	*h = old[:n-1]
	return sub
}
