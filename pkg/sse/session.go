package sse

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nimburion/pulse/pkg/observability/logger"
	"github.com/nimburion/pulse/pkg/scheduler"
)

// ProducerFunc supplies the next event for a stream session. It is invoked
// once per delivered tick, never concurrently for the same session. A
// producer shared across sessions must be safe for concurrent use.
type ProducerFunc func() (Event, error)

// State is a session lifecycle state. Sessions start Active and end in
// exactly one of the three terminal states.
type State string

const (
	// StateActive means the session is subscribed and producing events.
	StateActive State = "active"
	// StateCompleted means the stream ended intentionally: Complete was
	// called or the configured event limit was reached.
	StateCompleted State = "completed"
	// StateFailed means the producer, encoder, or transport reported a fault.
	// The originating error is recorded on the session.
	StateFailed State = "failed"
	// StateCancelled means a caller cancelled the session or the client
	// disconnected. A normal, expected termination.
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s != StateActive
}

// Session is one active client connection consuming a periodic stream. A
// session exclusively owns its scheduler subscription and its sink; both are
// released exactly once when the session reaches a terminal state.
type Session struct {
	id        string
	route     string
	assignIDs bool
	maxEvents int
	startedAt time.Time

	produce ProducerFunc
	sink    Sink
	log     logger.Logger

	mu          sync.Mutex
	state       State
	err         error
	sequence    uint64
	lastTickSeq uint64
	sub         *scheduler.Subscription
	callbacks   []func(*Session)
	done        chan struct{}
}

func newSession(id string, cfg StreamConfig, produce ProducerFunc, sink Sink, log logger.Logger) *Session {
	return &Session{
		id:        id,
		route:     cfg.Route,
		assignIDs: cfg.AssignIDs,
		maxEvents: cfg.MaxEvents,
		startedAt: time.Now(),
		produce:   produce,
		sink:      sink,
		log:       log,
		state:     StateActive,
		done:      make(chan struct{}),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Route returns the observability label the session was started with.
func (s *Session) Route() string {
	return s.route
}

// StartedAt returns the session creation time.
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that terminated the session, if any. Completed
// sessions and sessions cancelled without a disconnect cause return nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Sequence returns the number of events delivered so far.
func (s *Session) Sequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequence
}

// Done returns a channel closed when the session reaches a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Info returns a point-in-time snapshot for registry listings.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:        s.id,
		Route:     s.route,
		State:     s.state,
		StartedAt: s.startedAt,
		Sequence:  s.sequence,
	}
}

// Cancel requests cancellation. The session transitions to Cancelled unless
// it is already terminal; idempotent and safe from any goroutine.
func (s *Session) Cancel() {
	s.transition(StateCancelled, nil)
}

// Complete ends the stream intentionally. The session transitions to
// Completed unless it is already terminal.
func (s *Session) Complete() {
	s.transition(StateCompleted, nil)
}

// OnTerminal registers fn to observe the session's final state. Each
// registered callback runs exactly once; registering on an already-terminal
// session runs fn immediately. Callbacks receive the session after its
// resources are released.
func (s *Session) OnTerminal(fn func(*Session)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	if s.state == StateActive {
		s.callbacks = append(s.callbacks, fn)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	fn(s)
}

// attach hands the session its scheduler subscription. When the session went
// terminal before the subscription arrived, the subscription is cancelled
// right away.
func (s *Session) attach(sub *scheduler.Subscription) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		sub.Cancel()
		return
	}
	s.sub = sub
	s.mu.Unlock()
}

// transition moves the session into a terminal state, releasing the
// subscription and sink exactly once. Later transitions are no-ops, so the
// first cause wins and terminal states never change.
func (s *Session) transition(state State, cause error) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.err = cause
	sub := s.sub
	s.sub = nil
	callbacks := s.callbacks
	s.callbacks = nil
	close(s.done)
	s.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	if err := s.sink.Close(); err != nil {
		s.log.Debug("sink close failed", "error", err)
	}

	for _, fn := range callbacks {
		fn(s)
	}
}

// handleTick runs one production cycle: produce, assign the default id,
// encode, write. The scheduler guarantees at most one handleTick in flight
// per session, so events reach the sink in strict tick order.
func (s *Session) handleTick(tick scheduler.Tick) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		recordTicksSkipped(skipReasonTerminal, 1)
		return
	}
	if gap := tick.Seq - s.lastTickSeq - 1; gap > 0 {
		recordTicksSkipped(skipReasonCoalesced, gap)
	}
	s.lastTickSeq = tick.Seq
	seq := s.sequence
	s.mu.Unlock()

	event, err := s.callProducer()
	if err != nil {
		s.transition(StateFailed, err)
		return
	}

	// Cancellation may have landed while the producer ran; drop the event
	// rather than writing past a terminal state.
	if s.State() != StateActive {
		return
	}

	if s.assignIDs && event.ID == "" {
		event.ID = strconv.FormatUint(seq, 10)
	}

	frame, err := Encode(event)
	if err != nil {
		s.transition(StateFailed, err)
		return
	}

	start := time.Now()
	if err := s.sink.Write(frame); err != nil {
		var writeErr *WriteError
		if errors.As(err, &writeErr) && writeErr.Disconnect() {
			s.transition(StateCancelled, writeErr)
		} else if writeErr != nil {
			s.transition(StateFailed, writeErr)
		} else {
			s.transition(StateFailed, NewTransportError(err))
		}
		return
	}
	observeEventWrite(time.Since(start))

	s.mu.Lock()
	s.sequence++
	delivered := s.sequence
	s.mu.Unlock()
	recordEventEmitted(s.route)

	if s.maxEvents > 0 && delivered >= uint64(s.maxEvents) {
		s.transition(StateCompleted, nil)
	}
}

// callProducer invokes the producer, converting errors and panics into
// *ProducerError so a misbehaving producer can never take down a worker.
func (s *Session) callProducer() (Event, error) {
	var (
		event Event
		err   error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				event = Event{}
				err = &ProducerError{Err: fmt.Errorf("panic: %v", r)}
			}
		}()
		var perr error
		event, perr = s.produce()
		if perr != nil {
			err = &ProducerError{Err: perr}
		}
	}()
	return event, err
}
