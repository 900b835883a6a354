package sse

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nimburion/pulse/pkg/observability/logger"
	"github.com/nimburion/pulse/pkg/observability/tracing"
	"github.com/nimburion/pulse/pkg/scheduler"
)

const (
	// DefaultMaxSessions is the session capacity when none is configured.
	DefaultMaxSessions = 1024
	// DefaultStreamInterval is the tick cadence for streams that do not set
	// their own.
	DefaultStreamInterval = 3 * time.Second
)

// EngineConfig controls the engine's scheduler and session limits.
type EngineConfig struct {
	// MaxSessions caps concurrently active sessions. Zero means unlimited;
	// negative values are treated as zero.
	MaxSessions int
	// Workers is the scheduler's callback worker count.
	Workers int
	// QueueSize is the scheduler's dispatch queue capacity.
	QueueSize int
	// DefaultInterval is the tick cadence applied when StreamConfig.Interval
	// is zero.
	DefaultInterval time.Duration
}

// DefaultEngineConfig returns the engine defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxSessions:     DefaultMaxSessions,
		Workers:         scheduler.DefaultWorkers,
		QueueSize:       scheduler.DefaultQueueSize,
		DefaultInterval: DefaultStreamInterval,
	}
}

func (c *EngineConfig) normalize() {
	if c.MaxSessions < 0 {
		c.MaxSessions = 0
	}
	if c.Workers <= 0 {
		c.Workers = scheduler.DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = scheduler.DefaultQueueSize
	}
	if c.DefaultInterval <= 0 {
		c.DefaultInterval = DefaultStreamInterval
	}
}

// StreamConfig configures one stream session.
type StreamConfig struct {
	// Interval is the tick cadence. Zero falls back to the engine default.
	Interval time.Duration
	// MaxEvents ends the stream with Completed after this many delivered
	// events. Zero means unbounded.
	MaxEvents int
	// AssignIDs fills in sequential decimal ids (starting at 0) for events
	// the producer leaves without one.
	AssignIDs bool
	// Route labels the session in logs, metrics, and traces.
	Route string
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger. Required.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// Engine owns the shared scheduler and the session registry, and starts
// stream sessions on behalf of transport adapters.
type Engine struct {
	log      logger.Logger
	config   EngineConfig
	sched    *scheduler.Scheduler
	registry *Registry

	mu     sync.Mutex
	closed bool
}

// NewEngine creates an engine and starts its scheduler. The engine runs
// until Close.
func NewEngine(config EngineConfig, opts ...Option) (*Engine, error) {
	config.normalize()

	e := &Engine{
		config:   config,
		registry: NewRegistry(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		return nil, errors.New("logger is required")
	}

	sched, err := scheduler.NewScheduler(e.log, scheduler.Config{
		Workers:   config.Workers,
		QueueSize: config.QueueSize,
	})
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	if err := sched.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("start scheduler: %w", err)
	}
	e.sched = sched

	e.log.Info("stream engine started",
		"max_sessions", config.MaxSessions,
		"workers", config.Workers,
		"queue_size", config.QueueSize,
		"default_interval", config.DefaultInterval,
	)
	return e, nil
}

// StartStream accepts a new stream session: it validates inputs, enforces
// the session cap, registers the session, and subscribes it to the shared
// scheduler. The first event is produced one interval after this call.
func (e *Engine) StartStream(cfg StreamConfig, produce ProducerFunc, sink Sink) (*Session, error) {
	if produce == nil {
		return nil, ErrNilProducer
	}
	if sink == nil {
		return nil, ErrNilSink
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = e.config.DefaultInterval
	}
	if cfg.MaxEvents < 0 {
		cfg.MaxEvents = 0
	}

	id := uuid.NewString()
	log := e.log.With("session_id", id, "route", normalizeStreamLabel(cfg.Route))
	session := newSession(id, cfg, produce, sink, log)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	if e.config.MaxSessions > 0 && e.registry.Len() >= e.config.MaxSessions {
		e.mu.Unlock()
		return nil, ErrTooManySessions
	}
	e.registry.register(session)
	incrementSessionsActive()
	recordSessionStarted()
	e.mu.Unlock()

	_, span := tracing.StartSessionSpan(
		logger.ContextWithSessionID(context.Background(), id),
		cfg.Route,
		tracing.WithSessionID(id),
		tracing.WithInterval(interval),
		tracing.WithMaxEvents(uint64(cfg.MaxEvents)),
	)

	// Fires immediately if a racing Close cancelled the session between
	// registration and this point, so the unregister and gauge decrement
	// never go missing.
	session.OnTerminal(func(s *Session) {
		e.registry.unregister(s.ID())
		decrementSessionsActive()
		recordSessionTermination(string(s.State()))
		tracing.EndSessionSpan(span, string(s.State()), s.Sequence(), s.Err())

		if s.State() == StateFailed {
			log.Error("stream session failed", "events", s.Sequence(), "error", s.Err())
			return
		}
		log.Info("stream session finished", "state", s.State(), "events", s.Sequence(), "error", s.Err())
	})

	sub, err := e.sched.Subscribe(interval, session.handleTick)
	if err != nil {
		if errors.Is(err, scheduler.ErrClosed) {
			err = ErrEngineClosed
		}
		session.transition(StateFailed, err)
		return nil, err
	}
	session.attach(sub)

	log.Info("stream session started", "interval", interval, "max_events", cfg.MaxEvents, "assign_ids", cfg.AssignIDs)
	return session, nil
}

// Close cancels all active sessions and stops the scheduler, waiting under
// the caller's deadline. StartStream afterwards returns ErrEngineClosed.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	active := e.registry.Len()
	if active > 0 {
		e.log.Info("cancelling active sessions", "count", active)
	}
	e.registry.CancelAll()

	if err := e.sched.Stop(ctx); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	e.log.Info("stream engine closed")
	return nil
}

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// ActiveSessions returns the number of registered sessions.
func (e *Engine) ActiveSessions() int {
	return e.registry.Len()
}

// Sessions returns snapshots of all active sessions.
func (e *Engine) Sessions() []SessionInfo {
	return e.registry.ListActive()
}

// Config returns the engine's normalized configuration.
func (e *Engine) Config() EngineConfig {
	return e.config
}
