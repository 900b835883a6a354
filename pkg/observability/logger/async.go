package logger

import (
	"context"
	"sync"
	"sync/atomic"
)

// AsyncConfig configures the async logger wrapper.
type AsyncConfig struct {
	Enabled      bool
	QueueSize    int
	DropWhenFull bool
}

type entryLevel int

const (
	entryDebug entryLevel = iota
	entryInfo
	entryWarn
	entryError
)

type logEntry struct {
	base  Logger
	level entryLevel
	msg   string
	args  []any
}

type asyncWriter struct {
	entries      chan logEntry
	dropWhenFull bool
	dropped      atomic.Uint64
	done         chan struct{}
	stopOnce     sync.Once
	stopped      atomic.Bool
}

// AsyncLogger queues log entries and writes them through a single writer
// goroutine, so entries keep their emission order even when many sessions
// log concurrently. When the queue is full it either blocks or drops,
// depending on configuration; drops are counted and reported on Close.
type AsyncLogger struct {
	base   Logger
	writer *asyncWriter
}

// WrapAsync wraps a logger with async dispatch when enabled.
// The returned Logger is the base logger itself when cfg.Enabled is false.
func WrapAsync(base Logger, cfg AsyncConfig) Logger {
	if !cfg.Enabled {
		return base
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}

	writer := &asyncWriter{
		entries:      make(chan logEntry, queueSize),
		dropWhenFull: cfg.DropWhenFull,
		done:         make(chan struct{}),
	}
	go func() {
		defer close(writer.done)
		for entry := range writer.entries {
			entry.emit()
		}
	}()

	return &AsyncLogger{
		base:   base,
		writer: writer,
	}
}

func (e logEntry) emit() {
	switch e.level {
	case entryDebug:
		e.base.Debug(e.msg, e.args...)
	case entryInfo:
		e.base.Info(e.msg, e.args...)
	case entryWarn:
		e.base.Warn(e.msg, e.args...)
	case entryError:
		e.base.Error(e.msg, e.args...)
	}
}

// Debug logs a debug-level message asynchronously.
func (l *AsyncLogger) Debug(msg string, args ...any) {
	l.enqueue(entryDebug, msg, args...)
}

// Info logs an info-level message asynchronously.
func (l *AsyncLogger) Info(msg string, args ...any) {
	l.enqueue(entryInfo, msg, args...)
}

// Warn logs a warn-level message asynchronously.
func (l *AsyncLogger) Warn(msg string, args ...any) {
	l.enqueue(entryWarn, msg, args...)
}

// Error logs an error-level message asynchronously.
func (l *AsyncLogger) Error(msg string, args ...any) {
	l.enqueue(entryError, msg, args...)
}

// With returns a new async logger whose entries carry additional fields.
// The writer goroutine and queue are shared with the parent.
func (l *AsyncLogger) With(args ...any) Logger {
	return &AsyncLogger{
		base:   l.base.With(args...),
		writer: l.writer,
	}
}

// WithContext returns a new async logger carrying correlation fields from ctx.
func (l *AsyncLogger) WithContext(ctx context.Context) Logger {
	return &AsyncLogger{
		base:   l.base.WithContext(ctx),
		writer: l.writer,
	}
}

// Close drains the queue, stops the writer goroutine, and reports how many
// entries were dropped while the queue was saturated.
func (l *AsyncLogger) Close() {
	l.writer.stopOnce.Do(func() {
		l.writer.stopped.Store(true)
		close(l.writer.entries)
		<-l.writer.done
		if dropped := l.writer.dropped.Load(); dropped > 0 {
			l.base.Warn("async logger dropped entries", "count", dropped)
		}
	})
}

func (l *AsyncLogger) enqueue(level entryLevel, msg string, args ...any) {
	if l.writer.stopped.Load() {
		logEntry{base: l.base, level: level, msg: msg, args: args}.emit()
		return
	}

	entry := logEntry{
		base:  l.base,
		level: level,
		msg:   msg,
		args:  args,
	}

	if l.writer.dropWhenFull {
		select {
		case l.writer.entries <- entry:
		default:
			l.writer.dropped.Add(1)
		}
		return
	}

	l.writer.entries <- entry
}
