package sse

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"syscall"
)

// Sink receives encoded frames for one session. The session owns its sink
// and closes it exactly once on terminal transition.
type Sink interface {
	// Write pushes one encoded frame to the client. A failed write returns a
	// *WriteError classifying the fault as disconnect or transport.
	Write(frame []byte) error
	// Close releases the transport resource backing the sink. Idempotent;
	// writes after Close fail with a disconnect-class error.
	Close() error
}

// responseSink adapts an http.ResponseWriter into a Sink. Every write is
// flushed so frames reach the client without buffering. Writes are
// serialized; the handler may write a preamble while the session streams.
type responseSink struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
	req     *http.Request
	closed  bool
}

// newResponseSink wraps w for streaming. It fails when the writer cannot
// flush, which the handler surfaces as a 500.
func newResponseSink(w http.ResponseWriter, r *http.Request) (*responseSink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer does not support streaming")
	}
	return &responseSink{w: w, flusher: flusher, req: r}, nil
}

func (s *responseSink) Write(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NewDisconnectError(net.ErrClosed)
	}
	if err := s.req.Context().Err(); err != nil {
		return NewDisconnectError(err)
	}
	if _, err := s.w.Write(frame); err != nil {
		return s.classify(err)
	}
	s.flusher.Flush()
	return nil
}

func (s *responseSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// The HTTP server closes the connection when the handler returns; the
	// sink only has to fence off late writes.
	s.closed = true
	return nil
}

func (s *responseSink) classify(err error) *WriteError {
	if s.req.Context().Err() != nil || isDisconnectError(err) {
		return NewDisconnectError(err)
	}
	return NewTransportError(err)
}

// isDisconnectError reports whether err means the peer went away rather than
// the transport misbehaving.
func isDisconnectError(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, http.ErrHandlerTimeout)
}
