package sse

import (
	"errors"
	"fmt"
)

// Sentinel errors for engine API misuse and lifecycle violations.
var (
	// ErrNilProducer is returned by StartStream when no producer is supplied.
	ErrNilProducer = errors.New("producer is required")
	// ErrNilSink is returned by StartStream when no sink is supplied.
	ErrNilSink = errors.New("sink is required")
	// ErrTooManySessions is returned by StartStream when the engine is at its
	// configured session capacity.
	ErrTooManySessions = errors.New("too many active sessions")
	// ErrEngineClosed is returned by StartStream after Close.
	ErrEngineClosed = errors.New("engine closed")
)

// InvalidEventError reports a structurally invalid event rejected by the
// encoder. A session receiving one from Encode transitions to Failed; the
// producer is misbehaving and retrying would not help.
type InvalidEventError struct {
	Reason string
}

func (e *InvalidEventError) Error() string {
	return "invalid event: " + e.Reason
}

// WriteKind classifies a sink write failure.
type WriteKind string

const (
	// WriteKindDisconnect marks the peer going away: a closed connection,
	// cancelled request, or reset. Sessions treat it as cancellation.
	WriteKindDisconnect WriteKind = "disconnect"
	// WriteKindTransport marks any other write fault. Sessions treat it as a
	// failure.
	WriteKindTransport WriteKind = "transport"
)

// WriteError reports a sink write failure along with its classification.
type WriteError struct {
	Kind WriteKind
	Err  error
}

func (e *WriteError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("sink write failed (%s)", e.Kind)
	}
	return fmt.Sprintf("sink write failed (%s): %v", e.Kind, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Disconnect reports whether the failure means the peer went away.
func (e *WriteError) Disconnect() bool {
	return e.Kind == WriteKindDisconnect
}

// NewDisconnectError wraps err as a disconnect-class write failure.
func NewDisconnectError(err error) *WriteError {
	return &WriteError{Kind: WriteKindDisconnect, Err: err}
}

// NewTransportError wraps err as a transport-fault write failure.
func NewTransportError(err error) *WriteError {
	return &WriteError{Kind: WriteKindTransport, Err: err}
}

// ProducerError reports that a producer callback returned an error or
// panicked. The session carrying it transitions to Failed.
type ProducerError struct {
	Err error
}

func (e *ProducerError) Error() string {
	return fmt.Sprintf("producer failed: %v", e.Err)
}

func (e *ProducerError) Unwrap() error {
	return e.Err
}
