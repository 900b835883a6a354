// Package sse implements a periodic server-sent-event stream engine: a wire
// encoder for SSE frames, a session state machine driven by a shared tick
// scheduler, a session registry, and an HTTP transport adapter.
package sse

// Event is one SSE message. Events are created fresh per tick, encoded, and
// discarded; nothing retains them after the frame is written.
type Event struct {
	// ID is the wire id field. Optional; when empty and the stream assigns
	// ids, the session fills in its next sequence number.
	ID string
	// Name is the wire event field classifying the event type. Optional.
	Name string
	// Data is the payload. It may span multiple lines; each line becomes its
	// own data field on the wire.
	Data string
	// Retry is the client reconnection delay hint in milliseconds. Zero means
	// absent.
	Retry int
	// Comment is emitted as a comment line, invisible to client application
	// code. Optional.
	Comment string
}
