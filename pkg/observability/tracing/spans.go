package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSessionSpan creates a span covering one stream session from accept to
// terminal state. The route names the stream endpoint the session serves.
func StartSessionSpan(ctx context.Context, route string, opts ...SessionSpanOption) (context.Context, trace.Span) {
	tracer := otel.Tracer("stream")

	spanOpts := &sessionSpanOptions{
		attributes: []attribute.KeyValue{
			attribute.String("stream.route", route),
		},
	}
	for _, opt := range opts {
		opt(spanOpts)
	}

	spanName := "STREAM session"
	if route != "" {
		spanName = fmt.Sprintf("STREAM session %s", route)
	}

	ctx, span := tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(spanOpts.attributes...)

	return ctx, span
}

// SessionSpanOption configures a session span.
type SessionSpanOption func(*sessionSpanOptions)

type sessionSpanOptions struct {
	attributes []attribute.KeyValue
}

// WithSessionID sets the stream session identifier.
func WithSessionID(id string) SessionSpanOption {
	return func(opts *sessionSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("stream.session_id", id))
	}
}

// WithInterval sets the tick interval driving the session.
func WithInterval(interval time.Duration) SessionSpanOption {
	return func(opts *sessionSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.Int64("stream.interval_ms", interval.Milliseconds()))
	}
}

// WithMaxEvents sets the event limit for bounded streams (0 = unbounded).
func WithMaxEvents(maxEvents uint64) SessionSpanOption {
	return func(opts *sessionSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.Int64("stream.max_events", int64(maxEvents)))
	}
}

// WithRemoteAddr sets the client address consuming the stream.
func WithRemoteAddr(addr string) SessionSpanOption {
	return func(opts *sessionSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("client.address", addr))
	}
}

// EndSessionSpan records the terminal outcome of a session and ends the span.
// Failed sessions carry their originating error; completed and cancelled
// sessions end with an OK status since both are expected terminations.
func EndSessionSpan(span trace.Span, state string, eventsDelivered uint64, err error) {
	span.SetAttributes(
		attribute.String("stream.terminal_state", state),
		attribute.Int64("stream.events_delivered", int64(eventsDelivered)),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// RecordError records an error in the span and sets the span status to error.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// RecordSuccess sets the span status to OK.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
