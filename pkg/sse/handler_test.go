package sse

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// noFlushWriter hides the recorder's Flush method so the handler sees a
// writer that cannot stream.
type noFlushWriter struct {
	http.ResponseWriter
}

func newTestHandler(t *testing.T, engine *Engine, cfg HandlerConfig) *Handler {
	t.Helper()
	handler, err := NewHandler(engine, func() (Event, error) {
		return Event{Data: "payload"}, nil
	}, cfg)
	if err != nil {
		t.Fatalf("NewHandler failed: %v", err)
	}
	return handler
}

func TestNewHandler_Validation(t *testing.T) {
	engine := newTestEngine(t, DefaultEngineConfig())

	_, err := NewHandler(nil, func() (Event, error) { return Event{Data: "x"}, nil }, HandlerConfig{})
	if err == nil || err.Error() != "engine is required" {
		t.Errorf("expected engine requirement error, got %v", err)
	}

	_, err = NewHandler(engine, nil, HandlerConfig{})
	if !errors.Is(err, ErrNilProducer) {
		t.Errorf("expected ErrNilProducer, got %v", err)
	}

	handler, err := NewHandler(engine, func() (Event, error) { return Event{Data: "x"}, nil }, HandlerConfig{MaxEvents: -1, Retry: -100})
	if err != nil {
		t.Fatalf("NewHandler failed: %v", err)
	}
	if handler.cfg.MaxEvents != 0 || handler.cfg.Retry != 0 {
		t.Errorf("expected negatives clamped, got MaxEvents=%d Retry=%d", handler.cfg.MaxEvents, handler.cfg.Retry)
	}
}

func TestHandler_StreamsEventsToCompletion(t *testing.T) {
	engine := newTestEngine(t, DefaultEngineConfig())
	handler := newTestHandler(t, engine, HandlerConfig{
		Route:     "/sse/stream-sse",
		Interval:  20 * time.Millisecond,
		MaxEvents: 2,
		AssignIDs: true,
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	resp, err := http.Get(server.URL + "/sse/stream-sse")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %q", got)
	}
	if got := resp.Header.Get("Cache-Control"); got != "no-cache" {
		t.Errorf("expected no-cache, got %q", got)
	}
	if got := resp.Header.Get("X-Accel-Buffering"); got != "no" {
		t.Errorf("expected X-Accel-Buffering no, got %q", got)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading stream failed: %v", err)
	}
	want := "id: 0\ndata: payload\n\nid: 1\ndata: payload\n\n"
	if string(body) != want {
		t.Errorf("stream mismatch\ngot:  %q\nwant: %q", string(body), want)
	}
}

func TestHandler_WritesRetryPreamble(t *testing.T) {
	engine := newTestEngine(t, DefaultEngineConfig())
	handler := newTestHandler(t, engine, HandlerConfig{
		Interval:  20 * time.Millisecond,
		MaxEvents: 1,
		Retry:     1500,
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading stream failed: %v", err)
	}
	if !strings.HasPrefix(string(body), "retry: 1500\n\n") {
		t.Errorf("expected retry preamble, got %q", string(body))
	}
	if !strings.Contains(string(body), "data: payload\n\n") {
		t.Errorf("expected event after preamble, got %q", string(body))
	}
}

func TestHandler_ClientDisconnectCancelsSession(t *testing.T) {
	engine := newTestEngine(t, DefaultEngineConfig())
	handler := newTestHandler(t, engine, HandlerConfig{Interval: time.Hour})

	server := httptest.NewServer(handler)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/sse/stream-flux", nil)
	if err != nil {
		t.Fatalf("building request failed: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	waitUntil(t, 2*time.Second, func() bool { return engine.ActiveSessions() == 1 })

	// The route label defaults to the request path.
	infos := engine.Sessions()
	if len(infos) != 1 || infos[0].Route != "/sse/stream-flux" {
		t.Errorf("unexpected session snapshot: %+v", infos)
	}

	cancel()
	waitUntil(t, 2*time.Second, func() bool { return engine.ActiveSessions() == 0 })
}

func TestHandler_RejectsNonStreamingWriter(t *testing.T) {
	engine := newTestEngine(t, DefaultEngineConfig())
	handler := newTestHandler(t, engine, HandlerConfig{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sse/stream-sse", nil)
	handler.ServeHTTP(noFlushWriter{rec}, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body failed: %v", err)
	}
	if body["error"] != "response writer does not support streaming" {
		t.Errorf("unexpected error body: %v", body)
	}
}

func TestHandler_TooManySessionsReturns429(t *testing.T) {
	config := DefaultEngineConfig()
	config.MaxSessions = 1
	engine := newTestEngine(t, config)
	handler := newTestHandler(t, engine, HandlerConfig{Interval: time.Hour})

	occupant, err := engine.StartStream(StreamConfig{Interval: time.Hour}, func() (Event, error) {
		return Event{Data: "x"}, nil
	}, &fakeSink{})
	if err != nil {
		t.Fatalf("StartStream failed: %v", err)
	}
	defer occupant.Cancel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sse/stream-sse", nil)
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "too many active sessions") {
		t.Errorf("unexpected body: %q", rec.Body.String())
	}
}

func TestHandler_EngineClosedReturns503(t *testing.T) {
	engine := newTestEngine(t, DefaultEngineConfig())
	handler := newTestHandler(t, engine, HandlerConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := engine.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/sse/stream-sse", nil)
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "engine closed") {
		t.Errorf("unexpected body: %q", rec.Body.String())
	}
}
