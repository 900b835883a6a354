package sse

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nimburion/pulse/pkg/observability/logger"
)

// HandlerConfig configures one stream endpoint.
type HandlerConfig struct {
	// Route labels sessions started by this handler in logs, metrics, and
	// traces. Empty uses the request path.
	Route string
	// Interval is the endpoint's tick cadence. Zero uses the engine default.
	Interval time.Duration
	// MaxEvents ends each stream after this many events. Zero streams until
	// the client disconnects or the server shuts down.
	MaxEvents int
	// AssignIDs fills sequential decimal ids into events the producer leaves
	// without one.
	AssignIDs bool
	// Retry, when positive, opens each stream with a retry preamble frame
	// advising clients to wait this many milliseconds before reconnecting.
	Retry int
}

// Handler serves one SSE endpoint over HTTP. It adapts the ResponseWriter
// into a sink, starts a session on the engine, and parks until the session
// reaches a terminal state. Router agnostic; mount under gin with gin.WrapH.
type Handler struct {
	engine  *Engine
	produce ProducerFunc
	cfg     HandlerConfig
	log     logger.Logger
}

// NewHandler creates an SSE endpoint handler backed by engine.
func NewHandler(engine *Engine, produce ProducerFunc, cfg HandlerConfig) (*Handler, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	if produce == nil {
		return nil, ErrNilProducer
	}
	if cfg.MaxEvents < 0 {
		cfg.MaxEvents = 0
	}
	if cfg.Retry < 0 {
		cfg.Retry = 0
	}
	return &Handler{
		engine:  engine,
		produce: produce,
		cfg:     cfg,
		log:     engine.log,
	}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route := h.cfg.Route
	if route == "" {
		route = r.URL.Path
	}

	sink, err := newResponseSink(w, r)
	if err != nil {
		h.log.Error("streaming unsupported", "route", route, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "response writer does not support streaming")
		return
	}

	session, err := h.engine.StartStream(StreamConfig{
		Interval:  h.cfg.Interval,
		MaxEvents: h.cfg.MaxEvents,
		AssignIDs: h.cfg.AssignIDs,
		Route:     route,
	}, h.produce, sink)
	if err != nil {
		switch {
		case errors.Is(err, ErrTooManySessions):
			writeJSONError(w, http.StatusTooManyRequests, err.Error())
		case errors.Is(err, ErrEngineClosed):
			writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		default:
			h.log.Error("stream start failed", "route", route, "error", err)
			writeJSONError(w, http.StatusInternalServerError, "stream start failed")
		}
		return
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	// The stream must outlive any server-wide write deadline.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.log.Debug("clearing write deadline failed", "route", route, "error", err)
	}

	w.WriteHeader(http.StatusOK)
	sink.flusher.Flush()

	if h.cfg.Retry > 0 {
		if err := sink.Write(retryFrame(h.cfg.Retry)); err != nil {
			session.Cancel()
		}
	}

	// Cancel the session when the client goes away; the session's own write
	// failures cover the cases the context misses.
	go func() {
		select {
		case <-r.Context().Done():
			session.Cancel()
		case <-session.Done():
		}
	}()

	<-session.Done()
}

// retryFrame builds a retry-only preamble frame. Written directly by the
// adapter; the encoder itself always requires data, an id, or a comment.
func retryFrame(ms int) []byte {
	return []byte("retry: " + strconv.Itoa(ms) + "\n\n")
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
