package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nimburion/pulse/pkg/middleware/cors"
	"github.com/nimburion/pulse/pkg/middleware/logging"
	metricsmiddleware "github.com/nimburion/pulse/pkg/middleware/metrics"
	"github.com/nimburion/pulse/pkg/middleware/recovery"
	"github.com/nimburion/pulse/pkg/middleware/requestid"
	"github.com/nimburion/pulse/pkg/middleware/requestsize"
	"github.com/nimburion/pulse/pkg/middleware/securityheaders"
	"github.com/nimburion/pulse/pkg/observability/logger"
)

// recordingLogger captures log messages by level for assertions.
type recordingLogger struct {
	mu      sync.Mutex
	entries map[string]int
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{entries: make(map[string]int)}
}

func (l *recordingLogger) record(level string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[level]++
}

func (l *recordingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries[level]
}

func (l *recordingLogger) Debug(string, ...any)                      { l.record("debug") }
func (l *recordingLogger) Info(string, ...any)                       { l.record("info") }
func (l *recordingLogger) Warn(string, ...any)                       { l.record("warn") }
func (l *recordingLogger) Error(string, ...any)                      { l.record("error") }
func (l *recordingLogger) With(...any) logger.Logger                 { return l }
func (l *recordingLogger) WithContext(context.Context) logger.Logger { return l }

// newFullStack assembles the middleware chain the public server uses.
func newFullStack(log logger.Logger, corsCfg cors.Config) *gin.Engine {
	router := gin.New()
	router.Use(
		requestid.RequestID(),
		securityheaders.SecurityHeaders(securityheaders.DefaultConfig()),
		cors.CORS(corsCfg),
		logging.Logging(log),
		recovery.Recovery(log),
		metricsmiddleware.Metrics(),
		requestsize.RequestSize(64),
	)
	return router
}

func TestFullStack_NormalRequest(t *testing.T) {
	log := newRecordingLogger()
	router := newFullStack(log, cors.Config{Enabled: true, AllowAllOrigins: true})
	router.GET("/ok", func(c *gin.Context) {
		c.String(http.StatusOK, "fine")
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("Origin", "https://app.example.com")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	// Request ID was generated and echoed.
	id := rec.Header().Get(requestid.Header)
	if id == "" {
		t.Error("expected request id header")
	} else if _, err := uuid.Parse(id); err != nil {
		t.Errorf("expected UUID request id, got %q", id)
	}

	// Security headers and CORS headers were both applied.
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("expected nosniff, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard CORS origin, got %q", got)
	}

	// The request was logged at info level.
	if log.count("info") != 1 {
		t.Errorf("expected 1 info log, got %d", log.count("info"))
	}
}

func TestFullStack_PanicRecovered(t *testing.T) {
	log := newRecordingLogger()
	router := newFullStack(log, cors.Config{Enabled: true, AllowAllOrigins: true})
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(requestid.Header, "corr-42")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body failed: %v", err)
	}
	if body["error"] != "internal_server_error" {
		t.Errorf("unexpected error body: %v", body)
	}
	if !strings.Contains(rec.Body.String(), "corr-42") {
		t.Errorf("expected request id in error body, got %q", rec.Body.String())
	}

	// Caller-supplied id still echoed on the failure response.
	if got := rec.Header().Get(requestid.Header); got != "corr-42" {
		t.Errorf("expected request id header corr-42, got %q", got)
	}

	// Panic logged by recovery, completion logged at error level by logging.
	if log.count("error") < 2 {
		t.Errorf("expected panic plus request logs at error level, got %d", log.count("error"))
	}

	// Hardening headers survive error paths.
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("expected X-Frame-Options DENY, got %q", got)
	}
}

func TestFullStack_OversizedBodyShortCircuits(t *testing.T) {
	log := newRecordingLogger()
	router := newFullStack(log, cors.Config{})
	var handlerRan bool
	router.POST("/submit", func(c *gin.Context) {
		handlerRan = true
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(strings.Repeat("x", 1024)))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	if handlerRan {
		t.Error("handler must not run for oversized declared bodies")
	}
	// Rejection is a client error, logged at warn level.
	if log.count("warn") != 1 {
		t.Errorf("expected 1 warn log, got %d", log.count("warn"))
	}
}

func TestFullStack_PreflightShortCircuits(t *testing.T) {
	log := newRecordingLogger()
	router := newFullStack(log, cors.Config{
		Enabled:      true,
		AllowOrigins: []string{"https://app.example.com"},
		AllowMethods: []string{"GET", "OPTIONS"},
	})
	router.GET("/stream", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/stream", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, OPTIONS" {
		t.Errorf("unexpected allow methods %q", got)
	}
	// Preflight still carries the hardening headers set earlier in the chain.
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("expected nosniff on preflight, got %q", got)
	}
}
