package recovery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nimburion/pulse/pkg/middleware/requestid"
	"github.com/nimburion/pulse/pkg/observability/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// capturingLogger records error messages for assertions.
type capturingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Info(string, ...any)  {}
func (l *capturingLogger) Warn(string, ...any)  {}
func (l *capturingLogger) Error(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}
func (l *capturingLogger) With(...any) logger.Logger                 { return l }
func (l *capturingLogger) WithContext(context.Context) logger.Logger { return l }

func (l *capturingLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

func TestRecovery_ReturnsInternalServerError(t *testing.T) {
	log := &capturingLogger{}
	router := gin.New()
	router.Use(Recovery(log))
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))

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
	if log.errorCount() != 1 {
		t.Errorf("expected 1 logged panic, got %d", log.errorCount())
	}
}

func TestRecovery_PassesThroughNormalRequests(t *testing.T) {
	log := &capturingLogger{}
	router := gin.New()
	router.Use(Recovery(log))
	router.GET("/ok", func(c *gin.Context) {
		c.String(http.StatusOK, "fine")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if log.errorCount() != 0 {
		t.Errorf("expected no logged errors, got %d", log.errorCount())
	}
}

func TestRecovery_DoesNotOverwriteStartedResponse(t *testing.T) {
	log := &capturingLogger{}
	router := gin.New()
	router.Use(Recovery(log))
	router.GET("/late-panic", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("after write")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/late-panic", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status already sent must stand, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != "partial" {
		t.Errorf("expected body untouched, got %q", got)
	}
	if log.errorCount() != 1 {
		t.Errorf("expected the panic logged, got %d entries", log.errorCount())
	}
}

func TestRecovery_IncludesRequestID(t *testing.T) {
	log := &capturingLogger{}
	router := gin.New()
	router.Use(requestid.RequestID(), Recovery(log))
	router.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(requestid.Header, "corr-1")
	router.ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), "corr-1") {
		t.Errorf("expected request id in error body, got %q", rec.Body.String())
	}
}
