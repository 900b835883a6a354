package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nimburion/pulse/pkg/observability/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newMeteredRouter() *gin.Engine {
	router := gin.New()
	router.Use(Metrics())
	router.GET("/streams/:name", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/broken", func(c *gin.Context) {
		c.Status(http.StatusInternalServerError)
	})
	return router
}

func TestMetrics_RequestsPassThrough(t *testing.T) {
	router := newMeteredRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/streams/flux", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/broken", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestMetrics_RecordsRouteTemplate(t *testing.T) {
	router := newMeteredRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/streams/flux", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	registry := metrics.NewRegistry()
	metricsRec := httptest.NewRecorder()
	registry.Handler().ServeHTTP(metricsRec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := metricsRec.Body.String()
	if !strings.Contains(body, "http_requests_total") {
		t.Error("expected http_requests_total in exposition")
	}
	// The route template, not the concrete path, labels the series.
	if !strings.Contains(body, `path="/streams/:name"`) {
		t.Error("expected route template label in exposition")
	}
	if strings.Contains(body, `path="/streams/flux"`) {
		t.Error("concrete paths must not label metric series")
	}
}

func TestMetrics_UnmatchedRouteLabel(t *testing.T) {
	router := newMeteredRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nowhere", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	registry := metrics.NewRegistry()
	metricsRec := httptest.NewRecorder()
	registry.Handler().ServeHTTP(metricsRec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !strings.Contains(metricsRec.Body.String(), `path="unmatched"`) {
		t.Error("expected unmatched label for routes outside the table")
	}
}
