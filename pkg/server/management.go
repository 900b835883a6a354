package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nimburion/pulse/pkg/config"
	"github.com/nimburion/pulse/pkg/health"
	"github.com/nimburion/pulse/pkg/middleware/logging"
	"github.com/nimburion/pulse/pkg/middleware/recovery"
	"github.com/nimburion/pulse/pkg/middleware/requestid"
	"github.com/nimburion/pulse/pkg/observability/logger"
	"github.com/nimburion/pulse/pkg/observability/metrics"
)

// ManagementServer serves operational endpoints on a port separate from
// public traffic:
//   - /health: liveness, always 200
//   - /ready: readiness, 503 unless every registered check passes
//   - /metrics: Prometheus exposition
type ManagementServer struct {
	*Server
	healthRegistry  *health.Registry
	metricsRegistry *metrics.Registry
	router          *gin.Engine
}

// NewManagementServer creates the management server. Probe endpoints are not
// request-logged; they are polled continuously by orchestrators.
func NewManagementServer(
	cfg config.ManagementConfig,
	log logger.Logger,
	healthRegistry *health.Registry,
	metricsRegistry *metrics.Registry,
) *ManagementServer {
	router := gin.New()
	router.Use(
		requestid.RequestID(),
		logging.WithConfig(log, logging.Config{
			SkipPaths: []string{"/health", "/ready", "/metrics"},
		}),
		recovery.Recovery(log),
	)

	serverCfg := Config{
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s := &ManagementServer{
		Server:          NewServer(serverCfg, router, log),
		healthRegistry:  healthRegistry,
		metricsRegistry: metricsRegistry,
		router:          router,
	}

	router.GET("/health", s.handleHealth)
	router.GET("/ready", s.handleReady)
	router.GET("/metrics", gin.WrapH(metricsRegistry.Handler()))

	return s
}

// handleHealth is the liveness check: the process is up and serving.
func (s *ManagementServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// handleReady runs all registered health checks and reports 503 when any
// dependency is unhealthy.
func (s *ManagementServer) handleReady(c *gin.Context) {
	result := s.healthRegistry.Check(c.Request.Context())
	if !result.IsHealthy() {
		c.JSON(http.StatusServiceUnavailable, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Router returns the gin engine for registering additional routes.
func (s *ManagementServer) Router() *gin.Engine {
	return s.router
}
