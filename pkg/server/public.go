package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nimburion/pulse/pkg/config"
	"github.com/nimburion/pulse/pkg/middleware/cors"
	"github.com/nimburion/pulse/pkg/middleware/logging"
	metricsmiddleware "github.com/nimburion/pulse/pkg/middleware/metrics"
	"github.com/nimburion/pulse/pkg/middleware/ratelimit"
	"github.com/nimburion/pulse/pkg/middleware/recovery"
	"github.com/nimburion/pulse/pkg/middleware/requestid"
	"github.com/nimburion/pulse/pkg/middleware/requestsize"
	"github.com/nimburion/pulse/pkg/middleware/securityheaders"
	"github.com/nimburion/pulse/pkg/middleware/tracing"
	"github.com/nimburion/pulse/pkg/observability/logger"
	"github.com/nimburion/pulse/pkg/sse"
)

// PublicServer is the HTTP server carrying the stream endpoints. It applies
// the standard middleware stack and rate limits stream subscriptions per
// client IP.
type PublicServer struct {
	*Server
	engine *sse.Engine
	router *gin.Engine
}

// NewPublicServer creates the public server with default CORS, security
// header, and observability middleware settings.
func NewPublicServer(
	cfg config.HTTPConfig,
	rateCfg config.RateLimitConfig,
	streamCfg config.StreamConfig,
	engine *sse.Engine,
	log logger.Logger,
) (*PublicServer, error) {
	defaults := config.DefaultConfig()
	return NewPublicServerWithConfig(
		cfg,
		defaults.CORS,
		defaults.SecurityHeaders,
		rateCfg,
		streamCfg,
		defaults.Observability,
		engine,
		log,
	)
}

// NewPublicServerWithConfig creates the public server and mounts the periodic
// stream endpoints on engine. The server's WriteTimeout should be zero so
// streams outlive any global write deadline; the handler additionally clears
// the per-connection deadline.
//
// The middleware stack is applied in the following order:
// request_id, security_headers, cors, logging, recovery, metrics,
// tracing (when enabled), request_size.
func NewPublicServerWithConfig(
	cfg config.HTTPConfig,
	corsCfg config.CORSConfig,
	securityHeadersCfg config.SecurityHeadersConfig,
	rateCfg config.RateLimitConfig,
	streamCfg config.StreamConfig,
	obsCfg config.ObservabilityConfig,
	engine *sse.Engine,
	log logger.Logger,
) (*PublicServer, error) {
	corsMiddlewareCfg := cors.Config{
		Enabled:          corsCfg.Enabled,
		AllowAllOrigins:  corsCfg.AllowAllOrigins,
		AllowOrigins:     corsCfg.AllowOrigins,
		AllowMethods:     corsCfg.AllowMethods,
		AllowHeaders:     corsCfg.AllowHeaders,
		ExposeHeaders:    corsCfg.ExposeHeaders,
		AllowCredentials: corsCfg.AllowCredentials,
		MaxAge:           corsCfg.MaxAge,
		AllowWildcard:    corsCfg.AllowWildcard,
	}

	securityHeadersMiddlewareCfg := securityheaders.Config{
		Enabled:                   securityHeadersCfg.Enabled,
		AllowedHosts:              securityHeadersCfg.AllowedHosts,
		SSLProxyHeaders:           securityHeadersCfg.SSLProxyHeaders,
		STSSeconds:                securityHeadersCfg.STSSeconds,
		STSIncludeSubdomains:      securityHeadersCfg.STSIncludeSubdomains,
		STSPreload:                securityHeadersCfg.STSPreload,
		FrameOptions:              securityHeadersCfg.FrameOptions,
		ContentTypeNosniff:        securityHeadersCfg.ContentTypeNosniff,
		ContentSecurityPolicy:     securityHeadersCfg.ContentSecurityPolicy,
		ReferrerPolicy:            securityHeadersCfg.ReferrerPolicy,
		PermissionsPolicy:         securityHeadersCfg.PermissionsPolicy,
		CrossOriginOpenerPolicy:   securityHeadersCfg.CrossOriginOpenerPolicy,
		CrossOriginResourcePolicy: securityHeadersCfg.CrossOriginResourcePolicy,
	}

	// Apply standard middleware stack
	type middlewareEntry struct {
		name string
		fn   gin.HandlerFunc
	}
	namedMiddlewares := []middlewareEntry{
		{name: "request_id", fn: requestid.RequestID()},
		{name: "security_headers", fn: securityheaders.SecurityHeaders(securityHeadersMiddlewareCfg)},
		{name: "cors", fn: cors.CORS(corsMiddlewareCfg)},
		{name: "logging", fn: logging.Logging(log)},
		{name: "recovery", fn: recovery.Recovery(log)},
		{name: "metrics", fn: metricsmiddleware.Metrics()},
	}
	if obsCfg.TracingEnabled {
		namedMiddlewares = append(namedMiddlewares, middlewareEntry{
			name: "tracing",
			fn:   tracing.Tracing(tracing.Config{TracerName: "http-server"}),
		})
	}
	namedMiddlewares = append(namedMiddlewares, middlewareEntry{
		name: "request_size",
		fn:   requestsize.RequestSize(cfg.MaxRequestSize),
	})

	router := gin.New()
	middlewareNames := make([]string, 0, len(namedMiddlewares))
	for _, entry := range namedMiddlewares {
		router.Use(entry.fn)
		middlewareNames = append(middlewareNames, entry.name)
	}
	log.Debug("active middleware stack", "middlewares", strings.Join(middlewareNames, ", "))

	streams := router.Group("/sse")
	if rateCfg.Enabled {
		limiter := ratelimit.NewTokenBucketLimiter(float64(rateCfg.RequestsPerSecond), rateCfg.Burst)
		streams.Use(ratelimit.RateLimit(limiter, nil))
	}

	if err := registerStreamRoutes(streams, engine, streamCfg.DefaultRetryMS); err != nil {
		return nil, err
	}

	serverCfg := Config{
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &PublicServer{
		Server: NewServer(serverCfg, router, log),
		engine: engine,
		router: router,
	}, nil
}

// registerStreamRoutes mounts the three periodic demo endpoints. All share
// the engine's default cadence; IDs and event names follow each endpoint's
// historical shape.
func registerStreamRoutes(group *gin.RouterGroup, engine *sse.Engine, retryMS int) error {
	routes := []struct {
		path    string
		produce sse.ProducerFunc
		cfg     sse.HandlerConfig
	}{
		{
			path:    "/stream-flux",
			produce: fluxProducer,
			cfg:     sse.HandlerConfig{Route: "/sse/stream-flux", Retry: retryMS},
		},
		{
			path:    "/stream-sse",
			produce: periodicProducer,
			cfg:     sse.HandlerConfig{Route: "/sse/stream-sse", AssignIDs: true, Retry: retryMS},
		},
		{
			path:    "/stream-sse-mvc",
			produce: mvcProducer,
			cfg:     sse.HandlerConfig{Route: "/sse/stream-sse-mvc", AssignIDs: true, Retry: retryMS},
		},
	}

	for _, route := range routes {
		handler, err := sse.NewHandler(engine, route.produce, route.cfg)
		if err != nil {
			return fmt.Errorf("mount %s: %w", route.cfg.Route, err)
		}
		group.GET(route.path, gin.WrapH(handler))
	}
	return nil
}

func fluxProducer() (sse.Event, error) {
	return sse.Event{Data: "Flux_Example - text/event-stream"}, nil
}

func periodicProducer() (sse.Event, error) {
	return sse.Event{
		Name: "periodic-event",
		Data: "SSE - application/stream+json" + time.Now().Format("15:04:05"),
	}, nil
}

func mvcProducer() (sse.Event, error) {
	return sse.Event{
		Name: "sse event - mvc",
		Data: "SSE MVC - " + time.Now().Format("15:04:05"),
	}, nil
}

// Engine returns the stream engine backing the endpoints.
func (s *PublicServer) Engine() *sse.Engine {
	return s.engine
}

// Router returns the gin engine for registering additional routes.
func (s *PublicServer) Router() *gin.Engine {
	return s.router
}
