package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nimburion/pulse/pkg/config"
	"github.com/nimburion/pulse/pkg/health"
	"github.com/nimburion/pulse/pkg/observability/logger"
	"github.com/nimburion/pulse/pkg/observability/metrics"
	"github.com/nimburion/pulse/pkg/observability/tracing"
	"github.com/nimburion/pulse/pkg/sse"
	"github.com/nimburion/pulse/pkg/version"
)

// LifecycleHook defines a named startup/shutdown action.
type LifecycleHook struct {
	Name string
	Fn   func(context.Context) error
}

// RunServersOptions defines inputs for building and running the service servers.
type RunServersOptions struct {
	Config *config.Config

	// Engine is optional. If nil, one is created from Config.Stream.
	Engine *sse.Engine

	Logger logger.Logger

	HealthRegistry  *health.Registry
	MetricsRegistry *metrics.Registry

	StartupHooks        []LifecycleHook
	ShutdownHooks       []LifecycleHook
	ShutdownHookTimeout time.Duration
}

// Servers groups the runtime public/management servers.
type Servers struct {
	Public     *PublicServer
	Management *ManagementServer
}

// BuildServers constructs the public and management servers from config/options.
func BuildServers(opts *RunServersOptions) (*Servers, error) {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Logger == nil {
		log, err := logger.NewZapLogger(logger.DefaultConfig())
		if err != nil {
			return nil, err
		}
		opts.Logger = log
	}

	if opts.Engine == nil {
		engine, err := sse.NewEngine(sse.EngineConfig{
			MaxSessions:     opts.Config.Stream.MaxSessions,
			Workers:         opts.Config.Stream.Workers,
			QueueSize:       opts.Config.Stream.QueueSize,
			DefaultInterval: opts.Config.Stream.DefaultInterval,
		}, sse.WithLogger(opts.Logger))
		if err != nil {
			return nil, fmt.Errorf("create stream engine: %w", err)
		}
		opts.Engine = engine
	}

	publicServer, err := NewPublicServerWithConfig(
		opts.Config.HTTP,
		opts.Config.CORS,
		opts.Config.SecurityHeaders,
		opts.Config.RateLimit,
		opts.Config.Stream,
		opts.Config.Observability,
		opts.Engine,
		opts.Logger,
	)
	if err != nil {
		return nil, fmt.Errorf("create public server: %w", err)
	}

	servers := &Servers{Public: publicServer}
	if !opts.Config.Management.Enabled {
		return servers, nil
	}

	healthRegistry := opts.HealthRegistry
	if healthRegistry == nil {
		healthRegistry = health.NewRegistry()
	}
	healthRegistry.Register(sse.NewEngineHealthChecker("stream-engine", opts.Engine))

	metricsRegistry := opts.MetricsRegistry
	if metricsRegistry == nil {
		metricsRegistry = metrics.NewRegistry()
	}

	managementServer := NewManagementServer(
		opts.Config.Management,
		opts.Logger,
		healthRegistry,
		metricsRegistry,
	)
	registerVersionEndpoint(managementServer.Router(), version.Current(resolveServiceName(opts)))

	servers.Management = managementServer
	return servers, nil
}

// RunServers starts the public server and (optionally) the management server,
// and blocks until ctx is cancelled or a server fails. The stream engine is
// closed as soon as shutdown begins so open sessions terminate and streaming
// handlers return before the HTTP drain completes.
func RunServers(ctx context.Context, servers *Servers, opts *RunServersOptions) error {
	if servers == nil || servers.Public == nil {
		return errors.New("servers and public server are required")
	}
	if opts.Logger == nil {
		return errors.New("logger is required")
	}
	if opts.Config == nil {
		return errors.New("config is required")
	}

	versionInfo := version.Current(resolveServiceName(opts))
	opts.Logger.Info("application version metadata",
		"service", versionInfo.Service,
		"version", versionInfo.Version,
		"commit", versionInfo.Commit,
		"build_time", versionInfo.BuildTime,
	)

	tracerProvider, shouldShutdownTracer, err := initTracerProvider(ctx, opts, versionInfo)
	if err != nil {
		return fmt.Errorf("initialize tracing provider: %w", err)
	}
	if shouldShutdownTracer {
		defer shutdownTracerProvider(tracerProvider, opts.Logger)
	}

	if err := runStartupHooks(ctx, opts); err != nil {
		return err
	}
	defer func() {
		if shutdownErr := runShutdownHooks(opts); shutdownErr != nil {
			opts.Logger.Error("shutdown hooks completed with errors", "error", shutdownErr)
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if engine := servers.Public.Engine(); engine != nil {
		go func() {
			<-runCtx.Done()
			if closeErr := engine.Close(context.Background()); closeErr != nil {
				opts.Logger.Error("failed to close stream engine", "error", closeErr)
			}
		}()
	}

	serverCount := 1
	if servers.Management != nil {
		serverCount = 2
	}

	errCh := make(chan error, serverCount)
	go func() { errCh <- servers.Public.Start(runCtx) }()
	if servers.Management != nil {
		go func() { errCh <- servers.Management.Start(runCtx) }()
	}

	var firstErr error
	for idx := 0; idx < serverCount; idx++ {
		currentErr := <-errCh
		if currentErr != nil && firstErr == nil {
			firstErr = currentErr
			cancel()
		}
	}
	return firstErr
}

// RunServersWithSignals runs servers with centralized signal handling.
func RunServersWithSignals(servers *Servers, opts *RunServersOptions, signals ...os.Signal) error {
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	ctx, stop := signal.NotifyContext(context.Background(), signals...)
	defer stop()
	return RunServers(ctx, servers, opts)
}

func registerVersionEndpoint(r *gin.Engine, info version.Info) {
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, info)
	})
}

func initTracerProvider(ctx context.Context, opts *RunServersOptions, info version.Info) (*tracing.TracerProvider, bool, error) {
	tracerCfg := tracing.TracerConfig{
		ServiceName:    resolveTracingServiceName(opts, info.Service),
		ServiceVersion: info.Version,
		Environment:    resolveEnvironment(opts),
		Endpoint:       opts.Config.Observability.TracingEndpoint,
		SampleRate:     opts.Config.Observability.TracingSampleRate,
		Enabled:        opts.Config.Observability.TracingEnabled,
	}

	provider, err := tracing.NewTracerProvider(ctx, tracerCfg)
	if err != nil {
		return nil, false, err
	}
	return provider, true, nil
}

func shutdownTracerProvider(provider *tracing.TracerProvider, log logger.Logger) {
	if provider == nil {
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := provider.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown tracing provider", "error", err)
	}
}

func normalizeEnvironment(env string) string {
	trimmed := strings.TrimSpace(env)
	if trimmed == "" {
		return version.Unknown
	}
	return trimmed
}

func resolveServiceName(opts *RunServersOptions) string {
	if opts.Config != nil {
		if trimmed := strings.TrimSpace(opts.Config.Service.Name); trimmed != "" {
			return trimmed
		}
	}
	return version.Unknown
}

func resolveEnvironment(opts *RunServersOptions) string {
	if opts.Config != nil {
		return normalizeEnvironment(opts.Config.Service.Environment)
	}
	return version.Unknown
}

func resolveTracingServiceName(opts *RunServersOptions, fallback string) string {
	if opts != nil && opts.Config != nil {
		if trimmed := strings.TrimSpace(opts.Config.Observability.ServiceName); trimmed != "" {
			return trimmed
		}
	}
	if trimmed := strings.TrimSpace(fallback); trimmed != "" {
		return trimmed
	}
	return version.Unknown
}

func runStartupHooks(ctx context.Context, opts *RunServersOptions) error {
	for _, hook := range opts.StartupHooks {
		if hook.Fn == nil {
			continue
		}
		name := strings.TrimSpace(hook.Name)
		if name == "" {
			name = "unnamed"
		}
		opts.Logger.Info("startup hook start", "hook", name)
		if err := hook.Fn(ctx); err != nil {
			opts.Logger.Error("startup hook failed", "hook", name, "error", err)
			return fmt.Errorf("startup hook %q failed: %w", name, err)
		}
		opts.Logger.Info("startup hook complete", "hook", name)
	}
	return nil
}

func runShutdownHooks(opts *RunServersOptions) error {
	if len(opts.ShutdownHooks) == 0 {
		return nil
	}

	timeout := opts.ShutdownHookTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var errs []error
	for _, hook := range opts.ShutdownHooks {
		if hook.Fn == nil {
			continue
		}
		name := strings.TrimSpace(hook.Name)
		if name == "" {
			name = "unnamed"
		}
		opts.Logger.Info("shutdown hook start", "hook", name)

		hookCtx, cancel := context.WithTimeout(context.Background(), timeout)
		err := hook.Fn(hookCtx)
		cancel()

		if err != nil {
			opts.Logger.Error("shutdown hook failed", "hook", name, "error", err)
			errs = append(errs, fmt.Errorf("shutdown hook %q failed: %w", name, err))
			continue
		}
		opts.Logger.Info("shutdown hook complete", "hook", name)
	}
	return errors.Join(errs...)
}
