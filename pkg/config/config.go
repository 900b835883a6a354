package config

import "time"

// Config is the root configuration structure for the stream engine service
type Config struct {
	Service         ServiceConfig
	HTTP            HTTPConfig
	Management      ManagementConfig
	Stream          StreamConfig `mapstructure:"stream"`
	RateLimit       RateLimitConfig
	CORS            CORSConfig
	SecurityHeaders SecurityHeadersConfig `mapstructure:"security_headers"`
	Observability   ObservabilityConfig
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// HTTPConfig configures the public API server
type HTTPConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	MaxRequestSize int64         `mapstructure:"max_request_size"`
}

// ManagementConfig configures the management server
type ManagementConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// StreamConfig configures the periodic stream engine runtime.
type StreamConfig struct {
	DefaultInterval time.Duration `mapstructure:"default_interval"`
	MaxSessions     int           `mapstructure:"max_sessions"`
	Workers         int           `mapstructure:"workers"`
	QueueSize       int           `mapstructure:"queue_size"`
	DefaultRetryMS  int           `mapstructure:"default_retry_ms"`
}

// RateLimitConfig configures per-client rate limiting on the public server.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerSecond int  `mapstructure:"requests_per_second"`
	Burst             int  `mapstructure:"burst"`
}

// CORSConfig configures CORS for browser-based stream consumers.
type CORSConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	AllowAllOrigins  bool          `mapstructure:"allow_all_origins"`
	AllowOrigins     []string      `mapstructure:"allow_origins"`
	AllowMethods     []string      `mapstructure:"allow_methods"`
	AllowHeaders     []string      `mapstructure:"allow_headers"`
	ExposeHeaders    []string      `mapstructure:"expose_headers"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	MaxAge           time.Duration `mapstructure:"max_age"`
	AllowWildcard    bool          `mapstructure:"allow_wildcard"`
}

// SecurityHeadersConfig configures response header hardening.
type SecurityHeadersConfig struct {
	Enabled                   bool              `mapstructure:"enabled"`
	AllowedHosts              []string          `mapstructure:"allowed_hosts"`
	SSLProxyHeaders           map[string]string `mapstructure:"ssl_proxy_headers"`
	STSSeconds                int64             `mapstructure:"sts_seconds"`
	STSIncludeSubdomains      bool              `mapstructure:"sts_include_subdomains"`
	STSPreload                bool              `mapstructure:"sts_preload"`
	FrameOptions              string            `mapstructure:"frame_options"`
	ContentTypeNosniff        bool              `mapstructure:"content_type_nosniff"`
	ContentSecurityPolicy     string            `mapstructure:"content_security_policy"`
	ReferrerPolicy            string            `mapstructure:"referrer_policy"`
	PermissionsPolicy         string            `mapstructure:"permissions_policy"`
	CrossOriginOpenerPolicy   string            `mapstructure:"cross_origin_opener_policy"`
	CrossOriginResourcePolicy string            `mapstructure:"cross_origin_resource_policy"`
}

// ObservabilityConfig configures logging, metrics, and tracing
type ObservabilityConfig struct {
	LogLevel          string             `mapstructure:"log_level"`
	LogFormat         string             `mapstructure:"log_format"` // json, text
	ServiceName       string             `mapstructure:"service_name"`
	TracingEnabled    bool               `mapstructure:"tracing_enabled"`
	TracingSampleRate float64            `mapstructure:"tracing_sample_rate"`
	TracingEndpoint   string             `mapstructure:"tracing_endpoint"`
	AsyncLogging      AsyncLoggingConfig `mapstructure:"async_logging"`
}

// AsyncLoggingConfig configures optional asynchronous logger dispatching.
type AsyncLoggingConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	QueueSize    int  `mapstructure:"queue_size"`
	DropWhenFull bool `mapstructure:"drop_when_full"`
}

// DefaultConfig returns the configuration used when no file, environment
// variable, or flag overrides a value.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "pulse",
			Environment: "development",
		},
		HTTP: HTTPConfig{
			Port:        8080,
			ReadTimeout: 15 * time.Second,
			// Zero keeps streaming responses open past any server-wide deadline.
			WriteTimeout:   0,
			IdleTimeout:    60 * time.Second,
			MaxRequestSize: 1 << 20,
		},
		Management: ManagementConfig{
			Enabled:      true,
			Port:         9090,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Stream: StreamConfig{
			DefaultInterval: 3 * time.Second,
			MaxSessions:     1024,
			Workers:         8,
			QueueSize:       256,
			DefaultRetryMS:  0,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 100,
			Burst:             200,
		},
		CORS: CORSConfig{
			Enabled:          false,
			AllowAllOrigins:  false,
			AllowOrigins:     []string{},
			AllowMethods:     []string{"GET", "HEAD", "OPTIONS"},
			AllowHeaders:     []string{},
			ExposeHeaders:    []string{},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
			AllowWildcard:    false,
		},
		SecurityHeaders: SecurityHeadersConfig{
			Enabled:                   true,
			AllowedHosts:              []string{},
			SSLProxyHeaders:           map[string]string{"X-Forwarded-Proto": "https"},
			STSSeconds:                31536000,
			STSIncludeSubdomains:      true,
			STSPreload:                false,
			FrameOptions:              "DENY",
			ContentTypeNosniff:        true,
			ContentSecurityPolicy:     "default-src 'self'",
			ReferrerPolicy:            "strict-origin-when-cross-origin",
			PermissionsPolicy:         "geolocation=(), microphone=(), camera=()",
			CrossOriginOpenerPolicy:   "same-origin",
			CrossOriginResourcePolicy: "same-origin",
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogFormat:         "json",
			ServiceName:       "pulse",
			TracingEnabled:    false,
			TracingSampleRate: 1.0,
			TracingEndpoint:   "",
			AsyncLogging: AsyncLoggingConfig{
				Enabled:      false,
				QueueSize:    1024,
				DropWhenFull: false,
			},
		},
	}
}
