package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader using Viper for configuration management
type ViperLoader struct {
	configFile         string
	envPrefix          string
	serviceNameDefault string
}

// NewViperLoader creates a new ViperLoader
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (e.g., "PULSE")
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// WithServiceNameDefault sets the default service.name used when no config/env override is provided.
func (l *ViperLoader) WithServiceNameDefault(serviceName string) *ViperLoader {
	if l == nil {
		return l
	}
	l.serviceNameDefault = strings.TrimSpace(serviceName)
	return l
}

// Load loads configuration with precedence: ENV > file > defaults
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()

	// Start with defaults
	defaults := DefaultConfig()
	l.setDefaults(v, defaults)

	// Read config file if provided
	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified but couldn't be read
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	// Environment variables override file config through explicit bindings.
	v.SetEnvPrefix(l.envPrefix)

	// Map legacy env names to standard abbreviated keys when needed.
	l.bindLegacyEnvVars()

	// Bind all environment variables explicitly for nested structs
	l.bindEnvVars(v)

	// Unmarshal into a new config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// bindEnvVars explicitly binds environment variables for nested structs
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	// Service
	v.BindEnv("service.name", l.prefixedEnv("SERVICE_NAME"))
	v.BindEnv("service.environment", l.prefixedEnv("SERVICE_ENVIRONMENT"), l.prefixedEnv("ENVIRONMENT"))

	// HTTP
	v.BindEnv("http.port", l.prefixedEnv("HTTP_PORT"))
	v.BindEnv("http.read_timeout", l.prefixedEnv("HTTP_READ_TIMEOUT"))
	v.BindEnv("http.write_timeout", l.prefixedEnv("HTTP_WRITE_TIMEOUT"))
	v.BindEnv("http.idle_timeout", l.prefixedEnv("HTTP_IDLE_TIMEOUT"))
	v.BindEnv("http.max_request_size", l.prefixedEnv("HTTP_MAX_REQUEST_SIZE"))

	// Management
	v.BindEnv("management.enabled", l.prefixedEnv("MGMT_ENABLED"))
	v.BindEnv("management.port", l.prefixedEnv("MGMT_PORT"))
	v.BindEnv("management.read_timeout", l.prefixedEnv("MGMT_READ_TIMEOUT"))
	v.BindEnv("management.write_timeout", l.prefixedEnv("MGMT_WRITE_TIMEOUT"))

	// Stream engine
	v.BindEnv("stream.default_interval", l.prefixedEnv("STREAM_DEFAULT_INTERVAL"))
	v.BindEnv("stream.max_sessions", l.prefixedEnv("STREAM_MAX_SESSIONS"))
	v.BindEnv("stream.workers", l.prefixedEnv("STREAM_WORKERS"))
	v.BindEnv("stream.queue_size", l.prefixedEnv("STREAM_QUEUE_SIZE"))
	v.BindEnv("stream.default_retry_ms", l.prefixedEnv("STREAM_DEFAULT_RETRY_MS"))

	// Rate limit
	v.BindEnv("rate_limit.enabled", l.prefixedEnv("RATE_LIMIT_ENABLED"))
	v.BindEnv("rate_limit.requests_per_second", l.prefixedEnv("RATE_LIMIT_REQUESTS_PER_SECOND"))
	v.BindEnv("rate_limit.burst", l.prefixedEnv("RATE_LIMIT_BURST"))

	// CORS
	v.BindEnv("cors.enabled", l.prefixedEnv("CORS_ENABLED"))
	v.BindEnv("cors.allow_all_origins", l.prefixedEnv("CORS_ALLOW_ALL_ORIGINS"))
	v.BindEnv("cors.allow_origins", l.prefixedEnv("CORS_ALLOW_ORIGINS"))
	v.BindEnv("cors.allow_methods", l.prefixedEnv("CORS_ALLOW_METHODS"))
	v.BindEnv("cors.allow_headers", l.prefixedEnv("CORS_ALLOW_HEADERS"))
	v.BindEnv("cors.expose_headers", l.prefixedEnv("CORS_EXPOSE_HEADERS"))
	v.BindEnv("cors.allow_credentials", l.prefixedEnv("CORS_ALLOW_CREDENTIALS"))
	v.BindEnv("cors.max_age", l.prefixedEnv("CORS_MAX_AGE"))
	v.BindEnv("cors.allow_wildcard", l.prefixedEnv("CORS_ALLOW_WILDCARD"))

	// Security headers
	v.BindEnv("security_headers.enabled", l.prefixedEnv("SECURITY_HEADERS_ENABLED"))
	v.BindEnv("security_headers.allowed_hosts", l.prefixedEnv("SECURITY_HEADERS_ALLOWED_HOSTS"))
	v.BindEnv("security_headers.sts_seconds", l.prefixedEnv("SECURITY_HEADERS_STS_SECONDS"))
	v.BindEnv("security_headers.sts_include_subdomains", l.prefixedEnv("SECURITY_HEADERS_STS_INCLUDE_SUBDOMAINS"))
	v.BindEnv("security_headers.sts_preload", l.prefixedEnv("SECURITY_HEADERS_STS_PRELOAD"))
	v.BindEnv("security_headers.frame_options", l.prefixedEnv("SECURITY_HEADERS_FRAME_OPTIONS"))
	v.BindEnv("security_headers.content_type_nosniff", l.prefixedEnv("SECURITY_HEADERS_CONTENT_TYPE_NOSNIFF"))
	v.BindEnv("security_headers.content_security_policy", l.prefixedEnv("SECURITY_HEADERS_CONTENT_SECURITY_POLICY"))
	v.BindEnv("security_headers.referrer_policy", l.prefixedEnv("SECURITY_HEADERS_REFERRER_POLICY"))
	v.BindEnv("security_headers.permissions_policy", l.prefixedEnv("SECURITY_HEADERS_PERMISSIONS_POLICY"))
	v.BindEnv("security_headers.cross_origin_opener_policy", l.prefixedEnv("SECURITY_HEADERS_CROSS_ORIGIN_OPENER_POLICY"))
	v.BindEnv("security_headers.cross_origin_resource_policy", l.prefixedEnv("SECURITY_HEADERS_CROSS_ORIGIN_RESOURCE_POLICY"))

	// Observability
	v.BindEnv("observability.log_level", l.prefixedEnv("OBSERVABILITY_LOG_LEVEL"), l.prefixedEnv("LOG_LEVEL"))
	v.BindEnv("observability.log_format", l.prefixedEnv("OBSERVABILITY_LOG_FORMAT"), l.prefixedEnv("LOG_FORMAT"))
	v.BindEnv("observability.service_name", l.prefixedEnv("OBSERVABILITY_SERVICE_NAME"))
	v.BindEnv("observability.tracing_enabled", l.prefixedEnv("OBSERVABILITY_TRACING_ENABLED"))
	v.BindEnv("observability.tracing_sample_rate", l.prefixedEnv("OBSERVABILITY_TRACING_SAMPLE_RATE"))
	v.BindEnv("observability.tracing_endpoint", l.prefixedEnv("OBSERVABILITY_TRACING_ENDPOINT"))
	v.BindEnv("observability.async_logging.enabled", l.prefixedEnv("OBSERVABILITY_ASYNC_LOGGING_ENABLED"))
	v.BindEnv("observability.async_logging.queue_size", l.prefixedEnv("OBSERVABILITY_ASYNC_LOGGING_QUEUE_SIZE"))
	v.BindEnv("observability.async_logging.drop_when_full", l.prefixedEnv("OBSERVABILITY_ASYNC_LOGGING_DROP_WHEN_FULL"))
}

// bindLegacyEnvVars maps legacy env vars to current abbreviated names when abbreviated vars are absent.
func (l *ViperLoader) bindLegacyEnvVars() {
	aliases := []struct {
		abbrevSuffix string
		legacySuffix string
	}{
		{"MGMT_ENABLED", "MANAGEMENT_ENABLED"},
		{"MGMT_PORT", "MANAGEMENT_PORT"},
		{"MGMT_READ_TIMEOUT", "MANAGEMENT_READ_TIMEOUT"},
		{"MGMT_WRITE_TIMEOUT", "MANAGEMENT_WRITE_TIMEOUT"},
	}

	for _, alias := range aliases {
		abbrevEnv := l.prefixedEnv(alias.abbrevSuffix)
		if _, hasAbbrev := os.LookupEnv(abbrevEnv); hasAbbrev {
			continue
		}
		if legacyValue, hasLegacy := os.LookupEnv(l.prefixedEnv(alias.legacySuffix)); hasLegacy {
			_ = os.Setenv(abbrevEnv, legacyValue)
		}
	}
}

func (l *ViperLoader) prefixedEnv(suffix string) string {
	prefix := strings.TrimSpace(l.envPrefix)
	if prefix == "" {
		prefix = "PULSE"
	}
	return fmt.Sprintf("%s_%s", strings.ToUpper(prefix), suffix)
}

func (l *ViperLoader) defaultServiceName(fallback string) string {
	if l != nil {
		if configured := strings.TrimSpace(l.serviceNameDefault); configured != "" {
			return configured
		}
	}
	return strings.TrimSpace(fallback)
}

// setDefaults sets default values in Viper from the default config
func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	// Service defaults
	v.SetDefault("service.name", l.defaultServiceName(cfg.Service.Name))
	v.SetDefault("service.environment", cfg.Service.Environment)

	// HTTP defaults
	v.SetDefault("http.port", cfg.HTTP.Port)
	v.SetDefault("http.read_timeout", cfg.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", cfg.HTTP.WriteTimeout)
	v.SetDefault("http.idle_timeout", cfg.HTTP.IdleTimeout)
	v.SetDefault("http.max_request_size", cfg.HTTP.MaxRequestSize)

	// Management defaults
	v.SetDefault("management.enabled", cfg.Management.Enabled)
	v.SetDefault("management.port", cfg.Management.Port)
	v.SetDefault("management.read_timeout", cfg.Management.ReadTimeout)
	v.SetDefault("management.write_timeout", cfg.Management.WriteTimeout)

	// Stream defaults
	v.SetDefault("stream.default_interval", cfg.Stream.DefaultInterval)
	v.SetDefault("stream.max_sessions", cfg.Stream.MaxSessions)
	v.SetDefault("stream.workers", cfg.Stream.Workers)
	v.SetDefault("stream.queue_size", cfg.Stream.QueueSize)
	v.SetDefault("stream.default_retry_ms", cfg.Stream.DefaultRetryMS)

	// Rate limit defaults
	v.SetDefault("rate_limit.enabled", cfg.RateLimit.Enabled)
	v.SetDefault("rate_limit.requests_per_second", cfg.RateLimit.RequestsPerSecond)
	v.SetDefault("rate_limit.burst", cfg.RateLimit.Burst)

	// CORS defaults
	v.SetDefault("cors.enabled", cfg.CORS.Enabled)
	v.SetDefault("cors.allow_all_origins", cfg.CORS.AllowAllOrigins)
	v.SetDefault("cors.allow_origins", cfg.CORS.AllowOrigins)
	v.SetDefault("cors.allow_methods", cfg.CORS.AllowMethods)
	v.SetDefault("cors.allow_headers", cfg.CORS.AllowHeaders)
	v.SetDefault("cors.expose_headers", cfg.CORS.ExposeHeaders)
	v.SetDefault("cors.allow_credentials", cfg.CORS.AllowCredentials)
	v.SetDefault("cors.max_age", cfg.CORS.MaxAge)
	v.SetDefault("cors.allow_wildcard", cfg.CORS.AllowWildcard)

	// Security header defaults
	v.SetDefault("security_headers.enabled", cfg.SecurityHeaders.Enabled)
	v.SetDefault("security_headers.allowed_hosts", cfg.SecurityHeaders.AllowedHosts)
	v.SetDefault("security_headers.ssl_proxy_headers", cfg.SecurityHeaders.SSLProxyHeaders)
	v.SetDefault("security_headers.sts_seconds", cfg.SecurityHeaders.STSSeconds)
	v.SetDefault("security_headers.sts_include_subdomains", cfg.SecurityHeaders.STSIncludeSubdomains)
	v.SetDefault("security_headers.sts_preload", cfg.SecurityHeaders.STSPreload)
	v.SetDefault("security_headers.frame_options", cfg.SecurityHeaders.FrameOptions)
	v.SetDefault("security_headers.content_type_nosniff", cfg.SecurityHeaders.ContentTypeNosniff)
	v.SetDefault("security_headers.content_security_policy", cfg.SecurityHeaders.ContentSecurityPolicy)
	v.SetDefault("security_headers.referrer_policy", cfg.SecurityHeaders.ReferrerPolicy)
	v.SetDefault("security_headers.permissions_policy", cfg.SecurityHeaders.PermissionsPolicy)
	v.SetDefault("security_headers.cross_origin_opener_policy", cfg.SecurityHeaders.CrossOriginOpenerPolicy)
	v.SetDefault("security_headers.cross_origin_resource_policy", cfg.SecurityHeaders.CrossOriginResourcePolicy)

	// Observability defaults
	v.SetDefault("observability.log_level", cfg.Observability.LogLevel)
	v.SetDefault("observability.log_format", cfg.Observability.LogFormat)
	v.SetDefault("observability.service_name", cfg.Observability.ServiceName)
	v.SetDefault("observability.tracing_enabled", cfg.Observability.TracingEnabled)
	v.SetDefault("observability.tracing_sample_rate", cfg.Observability.TracingSampleRate)
	v.SetDefault("observability.tracing_endpoint", cfg.Observability.TracingEndpoint)
	v.SetDefault("observability.async_logging.enabled", cfg.Observability.AsyncLogging.Enabled)
	v.SetDefault("observability.async_logging.queue_size", cfg.Observability.AsyncLogging.QueueSize)
	v.SetDefault("observability.async_logging.drop_when_full", cfg.Observability.AsyncLogging.DropWhenFull)
}

// Validate checks the loaded configuration for invalid or conflicting values.
func (l *ViperLoader) Validate(cfg *Config) error {
	var errs []error

	// Validate port numbers
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid http.port: %d (must be between 1 and 65535)", cfg.HTTP.Port))
	}
	if cfg.HTTP.MaxRequestSize < 0 {
		errs = append(errs, errors.New("http.max_request_size cannot be negative"))
	}
	if cfg.HTTP.WriteTimeout < 0 {
		errs = append(errs, errors.New("http.write_timeout cannot be negative"))
	}
	if cfg.Management.Enabled {
		if cfg.Management.Port <= 0 || cfg.Management.Port > 65535 {
			errs = append(errs, fmt.Errorf("invalid management.port: %d (must be between 1 and 65535)", cfg.Management.Port))
		}
		if cfg.HTTP.Port == cfg.Management.Port {
			errs = append(errs, errors.New("http.port and management.port must be different"))
		}
	}

	// Validate stream engine configuration
	if cfg.Stream.DefaultInterval <= 0 {
		errs = append(errs, errors.New("stream.default_interval must be greater than zero"))
	}
	if cfg.Stream.MaxSessions < 0 {
		errs = append(errs, errors.New("stream.max_sessions cannot be negative"))
	}
	if cfg.Stream.Workers <= 0 {
		errs = append(errs, errors.New("stream.workers must be greater than 0"))
	}
	if cfg.Stream.QueueSize <= 0 {
		errs = append(errs, errors.New("stream.queue_size must be greater than 0"))
	}
	if cfg.Stream.DefaultRetryMS < 0 {
		errs = append(errs, errors.New("stream.default_retry_ms cannot be negative"))
	}

	// Validate rate limit configuration
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.RequestsPerSecond <= 0 {
			errs = append(errs, errors.New("rate_limit.requests_per_second must be greater than 0 when rate limiting is enabled"))
		}
		if cfg.RateLimit.Burst <= 0 {
			errs = append(errs, errors.New("rate_limit.burst must be greater than 0 when rate limiting is enabled"))
		}
	}

	// Validate CORS configuration
	if cfg.CORS.Enabled {
		if len(cfg.CORS.AllowMethods) == 0 {
			errs = append(errs, errors.New("cors.allow_methods must contain at least one method when cors is enabled"))
		}
		if cfg.CORS.AllowCredentials && cfg.CORS.AllowAllOrigins {
			errs = append(errs, errors.New("cors.allow_credentials cannot be true when cors.allow_all_origins is true"))
		}
		if cfg.CORS.AllowAllOrigins && len(cfg.CORS.AllowOrigins) > 0 {
			errs = append(errs, errors.New("cors.allow_all_origins and cors.allow_origins cannot both be set"))
		}
		if cfg.CORS.MaxAge < 0 {
			errs = append(errs, errors.New("cors.max_age cannot be negative"))
		}
		for index, origin := range cfg.CORS.AllowOrigins {
			trimmed := strings.TrimSpace(origin)
			if trimmed == "" {
				errs = append(errs, fmt.Errorf("cors.allow_origins[%d] cannot be empty", index))
				continue
			}
			if strings.Contains(trimmed, "*") {
				if trimmed == "*" {
					continue
				}
				if !cfg.CORS.AllowWildcard {
					errs = append(errs, fmt.Errorf("cors.allow_origins[%d] contains wildcard but cors.allow_wildcard is false", index))
					continue
				}
				if strings.Count(trimmed, "*") > 1 {
					errs = append(errs, fmt.Errorf("cors.allow_origins[%d] can contain only one '*' wildcard", index))
				}
			}
		}
		for index, method := range cfg.CORS.AllowMethods {
			if strings.TrimSpace(method) == "" {
				errs = append(errs, fmt.Errorf("cors.allow_methods[%d] cannot be empty", index))
			}
		}
	}

	// Validate security header configuration
	if cfg.SecurityHeaders.STSSeconds < 0 {
		errs = append(errs, errors.New("security_headers.sts_seconds cannot be negative"))
	}

	// Validate Observability configuration
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, cfg.Observability.LogLevel) {
		errs = append(errs, fmt.Errorf("invalid observability.log_level: %s (must be one of: %v)", cfg.Observability.LogLevel, validLogLevels))
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, cfg.Observability.LogFormat) {
		errs = append(errs, fmt.Errorf("invalid observability.log_format: %s (must be one of: %v)", cfg.Observability.LogFormat, validLogFormats))
	}

	if cfg.Observability.TracingEnabled && cfg.Observability.TracingEndpoint == "" {
		errs = append(errs, errors.New("observability.tracing_endpoint is required when tracing is enabled"))
	}
	if cfg.Observability.TracingSampleRate < 0 || cfg.Observability.TracingSampleRate > 1 {
		errs = append(errs, fmt.Errorf("invalid observability.tracing_sample_rate: %v (must be between 0 and 1)", cfg.Observability.TracingSampleRate))
	}

	if cfg.Observability.AsyncLogging.Enabled && cfg.Observability.AsyncLogging.QueueSize <= 0 {
		errs = append(errs, errors.New("observability.async_logging.queue_size must be greater than 0 when async logging is enabled"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// contains checks if a string slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
