// Package securityheaders applies response hardening headers.
package securityheaders

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Config defines security headers and host restrictions.
type Config struct {
	Enabled bool

	// AllowedHosts restricts the Host header. Empty allows any host.
	AllowedHosts []string

	// SSLProxyHeaders identify requests that arrived over TLS at a proxy,
	// e.g. {"X-Forwarded-Proto": "https"}.
	SSLProxyHeaders map[string]string

	STSSeconds           int64
	STSIncludeSubdomains bool
	STSPreload           bool

	FrameOptions              string
	ContentTypeNosniff        bool
	ContentSecurityPolicy     string
	ReferrerPolicy            string
	PermissionsPolicy         string
	CrossOriginOpenerPolicy   string
	CrossOriginResourcePolicy string
}

// DefaultConfig returns strict but safe defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:                   true,
		AllowedHosts:              []string{},
		SSLProxyHeaders:           map[string]string{"X-Forwarded-Proto": "https"},
		STSSeconds:                31536000, // 1 year
		STSIncludeSubdomains:      true,
		STSPreload:                false,
		FrameOptions:              "DENY",
		ContentTypeNosniff:        true,
		ContentSecurityPolicy:     "default-src 'self'",
		ReferrerPolicy:            "strict-origin-when-cross-origin",
		PermissionsPolicy:         "geolocation=(), microphone=(), camera=()",
		CrossOriginOpenerPolicy:   "same-origin",
		CrossOriginResourcePolicy: "same-origin",
	}
}

// SecurityHeaders returns middleware that checks the request host and sets
// hardening headers on every response, including event stream responses
// where X-Content-Type-Options keeps browsers honoring text/event-stream.
func SecurityHeaders(cfg Config) gin.HandlerFunc {
	cfg = normalize(cfg)

	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		if !checkAllowedHosts(c.Request, cfg.AllowedHosts) {
			c.String(http.StatusForbidden, "forbidden host")
			c.Abort()
			return
		}

		applyHeaders(c.Writer.Header(), cfg, isSecureRequest(c.Request, cfg))
		c.Next()
	}
}

func normalize(cfg Config) Config {
	defaults := DefaultConfig()

	if cfg.AllowedHosts == nil {
		cfg.AllowedHosts = defaults.AllowedHosts
	}
	if cfg.SSLProxyHeaders == nil {
		cfg.SSLProxyHeaders = defaults.SSLProxyHeaders
	}
	if strings.TrimSpace(cfg.FrameOptions) == "" {
		cfg.FrameOptions = defaults.FrameOptions
	}
	if strings.TrimSpace(cfg.ContentSecurityPolicy) == "" {
		cfg.ContentSecurityPolicy = defaults.ContentSecurityPolicy
	}
	if strings.TrimSpace(cfg.ReferrerPolicy) == "" {
		cfg.ReferrerPolicy = defaults.ReferrerPolicy
	}
	if strings.TrimSpace(cfg.PermissionsPolicy) == "" {
		cfg.PermissionsPolicy = defaults.PermissionsPolicy
	}
	if strings.TrimSpace(cfg.CrossOriginOpenerPolicy) == "" {
		cfg.CrossOriginOpenerPolicy = defaults.CrossOriginOpenerPolicy
	}
	if strings.TrimSpace(cfg.CrossOriginResourcePolicy) == "" {
		cfg.CrossOriginResourcePolicy = defaults.CrossOriginResourcePolicy
	}
	if cfg.STSSeconds == 0 {
		cfg.STSSeconds = defaults.STSSeconds
	}

	return cfg
}

func applyHeaders(h http.Header, cfg Config, secureReq bool) {
	if strings.TrimSpace(cfg.FrameOptions) != "" {
		h.Set("X-Frame-Options", cfg.FrameOptions)
	}
	if cfg.ContentTypeNosniff {
		h.Set("X-Content-Type-Options", "nosniff")
	}
	if strings.TrimSpace(cfg.ContentSecurityPolicy) != "" {
		h.Set("Content-Security-Policy", cfg.ContentSecurityPolicy)
	}
	if strings.TrimSpace(cfg.ReferrerPolicy) != "" {
		h.Set("Referrer-Policy", cfg.ReferrerPolicy)
	}
	if strings.TrimSpace(cfg.PermissionsPolicy) != "" {
		h.Set("Permissions-Policy", cfg.PermissionsPolicy)
	}
	if strings.TrimSpace(cfg.CrossOriginOpenerPolicy) != "" {
		h.Set("Cross-Origin-Opener-Policy", cfg.CrossOriginOpenerPolicy)
	}
	if strings.TrimSpace(cfg.CrossOriginResourcePolicy) != "" {
		h.Set("Cross-Origin-Resource-Policy", cfg.CrossOriginResourcePolicy)
	}

	// HSTS should only be sent on secure requests.
	if secureReq && cfg.STSSeconds > 0 {
		stsValue := fmt.Sprintf("max-age=%d", cfg.STSSeconds)
		if cfg.STSIncludeSubdomains {
			stsValue += "; includeSubDomains"
		}
		if cfg.STSPreload {
			stsValue += "; preload"
		}
		h.Set("Strict-Transport-Security", stsValue)
	}
}

func checkAllowedHosts(req *http.Request, allowedHosts []string) bool {
	if len(allowedHosts) == 0 {
		return true
	}

	host := req.Host
	if host == "" {
		host = req.URL.Host
	}
	host = stripPort(host)

	for _, allowed := range allowedHosts {
		if strings.EqualFold(strings.TrimSpace(allowed), host) {
			return true
		}
	}
	return false
}

func isSecureRequest(req *http.Request, cfg Config) bool {
	if strings.EqualFold(req.URL.Scheme, "https") || req.TLS != nil {
		return true
	}

	for headerName, expectedValue := range cfg.SSLProxyHeaders {
		values, ok := req.Header[headerName]
		if !ok || len(values) == 0 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(values[0]), strings.TrimSpace(expectedValue)) {
			return true
		}
	}
	return false
}

func stripPort(host string) string {
	if i := strings.IndexByte(host, ':'); i >= 0 {
		return host[:i]
	}
	return host
}
