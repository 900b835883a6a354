// Package cors implements origin policy for browser-based stream consumers.
// EventSource connections are subject to CORS, so cross-origin pages can only
// subscribe to event streams when the server grants their origin.
package cors

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Config configures CORS middleware behavior.
//
// Only one origin strategy should be used: AllowAllOrigins, AllowOrigins,
// or AllowOriginFunc. When AllowOriginFunc is set it takes precedence over
// the origin list.
type Config struct {
	Enabled bool

	AllowAllOrigins bool
	AllowOrigins    []string
	AllowOriginFunc func(string) bool

	AllowMethods     []string
	AllowHeaders     []string
	AllowCredentials bool
	ExposeHeaders    []string
	MaxAge           time.Duration
	AllowWildcard    bool
}

// DefaultConfig returns CORS middleware defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:          false,
		AllowAllOrigins:  false,
		AllowOrigins:     []string{},
		AllowMethods:     []string{"GET", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{},
		AllowCredentials: false,
		ExposeHeaders:    []string{},
		MaxAge:           12 * time.Hour,
		AllowWildcard:    false,
	}
}

// CORS returns middleware implementing origin checks and preflight handling.
func CORS(cfg Config) gin.HandlerFunc {
	cfg = normalize(cfg)

	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			c.Next()
			return
		}

		if !cfg.isOriginAllowed(origin) {
			if isPreflight(c.Request) {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
			return
		}

		header := c.Writer.Header()
		applyVary(header)
		cfg.setOriginHeaders(header, origin)

		if len(cfg.ExposeHeaders) > 0 {
			header.Set("Access-Control-Expose-Headers", strings.Join(cfg.ExposeHeaders, ", "))
		}

		if isPreflight(c.Request) {
			header.Set("Access-Control-Allow-Methods", strings.Join(cfg.AllowMethods, ", "))
			if len(cfg.AllowHeaders) > 0 {
				header.Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowHeaders, ", "))
			} else if requested := c.Request.Header.Get("Access-Control-Request-Headers"); requested != "" {
				header.Set("Access-Control-Allow-Headers", requested)
			}
			if cfg.MaxAge > 0 {
				header.Set("Access-Control-Max-Age", formatMaxAge(cfg.MaxAge))
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func normalize(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.AllowOrigins == nil {
		cfg.AllowOrigins = defaults.AllowOrigins
	}
	if cfg.AllowMethods == nil {
		cfg.AllowMethods = defaults.AllowMethods
	}
	if cfg.AllowHeaders == nil {
		cfg.AllowHeaders = defaults.AllowHeaders
	}
	if cfg.ExposeHeaders == nil {
		cfg.ExposeHeaders = defaults.ExposeHeaders
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = defaults.MaxAge
	}

	for i := range cfg.AllowMethods {
		cfg.AllowMethods[i] = strings.ToUpper(strings.TrimSpace(cfg.AllowMethods[i]))
	}
	for i := range cfg.AllowOrigins {
		cfg.AllowOrigins[i] = strings.TrimSpace(cfg.AllowOrigins[i])
	}
	for i := range cfg.AllowHeaders {
		cfg.AllowHeaders[i] = strings.TrimSpace(cfg.AllowHeaders[i])
	}
	for i := range cfg.ExposeHeaders {
		cfg.ExposeHeaders[i] = strings.TrimSpace(cfg.ExposeHeaders[i])
	}

	// Wildcard origins and credentials are mutually exclusive.
	if cfg.AllowAllOrigins {
		cfg.AllowCredentials = false
	}

	return cfg
}

func isPreflight(req *http.Request) bool {
	return req.Method == http.MethodOptions && req.Header.Get("Access-Control-Request-Method") != ""
}

func (cfg Config) isOriginAllowed(origin string) bool {
	if cfg.AllowOriginFunc != nil {
		return cfg.AllowOriginFunc(origin)
	}
	if cfg.AllowAllOrigins {
		return isSchemeAllowed(origin)
	}

	if len(cfg.AllowOrigins) == 0 {
		return false
	}
	if !isSchemeAllowed(origin) {
		return false
	}

	for _, allowed := range cfg.AllowOrigins {
		if allowed == "*" {
			return true
		}
		if strings.EqualFold(allowed, origin) {
			return true
		}
		if cfg.AllowWildcard && wildcardMatch(allowed, origin) {
			return true
		}
	}
	return false
}

func isSchemeAllowed(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(strings.TrimSpace(u.Scheme))
	return scheme == "http" || scheme == "https"
}

func wildcardMatch(pattern, value string) bool {
	// Wildcard patterns are valid only with a single "*".
	if pattern == "" || strings.Count(pattern, "*") != 1 {
		return false
	}
	parts := strings.SplitN(pattern, "*", 2)
	return strings.HasPrefix(value, parts[0]) && strings.HasSuffix(value, parts[1])
}

func (cfg Config) setOriginHeaders(h http.Header, origin string) {
	if cfg.AllowCredentials {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		return
	}
	if cfg.AllowAllOrigins || cfg.hasWildcardOriginEntry() {
		h.Set("Access-Control-Allow-Origin", "*")
		return
	}
	h.Set("Access-Control-Allow-Origin", origin)
}

func (cfg Config) hasWildcardOriginEntry() bool {
	for _, allowed := range cfg.AllowOrigins {
		if strings.TrimSpace(allowed) == "*" {
			return true
		}
	}
	return false
}

func applyVary(h http.Header) {
	appendVary(h, "Origin")
	appendVary(h, "Access-Control-Request-Method")
	appendVary(h, "Access-Control-Request-Headers")
}

func appendVary(h http.Header, value string) {
	current := h.Get("Vary")
	if current == "" {
		h.Set("Vary", value)
		return
	}

	for _, part := range strings.Split(current, ",") {
		if strings.EqualFold(strings.TrimSpace(part), value) {
			return
		}
	}

	h.Set("Vary", current+", "+value)
}

func formatMaxAge(duration time.Duration) string {
	seconds := int(duration / time.Second)
	if seconds < 0 {
		return "0"
	}
	return strconv.Itoa(seconds)
}
