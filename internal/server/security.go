package server

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/conneroisu/fiddle/internal/config"
	"github.com/conneroisu/fiddle/internal/errors"
	"github.com/conneroisu/fiddle/internal/logging"
)

// PreviewCSP is the Content-Security-Policy attached to every preview
// document response. The sandbox directive is the isolation contract
// for user code: scripts run, but storage, cookies, and the embedding
// page stay out of reach.
const PreviewCSP = "sandbox allow-scripts"

// SecurityConfig holds security configuration for the playground pages.
// The preview documents are NOT covered by this config; they always get
// PreviewCSP instead.
type SecurityConfig struct {
	CSP                 *CSPConfig
	XFrameOptions       string
	XContentTypeNoSniff bool
	ReferrerPolicy      string
	AllowedOrigins      []string
	RateLimiting        *RateLimitConfig
	Logger              logging.Logger
}

// CSPConfig holds Content Security Policy configuration
type CSPConfig struct {
	DefaultSrc     []string
	ScriptSrc      []string
	StyleSrc       []string
	ImgSrc         []string
	ConnectSrc     []string
	FrameSrc       []string
	FrameAncestors []string
	BaseURI        []string
	FormAction     []string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
	BurstSize         int
	WindowSize        time.Duration
	Enabled           bool
}

// DefaultSecurityConfig returns a secure default configuration. The
// playground page needs inline script and style (the editors and the
// reload channel live inline), a same-origin frame for the preview,
// and a WebSocket back to its own host.
func DefaultSecurityConfig() *SecurityConfig {
	return &SecurityConfig{
		CSP: &CSPConfig{
			DefaultSrc:     []string{"'self'"},
			ScriptSrc:      []string{"'self'", "'unsafe-inline'"},
			StyleSrc:       []string{"'self'", "'unsafe-inline'"},
			ImgSrc:         []string{"'self'", "data:"},
			ConnectSrc:     []string{"'self'", "ws:", "wss:"},
			FrameSrc:       []string{"'self'"},
			FrameAncestors: []string{"'none'"},
			BaseURI:        []string{"'self'"},
			FormAction:     []string{"'self'"},
		},
		XFrameOptions:       "DENY",
		XContentTypeNoSniff: true,
		ReferrerPolicy:      "strict-origin-when-cross-origin",
		AllowedOrigins:      []string{},
		RateLimiting: &RateLimitConfig{
			RequestsPerMinute: 1000,
			BurstSize:         50,
			WindowSize:        time.Minute,
			Enabled:           true,
		},
	}
}

// DevelopmentSecurityConfig returns a more permissive config for development
func DevelopmentSecurityConfig() *SecurityConfig {
	cfg := DefaultSecurityConfig()

	cfg.CSP.ConnectSrc = append(cfg.CSP.ConnectSrc, "*")
	cfg.XFrameOptions = "SAMEORIGIN"
	cfg.CSP.FrameAncestors = []string{"'self'"}

	cfg.RateLimiting.RequestsPerMinute = 5000
	cfg.RateLimiting.BurstSize = 200

	return cfg
}

// ProductionSecurityConfig returns a strict config for production
func ProductionSecurityConfig() *SecurityConfig {
	cfg := DefaultSecurityConfig()

	cfg.XFrameOptions = "DENY"
	cfg.CSP.FrameAncestors = []string{"'none'"}

	cfg.RateLimiting.RequestsPerMinute = 300
	cfg.RateLimiting.BurstSize = 30

	return cfg
}

// SecurityConfigFromAppConfig creates security config from application config
func SecurityConfigFromAppConfig(cfg *config.Config) *SecurityConfig {
	var secConfig *SecurityConfig
	switch cfg.Server.Environment {
	case "production":
		secConfig = ProductionSecurityConfig()
	case "development":
		secConfig = DevelopmentSecurityConfig()
	default:
		secConfig = DefaultSecurityConfig()
	}

	// The server's own origin is always a valid source of mutations,
	// plus whatever the operator allowed explicitly.
	secConfig.AllowedOrigins = append([]string{
		fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port),
		fmt.Sprintf("http://localhost:%d", cfg.Server.Port),
		fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
	}, cfg.Server.AllowedOrigins...)

	return secConfig
}

// SecurityMiddleware creates a security middleware with the given configuration
func SecurityMiddleware(secConfig *SecurityConfig) func(http.Handler) http.Handler {
	if secConfig == nil {
		secConfig = DefaultSecurityConfig()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			applySecurityHeaders(w, r, secConfig)

			// Validate origin for mutating requests
			if r.Method != http.MethodGet && r.Method != http.MethodHead && r.Method != http.MethodOptions {
				if !isValidOrigin(r, secConfig.AllowedOrigins) {
					if secConfig.Logger != nil {
						secConfig.Logger.Warn(r.Context(),
							errors.NewSecurityError("INVALID_ORIGIN", "Invalid origin in request"),
							"Security: Invalid origin",
							"origin", r.Header.Get("Origin"),
							"referer", r.Header.Get("Referer"),
							"ip", getClientIP(r))
					}
					http.Error(w, "Forbidden", http.StatusForbidden)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// applySecurityHeaders applies all configured security headers.
// Preview responses overwrite the CSP afterwards with PreviewCSP.
func applySecurityHeaders(w http.ResponseWriter, r *http.Request, cfg *SecurityConfig) {
	if cfg.CSP != nil {
		w.Header().Set("Content-Security-Policy", buildCSPHeader(cfg.CSP))
	}

	if cfg.XFrameOptions != "" {
		w.Header().Set("X-Frame-Options", cfg.XFrameOptions)
	}

	if cfg.XContentTypeNoSniff {
		w.Header().Set("X-Content-Type-Options", "nosniff")
	}

	if cfg.ReferrerPolicy != "" {
		w.Header().Set("Referrer-Policy", cfg.ReferrerPolicy)
	}

	w.Header().Set("X-DNS-Prefetch-Control", "off")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
}

// buildCSPHeader constructs the Content-Security-Policy header value
func buildCSPHeader(csp *CSPConfig) string {
	var directives []string

	addDirective := func(name string, values []string) {
		if len(values) > 0 {
			directives = append(directives, fmt.Sprintf("%s %s", name, strings.Join(values, " ")))
		}
	}

	addDirective("default-src", csp.DefaultSrc)
	addDirective("script-src", csp.ScriptSrc)
	addDirective("style-src", csp.StyleSrc)
	addDirective("img-src", csp.ImgSrc)
	addDirective("connect-src", csp.ConnectSrc)
	addDirective("frame-src", csp.FrameSrc)
	addDirective("frame-ancestors", csp.FrameAncestors)
	addDirective("base-uri", csp.BaseURI)
	addDirective("form-action", csp.FormAction)

	return strings.Join(directives, "; ")
}

// isValidOrigin validates the request origin against allowed origins
func isValidOrigin(r *http.Request, allowedOrigins []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// For same-origin requests, browser doesn't send Origin header
		// Check Referer as fallback
		referer := r.Header.Get("Referer")
		if referer != "" {
			if refererURL, err := url.Parse(referer); err == nil {
				origin = fmt.Sprintf("%s://%s", refererURL.Scheme, refererURL.Host)
			}
		}
	}

	if origin == "" {
		return false
	}

	for _, allowed := range allowedOrigins {
		if origin == allowed {
			return true
		}
	}

	return false
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (proxy/load balancer)
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		// Take the first IP in the list
		ips := strings.Split(xff, ",")
		return strings.TrimSpace(ips[0])
	}

	// Check X-Real-IP header
	xri := r.Header.Get("X-Real-IP")
	if xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fall back to RemoteAddr
	ip := r.RemoteAddr
	if colonPos := strings.LastIndex(ip, ":"); colonPos != -1 {
		ip = ip[:colonPos]
	}

	return ip
}
