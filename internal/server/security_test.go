package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCSPHeader(t *testing.T) {
	tests := []struct {
		name     string
		config   *CSPConfig
		expected string
	}{
		{
			name: "single directive",
			config: &CSPConfig{
				DefaultSrc: []string{"'self'"},
			},
			expected: "default-src 'self'",
		},
		{
			name: "multiple sources joined with spaces",
			config: &CSPConfig{
				ScriptSrc: []string{"'self'", "'unsafe-inline'"},
			},
			expected: "script-src 'self' 'unsafe-inline'",
		},
		{
			name: "directive order is stable",
			config: &CSPConfig{
				DefaultSrc:     []string{"'self'"},
				ScriptSrc:      []string{"'self'"},
				FrameAncestors: []string{"'none'"},
			},
			expected: "default-src 'self'; script-src 'self'; frame-ancestors 'none'",
		},
		{
			name:     "empty config yields empty header",
			config:   &CSPConfig{},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, buildCSPHeader(tt.config))
		})
	}
}

func TestDefaultSecurityConfig(t *testing.T) {
	cfg := DefaultSecurityConfig()

	require.NotNil(t, cfg.CSP)
	require.NotNil(t, cfg.RateLimiting)

	// Inline script and style stay allowed: the playground page carries
	// its editor wiring inline.
	assert.Contains(t, cfg.CSP.ScriptSrc, "'unsafe-inline'")
	assert.Contains(t, cfg.CSP.StyleSrc, "'unsafe-inline'")
	assert.Contains(t, cfg.CSP.ConnectSrc, "ws:")
	assert.Contains(t, cfg.CSP.FrameSrc, "'self'")

	assert.Equal(t, "DENY", cfg.XFrameOptions)
	assert.True(t, cfg.XContentTypeNoSniff)
	assert.True(t, cfg.RateLimiting.Enabled)
}

func TestEnvironmentSecurityConfigs(t *testing.T) {
	dev := DevelopmentSecurityConfig()
	prod := ProductionSecurityConfig()

	assert.Equal(t, "SAMEORIGIN", dev.XFrameOptions)
	assert.Contains(t, dev.CSP.ConnectSrc, "*")
	assert.Equal(t, []string{"'self'"}, dev.CSP.FrameAncestors)

	assert.Equal(t, "DENY", prod.XFrameOptions)
	assert.Equal(t, []string{"'none'"}, prod.CSP.FrameAncestors)

	assert.Greater(t, dev.RateLimiting.RequestsPerMinute, prod.RateLimiting.RequestsPerMinute)
}

func TestSecurityConfigFromAppConfig(t *testing.T) {
	tests := []struct {
		name          string
		environment   string
		xFrameOptions string
	}{
		{"production", "production", "DENY"},
		{"development", "development", "SAMEORIGIN"},
		{"unset defaults to strict", "", "DENY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Server.Environment = tt.environment

			secConfig := SecurityConfigFromAppConfig(cfg)
			assert.Equal(t, tt.xFrameOptions, secConfig.XFrameOptions)
		})
	}
}

func TestSecurityConfigFromAppConfigIncludesOwnOrigins(t *testing.T) {
	cfg := testConfig()
	cfg.Server.AllowedOrigins = []string{"https://tunnel.example.com"}

	secConfig := SecurityConfigFromAppConfig(cfg)

	assert.Contains(t, secConfig.AllowedOrigins, "http://localhost:8080")
	assert.Contains(t, secConfig.AllowedOrigins, "http://127.0.0.1:8080")
	assert.Contains(t, secConfig.AllowedOrigins, "https://tunnel.example.com")
}

func TestSecurityMiddlewareSetsHeaders(t *testing.T) {
	middleware := SecurityMiddleware(DefaultSecurityConfig())
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "default-src 'self'")
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "off", w.Header().Get("X-DNS-Prefetch-Control"))
	assert.Equal(t, "same-origin", w.Header().Get("Cross-Origin-Opener-Policy"))
}

func TestSecurityMiddlewareOriginEnforcement(t *testing.T) {
	secConfig := DefaultSecurityConfig()
	secConfig.AllowedOrigins = []string{"http://localhost:8080"}

	middleware := SecurityMiddleware(secConfig)
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name     string
		method   string
		origin   string
		referer  string
		expected int
	}{
		{
			name:     "GET needs no origin",
			method:   http.MethodGet,
			expected: http.StatusOK,
		},
		{
			name:     "OPTIONS needs no origin",
			method:   http.MethodOptions,
			expected: http.StatusOK,
		},
		{
			name:     "POST with allowed origin",
			method:   http.MethodPost,
			origin:   "http://localhost:8080",
			expected: http.StatusOK,
		},
		{
			name:     "POST with foreign origin",
			method:   http.MethodPost,
			origin:   "http://evil.com",
			expected: http.StatusForbidden,
		},
		{
			name:     "POST without origin or referer",
			method:   http.MethodPost,
			expected: http.StatusForbidden,
		},
		{
			name:     "POST falls back to referer",
			method:   http.MethodPost,
			referer:  "http://localhost:8080/some/page",
			expected: http.StatusOK,
		},
		{
			name:     "POST with foreign referer",
			method:   http.MethodPost,
			referer:  "http://evil.com/attack.html",
			expected: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/compose", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.referer != "" {
				req.Header.Set("Referer", tt.referer)
			}

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			assert.Equal(t, tt.expected, w.Code)
		})
	}
}

func TestSecurityMiddlewareNilConfigUsesDefaults(t *testing.T) {
	middleware := SecurityMiddleware(nil)
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		xRealIP    string
		remoteAddr string
		expected   string
	}{
		{
			name:       "X-Forwarded-For single",
			xff:        "203.0.113.7",
			remoteAddr: "10.0.0.1:54321",
			expected:   "203.0.113.7",
		},
		{
			name:       "X-Forwarded-For chain takes first",
			xff:        "203.0.113.7, 10.0.0.2, 10.0.0.3",
			remoteAddr: "10.0.0.1:54321",
			expected:   "203.0.113.7",
		},
		{
			name:       "X-Real-IP",
			xRealIP:    "198.51.100.4",
			remoteAddr: "10.0.0.1:54321",
			expected:   "198.51.100.4",
		},
		{
			name:       "RemoteAddr strips port",
			remoteAddr: "192.0.2.9:43210",
			expected:   "192.0.2.9",
		},
		{
			name:       "XFF wins over X-Real-IP",
			xff:        "203.0.113.7",
			xRealIP:    "198.51.100.4",
			remoteAddr: "10.0.0.1:54321",
			expected:   "203.0.113.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				req.Header.Set("X-Real-IP", tt.xRealIP)
			}

			assert.Equal(t, tt.expected, getClientIP(req))
		})
	}
}
