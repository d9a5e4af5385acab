package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/conneroisu/fiddle/internal/sharelink"
	"github.com/conneroisu/fiddle/internal/version"
	"github.com/conneroisu/fiddle/internal/workspace"
)

// handleIndex serves the playground UI. Share parameters in the query
// are not consumed here; the page passes them to session creation so
// the decode follows the atomic policy in one place.
func (s *PlaygroundServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	page := playgroundPage(s.registry.All(), s.config.Templates.Default, s.config.Share.Compact)
	if err := page.Render(r.Context(), w); err != nil {
		s.logger.Error(r.Context(), err, "Failed to render playground page")
	}
}

// handlePreview serves the last composed document for a session. The
// response carries the sandbox CSP so user script runs isolated even
// when the document is opened outside the playground iframe.
func (s *PlaygroundServer) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := strings.TrimPrefix(r.URL.Path, "/preview/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		http.NotFound(w, r)
		return
	}

	session, ok := s.sessions.Get(sessionID)
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", PreviewCSP)
	w.Header().Set("X-Frame-Options", "SAMEORIGIN")
	w.Header().Set("Cache-Control", "no-store")

	if _, err := w.Write([]byte(session.Document())); err != nil {
		s.logger.Error(r.Context(), err, "Failed to write preview document",
			"session", sessionID)
	}
}

// handleView serves a read-only, highlighted view of a shared snippet.
// It accepts the same query parameters as a share link, so swapping
// "/" for "/view" in a link shows the code without running it.
func (s *PlaygroundServer) handleView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	overlay, err := sharelink.Decode(r.URL.RawQuery)
	if err != nil {
		s.logger.Warn(r.Context(), err, "Share view decode failed")
		http.Error(w, "Invalid share parameters", http.StatusBadRequest)
		return
	}

	var t workspace.Triple
	if overlay.Markup != nil {
		t.Markup = *overlay.Markup
	}
	if overlay.Style != nil {
		t.Style = *overlay.Style
	}
	if overlay.Script != nil {
		t.Script = *overlay.Script
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	page := viewPage(t, r.URL.RawQuery)
	if err := page.Render(r.Context(), w); err != nil {
		s.logger.Error(r.Context(), err, "Failed to render share view")
	}
}

// handleDocs serves the embedded user guide.
func (s *PlaygroundServer) handleDocs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := renderGuide()
	if err != nil {
		s.logger.Error(r.Context(), err, "Failed to render user guide")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	page := docsPage(body)
	if err := page.Render(r.Context(), w); err != nil {
		s.logger.Error(r.Context(), err, "Failed to render docs page")
	}
}

// handleHealth returns the server health status for health checks
func (s *PlaygroundServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":     "healthy",
		"timestamp":  time.Now().UTC(),
		"version":    version.GetShortVersion(),
		"build_info": version.GetBuildInfo(),
		"checks": map[string]interface{}{
			"server":    map[string]interface{}{"status": "healthy", "message": "HTTP server operational"},
			"templates": map[string]interface{}{"status": "healthy", "count": s.registry.Count()},
			"sessions":  map[string]interface{}{"status": "healthy", "active": s.sessions.Count()},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Error(r.Context(), err, "Failed to encode health response")
	}
}

// handleVersion returns build and version information
func (s *PlaygroundServer) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	info := version.GetBuildInfo()
	response := map[string]interface{}{
		"version":    info.Version,
		"git_commit": info.GitCommit,
		"build_time": info.BuildTime,
		"go_version": info.GoVersion,
		"platform":   info.Platform,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error(r.Context(), err, "Failed to encode version response")
	}
}
