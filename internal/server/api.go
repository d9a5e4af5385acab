package server

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/conneroisu/fiddle/internal/composer"
	"github.com/conneroisu/fiddle/internal/registry"
	"github.com/conneroisu/fiddle/internal/sharelink"
	"github.com/conneroisu/fiddle/internal/workspace"
)

// maxRequestBody caps API request bodies. Buffers arrive as full text,
// so the cap matches the share codec's decode limit.
const maxRequestBody = 4 << 20

// bufferPayload is the JSON shape of a buffer triple on the wire.
type bufferPayload struct {
	HTML string `json:"html"`
	CSS  string `json:"css"`
	JS   string `json:"js"`
}

func (p bufferPayload) triple() workspace.Triple {
	return workspace.Triple{Markup: p.HTML, Style: p.CSS, Script: p.JS}
}

func payloadFromTriple(t workspace.Triple) bufferPayload {
	return bufferPayload{HTML: t.Markup, CSS: t.Style, JS: t.Script}
}

// sessionDefaults resolves the triple a fresh session starts from: the
// configured default template when it exists, the starter otherwise.
func (s *PlaygroundServer) sessionDefaults() workspace.Triple {
	if t, ok := s.registry.Get(s.config.Templates.Default); ok {
		return t.Content
	}
	return s.registry.Default()
}

// handleSessionCreate creates a playground session. A share-link query
// in the request restores the linked buffers; a failed decode falls
// back to the default template for all three buffers.
func (s *PlaygroundServer) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Query string `json:"query"`
	}
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := s.sessions.Create(s.sessionDefaults())
	if err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	restored := false
	decodeFailure := ""
	if req.Query != "" {
		restored, err = session.RestoreFromQuery(strings.TrimPrefix(req.Query, "?"))
		if err != nil {
			// The session already fell back to the default template.
			decodeFailure = err.Error()
			s.logger.Warn(r.Context(), err, "Share link restore failed",
				"session", session.ID)
		}
	}

	triple, revision := session.Snapshot()
	response := map[string]interface{}{
		"session":  session.ID,
		"buffers":  payloadFromTriple(triple),
		"revision": revision,
		"restored": restored,
	}
	if decodeFailure != "" {
		response["decode_error"] = decodeFailure
	}

	writeJSONResponse(w, http.StatusCreated, response)
}

// handleSessionSubroute routes /api/session/{id}/{action} requests.
func (s *PlaygroundServer) handleSessionSubroute(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/session/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		writeJSONError(w, http.StatusNotFound, "Not found")
		return
	}

	session, ok := s.sessions.Get(parts[0])
	if !ok {
		writeJSONError(w, http.StatusNotFound, "Unknown session")
		return
	}

	switch parts[1] {
	case "buffer":
		s.handleBufferUpdate(w, r, session)
	case "share":
		s.handleSessionShare(w, r, session)
	case "template":
		s.handleTemplateApply(w, r, session)
	default:
		writeJSONError(w, http.StatusNotFound, "Not found")
	}
}

// handleBufferUpdate replaces one buffer with its full new text. The
// recompose happens synchronously, so connected previews see a document
// built from the latest value of all three buffers.
func (s *PlaygroundServer) handleBufferUpdate(w http.ResponseWriter, r *http.Request, session *Session) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Target  string `json:"target"`
		Content string `json:"content"`
	}
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	target, err := workspace.ParseTarget(req.Target)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	document, revision, err := session.UpdateBuffer(target, req.Content)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.sendToSession(session.ID, UpdateMessage{
		Type:      "preview",
		Content:   document,
		Revision:  revision,
		Timestamp: time.Now(),
	})

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"revision": revision,
	})
}

// handleSessionShare encodes the session's current buffers as a link.
func (s *PlaygroundServer) handleSessionShare(w http.ResponseWriter, r *http.Request, session *Session) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	compact, err := resolveShareFormat(r.URL.Query().Get("format"), s.config.Share.Compact)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	url, err := session.ShareURL(s.config.ShareOrigin(), compact)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"url": url})
}

// handleTemplateApply loads a template into the session. Applying
// replaces all three buffers, so an unconfirmed request only answers
// with the template metadata and the UI prompts before retrying with
// "confirmed": true.
func (s *PlaygroundServer) handleTemplateApply(w http.ResponseWriter, r *http.Request, session *Session) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Name      string `json:"name"`
		Confirmed bool   `json:"confirmed"`
	}
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	template, ok := s.registry.Get(req.Name)
	if !ok {
		s.logger.Debug(r.Context(), "Template not found", "name", req.Name)
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("Unknown template %q", req.Name))
		return
	}

	if !req.Confirmed {
		writeJSONResponse(w, http.StatusOK, map[string]interface{}{
			"status":   "requires_confirmation",
			"template": templateMetadata(template),
		})
		return
	}

	document, revision := session.ApplyTemplate(template)

	s.sendToSession(session.ID, UpdateMessage{
		Type:      "preview",
		Content:   document,
		Revision:  revision,
		Timestamp: time.Now(),
	})

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":   "applied",
		"buffers":  payloadFromTriple(template.Content),
		"revision": revision,
	})
}

// handleCompose composes a document from the request triple without
// touching any session.
func (s *PlaygroundServer) handleCompose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bufferPayload
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	document := composer.Compose(req.triple())

	response := map[string]interface{}{"document": document}
	if outline, err := composer.Inspect(document); err == nil {
		response["structure"] = map[string]interface{}{
			"style_in_head":       outline.StyleInHead,
			"script_after_markup": outline.ScriptAfterMarkup,
		}
	}

	writeJSONResponse(w, http.StatusOK, response)
}

// handleShareEncode encodes the request triple as a share link.
func (s *PlaygroundServer) handleShareEncode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		HTML   string `json:"html"`
		CSS    string `json:"css"`
		JS     string `json:"js"`
		Format string `json:"format"`
	}
	if err := decodeJSONBody(w, r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	compact, err := resolveShareFormat(req.Format, s.config.Share.Compact)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	t := workspace.Triple{Markup: req.HTML, Style: req.CSS, Script: req.JS}

	var url string
	if compact {
		url, err = sharelink.EncodeCompact(s.config.ShareOrigin(), t)
	} else {
		url, err = sharelink.Encode(s.config.ShareOrigin(), t)
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{"url": url})
}

// handleShareDecode decodes the request's own query parameters. The
// response mirrors overlay semantics: absent parameters come back null.
func (s *PlaygroundServer) handleShareDecode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	overlay, err := sharelink.Decode(r.URL.RawQuery)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"html": overlay.Markup,
		"css":  overlay.Style,
		"js":   overlay.Script,
	})
}

// handleTemplates lists registered templates, metadata only.
func (s *PlaygroundServer) handleTemplates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	all := s.registry.All()
	templates := make([]map[string]interface{}, 0, len(all))
	for _, t := range all {
		templates = append(templates, templateMetadata(t))
	}

	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"templates": templates,
		"default":   s.config.Templates.Default,
	})
}

func templateMetadata(t registry.Template) map[string]interface{} {
	return map[string]interface{}{
		"name":         t.Name,
		"display_name": t.DisplayName,
		"description":  t.Description,
	}
}

// resolveShareFormat maps the wire format parameter onto the compact
// flag, falling back to the configured default when unspecified.
func resolveShareFormat(format string, configDefault bool) (bool, error) {
	switch format {
	case "compact":
		return true, nil
	case "classic":
		return false, nil
	case "":
		return configDefault, nil
	default:
		return false, fmt.Errorf("unknown share format %q", format)
	}
}

// decodeJSONBody decodes a JSON request body with a size cap. An empty
// body decodes to the zero value.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSONResponse(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSONResponse(w, status, map[string]string{"error": message})
}
