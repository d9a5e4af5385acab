package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/fiddle/internal/sharelink"
	"github.com/conneroisu/fiddle/internal/workspace"
)

type sessionCreateResponse struct {
	Session     string        `json:"session"`
	Buffers     bufferPayload `json:"buffers"`
	Revision    uint64        `json:"revision"`
	Restored    bool          `json:"restored"`
	DecodeError string        `json:"decode_error"`
	Error       string        `json:"error"`
}

func postJSON(t *testing.T, mux http.Handler, path string, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func getPath(t *testing.T, mux http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func createSession(t *testing.T, srv *PlaygroundServer, mux http.Handler, body string) sessionCreateResponse {
	t.Helper()

	w := postJSON(t, mux, "/api/session", body)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp sessionCreateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Session)

	_, ok := srv.sessions.Get(resp.Session)
	require.True(t, ok)
	return resp
}

func TestSessionCreateUsesDefaultTemplate(t *testing.T) {
	srv := newTestServer(t)
	mux := srv.routes()

	resp := createSession(t, srv, mux, "")

	starter, ok := srv.registry.Get("starter")
	require.True(t, ok)
	assert.Equal(t, payloadFromTriple(starter.Content), resp.Buffers)
	assert.False(t, resp.Restored)
	assert.Empty(t, resp.DecodeError)
	assert.Equal(t, uint64(0), resp.Revision)
}

func TestSessionCreateRestoresShareLink(t *testing.T) {
	srv := newTestServer(t)
	mux := srv.routes()

	want := workspace.Triple{
		Markup: "<p>restored</p>",
		Style:  "p { color: red; }",
		Script: "console.log('restored');",
	}
	link, err := sharelink.Encode("http://localhost:8080", want)
	require.NoError(t, err)
	query := link[strings.Index(link, "?")+1:]

	body, err := json.Marshal(map[string]string{"query": query})
	require.NoError(t, err)

	resp := createSession(t, srv, mux, string(body))

	assert.True(t, resp.Restored)
	assert.Empty(t, resp.DecodeError)
	assert.Equal(t, payloadFromTriple(want), resp.Buffers)
}

func TestSessionCreateCompactLink(t *testing.T) {
	srv := newTestServer(t)
	mux := srv.routes()

	want := workspace.Triple{Markup: "<p>compact</p>", Style: "p{}", Script: "1;"}
	link, err := sharelink.EncodeCompact("http://localhost:8080", want)
	require.NoError(t, err)
	query := link[strings.Index(link, "?")+1:]

	body, err := json.Marshal(map[string]string{"query": query})
	require.NoError(t, err)

	resp := createSession(t, srv, mux, string(body))
	assert.True(t, resp.Restored)
	assert.Equal(t, payloadFromTriple(want), resp.Buffers)
}

func TestSessionCreateInvalidLinkFallsBack(t *testing.T) {
	srv := newTestServer(t)
	mux := srv.routes()

	resp := createSession(t, srv, mux, `{"query":"html=not-valid-base64!!!"}`)

	// Atomic fallback: the corrupt link loads nothing, the default
	// template loads instead, and the caller is told.
	assert.False(t, resp.Restored)
	assert.NotEmpty(t, resp.DecodeError)

	starter, ok := srv.registry.Get("starter")
	require.True(t, ok)
	assert.Equal(t, payloadFromTriple(starter.Content), resp.Buffers)
}

func TestSessionCreateLimit(t *testing.T) {
	srv := newTestServer(t)
	srv.sessions.limit = 1
	mux := srv.routes()

	createSession(t, srv, mux, "")

	w := postJSON(t, mux, "/api/session", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "session limit")
}

func TestBufferUpdate(t *testing.T) {
	srv := newTestServer(t)
	mux := srv.routes()
	resp := createSession(t, srv, mux, "")

	w := postJSON(t, mux, "/api/session/"+resp.Session+"/buffer",
		`{"target":"css","content":"body { background: black; }"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var update struct {
		Revision uint64 `json:"revision"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &update))
	assert.Equal(t, uint64(1), update.Revision)

	session, ok := srv.sessions.Get(resp.Session)
	require.True(t, ok)

	// The preview document holds the new style and the untouched
	// markup from the starter template
	doc := session.Document()
	assert.Contains(t, doc, "body { background: black; }")
	assert.Contains(t, doc, resp.Buffers.HTML)
}

func TestBufferUpdateSequenceKeepsLatestValues(t *testing.T) {
	srv := newTestServer(t)
	mux := srv.routes()
	resp := createSession(t, srv, mux, "")

	updates := []struct {
		target  string
		content string
	}{
		{"html", "<p>one</p>"},
		{"css", "p { color: blue; }"},
		{"js", "document.title = 'two';"},
		{"html", "<p>three</p>"},
	}

	var lastRevision uint64
	for _, u := range updates {
		w := postJSON(t, mux, "/api/session/"+resp.Session+"/buffer",
			fmt.Sprintf(`{"target":%q,"content":%q}`, u.target, u.content))
		require.Equal(t, http.StatusOK, w.Code)

		var update struct {
			Revision uint64 `json:"revision"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &update))
		assert.Greater(t, update.Revision, lastRevision)
		lastRevision = update.Revision
	}

	session, _ := srv.sessions.Get(resp.Session)
	doc := session.Document()
	assert.Contains(t, doc, "<p>three</p>")
	assert.NotContains(t, doc, "<p>one</p>")
	assert.Contains(t, doc, "p { color: blue; }")
	assert.Contains(t, doc, "document.title = 'two';")
}

func TestBufferUpdateRejectsUnknownTarget(t *testing.T) {
	srv := newTestServer(t)
	mux := srv.routes()
	resp := createSession(t, srv, mux, "")

	w := postJSON(t, mux, "/api/session/"+resp.Session+"/buffer",
		`{"target":"markdown","content":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unknown buffer target")
}

func TestSessionSubrouteUnknownSession(t *testing.T) {
	srv := newTestServer(t)
	mux := srv.routes()

	w := postJSON(t, mux, "/api/session/nope/buffer", `{"target":"html","content":"x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionSubrouteUnknownAction(t *testing.T) {
	srv := newTestServer(t)
	mux := srv.routes()
	resp := createSession(t, srv, mux, "")

	w := postJSON(t, mux, "/api/session/"+resp.Session+"/destroy", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionShare(t *testing.T) {
	srv := newTestServer(t)
	mux := srv.routes()
	resp := createSession(t, srv, mux, "")

	t.Run("classic by default", func(t *testing.T) {
		w := getPath(t, mux, "/api/session/"+resp.Session+"/share")
		require.Equal(t, http.StatusOK, w.Code)

		var share struct {
			URL string `json:"url"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &share))
		assert.True(t, strings.HasPrefix(share.URL, "http://localhost:8080/?html="), share.URL)

		overlay, err := sharelink.DecodeURL(share.URL)
		require.NoError(t, err)
		require.NotNil(t, overlay.Markup)
		assert.Equal(t, resp.Buffers.HTML, *overlay.Markup)
	})

	t.Run("compact on request", func(t *testing.T) {
		w := getPath(t, mux, "/api/session/"+resp.Session+"/share?format=compact")
		require.Equal(t, http.StatusOK, w.Code)

		var share struct {
			URL string `json:"url"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &share))
		assert.Contains(t, share.URL, "?s=")

		overlay, err := sharelink.DecodeURL(share.URL)
		require.NoError(t, err)
		require.NotNil(t, overlay.Markup)
		assert.Equal(t, resp.Buffers.HTML, *overlay.Markup)
	})

	t.Run("unknown format rejected", func(t *testing.T) {
		w := getPath(t, mux, "/api/session/"+resp.Session+"/share?format=tarball")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTemplateApplyConfirmationProtocol(t *testing.T) {
	srv := newTestServer(t)
	mux := srv.routes()
	resp := createSession(t, srv, mux, "")

	session, ok := srv.sessions.Get(resp.Session)
	require.True(t, ok)

	// Unconfirmed request changes nothing and asks for confirmation
	w := postJSON(t, mux, "/api/session/"+resp.Session+"/template", `{"name":"counter"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var prompt struct {
		Status   string `json:"status"`
		Template struct {
			Name        string `json:"name"`
			DisplayName string `json:"display_name"`
		} `json:"template"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &prompt))
	assert.Equal(t, "requires_confirmation", prompt.Status)
	assert.Equal(t, "counter", prompt.Template.Name)
	assert.NotEmpty(t, prompt.Template.DisplayName)

	triple, revision := session.Snapshot()
	assert.Equal(t, uint64(0), revision)
	assert.Equal(t, resp.Buffers, payloadFromTriple(triple))

	// Confirmed request replaces all three buffers
	w = postJSON(t, mux, "/api/session/"+resp.Session+"/template",
		`{"name":"counter","confirmed":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	var applied struct {
		Status   string        `json:"status"`
		Buffers  bufferPayload `json:"buffers"`
		Revision uint64        `json:"revision"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &applied))
	assert.Equal(t, "applied", applied.Status)
	assert.Greater(t, applied.Revision, uint64(0))

	counter, _ := srv.registry.Get("counter")
	assert.Equal(t, payloadFromTriple(counter.Content), applied.Buffers)

	triple, _ = session.Snapshot()
	assert.Equal(t, counter.Content, triple)
}

func TestTemplateApplyUnknownTemplate(t *testing.T) {
	srv := newTestServer(t)
	mux := srv.routes()
	resp := createSession(t, srv, mux, "")

	session, _ := srv.sessions.Get(resp.Session)
	before, beforeRevision := session.Snapshot()

	w := postJSON(t, mux, "/api/session/"+resp.Session+"/template",
		`{"name":"no-such-template","confirmed":true}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Unknown template is a no-op on the session
	after, afterRevision := session.Snapshot()
	assert.Equal(t, before, after)
	assert.Equal(t, beforeRevision, afterRevision)
}

func TestComposeEndpoint(t *testing.T) {
	srv := newTestServer(t)
	mux := srv.routes()

	w := postJSON(t, mux, "/api/compose",
		`{"html":"<p>hi</p>","css":"p { color: red; }","js":"console.log(1);"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Document  string `json:"document"`
		Structure struct {
			StyleInHead       bool `json:"style_in_head"`
			ScriptAfterMarkup bool `json:"script_after_markup"`
		} `json:"structure"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Contains(t, resp.Document, "<p>hi</p>")
	assert.Contains(t, resp.Document, "p { color: red; }")
	assert.Contains(t, resp.Document, "console.log(1);")
	assert.True(t, resp.Structure.StyleInHead)
	assert.True(t, resp.Structure.ScriptAfterMarkup)
}

func TestShareEncodeEndpoint(t *testing.T) {
	srv := newTestServer(t)
	mux := srv.routes()

	t.Run("classic", func(t *testing.T) {
		w := postJSON(t, mux, "/api/share/encode",
			`{"html":"<p>enc</p>","css":"p{}","js":"x();"}`)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			URL string `json:"url"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

		overlay, err := sharelink.DecodeURL(resp.URL)
		require.NoError(t, err)
		require.NotNil(t, overlay.Markup)
		assert.Equal(t, "<p>enc</p>", *overlay.Markup)
	})

	t.Run("compact", func(t *testing.T) {
		w := postJSON(t, mux, "/api/share/encode",
			`{"html":"<p>enc</p>","css":"p{}","js":"x();","format":"compact"}`)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			URL string `json:"url"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Contains(t, resp.URL, "?s=")
	})

	t.Run("unknown format", func(t *testing.T) {
		w := postJSON(t, mux, "/api/share/encode", `{"html":"x","format":"gzip"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestShareDecodeEndpoint(t *testing.T) {
	srv := newTestServer(t)
	mux := srv.routes()

	link, err := sharelink.Encode("http://localhost:8080",
		workspace.Triple{Markup: "<p>dec</p>"})
	require.NoError(t, err)
	query := link[strings.Index(link, "?")+1:]

	w := getPath(t, mux, "/api/share/decode?"+query)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		HTML *string `json:"html"`
		CSS  *string `json:"css"`
		JS   *string `json:"js"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	require.NotNil(t, resp.HTML)
	assert.Equal(t, "<p>dec</p>", *resp.HTML)

	// The classic encoder always emits all three parameters
	require.NotNil(t, resp.CSS)
	assert.Empty(t, *resp.CSS)
	require.NotNil(t, resp.JS)
	assert.Empty(t, *resp.JS)
}

func TestShareDecodePartialLink(t *testing.T) {
	srv := newTestServer(t)
	mux := srv.routes()

	// A hand-trimmed link carrying only the markup parameter
	w := getPath(t, mux, "/api/share/decode?html=PGgxPmhpPC9oMT4=")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		HTML *string `json:"html"`
		CSS  *string `json:"css"`
		JS   *string `json:"js"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	require.NotNil(t, resp.HTML)
	assert.Equal(t, "<h1>hi</h1>", *resp.HTML)
	assert.Nil(t, resp.CSS)
	assert.Nil(t, resp.JS)
}

func TestShareDecodeInvalid(t *testing.T) {
	srv := newTestServer(t)
	mux := srv.routes()

	w := getPath(t, mux, "/api/share/decode?html=!!!bad")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}

func TestTemplatesEndpoint(t *testing.T) {
	srv := newTestServer(t)
	mux := srv.routes()

	w := getPath(t, mux, "/api/templates")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Templates []struct {
			Name        string `json:"name"`
			DisplayName string `json:"display_name"`
			Description string `json:"description"`
		} `json:"templates"`
		Default string `json:"default"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, "starter", resp.Default)
	require.NotEmpty(t, resp.Templates)

	names := make([]string, 0, len(resp.Templates))
	for _, tpl := range resp.Templates {
		names = append(names, tpl.Name)
		// Metadata only: content stays out of the listing
		assert.NotEmpty(t, tpl.DisplayName)
	}
	assert.Contains(t, names, "starter")
	assert.Contains(t, names, "counter")
}

func TestAPIRejectsWrongMethods(t *testing.T) {
	srv := newTestServer(t)
	mux := srv.routes()
	resp := createSession(t, srv, mux, "")

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/session"},
		{http.MethodGet, "/api/session/" + resp.Session + "/buffer"},
		{http.MethodPost, "/api/session/" + resp.Session + "/share"},
		{http.MethodGet, "/api/session/" + resp.Session + "/template"},
		{http.MethodGet, "/api/compose"},
		{http.MethodGet, "/api/share/encode"},
		{http.MethodPost, "/api/share/decode"},
		{http.MethodPost, "/api/templates"},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, strings.NewReader("{}"))
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code,
			"%s %s", tc.method, tc.path)
	}
}
