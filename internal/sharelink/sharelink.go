// Package sharelink maps a playground's three source buffers to and
// from a shareable URL.
//
// Two wire formats are supported. The classic format carries one query
// parameter per buffer (html, css, js), each base64 over the buffer's
// UTF-8 bytes and then percent-escaped for the URL grammar. The compact
// format packs the whole triple into a single `s` parameter (msgpack,
// DEFLATE, base64url) and wins for anything beyond trivial snippets.
//
// Decoding is the fallible direction and is atomic: either every
// present parameter decodes cleanly and the result is returned, or the
// whole operation fails and nothing is applied. A link with none of the
// share parameters is not an error; decoding is simply skipped.
package sharelink

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/conneroisu/fiddle/internal/workspace"
)

// Query parameter names. ParamMarkup, ParamStyle, and ParamScript are
// emitted in exactly that order; reordering them breaks no parser but
// changes every generated link, so treat the order as part of the
// format.
const (
	ParamMarkup  = "html"
	ParamStyle   = "css"
	ParamScript  = "js"
	ParamCompact = "s"
)

var (
	// ErrInvalidEncoding reports a present share parameter whose value
	// does not survive the reverse transforms.
	ErrInvalidEncoding = errors.New("malformed share parameter")

	// ErrUnsupportedFormat reports a compact payload with an unknown
	// format version byte.
	ErrUnsupportedFormat = errors.New("unsupported compact share format")
)

// Encode serializes the triple into a complete share URL in the classic
// three-parameter format. Empty buffers still produce their parameter
// with an empty value so the decode side can tell "present and empty"
// from "absent".
//
// The byte-safe transform is base64 over UTF-8 bytes, so any Go string
// that is valid UTF-8 encodes losslessly; this deliberately widens the
// Latin-1-only behavior some browser playgrounds inherit from btoa.
func Encode(origin string, t workspace.Triple) (string, error) {
	base, err := parseOrigin(origin)
	if err != nil {
		return "", err
	}

	// url.Values.Encode sorts keys alphabetically, which would emit
	// css before html. The format fixes the order, so build the query
	// by hand.
	var query strings.Builder
	query.WriteString(ParamMarkup + "=" + encodeParam(t.Markup))
	query.WriteString("&" + ParamStyle + "=" + encodeParam(t.Style))
	query.WriteString("&" + ParamScript + "=" + encodeParam(t.Script))

	return base + "/?" + query.String(), nil
}

// encodeParam applies the two encode transforms: byte-safe first, then
// percent-escaping for the query grammar.
func encodeParam(text string) string {
	return url.QueryEscape(base64.StdEncoding.EncodeToString([]byte(text)))
}

// Decode recovers buffer values from a raw query string (the part after
// `?`, percent-escapes intact).
//
// The returned overlay carries a value only for parameters that were
// present, so absent parameters retain whatever the caller already has.
// When none of the share parameters are present the overlay is empty
// and err is nil: the caller keeps its defaults.
//
// Any failure (bad percent-escapes anywhere in the query, bad base64
// in any present parameter, a corrupt compact payload) abandons the
// entire decode. A partially-applied share link is never returned.
func Decode(rawQuery string) (workspace.Overlay, error) {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return workspace.Overlay{}, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}

	// The compact parameter carries the whole triple and takes
	// precedence over the classic parameters.
	if values.Has(ParamCompact) {
		t, err := decodeCompact(values.Get(ParamCompact))
		if err != nil {
			return workspace.Overlay{}, err
		}
		return workspace.Overlay{
			Markup: &t.Markup,
			Style:  &t.Style,
			Script: &t.Script,
		}, nil
	}

	var overlay workspace.Overlay
	fields := []struct {
		param string
		dest  **string
	}{
		{ParamMarkup, &overlay.Markup},
		{ParamStyle, &overlay.Style},
		{ParamScript, &overlay.Script},
	}

	for _, f := range fields {
		if !values.Has(f.param) {
			continue
		}
		text, err := decodeParam(values.Get(f.param))
		if err != nil {
			// Atomic failure: one bad parameter poisons the lot.
			return workspace.Overlay{}, fmt.Errorf("%q parameter: %w", f.param, err)
		}
		*f.dest = &text
	}

	return overlay, nil
}

// Apply decodes rawQuery and loads the result into ws. On any decode
// failure ws is reset to its default template before the error is
// returned, so a corrupt link can never leave the buffers in a mixed
// state. A query without share parameters leaves ws untouched.
func Apply(ws *workspace.Workspace, rawQuery string) error {
	overlay, err := Decode(rawQuery)
	if err != nil {
		ws.Reset()
		return err
	}
	ws.ApplyOverlay(overlay)
	return nil
}

// DecodeURL is Decode for a full URL or a bare query string, whichever
// the caller has. Bare queries are recognized by the absence of a
// scheme and `?`.
func DecodeURL(raw string) (workspace.Overlay, error) {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return Decode(raw[i+1:])
	}
	if strings.Contains(raw, "=") && !strings.Contains(raw, "://") {
		return Decode(raw)
	}
	return workspace.Overlay{}, nil
}

// decodeParam reverses encodeParam's byte-safe transform. The percent
// transform was already reversed by query parsing.
func decodeParam(value string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: decoded text is not valid UTF-8", ErrInvalidEncoding)
	}
	return string(raw), nil
}

// parseOrigin validates the origin and normalizes away a trailing
// slash so generated links always look like `<origin>/?...`.
func parseOrigin(origin string) (string, error) {
	trimmed := strings.TrimSuffix(origin, "/")
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid share origin %q: %w", origin, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid share origin %q: scheme must be http or https", origin)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid share origin %q: missing host", origin)
	}
	return trimmed, nil
}
