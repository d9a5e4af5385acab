package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/fiddle/internal/registry"
)

func TestFiddleErrorFormatting(t *testing.T) {
	err := NewDecodeError("DECODE_BAD_BASE64", "share parameter is not valid base64", stderrors.New("illegal base64 data")).
		WithComponent("codec")

	msg := err.Error()
	assert.Contains(t, msg, "[DECODE_BAD_BASE64]")
	assert.Contains(t, msg, "component:codec")
	assert.Contains(t, msg, "illegal base64 data")
}

func TestFiddleErrorUnwrap(t *testing.T) {
	cause := stderrors.New("root cause")
	err := NewInternalError("INT_001", "wrapper", cause)

	assert.ErrorIs(t, err, cause)
}

func TestFiddleErrorIs(t *testing.T) {
	a := NewDecodeError("DECODE_001", "first", nil)
	b := NewDecodeError("DECODE_001", "second wording", nil)
	c := NewDecodeError("DECODE_002", "different code", nil)

	assert.True(t, stderrors.Is(a, b), "same type and code match")
	assert.False(t, stderrors.Is(a, c), "different code must not match")
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		recoverable bool
		decode      bool
		security    bool
	}{
		{name: "decode error", err: NewDecodeError("D1", "x", nil), recoverable: true, decode: true},
		{name: "validation error", err: NewValidationError("V1", "x"), recoverable: true},
		{name: "security error", err: NewSecurityError("S1", "x"), security: true},
		{name: "io error", err: NewIOError("IO1", "x", nil)},
		{name: "plain error", err: stderrors.New("plain")},
		{name: "wrapped decode error", err: fmt.Errorf("outer: %w", NewDecodeError("D2", "inner", nil)), recoverable: true, decode: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.recoverable, IsRecoverable(tt.err))
			assert.Equal(t, tt.decode, IsDecodeError(tt.err))
			assert.Equal(t, tt.security, IsSecurityError(tt.err))
		})
	}
}

func TestErrorCollector(t *testing.T) {
	ec := NewErrorCollector()
	assert.False(t, ec.HasErrors())

	ec.AddError(nil)
	assert.False(t, ec.HasErrors(), "nil errors are ignored")

	ec.AddError(stderrors.New("one"))
	ec.AddError(stderrors.New("two"))
	assert.True(t, ec.HasErrors())
	assert.Equal(t, 2, ec.Count())
	assert.Len(t, ec.GetAllErrors(), 2)

	ec.Clear()
	assert.False(t, ec.HasErrors())
}

func TestTemplateNotFoundSuggestions(t *testing.T) {
	reg := registry.NewTemplateRegistry()
	ctx := &SuggestionContext{Registry: reg, ConfigPath: ".fiddle.yml"}

	suggestions := TemplateNotFoundError("start", ctx)
	require.NotEmpty(t, suggestions)

	text := FormatSuggestions("template \"start\" not found", suggestions)
	assert.Contains(t, text, "fiddle templates")
	assert.Contains(t, text, "Did you mean 'starter'?")
}

func TestDecodeFailureSuggestions(t *testing.T) {
	ctx := &SuggestionContext{}

	suggestions := DecodeFailureError(stderrors.New("malformed share parameter: illegal base64"), ctx)
	text := FormatSuggestions("could not decode share link", suggestions)
	assert.Contains(t, text, "Regenerate the share link")

	suggestions = DecodeFailureError(stderrors.New("unsupported compact share format: version 0x7f"), ctx)
	text = FormatSuggestions("could not decode share link", suggestions)
	assert.Contains(t, text, "Update fiddle")
}

func TestServerStartSuggestions(t *testing.T) {
	suggestions := ServerStartError(stderrors.New("listen tcp :8080: bind: address already in use"), 8080, &SuggestionContext{})
	text := FormatSuggestions("server failed to start", suggestions)
	assert.Contains(t, text, "Port already in use")
	assert.Contains(t, text, "fiddle serve --port 9080")
}

func TestEnhancedErrorWrapsOriginal(t *testing.T) {
	original := stderrors.New("bind failed")
	enhanced := NewEnhancedError("server failed to start", original, ServerStartError(original, 80, &SuggestionContext{}))

	assert.ErrorIs(t, enhanced, original)
	assert.Contains(t, enhanced.Error(), "server failed to start")
}
