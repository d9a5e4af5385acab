//go:build property
// +build property

package sharelink

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/conneroisu/fiddle/internal/workspace"
)

// TestShareLinkProperties tests encode/decode properties across arbitrary buffer contents
func TestShareLinkProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	// Property: encoding then decoding restores the exact triple
	properties.Property("classic round-trip is lossless", prop.ForAll(
		func(markup, style, script string) bool {
			triple := workspace.Triple{Markup: markup, Style: style, Script: script}

			link, err := Encode(testOrigin, triple)
			if err != nil {
				return false
			}
			overlay, err := DecodeURL(link)
			if err != nil {
				return false
			}

			ws := workspace.New(workspace.Triple{Markup: "x", Style: "y", Script: "z"})
			ws.ApplyOverlay(overlay)
			return ws.Snapshot() == triple
		},
		gen.AnyString(),
		gen.AnyString(),
		gen.AnyString(),
	))

	// Property: the compact format round-trips the same contents
	properties.Property("compact round-trip is lossless", prop.ForAll(
		func(markup, style, script string) bool {
			triple := workspace.Triple{Markup: markup, Style: style, Script: script}

			link, err := EncodeCompact(testOrigin, triple)
			if err != nil {
				return false
			}
			overlay, err := DecodeURL(link)
			if err != nil {
				return false
			}

			ws := workspace.New(workspace.Triple{})
			ws.ApplyOverlay(overlay)
			return ws.Snapshot() == triple
		},
		gen.AnyString(),
		gen.AnyString(),
		gen.AnyString(),
	))

	// Property: decoding never partially applies; on error the overlay is empty
	properties.Property("failed decode leaves no partial overlay", prop.ForAll(
		func(query string) bool {
			overlay, err := Decode(query)
			if err != nil {
				return overlay.Empty()
			}
			return true
		},
		gen.AnyString(),
	))

	// Property: queries without share parameters never touch buffers
	properties.Property("foreign parameters are ignored", prop.ForAll(
		func(key, value string) bool {
			switch key {
			case "", ParamMarkup, ParamStyle, ParamScript, ParamCompact:
				return true
			}
			overlay, err := Decode(key + "=" + value)
			if err != nil {
				// Bad escapes in foreign parameters still fail the
				// parse; that is fine as long as nothing was applied.
				return overlay.Empty()
			}
			return overlay.Empty()
		},
		gen.Identifier(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
