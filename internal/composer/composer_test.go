package composer

import (
	"strings"
	"testing"

	"github.com/conneroisu/fiddle/internal/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeIsPure(t *testing.T) {
	triple := workspace.Triple{
		Markup: `<p id="greeting">hi</p>`,
		Style:  `p { color: red; }`,
		Script: `document.getElementById("greeting").textContent = "hello";`,
	}

	first := Compose(triple)
	second := Compose(triple)

	assert.Equal(t, first, second, "identical triples must compose byte-identically")
}

func TestComposeEmbedsBuffersVerbatim(t *testing.T) {
	tests := []struct {
		name   string
		triple workspace.Triple
	}{
		{
			name: "plain content",
			triple: workspace.Triple{
				Markup: "<p>hi</p>",
				Style:  "p{color:red}",
				Script: "console.log(1)",
			},
		},
		{
			name: "content with markup-significant characters",
			triple: workspace.Triple{
				Markup: `<div data-x="a&b">1 < 2</div>`,
				Style:  `div::before { content: "<"; }`,
				Script: `if (1 < 2 && 3 > 2) { console.log("&"); }`,
			},
		},
		{
			name: "unicode content",
			triple: workspace.Triple{
				Markup: "<p>héllo wörld — 日本語</p>",
				Style:  "p { font-family: \"Ümlaut Sans\"; }",
				Script: "console.log('crème brûlée')",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Compose(tt.triple)

			// No escaping is performed: every buffer appears byte-exact.
			assert.Contains(t, doc, tt.triple.Markup)
			assert.Contains(t, doc, "<style>"+tt.triple.Style+"</style>")
			assert.Contains(t, doc, "<script>"+tt.triple.Script+"</script>")
		})
	}
}

func TestComposeRegionOrdering(t *testing.T) {
	doc := Compose(workspace.Triple{
		Markup: `<p id="target">hi</p>`,
		Style:  "p{color:red}",
		Script: "document.querySelector('#target')",
	})

	styleAt := strings.Index(doc, "p{color:red}")
	markupAt := strings.Index(doc, `<p id="target">`)
	scriptAt := strings.Index(doc, "document.querySelector")

	require.GreaterOrEqual(t, styleAt, 0)
	require.GreaterOrEqual(t, markupAt, 0)
	require.GreaterOrEqual(t, scriptAt, 0)

	assert.Less(t, styleAt, markupAt, "style region must precede markup")
	assert.Less(t, markupAt, scriptAt, "script region must follow markup")
}

func TestComposeEmptyBuffers(t *testing.T) {
	doc := Compose(workspace.Triple{})

	assert.Contains(t, doc, "<style></style>")
	assert.Contains(t, doc, "<script></script>")
	assert.True(t, strings.HasPrefix(doc, "<!DOCTYPE html>"))
}

func TestInspectLocatesRegions(t *testing.T) {
	triple := workspace.Triple{
		Markup: `<p id="greeting">hi</p><ul><li>one</li></ul>`,
		Style:  "p { color: red; }\nul { margin: 0; }",
		Script: "console.log('ready');",
	}

	outline, err := Inspect(Compose(triple))
	require.NoError(t, err)

	assert.True(t, outline.StyleInHead)
	assert.True(t, outline.ScriptAfterMarkup)
	assert.Equal(t, triple.Style, outline.StyleText)
	assert.Equal(t, triple.Script, outline.ScriptText)
}

func TestInspectWithUserScriptInMarkup(t *testing.T) {
	// A script inside the markup must not be mistaken for the trailing
	// script region.
	triple := workspace.Triple{
		Markup: `<script>var early = true;</script><p>content</p>`,
		Script: "var late = true;",
	}

	outline, err := Inspect(Compose(triple))
	require.NoError(t, err)

	assert.True(t, outline.ScriptAfterMarkup)
	assert.Equal(t, "var late = true;", outline.ScriptText)
}

func TestInspectEmptyTriple(t *testing.T) {
	outline, err := Inspect(Compose(workspace.Triple{}))
	require.NoError(t, err)

	assert.True(t, outline.StyleInHead)
	assert.True(t, outline.ScriptAfterMarkup)
	assert.Equal(t, "", outline.StyleText)
	assert.Equal(t, "", outline.ScriptText)
}

func BenchmarkCompose(b *testing.B) {
	triple := workspace.Triple{
		Markup: strings.Repeat("<div class=\"row\">content</div>\n", 100),
		Style:  strings.Repeat(".row { display: flex; }\n", 50),
		Script: strings.Repeat("console.log('line');\n", 50),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Compose(triple)
	}
}
