// Package composer builds the preview document for a playground
// workspace.
//
// Compose is a pure function of the three source buffers: the style text
// is embedded verbatim in a head style region, the markup text verbatim
// as the body content, and the script text verbatim in a script region
// placed after the markup so that code referencing markup elements runs
// once those elements exist. Nothing is escaped: the preview document
// exists to execute arbitrary user input, so the server only ever hands
// it to a sandboxed rendering surface (see the server's preview
// handler).
package composer

import (
	"fmt"

	"github.com/conneroisu/fiddle/internal/workspace"
)

// documentShell is the fixed frame the three buffers are embedded into.
// The order of the three verbs is the ordering contract: style, then
// markup, then script. The regions carry the buffer bytes with no
// framing whitespace so the embedded text stays byte-exact.
const documentShell = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>fiddle preview</title>
<style>%s</style>
</head>
<body>
%s
<script>%s</script>
</body>
</html>
`

// Compose produces the preview document for a triple. It is a pure
// function: identical triples yield byte-identical documents, and no
// state outside the triple influences the result. Composition cannot
// fail; malformed HTML, CSS, or JS is the rendering surface's problem.
func Compose(t workspace.Triple) string {
	return fmt.Sprintf(documentShell, t.Style, t.Markup, t.Script)
}
