package server

import (
	"bytes"
	"sync"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	guideOnce sync.Once
	guideHTML string
	guideErr  error
)

// renderGuide converts the embedded guide to HTML once; the guide never
// changes while the server runs.
func renderGuide() (string, error) {
	guideOnce.Do(func() {
		md := goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				highlighting.NewHighlighting(
					highlighting.WithStyle(highlightStyle),
				),
			),
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
			goldmark.WithRendererOptions(
				html.WithUnsafe(),
			),
		)

		var buf bytes.Buffer
		if err := md.Convert([]byte(guideMarkdown), &buf); err != nil {
			guideErr = err
			return
		}
		guideHTML = buf.String()
	})
	return guideHTML, guideErr
}

// guideMarkdown is the user guide served at /docs. Code fences use
// tildes so the document can live in a raw string literal.
const guideMarkdown = `
# fiddle guide

fiddle is a local playground for HTML, CSS, and JavaScript. You type into
three editors, the server composes a single document from them, and a
sandboxed preview shows the result as you type. Everything you write can
be captured in a URL and handed to someone else.

## Quick start

~~~sh
fiddle serve
~~~

This starts the playground on <code>http://localhost:8080</code> and opens
your browser. Pick a template, edit, share.

## The editors and the preview

The page has one editor per buffer: markup, style, and script. Edits are
sent to the server as you type; the server rebuilds the document and pushes
it back over a WebSocket, so every connected view of the session updates
together.

The composed document always has the same shape: your CSS inside a
<code>style</code> element in the head, your HTML as the body content, and
your JavaScript in a <code>script</code> element at the end of the body.
Script therefore runs after the markup above it exists, without needing
load-event wrappers.

The preview runs inside a sandboxed iframe and the server marks the preview
response itself with <code>Content-Security-Policy: sandbox allow-scripts</code>.
Your script executes, but it cannot touch cookies, storage, or the
playground page around it.

## Share links

Press **Share** to encode the current buffers into a URL. Opening that URL
restores all three buffers exactly, byte for byte. Two formats exist:

- The classic format carries three parameters, one per buffer:
  <code>/?html=...&css=...&js=...</code>. Parameters are independent; a
  link can carry just one or two of them, and absent buffers keep their
  current content.
- The compact format packs all three buffers into a single compressed
  <code>s</code> parameter. It is shorter for real-world snippets and is
  picked with the **Compact** checkbox or the <code>share.compact</code>
  config key.

A corrupt link never half-loads: if any part of it fails to decode, all
three editors fall back to the default template and the page tells you.

Swap the path <code>/</code> for <code>/view</code> in any share link to
read the code with syntax highlighting instead of running it.

## Templates

The template picker loads a complete starting point into all three
buffers. Because loading replaces everything you have typed, the UI always
asks before applying.

Built-in templates ship with the binary. You can add your own by pointing
<code>templates.dir</code> at a directory of YAML files:

~~~yaml
name: my-demo
display_name: My Demo
description: A starting point for demos.
markup: |
  <h1>Hello</h1>
style: |
  h1 { color: rebeccapurple; }
script: |
  console.log("hello");
~~~

Template names are lowercase slugs (letters, digits, hyphens). A directory
template may not reuse a built-in name; such files are skipped with a
warning. While the server runs with hot reload enabled, editing a template
file reloads the directory and connected pages refresh their picker.

## Command line

| Command | Purpose |
|---|---|
| <code>fiddle serve</code> | Run the playground server. |
| <code>fiddle share</code> | Encode files (or stdin) into a share link without a server. |
| <code>fiddle decode</code> | Recover buffer files from a share link. |
| <code>fiddle templates</code> | List available templates. |
| <code>fiddle doctor</code> | Check configuration and environment. |
| <code>fiddle version</code> | Print version information. |

Encode two files and print a compact link:

~~~sh
fiddle share --html index.html --css style.css --compact
~~~

Recover the sources from a link into the current directory:

~~~sh
fiddle decode "http://localhost:8080/?s=AbCd..." --output snippets/
~~~

## Configuration

Configuration merges three sources, later wins: the <code>.fiddle.yml</code>
file, environment variables prefixed <code>FIDDLE_</code>, and command-line
flags.

~~~yaml
server:
  port: 8080
  host: localhost
  open: true
share:
  compact: false
templates:
  dir: ./templates
  default: starter
development:
  hot_reload: true
logging:
  level: info
  format: text
~~~

Behind a proxy or tunnel, set <code>share.origin</code> so generated links
carry the public address instead of the bind address.

Run <code>fiddle doctor</code> to validate the configuration and report
what the server would actually use.
`
