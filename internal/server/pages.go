package server

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"github.com/conneroisu/fiddle/internal/registry"
	"github.com/conneroisu/fiddle/internal/workspace"
)

// The pages are assembled from templ components over static HTML
// segments. Dynamic values pass through templ.EscapeString; the only
// templ.Raw inputs are server-generated markup (chroma, goldmark).

func pageLayout(title string, style string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, pageHead, templ.EscapeString(title), style); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, pageFoot)
		return err
	})
}

// playgroundPage is the editor UI: three buffers, the sandboxed preview
// frame, template picker, and share controls.
func playgroundPage(templates []registry.Template, defaultName string, compactShare bool) templ.Component {
	options := make([]templ.Component, 0, len(templates))
	for _, t := range templates {
		options = append(options, templateOption(t, t.Name == defaultName))
	}
	optionList := templ.Join(options...)

	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, playgroundTop); err != nil {
			return err
		}
		if err := optionList.Render(ctx, w); err != nil {
			return err
		}
		checked := ""
		if compactShare {
			checked = " checked"
		}
		if _, err := fmt.Fprintf(w, playgroundControls, checked); err != nil {
			return err
		}
		_, err := io.WriteString(w, playgroundMain)
		return err
	})

	return pageLayout("fiddle", playgroundStyle, body)
}

func templateOption(t registry.Template, selected bool) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		sel := ""
		if selected {
			sel = " selected"
		}
		_, err := fmt.Fprintf(w, `<option value="%s"%s>%s</option>`,
			templ.EscapeString(t.Name), sel, templ.EscapeString(t.DisplayName))
		return err
	})
}

// viewPage is the read-only share view: the three buffers highlighted,
// never executed, with a link into the live playground.
func viewPage(t workspace.Triple, rawQuery string) templ.Component {
	panes := templ.Join(
		viewPane("HTML", t.Markup, "html"),
		viewPane("CSS", t.Style, "css"),
		viewPane("JavaScript", t.Script, "javascript"),
	)

	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		openHref := "/"
		if rawQuery != "" {
			openHref = "/?" + rawQuery
		}
		if _, err := fmt.Fprintf(w, viewTop, templ.EscapeString(openHref)); err != nil {
			return err
		}
		if err := panes.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, viewBottom)
		return err
	})

	return pageLayout("fiddle - shared snippet", viewStyle, body)
}

func viewPane(label, code, lang string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, `<section class="pane"><h2>%s</h2>`,
			templ.EscapeString(label)); err != nil {
			return err
		}
		highlighted, err := highlightSource(code, lang)
		if err != nil {
			highlighted = "<pre><code>" + templ.EscapeString(code) + "</code></pre>"
		}
		if err := templ.Raw(highlighted).Render(ctx, w); err != nil {
			return err
		}
		_, err = io.WriteString(w, `</section>`)
		return err
	})
}

// docsPage wraps the rendered guide. The body comes from goldmark over
// a trusted embedded document, never from user input.
func docsPage(body string) templ.Component {
	content := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, docsTop); err != nil {
			return err
		}
		if err := templ.Raw(body).Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, docsBottom)
		return err
	})

	return pageLayout("fiddle - guide", docsStyle, content)
}

const pageHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
<style>%s</style>
</head>
<body>
`

const pageFoot = `</body>
</html>
`

const playgroundStyle = `
* { box-sizing: border-box; margin: 0; padding: 0; }
body {
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
    background: #1e1e2e; color: #cdd6f4;
    height: 100vh; display: flex; flex-direction: column;
}
header {
    display: flex; align-items: center; gap: 12px;
    padding: 8px 16px; background: #181825; border-bottom: 1px solid #313244;
}
header h1 { font-size: 18px; color: #89b4fa; margin-right: 8px; }
header a { color: #89b4fa; text-decoration: none; font-size: 13px; }
select, button, input[type="text"] {
    background: #313244; color: #cdd6f4; border: 1px solid #45475a;
    border-radius: 4px; padding: 4px 10px; font-size: 13px;
}
button { cursor: pointer; }
button:hover { background: #45475a; }
label { font-size: 13px; display: flex; align-items: center; gap: 4px; }
#share-url { flex: 1; min-width: 120px; font-family: monospace; font-size: 12px; }
#status { margin-left: auto; font-size: 13px; }
#status.ok { color: #a6e3a1; }
#status.error { color: #f38ba8; }
main {
    flex: 1; display: grid; min-height: 0;
    grid-template-columns: 1fr 1fr; gap: 1px; background: #313244;
}
.editors { display: grid; grid-template-rows: 1fr 1fr 1fr; gap: 1px; min-height: 0; }
.editor { display: flex; flex-direction: column; background: #1e1e2e; min-height: 0; }
.editor label {
    padding: 2px 10px; font-size: 11px; text-transform: uppercase;
    letter-spacing: 1px; color: #6c7086; background: #181825;
}
.editor textarea {
    flex: 1; resize: none; border: 0; outline: none;
    background: #1e1e2e; color: #cdd6f4;
    font-family: 'SF Mono', Menlo, Consolas, monospace; font-size: 13px;
    padding: 10px; tab-size: 2;
}
#preview { width: 100%; height: 100%; border: 0; background: #ffffff; }
`

const playgroundTop = `<header>
<h1>fiddle</h1>
<select id="template-select">`

// playgroundControls has one %s slot for the compact checkbox state.
const playgroundControls = `</select>
<button id="apply-template">Load</button>
<label><input type="checkbox" id="share-compact"%s> Compact</label>
<button id="share">Share</button>
<input type="text" id="share-url" readonly placeholder="Share link appears here">
<a href="/docs">Guide</a>
<span id="status">Connecting...</span>
</header>`

const playgroundMain = `
<main>
<div class="editors">
<div class="editor"><label for="editor-html">HTML</label><textarea id="editor-html" spellcheck="false"></textarea></div>
<div class="editor"><label for="editor-css">CSS</label><textarea id="editor-css" spellcheck="false"></textarea></div>
<div class="editor"><label for="editor-js">JavaScript</label><textarea id="editor-js" spellcheck="false"></textarea></div>
</div>
<iframe id="preview" sandbox="allow-scripts" title="Live preview"></iframe>
</main>
<script>
(function () {
    'use strict';

    var session = null;
    var ws = null;
    var reconnectDelay = 2000;
    var targets = ['html', 'css', 'js'];

    function setStatus(text, kind) {
        var status = document.getElementById('status');
        status.textContent = text;
        status.className = kind || '';
    }

    function editor(target) {
        return document.getElementById('editor-' + target);
    }

    function loadBuffers(buffers) {
        targets.forEach(function (target) {
            editor(target).value = buffers[target];
        });
    }

    function createSession() {
        fetch('/api/session', {
            method: 'POST',
            headers: {'Content-Type': 'application/json'},
            body: JSON.stringify({query: window.location.search.slice(1)})
        }).then(function (response) {
            return response.json();
        }).then(function (data) {
            if (data.error) {
                setStatus(data.error, 'error');
                return;
            }
            session = data.session;
            loadBuffers(data.buffers);
            if (data.decode_error) {
                setStatus('Share link was invalid, loaded the default template', 'error');
            }
            if (data.restored || data.decode_error) {
                window.history.replaceState(null, '', '/');
            }
            document.getElementById('preview').src = '/preview/' + session;
            connect();
        }).catch(function () {
            setStatus('Could not create a session', 'error');
        });
    }

    function connect() {
        var protocol = window.location.protocol === 'https:' ? 'wss:' : 'ws:';
        ws = new WebSocket(protocol + '//' + window.location.host + '/ws?session=' + session);

        ws.onopen = function () {
            setStatus('Connected', 'ok');
        };

        ws.onmessage = function (event) {
            handleMessage(JSON.parse(event.data));
        };

        ws.onclose = function () {
            setStatus('Disconnected, reconnecting...', 'error');
            setTimeout(connect, reconnectDelay);
        };

        ws.onerror = function () {
            ws.close();
        };
    }

    function handleMessage(message) {
        switch (message.type) {
        case 'preview':
            document.getElementById('preview').srcdoc = message.content;
            break;
        case 'share_url':
            showShareURL(message.content);
            break;
        case 'template_update':
            refreshTemplates();
            break;
        case 'full_reload':
            window.location.reload();
            break;
        case 'error':
            setStatus(message.content, 'error');
            break;
        }
    }

    function sendUpdate(target, content) {
        if (ws && ws.readyState === WebSocket.OPEN) {
            ws.send(JSON.stringify({type: 'buffer_update', target: target, content: content}));
        }
    }

    function showShareURL(url) {
        var field = document.getElementById('share-url');
        field.value = url;
        field.select();
        if (navigator.clipboard && navigator.clipboard.writeText) {
            navigator.clipboard.writeText(url).then(function () {
                setStatus('Share link copied to clipboard', 'ok');
            }, function () {
                setStatus('Copy the link from the field', 'ok');
            });
        } else {
            setStatus('Copy the link from the field', 'ok');
        }
    }

    function refreshTemplates() {
        fetch('/api/templates').then(function (response) {
            return response.json();
        }).then(function (data) {
            var select = document.getElementById('template-select');
            var current = select.value;
            select.innerHTML = '';
            data.templates.forEach(function (t) {
                var option = document.createElement('option');
                option.value = t.name;
                option.textContent = t.display_name;
                select.appendChild(option);
            });
            select.value = current;
            if (!select.value) {
                select.value = data['default'];
            }
            setStatus('Template list updated', 'ok');
        });
    }

    function applyTemplate(name, confirmed) {
        fetch('/api/session/' + session + '/template', {
            method: 'POST',
            headers: {'Content-Type': 'application/json'},
            body: JSON.stringify({name: name, confirmed: confirmed})
        }).then(function (response) {
            return response.json();
        }).then(function (data) {
            if (data.error) {
                setStatus(data.error, 'error');
                return;
            }
            if (data.status === 'requires_confirmation') {
                var label = data.template.display_name || name;
                if (window.confirm('Load "' + label + '"? This replaces all three editors.')) {
                    applyTemplate(name, true);
                }
                return;
            }
            if (data.status === 'applied') {
                loadBuffers(data.buffers);
                setStatus('Template applied', 'ok');
            }
        });
    }

    function wireEditors() {
        targets.forEach(function (target) {
            var timer = null;
            editor(target).addEventListener('input', function () {
                clearTimeout(timer);
                var content = editor(target).value;
                timer = setTimeout(function () {
                    sendUpdate(target, content);
                }, 150);
            });
        });
    }

    function wireControls() {
        document.getElementById('apply-template').addEventListener('click', function () {
            applyTemplate(document.getElementById('template-select').value, false);
        });

        document.getElementById('share').addEventListener('click', function () {
            if (ws && ws.readyState === WebSocket.OPEN) {
                var format = document.getElementById('share-compact').checked ? 'compact' : 'classic';
                ws.send(JSON.stringify({type: 'share_request', format: format}));
            } else {
                setStatus('Not connected', 'error');
            }
        });
    }

    document.addEventListener('DOMContentLoaded', function () {
        wireEditors();
        wireControls();
        createSession();
    });
})();
</script>
`

const viewStyle = `
* { box-sizing: border-box; margin: 0; padding: 0; }
body {
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
    background: #1e1e2e; color: #cdd6f4; padding: 24px;
}
header { display: flex; align-items: baseline; gap: 16px; margin-bottom: 24px; }
header h1 { font-size: 20px; color: #89b4fa; }
header a {
    color: #1e1e2e; background: #89b4fa; text-decoration: none;
    padding: 4px 12px; border-radius: 4px; font-size: 13px;
}
.pane { margin-bottom: 24px; }
.pane h2 {
    font-size: 12px; text-transform: uppercase; letter-spacing: 1px;
    color: #6c7086; margin-bottom: 8px;
}
.pane pre {
    padding: 12px; border-radius: 6px; overflow-x: auto;
    font-family: 'SF Mono', Menlo, Consolas, monospace; font-size: 13px;
}
footer { color: #6c7086; font-size: 12px; }
`

// viewTop has one %s slot for the playground link.
const viewTop = `<header>
<h1>Shared snippet</h1>
<a href="%s">Open in playground</a>
</header>
`

const viewBottom = `<footer>Read-only view. Nothing on this page is executed.</footer>
`

const docsStyle = `
* { box-sizing: border-box; }
body {
    font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
    background: #1e1e2e; color: #cdd6f4;
    max-width: 760px; margin: 0 auto; padding: 32px 16px; line-height: 1.6;
}
a { color: #89b4fa; }
h1, h2, h3 { color: #89b4fa; margin: 1.2em 0 0.4em; }
p, ul, ol { margin: 0.6em 0; }
li { margin-left: 1.4em; }
code {
    font-family: 'SF Mono', Menlo, Consolas, monospace; font-size: 0.9em;
    background: #313244; padding: 1px 5px; border-radius: 3px;
}
pre { background: #11111b; padding: 12px; border-radius: 6px; overflow-x: auto; }
pre code { background: none; padding: 0; }
table { border-collapse: collapse; margin: 0.8em 0; }
th, td { border: 1px solid #45475a; padding: 6px 12px; font-size: 14px; }
nav { margin-bottom: 16px; }
`

const docsTop = `<nav><a href="/">Back to the playground</a></nav>
<article>
`

const docsBottom = `</article>
`
