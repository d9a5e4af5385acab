// Package workspace holds the editable state of a playground: the three
// source buffers (markup, style, script) that every other part of the
// system derives from.
//
// A Workspace has exactly one owner. It performs no locking of its own;
// callers that share a Workspace across goroutines (the server session
// does) are responsible for serializing access. The composer and the
// share codec never receive the Workspace itself, only value snapshots,
// so they cannot observe a half-applied mutation.
package workspace

import "fmt"

// Target identifies one of the three source buffers.
type Target int

const (
	TargetMarkup Target = iota
	TargetStyle
	TargetScript
)

// String returns the wire name of the target, matching the share-link
// query parameter names.
func (t Target) String() string {
	switch t {
	case TargetMarkup:
		return "html"
	case TargetStyle:
		return "css"
	case TargetScript:
		return "js"
	default:
		return "unknown"
	}
}

// ParseTarget maps a wire name (html, css, js) to a Target.
func ParseTarget(name string) (Target, error) {
	switch name {
	case "html":
		return TargetMarkup, nil
	case "css":
		return TargetStyle, nil
	case "js":
		return TargetScript, nil
	default:
		return 0, fmt.Errorf("unknown buffer target %q", name)
	}
}

// Triple is a value snapshot of the three buffers. It is the unit the
// composer renders and the share codec encodes.
type Triple struct {
	Markup string
	Style  string
	Script string
}

// Get returns the buffer selected by target.
func (t Triple) Get(target Target) string {
	switch target {
	case TargetMarkup:
		return t.Markup
	case TargetStyle:
		return t.Style
	case TargetScript:
		return t.Script
	default:
		return ""
	}
}

// Overlay carries per-buffer replacement values recovered from a share
// link. Only buffers whose parameter was present in the link are set;
// the rest keep their prior value when the overlay is applied. This is
// how an absent parameter avoids blanking a buffer.
type Overlay struct {
	Markup *string
	Style  *string
	Script *string
}

// Empty reports whether the overlay carries no values at all.
func (o Overlay) Empty() bool {
	return o.Markup == nil && o.Style == nil && o.Script == nil
}

// Workspace is the owned, mutable home of the three buffers. Defaults
// captures the triple the workspace falls back to when a share-link
// decode fails or is absent.
type Workspace struct {
	markup   string
	style    string
	script   string
	defaults Triple
	revision uint64
}

// New creates a workspace initialized to defaults. The defaults triple
// is also remembered as the reset target for failed decodes.
func New(defaults Triple) *Workspace {
	return &Workspace{
		markup:   defaults.Markup,
		style:    defaults.Style,
		script:   defaults.Script,
		defaults: defaults,
	}
}

// Snapshot returns the current triple by value.
func (w *Workspace) Snapshot() Triple {
	return Triple{Markup: w.markup, Style: w.style, Script: w.script}
}

// Revision returns the mutation counter. Every successful mutation,
// including a reset, increments it exactly once.
func (w *Workspace) Revision() uint64 {
	return w.revision
}

// Defaults returns the triple the workspace resets to.
func (w *Workspace) Defaults() Triple {
	return w.defaults
}

// SetBuffer replaces the content of a single buffer with the full new
// text. The editing surface always sends complete buffer contents, not
// deltas.
func (w *Workspace) SetBuffer(target Target, content string) error {
	switch target {
	case TargetMarkup:
		w.markup = content
	case TargetStyle:
		w.style = content
	case TargetScript:
		w.script = content
	default:
		return fmt.Errorf("unknown buffer target %d", target)
	}
	w.revision++
	return nil
}

// Replace sets all three buffers in one mutation. Template loading uses
// this so a preset is never half-applied.
func (w *Workspace) Replace(t Triple) {
	w.markup = t.Markup
	w.style = t.Style
	w.script = t.Script
	w.revision++
}

// ApplyOverlay replaces only the buffers the overlay carries, leaving
// the others at their current value. An empty overlay is a no-op and
// does not bump the revision.
func (w *Workspace) ApplyOverlay(o Overlay) {
	if o.Empty() {
		return
	}
	if o.Markup != nil {
		w.markup = *o.Markup
	}
	if o.Style != nil {
		w.style = *o.Style
	}
	if o.Script != nil {
		w.script = *o.Script
	}
	w.revision++
}

// Reset restores all three buffers to the workspace defaults. Used when
// a share-link decode fails partway: the buffers must never be left in
// a mixed decoded/default state.
func (w *Workspace) Reset() {
	w.Replace(w.defaults)
}
