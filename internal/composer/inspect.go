package composer

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Outline describes the structure of a composed document as the
// rendering surface will see it. It exists for diagnostics and tests:
// the compose API reports it so callers can confirm the region ordering
// without re-parsing the document themselves.
type Outline struct {
	// StyleText is the text content of the head style region.
	StyleText string
	// ScriptText is the text content of the body's trailing script
	// region.
	ScriptText string
	// ScriptAfterMarkup reports whether the script region is the last
	// element of the body, i.e. every markup element precedes it.
	ScriptAfterMarkup bool
	// StyleInHead reports whether the style region lives in the head,
	// before any body content.
	StyleInHead bool
}

// Inspect parses a composed document and locates the three regions.
// Parsing uses the html5 algorithm, which never fails on text input;
// Inspect errors only when the expected regions are missing, which for
// well-formed buffer content indicates a composer bug.
//
// Buffer content that itself closes the body or injects elements can
// legitimately change the parsed shape. Inspect reports what the
// rendering surface would actually see, not what was intended.
func Inspect(doc string) (*Outline, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parsing composed document: %w", err)
	}

	outline := &Outline{}

	head := findElement(root, "head")
	body := findElement(root, "body")
	if head == nil || body == nil {
		return nil, fmt.Errorf("composed document has no head/body")
	}

	if style := findElement(head, "style"); style != nil {
		outline.StyleText = textContent(style)
		outline.StyleInHead = true
	}

	// The script region must be the last element child of body.
	var lastElem *html.Node
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			lastElem = c
		}
	}
	if lastElem != nil && lastElem.Data == "script" {
		outline.ScriptText = textContent(lastElem)
		outline.ScriptAfterMarkup = true
	}

	if !outline.StyleInHead {
		return nil, fmt.Errorf("composed document has no style region")
	}
	return outline, nil
}

// findElement returns the first element with the given tag in document
// order, or nil.
func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// textContent concatenates the text nodes directly under n.
func textContent(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
		}
	}
	return sb.String()
}
