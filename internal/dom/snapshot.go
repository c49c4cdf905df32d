package dom

import (
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// OverlayAttr marks the subtree owned by the engine's own feedback UI.
// Anything under an element carrying this attribute is never scanned.
const OverlayAttr = "data-formpilot-overlay"

// HiddenAttr is stamped onto elements with no visible box when a live page
// is captured. Static fixtures can set it directly.
const HiddenAttr = "data-fp-hidden"

var whitespaceRe = regexp.MustCompile(`\s+`)

// Snapshot is one parsed view of a document. Selectors generated from a
// snapshot are only meaningful against that same snapshot: every capture
// bumps the generation so stale selectors can be rejected instead of
// silently resolving against a mutated tree.
type Snapshot struct {
	root       *html.Node
	generation int
}

// Parse builds a snapshot from an HTML document and tags it with the
// capture generation that produced it.
func Parse(r io.Reader, generation int) (*Snapshot, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return &Snapshot{root: doc, generation: generation}, nil
}

// ParseString is a convenience wrapper around Parse for in-memory HTML.
func ParseString(src string, generation int) (*Snapshot, error) {
	return Parse(strings.NewReader(src), generation)
}

// Generation returns the capture generation this snapshot belongs to.
func (s *Snapshot) Generation() int { return s.generation }

// Root returns the document's <html> element, or nil for an empty tree.
func (s *Snapshot) Root() *Element {
	for n := s.root.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.ElementNode {
			return &Element{node: n, snap: s}
		}
	}
	return nil
}

// Walk visits every element in document order until fn returns false.
func (s *Snapshot) Walk(fn func(*Element) bool) {
	var visit func(n *html.Node) bool
	visit = func(n *html.Node) bool {
		if n.Type == html.ElementNode {
			if !fn(&Element{node: n, snap: s}) {
				return false
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !visit(c) {
				return false
			}
		}
		return true
	}
	visit(s.root)
}

// Element wraps one element node of a snapshot.
type Element struct {
	node *html.Node
	snap *Snapshot
}

// Snapshot returns the snapshot this element belongs to.
func (e *Element) Snapshot() *Snapshot { return e.snap }

// Tag returns the lowercase tag name.
func (e *Element) Tag() string { return strings.ToLower(e.node.Data) }

// Attr returns the value of the named attribute, or "".
func (e *Element) Attr(name string) string {
	for _, a := range e.node.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

// HasAttr reports whether the attribute is present, regardless of value.
func (e *Element) HasAttr(name string) bool {
	for _, a := range e.node.Attr {
		if strings.EqualFold(a.Key, name) {
			return true
		}
	}
	return false
}

// ID returns the id attribute.
func (e *Element) ID() string { return e.Attr("id") }

// HasClass reports whether the class list contains name.
func (e *Element) HasClass(name string) bool {
	for _, c := range strings.Fields(e.Attr("class")) {
		if c == name {
			return true
		}
	}
	return false
}

// Parent returns the parent element, or nil at the document boundary.
func (e *Element) Parent() *Element {
	p := e.node.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil
	}
	return &Element{node: p, snap: e.snap}
}

// Text returns the element's text content with whitespace collapsed.
func (e *Element) Text() string {
	var b strings.Builder
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(e.node)
	return collapseSpace(b.String())
}

// Same reports whether both wrappers point at the same underlying node.
func (e *Element) Same(other *Element) bool {
	return other != nil && e.node == other.node
}

// sameTagOrdinal returns the 1-based position of the element among
// preceding siblings with the same tag.
func (e *Element) sameTagOrdinal() int {
	n := 1
	for sib := e.node.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type == html.ElementNode && strings.EqualFold(sib.Data, e.node.Data) {
			n++
		}
	}
	return n
}

// hidden reports whether the element has no visible box. A live capture
// stamps HiddenAttr from the page's layout; static markup falls back to
// the hidden attribute and inline display/visibility styles.
func (e *Element) hidden() bool {
	if e.HasAttr(HiddenAttr) || e.HasAttr("hidden") {
		return true
	}
	style := strings.ReplaceAll(strings.ToLower(e.Attr("style")), " ", "")
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

// insideOverlay reports whether the element lives under the engine's own UI.
func (e *Element) insideOverlay() bool {
	for n := e; n != nil; n = n.Parent() {
		if n.HasAttr(OverlayAttr) {
			return true
		}
	}
	return false
}

func collapseSpace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
