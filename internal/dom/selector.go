package dom

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// ErrStaleSelector is returned when a selector from an older capture
// generation is used against a newer snapshot. Callers should rescan
// rather than trust a structural path into a mutated tree.
var ErrStaleSelector = errors.New("selector is stale: page was rescanned since it was generated")

// Generate produces a selector that re-locates el within the snapshot it
// was taken from. Priority: the element's own id, then its name attribute,
// then a structural path of tag segments anchored at the nearest ancestor
// with an id. Structural paths are best-effort re-identification tokens;
// they survive only until the next DOM mutation.
func Generate(el *Element) string {
	if id := el.ID(); id != "" {
		return "#" + id
	}
	if name := el.Attr("name"); name != "" {
		return `[name="` + name + `"]`
	}

	var path []string
	for n := el; n != nil; n = n.Parent() {
		if id := n.ID(); id != "" {
			path = append([]string{"#" + id}, path...)
			break
		}
		seg := n.Tag()
		if ord := n.sameTagOrdinal(); ord > 1 {
			seg += fmt.Sprintf(":nth-of-type(%d)", ord)
		}
		path = append([]string{seg}, path...)
	}
	return strings.Join(path, " > ")
}

// Resolve looks a selector back up in the snapshot. A nil result means the
// element is gone; that is a recoverable condition, not an error.
func (s *Snapshot) Resolve(selector string) *Element {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil
	}

	segments := strings.Split(selector, " > ")
	if len(segments) == 1 {
		if id, ok := strings.CutPrefix(selector, "#"); ok {
			return s.byID(id)
		}
		if name, ok := cutNameSelector(selector); ok {
			return s.byName(name)
		}
	}

	var current *Element
	for i, seg := range segments {
		seg = strings.TrimSpace(seg)
		if id, ok := strings.CutPrefix(seg, "#"); ok {
			if i != 0 {
				return nil
			}
			current = s.byID(id)
			if current == nil {
				return nil
			}
			continue
		}

		tag, ord, ok := parseSegment(seg)
		if !ok {
			return nil
		}
		if current == nil {
			// Unanchored paths start at the document element.
			root := s.Root()
			if root == nil || root.Tag() != tag || ord != 1 {
				return nil
			}
			current = root
			continue
		}
		current = childByOrdinal(current, tag, ord)
		if current == nil {
			return nil
		}
	}
	return current
}

// ResolveAt resolves a selector that was generated at the given capture
// generation, rejecting it when the snapshot has since been replaced.
func (s *Snapshot) ResolveAt(selector string, generation int) (*Element, error) {
	if generation != s.generation {
		return nil, ErrStaleSelector
	}
	return s.Resolve(selector), nil
}

func (s *Snapshot) byID(id string) *Element {
	var found *Element
	s.Walk(func(el *Element) bool {
		if el.ID() == id {
			found = el
			return false
		}
		return true
	})
	return found
}

func (s *Snapshot) byName(name string) *Element {
	var found *Element
	s.Walk(func(el *Element) bool {
		if el.Attr("name") == name {
			found = el
			return false
		}
		return true
	})
	return found
}

// childByOrdinal finds the n-th child of parent with the given tag.
func childByOrdinal(parent *Element, tag string, ord int) *Element {
	seen := 0
	var found *Element
	for n := parent.node.FirstChild; n != nil; n = n.NextSibling {
		if n.Type != html.ElementNode {
			continue
		}
		if !strings.EqualFold(n.Data, tag) {
			continue
		}
		seen++
		if seen == ord {
			found = &Element{node: n, snap: parent.snap}
			break
		}
	}
	return found
}

// parseSegment splits "tag" or "tag:nth-of-type(n)" into its parts.
func parseSegment(seg string) (tag string, ord int, ok bool) {
	tag, rest, cut := strings.Cut(seg, ":nth-of-type(")
	if tag == "" {
		return "", 0, false
	}
	if !cut {
		return strings.ToLower(tag), 1, true
	}
	num, closed := strings.CutSuffix(rest, ")")
	if !closed {
		return "", 0, false
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 1 {
		return "", 0, false
	}
	return strings.ToLower(tag), n, true
}

func cutNameSelector(selector string) (string, bool) {
	rest, ok := strings.CutPrefix(selector, `[name="`)
	if !ok {
		return "", false
	}
	name, ok := strings.CutSuffix(rest, `"]`)
	if !ok {
		return "", false
	}
	return name, true
}
