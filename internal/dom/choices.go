package dom

import "strings"

// Choice is one selectable value of a select or radio field.
type Choice struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// SelectChoices extracts the options of a select element in document order.
// Disabled options and empty placeholder entries are dropped. Optgroups are
// flattened.
func SelectChoices(sel *Element) []Choice {
	if sel == nil || sel.Tag() != "select" {
		return nil
	}
	var out []Choice
	var visit func(e *Element)
	visit = func(e *Element) {
		for c := e.node.FirstChild; c != nil; c = c.NextSibling {
			child := &Element{node: c, snap: e.snap}
			switch child.Tag() {
			case "option":
				if child.HasAttr("disabled") {
					continue
				}
				label := child.Text()
				value := child.Attr("value")
				if value == "" {
					value = label
				}
				if label == "" {
					label = value
				}
				if label == "" {
					continue
				}
				out = append(out, Choice{Label: label, Value: value})
			case "optgroup":
				visit(child)
			}
		}
	}
	visit(sel)
	return out
}

// RadioChoices returns the labeled values of every visible radio input
// sharing the given name.
func RadioChoices(s *Snapshot, name string) []Choice {
	if name == "" {
		return nil
	}
	var out []Choice
	s.Walk(func(el *Element) bool {
		if el.Tag() != "input" || el.Attr("name") != name {
			return true
		}
		if !strings.EqualFold(el.Attr("type"), "radio") {
			return true
		}
		if el.hidden() || el.insideOverlay() {
			return true
		}
		value := el.Attr("value")
		label := resolveLabel(s, el)
		if label == "" {
			label = value
		}
		if label == "" {
			return true
		}
		if value == "" {
			value = label
		}
		out = append(out, Choice{Label: label, Value: value})
		return true
	})
	return out
}
