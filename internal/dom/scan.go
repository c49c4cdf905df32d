package dom

import (
	"fmt"
	"regexp"
	"strings"
)

// maxButtonText caps the normalized button label length.
const maxButtonText = 50

// FieldDescriptor is the normalized record for one fillable control.
// It is rebuilt wholesale on every scan; descriptors are never merged
// across captures.
type FieldDescriptor struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Label       string `json:"label"`
	Placeholder string `json:"placeholder"`
	Selector    string `json:"selector"`
}

// DisplayName returns the best human-facing handle for the field.
func (f FieldDescriptor) DisplayName() string {
	switch {
	case f.Label != "":
		return f.Label
	case f.Name != "":
		return f.Name
	case f.Placeholder != "":
		return f.Placeholder
	}
	return "field"
}

// ButtonDescriptor is the normalized record for one clickable control with
// its inferred navigational intent. The intent flags are independent; a
// button can be both submit-like and next-like.
type ButtonDescriptor struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Type     string `json:"type"`
	Selector string `json:"selector"`
	IsSubmit bool   `json:"is_submit"`
	IsNext   bool   `json:"is_next"`
	IsPrev   bool   `json:"is_prev"`
	IsCancel bool   `json:"is_cancel"`
}

var (
	nextRe   = regexp.MustCompile(`(?i)next|continue|proceed|forward`)
	prevRe   = regexp.MustCompile(`(?i)back|previous|prev`)
	cancelRe = regexp.MustCompile(`(?i)cancel|close|dismiss`)
)

// skippedInputTypes are control types that are never materialized as fields.
var skippedInputTypes = map[string]bool{
	"hidden": true,
	"submit": true,
	"button": true,
	"reset":  true,
}

// ScanFields enumerates the fillable controls of the snapshot in document
// order. The scan is pure: calling it twice on the same snapshot yields
// identical descriptor lists.
func ScanFields(s *Snapshot) []FieldDescriptor {
	var fields []FieldDescriptor
	index := 0
	s.Walk(func(el *Element) bool {
		tag := el.Tag()
		if tag != "input" && tag != "textarea" && tag != "select" {
			return true
		}
		ord := index
		index++

		fieldType := tag
		if tag == "input" {
			fieldType = strings.ToLower(el.Attr("type"))
			if fieldType == "" {
				fieldType = "text"
			}
		}
		if skippedInputTypes[fieldType] {
			return true
		}
		if el.insideOverlay() {
			return true
		}

		id := el.ID()
		if id == "" {
			id = fmt.Sprintf("field_%d", ord)
		}
		fields = append(fields, FieldDescriptor{
			ID:          id,
			Name:        el.Attr("name"),
			Type:        fieldType,
			Label:       resolveLabel(s, el),
			Placeholder: el.Attr("placeholder"),
			Selector:    Generate(el),
		})
		return true
	})
	return fields
}

// resolveLabel tries, in order: an explicit <label for=id> association, a
// wrapping <label> ancestor, then aria-label and title attributes.
func resolveLabel(s *Snapshot, el *Element) string {
	if id := el.ID(); id != "" {
		var label string
		s.Walk(func(cand *Element) bool {
			if cand.Tag() == "label" && cand.Attr("for") == id {
				label = cand.Text()
				return false
			}
			return true
		})
		if label != "" {
			return label
		}
	}
	for p := el.Parent(); p != nil; p = p.Parent() {
		if p.Tag() == "label" {
			return p.Text()
		}
	}
	if aria := el.Attr("aria-label"); aria != "" {
		return aria
	}
	return el.Attr("title")
}

// ScanButtons enumerates the clickable controls of the snapshot: native
// buttons, submit/button inputs, and anchor or role=button elements
// carrying button-like classes. Elements with no visible box, disabled
// elements, elements with no derivable text, and anything inside the
// engine's own overlay are excluded.
func ScanButtons(s *Snapshot) []ButtonDescriptor {
	var buttons []ButtonDescriptor
	index := 0
	s.Walk(func(el *Element) bool {
		if !isButtonCandidate(el) {
			return true
		}
		ord := index
		index++

		if el.hidden() || el.HasAttr("disabled") {
			return true
		}
		if el.insideOverlay() {
			return true
		}
		text := buttonText(el)
		if text == "" {
			return true
		}

		id := el.ID()
		if id == "" {
			id = fmt.Sprintf("btn_%d", ord)
		}
		typeAttr := strings.ToLower(el.Attr("type"))
		buttons = append(buttons, ButtonDescriptor{
			ID:       id,
			Text:     text,
			Type:     el.Tag(),
			Selector: Generate(el),
			IsSubmit: typeAttr == "submit" || strings.Contains(strings.ToLower(text), "submit"),
			IsNext:   nextRe.MatchString(text),
			IsPrev:   prevRe.MatchString(text),
			IsCancel: cancelRe.MatchString(text),
		})
		return true
	})
	return buttons
}

func isButtonCandidate(el *Element) bool {
	switch el.Tag() {
	case "button":
		return true
	case "input":
		t := strings.ToLower(el.Attr("type"))
		return t == "submit" || t == "button"
	case "a":
		if el.HasClass("btn") || el.HasClass("button") {
			return true
		}
	}
	if strings.EqualFold(el.Attr("role"), "button") {
		return true
	}
	return el.HasClass("btn") || el.HasClass("button")
}

// buttonText derives the label from content, value, then aria-label, with
// whitespace collapsed and the result truncated to 50 characters.
func buttonText(el *Element) string {
	text := el.Text()
	if text == "" {
		text = collapseSpace(el.Attr("value"))
	}
	if text == "" {
		text = collapseSpace(el.Attr("aria-label"))
	}
	runes := []rune(text)
	if len(runes) > maxButtonText {
		return string(runes[:maxButtonText])
	}
	return text
}
