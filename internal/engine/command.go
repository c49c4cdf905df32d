package engine

import (
	"context"
	"fmt"
	"strings"

	"formpilot/internal/dom"
)

// maxListedButtons caps the enumerated output of the buttons command.
const maxListedButtons = 10

// CommandSurface is what the interpreter needs from its host: the cached
// button set, rescan triggers, click dispatch, and the message channel.
type CommandSurface interface {
	Buttons() []dom.ButtonDescriptor
	RescanButtons(ctx context.Context) ([]dom.ButtonDescriptor, error)
	Rescan(ctx context.Context) (fields, buttons int, err error)
	Click(ctx context.Context, button dom.ButtonDescriptor) error
	Post(kind MessageKind, text string)
}

// Interpreter parses raw utterances against the imperative command grammar.
// It runs before answer intake on every turn so navigation stays available
// mid-traversal.
type Interpreter struct {
	surface CommandSurface
}

func NewInterpreter(surface CommandSurface) *Interpreter {
	return &Interpreter{surface: surface}
}

// TryHandle reports whether raw matched a command. When true the side
// effects (clicking, rescanning, messages) have already happened and the
// caller must not treat the input as an answer. Grammar, in priority order:
// click/press/tap with a fuzzy name, bare next/submit/back (which fall
// through to answer processing when no matching button exists), a buttons
// listing, and a full rescan.
func (in *Interpreter) TryHandle(ctx context.Context, raw string) bool {
	input := strings.ToLower(strings.TrimSpace(raw))
	if input == "" {
		return false
	}

	for _, verb := range []string{"click ", "press ", "tap "} {
		if name, ok := strings.CutPrefix(input, verb); ok {
			in.clickByName(ctx, strings.TrimSpace(name))
			return true
		}
	}

	switch input {
	case "next", "continue":
		return in.clickIntent(ctx, func(b dom.ButtonDescriptor) bool { return b.IsNext })
	case "submit", "done":
		return in.clickIntent(ctx, func(b dom.ButtonDescriptor) bool { return b.IsSubmit })
	case "back", "previous":
		return in.clickIntent(ctx, func(b dom.ButtonDescriptor) bool { return b.IsPrev })
	case "buttons", "show buttons", "list buttons":
		in.listButtons(ctx)
		return true
	case "scan", "rescan":
		in.rescan(ctx)
		return true
	}
	return false
}

// clickByName fuzzy-matches name against the known button texts. Pass one
// looks for a substring match in either direction; pass two accepts any
// whitespace-split token of name occurring inside a button's text. A miss
// is reported but still counts as handled.
func (in *Interpreter) clickByName(ctx context.Context, name string) {
	buttons := in.surface.Buttons()

	for _, b := range buttons {
		text := strings.ToLower(b.Text)
		if strings.Contains(text, name) || strings.Contains(name, text) {
			in.click(ctx, b)
			return
		}
	}
	for _, b := range buttons {
		text := strings.ToLower(b.Text)
		for _, token := range strings.Fields(name) {
			if strings.Contains(text, token) {
				in.click(ctx, b)
				return
			}
		}
	}
	in.surface.Post(KindError, fmt.Sprintf("No button matching %q found. Say 'buttons' to list what's on the page.", name))
}

// clickIntent activates the first button carrying the given intent flag.
// With no such button it returns false so the bare word can still be taken
// as a literal answer.
func (in *Interpreter) clickIntent(ctx context.Context, match func(dom.ButtonDescriptor) bool) bool {
	for _, b := range in.surface.Buttons() {
		if match(b) {
			in.click(ctx, b)
			return true
		}
	}
	return false
}

func (in *Interpreter) click(ctx context.Context, b dom.ButtonDescriptor) {
	if err := in.surface.Click(ctx, b); err != nil {
		in.surface.Post(KindError, fmt.Sprintf("Couldn't click %q: %v", b.Text, err))
		return
	}
	in.surface.Post(KindSystem, fmt.Sprintf("Clicked %q.", b.Text))
}

func (in *Interpreter) listButtons(ctx context.Context) {
	buttons, err := in.surface.RescanButtons(ctx)
	if err != nil {
		in.surface.Post(KindError, fmt.Sprintf("Couldn't scan buttons: %v", err))
		return
	}
	if len(buttons) == 0 {
		in.surface.Post(KindAssistant, "No clickable buttons found on this page.")
		return
	}
	var b strings.Builder
	b.WriteString("Buttons on this page:\n")
	for i, btn := range buttons {
		if i == maxListedButtons {
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, btn.Text)
	}
	b.WriteString("Say 'click <name>' to press one.")
	in.surface.Post(KindAssistant, b.String())
}

func (in *Interpreter) rescan(ctx context.Context) {
	fields, buttons, err := in.surface.Rescan(ctx)
	if err != nil {
		in.surface.Post(KindError, fmt.Sprintf("Rescan failed: %v", err))
		return
	}
	in.surface.Post(KindAssistant, fmt.Sprintf("Rescanned the page: %d fields, %d buttons.", fields, buttons))
}
