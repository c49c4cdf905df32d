package engine

import (
	"context"

	"formpilot/internal/dom"
)

// Mode selects the fill strategy for a session.
type Mode string

const (
	// ModeLive applies answers by mutating the page directly.
	ModeLive Mode = "live-dom"
	// ModeRemote forwards answers to a backend that owns the field state.
	ModeRemote Mode = "remote-document"
)

// State is the controller's position in the traversal lifecycle.
type State string

const (
	StateIdle           State = "idle"
	StateAsking         State = "asking_question"
	StateAwaitingAnswer State = "awaiting_answer"
	StateComplete       State = "complete"
)

// Turn is one question/answer exchange for a single field. It is transient;
// nothing outside the active turn references it.
type Turn struct {
	Field     dom.FieldDescriptor `json:"field"`
	Question  string              `json:"question"`
	FieldType string              `json:"field_type"`
	Options   []Option            `json:"options,omitempty"`
	Index     int                 `json:"index"`
	Total     int                 `json:"total"`

	// Generation is the capture generation the field was scanned from.
	// Live sessions only trust the field's selector for that generation.
	Generation int `json:"-"`
}

// Affordance names the single answer-input kind rendered for a turn.
type Affordance string

const (
	AffordanceText    Affordance = "text"
	AffordanceOptions Affordance = "options"
	AffordanceYesNo   Affordance = "yes_no"
)

// Affordance maps the turn's field type onto the one input affordance shown
// to the user. Radio groups get option buttons, checkboxes get Yes/No,
// everything else is free text.
func (t *Turn) Affordance() Affordance {
	switch t.FieldType {
	case "radio_group", "radio", "select":
		if len(t.Options) > 0 {
			return AffordanceOptions
		}
		return AffordanceText
	case "checkbox":
		return AffordanceYesNo
	}
	return AffordanceText
}

// StartResult is what a field source reports when a session begins.
type StartResult struct {
	SessionID string
	Fields    []dom.FieldDescriptor
	Summary   string
}

// FieldSource abstracts where fields come from and where answers go. The
// live implementation scans and mutates the page; the remote implementation
// round-trips a backend that owns the authoritative field state.
type FieldSource interface {
	Mode() Mode

	// Start initializes the traversal and returns the field sequence.
	Start(ctx context.Context) (*StartResult, error)

	// Question produces the turn for one field. index is 1-based.
	Question(ctx context.Context, field dom.FieldDescriptor, index, total int) (*Turn, error)

	// Apply records the answer for the turn's field. The traversal only
	// advances when Apply returns nil.
	Apply(ctx context.Context, turn *Turn, answer string) error

	// Fields re-reads the current field sequence without starting over.
	Fields(ctx context.Context) ([]dom.FieldDescriptor, error)

	// Buttons re-reads the clickable controls. Sources with no notion of
	// buttons return an empty list.
	Buttons(ctx context.Context) ([]dom.ButtonDescriptor, error)

	// Click activates a previously scanned button.
	Click(ctx context.Context, button dom.ButtonDescriptor) error
}

// SessionObserver is an optional FieldSource extension for sources that
// keep an activity ledger. The controller reports scheduled retries and
// traversal completion through it.
type SessionObserver interface {
	ObserveRetry(ctx context.Context, field dom.FieldDescriptor, status int)
	ObserveCompletion(ctx context.Context)
}

// Chatter handles freeform messages that are neither commands nor answers.
// The boolean result reports whether the backend classified the message as
// a form command, in which case the controller immediately re-asks.
type Chatter interface {
	Chat(ctx context.Context, sessionID, message string) (reply string, isFormCommand bool, err error)
}

// MessageKind distinguishes the chat surface's message styles.
type MessageKind string

const (
	KindAssistant MessageKind = "assistant"
	KindQuestion  MessageKind = "question"
	KindSystem    MessageKind = "system"
	KindError     MessageKind = "error"
)

// Messenger receives every user-facing message the engine emits. All
// failure paths funnel here; nothing propagates as an unhandled fault.
type Messenger interface {
	Post(kind MessageKind, text string)
}
