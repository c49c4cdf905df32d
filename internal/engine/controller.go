package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"formpilot/internal/dom"
)

// Controller owns one linear traversal of a field sequence. It is not
// goroutine-safe: callers serialize access per session, matching the
// one-outstanding-turn ordering guarantee.
type Controller struct {
	source    FieldSource
	chatter   Chatter
	messenger Messenger
	interp    *Interpreter
	logger    *zap.Logger
	sleep     func(context.Context, time.Duration) error

	sessionID string
	fields    []dom.FieldDescriptor
	buttons   []dom.ButtonDescriptor
	index     int
	state     State
	turn      *Turn

	// epoch tags outstanding requests with the traversal active at
	// dispatch time so a slow response from a superseded traversal is
	// discarded instead of applied.
	epoch int
}

// ControllerOption customizes a Controller.
type ControllerOption func(*Controller)

// WithChatter installs the freeform-chat fallback.
func WithChatter(c Chatter) ControllerOption {
	return func(ctrl *Controller) { ctrl.chatter = c }
}

// WithSleep replaces the retry/backoff timer. Tests inject a recording fake.
func WithSleep(sleep func(context.Context, time.Duration) error) ControllerOption {
	return func(ctrl *Controller) { ctrl.sleep = sleep }
}

func NewController(source FieldSource, messenger Messenger, logger *zap.Logger, opts ...ControllerOption) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		source:    source,
		messenger: messenger,
		logger:    logger,
		sleep:     sleepWithContext,
		state:     StateIdle,
	}
	c.interp = NewInterpreter(c)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the controller's lifecycle position.
func (c *Controller) State() State { return c.state }

// SessionID returns the correlation identifier for the active traversal.
func (c *Controller) SessionID() string { return c.sessionID }

// CurrentIndex returns the 0-based traversal position.
func (c *Controller) CurrentIndex() int { return c.index }

// CurrentTurn returns the outstanding question, or nil between turns.
func (c *Controller) CurrentTurn() *Turn { return c.turn }

// Fields returns the active field sequence.
func (c *Controller) Fields() []dom.FieldDescriptor { return c.fields }

// Start begins a traversal: loads the field sequence, shows the summary if
// the source produced one, and asks the first question. An empty field
// sequence is a warning, not an error; the controller stays idle.
func (c *Controller) Start(ctx context.Context) error {
	c.epoch++
	c.state = StateIdle
	c.index = 0
	c.turn = nil

	res, err := c.source.Start(ctx)
	if err != nil {
		c.Post(KindError, fmt.Sprintf("Couldn't start the session: %v", err))
		return err
	}
	if len(res.Fields) == 0 {
		c.Post(KindError, "No fillable fields found.")
		return nil
	}

	c.sessionID = res.SessionID
	c.fields = res.Fields
	if buttons, err := c.source.Buttons(ctx); err == nil {
		c.buttons = buttons
	} else {
		c.logger.Warn("button scan failed at session start", zap.Error(err))
	}

	if res.Summary != "" {
		c.Post(KindAssistant, res.Summary)
	}
	if actions := quickActions(c.buttons); len(actions) > 0 {
		c.Post(KindSystem, "Quick actions: "+strings.Join(actions, ", ")+". Say 'click <name>' to use one.")
	}
	c.logger.Info("session started",
		zap.String("session_id", c.sessionID),
		zap.String("mode", string(c.source.Mode())),
		zap.Int("fields", len(c.fields)),
		zap.Int("buttons", len(c.buttons)))

	return c.ask(ctx)
}

// HandleInput routes one user utterance: command first, then skip, then
// answer application, with freeform chat once the traversal is complete.
func (c *Controller) HandleInput(ctx context.Context, raw string) error {
	if c.state == StateIdle {
		c.Post(KindError, "No active session. Start one first.")
		return nil
	}
	if c.interp.TryHandle(ctx, raw) {
		return nil
	}
	if c.state == StateComplete {
		return c.freeform(ctx, raw)
	}

	trimmed := strings.TrimSpace(raw)
	if c.source.Mode() == ModeLive && strings.EqualFold(trimmed, "skip") {
		c.Post(KindSystem, "Skipped.")
		return c.advance(ctx)
	}

	if c.turn == nil {
		// The last question fetch failed; any input re-attempts it.
		return c.ask(ctx)
	}

	if c.source.Mode() == ModeRemote && c.chatter != nil && !looksLikeAnswer(c.turn, trimmed) {
		return c.freeform(ctx, raw)
	}

	if err := c.source.Apply(ctx, c.turn, trimmed); err != nil {
		c.Post(KindError, fmt.Sprintf("Couldn't apply that answer: %v", err))
		return nil
	}
	return c.advance(ctx)
}

// ask requests the question for the current field, applying the
// single-retry policy for transient upstream failures.
func (c *Controller) ask(ctx context.Context) error {
	c.state = StateAsking
	field := c.fields[c.index]
	epoch := c.epoch

	turn, err := c.questionWithRetry(ctx, field, c.index+1, len(c.fields))
	if epoch != c.epoch {
		c.logger.Debug("discarding question from superseded traversal",
			zap.String("field", field.ID))
		return nil
	}
	c.state = StateAwaitingAnswer
	if err != nil {
		c.turn = nil
		c.Post(KindError, fmt.Sprintf("Couldn't get a question for %q: %v. Send a value to try again.", field.DisplayName(), err))
		return nil
	}
	c.turn = turn
	c.Post(KindQuestion, renderTurn(turn))
	return nil
}

// questionWithRetry makes at most two attempts: the original request plus
// one scheduled retry when the failure is transient (503 after 2s, 429
// after 5s). The attempt counter, not a rescheduling convention, enforces
// the single-retry guarantee.
func (c *Controller) questionWithRetry(ctx context.Context, field dom.FieldDescriptor, index, total int) (*Turn, error) {
	for attempt := 0; ; attempt++ {
		turn, err := c.source.Question(ctx, field, index, total)
		if err == nil {
			return turn, nil
		}
		delay, transient := retryDelay(err)
		if !transient || attempt >= 1 {
			return nil, err
		}
		if obs, ok := c.source.(SessionObserver); ok {
			obs.ObserveRetry(ctx, field, httpStatus(err))
		}
		c.Post(KindSystem, fmt.Sprintf("The assistant is busy, retrying in %d seconds...", int(delay.Seconds())))
		c.logger.Warn("transient question failure, scheduling retry",
			zap.String("field", field.ID),
			zap.Int("status", httpStatus(err)),
			zap.Duration("delay", delay))
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// advance moves past the current field and either asks the next question or
// completes the traversal.
func (c *Controller) advance(ctx context.Context) error {
	c.turn = nil
	c.index++
	if c.index >= len(c.fields) {
		c.complete(ctx)
		return nil
	}
	return c.ask(ctx)
}

func (c *Controller) complete(ctx context.Context) {
	c.state = StateComplete
	c.turn = nil
	if obs, ok := c.source.(SessionObserver); ok {
		obs.ObserveCompletion(ctx)
	}
	msg := "All fields are filled."
	for _, b := range c.buttons {
		if b.IsSubmit {
			msg += fmt.Sprintf(" Say 'submit' to press %q.", b.Text)
			break
		}
	}
	c.Post(KindAssistant, msg)
	c.logger.Info("traversal complete", zap.String("session_id", c.sessionID))
}

func (c *Controller) freeform(ctx context.Context, raw string) error {
	if c.chatter == nil {
		c.Post(KindAssistant, "The form is done. Start a new session to fill another one.")
		return nil
	}
	epoch := c.epoch
	reply, isFormCommand, err := c.chatter.Chat(ctx, c.sessionID, raw)
	if epoch != c.epoch {
		return nil
	}
	if err != nil {
		c.Post(KindError, fmt.Sprintf("Chat failed: %v", err))
		return nil
	}
	if reply != "" {
		c.Post(KindAssistant, reply)
	}
	if isFormCommand && c.state != StateComplete {
		return c.ask(ctx)
	}
	return nil
}

// quickActions picks the buttons worth surfacing unprompted: the ones with
// a navigation or submit intent, capped at five.
func quickActions(buttons []dom.ButtonDescriptor) []string {
	var actions []string
	for _, b := range buttons {
		if !b.IsSubmit && !b.IsNext && !b.IsPrev {
			continue
		}
		actions = append(actions, b.Text)
		if len(actions) == 5 {
			break
		}
	}
	return actions
}

// looksLikeAnswer decides whether a remote-mode utterance answers the
// outstanding question. Option turns only accept one of their choices;
// everything else goes to the backend's chat classifier.
func looksLikeAnswer(turn *Turn, input string) bool {
	switch turn.Affordance() {
	case AffordanceOptions:
		for _, o := range turn.Options {
			if strings.EqualFold(o.Label, input) || strings.EqualFold(o.Value, input) {
				return true
			}
		}
		return false
	case AffordanceYesNo:
		lower := strings.ToLower(input)
		return lower == "yes" || lower == "no"
	}
	return true
}

func renderTurn(t *Turn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "(%d/%d) %s", t.Index, t.Total, t.Question)
	switch t.Affordance() {
	case AffordanceOptions:
		b.WriteString("\nOptions: " + strings.Join(Labels(t.Options), ", "))
	case AffordanceYesNo:
		b.WriteString("\nAnswer yes or no.")
	}
	return b.String()
}

// Post forwards a message to the chat surface.
func (c *Controller) Post(kind MessageKind, text string) {
	if c.messenger != nil {
		c.messenger.Post(kind, text)
	}
}

// Buttons returns the cached button set from the latest scan.
func (c *Controller) Buttons() []dom.ButtonDescriptor { return c.buttons }

// RescanButtons refreshes and returns the button set.
func (c *Controller) RescanButtons(ctx context.Context) ([]dom.ButtonDescriptor, error) {
	buttons, err := c.source.Buttons(ctx)
	if err != nil {
		return nil, err
	}
	c.buttons = buttons
	return buttons, nil
}

// Rescan replaces both the field sequence and the button set. The traversal
// index is clamped to the new field count; when it lands past the end the
// traversal completes rather than pointing at a field that no longer exists.
func (c *Controller) Rescan(ctx context.Context) (int, int, error) {
	fields, err := c.source.Fields(ctx)
	if err != nil {
		return 0, 0, err
	}
	buttons, err := c.source.Buttons(ctx)
	if err != nil {
		return 0, 0, err
	}
	c.fields = fields
	c.buttons = buttons
	if c.index > len(fields) {
		c.index = len(fields)
	}
	if c.state != StateIdle && c.state != StateComplete && c.index >= len(fields) {
		c.complete(ctx)
	} else if c.state == StateAwaitingAnswer {
		// The outstanding question predates the new capture, so its
		// field descriptor may no longer match the page. Re-ask against
		// the fresh sequence instead of applying through it.
		c.turn = nil
		if err := c.ask(ctx); err != nil {
			return 0, 0, err
		}
	}
	return len(fields), len(buttons), nil
}

// Click activates a button through the field source, then refreshes the
// cached button set so follow-up commands see what the click revealed.
func (c *Controller) Click(ctx context.Context, button dom.ButtonDescriptor) error {
	if err := c.source.Click(ctx, button); err != nil {
		return err
	}
	if buttons, err := c.source.Buttons(ctx); err == nil {
		c.buttons = buttons
	} else {
		c.logger.Warn("button rescan after click failed", zap.Error(err))
	}
	return nil
}
