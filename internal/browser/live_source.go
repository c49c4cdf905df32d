package browser

import (
	"context"
	"fmt"
	"time"

	"formpilot/internal/backend"
	"formpilot/internal/config"
	"formpilot/internal/dom"
	"formpilot/internal/engine"
	"formpilot/internal/facts"

	"github.com/go-rod/rod"
	"go.uber.org/zap"
)

// LiveSource drives a fill session against the page itself: fields come
// from scanning the live DOM and answers are written straight back into it.
// Questions come from the backend when it is reachable; when session
// registration fails the source falls back to locally templated questions
// so the form can still be filled offline.
type LiveSource struct {
	page   *rod.Page
	exec   *Executor
	client *backend.Client
	facts  *facts.Store
	logger *zap.Logger

	generation int
	capture    *PageCapture
	fields     []dom.FieldDescriptor
	buttons    []dom.ButtonDescriptor
	sessionID  string
	local      bool
}

func NewLiveSource(page *rod.Page, client *backend.Client, cfg config.EngineConfig, store *facts.Store, logger *zap.Logger) *LiveSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiveSource{
		page:   page,
		exec:   NewExecutor(page, cfg, logger),
		client: client,
		facts:  store,
		logger: logger,
	}
}

func (s *LiveSource) Mode() engine.Mode { return engine.ModeLive }

// Start captures and scans the page, then registers the session with the
// backend. A backend failure downgrades to a local session instead of
// blocking the fill.
func (s *LiveSource) Start(ctx context.Context) (*engine.StartResult, error) {
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}

	descriptions := make(map[string]string, len(s.fields))
	for _, f := range s.fields {
		descriptions[f.ID] = f.DisplayName()
	}

	summary := fmt.Sprintf("This form has %d fields to fill in.", len(s.fields))
	sessionID, remoteSummary, err := s.client.StartSession(ctx, backend.PageInfo{
		Title: s.capture.Title,
		URL:   s.capture.URL,
		Text:  s.capture.Text,
	}, s.fields, descriptions)
	if err != nil {
		sessionID = fmt.Sprintf("local_%d", time.Now().UnixMilli())
		s.local = true
		s.logger.Warn("backend session registration failed, continuing locally",
			zap.String("session_id", sessionID),
			zap.Error(err))
	} else if remoteSummary != "" {
		summary = remoteSummary
	}
	s.sessionID = sessionID

	if s.facts != nil {
		_ = s.facts.RecordSessionStart(ctx, sessionID, string(engine.ModeLive), s.capture.URL)
		_ = s.facts.RecordScan(ctx, sessionID, s.fields, s.buttons)
	}

	return &engine.StartResult{
		SessionID: sessionID,
		Fields:    s.fields,
		Summary:   summary,
	}, nil
}

// Question asks the backend to phrase the question for one field, falling
// back to a template in local mode. Select and radio fields carry their
// choices so the chat surface can render option buttons.
func (s *LiveSource) Question(ctx context.Context, field dom.FieldDescriptor, index, total int) (*engine.Turn, error) {
	var text string
	if s.local {
		text = localQuestion(field)
	} else {
		var err error
		text, err = s.client.Question(ctx, s.sessionID, field, index, total)
		if err != nil {
			return nil, err
		}
	}

	turn := &engine.Turn{
		Field:      field,
		Question:   text,
		FieldType:  field.Type,
		Index:      index,
		Total:      total,
		Generation: s.generation,
	}

	switch field.Type {
	case "select":
		if el := s.capture.Snapshot.Resolve(field.Selector); el != nil {
			turn.Options = choiceOptions(dom.SelectChoices(el))
		}
	case "radio":
		turn.FieldType = "radio_group"
		turn.Options = choiceOptions(dom.RadioChoices(s.capture.Snapshot, field.Name))
	}

	// Outline the field so the user sees which control the question is
	// about. Best effort: a vanished field surfaces on Apply instead.
	if err := s.exec.Focus(ctx, field.Selector); err != nil {
		s.logger.Debug("focus highlight failed", zap.String("selector", field.Selector), zap.Error(err))
	}

	if s.facts != nil {
		_ = s.facts.RecordQuestion(ctx, s.sessionID, field.ID, text, index, total)
	}
	return turn, nil
}

// Apply writes the answer into the live page. The turn's selector is only
// trusted for the capture generation that produced it; after a recapture it
// must re-resolve in the fresh snapshot or the answer is rejected as stale.
// The pending-question outline comes off so the applied-value highlight
// replaces it.
func (s *LiveSource) Apply(ctx context.Context, turn *engine.Turn, answer string) error {
	if staleSelector(s.capture.Snapshot, turn.Field.Selector, turn.Generation) {
		return fmt.Errorf("apply %q: %w", turn.Field.DisplayName(), dom.ErrStaleSelector)
	}
	_ = s.exec.Focus(ctx, "")
	if err := s.exec.SetValue(ctx, turn.Field, answer); err != nil {
		return err
	}
	if s.facts != nil {
		_ = s.facts.RecordAnswer(ctx, s.sessionID, turn.Field.ID, answer)
	}
	return nil
}

// Fields recaptures the page and returns the current field sequence.
func (s *LiveSource) Fields(ctx context.Context) ([]dom.FieldDescriptor, error) {
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	if s.facts != nil {
		_ = s.facts.RecordScan(ctx, s.sessionID, s.fields, s.buttons)
	}
	return s.fields, nil
}

// Buttons recaptures the page and returns the current clickable controls.
func (s *LiveSource) Buttons(ctx context.Context) ([]dom.ButtonDescriptor, error) {
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	return s.buttons, nil
}

// Click pulses and clicks the control, then waits out the settle delay so
// the next button scan sees whatever the click revealed.
func (s *LiveSource) Click(ctx context.Context, button dom.ButtonDescriptor) error {
	if err := s.exec.Click(ctx, button); err != nil {
		return err
	}
	if s.facts != nil {
		_ = s.facts.RecordClick(ctx, s.sessionID, button.Text, button.Selector)
	}
	return sleepCtx(ctx, s.exec.cfg.PostClickRescanDelay())
}

// ObserveRetry lands a retry fact so flaky fields can be queried later.
func (s *LiveSource) ObserveRetry(ctx context.Context, field dom.FieldDescriptor, status int) {
	if s.facts != nil {
		_ = s.facts.RecordRetry(ctx, s.sessionID, field.ID, status)
	}
}

// ObserveCompletion marks the session complete in the fact ledger.
func (s *LiveSource) ObserveCompletion(ctx context.Context) {
	if s.facts != nil {
		_ = s.facts.RecordCompletion(ctx, s.sessionID)
	}
}

// staleSelector reports whether a selector captured at the given generation
// can no longer be trusted: either the snapshot it came from is current, or
// the selector must still resolve in the replacement snapshot.
func staleSelector(snap *dom.Snapshot, selector string, generation int) bool {
	if _, err := snap.ResolveAt(selector, generation); err != nil {
		return snap.Resolve(selector) == nil
	}
	return false
}

// refresh recaptures the DOM under a new generation and rescans it.
func (s *LiveSource) refresh(ctx context.Context) error {
	s.generation++
	capture, err := CapturePage(ctx, s.page, s.generation)
	if err != nil {
		return err
	}
	s.capture = capture
	s.fields = dom.ScanFields(capture.Snapshot)
	s.buttons = dom.ScanButtons(capture.Snapshot)
	s.logger.Debug("page scanned",
		zap.Int("generation", s.generation),
		zap.Int("fields", len(s.fields)),
		zap.Int("buttons", len(s.buttons)))
	return nil
}

func localQuestion(field dom.FieldDescriptor) string {
	name := field.DisplayName()
	switch field.Type {
	case "checkbox":
		return fmt.Sprintf("Should %q be checked? (yes/no)", name)
	case "select", "radio":
		return fmt.Sprintf("Which option should I pick for %q?", name)
	}
	return fmt.Sprintf("What should I enter for %q?", name)
}

func choiceOptions(choices []dom.Choice) []engine.Option {
	out := make([]engine.Option, 0, len(choices))
	for _, c := range choices {
		out = append(out, engine.Option{Label: c.Label, Value: c.Value})
	}
	return out
}
