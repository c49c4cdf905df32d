package mcp

import (
	"context"
	"fmt"

	"formpilot/internal/backend"
	"formpilot/internal/browser"
	"formpilot/internal/engine"
)

// StartFillingTool begins a live fill conversation against an open page.
type StartFillingTool struct {
	srv *Server
}

func (t *StartFillingTool) Name() string { return "start-filling" }
func (t *StartFillingTool) Description() string {
	return `Start a conversational fill session against an open page.

WHAT IT DOES:
- Scans the live DOM for fillable fields and clickable buttons
- Registers the page with the question backend (falls back to local
  questions if the backend is unreachable)
- Asks the first question

WORKFLOW:
1. launch-browser, open-page -> get page session_id
2. start-filling(session_id) -> get fill_session_id + first question
3. send-message(fill_session_id, answer) repeatedly until complete

Returns: {fill_session_id, fields, messages}. Each message has a kind
(assistant, question, system, error) and text.`
}
func (t *StartFillingTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"session_id": map[string]interface{}{
				"type":        "string",
				"description": "Page session to fill (from open-page)",
			},
		},
		"required": []string{"session_id"},
	}
}
func (t *StartFillingTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	pageID := getStringArg(args, "session_id")
	if pageID == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	page, ok := t.srv.manager.Page(pageID)
	if !ok {
		return nil, fmt.Errorf("unknown session: %s", pageID)
	}

	log := newTranscript(t.srv.rec, "")
	source := browser.NewLiveSource(page, t.srv.client, t.srv.cfg.Engine, t.srv.store, t.srv.logger)
	ctrl := engine.NewController(source, log, t.srv.logger, engine.WithChatter(t.srv.client))

	if err := ctrl.Start(ctx); err != nil {
		return nil, err
	}

	fillID := ctrl.SessionID()
	if fillID == "" {
		// Nothing to fill; no session to track.
		return map[string]interface{}{
			"fill_session_id": "",
			"messages":        log.drain(),
		}, nil
	}

	log.bind(fillID)
	if t.srv.rec != nil {
		_ = t.srv.rec.StartSession(fillID)
		log.replay()
	}
	t.srv.fills.put(fillID, &fillSession{
		controller: ctrl,
		log:        log,
		mode:       engine.ModeLive,
		pageID:     pageID,
	})
	t.srv.manager.UpdateMetadata(pageID, func(s browser.Session) browser.Session {
		s.Mode = string(engine.ModeLive)
		return s
	})

	return map[string]interface{}{
		"fill_session_id": fillID,
		"fields":          ctrl.Fields(),
		"messages":        log.drain(),
	}, nil
}

// StartDocumentSessionTool begins a fill conversation for a backend-hosted
// document, where the backend owns the field state.
type StartDocumentSessionTool struct {
	srv *Server
}

func (t *StartDocumentSessionTool) Name() string { return "start-document-session" }
func (t *StartDocumentSessionTool) Description() string {
	return `Start a conversational fill session for a document the backend
already holds (e.g. an uploaded PDF form).

Unlike start-filling, no browser page is involved: the backend owns the
fields and questions, and answers are forwarded to it.

Returns: {fill_session_id, messages} with the first question.`
}
func (t *StartDocumentSessionTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"session_id": map[string]interface{}{
				"type":        "string",
				"description": "Backend document session id",
			},
		},
		"required": []string{"session_id"},
	}
}
func (t *StartDocumentSessionTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	sessionID := getStringArg(args, "session_id")
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}

	log := newTranscript(t.srv.rec, sessionID)
	source := backend.NewRemoteSource(t.srv.client, sessionID, t.srv.logger)
	ctrl := engine.NewController(source, log, t.srv.logger, engine.WithChatter(t.srv.client))

	if err := ctrl.Start(ctx); err != nil {
		return nil, err
	}

	fillID := ctrl.SessionID()
	if fillID == "" {
		return map[string]interface{}{
			"fill_session_id": "",
			"messages":        log.drain(),
		}, nil
	}

	log.bind(fillID)
	if t.srv.rec != nil {
		_ = t.srv.rec.StartSession(fillID)
		log.replay()
	}
	t.srv.fills.put(fillID, &fillSession{
		controller: ctrl,
		log:        log,
		mode:       engine.ModeRemote,
	})

	return map[string]interface{}{
		"fill_session_id": fillID,
		"messages":        log.drain(),
	}, nil
}

// SendMessageTool forwards one user utterance to a fill session.
type SendMessageTool struct {
	srv *Server
}

func (t *SendMessageTool) Name() string { return "send-message" }
func (t *SendMessageTool) Description() string {
	return `Send the user's reply to a fill session and return the engine's
response messages.

The engine decides what the text means: an answer to the current
question, a command (skip, buttons, rescan, click <name>, next, back,
submit, cancel), or freeform chat once the form is complete.

Returns: {messages, state}. state is one of idle, asking_question,
awaiting_answer, complete.`
}
func (t *SendMessageTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"fill_session_id": map[string]interface{}{
				"type":        "string",
				"description": "Fill session (from start-filling or start-document-session)",
			},
			"message": map[string]interface{}{
				"type":        "string",
				"description": "The user's message",
			},
		},
		"required": []string{"fill_session_id", "message"},
	}
}
func (t *SendMessageTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	fill, err := t.srv.fill(args)
	if err != nil {
		return nil, err
	}
	message := getStringArg(args, "message")
	if message == "" {
		return nil, fmt.Errorf("message is required")
	}

	fill.mu.Lock()
	defer fill.mu.Unlock()

	if err := fill.controller.HandleInput(ctx, message); err != nil {
		// The controller already posted a user-facing message; surface
		// whatever it said alongside the error.
		return map[string]interface{}{
			"messages": fill.log.drain(),
			"state":    string(fill.controller.State()),
			"error":    err.Error(),
		}, nil
	}

	return map[string]interface{}{
		"messages": fill.log.drain(),
		"state":    string(fill.controller.State()),
	}, nil
}

// ListButtonsTool rescans and lists the page's clickable controls.
type ListButtonsTool struct {
	srv *Server
}

func (t *ListButtonsTool) Name() string { return "list-buttons" }
func (t *ListButtonsTool) Description() string {
	return `Rescan the page and list its clickable buttons with their inferred
intents (submit, next, back, cancel).

Returns: {buttons: [{id, text, type, is_submit, is_next, is_prev,
is_cancel}]}. Use click-button or send-message("click <name>") to press one.`
}
func (t *ListButtonsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"fill_session_id": map[string]interface{}{
				"type":        "string",
				"description": "Fill session to inspect",
			},
		},
		"required": []string{"fill_session_id"},
	}
}
func (t *ListButtonsTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	fill, err := t.srv.fill(args)
	if err != nil {
		return nil, err
	}

	fill.mu.Lock()
	defer fill.mu.Unlock()

	buttons, err := fill.controller.RescanButtons(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"buttons": buttons}, nil
}

// ClickButtonTool presses a button by (fuzzy) name.
type ClickButtonTool struct {
	srv *Server
}

func (t *ClickButtonTool) Name() string { return "click-button" }
func (t *ClickButtonTool) Description() string {
	return `Click a button on the page by name.

Matching is forgiving: exact text, substring either way, then word
overlap. Equivalent to send-message("click <name>") but returns the
result without phrasing a chat message first.

Returns: {messages, state}.`
}
func (t *ClickButtonTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"fill_session_id": map[string]interface{}{
				"type":        "string",
				"description": "Fill session owning the page",
			},
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Button text to match",
			},
		},
		"required": []string{"fill_session_id", "name"},
	}
}
func (t *ClickButtonTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	fill, err := t.srv.fill(args)
	if err != nil {
		return nil, err
	}
	name := getStringArg(args, "name")
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}

	fill.mu.Lock()
	defer fill.mu.Unlock()

	if err := fill.controller.HandleInput(ctx, "click "+name); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"messages": fill.log.drain(),
		"state":    string(fill.controller.State()),
	}, nil
}

// RescanPageTool re-reads the page and reconciles the traversal with it.
type RescanPageTool struct {
	srv *Server
}

func (t *RescanPageTool) Name() string { return "rescan-page" }
func (t *RescanPageTool) Description() string {
	return `Rescan the page after it changed (new step revealed, fields added
or removed) and reconcile the fill position with the new layout.

If the current field index is past the new field count the session
completes. Equivalent to send-message("rescan").

Returns: {fields, buttons, messages, state}.`
}
func (t *RescanPageTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"fill_session_id": map[string]interface{}{
				"type":        "string",
				"description": "Fill session to rescan",
			},
		},
		"required": []string{"fill_session_id"},
	}
}
func (t *RescanPageTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	fill, err := t.srv.fill(args)
	if err != nil {
		return nil, err
	}

	fill.mu.Lock()
	defer fill.mu.Unlock()

	fieldCount, buttonCount, err := fill.controller.Rescan(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"fields":   fieldCount,
		"buttons":  buttonCount,
		"messages": fill.log.drain(),
		"state":    string(fill.controller.State()),
	}, nil
}

// fill resolves the fill_session_id argument against the registry.
func (s *Server) fill(args map[string]interface{}) (*fillSession, error) {
	id := getStringArg(args, "fill_session_id")
	if id == "" {
		return nil, fmt.Errorf("fill_session_id is required")
	}
	f, ok := s.fills.get(id)
	if !ok {
		return nil, fmt.Errorf("unknown fill session: %s", id)
	}
	return f, nil
}
