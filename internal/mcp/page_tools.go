package mcp

import (
	"context"
	"fmt"

	"formpilot/internal/browser"
)

// LaunchBrowserTool starts Chrome using the configured launch command.
type LaunchBrowserTool struct {
	manager *browser.Manager
}

func (t *LaunchBrowserTool) Name() string { return "launch-browser" }
func (t *LaunchBrowserTool) Description() string {
	return `Start or attach to the Chrome instance used for live form filling.

CALL THIS FIRST before open-page. Idempotent: safe to call when already
connected.

Returns: {status: "started"|"already_connected", control_url}`
}
func (t *LaunchBrowserTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *LaunchBrowserTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	if t.manager.IsConnected() {
		return map[string]interface{}{
			"status":      "already_connected",
			"control_url": t.manager.ControlURL(),
		}, nil
	}

	if err := t.manager.Start(ctx); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"status":      "started",
		"control_url": t.manager.ControlURL(),
	}, nil
}

// ShutdownBrowserTool stops the managed Chrome instance and clears sessions.
type ShutdownBrowserTool struct {
	manager *browser.Manager
	srv     *Server
}

func (t *ShutdownBrowserTool) Name() string { return "shutdown-browser" }
func (t *ShutdownBrowserTool) Description() string {
	return `Stop Chrome and clean up all pages and fill sessions.

Fact buffer and transcripts persist; only browser state is released.

Returns: {status: "stopped"}`
}
func (t *ShutdownBrowserTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ShutdownBrowserTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	for _, id := range t.srv.fills.ids() {
		t.srv.fills.remove(id)
		if t.srv.rec != nil {
			_ = t.srv.rec.EndSession(id)
		}
	}
	if err := t.manager.Shutdown(ctx); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "stopped"}, nil
}

// OpenPageTool opens a URL in a fresh incognito page.
type OpenPageTool struct {
	manager *browser.Manager
}

func (t *OpenPageTool) Name() string { return "open-page" }
func (t *OpenPageTool) Description() string {
	return `Open a URL in a new incognito page and track it as a session.

PREREQUISITE: launch-browser.

Returns: {session: {id, url, title}}. Pass the id to start-filling.`
}
func (t *OpenPageTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "Page to open",
			},
		},
		"required": []string{"url"},
	}
}
func (t *OpenPageTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	url := getStringArg(args, "url")
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}

	sess, err := t.manager.OpenPage(ctx, url)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"session": sess}, nil
}

// ListSessionsTool lists tracked pages.
type ListSessionsTool struct {
	manager *browser.Manager
}

func (t *ListSessionsTool) Name() string { return "list-sessions" }
func (t *ListSessionsTool) Description() string {
	return `List all tracked page sessions.

Returns: Array of {id, url, title, status, mode}. Sessions loaded from a
previous run show as "detached" and cannot be filled until reopened.`
}
func (t *ListSessionsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ListSessionsTool) Execute(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{"sessions": t.manager.List()}, nil
}

// ClosePageTool closes one page and ends any fill sessions bound to it.
type ClosePageTool struct {
	manager *browser.Manager
	srv     *Server
}

func (t *ClosePageTool) Name() string { return "close-page" }
func (t *ClosePageTool) Description() string {
	return `Close a tracked page. Fill sessions running on it are ended and
their transcripts finalized.

Returns: {status: "closed", ended_fills}`
}
func (t *ClosePageTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"session_id": map[string]interface{}{
				"type":        "string",
				"description": "Page session to close",
			},
		},
		"required": []string{"session_id"},
	}
}
func (t *ClosePageTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	sessionID := getStringArg(args, "session_id")
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}

	ended := t.srv.fills.removeByPage(sessionID)
	if t.srv.rec != nil {
		for _, id := range ended {
			_ = t.srv.rec.EndSession(id)
		}
	}
	if err := t.manager.ClosePage(sessionID); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"status":      "closed",
		"ended_fills": len(ended),
	}, nil
}
