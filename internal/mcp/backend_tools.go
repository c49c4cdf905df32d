package mcp

import (
	"context"

	"formpilot/internal/backend"
)

// BackendHealthTool probes the question backend.
type BackendHealthTool struct {
	client *backend.Client
}

func (t *BackendHealthTool) Name() string { return "backend-health" }
func (t *BackendHealthTool) Description() string {
	return `Check whether the question backend is reachable and healthy.

USE WHEN:
- Fill sessions report backend errors or run in local fallback mode
- Before starting a batch of document sessions

Returns: {status, ai_service} on success; the tool errors when the
backend is unreachable.`
}
func (t *BackendHealthTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *BackendHealthTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	status, err := t.client.Health(ctx)
	if err != nil {
		return nil, err
	}
	return status, nil
}

// CheckAPIKeyTool verifies the backend's upstream model credential.
type CheckAPIKeyTool struct {
	client *backend.Client
}

func (t *CheckAPIKeyTool) Name() string { return "check-api-key" }
func (t *CheckAPIKeyTool) Description() string {
	return `Ask the backend whether its upstream model API key is usable.

A failing key is the usual cause of repeated busy/rate-limit retries
during question generation.

Returns: {valid, message}`
}
func (t *CheckAPIKeyTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *CheckAPIKeyTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	status, err := t.client.CheckAPIKey(ctx)
	if err != nil {
		return nil, err
	}
	return status, nil
}
