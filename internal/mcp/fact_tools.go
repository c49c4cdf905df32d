package mcp

import (
	"context"
	"fmt"

	"formpilot/internal/facts"
)

// QueryFactsTool runs a Mangle query against the recorded form activity.
type QueryFactsTool struct {
	store *facts.Store
}

func (t *QueryFactsTool) Name() string { return "query-facts" }
func (t *QueryFactsTool) Description() string {
	return `Run a Mangle query over the recorded form-filling activity.

RECORDED PREDICATES:
- session_started(Session, Mode, Url)
- field_scanned(Session, Field, Type, Label, Selector)
- button_scanned(Session, Button, Text, Selector)
- question_asked(Session, Field, Question, Index, Total)
- answer_applied(Session, Field, Answer)
- button_clicked(Session, Text, Selector)
- retry_scheduled(Session, Field, Status)
- session_completed(Session)

DERIVED:
- answered_field(Session, Field)
- flaky_field(Session, Field)

EXAMPLE: query-facts("answered_field(S, F).") lists every filled field.

Returns: {results: [{Var: value, ...}]}`
}
func (t *QueryFactsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Mangle query, e.g. answered_field(S, F).",
			},
		},
		"required": []string{"query"},
	}
}
func (t *QueryFactsTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	query := getStringArg(args, "query")
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	results, err := t.store.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"query":   query,
		"count":   len(results),
		"results": results,
	}, nil
}

// ReadFactsTool dumps raw facts for one predicate.
type ReadFactsTool struct {
	store *facts.Store
}

func (t *ReadFactsTool) Name() string { return "read-facts" }
func (t *ReadFactsTool) Description() string {
	return `Read the raw recorded facts for one predicate, newest last.

Prefer query-facts for joins and derived predicates; use this to inspect
exactly what was recorded.

Returns: {facts: [{predicate, args, timestamp}]}`
}
func (t *ReadFactsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"predicate": map[string]interface{}{
				"type":        "string",
				"description": "Predicate name, e.g. answer_applied",
			},
		},
		"required": []string{"predicate"},
	}
}
func (t *ReadFactsTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	predicate := getStringArg(args, "predicate")
	if predicate == "" {
		return nil, fmt.Errorf("predicate is required")
	}

	result := t.store.FactsByPredicate(predicate)
	return map[string]interface{}{
		"predicate": predicate,
		"count":     len(result),
		"facts":     result,
	}, nil
}

// SubmitRuleTool installs a derived rule into the fact engine.
type SubmitRuleTool struct {
	store *facts.Store
}

func (t *SubmitRuleTool) Name() string { return "submit-rule" }
func (t *SubmitRuleTool) Description() string {
	return `Add a Mangle rule deriving new predicates from the recorded facts.

EXAMPLE:
  stuck_session(S) :- retry_scheduled(S, F, _), !answer_applied(S, F, _).

The rule persists for the lifetime of the server and can be queried with
query-facts afterwards.

Returns: {status: "installed"}`
}
func (t *SubmitRuleTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"rule": map[string]interface{}{
				"type":        "string",
				"description": "Mangle rule source",
			},
		},
		"required": []string{"rule"},
	}
}
func (t *SubmitRuleTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	rule := getStringArg(args, "rule")
	if rule == "" {
		return nil, fmt.Errorf("rule is required")
	}

	if err := t.store.AddRule(rule); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "installed"}, nil
}
