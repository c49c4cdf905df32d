package facts

import (
	"context"
	"testing"
	"time"

	"formpilot/internal/config"
	"formpilot/internal/dom"
)

func newTestStore(t *testing.T, limit int) *Store {
	t.Helper()
	s, err := NewStore(config.FactsConfig{
		Enable:          true,
		SchemaPath:      "../../schemas/form.mg",
		FactBufferLimit: limit,
	})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s
}

func TestStoreReadyAfterSchemaLoad(t *testing.T) {
	s := newTestStore(t, 100)
	if !s.Ready() {
		t.Fatal("store not ready after schema load")
	}
}

func TestStoreDisabledIsNoOp(t *testing.T) {
	s, err := NewStore(config.FactsConfig{Enable: false, FactBufferLimit: 10})
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	ctx := context.Background()
	if err := s.RecordAnswer(ctx, "s-1", "email", "a@b.com"); err != nil {
		t.Fatalf("Record on disabled store: %v", err)
	}
	if len(s.Facts()) != 0 {
		t.Error("disabled store should buffer nothing")
	}
	if !s.Ready() {
		t.Error("disabled store should report ready")
	}
}

func TestStoreMissingSchema(t *testing.T) {
	_, err := NewStore(config.FactsConfig{Enable: true, SchemaPath: "/nonexistent/schema.mg"})
	if err == nil {
		t.Error("expected error for missing schema")
	}
}

func TestRecordScanAndQueryByPredicate(t *testing.T) {
	s := newTestStore(t, 100)
	ctx := context.Background()

	fields := []dom.FieldDescriptor{
		{ID: "email", Type: "email", Label: "Email", Selector: "#email"},
		{ID: "phone", Type: "tel", Label: "Phone", Selector: `[name="phone"]`},
	}
	buttons := []dom.ButtonDescriptor{{ID: "go", Text: "Continue", Selector: "#go"}}

	if err := s.RecordScan(ctx, "s-1", fields, buttons); err != nil {
		t.Fatalf("RecordScan: %v", err)
	}

	scanned := s.FactsByPredicate("field_scanned")
	if len(scanned) != 2 {
		t.Fatalf("expected 2 field_scanned facts, got %d", len(scanned))
	}
	if scanned[0].Args[1] != "email" {
		t.Errorf("unexpected first field fact: %#v", scanned[0].Args)
	}
	if got := s.FactsByPredicate("button_scanned"); len(got) != 1 {
		t.Fatalf("expected 1 button_scanned fact, got %d", len(got))
	}
}

func TestDerivedRuleFromAnswer(t *testing.T) {
	s := newTestStore(t, 100)
	ctx := context.Background()

	if err := s.RecordAnswer(ctx, "s-1", "email", "a@b.com"); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}

	results, err := s.Query(ctx, "answered_field(S, F).")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one answered_field binding")
	}
	if results[0]["F"] != "email" {
		t.Errorf("expected F bound to 'email', got %v", results[0]["F"])
	}
}

func TestBufferTrimKeepsIndexConsistent(t *testing.T) {
	s := newTestStore(t, 5)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		if err := s.RecordAnswer(ctx, "s-1", "field", "v"); err != nil {
			t.Fatalf("RecordAnswer: %v", err)
		}
	}

	if got := len(s.Facts()); got != 5 {
		t.Fatalf("expected buffer trimmed to 5, got %d", got)
	}
	if got := len(s.FactsByPredicate("answer_applied")); got != 5 {
		t.Fatalf("expected index to track 5 facts, got %d", got)
	}
}

func TestQueryTemporalWindow(t *testing.T) {
	s := newTestStore(t, 100)
	ctx := context.Background()

	if err := s.RecordClick(ctx, "s-1", "Continue", "#go"); err != nil {
		t.Fatalf("RecordClick: %v", err)
	}

	recent := s.QueryTemporal("button_clicked", time.Now().Add(-time.Minute), time.Time{})
	if len(recent) != 1 {
		t.Fatalf("expected 1 recent click, got %d", len(recent))
	}
	old := s.QueryTemporal("button_clicked", time.Time{}, time.Now().Add(-time.Minute))
	if len(old) != 0 {
		t.Fatalf("expected no old clicks, got %d", len(old))
	}
}

func TestRetryAndCompletionFacts(t *testing.T) {
	s := newTestStore(t, 100)
	ctx := context.Background()

	if err := s.RecordRetry(ctx, "s-1", "email", 503); err != nil {
		t.Fatalf("RecordRetry: %v", err)
	}
	if err := s.RecordCompletion(ctx, "s-1"); err != nil {
		t.Fatalf("RecordCompletion: %v", err)
	}

	flaky, err := s.Query(ctx, "flaky_field(S, F).")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(flaky) == 0 || flaky[0]["F"] != "email" {
		t.Fatalf("expected flaky_field binding for email, got %v", flaky)
	}
	if got := s.FactsByPredicate("session_completed"); len(got) != 1 {
		t.Fatalf("expected 1 session_completed fact, got %d", len(got))
	}
}

func TestAddRule(t *testing.T) {
	s := newTestStore(t, 100)

	rule := `
Decl stuck_session(Session).

stuck_session(S) :-
    retry_scheduled(S, _, Status),
    Status >= 500.
`
	if err := s.AddRule(rule); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
}
