// Package facts keeps a queryable record of form-fill activity: scans,
// questions, answers, clicks, and retries land here as Datalog facts so
// sessions can be inspected and asserted on after the fact.
package facts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"formpilot/internal/config"
	"formpilot/internal/dom"
)

// Fact is one normalized event in the activity log.
type Fact struct {
	Predicate string        `json:"predicate"`
	Args      []interface{} `json:"args"`
	Timestamp time.Time     `json:"timestamp"`
}

// QueryResult is a binding of variables to values from a Mangle query.
type QueryResult map[string]interface{}

// Store wraps the Mangle deductive database with form-specific fact
// management and a bounded temporal buffer.
type Store struct {
	cfg          config.FactsConfig
	mu           sync.RWMutex
	schemaLoaded bool

	programInfo *analysis.ProgramInfo
	store       factstore.FactStore

	// Temporal ring buffer plus a predicate index for O(m) lookup.
	facts []Fact
	index map[string][]int
}

func NewStore(cfg config.FactsConfig) (*Store, error) {
	s := &Store{
		cfg:   cfg,
		facts: make([]Fact, 0, cfg.FactBufferLimit),
		index: make(map[string][]int),
		store: factstore.NewSimpleInMemoryStore(),
	}

	if cfg.Enable && cfg.SchemaPath != "" {
		if err := s.LoadSchema(cfg.SchemaPath); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// LoadSchema parses a Mangle schema file, analyzes it, and prepares the
// store for rule evaluation.
func (s *Store) LoadSchema(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}

	sourceUnit, err := parse.Unit(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parse schema: %w", err)
	}

	programInfo, err := analysis.AnalyzeOneUnit(sourceUnit, make(map[ast.PredicateSym]ast.Decl))
	if err != nil {
		return fmt.Errorf("analyze schema: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.programInfo = programInfo
	s.schemaLoaded = true

	return nil
}

// AddRule dynamically adds a Mangle rule for runtime assertions.
func (s *Store) AddRule(ruleSource string) error {
	if !s.cfg.Enable {
		return nil
	}

	sourceUnit, err := parse.Unit(bytes.NewReader([]byte(ruleSource)))
	if err != nil {
		return fmt.Errorf("parse rule: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existingDecls := make(map[ast.PredicateSym]ast.Decl)
	if s.programInfo != nil && s.programInfo.Decls != nil {
		for k, v := range s.programInfo.Decls {
			if v != nil {
				existingDecls[k] = *v
			}
		}
	}

	newProgramInfo, err := analysis.AnalyzeOneUnit(sourceUnit, existingDecls)
	if err != nil {
		return fmt.Errorf("analyze rule: %w", err)
	}

	if s.programInfo == nil {
		s.programInfo = newProgramInfo
	} else {
		for k, v := range newProgramInfo.Decls {
			s.programInfo.Decls[k] = v
		}
	}

	return nil
}

// Record appends facts to the temporal buffer and the Mangle store, then
// re-evaluates rules incrementally.
func (s *Store) Record(ctx context.Context, facts []Fact) error {
	if !s.cfg.Enable {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	baseIdx := len(s.facts)
	s.facts = append(s.facts, facts...)
	if s.cfg.FactBufferLimit > 0 && len(s.facts) > s.cfg.FactBufferLimit {
		trim := len(s.facts) - s.cfg.FactBufferLimit
		s.facts = s.facts[trim:]
		s.rebuildIndex()
	} else {
		for i, f := range facts {
			s.index[f.Predicate] = append(s.index[f.Predicate], baseIdx+i)
		}
	}

	for _, f := range facts {
		s.store.Add(factToAtom(f))
	}

	if s.schemaLoaded && s.programInfo != nil {
		if err := engine.EvalProgram(s.programInfo, s.store); err != nil {
			return fmt.Errorf("eval program after fact insertion: %w", err)
		}
	}

	return nil
}

// Query executes a Mangle query with variable binding and returns all
// satisfying assignments. Falls back to a direct buffer search when the
// store lookup misses.
func (s *Store) Query(ctx context.Context, queryStr string) ([]QueryResult, error) {
	if !s.cfg.Enable || !s.schemaLoaded {
		return nil, fmt.Errorf("fact store not ready")
	}

	sourceUnit, err := parse.Unit(bytes.NewReader([]byte(queryStr)))
	if err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}
	if len(sourceUnit.Clauses) == 0 {
		return nil, fmt.Errorf("no query found")
	}
	queryAtom := sourceUnit.Clauses[0].Head

	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]QueryResult, 0)
	err = s.store.GetFacts(queryAtom, func(atom ast.Atom) error {
		result := make(QueryResult)
		for i, arg := range queryAtom.Args {
			if i >= len(atom.Args) {
				break
			}
			if varArg, ok := arg.(ast.Variable); ok {
				result[varArg.Symbol] = convertConstant(atom.Args[i])
			}
		}
		results = append(results, result)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("query execution: %w", err)
	}

	if len(results) == 0 {
		results = append(results, s.queryBufferDirect(queryAtom.Predicate.Symbol, queryAtom.Args)...)
	}

	return results, nil
}

func (s *Store) queryBufferDirect(predicate string, queryArgs []ast.BaseTerm) []QueryResult {
	results := make([]QueryResult, 0)

	for _, idx := range s.index[predicate] {
		if idx < 0 || idx >= len(s.facts) {
			continue
		}
		f := s.facts[idx]
		if len(queryArgs) > 0 && len(f.Args) < len(queryArgs) {
			continue
		}

		result := make(QueryResult)
		matches := true
		for i, qArg := range queryArgs {
			if i >= len(f.Args) {
				break
			}
			if varArg, ok := qArg.(ast.Variable); ok {
				result[varArg.Symbol] = f.Args[i]
			} else if constArg, ok := qArg.(ast.Constant); ok {
				if fmt.Sprintf("%v", f.Args[i]) != fmt.Sprintf("%v", convertConstant(constArg)) {
					matches = false
					break
				}
			}
		}
		if matches {
			results = append(results, result)
		}
	}

	return results
}

// QueryTemporal returns facts for a predicate within a time window.
func (s *Store) QueryTemporal(predicate string, after, before time.Time) []Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]Fact, 0)
	for _, idx := range s.index[predicate] {
		if idx < 0 || idx >= len(s.facts) {
			continue
		}
		f := s.facts[idx]
		if (after.IsZero() || f.Timestamp.After(after)) &&
			(before.IsZero() || f.Timestamp.Before(before)) {
			results = append(results, f)
		}
	}
	return results
}

// FactsByPredicate returns matching facts using the index.
func (s *Store) FactsByPredicate(predicate string) []Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	indices := s.index[predicate]
	results := make([]Fact, 0, len(indices))
	for _, idx := range indices {
		if idx >= 0 && idx < len(s.facts) {
			results = append(results, s.facts[idx])
		}
	}
	return results
}

// Facts returns a shallow copy of buffered facts for debugging.
func (s *Store) Facts() []Fact {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Fact, len(s.facts))
	copy(out, s.facts)
	return out
}

// Ready reports whether the store has a usable query context.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schemaLoaded || !s.cfg.Enable
}

func (s *Store) rebuildIndex() {
	s.index = make(map[string][]int)
	for i, f := range s.facts {
		s.index[f.Predicate] = append(s.index[f.Predicate], i)
	}
}

func factToAtom(f Fact) ast.Atom {
	args := make([]ast.BaseTerm, len(f.Args))
	for i, arg := range f.Args {
		args[i] = toConstant(arg)
	}
	return ast.Atom{
		Predicate: ast.PredicateSym{Symbol: f.Predicate, Arity: len(f.Args)},
		Args:      args,
	}
}

func toConstant(v interface{}) ast.Constant {
	switch val := v.(type) {
	case string:
		return ast.String(val)
	case int:
		return ast.Number(int64(val))
	case int64:
		return ast.Number(val)
	case float64:
		return ast.Float64(val)
	case bool:
		if val {
			return ast.String("true")
		}
		return ast.String("false")
	default:
		return ast.String(fmt.Sprintf("%v", v))
	}
}

func convertConstant(c ast.BaseTerm) interface{} {
	if c == nil {
		return nil
	}
	switch term := c.(type) {
	case ast.Constant:
		if term.Type == ast.StringType {
			val, _ := term.StringValue()
			return val
		} else if term.Type == ast.NumberType {
			return term.NumberValue
		} else if term.Type == ast.Float64Type {
			if val, err := term.Float64Value(); err == nil {
				return val
			}
		}
		return term.String()
	case ast.Variable:
		return term.Symbol
	default:
		return fmt.Sprintf("%v", c)
	}
}

// Typed recorders for the engine's lifecycle events. Recording is
// best-effort; callers log and continue when it fails.

func (s *Store) RecordSessionStart(ctx context.Context, sessionID, mode, url string) error {
	return s.Record(ctx, []Fact{{
		Predicate: "session_started",
		Args:      []interface{}{sessionID, mode, url},
		Timestamp: time.Now(),
	}})
}

func (s *Store) RecordScan(ctx context.Context, sessionID string, fields []dom.FieldDescriptor, buttons []dom.ButtonDescriptor) error {
	now := time.Now()
	facts := make([]Fact, 0, len(fields)+len(buttons))
	for _, f := range fields {
		facts = append(facts, Fact{
			Predicate: "field_scanned",
			Args:      []interface{}{sessionID, f.ID, f.Type, f.Label, f.Selector},
			Timestamp: now,
		})
	}
	for _, b := range buttons {
		facts = append(facts, Fact{
			Predicate: "button_scanned",
			Args:      []interface{}{sessionID, b.ID, b.Text, b.Selector},
			Timestamp: now,
		})
	}
	return s.Record(ctx, facts)
}

func (s *Store) RecordQuestion(ctx context.Context, sessionID, fieldID, question string, index, total int) error {
	return s.Record(ctx, []Fact{{
		Predicate: "question_asked",
		Args:      []interface{}{sessionID, fieldID, question, index, total},
		Timestamp: time.Now(),
	}})
}

func (s *Store) RecordAnswer(ctx context.Context, sessionID, fieldID, answer string) error {
	return s.Record(ctx, []Fact{{
		Predicate: "answer_applied",
		Args:      []interface{}{sessionID, fieldID, answer},
		Timestamp: time.Now(),
	}})
}

func (s *Store) RecordClick(ctx context.Context, sessionID, buttonText, selector string) error {
	return s.Record(ctx, []Fact{{
		Predicate: "button_clicked",
		Args:      []interface{}{sessionID, buttonText, selector},
		Timestamp: time.Now(),
	}})
}

func (s *Store) RecordRetry(ctx context.Context, sessionID, fieldID string, status int) error {
	return s.Record(ctx, []Fact{{
		Predicate: "retry_scheduled",
		Args:      []interface{}{sessionID, fieldID, status},
		Timestamp: time.Now(),
	}})
}

func (s *Store) RecordCompletion(ctx context.Context, sessionID string) error {
	return s.Record(ctx, []Fact{{
		Predicate: "session_completed",
		Args:      []interface{}{sessionID},
		Timestamp: time.Now(),
	}})
}
