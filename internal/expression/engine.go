package expression

import (
	"context"
	"fmt"
	"maps"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Label is a key/value annotation attached to a record by set_label actions.
type Label struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Record is the unit the rule engine operates on: a flat field map plus
// an ordered label side channel.
type Record struct {
	Fields map[string]string
	Labels []Label
}

// NewRecord creates a record from a field map. The map is not copied.
func NewRecord(fields map[string]string) *Record {
	return &Record{Fields: fields}
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	clone := &Record{
		Fields: maps.Clone(r.Fields),
	}
	if len(r.Labels) > 0 {
		clone.Labels = append([]Label(nil), r.Labels...)
	}
	return clone
}

// GetFieldValue implements FieldValueAccessor.
func (r *Record) GetFieldValue(name string) (string, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// SetFieldValue implements ModifiableContext.
func (r *Record) SetFieldValue(name, value string) {
	if r.Fields == nil {
		r.Fields = make(map[string]string)
	}
	r.Fields[name] = value
}

// AppendLabel implements ModifiableContext.
func (r *Record) AppendLabel(key, value string) {
	r.Labels = append(r.Labels, Label{Key: key, Value: value})
}

// CompiledRule pairs a parsed expression with its identity. Compile once,
// evaluate many times; the regex cache lives in the engine's evaluator.
type CompiledRule struct {
	ID     string
	Name   string
	Parsed *ParsedExpression

	executions int64 // atomic
	totalNanos int64 // atomic
}

// CompileRule preprocesses and parses a rule expression.
func CompileRule(id, name, expr string) (*CompiledRule, error) {
	parsed, err := PreprocessAndParse(expr)
	if err != nil {
		return nil, fmt.Errorf("compiling rule %q: %w", name, err)
	}
	return &CompiledRule{ID: id, Name: name, Parsed: parsed}, nil
}

// Timing reports the observed execution cost of a rule.
type Timing struct {
	RuleID     string        `json:"rule_id"`
	RuleName   string        `json:"rule_name"`
	Executions int64         `json:"executions"`
	Total      time.Duration `json:"total"`
	Average    time.Duration `json:"average"`
}

// Timing returns accumulated execution timing for the rule.
func (r *CompiledRule) Timing() Timing {
	execs := atomic.LoadInt64(&r.executions)
	total := time.Duration(atomic.LoadInt64(&r.totalNanos))
	t := Timing{
		RuleID:     r.ID,
		RuleName:   r.Name,
		Executions: execs,
		Total:      total,
	}
	if execs > 0 {
		t.Average = total / time.Duration(execs)
	}
	return t
}

func (r *CompiledRule) observe(d time.Duration) {
	atomic.AddInt64(&r.executions, 1)
	atomic.AddInt64(&r.totalNanos, int64(d))
}

// RecordPreview describes one matching record in a rule test.
type RecordPreview struct {
	Original       map[string]string `json:"original"`
	Mapped         map[string]string `json:"mapped"`
	AppliedActions []string          `json:"applied_actions"`
	Labels         []Label           `json:"labels,omitempty"`
	Error          string            `json:"error,omitempty"`
}

// TestResult is the outcome of running a rule against sample records.
type TestResult struct {
	MatchedCount    int             `json:"matched_count"`
	TotalCount      int             `json:"total_count"`
	MatchingRecords []RecordPreview `json:"matching_records"`
	Timing          Timing          `json:"timing"`
}

// ChainRecordResult describes the outcome of a rule chain for one record.
type ChainRecordResult struct {
	Record           *Record
	AppliedRules     []string // IDs of rules whose condition matched, in chain order
	AppliedRuleNames []string // display names parallel to AppliedRules
	Err              error
}

// ChainResult is the outcome of applying a rule chain to a record set.
type ChainResult struct {
	Records  []ChainRecordResult
	Timings  []Timing
	Elapsed  time.Duration
	ErrCount int
}

// Engine applies compiled rules to records. It is safe for concurrent use;
// a single engine shares its regex cache across all invocations.
type Engine struct {
	processor   *RuleProcessor
	concurrency int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithConcurrency bounds the worker pool used by ApplyChain.
func WithConcurrency(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// NewEngine creates a rule engine.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		processor:   NewRuleProcessor(),
		concurrency: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TestRule runs a single rule against sample records without persisting
// anything. Each matching record is reported with its original and mapped
// fields and a human-readable list of applied actions. An evaluation error
// on one record annotates that record and never aborts the batch.
func (e *Engine) TestRule(ctx context.Context, rule *CompiledRule, records []*Record) (*TestResult, error) {
	result := &TestResult{
		TotalCount:      len(records),
		MatchingRecords: make([]RecordPreview, 0),
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		original := rec.Clone()
		working := rec.Clone()

		start := time.Now()
		ruleResult, err := e.processor.Apply(rule.Parsed, working)
		rule.observe(time.Since(start))

		if err != nil {
			result.MatchingRecords = append(result.MatchingRecords, RecordPreview{
				Original: original.Fields,
				Error:    err.Error(),
			})
			continue
		}

		if !ruleResult.Matched {
			continue
		}

		result.MatchedCount++

		preview := RecordPreview{
			Original: original.Fields,
			Mapped:   working.Fields,
			Labels:   working.Labels,
		}
		for _, mod := range ruleResult.Modifications {
			preview.AppliedActions = append(preview.AppliedActions, mod.String())
		}
		result.MatchingRecords = append(result.MatchingRecords, preview)
	}

	result.Timing = rule.Timing()
	return result, nil
}

// ApplyChain applies an ordered rule chain to every record. Records fan
// out across a bounded worker pool; within one record the rules run
// strictly in chain order against the already-mutated working copy.
// A failing record is reported in its slot and does not stop the batch.
func (e *Engine) ApplyChain(ctx context.Context, rules []*CompiledRule, records []*Record) (*ChainResult, error) {
	start := time.Now()

	result := &ChainResult{
		Records: make([]ChainRecordResult, len(records)),
	}

	workers := e.concurrency
	if workers > len(records) {
		workers = len(records)
	}
	if workers < 1 {
		workers = 1
	}

	indexes := make(chan int)
	var wg sync.WaitGroup

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				result.Records[i] = e.applyChainToRecord(rules, records[i])
			}
		}()
	}

	var ctxErr error
feed:
	for i := range records {
		if ctxErr = ctx.Err(); ctxErr != nil {
			break feed
		}
		select {
		case <-ctx.Done():
			ctxErr = ctx.Err()
			break feed
		case indexes <- i:
		}
	}
	close(indexes)
	wg.Wait()

	if ctxErr != nil {
		return nil, ctxErr
	}

	for _, rr := range result.Records {
		if rr.Err != nil {
			result.ErrCount++
		}
	}
	for _, rule := range rules {
		result.Timings = append(result.Timings, rule.Timing())
	}
	result.Elapsed = time.Since(start)

	return result, nil
}

// applyChainToRecord runs every rule, in order, against one record.
func (e *Engine) applyChainToRecord(rules []*CompiledRule, rec *Record) ChainRecordResult {
	rr := ChainRecordResult{Record: rec}

	for _, rule := range rules {
		start := time.Now()
		ruleResult, err := e.processor.Apply(rule.Parsed, rec)
		rule.observe(time.Since(start))

		if err != nil {
			rr.Err = fmt.Errorf("rule %q: %w", rule.Name, err)
			return rr
		}
		if ruleResult.Matched {
			rr.AppliedRules = append(rr.AppliedRules, rule.ID)
			rr.AppliedRuleNames = append(rr.AppliedRuleNames, rule.Name)
		}
	}

	return rr
}
