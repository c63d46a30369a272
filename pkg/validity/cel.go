package validity

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/chittyos/claimchain/pkg/catalog"
	"github.com/chittyos/claimchain/pkg/claims"
)

// CELPredicate evaluates a rule's Expression as a CEL program over the
// claim. The expression sees two variables:
//
//	claim — the claim as a dynamic map (json field names)
//	now   — evaluation time as a Unix timestamp
//
// A boolean result maps to score 1 or 0; a numeric result is used as the
// score directly. Compiled programs are cached per expression.
type CELPredicate struct {
	env   *cel.Env
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELPredicate builds the predicate with its CEL environment.
func NewCELPredicate() (*CELPredicate, error) {
	env, err := cel.NewEnv(
		cel.Variable("claim", cel.DynType),
		cel.Variable("now", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("cel predicate: environment: %w", err)
	}
	return &CELPredicate{env: env, cache: make(map[string]cel.Program)}, nil
}

// Evaluate implements Predicate.
func (p *CELPredicate) Evaluate(claim *claims.Claim, rule catalog.Rule, now time.Time) (float64, error) {
	if rule.Expression == "" {
		return 0, fmt.Errorf("custom rule %s has no expression", rule.Label())
	}

	prg, err := p.program(rule.Expression)
	if err != nil {
		return 0, err
	}

	input := map[string]any{
		"claim": claimAsMap(claim),
		"now":   now.Unix(),
	}
	out, _, err := prg.Eval(input)
	if err != nil {
		return 0, fmt.Errorf("cel eval: %w", err)
	}

	switch v := out.Value().(type) {
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("cel expression returned %T, want bool or number", v)
	}
}

func (p *CELPredicate) program(expr string) (cel.Program, error) {
	p.mu.RLock()
	prg, hit := p.cache[expr]
	p.mu.RUnlock()
	if hit {
		return prg, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if prg, hit = p.cache[expr]; hit {
		return prg, nil
	}

	ast, issues := p.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cel compile: %w", issues.Err())
	}
	prg, err := p.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cel program: %w", err)
	}
	p.cache[expr] = prg
	return prg, nil
}

// claimAsMap exposes the claim to CEL through its json representation.
func claimAsMap(c *claims.Claim) map[string]any {
	raw, err := json.Marshal(c)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{}
	}
	return m
}
