// Package validity scores claims against their templates. Evaluation is a
// pure function of the claim's component set, the template, and "now": no
// randomness, no hidden state, so repeated evaluation of the same inputs
// always produces the same result.
package validity

import (
	"fmt"
	"math"
	"time"

	"github.com/chittyos/claimchain/pkg/catalog"
	"github.com/chittyos/claimchain/pkg/claims"
)

// DisputedContradictionWeight is the fixed system-wide contradiction weight
// above which a failing claim is classified disputed rather than merely
// short of the bar. Deliberately not template-configurable so "disputed"
// stays a comparable signal across claim types.
const DisputedContradictionWeight = 0.3

// PartialValidityFraction scales a template's minimum score down to the
// partially_valid band floor.
const PartialValidityFraction = 0.6

// Predicate is the extension point for custom rules. Implementations are
// registered on the Evaluator by name and selected via Rule.Name. A
// predicate must be deterministic for fixed inputs and now.
type Predicate interface {
	Evaluate(claim *claims.Claim, rule catalog.Rule, now time.Time) (float64, error)
}

// Evaluator runs a template's rules over a claim and combines the weighted
// scores. Safe for concurrent use after construction.
type Evaluator struct {
	predicates map[string]Predicate
	clock      func() time.Time
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithClock overrides the evaluation clock, used by the time_constraint
// rule. Tests pin this for determinism.
func WithClock(clock func() time.Time) Option {
	return func(e *Evaluator) { e.clock = clock }
}

// WithPredicate registers a custom-rule predicate under name.
func WithPredicate(name string, p Predicate) Option {
	return func(e *Evaluator) { e.predicates[name] = p }
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		predicates: make(map[string]Predicate),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate scores claim against tmpl. Rule evaluation never fails: unknown
// rule kinds and erroring custom predicates degrade to a zero-confidence
// failing outcome instead of aborting, so one malformed template cannot
// block claim creation.
func (e *Evaluator) Evaluate(claim *claims.Claim, tmpl catalog.Template) claims.Evaluation {
	now := e.clock()

	outcomes := make([]claims.RuleOutcome, 0, len(tmpl.Rules))
	var weightedSum, totalWeight float64

	for _, rule := range tmpl.Rules {
		score, passed, msg := e.evaluateRule(claim, rule, now)
		score = clamp01(score)
		outcomes = append(outcomes, claims.RuleOutcome{
			Rule:    rule.Label(),
			Kind:    string(rule.Kind),
			Passed:  passed,
			Score:   score,
			Weight:  rule.Weight,
			Message: msg,
		})
		weightedSum += score * rule.Weight
		totalWeight += rule.Weight
	}

	// A zero-weight template cannot express confidence in anything.
	var normalized float64
	if totalWeight > 0 {
		normalized = clamp01(weightedSum / totalWeight)
	}

	return claims.Evaluation{
		Status:      deriveStatus(claim, tmpl, normalized),
		Score:       normalized,
		Rules:       outcomes,
		EvaluatedAt: now,
	}
}

// deriveStatus maps the normalized score onto a validity status. A claim
// above the bar is valid; below it, heavy contradiction takes precedence
// over the partially-valid band so actively contested claims are never
// reported as merely incomplete.
func deriveStatus(claim *claims.Claim, tmpl catalog.Template, score float64) claims.ValidityStatus {
	switch {
	case score >= tmpl.MinValidityScore:
		return claims.StatusValid
	case claim.ContradictionWeight() > DisputedContradictionWeight:
		return claims.StatusDisputed
	case score >= PartialValidityFraction*tmpl.MinValidityScore:
		return claims.StatusPartiallyValid
	default:
		return claims.StatusInvalidated
	}
}

// evaluateRule dispatches on the closed rule kind set.
func (e *Evaluator) evaluateRule(claim *claims.Claim, rule catalog.Rule, now time.Time) (score float64, passed bool, msg string) {
	switch rule.Kind {
	case catalog.RuleRequiredRole:
		return scoreRequiredRole(claim, rule)
	case catalog.RuleMinEvidenceCount:
		return scoreMinEvidenceCount(claim, rule)
	case catalog.RuleTimeConstraint:
		return scoreTimeConstraint(claim, rule, now)
	case catalog.RuleContradictionCheck:
		return scoreContradictionCheck(claim, rule)
	case catalog.RuleCustom:
		return e.scoreCustom(claim, rule, now)
	default:
		return 0, false, fmt.Sprintf("unknown rule kind %q", rule.Kind)
	}
}

// scoreRequiredRole awards full credit when enough components carry the
// target role, proportional credit below the count, and halves the score
// when a required evidence sub-type is missing from the matches.
func scoreRequiredRole(claim *claims.Claim, rule catalog.Rule) (float64, bool, string) {
	minCount := rule.MinCount
	if minCount <= 0 {
		minCount = 1
	}

	found := 0
	typesSeen := make(map[string]bool)
	for _, comp := range claim.Components {
		if comp.Role != rule.Role {
			continue
		}
		found++
		typesSeen[comp.EvidenceType] = true
	}

	score := 1.0
	if found < minCount {
		score = float64(found) / float64(minCount)
	}

	missingType := ""
	for _, t := range rule.RequiredEvidenceTypes {
		if !typesSeen[t] {
			missingType = t
			break
		}
	}
	if missingType != "" {
		score *= 0.5
	}

	if found >= minCount && missingType == "" {
		return score, true, ""
	}
	return score, false, failureMessage(rule, fmt.Sprintf("found %d/%d %s components", found, minCount, rule.Role))
}

// scoreMinEvidenceCount counts affirmative components (strictly positive
// weight) against the minimum.
func scoreMinEvidenceCount(claim *claims.Claim, rule catalog.Rule) (float64, bool, string) {
	minCount := rule.MinCount
	if minCount <= 0 {
		minCount = 1
	}

	affirmative := 0
	for _, comp := range claim.Components {
		if comp.Weight > 0 {
			affirmative++
		}
	}

	score := float64(affirmative) / float64(minCount)
	if score >= 1 {
		return 1, true, ""
	}
	return score, false, failureMessage(rule, fmt.Sprintf("%d of %d affirmative components", affirmative, minCount))
}

// scoreTimeConstraint computes the fraction of qualifying evidence captured
// within the age bound. With nothing to consider the rule is vacuously
// satisfied.
func scoreTimeConstraint(claim *claims.Claim, rule catalog.Rule, now time.Time) (float64, bool, string) {
	cutoff := now.AddDate(0, -rule.MaxAgeMonths, 0)

	considered, tooOld := 0, 0
	for _, comp := range claim.Components {
		if rule.RoleFilter != "" && comp.Role != rule.RoleFilter {
			continue
		}
		considered++
		if comp.CapturedAt.Before(cutoff) {
			tooOld++
		}
	}

	if considered == 0 {
		return 1, true, ""
	}
	score := 1 - float64(tooOld)/float64(considered)
	if tooOld == 0 {
		return score, true, ""
	}
	return score, false, failureMessage(rule, fmt.Sprintf("%d of %d components older than %d months", tooOld, considered, rule.MaxAgeMonths))
}

// scoreContradictionCheck normalizes the absolute contradicting weight
// against the affirmative weight (or against itself when nothing
// affirmative exists) and compares the ratio to the template's tolerance.
func scoreContradictionCheck(claim *claims.Claim, rule catalog.Rule) (float64, bool, string) {
	var contradiction, positive float64
	for _, comp := range claim.Components {
		if comp.Role == claims.RoleContradicting {
			contradiction += math.Abs(comp.Weight)
		} else if comp.Weight > 0 {
			positive += comp.Weight
		}
	}

	var ratio float64
	switch {
	case contradiction == 0:
		ratio = 0
	case positive > 0:
		ratio = contradiction / positive
	default:
		ratio = contradiction
	}

	score := math.Max(0, 1-ratio)
	if ratio <= rule.MaxContradictionRatio {
		return score, true, ""
	}
	return score, false, failureMessage(rule, fmt.Sprintf("contradiction ratio %.2f exceeds %.2f", ratio, rule.MaxContradictionRatio))
}

// scoreCustom dispatches to the registered predicate. An unregistered
// custom rule passes vacuously; that default is documented behavior, not an
// oversight. A predicate error degrades to a failing zero score.
func (e *Evaluator) scoreCustom(claim *claims.Claim, rule catalog.Rule, now time.Time) (float64, bool, string) {
	p, ok := e.predicates[rule.Name]
	if !ok {
		return 1, true, ""
	}
	score, err := p.Evaluate(claim, rule, now)
	if err != nil {
		return 0, false, failureMessage(rule, fmt.Sprintf("predicate %s: %v", rule.Name, err))
	}
	score = clamp01(score)
	if score >= 1 {
		return score, true, ""
	}
	return score, false, failureMessage(rule, fmt.Sprintf("predicate %s scored %.2f", rule.Name, score))
}

func failureMessage(rule catalog.Rule, detail string) string {
	if rule.FailureMessage != "" {
		return rule.FailureMessage
	}
	return detail
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
