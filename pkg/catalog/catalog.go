// Package catalog is the read-only registry of claim templates: for each
// claim type, the required evidence roles, the weighted validity rules, and
// the minimum passing score. Templates are pure configuration data; the
// catalog never fails a lookup, it degrades to a conservative default.
package catalog

import (
	"github.com/chittyos/claimchain/pkg/claims"
)

// RuleKind enumerates the closed set of validity rule variants.
type RuleKind string

const (
	RuleRequiredRole       RuleKind = "required_role"
	RuleMinEvidenceCount   RuleKind = "min_evidence_count"
	RuleTimeConstraint     RuleKind = "time_constraint"
	RuleContradictionCheck RuleKind = "contradiction_check"
	RuleCustom             RuleKind = "custom"
)

// Rule is one weighted validity rule. Kind selects the variant; only the
// parameter fields belonging to that variant are consulted.
type Rule struct {
	Kind RuleKind `json:"kind"`
	// Name labels the rule in results and failure reports. Optional except
	// for custom rules, where it selects the registered predicate.
	Name           string  `json:"name,omitempty"`
	Weight         float64 `json:"weight"`
	FailureMessage string  `json:"failure_message,omitempty"`

	// required_role
	Role claims.Role `json:"role,omitempty"`
	// MinCount is shared by required_role and min_evidence_count.
	MinCount int `json:"min_count,omitempty"`
	// RequiredEvidenceTypes lists evidence sub-types that must all appear
	// among the matching components (required_role only).
	RequiredEvidenceTypes []string `json:"required_evidence_types,omitempty"`

	// time_constraint
	MaxAgeMonths int `json:"max_age_months,omitempty"`
	// RoleFilter narrows time_constraint to one role; empty means all.
	RoleFilter claims.Role `json:"role_filter,omitempty"`

	// contradiction_check
	MaxContradictionRatio float64 `json:"max_contradiction_ratio,omitempty"`

	// custom
	Expression string `json:"expression,omitempty"`
}

// Label returns the rule's display name, falling back to its kind.
func (r Rule) Label() string {
	if r.Name != "" {
		return r.Name
	}
	return string(r.Kind)
}

// Template describes how claims of one type are scored.
type Template struct {
	ClaimType        string        `json:"claim_type"`
	Description      string        `json:"description,omitempty"`
	RequiredRoles    []claims.Role `json:"required_roles,omitempty"`
	Rules            []Rule        `json:"rules"`
	MinValidityScore float64       `json:"min_validity_score"`
}

// DefaultTemplate is the conservative fallback for unregistered claim
// types: one primary component required, contradictions bounded.
func DefaultTemplate() Template {
	return Template{
		ClaimType:     "default",
		Description:   "conservative fallback for unregistered claim types",
		RequiredRoles: []claims.Role{claims.RolePrimary},
		Rules: []Rule{
			{
				Kind:           RuleRequiredRole,
				Name:           "primary_evidence",
				Weight:         0.6,
				Role:           claims.RolePrimary,
				MinCount:       1,
				FailureMessage: "claim needs at least one primary evidence component",
			},
			{
				Kind:                  RuleContradictionCheck,
				Name:                  "contradiction_bound",
				Weight:                0.4,
				MaxContradictionRatio: 0.4,
				FailureMessage:        "contradicting evidence outweighs the threshold",
			},
		},
		MinValidityScore: 0.5,
	}
}

// Catalog maps claim types to templates. Read-only after construction and
// safe for unlocked concurrent use.
type Catalog struct {
	templates       map[string]Template
	defaultTemplate Template
}

// New builds a catalog over the given templates, keyed by ClaimType.
func New(templates ...Template) *Catalog {
	c := &Catalog{
		templates:       make(map[string]Template, len(templates)),
		defaultTemplate: DefaultTemplate(),
	}
	for _, t := range templates {
		c.templates[t.ClaimType] = t
	}
	return c
}

// Lookup returns the template for claimType, or the default template when
// the type is unregistered. Never fails.
func (c *Catalog) Lookup(claimType string) Template {
	if t, ok := c.templates[claimType]; ok {
		return t
	}
	return c.defaultTemplate
}

// Has reports whether claimType is explicitly registered.
func (c *Catalog) Has(claimType string) bool {
	_, ok := c.templates[claimType]
	return ok
}

// Types lists the registered claim types.
func (c *Catalog) Types() []string {
	types := make([]string, 0, len(c.templates))
	for t := range c.templates {
		types = append(types, t)
	}
	return types
}
