package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chittyos/claimchain/pkg/claims"
)

func TestLookupRegistered(t *testing.T) {
	c := New(Template{ClaimType: "custody", MinValidityScore: 0.6})
	tmpl := c.Lookup("custody")
	assert.Equal(t, "custody", tmpl.ClaimType)
	assert.True(t, c.Has("custody"))
}

func TestLookupFallsBackToDefault(t *testing.T) {
	c := New()
	tmpl := c.Lookup("never_registered")
	assert.Equal(t, "default", tmpl.ClaimType)
	assert.False(t, c.Has("never_registered"))

	// The conservative default: one primary rule plus a contradiction check.
	require.Len(t, tmpl.Rules, 2)
	assert.Equal(t, RuleRequiredRole, tmpl.Rules[0].Kind)
	assert.Equal(t, claims.RolePrimary, tmpl.Rules[0].Role)
	assert.Equal(t, 1, tmpl.Rules[0].MinCount)
	assert.Equal(t, RuleContradictionCheck, tmpl.Rules[1].Kind)
	assert.Equal(t, 0.5, tmpl.MinValidityScore)
}

func TestBuiltinTemplates(t *testing.T) {
	c := Builtin()
	for _, typ := range []string{"property_ownership", "document_authenticity", "financial_transaction"} {
		require.True(t, c.Has(typ), typ)
		tmpl := c.Lookup(typ)
		assert.NotEmpty(t, tmpl.Rules, typ)
		assert.Greater(t, tmpl.MinValidityScore, 0.0, typ)
		assert.LessOrEqual(t, tmpl.MinValidityScore, 1.0, typ)

		// Rule weights must be positive so the weighted combination is
		// well-defined.
		for _, r := range tmpl.Rules {
			assert.Greater(t, r.Weight, 0.0, "%s/%s", typ, r.Label())
		}
	}
	assert.Len(t, c.Types(), 3)
}

func TestRuleLabel(t *testing.T) {
	assert.Equal(t, "named", Rule{Kind: RuleCustom, Name: "named"}.Label())
	assert.Equal(t, "required_role", Rule{Kind: RuleRequiredRole}.Label())
}
