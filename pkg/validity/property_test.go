package validity

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/chittyos/claimchain/pkg/claims"
)

var allRoles = []claims.Role{
	claims.RolePrimary, claims.RoleSupporting, claims.RoleCorroborating,
	claims.RoleContradicting, claims.RoleContextual, claims.RoleAuthenticating,
}

// buildClaim turns generated role indices and weights into a component set.
func buildClaim(roleIdx []int, weights []float64) *claims.Claim {
	n := len(roleIdx)
	if len(weights) < n {
		n = len(weights)
	}
	c := &claims.Claim{}
	for i := 0; i < n; i++ {
		c.Components = append(c.Components, claims.Component{
			EvidenceID: fmt.Sprintf("ev-%d", i),
			Role:       allRoles[((roleIdx[i]%len(allRoles))+len(allRoles))%len(allRoles)],
			Weight:     weights[i],
		})
	}
	return c
}

func TestScoreBoundsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	e := NewEvaluator(WithClock(fixedClock))
	tmpl := baseTemplate(0.7)

	properties.Property("score always within [0, 1]", prop.ForAll(
		func(roleIdx []int, weights []float64) bool {
			result := e.Evaluate(buildClaim(roleIdx, weights), tmpl)
			if result.Score < 0 || result.Score > 1 {
				return false
			}
			for _, r := range result.Rules {
				if r.Score < 0 || r.Score > 1 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(allRoles)-1)),
		gen.SliceOf(gen.Float64Range(-1, 1)),
	))

	properties.TestingRun(t)
}

func TestDeterminismProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	e := NewEvaluator(WithClock(fixedClock))
	tmpl := baseTemplate(0.7)

	properties.Property("repeated evaluation is identical", prop.ForAll(
		func(roleIdx []int, weights []float64) bool {
			c := buildClaim(roleIdx, weights)
			a := e.Evaluate(c, tmpl)
			b := e.Evaluate(c, tmpl)
			return a.Score == b.Score && a.Status == b.Status
		},
		gen.SliceOf(gen.IntRange(0, len(allRoles)-1)),
		gen.SliceOf(gen.Float64Range(-1, 1)),
	))

	properties.TestingRun(t)
}

func TestStatusBandProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	e := NewEvaluator(WithClock(fixedClock))
	tmpl := baseTemplate(0.7)

	properties.Property("status agrees with score and contradiction weight", prop.ForAll(
		func(roleIdx []int, weights []float64) bool {
			c := buildClaim(roleIdx, weights)
			result := e.Evaluate(c, tmpl)

			switch result.Status {
			case claims.StatusValid:
				return result.Score >= tmpl.MinValidityScore
			case claims.StatusDisputed:
				return result.Score < tmpl.MinValidityScore &&
					c.ContradictionWeight() > DisputedContradictionWeight
			case claims.StatusPartiallyValid:
				return result.Score >= PartialValidityFraction*tmpl.MinValidityScore &&
					result.Score < tmpl.MinValidityScore
			case claims.StatusInvalidated:
				return result.Score < PartialValidityFraction*tmpl.MinValidityScore
			default:
				return false
			}
		},
		gen.SliceOf(gen.IntRange(0, len(allRoles)-1)),
		gen.SliceOf(gen.Float64Range(-1, 1)),
	))

	properties.TestingRun(t)
}
