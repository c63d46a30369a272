package catalog

import "github.com/chittyos/claimchain/pkg/claims"

// Builtin returns the catalog shipped with the engine: templates for the
// legal-evidence claim types the surrounding system files most often. Hosts
// register their own templates by constructing a Catalog directly.
func Builtin() *Catalog {
	return New(
		propertyOwnership(),
		documentAuthenticity(),
		financialTransaction(),
	)
}

func propertyOwnership() Template {
	return Template{
		ClaimType:     "property_ownership",
		Description:   "ownership of a titled asset backed by deed and payment records",
		RequiredRoles: []claims.Role{claims.RolePrimary, claims.RoleSupporting},
		Rules: []Rule{
			{
				Kind:                  RuleRequiredRole,
				Name:                  "title_evidence",
				Weight:                0.35,
				Role:                  claims.RolePrimary,
				MinCount:              1,
				RequiredEvidenceTypes: []string{"deed"},
				FailureMessage:        "ownership claim requires a deed as primary evidence",
			},
			{
				Kind:           RuleMinEvidenceCount,
				Name:           "supporting_depth",
				Weight:         0.2,
				MinCount:       2,
				FailureMessage: "ownership claim needs at least two affirmative components",
			},
			{
				Kind:           RuleTimeConstraint,
				Name:           "recent_records",
				Weight:         0.2,
				MaxAgeMonths:   60,
				RoleFilter:     claims.RoleSupporting,
				FailureMessage: "supporting records are older than five years",
			},
			{
				Kind:                  RuleContradictionCheck,
				Name:                  "competing_interest",
				Weight:                0.25,
				MaxContradictionRatio: 0.25,
				FailureMessage:        "competing ownership evidence exceeds tolerance",
			},
		},
		MinValidityScore: 0.75,
	}
}

func documentAuthenticity() Template {
	return Template{
		ClaimType:     "document_authenticity",
		Description:   "a document is what it purports to be",
		RequiredRoles: []claims.Role{claims.RolePrimary, claims.RoleAuthenticating},
		Rules: []Rule{
			{
				Kind:           RuleRequiredRole,
				Name:           "source_document",
				Weight:         0.4,
				Role:           claims.RolePrimary,
				MinCount:       1,
				FailureMessage: "authenticity claim requires the document itself",
			},
			{
				Kind:           RuleRequiredRole,
				Name:           "authentication",
				Weight:         0.35,
				Role:           claims.RoleAuthenticating,
				MinCount:       1,
				FailureMessage: "authenticity claim requires an authenticating component",
			},
			{
				Kind:                  RuleContradictionCheck,
				Name:                  "forgery_signals",
				Weight:                0.25,
				MaxContradictionRatio: 0.15,
				FailureMessage:        "forgery indicators exceed tolerance",
			},
		},
		MinValidityScore: 0.8,
	}
}

func financialTransaction() Template {
	return Template{
		ClaimType:     "financial_transaction",
		Description:   "a transfer of funds occurred as asserted",
		RequiredRoles: []claims.Role{claims.RolePrimary},
		Rules: []Rule{
			{
				Kind:                  RuleRequiredRole,
				Name:                  "transaction_record",
				Weight:                0.4,
				Role:                  claims.RolePrimary,
				MinCount:              1,
				RequiredEvidenceTypes: []string{"bank_statement"},
				FailureMessage:        "transaction claim requires a bank statement",
			},
			{
				Kind:           RuleTimeConstraint,
				Name:           "statement_age",
				Weight:         0.25,
				MaxAgeMonths:   24,
				FailureMessage: "transaction records are older than two years",
			},
			{
				Kind:           RuleMinEvidenceCount,
				Name:           "corroboration",
				Weight:         0.15,
				MinCount:       2,
				FailureMessage: "transaction claim needs corroborating components",
			},
			{
				Kind:                  RuleContradictionCheck,
				Name:                  "dispute_bound",
				Weight:                0.2,
				MaxContradictionRatio: 0.3,
				FailureMessage:        "disputed amounts exceed tolerance",
			},
		},
		MinValidityScore: 0.7,
	}
}
