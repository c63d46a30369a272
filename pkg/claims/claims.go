// Package claims defines the core data model of the claim validity engine:
// claims, their evidence components, validity state, and the one-way freeze
// state machine. A Claim is a composed, scorable assertion built from
// independently frozen evidence artifacts.
package claims

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Role categorizes how a component's evidence bears on its claim.
type Role string

const (
	RolePrimary        Role = "primary"
	RoleSupporting     Role = "supporting"
	RoleCorroborating  Role = "corroborating"
	RoleContradicting  Role = "contradicting"
	RoleContextual     Role = "contextual"
	RoleAuthenticating Role = "authenticating"
)

// Valid reports whether r is one of the defined component roles.
func (r Role) Valid() bool {
	switch r {
	case RolePrimary, RoleSupporting, RoleCorroborating,
		RoleContradicting, RoleContextual, RoleAuthenticating:
		return true
	}
	return false
}

// ValidityStatus classifies a claim's trust standing after evaluation.
type ValidityStatus string

const (
	StatusPending        ValidityStatus = "pending"
	StatusValid          ValidityStatus = "valid"
	StatusPartiallyValid ValidityStatus = "partially_valid"
	StatusDisputed       ValidityStatus = "disputed"
	StatusInvalidated    ValidityStatus = "invalidated"
)

// Component links a claim to exactly one evidence artifact. The evidence
// metadata fields (EvidenceType, ContentHash, CapturedAt) are snapshotted
// from the Evidence Gate at attachment time, so evaluation and freezing
// never re-query the provider.
type Component struct {
	EvidenceID string `json:"evidence_id"`
	Role       Role   `json:"role"`
	// Weight is the evidentiary weight in [-1, 1]. Negative values count
	// against the claim.
	Weight       float64   `json:"weight"`
	Notes        string    `json:"notes,omitempty"`
	EvidenceType string    `json:"evidence_type,omitempty"`
	ContentHash  string    `json:"content_hash,omitempty"`
	CapturedAt   time.Time `json:"captured_at,omitempty"`
	AttachedAt   time.Time `json:"attached_at,omitempty"`
}

// Validate checks the component's structural constraints.
func (c Component) Validate() error {
	if c.EvidenceID == "" {
		return fmt.Errorf("component has no evidence id")
	}
	if !c.Role.Valid() {
		return fmt.Errorf("component %s: unknown role %q", c.EvidenceID, c.Role)
	}
	if c.Weight < -1 || c.Weight > 1 {
		return fmt.Errorf("component %s: weight %v outside [-1, 1]", c.EvidenceID, c.Weight)
	}
	return nil
}

// RuleOutcome is the persisted per-rule result of the most recent evaluation.
type RuleOutcome struct {
	Rule    string  `json:"rule"`
	Kind    string  `json:"kind"`
	Passed  bool    `json:"passed"`
	Score   float64 `json:"score"`
	Weight  float64 `json:"weight"`
	Message string  `json:"message,omitempty"`
}

// Evaluation is the full result of scoring a claim against its template.
type Evaluation struct {
	Status      ValidityStatus `json:"status"`
	Score       float64        `json:"score"`
	Rules       []RuleOutcome  `json:"rules"`
	EvaluatedAt time.Time      `json:"evaluated_at"`
}

// Claim is the central entity: an assertion composed from weighted evidence
// components, scored against a template, and eventually sealed behind a
// canonical digest. Claims are never deleted; retraction is a new claim
// contradicting the old one.
type Claim struct {
	ID         string       `json:"id"`
	Code       string       `json:"code"`
	Type       string       `json:"type"`
	Assertion  string       `json:"assertion"`
	Author     string       `json:"author"`
	Components []Component  `json:"components"`
	Validity   Evaluation   `json:"validity"`
	Freeze     FreezeStatus `json:"freeze_status"`
	FreezeHash string       `json:"freeze_hash,omitempty"`
	// WitnessRoot is the Merkle root over the component witness hashes,
	// set when the claim is frozen.
	WitnessRoot string     `json:"witness_root,omitempty"`
	FrozenAt    *time.Time `json:"frozen_at,omitempty"`
	// AnchorRef is the external ledger reference reported back by the
	// anchoring collaborator once minting completes.
	AnchorRef string         `json:"anchor_ref,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Component returns the component referencing evidenceID, or nil.
func (c *Claim) Component(evidenceID string) *Component {
	for i := range c.Components {
		if c.Components[i].EvidenceID == evidenceID {
			return &c.Components[i]
		}
	}
	return nil
}

// ContradictionWeight sums the absolute weight of contradicting components.
func (c *Claim) ContradictionWeight() float64 {
	var w float64
	for _, comp := range c.Components {
		if comp.Role == RoleContradicting {
			if comp.Weight < 0 {
				w -= comp.Weight
			} else {
				w += comp.Weight
			}
		}
	}
	return w
}

// DeriveCode builds the human-meaningful claim code from the claim type and
// id, e.g. "CLM-PROP-8F3A2C". The code is stable for a given id.
func DeriveCode(claimType, id string) string {
	prefix := strings.ToUpper(claimType)
	for _, sep := range []string{"_", "-", "."} {
		if i := strings.Index(prefix, sep); i > 0 {
			prefix = prefix[:i]
			break
		}
	}
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}
	if prefix == "" {
		prefix = "GEN"
	}
	sum := sha256.Sum256([]byte(id))
	return fmt.Sprintf("CLM-%s-%s", prefix, strings.ToUpper(hex.EncodeToString(sum[:3])))
}
