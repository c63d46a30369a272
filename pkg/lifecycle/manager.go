// Package lifecycle owns claim creation and component mutation. Every
// initial or added component is validated against the Evidence Gate, and
// every mutation re-runs the Validity Evaluator inside the same atomic unit
// of work, keeping score and component set consistent at all times.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chittyos/claimchain/pkg/audit"
	"github.com/chittyos/claimchain/pkg/auth"
	"github.com/chittyos/claimchain/pkg/catalog"
	"github.com/chittyos/claimchain/pkg/claims"
	"github.com/chittyos/claimchain/pkg/evidence"
	"github.com/chittyos/claimchain/pkg/observability"
	"github.com/chittyos/claimchain/pkg/store"
	"github.com/chittyos/claimchain/pkg/validity"
)

// ComponentInput is the caller-supplied part of a component; evidence
// metadata is filled in from the Gate.
type ComponentInput struct {
	EvidenceID string
	Role       claims.Role
	Weight     float64
	Notes      string
}

// Manager is the Claim Lifecycle Manager.
type Manager struct {
	store     store.ClaimStore
	gate      *evidence.Gate
	catalog   *catalog.Catalog
	evaluator *validity.Evaluator
	audit     audit.Logger
	metrics   *observability.Metrics
	clock     func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithAudit sets the audit sink. Defaults to a no-op sink.
func WithAudit(l audit.Logger) Option {
	return func(m *Manager) { m.audit = l }
}

// WithMetrics attaches metric instruments.
func WithMetrics(mx *observability.Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

// WithClock overrides the clock for tests.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// NewManager wires the lifecycle manager. The catalog and evaluator are
// injected explicitly; there is no global template registry.
func NewManager(s store.ClaimStore, gate *evidence.Gate, cat *catalog.Catalog, eval *validity.Evaluator, opts ...Option) *Manager {
	m := &Manager{
		store:     s,
		gate:      gate,
		catalog:   cat,
		evaluator: eval,
		audit:     audit.Nop(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateClaim validates every initial component against the Evidence Gate,
// persists the claim with its components and first evaluation as one atomic
// unit, and returns the fully scored claim. No claim is persisted when any
// component references unfrozen or missing evidence.
func (m *Manager) CreateClaim(ctx context.Context, claimType, assertion string, author auth.Principal, initial []ComponentInput, metadata map[string]any) (*claims.Claim, error) {
	now := m.clock().UTC()

	components := make([]claims.Component, 0, len(initial))
	for _, in := range initial {
		comp, err := m.resolveComponent(ctx, in, now)
		if err != nil {
			return nil, err
		}
		components = append(components, comp)
	}

	id := uuid.New().String()
	c := &claims.Claim{
		ID:         id,
		Code:       claims.DeriveCode(claimType, id),
		Type:       claimType,
		Assertion:  assertion,
		Author:     principalID(author),
		Components: components,
		Freeze:     claims.FreezeMutable,
		Metadata:   metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	tmpl := m.catalog.Lookup(claimType)
	c.Validity = m.evaluator.Evaluate(c, tmpl)

	if err := m.store.CreateClaim(ctx, c); err != nil {
		return nil, claims.WrapPersistence("create claim", err)
	}

	m.metrics.ClaimCreated(ctx, claimType)
	m.metrics.Evaluated(ctx, string(c.Validity.Status))
	_ = m.audit.Record(ctx, audit.EventMutation, audit.ActionClaimCreated, c.ID, map[string]any{
		"claim_type": claimType,
		"code":       c.Code,
		"components": len(components),
		"status":     string(c.Validity.Status),
	})

	return c, nil
}

// AddComponent attaches (or overwrites, for a repeated claim+evidence pair)
// a component and re-evaluates the claim in the same unit of work. Fails
// with claims.ErrClaimFrozen once the claim left the mutable state and with
// claims.ErrEvidenceNotFrozen / claims.ErrEvidenceNotFound on gate rejects.
func (m *Manager) AddComponent(ctx context.Context, claimID string, in ComponentInput, actor auth.Principal) (*claims.Claim, error) {
	comp, err := m.resolveComponent(ctx, in, m.clock().UTC())
	if err != nil {
		return nil, err
	}

	updated, err := m.store.UpsertComponent(ctx, claimID, comp, m.evaluateFn())
	if err != nil {
		m.warnIfFrozen(ctx, claimID, actor, err)
		return nil, claims.WrapPersistence("add component", err)
	}

	m.metrics.ComponentAttached(ctx)
	m.metrics.Evaluated(ctx, string(updated.Validity.Status))
	_ = m.audit.Record(ctx, audit.EventMutation, audit.ActionComponentAdded, claimID, map[string]any{
		"evidence_id": comp.EvidenceID,
		"role":        string(comp.Role),
		"status":      string(updated.Validity.Status),
	})

	return updated, nil
}

// RemoveComponent detaches the component referencing evidenceID and
// re-evaluates. Same freeze guard as AddComponent.
func (m *Manager) RemoveComponent(ctx context.Context, claimID, evidenceID string, actor auth.Principal) (*claims.Claim, error) {
	updated, err := m.store.RemoveComponent(ctx, claimID, evidenceID, m.evaluateFn())
	if err != nil {
		m.warnIfFrozen(ctx, claimID, actor, err)
		return nil, claims.WrapPersistence("remove component", err)
	}

	m.metrics.ComponentRemoved(ctx)
	m.metrics.Evaluated(ctx, string(updated.Validity.Status))
	_ = m.audit.Record(ctx, audit.EventMutation, audit.ActionComponentRemoved, claimID, map[string]any{
		"evidence_id": evidenceID,
		"status":      string(updated.Validity.Status),
	})

	return updated, nil
}

// GetClaim loads a claim with its components and last evaluation.
func (m *Manager) GetClaim(ctx context.Context, claimID string) (*claims.Claim, error) {
	c, err := m.store.GetClaim(ctx, claimID)
	if err != nil {
		return nil, claims.WrapPersistence("get claim", err)
	}
	return c, nil
}

// resolveComponent checks the input and snapshots the evidence metadata
// through the Gate.
func (m *Manager) resolveComponent(ctx context.Context, in ComponentInput, now time.Time) (claims.Component, error) {
	comp := claims.Component{
		EvidenceID: in.EvidenceID,
		Role:       in.Role,
		Weight:     in.Weight,
		Notes:      in.Notes,
		AttachedAt: now,
	}
	if err := comp.Validate(); err != nil {
		return claims.Component{}, err
	}

	rec, err := m.gate.Resolve(ctx, in.EvidenceID)
	if err != nil {
		return claims.Component{}, err
	}
	comp.EvidenceType = rec.Type
	comp.ContentHash = rec.ContentHash
	comp.CapturedAt = rec.CapturedAt
	return comp, nil
}

// evaluateFn is the in-transaction recomputation hook handed to the store.
func (m *Manager) evaluateFn() store.EvaluateFunc {
	return func(c *claims.Claim) claims.Evaluation {
		return m.evaluator.Evaluate(c, m.catalog.Lookup(c.Type))
	}
}

// warnIfFrozen emits the warning event the surrounding system expects when
// a mutation bounces off a frozen claim.
func (m *Manager) warnIfFrozen(ctx context.Context, claimID string, actor auth.Principal, err error) {
	if !errors.Is(err, claims.ErrClaimFrozen) {
		return
	}
	_ = m.audit.Record(ctx, audit.EventWarning, audit.ActionFrozenMutation, claimID, map[string]any{
		"actor":  principalID(actor),
		"detail": fmt.Sprintf("mutation rejected: %v", err),
	})
}

// principalID attributes engine-internal calls without a principal to
// "system", matching the audit package's context fallback.
func principalID(p auth.Principal) string {
	if p == nil {
		return "system"
	}
	return p.GetID()
}
