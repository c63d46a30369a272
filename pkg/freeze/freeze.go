// Package freeze seals claims: it computes the canonical digest over a
// claim's contents and component witness hashes, transitions the claim to
// frozen_offchain exactly once, and records the completion in the audit
// sink. The digest is order-independent with respect to component insertion
// order, so freezing is deterministic.
package freeze

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/chittyos/claimchain/pkg/audit"
	"github.com/chittyos/claimchain/pkg/auth"
	"github.com/chittyos/claimchain/pkg/canonicalize"
	"github.com/chittyos/claimchain/pkg/claims"
	"github.com/chittyos/claimchain/pkg/merkle"
	"github.com/chittyos/claimchain/pkg/observability"
	"github.com/chittyos/claimchain/pkg/store"
)

// Seal is the freeze output an external anchoring collaborator consumes.
type Seal struct {
	ClaimID    string `json:"claim_id"`
	Code       string `json:"code"`
	FreezeHash string `json:"freeze_hash"`
	// WitnessSignatures lists the content hash of every component's
	// evidence artifact that has one, in sorted evidence-id order.
	WitnessSignatures []string  `json:"witness_signatures"`
	WitnessRoot       string    `json:"witness_root"`
	FrozenAt          time.Time `json:"frozen_at"`
}

// Manager is the Freeze Manager.
type Manager struct {
	store   store.ClaimStore
	audit   audit.Logger
	metrics *observability.Metrics
	clock   func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

func WithAudit(l audit.Logger) Option {
	return func(m *Manager) { m.audit = l }
}

func WithMetrics(mx *observability.Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

func NewManager(s store.ClaimStore, opts ...Option) *Manager {
	m := &Manager{
		store: s,
		audit: audit.Nop(),
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FreezeClaim seals the claim as one atomic unit. Of N concurrent calls on
// the same claim exactly one succeeds; the rest receive
// claims.ErrAlreadyFrozen. On success an audit event records actor, digest,
// and witness count.
func (m *Manager) FreezeClaim(ctx context.Context, claimID string, actor auth.Principal) (*Seal, error) {
	frozenAt := m.clock().UTC()

	var seal *Seal
	frozen, err := m.store.SealClaim(ctx, claimID, frozenAt, func(c *claims.Claim) (string, string, error) {
		hash, err := Digest(c, frozenAt)
		if err != nil {
			return "", "", err
		}
		witnesses := Witnesses(c)
		root := merkle.Root(witnesses)
		seal = &Seal{
			ClaimID:           c.ID,
			Code:              c.Code,
			FreezeHash:        hash,
			WitnessSignatures: witnesses,
			WitnessRoot:       root,
			FrozenAt:          frozenAt,
		}
		return hash, root, nil
	})
	if err != nil {
		if errors.Is(err, claims.ErrAlreadyFrozen) {
			m.metrics.FreezeConflict(ctx)
			return nil, err
		}
		return nil, claims.WrapPersistence("freeze claim", err)
	}

	m.metrics.Frozen(ctx)
	actorID := "system"
	if actor != nil {
		actorID = actor.GetID()
	}
	_ = m.audit.Record(ctx, audit.EventFreeze, audit.ActionClaimFrozen, frozen.ID, map[string]any{
		"actor":         actorID,
		"digest":        seal.FreezeHash,
		"witness_count": len(seal.WitnessSignatures),
		"witness_root":  seal.WitnessRoot,
	})

	return seal, nil
}

// MarkMinting records that the anchoring collaborator started putting the
// sealed claim on the ledger (frozen_offchain → minting).
func (m *Manager) MarkMinting(ctx context.Context, claimID string) error {
	err := m.store.AdvanceFreeze(ctx, claimID, claims.FrozenOffchain, claims.FreezeMinting, "")
	return claims.WrapPersistence("mark minting", err)
}

// MarkMinted records anchoring completion (minting → minted_onchain) with
// the collaborator's ledger reference.
func (m *Manager) MarkMinted(ctx context.Context, claimID, anchorRef string) error {
	err := m.store.AdvanceFreeze(ctx, claimID, claims.FreezeMinting, claims.FreezeMintedOnchain, anchorRef)
	return claims.WrapPersistence("mark minted", err)
}

// frozenComponent is the canonical per-component digest input.
type frozenComponent struct {
	EvidenceID string  `json:"evidence_id"`
	Role       string  `json:"role"`
	Weight     float64 `json:"weight"`
}

// freezePayload is the canonical digest input. Components are sorted by
// evidence id before hashing.
type freezePayload struct {
	ID            string            `json:"id"`
	Code          string            `json:"code"`
	Type          string            `json:"type"`
	Assertion     string            `json:"assertion"`
	Author        string            `json:"author"`
	Components    []frozenComponent `json:"components"`
	ValidityScore float64           `json:"validity_score"`
	FrozenAt      string            `json:"frozen_at"`
}

// Digest computes the canonical SHA-256 digest of the claim's contents as
// of frozenAt.
func Digest(c *claims.Claim, frozenAt time.Time) (string, error) {
	comps := make([]frozenComponent, len(c.Components))
	for i, comp := range c.Components {
		comps[i] = frozenComponent{
			EvidenceID: comp.EvidenceID,
			Role:       string(comp.Role),
			Weight:     comp.Weight,
		}
	}
	sort.Slice(comps, func(i, j int) bool { return comps[i].EvidenceID < comps[j].EvidenceID })

	return canonicalize.Hash(freezePayload{
		ID:            c.ID,
		Code:          c.Code,
		Type:          c.Type,
		Assertion:     c.Assertion,
		Author:        c.Author,
		Components:    comps,
		ValidityScore: c.Validity.Score,
		FrozenAt:      frozenAt.UTC().Format(time.RFC3339Nano),
	})
}

// Witnesses collects the content hashes of the claim's components, sorted
// by evidence id. Components without a content hash are skipped.
func Witnesses(c *claims.Claim) []string {
	comps := make([]claims.Component, len(c.Components))
	copy(comps, c.Components)
	sort.Slice(comps, func(i, j int) bool { return comps[i].EvidenceID < comps[j].EvidenceID })

	witnesses := make([]string, 0, len(comps))
	for _, comp := range comps {
		if comp.ContentHash != "" {
			witnesses = append(witnesses, comp.ContentHash)
		}
	}
	return witnesses
}
