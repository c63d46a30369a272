package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chittyos/claimchain/pkg/claims"
)

// MemoryStore is an in-process ClaimStore. A single mutex serializes all
// writers, which trivially satisfies the per-claim linearizability
// contract. Used by tests and the demo binary.
type MemoryStore struct {
	mu     sync.RWMutex
	claims map[string]*claims.Claim
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{claims: make(map[string]*claims.Claim)}
}

// Len returns the number of stored claims.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.claims)
}

func (s *MemoryStore) CreateClaim(_ context.Context, c *claims.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.claims[c.ID]; exists {
		return fmt.Errorf("claim %s already exists", c.ID)
	}
	s.claims[c.ID] = cloneClaim(c)
	return nil
}

func (s *MemoryStore) GetClaim(_ context.Context, id string) (*claims.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.claims[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", claims.ErrClaimNotFound, id)
	}
	return cloneClaim(c), nil
}

func (s *MemoryStore) UpsertComponent(_ context.Context, claimID string, comp claims.Component, evaluate EvaluateFunc) (*claims.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.claims[claimID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", claims.ErrClaimNotFound, claimID)
	}
	if !c.Freeze.Mutable() {
		return nil, fmt.Errorf("%w: %s", claims.ErrClaimFrozen, claimID)
	}

	updated := cloneClaim(c)
	if existing := updated.Component(comp.EvidenceID); existing != nil {
		*existing = comp
	} else {
		updated.Components = append(updated.Components, comp)
	}
	updated.Validity = evaluate(updated)
	updated.UpdatedAt = time.Now().UTC()

	s.claims[claimID] = updated
	return cloneClaim(updated), nil
}

func (s *MemoryStore) RemoveComponent(_ context.Context, claimID, evidenceID string, evaluate EvaluateFunc) (*claims.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.claims[claimID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", claims.ErrClaimNotFound, claimID)
	}
	if !c.Freeze.Mutable() {
		return nil, fmt.Errorf("%w: %s", claims.ErrClaimFrozen, claimID)
	}

	updated := cloneClaim(c)
	kept := updated.Components[:0]
	for _, comp := range updated.Components {
		if comp.EvidenceID != evidenceID {
			kept = append(kept, comp)
		}
	}
	updated.Components = kept
	updated.Validity = evaluate(updated)
	updated.UpdatedAt = time.Now().UTC()

	s.claims[claimID] = updated
	return cloneClaim(updated), nil
}

func (s *MemoryStore) SealClaim(_ context.Context, claimID string, frozenAt time.Time, seal SealFunc) (*claims.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.claims[claimID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", claims.ErrClaimNotFound, claimID)
	}
	if !c.Freeze.Mutable() {
		return nil, fmt.Errorf("%w: %s", claims.ErrAlreadyFrozen, claimID)
	}

	updated := cloneClaim(c)
	hash, root, err := seal(cloneClaim(updated))
	if err != nil {
		return nil, err
	}

	updated.Freeze = claims.FrozenOffchain
	updated.FreezeHash = hash
	updated.WitnessRoot = root
	ts := frozenAt.UTC()
	updated.FrozenAt = &ts
	updated.UpdatedAt = ts

	s.claims[claimID] = updated
	return cloneClaim(updated), nil
}

func (s *MemoryStore) AdvanceFreeze(_ context.Context, claimID string, from, to claims.FreezeStatus, anchorRef string) error {
	if !from.CanAdvance(to) {
		return fmt.Errorf("illegal freeze transition %s → %s", from, to)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.claims[claimID]
	if !ok {
		return fmt.Errorf("%w: %s", claims.ErrClaimNotFound, claimID)
	}
	if c.Freeze != from {
		return fmt.Errorf("%w: %s is %s, not %s", claims.ErrAlreadyFrozen, claimID, c.Freeze, from)
	}

	updated := cloneClaim(c)
	updated.Freeze = to
	if anchorRef != "" {
		updated.AnchorRef = anchorRef
	}
	updated.UpdatedAt = time.Now().UTC()
	s.claims[claimID] = updated
	return nil
}

func cloneClaim(c *claims.Claim) *claims.Claim {
	dup := *c
	dup.Components = make([]claims.Component, len(c.Components))
	copy(dup.Components, c.Components)
	dup.Validity.Rules = make([]claims.RuleOutcome, len(c.Validity.Rules))
	copy(dup.Validity.Rules, c.Validity.Rules)
	if c.FrozenAt != nil {
		ts := *c.FrozenAt
		dup.FrozenAt = &ts
	}
	if c.Metadata != nil {
		dup.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			dup.Metadata[k] = v
		}
	}
	return &dup
}
