// Package store persists claims and their components. Each interface method
// is one atomic unit of work: the mutating methods perform the read, the
// in-transaction recomputation callback, and the write under the backend's
// serialization guarantees, so concurrent writers to the same claim are
// linearized and a freeze racing a mutation has exactly one winner.
package store

import (
	"context"
	"time"

	"github.com/chittyos/claimchain/pkg/claims"
)

// EvaluateFunc recomputes validity for the post-mutation component set. It
// runs inside the store's atomic unit and must be pure (no I/O).
type EvaluateFunc func(c *claims.Claim) claims.Evaluation

// SealFunc computes the freeze digest and witness root over the claim
// snapshot observed inside the freeze transaction. Must be pure.
type SealFunc func(c *claims.Claim) (freezeHash, witnessRoot string, err error)

// ClaimStore is the durable claim aggregate store.
type ClaimStore interface {
	// CreateClaim persists a new claim with its components and initial
	// validity as one unit.
	CreateClaim(ctx context.Context, c *claims.Claim) error

	// GetClaim loads a claim with its components.
	// Returns claims.ErrClaimNotFound.
	GetClaim(ctx context.Context, id string) (*claims.Claim, error)

	// UpsertComponent attaches or overwrites the component for its
	// claim+evidence pair, re-evaluates via evaluate, and persists both.
	// Returns claims.ErrClaimFrozen when the claim is no longer mutable.
	UpsertComponent(ctx context.Context, claimID string, comp claims.Component, evaluate EvaluateFunc) (*claims.Claim, error)

	// RemoveComponent deletes the component and re-evaluates, same contract
	// as UpsertComponent. Removing an absent component is a no-op that
	// still re-evaluates.
	RemoveComponent(ctx context.Context, claimID, evidenceID string, evaluate EvaluateFunc) (*claims.Claim, error)

	// SealClaim transitions mutable → frozen_offchain, persisting the
	// digest from seal and frozenAt. The status check and transition are
	// atomic: of N concurrent calls exactly one succeeds, the rest get
	// claims.ErrAlreadyFrozen.
	SealClaim(ctx context.Context, claimID string, frozenAt time.Time, seal SealFunc) (*claims.Claim, error)

	// AdvanceFreeze performs the forward-only anchoring transitions
	// (frozen_offchain → minting → minted_onchain) as a CAS on the current
	// status. anchorRef is recorded on the minted transition.
	AdvanceFreeze(ctx context.Context, claimID string, from, to claims.FreezeStatus, anchorRef string) error
}
