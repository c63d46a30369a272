package claims

import "fmt"

// FreezeStatus is the one-way seal state machine of a claim:
//
//	mutable → pending_freeze → frozen_offchain → minting → minted_onchain
//
// No backward transition exists. This core drives the claim to
// frozen_offchain; the minting transitions are reported by the external
// anchoring collaborator.
type FreezeStatus string

const (
	FreezeMutable       FreezeStatus = "mutable"
	FreezePending       FreezeStatus = "pending_freeze"
	FrozenOffchain      FreezeStatus = "frozen_offchain"
	FreezeMinting       FreezeStatus = "minting"
	FreezeMintedOnchain FreezeStatus = "minted_onchain"
)

var freezeRank = map[FreezeStatus]int{
	FreezeMutable:       0,
	FreezePending:       1,
	FrozenOffchain:      2,
	FreezeMinting:       3,
	FreezeMintedOnchain: 4,
}

// Valid reports whether s is a defined freeze state.
func (s FreezeStatus) Valid() bool {
	_, ok := freezeRank[s]
	return ok
}

// Mutable reports whether components may still be attached or removed.
func (s FreezeStatus) Mutable() bool {
	return s == FreezeMutable
}

// CanAdvance reports whether the transition s → next is legal. Only
// single-step forward transitions are allowed, except that the freeze
// unit of work collapses mutable → frozen_offchain into one commit.
func (s FreezeStatus) CanAdvance(next FreezeStatus) bool {
	from, ok := freezeRank[s]
	if !ok {
		return false
	}
	to, ok := freezeRank[next]
	if !ok {
		return false
	}
	if s == FreezeMutable && next == FrozenOffchain {
		return true
	}
	return to == from+1
}

// Advance returns next if the transition is legal, otherwise an error.
func (s FreezeStatus) Advance(next FreezeStatus) (FreezeStatus, error) {
	if !s.CanAdvance(next) {
		return s, fmt.Errorf("illegal freeze transition %s → %s", s, next)
	}
	return next, nil
}
