package freeze_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chittyos/claimchain/pkg/audit"
	"github.com/chittyos/claimchain/pkg/auth"
	"github.com/chittyos/claimchain/pkg/claims"
	"github.com/chittyos/claimchain/pkg/freeze"
	"github.com/chittyos/claimchain/pkg/merkle"
	"github.com/chittyos/claimchain/pkg/store"
)

var frozenAt = time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)

func seedClaim(t *testing.T, s *store.MemoryStore, id string, comps ...claims.Component) *claims.Claim {
	t.Helper()
	now := frozenAt.Add(-time.Hour)
	c := &claims.Claim{
		ID:         id,
		Code:       claims.DeriveCode("property_ownership", id),
		Type:       "property_ownership",
		Assertion:  "parcel 42 belongs to user-1",
		Author:     "user-1",
		Components: comps,
		Validity:   claims.Evaluation{Status: claims.StatusValid, Score: 0.9, EvaluatedAt: now},
		Freeze:     claims.FreezeMutable,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, s.CreateClaim(context.Background(), c))
	return c
}

func newManager(s *store.MemoryStore, chain *audit.ChainStore) *freeze.Manager {
	opts := []freeze.Option{freeze.WithClock(func() time.Time { return frozenAt })}
	if chain != nil {
		opts = append(opts, freeze.WithAudit(chain))
	}
	return freeze.NewManager(s, opts...)
}

func TestFreezeClaim(t *testing.T) {
	s := store.NewMemoryStore()
	chain := audit.NewChainStore()
	m := newManager(s, chain)
	ctx := auth.WithPrincipal(context.Background(), auth.BasePrincipal{ID: "user-1"})

	seedClaim(t, s, "c1",
		claims.Component{EvidenceID: "ev-b", Role: claims.RoleSupporting, Weight: 0.5, ContentHash: "hash-b"},
		claims.Component{EvidenceID: "ev-a", Role: claims.RolePrimary, Weight: 1.0, ContentHash: "hash-a"},
	)

	seal, err := m.FreezeClaim(ctx, "c1", auth.BasePrincipal{ID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, "c1", seal.ClaimID)
	assert.NotEmpty(t, seal.FreezeHash)
	assert.True(t, seal.FrozenAt.Equal(frozenAt))

	// Witness signatures come out in sorted evidence-id order, and the root
	// is the Merkle root over exactly that list.
	assert.Equal(t, []string{"hash-a", "hash-b"}, seal.WitnessSignatures)
	assert.Equal(t, merkle.Root([]string{"hash-a", "hash-b"}), seal.WitnessRoot)

	got, err := s.GetClaim(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, claims.FrozenOffchain, got.Freeze)
	assert.Equal(t, seal.FreezeHash, got.FreezeHash)
	assert.Equal(t, seal.WitnessRoot, got.WitnessRoot)
	require.NotNil(t, got.FrozenAt)
	assert.True(t, got.FrozenAt.Equal(frozenAt))

	require.Equal(t, 1, chain.Length())
	entry, err := chain.Get(1)
	require.NoError(t, err)
	assert.Equal(t, audit.EventFreeze, entry.Type)
	assert.Equal(t, audit.ActionClaimFrozen, entry.Action)
	assert.Equal(t, "c1", entry.Resource)
	assert.Equal(t, "user-1", entry.Metadata["actor"])
	assert.Equal(t, seal.FreezeHash, entry.Metadata["digest"])
	assert.Equal(t, 2, entry.Metadata["witness_count"])
}

func TestFreezeClaimTwiceRejected(t *testing.T) {
	s := store.NewMemoryStore()
	m := newManager(s, nil)
	ctx := context.Background()
	seedClaim(t, s, "c1")

	_, err := m.FreezeClaim(ctx, "c1", nil)
	require.NoError(t, err)

	_, err = m.FreezeClaim(ctx, "c1", nil)
	assert.ErrorIs(t, err, claims.ErrAlreadyFrozen)
}

func TestFreezeClaimNotFound(t *testing.T) {
	m := newManager(store.NewMemoryStore(), nil)
	_, err := m.FreezeClaim(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, claims.ErrClaimNotFound)
}

func TestFreezeClaimRace(t *testing.T) {
	s := store.NewMemoryStore()
	m := newManager(s, nil)
	ctx := context.Background()
	seedClaim(t, s, "c1", claims.Component{EvidenceID: "ev-1", Role: claims.RolePrimary, Weight: 1.0, ContentHash: "h1"})

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.FreezeClaim(ctx, "c1", nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var winners int
	for err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, claims.ErrAlreadyFrozen)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestDigestIgnoresComponentOrder(t *testing.T) {
	now := frozenAt
	base := claims.Claim{
		ID: "c1", Code: "CLM-PROP-AAAAAA", Type: "property_ownership",
		Assertion: "x", Author: "user-1",
		Validity: claims.Evaluation{Score: 0.9},
	}

	a := base
	a.Components = []claims.Component{
		{EvidenceID: "ev-a", Role: claims.RolePrimary, Weight: 1.0},
		{EvidenceID: "ev-b", Role: claims.RoleSupporting, Weight: 0.5},
	}
	b := base
	b.Components = []claims.Component{
		{EvidenceID: "ev-b", Role: claims.RoleSupporting, Weight: 0.5},
		{EvidenceID: "ev-a", Role: claims.RolePrimary, Weight: 1.0},
	}

	da, err := freeze.Digest(&a, now)
	require.NoError(t, err)
	db, err := freeze.Digest(&b, now)
	require.NoError(t, err)
	assert.Equal(t, da, db, "insertion order must not change the digest")

	// Any content change does.
	b.Components[0].Weight = 0.4
	dc, err := freeze.Digest(&b, now)
	require.NoError(t, err)
	assert.NotEqual(t, da, dc)

	// So does the freeze instant.
	dd, err := freeze.Digest(&a, now.Add(time.Second))
	require.NoError(t, err)
	assert.NotEqual(t, da, dd)
}

func TestDigestDeterministic(t *testing.T) {
	c := claims.Claim{
		ID: "c1", Code: "CLM-PROP-AAAAAA", Type: "property_ownership",
		Assertion: "x", Author: "user-1",
		Components: []claims.Component{
			{EvidenceID: "ev-a", Role: claims.RolePrimary, Weight: 1.0},
		},
		Validity: claims.Evaluation{Score: 0.9},
	}
	d1, err := freeze.Digest(&c, frozenAt)
	require.NoError(t, err)
	d2, err := freeze.Digest(&c, frozenAt)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

func TestWitnesses(t *testing.T) {
	c := claims.Claim{
		Components: []claims.Component{
			{EvidenceID: "ev-c", ContentHash: "hash-c"},
			{EvidenceID: "ev-a", ContentHash: "hash-a"},
			{EvidenceID: "ev-b"}, // no content hash, skipped
		},
	}
	assert.Equal(t, []string{"hash-a", "hash-c"}, freeze.Witnesses(&c))
	assert.Empty(t, freeze.Witnesses(&claims.Claim{}))
}

func TestMarkMintingAndMinted(t *testing.T) {
	s := store.NewMemoryStore()
	m := newManager(s, nil)
	ctx := context.Background()
	seedClaim(t, s, "c1")

	// Minting before the claim is sealed is illegal.
	err := m.MarkMinting(ctx, "c1")
	assert.ErrorIs(t, err, claims.ErrAlreadyFrozen)

	_, err = m.FreezeClaim(ctx, "c1", nil)
	require.NoError(t, err)

	// Skipping the minting step is illegal too.
	err = m.MarkMinted(ctx, "c1", "anchor-1")
	assert.ErrorIs(t, err, claims.ErrAlreadyFrozen)

	require.NoError(t, m.MarkMinting(ctx, "c1"))
	require.NoError(t, m.MarkMinted(ctx, "c1", "anchor-1"))

	got, err := s.GetClaim(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, claims.FreezeMintedOnchain, got.Freeze)
	assert.Equal(t, "anchor-1", got.AnchorRef)
}
