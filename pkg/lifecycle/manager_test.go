package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chittyos/claimchain/pkg/audit"
	"github.com/chittyos/claimchain/pkg/auth"
	"github.com/chittyos/claimchain/pkg/catalog"
	"github.com/chittyos/claimchain/pkg/claims"
	"github.com/chittyos/claimchain/pkg/evidence"
	"github.com/chittyos/claimchain/pkg/lifecycle"
	"github.com/chittyos/claimchain/pkg/store"
	"github.com/chittyos/claimchain/pkg/validity"
)

var (
	testNow   = time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	testActor = auth.BasePrincipal{ID: "user-1", DisplayName: "Test User"}
)

type fixture struct {
	mgr      *lifecycle.Manager
	store    *store.MemoryStore
	provider *evidence.MemoryProvider
	chain    *audit.ChainStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	provider := evidence.NewMemoryProvider()
	provider.Put(evidence.Artifact{
		ID: "deed-1", State: evidence.StateFrozen, ContentHash: "hash-deed",
		Type: "deed", CapturedAt: testNow.AddDate(0, -6, 0),
	})
	provider.Put(evidence.Artifact{
		ID: "receipt-1", State: evidence.StateFrozen, ContentHash: "hash-receipt",
		Type: "receipt", CapturedAt: testNow.AddDate(0, -1, 0),
	})
	provider.Put(evidence.Artifact{
		ID: "draft-1", State: evidence.StateMutable, ContentHash: "hash-draft",
		Type: "testimony", CapturedAt: testNow,
	})

	ms := store.NewMemoryStore()
	chain := audit.NewChainStore().WithClock(func() time.Time { return testNow })
	mgr := lifecycle.NewManager(
		ms,
		evidence.NewGate(provider),
		catalog.Builtin(),
		validity.NewEvaluator(validity.WithClock(func() time.Time { return testNow })),
		lifecycle.WithAudit(chain),
		lifecycle.WithClock(func() time.Time { return testNow }),
	)
	return &fixture{mgr: mgr, store: ms, provider: provider, chain: chain}
}

func TestCreateClaim(t *testing.T) {
	f := newFixture(t)
	ctx := auth.WithPrincipal(context.Background(), testActor)

	c, err := f.mgr.CreateClaim(ctx, "property_ownership", "user-1 owns parcel 42", testActor,
		[]lifecycle.ComponentInput{
			{EvidenceID: "deed-1", Role: claims.RolePrimary, Weight: 1.0},
			{EvidenceID: "receipt-1", Role: claims.RoleSupporting, Weight: 0.6},
		}, map[string]any{"parcel": "42"})
	require.NoError(t, err)

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, claims.DeriveCode("property_ownership", c.ID), c.Code)
	assert.Equal(t, "user-1", c.Author)
	assert.Equal(t, claims.FreezeMutable, c.Freeze)
	require.Len(t, c.Components, 2)

	// Evidence metadata is snapshotted from the gate at attach time.
	deed := c.Component("deed-1")
	require.NotNil(t, deed)
	assert.Equal(t, "deed", deed.EvidenceType)
	assert.Equal(t, "hash-deed", deed.ContentHash)
	assert.True(t, deed.AttachedAt.Equal(testNow))

	// The claim is scored on creation, not left pending.
	assert.NotEqual(t, claims.StatusPending, c.Validity.Status)
	assert.NotEmpty(t, c.Validity.Rules)

	// Audit trail carries the creation with actor attribution.
	require.Equal(t, 1, f.chain.Length())
	entry, err := f.chain.Get(1)
	require.NoError(t, err)
	assert.Equal(t, audit.ActionClaimCreated, entry.Action)
	assert.Equal(t, "user-1", entry.ActorID)
	assert.Equal(t, c.ID, entry.Resource)
}

func TestCreateClaimUnfrozenEvidenceRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.CreateClaim(ctx, "property_ownership", "assertion", testActor,
		[]lifecycle.ComponentInput{
			{EvidenceID: "deed-1", Role: claims.RolePrimary, Weight: 1.0},
			{EvidenceID: "draft-1", Role: claims.RoleSupporting, Weight: 0.5},
		}, nil)
	assert.ErrorIs(t, err, claims.ErrEvidenceNotFrozen)
	assert.Equal(t, 0, f.store.Len(), "nothing is persisted when any component is rejected")
}

func TestCreateClaimMissingEvidenceRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.mgr.CreateClaim(context.Background(), "property_ownership", "assertion", testActor,
		[]lifecycle.ComponentInput{{EvidenceID: "no-such", Role: claims.RolePrimary, Weight: 1.0}}, nil)
	assert.ErrorIs(t, err, claims.ErrEvidenceNotFound)
	assert.Equal(t, 0, f.store.Len())
}

func TestCreateClaimInvalidComponent(t *testing.T) {
	f := newFixture(t)

	_, err := f.mgr.CreateClaim(context.Background(), "property_ownership", "assertion", testActor,
		[]lifecycle.ComponentInput{{EvidenceID: "deed-1", Role: "sideways", Weight: 1.0}}, nil)
	assert.Error(t, err)

	_, err = f.mgr.CreateClaim(context.Background(), "property_ownership", "assertion", testActor,
		[]lifecycle.ComponentInput{{EvidenceID: "deed-1", Role: claims.RolePrimary, Weight: 1.5}}, nil)
	assert.Error(t, err)
}

func TestCreateClaimNilAuthor(t *testing.T) {
	f := newFixture(t)

	c, err := f.mgr.CreateClaim(context.Background(), "property_ownership", "assertion", nil,
		[]lifecycle.ComponentInput{{EvidenceID: "deed-1", Role: claims.RolePrimary, Weight: 1.0}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "system", c.Author)

	// The mutation paths take the same fallback.
	_, err = f.mgr.AddComponent(context.Background(), c.ID,
		lifecycle.ComponentInput{EvidenceID: "receipt-1", Role: claims.RoleSupporting, Weight: 0.5}, nil)
	require.NoError(t, err)
}

func TestCreateClaimUnknownTypeUsesDefaultTemplate(t *testing.T) {
	f := newFixture(t)

	c, err := f.mgr.CreateClaim(context.Background(), "never_registered", "assertion", testActor,
		[]lifecycle.ComponentInput{{EvidenceID: "deed-1", Role: claims.RolePrimary, Weight: 1.0}}, nil)
	require.NoError(t, err)
	assert.NotEqual(t, claims.StatusPending, c.Validity.Status)
	assert.NotEmpty(t, c.Validity.Rules, "unregistered types score against the default template")
}

func TestAddComponentReevaluates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.mgr.CreateClaim(ctx, "property_ownership", "assertion", testActor,
		[]lifecycle.ComponentInput{{EvidenceID: "deed-1", Role: claims.RolePrimary, Weight: 1.0}}, nil)
	require.NoError(t, err)
	before := c.Validity.Score

	updated, err := f.mgr.AddComponent(ctx, c.ID,
		lifecycle.ComponentInput{EvidenceID: "receipt-1", Role: claims.RoleSupporting, Weight: 0.6}, testActor)
	require.NoError(t, err)
	require.Len(t, updated.Components, 2)
	assert.Greater(t, updated.Validity.Score, before, "a supporting component raises the score")

	// Attaching the same evidence again overwrites rather than duplicates.
	again, err := f.mgr.AddComponent(ctx, c.ID,
		lifecycle.ComponentInput{EvidenceID: "receipt-1", Role: claims.RoleCorroborating, Weight: 0.4}, testActor)
	require.NoError(t, err)
	assert.Len(t, again.Components, 2)
	assert.Equal(t, claims.RoleCorroborating, again.Component("receipt-1").Role)
}

func TestRemoveComponentReevaluates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.mgr.CreateClaim(ctx, "property_ownership", "assertion", testActor,
		[]lifecycle.ComponentInput{
			{EvidenceID: "deed-1", Role: claims.RolePrimary, Weight: 1.0},
			{EvidenceID: "receipt-1", Role: claims.RoleSupporting, Weight: 0.6},
		}, nil)
	require.NoError(t, err)

	updated, err := f.mgr.RemoveComponent(ctx, c.ID, "receipt-1", testActor)
	require.NoError(t, err)
	require.Len(t, updated.Components, 1)
	assert.Less(t, updated.Validity.Score, c.Validity.Score)
}

func TestMutationAfterFreezeRejectedWithWarning(t *testing.T) {
	f := newFixture(t)
	ctx := auth.WithPrincipal(context.Background(), testActor)

	c, err := f.mgr.CreateClaim(ctx, "property_ownership", "assertion", testActor,
		[]lifecycle.ComponentInput{{EvidenceID: "deed-1", Role: claims.RolePrimary, Weight: 1.0}}, nil)
	require.NoError(t, err)

	_, err = f.store.SealClaim(ctx, c.ID, testNow, func(c *claims.Claim) (string, string, error) {
		return "digest", "root", nil
	})
	require.NoError(t, err)

	_, err = f.mgr.AddComponent(ctx, c.ID,
		lifecycle.ComponentInput{EvidenceID: "receipt-1", Role: claims.RoleSupporting, Weight: 0.5}, testActor)
	assert.ErrorIs(t, err, claims.ErrClaimFrozen)

	_, err = f.mgr.RemoveComponent(ctx, c.ID, "deed-1", testActor)
	assert.ErrorIs(t, err, claims.ErrClaimFrozen)

	// Each rejected mutation leaves a warning behind the creation event.
	last, err := f.chain.Get(uint64(f.chain.Length()))
	require.NoError(t, err)
	assert.Equal(t, audit.EventWarning, last.Type)
	assert.Equal(t, audit.ActionFrozenMutation, last.Action)
	assert.Equal(t, c.ID, last.Resource)
	assert.Equal(t, "user-1", last.Metadata["actor"])

	// The frozen claim itself is untouched.
	got, err := f.mgr.GetClaim(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, got.Components, 1)
	assert.Equal(t, claims.FrozenOffchain, got.Freeze)
}

func TestGetClaimNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.GetClaim(context.Background(), "missing")
	assert.ErrorIs(t, err, claims.ErrClaimNotFound)
}
