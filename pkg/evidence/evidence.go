// Package evidence adapts the external Evidence Provider. The engine never
// writes to evidence; it only asks whether an artifact is frozen and what
// its content hash, type, and capture timestamp are. The Gate bundles those
// reads into one attachment-time verdict.
package evidence

import (
	"context"
	"fmt"
	"time"

	"github.com/chittyos/claimchain/pkg/claims"
)

// FreezeState is the provider's answer about an artifact's mutability.
type FreezeState string

const (
	StateFrozen  FreezeState = "frozen"
	StateMutable FreezeState = "mutable"
	StateAbsent  FreezeState = "absent"
)

// Provider is the external evidence system consumed by the engine.
type Provider interface {
	GetFreezeStatus(ctx context.Context, evidenceID string) (FreezeState, error)
	// GetContentHash returns the artifact's content hash, or "" if the
	// provider holds none for it.
	GetContentHash(ctx context.Context, evidenceID string) (string, error)
	GetEvidenceType(ctx context.Context, evidenceID string) (string, error)
	GetCaptureTimestamp(ctx context.Context, evidenceID string) (time.Time, error)
}

// Record is the attachment-time snapshot of an evidence artifact.
type Record struct {
	EvidenceID  string
	ContentHash string
	Type        string
	CapturedAt  time.Time
}

// Gate answers "may a component referencing this artifact be attached, and
// with what metadata". It enforces the evidence-must-outlive-claims
// invariant: only frozen artifacts pass.
type Gate struct {
	provider Provider
}

// NewGate wraps an external provider.
func NewGate(p Provider) *Gate {
	return &Gate{provider: p}
}

// Resolve verifies the artifact is frozen and returns its snapshot.
// Returns claims.ErrEvidenceNotFound for absent artifacts and
// claims.ErrEvidenceNotFrozen for still-mutable ones.
func (g *Gate) Resolve(ctx context.Context, evidenceID string) (*Record, error) {
	state, err := g.provider.GetFreezeStatus(ctx, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("evidence gate: freeze status of %s: %w", evidenceID, err)
	}
	switch state {
	case StateAbsent:
		return nil, fmt.Errorf("%w: %s", claims.ErrEvidenceNotFound, evidenceID)
	case StateMutable:
		return nil, fmt.Errorf("%w: %s", claims.ErrEvidenceNotFrozen, evidenceID)
	case StateFrozen:
		// fall through
	default:
		return nil, fmt.Errorf("evidence gate: provider returned unknown state %q for %s", state, evidenceID)
	}

	hash, err := g.provider.GetContentHash(ctx, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("evidence gate: content hash of %s: %w", evidenceID, err)
	}
	typ, err := g.provider.GetEvidenceType(ctx, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("evidence gate: type of %s: %w", evidenceID, err)
	}
	captured, err := g.provider.GetCaptureTimestamp(ctx, evidenceID)
	if err != nil {
		return nil, fmt.Errorf("evidence gate: capture timestamp of %s: %w", evidenceID, err)
	}

	return &Record{
		EvidenceID:  evidenceID,
		ContentHash: hash,
		Type:        typ,
		CapturedAt:  captured,
	}, nil
}
