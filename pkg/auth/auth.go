// Package auth carries the acting principal through context. The engine
// uses the principal only for audit attribution, never for scoring.
package auth

import (
	"context"
	"errors"
)

// Principal is the entity performing an engine operation.
type Principal interface {
	GetID() string
	GetDisplayName() string
}

// BasePrincipal is a minimal Principal implementation.
type BasePrincipal struct {
	ID          string
	DisplayName string
}

func (b BasePrincipal) GetID() string { return b.ID }

func (b BasePrincipal) GetDisplayName() string {
	if b.DisplayName != "" {
		return b.DisplayName
	}
	return b.ID
}

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal attaches a Principal to the context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal retrieves the Principal from the context.
func GetPrincipal(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(principalKey).(Principal)
	if !ok {
		return nil, errors.New("no principal in context")
	}
	return p, nil
}

// ActorID returns the principal's id, or "system" when none is attached.
func ActorID(ctx context.Context) string {
	p, err := GetPrincipal(ctx)
	if err != nil {
		return "system"
	}
	return p.GetID()
}
