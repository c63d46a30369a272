// Package observability exposes the engine's OpenTelemetry metric
// instruments. Only the otel API is used here; provider and exporter wiring
// belongs to the host process.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/chittyos/claimchain"

// Metrics holds the engine's counters. The zero value is unusable; obtain
// one from NewMetrics. A nil *Metrics is safe everywhere and records
// nothing, so instrumentation stays optional.
type Metrics struct {
	claimsCreated      metric.Int64Counter
	componentsAttached metric.Int64Counter
	componentsRemoved  metric.Int64Counter
	evaluations        metric.Int64Counter
	freezes            metric.Int64Counter
	freezeConflicts    metric.Int64Counter
}

// NewMetrics registers the engine instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	m := &Metrics{}
	var err error
	if m.claimsCreated, err = meter.Int64Counter("claimchain.claims.created",
		metric.WithDescription("Claims created")); err != nil {
		return nil, err
	}
	if m.componentsAttached, err = meter.Int64Counter("claimchain.components.attached",
		metric.WithDescription("Evidence components attached or overwritten")); err != nil {
		return nil, err
	}
	if m.componentsRemoved, err = meter.Int64Counter("claimchain.components.removed",
		metric.WithDescription("Evidence components removed")); err != nil {
		return nil, err
	}
	if m.evaluations, err = meter.Int64Counter("claimchain.evaluations",
		metric.WithDescription("Validity evaluations run")); err != nil {
		return nil, err
	}
	if m.freezes, err = meter.Int64Counter("claimchain.freezes",
		metric.WithDescription("Claims frozen")); err != nil {
		return nil, err
	}
	if m.freezeConflicts, err = meter.Int64Counter("claimchain.freeze_conflicts",
		metric.WithDescription("Freeze attempts that lost the race")); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) ClaimCreated(ctx context.Context, claimType string) {
	if m == nil {
		return
	}
	m.claimsCreated.Add(ctx, 1, metric.WithAttributes(attribute.String("claim_type", claimType)))
}

func (m *Metrics) ComponentAttached(ctx context.Context) {
	if m == nil {
		return
	}
	m.componentsAttached.Add(ctx, 1)
}

func (m *Metrics) ComponentRemoved(ctx context.Context) {
	if m == nil {
		return
	}
	m.componentsRemoved.Add(ctx, 1)
}

func (m *Metrics) Evaluated(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.evaluations.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func (m *Metrics) Frozen(ctx context.Context) {
	if m == nil {
		return
	}
	m.freezes.Add(ctx, 1)
}

func (m *Metrics) FreezeConflict(ctx context.Context) {
	if m == nil {
		return
	}
	m.freezeConflicts.Add(ctx, 1)
}
