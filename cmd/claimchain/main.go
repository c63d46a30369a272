// Command claimchain wires the claim validity engine and runs a small
// end-to-end exercise: frozen evidence in, a scored claim out, sealed
// behind its canonical digest. Useful as a smoke check and as a reference
// for embedding the engine.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/chittyos/claimchain/pkg/audit"
	"github.com/chittyos/claimchain/pkg/auth"
	"github.com/chittyos/claimchain/pkg/catalog"
	"github.com/chittyos/claimchain/pkg/claims"
	"github.com/chittyos/claimchain/pkg/config"
	"github.com/chittyos/claimchain/pkg/evidence"
	"github.com/chittyos/claimchain/pkg/freeze"
	"github.com/chittyos/claimchain/pkg/lifecycle"
	"github.com/chittyos/claimchain/pkg/store"
	"github.com/chittyos/claimchain/pkg/validity"
)

func main() {
	if err := run(); err != nil {
		slog.Error("claimchain failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	ctx := auth.WithPrincipal(context.Background(), auth.BasePrincipal{
		ID:          "demo-operator",
		DisplayName: "Demo Operator",
	})

	claimStore, err := openStore(cfg)
	if err != nil {
		return err
	}

	auditLog, err := openAudit(cfg)
	if err != nil {
		return err
	}

	provider := evidence.NewMemoryProvider()
	gate := evidence.NewGate(provider)

	celPredicate, err := validity.NewCELPredicate()
	if err != nil {
		return err
	}
	evaluator := validity.NewEvaluator(
		validity.WithPredicate("cel", celPredicate),
	)

	manager := lifecycle.NewManager(claimStore, gate, catalog.Builtin(), evaluator,
		lifecycle.WithAudit(auditLog))
	freezer := freeze.NewManager(claimStore, freeze.WithAudit(auditLog))

	// Seed two frozen artifacts and one still-mutable one.
	now := time.Now().UTC()
	provider.Put(evidence.Artifact{
		ID: "ev-deed", State: evidence.StateFrozen, Type: "deed",
		ContentHash: "4f7a1c9e", CapturedAt: now.AddDate(0, -2, 0),
	})
	provider.Put(evidence.Artifact{
		ID: "ev-statement", State: evidence.StateFrozen, Type: "bank_statement",
		ContentHash: "b81d022f", CapturedAt: now.AddDate(0, -1, 0),
	})
	provider.Put(evidence.Artifact{
		ID: "ev-draft", State: evidence.StateMutable, Type: "affidavit",
		CapturedAt: now,
	})

	actor := auth.BasePrincipal{ID: "demo-operator"}

	claim, err := manager.CreateClaim(ctx, "property_ownership",
		"The operator holds sole title to the demo property.", actor,
		[]lifecycle.ComponentInput{
			{EvidenceID: "ev-deed", Role: claims.RolePrimary, Weight: 1.0},
			{EvidenceID: "ev-statement", Role: claims.RoleSupporting, Weight: 0.7},
		}, nil)
	if err != nil {
		return fmt.Errorf("create claim: %w", err)
	}
	slog.Info("claim created", "id", claim.ID, "code", claim.Code,
		"status", claim.Validity.Status, "score", claim.Validity.Score)

	// Mutable evidence is rejected at the gate.
	if _, err := manager.AddComponent(ctx, claim.ID, lifecycle.ComponentInput{
		EvidenceID: "ev-draft", Role: claims.RoleSupporting, Weight: 0.5,
	}, actor); err != nil {
		slog.Info("unfrozen evidence rejected as expected", "error", err)
	}

	seal, err := freezer.FreezeClaim(ctx, claim.ID, actor)
	if err != nil {
		return fmt.Errorf("freeze claim: %w", err)
	}
	slog.Info("claim frozen", "digest", seal.FreezeHash,
		"witnesses", len(seal.WitnessSignatures), "witness_root", seal.WitnessRoot)

	// The claim is sealed; further mutation must bounce.
	if _, err := manager.AddComponent(ctx, claim.ID, lifecycle.ComponentInput{
		EvidenceID: "ev-statement", Role: claims.RoleSupporting, Weight: 0.5,
	}, actor); err != nil {
		slog.Info("post-freeze mutation rejected as expected", "error", err)
	}

	return nil
}

func openStore(cfg *config.Config) (store.ClaimStore, error) {
	switch cfg.DatabaseDriver {
	case "memory":
		return store.NewMemoryStore(), nil
	case "sqlite":
		return store.OpenSQLite(cfg.DatabaseURL)
	case "postgres":
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		pg := store.NewPostgresClaimStore(db)
		if err := pg.Migrate(context.Background()); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DatabaseDriver)
	}
}

func openAudit(cfg *config.Config) (audit.Logger, error) {
	if cfg.AuditSink == "stdout" {
		return audit.NewLogger(), nil
	}
	f, err := os.OpenFile(cfg.AuditSink, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit sink: %w", err)
	}
	return audit.NewLoggerWithWriter(f), nil
}
