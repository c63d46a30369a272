package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chittyos/claimchain/pkg/claims"

	_ "github.com/lib/pq"
)

// PostgresClaimStore is the production ClaimStore. Mutations take a
// SELECT ... FOR UPDATE row lock on the claim, serializing concurrent
// writers per claim while claims stay independent of one another.
type PostgresClaimStore struct {
	db *sql.DB
}

func NewPostgresClaimStore(db *sql.DB) *PostgresClaimStore {
	return &PostgresClaimStore{db: db}
}

// Migrate creates the claim tables if absent.
func (s *PostgresClaimStore) Migrate(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS claims (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		claim_type TEXT NOT NULL,
		assertion TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		validity JSONB NOT NULL DEFAULT '{}',
		validity_status TEXT NOT NULL DEFAULT 'pending',
		validity_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		freeze_status TEXT NOT NULL DEFAULT 'mutable',
		freeze_hash TEXT NOT NULL DEFAULT '',
		witness_root TEXT NOT NULL DEFAULT '',
		frozen_at TIMESTAMPTZ,
		anchor_ref TEXT NOT NULL DEFAULT '',
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS claim_components (
		claim_id TEXT NOT NULL REFERENCES claims(id),
		evidence_id TEXT NOT NULL,
		role TEXT NOT NULL,
		weight DOUBLE PRECISION NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		evidence_type TEXT NOT NULL DEFAULT '',
		content_hash TEXT NOT NULL DEFAULT '',
		captured_at TIMESTAMPTZ,
		attached_at TIMESTAMPTZ,
		PRIMARY KEY (claim_id, evidence_id)
	);`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *PostgresClaimStore) CreateClaim(ctx context.Context, c *claims.Claim) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create claim: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	validityJSON, err := json.Marshal(c.Validity)
	if err != nil {
		return fmt.Errorf("marshal validity: %w", err)
	}
	metaJSON, err := json.Marshal(c.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO claims (id, code, claim_type, assertion, author, validity, validity_status, validity_score,
			freeze_status, freeze_hash, witness_root, frozen_at, anchor_ref, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		c.ID, c.Code, c.Type, c.Assertion, c.Author, string(validityJSON),
		string(c.Validity.Status), c.Validity.Score, string(c.Freeze), c.FreezeHash,
		c.WitnessRoot, c.FrozenAt, c.AnchorRef, string(metaJSON), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert claim %s: %w", c.ID, err)
	}

	for _, comp := range c.Components {
		if err := s.insertComponentTx(ctx, tx, c.ID, comp); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *PostgresClaimStore) GetClaim(ctx context.Context, id string) (*claims.Claim, error) {
	return s.load(ctx, s.db, id, false)
}

func (s *PostgresClaimStore) UpsertComponent(ctx context.Context, claimID string, comp claims.Component, evaluate EvaluateFunc) (*claims.Claim, error) {
	return s.mutate(ctx, claimID, claims.ErrClaimFrozen, func(tx *sql.Tx, c *claims.Claim) error {
		if existing := c.Component(comp.EvidenceID); existing != nil {
			*existing = comp
		} else {
			c.Components = append(c.Components, comp)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO claim_components (claim_id, evidence_id, role, weight, notes, evidence_type, content_hash, captured_at, attached_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (claim_id, evidence_id) DO UPDATE SET
				role = EXCLUDED.role,
				weight = EXCLUDED.weight,
				notes = EXCLUDED.notes,
				evidence_type = EXCLUDED.evidence_type,
				content_hash = EXCLUDED.content_hash,
				captured_at = EXCLUDED.captured_at,
				attached_at = EXCLUDED.attached_at`,
			claimID, comp.EvidenceID, string(comp.Role), comp.Weight, comp.Notes,
			comp.EvidenceType, nullableTime(comp.CapturedAt), nullableTime(comp.AttachedAt))
		if err != nil {
			return fmt.Errorf("upsert component: %w", err)
		}
		return nil
	}, evaluate)
}

func (s *PostgresClaimStore) RemoveComponent(ctx context.Context, claimID, evidenceID string, evaluate EvaluateFunc) (*claims.Claim, error) {
	return s.mutate(ctx, claimID, claims.ErrClaimFrozen, func(tx *sql.Tx, c *claims.Claim) error {
		kept := c.Components[:0]
		for _, comp := range c.Components {
			if comp.EvidenceID != evidenceID {
				kept = append(kept, comp)
			}
		}
		c.Components = kept
		_, err := tx.ExecContext(ctx,
			`DELETE FROM claim_components WHERE claim_id = $1 AND evidence_id = $2`,
			claimID, evidenceID)
		if err != nil {
			return fmt.Errorf("delete component: %w", err)
		}
		return nil
	}, evaluate)
}

func (s *PostgresClaimStore) mutate(ctx context.Context, claimID string, frozenErr error, apply func(*sql.Tx, *claims.Claim) error, evaluate EvaluateFunc) (*claims.Claim, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin mutation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	c, err := s.load(ctx, tx, claimID, true)
	if err != nil {
		return nil, err
	}
	if !c.Freeze.Mutable() {
		return nil, fmt.Errorf("%w: %s", frozenErr, claimID)
	}

	if err := apply(tx, c); err != nil {
		return nil, err
	}

	c.Validity = evaluate(c)
	c.UpdatedAt = time.Now().UTC()

	validityJSON, err := json.Marshal(c.Validity)
	if err != nil {
		return nil, fmt.Errorf("marshal validity: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE claims SET validity = $1, validity_status = $2, validity_score = $3, updated_at = $4
		WHERE id = $5`,
		string(validityJSON), string(c.Validity.Status), c.Validity.Score, c.UpdatedAt, claimID)
	if err != nil {
		return nil, fmt.Errorf("update validity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit mutation: %w", err)
	}
	return c, nil
}

func (s *PostgresClaimStore) SealClaim(ctx context.Context, claimID string, frozenAt time.Time, seal SealFunc) (*claims.Claim, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin freeze: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	c, err := s.load(ctx, tx, claimID, true)
	if err != nil {
		return nil, err
	}
	if !c.Freeze.Mutable() {
		return nil, fmt.Errorf("%w: %s", claims.ErrAlreadyFrozen, claimID)
	}

	hash, root, err := seal(c)
	if err != nil {
		return nil, err
	}

	ts := frozenAt.UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE claims SET freeze_status = $1, freeze_hash = $2, witness_root = $3, frozen_at = $4, updated_at = $4
		WHERE id = $5 AND freeze_status = $6`,
		string(claims.FrozenOffchain), hash, root, ts, claimID, string(claims.FreezeMutable))
	if err != nil {
		return nil, fmt.Errorf("seal claim: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: %s", claims.ErrAlreadyFrozen, claimID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit freeze: %w", err)
	}

	c.Freeze = claims.FrozenOffchain
	c.FreezeHash = hash
	c.WitnessRoot = root
	c.FrozenAt = &ts
	c.UpdatedAt = ts
	return c, nil
}

func (s *PostgresClaimStore) AdvanceFreeze(ctx context.Context, claimID string, from, to claims.FreezeStatus, anchorRef string) error {
	if !from.CanAdvance(to) {
		return fmt.Errorf("illegal freeze transition %s → %s", from, to)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE claims SET freeze_status = $1,
			anchor_ref = CASE WHEN $2 != '' THEN $2 ELSE anchor_ref END,
			updated_at = $3
		WHERE id = $4 AND freeze_status = $5`,
		string(to), anchorRef, time.Now().UTC(), claimID, string(from))
	if err != nil {
		return fmt.Errorf("advance freeze: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.load(ctx, s.db, claimID, false); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s not in state %s", claims.ErrAlreadyFrozen, claimID, from)
	}
	return nil
}

func (s *PostgresClaimStore) load(ctx context.Context, q querier, id string, forUpdate bool) (*claims.Claim, error) {
	query := `
		SELECT id, code, claim_type, assertion, author, validity, freeze_status,
			freeze_hash, witness_root, frozen_at, anchor_ref, metadata, created_at, updated_at
		FROM claims WHERE id = $1`
	if forUpdate {
		query += " FOR UPDATE"
	}
	row := q.QueryRowContext(ctx, query, id)

	var (
		c            claims.Claim
		validityJSON []byte
		freezeStatus string
		frozenAt     sql.NullTime
		metaJSON     []byte
	)
	err := row.Scan(&c.ID, &c.Code, &c.Type, &c.Assertion, &c.Author, &validityJSON,
		&freezeStatus, &c.FreezeHash, &c.WitnessRoot, &frozenAt, &c.AnchorRef,
		&metaJSON, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", claims.ErrClaimNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load claim %s: %w", id, err)
	}

	if err := json.Unmarshal(validityJSON, &c.Validity); err != nil {
		return nil, fmt.Errorf("decode validity of %s: %w", id, err)
	}
	c.Freeze = claims.FreezeStatus(freezeStatus)
	if frozenAt.Valid {
		ts := frozenAt.Time
		c.FrozenAt = &ts
	}
	if len(metaJSON) > 0 && string(metaJSON) != "null" {
		if err := json.Unmarshal(metaJSON, &c.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", id, err)
		}
	}

	rows, err := q.QueryContext(ctx, `
		SELECT evidence_id, role, weight, notes, evidence_type, content_hash, captured_at, attached_at
		FROM claim_components WHERE claim_id = $1 ORDER BY evidence_id`, id)
	if err != nil {
		return nil, fmt.Errorf("load components of %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			comp       claims.Component
			role       string
			capturedAt sql.NullTime
			attachedAt sql.NullTime
		)
		if err := rows.Scan(&comp.EvidenceID, &role, &comp.Weight, &comp.Notes,
			&comp.EvidenceType, &comp.ContentHash, &capturedAt, &attachedAt); err != nil {
			return nil, fmt.Errorf("scan component of %s: %w", id, err)
		}
		comp.Role = claims.Role(role)
		if capturedAt.Valid {
			comp.CapturedAt = capturedAt.Time
		}
		if attachedAt.Valid {
			comp.AttachedAt = attachedAt.Time
		}
		c.Components = append(c.Components, comp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate components of %s: %w", id, err)
	}

	return &c, nil
}

func (s *PostgresClaimStore) insertComponentTx(ctx context.Context, tx *sql.Tx, claimID string, comp claims.Component) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO claim_components (claim_id, evidence_id, role, weight, notes, evidence_type, content_hash, captured_at, attached_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		claimID, comp.EvidenceID, string(comp.Role), comp.Weight, comp.Notes,
		comp.EvidenceType, nullableTime(comp.CapturedAt), nullableTime(comp.AttachedAt))
	if err != nil {
		return fmt.Errorf("insert component %s/%s: %w", claimID, comp.EvidenceID, err)
	}
	return nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
