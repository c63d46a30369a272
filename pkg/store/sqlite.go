package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chittyos/claimchain/pkg/claims"

	_ "modernc.org/sqlite"
)

// SQLiteClaimStore is the default durable ClaimStore. Every mutating method
// runs in one transaction with a conditional final UPDATE guarding the
// freeze status, so a freeze racing a mutation resolves to exactly one
// winner.
type SQLiteClaimStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and migrates it.
func OpenSQLite(path string) (*SQLiteClaimStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// Single writer connection: sqlite serializes writers anyway, and this
	// avoids SQLITE_BUSY churn under concurrent freeze attempts.
	db.SetMaxOpenConns(1)
	return NewSQLiteClaimStore(db)
}

// NewSQLiteClaimStore wraps an existing handle and migrates the schema.
func NewSQLiteClaimStore(db *sql.DB) (*SQLiteClaimStore, error) {
	s := &SQLiteClaimStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteClaimStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS claims (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		claim_type TEXT NOT NULL,
		assertion TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		validity JSON NOT NULL DEFAULT '{}',
		validity_status TEXT NOT NULL DEFAULT 'pending',
		validity_score REAL NOT NULL DEFAULT 0,
		freeze_status TEXT NOT NULL DEFAULT 'mutable',
		freeze_hash TEXT NOT NULL DEFAULT '',
		witness_root TEXT NOT NULL DEFAULT '',
		frozen_at TEXT,
		anchor_ref TEXT NOT NULL DEFAULT '',
		metadata JSON,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS claim_components (
		claim_id TEXT NOT NULL REFERENCES claims(id),
		evidence_id TEXT NOT NULL,
		role TEXT NOT NULL,
		weight REAL NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		evidence_type TEXT NOT NULL DEFAULT '',
		content_hash TEXT NOT NULL DEFAULT '',
		captured_at TEXT,
		attached_at TEXT,
		PRIMARY KEY (claim_id, evidence_id)
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteClaimStore) CreateClaim(ctx context.Context, c *claims.Claim) error {
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Code, c.Type, c.Assertion, c.Author, string(validityJSON),
		string(c.Validity.Status), c.Validity.Score, string(c.Freeze), c.FreezeHash,
		c.WitnessRoot, encodeNullableTime(c.FrozenAt), c.AnchorRef, string(metaJSON),
		encodeTime(c.CreatedAt), encodeTime(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert claim %s: %w", c.ID, err)
	}

	for _, comp := range c.Components {
		if err := insertComponentTx(ctx, tx, c.ID, comp); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteClaimStore) GetClaim(ctx context.Context, id string) (*claims.Claim, error) {
	return loadClaim(ctx, s.db, id)
}

func (s *SQLiteClaimStore) UpsertComponent(ctx context.Context, claimID string, comp claims.Component, evaluate EvaluateFunc) (*claims.Claim, error) {
	return s.mutate(ctx, claimID, claims.ErrClaimFrozen, func(tx *sql.Tx, c *claims.Claim) error {
		if existing := c.Component(comp.EvidenceID); existing != nil {
			*existing = comp
		} else {
			c.Components = append(c.Components, comp)
		}
		_, err := tx.ExecContext(ctx,
			`DELETE FROM claim_components WHERE claim_id = ? AND evidence_id = ?`,
			claimID, comp.EvidenceID)
		if err != nil {
			return fmt.Errorf("replace component: %w", err)
		}
		return insertComponentTx(ctx, tx, claimID, comp)
	}, evaluate)
}

func (s *SQLiteClaimStore) RemoveComponent(ctx context.Context, claimID, evidenceID string, evaluate EvaluateFunc) (*claims.Claim, error) {
	return s.mutate(ctx, claimID, claims.ErrClaimFrozen, func(tx *sql.Tx, c *claims.Claim) error {
		kept := c.Components[:0]
		for _, comp := range c.Components {
			if comp.EvidenceID != evidenceID {
				kept = append(kept, comp)
			}
		}
		c.Components = kept
		_, err := tx.ExecContext(ctx,
			`DELETE FROM claim_components WHERE claim_id = ? AND evidence_id = ?`,
			claimID, evidenceID)
		if err != nil {
			return fmt.Errorf("delete component: %w", err)
		}
		return nil
	}, evaluate)
}

// mutate runs one component mutation as a transaction: load, apply, re-run
// the evaluator, and persist the validity fields behind a freeze-status
// conditional update.
func (s *SQLiteClaimStore) mutate(ctx context.Context, claimID string, frozenErr error, apply func(*sql.Tx, *claims.Claim) error, evaluate EvaluateFunc) (*claims.Claim, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin mutation: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	c, err := loadClaim(ctx, tx, claimID)
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
	res, err := tx.ExecContext(ctx, `
		UPDATE claims SET validity = ?, validity_status = ?, validity_score = ?, updated_at = ?
		WHERE id = ? AND freeze_status = ?`,
		string(validityJSON), string(c.Validity.Status), c.Validity.Score,
		encodeTime(c.UpdatedAt), claimID, string(claims.FreezeMutable))
	if err != nil {
		return nil, fmt.Errorf("update validity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: %s", frozenErr, claimID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit mutation: %w", err)
	}
	return c, nil
}

func (s *SQLiteClaimStore) SealClaim(ctx context.Context, claimID string, frozenAt time.Time, seal SealFunc) (*claims.Claim, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin freeze: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	c, err := loadClaim(ctx, tx, claimID)
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
		UPDATE claims SET freeze_status = ?, freeze_hash = ?, witness_root = ?, frozen_at = ?, updated_at = ?
		WHERE id = ? AND freeze_status = ?`,
		string(claims.FrozenOffchain), hash, root, encodeTime(ts), encodeTime(ts),
		claimID, string(claims.FreezeMutable))
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

func (s *SQLiteClaimStore) AdvanceFreeze(ctx context.Context, claimID string, from, to claims.FreezeStatus, anchorRef string) error {
	if !from.CanAdvance(to) {
		return fmt.Errorf("illegal freeze transition %s → %s", from, to)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE claims SET freeze_status = ?, anchor_ref = CASE WHEN ? != '' THEN ? ELSE anchor_ref END, updated_at = ?
		WHERE id = ? AND freeze_status = ?`,
		string(to), anchorRef, anchorRef, encodeTime(time.Now().UTC()), claimID, string(from))
	if err != nil {
		return fmt.Errorf("advance freeze: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Distinguish a missing claim from a lost CAS.
		if _, err := loadClaim(ctx, s.db, claimID); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s not in state %s", claims.ErrAlreadyFrozen, claimID, from)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadClaim(ctx context.Context, q querier, id string) (*claims.Claim, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, code, claim_type, assertion, author, validity, freeze_status,
			freeze_hash, witness_root, frozen_at, anchor_ref, metadata, created_at, updated_at
		FROM claims WHERE id = ?`, id)

	var (
		c            claims.Claim
		validityJSON string
		freezeStatus string
		frozenAt     sql.NullString
		metaJSON     sql.NullString
		createdAt    string
		updatedAt    string
	)
	err := row.Scan(&c.ID, &c.Code, &c.Type, &c.Assertion, &c.Author, &validityJSON,
		&freezeStatus, &c.FreezeHash, &c.WitnessRoot, &frozenAt, &c.AnchorRef,
		&metaJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", claims.ErrClaimNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load claim %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(validityJSON), &c.Validity); err != nil {
		return nil, fmt.Errorf("decode validity of %s: %w", id, err)
	}
	c.Freeze = claims.FreezeStatus(freezeStatus)
	if frozenAt.Valid && frozenAt.String != "" {
		ts, err := decodeTime(frozenAt.String)
		if err != nil {
			return nil, fmt.Errorf("decode frozen_at of %s: %w", id, err)
		}
		c.FrozenAt = &ts
	}
	if metaJSON.Valid && metaJSON.String != "" && metaJSON.String != "null" {
		if err := json.Unmarshal([]byte(metaJSON.String), &c.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of %s: %w", id, err)
		}
	}
	if c.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, fmt.Errorf("decode created_at of %s: %w", id, err)
	}
	if c.UpdatedAt, err = decodeTime(updatedAt); err != nil {
		return nil, fmt.Errorf("decode updated_at of %s: %w", id, err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT evidence_id, role, weight, notes, evidence_type, content_hash, captured_at, attached_at
		FROM claim_components WHERE claim_id = ? ORDER BY evidence_id`, id)
	if err != nil {
		return nil, fmt.Errorf("load components of %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			comp       claims.Component
			role       string
			capturedAt sql.NullString
			attachedAt sql.NullString
		)
		if err := rows.Scan(&comp.EvidenceID, &role, &comp.Weight, &comp.Notes,
			&comp.EvidenceType, &comp.ContentHash, &capturedAt, &attachedAt); err != nil {
			return nil, fmt.Errorf("scan component of %s: %w", id, err)
		}
		comp.Role = claims.Role(role)
		if capturedAt.Valid && capturedAt.String != "" {
			if comp.CapturedAt, err = decodeTime(capturedAt.String); err != nil {
				return nil, fmt.Errorf("decode captured_at: %w", err)
			}
		}
		if attachedAt.Valid && attachedAt.String != "" {
			if comp.AttachedAt, err = decodeTime(attachedAt.String); err != nil {
				return nil, fmt.Errorf("decode attached_at: %w", err)
			}
		}
		c.Components = append(c.Components, comp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate components of %s: %w", id, err)
	}

	return &c, nil
}

func insertComponentTx(ctx context.Context, tx *sql.Tx, claimID string, comp claims.Component) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO claim_components (claim_id, evidence_id, role, weight, notes, evidence_type, content_hash, captured_at, attached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		claimID, comp.EvidenceID, string(comp.Role), comp.Weight, comp.Notes,
		comp.EvidenceType, comp.ContentHash, encodeTime(comp.CapturedAt), encodeTime(comp.AttachedAt))
	if err != nil {
		return fmt.Errorf("insert component %s/%s: %w", claimID, comp.EvidenceID, err)
	}
	return nil
}

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func encodeNullableTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return encodeTime(*t)
}

func decodeTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
