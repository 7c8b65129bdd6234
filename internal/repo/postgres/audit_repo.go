package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEntry is an append-only state-change record. Entries are never
// updated or deleted.
type AuditEntry struct {
	StoreID    int64
	UserID     int64
	Action     string
	EntityType string
	EntityID   int64
	Details    map[string]any
}

type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

const auditInsert = `
INSERT INTO audit_logs (
	store_id,
	user_id,
	action,
	entity_type,
	entity_id,
	details,
	created_at
) VALUES ($1, $2, $3, $4, $5, $6, NOW())
`

func validateAuditEntry(entry AuditEntry) error {
	if entry.StoreID <= 0 || entry.UserID <= 0 {
		return fmt.Errorf("invalid audit entry subject")
	}
	if strings.TrimSpace(entry.Action) == "" || strings.TrimSpace(entry.EntityType) == "" {
		return fmt.Errorf("audit action and entity type are required")
	}
	return nil
}

func (r *AuditRepo) CreateLog(ctx context.Context, entry AuditEntry) error {
	if err := validateAuditEntry(entry); err != nil {
		return err
	}
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	if _, err := r.pool.Exec(ctx, auditInsert,
		entry.StoreID, entry.UserID, entry.Action, entry.EntityType, entry.EntityID, entry.Details); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}

	return nil
}

// CreateLogInTx appends the entry inside the caller's transaction so the
// audit record commits or rolls back together with the mutation it records.
func (r *AuditRepo) CreateLogInTx(ctx context.Context, tx pgx.Tx, entry AuditEntry) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}
	if err := validateAuditEntry(entry); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, auditInsert,
		entry.StoreID, entry.UserID, entry.Action, entry.EntityType, entry.EntityID, entry.Details); err != nil {
		return fmt.Errorf("create audit log in tx: %w", err)
	}

	return nil
}
