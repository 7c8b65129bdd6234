package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/restodesk/backend/internal/domain/enums"
)

var (
	ErrMembershipNotFound = errors.New("store membership not found")
	ErrUserNotFound       = errors.New("user not found")
)

type MembershipRepo struct {
	pool *pgxpool.Pool
}

func NewMembershipRepo(pool *pgxpool.Pool) *MembershipRepo {
	return &MembershipRepo{pool: pool}
}

func (r *MembershipRepo) GetRole(ctx context.Context, userID, storeID int64) (enums.StoreRole, error) {
	if userID <= 0 || storeID <= 0 {
		return "", fmt.Errorf("invalid membership lookup payload")
	}
	if r.pool == nil {
		return "", ErrMembershipNotFound
	}

	var role string
	err := r.pool.QueryRow(ctx, `
SELECT role
FROM store_memberships
WHERE user_id = $1 AND store_id = $2
LIMIT 1
`, userID, storeID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrMembershipNotFound
		}
		return "", fmt.Errorf("get store role: %w", err)
	}

	return enums.StoreRole(role), nil
}

func (r *MembershipRepo) IsPlatformAdmin(ctx context.Context, userID int64) (bool, error) {
	if userID <= 0 {
		return false, fmt.Errorf("invalid user id")
	}
	if r.pool == nil {
		return false, nil
	}

	var platformRole string
	err := r.pool.QueryRow(ctx, `
SELECT platform_role
FROM users
WHERE id = $1
LIMIT 1
`, userID).Scan(&platformRole)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrUserNotFound
		}
		return false, fmt.Errorf("get platform role: %w", err)
	}

	return enums.PlatformRole(platformRole) == enums.PlatformRoleAdmin, nil
}

func (r *MembershipRepo) FindUserIDByEmail(ctx context.Context, email string) (int64, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return 0, fmt.Errorf("email is required")
	}
	if r.pool == nil {
		return 0, ErrUserNotFound
	}

	var userID int64
	err := r.pool.QueryRow(ctx, `
SELECT id
FROM users
WHERE lower(email) = $1
LIMIT 1
`, normalized).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("find user by email: %w", err)
	}

	return userID, nil
}

func (r *MembershipRepo) SetRoleTx(ctx context.Context, tx pgx.Tx, userID, storeID int64, role enums.StoreRole) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}
	if userID <= 0 || storeID <= 0 || role == "" {
		return fmt.Errorf("invalid membership role payload")
	}

	tag, err := tx.Exec(ctx, `
UPDATE store_memberships
SET role = $3, updated_at = NOW()
WHERE user_id = $1 AND store_id = $2
`, userID, storeID, string(role))
	if err != nil {
		return fmt.Errorf("set membership role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMembershipNotFound
	}

	return nil
}

// UpsertRoleTx inserts the membership when the user has none on the store.
func (r *MembershipRepo) UpsertRoleTx(ctx context.Context, tx pgx.Tx, userID, storeID int64, role enums.StoreRole) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}
	if userID <= 0 || storeID <= 0 || role == "" {
		return fmt.Errorf("invalid membership role payload")
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO store_memberships (user_id, store_id, role, created_at, updated_at)
VALUES ($1, $2, $3, NOW(), NOW())
ON CONFLICT (user_id, store_id) DO UPDATE SET
	role = EXCLUDED.role,
	updated_at = NOW()
`, userID, storeID, string(role)); err != nil {
		return fmt.Errorf("upsert membership role: %w", err)
	}

	return nil
}
