package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// UsageRepo counts live resources per store. All counts come from the source
// of truth, never from a cache, so a stale usage snapshot is always
// recoverable by recomputation.
type UsageRepo struct {
	pool *pgxpool.Pool
}

func NewUsageRepo(pool *pgxpool.Pool) *UsageRepo {
	return &UsageRepo{pool: pool}
}

func (r *UsageRepo) count(ctx context.Context, query string, args ...any) (int, error) {
	if r.pool == nil {
		return 0, nil
	}

	var n int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *UsageRepo) CountTables(ctx context.Context, storeID int64) (int, error) {
	if storeID <= 0 {
		return 0, fmt.Errorf("invalid store id")
	}

	n, err := r.count(ctx, `
SELECT COUNT(*)
FROM restaurant_tables
WHERE store_id = $1 AND deleted_at IS NULL
`, storeID)
	if err != nil {
		return 0, fmt.Errorf("count tables: %w", err)
	}
	return n, nil
}

func (r *UsageRepo) CountMenuItems(ctx context.Context, storeID int64) (int, error) {
	if storeID <= 0 {
		return 0, fmt.Errorf("invalid store id")
	}

	n, err := r.count(ctx, `
SELECT COUNT(*)
FROM menu_items
WHERE store_id = $1 AND deleted_at IS NULL
`, storeID)
	if err != nil {
		return 0, fmt.Errorf("count menu items: %w", err)
	}
	return n, nil
}

func (r *UsageRepo) CountStaff(ctx context.Context, storeID int64) (int, error) {
	if storeID <= 0 {
		return 0, fmt.Errorf("invalid store id")
	}

	n, err := r.count(ctx, `
SELECT COUNT(*)
FROM store_memberships
WHERE store_id = $1
`, storeID)
	if err != nil {
		return 0, fmt.Errorf("count staff: %w", err)
	}
	return n, nil
}

func (r *UsageRepo) CountOrdersSince(ctx context.Context, storeID int64, since time.Time) (int, error) {
	if storeID <= 0 || since.IsZero() {
		return 0, fmt.Errorf("invalid order count payload")
	}

	n, err := r.count(ctx, `
SELECT COUNT(*)
FROM orders
WHERE store_id = $1 AND created_at >= $2
`, storeID, since)
	if err != nil {
		return 0, fmt.Errorf("count monthly orders: %w", err)
	}
	return n, nil
}
