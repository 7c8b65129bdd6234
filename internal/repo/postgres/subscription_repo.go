package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/restodesk/backend/internal/domain/enums"
)

var ErrSubscriptionNotFound = errors.New("subscription not found")

type SubscriptionRecord struct {
	ID                 int64
	StoreID            int64
	Tier               enums.Tier
	Status             enums.SubscriptionStatus
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	TrialStartedAt     *time.Time
	TrialEndsAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type SubscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *SubscriptionRepo {
	return &SubscriptionRepo{pool: pool}
}

const subscriptionColumns = `
	id,
	store_id,
	tier,
	status,
	current_period_start,
	current_period_end,
	trial_started_at,
	trial_ends_at,
	created_at,
	updated_at
`

func scanSubscription(row pgx.Row) (SubscriptionRecord, error) {
	var (
		rec    SubscriptionRecord
		tier   string
		status string
	)
	err := row.Scan(
		&rec.ID,
		&rec.StoreID,
		&tier,
		&status,
		&rec.CurrentPeriodStart,
		&rec.CurrentPeriodEnd,
		&rec.TrialStartedAt,
		&rec.TrialEndsAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return SubscriptionRecord{}, err
	}
	rec.Tier = enums.Tier(tier)
	rec.Status = enums.SubscriptionStatus(status)
	return rec, nil
}

func (r *SubscriptionRepo) GetByStoreID(ctx context.Context, storeID int64) (SubscriptionRecord, error) {
	if storeID <= 0 {
		return SubscriptionRecord{}, fmt.Errorf("invalid store id")
	}
	if r.pool == nil {
		return SubscriptionRecord{}, ErrSubscriptionNotFound
	}

	rec, err := scanSubscription(r.pool.QueryRow(ctx, `
SELECT `+subscriptionColumns+`
FROM subscriptions
WHERE store_id = $1
LIMIT 1
`, storeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SubscriptionRecord{}, ErrSubscriptionNotFound
		}
		return SubscriptionRecord{}, fmt.Errorf("get subscription by store: %w", err)
	}

	return rec, nil
}

// GetByStoreIDForUpdate takes a row lock so concurrent lifecycle mutations
// of the same subscription serialize.
func (r *SubscriptionRepo) GetByStoreIDForUpdate(ctx context.Context, tx pgx.Tx, storeID int64) (SubscriptionRecord, error) {
	if tx == nil {
		return SubscriptionRecord{}, fmt.Errorf("transaction is required")
	}
	if storeID <= 0 {
		return SubscriptionRecord{}, fmt.Errorf("invalid store id")
	}

	rec, err := scanSubscription(tx.QueryRow(ctx, `
SELECT `+subscriptionColumns+`
FROM subscriptions
WHERE store_id = $1
FOR UPDATE
`, storeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SubscriptionRecord{}, ErrSubscriptionNotFound
		}
		return SubscriptionRecord{}, fmt.Errorf("lock subscription by store: %w", err)
	}

	return rec, nil
}

// CreateDefault provisions the FREE/TRIAL subscription a new store starts with.
func (r *SubscriptionRepo) CreateDefault(ctx context.Context, storeID int64, trialDays int, now time.Time) (SubscriptionRecord, error) {
	if storeID <= 0 || trialDays < 0 {
		return SubscriptionRecord{}, fmt.Errorf("invalid subscription provision payload")
	}
	if r.pool == nil {
		return SubscriptionRecord{}, fmt.Errorf("postgres pool is nil")
	}

	trialEnds := now.Add(time.Duration(trialDays) * 24 * time.Hour)
	rec, err := scanSubscription(r.pool.QueryRow(ctx, `
INSERT INTO subscriptions (
	store_id,
	tier,
	status,
	trial_started_at,
	trial_ends_at,
	created_at,
	updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $6)
ON CONFLICT (store_id) DO UPDATE SET updated_at = subscriptions.updated_at
RETURNING `+subscriptionColumns+`
`, storeID, string(enums.TierFree), string(enums.SubscriptionStatusTrial), now, trialEnds, now))
	if err != nil {
		return SubscriptionRecord{}, fmt.Errorf("provision default subscription: %w", err)
	}

	return rec, nil
}

func (r *SubscriptionRepo) ActivateTx(ctx context.Context, tx pgx.Tx, storeID int64, tier enums.Tier, periodStart, periodEnd time.Time) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}
	if storeID <= 0 || !tier.Valid() || !periodEnd.After(periodStart) {
		return fmt.Errorf("invalid subscription activation payload")
	}

	tag, err := tx.Exec(ctx, `
UPDATE subscriptions
SET
	tier = $2,
	status = $3,
	current_period_start = $4,
	current_period_end = $5,
	trial_started_at = NULL,
	trial_ends_at = NULL,
	updated_at = NOW()
WHERE store_id = $1
`, storeID, string(tier), string(enums.SubscriptionStatusActive), periodStart, periodEnd)
	if err != nil {
		return fmt.Errorf("activate subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}

	return nil
}

func (r *SubscriptionRepo) DowngradeToFreeTx(ctx context.Context, tx pgx.Tx, storeID int64) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}
	if storeID <= 0 {
		return fmt.Errorf("invalid store id")
	}

	tag, err := tx.Exec(ctx, `
UPDATE subscriptions
SET
	tier = $2,
	status = $3,
	current_period_start = NULL,
	current_period_end = NULL,
	trial_started_at = NULL,
	trial_ends_at = NULL,
	updated_at = NOW()
WHERE store_id = $1
`, storeID, string(enums.TierFree), string(enums.SubscriptionStatusActive))
	if err != nil {
		return fmt.Errorf("downgrade subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}

	return nil
}

func (r *SubscriptionRepo) SetStatusTx(ctx context.Context, tx pgx.Tx, storeID int64, status enums.SubscriptionStatus) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}
	if storeID <= 0 || status == "" {
		return fmt.Errorf("invalid subscription status payload")
	}

	tag, err := tx.Exec(ctx, `
UPDATE subscriptions
SET status = $2, updated_at = NOW()
WHERE store_id = $1
`, storeID, string(status))
	if err != nil {
		return fmt.Errorf("set subscription status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}

	return nil
}

func (r *SubscriptionRepo) DeactivateTrialUsageTx(ctx context.Context, tx pgx.Tx, storeID int64) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}
	if storeID <= 0 {
		return fmt.Errorf("invalid store id")
	}

	if _, err := tx.Exec(ctx, `
UPDATE trial_usages
SET is_active = FALSE, updated_at = NOW()
WHERE store_id = $1 AND is_active
`, storeID); err != nil {
		return fmt.Errorf("deactivate trial usage: %w", err)
	}

	return nil
}
