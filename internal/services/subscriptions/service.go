// Package subscriptions owns the billing state of a store: its tier, its
// lifecycle status and its period dates. Expiry is detected lazily on read;
// there is no background sweep.
package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/restodesk/backend/internal/domain/enums"
	"github.com/restodesk/backend/internal/domain/rules"
	pgrepo "github.com/restodesk/backend/internal/repo/postgres"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("subscription not found")
	ErrInvalidTransition = errors.New("invalid subscription transition")
)

type SubscriptionStore interface {
	GetByStoreID(ctx context.Context, storeID int64) (pgrepo.SubscriptionRecord, error)
	GetByStoreIDForUpdate(ctx context.Context, tx pgx.Tx, storeID int64) (pgrepo.SubscriptionRecord, error)
	CreateDefault(ctx context.Context, storeID int64, trialDays int, now time.Time) (pgrepo.SubscriptionRecord, error)
	ActivateTx(ctx context.Context, tx pgx.Tx, storeID int64, tier enums.Tier, periodStart, periodEnd time.Time) error
	DowngradeToFreeTx(ctx context.Context, tx pgx.Tx, storeID int64) error
	SetStatusTx(ctx context.Context, tx pgx.Tx, storeID int64, status enums.SubscriptionStatus) error
	DeactivateTrialUsageTx(ctx context.Context, tx pgx.Tx, storeID int64) error
}

type AuditStore interface {
	CreateLogInTx(ctx context.Context, tx pgx.Tx, entry pgrepo.AuditEntry) error
}

// UsageInvalidator drops the cached usage snapshot after a tier change so
// the next quota check recomputes against the new limits.
type UsageInvalidator interface {
	Invalidate(ctx context.Context, storeID int64)
}

type Config struct {
	TrialDays int
}

type StatusResult struct {
	Tier               enums.Tier
	Status             enums.SubscriptionStatus
	IsActive           bool
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	TrialEndsAt        *time.Time
	DaysRemaining      int
}

type Dependencies struct {
	Pool  *pgxpool.Pool
	Store SubscriptionStore
	Audit AuditStore
}

type Service struct {
	pool        *pgxpool.Pool
	store       SubscriptionStore
	audit       AuditStore
	invalidator UsageInvalidator
	cfg         Config
	now         func() time.Time
	runTx       func(ctx context.Context, fn func(context.Context, pgx.Tx) error) error
}

func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.TrialDays <= 0 {
		cfg.TrialDays = rules.DefaultTrialDays
	}

	s := &Service{
		pool:  deps.Pool,
		store: deps.Store,
		audit: deps.Audit,
		cfg:   cfg,
		now:   time.Now,
	}
	s.runTx = func(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
		return pgrepo.WithTx(ctx, s.pool, fn)
	}
	return s
}

func (s *Service) AttachUsageInvalidator(inv UsageInvalidator) {
	s.invalidator = inv
}

// Provision creates the default FREE/TRIAL subscription for a new store.
// Idempotent: an existing row is returned unchanged.
func (s *Service) Provision(ctx context.Context, storeID int64) (pgrepo.SubscriptionRecord, error) {
	if storeID <= 0 {
		return pgrepo.SubscriptionRecord{}, ErrValidation
	}
	if s.store == nil {
		return pgrepo.SubscriptionRecord{}, fmt.Errorf("subscription store is nil")
	}

	return s.store.CreateDefault(ctx, storeID, s.cfg.TrialDays, s.now().UTC())
}

func (s *Service) Get(ctx context.Context, storeID int64) (pgrepo.SubscriptionRecord, error) {
	if storeID <= 0 {
		return pgrepo.SubscriptionRecord{}, ErrValidation
	}
	if s.store == nil {
		return pgrepo.SubscriptionRecord{}, fmt.Errorf("subscription store is nil")
	}

	rec, err := s.store.GetByStoreID(ctx, storeID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrSubscriptionNotFound) {
			return pgrepo.SubscriptionRecord{}, ErrNotFound
		}
		return pgrepo.SubscriptionRecord{}, err
	}

	return rec, nil
}

// GetTierForStore returns the effective tier: FREE when no subscription row
// exists and FREE while suspended, without mutating the stored tier.
func (s *Service) GetTierForStore(ctx context.Context, storeID int64) (enums.Tier, error) {
	if storeID <= 0 {
		return "", ErrValidation
	}
	if s.store == nil {
		return "", fmt.Errorf("subscription store is nil")
	}

	rec, err := s.store.GetByStoreID(ctx, storeID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrSubscriptionNotFound) {
			return enums.TierFree, nil
		}
		return "", err
	}

	if rec.Status == enums.SubscriptionStatusSuspended {
		return enums.TierFree, nil
	}

	return rec.Tier, nil
}

// CheckStatus reports the subscription state, detecting period and trial
// expiry lazily against the clock. The stored tier is left untouched; only
// an explicit downgrade corrects it.
func (s *Service) CheckStatus(ctx context.Context, storeID int64) (StatusResult, error) {
	rec, err := s.Get(ctx, storeID)
	if err != nil {
		return StatusResult{}, err
	}

	now := s.now().UTC()
	status := rec.Status
	isActive := status == enums.SubscriptionStatusActive || status == enums.SubscriptionStatusTrial

	var expiresAt *time.Time
	switch status {
	case enums.SubscriptionStatusActive:
		expiresAt = rec.CurrentPeriodEnd
	case enums.SubscriptionStatusTrial:
		expiresAt = rec.TrialEndsAt
	}
	if isActive && expiresAt != nil && now.After(*expiresAt) {
		status = enums.SubscriptionStatusExpired
		isActive = false
	}

	daysRemaining := 0
	if isActive && expiresAt != nil {
		daysRemaining = int(expiresAt.Sub(now).Hours() / 24)
		if daysRemaining < 0 {
			daysRemaining = 0
		}
	}

	return StatusResult{
		Tier:               rec.Tier,
		Status:             status,
		IsActive:           isActive,
		CurrentPeriodStart: rec.CurrentPeriodStart,
		CurrentPeriodEnd:   rec.CurrentPeriodEnd,
		TrialEndsAt:        rec.TrialEndsAt,
		DaysRemaining:      daysRemaining,
	}, nil
}

// ActivateInTx runs the activation inside the caller's transaction. The
// payment verification flow uses this so verify, activate and mark-activated
// commit atomically.
func (s *Service) ActivateInTx(ctx context.Context, tx pgx.Tx, actorID, storeID int64, tier enums.Tier, durationDays int) error {
	if actorID <= 0 || storeID <= 0 || durationDays <= 0 {
		return ErrValidation
	}
	if !tier.Valid() || tier == enums.TierFree {
		return ErrValidation
	}
	if s.store == nil || s.audit == nil {
		return fmt.Errorf("subscription dependencies are not configured")
	}

	if _, err := s.store.GetByStoreIDForUpdate(ctx, tx, storeID); err != nil {
		if errors.Is(err, pgrepo.ErrSubscriptionNotFound) {
			return ErrNotFound
		}
		return err
	}

	now := s.now().UTC()
	periodEnd := now.Add(time.Duration(durationDays) * 24 * time.Hour)
	if err := s.store.ActivateTx(ctx, tx, storeID, tier, now, periodEnd); err != nil {
		return err
	}

	return s.audit.CreateLogInTx(ctx, tx, pgrepo.AuditEntry{
		StoreID:    storeID,
		UserID:     actorID,
		Action:     "SUBSCRIPTION_ACTIVATED",
		EntityType: "subscription",
		EntityID:   storeID,
		Details: map[string]any{
			"tier":          string(tier),
			"duration_days": durationDays,
			"period_end":    periodEnd.Format(time.RFC3339),
		},
	})
}

func (s *Service) Activate(ctx context.Context, actorID, storeID int64, tier enums.Tier, durationDays int) error {
	err := s.runTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		return s.ActivateInTx(txCtx, tx, actorID, storeID, tier, durationDays)
	})
	if err != nil {
		return err
	}

	s.invalidateUsage(ctx, storeID)
	return nil
}

// DowngradeToFree resets the store to the FREE tier: suspensions running
// out, expirations and refunds all land here.
func (s *Service) DowngradeToFree(ctx context.Context, actorID, storeID int64, reason string) error {
	if actorID <= 0 || storeID <= 0 {
		return ErrValidation
	}
	if s.store == nil || s.audit == nil {
		return fmt.Errorf("subscription dependencies are not configured")
	}

	err := s.runTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		if _, err := s.store.GetByStoreIDForUpdate(txCtx, tx, storeID); err != nil {
			if errors.Is(err, pgrepo.ErrSubscriptionNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := s.store.DowngradeToFreeTx(txCtx, tx, storeID); err != nil {
			return err
		}
		if err := s.store.DeactivateTrialUsageTx(txCtx, tx, storeID); err != nil {
			return err
		}
		return s.audit.CreateLogInTx(txCtx, tx, pgrepo.AuditEntry{
			StoreID:    storeID,
			UserID:     actorID,
			Action:     "SUBSCRIPTION_DOWNGRADED",
			EntityType: "subscription",
			EntityID:   storeID,
			Details: map[string]any{
				"reason": reason,
			},
		})
	})
	if err != nil {
		return err
	}

	s.invalidateUsage(ctx, storeID)
	return nil
}

func (s *Service) Suspend(ctx context.Context, adminID, storeID int64, reason string) error {
	return s.setStatus(ctx, adminID, storeID, enums.SubscriptionStatusSuspended, "SUBSCRIPTION_SUSPENDED", reason)
}

// Reinstate lifts a suspension. A subscription whose period already lapsed
// while suspended comes back as FREE rather than resuming a dead period.
func (s *Service) Reinstate(ctx context.Context, adminID, storeID int64) error {
	if adminID <= 0 || storeID <= 0 {
		return ErrValidation
	}
	if s.store == nil || s.audit == nil {
		return fmt.Errorf("subscription dependencies are not configured")
	}

	err := s.runTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		rec, err := s.store.GetByStoreIDForUpdate(txCtx, tx, storeID)
		if err != nil {
			if errors.Is(err, pgrepo.ErrSubscriptionNotFound) {
				return ErrNotFound
			}
			return err
		}
		if rec.Status != enums.SubscriptionStatusSuspended {
			return ErrInvalidTransition
		}

		now := s.now().UTC()
		if rec.Tier != enums.TierFree && rec.CurrentPeriodEnd != nil && rec.CurrentPeriodEnd.After(now) {
			if err := s.store.SetStatusTx(txCtx, tx, storeID, enums.SubscriptionStatusActive); err != nil {
				return err
			}
		} else {
			if err := s.store.DowngradeToFreeTx(txCtx, tx, storeID); err != nil {
				return err
			}
			if err := s.store.DeactivateTrialUsageTx(txCtx, tx, storeID); err != nil {
				return err
			}
		}

		return s.audit.CreateLogInTx(txCtx, tx, pgrepo.AuditEntry{
			StoreID:    storeID,
			UserID:     adminID,
			Action:     "SUBSCRIPTION_REINSTATED",
			EntityType: "subscription",
			EntityID:   storeID,
		})
	})
	if err != nil {
		return err
	}

	s.invalidateUsage(ctx, storeID)
	return nil
}

func (s *Service) setStatus(ctx context.Context, adminID, storeID int64, status enums.SubscriptionStatus, action, reason string) error {
	if adminID <= 0 || storeID <= 0 {
		return ErrValidation
	}
	if s.store == nil || s.audit == nil {
		return fmt.Errorf("subscription dependencies are not configured")
	}

	err := s.runTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		rec, err := s.store.GetByStoreIDForUpdate(txCtx, tx, storeID)
		if err != nil {
			if errors.Is(err, pgrepo.ErrSubscriptionNotFound) {
				return ErrNotFound
			}
			return err
		}
		if rec.Status == status {
			return ErrInvalidTransition
		}
		if err := s.store.SetStatusTx(txCtx, tx, storeID, status); err != nil {
			return err
		}
		return s.audit.CreateLogInTx(txCtx, tx, pgrepo.AuditEntry{
			StoreID:    storeID,
			UserID:     adminID,
			Action:     action,
			EntityType: "subscription",
			EntityID:   storeID,
			Details: map[string]any{
				"reason": reason,
			},
		})
	})
	if err != nil {
		return err
	}

	s.invalidateUsage(ctx, storeID)
	return nil
}

func (s *Service) invalidateUsage(ctx context.Context, storeID int64) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, storeID)
	}
}

// PriceFor is the tier price table; amounts are snapshotted onto payment
// requests at creation time.
func (s *Service) PriceFor(tier enums.Tier) int64 {
	return rules.PriceFor(tier)
}
