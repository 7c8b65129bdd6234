package subscriptions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/restodesk/backend/internal/domain/enums"
	pgrepo "github.com/restodesk/backend/internal/repo/postgres"
)

type stubSubscriptionStore struct {
	records map[int64]pgrepo.SubscriptionRecord

	activatedTier    enums.Tier
	downgraded       bool
	trialDeactivated bool
	setStatus        enums.SubscriptionStatus
}

func newStubSubscriptionStore() *stubSubscriptionStore {
	return &stubSubscriptionStore{records: map[int64]pgrepo.SubscriptionRecord{}}
}

func (s *stubSubscriptionStore) GetByStoreID(_ context.Context, storeID int64) (pgrepo.SubscriptionRecord, error) {
	rec, ok := s.records[storeID]
	if !ok {
		return pgrepo.SubscriptionRecord{}, pgrepo.ErrSubscriptionNotFound
	}
	return rec, nil
}

func (s *stubSubscriptionStore) GetByStoreIDForUpdate(ctx context.Context, _ pgx.Tx, storeID int64) (pgrepo.SubscriptionRecord, error) {
	return s.GetByStoreID(ctx, storeID)
}

func (s *stubSubscriptionStore) CreateDefault(_ context.Context, storeID int64, trialDays int, now time.Time) (pgrepo.SubscriptionRecord, error) {
	if rec, ok := s.records[storeID]; ok {
		return rec, nil
	}
	trialEnd := now.Add(time.Duration(trialDays) * 24 * time.Hour)
	rec := pgrepo.SubscriptionRecord{
		ID:             int64(len(s.records) + 1),
		StoreID:        storeID,
		Tier:           enums.TierFree,
		Status:         enums.SubscriptionStatusTrial,
		TrialStartedAt: &now,
		TrialEndsAt:    &trialEnd,
		CreatedAt:      now,
	}
	s.records[storeID] = rec
	return rec, nil
}

func (s *stubSubscriptionStore) ActivateTx(_ context.Context, _ pgx.Tx, storeID int64, tier enums.Tier, periodStart, periodEnd time.Time) error {
	rec := s.records[storeID]
	rec.Tier = tier
	rec.Status = enums.SubscriptionStatusActive
	rec.CurrentPeriodStart = &periodStart
	rec.CurrentPeriodEnd = &periodEnd
	s.records[storeID] = rec
	s.activatedTier = tier
	return nil
}

func (s *stubSubscriptionStore) DowngradeToFreeTx(_ context.Context, _ pgx.Tx, storeID int64) error {
	rec := s.records[storeID]
	rec.Tier = enums.TierFree
	rec.Status = enums.SubscriptionStatusCancelled
	rec.CurrentPeriodStart = nil
	rec.CurrentPeriodEnd = nil
	s.records[storeID] = rec
	s.downgraded = true
	return nil
}

func (s *stubSubscriptionStore) SetStatusTx(_ context.Context, _ pgx.Tx, storeID int64, status enums.SubscriptionStatus) error {
	rec := s.records[storeID]
	rec.Status = status
	s.records[storeID] = rec
	s.setStatus = status
	return nil
}

func (s *stubSubscriptionStore) DeactivateTrialUsageTx(context.Context, pgx.Tx, int64) error {
	s.trialDeactivated = true
	return nil
}

type stubAudit struct {
	actions []string
}

func (s *stubAudit) CreateLogInTx(_ context.Context, _ pgx.Tx, entry pgrepo.AuditEntry) error {
	s.actions = append(s.actions, entry.Action)
	return nil
}

type stubInvalidator struct {
	storeIDs []int64
}

func (s *stubInvalidator) Invalidate(_ context.Context, storeID int64) {
	s.storeIDs = append(s.storeIDs, storeID)
}

func newTestService(store *stubSubscriptionStore, audit *stubAudit) *Service {
	svc := NewService(Dependencies{Store: store, Audit: audit}, Config{})
	svc.now = func() time.Time { return time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC) }
	svc.runTx = func(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
		return fn(ctx, nil)
	}
	return svc
}

func TestGetTierForStoreDefaultsToFree(t *testing.T) {
	svc := newTestService(newStubSubscriptionStore(), &stubAudit{})

	tier, err := svc.GetTierForStore(context.Background(), 42)
	if err != nil {
		t.Fatalf("get tier: %v", err)
	}
	if tier != enums.TierFree {
		t.Fatalf("tier = %s, want FREE for a store without a subscription row", tier)
	}
}

func TestGetTierForStoreSuspendedReadsAsFree(t *testing.T) {
	store := newStubSubscriptionStore()
	store.records[42] = pgrepo.SubscriptionRecord{
		StoreID: 42,
		Tier:    enums.TierPremium,
		Status:  enums.SubscriptionStatusSuspended,
	}
	svc := newTestService(store, &stubAudit{})

	tier, err := svc.GetTierForStore(context.Background(), 42)
	if err != nil {
		t.Fatalf("get tier: %v", err)
	}
	if tier != enums.TierFree {
		t.Fatalf("tier = %s, suspended store must read as FREE", tier)
	}

	if store.records[42].Tier != enums.TierPremium {
		t.Fatal("stored tier must not be mutated by a read")
	}
}

func TestActivateThenCheckStatus(t *testing.T) {
	store := newStubSubscriptionStore()
	audit := &stubAudit{}
	svc := newTestService(store, audit)
	inv := &stubInvalidator{}
	svc.AttachUsageInvalidator(inv)

	if _, err := svc.Provision(context.Background(), 42); err != nil {
		t.Fatalf("provision: %v", err)
	}
	if err := svc.Activate(context.Background(), 99, 42, enums.TierStandard, 30); err != nil {
		t.Fatalf("activate: %v", err)
	}

	res, err := svc.CheckStatus(context.Background(), 42)
	if err != nil {
		t.Fatalf("check status: %v", err)
	}
	if res.Tier != enums.TierStandard || res.Status != enums.SubscriptionStatusActive || !res.IsActive {
		t.Fatalf("status = %+v", res)
	}
	if res.DaysRemaining != 30 {
		t.Fatalf("days remaining = %d, want 30", res.DaysRemaining)
	}
	if len(audit.actions) == 0 || audit.actions[len(audit.actions)-1] != "SUBSCRIPTION_ACTIVATED" {
		t.Fatalf("audit actions = %v", audit.actions)
	}
	if len(inv.storeIDs) != 1 || inv.storeIDs[0] != 42 {
		t.Fatalf("usage cache invalidations = %v", inv.storeIDs)
	}
}

func TestActivateRejectsFreeTier(t *testing.T) {
	svc := newTestService(newStubSubscriptionStore(), &stubAudit{})

	if err := svc.Activate(context.Background(), 99, 42, enums.TierFree, 30); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCheckStatusDetectsLazyExpiry(t *testing.T) {
	store := newStubSubscriptionStore()
	past := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	store.records[42] = pgrepo.SubscriptionRecord{
		StoreID:          42,
		Tier:             enums.TierStandard,
		Status:           enums.SubscriptionStatusActive,
		CurrentPeriodEnd: &past,
	}
	svc := newTestService(store, &stubAudit{})

	res, err := svc.CheckStatus(context.Background(), 42)
	if err != nil {
		t.Fatalf("check status: %v", err)
	}
	if res.Status != enums.SubscriptionStatusExpired || res.IsActive {
		t.Fatalf("status = %+v, want lazily detected EXPIRED", res)
	}
	if res.DaysRemaining != 0 {
		t.Fatalf("days remaining = %d, want 0", res.DaysRemaining)
	}

	if store.records[42].Status != enums.SubscriptionStatusActive {
		t.Fatal("stored status must not be mutated by a read")
	}
}

func TestCheckStatusTrialExpiry(t *testing.T) {
	store := newStubSubscriptionStore()
	past := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	store.records[42] = pgrepo.SubscriptionRecord{
		StoreID:     42,
		Tier:        enums.TierFree,
		Status:      enums.SubscriptionStatusTrial,
		TrialEndsAt: &past,
	}
	svc := newTestService(store, &stubAudit{})

	res, err := svc.CheckStatus(context.Background(), 42)
	if err != nil {
		t.Fatalf("check status: %v", err)
	}
	if res.Status != enums.SubscriptionStatusExpired || res.IsActive {
		t.Fatalf("status = %+v, want expired trial", res)
	}
}

func TestDowngradeToFree(t *testing.T) {
	store := newStubSubscriptionStore()
	future := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	store.records[42] = pgrepo.SubscriptionRecord{
		StoreID:          42,
		Tier:             enums.TierPremium,
		Status:           enums.SubscriptionStatusActive,
		CurrentPeriodEnd: &future,
	}
	audit := &stubAudit{}
	svc := newTestService(store, audit)

	if err := svc.DowngradeToFree(context.Background(), 99, 42, "refund processed"); err != nil {
		t.Fatalf("downgrade: %v", err)
	}
	if !store.downgraded || !store.trialDeactivated {
		t.Fatalf("downgraded=%v trialDeactivated=%v", store.downgraded, store.trialDeactivated)
	}
	if audit.actions[len(audit.actions)-1] != "SUBSCRIPTION_DOWNGRADED" {
		t.Fatalf("audit actions = %v", audit.actions)
	}
}

func TestSuspendAndReinstateResumesActivePeriod(t *testing.T) {
	store := newStubSubscriptionStore()
	future := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)
	store.records[42] = pgrepo.SubscriptionRecord{
		StoreID:          42,
		Tier:             enums.TierStandard,
		Status:           enums.SubscriptionStatusActive,
		CurrentPeriodEnd: &future,
	}
	svc := newTestService(store, &stubAudit{})

	if err := svc.Suspend(context.Background(), 99, 42, "chargeback dispute"); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if store.records[42].Status != enums.SubscriptionStatusSuspended {
		t.Fatalf("status = %s after suspend", store.records[42].Status)
	}

	if err := svc.Reinstate(context.Background(), 99, 42); err != nil {
		t.Fatalf("reinstate: %v", err)
	}
	if store.records[42].Status != enums.SubscriptionStatusActive {
		t.Fatalf("status = %s, a live period must resume ACTIVE", store.records[42].Status)
	}
	if store.downgraded {
		t.Fatal("a live period must not downgrade on reinstate")
	}
}

func TestReinstateLapsedPeriodDowngrades(t *testing.T) {
	store := newStubSubscriptionStore()
	past := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	store.records[42] = pgrepo.SubscriptionRecord{
		StoreID:          42,
		Tier:             enums.TierStandard,
		Status:           enums.SubscriptionStatusSuspended,
		CurrentPeriodEnd: &past,
	}
	svc := newTestService(store, &stubAudit{})

	if err := svc.Reinstate(context.Background(), 99, 42); err != nil {
		t.Fatalf("reinstate: %v", err)
	}
	if !store.downgraded {
		t.Fatal("a lapsed period must downgrade to FREE on reinstate")
	}
}

func TestReinstateRequiresSuspension(t *testing.T) {
	store := newStubSubscriptionStore()
	store.records[42] = pgrepo.SubscriptionRecord{
		StoreID: 42,
		Tier:    enums.TierStandard,
		Status:  enums.SubscriptionStatusActive,
	}
	svc := newTestService(store, &stubAudit{})

	if err := svc.Reinstate(context.Background(), 99, 42); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestSuspendTwiceFails(t *testing.T) {
	store := newStubSubscriptionStore()
	store.records[42] = pgrepo.SubscriptionRecord{
		StoreID: 42,
		Status:  enums.SubscriptionStatusActive,
	}
	svc := newTestService(store, &stubAudit{})

	if err := svc.Suspend(context.Background(), 99, 42, "fraud review"); err != nil {
		t.Fatalf("first suspend: %v", err)
	}
	if err := svc.Suspend(context.Background(), 99, 42, "fraud review"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second suspend should fail, got %v", err)
	}
}
