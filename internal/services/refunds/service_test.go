package refunds

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/restodesk/backend/internal/domain/enums"
	pgrepo "github.com/restodesk/backend/internal/repo/postgres"
)

type stubRefundStore struct {
	records map[int64]pgrepo.RefundRequestRecord
	nextID  int64
}

func newStubRefundStore() *stubRefundStore {
	return &stubRefundStore{records: map[int64]pgrepo.RefundRequestRecord{}, nextID: 1}
}

func (s *stubRefundStore) Create(_ context.Context, storeID, subscriptionID, paymentRequestID, requestedBy int64, amount int64, reason string, now time.Time) (pgrepo.RefundRequestRecord, error) {
	rec := pgrepo.RefundRequestRecord{
		ID:               s.nextID,
		StoreID:          storeID,
		SubscriptionID:   subscriptionID,
		PaymentRequestID: paymentRequestID,
		Amount:           amount,
		Reason:           reason,
		Status:           enums.RefundStatusRequested,
		RequestedBy:      requestedBy,
		RequestedAt:      now,
	}
	s.nextID++
	s.records[rec.ID] = rec
	return rec, nil
}

func (s *stubRefundStore) GetByID(_ context.Context, refundID int64) (pgrepo.RefundRequestRecord, error) {
	rec, ok := s.records[refundID]
	if !ok {
		return pgrepo.RefundRequestRecord{}, pgrepo.ErrRefundRequestNotFound
	}
	return rec, nil
}

func (s *stubRefundStore) ListByStore(_ context.Context, storeID int64) ([]pgrepo.RefundRequestRecord, error) {
	var out []pgrepo.RefundRequestRecord
	for _, rec := range s.records {
		if rec.StoreID == storeID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *stubRefundStore) UpdateStatus(_ context.Context, refundID, reviewerID int64, fromStatus, toStatus enums.RefundStatus, notes string, now time.Time) error {
	rec, ok := s.records[refundID]
	if !ok || rec.Status != fromStatus {
		return pgrepo.ErrRefundRequestNotFound
	}
	rec.Status = toStatus
	rec.ReviewedBy = &reviewerID
	rec.ReviewedAt = &now
	rec.ReviewNotes = &notes
	if toStatus == enums.RefundStatusProcessed {
		rec.ProcessedAt = &now
	}
	s.records[refundID] = rec
	return nil
}

type stubPaymentStore struct {
	records map[int64]pgrepo.PaymentRequestRecord
}

func (s *stubPaymentStore) GetByID(_ context.Context, requestID int64) (pgrepo.PaymentRequestRecord, error) {
	rec, ok := s.records[requestID]
	if !ok {
		return pgrepo.PaymentRequestRecord{}, pgrepo.ErrPaymentRequestNotFound
	}
	return rec, nil
}

type stubDowngrader struct {
	storeIDs []int64
}

func (s *stubDowngrader) DowngradeToFree(_ context.Context, _, storeID int64, _ string) error {
	s.storeIDs = append(s.storeIDs, storeID)
	return nil
}

type stubAuthorizer struct{}

func (stubAuthorizer) CheckStorePermission(context.Context, int64, int64, ...enums.StoreRole) error {
	return nil
}

func (stubAuthorizer) CheckPlatformAdmin(context.Context, int64) error { return nil }

type stubAudit struct {
	actions []string
}

func (s *stubAudit) CreateLog(_ context.Context, entry pgrepo.AuditEntry) error {
	s.actions = append(s.actions, entry.Action)
	return nil
}

func newTestService(refundStore *stubRefundStore, payments *stubPaymentStore, downgrader *stubDowngrader) *Service {
	svc := NewService(Dependencies{
		Refunds:       refundStore,
		Payments:      payments,
		Subscriptions: downgrader,
		Authorizer:    stubAuthorizer{},
		Audit:         &stubAudit{},
	})
	svc.now = func() time.Time { return time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC) }
	return svc
}

func activatedPayment() *stubPaymentStore {
	return &stubPaymentStore{records: map[int64]pgrepo.PaymentRequestRecord{
		7: {
			ID:             7,
			StoreID:        10,
			SubscriptionID: 55,
			Amount:         2999,
			Status:         enums.PaymentRequestStatusActivated,
		},
	}}
}

func TestCreateSnapshotsPaidAmount(t *testing.T) {
	store := newStubRefundStore()
	svc := newTestService(store, activatedPayment(), &stubDowngrader{})

	rec, err := svc.Create(context.Background(), 1, 10, 7, "service was unusable for the whole period")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Amount != 2999 {
		t.Fatalf("amount = %d, want the paid 2999", rec.Amount)
	}
	if rec.Status != enums.RefundStatusRequested {
		t.Fatalf("status = %s", rec.Status)
	}
}

func TestCreateRequiresActivatedPayment(t *testing.T) {
	payments := activatedPayment()
	rec := payments.records[7]
	rec.Status = enums.PaymentRequestStatusPendingVerification
	payments.records[7] = rec
	svc := newTestService(newStubRefundStore(), payments, &stubDowngrader{})

	_, err := svc.Create(context.Background(), 1, 10, 7, "service was unusable for the whole period")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCreateRequiresReason(t *testing.T) {
	svc := newTestService(newStubRefundStore(), activatedPayment(), &stubDowngrader{})

	if _, err := svc.Create(context.Background(), 1, 10, 7, "bad"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestProcessDowngradesOnlyApproved(t *testing.T) {
	store := newStubRefundStore()
	downgrader := &stubDowngrader{}
	svc := newTestService(store, activatedPayment(), downgrader)

	rec, err := svc.Create(context.Background(), 1, 10, 7, "service was unusable for the whole period")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Process(context.Background(), 99, rec.ID, "wire sent"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("processing an unapproved refund must fail, got %v", err)
	}
	if len(downgrader.storeIDs) != 0 {
		t.Fatal("downgrade must not run for an unapproved refund")
	}

	if _, err := svc.Approve(context.Background(), 99, rec.ID, "verified with finance"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	done, err := svc.Process(context.Background(), 99, rec.ID, "wire sent")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if done.Status != enums.RefundStatusProcessed || done.ProcessedAt == nil {
		t.Fatalf("record = %+v", done)
	}
	if len(downgrader.storeIDs) != 1 || downgrader.storeIDs[0] != 10 {
		t.Fatalf("downgrades = %v", downgrader.storeIDs)
	}
}

func TestRejectRequiresNotes(t *testing.T) {
	store := newStubRefundStore()
	svc := newTestService(store, activatedPayment(), &stubDowngrader{})

	rec, err := svc.Create(context.Background(), 1, 10, 7, "service was unusable for the whole period")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Reject(context.Background(), 99, rec.ID, "no"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for short notes, got %v", err)
	}
}
