// Package refunds handles money-back requests against activated payment
// requests. Approval and processing are separate admin steps; processing is
// what actually downgrades the store.
package refunds

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/restodesk/backend/internal/domain/enums"
	pgrepo "github.com/restodesk/backend/internal/repo/postgres"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("refund request not found")
	ErrInvalidTransition = errors.New("invalid refund transition")
)

const minRefundReasonLen = 10

type RefundStore interface {
	Create(ctx context.Context, storeID, subscriptionID, paymentRequestID, requestedBy int64, amount int64, reason string, now time.Time) (pgrepo.RefundRequestRecord, error)
	GetByID(ctx context.Context, refundID int64) (pgrepo.RefundRequestRecord, error)
	ListByStore(ctx context.Context, storeID int64) ([]pgrepo.RefundRequestRecord, error)
	UpdateStatus(ctx context.Context, refundID, reviewerID int64, fromStatus, toStatus enums.RefundStatus, notes string, now time.Time) error
}

type PaymentRequestStore interface {
	GetByID(ctx context.Context, requestID int64) (pgrepo.PaymentRequestRecord, error)
}

type Downgrader interface {
	DowngradeToFree(ctx context.Context, actorID, storeID int64, reason string) error
}

type Authorizer interface {
	CheckStorePermission(ctx context.Context, userID, storeID int64, allowed ...enums.StoreRole) error
	CheckPlatformAdmin(ctx context.Context, userID int64) error
}

type AuditStore interface {
	CreateLog(ctx context.Context, entry pgrepo.AuditEntry) error
}

type Dependencies struct {
	Refunds       RefundStore
	Payments      PaymentRequestStore
	Subscriptions Downgrader
	Authorizer    Authorizer
	Audit         AuditStore
}

type Service struct {
	refunds       RefundStore
	payments      PaymentRequestStore
	subscriptions Downgrader
	authorizer    Authorizer
	audit         AuditStore
	now           func() time.Time
}

func NewService(deps Dependencies) *Service {
	return &Service{
		refunds:       deps.Refunds,
		payments:      deps.Payments,
		subscriptions: deps.Subscriptions,
		authorizer:    deps.Authorizer,
		audit:         deps.Audit,
		now:           time.Now,
	}
}

// Create opens a refund request against an activated payment. The refundable
// amount is the amount actually paid, taken from the payment request rather
// than the live price table.
func (s *Service) Create(ctx context.Context, userID, storeID, paymentRequestID int64, reason string) (pgrepo.RefundRequestRecord, error) {
	reason = strings.TrimSpace(reason)
	if userID <= 0 || storeID <= 0 || paymentRequestID <= 0 {
		return pgrepo.RefundRequestRecord{}, ErrValidation
	}
	if len(reason) < minRefundReasonLen {
		return pgrepo.RefundRequestRecord{}, ErrValidation
	}
	if s.refunds == nil || s.payments == nil || s.authorizer == nil || s.audit == nil {
		return pgrepo.RefundRequestRecord{}, fmt.Errorf("refund dependencies are not configured")
	}

	if err := s.authorizer.CheckStorePermission(ctx, userID, storeID, enums.StoreRoleOwner); err != nil {
		return pgrepo.RefundRequestRecord{}, err
	}

	payment, err := s.payments.GetByID(ctx, paymentRequestID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrPaymentRequestNotFound) {
			return pgrepo.RefundRequestRecord{}, ErrNotFound
		}
		return pgrepo.RefundRequestRecord{}, err
	}
	if payment.StoreID != storeID {
		return pgrepo.RefundRequestRecord{}, ErrValidation
	}
	if payment.Status != enums.PaymentRequestStatusActivated {
		return pgrepo.RefundRequestRecord{}, ErrInvalidTransition
	}

	now := s.now().UTC()
	rec, err := s.refunds.Create(ctx, storeID, payment.SubscriptionID, paymentRequestID, userID, payment.Amount, reason, now)
	if err != nil {
		return pgrepo.RefundRequestRecord{}, err
	}

	if err := s.audit.CreateLog(ctx, pgrepo.AuditEntry{
		StoreID:    storeID,
		UserID:     userID,
		Action:     "REFUND_REQUESTED",
		EntityType: "refund_request",
		EntityID:   rec.ID,
		Details: map[string]any{
			"payment_request_id": paymentRequestID,
			"amount":             rec.Amount,
		},
	}); err != nil {
		return pgrepo.RefundRequestRecord{}, err
	}

	return rec, nil
}

func (s *Service) Get(ctx context.Context, userID, refundID int64) (pgrepo.RefundRequestRecord, error) {
	if userID <= 0 || refundID <= 0 {
		return pgrepo.RefundRequestRecord{}, ErrValidation
	}
	if s.refunds == nil || s.authorizer == nil {
		return pgrepo.RefundRequestRecord{}, fmt.Errorf("refund dependencies are not configured")
	}

	rec, err := s.getRecord(ctx, refundID)
	if err != nil {
		return pgrepo.RefundRequestRecord{}, err
	}
	if err := s.checkReadAccess(ctx, userID, rec.StoreID); err != nil {
		return pgrepo.RefundRequestRecord{}, err
	}
	return rec, nil
}

func (s *Service) ListByStore(ctx context.Context, userID, storeID int64) ([]pgrepo.RefundRequestRecord, error) {
	if userID <= 0 || storeID <= 0 {
		return nil, ErrValidation
	}
	if s.refunds == nil || s.authorizer == nil {
		return nil, fmt.Errorf("refund dependencies are not configured")
	}

	if err := s.checkReadAccess(ctx, userID, storeID); err != nil {
		return nil, err
	}
	return s.refunds.ListByStore(ctx, storeID)
}

func (s *Service) Approve(ctx context.Context, adminID, refundID int64, notes string) (pgrepo.RefundRequestRecord, error) {
	return s.review(ctx, adminID, refundID, enums.RefundStatusRequested, enums.RefundStatusApproved, "REFUND_APPROVED", notes)
}

func (s *Service) Reject(ctx context.Context, adminID, refundID int64, notes string) (pgrepo.RefundRequestRecord, error) {
	if len(strings.TrimSpace(notes)) < minRefundReasonLen {
		return pgrepo.RefundRequestRecord{}, ErrValidation
	}
	return s.review(ctx, adminID, refundID, enums.RefundStatusRequested, enums.RefundStatusRejected, "REFUND_REJECTED", notes)
}

// Process finalizes an approved refund and downgrades the store to FREE.
// The money movement itself happens off-platform; this records that it did.
func (s *Service) Process(ctx context.Context, adminID, refundID int64, notes string) (pgrepo.RefundRequestRecord, error) {
	if s.subscriptions == nil {
		return pgrepo.RefundRequestRecord{}, fmt.Errorf("refund dependencies are not configured")
	}

	rec, err := s.review(ctx, adminID, refundID, enums.RefundStatusApproved, enums.RefundStatusProcessed, "REFUND_PROCESSED", notes)
	if err != nil {
		return pgrepo.RefundRequestRecord{}, err
	}

	if err := s.subscriptions.DowngradeToFree(ctx, adminID, rec.StoreID, "refund processed"); err != nil {
		return pgrepo.RefundRequestRecord{}, fmt.Errorf("downgrade after refund: %w", err)
	}

	return rec, nil
}

func (s *Service) review(ctx context.Context, adminID, refundID int64, from, to enums.RefundStatus, action, notes string) (pgrepo.RefundRequestRecord, error) {
	if adminID <= 0 || refundID <= 0 {
		return pgrepo.RefundRequestRecord{}, ErrValidation
	}
	if s.refunds == nil || s.authorizer == nil || s.audit == nil {
		return pgrepo.RefundRequestRecord{}, fmt.Errorf("refund dependencies are not configured")
	}

	if err := s.authorizer.CheckPlatformAdmin(ctx, adminID); err != nil {
		return pgrepo.RefundRequestRecord{}, err
	}

	rec, err := s.getRecord(ctx, refundID)
	if err != nil {
		return pgrepo.RefundRequestRecord{}, err
	}
	if rec.Status != from {
		return pgrepo.RefundRequestRecord{}, ErrInvalidTransition
	}

	now := s.now().UTC()
	if err := s.refunds.UpdateStatus(ctx, refundID, adminID, from, to, strings.TrimSpace(notes), now); err != nil {
		if errors.Is(err, pgrepo.ErrRefundRequestNotFound) {
			return pgrepo.RefundRequestRecord{}, ErrInvalidTransition
		}
		return pgrepo.RefundRequestRecord{}, err
	}

	if err := s.audit.CreateLog(ctx, pgrepo.AuditEntry{
		StoreID:    rec.StoreID,
		UserID:     adminID,
		Action:     action,
		EntityType: "refund_request",
		EntityID:   rec.ID,
		Details: map[string]any{
			"notes": strings.TrimSpace(notes),
		},
	}); err != nil {
		return pgrepo.RefundRequestRecord{}, err
	}

	return s.getRecord(ctx, refundID)
}

func (s *Service) getRecord(ctx context.Context, refundID int64) (pgrepo.RefundRequestRecord, error) {
	rec, err := s.refunds.GetByID(ctx, refundID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrRefundRequestNotFound) {
			return pgrepo.RefundRequestRecord{}, ErrNotFound
		}
		return pgrepo.RefundRequestRecord{}, err
	}
	return rec, nil
}

func (s *Service) checkReadAccess(ctx context.Context, userID, storeID int64) error {
	err := s.authorizer.CheckStorePermission(ctx, userID, storeID, enums.StoreRoleOwner, enums.StoreRoleAdmin)
	if err == nil {
		return nil
	}
	if adminErr := s.authorizer.CheckPlatformAdmin(ctx, userID); adminErr == nil {
		return nil
	}
	return err
}
