// Package paymentrequests drives the two-party payment verification saga:
// a store owner requests a paid tier and uploads proof of a bank transfer,
// a platform admin verifies it, and verification activates the subscription.
package paymentrequests

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/restodesk/backend/internal/domain/enums"
	"github.com/restodesk/backend/internal/domain/rules"
	pgrepo "github.com/restodesk/backend/internal/repo/postgres"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrNotFound            = errors.New("payment request not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidTransition   = errors.New("invalid payment request transition")
	ErrConflict            = errors.New("store already has a pending payment request")
	ErrFreeTierNotBillable = errors.New("free tier has nothing to pay for")
)

const minRejectionReasonLen = 10

type RequestStore interface {
	Create(ctx context.Context, storeID, subscriptionID, requestedBy int64, referenceNo string, tier enums.Tier, amount int64, durationDays int, now time.Time) (pgrepo.PaymentRequestRecord, error)
	HasPendingForStore(ctx context.Context, storeID int64) (bool, error)
	GetByID(ctx context.Context, requestID int64) (pgrepo.PaymentRequestRecord, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, requestID int64) (pgrepo.PaymentRequestRecord, error)
	SetProofPath(ctx context.Context, requestID int64, proofPath string) error
	MarkVerifiedTx(ctx context.Context, tx pgx.Tx, requestID, adminID int64, notes string, now time.Time) error
	MarkActivatedTx(ctx context.Context, tx pgx.Tx, requestID, adminID int64, now time.Time) error
	MarkRejected(ctx context.Context, requestID, adminID int64, reason string, now time.Time) error
	ListByStore(ctx context.Context, storeID int64) ([]pgrepo.PaymentRequestRecord, error)
	ListByStatus(ctx context.Context, status enums.PaymentRequestStatus, limit, offset int) ([]pgrepo.PaymentRequestRecord, int, error)
	Metrics(ctx context.Context) (pgrepo.PaymentRequestMetricsRecord, error)
}

type SubscriptionLifecycle interface {
	Get(ctx context.Context, storeID int64) (pgrepo.SubscriptionRecord, error)
	ActivateInTx(ctx context.Context, tx pgx.Tx, actorID, storeID int64, tier enums.Tier, durationDays int) error
}

type Authorizer interface {
	CheckStorePermission(ctx context.Context, userID, storeID int64, allowed ...enums.StoreRole) error
	CheckPlatformAdmin(ctx context.Context, userID int64) error
}

type ProofStorage interface {
	PutProof(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
}

type AuditStore interface {
	CreateLog(ctx context.Context, entry pgrepo.AuditEntry) error
	CreateLogInTx(ctx context.Context, tx pgx.Tx, entry pgrepo.AuditEntry) error
}

type AdminMetrics struct {
	PendingCount       int
	VerifiedCount      int
	RejectedCount      int
	AvgProcessingHours float64
}

type AdminPage struct {
	Requests []pgrepo.PaymentRequestRecord
	Total    int
	Page     int
	Limit    int
}

type Dependencies struct {
	Pool          *pgxpool.Pool
	Requests      RequestStore
	Subscriptions SubscriptionLifecycle
	Authorizer    Authorizer
	Proofs        ProofStorage
	Audit         AuditStore
}

type Service struct {
	pool          *pgxpool.Pool
	requests      RequestStore
	subscriptions SubscriptionLifecycle
	authorizer    Authorizer
	proofs        ProofStorage
	audit         AuditStore
	cfg           Config
	now           func() time.Time
	runTx         func(ctx context.Context, fn func(context.Context, pgx.Tx) error) error
}

type Config struct {
	// DurationDays is how long a verified payment extends the
	// subscription for. It is snapshotted onto each request at creation.
	DurationDays int
}

func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.DurationDays <= 0 {
		cfg.DurationDays = rules.DefaultSubscriptionDays
	}

	s := &Service{
		pool:          deps.Pool,
		requests:      deps.Requests,
		subscriptions: deps.Subscriptions,
		authorizer:    deps.Authorizer,
		proofs:        deps.Proofs,
		audit:         deps.Audit,
		cfg:           cfg,
		now:           time.Now,
	}
	s.runTx = func(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
		return pgrepo.WithTx(ctx, s.pool, fn)
	}
	return s
}

// Create opens a payment request at PENDING_VERIFICATION. Amount and
// duration are snapshotted from the price table now, so later price changes
// cannot retroactively alter an in-flight request. The subscription itself
// is untouched.
func (s *Service) Create(ctx context.Context, userID, storeID int64, tier enums.Tier) (pgrepo.PaymentRequestRecord, error) {
	if userID <= 0 || storeID <= 0 {
		return pgrepo.PaymentRequestRecord{}, ErrValidation
	}
	if !tier.Valid() {
		return pgrepo.PaymentRequestRecord{}, ErrValidation
	}
	if tier == enums.TierFree {
		return pgrepo.PaymentRequestRecord{}, ErrFreeTierNotBillable
	}
	if s.requests == nil || s.subscriptions == nil || s.authorizer == nil || s.audit == nil {
		return pgrepo.PaymentRequestRecord{}, fmt.Errorf("payment request dependencies are not configured")
	}

	if err := s.authorizer.CheckStorePermission(ctx, userID, storeID, enums.StoreRoleOwner, enums.StoreRoleAdmin); err != nil {
		return pgrepo.PaymentRequestRecord{}, err
	}

	pending, err := s.requests.HasPendingForStore(ctx, storeID)
	if err != nil {
		return pgrepo.PaymentRequestRecord{}, err
	}
	if pending {
		return pgrepo.PaymentRequestRecord{}, ErrConflict
	}

	sub, err := s.subscriptions.Get(ctx, storeID)
	if err != nil {
		return pgrepo.PaymentRequestRecord{}, err
	}

	now := s.now().UTC()
	referenceNo := newReferenceNo(now)
	rec, err := s.requests.Create(ctx, storeID, sub.ID, userID, referenceNo, tier,
		rules.PriceFor(tier), s.cfg.DurationDays, now)
	if err != nil {
		return pgrepo.PaymentRequestRecord{}, err
	}

	if err := s.audit.CreateLog(ctx, pgrepo.AuditEntry{
		StoreID:    storeID,
		UserID:     userID,
		Action:     "PAYMENT_REQUEST_CREATED",
		EntityType: "payment_request",
		EntityID:   rec.ID,
		Details: map[string]any{
			"reference_no":   rec.ReferenceNo,
			"requested_tier": string(tier),
			"amount":         rec.Amount,
		},
	}); err != nil {
		return pgrepo.PaymentRequestRecord{}, err
	}

	return rec, nil
}

func newReferenceNo(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	return fmt.Sprintf("PAY-%s-%s", now.Format("20060102"), suffix)
}

// UploadProof stores the transfer receipt and records its path. Only the
// original requester may upload, and only while the request is still open.
// Status does not change.
func (s *Service) UploadProof(ctx context.Context, userID, requestID int64, filename, contentType string, size int64, body io.Reader) (pgrepo.PaymentRequestRecord, error) {
	if userID <= 0 || requestID <= 0 || body == nil || size <= 0 {
		return pgrepo.PaymentRequestRecord{}, ErrValidation
	}
	if s.requests == nil || s.proofs == nil || s.audit == nil {
		return pgrepo.PaymentRequestRecord{}, fmt.Errorf("payment request dependencies are not configured")
	}

	rec, err := s.getRecord(ctx, requestID)
	if err != nil {
		return pgrepo.PaymentRequestRecord{}, err
	}
	if rec.RequestedBy != userID {
		return pgrepo.PaymentRequestRecord{}, ErrForbidden
	}
	if rec.Status.Terminal() {
		return pgrepo.PaymentRequestRecord{}, ErrInvalidTransition
	}

	key := fmt.Sprintf("payment-proofs/%d/%s%s", rec.StoreID, uuid.NewString(), strings.ToLower(path.Ext(filename)))
	if err := s.proofs.PutProof(ctx, key, body, size, contentType); err != nil {
		return pgrepo.PaymentRequestRecord{}, fmt.Errorf("store payment proof: %w", err)
	}

	if err := s.requests.SetProofPath(ctx, requestID, key); err != nil {
		return pgrepo.PaymentRequestRecord{}, err
	}

	if err := s.audit.CreateLog(ctx, pgrepo.AuditEntry{
		StoreID:    rec.StoreID,
		UserID:     userID,
		Action:     "PAYMENT_PROOF_UPLOADED",
		EntityType: "payment_request",
		EntityID:   rec.ID,
		Details: map[string]any{
			"proof_path": key,
		},
	}); err != nil {
		return pgrepo.PaymentRequestRecord{}, err
	}

	rec.PaymentProofPath = &key
	return rec, nil
}

// Verify executes the terminal step of the saga as one transaction:
// mark VERIFIED, activate the subscription with the snapshotted tier and
// duration, mark ACTIVATED, append the audit entry. A crash anywhere rolls
// the whole sequence back; the request can never be left at VERIFIED with a
// silently activated subscription.
func (s *Service) Verify(ctx context.Context, adminID, requestID int64, notes string) (pgrepo.PaymentRequestRecord, error) {
	if adminID <= 0 || requestID <= 0 {
		return pgrepo.PaymentRequestRecord{}, ErrValidation
	}
	if s.requests == nil || s.subscriptions == nil || s.authorizer == nil || s.audit == nil {
		return pgrepo.PaymentRequestRecord{}, fmt.Errorf("payment request dependencies are not configured")
	}

	if err := s.authorizer.CheckPlatformAdmin(ctx, adminID); err != nil {
		return pgrepo.PaymentRequestRecord{}, err
	}

	err := s.runTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		rec, err := s.requests.GetByIDForUpdate(txCtx, tx, requestID)
		if err != nil {
			if errors.Is(err, pgrepo.ErrPaymentRequestNotFound) {
				return ErrNotFound
			}
			return err
		}
		if rec.Status != enums.PaymentRequestStatusPendingVerification {
			return ErrInvalidTransition
		}

		now := s.now().UTC()
		if err := s.requests.MarkVerifiedTx(txCtx, tx, requestID, adminID, notes, now); err != nil {
			return err
		}
		if err := s.subscriptions.ActivateInTx(txCtx, tx, adminID, rec.StoreID, rec.RequestedTier, rec.RequestedDurationDays); err != nil {
			return err
		}
		if err := s.requests.MarkActivatedTx(txCtx, tx, requestID, adminID, now); err != nil {
			return err
		}
		return s.audit.CreateLogInTx(txCtx, tx, pgrepo.AuditEntry{
			StoreID:    rec.StoreID,
			UserID:     adminID,
			Action:     "PAYMENT_REQUEST_VERIFIED",
			EntityType: "payment_request",
			EntityID:   rec.ID,
			Details: map[string]any{
				"reference_no":   rec.ReferenceNo,
				"requested_tier": string(rec.RequestedTier),
			},
		})
	})
	if err != nil {
		return pgrepo.PaymentRequestRecord{}, err
	}

	return s.getRecord(ctx, requestID)
}

// Reject is terminal and leaves the subscription untouched. Rejecting an
// already resolved request fails with ErrInvalidTransition rather than
// silently succeeding twice.
func (s *Service) Reject(ctx context.Context, adminID, requestID int64, reason string) (pgrepo.PaymentRequestRecord, error) {
	if adminID <= 0 || requestID <= 0 {
		return pgrepo.PaymentRequestRecord{}, ErrValidation
	}
	if len(strings.TrimSpace(reason)) < minRejectionReasonLen {
		return pgrepo.PaymentRequestRecord{}, ErrValidation
	}
	if s.requests == nil || s.authorizer == nil || s.audit == nil {
		return pgrepo.PaymentRequestRecord{}, fmt.Errorf("payment request dependencies are not configured")
	}

	if err := s.authorizer.CheckPlatformAdmin(ctx, adminID); err != nil {
		return pgrepo.PaymentRequestRecord{}, err
	}

	rec, err := s.getRecord(ctx, requestID)
	if err != nil {
		return pgrepo.PaymentRequestRecord{}, err
	}
	if rec.Status != enums.PaymentRequestStatusPendingVerification {
		return pgrepo.PaymentRequestRecord{}, ErrInvalidTransition
	}

	now := s.now().UTC()
	if err := s.requests.MarkRejected(ctx, requestID, adminID, strings.TrimSpace(reason), now); err != nil {
		if errors.Is(err, pgrepo.ErrPaymentRequestNotFound) {
			return pgrepo.PaymentRequestRecord{}, ErrInvalidTransition
		}
		return pgrepo.PaymentRequestRecord{}, err
	}

	if err := s.audit.CreateLog(ctx, pgrepo.AuditEntry{
		StoreID:    rec.StoreID,
		UserID:     adminID,
		Action:     "PAYMENT_REQUEST_REJECTED",
		EntityType: "payment_request",
		EntityID:   rec.ID,
		Details: map[string]any{
			"reason": strings.TrimSpace(reason),
		},
	}); err != nil {
		return pgrepo.PaymentRequestRecord{}, err
	}

	return s.getRecord(ctx, requestID)
}

func (s *Service) Get(ctx context.Context, userID, requestID int64) (pgrepo.PaymentRequestRecord, error) {
	if userID <= 0 || requestID <= 0 {
		return pgrepo.PaymentRequestRecord{}, ErrValidation
	}
	if s.requests == nil || s.authorizer == nil {
		return pgrepo.PaymentRequestRecord{}, fmt.Errorf("payment request dependencies are not configured")
	}

	rec, err := s.getRecord(ctx, requestID)
	if err != nil {
		return pgrepo.PaymentRequestRecord{}, err
	}

	if err := s.checkReadAccess(ctx, userID, rec.StoreID); err != nil {
		return pgrepo.PaymentRequestRecord{}, err
	}

	return rec, nil
}

func (s *Service) ListByStore(ctx context.Context, userID, storeID int64) ([]pgrepo.PaymentRequestRecord, error) {
	if userID <= 0 || storeID <= 0 {
		return nil, ErrValidation
	}
	if s.requests == nil || s.authorizer == nil {
		return nil, fmt.Errorf("payment request dependencies are not configured")
	}

	if err := s.checkReadAccess(ctx, userID, storeID); err != nil {
		return nil, err
	}

	return s.requests.ListByStore(ctx, storeID)
}

func (s *Service) AdminList(ctx context.Context, adminID int64, status string, page, limit int) (AdminPage, error) {
	if adminID <= 0 {
		return AdminPage{}, ErrValidation
	}
	if s.requests == nil || s.authorizer == nil {
		return AdminPage{}, fmt.Errorf("payment request dependencies are not configured")
	}

	if err := s.authorizer.CheckPlatformAdmin(ctx, adminID); err != nil {
		return AdminPage{}, err
	}

	normalizedStatus := enums.PaymentRequestStatus(strings.ToUpper(strings.TrimSpace(status)))
	switch normalizedStatus {
	case "", enums.PaymentRequestStatusPendingVerification, enums.PaymentRequestStatusVerified,
		enums.PaymentRequestStatusActivated, enums.PaymentRequestStatusRejected:
	default:
		return AdminPage{}, ErrValidation
	}

	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	records, total, err := s.requests.ListByStatus(ctx, normalizedStatus, limit, (page-1)*limit)
	if err != nil {
		return AdminPage{}, err
	}

	return AdminPage{
		Requests: records,
		Total:    total,
		Page:     page,
		Limit:    limit,
	}, nil
}

func (s *Service) AdminMetrics(ctx context.Context, adminID int64) (AdminMetrics, error) {
	if adminID <= 0 {
		return AdminMetrics{}, ErrValidation
	}
	if s.requests == nil || s.authorizer == nil {
		return AdminMetrics{}, fmt.Errorf("payment request dependencies are not configured")
	}

	if err := s.authorizer.CheckPlatformAdmin(ctx, adminID); err != nil {
		return AdminMetrics{}, err
	}

	rec, err := s.requests.Metrics(ctx)
	if err != nil {
		return AdminMetrics{}, err
	}

	return AdminMetrics{
		PendingCount:       rec.PendingCount,
		VerifiedCount:      rec.VerifiedCount,
		RejectedCount:      rec.RejectedCount,
		AvgProcessingHours: rec.AvgProcessingHours,
	}, nil
}

func (s *Service) getRecord(ctx context.Context, requestID int64) (pgrepo.PaymentRequestRecord, error) {
	rec, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrPaymentRequestNotFound) {
			return pgrepo.PaymentRequestRecord{}, ErrNotFound
		}
		return pgrepo.PaymentRequestRecord{}, err
	}
	return rec, nil
}

// checkReadAccess admits store owners/admins and platform admins.
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
