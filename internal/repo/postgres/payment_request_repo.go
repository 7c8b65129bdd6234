package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/restodesk/backend/internal/domain/enums"
)

var ErrPaymentRequestNotFound = errors.New("payment request not found")

type PaymentRequestRecord struct {
	ID                    int64
	StoreID               int64
	SubscriptionID        int64
	ReferenceNo           string
	RequestedTier         enums.Tier
	Amount                int64
	RequestedDurationDays int
	Status                enums.PaymentRequestStatus
	RequestedBy           int64
	RequestedAt           time.Time
	VerifiedBy            *int64
	VerifiedAt            *time.Time
	VerificationNotes     *string
	ActivatedBy           *int64
	ActivatedAt           *time.Time
	RejectedBy            *int64
	RejectedAt            *time.Time
	RejectionReason       *string
	PaymentProofPath      *string
}

type PaymentRequestMetricsRecord struct {
	PendingCount       int
	VerifiedCount      int
	RejectedCount      int
	AvgProcessingHours float64
}

type PaymentRequestRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentRequestRepo(pool *pgxpool.Pool) *PaymentRequestRepo {
	return &PaymentRequestRepo{pool: pool}
}

const paymentRequestColumns = `
	id,
	store_id,
	subscription_id,
	reference_no,
	requested_tier,
	amount,
	requested_duration_days,
	status,
	requested_by,
	requested_at,
	verified_by,
	verified_at,
	verification_notes,
	activated_by,
	activated_at,
	rejected_by,
	rejected_at,
	rejection_reason,
	payment_proof_path
`

func scanPaymentRequest(row pgx.Row) (PaymentRequestRecord, error) {
	var (
		rec    PaymentRequestRecord
		tier   string
		status string
	)
	err := row.Scan(
		&rec.ID,
		&rec.StoreID,
		&rec.SubscriptionID,
		&rec.ReferenceNo,
		&tier,
		&rec.Amount,
		&rec.RequestedDurationDays,
		&status,
		&rec.RequestedBy,
		&rec.RequestedAt,
		&rec.VerifiedBy,
		&rec.VerifiedAt,
		&rec.VerificationNotes,
		&rec.ActivatedBy,
		&rec.ActivatedAt,
		&rec.RejectedBy,
		&rec.RejectedAt,
		&rec.RejectionReason,
		&rec.PaymentProofPath,
	)
	if err != nil {
		return PaymentRequestRecord{}, err
	}
	rec.RequestedTier = enums.Tier(tier)
	rec.Status = enums.PaymentRequestStatus(status)
	return rec, nil
}

func (r *PaymentRequestRepo) Create(
	ctx context.Context,
	storeID, subscriptionID, requestedBy int64,
	referenceNo string,
	tier enums.Tier,
	amount int64,
	durationDays int,
	now time.Time,
) (PaymentRequestRecord, error) {
	if storeID <= 0 || subscriptionID <= 0 || requestedBy <= 0 || strings.TrimSpace(referenceNo) == "" {
		return PaymentRequestRecord{}, fmt.Errorf("invalid payment request payload")
	}
	if r.pool == nil {
		return PaymentRequestRecord{}, fmt.Errorf("postgres pool is nil")
	}

	rec, err := scanPaymentRequest(r.pool.QueryRow(ctx, `
INSERT INTO payment_requests (
	store_id,
	subscription_id,
	reference_no,
	requested_tier,
	amount,
	requested_duration_days,
	status,
	requested_by,
	requested_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING `+paymentRequestColumns+`
`, storeID, subscriptionID, referenceNo, string(tier), amount, durationDays,
		string(enums.PaymentRequestStatusPendingVerification), requestedBy, now))
	if err != nil {
		return PaymentRequestRecord{}, fmt.Errorf("create payment request: %w", err)
	}

	return rec, nil
}

func (r *PaymentRequestRepo) HasPendingForStore(ctx context.Context, storeID int64) (bool, error) {
	if storeID <= 0 {
		return false, fmt.Errorf("invalid store id")
	}
	if r.pool == nil {
		return false, nil
	}

	var exists bool
	err := r.pool.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1
	FROM payment_requests
	WHERE store_id = $1 AND status = $2
)
`, storeID, string(enums.PaymentRequestStatusPendingVerification)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pending payment request: %w", err)
	}

	return exists, nil
}

func (r *PaymentRequestRepo) GetByID(ctx context.Context, requestID int64) (PaymentRequestRecord, error) {
	if requestID <= 0 {
		return PaymentRequestRecord{}, fmt.Errorf("invalid payment request id")
	}
	if r.pool == nil {
		return PaymentRequestRecord{}, ErrPaymentRequestNotFound
	}

	rec, err := scanPaymentRequest(r.pool.QueryRow(ctx, `
SELECT `+paymentRequestColumns+`
FROM payment_requests
WHERE id = $1
LIMIT 1
`, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PaymentRequestRecord{}, ErrPaymentRequestNotFound
		}
		return PaymentRequestRecord{}, fmt.Errorf("get payment request: %w", err)
	}

	return rec, nil
}

func (r *PaymentRequestRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, requestID int64) (PaymentRequestRecord, error) {
	if tx == nil {
		return PaymentRequestRecord{}, fmt.Errorf("transaction is required")
	}
	if requestID <= 0 {
		return PaymentRequestRecord{}, fmt.Errorf("invalid payment request id")
	}

	rec, err := scanPaymentRequest(tx.QueryRow(ctx, `
SELECT `+paymentRequestColumns+`
FROM payment_requests
WHERE id = $1
FOR UPDATE
`, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PaymentRequestRecord{}, ErrPaymentRequestNotFound
		}
		return PaymentRequestRecord{}, fmt.Errorf("lock payment request: %w", err)
	}

	return rec, nil
}

func (r *PaymentRequestRepo) SetProofPath(ctx context.Context, requestID int64, proofPath string) error {
	if requestID <= 0 || strings.TrimSpace(proofPath) == "" {
		return fmt.Errorf("invalid proof path payload")
	}
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE payment_requests
SET payment_proof_path = $2
WHERE id = $1
`, requestID, proofPath)
	if err != nil {
		return fmt.Errorf("set payment proof path: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentRequestNotFound
	}

	return nil
}

func (r *PaymentRequestRepo) MarkVerifiedTx(ctx context.Context, tx pgx.Tx, requestID, adminID int64, notes string, now time.Time) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}
	if requestID <= 0 || adminID <= 0 {
		return fmt.Errorf("invalid verify payload")
	}

	var notesArg *string
	if trimmed := strings.TrimSpace(notes); trimmed != "" {
		notesArg = &trimmed
	}

	tag, err := tx.Exec(ctx, `
UPDATE payment_requests
SET
	status = $2,
	verified_by = $3,
	verified_at = $4,
	verification_notes = $5
WHERE id = $1 AND status = $6
`, requestID, string(enums.PaymentRequestStatusVerified), adminID, now, notesArg,
		string(enums.PaymentRequestStatusPendingVerification))
	if err != nil {
		return fmt.Errorf("mark payment request verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentRequestNotFound
	}

	return nil
}

func (r *PaymentRequestRepo) MarkActivatedTx(ctx context.Context, tx pgx.Tx, requestID, adminID int64, now time.Time) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}
	if requestID <= 0 || adminID <= 0 {
		return fmt.Errorf("invalid activate payload")
	}

	tag, err := tx.Exec(ctx, `
UPDATE payment_requests
SET
	status = $2,
	activated_by = $3,
	activated_at = $4
WHERE id = $1 AND status = $5
`, requestID, string(enums.PaymentRequestStatusActivated), adminID, now,
		string(enums.PaymentRequestStatusVerified))
	if err != nil {
		return fmt.Errorf("mark payment request activated: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentRequestNotFound
	}

	return nil
}

func (r *PaymentRequestRepo) MarkRejected(ctx context.Context, requestID, adminID int64, reason string, now time.Time) error {
	if requestID <= 0 || adminID <= 0 || strings.TrimSpace(reason) == "" {
		return fmt.Errorf("invalid reject payload")
	}
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE payment_requests
SET
	status = $2,
	rejected_by = $3,
	rejected_at = $4,
	rejection_reason = $5
WHERE id = $1 AND status = $6
`, requestID, string(enums.PaymentRequestStatusRejected), adminID, now, reason,
		string(enums.PaymentRequestStatusPendingVerification))
	if err != nil {
		return fmt.Errorf("mark payment request rejected: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentRequestNotFound
	}

	return nil
}

func (r *PaymentRequestRepo) ListByStore(ctx context.Context, storeID int64) ([]PaymentRequestRecord, error) {
	if storeID <= 0 {
		return nil, fmt.Errorf("invalid store id")
	}
	if r.pool == nil {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+paymentRequestColumns+`
FROM payment_requests
WHERE store_id = $1
ORDER BY requested_at DESC
`, storeID)
	if err != nil {
		return nil, fmt.Errorf("list payment requests by store: %w", err)
	}
	defer rows.Close()

	var records []PaymentRequestRecord
	for rows.Next() {
		rec, err := scanPaymentRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment request: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment requests: %w", err)
	}

	return records, nil
}

// ListByStatus returns one admin-queue page plus the total row count for that
// filter. An empty status lists every request.
func (r *PaymentRequestRepo) ListByStatus(ctx context.Context, status enums.PaymentRequestStatus, limit, offset int) ([]PaymentRequestRecord, int, error) {
	if limit <= 0 || offset < 0 {
		return nil, 0, fmt.Errorf("invalid pagination payload")
	}
	if r.pool == nil {
		return nil, 0, nil
	}

	var total int
	if err := r.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM payment_requests
WHERE ($1 = '' OR status = $1)
`, string(status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count payment requests: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+paymentRequestColumns+`
FROM payment_requests
WHERE ($1 = '' OR status = $1)
ORDER BY requested_at ASC
LIMIT $2 OFFSET $3
`, string(status), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list payment requests: %w", err)
	}
	defer rows.Close()

	var records []PaymentRequestRecord
	for rows.Next() {
		rec, err := scanPaymentRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan payment request: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate payment requests: %w", err)
	}

	return records, total, nil
}

func (r *PaymentRequestRepo) Metrics(ctx context.Context) (PaymentRequestMetricsRecord, error) {
	if r.pool == nil {
		return PaymentRequestMetricsRecord{}, nil
	}

	var rec PaymentRequestMetricsRecord
	err := r.pool.QueryRow(ctx, `
SELECT
	COUNT(*) FILTER (WHERE status = $1),
	COUNT(*) FILTER (WHERE status IN ($2, $3)),
	COUNT(*) FILTER (WHERE status = $4),
	COALESCE(AVG(EXTRACT(EPOCH FROM (verified_at - requested_at)) / 3600.0) FILTER (WHERE verified_at IS NOT NULL), 0)
FROM payment_requests
`,
		string(enums.PaymentRequestStatusPendingVerification),
		string(enums.PaymentRequestStatusVerified),
		string(enums.PaymentRequestStatusActivated),
		string(enums.PaymentRequestStatusRejected),
	).Scan(&rec.PendingCount, &rec.VerifiedCount, &rec.RejectedCount, &rec.AvgProcessingHours)
	if err != nil {
		return PaymentRequestMetricsRecord{}, fmt.Errorf("payment request metrics: %w", err)
	}

	return rec, nil
}
