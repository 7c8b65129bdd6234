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

var ErrRefundRequestNotFound = errors.New("refund request not found")

type RefundRequestRecord struct {
	ID               int64
	StoreID          int64
	SubscriptionID   int64
	PaymentRequestID int64
	Amount           int64
	Reason           string
	Status           enums.RefundStatus
	RequestedBy      int64
	RequestedAt      time.Time
	ReviewedBy       *int64
	ReviewedAt       *time.Time
	ReviewNotes      *string
	ProcessedAt      *time.Time
}

type RefundRequestRepo struct {
	pool *pgxpool.Pool
}

func NewRefundRequestRepo(pool *pgxpool.Pool) *RefundRequestRepo {
	return &RefundRequestRepo{pool: pool}
}

const refundColumns = `
	id,
	store_id,
	subscription_id,
	payment_request_id,
	amount,
	reason,
	status,
	requested_by,
	requested_at,
	reviewed_by,
	reviewed_at,
	review_notes,
	processed_at
`

func scanRefundRequest(row pgx.Row) (RefundRequestRecord, error) {
	var (
		rec    RefundRequestRecord
		status string
	)
	err := row.Scan(
		&rec.ID,
		&rec.StoreID,
		&rec.SubscriptionID,
		&rec.PaymentRequestID,
		&rec.Amount,
		&rec.Reason,
		&status,
		&rec.RequestedBy,
		&rec.RequestedAt,
		&rec.ReviewedBy,
		&rec.ReviewedAt,
		&rec.ReviewNotes,
		&rec.ProcessedAt,
	)
	if err != nil {
		return RefundRequestRecord{}, err
	}
	rec.Status = enums.RefundStatus(status)
	return rec, nil
}

func (r *RefundRequestRepo) Create(
	ctx context.Context,
	storeID, subscriptionID, paymentRequestID, requestedBy int64,
	amount int64,
	reason string,
	now time.Time,
) (RefundRequestRecord, error) {
	if storeID <= 0 || subscriptionID <= 0 || paymentRequestID <= 0 || requestedBy <= 0 || strings.TrimSpace(reason) == "" {
		return RefundRequestRecord{}, fmt.Errorf("invalid refund request payload")
	}
	if r.pool == nil {
		return RefundRequestRecord{}, fmt.Errorf("postgres pool is nil")
	}

	rec, err := scanRefundRequest(r.pool.QueryRow(ctx, `
INSERT INTO refund_requests (
	store_id,
	subscription_id,
	payment_request_id,
	amount,
	reason,
	status,
	requested_by,
	requested_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+refundColumns+`
`, storeID, subscriptionID, paymentRequestID, amount, reason,
		string(enums.RefundStatusRequested), requestedBy, now))
	if err != nil {
		return RefundRequestRecord{}, fmt.Errorf("create refund request: %w", err)
	}

	return rec, nil
}

func (r *RefundRequestRepo) GetByID(ctx context.Context, refundID int64) (RefundRequestRecord, error) {
	if refundID <= 0 {
		return RefundRequestRecord{}, fmt.Errorf("invalid refund request id")
	}
	if r.pool == nil {
		return RefundRequestRecord{}, ErrRefundRequestNotFound
	}

	rec, err := scanRefundRequest(r.pool.QueryRow(ctx, `
SELECT `+refundColumns+`
FROM refund_requests
WHERE id = $1
LIMIT 1
`, refundID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RefundRequestRecord{}, ErrRefundRequestNotFound
		}
		return RefundRequestRecord{}, fmt.Errorf("get refund request: %w", err)
	}

	return rec, nil
}

func (r *RefundRequestRepo) ListByStore(ctx context.Context, storeID int64) ([]RefundRequestRecord, error) {
	if storeID <= 0 {
		return nil, fmt.Errorf("invalid store id")
	}
	if r.pool == nil {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
SELECT `+refundColumns+`
FROM refund_requests
WHERE store_id = $1
ORDER BY requested_at DESC
`, storeID)
	if err != nil {
		return nil, fmt.Errorf("list refund requests: %w", err)
	}
	defer rows.Close()

	var records []RefundRequestRecord
	for rows.Next() {
		rec, err := scanRefundRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan refund request: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refund requests: %w", err)
	}

	return records, nil
}

// UpdateStatus moves a refund request forward; fromStatus guards the
// transition so status stays monotonic.
func (r *RefundRequestRepo) UpdateStatus(
	ctx context.Context,
	refundID, reviewerID int64,
	fromStatus, toStatus enums.RefundStatus,
	notes string,
	now time.Time,
) error {
	if refundID <= 0 || fromStatus == "" || toStatus == "" {
		return fmt.Errorf("invalid refund status payload")
	}
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	var notesArg *string
	if trimmed := strings.TrimSpace(notes); trimmed != "" {
		notesArg = &trimmed
	}
	var reviewerArg *int64
	var reviewedAtArg *time.Time
	if reviewerID > 0 {
		reviewerArg = &reviewerID
		reviewedAtArg = &now
	}
	var processedArg *time.Time
	if toStatus == enums.RefundStatusProcessed {
		processedArg = &now
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE refund_requests
SET
	status = $2,
	reviewed_by = COALESCE($3, reviewed_by),
	reviewed_at = COALESCE($4, reviewed_at),
	review_notes = COALESCE($5, review_notes),
	processed_at = COALESCE($6, processed_at)
WHERE id = $1 AND status = $7
`, refundID, string(toStatus), reviewerArg, reviewedAtArg, notesArg, processedArg, string(fromStatus))
	if err != nil {
		return fmt.Errorf("update refund status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRefundRequestNotFound
	}

	return nil
}
