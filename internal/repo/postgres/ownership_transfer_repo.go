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

var ErrTransferNotFound = errors.New("ownership transfer not found")

type OwnershipTransferRecord struct {
	ID                 int64
	StoreID            int64
	CurrentOwnerID     int64
	NewOwnerEmail      string
	NewOwnerID         *int64
	OTPCode            string
	OTPGeneratedAt     time.Time
	OTPExpiresAt       time.Time
	OTPAttempts        int
	Status             enums.TransferStatus
	CancellationReason *string
	VerifiedAt         *time.Time
	CompletedAt        *time.Time
	CreatedAt          time.Time
}

type OwnershipTransferRepo struct {
	pool *pgxpool.Pool
}

func NewOwnershipTransferRepo(pool *pgxpool.Pool) *OwnershipTransferRepo {
	return &OwnershipTransferRepo{pool: pool}
}

const transferColumns = `
	id,
	store_id,
	current_owner_id,
	new_owner_email,
	new_owner_id,
	otp_code,
	otp_generated_at,
	otp_expires_at,
	otp_attempts,
	status,
	cancellation_reason,
	verified_at,
	completed_at,
	created_at
`

func scanTransfer(row pgx.Row) (OwnershipTransferRecord, error) {
	var (
		rec    OwnershipTransferRecord
		status string
	)
	err := row.Scan(
		&rec.ID,
		&rec.StoreID,
		&rec.CurrentOwnerID,
		&rec.NewOwnerEmail,
		&rec.NewOwnerID,
		&rec.OTPCode,
		&rec.OTPGeneratedAt,
		&rec.OTPExpiresAt,
		&rec.OTPAttempts,
		&status,
		&rec.CancellationReason,
		&rec.VerifiedAt,
		&rec.CompletedAt,
		&rec.CreatedAt,
	)
	if err != nil {
		return OwnershipTransferRecord{}, err
	}
	rec.Status = enums.TransferStatus(status)
	return rec, nil
}

func (r *OwnershipTransferRepo) Create(
	ctx context.Context,
	storeID, currentOwnerID int64,
	newOwnerEmail, otpCode string,
	generatedAt, expiresAt time.Time,
) (OwnershipTransferRecord, error) {
	if storeID <= 0 || currentOwnerID <= 0 || strings.TrimSpace(newOwnerEmail) == "" || otpCode == "" {
		return OwnershipTransferRecord{}, fmt.Errorf("invalid transfer payload")
	}
	if r.pool == nil {
		return OwnershipTransferRecord{}, fmt.Errorf("postgres pool is nil")
	}

	rec, err := scanTransfer(r.pool.QueryRow(ctx, `
INSERT INTO ownership_transfers (
	store_id,
	current_owner_id,
	new_owner_email,
	otp_code,
	otp_generated_at,
	otp_expires_at,
	otp_attempts,
	status,
	created_at
) VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $5)
RETURNING `+transferColumns+`
`, storeID, currentOwnerID, strings.ToLower(strings.TrimSpace(newOwnerEmail)), otpCode,
		generatedAt, expiresAt, string(enums.TransferStatusPendingOTP)))
	if err != nil {
		return OwnershipTransferRecord{}, fmt.Errorf("create ownership transfer: %w", err)
	}

	return rec, nil
}

func (r *OwnershipTransferRepo) HasPendingForStore(ctx context.Context, storeID int64) (bool, error) {
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
	FROM ownership_transfers
	WHERE store_id = $1 AND status = $2
)
`, storeID, string(enums.TransferStatusPendingOTP)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pending transfer: %w", err)
	}

	return exists, nil
}

func (r *OwnershipTransferRepo) GetByID(ctx context.Context, transferID int64) (OwnershipTransferRecord, error) {
	if transferID <= 0 {
		return OwnershipTransferRecord{}, fmt.Errorf("invalid transfer id")
	}
	if r.pool == nil {
		return OwnershipTransferRecord{}, ErrTransferNotFound
	}

	rec, err := scanTransfer(r.pool.QueryRow(ctx, `
SELECT `+transferColumns+`
FROM ownership_transfers
WHERE id = $1
LIMIT 1
`, transferID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return OwnershipTransferRecord{}, ErrTransferNotFound
		}
		return OwnershipTransferRecord{}, fmt.Errorf("get ownership transfer: %w", err)
	}

	return rec, nil
}

// IncrementAttempts is deliberately a standalone write: a failed OTP guess
// must stay counted even though the verify request itself fails.
func (r *OwnershipTransferRepo) IncrementAttempts(ctx context.Context, transferID int64) (int, error) {
	if transferID <= 0 {
		return 0, fmt.Errorf("invalid transfer id")
	}
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	var attempts int
	err := r.pool.QueryRow(ctx, `
UPDATE ownership_transfers
SET otp_attempts = otp_attempts + 1
WHERE id = $1 AND status = $2
RETURNING otp_attempts
`, transferID, string(enums.TransferStatusPendingOTP)).Scan(&attempts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrTransferNotFound
		}
		return 0, fmt.Errorf("increment otp attempts: %w", err)
	}

	return attempts, nil
}

func (r *OwnershipTransferRepo) MarkExpired(ctx context.Context, transferID int64) error {
	return r.finish(ctx, transferID, enums.TransferStatusExpired, nil)
}

func (r *OwnershipTransferRepo) MarkCancelled(ctx context.Context, transferID int64, reason string) error {
	trimmed := strings.TrimSpace(reason)
	var reasonArg *string
	if trimmed != "" {
		reasonArg = &trimmed
	}
	return r.finish(ctx, transferID, enums.TransferStatusCancelled, reasonArg)
}

func (r *OwnershipTransferRepo) finish(ctx context.Context, transferID int64, status enums.TransferStatus, reason *string) error {
	if transferID <= 0 {
		return fmt.Errorf("invalid transfer id")
	}
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE ownership_transfers
SET status = $2, cancellation_reason = COALESCE($3, cancellation_reason)
WHERE id = $1 AND status = $4
`, transferID, string(status), reason, string(enums.TransferStatusPendingOTP))
	if err != nil {
		return fmt.Errorf("finish ownership transfer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransferNotFound
	}

	return nil
}

func (r *OwnershipTransferRepo) CompleteTx(ctx context.Context, tx pgx.Tx, transferID, newOwnerID int64, now time.Time) error {
	if tx == nil {
		return fmt.Errorf("transaction is required")
	}
	if transferID <= 0 || newOwnerID <= 0 {
		return fmt.Errorf("invalid transfer completion payload")
	}

	tag, err := tx.Exec(ctx, `
UPDATE ownership_transfers
SET
	status = $2,
	new_owner_id = $3,
	verified_at = $4,
	completed_at = $4
WHERE id = $1 AND status = $5
`, transferID, string(enums.TransferStatusCompleted), newOwnerID, now,
		string(enums.TransferStatusPendingOTP))
	if err != nil {
		return fmt.Errorf("complete ownership transfer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransferNotFound
	}

	return nil
}
