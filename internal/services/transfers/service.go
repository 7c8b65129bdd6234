// Package transfers moves store ownership between accounts behind an OTP
// challenge: the current owner initiates, the incoming owner proves control
// of their email with a short-lived code, and completion swaps the roles
// atomically.
package transfers

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/restodesk/backend/internal/domain/enums"
	pgrepo "github.com/restodesk/backend/internal/repo/postgres"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("transfer not found")
	ErrForbidden         = errors.New("forbidden")
	ErrConflict          = errors.New("store already has a pending transfer")
	ErrInvalidTransition = errors.New("invalid transfer transition")
	ErrOTPExpired        = errors.New("verification code expired")
	ErrTooManyAttempts   = errors.New("too many verification attempts")
)

// OTPMismatchError carries how many attempts remain, so the caller can warn
// the user before the transfer cancels itself.
type OTPMismatchError struct {
	AttemptsRemaining int
}

func (e *OTPMismatchError) Error() string {
	return fmt.Sprintf("verification code does not match, %d attempts remaining", e.AttemptsRemaining)
}

type TransferStore interface {
	Create(ctx context.Context, storeID, currentOwnerID int64, newOwnerEmail, otpCode string, generatedAt, expiresAt time.Time) (pgrepo.OwnershipTransferRecord, error)
	HasPendingForStore(ctx context.Context, storeID int64) (bool, error)
	GetByID(ctx context.Context, transferID int64) (pgrepo.OwnershipTransferRecord, error)
	IncrementAttempts(ctx context.Context, transferID int64) (int, error)
	MarkExpired(ctx context.Context, transferID int64) error
	MarkCancelled(ctx context.Context, transferID int64, reason string) error
	CompleteTx(ctx context.Context, tx pgx.Tx, transferID, newOwnerID int64, now time.Time) error
}

type MembershipStore interface {
	GetRole(ctx context.Context, userID, storeID int64) (enums.StoreRole, error)
	FindUserIDByEmail(ctx context.Context, email string) (int64, error)
	SetRoleTx(ctx context.Context, tx pgx.Tx, userID, storeID int64, role enums.StoreRole) error
	UpsertRoleTx(ctx context.Context, tx pgx.Tx, userID, storeID int64, role enums.StoreRole) error
}

type AuditStore interface {
	CreateLog(ctx context.Context, entry pgrepo.AuditEntry) error
	CreateLogInTx(ctx context.Context, tx pgx.Tx, entry pgrepo.AuditEntry) error
}

// Notifier delivers the OTP out of band. Optional: without one the code
// still lands in the database for support-assisted transfers.
type Notifier interface {
	SendTransferOTP(ctx context.Context, email, code string, expiresAt time.Time) error
}

type Config struct {
	OTPTTL      time.Duration
	MaxAttempts int
}

type Dependencies struct {
	Pool        *pgxpool.Pool
	Transfers   TransferStore
	Memberships MembershipStore
	Audit       AuditStore
}

type Service struct {
	pool        *pgxpool.Pool
	transfers   TransferStore
	memberships MembershipStore
	audit       AuditStore
	notifier    Notifier
	cfg         Config
	now         func() time.Time
	runTx       func(ctx context.Context, fn func(context.Context, pgx.Tx) error) error
}

func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = 15 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}

	s := &Service{
		pool:        deps.Pool,
		transfers:   deps.Transfers,
		memberships: deps.Memberships,
		audit:       deps.Audit,
		cfg:         cfg,
		now:         time.Now,
	}
	s.runTx = func(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
		return pgrepo.WithTx(ctx, s.pool, fn)
	}
	return s
}

func (s *Service) AttachNotifier(n Notifier) {
	s.notifier = n
}

func newOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Initiate opens a transfer and issues the OTP. Only the current owner may
// start one, and a store carries at most one pending transfer at a time.
// The code itself never reaches the audit log.
func (s *Service) Initiate(ctx context.Context, userID, storeID int64, newOwnerEmail string) (pgrepo.OwnershipTransferRecord, error) {
	newOwnerEmail = strings.ToLower(strings.TrimSpace(newOwnerEmail))
	if userID <= 0 || storeID <= 0 || newOwnerEmail == "" || !strings.Contains(newOwnerEmail, "@") {
		return pgrepo.OwnershipTransferRecord{}, ErrValidation
	}
	if s.transfers == nil || s.memberships == nil || s.audit == nil {
		return pgrepo.OwnershipTransferRecord{}, fmt.Errorf("transfer dependencies are not configured")
	}

	role, err := s.memberships.GetRole(ctx, userID, storeID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrMembershipNotFound) {
			return pgrepo.OwnershipTransferRecord{}, ErrForbidden
		}
		return pgrepo.OwnershipTransferRecord{}, err
	}
	if role != enums.StoreRoleOwner {
		return pgrepo.OwnershipTransferRecord{}, ErrForbidden
	}

	pending, err := s.transfers.HasPendingForStore(ctx, storeID)
	if err != nil {
		return pgrepo.OwnershipTransferRecord{}, err
	}
	if pending {
		return pgrepo.OwnershipTransferRecord{}, ErrConflict
	}

	if _, err := s.memberships.FindUserIDByEmail(ctx, newOwnerEmail); err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return pgrepo.OwnershipTransferRecord{}, ErrNotFound
		}
		return pgrepo.OwnershipTransferRecord{}, err
	}

	code, err := newOTPCode()
	if err != nil {
		return pgrepo.OwnershipTransferRecord{}, err
	}

	now := s.now().UTC()
	rec, err := s.transfers.Create(ctx, storeID, userID, newOwnerEmail, code, now, now.Add(s.cfg.OTPTTL))
	if err != nil {
		return pgrepo.OwnershipTransferRecord{}, err
	}

	if err := s.audit.CreateLog(ctx, pgrepo.AuditEntry{
		StoreID:    storeID,
		UserID:     userID,
		Action:     "OWNERSHIP_TRANSFER_INITIATED",
		EntityType: "ownership_transfer",
		EntityID:   rec.ID,
		Details: map[string]any{
			"new_owner_email": newOwnerEmail,
			"otp_expires_at":  rec.OTPExpiresAt.Format(time.RFC3339),
		},
	}); err != nil {
		return pgrepo.OwnershipTransferRecord{}, err
	}

	if s.notifier != nil {
		if err := s.notifier.SendTransferOTP(ctx, newOwnerEmail, code, rec.OTPExpiresAt); err != nil {
			return pgrepo.OwnershipTransferRecord{}, fmt.Errorf("send transfer otp: %w", err)
		}
	}

	return rec, nil
}

// VerifyOTP is the completion path. Expiry and attempt bookkeeping is
// written outside the completion transaction on purpose: a failed guess
// must stay counted even though the request errors.
func (s *Service) VerifyOTP(ctx context.Context, userID, transferID int64, code string) (pgrepo.OwnershipTransferRecord, error) {
	code = strings.TrimSpace(code)
	if userID <= 0 || transferID <= 0 || len(code) != 6 {
		return pgrepo.OwnershipTransferRecord{}, ErrValidation
	}
	if s.transfers == nil || s.memberships == nil || s.audit == nil {
		return pgrepo.OwnershipTransferRecord{}, fmt.Errorf("transfer dependencies are not configured")
	}

	rec, err := s.getRecord(ctx, transferID)
	if err != nil {
		return pgrepo.OwnershipTransferRecord{}, err
	}
	if rec.Status != enums.TransferStatusPendingOTP {
		return pgrepo.OwnershipTransferRecord{}, ErrInvalidTransition
	}

	newOwnerID, err := s.memberships.FindUserIDByEmail(ctx, rec.NewOwnerEmail)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return pgrepo.OwnershipTransferRecord{}, ErrForbidden
		}
		return pgrepo.OwnershipTransferRecord{}, err
	}
	if newOwnerID != userID {
		return pgrepo.OwnershipTransferRecord{}, ErrForbidden
	}

	now := s.now().UTC()
	if now.After(rec.OTPExpiresAt) {
		if err := s.transfers.MarkExpired(ctx, transferID); err != nil {
			return pgrepo.OwnershipTransferRecord{}, err
		}
		return pgrepo.OwnershipTransferRecord{}, ErrOTPExpired
	}

	if rec.OTPAttempts >= s.cfg.MaxAttempts {
		if err := s.transfers.MarkCancelled(ctx, transferID, "too many attempts"); err != nil {
			return pgrepo.OwnershipTransferRecord{}, err
		}
		return pgrepo.OwnershipTransferRecord{}, ErrTooManyAttempts
	}

	if subtle.ConstantTimeCompare([]byte(code), []byte(rec.OTPCode)) != 1 {
		attempts, err := s.transfers.IncrementAttempts(ctx, transferID)
		if err != nil {
			return pgrepo.OwnershipTransferRecord{}, err
		}
		if attempts >= s.cfg.MaxAttempts {
			if err := s.transfers.MarkCancelled(ctx, transferID, "too many attempts"); err != nil {
				return pgrepo.OwnershipTransferRecord{}, err
			}
			return pgrepo.OwnershipTransferRecord{}, ErrTooManyAttempts
		}
		return pgrepo.OwnershipTransferRecord{}, &OTPMismatchError{AttemptsRemaining: s.cfg.MaxAttempts - attempts}
	}

	err = s.runTx(ctx, func(txCtx context.Context, tx pgx.Tx) error {
		if err := s.transfers.CompleteTx(txCtx, tx, transferID, newOwnerID, now); err != nil {
			return err
		}
		if err := s.memberships.SetRoleTx(txCtx, tx, rec.CurrentOwnerID, rec.StoreID, enums.StoreRoleAdmin); err != nil {
			return err
		}
		if err := s.memberships.UpsertRoleTx(txCtx, tx, newOwnerID, rec.StoreID, enums.StoreRoleOwner); err != nil {
			return err
		}
		return s.audit.CreateLogInTx(txCtx, tx, pgrepo.AuditEntry{
			StoreID:    rec.StoreID,
			UserID:     userID,
			Action:     "OWNERSHIP_TRANSFER_COMPLETED",
			EntityType: "ownership_transfer",
			EntityID:   rec.ID,
			Details: map[string]any{
				"previous_owner_id": rec.CurrentOwnerID,
				"new_owner_id":      newOwnerID,
			},
		})
	})
	if err != nil {
		return pgrepo.OwnershipTransferRecord{}, err
	}

	return s.getRecord(ctx, transferID)
}

// Cancel aborts a pending transfer. Only the initiating owner may cancel.
func (s *Service) Cancel(ctx context.Context, userID, transferID int64, reason string) (pgrepo.OwnershipTransferRecord, error) {
	if userID <= 0 || transferID <= 0 {
		return pgrepo.OwnershipTransferRecord{}, ErrValidation
	}
	if s.transfers == nil || s.audit == nil {
		return pgrepo.OwnershipTransferRecord{}, fmt.Errorf("transfer dependencies are not configured")
	}

	rec, err := s.getRecord(ctx, transferID)
	if err != nil {
		return pgrepo.OwnershipTransferRecord{}, err
	}
	if rec.CurrentOwnerID != userID {
		return pgrepo.OwnershipTransferRecord{}, ErrForbidden
	}
	if rec.Status != enums.TransferStatusPendingOTP {
		return pgrepo.OwnershipTransferRecord{}, ErrInvalidTransition
	}

	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "cancelled by owner"
	}
	if err := s.transfers.MarkCancelled(ctx, transferID, reason); err != nil {
		return pgrepo.OwnershipTransferRecord{}, err
	}

	if err := s.audit.CreateLog(ctx, pgrepo.AuditEntry{
		StoreID:    rec.StoreID,
		UserID:     userID,
		Action:     "OWNERSHIP_TRANSFER_CANCELLED",
		EntityType: "ownership_transfer",
		EntityID:   rec.ID,
		Details: map[string]any{
			"reason": reason,
		},
	}); err != nil {
		return pgrepo.OwnershipTransferRecord{}, err
	}

	return s.getRecord(ctx, transferID)
}

// Get returns the transfer to either party.
func (s *Service) Get(ctx context.Context, userID, transferID int64) (pgrepo.OwnershipTransferRecord, error) {
	if userID <= 0 || transferID <= 0 {
		return pgrepo.OwnershipTransferRecord{}, ErrValidation
	}
	if s.transfers == nil || s.memberships == nil {
		return pgrepo.OwnershipTransferRecord{}, fmt.Errorf("transfer dependencies are not configured")
	}

	rec, err := s.getRecord(ctx, transferID)
	if err != nil {
		return pgrepo.OwnershipTransferRecord{}, err
	}

	if rec.CurrentOwnerID == userID {
		return rec, nil
	}
	if newOwnerID, err := s.memberships.FindUserIDByEmail(ctx, rec.NewOwnerEmail); err == nil && newOwnerID == userID {
		return rec, nil
	}
	return pgrepo.OwnershipTransferRecord{}, ErrForbidden
}

func (s *Service) getRecord(ctx context.Context, transferID int64) (pgrepo.OwnershipTransferRecord, error) {
	rec, err := s.transfers.GetByID(ctx, transferID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrTransferNotFound) {
			return pgrepo.OwnershipTransferRecord{}, ErrNotFound
		}
		return pgrepo.OwnershipTransferRecord{}, err
	}
	return rec, nil
}
