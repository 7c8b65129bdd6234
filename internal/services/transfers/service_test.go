package transfers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/restodesk/backend/internal/domain/enums"
	pgrepo "github.com/restodesk/backend/internal/repo/postgres"
)

type stubTransferStore struct {
	records map[int64]pgrepo.OwnershipTransferRecord
	pending bool
	nextID  int64
}

func newStubTransferStore() *stubTransferStore {
	return &stubTransferStore{records: map[int64]pgrepo.OwnershipTransferRecord{}, nextID: 1}
}

func (s *stubTransferStore) Create(_ context.Context, storeID, currentOwnerID int64, newOwnerEmail, otpCode string, generatedAt, expiresAt time.Time) (pgrepo.OwnershipTransferRecord, error) {
	rec := pgrepo.OwnershipTransferRecord{
		ID:             s.nextID,
		StoreID:        storeID,
		CurrentOwnerID: currentOwnerID,
		NewOwnerEmail:  newOwnerEmail,
		OTPCode:        otpCode,
		OTPGeneratedAt: generatedAt,
		OTPExpiresAt:   expiresAt,
		Status:         enums.TransferStatusPendingOTP,
		CreatedAt:      generatedAt,
	}
	s.nextID++
	s.records[rec.ID] = rec
	return rec, nil
}

func (s *stubTransferStore) HasPendingForStore(context.Context, int64) (bool, error) {
	return s.pending, nil
}

func (s *stubTransferStore) GetByID(_ context.Context, transferID int64) (pgrepo.OwnershipTransferRecord, error) {
	rec, ok := s.records[transferID]
	if !ok {
		return pgrepo.OwnershipTransferRecord{}, pgrepo.ErrTransferNotFound
	}
	return rec, nil
}

func (s *stubTransferStore) IncrementAttempts(_ context.Context, transferID int64) (int, error) {
	rec := s.records[transferID]
	rec.OTPAttempts++
	s.records[transferID] = rec
	return rec.OTPAttempts, nil
}

func (s *stubTransferStore) MarkExpired(_ context.Context, transferID int64) error {
	rec := s.records[transferID]
	rec.Status = enums.TransferStatusExpired
	s.records[transferID] = rec
	return nil
}

func (s *stubTransferStore) MarkCancelled(_ context.Context, transferID int64, reason string) error {
	rec := s.records[transferID]
	rec.Status = enums.TransferStatusCancelled
	rec.CancellationReason = &reason
	s.records[transferID] = rec
	return nil
}

func (s *stubTransferStore) CompleteTx(_ context.Context, _ pgx.Tx, transferID, newOwnerID int64, now time.Time) error {
	rec := s.records[transferID]
	rec.Status = enums.TransferStatusCompleted
	rec.NewOwnerID = &newOwnerID
	rec.VerifiedAt = &now
	rec.CompletedAt = &now
	s.records[transferID] = rec
	return nil
}

type stubMembershipStore struct {
	roles  map[int64]enums.StoreRole
	emails map[string]int64
	set    map[int64]enums.StoreRole
}

func newStubMembershipStore() *stubMembershipStore {
	return &stubMembershipStore{
		roles:  map[int64]enums.StoreRole{},
		emails: map[string]int64{},
		set:    map[int64]enums.StoreRole{},
	}
}

func (s *stubMembershipStore) GetRole(_ context.Context, userID, _ int64) (enums.StoreRole, error) {
	role, ok := s.roles[userID]
	if !ok {
		return "", pgrepo.ErrMembershipNotFound
	}
	return role, nil
}

func (s *stubMembershipStore) FindUserIDByEmail(_ context.Context, email string) (int64, error) {
	id, ok := s.emails[email]
	if !ok {
		return 0, pgrepo.ErrUserNotFound
	}
	return id, nil
}

func (s *stubMembershipStore) SetRoleTx(_ context.Context, _ pgx.Tx, userID, _ int64, role enums.StoreRole) error {
	s.set[userID] = role
	return nil
}

func (s *stubMembershipStore) UpsertRoleTx(_ context.Context, _ pgx.Tx, userID, _ int64, role enums.StoreRole) error {
	s.set[userID] = role
	return nil
}

type stubAudit struct {
	actions []string
}

func (s *stubAudit) CreateLog(_ context.Context, entry pgrepo.AuditEntry) error {
	s.actions = append(s.actions, entry.Action)
	return nil
}

func (s *stubAudit) CreateLogInTx(_ context.Context, _ pgx.Tx, entry pgrepo.AuditEntry) error {
	s.actions = append(s.actions, entry.Action)
	return nil
}

type fixture struct {
	svc         *Service
	transfers   *stubTransferStore
	memberships *stubMembershipStore
	audit       *stubAudit
	clock       *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	transfers := newStubTransferStore()
	memberships := newStubMembershipStore()
	memberships.roles[1] = enums.StoreRoleOwner
	memberships.emails["buyer@example.com"] = 2
	audit := &stubAudit{}

	svc := NewService(Dependencies{Transfers: transfers, Memberships: memberships, Audit: audit}, Config{})
	start := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	clock := &start
	svc.now = func() time.Time { return *clock }
	svc.runTx = func(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
		return fn(ctx, nil)
	}

	return &fixture{svc: svc, transfers: transfers, memberships: memberships, audit: audit, clock: clock}
}

func (f *fixture) initiate(t *testing.T) pgrepo.OwnershipTransferRecord {
	t.Helper()
	rec, err := f.svc.Initiate(context.Background(), 1, 10, "buyer@example.com")
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	return rec
}

func TestInitiateRequiresOwner(t *testing.T) {
	f := newFixture(t)
	f.memberships.roles[3] = enums.StoreRoleAdmin

	if _, err := f.svc.Initiate(context.Background(), 3, 10, "buyer@example.com"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("admin must not initiate a transfer, got %v", err)
	}
}

func TestInitiateConflictsOnPendingTransfer(t *testing.T) {
	f := newFixture(t)
	f.transfers.pending = true

	if _, err := f.svc.Initiate(context.Background(), 1, 10, "buyer@example.com"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestInitiateIssuesSixDigitCodeWithTTL(t *testing.T) {
	f := newFixture(t)

	rec := f.initiate(t)
	if len(rec.OTPCode) != 6 {
		t.Fatalf("otp %q is not six digits", rec.OTPCode)
	}
	for _, c := range rec.OTPCode {
		if c < '0' || c > '9' {
			t.Fatalf("otp %q contains a non-digit", rec.OTPCode)
		}
	}
	if got := rec.OTPExpiresAt.Sub(rec.OTPGeneratedAt); got != 15*time.Minute {
		t.Fatalf("otp ttl = %s, want 15m", got)
	}
	if len(f.audit.actions) != 1 || f.audit.actions[0] != "OWNERSHIP_TRANSFER_INITIATED" {
		t.Fatalf("audit actions = %v", f.audit.actions)
	}
}

func TestVerifyOTPHappyPathSwapsRoles(t *testing.T) {
	f := newFixture(t)
	rec := f.initiate(t)

	done, err := f.svc.VerifyOTP(context.Background(), 2, rec.ID, rec.OTPCode)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if done.Status != enums.TransferStatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", done.Status)
	}
	if done.NewOwnerID == nil || *done.NewOwnerID != 2 {
		t.Fatalf("new owner id = %v", done.NewOwnerID)
	}
	if f.memberships.set[1] != enums.StoreRoleAdmin {
		t.Fatalf("previous owner role = %s, want ADMIN", f.memberships.set[1])
	}
	if f.memberships.set[2] != enums.StoreRoleOwner {
		t.Fatalf("new owner role = %s, want OWNER", f.memberships.set[2])
	}
}

func TestVerifyOTPOnlyNewOwnerMayVerify(t *testing.T) {
	f := newFixture(t)
	rec := f.initiate(t)

	if _, err := f.svc.VerifyOTP(context.Background(), 1, rec.ID, rec.OTPCode); !errors.Is(err, ErrForbidden) {
		t.Fatalf("initiator must not verify, got %v", err)
	}
}

func TestVerifyOTPWrongCodeCountsAttempts(t *testing.T) {
	f := newFixture(t)
	rec := f.initiate(t)

	wrong := "000000"
	if wrong == rec.OTPCode {
		wrong = "000001"
	}

	_, err := f.svc.VerifyOTP(context.Background(), 2, rec.ID, wrong)
	var mismatch *OTPMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected OTPMismatchError, got %v", err)
	}
	if mismatch.AttemptsRemaining != 2 {
		t.Fatalf("attempts remaining = %d, want 2", mismatch.AttemptsRemaining)
	}
	if f.transfers.records[rec.ID].OTPAttempts != 1 {
		t.Fatalf("attempts = %d, a failed guess must persist", f.transfers.records[rec.ID].OTPAttempts)
	}

	done, err := f.svc.VerifyOTP(context.Background(), 2, rec.ID, rec.OTPCode)
	if err != nil {
		t.Fatalf("correct code after a wrong guess must succeed: %v", err)
	}
	if done.Status != enums.TransferStatusCompleted {
		t.Fatalf("status = %s", done.Status)
	}
}

func TestVerifyOTPThirdWrongGuessCancels(t *testing.T) {
	f := newFixture(t)
	rec := f.initiate(t)

	wrong := "000000"
	if wrong == rec.OTPCode {
		wrong = "000001"
	}

	for i := 0; i < 2; i++ {
		if _, err := f.svc.VerifyOTP(context.Background(), 2, rec.ID, wrong); err == nil {
			t.Fatal("wrong guess must error")
		}
	}

	_, err := f.svc.VerifyOTP(context.Background(), 2, rec.ID, wrong)
	if !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
	if f.transfers.records[rec.ID].Status != enums.TransferStatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", f.transfers.records[rec.ID].Status)
	}

	if _, err := f.svc.VerifyOTP(context.Background(), 2, rec.ID, rec.OTPCode); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancelled transfer must not verify, got %v", err)
	}
}

func TestVerifyOTPExpires(t *testing.T) {
	f := newFixture(t)
	rec := f.initiate(t)

	*f.clock = f.clock.Add(16 * time.Minute)

	_, err := f.svc.VerifyOTP(context.Background(), 2, rec.ID, rec.OTPCode)
	if !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("expected ErrOTPExpired, got %v", err)
	}
	if f.transfers.records[rec.ID].Status != enums.TransferStatusExpired {
		t.Fatalf("status = %s, want EXPIRED persisted", f.transfers.records[rec.ID].Status)
	}
}

func TestCancelInitiatorOnly(t *testing.T) {
	f := newFixture(t)
	rec := f.initiate(t)

	if _, err := f.svc.Cancel(context.Background(), 2, rec.ID, "changed my mind"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-initiator cancel must be forbidden, got %v", err)
	}

	done, err := f.svc.Cancel(context.Background(), 1, rec.ID, "changed my mind")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if done.Status != enums.TransferStatusCancelled {
		t.Fatalf("status = %s", done.Status)
	}

	if _, err := f.svc.Cancel(context.Background(), 1, rec.ID, "again"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancelling a finished transfer must fail, got %v", err)
	}
}
