// Package authz answers "may this user act on this store" questions for the
// entitlement core. Role data lives in the membership store; this service
// only decides.
package authz

import (
	"context"
	"errors"
	"fmt"

	"github.com/restodesk/backend/internal/domain/enums"
	pgrepo "github.com/restodesk/backend/internal/repo/postgres"
)

var (
	ErrValidation = errors.New("validation error")
	ErrForbidden  = errors.New("forbidden")
)

type MembershipStore interface {
	GetRole(ctx context.Context, userID, storeID int64) (enums.StoreRole, error)
	IsPlatformAdmin(ctx context.Context, userID int64) (bool, error)
}

type Service struct {
	memberships MembershipStore
}

func NewService(memberships MembershipStore) *Service {
	return &Service{memberships: memberships}
}

// CheckStorePermission fails with ErrForbidden unless the user holds one of
// the allowed roles on the store. A missing membership reads the same as an
// insufficient one.
func (s *Service) CheckStorePermission(ctx context.Context, userID, storeID int64, allowed ...enums.StoreRole) error {
	if userID <= 0 || storeID <= 0 || len(allowed) == 0 {
		return ErrValidation
	}
	if s.memberships == nil {
		return fmt.Errorf("membership store is nil")
	}

	role, err := s.memberships.GetRole(ctx, userID, storeID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrMembershipNotFound) {
			return ErrForbidden
		}
		return err
	}

	for _, want := range allowed {
		if role == want {
			return nil
		}
	}

	return ErrForbidden
}

func (s *Service) CheckPlatformAdmin(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return ErrValidation
	}
	if s.memberships == nil {
		return fmt.Errorf("membership store is nil")
	}

	isAdmin, err := s.memberships.IsPlatformAdmin(ctx, userID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return ErrForbidden
		}
		return err
	}
	if !isAdmin {
		return ErrForbidden
	}

	return nil
}
