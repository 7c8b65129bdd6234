package handlers

import (
	"errors"
	"net/http"

	"github.com/restodesk/backend/internal/domain/enums"
	authsvc "github.com/restodesk/backend/internal/services/auth"
	authzsvc "github.com/restodesk/backend/internal/services/authz"
	subssvc "github.com/restodesk/backend/internal/services/subscriptions"
	"github.com/restodesk/backend/internal/transport/http/dto"
	httperrors "github.com/restodesk/backend/internal/transport/http/errors"
)

type SubscriptionHandler struct {
	service    *subssvc.Service
	authorizer *authzsvc.Service
}

func NewSubscriptionHandler(service *subssvc.Service, authorizer *authzsvc.Service) *SubscriptionHandler {
	return &SubscriptionHandler{service: service, authorizer: authorizer}
}

// Get reports the store's subscription status, with expiry evaluated at
// read time.
func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.service == nil || h.authorizer == nil {
		writeInternal(w, "SUBSCRIPTION_SERVICE_UNAVAILABLE", "subscription service is unavailable")
		return
	}

	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	storeID, ok := urlParamInt64(r, "storeID")
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid store id")
		return
	}

	if err := h.authorizer.CheckStorePermission(r.Context(), identity.UserID, storeID,
		enums.StoreRoleOwner, enums.StoreRoleAdmin, enums.StoreRoleStaff); err != nil {
		handleAuthzError(w, err)
		return
	}

	res, err := h.service.CheckStatus(r.Context(), storeID)
	if err != nil {
		handleSubscriptionError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.SubscriptionResponse{
		Tier:               string(res.Tier),
		Status:             string(res.Status),
		IsActive:           res.IsActive,
		CurrentPeriodStart: res.CurrentPeriodStart,
		CurrentPeriodEnd:   res.CurrentPeriodEnd,
		TrialEndsAt:        res.TrialEndsAt,
		DaysRemaining:      res.DaysRemaining,
	})
}

func (h *SubscriptionHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	h.adminTransition(w, r, func(adminID, storeID int64, reason string) error {
		return h.service.Suspend(r.Context(), adminID, storeID, reason)
	})
}

func (h *SubscriptionHandler) Reinstate(w http.ResponseWriter, r *http.Request) {
	h.adminTransition(w, r, func(adminID, storeID int64, _ string) error {
		return h.service.Reinstate(r.Context(), adminID, storeID)
	})
}

func (h *SubscriptionHandler) Downgrade(w http.ResponseWriter, r *http.Request) {
	h.adminTransition(w, r, func(adminID, storeID int64, reason string) error {
		return h.service.DowngradeToFree(r.Context(), adminID, storeID, reason)
	})
}

func (h *SubscriptionHandler) adminTransition(w http.ResponseWriter, r *http.Request, fn func(adminID, storeID int64, reason string) error) {
	if h.service == nil || h.authorizer == nil {
		writeInternal(w, "SUBSCRIPTION_SERVICE_UNAVAILABLE", "subscription service is unavailable")
		return
	}

	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	storeID, ok := urlParamInt64(r, "storeID")
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid store id")
		return
	}

	if err := h.authorizer.CheckPlatformAdmin(r.Context(), identity.UserID); err != nil {
		handleAuthzError(w, err)
		return
	}

	var req dto.SuspendSubscriptionRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
			return
		}
	}

	if err := fn(identity.UserID, storeID, req.Reason); err != nil {
		handleSubscriptionError(w, err)
		return
	}

	res, err := h.service.CheckStatus(r.Context(), storeID)
	if err != nil {
		handleSubscriptionError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.SubscriptionResponse{
		Tier:               string(res.Tier),
		Status:             string(res.Status),
		IsActive:           res.IsActive,
		CurrentPeriodStart: res.CurrentPeriodStart,
		CurrentPeriodEnd:   res.CurrentPeriodEnd,
		TrialEndsAt:        res.TrialEndsAt,
		DaysRemaining:      res.DaysRemaining,
	})
}

func handleSubscriptionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, subssvc.ErrValidation):
		writeBadRequest(w, "VALIDATION_ERROR", "request validation failed")
	case errors.Is(err, subssvc.ErrNotFound):
		writeNotFound(w, "SUBSCRIPTION_NOT_FOUND", "subscription not found")
	case errors.Is(err, subssvc.ErrInvalidTransition):
		writeConflict(w, "INVALID_TRANSITION", "subscription state does not allow this operation")
	default:
		writeInternal(w, "INTERNAL_ERROR", "internal server error")
	}
}

func handleAuthzError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authzsvc.ErrValidation):
		writeBadRequest(w, "VALIDATION_ERROR", "request validation failed")
	case errors.Is(err, authzsvc.ErrForbidden):
		writeForbidden(w, "FORBIDDEN", "insufficient permissions")
	default:
		writeInternal(w, "INTERNAL_ERROR", "internal server error")
	}
}
