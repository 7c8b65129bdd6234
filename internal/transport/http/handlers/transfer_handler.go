package handlers

import (
	"errors"
	"net/http"

	"github.com/restodesk/backend/internal/domain/enums"
	pgrepo "github.com/restodesk/backend/internal/repo/postgres"
	authsvc "github.com/restodesk/backend/internal/services/auth"
	transfersvc "github.com/restodesk/backend/internal/services/transfers"
	"github.com/restodesk/backend/internal/transport/http/dto"
	httperrors "github.com/restodesk/backend/internal/transport/http/errors"
)

type TransferHandler struct {
	service *transfersvc.Service
}

func NewTransferHandler(service *transfersvc.Service) *TransferHandler {
	return &TransferHandler{service: service}
}

func (h *TransferHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "TRANSFER_SERVICE_UNAVAILABLE", "transfer service is unavailable")
		return
	}

	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	var req dto.InitiateTransferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}

	rec, err := h.service.Initiate(r.Context(), identity.UserID, req.StoreID, req.NewOwnerEmail)
	if err != nil {
		handleTransferError(w, err)
		return
	}

	httperrors.Write(w, http.StatusCreated, mapTransfer(rec))
}

func (h *TransferHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "TRANSFER_SERVICE_UNAVAILABLE", "transfer service is unavailable")
		return
	}

	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	transferID, ok := urlParamInt64(r, "transferID")
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid transfer id")
		return
	}

	var req dto.VerifyTransferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}

	rec, err := h.service.VerifyOTP(r.Context(), identity.UserID, transferID, req.OTP)
	if err != nil {
		var mismatch *transfersvc.OTPMismatchError
		if errors.As(err, &mismatch) {
			out := dto.TransferResponse{
				Status:            string(enums.TransferStatusPendingOTP),
				AttemptsRemaining: &mismatch.AttemptsRemaining,
			}
			httperrors.Write(w, http.StatusUnauthorized, out)
			return
		}
		handleTransferError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, mapTransfer(rec))
}

func (h *TransferHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "TRANSFER_SERVICE_UNAVAILABLE", "transfer service is unavailable")
		return
	}

	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	transferID, ok := urlParamInt64(r, "transferID")
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid transfer id")
		return
	}

	var req dto.CancelTransferRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
			return
		}
	}

	rec, err := h.service.Cancel(r.Context(), identity.UserID, transferID, req.Reason)
	if err != nil {
		handleTransferError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, mapTransfer(rec))
}

func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "TRANSFER_SERVICE_UNAVAILABLE", "transfer service is unavailable")
		return
	}

	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	transferID, ok := urlParamInt64(r, "transferID")
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid transfer id")
		return
	}

	rec, err := h.service.Get(r.Context(), identity.UserID, transferID)
	if err != nil {
		handleTransferError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, mapTransfer(rec))
}

// mapTransfer never exposes the OTP code.
func mapTransfer(rec pgrepo.OwnershipTransferRecord) dto.TransferResponse {
	return dto.TransferResponse{
		ID:            rec.ID,
		StoreID:       rec.StoreID,
		NewOwnerEmail: rec.NewOwnerEmail,
		Status:        string(rec.Status),
		OTPExpiresAt:  rec.OTPExpiresAt,
		CompletedAt:   rec.CompletedAt,
		CreatedAt:     rec.CreatedAt,
	}
}

func handleTransferError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, transfersvc.ErrValidation):
		writeBadRequest(w, "VALIDATION_ERROR", "request validation failed")
	case errors.Is(err, transfersvc.ErrNotFound):
		writeNotFound(w, "TRANSFER_NOT_FOUND", "transfer not found")
	case errors.Is(err, transfersvc.ErrForbidden):
		writeForbidden(w, "FORBIDDEN", "insufficient permissions")
	case errors.Is(err, transfersvc.ErrConflict):
		writeConflict(w, "PENDING_TRANSFER_EXISTS", "store already has a pending transfer")
	case errors.Is(err, transfersvc.ErrInvalidTransition):
		writeConflict(w, "INVALID_TRANSITION", "transfer state does not allow this operation")
	case errors.Is(err, transfersvc.ErrOTPExpired):
		writeUnauthorized(w, "OTP_EXPIRED", "verification code expired")
	case errors.Is(err, transfersvc.ErrTooManyAttempts):
		writeUnauthorized(w, "TOO_MANY_ATTEMPTS", "transfer cancelled after too many attempts")
	default:
		writeInternal(w, "INTERNAL_ERROR", "internal server error")
	}
}
