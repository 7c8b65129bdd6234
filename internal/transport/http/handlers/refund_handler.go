package handlers

import (
	"context"
	"errors"
	"net/http"

	pgrepo "github.com/restodesk/backend/internal/repo/postgres"
	authsvc "github.com/restodesk/backend/internal/services/auth"
	refundsvc "github.com/restodesk/backend/internal/services/refunds"
	"github.com/restodesk/backend/internal/transport/http/dto"
	httperrors "github.com/restodesk/backend/internal/transport/http/errors"
)

type RefundHandler struct {
	service *refundsvc.Service
}

func NewRefundHandler(service *refundsvc.Service) *RefundHandler {
	return &RefundHandler{service: service}
}

func (h *RefundHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "REFUND_SERVICE_UNAVAILABLE", "refund service is unavailable")
		return
	}

	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	var req dto.CreateRefundRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}

	rec, err := h.service.Create(r.Context(), identity.UserID, req.StoreID, req.PaymentRequestID, req.Reason)
	if err != nil {
		handleRefundError(w, err)
		return
	}

	httperrors.Write(w, http.StatusCreated, mapRefund(rec))
}

func (h *RefundHandler) ListByStore(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "REFUND_SERVICE_UNAVAILABLE", "refund service is unavailable")
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

	records, err := h.service.ListByStore(r.Context(), identity.UserID, storeID)
	if err != nil {
		handleRefundError(w, err)
		return
	}

	out := make([]dto.RefundResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, mapRefund(rec))
	}
	httperrors.Write(w, http.StatusOK, dto.RefundListResponse{Refunds: out})
}

func (h *RefundHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.service.Approve)
}

func (h *RefundHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.service.Reject)
}

func (h *RefundHandler) Process(w http.ResponseWriter, r *http.Request) {
	h.review(w, r, h.service.Process)
}

func (h *RefundHandler) review(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, adminID, refundID int64, notes string) (pgrepo.RefundRequestRecord, error)) {
	if h.service == nil {
		writeInternal(w, "REFUND_SERVICE_UNAVAILABLE", "refund service is unavailable")
		return
	}

	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	refundID, ok := urlParamInt64(r, "refundID")
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid refund id")
		return
	}

	var req dto.ReviewRefundRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
			return
		}
	}

	rec, err := fn(r.Context(), identity.UserID, refundID, req.Notes)
	if err != nil {
		handleRefundError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, mapRefund(rec))
}

func mapRefund(rec pgrepo.RefundRequestRecord) dto.RefundResponse {
	return dto.RefundResponse{
		ID:               rec.ID,
		StoreID:          rec.StoreID,
		PaymentRequestID: rec.PaymentRequestID,
		Amount:           rec.Amount,
		Reason:           rec.Reason,
		Status:           string(rec.Status),
		RequestedAt:      rec.RequestedAt,
		ReviewedAt:       rec.ReviewedAt,
		ReviewNotes:      rec.ReviewNotes,
		ProcessedAt:      rec.ProcessedAt,
	}
}

func handleRefundError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, refundsvc.ErrValidation):
		writeBadRequest(w, "VALIDATION_ERROR", "request validation failed")
	case errors.Is(err, refundsvc.ErrNotFound):
		writeNotFound(w, "REFUND_NOT_FOUND", "refund request not found")
	case errors.Is(err, refundsvc.ErrInvalidTransition):
		writeConflict(w, "INVALID_TRANSITION", "refund state does not allow this operation")
	default:
		handleAuthzError(w, err)
	}
}
