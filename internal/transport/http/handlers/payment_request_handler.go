package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/restodesk/backend/internal/domain/enums"
	pgrepo "github.com/restodesk/backend/internal/repo/postgres"
	authsvc "github.com/restodesk/backend/internal/services/auth"
	paysvc "github.com/restodesk/backend/internal/services/paymentrequests"
	"github.com/restodesk/backend/internal/transport/http/dto"
	httperrors "github.com/restodesk/backend/internal/transport/http/errors"
)

const maxProofSize = 10 << 20

// ProofPresigner issues short-lived download URLs for stored proofs.
type ProofPresigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type PaymentRequestHandler struct {
	service   *paysvc.Service
	presigner ProofPresigner
}

func NewPaymentRequestHandler(service *paysvc.Service, presigner ProofPresigner) *PaymentRequestHandler {
	return &PaymentRequestHandler{service: service, presigner: presigner}
}

func (h *PaymentRequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "PAYMENT_SERVICE_UNAVAILABLE", "payment request service is unavailable")
		return
	}

	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	var req dto.CreatePaymentRequestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}

	rec, err := h.service.Create(r.Context(), identity.UserID, req.StoreID, enums.Tier(req.Tier))
	if err != nil {
		handlePaymentError(w, err)
		return
	}

	httperrors.Write(w, http.StatusCreated, h.mapRequest(r.Context(), rec, false))
}

// UploadProof accepts the bank transfer receipt as multipart form data
// under the "file" field.
func (h *PaymentRequestHandler) UploadProof(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "PAYMENT_SERVICE_UNAVAILABLE", "payment request service is unavailable")
		return
	}

	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	requestID, ok := urlParamInt64(r, "requestID")
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid payment request id")
		return
	}

	if err := r.ParseMultipartForm(maxProofSize); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, "VALIDATION_ERROR", "proof file is required")
		return
	}
	defer file.Close()

	rec, err := h.service.UploadProof(r.Context(), identity.UserID, requestID,
		header.Filename, header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		handlePaymentError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, h.mapRequest(r.Context(), rec, false))
}

func (h *PaymentRequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "PAYMENT_SERVICE_UNAVAILABLE", "payment request service is unavailable")
		return
	}

	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	requestID, ok := urlParamInt64(r, "requestID")
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid payment request id")
		return
	}

	rec, err := h.service.Get(r.Context(), identity.UserID, requestID)
	if err != nil {
		handlePaymentError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, h.mapRequest(r.Context(), rec, true))
}

func (h *PaymentRequestHandler) ListByStore(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "PAYMENT_SERVICE_UNAVAILABLE", "payment request service is unavailable")
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
		handlePaymentError(w, err)
		return
	}

	out := make([]dto.PaymentRequestResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, h.mapRequest(r.Context(), rec, false))
	}
	httperrors.Write(w, http.StatusOK, dto.PaymentRequestListResponse{
		Requests: out,
		Total:    len(out),
		Page:     1,
		Limit:    len(out),
	})
}

func (h *PaymentRequestHandler) mapRequest(ctx context.Context, rec pgrepo.PaymentRequestRecord, withProofURL bool) dto.PaymentRequestResponse {
	out := dto.PaymentRequestResponse{
		ID:              rec.ID,
		StoreID:         rec.StoreID,
		ReferenceNo:     rec.ReferenceNo,
		RequestedTier:   string(rec.RequestedTier),
		Amount:          rec.Amount,
		DurationDays:    rec.RequestedDurationDays,
		Status:          string(rec.Status),
		RequestedAt:     rec.RequestedAt,
		VerifiedAt:      rec.VerifiedAt,
		ActivatedAt:     rec.ActivatedAt,
		RejectedAt:      rec.RejectedAt,
		RejectionReason: rec.RejectionReason,
		HasPaymentProof: rec.PaymentProofPath != nil,
	}

	if withProofURL && h.presigner != nil && rec.PaymentProofPath != nil {
		if url, err := h.presigner.PresignGet(ctx, *rec.PaymentProofPath, 0); err == nil {
			out.PaymentProofURL = url
		}
	}

	return out
}

func handlePaymentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, paysvc.ErrValidation), errors.Is(err, paysvc.ErrFreeTierNotBillable):
		writeBadRequest(w, "VALIDATION_ERROR", "request validation failed")
	case errors.Is(err, paysvc.ErrNotFound):
		writeNotFound(w, "PAYMENT_REQUEST_NOT_FOUND", "payment request not found")
	case errors.Is(err, paysvc.ErrForbidden):
		writeForbidden(w, "FORBIDDEN", "insufficient permissions")
	case errors.Is(err, paysvc.ErrConflict):
		writeConflict(w, "PENDING_REQUEST_EXISTS", "store already has a pending payment request")
	case errors.Is(err, paysvc.ErrInvalidTransition):
		writeConflict(w, "INVALID_TRANSITION", "payment request state does not allow this operation")
	default:
		handleAuthzError(w, err)
	}
}
