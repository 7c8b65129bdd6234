package handlers

import (
	"net/http"

	authsvc "github.com/restodesk/backend/internal/services/auth"
	paysvc "github.com/restodesk/backend/internal/services/paymentrequests"
	"github.com/restodesk/backend/internal/transport/http/dto"
	httperrors "github.com/restodesk/backend/internal/transport/http/errors"
)

type AdminPaymentHandler struct {
	payments *paysvc.Service
	mapper   *PaymentRequestHandler
}

func NewAdminPaymentHandler(payments *paysvc.Service, presigner ProofPresigner) *AdminPaymentHandler {
	return &AdminPaymentHandler{
		payments: payments,
		mapper:   NewPaymentRequestHandler(payments, presigner),
	}
}

// Queue lists payment requests for the verification dashboard, filtered by
// status and paginated.
func (h *AdminPaymentHandler) Queue(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
		writeInternal(w, "PAYMENT_SERVICE_UNAVAILABLE", "payment request service is unavailable")
		return
	}

	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}

	page, err := h.payments.AdminList(r.Context(), identity.UserID,
		r.URL.Query().Get("status"), queryInt(r, "page", "1"), queryInt(r, "limit", "20"))
	if err != nil {
		handlePaymentError(w, err)
		return
	}

	out := make([]dto.PaymentRequestResponse, 0, len(page.Requests))
	for _, rec := range page.Requests {
		out = append(out, h.mapper.mapRequest(r.Context(), rec, true))
	}

	httperrors.Write(w, http.StatusOK, dto.PaymentRequestListResponse{
		Requests: out,
		Total:    page.Total,
		Page:     page.Page,
		Limit:    page.Limit,
	})
}

func (h *AdminPaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
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

	var req dto.VerifyPaymentRequestRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
			return
		}
	}

	rec, err := h.payments.Verify(r.Context(), identity.UserID, requestID, req.Notes)
	if err != nil {
		handlePaymentError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, h.mapper.mapRequest(r.Context(), rec, true))
}

func (h *AdminPaymentHandler) Reject(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
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

	var req dto.RejectPaymentRequestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}

	rec, err := h.payments.Reject(r.Context(), identity.UserID, requestID, req.Reason)
	if err != nil {
		handlePaymentError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, h.mapper.mapRequest(r.Context(), rec, true))
}

func (h *AdminPaymentHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
		writeInternal(w, "PAYMENT_SERVICE_UNAVAILABLE", "payment request service is unavailable")
		return
	}

	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}

	metrics, err := h.payments.AdminMetrics(r.Context(), identity.UserID)
	if err != nil {
		handlePaymentError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.PaymentMetricsResponse{
		PendingCount:       metrics.PendingCount,
		VerifiedCount:      metrics.VerifiedCount,
		RejectedCount:      metrics.RejectedCount,
		AvgProcessingHours: metrics.AvgProcessingHours,
	})
}
