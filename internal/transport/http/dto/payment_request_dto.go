package dto

import "time"

type CreatePaymentRequestRequest struct {
	StoreID int64  `json:"store_id"`
	Tier    string `json:"tier"`
}

type PaymentRequestResponse struct {
	ID              int64      `json:"id"`
	StoreID         int64      `json:"store_id"`
	ReferenceNo     string     `json:"reference_no"`
	RequestedTier   string     `json:"requested_tier"`
	Amount          int64      `json:"amount"`
	DurationDays    int        `json:"duration_days"`
	Status          string     `json:"status"`
	RequestedAt     time.Time  `json:"requested_at"`
	VerifiedAt      *time.Time `json:"verified_at,omitempty"`
	ActivatedAt     *time.Time `json:"activated_at,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	RejectionReason *string    `json:"rejection_reason,omitempty"`
	HasPaymentProof bool       `json:"has_payment_proof"`
	PaymentProofURL string     `json:"payment_proof_url,omitempty"`
}

type PaymentRequestListResponse struct {
	Requests []PaymentRequestResponse `json:"requests"`
	Total    int                      `json:"total"`
	Page     int                      `json:"page"`
	Limit    int                      `json:"limit"`
}

type VerifyPaymentRequestRequest struct {
	Notes string `json:"notes"`
}

type RejectPaymentRequestRequest struct {
	Reason string `json:"rejection_reason"`
}

type PaymentMetricsResponse struct {
	PendingCount       int     `json:"pending_count"`
	VerifiedCount      int     `json:"verified_count"`
	RejectedCount      int     `json:"rejected_count"`
	AvgProcessingHours float64 `json:"avg_processing_hours"`
}
