package dto

import "time"

type CreateRefundRequest struct {
	StoreID          int64  `json:"store_id"`
	PaymentRequestID int64  `json:"payment_request_id"`
	Reason           string `json:"reason"`
}

type ReviewRefundRequest struct {
	Notes string `json:"notes"`
}

type RefundResponse struct {
	ID               int64      `json:"id"`
	StoreID          int64      `json:"store_id"`
	PaymentRequestID int64      `json:"payment_request_id"`
	Amount           int64      `json:"amount"`
	Reason           string     `json:"reason"`
	Status           string     `json:"status"`
	RequestedAt      time.Time  `json:"requested_at"`
	ReviewedAt       *time.Time `json:"reviewed_at,omitempty"`
	ReviewNotes      *string    `json:"review_notes,omitempty"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
}

type RefundListResponse struct {
	Refunds []RefundResponse `json:"refunds"`
}
