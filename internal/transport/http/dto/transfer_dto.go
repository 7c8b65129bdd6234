package dto

import "time"

type InitiateTransferRequest struct {
	StoreID       int64  `json:"store_id"`
	NewOwnerEmail string `json:"new_owner_email"`
}

type VerifyTransferRequest struct {
	OTP string `json:"otp"`
}

type CancelTransferRequest struct {
	Reason string `json:"reason"`
}

type TransferResponse struct {
	ID                int64      `json:"id"`
	StoreID           int64      `json:"store_id"`
	NewOwnerEmail     string     `json:"new_owner_email"`
	Status            string     `json:"status"`
	OTPExpiresAt      time.Time  `json:"otp_expires_at"`
	AttemptsRemaining *int       `json:"attempts_remaining,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}
