package dto

import "time"

type SubscriptionResponse struct {
	Tier               string     `json:"tier"`
	Status             string     `json:"status"`
	IsActive           bool       `json:"is_active"`
	CurrentPeriodStart *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
	TrialEndsAt        *time.Time `json:"trial_ends_at,omitempty"`
	DaysRemaining      int        `json:"days_remaining"`
}

type SuspendSubscriptionRequest struct {
	Reason string `json:"reason"`
}

type DowngradeSubscriptionRequest struct {
	Reason string `json:"reason"`
}
