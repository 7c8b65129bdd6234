package dto

import "time"

type ResourceUsageResponse struct {
	Current int `json:"current"`
	Limit   int `json:"limit"`
}

type UsageDimensionsResponse struct {
	Tables        ResourceUsageResponse `json:"tables"`
	MenuItems     ResourceUsageResponse `json:"menu_items"`
	Staff         ResourceUsageResponse `json:"staff"`
	MonthlyOrders ResourceUsageResponse `json:"monthly_orders"`
}

type UsageSnapshotResponse struct {
	StoreID    int64                   `json:"store_id"`
	Tier       string                  `json:"tier"`
	Usage      UsageDimensionsResponse `json:"usage"`
	Features   TierFeaturesResponse    `json:"features"`
	ComputedAt time.Time               `json:"computed_at"`
}

type TierFeaturesResponse struct {
	KDS             bool `json:"kds"`
	Loyalty         bool `json:"loyalty"`
	AdvancedReports bool `json:"advanced_reports"`
}

type TierInfoResponse struct {
	Tier             string               `json:"tier"`
	PriceMinor       int64                `json:"price_minor"`
	MaxTables        int                  `json:"max_tables"`
	MaxMenuItems     int                  `json:"max_menu_items"`
	MaxStaff         int                  `json:"max_staff"`
	MaxMonthlyOrders int                  `json:"max_monthly_orders"`
	Features         TierFeaturesResponse `json:"features"`
}

type LimitCheckResponse struct {
	Allowed      bool   `json:"allowed"`
	Resource     string `json:"resource"`
	CurrentUsage int    `json:"current_usage"`
	Limit        int    `json:"limit"`
	Tier         string `json:"tier"`
}
