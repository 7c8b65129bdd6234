package rules

import (
	"time"

	"github.com/restodesk/backend/internal/domain/enums"
)

// Unlimited marks a quota dimension that never blocks.
const Unlimited = -1

const (
	DefaultSubscriptionDays = 30
	DefaultTrialDays        = 14
)

type TierLimits struct {
	MaxTables        int
	MaxMenuItems     int
	MaxStaff         int
	MaxMonthlyOrders int
}

type TierFeatures struct {
	KDS             bool
	Loyalty         bool
	AdvancedReports bool
}

var tierLimits = map[enums.Tier]TierLimits{
	enums.TierFree: {
		MaxTables:        20,
		MaxMenuItems:     50,
		MaxStaff:         5,
		MaxMonthlyOrders: 500,
	},
	enums.TierStandard: {
		MaxTables:        100,
		MaxMenuItems:     300,
		MaxStaff:         25,
		MaxMonthlyOrders: 10000,
	},
	enums.TierPremium: {
		MaxTables:        Unlimited,
		MaxMenuItems:     Unlimited,
		MaxStaff:         Unlimited,
		MaxMonthlyOrders: Unlimited,
	},
}

var tierFeatures = map[enums.Tier]TierFeatures{
	enums.TierFree:     {},
	enums.TierStandard: {KDS: true, Loyalty: true},
	enums.TierPremium:  {KDS: true, Loyalty: true, AdvancedReports: true},
}

// Prices are minor currency units per subscription period.
var tierPrices = map[enums.Tier]int64{
	enums.TierFree:     0,
	enums.TierStandard: 2999,
	enums.TierPremium:  5999,
}

func LimitsFor(tier enums.Tier) TierLimits {
	limits, ok := tierLimits[tier]
	if !ok {
		return tierLimits[enums.TierFree]
	}
	return limits
}

func FeaturesFor(tier enums.Tier) TierFeatures {
	return tierFeatures[tier]
}

func PriceFor(tier enums.Tier) int64 {
	return tierPrices[tier]
}

func WithinLimit(current, increment, limit int) bool {
	if limit == Unlimited {
		return true
	}
	return current+increment <= limit
}

// MonthStart returns the first instant of the calendar month containing now.
func MonthStart(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc).UTC()
}
