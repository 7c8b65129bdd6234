package handlers

import (
	"errors"
	"net/http"

	"github.com/restodesk/backend/internal/domain/enums"
	"github.com/restodesk/backend/internal/domain/rules"
	authsvc "github.com/restodesk/backend/internal/services/auth"
	authzsvc "github.com/restodesk/backend/internal/services/authz"
	tiersvc "github.com/restodesk/backend/internal/services/tierlimits"
	"github.com/restodesk/backend/internal/transport/http/dto"
	httperrors "github.com/restodesk/backend/internal/transport/http/errors"
)

type TierHandler struct {
	service    *tiersvc.Service
	authorizer *authzsvc.Service
}

func NewTierHandler(service *tiersvc.Service, authorizer *authzsvc.Service) *TierHandler {
	return &TierHandler{service: service, authorizer: authorizer}
}

// List returns the tier catalogue: limits, features and prices per tier.
func (h *TierHandler) List(w http.ResponseWriter, r *http.Request) {
	tiers := []enums.Tier{enums.TierFree, enums.TierStandard, enums.TierPremium}

	out := make([]dto.TierInfoResponse, 0, len(tiers))
	for _, tier := range tiers {
		limits := rules.LimitsFor(tier)
		features := rules.FeaturesFor(tier)
		out = append(out, dto.TierInfoResponse{
			Tier:             string(tier),
			PriceMinor:       rules.PriceFor(tier),
			MaxTables:        limits.MaxTables,
			MaxMenuItems:     limits.MaxMenuItems,
			MaxStaff:         limits.MaxStaff,
			MaxMonthlyOrders: limits.MaxMonthlyOrders,
			Features: dto.TierFeaturesResponse{
				KDS:             features.KDS,
				Loyalty:         features.Loyalty,
				AdvancedReports: features.AdvancedReports,
			},
		})
	}

	httperrors.Write(w, http.StatusOK, out)
}

// Usage returns the store's current usage snapshot against its tier limits.
func (h *TierHandler) Usage(w http.ResponseWriter, r *http.Request) {
	if h.service == nil || h.authorizer == nil {
		writeInternal(w, "TIER_SERVICE_UNAVAILABLE", "tier limit service is unavailable")
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

	if err := h.authorizer.CheckStorePermission(r.Context(), identity.UserID, storeID,
		enums.StoreRoleOwner, enums.StoreRoleAdmin); err != nil {
		handleAuthzError(w, err)
		return
	}

	snapshot, err := h.service.GetUsage(r.Context(), storeID)
	if err != nil {
		handleTierError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.UsageSnapshotResponse{
		StoreID: snapshot.StoreID,
		Tier:    string(snapshot.Tier),
		Usage: dto.UsageDimensionsResponse{
			Tables:        dto.ResourceUsageResponse(snapshot.Tables),
			MenuItems:     dto.ResourceUsageResponse(snapshot.MenuItems),
			Staff:         dto.ResourceUsageResponse(snapshot.Staff),
			MonthlyOrders: dto.ResourceUsageResponse(snapshot.MonthlyOrders),
		},
		Features: dto.TierFeaturesResponse{
			KDS:             snapshot.Features.KDS,
			Loyalty:         snapshot.Features.Loyalty,
			AdvancedReports: snapshot.Features.AdvancedReports,
		},
		ComputedAt: snapshot.ComputedAt,
	})
}

// CheckLimit answers whether the store may create one more of a resource.
func (h *TierHandler) CheckLimit(w http.ResponseWriter, r *http.Request) {
	if h.service == nil || h.authorizer == nil {
		writeInternal(w, "TIER_SERVICE_UNAVAILABLE", "tier limit service is unavailable")
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

	if err := h.authorizer.CheckStorePermission(r.Context(), identity.UserID, storeID,
		enums.StoreRoleOwner, enums.StoreRoleAdmin, enums.StoreRoleStaff); err != nil {
		handleAuthzError(w, err)
		return
	}

	resource := tiersvc.Resource(r.URL.Query().Get("resource"))
	increment := queryInt(r, "increment", "1")

	res, err := h.service.CheckLimit(r.Context(), storeID, resource, increment)
	if err != nil {
		handleTierError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.LimitCheckResponse{
		Allowed:      res.Allowed,
		Resource:     string(res.Resource),
		CurrentUsage: res.CurrentUsage,
		Limit:        res.Limit,
		Tier:         string(res.Tier),
	})
}

func handleTierError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tiersvc.ErrValidation):
		writeBadRequest(w, "VALIDATION_ERROR", "request validation failed")
	case errors.Is(err, tiersvc.ErrUnknownResource):
		writeBadRequest(w, "UNKNOWN_RESOURCE", "unknown resource")
	case errors.Is(err, tiersvc.ErrUnknownFeature):
		writeBadRequest(w, "UNKNOWN_FEATURE", "unknown feature")
	default:
		writeInternal(w, "INTERNAL_ERROR", "internal server error")
	}
}
