package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	authzsvc "github.com/restodesk/backend/internal/services/authz"
	tiersvc "github.com/restodesk/backend/internal/services/tierlimits"
	"github.com/restodesk/backend/internal/transport/http/dto"
)

func TestTierCatalogueListsAllTiers(t *testing.T) {
	h := NewTierHandler(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/tiers", nil)
	rr := httptest.NewRecorder()
	h.List(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}

	var out []dto.TierInfoResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("unexpected tier count: got %d want 3", len(out))
	}

	free := out[0]
	if free.Tier != "FREE" || free.PriceMinor != 0 || free.MaxTables != 20 {
		t.Fatalf("unexpected free tier entry: %+v", free)
	}
	if free.Features.KDS {
		t.Fatalf("free tier must not include kds")
	}

	premium := out[2]
	if premium.Tier != "PREMIUM" || premium.PriceMinor != 5999 {
		t.Fatalf("unexpected premium tier entry: %+v", premium)
	}
	if premium.MaxTables != -1 || premium.MaxMonthlyOrders != -1 {
		t.Fatalf("premium limits must be unlimited: %+v", premium)
	}
	if !premium.Features.AdvancedReports {
		t.Fatalf("premium tier must include advanced reports")
	}
}

func TestUsageRequiresAuthentication(t *testing.T) {
	service := tiersvc.NewService(tiersvc.Dependencies{}, tiersvc.Config{}, zap.NewNop())
	h := NewTierHandler(service, authzsvc.NewService(nil))

	req := httptest.NewRequest(http.MethodGet, "/stores/1/tiers/usage", nil)
	rr := httptest.NewRecorder()
	h.Usage(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusUnauthorized)
	}
}
