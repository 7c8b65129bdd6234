package apiapp

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	authsvc "github.com/restodesk/backend/internal/services/auth"
)

func TestAuthMiddlewarePassesIdentityThrough(t *testing.T) {
	jwtManager := authsvc.NewJWTManager("test-secret", time.Minute)
	token, _, err := jwtManager.GenerateAccessToken(42, "PLATFORM_ADMIN")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	mw := AuthMiddleware(jwtManager, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/subscriptions/store/1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := authsvc.IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in request context")
		}
		if identity.UserID != 42 {
			t.Fatalf("unexpected user id: got %d want 42", identity.UserID)
		}
		if identity.PlatformRole != "PLATFORM_ADMIN" {
			t.Fatalf("unexpected platform role: got %q", identity.PlatformRole)
		}
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusNoContent)
	}
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	jwtManager := authsvc.NewJWTManager("test-secret", time.Minute)
	mw := AuthMiddleware(jwtManager, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/subscriptions/store/1", nil)
	rr := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatalf("handler must not be called without a token")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddlewareRejectsForgedToken(t *testing.T) {
	jwtManager := authsvc.NewJWTManager("test-secret", time.Minute)
	forger := authsvc.NewJWTManager("other-secret", time.Minute)
	token, _, err := forger.GenerateAccessToken(42, "")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	mw := AuthMiddleware(jwtManager, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/subscriptions/store/1", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatalf("handler must not be called with a forged token")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestExtractBearerToken(t *testing.T) {
	if _, ok := extractBearerToken("Token abc"); ok {
		t.Fatalf("expected non-bearer scheme to be rejected")
	}
	if _, ok := extractBearerToken(""); ok {
		t.Fatalf("expected empty header to be rejected")
	}
	token, ok := extractBearerToken("bearer abc.def.ghi")
	if !ok || token != "abc.def.ghi" {
		t.Fatalf("unexpected extraction result: %q %v", token, ok)
	}
}
