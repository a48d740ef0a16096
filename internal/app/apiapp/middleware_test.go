package apiapp

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/contentgate/backend/internal/config"
)

func TestAdminAuthMiddlewareRejectsMissingToken(t *testing.T) {
	mw := AdminAuthMiddleware(config.AdminConfig{Token: "secret-token"}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/admin/catalog", nil)
	rr := httptest.NewRecorder()

	mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not run without a token")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAdminAuthMiddlewareRejectsWrongToken(t *testing.T) {
	mw := AdminAuthMiddleware(config.AdminConfig{Token: "secret-token"}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/admin/catalog", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rr := httptest.NewRecorder()

	mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not run with a wrong token")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAdminAuthMiddlewareAcceptsConfiguredToken(t *testing.T) {
	mw := AdminAuthMiddleware(config.AdminConfig{Token: "secret-token"}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/admin/catalog", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rr := httptest.NewRecorder()

	mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusNoContent)
	}
}

func TestAdminAuthMiddlewareUnavailableWithoutConfiguredToken(t *testing.T) {
	mw := AdminAuthMiddleware(config.AdminConfig{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/admin/catalog", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rr := httptest.NewRecorder()

	mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not run when no token is configured")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusServiceUnavailable)
	}
}
