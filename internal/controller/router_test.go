package controller

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/mashughuli/escrow/internal/infrastructure/config"
	"github.com/mashughuli/escrow/internal/infrastructure/observability"
	"github.com/mashughuli/escrow/internal/testutil"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return NewRouter(RouterDeps{
		TransactionRepo:  testutil.NewMockTransactionRepository(),
		NotificationRepo: testutil.NewMockNotificationRepository(),
		MessageRepo:      testutil.NewMockMessageRepository(),
		MessageRelay:     testutil.NewMockPublisher(),
		Gateway:          http.NotFoundHandler(),
		Metrics:          observability.NewMetrics("test", prometheus.NewRegistry()),
		Logger:           zerolog.Nop(),
		CORSConfig:       config.CORSConfig{AllowedOrigins: []string{"*"}},
		JWTSecret:        "0123456789abcdef0123456789abcdef",
	})
}

// Every guarded route must be registered: an unauthenticated request gets
// 401 from the auth middleware, never a 404 from a missing route.
func TestRouterRegistersGuardedRoutes(t *testing.T) {
	router := newTestRouter(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/payments/stk"},
		{http.MethodGet, "/api/v1/transactions/00000000-0000-0000-0000-000000000001"},
		{http.MethodPost, "/api/v1/errands/00000000-0000-0000-0000-000000000001/approve"},
		{http.MethodGet, "/api/v1/notifications"},
		{http.MethodPost, "/api/v1/messages"},
		{http.MethodGet, "/api/v1/messages/00000000-0000-0000-0000-000000000002"},
		{http.MethodPost, "/api/v1/messages/00000000-0000-0000-0000-000000000002/read"},
	}
	for _, rt := range routes {
		req := httptest.NewRequest(rt.method, rt.path, strings.NewReader("{}"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", rt.method, rt.path, rec.Code)
		}
	}
}

func TestRouterHealthIsPublic(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
