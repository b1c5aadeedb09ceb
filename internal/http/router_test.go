package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	httpH "github.com/yungbote/recycleright-backend/internal/http/handlers"
	httpMW "github.com/yungbote/recycleright-backend/internal/http/middleware"
	"github.com/yungbote/recycleright-backend/internal/observability"
	"github.com/yungbote/recycleright-backend/internal/platform/logger"
)

func TestRouterWiring(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name   string
		cfg    RouterConfig
		method string
		path   string
		header string
		status int
	}{
		{
			name:   "healthcheck",
			cfg:    RouterConfig{HealthHandler: httpH.NewHealthHandler(nil)},
			method: http.MethodGet, path: "/healthcheck", status: http.StatusOK,
		},
		{
			name:   "metrics exposed when enabled",
			cfg:    RouterConfig{Metrics: observability.New()},
			method: http.MethodGet, path: "/metrics", status: http.StatusOK,
		},
		{
			name:   "metrics absent when disabled",
			cfg:    RouterConfig{},
			method: http.MethodGet, path: "/metrics", status: http.StatusNotFound,
		},
		{
			name:   "admin disabled without token",
			cfg:    RouterConfig{UserHandler: httpH.NewUserHandler(nil, nil)},
			method: http.MethodPost, path: "/api/admin/users/u1/adjustments", status: http.StatusNotFound,
		},
		{
			name: "admin rejects bad token",
			cfg: RouterConfig{
				UserHandler:     httpH.NewUserHandler(nil, nil),
				AdminMiddleware: httpMW.NewAdminMiddleware(logger.Nop(), "tok"),
			},
			method: http.MethodPost, path: "/api/admin/users/u1/adjustments", header: "nope", status: http.StatusUnauthorized,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRouter(tc.cfg)
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("X-Admin-Token", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status=%d want %d body=%s", rec.Code, tc.status, rec.Body.String())
			}
			if rec.Header().Get("X-Request-Id") == "" {
				t.Fatalf("request id header missing")
			}
		})
	}
}

func TestMetricsEndpointServesPrometheusText(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := observability.New()
	r := NewRouter(RouterConfig{Metrics: m, HealthHandler: httpH.NewHealthHandler(nil)})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "rr_api_requests_total") {
		t.Fatalf("metrics body:\n%s", rec.Body.String())
	}
}
