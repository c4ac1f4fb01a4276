package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/noah-isme/backend-detailing/internal/catalog"
	"github.com/noah-isme/backend-detailing/internal/health"
	"github.com/noah-isme/backend-detailing/internal/ratelimit"
	"github.com/noah-isme/backend-detailing/internal/security"
)

func testRouter(t *testing.T, mutate func(*routerConfig)) http.Handler {
	t.Helper()
	cfg := routerConfig{
		Logger:    zerolog.Nop(),
		Headers:   security.Headers{Enable: true},
		BodyLimit: 64,
		Health: health.Handler{Probes: []health.Probe{
			{Name: "db", Check: func(context.Context) error { return nil }},
		}},
		Catalog: catalog.NewHandler(catalog.HandlerConfig{}),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return newRouter(cfg)
}

func TestRouterHealthEndpoints(t *testing.T) {
	router := testRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRouterUnknownRouteUsesErrorEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	testRouter(t, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "NOT_FOUND", body.Error.Code)
}

func TestRouterCatalogWithoutServiceIsInternalError(t *testing.T) {
	rr := httptest.NewRecorder()
	testRouter(t, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/services", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Contains(t, rr.Body.String(), "INTERNAL")
}

func TestRouterCORSPreflight(t *testing.T) {
	router := testRouter(t, func(cfg *routerConfig) {
		cfg.AllowedOrigins = []string{"https://dashboard.example.com"}
	})
	req := httptest.NewRequest(http.MethodOptions, "/api/invoice/totals", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, "https://dashboard.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouterRateLimitsAPI(t *testing.T) {
	lim, err := ratelimit.New(memory.NewStore(), "1-M")
	require.NoError(t, err)
	router := testRouter(t, func(cfg *routerConfig) {
		cfg.RateLimit = ratelimit.Handler{Limiter: lim}.Middleware
	})

	var codes []int
	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/services", nil))
		codes = append(codes, rr.Code)
	}
	require.Equal(t, []int{http.StatusInternalServerError, http.StatusTooManyRequests}, codes)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRouterBodyLimitOnAPI(t *testing.T) {
	rr := httptest.NewRecorder()
	body := strings.NewReader(`{"services":["` + strings.Repeat("x", 128) + `"]}`)
	testRouter(t, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/services", body))
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}
