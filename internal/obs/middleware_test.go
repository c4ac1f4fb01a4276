package obs_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-detailing/internal/obs"
)

func TestHTTPMetricsUseMatchedRoute(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("detailing", []float64{1, 10}, registry)

	r := chi.NewRouter()
	r.Use(obs.HTTPObs{Metrics: metrics}.Middleware)
	r.Get("/api/invoices/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/invoices/123", nil))
	require.Equal(t, http.StatusNoContent, rr.Code)

	total := testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodGet, "/api/invoices/{id}", "204"))
	require.Equal(t, 1.0, total)
	require.NotZero(t, testutil.CollectAndCount(metrics.ReqDur))
	require.Equal(t, 0.0, testutil.ToFloat64(metrics.InFlight))
}

func TestHTTPMetricsReuseRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := obs.NewHTTPMetrics("detailing", nil, registry)
	second := obs.NewHTTPMetrics("detailing", nil, registry)
	require.Same(t, first.ReqTotal, second.ReqTotal)
}

func TestRequestLoggerExposesScopedLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Post("/api/invoice/totals", func(w http.ResponseWriter, r *http.Request) {
		obs.Logger(r.Context()).Info().Msg("inside")
		w.WriteHeader(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/invoice/totals", nil))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var inner, access map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &inner))
	require.NoError(t, json.Unmarshal(lines[1], &access))
	require.Equal(t, "inside", inner["message"])
	require.NotEmpty(t, inner["request_id"])
	require.Equal(t, inner["request_id"], access["request_id"])
	require.Equal(t, "/api/invoice/totals", access["route"])
	require.Equal(t, float64(http.StatusOK), access["status"])
}

func TestDomainMetricsHelpersAreNilSafe(t *testing.T) {
	require.NotPanics(t, func() {
		obs.CountPriceParse("range")
		obs.CountInvoiceSent("sent", 217)
		obs.CountLoyaltyAward("awarded", 217)
		obs.CountDelivery("delivered")
	})
}
