package common_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-detailing/internal/common"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestIdemRejectsReplay(t *testing.T) {
	idem := common.Idem{R: newRedis(t), TTL: time.Minute}
	calls := 0
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/dashboard/send-invoice", nil)
	req.Header.Set("Idempotency-Key", "abc")

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, req.Clone(req.Context()))
	require.Equal(t, http.StatusCreated, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, req.Clone(req.Context()))
	require.Equal(t, http.StatusConflict, second.Code)
	require.Contains(t, second.Body.String(), "IDEMPOTENT_REPLAY")
	require.Equal(t, 1, calls)
}

func TestIdemReleasesKeyOnServerError(t *testing.T) {
	idem := common.Idem{R: newRedis(t), TTL: time.Minute}
	status := http.StatusInternalServerError
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/dashboard/send-invoice", nil)
	req.Header.Set("Idempotency-Key", "retry-me")

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, req.Clone(req.Context()))
	require.Equal(t, http.StatusInternalServerError, first.Code)

	status = http.StatusOK
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, req.Clone(req.Context()))
	require.Equal(t, http.StatusOK, second.Code)
}

func TestIdemPassThroughWithoutHeader(t *testing.T) {
	idem := common.Idem{R: newRedis(t)}
	calls := 0
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/x", nil))
	}
	require.Equal(t, 2, calls)
}
