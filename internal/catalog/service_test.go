package catalog_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-detailing/internal/cache"
	"github.com/noah-isme/backend-detailing/internal/catalog"
	"github.com/noah-isme/backend-detailing/internal/common"
	"github.com/noah-isme/backend-detailing/internal/pricing"
)

type fakeStore struct {
	mu       sync.Mutex
	records  []catalog.Record
	listHits int
	listErr  error
}

func (f *fakeStore) ListServices(context.Context) ([]catalog.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listHits++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]catalog.Record, len(f.records))
	copy(out, f.records)
	return out, nil
}

func (f *fakeStore) UpsertService(_ context.Context, rec catalog.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		if f.records[i].Name == rec.Name {
			f.records[i] = rec
			return nil
		}
	}
	f.records = append(f.records, rec)
	return nil
}

func seededStore() *fakeStore {
	return &fakeStore{records: []catalog.Record{
		{ID: uuid.New(), Name: "Full Detail", PriceRange: "$150", DurationMinutes: 180},
		{ID: uuid.New(), Name: "Ceramic Coating", PriceRange: "$400 - $600", DurationMinutes: 480},
		{ID: uuid.New(), Name: "Paint Correction", PriceRange: "Ask for quote", DurationMinutes: 360},
	}}
}

func newRedisCache(t *testing.T) (*cache.JSON, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.New(client, time.Minute), mr
}

func TestListDerivesUnitPrices(t *testing.T) {
	store := seededStore()
	svc, err := catalog.NewService(catalog.ServiceConfig{Store: store, Policy: pricing.DefaultPolicy()})
	require.NoError(t, err)

	items, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, 150.0, items[0].UnitPrice)
	require.Equal(t, 500.0, items[1].UnitPrice)
	require.Equal(t, 150.0, items[2].UnitPrice)
}

func TestListReadsThroughCache(t *testing.T) {
	store := seededStore()
	jc, mr := newRedisCache(t)
	svc, err := catalog.NewService(catalog.ServiceConfig{Store: store, Cache: jc})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.List(ctx)
	require.NoError(t, err)
	_, err = svc.List(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, store.listHits)
	require.True(t, mr.Exists(cache.KeyServiceCatalog))

	require.NoError(t, svc.Upsert(ctx, catalog.Record{Name: "Wax", PriceRange: "$75"}))
	require.False(t, mr.Exists(cache.KeyServiceCatalog))

	item, err := svc.FindByName(ctx, "  wax ")
	require.NoError(t, err)
	require.Equal(t, 75.0, item.UnitPrice)
	require.Equal(t, 2, store.listHits)
}

func TestUnitPriceFallsBackForUnknownService(t *testing.T) {
	svc, err := catalog.NewService(catalog.ServiceConfig{Store: seededStore(), Policy: pricing.Policy{FallbackPrice: 99}})
	require.NoError(t, err)

	price, err := svc.UnitPrice(context.Background(), "Headlight Restoration")
	require.NoError(t, err)
	require.Equal(t, 99.0, price)

	_, err = svc.FindByName(context.Background(), "Headlight Restoration")
	require.ErrorIs(t, err, catalog.ErrServiceNotFound)
}

func TestUpsertValidates(t *testing.T) {
	svc, err := catalog.NewService(catalog.ServiceConfig{Store: seededStore()})
	require.NoError(t, err)

	err = svc.Upsert(context.Background(), catalog.Record{Name: "   "})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "VALIDATION_FAILED", appErr.Code)
}

func TestListHandler(t *testing.T) {
	svc, err := catalog.NewService(catalog.ServiceConfig{Store: seededStore()})
	require.NoError(t, err)
	handler := catalog.NewHandler(catalog.HandlerConfig{Service: svc})

	rec := httptest.NewRecorder()
	handler.List(rec, httptest.NewRequest(http.MethodGet, "/api/services", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []catalog.Item `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 3)
	require.Equal(t, "Ceramic Coating", resp.Data[1].Name)
	require.Equal(t, 500.0, resp.Data[1].UnitPrice)
}

func TestListHandlerStoreFailure(t *testing.T) {
	store := seededStore()
	store.listErr = errors.New("connection refused")
	svc, err := catalog.NewService(catalog.ServiceConfig{Store: store})
	require.NoError(t, err)
	handler := catalog.NewHandler(catalog.HandlerConfig{Service: svc})

	rec := httptest.NewRecorder()
	handler.List(rec, httptest.NewRequest(http.MethodGet, "/api/services", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "connection refused")
}
