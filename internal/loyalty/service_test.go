package loyalty

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-detailing/internal/common"
	"github.com/noah-isme/backend-detailing/internal/events"
	"github.com/noah-isme/backend-detailing/internal/lock"
)

type memStore struct {
	mu       sync.Mutex
	awarded  map[string]bool
	accounts map[string]Account
}

func newMemStore() *memStore {
	return &memStore{awarded: map[string]bool{}, accounts: map[string]Account{}}
}

func (m *memStore) Grant(_ context.Context, g Grant) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.awarded[g.InvoiceID] {
		return 0, ErrAlreadyAwarded
	}
	m.awarded[g.InvoiceID] = true
	acct := m.accounts[g.CustomerPhone]
	acct.CustomerPhone = g.CustomerPhone
	if g.CustomerName != "" {
		acct.CustomerName = g.CustomerName
	}
	acct.Points += g.Points
	m.accounts[g.CustomerPhone] = acct
	return acct.Points, nil
}

func (m *memStore) Account(_ context.Context, phone string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.accounts[phone]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return acct, nil
}

type captureEmitter struct {
	mu     sync.Mutex
	topics []string
}

func (c *captureEmitter) Emit(_ context.Context, topic, aggregateID string, _ any) (events.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	return events.Event{Topic: topic, AggregateID: aggregateID}, nil
}

func TestAwardIsAtMostOncePerInvoice(t *testing.T) {
	emitter := &captureEmitter{}
	svc := &Service{Store: newMemStore(), Events: emitter}
	ctx := context.Background()
	req := AwardRequest{CustomerPhone: "0812", InvoiceID: "inv-1", Amount: amount(217.00), CustomerName: "Dana"}

	first, err := svc.Award(ctx, req)
	require.NoError(t, err)
	require.Equal(t, AwardResult{Success: true, Points: 217, Balance: 217}, first)

	second, err := svc.Award(ctx, req)
	require.NoError(t, err)
	require.False(t, second.Success)
	require.Equal(t, "points already awarded for this invoice", second.Message)
	require.Equal(t, int64(217), second.Balance)

	third, err := svc.Award(ctx, AwardRequest{CustomerPhone: "0812", InvoiceID: "inv-2", Amount: amount(149.99)})
	require.NoError(t, err)
	require.Equal(t, int64(149), third.Points)
	require.Equal(t, int64(366), third.Balance)

	require.Equal(t, []string{events.TopicLoyaltyAwarded, events.TopicLoyaltyAwarded}, emitter.topics)
}

func TestAwardRejectsInvalidAmount(t *testing.T) {
	svc := &Service{Store: newMemStore()}
	for _, amount := range []float64{-1, math.Inf(1), math.NaN()} {
		_, err := svc.Award(context.Background(), AwardRequest{CustomerPhone: "0812", InvoiceID: "inv", Amount: &amount})
		var appErr *common.AppError
		require.ErrorAs(t, err, &appErr)
		require.Equal(t, http.StatusUnprocessableEntity, appErr.HTTPStatus)
		require.Equal(t, "INVALID_AMOUNT", appErr.Code)
	}
}

func TestAwardRequiresAmount(t *testing.T) {
	store := newMemStore()
	h := &Handler{Service: &Service{Store: store}}

	rec := httptest.NewRecorder()
	h.Award(rec, httptest.NewRequest(http.MethodPost, "/api/invoice/award-loyalty-points", strings.NewReader(`{"customerPhone":"0812","invoiceId":"inv-9"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "VALIDATION_FAILED")
	require.Contains(t, rec.Body.String(), `"amount":"required"`)
	require.Empty(t, store.awarded)

	rec = httptest.NewRecorder()
	h.Award(rec, httptest.NewRequest(http.MethodPost, "/api/invoice/award-loyalty-points", strings.NewReader(`{"customerPhone":"0812","invoiceId":"inv-9","amount":217}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"success":true,"points":217,"balance":217}`, rec.Body.String())
}

func TestAwardValidatesRequest(t *testing.T) {
	svc := &Service{Store: newMemStore()}
	_, err := svc.Award(context.Background(), AwardRequest{CustomerPhone: " ", InvoiceID: "inv", Amount: amount(10)})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "VALIDATION_FAILED", appErr.Code)
}

func TestConcurrentAwardsUnderLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := newMemStore()
	svc := &Service{Store: store, Locker: lock.Locker{R: client, RetryBackoff: time.Millisecond}, LockTTL: time.Second}

	var wg sync.WaitGroup
	results := make(chan AwardResult, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Award(context.Background(), AwardRequest{CustomerPhone: "0812", InvoiceID: "inv-same", Amount: amount(100)})
			if err == nil {
				results <- res
			}
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for res := range results {
		if res.Success {
			successes++
		}
	}
	require.Equal(t, 1, successes)
	acct, err := store.Account(context.Background(), "0812")
	require.NoError(t, err)
	require.Equal(t, int64(100), acct.Points)
	require.False(t, mr.Exists(lock.CustomerKey("0812")))
}

func TestHandlers(t *testing.T) {
	h := &Handler{Service: &Service{Store: newMemStore()}}

	rec := httptest.NewRecorder()
	body := `{"customerPhone":"0812","invoiceId":"inv-9","amount":150,"customerName":"Dana"}`
	h.Award(rec, httptest.NewRequest(http.MethodPost, "/api/invoice/award-loyalty-points", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"success":true,"points":150,"balance":150}`, rec.Body.String())

	router := chi.NewRouter()
	router.Get("/api/loyalty/{phone}", h.Balance)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/loyalty/0812", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data Account `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(150), resp.Data.Points)
	require.Equal(t, "Dana", resp.Data.CustomerName)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/loyalty/0999", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func amount(v float64) *float64 { return &v }
