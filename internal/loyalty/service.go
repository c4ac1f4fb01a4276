package loyalty

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/noah-isme/backend-detailing/internal/common"
	"github.com/noah-isme/backend-detailing/internal/events"
	"github.com/noah-isme/backend-detailing/internal/lock"
	"github.com/noah-isme/backend-detailing/internal/obs"
	"github.com/noah-isme/backend-detailing/internal/pricing"
)

var (
	// ErrAlreadyAwarded is returned by a Store when the invoice already earned points.
	ErrAlreadyAwarded = errors.New("points already awarded for this invoice")
	// ErrAccountNotFound is returned when a customer has never earned points.
	ErrAccountNotFound = errors.New("loyalty account not found")
)

// AwardRequest asks for the points earned by one invoice. Amount is a pointer
// so a missing amount fails validation instead of awarding zero points.
type AwardRequest struct {
	CustomerPhone string   `json:"customerPhone" validate:"required,max=32"`
	InvoiceID     string   `json:"invoiceId" validate:"required,max=64"`
	Amount        *float64 `json:"amount" validate:"required"`
	CustomerName  string   `json:"customerName" validate:"max=120"`
}

// AwardResult reports the outcome of an award.
type AwardResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Points  int64  `json:"points"`
	Balance int64  `json:"balance"`
}

// Account is a customer's running balance.
type Account struct {
	CustomerPhone string    `json:"customerPhone"`
	CustomerName  string    `json:"customerName,omitempty"`
	Points        int64     `json:"points"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Grant is a validated award ready to persist.
type Grant struct {
	CustomerPhone string
	CustomerName  string
	InvoiceID     string
	Amount        float64
	Points        int64
}

// Store persists awards and balances.
type Store interface {
	// Grant records the award and adds its points to the balance atomically,
	// returning the new balance or ErrAlreadyAwarded.
	Grant(ctx context.Context, g Grant) (int64, error)
	Account(ctx context.Context, phone string) (Account, error)
}

// Locker serialises work per key.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// Service awards loyalty points for invoices.
type Service struct {
	Store   Store
	Locker  Locker
	LockTTL time.Duration
	Events  Emitter
}

// Award grants the points earned by req.Amount. Each invoice earns points at
// most once; a repeat returns Success false with the current balance.
func (s *Service) Award(ctx context.Context, req AwardRequest) (AwardResult, error) {
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	req.InvoiceID = strings.TrimSpace(req.InvoiceID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if err := common.Validate(req); err != nil {
		return AwardResult{}, err
	}
	points, err := pricing.DeriveLoyaltyPoints(*req.Amount)
	if err != nil {
		obs.CountLoyaltyAward("invalid", 0)
		return AwardResult{}, common.NewAppError("INVALID_AMOUNT", "amount must be a non-negative number", http.StatusUnprocessableEntity, err)
	}

	var result AwardResult
	grant := func(ctx context.Context) error {
		var err error
		result, err = s.grant(ctx, req, points)
		return err
	}
	if s.Locker == nil {
		err = grant(ctx)
	} else {
		err = s.Locker.WithLock(ctx, lock.CustomerKey(req.CustomerPhone), s.LockTTL, grant)
	}
	if err != nil {
		obs.CountLoyaltyAward("failed", 0)
		return AwardResult{}, err
	}
	return result, nil
}

func (s *Service) grant(ctx context.Context, req AwardRequest, points int64) (AwardResult, error) {
	log := obs.Logger(ctx).With().Str("component", "loyalty").Str("invoice_id", req.InvoiceID).Logger()
	balance, err := s.Store.Grant(ctx, Grant{
		CustomerPhone: req.CustomerPhone,
		CustomerName:  req.CustomerName,
		InvoiceID:     req.InvoiceID,
		Amount:        *req.Amount,
		Points:        points,
	})
	if errors.Is(err, ErrAlreadyAwarded) {
		obs.CountLoyaltyAward("duplicate", 0)
		log.Info().Msg("loyalty award skipped, invoice already awarded")
		acct, accErr := s.Store.Account(ctx, req.CustomerPhone)
		if accErr != nil && !errors.Is(accErr, ErrAccountNotFound) {
			return AwardResult{}, accErr
		}
		return AwardResult{Success: false, Message: ErrAlreadyAwarded.Error(), Balance: acct.Points}, nil
	}
	if err != nil {
		return AwardResult{}, err
	}

	obs.CountLoyaltyAward("awarded", points)
	log.Info().Int64("points", points).Int64("balance", balance).Msg("loyalty points awarded")
	if s.Events != nil {
		payload := events.LoyaltyAwarded{InvoiceID: req.InvoiceID, CustomerPhone: req.CustomerPhone, Points: points, Balance: balance}
		if _, err := s.Events.Emit(ctx, events.TopicLoyaltyAwarded, req.InvoiceID, payload); err != nil {
			log.Warn().Err(err).Msg("emit loyalty.awarded failed")
		}
	}
	return AwardResult{Success: true, Points: points, Balance: balance}, nil
}

// Balance returns the customer's account.
func (s *Service) Balance(ctx context.Context, phone string) (Account, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return Account{}, common.NewAppError("BAD_REQUEST", "phone is required", http.StatusBadRequest, nil)
	}
	acct, err := s.Store.Account(ctx, phone)
	if errors.Is(err, ErrAccountNotFound) {
		return Account{}, common.NewAppError("NOT_FOUND", "loyalty account not found", http.StatusNotFound, err)
	}
	return acct, err
}

// ScheduleAward runs the award inline. A repeat award for the same invoice is not an error.
func (s *Service) ScheduleAward(ctx context.Context, req AwardRequest) error {
	_, err := s.Award(ctx, req)
	return err
}
