package invoice

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-detailing/internal/common"
	"github.com/noah-isme/backend-detailing/internal/events"
	"github.com/noah-isme/backend-detailing/internal/loyalty"
	"github.com/noah-isme/backend-detailing/internal/obs"
	"github.com/noah-isme/backend-detailing/internal/pricing"
)

// ErrNotFound is returned when an invoice does not exist.
var ErrNotFound = errors.New("invoice not found")

// amounts closer than half a cent are the same amount
const amountTolerance = 0.005

// Store persists sent invoices.
type Store interface {
	Save(ctx context.Context, inv Invoice) error
	Get(ctx context.Context, id uuid.UUID) (Invoice, error)
}

// PriceLookup resolves a unit price for a catalog service name.
type PriceLookup interface {
	UnitPrice(ctx context.Context, name string) (float64, error)
}

// TaxSource supplies the current tax configuration. TaxConfig may degrade to
// defaults for previews; Current reports storage failures.
type TaxSource interface {
	TaxConfig(ctx context.Context) pricing.TaxConfig
	Current(ctx context.Context) (pricing.TaxConfig, error)
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// LoyaltyScheduler arranges for an invoice's loyalty award, inline or via the queue.
type LoyaltyScheduler interface {
	ScheduleAward(ctx context.Context, req loyalty.AwardRequest) error
}

// Config groups Service dependencies.
type Config struct {
	Store          Store
	Catalog        PriceLookup
	Tax            TaxSource
	Events         Emitter
	Loyalty        LoyaltyScheduler
	Policy         pricing.Policy
	DefaultService string
	Currency       string
	Now            func() time.Time
}

// Service drafts, edits, prices and sends invoices.
type Service struct {
	store          Store
	catalog        PriceLookup
	tax            TaxSource
	events         Emitter
	loyalty        LoyaltyScheduler
	policy         pricing.Policy
	defaultService string
	currency       string
	now            func() time.Time
}

// NewService constructs a Service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("invoice store is required")
	}
	if cfg.Tax == nil {
		return nil, errors.New("tax source is required")
	}
	svc := &Service{
		store:          cfg.Store,
		catalog:        cfg.Catalog,
		tax:            cfg.Tax,
		events:         cfg.Events,
		loyalty:        cfg.Loyalty,
		policy:         cfg.Policy,
		defaultService: strings.TrimSpace(cfg.DefaultService),
		currency:       strings.ToUpper(strings.TrimSpace(cfg.Currency)),
		now:            cfg.Now,
	}
	if svc.defaultService == "" {
		svc.defaultService = "Full Detail"
	}
	if svc.currency == "" {
		svc.currency = "USD"
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc, nil
}

// Draft builds a working item list, one item per requested service or a
// single default item when none are requested.
func (s *Service) Draft(ctx context.Context, req DraftRequest) (Draft, error) {
	if err := common.Validate(req); err != nil {
		return Draft{}, err
	}
	names := make([]string, 0, len(req.Services))
	for _, name := range req.Services {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		names = append(names, s.defaultService)
	}
	var items []pricing.LineItem
	for _, name := range names {
		price, err := s.unitPrice(ctx, name)
		if err != nil {
			return Draft{}, err
		}
		items = s.policy.AddLineItem(items, name, price, 1)
	}
	return s.draft(ctx, items)
}

// ApplyItems performs one add, update or remove on the item list.
func (s *Service) ApplyItems(ctx context.Context, req ItemsRequest) (Draft, error) {
	req.Items = trimItems(req.Items)
	if err := common.Validate(req); err != nil {
		return Draft{}, err
	}
	items := s.normalize(req.Items)
	var err error
	switch req.Op {
	case "add":
		name := strings.TrimSpace(req.Service)
		if name == "" {
			name = s.defaultService
		}
		var price float64
		if req.Price != nil {
			price = float64(*req.Price)
		} else if price, err = s.unitPrice(ctx, name); err != nil {
			return Draft{}, err
		}
		qty := 1
		if req.Quantity != nil {
			qty = *req.Quantity
		}
		items = s.policy.AddLineItem(items, name, price, qty)
	case "update":
		if req.Index == nil {
			return Draft{}, indexRequired()
		}
		patch := pricing.Patch{Quantity: req.Quantity}
		if req.Price != nil {
			p := float64(*req.Price)
			patch.Price = &p
		}
		items, err = s.policy.UpdateLineItem(items, *req.Index, patch)
	case "remove":
		if req.Index == nil {
			return Draft{}, indexRequired()
		}
		items, err = pricing.RemoveLineItem(items, *req.Index)
	}
	if err != nil {
		return Draft{}, engineError(err)
	}
	return s.draft(ctx, items)
}

// Preview prices the item list with the current tax configuration.
func (s *Service) Preview(ctx context.Context, req TotalsRequest) (pricing.Quote, error) {
	req.Items = trimItems(req.Items)
	if err := common.Validate(req); err != nil {
		return pricing.Quote{}, err
	}
	quote, err := pricing.Preview(s.normalize(req.Items), s.tax.TaxConfig(ctx))
	if err != nil {
		return pricing.Quote{}, engineError(err)
	}
	return quote, nil
}

// Send recomputes totals, stores the invoice, announces it and schedules the
// customer's loyalty award.
func (s *Service) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.Items = trimItems(req.Items)
	if err := common.Validate(req); err != nil {
		obs.CountInvoiceSent("invalid", 0)
		return SendResult{}, err
	}
	log := obs.Logger(ctx).With().Str("component", "invoice").Logger()

	items, err := s.sendItems(ctx, req)
	if err != nil {
		return SendResult{}, err
	}
	taxCfg, err := s.tax.Current(ctx)
	if err != nil {
		obs.CountInvoiceSent("failed", 0)
		return SendResult{}, fmt.Errorf("load tax settings: %w", err)
	}
	totals := pricing.ComputeTotals(items, taxCfg)
	if len(req.Items) > 0 && req.Amount != nil && math.Abs(float64(*req.Amount)-totals.Total) > amountTolerance {
		obs.CountInvoiceSent("mismatch", 0)
		appErr := common.NewAppError("AMOUNT_MISMATCH", "amount does not match the invoice total", http.StatusUnprocessableEntity, nil)
		appErr.Details = map[string]float64{"amount": float64(*req.Amount), "total": totals.Total}
		return SendResult{}, appErr
	}
	points, err := pricing.DeriveLoyaltyPoints(totals.Total)
	if err != nil {
		obs.CountInvoiceSent("invalid", 0)
		return SendResult{}, engineError(err)
	}

	inv := Invoice{
		ID:            uuid.New(),
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		Notes:         strings.TrimSpace(req.Notes),
		Currency:      s.currency,
		Items:         items,
		Totals:        totals,
		TaxConfig:     taxCfg,
		LoyaltyPoints: points,
		SentAt:        s.now().UTC(),
	}
	if err := s.store.Save(ctx, inv); err != nil {
		obs.CountInvoiceSent("failed", 0)
		return SendResult{}, fmt.Errorf("save invoice: %w", err)
	}
	log = log.With().Str("invoice_id", inv.ID.String()).Logger()
	obs.CountInvoiceSent("sent", totals.Total)

	if s.events != nil {
		payload := events.InvoiceSent{
			InvoiceID:     inv.ID.String(),
			CustomerPhone: inv.CustomerPhone,
			CustomerEmail: inv.CustomerEmail,
			CustomerName:  inv.CustomerName,
			Subtotal:      totals.Subtotal,
			Tax:           totals.Tax,
			Total:         totals.Total,
			Currency:      inv.Currency,
			LoyaltyPoints: points,
		}
		if _, err := s.events.Emit(ctx, events.TopicInvoiceSent, inv.ID.String(), payload); err != nil {
			log.Warn().Err(err).Msg("emit invoice.sent failed")
		}
	}
	if s.loyalty != nil {
		total := totals.Total
		award := loyalty.AwardRequest{
			CustomerPhone: inv.CustomerPhone,
			InvoiceID:     inv.ID.String(),
			Amount:        &total,
			CustomerName:  inv.CustomerName,
		}
		if err := s.loyalty.ScheduleAward(ctx, award); err != nil {
			log.Error().Err(err).Msg("schedule loyalty award failed")
		}
	}
	log.Info().Float64("total", totals.Total).Int("items", len(items)).Msg("invoice sent")

	return SendResult{Success: true, InvoiceID: inv.ID.String(), Totals: totals, LoyaltyPoints: points}, nil
}

// Get loads a stored invoice.
func (s *Service) Get(ctx context.Context, id string) (Invoice, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return Invoice{}, common.NewAppError("BAD_REQUEST", "invalid invoice id", http.StatusBadRequest, err)
	}
	inv, err := s.store.Get(ctx, parsed)
	if errors.Is(err, ErrNotFound) {
		return Invoice{}, common.NewAppError("NOT_FOUND", "invoice not found", http.StatusNotFound, err)
	}
	return inv, err
}

func (s *Service) sendItems(ctx context.Context, req SendRequest) ([]pricing.LineItem, error) {
	if len(req.Items) > 0 {
		return s.normalize(req.Items), nil
	}
	name := strings.TrimSpace(req.Service)
	if name == "" {
		name = s.defaultService
	}
	var price float64
	if req.Amount != nil {
		price = float64(*req.Amount)
	} else {
		var err error
		if price, err = s.unitPrice(ctx, name); err != nil {
			return nil, err
		}
	}
	return s.policy.AddLineItem(nil, name, price, 1), nil
}

// normalize rebuilds client-supplied items through the engine so every item
// satisfies the price and quantity bounds.
func (s *Service) normalize(in []ItemInput) []pricing.LineItem {
	items := make([]pricing.LineItem, 0, len(in))
	for _, it := range in {
		items = s.policy.AddLineItem(items, it.Service, float64(it.Price), it.Quantity)
	}
	return items
}

// trimItems returns a copy of in with service names trimmed so blank names
// fail validation.
func trimItems(in []ItemInput) []ItemInput {
	if len(in) == 0 {
		return in
	}
	out := make([]ItemInput, len(in))
	for i, it := range in {
		it.Service = strings.TrimSpace(it.Service)
		out[i] = it
	}
	return out
}

func (s *Service) draft(ctx context.Context, items []pricing.LineItem) (Draft, error) {
	if items == nil {
		items = []pricing.LineItem{}
	}
	quote, err := pricing.Preview(items, s.tax.TaxConfig(ctx))
	if err != nil {
		return Draft{}, engineError(err)
	}
	return Draft{Items: items, Totals: quote}, nil
}

func (s *Service) unitPrice(ctx context.Context, name string) (float64, error) {
	if s.catalog == nil {
		return s.policy.ParsePrice(""), nil
	}
	return s.catalog.UnitPrice(ctx, name)
}

func indexRequired() error {
	appErr := common.NewAppError("VALIDATION_FAILED", "validation failed", http.StatusBadRequest, nil)
	appErr.Details = map[string]string{"index": "required"}
	return appErr
}

func engineError(err error) error {
	switch {
	case errors.Is(err, pricing.ErrIndexOutOfRange):
		return common.NewAppError("INDEX_OUT_OF_RANGE", "line item index out of range", http.StatusBadRequest, err)
	case errors.Is(err, pricing.ErrLastItemRemovalRejected):
		return common.NewAppError("LAST_ITEM", "an invoice must keep at least one line item", http.StatusConflict, err)
	case errors.Is(err, pricing.ErrInvalidAmount):
		return common.NewAppError("INVALID_AMOUNT", "amount must be a non-negative number", http.StatusUnprocessableEntity, err)
	default:
		return err
	}
}
