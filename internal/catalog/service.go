package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-detailing/internal/cache"
	"github.com/noah-isme/backend-detailing/internal/common"
	"github.com/noah-isme/backend-detailing/internal/db"
	"github.com/noah-isme/backend-detailing/internal/obs"
	"github.com/noah-isme/backend-detailing/internal/pricing"
)

// ErrServiceNotFound is returned when no catalog entry matches.
var ErrServiceNotFound = errors.New("catalog service not found")

// Record is a service catalog row.
type Record struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name" validate:"required,max=120"`
	PriceRange      string    `json:"priceRange" validate:"max=60"`
	DurationMinutes int       `json:"durationMinutes" validate:"gte=0"`
	Description     string    `json:"description"`
	SortOrder       int       `json:"sortOrder"`
}

// Item is the public projection of a Record with its derived unit price.
type Item struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	PriceRange      string  `json:"priceRange"`
	UnitPrice       float64 `json:"unitPrice"`
	DurationMinutes int     `json:"durationMinutes"`
	Description     string  `json:"description,omitempty"`
}

// Store persists catalog records.
type Store interface {
	ListServices(ctx context.Context) ([]Record, error)
	UpsertService(ctx context.Context, rec Record) error
}

// Service exposes the catalog with a read-through cache.
type Service struct {
	store  Store
	cache  *cache.JSON
	policy pricing.Policy
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store  Store
	Cache  *cache.JSON
	Policy pricing.Policy
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("catalog store is required")
	}
	return &Service{store: cfg.Store, cache: cfg.Cache, policy: cfg.Policy}, nil
}

// List returns every catalog entry ordered for display.
func (s *Service) List(ctx context.Context) ([]Item, error) {
	records, err := s.records(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(records))
	for _, rec := range records {
		items = append(items, s.item(rec))
	}
	return items, nil
}

// FindByName looks a service up by its display name, ignoring case and surrounding space.
func (s *Service) FindByName(ctx context.Context, name string) (Item, error) {
	records, err := s.records(ctx)
	if err != nil {
		return Item{}, err
	}
	want := strings.TrimSpace(name)
	for _, rec := range records {
		if strings.EqualFold(strings.TrimSpace(rec.Name), want) {
			return s.item(rec), nil
		}
	}
	return Item{}, fmt.Errorf("%w: %q", ErrServiceNotFound, want)
}

// UnitPrice resolves the price for a service name, falling back to the policy
// fallback price for names missing from the catalog.
func (s *Service) UnitPrice(ctx context.Context, name string) (float64, error) {
	item, err := s.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, ErrServiceNotFound) {
			return s.policy.ParsePrice(""), nil
		}
		return 0, err
	}
	return item.UnitPrice, nil
}

// Upsert validates and stores rec, then drops the cached listing.
func (s *Service) Upsert(ctx context.Context, rec Record) error {
	rec.Name = strings.TrimSpace(rec.Name)
	rec.PriceRange = strings.TrimSpace(rec.PriceRange)
	if err := common.Validate(rec); err != nil {
		return err
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if err := s.store.UpsertService(ctx, rec); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, cache.KeyServiceCatalog); err != nil {
		obs.Logger(ctx).Warn().Err(err).Msg("catalog cache invalidate failed")
	}
	return nil
}

func (s *Service) records(ctx context.Context) ([]Record, error) {
	var cached []Record
	if ok, err := s.cache.Get(ctx, cache.KeyServiceCatalog, &cached); err == nil && ok {
		return cached, nil
	} else if err != nil {
		obs.Logger(ctx).Warn().Err(err).Msg("catalog cache read failed")
	}
	records, err := s.store.ListServices(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, cache.KeyServiceCatalog, records); err != nil {
		obs.Logger(ctx).Warn().Err(err).Msg("catalog cache write failed")
	}
	return records, nil
}

func (s *Service) item(rec Record) Item {
	price, kind := s.policy.ParsePriceKind(rec.PriceRange)
	obs.CountPriceParse(string(kind))
	return Item{
		ID:              rec.ID.String(),
		Name:            rec.Name,
		PriceRange:      rec.PriceRange,
		UnitPrice:       price,
		DurationMinutes: rec.DurationMinutes,
		Description:     rec.Description,
	}
}

// PGStore is the Postgres-backed Store.
type PGStore struct {
	DB db.DBTX
}

// NewPGStore constructs a PGStore.
func NewPGStore(conn db.DBTX) *PGStore {
	return &PGStore{DB: conn}
}

const listServicesSQL = `
SELECT id, name, price_range, duration_minutes, description, sort_order
FROM service_catalog
ORDER BY sort_order, name`

// ListServices implements Store.
func (s *PGStore) ListServices(ctx context.Context) ([]Record, error) {
	rows, err := s.DB.Query(ctx, listServicesSQL)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var rec Record
		err := row.Scan(&rec.ID, &rec.Name, &rec.PriceRange, &rec.DurationMinutes, &rec.Description, &rec.SortOrder)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan services: %w", err)
	}
	return records, nil
}

const upsertServiceSQL = `
INSERT INTO service_catalog (id, name, price_range, duration_minutes, description, sort_order)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (lower(name)) DO UPDATE
SET price_range = EXCLUDED.price_range,
    duration_minutes = EXCLUDED.duration_minutes,
    description = EXCLUDED.description,
    sort_order = EXCLUDED.sort_order,
    updated_at = now()`

// UpsertService implements Store. Names are unique case-insensitively.
func (s *PGStore) UpsertService(ctx context.Context, rec Record) error {
	if _, err := s.DB.Exec(ctx, upsertServiceSQL, rec.ID, rec.Name, rec.PriceRange, rec.DurationMinutes, rec.Description, rec.SortOrder); err != nil {
		return fmt.Errorf("upsert service %q: %w", rec.Name, err)
	}
	return nil
}
