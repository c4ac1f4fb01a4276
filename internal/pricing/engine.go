package pricing

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrIndexOutOfRange is returned when a line item index does not address an existing item.
	ErrIndexOutOfRange = errors.New("line item index out of range")
	// ErrLastItemRemovalRejected preserves the rule that an open invoice keeps at least one line item.
	ErrLastItemRemovalRejected = errors.New("invoice must keep at least one line item")
	// ErrInvalidAmount is returned when loyalty points are derived from a negative or non-finite total.
	ErrInvalidAmount = errors.New("invalid amount")
)

// LineItem is one service entry on an invoice.
type LineItem struct {
	Service  string  `json:"service"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Totals is the derived subtotal/tax/total projection of a set of line items.
type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
}

// TaxConfig is the process-wide tax setting applied when computing totals.
type TaxConfig struct {
	Enabled bool    `json:"taxEnabled"`
	Rate    float64 `json:"taxRate"`
}

// Patch describes a partial update to a line item. Nil fields are left untouched.
type Patch struct {
	Price    *float64
	Quantity *int
}

// Quote bundles totals with the loyalty points the total would earn.
type Quote struct {
	Totals
	LoyaltyPoints int64 `json:"loyaltyPoints"`
}

// Policy carries the tunable bounds of the engine. Zero fields fall back to DefaultPolicy.
type Policy struct {
	FallbackPrice float64
	MinQuantity   int
	MaxQuantity   int
}

// DefaultPolicy returns the bounds used by the dashboard: fallback price 150, quantity 1..10.
func DefaultPolicy() Policy {
	return Policy{FallbackPrice: 150, MinQuantity: 1, MaxQuantity: 10}
}

func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if !finite(p.FallbackPrice) || p.FallbackPrice <= 0 {
		p.FallbackPrice = def.FallbackPrice
	}
	if p.MinQuantity < 1 {
		p.MinQuantity = def.MinQuantity
	}
	if p.MaxQuantity < p.MinQuantity {
		p.MaxQuantity = def.MaxQuantity
		if p.MaxQuantity < p.MinQuantity {
			p.MaxQuantity = p.MinQuantity
		}
	}
	return p
}

// ClampQuantity bounds qty to the policy's quantity range.
func (p Policy) ClampQuantity(qty int) int {
	p = p.normalized()
	if qty < p.MinQuantity {
		return p.MinQuantity
	}
	if qty > p.MaxQuantity {
		return p.MaxQuantity
	}
	return qty
}

// AddLineItem returns a copy of items with a new item appended. The quantity is
// clamped to the policy range and the price to >= 0.
func (p Policy) AddLineItem(items []LineItem, service string, unitPrice float64, qty int) []LineItem {
	out := make([]LineItem, len(items), len(items)+1)
	copy(out, items)
	return append(out, LineItem{
		Service:  strings.TrimSpace(service),
		Price:    clampPrice(unitPrice),
		Quantity: p.ClampQuantity(qty),
	})
}

// UpdateLineItem returns a copy of items with the patch applied to items[index].
// Totals are not recomputed.
func (p Policy) UpdateLineItem(items []LineItem, index int, patch Patch) ([]LineItem, error) {
	if index < 0 || index >= len(items) {
		return nil, fmt.Errorf("%w: index %d, %d items", ErrIndexOutOfRange, index, len(items))
	}
	out := make([]LineItem, len(items))
	copy(out, items)
	if patch.Price != nil {
		out[index].Price = clampPrice(*patch.Price)
	}
	if patch.Quantity != nil {
		out[index].Quantity = p.ClampQuantity(*patch.Quantity)
	}
	return out, nil
}

// AddLineItem appends using DefaultPolicy.
func AddLineItem(items []LineItem, service string, unitPrice float64, qty int) []LineItem {
	return DefaultPolicy().AddLineItem(items, service, unitPrice, qty)
}

// UpdateLineItem patches using DefaultPolicy.
func UpdateLineItem(items []LineItem, index int, patch Patch) ([]LineItem, error) {
	return DefaultPolicy().UpdateLineItem(items, index, patch)
}

// RemoveLineItem returns a copy of items without items[index]. Removing the
// only remaining item is rejected.
func RemoveLineItem(items []LineItem, index int) ([]LineItem, error) {
	if len(items) == 1 {
		return nil, ErrLastItemRemovalRejected
	}
	if index < 0 || index >= len(items) {
		return nil, fmt.Errorf("%w: index %d, %d items", ErrIndexOutOfRange, index, len(items))
	}
	out := make([]LineItem, 0, len(items)-1)
	out = append(out, items[:index]...)
	return append(out, items[index+1:]...), nil
}

// ComputeTotals derives subtotal, tax and total. Tax is rounded once, half away
// from zero, to two decimal places.
func ComputeTotals(items []LineItem, cfg TaxConfig) Totals {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(decimalOf(it.Price).Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	subtotal := sum.InexactFloat64()
	var tax float64
	if cfg.Enabled {
		tax = decimalOf(subtotal).Mul(decimalOf(cfg.Rate)).Round(2).InexactFloat64()
	}
	return Totals{Subtotal: subtotal, Tax: tax, Total: subtotal + tax}
}

// DeriveLoyaltyPoints awards one point per whole currency unit of total.
func DeriveLoyaltyPoints(total float64) (int64, error) {
	if !finite(total) || total < 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, total)
	}
	floored := math.Floor(total)
	if floored >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidAmount, total)
	}
	return int64(floored), nil
}

// Preview computes totals and the points they would earn. Items that did not
// pass through AddLineItem may carry negative prices; a negative total yields
// ErrInvalidAmount.
func Preview(items []LineItem, cfg TaxConfig) (Quote, error) {
	totals := ComputeTotals(items, cfg)
	points, err := DeriveLoyaltyPoints(totals.Total)
	if err != nil {
		return Quote{}, err
	}
	return Quote{Totals: totals, LoyaltyPoints: points}, nil
}

// Round2 rounds v to two decimal places, half away from zero, using fixed-point arithmetic.
func Round2(v float64) float64 {
	if !finite(v) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// ParseAmount converts user-entered text to a non-negative amount. Anything
// that is not a finite number yields 0.
func ParseAmount(raw string) float64 {
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "$"))
	if trimmed == "" {
		return 0
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(trimmed, ",", ""), 64)
	if err != nil {
		return 0
	}
	return clampPrice(v)
}

func clampPrice(v float64) float64 {
	if !finite(v) || v < 0 {
		return 0
	}
	return v
}

func decimalOf(v float64) decimal.Decimal {
	if !finite(v) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
