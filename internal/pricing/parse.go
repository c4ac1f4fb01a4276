package pricing

import (
	"regexp"
	"strconv"
)

// PriceKind reports which branch of the descriptor parser produced a price.
type PriceKind string

const (
	PriceSingle   PriceKind = "single"
	PriceRange    PriceKind = "range"
	PriceFallback PriceKind = "fallback"
)

// first digit run, optionally followed by a dash-like separator and a second digit run
var descriptorPattern = regexp.MustCompile(`(\d+)(?:\s*[-‐‑‒–—―]\s*\$?\s*(\d+))?`)

// ParsePrice derives a unit price from a free-text descriptor such as "$150",
// "$150-200" or "150–200". Ranges resolve to their unrounded midpoint and text
// without digits resolves to the policy fallback. It never fails.
func (p Policy) ParsePrice(descriptor string) float64 {
	price, _ := p.ParsePriceKind(descriptor)
	return price
}

// ParsePriceKind is ParsePrice that also reports how the price was derived.
func (p Policy) ParsePriceKind(descriptor string) (float64, PriceKind) {
	p = p.normalized()
	m := descriptorPattern.FindStringSubmatch(descriptor)
	if m == nil {
		return p.FallbackPrice, PriceFallback
	}
	lo, ok := parseDigits(m[1])
	if !ok {
		return p.FallbackPrice, PriceFallback
	}
	if m[2] == "" {
		return lo, PriceSingle
	}
	hi, ok := parseDigits(m[2])
	if !ok {
		return lo, PriceSingle
	}
	mid := (lo + hi) / 2
	if !finite(mid) {
		return lo, PriceSingle
	}
	return mid, PriceRange
}

// ParsePrice parses with DefaultPolicy.
func ParsePrice(descriptor string) float64 {
	return DefaultPolicy().ParsePrice(descriptor)
}

func parseDigits(run string) (float64, bool) {
	v, err := strconv.ParseFloat(run, 64)
	if err != nil || !finite(v) {
		return 0, false
	}
	return v, true
}
