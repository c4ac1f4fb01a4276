package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/noah-isme/backend-detailing/internal/pricing"
)

type quote struct {
	Items []pricing.LineItem `json:"items"`
	pricing.Quote
}

func main() {
	cliApp := &cli.App{
		Name:      "quote",
		Usage:     "price detailing services and print invoice totals",
		UsageText: `quote --item "Full Detail:$150-200" --item "Wax:$75:2" --tax-rate 0.085`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "item", Usage: `line item as "Name:price[:qty]"; price accepts descriptors like "$150-200"`, Required: true},
			&cli.Float64Flag{Name: "tax-rate", Usage: "tax rate between 0 and 1; 0 disables tax"},
			&cli.Float64Flag{Name: "fallback-price", Value: pricing.DefaultPolicy().FallbackPrice, Usage: "price used when a descriptor has no digits"},
			&cli.BoolFlag{Name: "json", Usage: "print JSON instead of a table"},
		},
		Action: func(c *cli.Context) error {
			policy := pricing.DefaultPolicy()
			policy.FallbackPrice = c.Float64("fallback-price")
			q, err := buildQuote(c.StringSlice("item"), c.Float64("tax-rate"), policy)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			if c.Bool("json") {
				enc := json.NewEncoder(c.App.Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(q)
			}
			return printTable(c.App.Writer, q)
		},
	}
	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildQuote(flags []string, taxRate float64, policy pricing.Policy) (quote, error) {
	if taxRate < 0 || taxRate > 1 {
		return quote{}, fmt.Errorf("tax rate must be between 0 and 1, got %v", taxRate)
	}
	var items []pricing.LineItem
	for _, raw := range flags {
		name, descriptor, qty, err := parseItem(raw)
		if err != nil {
			return quote{}, err
		}
		items = policy.AddLineItem(items, name, policy.ParsePrice(descriptor), qty)
	}
	tax := pricing.TaxConfig{Enabled: taxRate > 0, Rate: taxRate}
	q, err := pricing.Preview(items, tax)
	if err != nil {
		return quote{}, err
	}
	return quote{Items: items, Quote: q}, nil
}

func parseItem(raw string) (name, descriptor string, qty int, err error) {
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || len(parts) > 3 || strings.TrimSpace(parts[0]) == "" {
		return "", "", 0, fmt.Errorf("item %q: want Name:price[:qty]", raw)
	}
	qty = 1
	if len(parts) == 3 {
		qty, err = strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			return "", "", 0, fmt.Errorf("item %q: quantity: %w", raw, err)
		}
	}
	return strings.TrimSpace(parts[0]), parts[1], qty, nil
}

func printTable(w io.Writer, q quote) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tPRICE\tQTY\tAMOUNT")
	for _, it := range q.Items {
		fmt.Fprintf(tw, "%s\t%.2f\t%d\t%.2f\n", it.Service, it.Price, it.Quantity, pricing.Round2(it.Price*float64(it.Quantity)))
	}
	fmt.Fprintf(tw, "\t\tSubtotal\t%.2f\n", q.Subtotal)
	fmt.Fprintf(tw, "\t\tTax\t%.2f\n", q.Tax)
	fmt.Fprintf(tw, "\t\tTotal\t%.2f\n", q.Total)
	fmt.Fprintf(tw, "\t\tPoints\t%d\n", q.LoyaltyPoints)
	return tw.Flush()
}
