package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PriceParseTotal counts price descriptor parses by outcome (single, range, fallback).
	PriceParseTotal *prometheus.CounterVec
	// InvoicesSentTotal counts send-invoice outcomes.
	InvoicesSentTotal *prometheus.CounterVec
	// InvoiceTotalAmount records invoice totals in currency units.
	InvoiceTotalAmount prometheus.Histogram
	// LoyaltyAwardsTotal counts loyalty award outcomes (awarded, duplicate, failed).
	LoyaltyAwardsTotal *prometheus.CounterVec
	// LoyaltyPointsAwarded sums points granted to customers.
	LoyaltyPointsAwarded prometheus.Counter
	// DeliveryAttemptsTotal counts outbound invoice delivery webhook outcomes.
	DeliveryAttemptsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PriceParseTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_parse_total",
			Help:      "Count of price descriptor parses by outcome.",
		}, []string{"result"}))
		InvoicesSentTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoices_sent_total",
			Help:      "Count of send-invoice requests by outcome.",
		}, []string{"result"}))
		InvoiceTotalAmount = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "invoice_total_amount",
			Help:      "Distribution of sent invoice totals in currency units.",
			Buckets:   []float64{25, 50, 100, 150, 200, 300, 500, 1000, 2500},
		}))
		LoyaltyAwardsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loyalty_awards_total",
			Help:      "Count of loyalty award attempts by outcome.",
		}, []string{"result"}))
		LoyaltyPointsAwarded = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loyalty_points_awarded_total",
			Help:      "Total loyalty points granted.",
		}))
		DeliveryAttemptsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoice_delivery_attempts_total",
			Help:      "Count of invoice delivery webhook attempts by outcome.",
		}, []string{"result"}))
	})
}

// CountPriceParse records the outcome of a descriptor parse when metrics are registered.
func CountPriceParse(result string) {
	if PriceParseTotal != nil {
		PriceParseTotal.WithLabelValues(result).Inc()
	}
}

// CountInvoiceSent records a send-invoice outcome and, on success, its total.
func CountInvoiceSent(result string, total float64) {
	if InvoicesSentTotal != nil {
		InvoicesSentTotal.WithLabelValues(result).Inc()
	}
	if result == "sent" && InvoiceTotalAmount != nil {
		InvoiceTotalAmount.Observe(total)
	}
}

// CountLoyaltyAward records an award outcome and the points it granted.
func CountLoyaltyAward(result string, points int64) {
	if LoyaltyAwardsTotal != nil {
		LoyaltyAwardsTotal.WithLabelValues(result).Inc()
	}
	if points > 0 && LoyaltyPointsAwarded != nil {
		LoyaltyPointsAwarded.Add(float64(points))
	}
}

// CountDelivery records an outbound delivery attempt outcome.
func CountDelivery(result string) {
	if DeliveryAttemptsTotal != nil {
		DeliveryAttemptsTotal.WithLabelValues(result).Inc()
	}
}
