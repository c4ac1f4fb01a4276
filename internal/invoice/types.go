package invoice

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-detailing/internal/pricing"
)

// Price is a unit price that decodes from a JSON number or a numeric string.
// Strings that are not numbers decode to 0.
type Price float64

// UnmarshalJSON implements json.Unmarshaler.
func (p *Price) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = Price(pricing.ParseAmount(s))
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return errors.New("price must be a number or numeric string")
	}
	*p = Price(f)
	return nil
}

// ItemInput is a line item as sent by the dashboard. The service name is
// required once surrounding whitespace is trimmed.
type ItemInput struct {
	Service  string `json:"service" validate:"required,max=120"`
	Price    Price  `json:"price"`
	Quantity int    `json:"quantity"`
}

// Invoice is a sent invoice with its frozen line items and totals.
type Invoice struct {
	ID            uuid.UUID          `json:"id"`
	CustomerPhone string             `json:"customerPhone"`
	CustomerEmail string             `json:"customerEmail,omitempty"`
	CustomerName  string             `json:"customerName,omitempty"`
	Notes         string             `json:"notes,omitempty"`
	Currency      string             `json:"currency"`
	Items         []pricing.LineItem `json:"items"`
	Totals        pricing.Totals     `json:"totals"`
	TaxConfig     pricing.TaxConfig  `json:"taxConfig"`
	LoyaltyPoints int64              `json:"loyaltyPoints"`
	SentAt        time.Time          `json:"sentAt"`
}

// DraftRequest seeds a draft from catalog service names.
type DraftRequest struct {
	Services []string `json:"services" validate:"omitempty,max=50,dive,max=120"`
}

// ItemsRequest applies one edit to the dashboard's working item list.
type ItemsRequest struct {
	Items    []ItemInput `json:"items" validate:"max=50,dive"`
	Op       string      `json:"op" validate:"required,oneof=add update remove"`
	Index    *int        `json:"index"`
	Service  string      `json:"service" validate:"max=120"`
	Price    *Price      `json:"price"`
	Quantity *int        `json:"quantity"`
}

// TotalsRequest asks for a totals preview.
type TotalsRequest struct {
	Items []ItemInput `json:"items" validate:"max=50,dive"`
}

// Draft is the working item list with its preview.
type Draft struct {
	Items  []pricing.LineItem `json:"items"`
	Totals pricing.Quote      `json:"totals"`
}

// SendRequest is the dashboard's send-invoice payload.
type SendRequest struct {
	CustomerPhone string      `json:"customerPhone" validate:"required,max=32"`
	CustomerEmail string      `json:"customerEmail" validate:"omitempty,email,max=254"`
	CustomerName  string      `json:"customerName" validate:"max=120"`
	Amount        *Price      `json:"amount"`
	Service       string      `json:"service" validate:"max=120"`
	Notes         string      `json:"notes" validate:"max=2000"`
	Items         []ItemInput `json:"items" validate:"max=50,dive"`
}

// SendResult is returned once an invoice has been stored.
type SendResult struct {
	Success       bool           `json:"success"`
	InvoiceID     string         `json:"invoiceId"`
	Totals        pricing.Totals `json:"totals"`
	LoyaltyPoints int64          `json:"loyaltyPoints"`
}
