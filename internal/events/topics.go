package events

// Topic constants for domain events emitted by the invoicing flow.
const (
	TopicInvoiceSent    = "invoice.sent"
	TopicLoyaltyAwarded = "loyalty.awarded"
)

// DefaultTopics returns the topics forwarded to the delivery webhook.
func DefaultTopics() []string {
	return []string{TopicInvoiceSent, TopicLoyaltyAwarded}
}

// InvoiceSent is the payload of TopicInvoiceSent.
type InvoiceSent struct {
	InvoiceID     string  `json:"invoiceId"`
	CustomerPhone string  `json:"customerPhone"`
	CustomerEmail string  `json:"customerEmail,omitempty"`
	CustomerName  string  `json:"customerName,omitempty"`
	Subtotal      float64 `json:"subtotal"`
	Tax           float64 `json:"tax"`
	Total         float64 `json:"total"`
	Currency      string  `json:"currency"`
	LoyaltyPoints int64   `json:"loyaltyPoints"`
}

// LoyaltyAwarded is the payload of TopicLoyaltyAwarded.
type LoyaltyAwarded struct {
	InvoiceID     string `json:"invoiceId"`
	CustomerPhone string `json:"customerPhone"`
	Points        int64  `json:"points"`
	Balance       int64  `json:"balance"`
}
