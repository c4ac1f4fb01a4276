package invoice

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-detailing/internal/db"
	"github.com/noah-isme/backend-detailing/internal/pricing"
)

// PGStore persists invoices and their line items.
type PGStore struct {
	Pool interface {
		db.DBTX
		db.TxBeginner
	}
}

const insertInvoiceSQL = `
INSERT INTO invoices (id, customer_phone, customer_email, customer_name, notes, currency,
    subtotal, tax, total, tax_rate, tax_enabled, loyalty_points, sent_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

var lineItemColumns = []string{"invoice_id", "position", "service", "unit_price", "quantity"}

// Save writes the invoice and its items in one transaction.
func (s *PGStore) Save(ctx context.Context, inv Invoice) error {
	return pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, insertInvoiceSQL,
			inv.ID, inv.CustomerPhone, inv.CustomerEmail, inv.CustomerName, inv.Notes, inv.Currency,
			inv.Totals.Subtotal, inv.Totals.Tax, inv.Totals.Total, inv.TaxConfig.Rate, inv.TaxConfig.Enabled,
			inv.LoyaltyPoints, inv.SentAt)
		if err != nil {
			return fmt.Errorf("insert invoice: %w", err)
		}
		rows := make([][]any, 0, len(inv.Items))
		for i, it := range inv.Items {
			rows = append(rows, []any{inv.ID, i, it.Service, it.Price, it.Quantity})
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"invoice_line_items"}, lineItemColumns, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("insert invoice items: %w", err)
		}
		return nil
	})
}

const selectInvoiceSQL = `
SELECT id, customer_phone, customer_email, customer_name, notes, currency,
    subtotal::float8, tax::float8, total::float8, tax_rate::float8, tax_enabled, loyalty_points, sent_at
FROM invoices WHERE id = $1`

const selectItemsSQL = `
SELECT service, unit_price::float8, quantity
FROM invoice_line_items WHERE invoice_id = $1 ORDER BY position`

// Get loads an invoice with its items in their original order.
func (s *PGStore) Get(ctx context.Context, id uuid.UUID) (Invoice, error) {
	var inv Invoice
	err := s.Pool.QueryRow(ctx, selectInvoiceSQL, id).Scan(
		&inv.ID, &inv.CustomerPhone, &inv.CustomerEmail, &inv.CustomerName, &inv.Notes, &inv.Currency,
		&inv.Totals.Subtotal, &inv.Totals.Tax, &inv.Totals.Total, &inv.TaxConfig.Rate, &inv.TaxConfig.Enabled,
		&inv.LoyaltyPoints, &inv.SentAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, ErrNotFound
	}
	if err != nil {
		return Invoice{}, fmt.Errorf("load invoice: %w", err)
	}
	rows, err := s.Pool.Query(ctx, selectItemsSQL, id)
	if err != nil {
		return Invoice{}, fmt.Errorf("load invoice items: %w", err)
	}
	inv.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (pricing.LineItem, error) {
		var it pricing.LineItem
		err := row.Scan(&it.Service, &it.Price, &it.Quantity)
		return it, err
	})
	if err != nil {
		return Invoice{}, fmt.Errorf("scan invoice items: %w", err)
	}
	return inv, nil
}
