package loyalty

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-detailing/internal/db"
)

// PGStore keeps balances in loyalty_accounts and the award ledger in loyalty_awards.
type PGStore struct {
	Pool interface {
		db.DBTX
		db.TxBeginner
	}
}

const (
	ensureAccountSQL = `
INSERT INTO loyalty_accounts (customer_phone, customer_name)
VALUES ($1, $2)
ON CONFLICT (customer_phone) DO UPDATE
SET customer_name = COALESCE(NULLIF(EXCLUDED.customer_name, ''), loyalty_accounts.customer_name)`

	insertAwardSQL = `
INSERT INTO loyalty_awards (invoice_id, customer_phone, amount, points)
VALUES ($1, $2, $3, $4)
ON CONFLICT (invoice_id) DO NOTHING`

	creditSQL = `
UPDATE loyalty_accounts SET points = points + $2, updated_at = now()
WHERE customer_phone = $1
RETURNING points`
)

// Grant implements Store.
func (s *PGStore) Grant(ctx context.Context, g Grant) (int64, error) {
	var balance int64
	err := pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, ensureAccountSQL, g.CustomerPhone, g.CustomerName); err != nil {
			return fmt.Errorf("ensure loyalty account: %w", err)
		}
		tag, err := tx.Exec(ctx, insertAwardSQL, g.InvoiceID, g.CustomerPhone, g.Amount, g.Points)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return ErrAlreadyAwarded
			}
			return fmt.Errorf("insert loyalty award: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrAlreadyAwarded
		}
		if err := tx.QueryRow(ctx, creditSQL, g.CustomerPhone, g.Points).Scan(&balance); err != nil {
			return fmt.Errorf("credit loyalty account: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Account implements Store.
func (s *PGStore) Account(ctx context.Context, phone string) (Account, error) {
	var acct Account
	err := s.Pool.QueryRow(ctx,
		`SELECT customer_phone, customer_name, points, updated_at FROM loyalty_accounts WHERE customer_phone = $1`, phone).
		Scan(&acct.CustomerPhone, &acct.CustomerName, &acct.Points, &acct.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("load loyalty account: %w", err)
	}
	return acct, nil
}
