package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetClient loads one client record.
func (db *DB) GetClient(ctx context.Context, clientID string) (*Client, error) {
	var c Client
	err := db.Pool.QueryRow(ctx,
		`SELECT id, name, phone, company, debt_amount, contract_number, created_at
		 FROM clients WHERE id = $1`, clientID).
		Scan(&c.ID, &c.Name, &c.Phone, &c.Company, &c.DebtAmount, &c.ContractNumber, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return &c, nil
}
