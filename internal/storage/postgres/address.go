package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/storefront/internal/domain/address"
)

const (
	findMainAddressSQL = `SELECT id, user_id, recipient, phone, street, city, postal_code, is_main
	FROM addresses WHERE user_id = $1 AND is_main`

	upsertAddressSQL = `INSERT INTO addresses (id, user_id, recipient, phone, street, city, postal_code, is_main)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO UPDATE SET
		recipient = EXCLUDED.recipient,
		phone = EXCLUDED.phone,
		street = EXCLUDED.street,
		city = EXCLUDED.city,
		postal_code = EXCLUDED.postal_code,
		is_main = EXCLUDED.is_main`
)

var _ address.Repository = (*AddressRepository)(nil)

// AddressRepository implements address.Repository.
type AddressRepository struct {
	q Querier
}

// NewAddressRepository returns an AddressRepository using q.
func NewAddressRepository(q Querier) *AddressRepository {
	return &AddressRepository{q: q}
}

// FindMain returns the user's main address.
func (r *AddressRepository) FindMain(ctx context.Context, userID string) (*address.Address, error) {
	rows, err := r.q.Query(ctx, findMainAddressSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("querying main address of %q: %w", userID, err)
	}
	a, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (address.Address, error) {
		var a address.Address
		err := row.Scan(&a.ID, &a.UserID, &a.Recipient, &a.Phone, &a.Street, &a.City, &a.PostalCode, &a.Main)
		return a, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, address.ErrMainAddressNotFound
		}
		return nil, fmt.Errorf("scanning main address of %q: %w", userID, err)
	}
	return &a, nil
}

// Upsert inserts or updates an address.
func (r *AddressRepository) Upsert(ctx context.Context, a address.Address) error {
	_, err := r.q.Exec(ctx, upsertAddressSQL,
		a.ID, a.UserID, a.Recipient, a.Phone, a.Street, a.City, a.PostalCode, a.Main,
	)
	if err != nil {
		return fmt.Errorf("upserting address %q: %w", a.ID, err)
	}
	return nil
}
