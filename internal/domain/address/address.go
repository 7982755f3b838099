package address

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrMainAddressNotFound is returned when a user has no main address.
var ErrMainAddressNotFound = errors.New("main address not found")

// Address is a shipping address. Each user has at most one main address.
type Address struct {
	ID         string
	UserID     string
	Recipient  string
	Phone      string
	Street     string
	City       string
	PostalCode string
	Main       bool
}

// Repository looks up user addresses.
type Repository interface {
	FindMain(ctx context.Context, userID string) (*Address, error)
}
