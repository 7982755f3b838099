package checkout

import (
	"fmt"
	"math"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/payment"
)

// Sentinel errors for request validation.
var (
	ErrEmptyItems    = errors.New("items required")
	ErrInvalidTotal  = errors.New("total amount must be greater than 0")
	ErrTotalMismatch = errors.New("total amount is less than the items subtotal")
)

// MaxQuantity is the largest quantity of one product a checkout may reserve,
// after duplicate lines are merged. It matches the INTEGER stock column.
const MaxQuantity = math.MaxInt32

// InvalidQuantityError indicates a line item quantity outside 1..MaxQuantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be between 1 and %d for product %s", MaxQuantity, e.ProductID)
}

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

func (e *ProductNotFoundError) Is(target error) bool {
	return target == inventory.ErrProductNotFound
}

// InsufficientStockError indicates a product cannot cover the requested quantity.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == inventory.ErrInsufficientStock
}

// GatewayError is returned when the order was committed but the payment
// gateway could not issue a transaction. The order stays PENDING with its
// stock reserved until it expires.
type GatewayError struct {
	OrderID string
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("create payment transaction for order %s: %v", e.OrderID, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func (e *GatewayError) Is(target error) bool {
	return target == payment.ErrGateway
}
