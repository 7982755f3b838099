// Package payment describes the external payment gateway.
package payment

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrGateway wraps every failure talking to the gateway.
	ErrGateway = errors.New("payment gateway error")
	// ErrInvalidSignature is returned for notifications that fail verification.
	ErrInvalidSignature = errors.New("invalid notification signature")
	// ErrMalformedNotification is returned for notifications missing required fields.
	ErrMalformedNotification = errors.New("malformed notification")
)

// ItemDetail is one line of the breakdown sent to the gateway.
type ItemDetail struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Quantity int
}

// Customer is the buyer shown on the gateway payment page.
type Customer struct {
	Name       string
	Email      string
	Phone      string
	Street     string
	City       string
	PostalCode string
}

// TransactionRequest asks the gateway for a payment token. The item prices
// times quantities must add up to GrossAmount.
type TransactionRequest struct {
	OrderID     string
	GrossAmount decimal.Decimal
	Items       []ItemDetail
	Customer    Customer
}

// Transaction is the gateway's answer to a TransactionRequest.
type Transaction struct {
	Token       string
	RedirectURL string
}

// Notification is a verified asynchronous status report.
type Notification struct {
	OrderID           string
	TransactionID     string
	TransactionStatus string
	PaymentType       string
	FraudStatus       string
	StatusCode        string
	GrossAmount       string
}

// Gateway creates payment transactions and verifies their notifications.
type Gateway interface {
	CreateTransaction(ctx context.Context, req TransactionRequest) (*Transaction, error)
	// ParseNotification decodes and verifies a raw webhook body.
	ParseNotification(ctx context.Context, payload []byte) (*Notification, error)
}
