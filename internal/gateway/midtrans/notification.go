package midtrans

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront/internal/domain/payment"
)

// ParseNotification decodes an HTTP notification body and checks its
// signature_key against sha512(order_id + status_code + gross_amount + server key).
func (c *Client) ParseNotification(_ context.Context, payload []byte) (*payment.Notification, error) {
	n, signature, err := decodeNotification(payload)
	if err != nil {
		return nil, errors.Wrap(payment.ErrMalformedNotification, err.Error())
	}
	switch {
	case n.OrderID == "":
		return nil, errors.Wrap(payment.ErrMalformedNotification, "order_id missing")
	case n.TransactionStatus == "":
		return nil, errors.Wrap(payment.ErrMalformedNotification, "transaction_status missing")
	case n.StatusCode == "" || n.GrossAmount == "":
		return nil, errors.Wrap(payment.ErrMalformedNotification, "status_code or gross_amount missing")
	}

	want := Signature(n.OrderID, n.StatusCode, n.GrossAmount, c.cfg.ServerKey)
	if subtle.ConstantTimeCompare([]byte(want), []byte(signature)) != 1 {
		return nil, payment.ErrInvalidSignature
	}
	if n.TransactionID == "" {
		// Some test notifications omit it; fall back to something stable per order.
		n.TransactionID = n.OrderID
	}
	return n, nil
}

// Signature computes the notification signature_key.
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func decodeNotification(payload []byte) (*payment.Notification, string, error) {
	var (
		n         payment.Notification
		signature string
	)
	err := jx.DecodeBytes(payload).Obj(func(d *jx.Decoder, key string) error {
		var (
			v   string
			err error
		)
		switch key {
		case "order_id", "transaction_id", "transaction_status", "payment_type",
			"fraud_status", "status_code", "signature_key":
			v, err = d.Str()
		case "gross_amount":
			v, err = strOrNum(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		switch key {
		case "order_id":
			n.OrderID = v
		case "transaction_id":
			n.TransactionID = v
		case "transaction_status":
			n.TransactionStatus = v
		case "payment_type":
			n.PaymentType = v
		case "fraud_status":
			n.FraudStatus = v
		case "status_code":
			n.StatusCode = v
		case "gross_amount":
			n.GrossAmount = v
		case "signature_key":
			signature = v
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return &n, signature, nil
}

// strOrNum reads a value that may be sent as a string or a bare number,
// keeping the number's original text.
func strOrNum(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		num, err := d.Num()
		return num.String(), err
	default:
		return "", errors.New("expected string or number")
	}
}
