package handler

import (
	"math"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/order"
)

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// decodeCheckout parses
//
//	{"totalAmount": 35000, "productDetails": [{"productId": "p1", "quantity": 2, "price": "15000", "name": "Kopi"}]}
//
// Amounts and quantities may be JSON numbers or numeric strings.
func decodeCheckout(raw []byte) (checkout.Request, error) {
	var req checkout.Request
	err := jx.DecodeBytes(raw).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "totalAmount":
			v, err := decodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, "totalAmount")
			}
			req.TotalAmount = v
			return nil
		case "productDetails":
			return d.Arr(func(d *jx.Decoder) error {
				item, err := decodeLineItem(d)
				if err != nil {
					return errors.Wrapf(err, "productDetails[%d]", len(req.Items))
				}
				req.Items = append(req.Items, item)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	return req, err
}

func decodeLineItem(d *jx.Decoder) (checkout.LineItem, error) {
	var item checkout.LineItem
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "productId":
			v, err := d.Str()
			item.ProductID = v
			return err
		case "name":
			v, err := d.Str()
			item.Name = v
			return err
		case "quantity":
			v, err := decodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, "quantity")
			}
			if !v.IsInteger() {
				return errors.New("quantity must be an integer")
			}
			if v.GreaterThan(maxQuantity) || v.LessThan(minQuantity) {
				return errors.New("quantity out of range")
			}
			item.Quantity = int(v.IntPart())
			return nil
		case "price":
			v, err := decodeDecimal(d)
			if err != nil {
				return errors.Wrap(err, "price")
			}
			item.Price = v
			return nil
		default:
			return d.Skip()
		}
	})
	return item, err
}

var (
	maxQuantity = decimal.NewFromInt(checkout.MaxQuantity)
	minQuantity = decimal.NewFromInt(math.MinInt32)
)

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var s string
	switch d.Next() {
	case jx.String:
		v, err := d.Str()
		if err != nil {
			return decimal.Decimal{}, err
		}
		s = v
	case jx.Number:
		v, err := d.Num()
		if err != nil {
			return decimal.Decimal{}, err
		}
		s = v.String()
	default:
		return decimal.Decimal{}, errors.New("expected number or numeric string")
	}
	return decimal.NewFromString(s)
}

// decodeStatusPatch parses {"status": "CANCELLED"}.
func decodeStatusPatch(raw []byte) (order.Status, error) {
	var status string
	err := jx.DecodeBytes(raw).Obj(func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		v, err := d.Str()
		status = v
		return err
	})
	if err != nil {
		return "", err
	}
	return order.ParseStatus(status)
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("user_id")
	e.Str(o.UserID)
	e.FieldStart("address_id")
	e.Str(o.AddressID)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("total")
	e.Str(o.Total.StringFixed(2))
	if o.PaymentMethod != nil {
		e.FieldStart("payment_method")
		e.Str(*o.PaymentMethod)
	}
	if o.PaymentStatus != nil {
		e.FieldStart("payment_status")
		e.Str(*o.PaymentStatus)
	}
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Str(it.ProductID)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("price")
		e.Str(it.Price.StringFixed(2))
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("created_at")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	e.FieldStart("updated_at")
	e.Str(o.UpdatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}

func encodeStatus(e *jx.Encoder, s order.Snapshot) {
	e.ObjStart()
	e.FieldStart("order_id")
	e.Str(s.OrderID)
	e.FieldStart("status")
	e.Str(string(s.Status))
	e.FieldStart("updated_at")
	e.Str(s.UpdatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}

func encodeProduct(e *jx.Encoder, p *inventory.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("price")
	e.Str(p.Price.StringFixed(2))
	e.FieldStart("stock")
	e.Int(p.Stock)
	e.FieldStart("in_stock")
	e.Bool(p.Stock > 0)
	e.ObjEnd()
}
