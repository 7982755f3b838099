// Package midtrans implements payment.Gateway on top of the Midtrans Snap API.
package midtrans

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/xenking/storefront/internal/domain/payment"
)

// SandboxURL is the Snap sandbox endpoint.
const SandboxURL = "https://app.sandbox.midtrans.com"

// Config holds the merchant credentials and endpoints.
type Config struct {
	ServerKey string
	BaseURL   string
	// FinishURL is where Snap redirects the buyer after payment.
	FinishURL string
	Timeout   time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its transport is
// still wrapped for tracing.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cl *Client) { cl.tp = tp }
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cl *Client) { cl.mp = mp }
}

var _ payment.Gateway = (*Client)(nil)

// Client talks to Snap.
type Client struct {
	cfg  Config
	http *http.Client
	tp   trace.TracerProvider
	mp   metric.MeterProvider
}

// NewClient creates a Client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if cfg.ServerKey == "" {
		return nil, errors.New("midtrans server key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = SandboxURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	c := &Client{
		cfg:  cfg,
		http: &http.Client{},
		tp:   tracenoop.NewTracerProvider(),
		mp:   metricnoop.NewMeterProvider(),
	}
	for _, o := range opts {
		o(c)
	}

	base := c.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped := *c.http
	wrapped.Timeout = cfg.Timeout
	wrapped.Transport = otelhttp.NewTransport(base,
		otelhttp.WithTracerProvider(c.tp),
		otelhttp.WithMeterProvider(c.mp),
	)
	c.http = &wrapped
	return c, nil
}

// CreateTransaction requests a Snap token for the order.
func (c *Client) CreateTransaction(ctx context.Context, req payment.TransactionRequest) (*payment.Transaction, error) {
	body := c.encodeTransaction(req)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/snap/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	httpReq.SetBasicAuth(c.cfg.ServerKey, "")
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(payment.ErrGateway, err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(payment.ErrGateway, "read response: "+err.Error())
	}

	tx, messages, err := decodeTransaction(raw)
	if err != nil {
		return nil, errors.Wrapf(payment.ErrGateway, "status %d: decode response: %s", resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || tx.Token == "" {
		msg := strings.Join(messages, "; ")
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, errors.Wrapf(payment.ErrGateway, "status %d: %s", resp.StatusCode, msg)
	}
	return tx, nil
}

func (c *Client) encodeTransaction(req payment.TransactionRequest) []byte {
	var e jx.Encoder
	e.ObjStart()

	e.FieldStart("transaction_details")
	e.ObjStart()
	e.FieldStart("order_id")
	e.Str(req.OrderID)
	e.FieldStart("gross_amount")
	e.Num(jx.Num(req.GrossAmount.String()))
	e.ObjEnd()

	e.FieldStart("item_details")
	e.ArrStart()
	for _, it := range req.Items {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(it.ID)
		e.FieldStart("price")
		e.Num(jx.Num(it.Price.String()))
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("name")
		e.Str(truncate(it.Name, 50))
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("customer_details")
	e.ObjStart()
	e.FieldStart("first_name")
	e.Str(req.Customer.Name)
	if req.Customer.Email != "" {
		e.FieldStart("email")
		e.Str(req.Customer.Email)
	}
	if req.Customer.Phone != "" {
		e.FieldStart("phone")
		e.Str(req.Customer.Phone)
	}
	e.FieldStart("shipping_address")
	e.ObjStart()
	e.FieldStart("first_name")
	e.Str(req.Customer.Name)
	e.FieldStart("address")
	e.Str(req.Customer.Street)
	e.FieldStart("city")
	e.Str(req.Customer.City)
	e.FieldStart("postal_code")
	e.Str(req.Customer.PostalCode)
	e.ObjEnd()
	e.ObjEnd()

	e.FieldStart("credit_card")
	e.ObjStart()
	e.FieldStart("secure")
	e.Bool(true)
	e.ObjEnd()

	if c.cfg.FinishURL != "" {
		e.FieldStart("callbacks")
		e.ObjStart()
		e.FieldStart("finish")
		e.Str(c.cfg.FinishURL)
		e.ObjEnd()
	}

	e.ObjEnd()
	return e.Bytes()
}

func decodeTransaction(raw []byte) (*payment.Transaction, []string, error) {
	var (
		tx       payment.Transaction
		messages []string
	)
	err := jx.DecodeBytes(raw).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "token":
			v, err := d.Str()
			tx.Token = v
			return err
		case "redirect_url":
			v, err := d.Str()
			tx.RedirectURL = v
			return err
		case "error_messages":
			return d.Arr(func(d *jx.Decoder) error {
				v, err := d.Str()
				messages = append(messages, v)
				return err
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, nil, err
	}
	return &tx, messages, nil
}

// truncate cuts s to at most n runes; Snap rejects longer item names.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
