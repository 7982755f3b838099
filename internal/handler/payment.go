package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/address"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/store"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Checkout handles POST /api/payment.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	user := auth.FromContext(r.Context())
	if user == nil {
		httpmiddleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		httpmiddleware.WriteError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	req, err := decodeCheckout(raw)
	if err != nil {
		httpmiddleware.WriteError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	res, err := h.checkout.Checkout(r.Context(), user, req)
	if err != nil {
		writeCheckoutError(w, r, err)
		return
	}

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("order_id")
	e.Str(res.Order.ID)
	e.FieldStart("token")
	e.Str(res.Transaction.Token)
	e.FieldStart("redirect_url")
	e.Str(res.Transaction.RedirectURL)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

// writeCheckoutError maps checkout failures to responses. Caller mistakes and
// stock problems are 400; everything else is logged and reported as 500.
func writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		qtyErr     *checkout.InvalidQuantityError
		gatewayErr *checkout.GatewayError
	)
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		httpmiddleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, checkout.ErrEmptyItems),
		errors.Is(err, checkout.ErrInvalidTotal),
		errors.Is(err, checkout.ErrTotalMismatch),
		errors.As(err, &qtyErr),
		errors.Is(err, inventory.ErrProductNotFound),
		errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, address.ErrMainAddressNotFound):
		httpmiddleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &gatewayErr):
		zctx.From(r.Context()).Error("Payment transaction failed",
			zap.String("order_id", gatewayErr.OrderID),
			zap.Error(err),
		)
		var e jx.Encoder
		e.ObjStart()
		e.FieldStart("code")
		e.Int(http.StatusInternalServerError)
		e.FieldStart("message")
		e.Str("payment gateway unavailable")
		e.FieldStart("order_id")
		e.Str(gatewayErr.OrderID)
		e.ObjEnd()
		writeJSON(w, http.StatusInternalServerError, &e)
	case errors.Is(err, store.ErrTimeout):
		zctx.From(r.Context()).Warn("Checkout timed out", zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "checkout timed out, try again")
	default:
		zctx.From(r.Context()).Error("Checkout failed", zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}

// Webhook handles POST /api/payment/webhooks. Any failure answers 500 so the
// gateway retries; replays of processed notifications answer 200.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	lg := zctx.From(r.Context())

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		lg.Warn("Read payment notification", zap.Error(err))
		webhookFailed(w)
		return
	}

	out, err := h.reconciler.HandleNotification(r.Context(), raw)
	if err != nil {
		lg.Warn("Payment notification failed", zap.Error(err))
		webhookFailed(w)
		return
	}

	lg.Info("Payment notification processed",
		zap.String("order_id", out.OrderID),
		zap.String("result", string(out.Result)),
	)
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("success")
	e.Bool(true)
	e.ObjEnd()
	writeJSON(w, http.StatusOK, &e)
}

func webhookFailed(w http.ResponseWriter) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("error")
	e.Str("Webhook failed")
	e.ObjEnd()
	writeJSON(w, http.StatusInternalServerError, &e)
}
