package handler

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/settlement"
	"github.com/xenking/storefront/internal/domain/store"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// canView reports whether user may see orders owned by ownerID. Foreign
// orders are reported as missing rather than forbidden.
func canView(user *auth.Identity, ownerID string) bool {
	return user.UserID == ownerID || user.HasRole(auth.RoleAdmin)
}

// GetOrder handles GET /api/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	user := auth.FromContext(r.Context())
	if user == nil {
		httpmiddleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err == nil && !canView(user, o.UserID) {
		err = order.ErrNotFound
	}
	if err != nil {
		writeOrderError(w, r, err)
		return
	}

	var e jx.Encoder
	encodeOrder(&e, o)
	writeJSON(w, http.StatusOK, &e)
}

// GetOrderStatus handles GET /api/orders/{id}/status, served from the status
// cache when possible.
func (h *Handler) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := auth.FromContext(ctx)
	if user == nil {
		httpmiddleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id := chi.URLParam(r, "id")
	lg := zctx.From(ctx)

	snap, ok, err := h.statuses.Get(ctx, id)
	if err != nil {
		lg.Warn("Read cached order status", zap.String("order_id", id), zap.Error(err))
	}
	if !ok || err != nil {
		o, err := h.orders.Get(ctx, id)
		if err != nil {
			writeOrderError(w, r, err)
			return
		}
		snap = order.SnapshotOf(o)
		if err := h.statuses.Add(ctx, snap); err != nil {
			lg.Warn("Cache order status", zap.String("order_id", id), zap.Error(err))
		}
	}
	if !canView(user, snap.UserID) {
		writeOrderError(w, r, order.ErrNotFound)
		return
	}

	var e jx.Encoder
	encodeStatus(&e, snap)
	writeJSON(w, http.StatusOK, &e)
}

// AdminUpdateStatus handles PATCH /api/admin/orders/{id}/status. It goes
// through the same transition rules as gateway notifications.
func (h *Handler) AdminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	user := auth.FromContext(r.Context())
	switch {
	case user == nil:
		httpmiddleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	case !user.HasRole(auth.RoleAdmin):
		httpmiddleware.WriteError(w, http.StatusForbidden, "admin role required")
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		httpmiddleware.WriteError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	target, err := decodeStatusPatch(raw)
	if err != nil {
		httpmiddleware.WriteError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	out, err := h.reconciler.Apply(r.Context(), settlement.Update{
		OrderID: chi.URLParam(r, "id"),
		Target:  target,
		Source:  settlement.SourceAdmin,
	})
	if err != nil {
		writeOrderError(w, r, err)
		return
	}

	status := http.StatusOK
	if out.Result != settlement.ResultApplied {
		status = http.StatusConflict
	}
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("order_id")
	e.Str(out.OrderID)
	e.FieldStart("status")
	e.Str(string(out.To))
	e.FieldStart("result")
	e.Str(string(out.Result))
	e.ObjEnd()
	writeJSON(w, status, &e)
}

// GetProduct handles GET /api/products/{id}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, inventory.ErrProductNotFound) {
			httpmiddleware.WriteError(w, http.StatusNotFound, "product not found")
			return
		}
		zctx.From(r.Context()).Error("Get product", zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	var e jx.Encoder
	encodeProduct(&e, p)
	writeJSON(w, http.StatusOK, &e)
}

func writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, order.ErrNotFound):
		httpmiddleware.WriteError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, store.ErrTimeout):
		zctx.From(r.Context()).Warn("Order request timed out", zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "request timed out, try again")
	default:
		zctx.From(r.Context()).Error("Order request failed", zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}
