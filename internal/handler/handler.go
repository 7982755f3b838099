// Package handler implements the HTTP API on a chi router.
package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/inventory"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/settlement"
)

// SessionCookie is the cookie carrying the session token for browser clients.
const SessionCookie = "session"

// maxBody bounds request bodies.
const maxBody = 1 << 20

// Handler serves the storefront API.
type Handler struct {
	checkout   *checkout.Service
	reconciler *settlement.Reconciler
	orders     order.Reader
	catalog    inventory.Catalog
	statuses   order.StatusCache
	auth       auth.Authenticator
}

// New creates a Handler. statuses may be nil.
func New(
	checkoutSvc *checkout.Service,
	reconciler *settlement.Reconciler,
	orders order.Reader,
	catalog inventory.Catalog,
	statuses order.StatusCache,
	authenticator auth.Authenticator,
) *Handler {
	if statuses == nil {
		statuses = order.NopStatusCache{}
	}
	return &Handler{
		checkout:   checkoutSvc,
		reconciler: reconciler,
		orders:     orders,
		catalog:    catalog,
		statuses:   statuses,
		auth:       authenticator,
	}
}

// Mount registers the API routes on r. checkoutMW wraps only the checkout
// endpoint.
func (h *Handler) Mount(r chi.Router, checkoutMW ...func(http.Handler) http.Handler) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/payment/webhooks", h.Webhook)
		r.Get("/products/{id}", h.GetProduct)

		r.Group(func(r chi.Router) {
			r.Use(h.identify)
			r.With(checkoutMW...).Post("/payment", h.Checkout)
			r.Get("/orders/{id}", h.GetOrder)
			r.Get("/orders/{id}/status", h.GetOrderStatus)
			r.Patch("/admin/orders/{id}/status", h.AdminUpdateStatus)
		})
	})
}

// identify resolves the caller from a bearer token or the session cookie.
// Requests without valid credentials continue anonymously; endpoints decide
// whether that is acceptable.
func (h *Handler) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, err := h.auth.Authenticate(r.Context(), token)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

func bearerToken(r *http.Request) string {
	if v := r.Header.Get("Authorization"); v != "" {
		scheme, token, ok := strings.Cut(v, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}
