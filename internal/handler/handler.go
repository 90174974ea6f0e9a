// Package handler exposes the order service over HTTP.
package handler

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kitchen-orders/internal/domain/order"
	"github.com/xenking/kitchen-orders/internal/notify"
)

const maxBodySize = 64 << 10

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// EnforceSchedule rejects new orders outside the branch's ordering
	// hours instead of only estimating lead time from them.
	EnforceSchedule bool
}

// Handler serves the order API, delegating business rules to the order
// service.
type Handler struct {
	orders          *order.Service
	hub             *notify.Hub
	enforceSchedule bool
}

// New constructs a Handler. hub may be nil when the staff feed is
// disabled.
func New(cfg Config, orders *order.Service, hub *notify.Hub) *Handler {
	return &Handler{
		orders:          orders,
		hub:             hub,
		enforceSchedule: cfg.EnforceSchedule,
	}
}

// Routes registers the API endpoints on r. Callers mount r under /api
// behind the authentication middleware.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/", h.listOrders)
		r.Get("/{orderID}", h.getOrder)
		r.Patch("/{orderID}/status", h.updateStatus)
		r.Post("/{orderID}/cancel", h.cancelOrder)
		r.Delete("/{orderID}", h.deleteOrder)
	})
	r.Route("/branches/{branchID}", func(r chi.Router) {
		r.Get("/orders", h.listOrders)
		r.Get("/availability", h.availability)
	})
	if h.hub != nil {
		r.Get("/staff/ws", h.staffFeed)
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
