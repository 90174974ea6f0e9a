package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/kitchen-orders/internal/domain/auth"
	"github.com/xenking/kitchen-orders/internal/domain/branch"
	"github.com/xenking/kitchen-orders/internal/domain/order"
	"github.com/xenking/kitchen-orders/internal/wire"
)

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		badRequest(w, "request body too large or unreadable")
		return
	}
	req, err := wire.DecodeCreateOrder(data)
	if err != nil {
		badRequest(w, "malformed order body")
		return
	}
	req.Principal = auth.FromContext(r.Context())

	if h.enforceSchedule && req.DeliveryMethod.Valid() {
		branchID := req.BranchID
		if req.Principal.Pinned() {
			branchID = req.Principal.BranchID
		}
		if branchID != "" {
			a, err := h.orders.Availability(r.Context(), branchID, req.DeliveryMethod)
			if err != nil {
				writeError(w, r, err)
				return
			}
			if !a.Allowed {
				writeErrorBody(w, wire.Error{
					Code:    http.StatusUnprocessableEntity,
					Kind:    KindUnavailable,
					Message: "branch is not taking orders for this delivery method right now",
					Reason:  string(a.Reason),
				})
				return
			}
		}
	}

	o, err := h.orders.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/orders/"+o.ID)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { wire.EncodeOrder(e, o) })
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), auth.FromContext(r.Context()), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { wire.EncodeOrder(e, o) })
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := order.Filter{
		BranchID: strings.TrimSpace(chi.URLParam(r, "branchID")),
		Status:   order.Status(strings.TrimSpace(q.Get("status"))),
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			badRequest(w, "limit must be a non-negative integer")
			return
		}
		f.Limit = limit
	}
	orders, err := h.orders.List(r.Context(), auth.FromContext(r.Context()), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { wire.EncodeOrders(e, orders) })
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		badRequest(w, "request body too large or unreadable")
		return
	}
	status, err := wire.DecodeStatusUpdate(data)
	if err != nil {
		badRequest(w, "malformed status body")
		return
	}
	o, err := h.orders.UpdateStatus(r.Context(), order.UpdateStatusRequest{
		Principal: auth.FromContext(r.Context()),
		OrderID:   chi.URLParam(r, "orderID"),
		Status:    status,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { wire.EncodeOrder(e, o) })
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Cancel(r.Context(), order.CancelRequest{
		Principal: auth.FromContext(r.Context()),
		OrderID:   chi.URLParam(r, "orderID"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { wire.EncodeOrder(e, o) })
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	err := h.orders.Delete(r.Context(), order.DeleteRequest{
		Principal: auth.FromContext(r.Context()),
		OrderID:   chi.URLParam(r, "orderID"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	method := branch.DeliveryMethod(r.URL.Query().Get("deliveryMethod"))
	if method == "" {
		method = branch.Pickup
	}
	a, err := h.orders.Availability(r.Context(), chi.URLParam(r, "branchID"), method)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { wire.EncodeAvailability(e, a) })
}
