package handler

import (
	"net/http"

	"github.com/xenking/kitchen-orders/internal/domain/auth"
	"github.com/xenking/kitchen-orders/internal/wire"
)

// staffFeed upgrades to a WebSocket that streams order events. Pinned
// staff receive their own branch; super admins may pick one with
// ?branchId= or receive every branch.
func (h *Handler) staffFeed(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	if !p.Privileged() {
		writeErrorBody(w, wire.Error{Code: http.StatusForbidden, Kind: KindForbidden, Message: "staff role required"})
		return
	}
	branchID := r.URL.Query().Get("branchId")
	if p.Pinned() {
		if branchID != "" && branchID != p.BranchID {
			writeErrorBody(w, wire.Error{Code: http.StatusForbidden, Kind: KindForbidden, Message: "branch not managed by caller"})
			return
		}
		branchID = p.BranchID
	}
	h.hub.Serve(w, r, branchID)
}
