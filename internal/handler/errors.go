package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kitchen-orders/internal/domain/coupon"
	"github.com/xenking/kitchen-orders/internal/domain/order"
	"github.com/xenking/kitchen-orders/internal/domain/stock"
	"github.com/xenking/kitchen-orders/internal/wire"
)

// Error kinds returned in the "kind" field of error bodies.
const (
	KindBadRequest   = "bad_request"
	KindUnauthorized = "unauthorized"
	KindValidation   = "validation"
	KindStock        = "insufficient_stock"
	KindCoupon       = "coupon_rejected"
	KindForbidden    = "forbidden"
	KindNotFound     = "not_found"
	KindConflict     = "conflict"
	KindUnavailable  = "ordering_unavailable"
	KindInternal     = "internal"
)

// toError maps a service error to its HTTP status and body.
func toError(err error) wire.Error {
	var (
		verr  *order.ValidationError
		serr  *stock.StockError
		cerr  *coupon.Error
		aerr  *order.AuthorizationError
		nferr *order.NotFoundError
	)
	switch {
	case errors.As(err, &verr):
		return wire.Error{Code: http.StatusUnprocessableEntity, Kind: KindValidation, Message: verr.Message, Field: verr.Field}
	case errors.As(err, &serr):
		return wire.Error{Code: http.StatusConflict, Kind: KindStock, Message: "insufficient stock", Stock: serr.Lines}
	case errors.As(err, &cerr):
		return wire.Error{Code: http.StatusUnprocessableEntity, Kind: KindCoupon, Message: cerr.Error(), Reason: string(cerr.Reason)}
	case errors.As(err, &aerr):
		return wire.Error{Code: http.StatusForbidden, Kind: KindForbidden, Message: aerr.Error()}
	case errors.As(err, &nferr):
		return wire.Error{Code: http.StatusNotFound, Kind: KindNotFound, Message: nferr.Error()}
	case errors.Is(err, order.ErrNotFound):
		return wire.Error{Code: http.StatusNotFound, Kind: KindNotFound, Message: "order not found"}
	case errors.Is(err, order.ErrConflict):
		return wire.Error{Code: http.StatusConflict, Kind: KindConflict, Message: err.Error()}
	default:
		return wire.Error{Code: http.StatusInternalServerError, Kind: KindInternal, Message: "internal error"}
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := toError(err)
	lg := zctx.From(r.Context())
	if body.Code >= http.StatusInternalServerError {
		lg.Error("Request failed", zap.Error(err))
	} else {
		lg.Debug("Request rejected", zap.Int("status", body.Code), zap.Error(err))
	}
	writeErrorBody(w, body)
}

func writeErrorBody(w http.ResponseWriter, body wire.Error) {
	writeJSON(w, body.Code, func(e *jx.Encoder) { wire.EncodeError(e, body) })
}

func badRequest(w http.ResponseWriter, msg string) {
	writeErrorBody(w, wire.Error{Code: http.StatusBadRequest, Kind: KindBadRequest, Message: msg})
}
