package order

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kitchen-orders/internal/domain/auth"
	"github.com/xenking/kitchen-orders/internal/domain/branch"
	"github.com/xenking/kitchen-orders/internal/domain/coupon"
	"github.com/xenking/kitchen-orders/internal/domain/pricing"
	"github.com/xenking/kitchen-orders/internal/domain/product"
	"github.com/xenking/kitchen-orders/internal/domain/schedule"
	"github.com/xenking/kitchen-orders/internal/domain/stock"
)

// LineRequest is a requested order line.
type LineRequest struct {
	ProductID  string
	Quantity   int
	Notes      string
	Attributes []AttributeRequest
}

// AttributeRequest selects items of one product attribute.
type AttributeRequest struct {
	AttributeID string
	Items       []AttributeItemRequest
}

// AttributeItemRequest selects a quantity of an attribute item.
type AttributeItemRequest struct {
	ItemID   string
	Quantity int
}

// CreateRequest holds the input for placing an order.
type CreateRequest struct {
	Principal auth.Principal
	// BranchID is required unless the principal is pinned to a branch.
	BranchID        string
	Lines           []LineRequest
	DeliveryMethod  branch.DeliveryMethod
	CouponCode      string
	DeliveryAddress string
	Notes           string
}

// UpdateStatusRequest changes the status of an order.
type UpdateStatusRequest struct {
	Principal auth.Principal
	OrderID   string
	Status    Status
}

// CancelRequest cancels an order.
type CancelRequest struct {
	Principal auth.Principal
	OrderID   string
}

// DeleteRequest removes an order.
type DeleteRequest struct {
	Principal auth.Principal
	OrderID   string
}

// Deps are the collaborators of Service. Events, MeterProvider,
// TracerProvider and Now are optional.
type Deps struct {
	Products  product.Repository
	Stock     stock.Ledger
	Coupons   coupon.Repository
	Discounts *coupon.Engine
	Schedules schedule.Repository
	Orders    Repository
	Numbers   NumberSequence
	Events    EventSink

	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
	Now            func() time.Time
}

// Service encapsulates order placement and fulfilment.
type Service struct {
	products  product.Repository
	stock     stock.Ledger
	coupons   coupon.Repository
	discounts *coupon.Engine
	schedules schedule.Repository
	orders    Repository
	numbers   NumberSequence
	events    EventSink

	tracer trace.Tracer
	now    func() time.Time

	created        metric.Int64Counter
	statusChanges  metric.Int64Counter
	stockConflicts metric.Int64Counter
	rejections     metric.Int64Counter
}

// NewService creates an order Service.
func NewService(d Deps) (*Service, error) {
	s := &Service{
		products:  d.Products,
		stock:     d.Stock,
		coupons:   d.Coupons,
		discounts: d.Discounts,
		schedules: d.Schedules,
		orders:    d.Orders,
		numbers:   d.Numbers,
		events:    d.Events,
		now:       d.Now,
	}
	if s.events == nil {
		s.events = nopSink{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.discounts == nil {
		s.discounts = coupon.NewEngineAt(s.now)
	}
	mp := d.MeterProvider
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	tp := d.TracerProvider
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	s.tracer = tp.Tracer("kitchen/order")

	meter := mp.Meter("kitchen/order")
	var err error
	if s.created, err = meter.Int64Counter("kitchen.orders.created",
		metric.WithDescription("Orders successfully created"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.created counter")
	}
	if s.statusChanges, err = meter.Int64Counter("kitchen.orders.status_changes",
		metric.WithDescription("Order status transitions"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.status_changes counter")
	}
	if s.stockConflicts, err = meter.Int64Counter("kitchen.stock.conflicts",
		metric.WithDescription("Stock deductions that lost a race after a clean check"),
	); err != nil {
		return nil, errors.Wrap(err, "stock.conflicts counter")
	}
	if s.rejections, err = meter.Int64Counter("kitchen.orders.rejected",
		metric.WithDescription("Order creations rejected by validation, stock or coupon checks"),
	); err != nil {
		return nil, errors.Wrap(err, "orders.rejected counter")
	}
	return s, nil
}

// Create validates, prices and persists a new order, then deducts stock and
// emits order_created. Nothing is persisted or deducted when any check
// fails.
func (s *Service) Create(ctx context.Context, req CreateRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Create")
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
			s.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", rejectionKind(rerr))))
		}
		span.End()
	}()

	branchID, err := resolveBranch(req.Principal, req.BranchID)
	if err != nil {
		return nil, err
	}
	if err := validateCreate(&req); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("branch.id", branchID))

	products, cpn, times, err := s.load(ctx, branchID, req)
	if err != nil {
		return nil, err
	}

	now := s.now()
	lines, err := priceLines(branchID, req.Lines, products, now)
	if err != nil {
		return nil, err
	}

	items := stockItems(branchID, lines)
	check, err := s.stock.Check(ctx, items)
	if err != nil {
		return nil, errors.Wrap(err, "check stock")
	}
	if !check.Success {
		return nil, &stock.StockError{Lines: check.Errors}
	}

	userID := ""
	if !req.Principal.IsGuest() {
		userID = req.Principal.UserID
	}
	loc := times.Location()

	if req.CouponCode != "" {
		res := s.discounts.Validate(cpn, coupon.OrderContext{
			BranchID:       branchID,
			Total:          Subtotal(lines),
			DeliveryMethod: req.DeliveryMethod,
			Location:       loc,
		})
		if !res.Valid {
			return nil, res.Err(req.CouponCode)
		}
		if cpn.FirstOrderOnly {
			if err := s.checkFirstOrder(ctx, userID, req.CouponCode); err != nil {
				return nil, err
			}
		}
	}

	o := Assemble(Draft{
		ID:               uuid.NewString(),
		BranchID:         branchID,
		UserID:           userID,
		Lines:            lines,
		DeliveryMethod:   req.DeliveryMethod,
		Coupon:           cpn,
		EstimatedMinutes: schedule.Estimate(times, req.DeliveryMethod, now),
		DeliveryAddress:  req.DeliveryAddress,
		Notes:            req.Notes,
		CreatedAt:        now,
	})

	n, err := s.numbers.Next(ctx, branchID)
	if err != nil {
		return nil, errors.Wrap(err, "next order number")
	}
	o.Number = FormatNumber(branchID, n)

	var redemption *coupon.Redemption
	if cpn != nil {
		r := s.discounts.Redemption(cpn, userID, loc)
		if err := s.coupons.Redeem(ctx, r); err != nil {
			var cerr *coupon.Error
			if errors.As(err, &cerr) {
				cerr.Code = req.CouponCode
				return nil, cerr
			}
			return nil, errors.Wrap(err, "redeem coupon")
		}
		redemption = &r
	}

	if err := s.orders.Create(ctx, o); err != nil {
		s.release(ctx, redemption)
		return nil, errors.Wrap(err, "persist order")
	}

	// Stock moves only once the order is durable.
	if _, err := s.stock.Deduct(ctx, items); err != nil {
		s.compensate(ctx, o, redemption)

		var conflict *stock.ConflictError
		if errors.As(err, &conflict) {
			s.stockConflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("branch", branchID)))
			return nil, &stock.StockError{Lines: conflict.Lines}
		}
		return nil, errors.Wrap(err, "deduct stock")
	}

	s.created.Add(ctx, 1, metric.WithAttributes(
		attribute.String("branch", branchID),
		attribute.String("delivery_method", string(o.DeliveryMethod)),
	))
	zctx.From(ctx).Info("Order created",
		zap.String("order_id", o.ID),
		zap.String("number", o.Number),
		zap.String("branch_id", branchID),
		zap.String("final_total", o.FinalTotal.StringFixed(2)),
	)
	s.emit(ctx, EventCreated, "", o)
	return o, nil
}

// load fetches products, the coupon and the schedule concurrently. A missing
// coupon yields nil so validation reports it; a failing schedule lookup is
// logged and degrades to the default lead time.
func (s *Service) load(ctx context.Context, branchID string, req CreateRequest) (
	[]product.Product, *coupon.Coupon, *schedule.OrderingTimes, error,
) {
	var (
		products []product.Product
		cpn      *coupon.Coupon
		times    *schedule.OrderingTimes
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		products, err = s.products.GetByIDs(gctx, productIDs(req.Lines))
		if err != nil {
			return errors.Wrap(err, "get products")
		}
		return nil
	})
	if req.CouponCode != "" {
		g.Go(func() error {
			c, err := s.coupons.FindByCode(gctx, branchID, req.CouponCode)
			switch {
			case errors.Is(err, coupon.ErrNotFound):
				return nil
			case err != nil:
				return errors.Wrap(err, "find coupon")
			}
			cpn = c
			return nil
		})
	}
	g.Go(func() error {
		t, err := s.schedules.Get(gctx, branchID)
		if err != nil {
			if !errors.Is(err, schedule.ErrNotFound) {
				zctx.From(ctx).Warn("Ordering times unavailable, using default lead time",
					zap.String("branch_id", branchID),
					zap.Error(err),
				)
			}
			return nil
		}
		times = t
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return products, cpn, times, nil
}

func (s *Service) checkFirstOrder(ctx context.Context, userID, code string) error {
	if userID == "" {
		return &coupon.Error{Code: code, Reason: coupon.ReasonFirstOrder, Detail: "sign in to use a first-order coupon"}
	}
	n, err := s.orders.CountByUser(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "count user orders")
	}
	if n > 0 {
		return &coupon.Error{Code: code, Reason: coupon.ReasonFirstOrder}
	}
	return nil
}

// compensate undoes a persisted order whose stock deduction failed.
func (s *Service) compensate(ctx context.Context, o *Order, r *coupon.Redemption) {
	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))
	if err := s.orders.Delete(context.WithoutCancel(ctx), o.ID); err != nil {
		lg.Error("Failed to remove order after stock deduction failure", zap.Error(err))
	}
	s.release(ctx, r)
	lg.Warn("Order rolled back after stock deduction failure")
}

func (s *Service) release(ctx context.Context, r *coupon.Redemption) {
	if r == nil {
		return
	}
	if err := s.coupons.Release(context.WithoutCancel(ctx), *r); err != nil {
		zctx.From(ctx).Error("Failed to release coupon redemption",
			zap.String("coupon_id", r.CouponID),
			zap.Error(err),
		)
	}
}

// UpdateStatus moves an order along the state machine. Only staff of the
// order's branch (or a super admin) may do so. Moving into cancelled
// restores the order's stock exactly once.
func (s *Service) UpdateStatus(ctx context.Context, req UpdateStatusRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus")
	defer endSpan(span, &rerr)

	if !req.Status.Valid() {
		return nil, invalid("status", "unknown status %q", req.Status)
	}
	if !req.Principal.Privileged() {
		return nil, &AuthorizationError{Action: "update order status", Reason: "staff role required"}
	}
	o, err := s.get(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if !req.Principal.CanManageBranch(o.BranchID) {
		return nil, &AuthorizationError{Action: "update order status", Reason: "order belongs to another branch"}
	}
	return s.transition(ctx, o, req.Status)
}

// Cancel cancels an order. Staff follow the same rules as UpdateStatus; the
// customer who placed the order may cancel it while it is still pending.
// Cancelling an already cancelled order returns it unchanged.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Cancel")
	defer endSpan(span, &rerr)

	o, err := s.get(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	p := req.Principal
	switch {
	case p.Privileged():
		if !p.CanManageBranch(o.BranchID) {
			return nil, &AuthorizationError{Action: "cancel order", Reason: "order belongs to another branch"}
		}
	case !p.IsGuest() && o.UserID == p.UserID:
		if o.Status != StatusPending && o.Status != StatusCancelled {
			return nil, &AuthorizationError{Action: "cancel order", Reason: "order is already being prepared"}
		}
	default:
		return nil, &AuthorizationError{Action: "cancel order", Reason: "not the order owner"}
	}
	return s.transition(ctx, o, StatusCancelled)
}

func (s *Service) transition(ctx context.Context, o *Order, to Status) (*Order, error) {
	if to == StatusCancelled && o.Status == StatusCancelled {
		return o, nil
	}
	if !CanTransition(o.Status, to, o.DeliveryMethod) {
		return nil, &TransitionError{From: o.Status, To: to}
	}

	from := o.Status
	updated, err := s.orders.UpdateStatus(ctx, o.ID, from, to, s.now())
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, &NotFoundError{Resource: "order", ID: o.ID}
	case errors.Is(err, ErrConflict):
		// Someone else changed the status first. Only their cancellation
		// restores stock; ours becomes a no-op.
		if to == StatusCancelled {
			if cur, gerr := s.orders.Get(ctx, o.ID); gerr == nil && cur.Status == StatusCancelled {
				return cur, nil
			}
		}
		return nil, errors.Wrapf(ErrConflict, "order %s changed concurrently", o.ID)
	case err != nil:
		return nil, errors.Wrap(err, "update status")
	}

	if to == StatusCancelled {
		if _, err := s.stock.Restore(ctx, stockItems(updated.BranchID, updated.Lines)); err != nil {
			s.revertCancel(ctx, updated, from)
			return nil, errors.Wrap(err, "restore stock")
		}
	}

	s.statusChanges.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))

	if to != StatusCancelled {
		s.emit(ctx, EventUpdated, from, updated)
		return updated, nil
	}
	zctx.From(ctx).Info("Order cancelled",
		zap.String("order_id", updated.ID),
		zap.String("previous_status", string(from)),
	)
	s.emit(ctx, EventCancelled, from, updated)
	return updated, nil
}

// revertCancel puts an order whose stock could not be restored back to its
// previous status, so a retried cancellation performs the restore.
func (s *Service) revertCancel(ctx context.Context, o *Order, from Status) {
	lg := zctx.From(ctx).With(zap.String("order_id", o.ID), zap.String("status", string(from)))
	if _, err := s.orders.UpdateStatus(context.WithoutCancel(ctx), o.ID, StatusCancelled, from, s.now()); err != nil {
		lg.Error("Order cancelled but stock was not restored", zap.Error(err))
		return
	}
	lg.Warn("Cancellation reverted after stock restore failure")
}

// Delete removes an order without touching stock. Use Cancel to give
// stock back.
func (s *Service) Delete(ctx context.Context, req DeleteRequest) (rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Delete")
	defer endSpan(span, &rerr)

	if !req.Principal.Privileged() {
		return &AuthorizationError{Action: "delete order", Reason: "staff role required"}
	}
	o, err := s.get(ctx, req.OrderID)
	if err != nil {
		return err
	}
	if !req.Principal.CanManageBranch(o.BranchID) {
		return &AuthorizationError{Action: "delete order", Reason: "order belongs to another branch"}
	}
	if err := s.orders.Delete(ctx, o.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return &NotFoundError{Resource: "order", ID: o.ID}
		}
		return errors.Wrap(err, "delete order")
	}
	if !o.Status.Terminal() {
		zctx.From(ctx).Warn("Deleted active order without restoring stock",
			zap.String("order_id", o.ID),
			zap.String("status", string(o.Status)),
			zap.String("deleted_by", req.Principal.UserID),
		)
	}
	s.emit(ctx, EventDeleted, o.Status, o)
	return nil
}

// Get returns an order visible to p: staff see their branch, customers see
// their own orders.
func (s *Service) Get(ctx context.Context, p auth.Principal, id string) (*Order, error) {
	o, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case p.Privileged() && p.CanManageBranch(o.BranchID):
	case !p.IsGuest() && !p.Privileged() && o.UserID == p.UserID:
	default:
		return nil, &AuthorizationError{Action: "view order", Reason: "order not accessible"}
	}
	return o, nil
}

// List returns orders visible to p. Staff must name a branch they manage;
// customers only ever see their own orders.
func (s *Service) List(ctx context.Context, p auth.Principal, f Filter) ([]Order, error) {
	switch {
	case p.Privileged():
		if f.BranchID == "" && p.Pinned() {
			f.BranchID = p.BranchID
		}
		if f.BranchID == "" {
			return nil, invalid("branchId", "branch is required")
		}
		if !p.CanManageBranch(f.BranchID) {
			return nil, &AuthorizationError{Action: "list orders", Reason: "branch not managed by caller"}
		}
	case !p.IsGuest():
		f.UserID = p.UserID
	default:
		return nil, &AuthorizationError{Action: "list orders", Reason: "sign in required"}
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, invalid("status", "unknown status %q", f.Status)
	}
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultListLimit
	case f.Limit > MaxListLimit:
		f.Limit = MaxListLimit
	}
	orders, err := s.orders.List(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// Availability reports whether ordering with method is currently possible at
// branchID. A branch without a schedule is always available.
func (s *Service) Availability(ctx context.Context, branchID string, method branch.DeliveryMethod) (schedule.Availability, error) {
	if !method.Valid() {
		return schedule.Availability{}, invalid("deliveryMethod", "unsupported delivery method %q", method)
	}
	times, err := s.schedules.Get(ctx, branchID)
	if err != nil && !errors.Is(err, schedule.ErrNotFound) {
		return schedule.Availability{}, errors.Wrap(err, "get ordering times")
	}
	return schedule.IsOrderingAllowed(times, method, s.now()), nil
}

func (s *Service) get(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, &NotFoundError{Resource: "order", ID: id}
		}
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

func (s *Service) emit(ctx context.Context, name EventName, prev Status, o *Order) {
	s.events.Emit(context.WithoutCancel(ctx), Event{
		ID:         ulid.Make().String(),
		Name:       name,
		BranchID:   o.BranchID,
		Previous:   prev,
		Order:      *o,
		OccurredAt: s.now(),
	})
}

func resolveBranch(p auth.Principal, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if p.Pinned() {
		if p.BranchID == "" {
			return "", &AuthorizationError{Action: "create order", Reason: "no branch assigned"}
		}
		if requested != "" && requested != p.BranchID {
			return "", &AuthorizationError{Action: "create order", Reason: "order belongs to another branch"}
		}
		return p.BranchID, nil
	}
	if requested == "" {
		return "", invalid("branchId", "branch is required")
	}
	return requested, nil
}

func validateCreate(req *CreateRequest) error {
	if len(req.Lines) == 0 {
		return invalid("lines", "at least one line is required")
	}
	for i, l := range req.Lines {
		if strings.TrimSpace(l.ProductID) == "" {
			return invalid(linePath(i, "productId"), "product is required")
		}
		if l.Quantity <= 0 {
			return invalid(linePath(i, "quantity"), "quantity must be greater than 0")
		}
		for _, a := range l.Attributes {
			for _, it := range a.Items {
				if it.Quantity <= 0 {
					return invalid(linePath(i, "attributes"), "item %s quantity must be greater than 0", it.ItemID)
				}
			}
		}
	}
	if !req.DeliveryMethod.Valid() {
		return invalid("deliveryMethod", "unsupported delivery method %q", req.DeliveryMethod)
	}
	if req.DeliveryMethod == branch.Delivery && strings.TrimSpace(req.DeliveryAddress) == "" {
		return invalid("deliveryAddress", "required for delivery orders")
	}
	req.CouponCode = strings.TrimSpace(req.CouponCode)
	return nil
}

func priceLines(branchID string, reqs []LineRequest, products []product.Product, now time.Time) ([]Line, error) {
	byID := make(map[string]*product.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	lines := make([]Line, 0, len(reqs))
	for i, lr := range reqs {
		p, ok := byID[lr.ProductID]
		if !ok {
			return nil, &NotFoundError{Resource: "product", ID: lr.ProductID}
		}
		if p.BranchID != branchID {
			return nil, invalid(linePath(i, "productId"), "product %s does not belong to branch %s", p.ID, branchID)
		}
		attrs, err := selectAttributes(i, p, lr.Attributes)
		if err != nil {
			return nil, err
		}
		lines = append(lines, Line{
			ProductID:  p.ID,
			Name:       p.Name,
			Quantity:   lr.Quantity,
			UnitPrice:  pricing.Resolve(p.Price, pricing.Select(p.PriceChanges, now)),
			Notes:      lr.Notes,
			Attributes: attrs,
		})
	}
	return lines, nil
}

func selectAttributes(line int, p *product.Product, reqs []AttributeRequest) ([]SelectedAttribute, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	out := make([]SelectedAttribute, 0, len(reqs))
	for _, ar := range reqs {
		a, ok := p.Attribute(ar.AttributeID)
		if !ok {
			return nil, invalid(linePath(line, "attributes"), "unknown attribute %s for product %s", ar.AttributeID, p.ID)
		}
		sel := SelectedAttribute{AttributeID: a.ID, Name: a.Name, Type: a.Type}
		for _, ir := range ar.Items {
			it, ok := a.Item(ir.ItemID)
			if !ok {
				return nil, invalid(linePath(line, "attributes"), "unknown item %s in attribute %s", ir.ItemID, a.ID)
			}
			sel.Items = append(sel.Items, AttributeItem{
				ItemID:    it.ID,
				Name:      it.Name,
				UnitPrice: it.Price,
				Quantity:  ir.Quantity,
			})
		}
		out = append(out, sel)
	}
	return out, nil
}

func productIDs(lines []LineRequest) []string {
	seen := make(map[string]struct{}, len(lines))
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}
	return ids
}

func stockItems(branchID string, lines []Line) []stock.Item {
	items := make([]stock.Item, len(lines))
	for i, l := range lines {
		items[i] = stock.Item{ProductID: l.ProductID, BranchID: branchID, Quantity: l.Quantity}
	}
	return stock.Merge(items)
}

func linePath(i int, field string) string {
	return "lines[" + strconv.Itoa(i) + "]." + field
}

func rejectionKind(err error) string {
	var (
		verr  *ValidationError
		serr  *stock.StockError
		cerr  *coupon.Error
		aerr  *AuthorizationError
		nferr *NotFoundError
	)
	switch {
	case errors.As(err, &verr):
		return "validation"
	case errors.As(err, &serr):
		return "stock"
	case errors.As(err, &cerr):
		return "coupon"
	case errors.As(err, &aerr):
		return "forbidden"
	case errors.As(err, &nferr):
		return "not_found"
	default:
		return "internal"
	}
}

func endSpan(span trace.Span, err *error) {
	if *err != nil {
		span.RecordError(*err)
		span.SetStatus(codes.Error, (*err).Error())
	}
	span.End()
}
