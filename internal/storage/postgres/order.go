package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/kitchen-orders/internal/domain/branch"
	"github.com/xenking/kitchen-orders/internal/domain/order"
	"github.com/xenking/kitchen-orders/internal/storage/document"
)

const orderColumns = `id, number, branch_id, user_id, delivery_method, status, lines, discount,
	total_amount, final_total, estimated_minutes, delivery_address, notes,
	created_at, updated_at, cancelled_at`

const (
	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	// Compare-and-set on the stored status.
	updateOrderStatusSQL = `UPDATE orders SET status = $3::text, updated_at = $4::timestamptz,
		cancelled_at = CASE
			WHEN $3::text = 'cancelled' THEN $4::timestamptz
			WHEN $2::text = 'cancelled' THEN NULL
			ELSE cancelled_at END
		WHERE id = $1 AND status = $2
		RETURNING ` + orderColumns

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1::text = '' OR branch_id = $1)
		  AND ($2::text = '' OR user_id = $2)
		  AND ($3::text = '' OR status = $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`

	countUserOrdersSQL = `SELECT count(*) FROM orders WHERE user_id = $1 AND status <> 'cancelled'`

	nextOrderNumberSQL = `INSERT INTO order_counters (branch_id, value) VALUES ($1, 1)
		ON CONFLICT (branch_id) DO UPDATE SET value = order_counters.value + 1
		RETURNING value`
)

var (
	_ order.Repository     = (*OrderRepository)(nil)
	_ order.NumberSequence = (*OrderNumbers)(nil)
)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. Lines and the discount snapshot are stored
// as JSONB documents.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	linesJSON, err := json.Marshal(document.FromLines(o.Lines))
	if err != nil {
		return fmt.Errorf("marshaling order lines: %w", err)
	}
	var discountJSON []byte
	if o.Discount != nil {
		if discountJSON, err = json.Marshal(document.FromDiscount(o.Discount)); err != nil {
			return fmt.Errorf("marshaling order discount: %w", err)
		}
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.Number, o.BranchID, o.UserID, string(o.DeliveryMethod), string(o.Status),
		linesJSON, discountJSON, o.TotalAmount, o.FinalTotal, o.EstimatedMinutes,
		o.DeliveryAddress, o.Notes, o.CreatedAt, o.UpdatedAt, o.CancelledAt,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Get returns an order by ID.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return o, nil
}

// UpdateStatus moves the order from one status to another if nobody changed
// it in between.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status, at time.Time) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, updateOrderStatusSQL, id, string(from), string(to), at)
	if err != nil {
		return nil, fmt.Errorf("updating order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("updating order %q: %w", id, err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking order %q: %w", id, err)
	}
	if !exists {
		return nil, order.ErrNotFound
	}
	return nil, order.ErrConflict
}

// Delete removes an order.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return fmt.Errorf("deleting order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// List returns orders matching f, newest first.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = order.DefaultListLimit
	}
	rows, err := r.pool.Query(ctx, listOrdersSQL, f.BranchID, f.UserID, string(f.Status), limit)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	ptrs, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	out := make([]order.Order, len(ptrs))
	for i, o := range ptrs {
		out[i] = *o
	}
	return out, nil
}

// CountByUser counts the user's non-cancelled orders.
func (r *OrderRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countUserOrdersSQL, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting orders of %q: %w", userID, err)
	}
	return n, nil
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var (
		o                     order.Order
		method, status        string
		linesRaw, discountRaw []byte
		total, final          decimal.Decimal
		minutes               int32
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.BranchID, &o.UserID, &method, &status, &linesRaw, &discountRaw,
		&total, &final, &minutes, &o.DeliveryAddress, &o.Notes,
		&o.CreatedAt, &o.UpdatedAt, &o.CancelledAt,
	)
	if err != nil {
		return nil, err
	}

	var lines []document.Line
	if err := json.Unmarshal(linesRaw, &lines); err != nil {
		return nil, fmt.Errorf("decoding lines of order %q: %w", o.ID, err)
	}
	if o.Lines, err = document.ToLines(lines); err != nil {
		return nil, err
	}
	if len(discountRaw) > 0 {
		var d document.Discount
		if err := json.Unmarshal(discountRaw, &d); err != nil {
			return nil, fmt.Errorf("decoding discount of order %q: %w", o.ID, err)
		}
		if o.Discount, err = d.ToDiscount(); err != nil {
			return nil, err
		}
	}

	o.DeliveryMethod = branch.DeliveryMethod(method)
	o.Status = order.Status(status)
	o.TotalAmount = total
	o.FinalTotal = final
	o.EstimatedMinutes = int(minutes)
	return &o, nil
}

// OrderNumbers implements order.NumberSequence with a counter row per branch.
type OrderNumbers struct {
	pool *pgxpool.Pool
}

// NewOrderNumbers returns an OrderNumbers that uses the given pool.
func NewOrderNumbers(pool *pgxpool.Pool) *OrderNumbers {
	return &OrderNumbers{pool: pool}
}

// Next returns the next number of the branch.
func (n *OrderNumbers) Next(ctx context.Context, branchID string) (int64, error) {
	var v int64
	if err := n.pool.QueryRow(ctx, nextOrderNumberSQL, branchID).Scan(&v); err != nil {
		return 0, fmt.Errorf("next order number of %q: %w", branchID, err)
	}
	return v, nil
}
