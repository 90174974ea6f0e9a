package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kitchen-orders/internal/domain/stock"
)

const (
	getStockSQL = `SELECT product_id, branch_id, quantity, tracked
		FROM stock WHERE product_id = ANY($1)`

	getStockRecordSQL = `SELECT product_id, branch_id, quantity, tracked
		FROM stock WHERE product_id = $1`

	// The WHERE clause is the atomic guard: the row only changes when enough
	// stock is left at the moment of the update.
	deductStockSQL = `UPDATE stock SET quantity = quantity - $2
		WHERE product_id = $1 AND tracked AND quantity >= $2
		RETURNING quantity`

	restoreStockSQL = `UPDATE stock SET quantity = quantity + $2
		WHERE product_id = $1 AND tracked
		RETURNING quantity`
)

var _ stock.Ledger = (*StockLedger)(nil)

// StockLedger implements stock.Ledger backed by PostgreSQL.
type StockLedger struct {
	pool *pgxpool.Pool
}

// NewStockLedger returns a StockLedger that uses the given pool.
func NewStockLedger(pool *pgxpool.Pool) *StockLedger {
	return &StockLedger{pool: pool}
}

// Check reads current levels without locking.
func (l *StockLedger) Check(ctx context.Context, items []stock.Item) (stock.CheckResult, error) {
	items = stock.Merge(items)
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}

	rows, err := l.pool.Query(ctx, getStockSQL, ids)
	if err != nil {
		return stock.CheckResult{}, fmt.Errorf("reading stock: %w", err)
	}
	records, err := pgx.CollectRows(rows, scanStockRecord)
	if err != nil {
		return stock.CheckResult{}, fmt.Errorf("reading stock: %w", err)
	}

	byID := make(map[string]stock.Record, len(records))
	for _, r := range records {
		byID[r.ProductID] = r
	}
	return stock.Evaluate(items, byID), nil
}

// Deduct decrements every tracked item in one transaction. Items are merged
// and sorted so concurrent deductions lock rows in the same order.
func (l *StockLedger) Deduct(ctx context.Context, items []stock.Item) (stock.DeductResult, error) {
	items = stock.Merge(items)
	res := stock.DeductResult{Updated: make([]stock.Info, 0, len(items))}
	var conflicts []stock.LineError

	err := pgx.BeginFunc(ctx, l.pool, func(tx pgx.Tx) error {
		for _, it := range items {
			var left int
			err := tx.QueryRow(ctx, deductStockSQL, it.ProductID, it.Quantity).Scan(&left)
			if err == nil {
				res.Updated = append(res.Updated, stock.Info{
					ProductID: it.ProductID,
					Requested: it.Quantity,
					Available: left,
					Tracked:   true,
				})
				continue
			}
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("deducting %q: %w", it.ProductID, err)
			}

			rec, found, err := getRecord(ctx, tx, it.ProductID)
			if err != nil {
				return err
			}
			if !found || !rec.Tracked {
				continue
			}
			conflicts = append(conflicts, stock.LineError{
				ProductID: it.ProductID,
				Requested: it.Quantity,
				Available: rec.Quantity,
			})
		}
		if len(conflicts) > 0 {
			return &stock.ConflictError{Lines: conflicts}
		}
		return nil
	})
	if err != nil {
		return stock.DeductResult{}, err
	}
	return res, nil
}

// Restore increments every tracked item in one transaction.
func (l *StockLedger) Restore(ctx context.Context, items []stock.Item) (stock.RestoreResult, error) {
	items = stock.Merge(items)
	res := stock.RestoreResult{Restored: make([]stock.Info, 0, len(items))}

	err := pgx.BeginFunc(ctx, l.pool, func(tx pgx.Tx) error {
		for _, it := range items {
			var now int
			err := tx.QueryRow(ctx, restoreStockSQL, it.ProductID, it.Quantity).Scan(&now)
			switch {
			case errors.Is(err, pgx.ErrNoRows):
				continue
			case err != nil:
				return fmt.Errorf("restoring %q: %w", it.ProductID, err)
			}
			res.Restored = append(res.Restored, stock.Info{
				ProductID: it.ProductID,
				Requested: it.Quantity,
				Available: now,
				Tracked:   true,
			})
		}
		return nil
	})
	if err != nil {
		return stock.RestoreResult{}, err
	}
	return res, nil
}

func getRecord(ctx context.Context, tx pgx.Tx, productID string) (stock.Record, bool, error) {
	rows, err := tx.Query(ctx, getStockRecordSQL, productID)
	if err != nil {
		return stock.Record{}, false, fmt.Errorf("reading stock of %q: %w", productID, err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, scanStockRecord)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return stock.Record{}, false, nil
		}
		return stock.Record{}, false, fmt.Errorf("reading stock of %q: %w", productID, err)
	}
	return rec, true, nil
}

func scanStockRecord(row pgx.CollectableRow) (stock.Record, error) {
	var r stock.Record
	err := row.Scan(&r.ProductID, &r.BranchID, &r.Quantity, &r.Tracked)
	return r, err
}
