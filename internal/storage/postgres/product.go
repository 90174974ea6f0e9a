package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/kitchen-orders/internal/domain/product"
	"github.com/xenking/kitchen-orders/internal/storage/document"
)

const (
	getProductByIDSQL = `SELECT id, branch_id, name, category, price, price_changes, attributes
		FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT id, branch_id, name, category, price, price_changes, attributes
		FROM products WHERE id = ANY($1)`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs. Unknown IDs are
// skipped.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p          product.Product
		price      decimal.Decimal
		changesRaw []byte
		attrsRaw   []byte
	)
	if err := row.Scan(&p.ID, &p.BranchID, &p.Name, &p.Category, &price, &changesRaw, &attrsRaw); err != nil {
		return p, err
	}
	p.Price = price

	var changes []document.PriceChange
	if err := json.Unmarshal(changesRaw, &changes); err != nil {
		return p, fmt.Errorf("decoding price changes of %q: %w", p.ID, err)
	}
	var attrs []document.Attribute
	if err := json.Unmarshal(attrsRaw, &attrs); err != nil {
		return p, fmt.Errorf("decoding attributes of %q: %w", p.ID, err)
	}

	var err error
	if p.PriceChanges, err = document.ToPriceChanges(changes); err != nil {
		return p, err
	}
	if p.Attributes, err = document.ToAttributes(attrs); err != nil {
		return p, err
	}
	return p, nil
}
