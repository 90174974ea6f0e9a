package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kitchen-orders/internal/domain/pricing"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is the catalog view of a menu item consumed by the order pipeline.
type Product struct {
	ID           string
	BranchID     string
	Name         string
	Category     string
	Price        decimal.Decimal
	PriceChanges []pricing.Change
	Attributes   []Attribute
}

// Attribute is a group of add-on choices offered with a product
// (sizes, extras, sauces).
type Attribute struct {
	ID    string
	Name  string
	Type  string
	Items []AttributeItem
}

// AttributeItem is a single priced choice within an attribute.
type AttributeItem struct {
	ID    string
	Name  string
	Price decimal.Decimal
}

// Attribute looks up an attribute by ID.
func (p *Product) Attribute(id string) (*Attribute, bool) {
	for i := range p.Attributes {
		if p.Attributes[i].ID == id {
			return &p.Attributes[i], true
		}
	}
	return nil, false
}

// Item looks up a choice by ID.
func (a *Attribute) Item(id string) (*AttributeItem, bool) {
	for i := range a.Items {
		if a.Items[i].ID == id {
			return &a.Items[i], true
		}
	}
	return nil, false
}

// Repository defines read operations for the product catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
