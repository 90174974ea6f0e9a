package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/xenking/kitchen-orders/internal/domain/product"
	"github.com/xenking/kitchen-orders/internal/storage/document"
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by Firestore.
type ProductRepository struct {
	client *firestore.Client
}

// GetByID returns a single product.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	snap, err := r.client.Collection(productsCollection).Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, product.ErrNotFound
		}
		return nil, wrapError("products.get", err)
	}
	p, err := decodeProduct(snap)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByIDs returns the products that exist among ids. Missing IDs are
// skipped.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	refs := make([]*firestore.DocumentRef, len(ids))
	for i, id := range ids {
		refs[i] = r.client.Collection(productsCollection).Doc(id)
	}
	snaps, err := r.client.GetAll(ctx, refs)
	if err != nil {
		return nil, wrapError("products.get_all", err)
	}
	out := make([]product.Product, 0, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		p, err := decodeProduct(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func decodeProduct(snap *firestore.DocumentSnapshot) (product.Product, error) {
	var doc document.Product
	if err := snap.DataTo(&doc); err != nil {
		return product.Product{}, fmt.Errorf("decoding product %q: %w", snap.Ref.ID, err)
	}
	if doc.ID == "" {
		doc.ID = snap.Ref.ID
	}
	return doc.ToProduct()
}
