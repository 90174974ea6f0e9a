package firestore

import (
	"context"

	"cloud.google.com/go/firestore"

	"github.com/xenking/kitchen-orders/internal/domain/coupon"
	"github.com/xenking/kitchen-orders/internal/domain/product"
	"github.com/xenking/kitchen-orders/internal/domain/schedule"
	"github.com/xenking/kitchen-orders/internal/domain/stock"
	"github.com/xenking/kitchen-orders/internal/storage"
	"github.com/xenking/kitchen-orders/internal/storage/document"
)

var _ storage.CatalogWriter = (*CatalogWriter)(nil)

// CatalogWriter implements storage.CatalogWriter backed by Firestore.
type CatalogWriter struct {
	client *firestore.Client
}

func (w *CatalogWriter) UpsertProduct(ctx context.Context, p product.Product) error {
	_, err := w.client.Collection(productsCollection).Doc(p.ID).Set(ctx, document.FromProduct(p))
	return wrapError("products.upsert", err)
}

func (w *CatalogWriter) SetStock(ctx context.Context, r stock.Record) error {
	doc := stockDocument{ProductID: r.ProductID, BranchID: r.BranchID, Quantity: r.Quantity, Tracked: r.Tracked}
	_, err := w.client.Collection(stockCollection).Doc(r.ProductID).Set(ctx, doc)
	return wrapError("stock.set", err)
}

func (w *CatalogWriter) UpsertCoupon(ctx context.Context, c coupon.Coupon) error {
	_, err := w.client.Collection(couponsCollection).Doc(c.ID).Set(ctx, document.FromCoupon(c))
	return wrapError("coupons.upsert", err)
}

func (w *CatalogWriter) UpsertOrderingTimes(ctx context.Context, t schedule.OrderingTimes) error {
	doc := document.FromOrderingTimes(t)
	if doc.Timezone == "" {
		doc.Timezone = "UTC"
	}
	_, err := w.client.Collection(orderingTimesCollection).Doc(t.BranchID).Set(ctx, doc)
	return wrapError("ordering_times.upsert", err)
}
