package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/go-faster/errors"
	"google.golang.org/api/iterator"

	"github.com/xenking/kitchen-orders/internal/domain/coupon"
	"github.com/xenking/kitchen-orders/internal/storage/document"
)

var _ coupon.Repository = (*CouponRepository)(nil)

type usageDocument struct {
	CouponID string `firestore:"couponId"`
	Scope    string `firestore:"scope"`
	Count    int    `firestore:"count"`
}

// CouponRepository implements coupon.Repository backed by Firestore.
// Usage counters live in their own collection, one document per coupon
// and scope.
type CouponRepository struct {
	client *firestore.Client
}

// FindByCode returns the coupon of a branch with the given code.
func (r *CouponRepository) FindByCode(ctx context.Context, branchID, code string) (*coupon.Coupon, error) {
	it := r.client.Collection(couponsCollection).
		Where("branchId", "==", branchID).
		Where("code", "==", coupon.NormalizeCode(code)).
		Limit(1).
		Documents(ctx)
	defer it.Stop()

	snap, err := it.Next()
	if errors.Is(err, iterator.Done) {
		return nil, coupon.ErrNotFound
	}
	if err != nil {
		return nil, wrapError("coupons.find", err)
	}
	var doc document.Coupon
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decoding coupon %q: %w", snap.Ref.ID, err)
	}
	c, err := doc.ToCoupon()
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Redeem increments every usage counter of the redemption, or none when a
// counter is at its cap.
func (r *CouponRepository) Redeem(ctx context.Context, red coupon.Redemption) error {
	counters := red.Counters()
	return runTransaction(ctx, r.client, "coupons.redeem", func(_ context.Context, tx *firestore.Transaction) error {
		refs, usage, err := r.readUsage(tx, red.CouponID, counters)
		if err != nil {
			return err
		}
		for i, c := range counters {
			if c.Full(usage[i].Count) {
				return c.Rejection()
			}
		}
		for i := range counters {
			usage[i].Count++
			if err := tx.Set(refs[i], usage[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Release undoes a redemption. Counters never go below zero.
func (r *CouponRepository) Release(ctx context.Context, red coupon.Redemption) error {
	counters := red.Counters()
	return runTransaction(ctx, r.client, "coupons.release", func(_ context.Context, tx *firestore.Transaction) error {
		refs, usage, err := r.readUsage(tx, red.CouponID, counters)
		if err != nil {
			return err
		}
		for i := range counters {
			if usage[i].Count == 0 {
				continue
			}
			usage[i].Count--
			if err := tx.Set(refs[i], usage[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *CouponRepository) readUsage(tx *firestore.Transaction, couponID string, counters []coupon.Counter) ([]*firestore.DocumentRef, []usageDocument, error) {
	refs := make([]*firestore.DocumentRef, len(counters))
	for i, c := range counters {
		refs[i] = r.client.Collection(couponUsageCollection).Doc(docID(couponID, c.Scope))
	}
	snaps, err := tx.GetAll(refs)
	if err != nil {
		return nil, nil, err
	}
	usage := make([]usageDocument, len(counters))
	for i, snap := range snaps {
		usage[i] = usageDocument{CouponID: couponID, Scope: counters[i].Scope}
		if !snap.Exists() {
			continue
		}
		if err := snap.DataTo(&usage[i]); err != nil {
			return nil, nil, err
		}
	}
	return refs, usage, nil
}
