package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/go-faster/errors"
	"google.golang.org/api/iterator"

	"github.com/xenking/kitchen-orders/internal/domain/order"
	"github.com/xenking/kitchen-orders/internal/storage/document"
)

var (
	_ order.Repository     = (*OrderRepository)(nil)
	_ order.NumberSequence = (*OrderNumbers)(nil)
)

// OrderRepository implements order.Repository backed by Firestore.
type OrderRepository struct {
	client *firestore.Client
}

func (r *OrderRepository) doc(id string) *firestore.DocumentRef {
	return r.client.Collection(ordersCollection).Doc(id)
}

// Create stores a new order. The ID must be unused.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	_, err := r.doc(o.ID).Create(ctx, document.FromOrder(o))
	return wrapError("orders.create", err)
}

// Get returns an order by ID.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	snap, err := r.doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, order.ErrNotFound
		}
		return nil, wrapError("orders.get", err)
	}
	return decodeOrder(snap)
}

// UpdateStatus moves an order from one status to another inside a
// transaction. A concurrent writer that already moved the order makes the
// comparison fail with order.ErrConflict.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status, at time.Time) (*order.Order, error) {
	var updated *order.Order
	err := runTransaction(ctx, r.client, "orders.update_status", func(_ context.Context, tx *firestore.Transaction) error {
		ref := r.doc(id)
		snap, err := tx.Get(ref)
		if err != nil {
			if isNotFound(err) {
				return order.ErrNotFound
			}
			return err
		}
		o, err := decodeOrder(snap)
		if err != nil {
			return err
		}
		if o.Status != from {
			return order.ErrConflict
		}
		o.Status = to
		o.UpdatedAt = at
		updates := []firestore.Update{
			{Path: "status", Value: string(to)},
			{Path: "updatedAt", Value: at},
		}
		switch {
		case to == order.StatusCancelled:
			o.CancelledAt = &at
			updates = append(updates, firestore.Update{Path: "cancelledAt", Value: at})
		case from == order.StatusCancelled:
			o.CancelledAt = nil
			updates = append(updates, firestore.Update{Path: "cancelledAt", Value: nil})
		}
		if err := tx.Update(ref, updates); err != nil {
			return err
		}
		updated = o
		return nil
	})
	if err != nil {
		if isAborted(err) {
			return nil, order.ErrConflict
		}
		return nil, err
	}
	return updated, nil
}

// Delete removes an order. Deleting a missing order returns
// order.ErrNotFound.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	_, err := r.doc(id).Delete(ctx, firestore.Exists)
	if err != nil {
		if isNotFound(err) {
			return order.ErrNotFound
		}
		return wrapError("orders.delete", err)
	}
	return nil
}

// List returns orders newest first.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, error) {
	q := r.client.Collection(ordersCollection).Query
	if f.BranchID != "" {
		q = q.Where("branchId", "==", f.BranchID)
	}
	if f.UserID != "" {
		q = q.Where("userId", "==", f.UserID)
	}
	if f.Status != "" {
		q = q.Where("status", "==", string(f.Status))
	}
	q = q.OrderBy("createdAt", firestore.Desc).OrderBy("id", firestore.Desc)
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	it := q.Documents(ctx)
	defer it.Stop()
	out := make([]order.Order, 0)
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, wrapError("orders.list", err)
		}
		o, err := decodeOrder(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, nil
}

// CountByUser counts the user's orders that were not cancelled.
func (r *OrderRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	it := r.client.Collection(ordersCollection).
		Where("userId", "==", userID).
		Select("status").
		Documents(ctx)
	defer it.Stop()
	n := 0
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return n, nil
		}
		if err != nil {
			return 0, wrapError("orders.count", err)
		}
		if s, _ := snap.DataAt("status"); s != string(order.StatusCancelled) {
			n++
		}
	}
}

func decodeOrder(snap *firestore.DocumentSnapshot) (*order.Order, error) {
	var doc document.Order
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decoding order %q: %w", snap.Ref.ID, err)
	}
	return doc.ToOrder()
}

type counterDocument struct {
	Value     int64     `firestore:"value"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// OrderNumbers implements order.NumberSequence with one counter document
// per branch.
type OrderNumbers struct {
	client *firestore.Client
}

// Next increments and returns the branch counter.
func (n *OrderNumbers) Next(ctx context.Context, branchID string) (int64, error) {
	var next int64
	err := runTransaction(ctx, n.client, "order_counters.next", func(_ context.Context, tx *firestore.Transaction) error {
		ref := n.client.Collection(countersCollection).Doc(docID(branchID))
		var doc counterDocument
		snap, err := tx.Get(ref)
		switch {
		case isNotFound(err):
		case err != nil:
			return err
		default:
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decoding counter of %q: %w", branchID, err)
			}
		}
		doc.Value++
		doc.UpdatedAt = time.Now().UTC()
		next = doc.Value
		return tx.Set(ref, doc)
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}
