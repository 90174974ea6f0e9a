package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"github.com/xenking/kitchen-orders/internal/domain/stock"
)

var _ stock.Ledger = (*StockLedger)(nil)

type stockDocument struct {
	ProductID string `firestore:"productId"`
	BranchID  string `firestore:"branchId"`
	Quantity  int    `firestore:"quantity"`
	Tracked   bool   `firestore:"tracked"`
}

func (d stockDocument) record() stock.Record {
	return stock.Record{ProductID: d.ProductID, BranchID: d.BranchID, Quantity: d.Quantity, Tracked: d.Tracked}
}

// StockLedger implements stock.Ledger backed by Firestore. Deduct and
// Restore read every stock document of the request inside one
// transaction, so a concurrent writer aborts and retries the whole set.
type StockLedger struct {
	client *firestore.Client
}

// Check reads current levels without a transaction.
func (l *StockLedger) Check(ctx context.Context, items []stock.Item) (stock.CheckResult, error) {
	items = stock.Merge(items)
	snaps, err := l.client.GetAll(ctx, l.refs(items))
	if err != nil {
		return stock.CheckResult{}, wrapError("stock.check", err)
	}
	records, err := decodeStock(snaps)
	if err != nil {
		return stock.CheckResult{}, err
	}
	return stock.Evaluate(items, records), nil
}

// Deduct decrements every tracked item or nothing.
func (l *StockLedger) Deduct(ctx context.Context, items []stock.Item) (stock.DeductResult, error) {
	items = stock.Merge(items)
	var res stock.DeductResult
	err := runTransaction(ctx, l.client, "stock.deduct", func(_ context.Context, tx *firestore.Transaction) error {
		res = stock.DeductResult{Updated: make([]stock.Info, 0, len(items))}
		refs := l.refs(items)
		snaps, err := tx.GetAll(refs)
		if err != nil {
			return err
		}
		records, err := decodeStock(snaps)
		if err != nil {
			return err
		}
		if check := stock.Evaluate(items, records); !check.Success {
			return &stock.ConflictError{Lines: check.Errors}
		}
		for i, it := range items {
			rec, ok := records[it.ProductID]
			if !ok || !rec.Tracked {
				continue
			}
			left := rec.Quantity - it.Quantity
			if err := tx.Update(refs[i], []firestore.Update{{Path: "quantity", Value: left}}); err != nil {
				return err
			}
			res.Updated = append(res.Updated, stock.Info{
				ProductID: it.ProductID,
				Requested: it.Quantity,
				Available: left,
				Tracked:   true,
			})
		}
		return nil
	})
	if err != nil {
		return stock.DeductResult{}, err
	}
	return res, nil
}

// Restore increments every tracked item.
func (l *StockLedger) Restore(ctx context.Context, items []stock.Item) (stock.RestoreResult, error) {
	items = stock.Merge(items)
	var res stock.RestoreResult
	err := runTransaction(ctx, l.client, "stock.restore", func(_ context.Context, tx *firestore.Transaction) error {
		res = stock.RestoreResult{Restored: make([]stock.Info, 0, len(items))}
		refs := l.refs(items)
		snaps, err := tx.GetAll(refs)
		if err != nil {
			return err
		}
		records, err := decodeStock(snaps)
		if err != nil {
			return err
		}
		for i, it := range items {
			rec, ok := records[it.ProductID]
			if !ok || !rec.Tracked {
				continue
			}
			now := rec.Quantity + it.Quantity
			if err := tx.Update(refs[i], []firestore.Update{{Path: "quantity", Value: now}}); err != nil {
				return err
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

func (l *StockLedger) refs(items []stock.Item) []*firestore.DocumentRef {
	refs := make([]*firestore.DocumentRef, len(items))
	for i, it := range items {
		refs[i] = l.client.Collection(stockCollection).Doc(it.ProductID)
	}
	return refs
}

func decodeStock(snaps []*firestore.DocumentSnapshot) (map[string]stock.Record, error) {
	records := make(map[string]stock.Record, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		var doc stockDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decoding stock %q: %w", snap.Ref.ID, err)
		}
		doc.ProductID = snap.Ref.ID
		records[doc.ProductID] = doc.record()
	}
	return records, nil
}
