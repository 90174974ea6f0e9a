// Package stock defines the stock ledger: per-product available quantities
// mutated only through Check, Deduct and Restore.
package stock

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Item is a requested quantity of a product.
type Item struct {
	ProductID string
	BranchID  string
	Quantity  int
}

// Record is the stored stock level of a product.
type Record struct {
	ProductID string
	BranchID  string
	Quantity  int
	// Tracked disables availability checks when false.
	Tracked bool
}

// Info reports the stock level of a product after an operation.
type Info struct {
	ProductID string
	Requested int
	Available int
	Tracked   bool
}

// LineError describes why a single item failed a stock operation.
type LineError struct {
	ProductID string
	Requested int
	Available int
}

func (e LineError) String() string {
	return fmt.Sprintf("product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

// CheckResult is the outcome of an availability check.
type CheckResult struct {
	Success bool
	Errors  []LineError
	Info    []Info
}

// DeductResult lists stock levels after a successful deduction.
type DeductResult struct {
	Updated []Info
}

// RestoreResult lists stock levels after a restoration.
type RestoreResult struct {
	Restored []Info
}

// Ledger tracks available quantity per product.
//
// Check is advisory and takes no lock. Deduct must be atomic at the storage
// layer: either every tracked item is decremented without any quantity
// going below zero, or nothing changes and a *ConflictError is returned.
type Ledger interface {
	Check(ctx context.Context, items []Item) (CheckResult, error)
	Deduct(ctx context.Context, items []Item) (DeductResult, error)
	Restore(ctx context.Context, items []Item) (RestoreResult, error)
}

// StockError reports insufficient stock for one or more items before an
// order is created.
type StockError struct {
	Lines []LineError
}

func (e *StockError) Error() string {
	parts := make([]string, len(e.Lines))
	for i, l := range e.Lines {
		parts[i] = l.String()
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

// ConflictError is returned by Deduct when a concurrent deduction consumed
// the stock after the advisory check passed.
type ConflictError struct {
	Lines []LineError
}

func (e *ConflictError) Error() string {
	parts := make([]string, len(e.Lines))
	for i, l := range e.Lines {
		parts[i] = l.String()
	}
	return "stock conflict: " + strings.Join(parts, "; ")
}

// Merge sums quantities of items referring to the same product and returns
// them sorted by product ID, which also gives storage backends a stable
// lock order.
func Merge(items []Item) []Item {
	byID := make(map[string]int, len(items))
	branches := make(map[string]string, len(items))
	for _, it := range items {
		byID[it.ProductID] += it.Quantity
		if it.BranchID != "" {
			branches[it.ProductID] = it.BranchID
		}
	}
	out := make([]Item, 0, len(byID))
	for id, qty := range byID {
		out = append(out, Item{ProductID: id, BranchID: branches[id], Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// Evaluate compares requested items against stored records and builds a
// CheckResult. Items without a record, or with tracking disabled, are
// always available. Backends share it so every driver answers Check the
// same way.
func Evaluate(items []Item, records map[string]Record) CheckResult {
	res := CheckResult{Success: true, Info: make([]Info, 0, len(items))}
	for _, it := range items {
		rec, ok := records[it.ProductID]
		tracked := ok && rec.Tracked
		info := Info{ProductID: it.ProductID, Requested: it.Quantity, Tracked: tracked}
		if tracked {
			info.Available = rec.Quantity
			if it.Quantity > rec.Quantity {
				res.Success = false
				res.Errors = append(res.Errors, LineError{
					ProductID: it.ProductID,
					Requested: it.Quantity,
					Available: rec.Quantity,
				})
			}
		}
		res.Info = append(res.Info, info)
	}
	return res
}
