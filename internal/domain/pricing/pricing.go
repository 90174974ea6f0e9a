// Package pricing resolves a product's effective unit price from its
// time-windowed price-change rules.
package pricing

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ChangeType enumerates how a price change modifies the base price.
type ChangeType string

const (
	// Temporary replaces the base price with TempPrice, or Value when unset.
	Temporary ChangeType = "temporary"
	// Permanent replaces the base price with Value.
	Permanent ChangeType = "permanent"
	// Fixed replaces the base price with Value.
	Fixed ChangeType = "fixed"
	// Increase adds Value to the base price.
	Increase ChangeType = "increase"
	// Decrease subtracts Value from the base price, floored at zero.
	Decrease ChangeType = "decrease"
)

// Change is a price-change rule attached to a product.
type Change struct {
	ID        string
	Type      ChangeType
	Value     decimal.Decimal
	TempPrice *decimal.Decimal
	Active    bool
	StartDate *time.Time
	EndDate   *time.Time
	CreatedAt time.Time
}

// InWindow reports whether t falls inside the rule's validity window.
// A missing bound is open.
func (c Change) InWindow(t time.Time) bool {
	if c.StartDate != nil && t.Before(*c.StartDate) {
		return false
	}
	if c.EndDate != nil && t.After(*c.EndDate) {
		return false
	}
	return true
}

// Select returns the rules that are active at now, most recently created
// first (ties broken by ID). Resolve picks the first of them, so this
// ordering is what makes overlapping rules deterministic.
func Select(changes []Change, now time.Time) []Change {
	out := make([]Change, 0, len(changes))
	for _, c := range changes {
		if c.Active && c.InWindow(now) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// Resolve returns the effective unit price for base given changes.
//
// The first change with Active set wins; callers are responsible for
// filtering by validity window and ordering (see Select). Unknown change
// types leave the base price untouched.
func Resolve(base decimal.Decimal, changes []Change) decimal.Decimal {
	for _, c := range changes {
		if !c.Active {
			continue
		}
		return apply(base, c)
	}
	return base
}

func apply(base decimal.Decimal, c Change) decimal.Decimal {
	switch c.Type {
	case Temporary:
		if c.TempPrice != nil {
			return *c.TempPrice
		}
		return c.Value
	case Permanent, Fixed:
		return c.Value
	case Increase:
		return base.Add(c.Value)
	case Decrease:
		p := base.Sub(c.Value)
		if p.IsNegative() {
			return decimal.Zero
		}
		return p
	default:
		return base
	}
}
