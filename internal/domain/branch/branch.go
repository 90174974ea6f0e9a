// Package branch holds the vocabulary shared by branch-scoped entities:
// delivery methods, the schedule/coupon service types they map to, and
// weekday keys.
package branch

import (
	"strings"
	"time"
)

// DeliveryMethod is how the customer receives an order.
type DeliveryMethod string

const (
	// Pickup is collected by the customer at the branch.
	Pickup DeliveryMethod = "pickup"
	// Delivery is driven to the customer's address.
	Delivery DeliveryMethod = "delivery"
	// DineIn is served at a table in the branch.
	DineIn DeliveryMethod = "dine_in"
)

// Valid reports whether m is one of the known delivery methods.
func (m DeliveryMethod) Valid() bool {
	_, ok := ServiceTypeFor(m)
	return ok
}

// ServiceType keys schedules and coupon applicability.
type ServiceType string

const (
	Collection    ServiceType = "collection"
	DeliveryType  ServiceType = "delivery"
	TableOrdering ServiceType = "tableOrdering"
)

var serviceTypes = map[DeliveryMethod]ServiceType{
	Pickup:   Collection,
	Delivery: DeliveryType,
	DineIn:   TableOrdering,
}

// ServiceTypeFor maps a delivery method to its service type.
func ServiceTypeFor(m DeliveryMethod) (ServiceType, bool) {
	st, ok := serviceTypes[m]
	return st, ok
}

// WeekdayKey returns the lowercase English weekday name used as a key in
// weekly schedules and coupon day maps ("monday", "tuesday", ...).
func WeekdayKey(d time.Weekday) string {
	return strings.ToLower(d.String())
}
