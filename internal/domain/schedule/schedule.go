// Package schedule models a branch's weekly ordering schedule and answers
// lead-time and availability questions against it.
package schedule

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/kitchen-orders/internal/domain/branch"
)

// DefaultLeadTime is used whenever the schedule has no usable lead time.
const DefaultLeadTime = 45

// ErrNotFound is returned when a branch has no ordering schedule.
var ErrNotFound = errors.New("ordering times not found")

// Window is an operating window in "HH:MM" local time. A window whose Close
// is before its Open runs past midnight.
type Window struct {
	Open  string
	Close string
}

// Service is the per-service-type configuration of a single weekday.
type Service struct {
	Allowed         bool
	Windows         []Window
	LeadTimeMinutes *int
}

// Day holds the settings of one weekday.
type Day struct {
	Services map[branch.ServiceType]Service
}

// ClosedDate is either a single Date or an inclusive From..To range, all as
// YYYY-MM-DD in the branch timezone.
type ClosedDate struct {
	Date string
	From string
	To   string
}

// OrderingTimes is the ordering schedule of one branch.
type OrderingTimes struct {
	BranchID string
	// Timezone is an IANA name. Empty or unknown means UTC.
	Timezone string
	// Weekly is keyed by branch.WeekdayKey.
	Weekly map[string]Day
	Closed []ClosedDate
}

// Location returns the branch timezone, falling back to UTC.
func (t *OrderingTimes) Location() *time.Location {
	if t == nil || t.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (t *OrderingTimes) service(m branch.DeliveryMethod, local time.Time) (Service, bool) {
	if t == nil {
		return Service{}, false
	}
	st, ok := branch.ServiceTypeFor(m)
	if !ok {
		return Service{}, false
	}
	day, ok := t.Weekly[branch.WeekdayKey(local.Weekday())]
	if !ok {
		return Service{}, false
	}
	svc, ok := day.Services[st]
	return svc, ok
}

// Repository loads branch schedules.
type Repository interface {
	// Get returns ErrNotFound if the branch has no schedule.
	Get(ctx context.Context, branchID string) (*OrderingTimes, error)
}

// Estimate returns the lead time in minutes for an order placed at now with
// method m. Missing days, services or lead times yield DefaultLeadTime, as
// do negative lead times. A configured zero is kept.
func Estimate(t *OrderingTimes, m branch.DeliveryMethod, now time.Time) int {
	svc, ok := t.service(m, now.In(t.Location()))
	if !ok || svc.LeadTimeMinutes == nil || *svc.LeadTimeMinutes < 0 {
		return DefaultLeadTime
	}
	return *svc.LeadTimeMinutes
}

// IsClosedOnDate reports whether the calendar date of at, in the branch
// timezone, falls on a closed date or inside a closed range.
func IsClosedOnDate(t *OrderingTimes, at time.Time) bool {
	if t == nil {
		return false
	}
	date := at.In(t.Location()).Format(time.DateOnly)
	for _, c := range t.Closed {
		switch {
		case c.Date != "":
			if c.Date == date {
				return true
			}
		case c.From != "" && c.To != "":
			// ISO dates compare lexically.
			if c.From <= date && date <= c.To {
				return true
			}
		}
	}
	return false
}

// Reason explains why ordering is unavailable.
type Reason string

const (
	ReasonClosedDate  Reason = "closed_date"
	ReasonNotOffered  Reason = "not_offered"
	ReasonOutsideHour Reason = "outside_hours"
)

// Availability is the answer of IsOrderingAllowed.
type Availability struct {
	Allowed bool
	Reason  Reason
	// LeadTimeMinutes is the estimate an order placed now would receive.
	LeadTimeMinutes int
}

// IsOrderingAllowed combines closed dates, the weekday allow flag and the
// operating windows for method m. A nil schedule allows ordering.
// A service with no windows is open all day.
func IsOrderingAllowed(t *OrderingTimes, m branch.DeliveryMethod, now time.Time) Availability {
	res := Availability{LeadTimeMinutes: Estimate(t, m, now)}
	if t == nil {
		res.Allowed = true
		return res
	}
	if IsClosedOnDate(t, now) {
		res.Reason = ReasonClosedDate
		return res
	}

	local := now.In(t.Location())
	svc, ok := t.service(m, local)
	if !ok || !svc.Allowed {
		res.Reason = ReasonNotOffered
		return res
	}
	if len(svc.Windows) == 0 {
		res.Allowed = true
		return res
	}

	minute := local.Hour()*60 + local.Minute()
	for _, w := range svc.Windows {
		if w.contains(minute) {
			res.Allowed = true
			return res
		}
	}
	res.Reason = ReasonOutsideHour
	return res
}

func (w Window) contains(minute int) bool {
	open, err := parseClock(w.Open)
	if err != nil {
		return false
	}
	closing, err := parseClock(w.Close)
	if err != nil {
		return false
	}
	if closing < open {
		return minute >= open || minute < closing
	}
	return minute >= open && minute < closing
}

func parseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, errors.Errorf("invalid clock %q", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 24 {
		return 0, errors.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, errors.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}
