// Package document maps domain types to the nested documents persisted by
// the postgres (JSONB columns) and firestore backends. Money is stored as a
// decimal string so no backend ever round-trips it through float64.
package document

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kitchen-orders/internal/domain/branch"
	"github.com/xenking/kitchen-orders/internal/domain/coupon"
	"github.com/xenking/kitchen-orders/internal/domain/order"
	"github.com/xenking/kitchen-orders/internal/domain/pricing"
	"github.com/xenking/kitchen-orders/internal/domain/product"
	"github.com/xenking/kitchen-orders/internal/domain/schedule"
)

func money(s, field string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse %s", field)
	}
	return d, nil
}

// PriceChange is the stored form of pricing.Change.
type PriceChange struct {
	ID        string     `json:"id" firestore:"id"`
	Type      string     `json:"type" firestore:"type"`
	Value     string     `json:"value" firestore:"value"`
	TempPrice *string    `json:"tempPrice,omitempty" firestore:"tempPrice,omitempty"`
	Active    bool       `json:"active" firestore:"active"`
	StartDate *time.Time `json:"startDate,omitempty" firestore:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty" firestore:"endDate,omitempty"`
	CreatedAt time.Time  `json:"createdAt" firestore:"createdAt"`
}

// AttributeItem is the stored form of product.AttributeItem.
type AttributeItem struct {
	ID    string `json:"id" firestore:"id"`
	Name  string `json:"name" firestore:"name"`
	Price string `json:"price" firestore:"price"`
}

// Attribute is the stored form of product.Attribute.
type Attribute struct {
	ID    string          `json:"id" firestore:"id"`
	Name  string          `json:"name" firestore:"name"`
	Type  string          `json:"type" firestore:"type"`
	Items []AttributeItem `json:"items" firestore:"items"`
}

// Product is the stored form of product.Product.
type Product struct {
	ID           string        `json:"id" firestore:"id"`
	BranchID     string        `json:"branchId" firestore:"branchId"`
	Name         string        `json:"name" firestore:"name"`
	Category     string        `json:"category" firestore:"category"`
	Price        string        `json:"price" firestore:"price"`
	PriceChanges []PriceChange `json:"priceChanges" firestore:"priceChanges"`
	Attributes   []Attribute   `json:"attributes" firestore:"attributes"`
}

// FromPriceChanges converts rules to their stored form.
func FromPriceChanges(in []pricing.Change) []PriceChange {
	out := make([]PriceChange, len(in))
	for i, c := range in {
		pc := PriceChange{
			ID:        c.ID,
			Type:      string(c.Type),
			Value:     c.Value.String(),
			Active:    c.Active,
			StartDate: c.StartDate,
			EndDate:   c.EndDate,
			CreatedAt: c.CreatedAt,
		}
		if c.TempPrice != nil {
			s := c.TempPrice.String()
			pc.TempPrice = &s
		}
		out[i] = pc
	}
	return out
}

// ToPriceChanges parses stored rules.
func ToPriceChanges(in []PriceChange) ([]pricing.Change, error) {
	out := make([]pricing.Change, len(in))
	for i, pc := range in {
		value, err := money(pc.Value, "price change value")
		if err != nil {
			return nil, err
		}
		c := pricing.Change{
			ID:        pc.ID,
			Type:      pricing.ChangeType(pc.Type),
			Value:     value,
			Active:    pc.Active,
			StartDate: pc.StartDate,
			EndDate:   pc.EndDate,
			CreatedAt: pc.CreatedAt,
		}
		if pc.TempPrice != nil {
			tp, err := money(*pc.TempPrice, "temp price")
			if err != nil {
				return nil, err
			}
			c.TempPrice = &tp
		}
		out[i] = c
	}
	return out, nil
}

// FromAttributes converts product attributes to their stored form.
func FromAttributes(in []product.Attribute) []Attribute {
	out := make([]Attribute, len(in))
	for i, a := range in {
		items := make([]AttributeItem, len(a.Items))
		for j, it := range a.Items {
			items[j] = AttributeItem{ID: it.ID, Name: it.Name, Price: it.Price.String()}
		}
		out[i] = Attribute{ID: a.ID, Name: a.Name, Type: a.Type, Items: items}
	}
	return out
}

// ToAttributes parses stored product attributes.
func ToAttributes(in []Attribute) ([]product.Attribute, error) {
	out := make([]product.Attribute, len(in))
	for i, a := range in {
		items := make([]product.AttributeItem, len(a.Items))
		for j, it := range a.Items {
			price, err := money(it.Price, "attribute item price")
			if err != nil {
				return nil, err
			}
			items[j] = product.AttributeItem{ID: it.ID, Name: it.Name, Price: price}
		}
		out[i] = product.Attribute{ID: a.ID, Name: a.Name, Type: a.Type, Items: items}
	}
	return out, nil
}

// FromProduct converts a product to its stored form.
func FromProduct(p product.Product) Product {
	return Product{
		ID:           p.ID,
		BranchID:     p.BranchID,
		Name:         p.Name,
		Category:     p.Category,
		Price:        p.Price.String(),
		PriceChanges: FromPriceChanges(p.PriceChanges),
		Attributes:   FromAttributes(p.Attributes),
	}
}

// ToProduct parses a stored product.
func (d Product) ToProduct() (product.Product, error) {
	price, err := money(d.Price, "price")
	if err != nil {
		return product.Product{}, err
	}
	changes, err := ToPriceChanges(d.PriceChanges)
	if err != nil {
		return product.Product{}, err
	}
	attrs, err := ToAttributes(d.Attributes)
	if err != nil {
		return product.Product{}, err
	}
	return product.Product{
		ID:           d.ID,
		BranchID:     d.BranchID,
		Name:         d.Name,
		Category:     d.Category,
		Price:        price,
		PriceChanges: changes,
		Attributes:   attrs,
	}, nil
}

// Coupon is the stored form of coupon.Coupon.
type Coupon struct {
	ID               string          `json:"id" firestore:"id"`
	BranchID         string          `json:"branchId" firestore:"branchId"`
	Code             string          `json:"code" firestore:"code"`
	Name             string          `json:"name" firestore:"name"`
	Type             string          `json:"type" firestore:"type"`
	Value            string          `json:"value" firestore:"value"`
	MinSpend         string          `json:"minSpend" firestore:"minSpend"`
	MaxSpend         string          `json:"maxSpend" firestore:"maxSpend"`
	BranchEnabled    map[string]bool `json:"branchEnabled" firestore:"branchEnabled"`
	DaysAvailable    map[string]bool `json:"daysAvailable" firestore:"daysAvailable"`
	ServiceTypes     map[string]bool `json:"serviceTypes" firestore:"serviceTypes"`
	LimitTotal       int             `json:"limitTotal" firestore:"limitTotal"`
	LimitPerCustomer int             `json:"limitPerCustomer" firestore:"limitPerCustomer"`
	LimitPerDay      int             `json:"limitPerDay" firestore:"limitPerDay"`
	FirstOrderOnly   bool            `json:"firstOrderOnly" firestore:"firstOrderOnly"`
	TimeDependent    bool            `json:"timeDependent" firestore:"timeDependent"`
	StartDate        *time.Time      `json:"startDate,omitempty" firestore:"startDate,omitempty"`
	EndDate          *time.Time      `json:"endDate,omitempty" firestore:"endDate,omitempty"`
	State            string          `json:"state" firestore:"state"`
}

// FromServiceTypes converts a service type set to a plain string map.
func FromServiceTypes(in map[branch.ServiceType]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[string(k)] = v
	}
	return out
}

// ToServiceTypes converts a stored service type map.
func ToServiceTypes(in map[string]bool) map[branch.ServiceType]bool {
	out := make(map[branch.ServiceType]bool, len(in))
	for k, v := range in {
		out[branch.ServiceType(k)] = v
	}
	return out
}

// FromCoupon converts a coupon to its stored form.
func FromCoupon(c coupon.Coupon) Coupon {
	return Coupon{
		ID:               c.ID,
		BranchID:         c.BranchID,
		Code:             coupon.NormalizeCode(c.Code),
		Name:             c.Name,
		Type:             string(c.Type),
		Value:            c.Value.String(),
		MinSpend:         c.MinSpend.String(),
		MaxSpend:         c.MaxSpend.String(),
		BranchEnabled:    c.BranchEnabled,
		DaysAvailable:    c.DaysAvailable,
		ServiceTypes:     FromServiceTypes(c.ServiceTypes),
		LimitTotal:       c.Limits.Total,
		LimitPerCustomer: c.Limits.PerCustomer,
		LimitPerDay:      c.Limits.PerDay,
		FirstOrderOnly:   c.FirstOrderOnly,
		TimeDependent:    c.TimeDependent,
		StartDate:        c.StartDate,
		EndDate:          c.EndDate,
		State:            string(c.State),
	}
}

// ToCoupon parses a stored coupon.
func (d Coupon) ToCoupon() (coupon.Coupon, error) {
	value, err := money(d.Value, "coupon value")
	if err != nil {
		return coupon.Coupon{}, err
	}
	minSpend, err := money(d.MinSpend, "min spend")
	if err != nil {
		return coupon.Coupon{}, err
	}
	maxSpend, err := money(d.MaxSpend, "max spend")
	if err != nil {
		return coupon.Coupon{}, err
	}
	return coupon.Coupon{
		ID:            d.ID,
		BranchID:      d.BranchID,
		Code:          d.Code,
		Name:          d.Name,
		Type:          coupon.DiscountType(d.Type),
		Value:         value,
		MinSpend:      minSpend,
		MaxSpend:      maxSpend,
		BranchEnabled: d.BranchEnabled,
		DaysAvailable: d.DaysAvailable,
		ServiceTypes:  ToServiceTypes(d.ServiceTypes),
		Limits: coupon.Limits{
			Total:       d.LimitTotal,
			PerCustomer: d.LimitPerCustomer,
			PerDay:      d.LimitPerDay,
		},
		FirstOrderOnly: d.FirstOrderOnly,
		TimeDependent:  d.TimeDependent,
		StartDate:      d.StartDate,
		EndDate:        d.EndDate,
		State:          coupon.State(d.State),
	}, nil
}

// Window is the stored form of schedule.Window.
type Window struct {
	Open  string `json:"open" firestore:"open"`
	Close string `json:"close" firestore:"close"`
}

// Service is the stored form of schedule.Service.
type Service struct {
	Allowed         bool     `json:"allowed" firestore:"allowed"`
	Windows         []Window `json:"windows,omitempty" firestore:"windows,omitempty"`
	LeadTimeMinutes *int     `json:"leadTime,omitempty" firestore:"leadTime,omitempty"`
}

// ClosedDate is the stored form of schedule.ClosedDate.
type ClosedDate struct {
	Date string `json:"date,omitempty" firestore:"date,omitempty"`
	From string `json:"from,omitempty" firestore:"from,omitempty"`
	To   string `json:"to,omitempty" firestore:"to,omitempty"`
}

// Weekly maps weekday → service type → settings.
type Weekly map[string]map[string]Service

// OrderingTimes is the stored form of schedule.OrderingTimes.
type OrderingTimes struct {
	BranchID string       `json:"branchId" firestore:"branchId"`
	Timezone string       `json:"timezone" firestore:"timezone"`
	Weekly   Weekly       `json:"weekly" firestore:"weekly"`
	Closed   []ClosedDate `json:"closed" firestore:"closed"`
}

// FromOrderingTimes converts a schedule to its stored form.
func FromOrderingTimes(t schedule.OrderingTimes) OrderingTimes {
	weekly := make(Weekly, len(t.Weekly))
	for day, d := range t.Weekly {
		services := make(map[string]Service, len(d.Services))
		for st, s := range d.Services {
			windows := make([]Window, len(s.Windows))
			for i, w := range s.Windows {
				windows[i] = Window{Open: w.Open, Close: w.Close}
			}
			services[string(st)] = Service{Allowed: s.Allowed, Windows: windows, LeadTimeMinutes: s.LeadTimeMinutes}
		}
		weekly[day] = services
	}
	closed := make([]ClosedDate, len(t.Closed))
	for i, c := range t.Closed {
		closed[i] = ClosedDate{Date: c.Date, From: c.From, To: c.To}
	}
	return OrderingTimes{BranchID: t.BranchID, Timezone: t.Timezone, Weekly: weekly, Closed: closed}
}

// ToOrderingTimes parses a stored schedule.
func (d OrderingTimes) ToOrderingTimes() schedule.OrderingTimes {
	weekly := make(map[string]schedule.Day, len(d.Weekly))
	for day, services := range d.Weekly {
		out := schedule.Day{Services: make(map[branch.ServiceType]schedule.Service, len(services))}
		for st, s := range services {
			windows := make([]schedule.Window, len(s.Windows))
			for i, w := range s.Windows {
				windows[i] = schedule.Window{Open: w.Open, Close: w.Close}
			}
			out.Services[branch.ServiceType(st)] = schedule.Service{
				Allowed:         s.Allowed,
				Windows:         windows,
				LeadTimeMinutes: s.LeadTimeMinutes,
			}
		}
		weekly[day] = out
	}
	closed := make([]schedule.ClosedDate, len(d.Closed))
	for i, c := range d.Closed {
		closed[i] = schedule.ClosedDate{Date: c.Date, From: c.From, To: c.To}
	}
	return schedule.OrderingTimes{BranchID: d.BranchID, Timezone: d.Timezone, Weekly: weekly, Closed: closed}
}

// SelectedItem is the stored form of order.AttributeItem.
type SelectedItem struct {
	ItemID    string `json:"itemId" firestore:"itemId"`
	Name      string `json:"name" firestore:"name"`
	UnitPrice string `json:"unitPrice" firestore:"unitPrice"`
	Quantity  int    `json:"quantity" firestore:"quantity"`
}

// SelectedAttribute is the stored form of order.SelectedAttribute.
type SelectedAttribute struct {
	AttributeID string         `json:"attributeId" firestore:"attributeId"`
	Name        string         `json:"name" firestore:"name"`
	Type        string         `json:"type" firestore:"type"`
	Items       []SelectedItem `json:"items" firestore:"items"`
}

// Line is the stored form of order.Line.
type Line struct {
	ProductID  string              `json:"productId" firestore:"productId"`
	Name       string              `json:"name" firestore:"name"`
	Quantity   int                 `json:"quantity" firestore:"quantity"`
	UnitPrice  string              `json:"unitPrice" firestore:"unitPrice"`
	Notes      string              `json:"notes,omitempty" firestore:"notes,omitempty"`
	Attributes []SelectedAttribute `json:"attributes,omitempty" firestore:"attributes,omitempty"`
	LineTotal  string              `json:"lineTotal" firestore:"lineTotal"`
}

// Discount is the stored form of order.Discount.
type Discount struct {
	CouponID string `json:"couponId" firestore:"couponId"`
	Code     string `json:"code" firestore:"code"`
	Type     string `json:"type" firestore:"type"`
	Value    string `json:"value" firestore:"value"`
	Amount   string `json:"amount" firestore:"amount"`
}

// FromLines converts order lines to their stored form.
func FromLines(in []order.Line) []Line {
	out := make([]Line, len(in))
	for i, l := range in {
		attrs := make([]SelectedAttribute, len(l.Attributes))
		for j, a := range l.Attributes {
			items := make([]SelectedItem, len(a.Items))
			for k, it := range a.Items {
				items[k] = SelectedItem{ItemID: it.ItemID, Name: it.Name, UnitPrice: it.UnitPrice.String(), Quantity: it.Quantity}
			}
			attrs[j] = SelectedAttribute{AttributeID: a.AttributeID, Name: a.Name, Type: a.Type, Items: items}
		}
		out[i] = Line{
			ProductID:  l.ProductID,
			Name:       l.Name,
			Quantity:   l.Quantity,
			UnitPrice:  l.UnitPrice.String(),
			Notes:      l.Notes,
			Attributes: attrs,
			LineTotal:  l.LineTotal.String(),
		}
	}
	return out
}

// ToLines parses stored order lines.
func ToLines(in []Line) ([]order.Line, error) {
	out := make([]order.Line, len(in))
	for i, l := range in {
		unit, err := money(l.UnitPrice, "unit price")
		if err != nil {
			return nil, err
		}
		total, err := money(l.LineTotal, "line total")
		if err != nil {
			return nil, err
		}
		var attrs []order.SelectedAttribute
		for _, a := range l.Attributes {
			sel := order.SelectedAttribute{AttributeID: a.AttributeID, Name: a.Name, Type: a.Type}
			for _, it := range a.Items {
				price, err := money(it.UnitPrice, "attribute item price")
				if err != nil {
					return nil, err
				}
				sel.Items = append(sel.Items, order.AttributeItem{
					ItemID: it.ItemID, Name: it.Name, UnitPrice: price, Quantity: it.Quantity,
				})
			}
			attrs = append(attrs, sel)
		}
		out[i] = order.Line{
			ProductID:  l.ProductID,
			Name:       l.Name,
			Quantity:   l.Quantity,
			UnitPrice:  unit,
			Notes:      l.Notes,
			Attributes: attrs,
			LineTotal:  total,
		}
	}
	return out, nil
}

// FromDiscount converts a discount snapshot; nil stays nil.
func FromDiscount(d *order.Discount) *Discount {
	if d == nil {
		return nil
	}
	return &Discount{
		CouponID: d.CouponID,
		Code:     d.Code,
		Type:     string(d.Type),
		Value:    d.Value.String(),
		Amount:   d.Amount.String(),
	}
}

// ToDiscount parses a stored discount snapshot.
func (d *Discount) ToDiscount() (*order.Discount, error) {
	if d == nil {
		return nil, nil
	}
	value, err := money(d.Value, "discount value")
	if err != nil {
		return nil, err
	}
	amount, err := money(d.Amount, "discount amount")
	if err != nil {
		return nil, err
	}
	return &order.Discount{
		CouponID: d.CouponID,
		Code:     d.Code,
		Type:     coupon.DiscountType(d.Type),
		Value:    value,
		Amount:   amount,
	}, nil
}

// Order is the stored form of order.Order.
type Order struct {
	ID               string     `json:"id" firestore:"id"`
	Number           string     `json:"number" firestore:"number"`
	BranchID         string     `json:"branchId" firestore:"branchId"`
	UserID           string     `json:"userId" firestore:"userId"`
	Lines            []Line     `json:"lines" firestore:"lines"`
	DeliveryMethod   string     `json:"deliveryMethod" firestore:"deliveryMethod"`
	Status           string     `json:"status" firestore:"status"`
	Discount         *Discount  `json:"discount,omitempty" firestore:"discount,omitempty"`
	TotalAmount      string     `json:"totalAmount" firestore:"totalAmount"`
	FinalTotal       string     `json:"finalTotal" firestore:"finalTotal"`
	EstimatedMinutes int        `json:"estimatedMinutes" firestore:"estimatedMinutes"`
	DeliveryAddress  string     `json:"deliveryAddress,omitempty" firestore:"deliveryAddress,omitempty"`
	Notes            string     `json:"notes,omitempty" firestore:"notes,omitempty"`
	CreatedAt        time.Time  `json:"createdAt" firestore:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt" firestore:"updatedAt"`
	CancelledAt      *time.Time `json:"cancelledAt,omitempty" firestore:"cancelledAt,omitempty"`
}

// FromOrder converts an order to its stored form.
func FromOrder(o *order.Order) Order {
	return Order{
		ID:               o.ID,
		Number:           o.Number,
		BranchID:         o.BranchID,
		UserID:           o.UserID,
		Lines:            FromLines(o.Lines),
		DeliveryMethod:   string(o.DeliveryMethod),
		Status:           string(o.Status),
		Discount:         FromDiscount(o.Discount),
		TotalAmount:      o.TotalAmount.String(),
		FinalTotal:       o.FinalTotal.String(),
		EstimatedMinutes: o.EstimatedMinutes,
		DeliveryAddress:  o.DeliveryAddress,
		Notes:            o.Notes,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
		CancelledAt:      o.CancelledAt,
	}
}

// ToOrder parses a stored order.
func (d Order) ToOrder() (*order.Order, error) {
	lines, err := ToLines(d.Lines)
	if err != nil {
		return nil, err
	}
	discount, err := d.Discount.ToDiscount()
	if err != nil {
		return nil, err
	}
	total, err := money(d.TotalAmount, "total amount")
	if err != nil {
		return nil, err
	}
	final, err := money(d.FinalTotal, "final total")
	if err != nil {
		return nil, err
	}
	return &order.Order{
		ID:               d.ID,
		Number:           d.Number,
		BranchID:         d.BranchID,
		UserID:           d.UserID,
		Lines:            lines,
		DeliveryMethod:   branch.DeliveryMethod(d.DeliveryMethod),
		Status:           order.Status(d.Status),
		Discount:         discount,
		TotalAmount:      total,
		FinalTotal:       final,
		EstimatedMinutes: d.EstimatedMinutes,
		DeliveryAddress:  d.DeliveryAddress,
		Notes:            d.Notes,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
		CancelledAt:      d.CancelledAt,
	}, nil
}
