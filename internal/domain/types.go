package domain

import (
	"time"
)

// GoodsStatus describes whether a goods item is purchasable.
type GoodsStatus string

const (
	// GoodsStatusOpen indicates the item is listed and purchasable.
	GoodsStatusOpen GoodsStatus = "open"
	// GoodsStatusClosed indicates the item has been taken off the shelf.
	GoodsStatusClosed GoodsStatus = "closed"
)

// FulfillmentKind distinguishes how a goods item is delivered after purchase.
type FulfillmentKind string

const (
	// FulfillmentManual means an operator fulfils the order by hand.
	FulfillmentManual FulfillmentKind = "manual"
	// FulfillmentAutomatic means delivery draws from a pool of stored codes;
	// availability is the live count of unsold codes, not the stock counter.
	FulfillmentAutomatic FulfillmentKind = "automatic"
)

// Goods is a purchasable catalog item.
type Goods struct {
	ID          string
	Name        string
	Description string
	Fulfillment FulfillmentKind
	Status      GoodsStatus
	// PriceCents is the list price in minor currency units.
	PriceCents  int64
	InStock     int
	SalesVolume int
	HasSKU      bool
	Picture     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsOpen reports whether the goods item is currently purchasable.
func (g Goods) IsOpen() bool {
	return g.Status == GoodsStatusOpen
}

// SKUStatus describes whether a SKU variant is selectable.
type SKUStatus string

const (
	// SKUStatusEnabled marks the variant selectable.
	SKUStatusEnabled SKUStatus = "enabled"
	// SKUStatusDisabled marks the variant hidden from purchase.
	SKUStatusDisabled SKUStatus = "disabled"
)

// GoodsSKU is a specific purchasable variant of a goods item with its own
// stock and price.
type GoodsSKU struct {
	GoodsID    string
	SKUCode    string
	Name       string
	Attributes map[string]string
	PriceCents int64
	Stock      int
	SoldCount  int
	Status     SKUStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsEnabled reports whether the variant can be purchased.
func (s GoodsSKU) IsEnabled() bool {
	return s.Status == SKUStatusEnabled
}

// FulfillmentCodeStatus tracks whether a stored delivery code has been consumed.
type FulfillmentCodeStatus string

const (
	// CodeUnsold marks a delivery code still available for sale.
	CodeUnsold FulfillmentCodeStatus = "unsold"
	// CodeSold marks a delivery code already handed to a buyer.
	CodeSold FulfillmentCodeStatus = "sold"
)

// FulfillmentCode is one deliverable code for automatic-fulfillment goods.
type FulfillmentCode struct {
	ID      string
	GoodsID string
	SKUCode string
	// Code is the secret handed to the buyer on purchase.
	Code   string
	Status FulfillmentCodeStatus
	// OrderRef links a sold code back to the order that consumed it.
	OrderRef  string
	SoldAt    *time.Time
	CreatedAt time.Time
}

// Coupon is a discount voucher with a bounded number of remaining uses.
type Coupon struct {
	Code string
	// DiscountCents is the per-unit discount in minor currency units.
	DiscountCents int64
	// MinAmountCents gates coupon use on the line total; zero disables the gate.
	MinAmountCents int64
	// Remaining counts how many more times the coupon may be consumed.
	Remaining int
	Open      bool
	FullyUsed bool
	// GoodsIDs restricts the coupon to specific goods.
	GoodsIDs  []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Selectable reports whether the coupon can still be applied to a new line.
func (c Coupon) Selectable() bool {
	return c.Open && !c.FullyUsed && c.Remaining > 0
}

// AppliesTo reports whether the coupon covers the given goods item. A coupon
// without a goods restriction covers everything.
func (c Coupon) AppliesTo(goodsID string) bool {
	if len(c.GoodsIDs) == 0 {
		return true
	}
	for _, id := range c.GoodsIDs {
		if id == goodsID {
			return true
		}
	}
	return false
}

// CartLine is a pending, not-yet-ordered selection of a goods item with
// quantity and price. Snapshots freeze the catalog data seen at add time;
// availability is always re-validated against live data at checkout.
type CartLine struct {
	ID         string
	SessionKey string
	BuyerEmail string
	GoodsID    string
	SKUCode    string
	Quantity   int
	// UnitPriceCents is the frozen per-unit list price.
	UnitPriceCents int64
	// DiscountCents is the per-unit coupon discount applied to this line.
	DiscountCents int64
	CouponCode    string
	GoodsSnapshot map[string]any
	SKUSnapshot   map[string]any
	ExpiresAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TotalCents returns the line total after per-unit discount.
func (l CartLine) TotalCents() int64 {
	return (l.UnitPriceCents - l.DiscountCents) * int64(l.Quantity)
}

// Expired reports whether the line has passed its expiry.
func (l CartLine) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(now)
}

// OrderStatus tracks the life cycle of a placed order.
type OrderStatus string

const (
	// OrderStatusPending marks a freshly placed order awaiting payment.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusCompleted marks a fulfilled order.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCanceled marks an abandoned or voided order.
	OrderStatusCanceled OrderStatus = "canceled"
)

// Order is the immutable result of checking out one cart line. It is created
// exactly once, in the same transaction as the stock decrement.
type Order struct {
	// Serial is the public order number (order_sn on the wire).
	Serial  string
	GoodsID string
	SKUCode string
	Email   string
	Contact string
	// Quantity is the purchased unit count (buy_amount in the legacy schema).
	Quantity int
	// ActualPriceCents is the frozen per-unit price after discount.
	ActualPriceCents int64
	// TotalPriceCents is ActualPriceCents multiplied by Quantity.
	TotalPriceCents int64
	CouponCode      string
	// CouponDiscountCents is the total discount across the whole line.
	CouponDiscountCents int64
	Status              OrderStatus
	// GoodsSnapshot and SKUSnapshot are opaque blobs captured at creation;
	// the live catalog rows may change or vanish later.
	GoodsSnapshot map[string]any
	SKUSnapshot   map[string]any
	// Source marks orders imported through the inbound sync endpoint.
	Source    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderSourceSubsiteSync marks orders created by the inbound subsite sync API.
const OrderSourceSubsiteSync = "subsite_sync"
