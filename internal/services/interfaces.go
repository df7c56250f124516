package services

import (
	"context"
	"time"

	domain "github.com/kado-mall/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Goods              = domain.Goods
	GoodsSKU           = domain.GoodsSKU
	FulfillmentCode    = domain.FulfillmentCode
	Coupon             = domain.Coupon
	CartLine           = domain.CartLine
	Order              = domain.Order
	Subsite            = domain.Subsite
	SubsiteOrder       = domain.SubsiteOrder
	SubsiteStatistics  = domain.SubsiteStatistics
	SystemHealthReport = domain.SystemHealthReport
)

// Availability is the outcome of a live stock check for one cart line.
type Availability struct {
	Available bool
	// Reason explains an unavailable result in buyer-facing terms.
	Reason string
}

// IncreaseStockCommand restores stock after a cancellation or refund.
type IncreaseStockCommand struct {
	GoodsID  string
	SKUCode  string
	Quantity int
}

// LedgerService answers availability questions and runs compensating stock
// movements. The decrement itself lives inside the checkout transaction.
type LedgerService interface {
	CheckAvailability(ctx context.Context, line CartLine) (Availability, error)
	Increase(ctx context.Context, cmd IncreaseStockCommand) error
	ConsumeCoupon(ctx context.Context, code string) (Coupon, error)
}

// AddCartLineCommand captures one goods selection entering the cart.
type AddCartLineCommand struct {
	SessionKey string
	BuyerEmail string
	GoodsID    string
	SKUCode    string
	Quantity   int
	CouponCode string
}

// CartService manages pending cart lines for a session.
type CartService interface {
	AddLine(ctx context.Context, cmd AddCartLineCommand) (CartLine, error)
	ListLines(ctx context.Context, sessionKey string) ([]CartLine, error)
	RemoveLine(ctx context.Context, sessionKey, lineID string) error
}

// CheckoutCommand turns a set of cart lines into orders.
type CheckoutCommand struct {
	SessionKey string
	LineIDs    []string
	Email      string
	Contact    string
}

// CheckoutLineResult reports the outcome of one cart line in a checkout batch.
type CheckoutLineResult struct {
	LineID      string
	OrderSerial string
	Codes       []string
	Err         string
}

// CheckoutOutcome aggregates per-line results of one checkout batch.
type CheckoutOutcome struct {
	Orders []Order
	Lines  []CheckoutLineResult
}

// CheckoutService executes the per-line checkout flow. Lines fail
// individually; the batch never aborts part-way through a line.
type CheckoutService interface {
	Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutOutcome, error)
}

// SyncReport summarises one delivery sweep for a subsite.
type SyncReport struct {
	SubsiteID    string
	Total        int
	SuccessCount int
	FailedCount  int
}

// SyncService delivers fan-out rows to third-party subsites and manages
// their retry state.
type SyncService interface {
	SyncPending(ctx context.Context, subsiteID string) (SyncReport, error)
	TestConnection(ctx context.Context, subsiteID string) error
	// ResyncOrder clears a frozen row's retry state so the next sweep
	// picks it up again.
	ResyncOrder(ctx context.Context, subsiteOrderID string) (SubsiteOrder, error)
}

// SettleCommand selects what to settle: every pending row of one subsite,
// or an explicit list of fan-out row ids. Exactly one selector is required.
type SettleCommand struct {
	SubsiteID       string
	SubsiteOrderIDs []string
}

// SettlementReport summarises one settlement run.
type SettlementReport struct {
	SubsiteID       string
	SettledCount    int
	SettledCents    int64
	NewBalanceCents int64
}

// SettlementService flips pending commissions to settled and credits
// subsite balances.
type SettlementService interface {
	Settle(ctx context.Context, cmd SettleCommand) (SettlementReport, error)
}

// CreateSubsiteCommand provisions a new subsite.
type CreateSubsiteCommand struct {
	Name             string
	Kind             domain.SubsiteKind
	CommissionRateBP int64
	APIURL           string
	APIKey           string
	APISecret        string
	ContactEmail     string
	ContactPhone     string
	Description      string
}

// UpdateSubsiteCommand mutates an existing subsite. Nil fields are untouched.
type UpdateSubsiteCommand struct {
	SubsiteID        string
	Name             *string
	Enabled          *bool
	CommissionRateBP *int64
	APIURL           *string
	AutoSync         *bool
	SyncInterval     *time.Duration
	ContactEmail     *string
	ContactPhone     *string
	Description      *string
}

// ImportOrderCommand carries an inbound order pushed by an authenticated
// subsite.
type ImportOrderCommand struct {
	SubsiteID   string
	OrderSerial string
	GoodsName   string
	SKUName     string
	Quantity    int
	// TotalCents and ActualCents arrive as decimal strings on the wire
	// and are parsed before this command is built.
	TotalCents  int64
	ActualCents int64
	Email       string
	Contact     string
	PlacedAt    *time.Time
}

// SubsiteService manages subsite records and the inbound sync surface.
type SubsiteService interface {
	Create(ctx context.Context, cmd CreateSubsiteCommand) (Subsite, error)
	Update(ctx context.Context, cmd UpdateSubsiteCommand) (Subsite, error)
	Get(ctx context.Context, subsiteID string) (Subsite, error)
	List(ctx context.Context) ([]Subsite, error)
	// Delete removes a subsite together with its fan-out rows.
	Delete(ctx context.Context, subsiteID string) error
	Statistics(ctx context.Context, subsiteID string) (SubsiteStatistics, error)
	// ImportOrder records an order pushed through the inbound sync API.
	// A repeated order serial is a conflict and leaves no trace.
	ImportOrder(ctx context.Context, cmd ImportOrderCommand) (Order, error)
	OrderStatus(ctx context.Context, orderSerial string) (Order, error)
}

// OrderPlacedEvent announces a committed checkout line.
type OrderPlacedEvent struct {
	OrderSerial string
	GoodsID     string
	TotalCents  int64
	FanoutCount int
	PlacedAt    time.Time
}

// SyncCompletedEvent announces the outcome of one delivery sweep.
type SyncCompletedEvent struct {
	SubsiteID    string
	SuccessCount int
	FailedCount  int
	SweptAt      time.Time
}

// CommissionSettledEvent announces a settlement run.
type CommissionSettledEvent struct {
	SubsiteID    string
	SettledCount int
	SettledCents int64
	SettledAt    time.Time
}

// EventPublisher pushes domain events onto the message bus. Publish failures
// are logged and never roll back the transaction that produced the event.
type EventPublisher interface {
	OrderPlaced(ctx context.Context, evt OrderPlacedEvent) error
	SyncCompleted(ctx context.Context, evt SyncCompletedEvent) error
	CommissionSettled(ctx context.Context, evt CommissionSettledEvent) error
}
