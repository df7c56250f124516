package repositories

import (
	"context"
	"time"

	domain "github.com/kado-mall/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// GoodsRef addresses a stock bucket: either the goods row itself or one of
// its SKU variants.
type GoodsRef struct {
	GoodsID string
	SKUCode string
}

// CatalogRepository reads goods, SKU variants, and fulfillment code counts.
type CatalogRepository interface {
	GetGoods(ctx context.Context, goodsID string) (domain.Goods, error)
	GetSKU(ctx context.Context, goodsID, skuCode string) (domain.GoodsSKU, error)
	// UnsoldCodeCount reports the live number of unsold fulfillment codes
	// for automatic goods.
	UnsoldCodeCount(ctx context.Context, ref GoodsRef) (int, error)
	// IncreaseStock returns quantity to the stock bucket, used when an
	// order is canceled.
	IncreaseStock(ctx context.Context, ref GoodsRef, quantity int, now time.Time) error
}

// CouponRepository persists discount coupons.
type CouponRepository interface {
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	// Consume decrements the remaining use count, flipping the coupon to
	// fully used when it reaches zero.
	Consume(ctx context.Context, code string, now time.Time) (domain.Coupon, error)
}

// CartRepository persists session-scoped cart lines.
type CartRepository interface {
	Insert(ctx context.Context, line domain.CartLine) error
	LinesBySession(ctx context.Context, sessionKey string) ([]domain.CartLine, error)
	LinesByIDs(ctx context.Context, sessionKey string, ids []string) ([]domain.CartLine, error)
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes lines past their deadline and reports how many
	// were reaped.
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// OrderRepository persists orders keyed by their serial.
type OrderRepository interface {
	Create(ctx context.Context, order domain.Order) error
	GetBySerial(ctx context.Context, serial string) (domain.Order, error)
	ExistsBySerial(ctx context.Context, serial string) (bool, error)
	UpdateStatus(ctx context.Context, serial string, status domain.OrderStatus, now time.Time) error
}

// SubsiteRepository persists reseller tenants.
type SubsiteRepository interface {
	Create(ctx context.Context, subsite domain.Subsite) error
	Get(ctx context.Context, subsiteID string) (domain.Subsite, error)
	Update(ctx context.Context, subsite domain.Subsite) error
	List(ctx context.Context) ([]domain.Subsite, error)
	// ListEnabledThirdParty returns the tenants eligible for the outbound
	// sync sweep.
	ListEnabledThirdParty(ctx context.Context) ([]domain.Subsite, error)
	FindByAPIKey(ctx context.Context, apiKey string) (domain.Subsite, error)
	UpdateLastSync(ctx context.Context, subsiteID string, at time.Time) error
	// Delete removes the subsite together with its fan-out rows so no
	// orphaned pending commission can survive the tenant.
	Delete(ctx context.Context, subsiteID string) error
}

// SettlementResult summarises one settlement run. SubsiteID and
// NewBalanceCents are filled only when the run touched a single subsite.
type SettlementResult struct {
	SubsiteID     string
	SettledOrders int
	SettledCents  int64
	// NewBalanceCents is the subsite balance after crediting.
	NewBalanceCents int64
}

// SubsiteOrderRepository persists the fan-out rows joining orders to subsites.
type SubsiteOrderRepository interface {
	Get(ctx context.Context, id string) (domain.SubsiteOrder, error)
	ListByOrder(ctx context.Context, orderSerial string) ([]domain.SubsiteOrder, error)
	// ListDue returns rows eligible for a delivery attempt for the given
	// subsite, oldest first, capped at limit.
	ListDue(ctx context.Context, subsiteID string, now time.Time, limit int) ([]domain.SubsiteOrder, error)
	MarkSyncSuccess(ctx context.Context, id, remoteSerial string, now time.Time) (domain.SubsiteOrder, error)
	MarkSyncFailed(ctx context.Context, id, reason string, now time.Time) (domain.SubsiteOrder, error)
	ResetRetry(ctx context.Context, id string, now time.Time) (domain.SubsiteOrder, error)
	// SettlePending settles every pending-commission row of the subsite
	// and credits the frozen amounts to its balance in one transaction.
	SettlePending(ctx context.Context, subsiteID string, now time.Time) (SettlementResult, error)
	// SettleOrders settles the named rows, crediting each owning subsite,
	// in one transaction. Already-settled rows are skipped silently.
	SettleOrders(ctx context.Context, subsiteOrderIDs []string, now time.Time) (SettlementResult, error)
	Statistics(ctx context.Context, subsiteID string, now time.Time) (domain.SubsiteStatistics, error)
}

// CheckoutLine is the fully resolved input for one checkout atomic unit.
type CheckoutLine struct {
	Line   domain.CartLine
	Goods  domain.Goods
	SKU    *domain.GoodsSKU
	Coupon *domain.Coupon
}

// CheckoutFanout is a pre-computed fan-out row created alongside the order.
type CheckoutFanout struct {
	SubsiteID       string
	CommissionCents int64
	Payload         map[string]any
}

// PlaceOrderRequest carries everything the checkout transaction needs.
type PlaceOrderRequest struct {
	Order   domain.Order
	Line    CheckoutLine
	Fanouts []CheckoutFanout
	Now     time.Time
}

// PlaceOrderResult reports the outcome of one checkout atomic unit.
type PlaceOrderResult struct {
	Order domain.Order
	// Codes holds the fulfillment codes taken for automatic goods.
	Codes []domain.FulfillmentCode
}

// CheckoutRepository executes the per-line checkout atomic unit: stock
// decrement, coupon consumption, code allocation, order creation, fan-out row
// creation, and cart line removal all commit or abort together.
type CheckoutRepository interface {
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (PlaceOrderResult, error)
}

// HealthRepository evaluates dependency probes for health endpoints.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
