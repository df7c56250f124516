package firestore

import (
	"strings"
	"time"

	domain "github.com/kado-mall/api/internal/domain"
)

const (
	goodsCollection         = "goods"
	skuCollection           = "goodsSkus"
	codeCollection          = "fulfillmentCodes"
	couponCollection        = "coupons"
	cartLineCollection      = "cartLines"
	orderCollection         = "orders"
	subsiteCollection       = "subsites"
	subsiteOrderCollection  = "subsiteOrders"
	codeStatusUnsold        = "unsold"
	codeStatusSold          = "sold"
	compositeKeySeparator   = "__"
	maxCodeScanPerAggregate = 1000
)

// skuDocID builds the composite document key for a SKU variant.
func skuDocID(goodsID, skuCode string) string {
	return strings.TrimSpace(goodsID) + compositeKeySeparator + strings.TrimSpace(skuCode)
}

// fanoutDocID builds the composite document key for a fan-out row, making one
// row per (subsite, order) pair structurally unique.
func fanoutDocID(subsiteID, orderSerial string) string {
	return strings.TrimSpace(subsiteID) + compositeKeySeparator + strings.TrimSpace(orderSerial)
}

type goodsDocument struct {
	Name        string    `firestore:"name"`
	Description string    `firestore:"description,omitempty"`
	Fulfillment string    `firestore:"fulfillment"`
	Status      string    `firestore:"status"`
	PriceCents  int64     `firestore:"priceCents"`
	InStock     int       `firestore:"inStock"`
	SalesVolume int       `firestore:"salesVolume"`
	HasSKU      bool      `firestore:"hasSku"`
	Picture     string    `firestore:"picture,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func (d goodsDocument) toDomain(id string) domain.Goods {
	return domain.Goods{
		ID:          id,
		Name:        d.Name,
		Description: d.Description,
		Fulfillment: domain.FulfillmentKind(d.Fulfillment),
		Status:      domain.GoodsStatus(d.Status),
		PriceCents:  d.PriceCents,
		InStock:     d.InStock,
		SalesVolume: d.SalesVolume,
		HasSKU:      d.HasSKU,
		Picture:     d.Picture,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func newGoodsDocument(g domain.Goods) goodsDocument {
	return goodsDocument{
		Name:        strings.TrimSpace(g.Name),
		Description: g.Description,
		Fulfillment: string(g.Fulfillment),
		Status:      string(g.Status),
		PriceCents:  g.PriceCents,
		InStock:     g.InStock,
		SalesVolume: g.SalesVolume,
		HasSKU:      g.HasSKU,
		Picture:     g.Picture,
		CreatedAt:   g.CreatedAt.UTC(),
		UpdatedAt:   g.UpdatedAt.UTC(),
	}
}

type skuDocument struct {
	GoodsID    string            `firestore:"goodsId"`
	SKUCode    string            `firestore:"skuCode"`
	Name       string            `firestore:"name,omitempty"`
	Attributes map[string]string `firestore:"attributes,omitempty"`
	Status     string            `firestore:"status"`
	PriceCents int64             `firestore:"priceCents"`
	Stock      int               `firestore:"stock"`
	SoldCount  int               `firestore:"soldCount"`
	CreatedAt  time.Time         `firestore:"createdAt"`
	UpdatedAt  time.Time         `firestore:"updatedAt"`
}

func (d skuDocument) toDomain() domain.GoodsSKU {
	return domain.GoodsSKU{
		GoodsID:    d.GoodsID,
		SKUCode:    d.SKUCode,
		Name:       d.Name,
		Attributes: d.Attributes,
		Status:     domain.SKUStatus(d.Status),
		PriceCents: d.PriceCents,
		Stock:      d.Stock,
		SoldCount:  d.SoldCount,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

type codeDocument struct {
	GoodsID   string     `firestore:"goodsId"`
	SKUCode   string     `firestore:"skuCode,omitempty"`
	Code      string     `firestore:"code"`
	Status    string     `firestore:"status"`
	OrderRef  string     `firestore:"orderRef,omitempty"`
	SoldAt    *time.Time `firestore:"soldAt,omitempty"`
	CreatedAt time.Time  `firestore:"createdAt"`
}

func (d codeDocument) toDomain(id string) domain.FulfillmentCode {
	return domain.FulfillmentCode{
		ID:        id,
		GoodsID:   d.GoodsID,
		SKUCode:   d.SKUCode,
		Code:      d.Code,
		Status:    domain.FulfillmentCodeStatus(d.Status),
		OrderRef:  d.OrderRef,
		SoldAt:    d.SoldAt,
		CreatedAt: d.CreatedAt,
	}
}

type couponDocument struct {
	Code           string    `firestore:"code"`
	DiscountCents  int64     `firestore:"discountCents"`
	MinAmountCents int64     `firestore:"minAmountCents"`
	Remaining      int       `firestore:"remaining"`
	Open           bool      `firestore:"open"`
	FullyUsed      bool      `firestore:"fullyUsed"`
	GoodsIDs       []string  `firestore:"goodsIds,omitempty"`
	CreatedAt      time.Time `firestore:"createdAt"`
	UpdatedAt      time.Time `firestore:"updatedAt"`
}

func (d couponDocument) toDomain() domain.Coupon {
	return domain.Coupon{
		Code:           d.Code,
		DiscountCents:  d.DiscountCents,
		MinAmountCents: d.MinAmountCents,
		Remaining:      d.Remaining,
		Open:           d.Open,
		FullyUsed:      d.FullyUsed,
		GoodsIDs:       d.GoodsIDs,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

type cartLineDocument struct {
	SessionKey     string         `firestore:"sessionKey"`
	BuyerEmail     string         `firestore:"buyerEmail,omitempty"`
	GoodsID        string         `firestore:"goodsId"`
	SKUCode        string         `firestore:"skuCode,omitempty"`
	Quantity       int            `firestore:"quantity"`
	UnitPriceCents int64          `firestore:"unitPriceCents"`
	DiscountCents  int64          `firestore:"discountCents"`
	CouponCode     string         `firestore:"couponCode,omitempty"`
	GoodsSnapshot  map[string]any `firestore:"goodsSnapshot,omitempty"`
	SKUSnapshot    map[string]any `firestore:"skuSnapshot,omitempty"`
	ExpiresAt      *time.Time     `firestore:"expiresAt,omitempty"`
	CreatedAt      time.Time      `firestore:"createdAt"`
	UpdatedAt      time.Time      `firestore:"updatedAt"`
}

func (d cartLineDocument) toDomain(id string) domain.CartLine {
	return domain.CartLine{
		ID:             id,
		SessionKey:     d.SessionKey,
		BuyerEmail:     d.BuyerEmail,
		GoodsID:        d.GoodsID,
		SKUCode:        d.SKUCode,
		Quantity:       d.Quantity,
		UnitPriceCents: d.UnitPriceCents,
		DiscountCents:  d.DiscountCents,
		CouponCode:     d.CouponCode,
		GoodsSnapshot:  d.GoodsSnapshot,
		SKUSnapshot:    d.SKUSnapshot,
		ExpiresAt:      d.ExpiresAt,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

func newCartLineDocument(line domain.CartLine) cartLineDocument {
	return cartLineDocument{
		SessionKey:     strings.TrimSpace(line.SessionKey),
		BuyerEmail:     strings.TrimSpace(line.BuyerEmail),
		GoodsID:        strings.TrimSpace(line.GoodsID),
		SKUCode:        strings.TrimSpace(line.SKUCode),
		Quantity:       line.Quantity,
		UnitPriceCents: line.UnitPriceCents,
		DiscountCents:  line.DiscountCents,
		CouponCode:     strings.TrimSpace(line.CouponCode),
		GoodsSnapshot:  line.GoodsSnapshot,
		SKUSnapshot:    line.SKUSnapshot,
		ExpiresAt:      line.ExpiresAt,
		CreatedAt:      line.CreatedAt.UTC(),
		UpdatedAt:      line.UpdatedAt.UTC(),
	}
}

type orderDocument struct {
	Email               string         `firestore:"email,omitempty"`
	Contact             string         `firestore:"contact,omitempty"`
	GoodsID             string         `firestore:"goodsId"`
	SKUCode             string         `firestore:"skuCode,omitempty"`
	Quantity            int            `firestore:"quantity"`
	ActualPriceCents    int64          `firestore:"actualPriceCents"`
	TotalPriceCents     int64          `firestore:"totalPriceCents"`
	CouponCode          string         `firestore:"couponCode,omitempty"`
	CouponDiscountCents int64          `firestore:"couponDiscountCents"`
	Status              string         `firestore:"status"`
	Source              string         `firestore:"source,omitempty"`
	GoodsSnapshot       map[string]any `firestore:"goodsSnapshot,omitempty"`
	SKUSnapshot         map[string]any `firestore:"skuSnapshot,omitempty"`
	CreatedAt           time.Time      `firestore:"createdAt"`
	UpdatedAt           time.Time      `firestore:"updatedAt"`
}

func (d orderDocument) toDomain(serial string) domain.Order {
	return domain.Order{
		Serial:              serial,
		Email:               d.Email,
		Contact:             d.Contact,
		GoodsID:             d.GoodsID,
		SKUCode:             d.SKUCode,
		Quantity:            d.Quantity,
		ActualPriceCents:    d.ActualPriceCents,
		TotalPriceCents:     d.TotalPriceCents,
		CouponCode:          d.CouponCode,
		CouponDiscountCents: d.CouponDiscountCents,
		Status:              domain.OrderStatus(d.Status),
		Source:              d.Source,
		GoodsSnapshot:       d.GoodsSnapshot,
		SKUSnapshot:         d.SKUSnapshot,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
}

func newOrderDocument(order domain.Order) orderDocument {
	return orderDocument{
		Email:               strings.TrimSpace(order.Email),
		Contact:             strings.TrimSpace(order.Contact),
		GoodsID:             strings.TrimSpace(order.GoodsID),
		SKUCode:             strings.TrimSpace(order.SKUCode),
		Quantity:            order.Quantity,
		ActualPriceCents:    order.ActualPriceCents,
		TotalPriceCents:     order.TotalPriceCents,
		CouponCode:          strings.TrimSpace(order.CouponCode),
		CouponDiscountCents: order.CouponDiscountCents,
		Status:              string(order.Status),
		Source:              strings.TrimSpace(order.Source),
		GoodsSnapshot:       order.GoodsSnapshot,
		SKUSnapshot:         order.SKUSnapshot,
		CreatedAt:           order.CreatedAt.UTC(),
		UpdatedAt:           order.UpdatedAt.UTC(),
	}
}

type subsiteDocument struct {
	Name             string     `firestore:"name"`
	Kind             string     `firestore:"kind"`
	Enabled          bool       `firestore:"enabled"`
	CommissionRateBP int64      `firestore:"commissionRateBp"`
	BalanceCents     int64      `firestore:"balanceCents"`
	APIURL           string     `firestore:"apiUrl,omitempty"`
	APIKey           string     `firestore:"apiKey,omitempty"`
	APISecret        string     `firestore:"apiSecret,omitempty"`
	AutoSync         bool       `firestore:"autoSync"`
	SyncIntervalSec  int64      `firestore:"syncIntervalSec"`
	MaxRetries       int        `firestore:"maxRetries"`
	TimeoutSec       int64      `firestore:"timeoutSec"`
	ContactEmail     string     `firestore:"contactEmail,omitempty"`
	ContactPhone     string     `firestore:"contactPhone,omitempty"`
	Description      string     `firestore:"description,omitempty"`
	LastSyncAt       *time.Time `firestore:"lastSyncAt,omitempty"`
	CreatedAt        time.Time  `firestore:"createdAt"`
	UpdatedAt        time.Time  `firestore:"updatedAt"`
}

func (d subsiteDocument) toDomain(id string) domain.Subsite {
	return domain.Subsite{
		ID:               id,
		Name:             d.Name,
		Kind:             domain.SubsiteKind(d.Kind),
		Enabled:          d.Enabled,
		CommissionRateBP: d.CommissionRateBP,
		BalanceCents:     d.BalanceCents,
		APIURL:           d.APIURL,
		APIKey:           d.APIKey,
		APISecret:        d.APISecret,
		Settings: domain.SubsiteSettings{
			AutoSync:     d.AutoSync,
			SyncInterval: time.Duration(d.SyncIntervalSec) * time.Second,
			MaxRetries:   d.MaxRetries,
			Timeout:      time.Duration(d.TimeoutSec) * time.Second,
		},
		ContactEmail: d.ContactEmail,
		ContactPhone: d.ContactPhone,
		Description:  d.Description,
		LastSyncAt:   d.LastSyncAt,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func newSubsiteDocument(s domain.Subsite) subsiteDocument {
	return subsiteDocument{
		Name:             strings.TrimSpace(s.Name),
		Kind:             string(s.Kind),
		Enabled:          s.Enabled,
		CommissionRateBP: s.CommissionRateBP,
		BalanceCents:     s.BalanceCents,
		APIURL:           strings.TrimSpace(s.APIURL),
		APIKey:           strings.TrimSpace(s.APIKey),
		APISecret:        strings.TrimSpace(s.APISecret),
		AutoSync:         s.Settings.AutoSync,
		SyncIntervalSec:  int64(s.Settings.SyncInterval / time.Second),
		MaxRetries:       s.Settings.MaxRetries,
		TimeoutSec:       int64(s.Settings.Timeout / time.Second),
		ContactEmail:     strings.TrimSpace(s.ContactEmail),
		ContactPhone:     strings.TrimSpace(s.ContactPhone),
		Description:      s.Description,
		LastSyncAt:       s.LastSyncAt,
		CreatedAt:        s.CreatedAt.UTC(),
		UpdatedAt:        s.UpdatedAt.UTC(),
	}
}

type subsiteOrderDocument struct {
	SubsiteID        string         `firestore:"subsiteId"`
	OrderSerial      string         `firestore:"orderSerial"`
	RemoteSerial     string         `firestore:"remoteSerial,omitempty"`
	CommissionCents  int64          `firestore:"commissionCents"`
	CommissionStatus string         `firestore:"commissionStatus"`
	SettledAt        *time.Time     `firestore:"settledAt,omitempty"`
	SyncStatus       string         `firestore:"syncStatus"`
	SyncedAt         *time.Time     `firestore:"syncedAt,omitempty"`
	SyncError        string         `firestore:"syncError,omitempty"`
	RetryCount       int            `firestore:"retryCount"`
	NextRetryAt      *time.Time     `firestore:"nextRetryAt,omitempty"`
	Payload          map[string]any `firestore:"payload,omitempty"`
	CreatedAt        time.Time      `firestore:"createdAt"`
	UpdatedAt        time.Time      `firestore:"updatedAt"`
}

func (d subsiteOrderDocument) toDomain(id string) domain.SubsiteOrder {
	return domain.SubsiteOrder{
		ID:               id,
		SubsiteID:        d.SubsiteID,
		OrderSerial:      d.OrderSerial,
		RemoteSerial:     d.RemoteSerial,
		CommissionCents:  d.CommissionCents,
		CommissionStatus: domain.CommissionStatus(d.CommissionStatus),
		SettledAt:        d.SettledAt,
		SyncStatus:       domain.SyncStatus(d.SyncStatus),
		SyncedAt:         d.SyncedAt,
		SyncError:        d.SyncError,
		RetryCount:       d.RetryCount,
		NextRetryAt:      d.NextRetryAt,
		Payload:          d.Payload,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func newSubsiteOrderDocument(o domain.SubsiteOrder) subsiteOrderDocument {
	return subsiteOrderDocument{
		SubsiteID:        strings.TrimSpace(o.SubsiteID),
		OrderSerial:      strings.TrimSpace(o.OrderSerial),
		RemoteSerial:     strings.TrimSpace(o.RemoteSerial),
		CommissionCents:  o.CommissionCents,
		CommissionStatus: string(o.CommissionStatus),
		SettledAt:        o.SettledAt,
		SyncStatus:       string(o.SyncStatus),
		SyncedAt:         o.SyncedAt,
		SyncError:        o.SyncError,
		RetryCount:       o.RetryCount,
		NextRetryAt:      o.NextRetryAt,
		Payload:          o.Payload,
		CreatedAt:        o.CreatedAt.UTC(),
		UpdatedAt:        o.UpdatedAt.UTC(),
	}
}
