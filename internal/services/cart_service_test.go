package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/kado-mall/api/internal/domain"
	"github.com/kado-mall/api/internal/repositories"
)

type cartServiceFixture struct {
	cart    *stubCartRepository
	catalog *stubCatalogRepository
	coupons *stubCouponRepository
	now     time.Time
}

func newTestCartService(t *testing.T, fx cartServiceFixture) CartService {
	t.Helper()
	ledger, err := NewLedgerService(LedgerServiceDeps{
		Catalog: fx.catalog,
		Coupons: fx.coupons,
		Clock:   func() time.Time { return fx.now },
	})
	if err != nil {
		t.Fatalf("NewLedgerService: %v", err)
	}
	svc, err := NewCartService(CartServiceDeps{
		Cart:    fx.cart,
		Catalog: fx.catalog,
		Coupons: fx.coupons,
		Ledger:  ledger,
		Clock:   func() time.Time { return fx.now },
		IDGen:   func() string { return "line-fixed" },
	})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	return svc
}

func openManualGoods() domain.Goods {
	return domain.Goods{
		ID:          "goods-1",
		Name:        "Gift Card",
		Status:      domain.GoodsStatusOpen,
		Fulfillment: domain.FulfillmentManual,
		PriceCents:  5000,
		InStock:     10,
	}
}

func TestCartAddLineSuccessWithCoupon(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var inserted domain.CartLine
	fx := cartServiceFixture{
		now: now,
		cart: &stubCartRepository{
			insertFunc: func(ctx context.Context, line domain.CartLine) error {
				inserted = line
				return nil
			},
		},
		catalog: &stubCatalogRepository{
			getGoodsFunc: func(ctx context.Context, goodsID string) (domain.Goods, error) {
				return openManualGoods(), nil
			},
		},
		coupons: &stubCouponRepository{
			findFunc: func(ctx context.Context, code string) (domain.Coupon, error) {
				return domain.Coupon{
					Code:          "SPRING",
					DiscountCents: 500,
					Remaining:     3,
					Open:          true,
				}, nil
			},
		},
	}
	svc := newTestCartService(t, fx)

	line, err := svc.AddLine(context.Background(), AddCartLineCommand{
		SessionKey: "sess-1",
		GoodsID:    "goods-1",
		Quantity:   2,
		CouponCode: "SPRING",
		BuyerEmail: "buyer@example.com",
	})
	if err != nil {
		t.Fatalf("AddLine: %v", err)
	}
	if line.ID != "line-fixed" {
		t.Fatalf("expected pinned id, got %q", line.ID)
	}
	if line.UnitPriceCents != 5000 || line.DiscountCents != 500 {
		t.Fatalf("unexpected pricing %d/%d", line.UnitPriceCents, line.DiscountCents)
	}
	if line.TotalCents() != 9000 {
		t.Fatalf("expected total 9000, got %d", line.TotalCents())
	}
	if line.ExpiresAt == nil || !line.ExpiresAt.Equal(now.Add(24*time.Hour)) {
		t.Fatalf("expected 24h expiry, got %v", line.ExpiresAt)
	}
	if inserted.GoodsSnapshot["name"] != "Gift Card" {
		t.Fatalf("expected goods snapshot captured, got %#v", inserted.GoodsSnapshot)
	}
}

func TestCartAddLineRequiresVariant(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fx := cartServiceFixture{
		now:  now,
		cart: &stubCartRepository{},
		catalog: &stubCatalogRepository{
			getGoodsFunc: func(ctx context.Context, goodsID string) (domain.Goods, error) {
				goods := openManualGoods()
				goods.HasSKU = true
				return goods, nil
			},
		},
		coupons: &stubCouponRepository{},
	}
	svc := newTestCartService(t, fx)

	_, err := svc.AddLine(context.Background(), AddCartLineCommand{
		SessionKey: "sess-1",
		GoodsID:    "goods-1",
		Quantity:   1,
	})
	if !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput, got %v", err)
	}
}

func TestCartAddLineSKUPriceWins(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fx := cartServiceFixture{
		now: now,
		cart: &stubCartRepository{
			insertFunc: func(ctx context.Context, line domain.CartLine) error { return nil },
		},
		catalog: &stubCatalogRepository{
			getGoodsFunc: func(ctx context.Context, goodsID string) (domain.Goods, error) {
				goods := openManualGoods()
				goods.HasSKU = true
				return goods, nil
			},
			getSKUFunc: func(ctx context.Context, goodsID, skuCode string) (domain.GoodsSKU, error) {
				return domain.GoodsSKU{
					GoodsID:    goodsID,
					SKUCode:    skuCode,
					Name:       "Blue / XL",
					Status:     domain.SKUStatusEnabled,
					PriceCents: 6200,
					Stock:      5,
				}, nil
			},
		},
		coupons: &stubCouponRepository{},
	}
	svc := newTestCartService(t, fx)

	line, err := svc.AddLine(context.Background(), AddCartLineCommand{
		SessionKey: "sess-1",
		GoodsID:    "goods-1",
		SKUCode:    "blue-xl",
		Quantity:   1,
	})
	if err != nil {
		t.Fatalf("AddLine: %v", err)
	}
	if line.UnitPriceCents != 6200 {
		t.Fatalf("expected variant price 6200, got %d", line.UnitPriceCents)
	}
	if line.SKUSnapshot["name"] != "Blue / XL" {
		t.Fatalf("expected sku snapshot captured, got %#v", line.SKUSnapshot)
	}
}

func TestCartAddLineInsufficientStock(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fx := cartServiceFixture{
		now:  now,
		cart: &stubCartRepository{},
		catalog: &stubCatalogRepository{
			getGoodsFunc: func(ctx context.Context, goodsID string) (domain.Goods, error) {
				goods := openManualGoods()
				goods.InStock = 1
				return goods, nil
			},
		},
		coupons: &stubCouponRepository{},
	}
	svc := newTestCartService(t, fx)

	_, err := svc.AddLine(context.Background(), AddCartLineCommand{
		SessionKey: "sess-1",
		GoodsID:    "goods-1",
		Quantity:   2,
	})
	if !errors.Is(err, ErrCartGoodsUnavailable) {
		t.Fatalf("expected ErrCartGoodsUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "only 1 of Gift Card left") {
		t.Fatalf("expected buyer-facing reason, got %v", err)
	}
}

func TestCartAddLineCouponMinimumNotMet(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fx := cartServiceFixture{
		now:  now,
		cart: &stubCartRepository{},
		catalog: &stubCatalogRepository{
			getGoodsFunc: func(ctx context.Context, goodsID string) (domain.Goods, error) {
				return openManualGoods(), nil
			},
		},
		coupons: &stubCouponRepository{
			findFunc: func(ctx context.Context, code string) (domain.Coupon, error) {
				return domain.Coupon{
					Code:           "BIG",
					DiscountCents:  1000,
					MinAmountCents: 20000,
					Remaining:      1,
					Open:           true,
				}, nil
			},
		},
	}
	svc := newTestCartService(t, fx)

	_, err := svc.AddLine(context.Background(), AddCartLineCommand{
		SessionKey: "sess-1",
		GoodsID:    "goods-1",
		Quantity:   2,
		CouponCode: "BIG",
	})
	if !errors.Is(err, ErrCartCouponRejected) {
		t.Fatalf("expected ErrCartCouponRejected, got %v", err)
	}
	if !strings.Contains(err.Error(), "200.00 minimum") {
		t.Fatalf("expected minimum in message, got %v", err)
	}
}

func TestCartAddLineCouponExceedsPrice(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fx := cartServiceFixture{
		now:  now,
		cart: &stubCartRepository{},
		catalog: &stubCatalogRepository{
			getGoodsFunc: func(ctx context.Context, goodsID string) (domain.Goods, error) {
				return openManualGoods(), nil
			},
		},
		coupons: &stubCouponRepository{
			findFunc: func(ctx context.Context, code string) (domain.Coupon, error) {
				return domain.Coupon{Code: "FREE", DiscountCents: 5000, Remaining: 1, Open: true}, nil
			},
		},
	}
	svc := newTestCartService(t, fx)

	_, err := svc.AddLine(context.Background(), AddCartLineCommand{
		SessionKey: "sess-1",
		GoodsID:    "goods-1",
		Quantity:   1,
		CouponCode: "FREE",
	})
	if !errors.Is(err, ErrCartCouponRejected) {
		t.Fatalf("expected ErrCartCouponRejected, got %v", err)
	}
}

func TestCartListLinesDropsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	fx := cartServiceFixture{
		now: now,
		cart: &stubCartRepository{
			bySessionFunc: func(ctx context.Context, sessionKey string) ([]domain.CartLine, error) {
				return []domain.CartLine{
					{ID: "line-1", ExpiresAt: &past},
					{ID: "line-2", ExpiresAt: &future},
					{ID: "line-3"},
				}, nil
			},
		},
		catalog: &stubCatalogRepository{},
		coupons: &stubCouponRepository{},
	}
	svc := newTestCartService(t, fx)

	lines, err := svc.ListLines(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("ListLines: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 live lines, got %d", len(lines))
	}
	if lines[0].ID != "line-2" || lines[1].ID != "line-3" {
		t.Fatalf("unexpected lines %#v", lines)
	}
}

func TestCartRemoveLineNotFound(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fx := cartServiceFixture{
		now: now,
		cart: &stubCartRepository{
			byIDsFunc: func(ctx context.Context, sessionKey string, ids []string) ([]domain.CartLine, error) {
				return nil, nil
			},
		},
		catalog: &stubCatalogRepository{},
		coupons: &stubCouponRepository{},
	}
	svc := newTestCartService(t, fx)

	err := svc.RemoveLine(context.Background(), "sess-1", "line-9")
	if !errors.Is(err, ErrCartLineNotFound) {
		t.Fatalf("expected ErrCartLineNotFound, got %v", err)
	}
}

func TestCartRemoveLineVerifiesOwnership(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var deleted string
	fx := cartServiceFixture{
		now: now,
		cart: &stubCartRepository{
			byIDsFunc: func(ctx context.Context, sessionKey string, ids []string) ([]domain.CartLine, error) {
				if sessionKey != "sess-1" || len(ids) != 1 || ids[0] != "line-9" {
					t.Fatalf("unexpected lookup %q %v", sessionKey, ids)
				}
				return []domain.CartLine{{ID: "line-9", SessionKey: sessionKey}}, nil
			},
			deleteFunc: func(ctx context.Context, id string) error {
				deleted = id
				return nil
			},
		},
		catalog: &stubCatalogRepository{},
		coupons: &stubCouponRepository{},
	}
	svc := newTestCartService(t, fx)

	if err := svc.RemoveLine(context.Background(), "sess-1", "line-9"); err != nil {
		t.Fatalf("RemoveLine: %v", err)
	}
	if deleted != "line-9" {
		t.Fatalf("expected line-9 deleted, got %q", deleted)
	}
}

var _ repositories.CartRepository = (*stubCartRepository)(nil)
