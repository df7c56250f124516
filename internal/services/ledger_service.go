package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/kado-mall/api/internal/domain"
	"github.com/kado-mall/api/internal/repositories"
)

var (
	// ErrLedgerInvalidInput indicates the caller supplied invalid parameters.
	ErrLedgerInvalidInput = errors.New("ledger: invalid input")
	// ErrLedgerNotFound indicates the referenced goods, SKU, or coupon does not exist.
	ErrLedgerNotFound = errors.New("ledger: not found")
	// ErrLedgerCouponExhausted indicates the coupon has no remaining uses.
	ErrLedgerCouponExhausted = errors.New("ledger: coupon exhausted")
	// ErrLedgerUnavailable indicates the backing store could not be reached.
	ErrLedgerUnavailable = errors.New("ledger: unavailable")
)

// LedgerServiceDeps wires the dependencies required by the ledger service.
type LedgerServiceDeps struct {
	Catalog repositories.CatalogRepository
	Coupons repositories.CouponRepository
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type ledgerService struct {
	catalog repositories.CatalogRepository
	coupons repositories.CouponRepository
	now     func() time.Time
	logger  func(ctx context.Context, event string, fields map[string]any)
}

// NewLedgerService constructs a LedgerService validating required dependencies.
func NewLedgerService(deps LedgerServiceDeps) (LedgerService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("ledger service: catalog repository is required")
	}
	if deps.Coupons == nil {
		return nil, errors.New("ledger service: coupon repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &ledgerService{
		catalog: deps.Catalog,
		coupons: deps.Coupons,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CheckAvailability answers whether the line could be fulfilled right now.
// Automatic goods sell from the unsold code pool, so the stock counter is
// ignored for them; SKU lines sell from the variant's own stock.
func (s *ledgerService) CheckAvailability(ctx context.Context, line CartLine) (Availability, error) {
	if s == nil || s.catalog == nil {
		return Availability{}, ErrLedgerUnavailable
	}
	goodsID := strings.TrimSpace(line.GoodsID)
	if goodsID == "" || line.Quantity <= 0 {
		return Availability{}, ErrLedgerInvalidInput
	}

	goods, err := s.catalog.GetGoods(ctx, goodsID)
	if err != nil {
		return Availability{}, s.translateLedgerError(ctx, err)
	}
	if !goods.IsOpen() {
		return Availability{Reason: fmt.Sprintf("%s is no longer for sale", goods.Name)}, nil
	}

	if goods.Fulfillment == domain.FulfillmentAutomatic {
		count, err := s.catalog.UnsoldCodeCount(ctx, repositories.GoodsRef{GoodsID: goodsID, SKUCode: strings.TrimSpace(line.SKUCode)})
		if err != nil {
			return Availability{}, s.translateLedgerError(ctx, err)
		}
		if count < line.Quantity {
			return Availability{Reason: fmt.Sprintf("only %d of %s left", count, goods.Name)}, nil
		}
		return Availability{Available: true}, nil
	}

	if skuCode := strings.TrimSpace(line.SKUCode); skuCode != "" {
		sku, err := s.catalog.GetSKU(ctx, goodsID, skuCode)
		if err != nil {
			return Availability{}, s.translateLedgerError(ctx, err)
		}
		if !sku.IsEnabled() {
			return Availability{Reason: fmt.Sprintf("variant %s is not available", skuCode)}, nil
		}
		if sku.Stock < line.Quantity {
			return Availability{Reason: fmt.Sprintf("only %d of %s left", sku.Stock, goods.Name)}, nil
		}
		return Availability{Available: true}, nil
	}

	if goods.InStock < line.Quantity {
		return Availability{Reason: fmt.Sprintf("only %d of %s left", goods.InStock, goods.Name)}, nil
	}
	return Availability{Available: true}, nil
}

// Increase restores stock, compensating a cancelled or refunded order.
func (s *ledgerService) Increase(ctx context.Context, cmd IncreaseStockCommand) error {
	if s == nil || s.catalog == nil {
		return ErrLedgerUnavailable
	}
	if strings.TrimSpace(cmd.GoodsID) == "" || cmd.Quantity <= 0 {
		return ErrLedgerInvalidInput
	}
	ref := repositories.GoodsRef{GoodsID: strings.TrimSpace(cmd.GoodsID), SKUCode: strings.TrimSpace(cmd.SKUCode)}
	if err := s.catalog.IncreaseStock(ctx, ref, cmd.Quantity, s.now()); err != nil {
		return s.translateLedgerError(ctx, err)
	}
	return nil
}

// ConsumeCoupon burns one use of the coupon.
func (s *ledgerService) ConsumeCoupon(ctx context.Context, code string) (Coupon, error) {
	if s == nil || s.coupons == nil {
		return Coupon{}, ErrLedgerUnavailable
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return Coupon{}, ErrLedgerInvalidInput
	}
	coupon, err := s.coupons.Consume(ctx, code, s.now())
	if err != nil {
		return Coupon{}, s.translateLedgerError(ctx, err)
	}
	return coupon, nil
}

func (s *ledgerService) translateLedgerError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var ledgerErr *repositories.LedgerError
	if errors.As(err, &ledgerErr) {
		switch ledgerErr.Code {
		case repositories.LedgerErrorGoodsNotFound,
			repositories.LedgerErrorSKUNotFound,
			repositories.LedgerErrorCouponNotFound:
			return fmt.Errorf("%w: %s", ErrLedgerNotFound, ledgerErr.Message)
		case repositories.LedgerErrorCouponExhausted:
			return fmt.Errorf("%w: %s", ErrLedgerCouponExhausted, ledgerErr.Message)
		}
	}
	s.logger(ctx, "ledger.store_error", map[string]any{"error": err.Error()})
	return ErrLedgerUnavailable
}
