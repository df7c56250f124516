package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/kado-mall/api/internal/domain"
	"github.com/kado-mall/api/internal/repositories"
)

const defaultCartLineTTL = 24 * time.Hour

var (
	// ErrCartInvalidInput indicates the caller supplied invalid parameters.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartLineNotFound indicates the cart line does not exist for the session.
	ErrCartLineNotFound = errors.New("cart: line not found")
	// ErrCartGoodsUnavailable indicates the goods cannot be added right now.
	ErrCartGoodsUnavailable = errors.New("cart: goods unavailable")
	// ErrCartCouponRejected indicates the coupon cannot apply to the line.
	ErrCartCouponRejected = errors.New("cart: coupon rejected")
	// ErrCartUnavailable indicates cart dependencies are currently unavailable.
	ErrCartUnavailable = errors.New("cart: unavailable")
)

// CartServiceDeps wires the dependencies required by the cart service.
type CartServiceDeps struct {
	Cart    repositories.CartRepository
	Catalog repositories.CatalogRepository
	Coupons repositories.CouponRepository
	Ledger  LedgerService
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
	IDGen   func() string
	LineTTL time.Duration
}

type cartService struct {
	cart    repositories.CartRepository
	catalog repositories.CatalogRepository
	coupons repositories.CouponRepository
	ledger  LedgerService
	now     func() time.Time
	logger  func(ctx context.Context, event string, fields map[string]any)
	idGen   func() string
	lineTTL time.Duration
}

// NewCartService constructs a CartService validating required dependencies.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Cart == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("cart service: catalog repository is required")
	}
	if deps.Coupons == nil {
		return nil, errors.New("cart service: coupon repository is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("cart service: ledger service is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	ttl := deps.LineTTL
	if ttl <= 0 {
		ttl = defaultCartLineTTL
	}
	return &cartService{
		cart:    deps.Cart,
		catalog: deps.Catalog,
		coupons: deps.Coupons,
		ledger:  deps.Ledger,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:  logger,
		idGen:   idGen,
		lineTTL: ttl,
	}, nil
}

// AddLine resolves the goods, checks live availability, applies an optional
// coupon, and stores the line with frozen price snapshots.
func (s *cartService) AddLine(ctx context.Context, cmd AddCartLineCommand) (CartLine, error) {
	if s == nil || s.cart == nil {
		return CartLine{}, ErrCartUnavailable
	}
	sessionKey := strings.TrimSpace(cmd.SessionKey)
	goodsID := strings.TrimSpace(cmd.GoodsID)
	if sessionKey == "" || goodsID == "" || cmd.Quantity <= 0 {
		return CartLine{}, ErrCartInvalidInput
	}

	goods, err := s.catalog.GetGoods(ctx, goodsID)
	if err != nil {
		return CartLine{}, s.translateCartError(ctx, err)
	}
	if !goods.IsOpen() {
		return CartLine{}, fmt.Errorf("%w: %s is not for sale", ErrCartGoodsUnavailable, goods.Name)
	}

	unitPrice := goods.PriceCents
	var sku *GoodsSKU
	skuCode := strings.TrimSpace(cmd.SKUCode)
	if goods.HasSKU {
		if skuCode == "" {
			return CartLine{}, fmt.Errorf("%w: %s requires a variant", ErrCartInvalidInput, goods.Name)
		}
		variant, err := s.catalog.GetSKU(ctx, goodsID, skuCode)
		if err != nil {
			return CartLine{}, s.translateCartError(ctx, err)
		}
		if !variant.IsEnabled() {
			return CartLine{}, fmt.Errorf("%w: variant %s is not available", ErrCartGoodsUnavailable, skuCode)
		}
		sku = &variant
		unitPrice = variant.PriceCents
	} else {
		skuCode = ""
	}

	now := s.now()
	line := CartLine{
		ID:             s.idGen(),
		SessionKey:     sessionKey,
		BuyerEmail:     strings.TrimSpace(cmd.BuyerEmail),
		GoodsID:        goodsID,
		SKUCode:        skuCode,
		Quantity:       cmd.Quantity,
		UnitPriceCents: unitPrice,
		GoodsSnapshot:  goodsSnapshot(goods),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if sku != nil {
		line.SKUSnapshot = skuSnapshot(*sku)
	}
	expiresAt := now.Add(s.lineTTL)
	line.ExpiresAt = &expiresAt

	availability, err := s.ledger.CheckAvailability(ctx, line)
	if err != nil {
		return CartLine{}, s.translateCartError(ctx, err)
	}
	if !availability.Available {
		return CartLine{}, fmt.Errorf("%w: %s", ErrCartGoodsUnavailable, availability.Reason)
	}

	if couponCode := strings.TrimSpace(cmd.CouponCode); couponCode != "" {
		coupon, err := s.coupons.FindByCode(ctx, couponCode)
		if err != nil {
			return CartLine{}, s.translateCartError(ctx, err)
		}
		if err := validateCouponForLine(coupon, line); err != nil {
			return CartLine{}, err
		}
		line.CouponCode = coupon.Code
		line.DiscountCents = coupon.DiscountCents
	}

	if err := s.cart.Insert(ctx, line); err != nil {
		return CartLine{}, s.translateCartError(ctx, err)
	}
	s.logger(ctx, "cart.line_added", map[string]any{
		"lineId":  line.ID,
		"goodsId": goodsID,
		"qty":     cmd.Quantity,
	})
	return line, nil
}

// ListLines returns the live lines of the session, dropping any that expired.
func (s *cartService) ListLines(ctx context.Context, sessionKey string) ([]CartLine, error) {
	if s == nil || s.cart == nil {
		return nil, ErrCartUnavailable
	}
	sessionKey = strings.TrimSpace(sessionKey)
	if sessionKey == "" {
		return nil, ErrCartInvalidInput
	}
	lines, err := s.cart.LinesBySession(ctx, sessionKey)
	if err != nil {
		return nil, s.translateCartError(ctx, err)
	}
	now := s.now()
	live := make([]CartLine, 0, len(lines))
	for _, line := range lines {
		if line.Expired(now) {
			continue
		}
		live = append(live, line)
	}
	return live, nil
}

// RemoveLine deletes one line after verifying session ownership.
func (s *cartService) RemoveLine(ctx context.Context, sessionKey, lineID string) error {
	if s == nil || s.cart == nil {
		return ErrCartUnavailable
	}
	sessionKey = strings.TrimSpace(sessionKey)
	lineID = strings.TrimSpace(lineID)
	if sessionKey == "" || lineID == "" {
		return ErrCartInvalidInput
	}
	lines, err := s.cart.LinesByIDs(ctx, sessionKey, []string{lineID})
	if err != nil {
		return s.translateCartError(ctx, err)
	}
	if len(lines) == 0 {
		return ErrCartLineNotFound
	}
	if err := s.cart.Delete(ctx, lineID); err != nil {
		return s.translateCartError(ctx, err)
	}
	return nil
}

// validateCouponForLine enforces coupon eligibility against one line.
func validateCouponForLine(coupon Coupon, line CartLine) error {
	if !coupon.Selectable() {
		return fmt.Errorf("%w: coupon %s has no remaining uses", ErrCartCouponRejected, coupon.Code)
	}
	if !coupon.AppliesTo(line.GoodsID) {
		return fmt.Errorf("%w: coupon %s does not cover this item", ErrCartCouponRejected, coupon.Code)
	}
	lineTotal := line.UnitPriceCents * int64(line.Quantity)
	if coupon.MinAmountCents > 0 && lineTotal < coupon.MinAmountCents {
		return fmt.Errorf("%w: coupon %s requires a %s minimum", ErrCartCouponRejected, coupon.Code, domain.FormatCents(coupon.MinAmountCents))
	}
	if coupon.DiscountCents >= line.UnitPriceCents {
		return fmt.Errorf("%w: coupon %s exceeds the item price", ErrCartCouponRejected, coupon.Code)
	}
	return nil
}

func goodsSnapshot(goods Goods) map[string]any {
	return map[string]any{
		"id":          goods.ID,
		"name":        goods.Name,
		"priceCents":  goods.PriceCents,
		"fulfillment": string(goods.Fulfillment),
		"picture":     goods.Picture,
	}
}

func skuSnapshot(sku GoodsSKU) map[string]any {
	snapshot := map[string]any{
		"skuCode":    sku.SKUCode,
		"name":       sku.Name,
		"priceCents": sku.PriceCents,
	}
	if len(sku.Attributes) > 0 {
		attrs := make(map[string]any, len(sku.Attributes))
		for k, v := range sku.Attributes {
			attrs[k] = v
		}
		snapshot["attributes"] = attrs
	}
	return snapshot
}

func (s *cartService) translateCartError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrLedgerNotFound):
		return fmt.Errorf("%w: %v", ErrCartGoodsUnavailable, err)
	case errors.Is(err, ErrLedgerInvalidInput):
		return ErrCartInvalidInput
	}
	var ledgerErr *repositories.LedgerError
	if errors.As(err, &ledgerErr) {
		switch ledgerErr.Code {
		case repositories.LedgerErrorGoodsNotFound, repositories.LedgerErrorSKUNotFound:
			return fmt.Errorf("%w: %s", ErrCartGoodsUnavailable, ledgerErr.Message)
		case repositories.LedgerErrorCouponNotFound:
			return fmt.Errorf("%w: %s", ErrCartCouponRejected, ledgerErr.Message)
		}
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrCartLineNotFound
	}
	s.logger(ctx, "cart.store_error", map[string]any{"error": err.Error()})
	return ErrCartUnavailable
}
