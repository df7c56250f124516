package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	domain "github.com/kado-mall/api/internal/domain"
	"github.com/kado-mall/api/internal/repositories"
)

const (
	orderSerialTimeLayout = "20060102150405"
	maxSerialAttempts     = 3
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutNoneSucceeded indicates every line in the batch failed.
	ErrCheckoutNoneSucceeded = errors.New("checkout: no line succeeded")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
)

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Cart     repositories.CartRepository
	Catalog  repositories.CatalogRepository
	Coupons  repositories.CouponRepository
	Subsites repositories.SubsiteRepository
	Checkout repositories.CheckoutRepository
	Ledger   LedgerService
	Events   EventPublisher
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
	// SerialSuffix supplies the random tail of an order serial; tests pin it.
	SerialSuffix func() string
}

type checkoutService struct {
	cart         repositories.CartRepository
	catalog      repositories.CatalogRepository
	coupons      repositories.CouponRepository
	subsites     repositories.SubsiteRepository
	checkout     repositories.CheckoutRepository
	ledger       LedgerService
	events       EventPublisher
	now          func() time.Time
	logger       func(ctx context.Context, event string, fields map[string]any)
	serialSuffix func() string
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Cart == nil {
		return nil, errors.New("checkout service: cart repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("checkout service: catalog repository is required")
	}
	if deps.Coupons == nil {
		return nil, errors.New("checkout service: coupon repository is required")
	}
	if deps.Subsites == nil {
		return nil, errors.New("checkout service: subsite repository is required")
	}
	if deps.Checkout == nil {
		return nil, errors.New("checkout service: checkout repository is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("checkout service: ledger service is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	suffix := deps.SerialSuffix
	if suffix == nil {
		suffix = randomSerialSuffix
	}
	return &checkoutService{
		cart:     deps.Cart,
		catalog:  deps.Catalog,
		coupons:  deps.Coupons,
		subsites: deps.Subsites,
		checkout: deps.Checkout,
		ledger:   deps.Ledger,
		events:   deps.Events,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:       logger,
		serialSuffix: suffix,
	}, nil
}

// Checkout turns the named cart lines into orders, one transaction per line.
// A failing line is reported and skipped; the rest of the batch continues.
func (s *checkoutService) Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutOutcome, error) {
	if s == nil || s.checkout == nil {
		return CheckoutOutcome{}, ErrCheckoutUnavailable
	}
	sessionKey := strings.TrimSpace(cmd.SessionKey)
	email := strings.TrimSpace(cmd.Email)
	if sessionKey == "" || email == "" || len(cmd.LineIDs) == 0 {
		return CheckoutOutcome{}, ErrCheckoutInvalidInput
	}

	lines, err := s.cart.LinesByIDs(ctx, sessionKey, cmd.LineIDs)
	if err != nil {
		s.logger(ctx, "checkout.load_lines_failed", map[string]any{"error": err.Error()})
		return CheckoutOutcome{}, ErrCheckoutUnavailable
	}
	found := make(map[string]CartLine, len(lines))
	for _, line := range lines {
		found[line.ID] = line
	}

	fanoutTargets, err := s.enabledSubsites(ctx)
	if err != nil {
		return CheckoutOutcome{}, err
	}

	var outcome CheckoutOutcome
	now := s.now()
	// A repeated line id is processed once; anything else would sell the
	// same cart line twice.
	seen := make(map[string]struct{}, len(cmd.LineIDs))
	for _, lineID := range cmd.LineIDs {
		lineID = strings.TrimSpace(lineID)
		if _, dup := seen[lineID]; dup {
			continue
		}
		seen[lineID] = struct{}{}
		line, ok := found[lineID]
		if !ok {
			outcome.Lines = append(outcome.Lines, CheckoutLineResult{LineID: lineID, Err: "cart line not found"})
			continue
		}
		if line.Expired(now) {
			outcome.Lines = append(outcome.Lines, CheckoutLineResult{LineID: lineID, Err: "cart line expired"})
			continue
		}

		result, lineErr := s.checkoutLine(ctx, line, email, strings.TrimSpace(cmd.Contact), fanoutTargets, now)
		if lineErr != "" {
			outcome.Lines = append(outcome.Lines, CheckoutLineResult{LineID: lineID, Err: lineErr})
			continue
		}
		codes := make([]string, 0, len(result.Codes))
		for _, code := range result.Codes {
			codes = append(codes, code.Code)
		}
		outcome.Orders = append(outcome.Orders, result.Order)
		outcome.Lines = append(outcome.Lines, CheckoutLineResult{
			LineID:      lineID,
			OrderSerial: result.Order.Serial,
			Codes:       codes,
		})
		s.publishOrderPlaced(ctx, result.Order, len(fanoutTargets), now)
	}

	if len(outcome.Orders) == 0 {
		return outcome, ErrCheckoutNoneSucceeded
	}
	return outcome, nil
}

// checkoutLine validates one line against live data and commits it. The
// returned string is a buyer-facing failure reason; empty means success.
func (s *checkoutService) checkoutLine(ctx context.Context, line CartLine, email, contact string, fanoutTargets []Subsite, now time.Time) (repositories.PlaceOrderResult, string) {
	goods, err := s.catalog.GetGoods(ctx, line.GoodsID)
	if err != nil {
		return repositories.PlaceOrderResult{}, lineFailureReason(err)
	}
	if !goods.IsOpen() {
		return repositories.PlaceOrderResult{}, fmt.Sprintf("%s is no longer for sale", goods.Name)
	}

	var sku *GoodsSKU
	if skuCode := strings.TrimSpace(line.SKUCode); skuCode != "" {
		variant, err := s.catalog.GetSKU(ctx, line.GoodsID, skuCode)
		if err != nil {
			return repositories.PlaceOrderResult{}, lineFailureReason(err)
		}
		sku = &variant
	}

	availability, err := s.ledger.CheckAvailability(ctx, line)
	if err != nil {
		return repositories.PlaceOrderResult{}, lineFailureReason(err)
	}
	if !availability.Available {
		return repositories.PlaceOrderResult{}, availability.Reason
	}

	var coupon *Coupon
	if couponCode := strings.TrimSpace(line.CouponCode); couponCode != "" {
		c, err := s.coupons.FindByCode(ctx, couponCode)
		if err != nil {
			return repositories.PlaceOrderResult{}, lineFailureReason(err)
		}
		if err := validateCouponForLine(c, line); err != nil {
			return repositories.PlaceOrderResult{}, err.Error()
		}
		coupon = &c
	}

	actualUnit := line.UnitPriceCents - line.DiscountCents
	total := actualUnit * int64(line.Quantity)
	order := Order{
		GoodsID:             line.GoodsID,
		SKUCode:             line.SKUCode,
		Email:               email,
		Contact:             contact,
		Quantity:            line.Quantity,
		ActualPriceCents:    actualUnit,
		TotalPriceCents:     total,
		CouponCode:          line.CouponCode,
		CouponDiscountCents: line.DiscountCents * int64(line.Quantity),
		Status:              domain.OrderStatusPending,
		GoodsSnapshot:       goodsSnapshot(goods),
	}
	if sku != nil {
		order.SKUSnapshot = skuSnapshot(*sku)
	}

	fanouts := buildFanouts(fanoutTargets, order, goods, sku)

	// Serial collisions are rare but possible within one second; regenerate
	// and retry instead of failing the line.
	for attempt := 0; attempt < maxSerialAttempts; attempt++ {
		order.Serial = now.Format(orderSerialTimeLayout) + s.serialSuffix()
		result, err := s.checkout.PlaceOrder(ctx, repositories.PlaceOrderRequest{
			Order: order,
			Line: repositories.CheckoutLine{
				Line:   line,
				Goods:  goods,
				SKU:    sku,
				Coupon: coupon,
			},
			Fanouts: fanouts,
			Now:     now,
		})
		if err == nil {
			return result, ""
		}
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			continue
		}
		return repositories.PlaceOrderResult{}, lineFailureReason(err)
	}
	return repositories.PlaceOrderResult{}, "could not allocate an order number"
}

// buildFanouts computes one frozen-commission row per enabled subsite.
func buildFanouts(targets []Subsite, order Order, goods Goods, sku *GoodsSKU) []repositories.CheckoutFanout {
	if len(targets) == 0 {
		return nil
	}
	fanouts := make([]repositories.CheckoutFanout, 0, len(targets))
	for _, target := range targets {
		// Everything a later delivery needs lives in the payload; the live
		// catalog rows may change or vanish before the row syncs.
		payload := map[string]any{
			"goodsName":       goods.Name,
			"goodsPriceCents": order.ActualPriceCents,
			"quantity":        order.Quantity,
			"totalCents":      order.TotalPriceCents,
			"email":           order.Email,
			"contact":         order.Contact,
			"status":          string(order.Status),
		}
		if sku != nil {
			payload["skuName"] = sku.Name
			payload["skuCode"] = sku.SKUCode
			if len(sku.Attributes) > 0 {
				attrs := make(map[string]any, len(sku.Attributes))
				for k, v := range sku.Attributes {
					attrs[k] = v
				}
				payload["skuAttributes"] = attrs
			}
		}
		fanouts = append(fanouts, repositories.CheckoutFanout{
			SubsiteID:       target.ID,
			CommissionCents: target.CommissionFor(order.TotalPriceCents),
			Payload:         payload,
		})
	}
	return fanouts
}

func (s *checkoutService) enabledSubsites(ctx context.Context) ([]Subsite, error) {
	subsites, err := s.subsites.List(ctx)
	if err != nil {
		s.logger(ctx, "checkout.load_subsites_failed", map[string]any{"error": err.Error()})
		return nil, ErrCheckoutUnavailable
	}
	enabled := make([]Subsite, 0, len(subsites))
	for _, subsite := range subsites {
		if subsite.Enabled {
			enabled = append(enabled, subsite)
		}
	}
	return enabled, nil
}

func (s *checkoutService) publishOrderPlaced(ctx context.Context, order Order, fanoutCount int, now time.Time) {
	if s.events == nil {
		return
	}
	err := s.events.OrderPlaced(ctx, OrderPlacedEvent{
		OrderSerial: order.Serial,
		GoodsID:     order.GoodsID,
		TotalCents:  order.TotalPriceCents,
		FanoutCount: fanoutCount,
		PlacedAt:    now,
	})
	if err != nil {
		s.logger(ctx, "checkout.publish_failed", map[string]any{
			"orderSerial": order.Serial,
			"error":       err.Error(),
		})
	}
}

// lineFailureReason reduces an error to a buyer-facing string for the
// per-line result list.
func lineFailureReason(err error) string {
	if err == nil {
		return ""
	}
	var ledgerErr *repositories.LedgerError
	if errors.As(err, &ledgerErr) {
		return ledgerErr.Message
	}
	if errors.Is(err, ErrLedgerNotFound) || errors.Is(err, ErrLedgerCouponExhausted) {
		return err.Error()
	}
	return "checkout temporarily unavailable"
}

// randomSerialSuffix returns six random decimal digits.
func randomSerialSuffix() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "000000"
	}
	return fmt.Sprintf("%06d", n.Int64())
}
