package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kado-mall/api/internal/repositories"
)

var (
	// ErrSettlementInvalidInput indicates the caller supplied invalid parameters.
	ErrSettlementInvalidInput = errors.New("settlement: invalid input")
	// ErrSettlementSubsiteNotFound indicates the subsite does not exist.
	ErrSettlementSubsiteNotFound = errors.New("settlement: subsite not found")
	// ErrSettlementOrderNotFound indicates a named fan-out row does not exist.
	ErrSettlementOrderNotFound = errors.New("settlement: order not found")
	// ErrSettlementUnavailable indicates settlement dependencies are currently unavailable.
	ErrSettlementUnavailable = errors.New("settlement: unavailable")
)

// SettlementServiceDeps wires the dependencies required by the settlement service.
type SettlementServiceDeps struct {
	Orders repositories.SubsiteOrderRepository
	Events EventPublisher
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type settlementService struct {
	orders repositories.SubsiteOrderRepository
	events EventPublisher
	now    func() time.Time
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewSettlementService constructs a SettlementService validating required dependencies.
func NewSettlementService(deps SettlementServiceDeps) (SettlementService, error) {
	if deps.Orders == nil {
		return nil, errors.New("settlement service: subsite order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &settlementService{
		orders: deps.Orders,
		events: deps.Events,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Settle flips pending commissions to settled and credits the owning subsite
// balances. The command either names a subsite (settle everything pending) or
// lists explicit fan-out rows. Already-settled rows are skipped, so repeating
// a settlement run changes nothing.
func (s *settlementService) Settle(ctx context.Context, cmd SettleCommand) (SettlementReport, error) {
	if s == nil || s.orders == nil {
		return SettlementReport{}, ErrSettlementUnavailable
	}
	subsiteID := strings.TrimSpace(cmd.SubsiteID)
	ids := make([]string, 0, len(cmd.SubsiteOrderIDs))
	for _, id := range cmd.SubsiteOrderIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if (subsiteID == "") == (len(ids) == 0) {
		return SettlementReport{}, ErrSettlementInvalidInput
	}

	now := s.now()
	var result repositories.SettlementResult
	var err error
	if len(ids) > 0 {
		result, err = s.orders.SettleOrders(ctx, ids, now)
	} else {
		result, err = s.orders.SettlePending(ctx, subsiteID, now)
	}
	if err != nil {
		var subsiteErr *repositories.SubsiteError
		if errors.As(err, &subsiteErr) {
			switch subsiteErr.Code {
			case repositories.SubsiteErrorNotFound:
				return SettlementReport{}, ErrSettlementSubsiteNotFound
			case repositories.SubsiteErrorOrderNotFound:
				return SettlementReport{}, ErrSettlementOrderNotFound
			}
		}
		s.logger(ctx, "settlement.store_error", map[string]any{"subsiteId": subsiteID, "error": err.Error()})
		return SettlementReport{}, ErrSettlementUnavailable
	}

	report := SettlementReport{
		SubsiteID:       result.SubsiteID,
		SettledCount:    result.SettledOrders,
		SettledCents:    result.SettledCents,
		NewBalanceCents: result.NewBalanceCents,
	}
	if s.events != nil && report.SettledCount > 0 {
		err := s.events.CommissionSettled(ctx, CommissionSettledEvent{
			SubsiteID:    report.SubsiteID,
			SettledCount: report.SettledCount,
			SettledCents: report.SettledCents,
			SettledAt:    now,
		})
		if err != nil {
			s.logger(ctx, "settlement.publish_failed", map[string]any{"subsiteId": subsiteID, "error": err.Error()})
		}
	}
	return report, nil
}
