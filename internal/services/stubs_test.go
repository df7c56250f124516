package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/kado-mall/api/internal/domain"
	"github.com/kado-mall/api/internal/repositories"
)

type stubCatalogRepository struct {
	getGoodsFunc      func(ctx context.Context, goodsID string) (domain.Goods, error)
	getSKUFunc        func(ctx context.Context, goodsID, skuCode string) (domain.GoodsSKU, error)
	unsoldCountFunc   func(ctx context.Context, ref repositories.GoodsRef) (int, error)
	increaseStockFunc func(ctx context.Context, ref repositories.GoodsRef, quantity int, now time.Time) error
}

func (s *stubCatalogRepository) GetGoods(ctx context.Context, goodsID string) (domain.Goods, error) {
	if s.getGoodsFunc != nil {
		return s.getGoodsFunc(ctx, goodsID)
	}
	return domain.Goods{}, errors.New("not implemented")
}

func (s *stubCatalogRepository) GetSKU(ctx context.Context, goodsID, skuCode string) (domain.GoodsSKU, error) {
	if s.getSKUFunc != nil {
		return s.getSKUFunc(ctx, goodsID, skuCode)
	}
	return domain.GoodsSKU{}, errors.New("not implemented")
}

func (s *stubCatalogRepository) UnsoldCodeCount(ctx context.Context, ref repositories.GoodsRef) (int, error) {
	if s.unsoldCountFunc != nil {
		return s.unsoldCountFunc(ctx, ref)
	}
	return 0, errors.New("not implemented")
}

func (s *stubCatalogRepository) IncreaseStock(ctx context.Context, ref repositories.GoodsRef, quantity int, now time.Time) error {
	if s.increaseStockFunc != nil {
		return s.increaseStockFunc(ctx, ref, quantity, now)
	}
	return errors.New("not implemented")
}

type stubCouponRepository struct {
	findFunc    func(ctx context.Context, code string) (domain.Coupon, error)
	consumeFunc func(ctx context.Context, code string, now time.Time) (domain.Coupon, error)
}

func (s *stubCouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if s.findFunc != nil {
		return s.findFunc(ctx, code)
	}
	return domain.Coupon{}, errors.New("not implemented")
}

func (s *stubCouponRepository) Consume(ctx context.Context, code string, now time.Time) (domain.Coupon, error) {
	if s.consumeFunc != nil {
		return s.consumeFunc(ctx, code, now)
	}
	return domain.Coupon{}, errors.New("not implemented")
}

type stubCartRepository struct {
	insertFunc        func(ctx context.Context, line domain.CartLine) error
	bySessionFunc     func(ctx context.Context, sessionKey string) ([]domain.CartLine, error)
	byIDsFunc         func(ctx context.Context, sessionKey string, ids []string) ([]domain.CartLine, error)
	deleteFunc        func(ctx context.Context, id string) error
	deleteExpiredFunc func(ctx context.Context, before time.Time, limit int) (int, error)
}

func (s *stubCartRepository) Insert(ctx context.Context, line domain.CartLine) error {
	if s.insertFunc != nil {
		return s.insertFunc(ctx, line)
	}
	return errors.New("not implemented")
}

func (s *stubCartRepository) LinesBySession(ctx context.Context, sessionKey string) ([]domain.CartLine, error) {
	if s.bySessionFunc != nil {
		return s.bySessionFunc(ctx, sessionKey)
	}
	return nil, errors.New("not implemented")
}

func (s *stubCartRepository) LinesByIDs(ctx context.Context, sessionKey string, ids []string) ([]domain.CartLine, error) {
	if s.byIDsFunc != nil {
		return s.byIDsFunc(ctx, sessionKey, ids)
	}
	return nil, errors.New("not implemented")
}

func (s *stubCartRepository) Delete(ctx context.Context, id string) error {
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, id)
	}
	return errors.New("not implemented")
}

func (s *stubCartRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if s.deleteExpiredFunc != nil {
		return s.deleteExpiredFunc(ctx, before, limit)
	}
	return 0, errors.New("not implemented")
}

type stubOrderRepository struct {
	createFunc       func(ctx context.Context, order domain.Order) error
	getBySerialFunc  func(ctx context.Context, serial string) (domain.Order, error)
	existsFunc       func(ctx context.Context, serial string) (bool, error)
	updateStatusFunc func(ctx context.Context, serial string, status domain.OrderStatus, now time.Time) error
}

func (s *stubOrderRepository) Create(ctx context.Context, order domain.Order) error {
	if s.createFunc != nil {
		return s.createFunc(ctx, order)
	}
	return errors.New("not implemented")
}

func (s *stubOrderRepository) GetBySerial(ctx context.Context, serial string) (domain.Order, error) {
	if s.getBySerialFunc != nil {
		return s.getBySerialFunc(ctx, serial)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepository) ExistsBySerial(ctx context.Context, serial string) (bool, error) {
	if s.existsFunc != nil {
		return s.existsFunc(ctx, serial)
	}
	return false, errors.New("not implemented")
}

func (s *stubOrderRepository) UpdateStatus(ctx context.Context, serial string, status domain.OrderStatus, now time.Time) error {
	if s.updateStatusFunc != nil {
		return s.updateStatusFunc(ctx, serial, status, now)
	}
	return errors.New("not implemented")
}

type stubSubsiteRepository struct {
	createFunc        func(ctx context.Context, subsite domain.Subsite) error
	getFunc           func(ctx context.Context, subsiteID string) (domain.Subsite, error)
	updateFunc        func(ctx context.Context, subsite domain.Subsite) error
	listFunc          func(ctx context.Context) ([]domain.Subsite, error)
	listEnabledFunc   func(ctx context.Context) ([]domain.Subsite, error)
	findByAPIKeyFunc  func(ctx context.Context, apiKey string) (domain.Subsite, error)
	updateLastSyncFun func(ctx context.Context, subsiteID string, at time.Time) error
	deleteFunc        func(ctx context.Context, subsiteID string) error
}

func (s *stubSubsiteRepository) Create(ctx context.Context, subsite domain.Subsite) error {
	if s.createFunc != nil {
		return s.createFunc(ctx, subsite)
	}
	return errors.New("not implemented")
}

func (s *stubSubsiteRepository) Get(ctx context.Context, subsiteID string) (domain.Subsite, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, subsiteID)
	}
	return domain.Subsite{}, errors.New("not implemented")
}

func (s *stubSubsiteRepository) Update(ctx context.Context, subsite domain.Subsite) error {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, subsite)
	}
	return errors.New("not implemented")
}

func (s *stubSubsiteRepository) List(ctx context.Context) ([]domain.Subsite, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx)
	}
	return nil, errors.New("not implemented")
}

func (s *stubSubsiteRepository) ListEnabledThirdParty(ctx context.Context) ([]domain.Subsite, error) {
	if s.listEnabledFunc != nil {
		return s.listEnabledFunc(ctx)
	}
	return nil, errors.New("not implemented")
}

func (s *stubSubsiteRepository) FindByAPIKey(ctx context.Context, apiKey string) (domain.Subsite, error) {
	if s.findByAPIKeyFunc != nil {
		return s.findByAPIKeyFunc(ctx, apiKey)
	}
	return domain.Subsite{}, errors.New("not implemented")
}

func (s *stubSubsiteRepository) UpdateLastSync(ctx context.Context, subsiteID string, at time.Time) error {
	if s.updateLastSyncFun != nil {
		return s.updateLastSyncFun(ctx, subsiteID, at)
	}
	return errors.New("not implemented")
}

func (s *stubSubsiteRepository) Delete(ctx context.Context, subsiteID string) error {
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, subsiteID)
	}
	return errors.New("not implemented")
}

type stubSubsiteOrderRepository struct {
	getFunc         func(ctx context.Context, id string) (domain.SubsiteOrder, error)
	listByOrderFunc func(ctx context.Context, orderSerial string) ([]domain.SubsiteOrder, error)
	listDueFunc     func(ctx context.Context, subsiteID string, now time.Time, limit int) ([]domain.SubsiteOrder, error)
	markSuccessFunc func(ctx context.Context, id, remoteSerial string, now time.Time) (domain.SubsiteOrder, error)
	markFailedFunc  func(ctx context.Context, id, reason string, now time.Time) (domain.SubsiteOrder, error)
	resetRetryFunc  func(ctx context.Context, id string, now time.Time) (domain.SubsiteOrder, error)
	settleFunc      func(ctx context.Context, subsiteID string, now time.Time) (repositories.SettlementResult, error)
	settleByIDsFunc func(ctx context.Context, subsiteOrderIDs []string, now time.Time) (repositories.SettlementResult, error)
	statisticsFunc  func(ctx context.Context, subsiteID string, now time.Time) (domain.SubsiteStatistics, error)
}

func (s *stubSubsiteOrderRepository) Get(ctx context.Context, id string) (domain.SubsiteOrder, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, id)
	}
	return domain.SubsiteOrder{}, errors.New("not implemented")
}

func (s *stubSubsiteOrderRepository) ListByOrder(ctx context.Context, orderSerial string) ([]domain.SubsiteOrder, error) {
	if s.listByOrderFunc != nil {
		return s.listByOrderFunc(ctx, orderSerial)
	}
	return nil, errors.New("not implemented")
}

func (s *stubSubsiteOrderRepository) ListDue(ctx context.Context, subsiteID string, now time.Time, limit int) ([]domain.SubsiteOrder, error) {
	if s.listDueFunc != nil {
		return s.listDueFunc(ctx, subsiteID, now, limit)
	}
	return nil, errors.New("not implemented")
}

func (s *stubSubsiteOrderRepository) MarkSyncSuccess(ctx context.Context, id, remoteSerial string, now time.Time) (domain.SubsiteOrder, error) {
	if s.markSuccessFunc != nil {
		return s.markSuccessFunc(ctx, id, remoteSerial, now)
	}
	return domain.SubsiteOrder{}, errors.New("not implemented")
}

func (s *stubSubsiteOrderRepository) MarkSyncFailed(ctx context.Context, id, reason string, now time.Time) (domain.SubsiteOrder, error) {
	if s.markFailedFunc != nil {
		return s.markFailedFunc(ctx, id, reason, now)
	}
	return domain.SubsiteOrder{}, errors.New("not implemented")
}

func (s *stubSubsiteOrderRepository) ResetRetry(ctx context.Context, id string, now time.Time) (domain.SubsiteOrder, error) {
	if s.resetRetryFunc != nil {
		return s.resetRetryFunc(ctx, id, now)
	}
	return domain.SubsiteOrder{}, errors.New("not implemented")
}

func (s *stubSubsiteOrderRepository) SettlePending(ctx context.Context, subsiteID string, now time.Time) (repositories.SettlementResult, error) {
	if s.settleFunc != nil {
		return s.settleFunc(ctx, subsiteID, now)
	}
	return repositories.SettlementResult{}, errors.New("not implemented")
}

func (s *stubSubsiteOrderRepository) SettleOrders(ctx context.Context, subsiteOrderIDs []string, now time.Time) (repositories.SettlementResult, error) {
	if s.settleByIDsFunc != nil {
		return s.settleByIDsFunc(ctx, subsiteOrderIDs, now)
	}
	return repositories.SettlementResult{}, errors.New("not implemented")
}

func (s *stubSubsiteOrderRepository) Statistics(ctx context.Context, subsiteID string, now time.Time) (domain.SubsiteStatistics, error) {
	if s.statisticsFunc != nil {
		return s.statisticsFunc(ctx, subsiteID, now)
	}
	return domain.SubsiteStatistics{}, errors.New("not implemented")
}

type stubCheckoutRepository struct {
	placeOrderFunc func(ctx context.Context, req repositories.PlaceOrderRequest) (repositories.PlaceOrderResult, error)
}

func (s *stubCheckoutRepository) PlaceOrder(ctx context.Context, req repositories.PlaceOrderRequest) (repositories.PlaceOrderResult, error) {
	if s.placeOrderFunc != nil {
		return s.placeOrderFunc(ctx, req)
	}
	return repositories.PlaceOrderResult{}, errors.New("not implemented")
}

type recordingPublisher struct {
	placed  []OrderPlacedEvent
	synced  []SyncCompletedEvent
	settled []CommissionSettledEvent
	err     error
}

func (p *recordingPublisher) OrderPlaced(ctx context.Context, evt OrderPlacedEvent) error {
	p.placed = append(p.placed, evt)
	return p.err
}

func (p *recordingPublisher) SyncCompleted(ctx context.Context, evt SyncCompletedEvent) error {
	p.synced = append(p.synced, evt)
	return p.err
}

func (p *recordingPublisher) CommissionSettled(ctx context.Context, evt CommissionSettledEvent) error {
	p.settled = append(p.settled, evt)
	return p.err
}

type stubDeliverer struct {
	deliverFunc func(ctx context.Context, subsite Subsite, row SubsiteOrder) (string, error)
	pingFunc    func(ctx context.Context, subsite Subsite) error
}

func (s *stubDeliverer) Deliver(ctx context.Context, subsite Subsite, row SubsiteOrder) (string, error) {
	if s.deliverFunc != nil {
		return s.deliverFunc(ctx, subsite, row)
	}
	return "", errors.New("not implemented")
}

func (s *stubDeliverer) Ping(ctx context.Context, subsite Subsite) error {
	if s.pingFunc != nil {
		return s.pingFunc(ctx, subsite)
	}
	return errors.New("not implemented")
}

// conflictError is a RepositoryError whose conflict flag is set, matching the
// shape the Firestore layer wraps AlreadyExists failures with.
type conflictError struct{ msg string }

func (e *conflictError) Error() string       { return e.msg }
func (e *conflictError) IsNotFound() bool    { return false }
func (e *conflictError) IsConflict() bool    { return true }
func (e *conflictError) IsUnavailable() bool { return false }

// notFoundError is a RepositoryError whose not-found flag is set.
type notFoundError struct{ msg string }

func (e *notFoundError) Error() string       { return e.msg }
func (e *notFoundError) IsNotFound() bool    { return true }
func (e *notFoundError) IsConflict() bool    { return false }
func (e *notFoundError) IsUnavailable() bool { return false }
