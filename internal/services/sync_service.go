package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kado-mall/api/internal/repositories"
)

const defaultSyncBatchSize = 50

var (
	// ErrSyncInvalidInput indicates the caller supplied invalid parameters.
	ErrSyncInvalidInput = errors.New("sync: invalid input")
	// ErrSyncSubsiteNotFound indicates the subsite does not exist.
	ErrSyncSubsiteNotFound = errors.New("sync: subsite not found")
	// ErrSyncNotEligible indicates the subsite is disabled or not third party.
	ErrSyncNotEligible = errors.New("sync: subsite not eligible")
	// ErrSyncOrderNotFound indicates the fan-out row does not exist.
	ErrSyncOrderNotFound = errors.New("sync: order not found")
	// ErrSyncUnavailable indicates sync dependencies are currently unavailable.
	ErrSyncUnavailable = errors.New("sync: unavailable")
)

// ErrDuplicateRemoteOrder is returned by a deliverer when the remote side
// already holds the order. The row counts as delivered.
var ErrDuplicateRemoteOrder = errors.New("sync: remote already has order")

// SyncDeliverer pushes one fan-out row to a third-party subsite.
type SyncDeliverer interface {
	// Deliver returns the remote order serial on success.
	Deliver(ctx context.Context, subsite Subsite, row SubsiteOrder) (string, error)
	// Ping probes the subsite's API without mutating anything.
	Ping(ctx context.Context, subsite Subsite) error
}

// SyncServiceDeps wires the dependencies required by the sync service.
type SyncServiceDeps struct {
	Subsites  repositories.SubsiteRepository
	Orders    repositories.SubsiteOrderRepository
	Deliverer SyncDeliverer
	Events    EventPublisher
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
	BatchSize int
}

type syncService struct {
	subsites  repositories.SubsiteRepository
	orders    repositories.SubsiteOrderRepository
	deliverer SyncDeliverer
	events    EventPublisher
	now       func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
	batchSize int
}

// NewSyncService constructs a SyncService validating required dependencies.
func NewSyncService(deps SyncServiceDeps) (SyncService, error) {
	if deps.Subsites == nil {
		return nil, errors.New("sync service: subsite repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("sync service: subsite order repository is required")
	}
	if deps.Deliverer == nil {
		return nil, errors.New("sync service: deliverer is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	batch := deps.BatchSize
	if batch <= 0 {
		batch = defaultSyncBatchSize
	}
	return &syncService{
		subsites:  deps.Subsites,
		orders:    deps.Orders,
		deliverer: deps.Deliverer,
		events:    deps.Events,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:    logger,
		batchSize: batch,
	}, nil
}

// SyncPending delivers one batch of due fan-out rows to the subsite. Each row
// is marked individually, so a crash mid-batch loses at most in-flight rows
// to the next sweep.
func (s *syncService) SyncPending(ctx context.Context, subsiteID string) (SyncReport, error) {
	subsite, err := s.loadThirdParty(ctx, subsiteID)
	if err != nil {
		return SyncReport{}, err
	}

	now := s.now()
	rows, err := s.orders.ListDue(ctx, subsite.ID, now, s.batchSize)
	if err != nil {
		s.logger(ctx, "sync.list_due_failed", map[string]any{"subsiteId": subsite.ID, "error": err.Error()})
		return SyncReport{}, ErrSyncUnavailable
	}

	report := SyncReport{SubsiteID: subsite.ID, Total: len(rows)}
	for _, row := range rows {
		remoteSerial, deliverErr := s.deliverer.Deliver(ctx, subsite, row)
		attemptAt := s.now()
		switch {
		case deliverErr == nil:
			if _, err := s.orders.MarkSyncSuccess(ctx, row.ID, remoteSerial, attemptAt); err != nil {
				s.logger(ctx, "sync.mark_success_failed", map[string]any{"rowId": row.ID, "error": err.Error()})
				continue
			}
			report.SuccessCount++
		case errors.Is(deliverErr, ErrDuplicateRemoteOrder):
			// The remote committed a previous attempt we never saw confirm.
			if _, err := s.orders.MarkSyncSuccess(ctx, row.ID, remoteSerial, attemptAt); err != nil {
				s.logger(ctx, "sync.mark_success_failed", map[string]any{"rowId": row.ID, "error": err.Error()})
				continue
			}
			report.SuccessCount++
		default:
			if _, err := s.orders.MarkSyncFailed(ctx, row.ID, deliverErr.Error(), attemptAt); err != nil {
				s.logger(ctx, "sync.mark_failed_failed", map[string]any{"rowId": row.ID, "error": err.Error()})
				continue
			}
			report.FailedCount++
		}
	}

	if err := s.subsites.UpdateLastSync(ctx, subsite.ID, now); err != nil {
		s.logger(ctx, "sync.update_last_sync_failed", map[string]any{"subsiteId": subsite.ID, "error": err.Error()})
	}
	s.publishSyncCompleted(ctx, report, now)
	return report, nil
}

// TestConnection probes the subsite's API with its stored credentials.
func (s *syncService) TestConnection(ctx context.Context, subsiteID string) error {
	subsite, err := s.loadThirdParty(ctx, subsiteID)
	if err != nil {
		return err
	}
	return s.deliverer.Ping(ctx, subsite)
}

// ResyncOrder clears a row's retry state so the next sweep retries it.
func (s *syncService) ResyncOrder(ctx context.Context, subsiteOrderID string) (SubsiteOrder, error) {
	if s == nil || s.orders == nil {
		return SubsiteOrder{}, ErrSyncUnavailable
	}
	subsiteOrderID = strings.TrimSpace(subsiteOrderID)
	if subsiteOrderID == "" {
		return SubsiteOrder{}, ErrSyncInvalidInput
	}
	row, err := s.orders.ResetRetry(ctx, subsiteOrderID, s.now())
	if err != nil {
		return SubsiteOrder{}, s.translateSyncError(ctx, err)
	}
	return row, nil
}

func (s *syncService) loadThirdParty(ctx context.Context, subsiteID string) (Subsite, error) {
	if s == nil || s.subsites == nil {
		return Subsite{}, ErrSyncUnavailable
	}
	subsiteID = strings.TrimSpace(subsiteID)
	if subsiteID == "" {
		return Subsite{}, ErrSyncInvalidInput
	}
	subsite, err := s.subsites.Get(ctx, subsiteID)
	if err != nil {
		return Subsite{}, s.translateSyncError(ctx, err)
	}
	if !subsite.Enabled || !subsite.IsThirdParty() {
		return Subsite{}, ErrSyncNotEligible
	}
	return subsite, nil
}

func (s *syncService) publishSyncCompleted(ctx context.Context, report SyncReport, now time.Time) {
	if s.events == nil || report.Total == 0 {
		return
	}
	err := s.events.SyncCompleted(ctx, SyncCompletedEvent{
		SubsiteID:    report.SubsiteID,
		SuccessCount: report.SuccessCount,
		FailedCount:  report.FailedCount,
		SweptAt:      now,
	})
	if err != nil {
		s.logger(ctx, "sync.publish_failed", map[string]any{"subsiteId": report.SubsiteID, "error": err.Error()})
	}
}

func (s *syncService) translateSyncError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var subsiteErr *repositories.SubsiteError
	if errors.As(err, &subsiteErr) {
		switch subsiteErr.Code {
		case repositories.SubsiteErrorNotFound:
			return ErrSyncSubsiteNotFound
		case repositories.SubsiteErrorOrderNotFound:
			return ErrSyncOrderNotFound
		case repositories.SubsiteErrorInvalidState:
			return ErrSyncInvalidInput
		}
	}
	s.logger(ctx, "sync.store_error", map[string]any{"error": err.Error()})
	return ErrSyncUnavailable
}
