package workers

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	domain "github.com/kado-mall/api/internal/domain"
	"github.com/kado-mall/api/internal/repositories"
	"github.com/kado-mall/api/internal/services"
)

const defaultSweepInterval = time.Minute

// SyncSweeperDeps wires the dependencies required by the sweeper.
type SyncSweeperDeps struct {
	Subsites repositories.SubsiteRepository
	Sync     services.SyncService
	Logger   *zap.Logger
	Interval time.Duration
	Clock    func() time.Time
}

// SyncSweeper periodically sweeps every enabled third-party subsite for due
// fan-out rows. Sweeps for distinct subsites run concurrently; a per-subsite
// guard prevents overlapping sweeps of the same subsite.
type SyncSweeper struct {
	subsites repositories.SubsiteRepository
	sync     services.SyncService
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup
}

// NewSyncSweeper constructs a SyncSweeper validating required dependencies.
func NewSyncSweeper(deps SyncSweeperDeps) (*SyncSweeper, error) {
	if deps.Subsites == nil {
		return nil, errors.New("sync sweeper: subsite repository is required")
	}
	if deps.Sync == nil {
		return nil, errors.New("sync sweeper: sync service is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := deps.Interval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SyncSweeper{
		subsites: deps.Subsites,
		sync:     deps.Sync,
		logger:   logger,
		interval: interval,
		now: func() time.Time {
			return clock().UTC()
		},
		inFlight: make(map[string]struct{}),
	}, nil
}

// Run sweeps immediately, then on a ticker until the context is cancelled,
// and finally waits for in-flight sweeps to finish.
func (s *SyncSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.SweepAll(ctx)

	for {
		select {
		case <-ticker.C:
			s.SweepAll(ctx)
		case <-ctx.Done():
			s.wg.Wait()
			return
		}
	}
}

// SweepAll launches one sweep per eligible subsite. Subsites already being
// swept, or not yet due per their own interval, are skipped.
func (s *SyncSweeper) SweepAll(ctx context.Context) {
	subsites, err := s.subsites.ListEnabledThirdParty(ctx)
	if err != nil {
		s.logger.Error("sweep: list subsites failed", zap.Error(err))
		return
	}

	now := s.now()
	for _, subsite := range subsites {
		if !subsite.Settings.AutoSync {
			continue
		}
		if !sweepDue(subsite, now) {
			continue
		}
		if !s.claim(subsite.ID) {
			continue
		}
		s.wg.Add(1)
		go func(subsite domain.Subsite) {
			defer s.wg.Done()
			defer s.release(subsite.ID)
			s.sweepOne(ctx, subsite)
		}(subsite)
	}
}

func (s *SyncSweeper) sweepOne(ctx context.Context, subsite domain.Subsite) {
	report, err := s.sync.SyncPending(ctx, subsite.ID)
	if err != nil {
		s.logger.Error("sweep failed",
			zap.String("subsiteId", subsite.ID),
			zap.Error(err))
		return
	}
	if report.Total > 0 {
		s.logger.Info("sweep completed",
			zap.String("subsiteId", subsite.ID),
			zap.Int("total", report.Total),
			zap.Int("success", report.SuccessCount),
			zap.Int("failed", report.FailedCount))
	}
}

func (s *SyncSweeper) claim(subsiteID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[subsiteID]; busy {
		return false
	}
	s.inFlight[subsiteID] = struct{}{}
	return true
}

func (s *SyncSweeper) release(subsiteID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, subsiteID)
}

// sweepDue honours the subsite's own sync interval relative to its last sweep.
func sweepDue(subsite domain.Subsite, now time.Time) bool {
	if subsite.LastSyncAt == nil || subsite.Settings.SyncInterval <= 0 {
		return true
	}
	return !subsite.LastSyncAt.Add(subsite.Settings.SyncInterval).After(now)
}
