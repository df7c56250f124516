package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/kado-mall/api/internal/handlers"
	"github.com/kado-mall/api/internal/platform/auth"
	"github.com/kado-mall/api/internal/platform/config"
	pfirestore "github.com/kado-mall/api/internal/platform/firestore"
	"github.com/kado-mall/api/internal/platform/idempotency"
	"github.com/kado-mall/api/internal/platform/jobs"
	"github.com/kado-mall/api/internal/platform/observability"
	"github.com/kado-mall/api/internal/repositories"
	firestoreRepo "github.com/kado-mall/api/internal/repositories/firestore"
	"github.com/kado-mall/api/internal/services"
	"github.com/kado-mall/api/internal/syncclient"
	"github.com/kado-mall/api/internal/workers"
)

const shutdownTimeout = 10 * time.Second

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	cfg, err := config.Load()
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	provider := pfirestore.NewProvider(cfg.Firestore)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	firestoreClient, err := provider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to connect to firestore", zap.Error(err))
	}

	catalogRepo, err := firestoreRepo.NewCatalogRepository(provider)
	if err != nil {
		logger.Fatal("failed to initialise catalog repository", zap.Error(err))
	}
	couponRepo, err := firestoreRepo.NewCouponRepository(provider)
	if err != nil {
		logger.Fatal("failed to initialise coupon repository", zap.Error(err))
	}
	cartRepo, err := firestoreRepo.NewCartRepository(provider)
	if err != nil {
		logger.Fatal("failed to initialise cart repository", zap.Error(err))
	}
	orderRepo, err := firestoreRepo.NewOrderRepository(provider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	subsiteRepo, err := firestoreRepo.NewSubsiteRepository(provider)
	if err != nil {
		logger.Fatal("failed to initialise subsite repository", zap.Error(err))
	}
	subsiteOrderRepo, err := firestoreRepo.NewSubsiteOrderRepository(provider)
	if err != nil {
		logger.Fatal("failed to initialise subsite order repository", zap.Error(err))
	}
	checkoutRepo, err := firestoreRepo.NewCheckoutRepository(provider)
	if err != nil {
		logger.Fatal("failed to initialise checkout repository", zap.Error(err))
	}

	var pubsubClient *pubsub.Client
	var publisher *jobs.PubSubEventPublisher
	if cfg.PubSub.ProjectID != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to connect to pub/sub", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pub/sub close error", zap.Error(err))
			}
		}()
		publisher, err = jobs.NewPubSubEventPublisher(
			pubsubClient.Topic(cfg.PubSub.OrderTopic),
			pubsubClient.Topic(cfg.PubSub.SyncTopic),
			pubsubClient.Topic(cfg.PubSub.SettlementTopic),
		)
		if err != nil {
			logger.Fatal("failed to initialise event publisher", zap.Error(err))
		}
	} else {
		logger.Warn("pub/sub project not configured, domain events disabled")
	}

	serviceLog := newServiceLogger(logger)

	ledgerService, err := services.NewLedgerService(services.LedgerServiceDeps{
		Catalog: catalogRepo,
		Coupons: couponRepo,
		Logger:  serviceLog,
	})
	if err != nil {
		logger.Fatal("failed to initialise ledger service", zap.Error(err))
	}
	cartService, err := services.NewCartService(services.CartServiceDeps{
		Cart:    cartRepo,
		Catalog: catalogRepo,
		Coupons: couponRepo,
		Ledger:  ledgerService,
		Logger:  serviceLog,
		IDGen:   func() string { return ulid.Make().String() },
		LineTTL: cfg.Cart.TTL,
	})
	if err != nil {
		logger.Fatal("failed to initialise cart service", zap.Error(err))
	}
	checkoutService, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Cart:     cartRepo,
		Catalog:  catalogRepo,
		Coupons:  couponRepo,
		Subsites: subsiteRepo,
		Checkout: checkoutRepo,
		Ledger:   ledgerService,
		Events:   eventPublisher(publisher),
		Logger:   serviceLog,
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout service", zap.Error(err))
	}
	deliverer := syncclient.New(
		syncclient.WithHTTPClient(&http.Client{Timeout: cfg.Sync.RequestTimeout}),
		syncclient.WithLogger(serviceLog),
	)
	syncService, err := services.NewSyncService(services.SyncServiceDeps{
		Subsites:  subsiteRepo,
		Orders:    subsiteOrderRepo,
		Deliverer: deliverer,
		Events:    eventPublisher(publisher),
		Logger:    serviceLog,
		BatchSize: cfg.Sync.BatchSize,
	})
	if err != nil {
		logger.Fatal("failed to initialise sync service", zap.Error(err))
	}
	settlementService, err := services.NewSettlementService(services.SettlementServiceDeps{
		Orders: subsiteOrderRepo,
		Events: eventPublisher(publisher),
		Logger: serviceLog,
	})
	if err != nil {
		logger.Fatal("failed to initialise settlement service", zap.Error(err))
	}
	subsiteService, err := services.NewSubsiteService(services.SubsiteServiceDeps{
		Subsites: subsiteRepo,
		Orders:   subsiteOrderRepo,
		MainDB:   orderRepo,
		Logger:   serviceLog,
	})
	if err != nil {
		logger.Fatal("failed to initialise subsite service", zap.Error(err))
	}

	adminAuth := auth.NewAdminAuthenticator(cfg.Security.AdminJWTKey)
	subsiteAuth := auth.NewSubsiteAuthenticator(subsiteRepo)

	idemStore := idempotency.NewFirestoreStore(firestoreClient,
		idempotency.WithCollection(cfg.Idempotency.Collection),
	)
	idemMiddleware := idempotency.Middleware(idemStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithMethods(http.MethodPost),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(observability.NewPrintfAdapter(logger.Named("idempotency"))),
	)

	healthRepo, err := repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{
			Name: "firestore",
			Check: func(ctx context.Context) error {
				_, err := provider.Client(ctx)
				return err
			},
		},
	})
	if err != nil {
		logger.Fatal("failed to initialise health checks", zap.Error(err))
	}

	cartHandlers := handlers.NewCartHandlers(cartService, checkoutService,
		handlers.WithCheckoutMiddlewares(idemMiddleware))
	subsiteAPIHandlers, err := handlers.NewSubsiteAPIHandlers(subsiteService)
	if err != nil {
		logger.Fatal("failed to initialise subsite handlers", zap.Error(err))
	}
	adminHandlers, err := handlers.NewAdminHandlers(subsiteService, syncService, settlementService)
	if err != nil {
		logger.Fatal("failed to initialise admin handlers", zap.Error(err))
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.RecoveryMiddleware(logger),
			observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(
			handlers.WithHealthReporter(healthRepo),
			handlers.WithHealthBuild(version, cfg.Security.Environment),
		)),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithSubsiteRoutes(subsiteAPIHandlers.Routes),
		handlers.WithSubsiteMiddlewares(subsiteAuth.RequireSubsite()),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithAdminMiddlewares(adminAuth.RequireAdmin()),
	)

	sweeper, err := workers.NewSyncSweeper(workers.SyncSweeperDeps{
		Subsites: subsiteRepo,
		Sync:     syncService,
		Logger:   logger.Named("sweeper"),
		Interval: cfg.Sync.SweepInterval,
	})
	if err != nil {
		logger.Fatal("failed to initialise sync sweeper", zap.Error(err))
	}
	reaper, err := workers.NewCartReaper(workers.CartReaperDeps{
		Cart:     cartRepo,
		Logger:   logger.Named("reaper"),
		Interval: cfg.Cart.ReapInterval,
	})
	if err != nil {
		logger.Fatal("failed to initialise cart reaper", zap.Error(err))
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		sweeper.Run(workerCtx)
	}()
	go func() {
		defer wg.Done()
		reaper.Run(workerCtx)
	}()
	go func() {
		defer wg.Done()
		runIdempotencyCleanup(workerCtx, logger.Named("idempotency"), idemStore, cfg.Idempotency)
	}()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", server.Addr),
			zap.String("version", version),
			zap.String("environment", cfg.Security.Environment))
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	}

	stopWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	wg.Wait()
	logger.Info("server stopped")
}

// newServiceLogger bridges the services' structured event callback onto zap.
func newServiceLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(ctx context.Context, event string, fields map[string]any) {
		log := observability.FromContext(ctx)
		if log == nil {
			log = logger
		}
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		log.Info(event, zapFields...)
	}
}

// eventPublisher converts a possibly-nil concrete publisher into the services
// interface without producing a non-nil interface around a nil pointer.
func eventPublisher(p *jobs.PubSubEventPublisher) services.EventPublisher {
	if p == nil {
		return nil
	}
	return p
}

// runIdempotencyCleanup purges expired idempotency records on a fixed cadence.
func runIdempotencyCleanup(ctx context.Context, logger *zap.Logger, store *idempotency.FirestoreStore, cfg config.IdempotencyConfig) {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed, err := store.CleanupExpired(ctx, time.Now().UTC(), cfg.CleanupBatchSize)
			if err != nil {
				logger.Error("idempotency cleanup failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("idempotency records purged", zap.Int("count", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}
