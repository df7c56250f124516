package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/kado-mall/api/internal/domain"
	"github.com/kado-mall/api/internal/platform/auth"
	"github.com/kado-mall/api/internal/repositories"
)

var (
	// ErrSubsiteInvalidInput indicates the caller supplied invalid parameters.
	ErrSubsiteInvalidInput = errors.New("subsite: invalid input")
	// ErrSubsiteNotFound indicates the subsite does not exist.
	ErrSubsiteNotFound = errors.New("subsite: not found")
	// ErrSubsiteDuplicateOrder indicates the order serial was already imported.
	ErrSubsiteDuplicateOrder = errors.New("subsite: duplicate order")
	// ErrSubsiteOrderNotFound indicates no order exists under the serial.
	ErrSubsiteOrderNotFound = errors.New("subsite: order not found")
	// ErrSubsiteUnavailable indicates subsite dependencies are currently unavailable.
	ErrSubsiteUnavailable = errors.New("subsite: unavailable")
)

// SubsiteServiceDeps wires the dependencies required by the subsite service.
type SubsiteServiceDeps struct {
	Subsites repositories.SubsiteRepository
	Orders   repositories.SubsiteOrderRepository
	MainDB   repositories.OrderRepository
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
	IDGen    func() string
	// Credentials generates an api key and secret pair; tests pin it.
	Credentials func() (string, string, error)
}

type subsiteService struct {
	subsites    repositories.SubsiteRepository
	orders      repositories.SubsiteOrderRepository
	mainDB      repositories.OrderRepository
	now         func() time.Time
	logger      func(ctx context.Context, event string, fields map[string]any)
	idGen       func() string
	credentials func() (string, string, error)
}

// NewSubsiteService constructs a SubsiteService validating required dependencies.
func NewSubsiteService(deps SubsiteServiceDeps) (SubsiteService, error) {
	if deps.Subsites == nil {
		return nil, errors.New("subsite service: subsite repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("subsite service: subsite order repository is required")
	}
	if deps.MainDB == nil {
		return nil, errors.New("subsite service: order repository is required")
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
	credentials := deps.Credentials
	if credentials == nil {
		credentials = auth.GenerateAPICredentials
	}
	return &subsiteService{
		subsites: deps.Subsites,
		orders:   deps.Orders,
		mainDB:   deps.MainDB,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:      logger,
		idGen:       idGen,
		credentials: credentials,
	}, nil
}

// Create provisions a subsite. Local subsites get generated credentials so
// their partner can call the inbound sync API; third-party subsites carry
// operator-supplied credentials for our outbound deliveries.
func (s *subsiteService) Create(ctx context.Context, cmd CreateSubsiteCommand) (Subsite, error) {
	if s == nil || s.subsites == nil {
		return Subsite{}, ErrSubsiteUnavailable
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return Subsite{}, ErrSubsiteInvalidInput
	}
	if cmd.CommissionRateBP < 0 || cmd.CommissionRateBP > 10_000 {
		return Subsite{}, ErrSubsiteInvalidInput
	}
	kind := cmd.Kind
	if kind == "" {
		kind = domain.SubsiteLocal
	}
	if kind != domain.SubsiteLocal && kind != domain.SubsiteThirdParty {
		return Subsite{}, ErrSubsiteInvalidInput
	}

	now := s.now()
	subsite := Subsite{
		ID:               s.idGen(),
		Name:             name,
		Kind:             kind,
		Enabled:          true,
		CommissionRateBP: cmd.CommissionRateBP,
		Settings:         domain.DefaultSubsiteSettings(),
		ContactEmail:     strings.TrimSpace(cmd.ContactEmail),
		ContactPhone:     strings.TrimSpace(cmd.ContactPhone),
		Description:      strings.TrimSpace(cmd.Description),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	switch kind {
	case domain.SubsiteThirdParty:
		apiURL := strings.TrimSpace(cmd.APIURL)
		apiKey := strings.TrimSpace(cmd.APIKey)
		apiSecret := strings.TrimSpace(cmd.APISecret)
		if apiURL == "" || apiKey == "" || apiSecret == "" {
			return Subsite{}, ErrSubsiteInvalidInput
		}
		subsite.APIURL = apiURL
		subsite.APIKey = apiKey
		subsite.APISecret = apiSecret
	default:
		apiKey, apiSecret, err := s.credentials()
		if err != nil {
			s.logger(ctx, "subsite.credentials_failed", map[string]any{"error": err.Error()})
			return Subsite{}, ErrSubsiteUnavailable
		}
		subsite.APIKey = apiKey
		subsite.APISecret = apiSecret
	}

	if err := s.subsites.Create(ctx, subsite); err != nil {
		return Subsite{}, s.translateSubsiteError(ctx, err)
	}
	s.logger(ctx, "subsite.created", map[string]any{"subsiteId": subsite.ID, "kind": string(kind)})
	return subsite, nil
}

// Update applies the non-nil fields of the command.
func (s *subsiteService) Update(ctx context.Context, cmd UpdateSubsiteCommand) (Subsite, error) {
	if s == nil || s.subsites == nil {
		return Subsite{}, ErrSubsiteUnavailable
	}
	subsiteID := strings.TrimSpace(cmd.SubsiteID)
	if subsiteID == "" {
		return Subsite{}, ErrSubsiteInvalidInput
	}

	subsite, err := s.subsites.Get(ctx, subsiteID)
	if err != nil {
		return Subsite{}, s.translateSubsiteError(ctx, err)
	}

	if cmd.Name != nil {
		name := strings.TrimSpace(*cmd.Name)
		if name == "" {
			return Subsite{}, ErrSubsiteInvalidInput
		}
		subsite.Name = name
	}
	if cmd.Enabled != nil {
		subsite.Enabled = *cmd.Enabled
	}
	if cmd.CommissionRateBP != nil {
		if *cmd.CommissionRateBP < 0 || *cmd.CommissionRateBP > 10_000 {
			return Subsite{}, ErrSubsiteInvalidInput
		}
		subsite.CommissionRateBP = *cmd.CommissionRateBP
	}
	if cmd.APIURL != nil {
		subsite.APIURL = strings.TrimSpace(*cmd.APIURL)
	}
	if cmd.AutoSync != nil {
		subsite.Settings.AutoSync = *cmd.AutoSync
	}
	if cmd.SyncInterval != nil {
		if *cmd.SyncInterval <= 0 {
			return Subsite{}, ErrSubsiteInvalidInput
		}
		subsite.Settings.SyncInterval = *cmd.SyncInterval
	}
	if cmd.ContactEmail != nil {
		subsite.ContactEmail = strings.TrimSpace(*cmd.ContactEmail)
	}
	if cmd.ContactPhone != nil {
		subsite.ContactPhone = strings.TrimSpace(*cmd.ContactPhone)
	}
	if cmd.Description != nil {
		subsite.Description = strings.TrimSpace(*cmd.Description)
	}
	subsite.UpdatedAt = s.now()

	if err := s.subsites.Update(ctx, subsite); err != nil {
		return Subsite{}, s.translateSubsiteError(ctx, err)
	}
	return subsite, nil
}

func (s *subsiteService) Get(ctx context.Context, subsiteID string) (Subsite, error) {
	if s == nil || s.subsites == nil {
		return Subsite{}, ErrSubsiteUnavailable
	}
	subsiteID = strings.TrimSpace(subsiteID)
	if subsiteID == "" {
		return Subsite{}, ErrSubsiteInvalidInput
	}
	subsite, err := s.subsites.Get(ctx, subsiteID)
	if err != nil {
		return Subsite{}, s.translateSubsiteError(ctx, err)
	}
	return subsite, nil
}

func (s *subsiteService) List(ctx context.Context) ([]Subsite, error) {
	if s == nil || s.subsites == nil {
		return nil, ErrSubsiteUnavailable
	}
	subsites, err := s.subsites.List(ctx)
	if err != nil {
		return nil, s.translateSubsiteError(ctx, err)
	}
	return subsites, nil
}

// Statistics combines the fan-out rollups with the subsite's own balance and
// last sync time.
func (s *subsiteService) Delete(ctx context.Context, subsiteID string) error {
	if s == nil || s.subsites == nil {
		return ErrSubsiteUnavailable
	}
	subsiteID = strings.TrimSpace(subsiteID)
	if subsiteID == "" {
		return ErrSubsiteInvalidInput
	}
	if err := s.subsites.Delete(ctx, subsiteID); err != nil {
		return s.translateSubsiteError(ctx, err)
	}
	s.logger(ctx, "subsite.deleted", map[string]any{"subsiteId": subsiteID})
	return nil
}

func (s *subsiteService) Statistics(ctx context.Context, subsiteID string) (SubsiteStatistics, error) {
	if s == nil || s.subsites == nil {
		return SubsiteStatistics{}, ErrSubsiteUnavailable
	}
	subsiteID = strings.TrimSpace(subsiteID)
	if subsiteID == "" {
		return SubsiteStatistics{}, ErrSubsiteInvalidInput
	}
	subsite, err := s.subsites.Get(ctx, subsiteID)
	if err != nil {
		return SubsiteStatistics{}, s.translateSubsiteError(ctx, err)
	}
	stats, err := s.orders.Statistics(ctx, subsiteID, s.now())
	if err != nil {
		return SubsiteStatistics{}, s.translateSubsiteError(ctx, err)
	}
	stats.BalanceCents = subsite.BalanceCents
	stats.LastSyncAt = subsite.LastSyncAt
	return stats, nil
}

// ImportOrder records an order pushed by an authenticated subsite. A repeated
// serial conflicts and leaves no new document behind.
func (s *subsiteService) ImportOrder(ctx context.Context, cmd ImportOrderCommand) (Order, error) {
	if s == nil || s.mainDB == nil {
		return Order{}, ErrSubsiteUnavailable
	}
	serial := strings.TrimSpace(cmd.OrderSerial)
	if serial == "" || strings.TrimSpace(cmd.SubsiteID) == "" || cmd.Quantity <= 0 || cmd.TotalCents < 0 {
		return Order{}, ErrSubsiteInvalidInput
	}

	now := s.now()
	placedAt := now
	if cmd.PlacedAt != nil {
		placedAt = cmd.PlacedAt.UTC()
	}
	order := Order{
		Serial:           serial,
		Email:            strings.TrimSpace(cmd.Email),
		Contact:          strings.TrimSpace(cmd.Contact),
		Quantity:         cmd.Quantity,
		ActualPriceCents: cmd.ActualCents,
		TotalPriceCents:  cmd.TotalCents,
		Status:           domain.OrderStatusPending,
		Source:           domain.OrderSourceSubsiteSync,
		GoodsSnapshot: map[string]any{
			"goodsName": strings.TrimSpace(cmd.GoodsName),
			"skuName":   strings.TrimSpace(cmd.SKUName),
			"subsiteId": strings.TrimSpace(cmd.SubsiteID),
			"placedAt":  placedAt,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.mainDB.Create(ctx, order); err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			return Order{}, ErrSubsiteDuplicateOrder
		}
		return Order{}, s.translateSubsiteError(ctx, err)
	}
	s.logger(ctx, "subsite.order_imported", map[string]any{
		"subsiteId":   cmd.SubsiteID,
		"orderSerial": serial,
	})
	return order, nil
}

// OrderStatus looks up an order by its public serial.
func (s *subsiteService) OrderStatus(ctx context.Context, orderSerial string) (Order, error) {
	if s == nil || s.mainDB == nil {
		return Order{}, ErrSubsiteUnavailable
	}
	orderSerial = strings.TrimSpace(orderSerial)
	if orderSerial == "" {
		return Order{}, ErrSubsiteInvalidInput
	}
	order, err := s.mainDB.GetBySerial(ctx, orderSerial)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Order{}, ErrSubsiteOrderNotFound
		}
		return Order{}, s.translateSubsiteError(ctx, err)
	}
	return order, nil
}

func (s *subsiteService) translateSubsiteError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var subsiteErr *repositories.SubsiteError
	if errors.As(err, &subsiteErr) {
		switch subsiteErr.Code {
		case repositories.SubsiteErrorNotFound:
			return ErrSubsiteNotFound
		case repositories.SubsiteErrorOrderNotFound:
			return ErrSubsiteOrderNotFound
		case repositories.SubsiteErrorDuplicateOrder:
			return ErrSubsiteDuplicateOrder
		}
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrSubsiteNotFound
		case repoErr.IsConflict():
			return ErrSubsiteDuplicateOrder
		}
	}
	s.logger(ctx, "subsite.store_error", map[string]any{"error": err.Error()})
	return ErrSubsiteUnavailable
}
