package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kado-mall/api/internal/domain"
	"github.com/kado-mall/api/internal/platform/auth"
	"github.com/kado-mall/api/internal/services"
)

func subsiteRequestContext(req *http.Request, subsiteID string) *http.Request {
	identity := &auth.Identity{
		UID:       subsiteID,
		Kind:      auth.PrincipalSubsite,
		SubsiteID: subsiteID,
	}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func TestSubsiteAPITestConnection(t *testing.T) {
	now := time.Date(2026, 4, 1, 8, 30, 0, 0, time.UTC)
	handler, err := NewSubsiteAPIHandlers(&stubSubsiteService{}, WithSubsiteAPIClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("failed to build handlers: %v", err)
	}
	router := chi.NewRouter()
	router.Route("/subsite", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/subsite/test", nil)
	req = subsiteRequestContext(req, "sub-1")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["status"] != "ok" || resp["subsiteId"] != "sub-1" {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestSubsiteAPITestConnectionUnauthenticated(t *testing.T) {
	handler, err := NewSubsiteAPIHandlers(&stubSubsiteService{})
	if err != nil {
		t.Fatalf("failed to build handlers: %v", err)
	}
	router := chi.NewRouter()
	router.Route("/subsite", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/subsite/test", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestSubsiteAPIImportOrderSuccess(t *testing.T) {
	placed := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	var captured services.ImportOrderCommand
	service := &stubSubsiteService{
		importOrderFunc: func(ctx context.Context, cmd services.ImportOrderCommand) (services.Order, error) {
			captured = cmd
			return services.Order{
				Serial:    cmd.OrderSerial,
				Status:    domain.OrderStatusPending,
				Source:    domain.OrderSourceSubsiteSync,
				CreatedAt: placed,
			}, nil
		},
	}
	handler, err := NewSubsiteAPIHandlers(service)
	if err != nil {
		t.Fatalf("failed to build handlers: %v", err)
	}
	router := chi.NewRouter()
	router.Route("/subsite", handler.Routes)

	body := `{"order_sn":"SN-100","goods_name":"Gift Card","goods_price":45.00,"quantity":2,"total_price":90.00,"email":"buyer@example.com","contact":"qq:42","status":"pending","created_at":"2026-04-01T10:00:00Z","sku_name":"Blue"}`
	req := httptest.NewRequest(http.MethodPost, "/subsite/orders/sync", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req = subsiteRequestContext(req, "sub-2")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.SubsiteID != "sub-2" {
		t.Fatalf("expected subsite id sub-2, got %q", captured.SubsiteID)
	}
	if captured.OrderSerial != "SN-100" || captured.Quantity != 2 {
		t.Fatalf("unexpected command %#v", captured)
	}
	if captured.TotalCents != 9000 || captured.ActualCents != 4500 {
		t.Fatalf("expected cents 9000/4500, got %d/%d", captured.TotalCents, captured.ActualCents)
	}
	if captured.PlacedAt == nil || !captured.PlacedAt.Equal(placed) {
		t.Fatalf("expected placed_at %v, got %#v", placed, captured.PlacedAt)
	}

	var resp importOrderResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.OrderSN != "SN-100" || resp.Status != "pending" {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestSubsiteAPIImportOrderLegacyTimestamp(t *testing.T) {
	var captured services.ImportOrderCommand
	service := &stubSubsiteService{
		importOrderFunc: func(ctx context.Context, cmd services.ImportOrderCommand) (services.Order, error) {
			captured = cmd
			return services.Order{Serial: cmd.OrderSerial, Status: domain.OrderStatusPending}, nil
		},
	}
	handler, err := NewSubsiteAPIHandlers(service)
	if err != nil {
		t.Fatalf("failed to build handlers: %v", err)
	}
	router := chi.NewRouter()
	router.Route("/subsite", handler.Routes)

	body := `{"order_sn":"SN-101","goods_name":"Card","goods_price":1.50,"quantity":1,"total_price":1.50,"email":"a@b.c","created_at":"2026-04-01 10:05:00"}`
	req := httptest.NewRequest(http.MethodPost, "/subsite/orders/sync", strings.NewReader(body))
	req = subsiteRequestContext(req, "sub-2")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	want := time.Date(2026, 4, 1, 10, 5, 0, 0, time.UTC)
	if captured.PlacedAt == nil || !captured.PlacedAt.Equal(want) {
		t.Fatalf("expected placed_at %v, got %#v", want, captured.PlacedAt)
	}
	if captured.TotalCents != 150 {
		t.Fatalf("expected 150 cents, got %d", captured.TotalCents)
	}
}

func TestSubsiteAPIImportOrderDuplicate(t *testing.T) {
	service := &stubSubsiteService{
		importOrderFunc: func(ctx context.Context, cmd services.ImportOrderCommand) (services.Order, error) {
			return services.Order{}, services.ErrSubsiteDuplicateOrder
		},
	}
	handler, err := NewSubsiteAPIHandlers(service)
	if err != nil {
		t.Fatalf("failed to build handlers: %v", err)
	}
	router := chi.NewRouter()
	router.Route("/subsite", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/subsite/orders/sync", strings.NewReader(`{"order_sn":"SN-1","goods_name":"x","goods_price":1,"quantity":1,"total_price":1,"email":"a@b.c"}`))
	req = subsiteRequestContext(req, "sub-3")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["error"] != "duplicate_order" {
		t.Fatalf("unexpected error code %v", body["error"])
	}
	if body["order_sn"] != "SN-1" {
		t.Fatalf("expected conflicting serial in payload, got %v", body["order_sn"])
	}
}

func TestSubsiteAPIImportOrderBadTimestamp(t *testing.T) {
	handler, err := NewSubsiteAPIHandlers(&stubSubsiteService{})
	if err != nil {
		t.Fatalf("failed to build handlers: %v", err)
	}
	router := chi.NewRouter()
	router.Route("/subsite", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/subsite/orders/sync", strings.NewReader(`{"order_sn":"SN-1","created_at":"yesterday"}`))
	req = subsiteRequestContext(req, "sub-3")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestSubsiteAPIOrderStatusSuccess(t *testing.T) {
	created := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	service := &stubSubsiteService{
		orderStatusFunc: func(ctx context.Context, orderSerial string) (services.Order, error) {
			if orderSerial != "SN-500" {
				t.Fatalf("unexpected serial %q", orderSerial)
			}
			return services.Order{
				Serial:          "SN-500",
				Status:          domain.OrderStatusCompleted,
				Quantity:        3,
				TotalPriceCents: 4550,
				CreatedAt:       created,
				UpdatedAt:       created.Add(time.Hour),
			}, nil
		},
	}
	handler, err := NewSubsiteAPIHandlers(service)
	if err != nil {
		t.Fatalf("failed to build handlers: %v", err)
	}
	router := chi.NewRouter()
	router.Route("/subsite", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/subsite/orders/status?order_sn=SN-500", nil)
	req = subsiteRequestContext(req, "sub-4")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp orderStatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "completed" || resp.Total != "45.50" {
		t.Fatalf("unexpected response %#v", resp)
	}
}

func TestSubsiteAPIOrderStatusNotFound(t *testing.T) {
	service := &stubSubsiteService{
		orderStatusFunc: func(ctx context.Context, orderSerial string) (services.Order, error) {
			return services.Order{}, services.ErrSubsiteOrderNotFound
		},
	}
	handler, err := NewSubsiteAPIHandlers(service)
	if err != nil {
		t.Fatalf("failed to build handlers: %v", err)
	}
	router := chi.NewRouter()
	router.Route("/subsite", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/subsite/orders/status?order_sn=missing", nil)
	req = subsiteRequestContext(req, "sub-4")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestSubsiteAPIOrderStatusMissingSerial(t *testing.T) {
	handler, err := NewSubsiteAPIHandlers(&stubSubsiteService{})
	if err != nil {
		t.Fatalf("failed to build handlers: %v", err)
	}
	router := chi.NewRouter()
	router.Route("/subsite", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/subsite/orders/status", nil)
	req = subsiteRequestContext(req, "sub-4")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

type stubSubsiteService struct {
	createFunc      func(ctx context.Context, cmd services.CreateSubsiteCommand) (services.Subsite, error)
	updateFunc      func(ctx context.Context, cmd services.UpdateSubsiteCommand) (services.Subsite, error)
	getFunc         func(ctx context.Context, subsiteID string) (services.Subsite, error)
	listFunc        func(ctx context.Context) ([]services.Subsite, error)
	statisticsFunc  func(ctx context.Context, subsiteID string) (services.SubsiteStatistics, error)
	deleteFunc      func(ctx context.Context, subsiteID string) error
	importOrderFunc func(ctx context.Context, cmd services.ImportOrderCommand) (services.Order, error)
	orderStatusFunc func(ctx context.Context, orderSerial string) (services.Order, error)
}

func (s *stubSubsiteService) Create(ctx context.Context, cmd services.CreateSubsiteCommand) (services.Subsite, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, cmd)
	}
	return services.Subsite{}, errors.New("not implemented")
}

func (s *stubSubsiteService) Update(ctx context.Context, cmd services.UpdateSubsiteCommand) (services.Subsite, error) {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, cmd)
	}
	return services.Subsite{}, errors.New("not implemented")
}

func (s *stubSubsiteService) Get(ctx context.Context, subsiteID string) (services.Subsite, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, subsiteID)
	}
	return services.Subsite{}, errors.New("not implemented")
}

func (s *stubSubsiteService) List(ctx context.Context) ([]services.Subsite, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx)
	}
	return nil, errors.New("not implemented")
}

func (s *stubSubsiteService) Delete(ctx context.Context, subsiteID string) error {
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, subsiteID)
	}
	return errors.New("not implemented")
}

func (s *stubSubsiteService) Statistics(ctx context.Context, subsiteID string) (services.SubsiteStatistics, error) {
	if s.statisticsFunc != nil {
		return s.statisticsFunc(ctx, subsiteID)
	}
	return services.SubsiteStatistics{}, errors.New("not implemented")
}

func (s *stubSubsiteService) ImportOrder(ctx context.Context, cmd services.ImportOrderCommand) (services.Order, error) {
	if s.importOrderFunc != nil {
		return s.importOrderFunc(ctx, cmd)
	}
	return services.Order{}, errors.New("not implemented")
}

func (s *stubSubsiteService) OrderStatus(ctx context.Context, orderSerial string) (services.Order, error) {
	if s.orderStatusFunc != nil {
		return s.orderStatusFunc(ctx, orderSerial)
	}
	return services.Order{}, errors.New("not implemented")
}
