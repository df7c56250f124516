package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kado-mall/api/internal/domain"
	"github.com/kado-mall/api/internal/platform/auth"
	"github.com/kado-mall/api/internal/platform/httpx"
	"github.com/kado-mall/api/internal/services"
)

const maxSubsiteRequestBody = 16 * 1024

// SubsiteAPIHandlers serves the inbound surface that third-party subsites
// call with their API credentials: a connectivity ping, the order push
// endpoint, and a status lookup for previously pushed orders.
type SubsiteAPIHandlers struct {
	subsites services.SubsiteService
	now      func() time.Time
}

// SubsiteAPIOption configures SubsiteAPIHandlers.
type SubsiteAPIOption func(*SubsiteAPIHandlers)

// WithSubsiteAPIClock overrides the handler clock.
func WithSubsiteAPIClock(now func() time.Time) SubsiteAPIOption {
	return func(h *SubsiteAPIHandlers) {
		if now != nil {
			h.now = now
		}
	}
}

// NewSubsiteAPIHandlers wires the inbound subsite routes.
func NewSubsiteAPIHandlers(subsites services.SubsiteService, opts ...SubsiteAPIOption) (*SubsiteAPIHandlers, error) {
	if subsites == nil {
		return nil, errors.New("handlers: subsite service is required")
	}
	h := &SubsiteAPIHandlers{
		subsites: subsites,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Routes registers the subsite API endpoints on the router group.
func (h *SubsiteAPIHandlers) Routes(r chi.Router) {
	r.Get("/test", h.testConnection)
	r.Post("/orders/sync", h.importOrder)
	r.Get("/orders/status", h.orderStatus)
}

type importOrderRequest struct {
	OrderSN       string            `json:"order_sn"`
	GoodsName     string            `json:"goods_name"`
	GoodsPrice    float64           `json:"goods_price"`
	Quantity      int               `json:"quantity"`
	TotalPrice    float64           `json:"total_price"`
	Email         string            `json:"email"`
	Contact       string            `json:"contact"`
	Status        string            `json:"status"`
	CreatedAt     string            `json:"created_at"`
	SKUCode       string            `json:"sku_code"`
	SKUName       string            `json:"sku_name"`
	SKUAttributes map[string]string `json:"sku_attributes"`
}

type importOrderResponse struct {
	OrderSN   string `json:"order_sn"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

type orderStatusResponse struct {
	OrderSN   string `json:"order_sn"`
	Status    string `json:"status"`
	Quantity  int    `json:"quantity"`
	Total     string `json:"total_price"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func (h *SubsiteAPIHandlers) testConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subsiteID, ok := requireSubsiteIdentity(ctx, w)
	if !ok {
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"subsiteId": subsiteID,
		"timestamp": formatTime(h.now().UTC()),
	})
}

func (h *SubsiteAPIHandlers) importOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subsiteID, ok := requireSubsiteIdentity(ctx, w)
	if !ok {
		return
	}

	var req importOrderRequest
	if !decodeJSONBody(ctx, w, r, maxSubsiteRequestBody, &req) {
		return
	}

	cmd := services.ImportOrderCommand{
		SubsiteID:   subsiteID,
		OrderSerial: strings.TrimSpace(req.OrderSN),
		GoodsName:   strings.TrimSpace(req.GoodsName),
		SKUName:     strings.TrimSpace(req.SKUName),
		Quantity:    req.Quantity,
		TotalCents:  priceToCents(req.TotalPrice),
		ActualCents: priceToCents(req.GoodsPrice),
		Email:       strings.TrimSpace(req.Email),
		Contact:     strings.TrimSpace(req.Contact),
	}
	if raw := strings.TrimSpace(req.CreatedAt); raw != "" {
		placedAt, err := parseWireTime(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "created_at must be an RFC 3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.PlacedAt = &placedAt
	}

	order, err := h.subsites.ImportOrder(ctx, cmd)
	if err != nil {
		writeSubsiteAPIError(ctx, w, err, cmd.OrderSerial)
		return
	}

	writeJSONResponse(w, http.StatusCreated, importOrderResponse{
		OrderSN:   order.Serial,
		Status:    string(order.Status),
		CreatedAt: formatTime(order.CreatedAt),
	})
}

func (h *SubsiteAPIHandlers) orderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if _, ok := requireSubsiteIdentity(ctx, w); !ok {
		return
	}

	serial := strings.TrimSpace(r.URL.Query().Get("order_sn"))
	if serial == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order_sn query parameter is required", http.StatusBadRequest))
		return
	}

	order, err := h.subsites.OrderStatus(ctx, serial)
	if err != nil {
		writeSubsiteAPIError(ctx, w, err, serial)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderStatusResponse{
		OrderSN:   order.Serial,
		Status:    string(order.Status),
		Quantity:  order.Quantity,
		Total:     centsToPrice(order.TotalPriceCents),
		CreatedAt: formatTime(order.CreatedAt),
		UpdatedAt: formatTime(order.UpdatedAt),
	})
}

func requireSubsiteIdentity(ctx context.Context, w http.ResponseWriter) (string, bool) {
	subsiteID, ok := auth.SubsiteFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthorized", "subsite credentials are required", http.StatusUnauthorized))
		return "", false
	}
	return subsiteID, true
}

func writeSubsiteAPIError(ctx context.Context, w http.ResponseWriter, err error, serial string) {
	switch {
	case errors.Is(err, services.ErrSubsiteInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrSubsiteDuplicateOrder):
		httpx.WriteError(ctx, w, httpx.NewError("duplicate_order", "an order with this order_sn already exists", http.StatusConflict).
			WithDetails(map[string]any{"order_sn": serial}))
	case errors.Is(err, services.ErrSubsiteOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound).
			WithDetails(map[string]any{"order_sn": serial}))
	case errors.Is(err, services.ErrSubsiteNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("subsite_not_found", "subsite not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("subsite_unavailable", "subsite service unavailable", http.StatusServiceUnavailable))
	}
}

// priceToCents converts the wire decimal amount into integer cents.
func priceToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func centsToPrice(cents int64) string {
	return domain.FormatCents(cents)
}

// parseWireTime accepts both RFC 3339 and the second-resolution form the
// legacy subsite clients send.
func parseWireTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", raw)
}
