package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/kado-mall/api/internal/domain"
	"github.com/kado-mall/api/internal/platform/httpx"
	"github.com/kado-mall/api/internal/services"
)

const (
	// SessionKeyHeader carries the caller-supplied cart scope token.
	SessionKeyHeader = "X-Session-Key"

	maxCartRequestBody = 8 * 1024
)

// CartHandlers exposes cart line management and checkout.
type CartHandlers struct {
	cart     services.CartService
	checkout services.CheckoutService

	// checkoutMiddlewares wrap only the checkout endpoint, typically the
	// idempotency replay layer.
	checkoutMiddlewares []func(http.Handler) http.Handler
}

// CartOption customises the cart handlers.
type CartOption func(*CartHandlers)

// WithCheckoutMiddlewares wraps the checkout endpoint with extra middleware.
func WithCheckoutMiddlewares(mw ...func(http.Handler) http.Handler) CartOption {
	return func(h *CartHandlers) {
		h.checkoutMiddlewares = append(h.checkoutMiddlewares, mw...)
	}
}

// NewCartHandlers constructs cart handlers.
func NewCartHandlers(cart services.CartService, checkout services.CheckoutService, opts ...CartOption) *CartHandlers {
	h := &CartHandlers{
		cart:     cart,
		checkout: checkout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers cart endpoints under the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/lines", h.addLine)
	r.Get("/lines", h.listLines)
	r.Delete("/lines/{lineID}", h.removeLine)

	checkout := http.Handler(http.HandlerFunc(h.checkoutLines))
	for i := len(h.checkoutMiddlewares) - 1; i >= 0; i-- {
		if mw := h.checkoutMiddlewares[i]; mw != nil {
			checkout = mw(checkout)
		}
	}
	r.Method(http.MethodPost, "/checkout", checkout)
}

type addLineRequest struct {
	GoodsID    string `json:"goodsId"`
	SKUCode    string `json:"skuCode"`
	Quantity   int    `json:"quantity"`
	CouponCode string `json:"couponCode"`
	Email      string `json:"email"`
}

type cartLineResponse struct {
	ID         string `json:"id"`
	GoodsID    string `json:"goodsId"`
	SKUCode    string `json:"skuCode,omitempty"`
	Quantity   int    `json:"quantity"`
	UnitPrice  string `json:"unitPrice"`
	Discount   string `json:"discount"`
	Total      string `json:"total"`
	CouponCode string `json:"couponCode,omitempty"`
	ExpiresAt  string `json:"expiresAt,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

type checkoutRequest struct {
	LineIDs []string `json:"lineIds"`
	Email   string   `json:"email"`
	Contact string   `json:"contact"`
}

type checkoutLineResponse struct {
	LineID      string   `json:"lineId"`
	OrderSerial string   `json:"orderSn,omitempty"`
	Codes       []string `json:"codes,omitempty"`
	Error       string   `json:"error,omitempty"`
}

type checkoutResponse struct {
	Orders []string               `json:"orders"`
	Lines  []checkoutLineResponse `json:"lines"`
}

func (h *CartHandlers) addLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionKey, ok := requireSessionKey(ctx, w, r)
	if !ok {
		return
	}

	var req addLineRequest
	if !decodeJSONBody(ctx, w, r, maxCartRequestBody, &req) {
		return
	}

	line, err := h.cart.AddLine(ctx, services.AddCartLineCommand{
		SessionKey: sessionKey,
		BuyerEmail: req.Email,
		GoodsID:    req.GoodsID,
		SKUCode:    req.SKUCode,
		Quantity:   req.Quantity,
		CouponCode: req.CouponCode,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, toCartLineResponse(line))
}

func (h *CartHandlers) listLines(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionKey, ok := requireSessionKey(ctx, w, r)
	if !ok {
		return
	}

	lines, err := h.cart.ListLines(ctx, sessionKey)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	payload := make([]cartLineResponse, 0, len(lines))
	for _, line := range lines {
		payload = append(payload, toCartLineResponse(line))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"lines": payload})
}

func (h *CartHandlers) removeLine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionKey, ok := requireSessionKey(ctx, w, r)
	if !ok {
		return
	}
	lineID := strings.TrimSpace(chi.URLParam(r, "lineID"))
	if lineID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "line id is required", http.StatusBadRequest))
		return
	}

	if err := h.cart.RemoveLine(ctx, sessionKey, lineID); err != nil {
		writeCartError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) checkoutLines(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	sessionKey, ok := requireSessionKey(ctx, w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if !decodeJSONBody(ctx, w, r, maxCartRequestBody, &req) {
		return
	}

	outcome, err := h.checkout.Checkout(ctx, services.CheckoutCommand{
		SessionKey: sessionKey,
		LineIDs:    req.LineIDs,
		Email:      req.Email,
		Contact:    req.Contact,
	})
	switch {
	case err == nil:
		// fallthrough to response
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "lineIds and email are required", http.StatusBadRequest))
		return
	case errors.Is(err, services.ErrCheckoutNoneSucceeded):
		writeJSONResponse(w, http.StatusUnprocessableEntity, toCheckoutResponse(outcome))
		return
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	writeJSONResponse(w, http.StatusCreated, toCheckoutResponse(outcome))
}

func toCheckoutResponse(outcome services.CheckoutOutcome) checkoutResponse {
	resp := checkoutResponse{
		Orders: make([]string, 0, len(outcome.Orders)),
		Lines:  make([]checkoutLineResponse, 0, len(outcome.Lines)),
	}
	for _, order := range outcome.Orders {
		resp.Orders = append(resp.Orders, order.Serial)
	}
	for _, line := range outcome.Lines {
		resp.Lines = append(resp.Lines, checkoutLineResponse{
			LineID:      line.LineID,
			OrderSerial: line.OrderSerial,
			Codes:       line.Codes,
			Error:       line.Err,
		})
	}
	return resp
}

func toCartLineResponse(line domain.CartLine) cartLineResponse {
	return cartLineResponse{
		ID:         line.ID,
		GoodsID:    line.GoodsID,
		SKUCode:    line.SKUCode,
		Quantity:   line.Quantity,
		UnitPrice:  domain.FormatCents(line.UnitPriceCents),
		Discount:   domain.FormatCents(line.DiscountCents),
		Total:      domain.FormatCents(line.TotalCents()),
		CouponCode: line.CouponCode,
		ExpiresAt:  formatTimePtr(line.ExpiresAt),
		CreatedAt:  formatTime(line.CreatedAt),
	}
}

func requireSessionKey(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionKey := strings.TrimSpace(r.Header.Get(SessionKeyHeader))
	if sessionKey == "" {
		httpx.WriteError(ctx, w, httpx.NewError("missing_session_key", SessionKeyHeader+" header is required", http.StatusBadRequest))
		return "", false
	}
	return sessionKey, true
}

func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	body, err := readLimitedBody(r, limit)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartLineNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("line_not_found", "cart line not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartGoodsUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("goods_unavailable", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCartCouponRejected):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_rejected", err.Error(), http.StatusUnprocessableEntity))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart service unavailable", http.StatusServiceUnavailable))
	}
}
