package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kado-mall/api/internal/domain"
	"github.com/kado-mall/api/internal/platform/httpx"
	"github.com/kado-mall/api/internal/services"
)

const maxAdminRequestBody = 32 * 1024

// AdminHandlers serves the operator surface: subsite management, manual sync
// and resync actions, statistics, and commission settlement.
type AdminHandlers struct {
	subsites   services.SubsiteService
	sync       services.SyncService
	settlement services.SettlementService
}

// NewAdminHandlers wires the operator routes.
func NewAdminHandlers(subsites services.SubsiteService, sync services.SyncService, settlement services.SettlementService) (*AdminHandlers, error) {
	if subsites == nil {
		return nil, errors.New("handlers: subsite service is required")
	}
	if sync == nil {
		return nil, errors.New("handlers: sync service is required")
	}
	if settlement == nil {
		return nil, errors.New("handlers: settlement service is required")
	}
	return &AdminHandlers{
		subsites:   subsites,
		sync:       sync,
		settlement: settlement,
	}, nil
}

// Routes registers the admin endpoints on the router group.
func (h *AdminHandlers) Routes(r chi.Router) {
	r.Post("/subsites", h.createSubsite)
	r.Get("/subsites", h.listSubsites)
	r.Get("/subsites/{subsiteID}", h.getSubsite)
	r.Patch("/subsites/{subsiteID}", h.updateSubsite)
	r.Delete("/subsites/{subsiteID}", h.deleteSubsite)
	r.Get("/subsites/{subsiteID}/stats", h.subsiteStatistics)
	r.Get("/subsites/{subsiteID}/test", h.testSubsite)
	r.Post("/subsites/{subsiteID}/sync", h.syncSubsite)
	r.Post("/settlements", h.settle)
	r.Post("/subsite-orders/{subsiteOrderID}/resync", h.resyncOrder)
}

type createSubsiteRequest struct {
	Name             string `json:"name"`
	Kind             string `json:"kind"`
	CommissionRateBP int64  `json:"commissionRateBp"`
	APIURL           string `json:"apiUrl"`
	APIKey           string `json:"apiKey"`
	APISecret        string `json:"apiSecret"`
	ContactEmail     string `json:"contactEmail"`
	ContactPhone     string `json:"contactPhone"`
	Description      string `json:"description"`
}

type updateSubsiteRequest struct {
	Name             *string `json:"name"`
	Enabled          *bool   `json:"enabled"`
	CommissionRateBP *int64  `json:"commissionRateBp"`
	APIURL           *string `json:"apiUrl"`
	AutoSync         *bool   `json:"autoSync"`
	SyncIntervalSecs *int64  `json:"syncIntervalSeconds"`
	ContactEmail     *string `json:"contactEmail"`
	ContactPhone     *string `json:"contactPhone"`
	Description      *string `json:"description"`
}

type subsiteResponse struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Kind             string `json:"kind"`
	Enabled          bool   `json:"enabled"`
	CommissionRateBP int64  `json:"commissionRateBp"`
	Balance          string `json:"balance"`
	APIURL           string `json:"apiUrl,omitempty"`
	APIKey           string `json:"apiKey,omitempty"`
	AutoSync         bool   `json:"autoSync"`
	SyncIntervalSecs int64  `json:"syncIntervalSeconds"`
	ContactEmail     string `json:"contactEmail,omitempty"`
	ContactPhone     string `json:"contactPhone,omitempty"`
	Description      string `json:"description,omitempty"`
	LastSyncAt       string `json:"lastSyncAt,omitempty"`
	CreatedAt        string `json:"createdAt"`
	UpdatedAt        string `json:"updatedAt"`
}

type createdSubsiteResponse struct {
	subsiteResponse
	// APISecret is returned once at creation and never again.
	APISecret string `json:"apiSecret,omitempty"`
}

type subsiteStatisticsResponse struct {
	TotalOrders       int    `json:"totalOrders"`
	PendingOrders     int    `json:"pendingOrders"`
	FailedOrders      int    `json:"failedOrders"`
	TotalCommission   string `json:"totalCommission"`
	SettledCommission string `json:"settledCommission"`
	PendingCommission string `json:"pendingCommission"`
	Balance           string `json:"balance"`
	TodayOrders       int    `json:"todayOrders"`
	TodayCommission   string `json:"todayCommission"`
	MonthOrders       int    `json:"monthOrders"`
	MonthCommission   string `json:"monthCommission"`
	LastSyncAt        string `json:"lastSyncAt,omitempty"`
}

type settleRequest struct {
	SubsiteID       string   `json:"subsiteId,omitempty"`
	SubsiteOrderIDs []string `json:"subsiteOrderIds,omitempty"`
}

type settlementResponse struct {
	SubsiteID    string `json:"subsiteId"`
	SettledCount int    `json:"settledCount"`
	SettledCents string `json:"settledAmount"`
	NewBalance   string `json:"newBalance"`
}

type syncReportResponse struct {
	SubsiteID    string `json:"subsiteId"`
	Total        int    `json:"total"`
	SuccessCount int    `json:"successCount"`
	FailedCount  int    `json:"failedCount"`
}

func (h *AdminHandlers) createSubsite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createSubsiteRequest
	if !decodeJSONBody(ctx, w, r, maxAdminRequestBody, &req) {
		return
	}

	subsite, err := h.subsites.Create(ctx, services.CreateSubsiteCommand{
		Name:             strings.TrimSpace(req.Name),
		Kind:             domain.SubsiteKind(strings.TrimSpace(req.Kind)),
		CommissionRateBP: req.CommissionRateBP,
		APIURL:           strings.TrimSpace(req.APIURL),
		APIKey:           strings.TrimSpace(req.APIKey),
		APISecret:        strings.TrimSpace(req.APISecret),
		ContactEmail:     strings.TrimSpace(req.ContactEmail),
		ContactPhone:     strings.TrimSpace(req.ContactPhone),
		Description:      strings.TrimSpace(req.Description),
	})
	if err != nil {
		writeAdminError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, createdSubsiteResponse{
		subsiteResponse: toSubsiteResponse(subsite),
		APISecret:       subsite.APISecret,
	})
}

func (h *AdminHandlers) listSubsites(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subsites, err := h.subsites.List(ctx)
	if err != nil {
		writeAdminError(ctx, w, err)
		return
	}

	payload := make([]subsiteResponse, 0, len(subsites))
	for _, subsite := range subsites {
		payload = append(payload, toSubsiteResponse(subsite))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"subsites": payload})
}

func (h *AdminHandlers) getSubsite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subsiteID, ok := requireSubsiteID(ctx, w, r)
	if !ok {
		return
	}

	subsite, err := h.subsites.Get(ctx, subsiteID)
	if err != nil {
		writeAdminError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, toSubsiteResponse(subsite))
}

func (h *AdminHandlers) deleteSubsite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subsiteID, ok := requireSubsiteID(ctx, w, r)
	if !ok {
		return
	}

	if err := h.subsites.Delete(ctx, subsiteID); err != nil {
		writeAdminError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) updateSubsite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subsiteID, ok := requireSubsiteID(ctx, w, r)
	if !ok {
		return
	}

	var req updateSubsiteRequest
	if !decodeJSONBody(ctx, w, r, maxAdminRequestBody, &req) {
		return
	}

	cmd := services.UpdateSubsiteCommand{
		SubsiteID:        subsiteID,
		Name:             req.Name,
		Enabled:          req.Enabled,
		CommissionRateBP: req.CommissionRateBP,
		APIURL:           req.APIURL,
		AutoSync:         req.AutoSync,
		ContactEmail:     req.ContactEmail,
		ContactPhone:     req.ContactPhone,
		Description:      req.Description,
	}
	if req.SyncIntervalSecs != nil {
		interval := time.Duration(*req.SyncIntervalSecs) * time.Second
		cmd.SyncInterval = &interval
	}

	subsite, err := h.subsites.Update(ctx, cmd)
	if err != nil {
		writeAdminError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, toSubsiteResponse(subsite))
}

func (h *AdminHandlers) subsiteStatistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subsiteID, ok := requireSubsiteID(ctx, w, r)
	if !ok {
		return
	}

	stats, err := h.subsites.Statistics(ctx, subsiteID)
	if err != nil {
		writeAdminError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, subsiteStatisticsResponse{
		TotalOrders:       stats.TotalOrders,
		PendingOrders:     stats.PendingOrders,
		FailedOrders:      stats.FailedOrders,
		TotalCommission:   domain.FormatCents(stats.TotalCommissionCents),
		SettledCommission: domain.FormatCents(stats.SettledCommissionCents),
		PendingCommission: domain.FormatCents(stats.PendingCommissionCents),
		Balance:           domain.FormatCents(stats.BalanceCents),
		TodayOrders:       stats.TodayOrders,
		TodayCommission:   domain.FormatCents(stats.TodayCommissionCents),
		MonthOrders:       stats.MonthOrders,
		MonthCommission:   domain.FormatCents(stats.MonthCommissionCents),
		LastSyncAt:        formatTimePtr(stats.LastSyncAt),
	})
}

func (h *AdminHandlers) testSubsite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subsiteID, ok := requireSubsiteID(ctx, w, r)
	if !ok {
		return
	}

	if err := h.sync.TestConnection(ctx, subsiteID); err != nil {
		writeAdminError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"subsiteId": subsiteID,
		"status":    "ok",
	})
}

func (h *AdminHandlers) syncSubsite(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subsiteID, ok := requireSubsiteID(ctx, w, r)
	if !ok {
		return
	}

	report, err := h.sync.SyncPending(ctx, subsiteID)
	if err != nil {
		writeAdminError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, syncReportResponse{
		SubsiteID:    report.SubsiteID,
		Total:        report.Total,
		SuccessCount: report.SuccessCount,
		FailedCount:  report.FailedCount,
	})
}

func (h *AdminHandlers) settle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req settleRequest
	if !decodeJSONBody(ctx, w, r, maxAdminRequestBody, &req) {
		return
	}
	subsiteID := strings.TrimSpace(req.SubsiteID)
	if subsiteID == "" && len(req.SubsiteOrderIDs) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "subsiteId or subsiteOrderIds is required", http.StatusBadRequest))
		return
	}

	report, err := h.settlement.Settle(ctx, services.SettleCommand{
		SubsiteID:       subsiteID,
		SubsiteOrderIDs: req.SubsiteOrderIDs,
	})
	if err != nil {
		writeAdminError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, settlementResponse{
		SubsiteID:    report.SubsiteID,
		SettledCount: report.SettledCount,
		SettledCents: domain.FormatCents(report.SettledCents),
		NewBalance:   domain.FormatCents(report.NewBalanceCents),
	})
}

func (h *AdminHandlers) resyncOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	subsiteOrderID := strings.TrimSpace(chi.URLParam(r, "subsiteOrderID"))
	if subsiteOrderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "subsite order id is required", http.StatusBadRequest))
		return
	}

	row, err := h.sync.ResyncOrder(ctx, subsiteOrderID)
	if err != nil {
		writeAdminError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"id":          row.ID,
		"subsiteId":   row.SubsiteID,
		"orderSn":     row.OrderSerial,
		"syncStatus":  string(row.SyncStatus),
		"retryCount":  row.RetryCount,
		"nextRetryAt": formatTimePtr(row.NextRetryAt),
	})
}

func requireSubsiteID(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	subsiteID := strings.TrimSpace(chi.URLParam(r, "subsiteID"))
	if subsiteID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "subsite id is required", http.StatusBadRequest))
		return "", false
	}
	return subsiteID, true
}

func toSubsiteResponse(subsite services.Subsite) subsiteResponse {
	return subsiteResponse{
		ID:               subsite.ID,
		Name:             subsite.Name,
		Kind:             string(subsite.Kind),
		Enabled:          subsite.Enabled,
		CommissionRateBP: subsite.CommissionRateBP,
		Balance:          domain.FormatCents(subsite.BalanceCents),
		APIURL:           subsite.APIURL,
		APIKey:           subsite.APIKey,
		AutoSync:         subsite.Settings.AutoSync,
		SyncIntervalSecs: int64(subsite.Settings.SyncInterval / time.Second),
		ContactEmail:     subsite.ContactEmail,
		ContactPhone:     subsite.ContactPhone,
		Description:      subsite.Description,
		LastSyncAt:       formatTimePtr(subsite.LastSyncAt),
		CreatedAt:        formatTime(subsite.CreatedAt),
		UpdatedAt:        formatTime(subsite.UpdatedAt),
	}
}

func writeAdminError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrSubsiteInvalidInput),
		errors.Is(err, services.ErrSyncInvalidInput),
		errors.Is(err, services.ErrSettlementInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrSubsiteNotFound),
		errors.Is(err, services.ErrSyncSubsiteNotFound),
		errors.Is(err, services.ErrSettlementSubsiteNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("subsite_not_found", "subsite not found", http.StatusNotFound))
	case errors.Is(err, services.ErrSyncOrderNotFound),
		errors.Is(err, services.ErrSettlementOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "subsite order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrSyncNotEligible):
		httpx.WriteError(ctx, w, httpx.NewError("not_eligible", "subsite is not an enabled third-party subsite", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("admin_unavailable", "service unavailable", http.StatusServiceUnavailable))
	}
}
