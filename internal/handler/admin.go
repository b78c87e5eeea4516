package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/quantumbands/exchange/internal/domain"
	"github.com/quantumbands/exchange/internal/service"
	"github.com/quantumbands/exchange/internal/settlement"
)

// AdminHandler handles offering lifecycle and settlement trigger endpoints.
type AdminHandler struct {
	offeringSvc   *service.OfferingService
	settlementSvc *service.SettlementService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(offeringSvc *service.OfferingService, settlementSvc *service.SettlementService) *AdminHandler {
	return &AdminHandler{
		offeringSvc:   offeringSvc,
		settlementSvc: settlementSvc,
	}
}

// createOfferingRequest is the JSON request body for POST /admin/offerings.
type createOfferingRequest struct {
	TradingAccountID      int64            `json:"trading_account_id"`
	AdminUserID           int64            `json:"admin_user_id"`
	SharesOffered         int64            `json:"shares_offered"`
	OfferingPricePerShare decimal.Decimal  `json:"offering_price_per_share"`
	FloorPricePerShare    *decimal.Decimal `json:"floor_price_per_share"`
	CeilingPricePerShare  *decimal.Decimal `json:"ceiling_price_per_share"`
	OfferingStartDate     *string          `json:"offering_start_date"`
	OfferingEndDate       *string          `json:"offering_end_date"`
}

// offeringResponse is the JSON shape of one offering.
type offeringResponse struct {
	OfferingID            int64            `json:"offering_id"`
	TradingAccountID      int64            `json:"trading_account_id"`
	SharesOffered         int64            `json:"shares_offered"`
	SharesSold            int64            `json:"shares_sold"`
	SharesRemaining       int64            `json:"shares_remaining"`
	OfferingPricePerShare decimal.Decimal  `json:"offering_price_per_share"`
	FloorPricePerShare    *decimal.Decimal `json:"floor_price_per_share"`
	CeilingPricePerShare  *decimal.Decimal `json:"ceiling_price_per_share"`
	OfferingStartDate     string           `json:"offering_start_date"`
	OfferingEndDate       *string          `json:"offering_end_date"`
	Status                string           `json:"status"`
}

func buildOfferingResponse(off *domain.InitialShareOffering) offeringResponse {
	resp := offeringResponse{
		OfferingID:            off.OfferingID,
		TradingAccountID:      off.TradingAccountID,
		SharesOffered:         off.SharesOffered,
		SharesSold:            off.SharesSold,
		SharesRemaining:       off.SharesRemaining(),
		OfferingPricePerShare: off.OfferingPricePerShare,
		OfferingStartDate:     off.OfferingStartDate.Format(time.RFC3339),
		Status:                string(off.Status),
	}
	if off.HasFloor() {
		floor := off.FloorPricePerShare
		resp.FloorPricePerShare = &floor
	}
	if off.HasCeiling() {
		ceiling := off.CeilingPricePerShare
		resp.CeilingPricePerShare = &ceiling
	}
	if !off.OfferingEndDate.IsZero() {
		end := off.OfferingEndDate.Format(time.RFC3339)
		resp.OfferingEndDate = &end
	}
	return resp
}

// CreateOffering handles POST /admin/offerings.
func (h *AdminHandler) CreateOffering(w http.ResponseWriter, r *http.Request) {
	var req createOfferingRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	svcReq := service.CreateOfferingRequest{
		TradingAccountID:      req.TradingAccountID,
		AdminUserID:           req.AdminUserID,
		SharesOffered:         req.SharesOffered,
		OfferingPricePerShare: req.OfferingPricePerShare,
	}
	if req.FloorPricePerShare != nil {
		svcReq.FloorPricePerShare = *req.FloorPricePerShare
	}
	if req.CeilingPricePerShare != nil {
		svcReq.CeilingPricePerShare = *req.CeilingPricePerShare
	}
	if req.OfferingStartDate != nil {
		t, err := time.Parse(time.RFC3339, *req.OfferingStartDate)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "offering_start_date must be a valid RFC 3339 timestamp")
			return
		}
		svcReq.OfferingStartDate = t
	}
	if req.OfferingEndDate != nil {
		t, err := time.Parse(time.RFC3339, *req.OfferingEndDate)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "offering_end_date must be a valid RFC 3339 timestamp")
			return
		}
		svcReq.OfferingEndDate = t
	}

	offering, err := h.offeringSvc.CreateOffering(svcReq)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildOfferingResponse(offering))
}

// CancelOffering handles DELETE /admin/offerings/{offering_id}.
func (h *AdminHandler) CancelOffering(w http.ResponseWriter, r *http.Request) {
	offeringID, err := strconv.ParseInt(chi.URLParam(r, "offering_id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "offering_id must be an integer")
		return
	}
	adminUserID, _ := strconv.ParseInt(r.URL.Query().Get("admin_user_id"), 10, 64)

	offering, svcErr := h.offeringSvc.CancelOffering(offeringID, adminUserID)
	if svcErr != nil {
		mapError(w, svcErr)
		return
	}
	WriteJSON(w, http.StatusOK, buildOfferingResponse(offering))
}

// triggerSnapshotsRequest is the JSON request body for POST /admin/snapshots.
type triggerSnapshotsRequest struct {
	TargetDate        string  `json:"target_date"`
	TradingAccountIDs []int64 `json:"trading_account_ids"`
	ForceRecalculate  bool    `json:"force_recalculate"`
	Reason            string  `json:"reason"`
	AdminNotes        string  `json:"admin_notes"`
}

// accountResultResponse is the per-account outcome in the batch response.
type accountResultResponse struct {
	TradingAccountID  int64            `json:"trading_account_id"`
	AccountName       string           `json:"account_name"`
	Status            string           `json:"status"`
	Message           string           `json:"message,omitempty"`
	SnapshotID        *int64           `json:"snapshot_id"`
	ClosingNAV        *decimal.Decimal `json:"closing_nav"`
	ProfitDistributed *decimal.Decimal `json:"profit_distributed"`
}

func buildSummaryResponse(summary *settlement.Summary) map[string]any {
	results := make([]accountResultResponse, 0, len(summary.AccountResults))
	for _, res := range summary.AccountResults {
		item := accountResultResponse{
			TradingAccountID: res.TradingAccountID,
			AccountName:      res.AccountName,
			Status:           res.Status,
			Message:          res.Message,
		}
		if res.Snapshot != nil {
			id := res.Snapshot.SnapshotID
			nav := res.Snapshot.ClosingNAV
			dist := res.Snapshot.ProfitDistributed
			item.SnapshotID = &id
			item.ClosingNAV = &nav
			item.ProfitDistributed = &dist
		}
		results = append(results, item)
	}
	return map[string]any{
		"target_date":              summary.TargetDate,
		"accounts_processed":       summary.AccountsProcessed,
		"accounts_skipped":         summary.AccountsSkipped,
		"accounts_failed":          summary.AccountsFailed,
		"total_profit_distributed": summary.TotalProfitDistributed,
		"errors":                   summary.Errors,
		"account_results":          results,
	}
}

// TriggerSnapshots handles POST /admin/snapshots.
func (h *AdminHandler) TriggerSnapshots(w http.ResponseWriter, r *http.Request) {
	var req triggerSnapshotsRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	summary, err := h.settlementSvc.TriggerSnapshots(r.Context(), service.SnapshotTriggerRequest{
		TargetDate:        req.TargetDate,
		TradingAccountIDs: req.TradingAccountIDs,
		ForceRecalculate:  req.ForceRecalculate,
		Reason:            req.Reason,
		AdminNotes:        req.AdminNotes,
	})
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildSummaryResponse(summary))
}

// SnapshotStatus handles GET /admin/snapshots/status. Account ids come as
// a comma-separated account_ids query parameter.
func (h *AdminHandler) SnapshotStatus(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")

	var accountIDs []int64
	if raw := r.URL.Query().Get("account_ids"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				WriteError(w, http.StatusBadRequest, "validation_error", "account_ids must be a comma-separated list of integers")
				return
			}
			accountIDs = append(accountIDs, id)
		}
	}

	report, err := h.settlementSvc.Status(date, accountIDs)
	if err != nil {
		mapError(w, err)
		return
	}

	accounts := make([]map[string]any, 0, len(report.Accounts))
	for _, st := range report.Accounts {
		item := map[string]any{
			"trading_account_id": st.TradingAccountID,
			"account_name":       st.AccountName,
			"status":             st.Status,
		}
		switch st.Status {
		case settlement.SnapshotCompleted:
			item["snapshot_id"] = st.SnapshotID
			item["opening_nav"] = st.OpeningNAV
			item["closing_nav"] = st.ClosingNAV
			item["closing_share_price"] = st.ClosingSharePrice
			item["profit_distributed"] = st.ProfitDistributed
			item["shareholder_count"] = st.ShareholderCount
		case settlement.SnapshotFailed:
			item["error_message"] = st.ErrorMessage
		}
		accounts = append(accounts, item)
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"date":      report.Date,
		"completed": report.Completed,
		"pending":   report.Pending,
		"failed":    report.Failed,
		"accounts":  accounts,
	})
}

// SnapshotHistory handles GET /admin/accounts/{account_id}/snapshots. The
// full history comes back in snapshot-id order, superseded rows included, so
// recalculations stay auditable.
func (h *AdminHandler) SnapshotHistory(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "account_id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "account_id must be an integer")
		return
	}

	snaps, svcErr := h.settlementSvc.History(accountID)
	if svcErr != nil {
		mapError(w, svcErr)
		return
	}

	items := make([]map[string]any, 0, len(snaps))
	for _, snap := range snaps {
		items = append(items, map[string]any{
			"snapshot_id":             snap.SnapshotID,
			"snapshot_date":           snap.SnapshotDate,
			"opening_nav":             snap.OpeningNAV,
			"realized_pnl":            snap.RealizedPAndL,
			"unrealized_pnl":          snap.UnrealizedPAndL,
			"management_fee_deducted": snap.ManagementFeeDeducted,
			"profit_distributed":      snap.ProfitDistributed,
			"closing_nav":             snap.ClosingNAV,
			"closing_share_price":     snap.ClosingSharePrice,
			"superseded":              snap.Superseded,
		})
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"trading_account_id": accountID,
		"snapshots":          items,
	})
}

// recalculateRequest is the JSON request body for
// POST /admin/accounts/{account_id}/recalculate.
type recalculateRequest struct {
	Date       string `json:"date"`
	Reason     string `json:"reason"`
	AdminNotes string `json:"admin_notes"`
}

// Recalculate handles POST /admin/accounts/{account_id}/recalculate.
func (h *AdminHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "account_id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "account_id must be an integer")
		return
	}

	var req recalculateRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, svcErr := h.settlementSvc.Recalculate(r.Context(), service.RecalculateRequest{
		TradingAccountID: accountID,
		Date:             req.Date,
		Reason:           req.Reason,
		AdminNotes:       req.AdminNotes,
	})
	if svcErr != nil {
		mapError(w, svcErr)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"trading_account_id": result.TradingAccountID,
		"snapshot_date":      result.SnapshotDate,
		"old_distribution": map[string]any{
			"snapshot_id":         result.Old.SnapshotID,
			"total_distributed":   result.Old.TotalDistributed,
			"holder_count":        result.Old.HolderCount,
			"closing_nav":         result.Old.ClosingNAV,
			"closing_share_price": result.Old.ClosingSharePrice,
		},
		"new_distribution": map[string]any{
			"snapshot_id":         result.New.SnapshotID,
			"total_distributed":   result.New.TotalDistributed,
			"holder_count":        result.New.HolderCount,
			"closing_nav":         result.New.ClosingNAV,
			"closing_share_price": result.New.ClosingSharePrice,
		},
		"adjustment_amount": result.AdjustmentAmount,
	})
}
