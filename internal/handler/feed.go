package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantumbands/exchange/internal/service"
)

// FeedHandler handles the market-data feed push endpoints.
type FeedHandler struct {
	feedSvc *service.FeedService
}

// NewFeedHandler creates a new FeedHandler.
func NewFeedHandler(feedSvc *service.FeedService) *FeedHandler {
	return &FeedHandler{feedSvc: feedSvc}
}

// closedTradesRequest is the JSON request body for POST /feed/closed-trades.
type closedTradesRequest struct {
	TradingAccountID int64 `json:"trading_account_id"`
	Trades           []struct {
		Symbol        string          `json:"symbol"`
		RealizedPAndL decimal.Decimal `json:"realized_pnl"`
		CloseTime     *string         `json:"close_time"`
	} `json:"trades"`
}

// ClosedTrades handles POST /feed/closed-trades.
func (h *FeedHandler) ClosedTrades(w http.ResponseWriter, r *http.Request) {
	var req closedTradesRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	inputs := make([]service.ClosedTradeInput, 0, len(req.Trades))
	for _, t := range req.Trades {
		input := service.ClosedTradeInput{
			Symbol:        t.Symbol,
			RealizedPAndL: t.RealizedPAndL,
		}
		if t.CloseTime != nil {
			parsed, err := time.Parse(time.RFC3339, *t.CloseTime)
			if err != nil {
				WriteError(w, http.StatusBadRequest, "validation_error", "close_time must be a valid RFC 3339 timestamp")
				return
			}
			input.CloseTime = parsed
		}
		inputs = append(inputs, input)
	}

	stored, err := h.feedSvc.IngestClosedTrades(req.TradingAccountID, inputs)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]any{"accepted": len(stored)})
}

// positionsRequest is the JSON request body for POST /feed/positions.
type positionsRequest struct {
	TradingAccountID int64 `json:"trading_account_id"`
	Positions        []struct {
		Symbol        string          `json:"symbol"`
		FloatingPAndL decimal.Decimal `json:"floating_pnl"`
	} `json:"positions"`
}

// Positions handles POST /feed/positions.
func (h *FeedHandler) Positions(w http.ResponseWriter, r *http.Request) {
	var req positionsRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	inputs := make([]service.PositionInput, 0, len(req.Positions))
	for _, p := range req.Positions {
		inputs = append(inputs, service.PositionInput{
			Symbol:        p.Symbol,
			FloatingPAndL: p.FloatingPAndL,
		})
	}

	if err := h.feedSvc.ReplacePositions(req.TradingAccountID, inputs); err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"positions": len(inputs)})
}

// equityRequest is the JSON request body for POST /feed/equity.
type equityRequest struct {
	TradingAccountID int64           `json:"trading_account_id"`
	Equity           decimal.Decimal `json:"equity"`
}

// Equity handles POST /feed/equity.
func (h *FeedHandler) Equity(w http.ResponseWriter, r *http.Request) {
	var req equityRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	account, err := h.feedSvc.UpdateEquity(req.TradingAccountID, req.Equity)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"trading_account_id": account.TradingAccountID,
		"current_nav":        account.CurrentNAV,
		"share_price":        account.SharePrice(),
	})
}
