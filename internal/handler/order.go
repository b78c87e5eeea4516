package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/quantumbands/exchange/internal/domain"
	"github.com/quantumbands/exchange/internal/service"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	exchangeSvc *service.ExchangeService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(exchangeSvc *service.ExchangeService) *OrderHandler {
	return &OrderHandler{exchangeSvc: exchangeSvc}
}

// submitOrderRequest is the JSON request body for POST /orders.
type submitOrderRequest struct {
	UserID           int64            `json:"user_id"`
	TradingAccountID int64            `json:"trading_account_id"`
	Side             string           `json:"side"`
	Type             string           `json:"type"`
	QuantityOrdered  int64            `json:"quantity_ordered"`
	LimitPrice       *decimal.Decimal `json:"limit_price"`
}

// orderResponse is the JSON shape of one order. Nullable fields use
// pointers.
type orderResponse struct {
	OrderID           string           `json:"order_id"`
	UserID            int64            `json:"user_id"`
	TradingAccountID  int64            `json:"trading_account_id"`
	Side              string           `json:"side"`
	Type              string           `json:"type"`
	QuantityOrdered   int64            `json:"quantity_ordered"`
	QuantityFilled    int64            `json:"quantity_filled"`
	QuantityRemaining int64            `json:"quantity_remaining"`
	LimitPrice        *decimal.Decimal `json:"limit_price"`
	AverageFillPrice  *decimal.Decimal `json:"average_fill_price"`
	FeeAmount         decimal.Decimal  `json:"fee_amount"`
	Status            string           `json:"status"`
	OrderDate         string           `json:"order_date"`
	UpdatedAt         string           `json:"updated_at"`
}

// tradeResponse is the JSON shape of one trade.
type tradeResponse struct {
	TradeID          string          `json:"trade_id"`
	TradingAccountID int64           `json:"trading_account_id"`
	BuyOrderID       string          `json:"buy_order_id"`
	SellOrderID      *string         `json:"sell_order_id"`
	OfferingID       *int64          `json:"offering_id"`
	QuantityTraded   int64           `json:"quantity_traded"`
	TradePrice       decimal.Decimal `json:"trade_price"`
	BuyerFee         decimal.Decimal `json:"buyer_fee"`
	SellerFee        decimal.Decimal `json:"seller_fee"`
	TradeDate        string          `json:"trade_date"`
}

// submitOrderResponse is the JSON response for POST /orders.
type submitOrderResponse struct {
	Order  orderResponse   `json:"order"`
	Trades []tradeResponse `json:"trades"`
}

func buildOrderResponse(order *domain.ShareOrder) orderResponse {
	resp := orderResponse{
		OrderID:           order.OrderID,
		UserID:            order.UserID,
		TradingAccountID:  order.TradingAccountID,
		Side:              string(order.Side),
		Type:              string(order.Type),
		QuantityOrdered:   order.QuantityOrdered,
		QuantityFilled:    order.QuantityFilled,
		QuantityRemaining: order.QuantityRemaining(),
		FeeAmount:         order.FeeAmount,
		Status:            string(order.Status),
		OrderDate:         order.OrderDate.Format(time.RFC3339),
		UpdatedAt:         order.UpdatedAt.Format(time.RFC3339),
	}
	if order.Type == domain.OrderTypeLimit {
		price := order.LimitPrice
		resp.LimitPrice = &price
	}
	if order.QuantityFilled > 0 {
		avg := order.AverageFillPrice
		resp.AverageFillPrice = &avg
	}
	return resp
}

func buildTradeResponse(t *domain.ShareTrade) tradeResponse {
	resp := tradeResponse{
		TradeID:          t.TradeID,
		TradingAccountID: t.TradingAccountID,
		BuyOrderID:       t.BuyOrderID,
		QuantityTraded:   t.QuantityTraded,
		TradePrice:       t.TradePrice,
		BuyerFee:         t.BuyerFee,
		SellerFee:        t.SellerFee,
		TradeDate:        t.TradeDate.Format(time.RFC3339),
	}
	if t.FromOffering() {
		id := t.OfferingID
		resp.OfferingID = &id
	} else {
		sellID := t.SellOrderID
		resp.SellOrderID = &sellID
	}
	return resp
}

// SubmitOrder handles POST /orders.
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := h.exchangeSvc.SubmitOrder(service.SubmitOrderRequest{
		UserID:           req.UserID,
		TradingAccountID: req.TradingAccountID,
		Type:             domain.OrderType(req.Type),
		Side:             domain.OrderSide(req.Side),
		Quantity:         req.QuantityOrdered,
		LimitPrice:       req.LimitPrice,
	})
	if err != nil {
		mapError(w, err)
		return
	}

	resp := submitOrderResponse{
		Order:  buildOrderResponse(result.Order),
		Trades: make([]tradeResponse, 0, len(result.Trades)),
	}
	for _, t := range result.Trades {
		resp.Trades = append(resp.Trades, buildTradeResponse(t))
	}
	WriteJSON(w, http.StatusCreated, resp)
}

// GetOrder handles GET /orders/{order_id}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.exchangeSvc.GetOrder(chi.URLParam(r, "order_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

// CancelOrder handles DELETE /orders/{order_id}. The requester is
// identified by the user_id query parameter; admin=true bypasses the
// ownership check.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	userID, _ := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	admin := r.URL.Query().Get("admin") == "true"

	order, err := h.exchangeSvc.CancelOrder(chi.URLParam(r, "order_id"), userID, admin)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

// ListOrders handles GET /users/{user_id}/orders.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "user_id must be an integer")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	result, svcErr := h.exchangeSvc.ListOrders(userID, r.URL.Query().Get("status"), page, limit)
	if svcErr != nil {
		mapError(w, svcErr)
		return
	}

	orders := make([]orderResponse, 0, len(result.Orders))
	for _, o := range result.Orders {
		orders = append(orders, buildOrderResponse(o))
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"orders": orders,
		"page":   result.Page,
		"limit":  result.Limit,
		"total":  result.Total,
	})
}

// ListTrades handles GET /users/{user_id}/trades.
func (h *OrderHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "user_id"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "user_id must be an integer")
		return
	}

	trades, svcErr := h.exchangeSvc.ListTrades(userID)
	if svcErr != nil {
		mapError(w, svcErr)
		return
	}

	resp := make([]tradeResponse, 0, len(trades))
	for _, t := range trades {
		resp = append(resp, buildTradeResponse(t))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"trades": resp})
}
