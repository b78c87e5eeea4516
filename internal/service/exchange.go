package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quantumbands/exchange/internal/domain"
	"github.com/quantumbands/exchange/internal/engine"
	"github.com/quantumbands/exchange/internal/metrics"
	"github.com/quantumbands/exchange/internal/store"
)

// ValidOrderStatuses lists all valid order status filter values.
var ValidOrderStatuses = map[domain.OrderStatus]bool{
	domain.OrderStatusPendingExecution: true,
	domain.OrderStatusOpen:             true,
	domain.OrderStatusPartiallyFilled:  true,
	domain.OrderStatusFilled:           true,
	domain.OrderStatusCancelled:        true,
	domain.OrderStatusExpired:          true,
}

// SubmitOrderRequest represents the input for order submission.
type SubmitOrderRequest struct {
	UserID           int64
	TradingAccountID int64
	Type             domain.OrderType
	Side             domain.OrderSide
	Quantity         int64
	LimitPrice       *decimal.Decimal // required for limit, must be nil for market
}

// SubmitOrderResponse holds the accepted order and the trades it produced.
type SubmitOrderResponse struct {
	Order  *domain.ShareOrder
	Trades []*domain.ShareTrade
}

// OrderListResponse is a paginated order listing.
type OrderListResponse struct {
	Orders []*domain.ShareOrder
	Page   int
	Limit  int
	Total  int
}

// ExchangeService handles order submission, retrieval, cancellation and
// listing.
type ExchangeService struct {
	matcher *engine.Matcher
	orders  *store.OrderStore
	trades  *store.TradeStore
	metrics *metrics.Metrics
}

// NewExchangeService creates a new ExchangeService with the given
// dependencies.
func NewExchangeService(
	matcher *engine.Matcher,
	orders *store.OrderStore,
	trades *store.TradeStore,
	m *metrics.Metrics,
) *ExchangeService {
	return &ExchangeService{
		matcher: matcher,
		orders:  orders,
		trades:  trades,
		metrics: m,
	}
}

// SubmitOrder validates the request and runs the order through the
// matching engine.
func (s *ExchangeService) SubmitOrder(req SubmitOrderRequest) (*SubmitOrderResponse, error) {
	if req.Type != domain.OrderTypeLimit && req.Type != domain.OrderTypeMarket {
		s.metrics.OrdersRejected.Inc()
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("unknown order type: %s. Must be one of: limit, market", req.Type),
		}
	}
	if req.Side != domain.OrderSideBuy && req.Side != domain.OrderSideSell {
		s.metrics.OrdersRejected.Inc()
		return nil, &domain.ValidationError{
			Message: "side must be 'buy' or 'sell'",
		}
	}
	if req.UserID <= 0 {
		s.metrics.OrdersRejected.Inc()
		return nil, &domain.ValidationError{
			Message: "user_id must be a positive integer",
		}
	}
	if req.TradingAccountID <= 0 {
		s.metrics.OrdersRejected.Inc()
		return nil, &domain.ValidationError{
			Message: "trading_account_id must be a positive integer",
		}
	}
	if req.Quantity <= 0 {
		s.metrics.OrdersRejected.Inc()
		return nil, &domain.ValidationError{
			Message: "quantity_ordered must be a positive integer",
		}
	}

	order := &domain.ShareOrder{
		UserID:           req.UserID,
		TradingAccountID: req.TradingAccountID,
		Side:             req.Side,
		Type:             req.Type,
		QuantityOrdered:  req.Quantity,
	}

	switch req.Type {
	case domain.OrderTypeLimit:
		if req.LimitPrice == nil {
			s.metrics.OrdersRejected.Inc()
			return nil, &domain.ValidationError{
				Message: "limit_price is required for limit orders",
			}
		}
		if !req.LimitPrice.IsPositive() {
			s.metrics.OrdersRejected.Inc()
			return nil, domain.ErrInvalidPrice
		}
		order.LimitPrice = *req.LimitPrice
	case domain.OrderTypeMarket:
		if req.LimitPrice != nil {
			s.metrics.OrdersRejected.Inc()
			return nil, &domain.ValidationError{
				Message: "limit_price must not be set for market orders",
			}
		}
	}

	trades, err := s.matcher.SubmitOrder(order)
	if err != nil {
		s.metrics.OrdersRejected.Inc()
		return nil, err
	}

	s.metrics.OrdersSubmitted.WithLabelValues(string(order.Side), string(order.Type)).Inc()
	s.metrics.TradesExecuted.Add(float64(len(trades)))
	for _, t := range trades {
		s.metrics.SharesTraded.Add(float64(t.QuantityTraded))
	}

	return &SubmitOrderResponse{Order: order, Trades: trades}, nil
}

// CancelOrder cancels an open or partially filled order on behalf of the
// requester.
func (s *ExchangeService) CancelOrder(orderID string, requesterID int64, admin bool) (*domain.ShareOrder, error) {
	if !admin && requesterID <= 0 {
		return nil, &domain.ValidationError{
			Message: "user_id must be a positive integer",
		}
	}
	order, err := s.matcher.CancelOrder(orderID, requesterID, admin)
	if err != nil {
		return nil, err
	}
	s.metrics.OrdersCancelled.Inc()
	return order, nil
}

// GetOrder returns a single order by id.
func (s *ExchangeService) GetOrder(orderID string) (*domain.ShareOrder, error) {
	return s.orders.Get(orderID)
}

// ListOrders returns the user's orders, newest first, optionally filtered
// by status. Page defaults to 1 and limit to 20 (max 100).
func (s *ExchangeService) ListOrders(userID int64, status string, page, limit int) (*OrderListResponse, error) {
	if userID <= 0 {
		return nil, &domain.ValidationError{
			Message: "user_id must be a positive integer",
		}
	}

	var statusFilter *domain.OrderStatus
	if status != "" {
		st := domain.OrderStatus(status)
		if !ValidOrderStatuses[st] {
			return nil, &domain.ValidationError{
				Message: fmt.Sprintf("unknown order status: %s", status),
			}
		}
		statusFilter = &st
	}

	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	orders, total := s.orders.ListByUser(userID, statusFilter, page, limit)
	return &OrderListResponse{
		Orders: orders,
		Page:   page,
		Limit:  limit,
		Total:  total,
	}, nil
}

// ListTrades returns the user's trades, newest first.
func (s *ExchangeService) ListTrades(userID int64) ([]*domain.ShareTrade, error) {
	if userID <= 0 {
		return nil, &domain.ValidationError{
			Message: "user_id must be a positive integer",
		}
	}
	return s.trades.ByUser(userID), nil
}
