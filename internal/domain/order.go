package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType distinguishes limit orders from market orders.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// OrderSide indicates whether an order buys or sells fund shares.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus represents the lifecycle state of a share order.
type OrderStatus string

const (
	OrderStatusPendingExecution OrderStatus = "pending_execution"
	OrderStatusOpen             OrderStatus = "open"
	OrderStatusPartiallyFilled  OrderStatus = "partially_filled"
	OrderStatusFilled           OrderStatus = "filled"
	OrderStatusCancelled        OrderStatus = "cancelled"
	OrderStatusExpired          OrderStatus = "expired"
)

// Terminal reports whether s is a final state that must never transition
// further.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired:
		return true
	}
	return false
}

// ShareOrder represents a buy or sell instruction for fund shares of a
// single trading account.
type ShareOrder struct {
	OrderID          string
	UserID           int64
	TradingAccountID int64
	Side             OrderSide
	Type             OrderType
	QuantityOrdered  int64
	QuantityFilled   int64
	LimitPrice       decimal.Decimal // zero for market orders
	AverageFillPrice decimal.Decimal // quantity-weighted running average
	FeeAmount        decimal.Decimal // accumulated exchange fees
	Status           OrderStatus
	OrderDate        time.Time
	UpdatedAt        time.Time
}

// QuantityRemaining returns the unfilled part of the order.
func (o *ShareOrder) QuantityRemaining() int64 {
	return o.QuantityOrdered - o.QuantityFilled
}

// RecordFill applies a fill of qty shares at price: filled quantity grows,
// the average fill price is recomputed as a quantity-weighted running
// average, and the status advances to partially_filled or filled.
func (o *ShareOrder) RecordFill(qty int64, price, fee decimal.Decimal, at time.Time) {
	o.AverageFillPrice = WeightedAveragePrice(o.AverageFillPrice, o.QuantityFilled, price, qty)
	o.QuantityFilled += qty
	o.FeeAmount = o.FeeAmount.Add(fee)
	if o.QuantityFilled >= o.QuantityOrdered {
		o.Status = OrderStatusFilled
	} else {
		o.Status = OrderStatusPartiallyFilled
	}
	o.UpdatedAt = at
}
