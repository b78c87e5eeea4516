package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SharePortfolio tracks one (user, trading account) position. Quantity
// changes only through confirmed trades or settlement reversal; HeldQuantity
// is the part escrowed against open sell orders.
type SharePortfolio struct {
	UserID           int64
	TradingAccountID int64
	Quantity         int64 // >= 0
	HeldQuantity     int64 // >= 0, <= Quantity
	AverageBuyPrice  decimal.Decimal
	LastUpdatedAt    time.Time
}

// AvailableQuantity returns the unescrowed quantity that can still back a
// new sell order.
func (p *SharePortfolio) AvailableQuantity() int64 {
	return p.Quantity - p.HeldQuantity
}
