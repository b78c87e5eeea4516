package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ShareTrade is the immutable record of one match. SellOrderID is empty and
// OfferingID non-zero when the buy order matched against an initial share
// offering instead of a resting sell order.
type ShareTrade struct {
	TradeID          string
	TradingAccountID int64
	BuyOrderID       string
	SellOrderID      string
	OfferingID       int64
	BuyerUserID      int64
	SellerUserID     int64
	QuantityTraded   int64
	TradePrice       decimal.Decimal
	BuyerFee         decimal.Decimal
	SellerFee        decimal.Decimal
	TradeDate        time.Time
}

// FromOffering reports whether the trade consumed primary-market liquidity.
func (t *ShareTrade) FromOffering() bool {
	return t.OfferingID != 0
}
