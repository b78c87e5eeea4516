package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClosedTrade is a realized P&L record pushed by the trading account's
// market-data feed. Each record is counted into exactly one daily snapshot;
// ProcessedForDailyPAndL flips when the settlement engine consumes it.
type ClosedTrade struct {
	ClosedTradeID          int64
	TradingAccountID       int64
	Symbol                 string
	RealizedPAndL          decimal.Decimal
	CloseTime              time.Time
	ProcessedForDailyPAndL bool
}

// OpenPosition is the floating P&L of one currently open position, replaced
// wholesale on every feed push. It feeds the snapshot's unrealized P&L and
// is never persisted beyond that.
type OpenPosition struct {
	TradingAccountID int64
	Symbol           string
	FloatingPAndL    decimal.Decimal
	UpdatedAt        time.Time
}
