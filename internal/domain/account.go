package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradingAccount is an algorithmically traded account whose net asset value
// backs the fund shares investors trade.
type TradingAccount struct {
	TradingAccountID  int64
	AccountName       string
	InitialCapital    decimal.Decimal
	CurrentNAV        decimal.Decimal
	TotalSharesIssued int64
	ManagementFeeRate decimal.Decimal // fraction of profit, e.g. 0.20
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SharePrice returns CurrentNAV / TotalSharesIssued rounded to price
// precision, or zero when no shares are issued.
func (a *TradingAccount) SharePrice() decimal.Decimal {
	if a.TotalSharesIssued <= 0 {
		return decimal.Zero
	}
	return a.CurrentNAV.DivRound(decimal.NewFromInt(a.TotalSharesIssued), PriceScale)
}
