package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradingAccountSnapshot is the immutable daily accounting record for one
// trading account. At most one current snapshot exists per (account, date);
// a recalculation marks the old row superseded instead of duplicating it.
type TradingAccountSnapshot struct {
	SnapshotID            int64
	TradingAccountID      int64
	SnapshotDate          string // calendar date, YYYY-MM-DD
	OpeningNAV            decimal.Decimal
	RealizedPAndL         decimal.Decimal
	UnrealizedPAndL       decimal.Decimal
	ManagementFeeDeducted decimal.Decimal
	ProfitDistributed     decimal.Decimal
	ClosingNAV            decimal.Decimal
	ClosingSharePrice     decimal.Decimal
	Superseded            bool
	CreatedAt             time.Time
}

// ProfitDistributionLog records one snapshot's payout to one shareholder.
// Reversal entries offset a prior payout and point at it via ReversesLogID.
type ProfitDistributionLog struct {
	LogID               int64
	SnapshotID          int64
	TradingAccountID    int64
	UserID              int64
	DistributionDate    string // YYYY-MM-DD
	SharesHeld          int64
	ProfitPerShare      decimal.Decimal
	TotalAmount         decimal.Decimal
	WalletTransactionID int64
	Reversal            bool
	ReversesLogID       int64
	CreatedAt           time.Time
}

// DateFormat is the calendar-date layout used for snapshot keys.
const DateFormat = "2006-01-02"
