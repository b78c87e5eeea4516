package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies wallet ledger entries and fixes the sign with
// which the amount is applied to the running balance.
type TransactionType string

const (
	TxSharePurchase        TransactionType = "share_purchase"
	TxShareSaleProceeds    TransactionType = "share_sale_proceeds"
	TxExchangeFee          TransactionType = "exchange_fee"
	TxProfitDistribution   TransactionType = "profit_distribution"
	TxDistributionReversal TransactionType = "distribution_reversal"
	TxDeposit              TransactionType = "deposit"
	TxWithdrawal           TransactionType = "withdrawal"
)

// Sign returns +1 for credit types and -1 for debit types.
func (t TransactionType) Sign() int64 {
	switch t {
	case TxSharePurchase, TxExchangeFee, TxDistributionReversal, TxWithdrawal:
		return -1
	default:
		return 1
	}
}

// Wallet holds one user's cash balance. The balance is derived state: it
// always equals the BalanceAfter of the wallet's latest transaction.
type Wallet struct {
	UserID       int64
	Balance      decimal.Decimal
	CurrencyCode string
	UpdatedAt    time.Time
}

// WalletTransaction is one append-only ledger entry. The invariant
// BalanceAfter = BalanceBefore + Sign(Type)*Amount is enforced by the wallet
// store on append; Amount itself is always non-negative.
type WalletTransaction struct {
	TransactionID        int64
	WalletID             int64 // user id of the owning wallet
	Type                 TransactionType
	Amount               decimal.Decimal
	BalanceBefore        decimal.Decimal
	BalanceAfter         decimal.Decimal
	ReferenceID          string
	Description          string
	Status               string
	RelatedTransactionID int64 // links a reversal to the entry it offsets
	TransactionDate      time.Time
}
