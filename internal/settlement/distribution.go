package settlement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantumbands/exchange/internal/domain"
	"github.com/quantumbands/exchange/internal/store"
)

// distribute pays profit out to the account's shareholders at
// profitAvailable / TotalSharesIssued per share, recording every wallet
// credit and distribution log entry in j. Each holder receives their share
// count times profit-per-share, rounded to the cent. Profit attributable to
// unsold offering shares has no holder and stays undistributed in the
// account. Returns the total amount distributed.
func (e *Engine) distribute(j *store.Journal, snap *domain.TradingAccountSnapshot, account *domain.TradingAccount, profitAvailable decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if !profitAvailable.IsPositive() || account.TotalSharesIssued <= 0 {
		return decimal.Zero, nil
	}

	holders := e.portfolios.HoldersOf(account.TradingAccountID)
	if len(holders) == 0 {
		return decimal.Zero, nil
	}

	pps := domain.RoundPrice(profitAvailable.DivRound(decimal.NewFromInt(account.TotalSharesIssued), domain.PriceScale))

	total := decimal.Zero
	for _, h := range holders {
		amount := domain.RoundMoney(decimal.NewFromInt(h.Quantity).Mul(pps))
		if !amount.IsPositive() {
			continue
		}

		tx, undo, err := e.wallets.Apply(
			h.UserID,
			domain.TxProfitDistribution,
			amount,
			fmt.Sprintf("snapshot:%d", snap.SnapshotID),
			0,
			fmt.Sprintf("profit distribution for %s (%d shares)", snap.SnapshotDate, h.Quantity),
			now,
		)
		if err != nil {
			return decimal.Zero, err
		}
		j.Record(undo)

		entry := &domain.ProfitDistributionLog{
			SnapshotID:          snap.SnapshotID,
			TradingAccountID:    account.TradingAccountID,
			UserID:              h.UserID,
			DistributionDate:    snap.SnapshotDate,
			SharesHeld:          h.Quantity,
			ProfitPerShare:      pps,
			TotalAmount:         amount,
			WalletTransactionID: tx.TransactionID,
			CreatedAt:           now,
		}
		j.Record(e.snapshots.AddLog(entry))
		total = total.Add(amount)
	}

	return total, nil
}
