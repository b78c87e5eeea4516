package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantumbands/exchange/internal/domain"
	"github.com/quantumbands/exchange/internal/store"
)

// DistributionSummary captures one snapshot's distribution totals for
// before/after comparison in a recalculation.
type DistributionSummary struct {
	SnapshotID        int64
	TotalDistributed  decimal.Decimal
	HolderCount       int
	ClosingNAV        decimal.Decimal
	ClosingSharePrice decimal.Decimal
}

// RecalculationResult reports a completed recalculation: the superseded
// snapshot's distribution, the replacement's, and the net cash adjustment.
type RecalculationResult struct {
	TradingAccountID int64
	SnapshotDate     string
	Old              DistributionSummary
	New              DistributionSummary
	AdjustmentAmount decimal.Decimal
}

// Recalculate reverses an existing snapshot's profit distribution and
// re-runs settlement for the same (account, date) against the same day's
// inputs. Reversal wallet transactions, reversal log markers, the
// supersede, the processed-flag reset and the new snapshot all commit as
// one atomic unit. The account lock is held throughout, with the
// per-account timeout applied to the lock wait.
func (e *Engine) Recalculate(ctx context.Context, accountID int64, date string) (*RecalculationResult, error) {
	if _, err := time.Parse(domain.DateFormat, date); err != nil {
		return nil, &domain.ValidationError{Message: "date must be a YYYY-MM-DD date"}
	}

	account, err := e.accounts.Get(accountID)
	if err != nil {
		return nil, err
	}

	lockCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.locks.Acquire(lockCtx, accountID); err != nil {
		return nil, err
	}
	defer e.locks.Release(accountID)

	existing, err := e.snapshots.Get(accountID, date)
	if err != nil {
		return nil, err
	}

	old, replacement, err := e.recalculateLocked(account, existing, date)
	if err != nil {
		e.recordFailure(accountID, date, err.Error())
		return nil, err
	}
	e.clearFailure(accountID, date)

	result := &RecalculationResult{
		TradingAccountID: accountID,
		SnapshotDate:     date,
		Old:              e.summarize(old),
		New:              e.summarize(replacement),
		AdjustmentAmount: replacement.ProfitDistributed.Sub(old.ProfitDistributed),
	}

	e.log.Info().
		Int64("account_id", accountID).
		Str("date", date).
		Str("old_distributed", result.Old.TotalDistributed.StringFixed(domain.MoneyScale)).
		Str("new_distributed", result.New.TotalDistributed.StringFixed(domain.MoneyScale)).
		Str("adjustment", result.AdjustmentAmount.StringFixed(domain.MoneyScale)).
		Msg("snapshot recalculated")

	return result, nil
}

// recalculateLocked performs the reversal and recomputation for an account
// whose lock the caller already holds.
func (e *Engine) recalculateLocked(account *domain.TradingAccount, old *domain.TradingAccountSnapshot, date string) (*domain.TradingAccountSnapshot, *domain.TradingAccountSnapshot, error) {
	j := store.NewJournal()
	now := time.Now().UTC()

	// Offset every prior payout with a reversal wallet transaction and a
	// reversal log marker pointing at the original entry.
	for _, entry := range e.snapshots.LogsBySnapshot(old.SnapshotID) {
		if entry.Reversal {
			continue
		}
		tx, undo, err := e.wallets.Apply(
			entry.UserID,
			domain.TxDistributionReversal,
			entry.TotalAmount,
			fmt.Sprintf("snapshot:%d", old.SnapshotID),
			entry.WalletTransactionID,
			fmt.Sprintf("reversal of profit distribution for %s", old.SnapshotDate),
			now,
		)
		if err != nil {
			j.Rollback()
			return nil, nil, err
		}
		j.Record(undo)

		marker := &domain.ProfitDistributionLog{
			SnapshotID:          old.SnapshotID,
			TradingAccountID:    account.TradingAccountID,
			UserID:              entry.UserID,
			DistributionDate:    old.SnapshotDate,
			SharesHeld:          entry.SharesHeld,
			ProfitPerShare:      entry.ProfitPerShare,
			TotalAmount:         entry.TotalAmount,
			WalletTransactionID: tx.TransactionID,
			Reversal:            true,
			ReversesLogID:       entry.LogID,
			CreatedAt:           now,
		}
		j.Record(e.snapshots.AddLog(marker))
	}

	j.Record(e.snapshots.Supersede(old))

	// The day's closed trades feed the replacement snapshot again.
	_, undoReset := e.feed.ResetProcessedOn(account.TradingAccountID, date)
	j.Record(undoReset)

	replacement, err := e.computeInto(j, account, date)
	if err != nil {
		j.Rollback()
		return nil, nil, err
	}
	j.Commit()

	return old, replacement, nil
}

func (e *Engine) summarize(snap *domain.TradingAccountSnapshot) DistributionSummary {
	count := 0
	for _, entry := range e.snapshots.LogsBySnapshot(snap.SnapshotID) {
		if !entry.Reversal {
			count++
		}
	}
	return DistributionSummary{
		SnapshotID:        snap.SnapshotID,
		TotalDistributed:  snap.ProfitDistributed,
		HolderCount:       count,
		ClosingNAV:        snap.ClosingNAV,
		ClosingSharePrice: snap.ClosingSharePrice,
	}
}
