package settlement

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantumbands/exchange/internal/domain"
)

// Per-account snapshot states in a status report.
const (
	SnapshotCompleted = "Completed"
	SnapshotPending   = "Pending"
	SnapshotFailed    = "Failed"
)

// AccountStatus describes one account's settlement state for a date.
type AccountStatus struct {
	TradingAccountID  int64
	AccountName       string
	Status            string
	SnapshotID        int64
	OpeningNAV        decimal.Decimal
	ClosingNAV        decimal.Decimal
	ClosingSharePrice decimal.Decimal
	ProfitDistributed decimal.Decimal
	ShareholderCount  int
	ErrorMessage      string
}

// StatusReport aggregates settlement state across accounts for one date.
type StatusReport struct {
	Date      string
	Completed int
	Pending   int
	Failed    int
	Accounts  []AccountStatus
}

// SnapshotStatus reports, per account, whether the date's snapshot is
// completed (with NAV figures and distribution totals), still pending, or
// failed on the last run. With no explicit ids, all active accounts are
// reported.
func (e *Engine) SnapshotStatus(date string, accountIDs []int64) (*StatusReport, error) {
	if _, err := time.Parse(domain.DateFormat, date); err != nil {
		return nil, &domain.ValidationError{Message: "date must be a YYYY-MM-DD date"}
	}

	var targets []*domain.TradingAccount
	report := &StatusReport{Date: date}

	if len(accountIDs) == 0 {
		targets = e.accounts.ListActive()
	} else {
		for _, id := range accountIDs {
			account, err := e.accounts.Get(id)
			if err != nil {
				return nil, err
			}
			targets = append(targets, account)
		}
	}

	for _, account := range targets {
		status := AccountStatus{
			TradingAccountID: account.TradingAccountID,
			AccountName:      account.AccountName,
		}

		if snap, err := e.snapshots.Get(account.TradingAccountID, date); err == nil {
			status.Status = SnapshotCompleted
			status.SnapshotID = snap.SnapshotID
			status.OpeningNAV = snap.OpeningNAV
			status.ClosingNAV = snap.ClosingNAV
			status.ClosingSharePrice = snap.ClosingSharePrice
			status.ProfitDistributed = snap.ProfitDistributed
			for _, entry := range e.snapshots.LogsBySnapshot(snap.SnapshotID) {
				if !entry.Reversal {
					status.ShareholderCount++
				}
			}
			report.Completed++
		} else if msg, ok := e.lastFailure(account.TradingAccountID, date); ok {
			status.Status = SnapshotFailed
			status.ErrorMessage = msg
			report.Failed++
		} else {
			status.Status = SnapshotPending
			report.Pending++
		}

		report.Accounts = append(report.Accounts, status)
	}

	return report, nil
}
