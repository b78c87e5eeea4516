package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/quantumbands/exchange/internal/domain"
	"github.com/quantumbands/exchange/internal/engine"
	"github.com/quantumbands/exchange/internal/store"
)

// Per-account processing outcomes in a settlement batch.
const (
	ResultSuccess = "Success"
	ResultSkipped = "Skipped"
	ResultFailed  = "Failed"
)

// AccountResult reports the outcome of settling one trading account.
type AccountResult struct {
	TradingAccountID int64
	AccountName      string
	Status           string
	Message          string
	Snapshot         *domain.TradingAccountSnapshot
}

// Summary aggregates a settlement batch over many accounts.
type Summary struct {
	TargetDate             string
	AccountsProcessed      int
	AccountsSkipped        int
	AccountsFailed         int
	TotalProfitDistributed decimal.Decimal
	Errors                 []string
	AccountResults         []AccountResult
}

// Engine computes daily NAV snapshots and distributes profit to
// shareholders. Each account settles as one atomic unit under the same
// account lock the matcher uses, so no order matching interleaves with
// that account's snapshot.
type Engine struct {
	locks      *engine.AccountLocks
	accounts   *store.AccountStore
	portfolios *store.PortfolioStore
	wallets    *store.WalletStore
	snapshots  *store.SnapshotStore
	feed       *store.FeedStore
	workers    int
	timeout    time.Duration
	log        zerolog.Logger

	mu       sync.Mutex
	failures map[string]string // "accountID|date" → last failure message
}

// NewEngine creates a settlement Engine. workers bounds per-batch
// parallelism; timeout bounds how long one account's settlement may take,
// lock wait included.
func NewEngine(
	locks *engine.AccountLocks,
	accounts *store.AccountStore,
	portfolios *store.PortfolioStore,
	wallets *store.WalletStore,
	snapshots *store.SnapshotStore,
	feed *store.FeedStore,
	workers int,
	timeout time.Duration,
	log zerolog.Logger,
) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		locks:      locks,
		accounts:   accounts,
		portfolios: portfolios,
		wallets:    wallets,
		snapshots:  snapshots,
		feed:       feed,
		workers:    workers,
		timeout:    timeout,
		log:        log,
		failures:   make(map[string]string),
	}
}

func failureKey(accountID int64, date string) string {
	return fmt.Sprintf("%d|%s", accountID, date)
}

// CreateDailySnapshots settles every target account for the given date.
// With no explicit account ids, all active accounts are settled. Existing
// (account, date) snapshots are skipped unless force is set, in which case
// they are reversed and recalculated. Cancelling ctx stops scheduling new
// accounts; in-flight accounts finish.
func (e *Engine) CreateDailySnapshots(ctx context.Context, date string, accountIDs []int64, force bool) (*Summary, error) {
	if _, err := time.Parse(domain.DateFormat, date); err != nil {
		return nil, &domain.ValidationError{Message: "target_date must be a YYYY-MM-DD date"}
	}

	var targets []*domain.TradingAccount
	var preFailed []AccountResult
	if len(accountIDs) == 0 {
		targets = e.accounts.ListActive()
	} else {
		for _, id := range accountIDs {
			account, err := e.accounts.Get(id)
			if err != nil {
				preFailed = append(preFailed, AccountResult{
					TradingAccountID: id,
					Status:           ResultFailed,
					Message:          "account not found",
				})
				continue
			}
			targets = append(targets, account)
		}
	}

	results := make([]AccountResult, len(targets))
	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup

	cancelled := func(i int, account *domain.TradingAccount) {
		results[i] = AccountResult{
			TradingAccountID: account.TradingAccountID,
			AccountName:      account.AccountName,
			Status:           ResultSkipped,
			Message:          "batch cancelled before account was scheduled",
		}
	}
	for i, account := range targets {
		// A select between a free semaphore slot and a done context picks
		// either at random, so cancellation is checked explicitly before and
		// after taking a slot: a cancelled batch schedules no further
		// accounts.
		if ctx.Err() != nil {
			cancelled(i, account)
			continue
		}
		select {
		case sem <- struct{}{}:
			if ctx.Err() != nil {
				<-sem
				cancelled(i, account)
				continue
			}
		case <-ctx.Done():
			cancelled(i, account)
			continue
		}
		wg.Add(1)
		go func(i int, account *domain.TradingAccount) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = e.settleAccount(ctx, account, date, force)
		}(i, account)
	}
	wg.Wait()

	summary := &Summary{
		TargetDate:             date,
		TotalProfitDistributed: decimal.Zero,
		AccountResults:         append(preFailed, results...),
	}
	for _, r := range summary.AccountResults {
		switch r.Status {
		case ResultSuccess:
			summary.AccountsProcessed++
			if r.Snapshot != nil {
				summary.TotalProfitDistributed = summary.TotalProfitDistributed.Add(r.Snapshot.ProfitDistributed)
			}
		case ResultSkipped:
			summary.AccountsSkipped++
		case ResultFailed:
			summary.AccountsFailed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("account %d: %s", r.TradingAccountID, r.Message))
		}
	}

	e.log.Info().
		Str("date", date).
		Int("processed", summary.AccountsProcessed).
		Int("skipped", summary.AccountsSkipped).
		Int("failed", summary.AccountsFailed).
		Str("distributed", summary.TotalProfitDistributed.StringFixed(domain.MoneyScale)).
		Msg("settlement batch finished")

	return summary, nil
}

// settleAccount settles one account for one date under the account lock,
// with the per-account timeout applied to the whole unit including the
// lock wait. Failures are recorded for the status report and never
// propagate to other accounts.
func (e *Engine) settleAccount(ctx context.Context, account *domain.TradingAccount, date string, force bool) AccountResult {
	result := AccountResult{
		TradingAccountID: account.TradingAccountID,
		AccountName:      account.AccountName,
	}

	if !account.IsActive {
		result.Status = ResultSkipped
		result.Message = "account is inactive"
		return result
	}

	lockCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := e.locks.Acquire(lockCtx, account.TradingAccountID); err != nil {
		result.Status = ResultFailed
		result.Message = "timed out waiting for account lock"
		e.recordFailure(account.TradingAccountID, date, result.Message)
		return result
	}
	defer e.locks.Release(account.TradingAccountID)

	existing, err := e.snapshots.Get(account.TradingAccountID, date)
	if err == nil {
		if !force {
			result.Status = ResultSkipped
			result.Message = "snapshot already exists"
			result.Snapshot = existing
			return result
		}
		_, snap, rerr := e.recalculateLocked(account, existing, date)
		if rerr != nil {
			result.Status = ResultFailed
			result.Message = rerr.Error()
			e.recordFailure(account.TradingAccountID, date, result.Message)
			return result
		}
		result.Status = ResultSuccess
		result.Message = "snapshot recalculated"
		result.Snapshot = snap
		e.clearFailure(account.TradingAccountID, date)
		return result
	}
	if !errors.Is(err, domain.ErrSnapshotNotFound) {
		result.Status = ResultFailed
		result.Message = err.Error()
		e.recordFailure(account.TradingAccountID, date, result.Message)
		return result
	}

	j := store.NewJournal()
	snap, err := e.computeInto(j, account, date)
	if err != nil {
		j.Rollback()
		result.Status = ResultFailed
		result.Message = err.Error()
		e.recordFailure(account.TradingAccountID, date, result.Message)
		return result
	}
	j.Commit()

	result.Status = ResultSuccess
	result.Snapshot = snap
	e.clearFailure(account.TradingAccountID, date)

	e.log.Info().
		Int64("account_id", account.TradingAccountID).
		Str("date", date).
		Str("closing_nav", snap.ClosingNAV.StringFixed(domain.MoneyScale)).
		Str("distributed", snap.ProfitDistributed.StringFixed(domain.MoneyScale)).
		Msg("account settled")

	return result
}

// computeInto runs the snapshot computation for one account and date,
// recording every mutation in j. The caller holds the account lock and
// owns the commit/rollback decision.
//
// Opening NAV comes from the previous snapshot (or initial capital);
// realized P&L sums the day's unprocessed closed trades, which are marked
// processed in the same unit; unrealized P&L marks open positions to
// market. The management fee applies only to profit. Cash distribution
// pays out realized profit net of the fee; unrealized gains stay in the
// NAV.
func (e *Engine) computeInto(j *store.Journal, account *domain.TradingAccount, date string) (*domain.TradingAccountSnapshot, error) {
	now := time.Now().UTC()

	opening := account.InitialCapital
	if prev, ok := e.snapshots.LatestBefore(account.TradingAccountID, date); ok {
		opening = prev.ClosingNAV
	}

	closed := e.feed.UnprocessedOn(account.TradingAccountID, date)
	realized := decimal.Zero
	for _, t := range closed {
		realized = realized.Add(t.RealizedPAndL)
	}
	j.Record(e.feed.MarkProcessed(closed))

	unrealized := e.feed.FloatingPAndL(account.TradingAccountID)

	fee := decimal.Zero
	if gross := realized.Add(unrealized); gross.IsPositive() {
		fee = domain.RoundMoney(account.ManagementFeeRate.Mul(gross))
	}
	profitAvailable := realized.Sub(fee)
	closing := opening.Add(realized).Add(unrealized).Sub(fee)

	closingPrice := decimal.Zero
	if account.TotalSharesIssued > 0 {
		closingPrice = domain.RoundPrice(closing.DivRound(decimal.NewFromInt(account.TotalSharesIssued), domain.PriceScale))
	}

	snap := &domain.TradingAccountSnapshot{
		TradingAccountID:      account.TradingAccountID,
		SnapshotDate:          date,
		OpeningNAV:            opening,
		RealizedPAndL:         realized,
		UnrealizedPAndL:       unrealized,
		ManagementFeeDeducted: fee,
		ProfitDistributed:     decimal.Zero,
		ClosingNAV:            closing,
		ClosingSharePrice:     closingPrice,
		CreatedAt:             now,
	}
	undo, err := e.snapshots.Create(snap)
	if err != nil {
		return nil, err
	}
	j.Record(undo)

	distributed, err := e.distribute(j, snap, account, profitAvailable, now)
	if err != nil {
		return nil, err
	}
	snap.ProfitDistributed = distributed

	prevNAV, prevUpdated := account.CurrentNAV, account.UpdatedAt
	j.Record(func() {
		account.CurrentNAV = prevNAV
		account.UpdatedAt = prevUpdated
	})
	account.CurrentNAV = closing
	account.UpdatedAt = now

	return snap, nil
}

func (e *Engine) recordFailure(accountID int64, date, message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[failureKey(accountID, date)] = message
}

func (e *Engine) clearFailure(accountID int64, date string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.failures, failureKey(accountID, date))
}

func (e *Engine) lastFailure(accountID int64, date string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	msg, ok := e.failures[failureKey(accountID, date)]
	return msg, ok
}
