package settlement

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/quantumbands/exchange/internal/domain"
	"github.com/quantumbands/exchange/internal/engine"
	"github.com/quantumbands/exchange/internal/store"
)

const testDate = "2026-08-31"

type settleEnv struct {
	locks      *engine.AccountLocks
	accounts   *store.AccountStore
	portfolios *store.PortfolioStore
	wallets    *store.WalletStore
	snapshots  *store.SnapshotStore
	feed       *store.FeedStore
	eng        *Engine
}

func newSettleEnv(t *testing.T) *settleEnv {
	t.Helper()
	env := &settleEnv{
		locks:      engine.NewAccountLocks(),
		accounts:   store.NewAccountStore(),
		portfolios: store.NewPortfolioStore(),
		wallets:    store.NewWalletStore(),
		snapshots:  store.NewSnapshotStore(),
		feed:       store.NewFeedStore(),
	}
	env.eng = NewEngine(
		env.locks, env.accounts, env.portfolios, env.wallets,
		env.snapshots, env.feed, 2, 2*time.Second, zerolog.Nop(),
	)
	return env
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

// newFundAccount creates an active account with 10000 issued shares and two
// shareholders: user 1 with 9500 shares and user 2 with 500.
func (env *settleEnv) newFundAccount(t *testing.T) *domain.TradingAccount {
	t.Helper()
	now := time.Now().UTC()
	acct := env.accounts.Create(&domain.TradingAccount{
		AccountName:       "alpha fund",
		InitialCapital:    dec(t, "100000"),
		CurrentNAV:        dec(t, "100000"),
		TotalSharesIssued: 10000,
		ManagementFeeRate: dec(t, "0.20"),
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	env.portfolios.ApplyBuy(1, acct.TradingAccountID, 9500, dec(t, "10"), now)
	env.portfolios.ApplyBuy(2, acct.TradingAccountID, 500, dec(t, "10"), now)
	env.wallets.CreateWallet(1, decimal.Zero, now)
	env.wallets.CreateWallet(2, decimal.Zero, now)
	return acct
}

func (env *settleEnv) addClosedTrade(t *testing.T, accountID int64, date, pnl string) {
	t.Helper()
	day, err := time.Parse(domain.DateFormat, date)
	if err != nil {
		t.Fatalf("parse date %q: %v", date, err)
	}
	env.feed.AddClosedTrade(&domain.ClosedTrade{
		TradingAccountID: accountID,
		Symbol:           "XAUUSD",
		RealizedPAndL:    dec(t, pnl),
		CloseTime:        day.Add(12 * time.Hour),
	})
}

func (env *settleEnv) balance(t *testing.T, userID int64) decimal.Decimal {
	t.Helper()
	w, err := env.wallets.Get(userID)
	if err != nil {
		t.Fatalf("get wallet %d: %v", userID, err)
	}
	return w.Balance
}

func TestSettlementDistributesRealizedProfit(t *testing.T) {
	env := newSettleEnv(t)
	acct := env.newFundAccount(t)
	env.addClosedTrade(t, acct.TradingAccountID, testDate, "600")
	env.addClosedTrade(t, acct.TradingAccountID, testDate, "400")

	summary, err := env.eng.CreateDailySnapshots(context.Background(), testDate, nil, false)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if summary.AccountsProcessed != 1 || summary.AccountsFailed != 0 {
		t.Fatalf("summary = %+v, want 1 processed", summary)
	}
	if !summary.TotalProfitDistributed.Equal(dec(t, "800")) {
		t.Errorf("total distributed = %s, want 800", summary.TotalProfitDistributed)
	}

	snap, err := env.snapshots.Get(acct.TradingAccountID, testDate)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if !snap.OpeningNAV.Equal(dec(t, "100000")) {
		t.Errorf("opening = %s, want 100000", snap.OpeningNAV)
	}
	if !snap.RealizedPAndL.Equal(dec(t, "1000")) {
		t.Errorf("realized = %s, want 1000", snap.RealizedPAndL)
	}
	if !snap.ManagementFeeDeducted.Equal(dec(t, "200")) {
		t.Errorf("fee = %s, want 200 (20%% of 1000)", snap.ManagementFeeDeducted)
	}
	if !snap.ClosingNAV.Equal(dec(t, "100800")) {
		t.Errorf("closing = %s, want 100800", snap.ClosingNAV)
	}
	if !snap.ClosingSharePrice.Equal(dec(t, "10.08")) {
		t.Errorf("closing share price = %s, want 10.08", snap.ClosingSharePrice)
	}
	if !snap.ProfitDistributed.Equal(dec(t, "800")) {
		t.Errorf("distributed = %s, want 800", snap.ProfitDistributed)
	}

	// 800 over 10000 shares is 0.08/share: 760 to user 1, 40 to user 2.
	if got := env.balance(t, 1); !got.Equal(dec(t, "760")) {
		t.Errorf("user 1 balance = %s, want 760", got)
	}
	if got := env.balance(t, 2); !got.Equal(dec(t, "40")) {
		t.Errorf("user 2 balance = %s, want 40", got)
	}

	logs := env.snapshots.LogsBySnapshot(snap.SnapshotID)
	if len(logs) != 2 {
		t.Fatalf("distribution logs = %d, want 2", len(logs))
	}
	if !logs[0].ProfitPerShare.Equal(dec(t, "0.08")) {
		t.Errorf("profit per share = %s, want 0.08", logs[0].ProfitPerShare)
	}

	if !acct.CurrentNAV.Equal(dec(t, "100800")) {
		t.Errorf("account NAV = %s, want 100800", acct.CurrentNAV)
	}

	// The day's trades are consumed: a second date must not recount them.
	if left := env.feed.UnprocessedOn(acct.TradingAccountID, testDate); len(left) != 0 {
		t.Errorf("unprocessed trades left = %d, want 0", len(left))
	}
}

func TestSettlementLossDay(t *testing.T) {
	env := newSettleEnv(t)
	acct := env.newFundAccount(t)
	env.addClosedTrade(t, acct.TradingAccountID, testDate, "-500")

	if _, err := env.eng.CreateDailySnapshots(context.Background(), testDate, nil, false); err != nil {
		t.Fatalf("settle: %v", err)
	}

	snap, err := env.snapshots.Get(acct.TradingAccountID, testDate)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if !snap.ManagementFeeDeducted.IsZero() {
		t.Errorf("fee = %s, want 0 on a loss day", snap.ManagementFeeDeducted)
	}
	if !snap.ProfitDistributed.IsZero() {
		t.Errorf("distributed = %s, want 0", snap.ProfitDistributed)
	}
	if !snap.ClosingNAV.Equal(dec(t, "99500")) {
		t.Errorf("closing = %s, want 99500", snap.ClosingNAV)
	}
	if got := env.balance(t, 1); !got.IsZero() {
		t.Errorf("user 1 balance = %s, want 0 (losses are never clawed back)", got)
	}
}

func TestSettlementIdempotent(t *testing.T) {
	env := newSettleEnv(t)
	acct := env.newFundAccount(t)
	env.addClosedTrade(t, acct.TradingAccountID, testDate, "1000")

	if _, err := env.eng.CreateDailySnapshots(context.Background(), testDate, nil, false); err != nil {
		t.Fatalf("first run: %v", err)
	}
	balanceAfterFirst := env.balance(t, 1)

	summary, err := env.eng.CreateDailySnapshots(context.Background(), testDate, nil, false)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.AccountsSkipped != 1 || summary.AccountsProcessed != 0 {
		t.Errorf("summary = %+v, want 1 skipped", summary)
	}
	if summary.AccountResults[0].Snapshot == nil {
		t.Error("skip result should carry the existing snapshot")
	}
	if got := env.balance(t, 1); !got.Equal(balanceAfterFirst) {
		t.Errorf("balance changed on skipped rerun: %s vs %s", got, balanceAfterFirst)
	}
}

func TestSettlementPerHolderRounding(t *testing.T) {
	env := newSettleEnv(t)
	now := time.Now().UTC()
	acct := env.accounts.Create(&domain.TradingAccount{
		AccountName:       "small fund",
		InitialCapital:    dec(t, "1000"),
		CurrentNAV:        dec(t, "1000"),
		TotalSharesIssued: 3,
		ManagementFeeRate: dec(t, "0.20"),
		IsActive:          true,
	})
	for _, userID := range []int64{1, 2, 3} {
		env.portfolios.ApplyBuy(userID, acct.TradingAccountID, 1, dec(t, "10"), now)
		env.wallets.CreateWallet(userID, decimal.Zero, now)
	}
	env.addClosedTrade(t, acct.TradingAccountID, testDate, "1")

	if _, err := env.eng.CreateDailySnapshots(context.Background(), testDate, nil, false); err != nil {
		t.Fatalf("settle: %v", err)
	}

	// Available profit is 0.80; per-share 0.26666667 rounds each holder's
	// payout to 0.27 independently.
	for _, userID := range []int64{1, 2, 3} {
		if got := env.balance(t, userID); !got.Equal(dec(t, "0.27")) {
			t.Errorf("user %d balance = %s, want 0.27", userID, got)
		}
	}

	snap, err := env.snapshots.Get(acct.TradingAccountID, testDate)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if !snap.ProfitDistributed.Equal(dec(t, "0.81")) {
		t.Errorf("distributed = %s, want 0.81 (sum of rounded payouts)", snap.ProfitDistributed)
	}

	// Log amounts sum to the snapshot's distributed total.
	sum := decimal.Zero
	for _, entry := range env.snapshots.LogsBySnapshot(snap.SnapshotID) {
		sum = sum.Add(entry.TotalAmount)
	}
	if !sum.Equal(snap.ProfitDistributed) {
		t.Errorf("log sum = %s, want %s", sum, snap.ProfitDistributed)
	}
}

func TestUnsoldShareProfitStaysInFund(t *testing.T) {
	env := newSettleEnv(t)
	now := time.Now().UTC()
	acct := env.accounts.Create(&domain.TradingAccount{
		AccountName:       "half-sold fund",
		InitialCapital:    dec(t, "100000"),
		CurrentNAV:        dec(t, "100000"),
		TotalSharesIssued: 10000,
		ManagementFeeRate: dec(t, "0.20"),
		IsActive:          true,
	})

	// Half the issued shares are still sitting in an unsold offering; the
	// sole shareholder owns the other half.
	env.portfolios.ApplyBuy(1, acct.TradingAccountID, 5000, dec(t, "10"), now)
	env.wallets.CreateWallet(1, decimal.Zero, now)
	env.addClosedTrade(t, acct.TradingAccountID, testDate, "1000")

	summary, err := env.eng.CreateDailySnapshots(context.Background(), testDate, nil, false)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	// Available profit 800 over 10000 issued shares is 0.08/share. Only
	// 5000 shares have a holder: 400 pays out, the rest stays in the fund.
	if got := env.balance(t, 1); !got.Equal(dec(t, "400")) {
		t.Errorf("holder balance = %s, want 400", got)
	}
	if !summary.TotalProfitDistributed.Equal(dec(t, "400")) {
		t.Errorf("total distributed = %s, want 400", summary.TotalProfitDistributed)
	}

	snap, err := env.snapshots.Get(acct.TradingAccountID, testDate)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if !snap.ProfitDistributed.Equal(dec(t, "400")) {
		t.Errorf("distributed = %s, want 400", snap.ProfitDistributed)
	}
	if !snap.ClosingNAV.Equal(dec(t, "100800")) {
		t.Errorf("closing = %s, want 100800", snap.ClosingNAV)
	}
	logs := env.snapshots.LogsBySnapshot(snap.SnapshotID)
	if len(logs) != 1 {
		t.Fatalf("distribution logs = %d, want 1", len(logs))
	}
	if !logs[0].TotalAmount.Equal(dec(t, "400")) || logs[0].SharesHeld != 5000 {
		t.Errorf("log = %+v, want 400 on 5000 shares", logs[0])
	}
}

func TestOpeningNAVChainsFromPreviousClosing(t *testing.T) {
	env := newSettleEnv(t)
	acct := env.newFundAccount(t)
	env.addClosedTrade(t, acct.TradingAccountID, "2026-08-30", "1000")
	env.addClosedTrade(t, acct.TradingAccountID, "2026-08-31", "500")

	if _, err := env.eng.CreateDailySnapshots(context.Background(), "2026-08-30", nil, false); err != nil {
		t.Fatalf("day 1: %v", err)
	}
	if _, err := env.eng.CreateDailySnapshots(context.Background(), "2026-08-31", nil, false); err != nil {
		t.Fatalf("day 2: %v", err)
	}

	day1, _ := env.snapshots.Get(acct.TradingAccountID, "2026-08-30")
	day2, err := env.snapshots.Get(acct.TradingAccountID, "2026-08-31")
	if err != nil {
		t.Fatalf("get day 2: %v", err)
	}
	if !day2.OpeningNAV.Equal(day1.ClosingNAV) {
		t.Errorf("day 2 opening = %s, want day 1 closing %s", day2.OpeningNAV, day1.ClosingNAV)
	}
	// 100800 opening + 500 realized - 100 fee.
	if !day2.ClosingNAV.Equal(dec(t, "101200")) {
		t.Errorf("day 2 closing = %s, want 101200", day2.ClosingNAV)
	}
}

func TestUnrealizedGainsStayInNAV(t *testing.T) {
	env := newSettleEnv(t)
	acct := env.newFundAccount(t)
	now := time.Now().UTC()
	env.feed.ReplacePositions(acct.TradingAccountID, []*domain.OpenPosition{
		{TradingAccountID: acct.TradingAccountID, Symbol: "EURUSD", FloatingPAndL: dec(t, "1000"), UpdatedAt: now},
	})

	if _, err := env.eng.CreateDailySnapshots(context.Background(), testDate, nil, false); err != nil {
		t.Fatalf("settle: %v", err)
	}

	snap, err := env.snapshots.Get(acct.TradingAccountID, testDate)
	if err != nil {
		t.Fatalf("get snapshot: %v", err)
	}
	if !snap.UnrealizedPAndL.Equal(dec(t, "1000")) {
		t.Errorf("unrealized = %s, want 1000", snap.UnrealizedPAndL)
	}
	// The fee applies to total profit, but only realized profit pays out.
	if !snap.ManagementFeeDeducted.Equal(dec(t, "200")) {
		t.Errorf("fee = %s, want 200", snap.ManagementFeeDeducted)
	}
	if !snap.ProfitDistributed.IsZero() {
		t.Errorf("distributed = %s, want 0 (no realized profit)", snap.ProfitDistributed)
	}
	if !snap.ClosingNAV.Equal(dec(t, "100800")) {
		t.Errorf("closing = %s, want 100800", snap.ClosingNAV)
	}
	if got := env.balance(t, 1); !got.IsZero() {
		t.Errorf("user 1 balance = %s, want 0", got)
	}
}

func TestDistributionFailureRollsBackSnapshot(t *testing.T) {
	env := newSettleEnv(t)
	now := time.Now().UTC()
	acct := env.accounts.Create(&domain.TradingAccount{
		AccountName:       "broken fund",
		InitialCapital:    dec(t, "1000"),
		CurrentNAV:        dec(t, "1000"),
		TotalSharesIssued: 100,
		ManagementFeeRate: dec(t, "0.20"),
		IsActive:          true,
	})
	env.portfolios.ApplyBuy(1, acct.TradingAccountID, 60, dec(t, "10"), now)
	env.portfolios.ApplyBuy(2, acct.TradingAccountID, 40, dec(t, "10"), now)
	env.wallets.CreateWallet(1, decimal.Zero, now)
	// User 2 has no wallet: their payout fails mid-distribution.
	env.addClosedTrade(t, acct.TradingAccountID, testDate, "100")

	summary, err := env.eng.CreateDailySnapshots(context.Background(), testDate, nil, false)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if summary.AccountsFailed != 1 {
		t.Fatalf("summary = %+v, want 1 failed", summary)
	}

	// The whole unit rolled back: no snapshot, no partial payout, and the
	// day's trades are available for the next attempt.
	if _, err := env.snapshots.Get(acct.TradingAccountID, testDate); err != domain.ErrSnapshotNotFound {
		t.Errorf("snapshot err = %v, want ErrSnapshotNotFound", err)
	}
	if got := env.balance(t, 1); !got.IsZero() {
		t.Errorf("user 1 balance = %s, want 0 after rollback", got)
	}
	if left := env.feed.UnprocessedOn(acct.TradingAccountID, testDate); len(left) != 1 {
		t.Errorf("unprocessed trades = %d, want 1", len(left))
	}
	if !acct.CurrentNAV.Equal(dec(t, "1000")) {
		t.Errorf("account NAV = %s, want 1000 unchanged", acct.CurrentNAV)
	}
}

func TestCancelledBatchSchedulesNothing(t *testing.T) {
	env := newSettleEnv(t)
	for i := 0; i < 5; i++ {
		env.accounts.Create(&domain.TradingAccount{
			AccountName:       fmt.Sprintf("fund %d", i+1),
			InitialCapital:    dec(t, "1000"),
			CurrentNAV:        dec(t, "1000"),
			TotalSharesIssued: 100,
			ManagementFeeRate: dec(t, "0.20"),
			IsActive:          true,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := env.eng.CreateDailySnapshots(ctx, testDate, nil, false)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if summary.AccountsSkipped != 5 || summary.AccountsProcessed != 0 || summary.AccountsFailed != 0 {
		t.Fatalf("summary = %+v, want all 5 skipped", summary)
	}
	for _, res := range summary.AccountResults {
		if res.Message != "batch cancelled before account was scheduled" {
			t.Errorf("account %d message = %q", res.TradingAccountID, res.Message)
		}
		if _, err := env.snapshots.Get(res.TradingAccountID, testDate); !errors.Is(err, domain.ErrSnapshotNotFound) {
			t.Errorf("account %d has a snapshot after cancelled batch", res.TradingAccountID)
		}
	}
}

func TestBatchReportsUnknownAccount(t *testing.T) {
	env := newSettleEnv(t)

	summary, err := env.eng.CreateDailySnapshots(context.Background(), testDate, []int64{42}, false)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if summary.AccountsFailed != 1 {
		t.Fatalf("summary = %+v, want 1 failed", summary)
	}
	if summary.AccountResults[0].Message != "account not found" {
		t.Errorf("message = %q, want %q", summary.AccountResults[0].Message, "account not found")
	}
}

func TestInactiveAccountSkipped(t *testing.T) {
	env := newSettleEnv(t)
	acct := env.newFundAccount(t)
	acct.IsActive = false

	summary, err := env.eng.CreateDailySnapshots(context.Background(), testDate, []int64{acct.TradingAccountID}, false)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if summary.AccountsSkipped != 1 {
		t.Errorf("summary = %+v, want 1 skipped", summary)
	}
}

func TestInvalidDateRejected(t *testing.T) {
	env := newSettleEnv(t)
	if _, err := env.eng.CreateDailySnapshots(context.Background(), "31-08-2026", nil, false); err == nil {
		t.Fatal("expected validation error for malformed date")
	}
}
