package service

import (
	"errors"
	"testing"
	"time"

	"github.com/quantumbands/exchange/internal/domain"
	"github.com/quantumbands/exchange/internal/engine"
	"github.com/quantumbands/exchange/internal/store"
)

type marketEnv struct {
	accounts   *store.AccountStore
	books      *engine.BookManager
	trades     *store.TradeStore
	portfolios *store.PortfolioStore
	offerings  *store.OfferingStore
	wallets    *store.WalletStore
	svc        *MarketService
}

func newMarketEnv(t *testing.T) *marketEnv {
	t.Helper()
	env := &marketEnv{
		accounts:   store.NewAccountStore(),
		books:      engine.NewBookManager(),
		trades:     store.NewTradeStore(),
		portfolios: store.NewPortfolioStore(),
		offerings:  store.NewOfferingStore(),
		wallets:    store.NewWalletStore(),
	}
	env.svc = NewMarketService(env.books, env.accounts, env.trades, env.portfolios, env.offerings, env.wallets)
	return env
}

func TestBookDepthValidation(t *testing.T) {
	env := newMarketEnv(t)
	acct := env.accounts.Create(&domain.TradingAccount{
		AccountName: "alpha fund",
		CurrentNAV:  dec(t, "100000"),
		IsActive:    true,
	})

	if _, err := env.svc.Book(404, 0); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("unknown account err = %v, want ErrAccountNotFound", err)
	}
	if _, err := env.svc.Book(acct.TradingAccountID, 21); err == nil {
		t.Error("depth over 20 should fail")
	}

	resp, err := env.svc.Book(acct.TradingAccountID, 0)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if len(resp.Bids) != 0 || len(resp.Asks) != 0 || resp.Spread != nil {
		t.Errorf("empty book response = %+v", resp)
	}
}

func TestPortfolioMarksToSharePrice(t *testing.T) {
	env := newMarketEnv(t)
	now := time.Now().UTC()
	acct := env.accounts.Create(&domain.TradingAccount{
		AccountName:       "alpha fund",
		CurrentNAV:        dec(t, "120000"),
		TotalSharesIssued: 10000, // share price 12
		IsActive:          true,
	})
	env.portfolios.ApplyBuy(1, acct.TradingAccountID, 100, dec(t, "10"), now)

	resp, err := env.svc.Portfolio(1)
	if err != nil {
		t.Fatalf("portfolio: %v", err)
	}
	if len(resp.Holdings) != 1 {
		t.Fatalf("holdings = %d, want 1", len(resp.Holdings))
	}
	h := resp.Holdings[0]
	if !h.CurrentSharePrice.Equal(dec(t, "12")) {
		t.Errorf("share price = %s, want 12", h.CurrentSharePrice)
	}
	if !h.CurrentValue.Equal(dec(t, "1200")) {
		t.Errorf("current value = %s, want 1200", h.CurrentValue)
	}
	if !h.UnrealizedPAndL.Equal(dec(t, "200")) {
		t.Errorf("unrealized = %s, want 200", h.UnrealizedPAndL)
	}
	if !resp.TotalValue.Equal(dec(t, "1200")) {
		t.Errorf("total value = %s, want 1200", resp.TotalValue)
	}
}

func TestMarketDataIncludesOfferings(t *testing.T) {
	env := newMarketEnv(t)
	now := time.Now().UTC()
	acct := env.accounts.Create(&domain.TradingAccount{
		AccountName:       "alpha fund",
		CurrentNAV:        dec(t, "100000"),
		TotalSharesIssued: 10000,
		IsActive:          true,
	})
	env.accounts.Create(&domain.TradingAccount{AccountName: "dormant fund"}) // inactive, excluded
	env.offerings.Create(&domain.InitialShareOffering{
		TradingAccountID:      acct.TradingAccountID,
		SharesOffered:         500,
		OfferingPricePerShare: dec(t, "10"),
		OfferingStartDate:     now.Add(-time.Hour),
		Status:                domain.OfferingStatusActive,
	})

	entries := env.svc.MarketData()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1 (inactive excluded)", len(entries))
	}
	e := entries[0]
	if !e.SharePrice.Equal(dec(t, "10")) {
		t.Errorf("share price = %s, want 10", e.SharePrice)
	}
	if e.BestBid != nil || e.BestAsk != nil || e.LastTradePrice != nil {
		t.Errorf("quotes should be nil on an empty book: %+v", e)
	}
	if len(e.ActiveOfferings) != 1 || e.ActiveOfferings[0].SharesRemaining != 500 {
		t.Errorf("offerings = %+v, want one with 500 remaining", e.ActiveOfferings)
	}
}

func TestWalletLookup(t *testing.T) {
	env := newMarketEnv(t)
	env.wallets.CreateWallet(1, dec(t, "500"), time.Now().UTC())

	resp, err := env.svc.Wallet(1)
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if !resp.Balance.Equal(dec(t, "500")) {
		t.Errorf("balance = %s, want 500", resp.Balance)
	}
	if len(resp.Transactions) != 1 {
		t.Errorf("transactions = %d, want 1 (opening deposit)", len(resp.Transactions))
	}

	if _, err := env.svc.Wallet(2); !errors.Is(err, domain.ErrWalletNotFound) {
		t.Errorf("missing wallet err = %v, want ErrWalletNotFound", err)
	}
}
