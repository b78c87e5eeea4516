package service

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/quantumbands/exchange/internal/domain"
	"github.com/quantumbands/exchange/internal/engine"
	"github.com/quantumbands/exchange/internal/metrics"
	"github.com/quantumbands/exchange/internal/store"
)

type serviceEnv struct {
	accounts   *store.AccountStore
	portfolios *store.PortfolioStore
	wallets    *store.WalletStore
	orders     *store.OrderStore
	exchange   *ExchangeService
}

func newServiceEnv(t *testing.T) *serviceEnv {
	t.Helper()
	env := &serviceEnv{
		accounts:   store.NewAccountStore(),
		portfolios: store.NewPortfolioStore(),
		wallets:    store.NewWalletStore(),
		orders:     store.NewOrderStore(),
	}
	trades := store.NewTradeStore()
	matcher := engine.NewMatcher(
		engine.NewAccountLocks(), engine.NewBookManager(),
		env.accounts, env.orders, trades, env.portfolios,
		store.NewOfferingStore(), env.wallets,
		dec(t, "0.001"), zerolog.Nop(),
	)
	env.exchange = NewExchangeService(matcher, env.orders, trades, metrics.New())
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

func (env *serviceEnv) newAccount(t *testing.T) *domain.TradingAccount {
	t.Helper()
	now := time.Now().UTC()
	return env.accounts.Create(&domain.TradingAccount{
		AccountName:       "alpha fund",
		InitialCapital:    dec(t, "100000"),
		CurrentNAV:        dec(t, "100000"),
		TotalSharesIssued: 1000,
		ManagementFeeRate: dec(t, "0.20"),
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
}

func decPtr(t *testing.T, s string) *decimal.Decimal {
	d := dec(t, s)
	return &d
}

func TestSubmitOrderValidation(t *testing.T) {
	env := newServiceEnv(t)
	acct := env.newAccount(t)
	env.wallets.CreateWallet(1, dec(t, "10000"), time.Now().UTC())

	valid := SubmitOrderRequest{
		UserID:           1,
		TradingAccountID: acct.TradingAccountID,
		Type:             domain.OrderTypeLimit,
		Side:             domain.OrderSideBuy,
		Quantity:         10,
		LimitPrice:       decPtr(t, "10"),
	}

	cases := []struct {
		name   string
		mutate func(*SubmitOrderRequest)
	}{
		{"unknown type", func(r *SubmitOrderRequest) { r.Type = "stop" }},
		{"unknown side", func(r *SubmitOrderRequest) { r.Side = "hold" }},
		{"zero user", func(r *SubmitOrderRequest) { r.UserID = 0 }},
		{"negative account", func(r *SubmitOrderRequest) { r.TradingAccountID = -1 }},
		{"zero quantity", func(r *SubmitOrderRequest) { r.Quantity = 0 }},
		{"limit without price", func(r *SubmitOrderRequest) { r.LimitPrice = nil }},
		{"market with price", func(r *SubmitOrderRequest) {
			r.Type = domain.OrderTypeMarket
			r.LimitPrice = decPtr(t, "10")
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)
			_, err := env.exchange.SubmitOrder(req)
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("err = %v, want ValidationError", err)
			}
		})
	}

	for _, price := range []string{"0", "-1"} {
		req := valid
		req.LimitPrice = decPtr(t, price)
		if _, err := env.exchange.SubmitOrder(req); !errors.Is(err, domain.ErrInvalidPrice) {
			t.Errorf("limit price %s err = %v, want ErrInvalidPrice", price, err)
		}
	}

	// The unmutated request goes through.
	resp, err := env.exchange.SubmitOrder(valid)
	if err != nil {
		t.Fatalf("valid submit: %v", err)
	}
	if resp.Order.Status != domain.OrderStatusOpen {
		t.Errorf("status = %s, want open", resp.Order.Status)
	}
}

func TestGetAndListOrders(t *testing.T) {
	env := newServiceEnv(t)
	acct := env.newAccount(t)
	env.wallets.CreateWallet(1, dec(t, "100000"), time.Now().UTC())

	var lastID string
	for i := 0; i < 5; i++ {
		resp, err := env.exchange.SubmitOrder(SubmitOrderRequest{
			UserID:           1,
			TradingAccountID: acct.TradingAccountID,
			Type:             domain.OrderTypeLimit,
			Side:             domain.OrderSideBuy,
			Quantity:         10,
			LimitPrice:       decPtr(t, "10"),
		})
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		lastID = resp.Order.OrderID
	}

	got, err := env.exchange.GetOrder(lastID)
	if err != nil || got.OrderID != lastID {
		t.Fatalf("get order = %v, %v", got, err)
	}
	if _, err := env.exchange.GetOrder("missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("missing order err = %v, want ErrOrderNotFound", err)
	}

	list, err := env.exchange.ListOrders(1, "", 1, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if list.Total != 5 || len(list.Orders) != 2 {
		t.Errorf("list = total %d len %d, want 5 / 2", list.Total, len(list.Orders))
	}
	if list.Orders[0].OrderID != lastID {
		t.Errorf("list should be newest first, got %s", list.Orders[0].OrderID)
	}

	if _, err := env.exchange.ListOrders(1, "bogus", 1, 10); err == nil {
		t.Error("expected validation error for unknown status filter")
	}

	filtered, err := env.exchange.ListOrders(1, string(domain.OrderStatusFilled), 1, 10)
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if filtered.Total != 0 {
		t.Errorf("filled orders = %d, want 0", filtered.Total)
	}
}

func TestCancelThroughService(t *testing.T) {
	env := newServiceEnv(t)
	acct := env.newAccount(t)
	env.wallets.CreateWallet(1, dec(t, "10000"), time.Now().UTC())

	resp, err := env.exchange.SubmitOrder(SubmitOrderRequest{
		UserID:           1,
		TradingAccountID: acct.TradingAccountID,
		Type:             domain.OrderTypeLimit,
		Side:             domain.OrderSideBuy,
		Quantity:         10,
		LimitPrice:       decPtr(t, "10"),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	cancelled, err := env.exchange.CancelOrder(resp.Order.OrderID, 1, false)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}
}
