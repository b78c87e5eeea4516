package store

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantumbands/exchange/internal/domain"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

func TestWalletApplySigns(t *testing.T) {
	s := NewWalletStore()
	now := time.Now().UTC()
	s.CreateWallet(1, dec(t, "1000"), now)

	tx, _, err := s.Apply(1, domain.TxSharePurchase, dec(t, "250"), "order:x", 0, "buy", now)
	if err != nil {
		t.Fatalf("apply purchase: %v", err)
	}
	if !tx.BalanceAfter.Equal(dec(t, "750")) {
		t.Errorf("balance after purchase = %s, want 750", tx.BalanceAfter)
	}

	tx, _, err = s.Apply(1, domain.TxShareSaleProceeds, dec(t, "100"), "order:y", 0, "sell", now)
	if err != nil {
		t.Fatalf("apply proceeds: %v", err)
	}
	if !tx.BalanceAfter.Equal(dec(t, "850")) {
		t.Errorf("balance after proceeds = %s, want 850", tx.BalanceAfter)
	}

	w, err := s.Get(1)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if !w.Balance.Equal(dec(t, "850")) {
		t.Errorf("wallet balance = %s, want 850", w.Balance)
	}
}

func TestWalletApplyInsufficientFunds(t *testing.T) {
	s := NewWalletStore()
	now := time.Now().UTC()
	s.CreateWallet(1, dec(t, "10"), now)

	_, _, err := s.Apply(1, domain.TxWithdrawal, dec(t, "10.01"), "", 0, "too much", now)
	if err != domain.ErrInsufficientFunds {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}

	w, _ := s.Get(1)
	if !w.Balance.Equal(dec(t, "10")) {
		t.Errorf("balance = %s, want 10 (unchanged)", w.Balance)
	}
	if got := len(s.Transactions(1)); got != 1 {
		t.Errorf("ledger entries = %d, want 1 (opening deposit only)", got)
	}
}

func TestWalletApplyUndo(t *testing.T) {
	s := NewWalletStore()
	now := time.Now().UTC()
	s.CreateWallet(1, dec(t, "500"), now)

	_, undo, err := s.Apply(1, domain.TxExchangeFee, dec(t, "5"), "order:z", 0, "fee", now)
	if err != nil {
		t.Fatalf("apply fee: %v", err)
	}
	undo()

	w, _ := s.Get(1)
	if !w.Balance.Equal(dec(t, "500")) {
		t.Errorf("balance after undo = %s, want 500", w.Balance)
	}
	if got := len(s.Transactions(1)); got != 1 {
		t.Errorf("ledger entries after undo = %d, want 1", got)
	}
}

func TestWalletApplyLedgerContinuity(t *testing.T) {
	s := NewWalletStore()
	now := time.Now().UTC()
	s.CreateWallet(7, dec(t, "100"), now)

	_, _, _ = s.Apply(7, domain.TxSharePurchase, dec(t, "30"), "", 0, "", now)
	_, _, _ = s.Apply(7, domain.TxProfitDistribution, dec(t, "12.50"), "", 0, "", now)
	_, _, _ = s.Apply(7, domain.TxDistributionReversal, dec(t, "12.50"), "", 0, "", now)

	txs := s.Transactions(7)
	for i := 1; i < len(txs); i++ {
		if !txs[i].BalanceBefore.Equal(txs[i-1].BalanceAfter) {
			t.Errorf("tx %d balance_before = %s, want %s", i, txs[i].BalanceBefore, txs[i-1].BalanceAfter)
		}
		if txs[i].TransactionID <= txs[i-1].TransactionID {
			t.Errorf("tx ids not increasing: %d then %d", txs[i-1].TransactionID, txs[i].TransactionID)
		}
	}

	w, _ := s.Get(7)
	if !w.Balance.Equal(dec(t, "70")) {
		t.Errorf("final balance = %s, want 70", w.Balance)
	}
}

func TestWalletGetUnknown(t *testing.T) {
	s := NewWalletStore()
	if _, err := s.Get(99); err != domain.ErrWalletNotFound {
		t.Errorf("err = %v, want ErrWalletNotFound", err)
	}
}
