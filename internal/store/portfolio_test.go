package store

import (
	"testing"
	"time"

	"github.com/quantumbands/exchange/internal/domain"
)

func TestPortfolioApplyBuyAveragePrice(t *testing.T) {
	s := NewPortfolioStore()
	now := time.Now().UTC()

	s.ApplyBuy(1, 10, 100, dec(t, "10"), now)
	s.ApplyBuy(1, 10, 50, dec(t, "13"), now)

	p, err := s.Get(1, 10)
	if err != nil {
		t.Fatalf("get portfolio: %v", err)
	}
	if p.Quantity != 150 {
		t.Errorf("quantity = %d, want 150", p.Quantity)
	}
	if !p.AverageBuyPrice.Equal(dec(t, "11")) {
		t.Errorf("avg buy price = %s, want 11", p.AverageBuyPrice)
	}
}

func TestPortfolioApplyBuyUndoRemovesCreatedRow(t *testing.T) {
	s := NewPortfolioStore()
	now := time.Now().UTC()

	undo := s.ApplyBuy(1, 10, 100, dec(t, "10"), now)
	undo()

	if _, err := s.Get(1, 10); err != domain.ErrPortfolioNotFound {
		t.Errorf("err = %v, want ErrPortfolioNotFound after undo of creating buy", err)
	}
}

func TestPortfolioSellRequiresEscrow(t *testing.T) {
	s := NewPortfolioStore()
	now := time.Now().UTC()
	s.ApplyBuy(1, 10, 100, dec(t, "10"), now)

	// Selling without a prior hold must fail even though quantity covers it.
	if _, err := s.ApplySell(1, 10, 40, now); err != domain.ErrInsufficientShares {
		t.Fatalf("sell without hold err = %v, want ErrInsufficientShares", err)
	}

	if _, err := s.HoldForSale(1, 10, 40, now); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if _, err := s.HoldForSale(1, 10, 61, now); err != domain.ErrInsufficientShares {
		t.Fatalf("over-hold err = %v, want ErrInsufficientShares", err)
	}

	undo, err := s.ApplySell(1, 10, 40, now)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}

	p, _ := s.Get(1, 10)
	if p.Quantity != 60 || p.HeldQuantity != 0 {
		t.Errorf("after sell quantity = %d held = %d, want 60 / 0", p.Quantity, p.HeldQuantity)
	}
	if !p.AverageBuyPrice.Equal(dec(t, "10")) {
		t.Errorf("avg buy price changed on sell: %s", p.AverageBuyPrice)
	}

	undo()
	p, _ = s.Get(1, 10)
	if p.Quantity != 100 || p.HeldQuantity != 40 {
		t.Errorf("after undo quantity = %d held = %d, want 100 / 40", p.Quantity, p.HeldQuantity)
	}
}

func TestPortfolioReleaseHeldClamps(t *testing.T) {
	s := NewPortfolioStore()
	now := time.Now().UTC()
	s.ApplyBuy(1, 10, 100, dec(t, "10"), now)
	if _, err := s.HoldForSale(1, 10, 30, now); err != nil {
		t.Fatalf("hold: %v", err)
	}

	s.ReleaseHeld(1, 10, 50, now)

	p, _ := s.Get(1, 10)
	if p.HeldQuantity != 0 {
		t.Errorf("held = %d, want 0", p.HeldQuantity)
	}
	if p.AvailableQuantity() != 100 {
		t.Errorf("available = %d, want 100", p.AvailableQuantity())
	}
}

func TestPortfolioHoldersOfOrdering(t *testing.T) {
	s := NewPortfolioStore()
	now := time.Now().UTC()
	s.ApplyBuy(3, 10, 200, dec(t, "10"), now)
	s.ApplyBuy(1, 10, 500, dec(t, "10"), now)
	s.ApplyBuy(5, 10, 200, dec(t, "10"), now)
	s.ApplyBuy(2, 10, 100, dec(t, "10"), now)
	s.ApplyBuy(9, 11, 999, dec(t, "10"), now) // other account, excluded

	holders := s.HoldersOf(10)
	wantUsers := []int64{1, 3, 5, 2}
	if len(holders) != len(wantUsers) {
		t.Fatalf("holders = %d, want %d", len(holders), len(wantUsers))
	}
	for i, want := range wantUsers {
		if holders[i].UserID != want {
			t.Errorf("holders[%d].UserID = %d, want %d", i, holders[i].UserID, want)
		}
	}
}

func TestPortfolioTotalQuantity(t *testing.T) {
	s := NewPortfolioStore()
	now := time.Now().UTC()
	s.ApplyBuy(1, 10, 300, dec(t, "10"), now)
	s.ApplyBuy(2, 10, 200, dec(t, "12"), now)

	if got := s.TotalQuantity(10); got != 500 {
		t.Errorf("total = %d, want 500", got)
	}
}
