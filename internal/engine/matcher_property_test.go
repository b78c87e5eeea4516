package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/quantumbands/exchange/internal/domain"
)

// Random order flow against one account with an active offering. Whatever
// the sequence, shares are conserved, no wallet goes negative, and the book
// never ends a pass crossed.
func TestMatcherProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		env := newTestEnv(t)
		acct := env.newAccount(t, 0)

		offered := rapid.Int64Range(100, 2000).Draw(rt, "sharesOffered")
		acct.TotalSharesIssued = offered
		env.activeOffering(t, acct.TradingAccountID, offered, "10")

		userIDs := []int64{1, 2, 3}
		for _, id := range userIDs {
			env.fundUser(t, id, "50000")
		}

		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			userID := rapid.SampledFrom(userIDs).Draw(rt, "user")
			qty := rapid.Int64Range(1, 300).Draw(rt, "qty")

			var order *domain.ShareOrder
			if rapid.Bool().Draw(rt, "market") {
				side := domain.OrderSideBuy
				if rapid.Bool().Draw(rt, "sell") {
					side = domain.OrderSideSell
				}
				order = marketOrder(userID, acct.TradingAccountID, side, qty)
			} else {
				price := decimal.New(rapid.Int64Range(800, 1200).Draw(rt, "priceCents"), -2)
				side := domain.OrderSideBuy
				if rapid.Bool().Draw(rt, "sellLimit") {
					side = domain.OrderSideSell
				}
				order = limitOrder(userID, acct.TradingAccountID, side, qty, price)
			}

			// Rejections (insufficient funds or shares) are expected for
			// random flow; only the invariants below matter.
			_, _ = env.matcher.SubmitOrder(order)
		}

		// Share conservation: held + unsold == issued.
		held := env.portfolios.TotalQuantity(acct.TradingAccountID)
		unsold := env.offerings.UnsoldShares(acct.TradingAccountID)
		if held+unsold != acct.TotalSharesIssued {
			rt.Fatalf("conservation broken: held %d + unsold %d != issued %d",
				held, unsold, acct.TotalSharesIssued)
		}

		// No wallet balance below zero.
		for _, id := range userIDs {
			if env.balance(t, id).IsNegative() {
				rt.Fatalf("wallet %d went negative: %s", id, env.balance(t, id))
			}
		}

		// The book never rests crossed orders from distinct users.
		book := env.books.GetOrCreate(acct.TradingAccountID)
		bid, hasBid := book.BestBid()
		if hasBid {
			book.WalkAsks(func(ask BookEntry) bool {
				if ask.Order.UserID != bid.Order.UserID && ask.Price.Cmp(bid.Price) <= 0 {
					rt.Fatalf("book crossed: bid %s >= ask %s", bid.Price, ask.Price)
				}
				return true
			})
		}

		// Escrow never exceeds holdings, fills never exceed the order.
		for _, id := range userIDs {
			p, err := env.portfolios.Get(id, acct.TradingAccountID)
			if err != nil {
				continue
			}
			if p.HeldQuantity > p.Quantity || p.HeldQuantity < 0 {
				rt.Fatalf("user %d escrow out of range: held %d of %d", id, p.HeldQuantity, p.Quantity)
			}
		}
	})
}
