package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/quantumbands/exchange/internal/domain"
	"github.com/quantumbands/exchange/internal/store"
)

// Matcher implements the matching engine for share orders. Incoming buy
// demand is matched against resting asks and, when the book runs out of
// cheaper liquidity, against the account's active share offerings. Incoming
// sell supply is matched against resting bids only.
type Matcher struct {
	locks      *AccountLocks
	books      *BookManager
	accounts   *store.AccountStore
	orders     *store.OrderStore
	trades     *store.TradeStore
	portfolios *store.PortfolioStore
	offerings  *store.OfferingStore
	wallets    *store.WalletStore
	feeRate    decimal.Decimal
	log        zerolog.Logger
}

// NewMatcher creates a new Matcher with the given dependencies.
func NewMatcher(
	locks *AccountLocks,
	books *BookManager,
	accounts *store.AccountStore,
	orders *store.OrderStore,
	trades *store.TradeStore,
	portfolios *store.PortfolioStore,
	offerings *store.OfferingStore,
	wallets *store.WalletStore,
	feeRate decimal.Decimal,
	log zerolog.Logger,
) *Matcher {
	return &Matcher{
		locks:      locks,
		books:      books,
		accounts:   accounts,
		orders:     orders,
		trades:     trades,
		portfolios: portfolios,
		offerings:  offerings,
		wallets:    wallets,
		feeRate:    feeRate,
		log:        log,
	}
}

// SubmitOrder processes an incoming order through the matching engine. It
// validates the account and the submitter's funding or holdings, escrows
// shares for sells, runs the match loop, and rests any limit remainder on
// the book. Market orders are IOC: the unfilled remainder is cancelled and
// escrowed shares are released.
//
// The caller must provide an order with UserID, TradingAccountID, Side,
// Type, QuantityOrdered and (for limit orders) LimitPrice set. The matcher
// assigns OrderID, OrderDate and manages all status transitions.
//
// The account lock is held for the entire matching pass, so matching,
// cancellation and settlement for one account never interleave.
func (m *Matcher) SubmitOrder(order *domain.ShareOrder) ([]*domain.ShareTrade, error) {
	account, err := m.accounts.Get(order.TradingAccountID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive {
		return nil, domain.ErrAccountInactive
	}

	m.locks.Lock(account.TradingAccountID)
	defer m.locks.Release(account.TradingAccountID)

	book := m.books.GetOrCreate(account.TradingAccountID)
	book.Lock()
	defer book.Unlock()

	now := time.Now().UTC()
	j := store.NewJournal()

	// Step 1: Validate and escrow.
	switch order.Side {
	case domain.OrderSideBuy:
		if err := m.checkBuyerFunding(order, book, now); err != nil {
			return nil, err
		}
		// A limit bid above an offering's ceiling is rejected outright.
		if order.Type == domain.OrderTypeLimit {
			for _, off := range m.offerings.SellableFor(account.TradingAccountID, now) {
				if off.HasCeiling() &&
					order.LimitPrice.Cmp(off.OfferingPricePerShare) >= 0 &&
					order.LimitPrice.Cmp(off.CeilingPricePerShare) > 0 {
					return nil, domain.ErrInvalidPrice
				}
			}
		}
	case domain.OrderSideSell:
		undo, err := m.portfolios.HoldForSale(order.UserID, account.TradingAccountID, order.QuantityOrdered, now)
		if err != nil {
			return nil, err
		}
		j.Record(undo)
	}

	// Initialize the order record.
	order.OrderID = uuid.New().String()
	order.OrderDate = now
	order.UpdatedAt = now
	order.QuantityFilled = 0
	order.AverageFillPrice = decimal.Zero
	order.FeeAmount = decimal.Zero
	order.Status = domain.OrderStatusPendingExecution
	j.Record(m.orders.Create(order))

	// Step 2: Match loop.
	var trades []*domain.ShareTrade
	if order.Side == domain.OrderSideBuy {
		trades = m.matchBuy(order, account, book, now)
	} else {
		trades = m.matchSell(order, account, book, now)
	}

	// Step 3: Rest, cancel or complete.
	switch {
	case order.Status == domain.OrderStatusFilled:
		// Fully filled during the match loop.
	case order.Type == domain.OrderTypeMarket:
		// IOC: the remainder is cancelled, never rested.
		if order.Side == domain.OrderSideSell && order.QuantityRemaining() > 0 {
			j.Record(m.portfolios.ReleaseHeld(order.UserID, account.TradingAccountID, order.QuantityRemaining(), now))
		}
		order.Status = domain.OrderStatusCancelled
		order.UpdatedAt = now
	default:
		if order.Status == domain.OrderStatusPendingExecution {
			order.Status = domain.OrderStatusOpen
			order.UpdatedAt = now
		}
		entry := BookEntry{
			Price:     order.LimitPrice,
			CreatedAt: order.OrderDate,
			OrderID:   order.OrderID,
			Order:     order,
		}
		if order.Side == domain.OrderSideBuy {
			book.InsertBid(entry)
		} else {
			book.InsertAsk(entry)
		}
		j.Record(func() { book.Remove(order.OrderID) })
	}

	j.Commit()

	m.log.Info().
		Str("order_id", order.OrderID).
		Int64("user_id", order.UserID).
		Int64("account_id", order.TradingAccountID).
		Str("side", string(order.Side)).
		Str("type", string(order.Type)).
		Str("status", string(order.Status)).
		Int64("quantity", order.QuantityOrdered).
		Int64("filled", order.QuantityFilled).
		Int("trades", len(trades)).
		Msg("order processed")

	return trades, nil
}

// checkBuyerFunding verifies the buyer's wallet can cover the order at
// submission time. For limit bids the cost is limit price × quantity plus
// the fee; for market bids the cost is estimated by simulating the fill
// against the current asks and offerings.
func (m *Matcher) checkBuyerFunding(order *domain.ShareOrder, book *OrderBook, now time.Time) error {
	wallet, err := m.wallets.Get(order.UserID)
	if err != nil {
		return err
	}

	var value decimal.Decimal
	if order.Type == domain.OrderTypeLimit {
		value = order.LimitPrice.Mul(decimal.NewFromInt(order.QuantityOrdered))
	} else {
		remaining := order.QuantityOrdered
		book.WalkAsks(func(entry BookEntry) bool {
			if remaining <= 0 {
				return false
			}
			qty := entry.Order.QuantityRemaining()
			if qty > remaining {
				qty = remaining
			}
			value = value.Add(entry.Price.Mul(decimal.NewFromInt(qty)))
			remaining -= qty
			return remaining > 0
		})
		for _, off := range m.offerings.SellableFor(order.TradingAccountID, now) {
			if remaining <= 0 {
				break
			}
			qty := off.SharesRemaining()
			if qty > remaining {
				qty = remaining
			}
			value = value.Add(off.OfferingPricePerShare.Mul(decimal.NewFromInt(qty)))
			remaining -= qty
		}
	}

	required := value.Add(domain.RoundPrice(value.Mul(m.feeRate)))
	if wallet.Balance.Cmp(required) < 0 {
		return domain.ErrInsufficientFunds
	}
	return nil
}

// matchBuy fills an incoming buy order against resting asks and the
// account's active offerings. A resting ask is matched first whenever its
// price is at or below the best offering price; the offering acts as the
// lowest-priority ask at OfferingPricePerShare. A funding failure on the
// incoming buyer stops the loop.
func (m *Matcher) matchBuy(order *domain.ShareOrder, account *domain.TradingAccount, book *OrderBook, now time.Time) []*domain.ShareTrade {
	// Snapshot the crossing asks up front so fills and removals don't
	// mutate the tree mid-iteration. The submitter's own resting orders
	// are skipped.
	var asks []BookEntry
	book.WalkAsks(func(entry BookEntry) bool {
		if order.Type == domain.OrderTypeLimit && entry.Price.Cmp(order.LimitPrice) > 0 {
			return false
		}
		if entry.Order.UserID == order.UserID {
			return true
		}
		asks = append(asks, entry)
		return true
	})
	offs := m.offerings.SellableFor(account.TradingAccountID, now)

	var trades []*domain.ShareTrade
	ai, oi := 0, 0

	for order.QuantityRemaining() > 0 {
		for ai < len(asks) && asks[ai].Order.QuantityRemaining() <= 0 {
			ai++
		}

		// Next offering the order can trade with. Offerings are sorted by
		// price ascending, so once the limit is below an offering price
		// nothing further on the primary side can match.
		var off *domain.InitialShareOffering
		for oi < len(offs) {
			cand := offs[oi]
			if cand.SharesRemaining() <= 0 {
				oi++
				continue
			}
			if order.Type == domain.OrderTypeLimit {
				if order.LimitPrice.Cmp(cand.OfferingPricePerShare) < 0 {
					oi = len(offs)
					break
				}
				if cand.HasFloor() && order.LimitPrice.Cmp(cand.FloorPricePerShare) < 0 {
					oi++
					continue
				}
			}
			off = cand
			break
		}

		haveAsk := ai < len(asks)
		if !haveAsk && off == nil {
			break
		}

		if haveAsk && (off == nil || asks[ai].Price.Cmp(off.OfferingPricePerShare) <= 0) {
			resting := asks[ai].Order
			trade, err := m.executeMatch(order, resting, account.TradingAccountID, asks[ai].Price, now)
			if err != nil {
				// The incoming buyer can't fund the next fill — stop here.
				m.log.Debug().Err(err).Str("order_id", order.OrderID).Msg("match stopped")
				break
			}
			trades = append(trades, trade)
			if resting.QuantityRemaining() == 0 {
				book.Remove(resting.OrderID)
				ai++
			}
		} else {
			trade, err := m.executeOfferingFill(order, off, now)
			if err != nil {
				m.log.Debug().Err(err).Str("order_id", order.OrderID).Msg("offering fill stopped")
				break
			}
			trades = append(trades, trade)
		}
	}
	return trades
}

// matchSell fills an incoming sell order against resting bids. A resting
// buyer whose wallet can't cover the fill is skipped and left on the book;
// matching continues with the next bid.
func (m *Matcher) matchSell(order *domain.ShareOrder, account *domain.TradingAccount, book *OrderBook, now time.Time) []*domain.ShareTrade {
	var bids []BookEntry
	book.WalkBids(func(entry BookEntry) bool {
		if order.Type == domain.OrderTypeLimit && entry.Price.Cmp(order.LimitPrice) < 0 {
			return false
		}
		if entry.Order.UserID == order.UserID {
			return true
		}
		bids = append(bids, entry)
		return true
	})

	var trades []*domain.ShareTrade
	for _, entry := range bids {
		if order.QuantityRemaining() == 0 {
			break
		}
		resting := entry.Order
		trade, err := m.executeMatch(resting, order, account.TradingAccountID, entry.Price, now)
		if err != nil {
			m.log.Debug().Err(err).
				Str("bid_order_id", resting.OrderID).
				Int64("buyer_id", resting.UserID).
				Msg("skipping unfundable bid")
			continue
		}
		trades = append(trades, trade)
		if resting.QuantityRemaining() == 0 {
			book.Remove(resting.OrderID)
		}
	}
	return trades
}

// executeMatch settles one fill between a buy order and a sell order at the
// maker's price. The trade record, both order updates, both portfolio
// updates and all wallet movements commit through a single journal: any
// failure rolls the whole fill back and leaves every store untouched.
func (m *Matcher) executeMatch(buyOrder, sellOrder *domain.ShareOrder, accountID int64, price decimal.Decimal, now time.Time) (*domain.ShareTrade, error) {
	qty := buyOrder.QuantityRemaining()
	if sellOrder.QuantityRemaining() < qty {
		qty = sellOrder.QuantityRemaining()
	}

	value := price.Mul(decimal.NewFromInt(qty))
	buyerFee := domain.RoundPrice(value.Mul(m.feeRate))
	sellerFee := domain.RoundPrice(value.Mul(m.feeRate))
	tradeID := uuid.New().String()

	jm := store.NewJournal()

	// Buyer pays value plus fee; either debit failing aborts the fill.
	_, undo, err := m.wallets.Apply(buyOrder.UserID, domain.TxSharePurchase, value, tradeID, 0,
		fmt.Sprintf("bought %d shares at %s", qty, price.StringFixed(domain.PriceScale)), now)
	if err != nil {
		jm.Rollback()
		return nil, err
	}
	jm.Record(undo)

	if buyerFee.IsPositive() {
		_, undo, err = m.wallets.Apply(buyOrder.UserID, domain.TxExchangeFee, buyerFee, tradeID, 0,
			"trading fee", now)
		if err != nil {
			jm.Rollback()
			return nil, err
		}
		jm.Record(undo)
	}

	// Seller receives the value and pays their fee out of it.
	_, undo, err = m.wallets.Apply(sellOrder.UserID, domain.TxShareSaleProceeds, value, tradeID, 0,
		fmt.Sprintf("sold %d shares at %s", qty, price.StringFixed(domain.PriceScale)), now)
	if err != nil {
		jm.Rollback()
		return nil, err
	}
	jm.Record(undo)

	if sellerFee.IsPositive() {
		_, undo, err = m.wallets.Apply(sellOrder.UserID, domain.TxExchangeFee, sellerFee, tradeID, 0,
			"trading fee", now)
		if err != nil {
			jm.Rollback()
			return nil, err
		}
		jm.Record(undo)
	}

	// Order updates.
	prevBuy := *buyOrder
	jm.Record(func() { *buyOrder = prevBuy })
	buyOrder.RecordFill(qty, price, buyerFee, now)

	prevSell := *sellOrder
	jm.Record(func() { *sellOrder = prevSell })
	sellOrder.RecordFill(qty, price, sellerFee, now)

	// Portfolio updates: shares move from the seller's escrow to the buyer.
	jm.Record(m.portfolios.ApplyBuy(buyOrder.UserID, accountID, qty, price, now))
	undoSell, err := m.portfolios.ApplySell(sellOrder.UserID, accountID, qty, now)
	if err != nil {
		jm.Rollback()
		return nil, err
	}
	jm.Record(undoSell)

	trade := &domain.ShareTrade{
		TradeID:          tradeID,
		TradingAccountID: accountID,
		BuyOrderID:       buyOrder.OrderID,
		SellOrderID:      sellOrder.OrderID,
		BuyerUserID:      buyOrder.UserID,
		SellerUserID:     sellOrder.UserID,
		QuantityTraded:   qty,
		TradePrice:       price,
		BuyerFee:         buyerFee,
		SellerFee:        sellerFee,
		TradeDate:        now,
	}
	jm.Record(m.trades.Append(trade))

	jm.Commit()
	return trade, nil
}

// executeOfferingFill settles one fill between a buy order and an active
// share offering at the offering price. Primary fills charge the buyer
// only; there is no counterparty wallet.
func (m *Matcher) executeOfferingFill(order *domain.ShareOrder, off *domain.InitialShareOffering, now time.Time) (*domain.ShareTrade, error) {
	qty := order.QuantityRemaining()
	if off.SharesRemaining() < qty {
		qty = off.SharesRemaining()
	}

	price := off.OfferingPricePerShare
	value := price.Mul(decimal.NewFromInt(qty))
	buyerFee := domain.RoundPrice(value.Mul(m.feeRate))
	tradeID := uuid.New().String()

	jm := store.NewJournal()

	_, undo, err := m.wallets.Apply(order.UserID, domain.TxSharePurchase, value, tradeID, 0,
		fmt.Sprintf("bought %d offering shares at %s", qty, price.StringFixed(domain.PriceScale)), now)
	if err != nil {
		jm.Rollback()
		return nil, err
	}
	jm.Record(undo)

	if buyerFee.IsPositive() {
		_, undo, err = m.wallets.Apply(order.UserID, domain.TxExchangeFee, buyerFee, tradeID, 0,
			"trading fee", now)
		if err != nil {
			jm.Rollback()
			return nil, err
		}
		jm.Record(undo)
	}

	prev := *order
	jm.Record(func() { *order = prev })
	order.RecordFill(qty, price, buyerFee, now)

	jm.Record(m.portfolios.ApplyBuy(order.UserID, order.TradingAccountID, qty, price, now))
	jm.Record(m.offerings.RecordSale(off, qty, now))

	trade := &domain.ShareTrade{
		TradeID:          tradeID,
		TradingAccountID: order.TradingAccountID,
		BuyOrderID:       order.OrderID,
		OfferingID:       off.OfferingID,
		BuyerUserID:      order.UserID,
		QuantityTraded:   qty,
		TradePrice:       price,
		BuyerFee:         buyerFee,
		SellerFee:        decimal.Zero,
		TradeDate:        now,
	}
	jm.Record(m.trades.Append(trade))

	jm.Commit()

	if off.Status == domain.OfferingStatusCompleted {
		m.log.Info().Int64("offering_id", off.OfferingID).Msg("offering sold out")
	}
	return trade, nil
}

// CancelOrder cancels an open or partially filled order. Only the order's
// owner (or an admin) may cancel. Escrowed shares on a sell order are
// released for the unfilled remainder.
//
// Returns ErrOrderNotFound if the order does not exist, ErrNotOrderOwner
// if the requester doesn't own it, and ErrOrderNotCancellable if the order
// is in a terminal state.
func (m *Matcher) CancelOrder(orderID string, requesterID int64, admin bool) (*domain.ShareOrder, error) {
	order, err := m.orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if !admin && order.UserID != requesterID {
		return nil, domain.ErrNotOrderOwner
	}

	m.locks.Lock(order.TradingAccountID)
	defer m.locks.Release(order.TradingAccountID)

	book := m.books.GetOrCreate(order.TradingAccountID)
	book.Lock()
	defer book.Unlock()

	// Re-check status under lock (another goroutine may have filled it).
	switch order.Status {
	case domain.OrderStatusOpen, domain.OrderStatusPartiallyFilled:
		// Still cancellable.
	default:
		return nil, domain.ErrOrderNotCancellable
	}

	book.Remove(order.OrderID)

	now := time.Now().UTC()
	if order.Side == domain.OrderSideSell && order.QuantityRemaining() > 0 {
		m.portfolios.ReleaseHeld(order.UserID, order.TradingAccountID, order.QuantityRemaining(), now)
	}
	order.Status = domain.OrderStatusCancelled
	order.UpdatedAt = now

	m.log.Info().
		Str("order_id", order.OrderID).
		Int64("user_id", order.UserID).
		Bool("admin", admin).
		Msg("order cancelled")

	return order, nil
}
