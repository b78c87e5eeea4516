package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantumbands/exchange/internal/domain"
	"github.com/quantumbands/exchange/internal/engine"
	"github.com/quantumbands/exchange/internal/store"
)

// BookLevel represents an aggregated price level in the book response.
type BookLevel struct {
	Price         decimal.Decimal
	TotalQuantity int64
	OrderCount    int
}

// BookResponse represents the order book query for one trading account.
type BookResponse struct {
	TradingAccountID int64
	Bids             []BookLevel
	Asks             []BookLevel
	Spread           *decimal.Decimal // nil if either side empty
	SnapshotAt       time.Time
}

// OfferingInfo summarizes one active offering in the market data response.
type OfferingInfo struct {
	OfferingID            int64
	OfferingPricePerShare decimal.Decimal
	SharesRemaining       int64
	OfferingEndDate       *time.Time // nil when open-ended
}

// MarketDataEntry aggregates the tradable state of one account.
type MarketDataEntry struct {
	TradingAccountID  int64
	AccountName       string
	SharePrice        decimal.Decimal
	TotalSharesIssued int64
	BestBid           *decimal.Decimal // nil when side empty
	BestAsk           *decimal.Decimal
	LastTradePrice    *decimal.Decimal // nil when no trades ever
	ActiveOfferings   []OfferingInfo
}

// PortfolioHolding is one user position valued at the current share price.
type PortfolioHolding struct {
	TradingAccountID  int64
	AccountName       string
	Quantity          int64
	HeldQuantity      int64
	AverageBuyPrice   decimal.Decimal
	CurrentSharePrice decimal.Decimal
	CurrentValue      decimal.Decimal
	UnrealizedPAndL   decimal.Decimal
}

// PortfolioResponse lists a user's holdings with their total value.
type PortfolioResponse struct {
	UserID     int64
	Holdings   []PortfolioHolding
	TotalValue decimal.Decimal
}

// WalletResponse returns a user's balance and transaction history.
type WalletResponse struct {
	UserID       int64
	Balance      decimal.Decimal
	CurrencyCode string
	Transactions []*domain.WalletTransaction
}

// MarketService handles book, market-data, portfolio and wallet queries.
type MarketService struct {
	books      *engine.BookManager
	accounts   *store.AccountStore
	trades     *store.TradeStore
	portfolios *store.PortfolioStore
	offerings  *store.OfferingStore
	wallets    *store.WalletStore
}

// NewMarketService creates a new MarketService with the given dependencies.
func NewMarketService(
	books *engine.BookManager,
	accounts *store.AccountStore,
	trades *store.TradeStore,
	portfolios *store.PortfolioStore,
	offerings *store.OfferingStore,
	wallets *store.WalletStore,
) *MarketService {
	return &MarketService{
		books:      books,
		accounts:   accounts,
		trades:     trades,
		portfolios: portfolios,
		offerings:  offerings,
		wallets:    wallets,
	}
}

// Book returns the top-depth aggregated price levels for one account's
// book. Depth defaults to 10 and is bounded 1–20.
func (s *MarketService) Book(accountID int64, depth int) (*BookResponse, error) {
	if _, err := s.accounts.Get(accountID); err != nil {
		return nil, err
	}
	if depth == 0 {
		depth = 10
	}
	if depth < 1 || depth > 20 {
		return nil, &domain.ValidationError{
			Message: "depth must be between 1 and 20",
		}
	}

	book := s.books.GetOrCreate(accountID)
	book.RLock()
	defer book.RUnlock()

	resp := &BookResponse{
		TradingAccountID: accountID,
		Bids:             make([]BookLevel, 0, depth),
		Asks:             make([]BookLevel, 0, depth),
		SnapshotAt:       time.Now().UTC(),
	}
	for _, lvl := range book.TopBids(depth) {
		resp.Bids = append(resp.Bids, BookLevel{Price: lvl.Price, TotalQuantity: lvl.TotalQuantity, OrderCount: lvl.OrderCount})
	}
	for _, lvl := range book.TopAsks(depth) {
		resp.Asks = append(resp.Asks, BookLevel{Price: lvl.Price, TotalQuantity: lvl.TotalQuantity, OrderCount: lvl.OrderCount})
	}
	if len(resp.Bids) > 0 && len(resp.Asks) > 0 {
		spread := resp.Asks[0].Price.Sub(resp.Bids[0].Price)
		resp.Spread = &spread
	}
	return resp, nil
}

// MarketData returns share price, best quotes, last trade price and active
// offerings for every active trading account.
func (s *MarketService) MarketData() []MarketDataEntry {
	now := time.Now().UTC()
	accounts := s.accounts.ListActive()
	entries := make([]MarketDataEntry, 0, len(accounts))

	for _, account := range accounts {
		entry := MarketDataEntry{
			TradingAccountID:  account.TradingAccountID,
			AccountName:       account.AccountName,
			SharePrice:        account.SharePrice(),
			TotalSharesIssued: account.TotalSharesIssued,
			ActiveOfferings:   make([]OfferingInfo, 0),
		}

		book := s.books.GetOrCreate(account.TradingAccountID)
		book.RLock()
		if bid, ok := book.BestBid(); ok {
			price := bid.Price
			entry.BestBid = &price
		}
		if ask, ok := book.BestAsk(); ok {
			price := ask.Price
			entry.BestAsk = &price
		}
		book.RUnlock()

		if last, ok := s.trades.LastPrice(account.TradingAccountID); ok {
			entry.LastTradePrice = &last
		}

		for _, off := range s.offerings.SellableFor(account.TradingAccountID, now) {
			info := OfferingInfo{
				OfferingID:            off.OfferingID,
				OfferingPricePerShare: off.OfferingPricePerShare,
				SharesRemaining:       off.SharesRemaining(),
			}
			if !off.OfferingEndDate.IsZero() {
				end := off.OfferingEndDate
				info.OfferingEndDate = &end
			}
			entry.ActiveOfferings = append(entry.ActiveOfferings, info)
		}

		entries = append(entries, entry)
	}
	return entries
}

// Portfolio returns the user's holdings marked to the current share price,
// with unrealized P&L against the average buy price.
func (s *MarketService) Portfolio(userID int64) (*PortfolioResponse, error) {
	if userID <= 0 {
		return nil, &domain.ValidationError{
			Message: "user_id must be a positive integer",
		}
	}

	resp := &PortfolioResponse{
		UserID:     userID,
		Holdings:   make([]PortfolioHolding, 0),
		TotalValue: decimal.Zero,
	}

	for _, p := range s.portfolios.ByUser(userID) {
		holding := PortfolioHolding{
			TradingAccountID: p.TradingAccountID,
			Quantity:         p.Quantity,
			HeldQuantity:     p.HeldQuantity,
			AverageBuyPrice:  p.AverageBuyPrice,
		}
		if account, err := s.accounts.Get(p.TradingAccountID); err == nil {
			holding.AccountName = account.AccountName
			holding.CurrentSharePrice = account.SharePrice()
		}
		qty := decimal.NewFromInt(p.Quantity)
		holding.CurrentValue = domain.RoundMoney(holding.CurrentSharePrice.Mul(qty))
		holding.UnrealizedPAndL = domain.RoundMoney(holding.CurrentSharePrice.Sub(p.AverageBuyPrice).Mul(qty))

		resp.Holdings = append(resp.Holdings, holding)
		resp.TotalValue = resp.TotalValue.Add(holding.CurrentValue)
	}
	return resp, nil
}

// Wallet returns the user's balance and full transaction history, newest
// last.
func (s *MarketService) Wallet(userID int64) (*WalletResponse, error) {
	wallet, err := s.wallets.Get(userID)
	if err != nil {
		return nil, err
	}
	return &WalletResponse{
		UserID:       wallet.UserID,
		Balance:      wallet.Balance,
		CurrencyCode: wallet.CurrencyCode,
		Transactions: s.wallets.Transactions(wallet.UserID),
	}, nil
}
