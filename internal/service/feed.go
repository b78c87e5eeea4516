package service

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/quantumbands/exchange/internal/domain"
	"github.com/quantumbands/exchange/internal/engine"
	"github.com/quantumbands/exchange/internal/store"
)

// ClosedTradeInput is one realized-P&L record pushed by the market-data
// feed.
type ClosedTradeInput struct {
	Symbol        string
	RealizedPAndL decimal.Decimal
	CloseTime     time.Time
}

// PositionInput is one open-position record pushed by the market-data feed.
type PositionInput struct {
	Symbol        string
	FloatingPAndL decimal.Decimal
}

// FeedService ingests the external market-data feed that settlement
// consumes as realized/unrealized P&L inputs.
type FeedService struct {
	locks    *engine.AccountLocks
	accounts *store.AccountStore
	feed     *store.FeedStore
	log      zerolog.Logger
}

// NewFeedService creates a new FeedService with the given dependencies.
func NewFeedService(locks *engine.AccountLocks, accounts *store.AccountStore, feed *store.FeedStore, log zerolog.Logger) *FeedService {
	return &FeedService{
		locks:    locks,
		accounts: accounts,
		feed:     feed,
		log:      log,
	}
}

// IngestClosedTrades records the account's newly closed trades for the
// next settlement pass.
func (s *FeedService) IngestClosedTrades(accountID int64, inputs []ClosedTradeInput) ([]*domain.ClosedTrade, error) {
	if _, err := s.accounts.Get(accountID); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, &domain.ValidationError{
			Message: "at least one closed trade is required",
		}
	}

	now := time.Now().UTC()
	out := make([]*domain.ClosedTrade, 0, len(inputs))
	for _, in := range inputs {
		closeTime := in.CloseTime
		if closeTime.IsZero() {
			closeTime = now
		}
		out = append(out, s.feed.AddClosedTrade(&domain.ClosedTrade{
			TradingAccountID: accountID,
			Symbol:           in.Symbol,
			RealizedPAndL:    in.RealizedPAndL,
			CloseTime:        closeTime,
		}))
	}

	s.log.Debug().
		Int64("account_id", accountID).
		Int("count", len(out)).
		Msg("closed trades ingested")

	return out, nil
}

// ReplacePositions replaces the account's open-position set. The floating
// P&L of these positions is the unrealized input of the next snapshot.
func (s *FeedService) ReplacePositions(accountID int64, inputs []PositionInput) error {
	if _, err := s.accounts.Get(accountID); err != nil {
		return err
	}

	now := time.Now().UTC()
	positions := make([]*domain.OpenPosition, 0, len(inputs))
	for _, in := range inputs {
		positions = append(positions, &domain.OpenPosition{
			TradingAccountID: accountID,
			Symbol:           in.Symbol,
			FloatingPAndL:    in.FloatingPAndL,
			UpdatedAt:        now,
		})
	}
	s.feed.ReplacePositions(accountID, positions)

	s.log.Debug().
		Int64("account_id", accountID).
		Int("count", len(positions)).
		Msg("open positions replaced")

	return nil
}

// UpdateEquity applies the feed's live equity figure to the account's NAV
// between snapshots. Held under the account lock so it never interleaves
// with matching or settlement.
func (s *FeedService) UpdateEquity(accountID int64, equity decimal.Decimal) (*domain.TradingAccount, error) {
	account, err := s.accounts.Get(accountID)
	if err != nil {
		return nil, err
	}
	if equity.IsNegative() {
		return nil, &domain.ValidationError{
			Message: "equity must not be negative",
		}
	}

	s.locks.Lock(accountID)
	defer s.locks.Release(accountID)

	account.CurrentNAV = equity
	account.UpdatedAt = time.Now().UTC()

	s.log.Debug().
		Int64("account_id", accountID).
		Str("equity", equity.StringFixed(domain.MoneyScale)).
		Msg("equity updated")

	return account, nil
}
