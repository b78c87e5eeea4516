package store

import (
	"sync"
	"time"

	"github.com/quantumbands/exchange/internal/domain"
	"github.com/shopspring/decimal"
)

// WalletStore is the append-only wallet ledger. Every balance change goes
// through Apply, which enforces balanceAfter = balanceBefore + signedAmount
// and assigns a monotonically increasing transaction id, so the running
// balance sequence per wallet has no gaps and no out-of-order entries.
type WalletStore struct {
	mu      sync.Mutex
	seq     int64
	wallets map[int64]*domain.Wallet
	txs     map[int64][]*domain.WalletTransaction // wallet id → ledger
}

// NewWalletStore creates an empty WalletStore.
func NewWalletStore() *WalletStore {
	return &WalletStore{
		wallets: make(map[int64]*domain.Wallet),
		txs:     make(map[int64][]*domain.WalletTransaction),
	}
}

// CreateWallet registers a wallet for the user. An opening balance, if
// positive, is recorded as a deposit transaction so the ledger accounts for
// every unit of the balance.
func (s *WalletStore) CreateWallet(userID int64, openingBalance decimal.Decimal, at time.Time) *domain.Wallet {
	s.mu.Lock()
	w, ok := s.wallets[userID]
	if !ok {
		w = &domain.Wallet{
			UserID:       userID,
			Balance:      decimal.Zero,
			CurrencyCode: "USD",
			UpdatedAt:    at,
		}
		s.wallets[userID] = w
	}
	s.mu.Unlock()

	if openingBalance.IsPositive() {
		_, _, _ = s.Apply(userID, domain.TxDeposit, openingBalance, "OPENING", 0, "Opening balance", at)
	}
	return w
}

// Get retrieves a wallet by user id. It returns domain.ErrWalletNotFound if
// the wallet does not exist.
func (s *WalletStore) Get(userID int64) (*domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[userID]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	return w, nil
}

// Apply appends one ledger entry. amount must be non-negative; the entry's
// sign comes from the transaction type. Debits that would push the balance
// below zero fail with domain.ErrInsufficientFunds and leave the ledger
// untouched. Returns the created transaction and an undo for the caller's
// journal.
func (s *WalletStore) Apply(walletID int64, txType domain.TransactionType, amount decimal.Decimal, refID string, relatedID int64, description string, at time.Time) (*domain.WalletTransaction, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[walletID]
	if !ok {
		return nil, nil, domain.ErrWalletNotFound
	}
	if amount.IsNegative() {
		return nil, nil, domain.ErrInvalidPrice
	}

	signed := amount
	if txType.Sign() < 0 {
		signed = amount.Neg()
	}
	after := w.Balance.Add(signed)
	if after.IsNegative() {
		return nil, nil, domain.ErrInsufficientFunds
	}

	s.seq++
	tx := &domain.WalletTransaction{
		TransactionID:        s.seq,
		WalletID:             walletID,
		Type:                 txType,
		Amount:               amount,
		BalanceBefore:        w.Balance,
		BalanceAfter:         after,
		ReferenceID:          refID,
		Description:          description,
		Status:               "completed",
		RelatedTransactionID: relatedID,
		TransactionDate:      at,
	}
	s.txs[walletID] = append(s.txs[walletID], tx)
	w.Balance = after
	w.UpdatedAt = at

	undo := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		ledger := s.txs[walletID]
		if n := len(ledger); n > 0 && ledger[n-1] == tx {
			s.txs[walletID] = ledger[:n-1]
			w.Balance = tx.BalanceBefore
		}
	}
	return tx, undo, nil
}

// Transactions returns a copy of the wallet's ledger in append order.
func (s *WalletStore) Transactions(walletID int64) []*domain.WalletTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	ledger := s.txs[walletID]
	out := make([]*domain.WalletTransaction, len(ledger))
	copy(out, ledger)
	return out
}
