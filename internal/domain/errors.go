package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrAccountNotFound        = errors.New("trading_account_not_found")
	ErrAccountInactive        = errors.New("trading_account_inactive")
	ErrOrderNotFound          = errors.New("order_not_found")
	ErrOrderNotCancellable    = errors.New("order_not_cancellable")
	ErrNotOrderOwner          = errors.New("not_order_owner")
	ErrInsufficientShares     = errors.New("insufficient_shares")
	ErrInsufficientFunds      = errors.New("insufficient_funds")
	ErrInvalidPrice           = errors.New("invalid_price")
	ErrOfferingNotFound       = errors.New("offering_not_found")
	ErrOfferingNotCancellable = errors.New("offering_not_cancellable")
	ErrSnapshotExists         = errors.New("snapshot_already_exists")
	ErrSnapshotNotFound       = errors.New("snapshot_not_found")
	ErrWalletNotFound         = errors.New("wallet_not_found")
	ErrPortfolioNotFound      = errors.New("portfolio_not_found")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
