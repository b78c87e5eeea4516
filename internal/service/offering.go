package service

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/quantumbands/exchange/internal/domain"
	"github.com/quantumbands/exchange/internal/engine"
	"github.com/quantumbands/exchange/internal/store"
)

// CreateOfferingRequest represents the admin input for opening an initial
// share offering.
type CreateOfferingRequest struct {
	TradingAccountID      int64
	AdminUserID           int64
	SharesOffered         int64
	OfferingPricePerShare decimal.Decimal
	FloorPricePerShare    decimal.Decimal // zero when unset
	CeilingPricePerShare  decimal.Decimal // zero when unset
	OfferingStartDate     time.Time       // zero means immediately
	OfferingEndDate       time.Time       // zero means open-ended
}

// OfferingService handles the admin lifecycle of initial share offerings.
type OfferingService struct {
	locks     *engine.AccountLocks
	accounts  *store.AccountStore
	offerings *store.OfferingStore
	log       zerolog.Logger
}

// NewOfferingService creates a new OfferingService with the given
// dependencies.
func NewOfferingService(
	locks *engine.AccountLocks,
	accounts *store.AccountStore,
	offerings *store.OfferingStore,
	log zerolog.Logger,
) *OfferingService {
	return &OfferingService{
		locks:     locks,
		accounts:  accounts,
		offerings: offerings,
		log:       log,
	}
}

// CreateOffering validates and opens an offering. The offered shares are
// issued into the offering, so the account's total issued shares grow by
// SharesOffered; share conservation holds because unsold offering shares
// count against the total.
func (s *OfferingService) CreateOffering(req CreateOfferingRequest) (*domain.InitialShareOffering, error) {
	if req.SharesOffered <= 0 {
		return nil, &domain.ValidationError{
			Message: "shares_offered must be a positive integer",
		}
	}
	if !req.OfferingPricePerShare.IsPositive() {
		return nil, domain.ErrInvalidPrice
	}
	if req.FloorPricePerShare.IsNegative() || req.CeilingPricePerShare.IsNegative() {
		return nil, domain.ErrInvalidPrice
	}
	if !req.FloorPricePerShare.IsZero() && req.FloorPricePerShare.Cmp(req.OfferingPricePerShare) > 0 {
		return nil, &domain.ValidationError{
			Message: "floor_price_per_share must not exceed offering_price_per_share",
		}
	}
	if !req.CeilingPricePerShare.IsZero() && req.CeilingPricePerShare.Cmp(req.OfferingPricePerShare) < 0 {
		return nil, &domain.ValidationError{
			Message: "ceiling_price_per_share must not be below offering_price_per_share",
		}
	}
	if !req.OfferingEndDate.IsZero() && !req.OfferingStartDate.IsZero() && !req.OfferingEndDate.After(req.OfferingStartDate) {
		return nil, &domain.ValidationError{
			Message: "offering_end_date must be after offering_start_date",
		}
	}

	account, err := s.accounts.Get(req.TradingAccountID)
	if err != nil {
		return nil, err
	}
	if !account.IsActive {
		return nil, domain.ErrAccountInactive
	}

	s.locks.Lock(account.TradingAccountID)
	defer s.locks.Release(account.TradingAccountID)

	now := time.Now().UTC()
	start := req.OfferingStartDate
	if start.IsZero() {
		start = now
	}

	offering := &domain.InitialShareOffering{
		TradingAccountID:      req.TradingAccountID,
		AdminUserID:           req.AdminUserID,
		SharesOffered:         req.SharesOffered,
		OfferingPricePerShare: req.OfferingPricePerShare,
		FloorPricePerShare:    req.FloorPricePerShare,
		CeilingPricePerShare:  req.CeilingPricePerShare,
		OfferingStartDate:     start,
		OfferingEndDate:       req.OfferingEndDate,
		Status:                domain.OfferingStatusActive,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	s.offerings.Create(offering)

	account.TotalSharesIssued += req.SharesOffered
	account.UpdatedAt = now

	s.log.Info().
		Int64("offering_id", offering.OfferingID).
		Int64("account_id", offering.TradingAccountID).
		Int64("shares_offered", offering.SharesOffered).
		Str("price", offering.OfferingPricePerShare.StringFixed(domain.PriceScale)).
		Msg("offering created")

	return offering, nil
}

// CancelOffering transitions an active offering to cancelled. Shares
// already sold are unaffected; the unsold remainder simply stops supplying
// liquidity.
func (s *OfferingService) CancelOffering(offeringID, adminUserID int64) (*domain.InitialShareOffering, error) {
	offering, err := s.offerings.Get(offeringID)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(offering.TradingAccountID)
	defer s.locks.Release(offering.TradingAccountID)

	switch offering.Status {
	case domain.OfferingStatusActive, domain.OfferingStatusPending:
		// Cancellable.
	default:
		return nil, domain.ErrOfferingNotCancellable
	}

	offering.Status = domain.OfferingStatusCancelled
	offering.UpdatedAt = time.Now().UTC()

	s.log.Info().
		Int64("offering_id", offering.OfferingID).
		Int64("admin_user_id", adminUserID).
		Int64("shares_unsold", offering.SharesRemaining()).
		Msg("offering cancelled")

	return offering, nil
}
