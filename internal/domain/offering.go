package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OfferingStatus represents the lifecycle state of an initial share offering.
type OfferingStatus string

const (
	OfferingStatusPending   OfferingStatus = "pending"
	OfferingStatusActive    OfferingStatus = "active"
	OfferingStatusCompleted OfferingStatus = "completed"
	OfferingStatusCancelled OfferingStatus = "cancelled"
	OfferingStatusExpired   OfferingStatus = "expired"
)

// InitialShareOffering supplies primary-market sell-side liquidity for a
// trading account at a fixed price per share. While active and unsold shares
// remain it behaves as the lowest-priority resting ask on the book.
type InitialShareOffering struct {
	OfferingID            int64
	TradingAccountID      int64
	AdminUserID           int64
	SharesOffered         int64
	SharesSold            int64           // monotonically non-decreasing, <= SharesOffered
	OfferingPricePerShare decimal.Decimal
	FloorPricePerShare    decimal.Decimal // zero when unset
	CeilingPricePerShare  decimal.Decimal // zero when unset
	OfferingStartDate     time.Time
	OfferingEndDate       time.Time       // zero when open-ended
	Status                OfferingStatus
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// SharesRemaining returns the unsold part of the offering.
func (o *InitialShareOffering) SharesRemaining() int64 {
	return o.SharesOffered - o.SharesSold
}

// Sellable reports whether the offering can supply shares at instant now:
// it must be active, have unsold shares, and be inside its validity window.
func (o *InitialShareOffering) Sellable(now time.Time) bool {
	if o.Status != OfferingStatusActive || o.SharesRemaining() <= 0 {
		return false
	}
	if now.Before(o.OfferingStartDate) {
		return false
	}
	if !o.OfferingEndDate.IsZero() && now.After(o.OfferingEndDate) {
		return false
	}
	return true
}

// HasFloor and HasCeiling report whether the optional price bounds are set.
func (o *InitialShareOffering) HasFloor() bool   { return !o.FloorPricePerShare.IsZero() }
func (o *InitialShareOffering) HasCeiling() bool { return !o.CeilingPricePerShare.IsZero() }
