package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/quantumbands/exchange/internal/store"
)

// OfferingExpiry periodically sweeps active share offerings and expires
// those whose end date has passed. Matching already refuses to fill an
// offering past its end date, so the sweep only settles the status record;
// a missed tick never sells expired shares.
type OfferingExpiry struct {
	interval  time.Duration
	offerings *store.OfferingStore
	log       zerolog.Logger
}

// NewOfferingExpiry creates a new OfferingExpiry sweeper.
func NewOfferingExpiry(interval time.Duration, offerings *store.OfferingStore, log zerolog.Logger) *OfferingExpiry {
	return &OfferingExpiry{
		interval:  interval,
		offerings: offerings,
		log:       log,
	}
}

// Start launches a background goroutine that ticks at the configured
// interval and expires due offerings. It stops when ctx is cancelled.
func (e *OfferingExpiry) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				e.tick(t.UTC())
			}
		}
	}()
}

// tick expires every active offering whose end date is at or before now.
func (e *OfferingExpiry) tick(now time.Time) {
	for _, off := range e.offerings.ExpireDue(now) {
		e.log.Info().
			Int64("offering_id", off.OfferingID).
			Int64("account_id", off.TradingAccountID).
			Int64("shares_unsold", off.SharesRemaining()).
			Msg("offering expired")
	}
}
