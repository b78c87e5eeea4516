package service

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/quantumbands/exchange/internal/domain"
	"github.com/quantumbands/exchange/internal/metrics"
	"github.com/quantumbands/exchange/internal/settlement"
	"github.com/quantumbands/exchange/internal/store"
)

// Audit bounds from the manual trigger contract.
const (
	reasonMinLen     = 10
	reasonMaxLen     = 500
	adminNotesMaxLen = 1000
)

// SnapshotTriggerRequest is the manual settlement trigger input. The
// scheduled daily run uses the same path with a fixed reason.
type SnapshotTriggerRequest struct {
	TargetDate        string // YYYY-MM-DD, must not be in the future
	TradingAccountIDs []int64
	ForceRecalculate  bool
	Reason            string // mandatory audit trail, 10–500 chars
	AdminNotes        string // optional, <= 1000 chars
}

// RecalculateRequest asks for one (account, date) snapshot to be reversed
// and recomputed.
type RecalculateRequest struct {
	TradingAccountID int64
	Date             string
	Reason           string
	AdminNotes       string
}

// SettlementService validates settlement triggers and delegates to the
// settlement engine.
type SettlementService struct {
	engine    *settlement.Engine
	snapshots *store.SnapshotStore
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// NewSettlementService creates a new SettlementService with the given
// dependencies.
func NewSettlementService(engine *settlement.Engine, snapshots *store.SnapshotStore, m *metrics.Metrics, log zerolog.Logger) *SettlementService {
	return &SettlementService{
		engine:    engine,
		snapshots: snapshots,
		metrics:   m,
		log:       log,
	}
}

func validateAudit(reason, notes string) error {
	// Bounds count characters, not bytes, so multibyte reasons measure
	// the same as ASCII ones.
	if n := utf8.RuneCountInString(reason); n < reasonMinLen || n > reasonMaxLen {
		return &domain.ValidationError{
			Message: "reason is required and must be between 10 and 500 characters",
		}
	}
	if utf8.RuneCountInString(notes) > adminNotesMaxLen {
		return &domain.ValidationError{
			Message: "admin_notes must not exceed 1000 characters",
		}
	}
	return nil
}

func validateTargetDate(date string) error {
	parsed, err := time.Parse(domain.DateFormat, date)
	if err != nil {
		return &domain.ValidationError{
			Message: "target_date must be a YYYY-MM-DD date",
		}
	}
	today := time.Now().UTC().Truncate(24 * time.Hour)
	if parsed.After(today) {
		return &domain.ValidationError{
			Message: "target_date must not be in the future",
		}
	}
	return nil
}

// TriggerSnapshots validates the request, records the audit reason, and
// runs the settlement batch.
func (s *SettlementService) TriggerSnapshots(ctx context.Context, req SnapshotTriggerRequest) (*settlement.Summary, error) {
	if err := validateAudit(req.Reason, req.AdminNotes); err != nil {
		return nil, err
	}
	if err := validateTargetDate(req.TargetDate); err != nil {
		return nil, err
	}
	for _, id := range req.TradingAccountIDs {
		if id <= 0 {
			return nil, &domain.ValidationError{
				Message: "trading_account_ids must be positive integers",
			}
		}
	}

	s.log.Info().
		Str("target_date", req.TargetDate).
		Ints64("account_ids", req.TradingAccountIDs).
		Bool("force", req.ForceRecalculate).
		Str("reason", req.Reason).
		Str("admin_notes", req.AdminNotes).
		Msg("settlement triggered")

	summary, err := s.engine.CreateDailySnapshots(ctx, req.TargetDate, req.TradingAccountIDs, req.ForceRecalculate)
	if err != nil {
		return nil, err
	}

	s.metrics.SnapshotRuns.WithLabelValues("success").Add(float64(summary.AccountsProcessed))
	s.metrics.SnapshotRuns.WithLabelValues("skipped").Add(float64(summary.AccountsSkipped))
	s.metrics.SnapshotRuns.WithLabelValues("failed").Add(float64(summary.AccountsFailed))

	return summary, nil
}

// Recalculate reverses and recomputes one account's snapshot for a date.
func (s *SettlementService) Recalculate(ctx context.Context, req RecalculateRequest) (*settlement.RecalculationResult, error) {
	if err := validateAudit(req.Reason, req.AdminNotes); err != nil {
		return nil, err
	}
	if err := validateTargetDate(req.Date); err != nil {
		return nil, err
	}
	if req.TradingAccountID <= 0 {
		return nil, &domain.ValidationError{
			Message: "trading_account_id must be a positive integer",
		}
	}

	s.log.Info().
		Int64("account_id", req.TradingAccountID).
		Str("date", req.Date).
		Str("reason", req.Reason).
		Msg("recalculation triggered")

	return s.engine.Recalculate(ctx, req.TradingAccountID, req.Date)
}

// Status reports per-account settlement state for a date.
func (s *SettlementService) Status(date string, accountIDs []int64) (*settlement.StatusReport, error) {
	if err := validateTargetDate(date); err != nil {
		return nil, err
	}
	return s.engine.SnapshotStatus(date, accountIDs)
}

// History returns every snapshot recorded for an account, oldest first,
// superseded rows included.
func (s *SettlementService) History(accountID int64) ([]*domain.TradingAccountSnapshot, error) {
	if accountID <= 0 {
		return nil, &domain.ValidationError{
			Message: "trading_account_id must be a positive integer",
		}
	}
	return s.snapshots.History(accountID), nil
}
