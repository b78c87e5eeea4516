package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/quantumbands/exchange/internal/domain"
	"github.com/quantumbands/exchange/internal/service"
)

// SettlementJob runs the daily snapshot pass for the previous calendar
// day, the same path an operator's manual trigger takes.
type SettlementJob struct {
	svc *service.SettlementService
}

// NewSettlementJob creates a SettlementJob.
func NewSettlementJob(svc *service.SettlementService) *SettlementJob {
	return &SettlementJob{svc: svc}
}

// Name implements Job.
func (j *SettlementJob) Name() string {
	return "daily_settlement"
}

// Run settles every active account for yesterday (UTC).
func (j *SettlementJob) Run(ctx context.Context) error {
	date := time.Now().UTC().AddDate(0, 0, -1).Format(domain.DateFormat)
	_, err := j.svc.TriggerSnapshots(ctx, service.SnapshotTriggerRequest{
		TargetDate: date,
		Reason:     fmt.Sprintf("scheduled daily settlement run for %s", date),
	})
	return err
}
