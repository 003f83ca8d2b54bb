// services/backfill.go
package services

import (
	"context"
	"errors"
	"fmt"

	"roi-distribution-system/models"

	"go.uber.org/zap"
)

// RunBackfill credits every missed UTC day of every active deposit, one
// day per transaction. Days that already carry a SELF record are skipped.
// The first failing day of a deposit stops that deposit so its marker
// never moves past a gap. Like RunDaily, a started backfill ignores
// cancellation of ctx.
func (s *DistributionService) RunBackfill(ctx context.Context, actorID string) (*RunSummary, error) {
	ctx = context.WithoutCancel(ctx)
	started := s.Clock.Now().UTC()
	summary := newRunSummary(models.AuditBackfillDistribution, started)

	deposits, err := s.activeDeposits(ctx, "")
	if err != nil {
		s.Log.Error("[Backfill] failed to load active deposits", zap.Error(err))
		s.recordFailedRun(ctx, models.AuditBackfillDistribution, started, actorID, err)
		return nil, fmt.Errorf("%w: %v", ErrEnumerationFailed, err)
	}

	for i := range deposits {
		d := &deposits[i]
		anchor, missed := DaysMissed(d, started)
		if missed == 0 {
			continue
		}
		s.Log.Info("[Backfill] deposit behind",
			zap.String("deposit_id", d.ID), zap.Int("days", missed))

		for day := 1; day <= missed; day++ {
			target := anchor.AddDate(0, 0, day)

			done, err := s.selfRecordExists(ctx, d.ID, DayKey(target))
			if err != nil {
				summary.Errors = append(summary.Errors, models.RunError{DepositID: d.ID, Day: DayKey(target), Error: err.Error()})
				break
			}
			if done {
				summary.Skipped++
				continue
			}

			res, err := s.DistributeDeposit(ctx, d, target)
			if errors.Is(err, ErrAlreadyDistributed) {
				summary.Skipped++
				continue
			}
			if err != nil {
				s.Log.Error("[Backfill] day failed",
					zap.String("deposit_id", d.ID),
					zap.String("day", DayKey(target)),
					zap.Error(err))
				summary.Errors = append(summary.Errors, models.RunError{DepositID: d.ID, Day: DayKey(target), Error: err.Error()})
				break
			}
			summary.addResult(res)
		}
	}

	s.finishRun(ctx, summary, actorID)

	s.Log.Info("[Backfill] finished",
		zap.String("run_id", summary.RunID),
		zap.String("status", string(summary.Status)),
		zap.Int("processed", summary.Processed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errors", len(summary.Errors)))
	return summary, nil
}

func (s *DistributionService) selfRecordExists(ctx context.Context, depositID, day string) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.ROIRecord{}).
		Where("deposit_id = ? AND type = ? AND credit_day = ?", depositID, models.ROITypeSelf, day).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check day %s of deposit %s: %w", day, depositID, err)
	}
	return count > 0, nil
}
