// services/batch.go
package services

import (
	"context"
	"errors"
	"fmt"

	"roi-distribution-system/models"

	"go.uber.org/zap"
)

// DailyRunOptions narrows a daily run. An empty UserID runs every
// active deposit.
type DailyRunOptions struct {
	UserID  string
	ActorID string
}

// RunDaily credits every active deposit not yet credited today. One
// failing deposit is recorded in the summary and does not stop the run.
// A started run ignores cancellation of ctx and always writes its audit entry.
// opts.UserID may be an internal or external user id.
func (s *DistributionService) RunDaily(ctx context.Context, opts DailyRunOptions) (*RunSummary, error) {
	ctx = context.WithoutCancel(ctx)
	started := s.Clock.Now().UTC()
	summary := newRunSummary(models.AuditDailyDistribution, started)

	scope := ""
	if opts.UserID != "" {
		var user models.User
		if err := findUser(s.DB.WithContext(ctx), opts.UserID, &user); err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return nil, err
			}
			s.Log.Error("[Distribution] failed to resolve run scope", zap.Error(err))
			s.recordFailedRun(ctx, models.AuditDailyDistribution, started, opts.ActorID, err)
			return nil, fmt.Errorf("%w: %v", ErrEnumerationFailed, err)
		}
		scope = user.ID
	}

	deposits, err := s.activeDeposits(ctx, scope)
	if err != nil {
		s.Log.Error("[Distribution] failed to load active deposits", zap.Error(err))
		s.recordFailedRun(ctx, models.AuditDailyDistribution, started, opts.ActorID, err)
		return nil, fmt.Errorf("%w: %v", ErrEnumerationFailed, err)
	}

	eligible := make([]*models.Deposit, 0, len(deposits))
	for i := range deposits {
		if IsEligible(&deposits[i], started) {
			eligible = append(eligible, &deposits[i])
		} else {
			summary.Skipped++
		}
	}

	s.Log.Info("[Distribution] daily run started",
		zap.Int("active", len(deposits)),
		zap.Int("eligible", len(eligible)),
		zap.String("user_id", opts.UserID))

	for _, d := range eligible {
		res, err := s.DistributeDeposit(ctx, d, started)
		switch {
		case errors.Is(err, ErrAlreadyDistributed):
			summary.Skipped++
		case err != nil:
			s.Log.Error("[Distribution] deposit failed",
				zap.String("deposit_id", d.ID), zap.Error(err))
			summary.Errors = append(summary.Errors, models.RunError{DepositID: d.ID, Error: err.Error()})
		default:
			summary.addResult(res)
		}
	}

	s.finishRun(ctx, summary, opts.ActorID)

	s.Log.Info("[Distribution] daily run finished",
		zap.String("run_id", summary.RunID),
		zap.String("status", string(summary.Status)),
		zap.Int("processed", summary.Processed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errors", len(summary.Errors)),
		zap.String("self_total", summary.TotalSelfAmount.String()),
		zap.String("referral_total", summary.TotalReferralAmount.String()),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}

func (s *DistributionService) activeDeposits(ctx context.Context, userID string) ([]models.Deposit, error) {
	q := s.DB.WithContext(ctx).
		Preload("User").
		Preload("Package").
		Where("status = ?", models.DepositStatusActive)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}

	var deposits []models.Deposit
	if err := q.Order("created_at ASC").Order("id ASC").Find(&deposits).Error; err != nil {
		return nil, err
	}
	return deposits, nil
}
