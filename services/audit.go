// services/audit.go
package services

import (
	"context"
	"fmt"
	"time"

	"roi-distribution-system/models"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
	archiveTimeout   = 30 * time.Second
)

// RunSummary is the outcome of one daily or backfill pass.
type RunSummary struct {
	RunID               string             `json:"run_id"`
	Action              models.AuditAction `json:"action"`
	Status              models.AuditStatus `json:"status"`
	Processed           int                `json:"processed"`
	Skipped             int                `json:"skipped"`
	TotalSelfAmount     decimal.Decimal    `json:"total_self_amount"`
	TotalReferralAmount decimal.Decimal    `json:"total_referral_amount"`
	Errors              []models.RunError  `json:"errors"`
	Duration            time.Duration      `json:"-"`
	DurationMs          int64              `json:"duration_ms"`
	Timestamp           time.Time          `json:"timestamp"`
}

func newRunSummary(action models.AuditAction, started time.Time) *RunSummary {
	return &RunSummary{
		Action:              action,
		TotalSelfAmount:     decimal.Zero,
		TotalReferralAmount: decimal.Zero,
		Errors:              []models.RunError{},
		Timestamp:           started.UTC(),
	}
}

func (r *RunSummary) addResult(res *DistributionResult) {
	r.Processed++
	r.TotalSelfAmount = r.TotalSelfAmount.Add(res.SelfAmount)
	r.TotalReferralAmount = r.TotalReferralAmount.Add(res.ReferralAmount)
}

// ObjectStore stores run summaries outside the database.
type ObjectStore interface {
	PutJSON(ctx context.Context, key string, v any) error
}

// RunPage is one page of run history, newest first.
type RunPage struct {
	Runs   []models.AuditLog `json:"runs"`
	Total  int64             `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

func writeAudit(tx *gorm.DB, entry *models.AuditLog) error {
	if entry.Errors == nil {
		entry.Errors = []models.RunError{}
	}
	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("write %s audit entry: %w", entry.Action, err)
	}
	return nil
}

// finishRun stamps the duration and status on summary, persists it as an
// audit entry and hands it to the archive. Audit failures are logged; the
// credits the run performed are already committed.
func (s *DistributionService) finishRun(ctx context.Context, summary *RunSummary, actorID string) {
	summary.Duration = s.Clock.Since(summary.Timestamp)
	summary.DurationMs = summary.Duration.Milliseconds()
	if len(summary.Errors) == 0 {
		summary.Status = models.AuditStatusSuccess
	} else {
		summary.Status = models.AuditStatusPartial
	}

	entry := &models.AuditLog{
		Action:              summary.Action,
		Status:              summary.Status,
		ActorID:             actorID,
		Processed:           summary.Processed,
		Skipped:             summary.Skipped,
		TotalSelfAmount:     summary.TotalSelfAmount,
		TotalReferralAmount: summary.TotalReferralAmount,
		DurationMs:          summary.DurationMs,
		Errors:              summary.Errors,
		CreatedAt:           summary.Timestamp,
	}
	if err := writeAudit(s.DB.WithContext(context.WithoutCancel(ctx)), entry); err != nil {
		s.Log.Error("[Distribution] failed to write run audit", zap.Error(err))
	}
	summary.RunID = entry.ID

	s.archiveRun(summary)
}

func (s *DistributionService) recordFailedRun(ctx context.Context, action models.AuditAction, started time.Time, actorID string, cause error) {
	entry := &models.AuditLog{
		Action:              action,
		Status:              models.AuditStatusFailed,
		ActorID:             actorID,
		TotalSelfAmount:     decimal.Zero,
		TotalReferralAmount: decimal.Zero,
		DurationMs:          s.Clock.Since(started).Milliseconds(),
		Details:             map[string]any{"error": cause.Error()},
		CreatedAt:           started.UTC(),
	}
	if err := writeAudit(s.DB.WithContext(context.WithoutCancel(ctx)), entry); err != nil {
		s.Log.Error("[Distribution] failed to write failure audit", zap.Error(err))
	}
}

func (s *DistributionService) archiveRun(summary *RunSummary) {
	if s.Archive == nil || summary.RunID == "" {
		return
	}
	snapshot := *summary
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		key := RunArchiveKey(&snapshot)
		if err := s.Archive.PutJSON(ctx, key, &snapshot); err != nil {
			s.Log.Warn("[Distribution] failed to archive run summary",
				zap.String("run_id", snapshot.RunID), zap.Error(err))
			return
		}
		s.Log.Debug("[Distribution] archived run summary", zap.String("key", key))
	}()
}

// RunArchiveKey is the object key a run summary is archived under, e.g.
// distribution-runs/2026/10/19/daily_distribution-<run id>.json.
func RunArchiveKey(summary *RunSummary) string {
	return fmt.Sprintf("distribution-runs/%s/%s-%s.json",
		summary.Timestamp.UTC().Format("2006/01/02"),
		slug.Make(string(summary.Action)),
		summary.RunID)
}

// ListRuns pages through daily and backfill audit entries, newest first.
func (s *DistributionService) ListRuns(ctx context.Context, limit, offset int) (*RunPage, error) {
	if limit <= 0 {
		limit = defaultRunsLimit
	}
	if limit > maxRunsLimit {
		limit = maxRunsLimit
	}
	if offset < 0 {
		offset = 0
	}

	q := s.DB.WithContext(ctx).Model(&models.AuditLog{}).
		Where("action IN ?", []models.AuditAction{models.AuditDailyDistribution, models.AuditBackfillDistribution})

	page := &RunPage{Runs: []models.AuditLog{}, Limit: limit, Offset: offset}
	if err := q.Count(&page.Total).Error; err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&page.Runs).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return page, nil
}
