// models/audit_log.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AuditAction string

const (
	AuditDailyDistribution    AuditAction = "DAILY_DISTRIBUTION"
	AuditBackfillDistribution AuditAction = "BACKFILL_DISTRIBUTION"
	AuditManualCredit         AuditAction = "MANUAL_CREDIT"
	AuditReferralLink         AuditAction = "REFERRAL_LINK"
	AuditReferralReset        AuditAction = "REFERRAL_RESET"
)

type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "SUCCESS"
	AuditStatusPartial AuditStatus = "PARTIAL"
	AuditStatusFailed  AuditStatus = "FAILED"
)

// RunError is one failed deposit (or deposit-day, for backfill) of a run.
type RunError struct {
	DepositID string `json:"deposit_id"`
	Day       string `json:"day,omitempty"`
	Error     string `json:"error"`
}

// AuditLog is an immutable record of a batch run or an admin action.
type AuditLog struct {
	ID                  string          `gorm:"primaryKey;type:uuid;not null" json:"id"`
	Action              AuditAction     `gorm:"type:varchar(32);not null;index" json:"action"`
	Status              AuditStatus     `gorm:"type:varchar(16);not null" json:"status"`
	ActorID             string          `json:"actor_id,omitempty"`
	Processed           int             `gorm:"not null;default:0" json:"processed"`
	Skipped             int             `gorm:"not null;default:0" json:"skipped"`
	TotalSelfAmount     decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"total_self_amount"`
	TotalReferralAmount decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"total_referral_amount"`
	DurationMs          int64           `gorm:"not null;default:0" json:"duration_ms"`
	Errors              []RunError      `gorm:"serializer:json;type:jsonb" json:"errors"`
	Details             map[string]any  `gorm:"serializer:json;type:jsonb" json:"details,omitempty"`
	CreatedAt           time.Time       `gorm:"index" json:"timestamp"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
