// models/roi_record.go
package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ROIType tags a ledger entry: the depositor's own return or a commission
// paid to the referrer at a given depth.
type ROIType string

const (
	ROITypeSelf ROIType = "SELF"

	referralLevelPrefix = "REFERRAL_LEVEL_"
)

// ReferralLevelType returns the tag for a 1-based referral level.
func ReferralLevelType(level int) ROIType {
	return ROIType(referralLevelPrefix + strconv.Itoa(level))
}

// ParseROIType accepts SELF or REFERRAL_LEVEL_1..REFERRAL_LEVEL_10 and
// returns the tag with its level (0 for SELF).
func ParseROIType(s string) (ROIType, int, error) {
	t := ROIType(strings.ToUpper(strings.TrimSpace(s)))
	if t == ROITypeSelf {
		return t, 0, nil
	}
	rest, ok := strings.CutPrefix(string(t), referralLevelPrefix)
	if !ok {
		return "", 0, fmt.Errorf("unknown roi type %q", s)
	}
	level, err := strconv.Atoi(rest)
	if err != nil || level < 1 || level > MaxReferralDepth || strconv.Itoa(level) != rest {
		return "", 0, fmt.Errorf("unknown roi type %q", s)
	}
	return t, level, nil
}

// ROIRecord is an append-only ledger entry. Rows are never updated or
// deleted; every wallet credit caused by distribution has exactly one.
//
// (deposit_id, type, credit_day) is unique, so a deposit can be paid at most
// once per day per level. Manual credits carry no deposit and never collide.
type ROIRecord struct {
	ID           string          `gorm:"primaryKey;type:uuid;not null" json:"id"`
	UserID       string          `gorm:"type:uuid;not null;index" json:"user_id"`
	DepositID    *string         `gorm:"type:uuid;uniqueIndex:idx_roi_deposit_type_day" json:"deposit_id,omitempty"`
	Type         ROIType         `gorm:"type:varchar(32);not null;index;uniqueIndex:idx_roi_deposit_type_day" json:"type"`
	CreditDay    string          `gorm:"type:varchar(10);not null;index;uniqueIndex:idx_roi_deposit_type_day" json:"credit_day"`
	Level        int             `gorm:"not null;default:0" json:"level"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
	SourceUserID *string         `gorm:"type:uuid" json:"source_user_id,omitempty"`
	ActorID      *string         `json:"actor_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (r *ROIRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

func (ROIRecord) TableName() string {
	return "roi_records"
}
