// models/package.go
package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrPackageInUse is returned when an update targets a package that deposits
// already reference. Rates are never changed retroactively.
var ErrPackageInUse = errors.New("package is referenced by deposits and cannot be modified")

// InvestmentPackage is an investment tier.
type InvestmentPackage struct {
	ID              string          `gorm:"primaryKey;type:uuid;not null" json:"id"`
	Name            string          `gorm:"not null" json:"name"`
	MinAmount       decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"min_amount"`
	MaxAmount       decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"max_amount"`
	DailyROIPercent decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"daily_roi_percent"`
	IsActive        bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

func (p *InvestmentPackage) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

func (p *InvestmentPackage) BeforeUpdate(tx *gorm.DB) error {
	var refs int64
	if err := tx.Session(&gorm.Session{NewDB: true}).
		Model(&Deposit{}).
		Where("package_id = ?", p.ID).
		Count(&refs).Error; err != nil {
		return err
	}
	if refs > 0 {
		return ErrPackageInUse
	}
	return nil
}
