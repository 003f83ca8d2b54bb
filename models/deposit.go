// models/deposit.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type DepositStatus string

const (
	DepositStatusPending   DepositStatus = "PENDING"
	DepositStatusActive    DepositStatus = "ACTIVE"
	DepositStatusCompleted DepositStatus = "COMPLETED"
	DepositStatusCancelled DepositStatus = "CANCELLED"
)

// Deposit is a user's position in a package. LastROIProcessedAt is the only
// idempotency anchor for distribution and is written in the same transaction
// as the SELF credit it anchors.
type Deposit struct {
	ID                 string          `gorm:"primaryKey;type:uuid;not null" json:"id"`
	UserID             string          `gorm:"type:uuid;not null;index" json:"user_id"`
	PackageID          string          `gorm:"type:uuid;not null;index" json:"package_id"`
	Amount             decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
	Status             DepositStatus   `gorm:"type:varchar(16);not null;index;default:'PENDING'" json:"status"`
	LastROIProcessedAt *time.Time      `json:"last_roi_processed_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time       `json:"updated_at" gorm:"autoUpdateTime"`

	User    *User              `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Package *InvestmentPackage `gorm:"foreignKey:PackageID" json:"package,omitempty"`
}

func (d *Deposit) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}
