// models/wallet.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Wallet holds a user's credited balance. Balance is only ever changed with
// an atomic `balance + ?` update next to the ROIRecord that explains it.
type Wallet struct {
	ID        string          `gorm:"primaryKey;type:uuid;not null" json:"id"`
	UserID    string          `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,8);not null;default:0" json:"balance"`
	CreatedAt time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

func (w *Wallet) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return nil
}
