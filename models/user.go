// models/user.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxReferralDepth caps the materialized referral chain.
const MaxReferralDepth = 10

// User is the local investor record. ExternalUserID is the stable identity
// handed to us by the profile service (e.g. the Telegram id) and is what
// referral chains store.
type User struct {
	ID             string  `gorm:"primaryKey;type:uuid;not null" json:"id"`
	ExternalUserID string  `gorm:"uniqueIndex;not null" json:"external_user_id"`
	Username       string  `gorm:"index" json:"username"`
	Email          string  `json:"email,omitempty"`
	ReferrerID     *string `gorm:"index" json:"referrer_id,omitempty"` // immediate referrer's ExternalUserID

	// Closest-first snapshot of up to MaxReferralDepth ancestor ExternalUserIDs,
	// built once at linkage time and never recomputed.
	ReferralChain []string `gorm:"serializer:json;type:jsonb" json:"referral_chain"`

	Wallet *Wallet `gorm:"foreignKey:UserID" json:"wallet,omitempty"`

	Timestamps
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
