// services/notifier.go
package services

import (
	"context"

	"roi-distribution-system/models"

	"github.com/shopspring/decimal"
)

type NotificationKind string

const (
	NotifyROICredit        NotificationKind = "roi_credit"
	NotifyCommissionCredit NotificationKind = "commission_credit"
	NotifyManualCredit     NotificationKind = "manual_credit"
)

// Notification tells a user their wallet was credited. Level is set for
// commissions only.
type Notification struct {
	Kind           NotificationKind `json:"kind"`
	UserID         string           `json:"user_id"`
	ExternalUserID string           `json:"external_user_id"`
	Type           models.ROIType   `json:"type"`
	Amount         decimal.Decimal  `json:"amount"`
	Level          int              `json:"level,omitempty"`
	NewBalance     decimal.Decimal  `json:"new_balance"`
	CreditDay      string           `json:"credit_day"`
}

// Notifier receives credit notifications after the ledger write committed.
// Implementations must not block and must swallow their own failures.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) {}
