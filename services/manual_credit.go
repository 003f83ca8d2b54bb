// services/manual_credit.go
package services

import (
	"context"
	"errors"
	"fmt"

	"roi-distribution-system/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ManualCreditInput identifies the user by internal id or external id.
type ManualCreditInput struct {
	UserID  string
	Amount  decimal.Decimal
	Type    string
	ActorID string
}

type ManualCreditResult struct {
	UserID         string          `json:"user_id"`
	ExternalUserID string          `json:"external_user_id"`
	Amount         decimal.Decimal `json:"amount"`
	Type           models.ROIType  `json:"type"`
	NewBalance     decimal.Decimal `json:"new_balance"`
}

// ManualCredit appends an out-of-band ledger entry and credits the wallet in
// one transaction. No deposit eligibility applies.
func (s *DistributionService) ManualCredit(ctx context.Context, in ManualCreditInput) (*ManualCreditResult, error) {
	if !in.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	typ, level, err := models.ParseROIType(in.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidROIType, in.Type)
	}
	amount := in.Amount.Round(AmountScale)
	now := s.Clock.Now().UTC()

	var user models.User
	var balance decimal.Decimal
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findUser(tx, in.UserID, &user); err != nil {
			return err
		}

		var actor *string
		if in.ActorID != "" {
			actor = &in.ActorID
		}
		credited, err := s.credit(tx, ledgerEntry{
			User:    &user,
			Type:    typ,
			Level:   level,
			Amount:  amount,
			ActorID: actor,
			At:      now,
		})
		if err != nil {
			return err
		}
		balance = credited

		return writeAudit(tx, &models.AuditLog{
			Action:              models.AuditManualCredit,
			Status:              models.AuditStatusSuccess,
			ActorID:             in.ActorID,
			Processed:           1,
			TotalSelfAmount:     selfPortion(typ, amount),
			TotalReferralAmount: amount.Sub(selfPortion(typ, amount)),
			Details: map[string]any{
				"user_id":     user.ID,
				"type":        string(typ),
				"amount":      amount.String(),
				"new_balance": balance.String(),
			},
			CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info("[ManualCredit] credited",
		zap.String("user_id", user.ID),
		zap.String("type", string(typ)),
		zap.String("amount", amount.String()),
		zap.String("actor", in.ActorID))

	s.Notifier.Notify(ctx, Notification{
		Kind:           NotifyManualCredit,
		UserID:         user.ID,
		ExternalUserID: user.ExternalUserID,
		Type:           typ,
		Amount:         amount,
		Level:          level,
		NewBalance:     balance,
		CreditDay:      DayKey(now),
	})

	return &ManualCreditResult{
		UserID:         user.ID,
		ExternalUserID: user.ExternalUserID,
		Amount:         amount,
		Type:           typ,
		NewBalance:     balance,
	}, nil
}

// findUser looks id up as a primary key when it parses as a UUID and as an
// external id otherwise.
func findUser(tx *gorm.DB, id string, user *models.User) error {
	q := tx.Where("external_user_id = ?", id)
	if _, err := uuid.Parse(id); err == nil {
		q = tx.Where("id = ?", id)
	}
	if err := q.Take(user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrUserNotFound, id)
		}
		return fmt.Errorf("load user %s: %w", id, err)
	}
	return nil
}

func selfPortion(typ models.ROIType, amount decimal.Decimal) decimal.Decimal {
	if typ == models.ROITypeSelf {
		return amount
	}
	return decimal.Zero
}
