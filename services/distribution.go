// services/distribution.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"roi-distribution-system/models"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DistributionService credits daily ROI and cascades referral commissions.
// One deposit (or one deposit-day, for backfill) is one transaction.
type DistributionService struct {
	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clockwork.Clock
	Rates    CommissionTable
	Notifier Notifier
	Archive  ObjectStore // optional
}

func NewDistributionService(db *gorm.DB, log *zap.Logger, clock clockwork.Clock, notifier Notifier) *DistributionService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &DistributionService{
		DB:       db,
		Log:      log,
		Clock:    clock,
		Rates:    DefaultCommissionTable,
		Notifier: notifier,
	}
}

// Credit is one wallet credit performed by a distribution.
type Credit struct {
	UserID         string
	ExternalUserID string
	Type           models.ROIType
	Level          int
	Amount         decimal.Decimal
	NewBalance     decimal.Decimal
}

type DistributionResult struct {
	DepositID      string
	CreditDay      string
	SelfAmount     decimal.Decimal
	ReferralAmount decimal.Decimal
	Credits        []Credit
}

// DistributeDeposit credits one deposit for the UTC day containing target.
// deposit must have User and Package loaded. The marker claim, the SELF
// credit and every commission commit or roll back together.
func (s *DistributionService) DistributeDeposit(ctx context.Context, deposit *models.Deposit, target time.Time) (*DistributionResult, error) {
	if deposit.Package == nil {
		return nil, fmt.Errorf("deposit %s: %w", deposit.ID, ErrDepositMissingPackage)
	}
	if deposit.User == nil {
		return nil, fmt.Errorf("deposit %s: %w", deposit.ID, ErrDepositMissingUser)
	}

	target = target.UTC()
	dailyReturn := DailyReturn(deposit.Amount, deposit.Package.DailyROIPercent)
	result := &DistributionResult{
		DepositID:      deposit.ID,
		CreditDay:      DayKey(target),
		SelfAmount:     dailyReturn,
		ReferralAmount: decimal.Zero,
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claim := tx.Model(&models.Deposit{}).
			Where("id = ?", deposit.ID).
			Where("last_roi_processed_at IS NULL OR last_roi_processed_at < ?", DayStart(target)).
			UpdateColumn("last_roi_processed_at", target)
		if claim.Error != nil {
			return fmt.Errorf("claim deposit %s: %w", deposit.ID, claim.Error)
		}
		if claim.RowsAffected == 0 {
			return ErrAlreadyDistributed
		}

		owner := deposit.User
		balance, err := s.credit(tx, ledgerEntry{
			User:      owner,
			DepositID: &deposit.ID,
			Type:      models.ROITypeSelf,
			Amount:    dailyReturn,
			At:        target,
		})
		if err != nil {
			return err
		}
		result.Credits = append(result.Credits, Credit{
			UserID:         owner.ID,
			ExternalUserID: owner.ExternalUserID,
			Type:           models.ROITypeSelf,
			Amount:         dailyReturn,
			NewBalance:     balance,
		})

		for _, lvl := range ResolveReferralChain(owner, s.Rates.Levels()) {
			commission := s.Rates.Commission(lvl.Level-1, dailyReturn)
			if !commission.IsPositive() {
				continue
			}

			var ancestor models.User
			if err := tx.Where("external_user_id = ?", lvl.ExternalUserID).Take(&ancestor).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					s.Log.Warn("[Distribution] referrer not found, level unpaid",
						zap.String("deposit_id", deposit.ID),
						zap.String("referrer", lvl.ExternalUserID),
						zap.Int("level", lvl.Level))
					continue
				}
				return fmt.Errorf("resolve referrer %s: %w", lvl.ExternalUserID, err)
			}

			typ := models.ReferralLevelType(lvl.Level)
			balance, err := s.credit(tx, ledgerEntry{
				User:         &ancestor,
				DepositID:    &deposit.ID,
				Type:         typ,
				Level:        lvl.Level,
				Amount:       commission,
				SourceUserID: &owner.ID,
				At:           target,
			})
			if err != nil {
				return err
			}
			result.ReferralAmount = result.ReferralAmount.Add(commission)
			result.Credits = append(result.Credits, Credit{
				UserID:         ancestor.ID,
				ExternalUserID: ancestor.ExternalUserID,
				Type:           typ,
				Level:          lvl.Level,
				Amount:         commission,
				NewBalance:     balance,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	deposit.LastROIProcessedAt = &target
	s.notifyCredits(ctx, result.CreditDay, result.Credits)
	return result, nil
}

type ledgerEntry struct {
	User         *models.User
	DepositID    *string
	Type         models.ROIType
	Level        int
	Amount       decimal.Decimal
	SourceUserID *string
	ActorID      *string
	At           time.Time
}

// credit appends the ledger entry and applies it to the wallet, returning
// the balance as seen inside the transaction.
func (s *DistributionService) credit(tx *gorm.DB, e ledgerEntry) (decimal.Decimal, error) {
	if err := ensureWallet(tx, e.User.ID); err != nil {
		return decimal.Zero, err
	}

	record := models.ROIRecord{
		UserID:       e.User.ID,
		DepositID:    e.DepositID,
		Type:         e.Type,
		Level:        e.Level,
		Amount:       e.Amount,
		CreditDay:    DayKey(e.At),
		SourceUserID: e.SourceUserID,
		ActorID:      e.ActorID,
		CreatedAt:    e.At,
	}
	if err := tx.Create(&record).Error; err != nil {
		return decimal.Zero, fmt.Errorf("append %s record for user %s: %w", e.Type, e.User.ID, err)
	}

	if err := tx.Model(&models.Wallet{}).
		Where("user_id = ?", e.User.ID).
		UpdateColumn("balance", gorm.Expr("balance + ?", e.Amount)).Error; err != nil {
		return decimal.Zero, fmt.Errorf("credit wallet of user %s: %w", e.User.ID, err)
	}

	var wallet models.Wallet
	if err := tx.Select("balance").Where("user_id = ?", e.User.ID).Take(&wallet).Error; err != nil {
		return decimal.Zero, fmt.Errorf("read wallet of user %s: %w", e.User.ID, err)
	}
	return wallet.Balance, nil
}

// ensureWallet creates a zero wallet for userID unless one exists. Safe under
// concurrent callers.
func ensureWallet(tx *gorm.DB, userID string) error {
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&models.Wallet{UserID: userID, Balance: decimal.Zero}).Error
	if err != nil {
		return fmt.Errorf("ensure wallet for user %s: %w", userID, err)
	}
	return nil
}

func (s *DistributionService) notifyCredits(ctx context.Context, day string, credits []Credit) {
	for _, c := range credits {
		kind := NotifyCommissionCredit
		if c.Type == models.ROITypeSelf {
			kind = NotifyROICredit
		}
		s.Notifier.Notify(ctx, Notification{
			Kind:           kind,
			UserID:         c.UserID,
			ExternalUserID: c.ExternalUserID,
			Type:           c.Type,
			Amount:         c.Amount,
			Level:          c.Level,
			NewBalance:     c.NewBalance,
			CreditDay:      day,
		})
	}
}
