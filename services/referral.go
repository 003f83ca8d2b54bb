// services/referral.go
package services

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"roi-distribution-system/models"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ResolvedLevel is one ancestor eligible for commission. Level is 1-based.
type ResolvedLevel struct {
	Level          int
	ExternalUserID string
}

// ResolveReferralChain truncates the owner's stored chain to maxLevels.
// The owner's own identity and repeated identities are dropped without
// shifting the remaining entries, so a bad slot is simply unpaid.
func ResolveReferralChain(owner *models.User, maxLevels int) []ResolvedLevel {
	chain := owner.ReferralChain
	if len(chain) > maxLevels {
		chain = chain[:maxLevels]
	}

	seen := make(map[string]struct{}, len(chain))
	levels := make([]ResolvedLevel, 0, len(chain))
	for i, id := range chain {
		if id == "" || id == owner.ExternalUserID {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		levels = append(levels, ResolvedLevel{Level: i + 1, ExternalUserID: id})
	}
	return levels
}

type ReferralService struct {
	DB    *gorm.DB
	Log   *zap.Logger
	Clock clockwork.Clock
}

func NewReferralService(db *gorm.DB, log *zap.Logger, clock clockwork.Clock) *ReferralService {
	return &ReferralService{DB: db, Log: log, Clock: clock}
}

// LinkReferrer assigns the immediate referrer of userExternalID and
// materializes its chain: the referrer followed by the referrer's own chain,
// capped at models.MaxReferralDepth.
func (s *ReferralService) LinkReferrer(ctx context.Context, userExternalID, referrerExternalID, actorID string) (*models.User, error) {
	if userExternalID == referrerExternalID {
		return nil, ErrSelfReferral
	}

	var linked models.User
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("external_user_id = ?", userExternalID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if user.ReferrerID != nil {
			return ErrReferrerAlreadySet
		}

		var referrer models.User
		if err := tx.Where("external_user_id = ?", referrerExternalID).First(&referrer).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrReferrerNotFound
			}
			return err
		}
		if slices.Contains(referrer.ReferralChain, user.ExternalUserID) {
			return ErrReferralCycle
		}

		chain := BuildReferralChain(referrer.ExternalUserID, referrer.ReferralChain)
		if err := tx.Model(&user).
			Select("referrer_id", "referral_chain").
			Updates(&models.User{ReferrerID: &referrer.ExternalUserID, ReferralChain: chain}).Error; err != nil {
			return err
		}
		user.ReferrerID = &referrer.ExternalUserID
		user.ReferralChain = chain

		if err := writeAudit(tx, &models.AuditLog{
			Action:  models.AuditReferralLink,
			Status:  models.AuditStatusSuccess,
			ActorID: actorID,
			Details: map[string]any{
				"user":     user.ExternalUserID,
				"referrer": referrer.ExternalUserID,
				"depth":    len(chain),
			},
			CreatedAt: s.Clock.Now().UTC(),
		}); err != nil {
			return err
		}

		linked = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Log.Info("[Referral] linked referrer",
		zap.String("user", userExternalID),
		zap.String("referrer", referrerExternalID),
		zap.Int("chain_length", len(linked.ReferralChain)))
	return &linked, nil
}

// ResetReferralChain clears a user's chain and immediate referrer so the
// account can be relinked. Descendants keep their own snapshots.
func (s *ReferralService) ResetReferralChain(ctx context.Context, userExternalID, actorID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("external_user_id = ?", userExternalID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		previous := len(user.ReferralChain)
		if err := tx.Model(&user).
			Select("referrer_id", "referral_chain").
			Updates(&models.User{ReferrerID: nil, ReferralChain: []string{}}).Error; err != nil {
			return fmt.Errorf("reset referral chain: %w", err)
		}

		return writeAudit(tx, &models.AuditLog{
			Action:    models.AuditReferralReset,
			Status:    models.AuditStatusSuccess,
			ActorID:   actorID,
			Details:   map[string]any{"user": user.ExternalUserID, "previous_depth": previous},
			CreatedAt: s.Clock.Now().UTC(),
		})
	})
}

// BuildReferralChain prepends referrer to its own chain, capped.
func BuildReferralChain(referrerExternalID string, referrerChain []string) []string {
	chain := make([]string, 0, models.MaxReferralDepth)
	chain = append(chain, referrerExternalID)
	for _, id := range referrerChain {
		if len(chain) == models.MaxReferralDepth {
			break
		}
		chain = append(chain, id)
	}
	return chain
}
