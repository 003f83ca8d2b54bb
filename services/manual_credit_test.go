package services

import (
	"context"
	"testing"

	"roi-distribution-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualCredit_ByExternalID(t *testing.T) {
	// GIVEN: A user without a wallet
	// WHEN: An admin credits 25 SELF by external id
	// THEN: Wallet is created with 25, ledger and audit carry the actor

	f := newFixture(t)
	u := f.user(t, "tg-1001")

	res, err := f.engine.ManualCredit(context.Background(), ManualCreditInput{
		UserID:  "tg-1001",
		Amount:  decimalFrom("25"),
		Type:    "self",
		ActorID: "admin-7",
	})
	require.NoError(t, err)
	assert.Equal(t, u.ID, res.UserID)
	assert.Equal(t, models.ROITypeSelf, res.Type)
	requireAmount(t, "25", res.NewBalance)
	requireAmount(t, "25", f.balance(t, u))

	var rec models.ROIRecord
	require.NoError(t, f.db.Where("user_id = ?", u.ID).Take(&rec).Error)
	assert.Nil(t, rec.DepositID)
	require.NotNil(t, rec.ActorID)
	assert.Equal(t, "admin-7", *rec.ActorID)

	audits := f.audits(t, models.AuditManualCredit)
	require.Len(t, audits, 1)
	assert.Equal(t, "admin-7", audits[0].ActorID)
	requireAmount(t, "25", audits[0].TotalSelfAmount)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, NotifyManualCredit, f.notifier.sent[0].Kind)
}

func TestManualCredit_ByInternalIDAddsToBalance(t *testing.T) {
	f := newFixture(t)
	u := f.user(t, "tg-2002")

	_, err := f.engine.ManualCredit(context.Background(), ManualCreditInput{UserID: u.ID, Amount: decimalFrom("1.25"), Type: "SELF"})
	require.NoError(t, err)
	res, err := f.engine.ManualCredit(context.Background(), ManualCreditInput{UserID: u.ID, Amount: decimalFrom("0.75"), Type: "REFERRAL_LEVEL_3"})
	require.NoError(t, err)

	assert.Equal(t, models.ROIType("REFERRAL_LEVEL_3"), res.Type)
	requireAmount(t, "2", res.NewBalance)

	var rec models.ROIRecord
	require.NoError(t, f.db.Where("user_id = ? AND type = ?", u.ID, "REFERRAL_LEVEL_3").Take(&rec).Error)
	assert.Equal(t, 3, rec.Level)
}

func TestManualCredit_Rejections(t *testing.T) {
	f := newFixture(t)
	f.user(t, "tg-3003")

	tests := []struct {
		name string
		in   ManualCreditInput
		want error
	}{
		{"zero amount", ManualCreditInput{UserID: "tg-3003", Amount: decimalFrom("0"), Type: "SELF"}, ErrInvalidAmount},
		{"negative amount", ManualCreditInput{UserID: "tg-3003", Amount: decimalFrom("-5"), Type: "SELF"}, ErrInvalidAmount},
		{"level out of range", ManualCreditInput{UserID: "tg-3003", Amount: decimalFrom("1"), Type: "REFERRAL_LEVEL_11"}, ErrInvalidROIType},
		{"unknown tag", ManualCreditInput{UserID: "tg-3003", Amount: decimalFrom("1"), Type: "BONUS"}, ErrInvalidROIType},
		{"unknown user", ManualCreditInput{UserID: "tg-missing", Amount: decimalFrom("1"), Type: "SELF"}, ErrUserNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.ManualCredit(context.Background(), tt.in)
			require.ErrorIs(t, err, tt.want)
		})
	}

	assert.Empty(t, f.audits(t, models.AuditManualCredit))
	assert.Empty(t, f.notifier.sent)
}
