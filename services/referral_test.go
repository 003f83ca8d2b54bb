package services

import (
	"context"
	"fmt"
	"testing"

	"roi-distribution-system/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestResolveReferralChain(t *testing.T) {
	tests := []struct {
		name  string
		owner *models.User
		max   int
		want  []ResolvedLevel
	}{
		{
			name:  "empty chain",
			owner: &models.User{ExternalUserID: "O"},
			max:   10,
			want:  []ResolvedLevel{},
		},
		{
			name:  "closest first",
			owner: &models.User{ExternalUserID: "O", ReferralChain: []string{"R1", "R2"}},
			max:   10,
			want:  []ResolvedLevel{{1, "R1"}, {2, "R2"}},
		},
		{
			name:  "truncated to table",
			owner: &models.User{ExternalUserID: "O", ReferralChain: []string{"R1", "R2", "R3"}},
			max:   2,
			want:  []ResolvedLevel{{1, "R1"}, {2, "R2"}},
		},
		{
			name:  "owner and repeats dropped without shifting",
			owner: &models.User{ExternalUserID: "O", ReferralChain: []string{"R1", "O", "R1", "", "R5"}},
			max:   10,
			want:  []ResolvedLevel{{1, "R1"}, {5, "R5"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveReferralChain(tt.owner, tt.max))
		})
	}
}

func TestBuildReferralChain(t *testing.T) {
	assert.Equal(t, []string{"R"}, BuildReferralChain("R", nil))

	full := make([]string, models.MaxReferralDepth)
	for i := range full {
		full[i] = fmt.Sprintf("A%d", i+1)
	}
	chain := BuildReferralChain("R", full)
	require.Len(t, chain, models.MaxReferralDepth)
	assert.Equal(t, "R", chain[0])
	assert.Equal(t, "A9", chain[9])
}

func newReferralFixture(t *testing.T) (*fixture, *ReferralService) {
	f := newFixture(t)
	return f, NewReferralService(f.db, zaptest.NewLogger(t), f.clock)
}

func TestLinkReferrer_MaterializesChain(t *testing.T) {
	// GIVEN: R2 <- R1 already linked
	// WHEN: O links to R1
	// THEN: O's chain is [R1, R2] and an audit entry is written

	f, svc := newReferralFixture(t)
	f.user(t, "R2")
	f.user(t, "R1")
	f.user(t, "O")
	ctx := context.Background()

	_, err := svc.LinkReferrer(ctx, "R1", "R2", "admin")
	require.NoError(t, err)
	linked, err := svc.LinkReferrer(ctx, "O", "R1", "admin")
	require.NoError(t, err)
	assert.Equal(t, []string{"R1", "R2"}, linked.ReferralChain)

	var stored models.User
	require.NoError(t, f.db.Where("external_user_id = ?", "O").Take(&stored).Error)
	assert.Equal(t, []string{"R1", "R2"}, stored.ReferralChain)
	require.NotNil(t, stored.ReferrerID)
	assert.Equal(t, "R1", *stored.ReferrerID)

	assert.Len(t, f.audits(t, models.AuditReferralLink), 2)
}

func TestLinkReferrer_Rejections(t *testing.T) {
	f, svc := newReferralFixture(t)
	f.user(t, "A")
	f.user(t, "B")
	f.user(t, "C")
	ctx := context.Background()

	_, err := svc.LinkReferrer(ctx, "A", "A", "")
	require.ErrorIs(t, err, ErrSelfReferral)

	_, err = svc.LinkReferrer(ctx, "missing", "A", "")
	require.ErrorIs(t, err, ErrUserNotFound)

	_, err = svc.LinkReferrer(ctx, "A", "missing", "")
	require.ErrorIs(t, err, ErrReferrerNotFound)

	// B <- A, then A <- B would close a loop
	_, err = svc.LinkReferrer(ctx, "B", "A", "")
	require.NoError(t, err)
	_, err = svc.LinkReferrer(ctx, "A", "B", "")
	require.ErrorIs(t, err, ErrReferralCycle)

	_, err = svc.LinkReferrer(ctx, "B", "C", "")
	require.ErrorIs(t, err, ErrReferrerAlreadySet)
}

func TestResetReferralChain(t *testing.T) {
	f, svc := newReferralFixture(t)
	f.user(t, "R1")
	f.user(t, "O", "R1")
	ctx := context.Background()

	require.NoError(t, svc.ResetReferralChain(ctx, "O", "admin"))

	var stored models.User
	require.NoError(t, f.db.Where("external_user_id = ?", "O").Take(&stored).Error)
	assert.Empty(t, stored.ReferralChain)
	assert.Nil(t, stored.ReferrerID)
	assert.Len(t, f.audits(t, models.AuditReferralReset), 1)

	// relinking is allowed after a reset
	_, err := svc.LinkReferrer(ctx, "O", "R1", "admin")
	require.NoError(t, err)

	require.ErrorIs(t, svc.ResetReferralChain(ctx, "nobody", ""), ErrUserNotFound)
}
