package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"roi-distribution-system/models"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// testNow is 2026-10-19 09:30 UTC.
var testNow = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

func newTestDB(t *testing.T, clock clockwork.Clock) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:services_%d?mode=memory&cache=shared", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		NowFunc:                                  func() time.Time { return clock.Now().UTC() },
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, models.AutoMigrate(db))
	return db
}

type recordingNotifier struct {
	sent []Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) {
	r.sent = append(r.sent, n)
}

type fixture struct {
	db       *gorm.DB
	clock    *clockwork.FakeClock
	engine   *DistributionService
	notifier *recordingNotifier
}

// sumRates adds the first n rates of table.
func sumRates(table CommissionTable, n int) decimal.Decimal {
	sum := decimal.Zero
	for i := 0; i < n && i < len(table); i++ {
		sum = sum.Add(table[i])
	}
	return sum
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureAt(t, testNow)
}

func newFixtureAt(t *testing.T, now time.Time) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(now)
	db := newTestDB(t, clock)
	notifier := &recordingNotifier{}
	return &fixture{
		db:       db,
		clock:    clock,
		engine:   NewDistributionService(db, zaptest.NewLogger(t), clock, notifier),
		notifier: notifier,
	}
}

func (f *fixture) user(t *testing.T, externalID string, chain ...string) *models.User {
	t.Helper()
	u := &models.User{ExternalUserID: externalID, Username: externalID, ReferralChain: chain}
	if len(chain) > 0 {
		u.ReferrerID = &chain[0]
	}
	require.NoError(t, f.db.Create(u).Error)
	return u
}

func (f *fixture) pkg(t *testing.T, dailyPercent string) *models.InvestmentPackage {
	t.Helper()
	p := &models.InvestmentPackage{
		Name:            "Tier " + dailyPercent,
		MinAmount:       decimal.NewFromInt(1),
		MaxAmount:       decimal.NewFromInt(1_000_000),
		DailyROIPercent: decimal.RequireFromString(dailyPercent),
		IsActive:        true,
	}
	require.NoError(t, f.db.Create(p).Error)
	return p
}

func (f *fixture) deposit(t *testing.T, u *models.User, p *models.InvestmentPackage, amount string, createdAt time.Time, marker *time.Time) *models.Deposit {
	t.Helper()
	d := &models.Deposit{
		UserID:             u.ID,
		PackageID:          p.ID,
		Amount:             decimal.RequireFromString(amount),
		Status:             models.DepositStatusActive,
		LastROIProcessedAt: marker,
		CreatedAt:          createdAt.UTC(),
	}
	require.NoError(t, f.db.Create(d).Error)
	return d
}

// loaded reads d back with User and Package, as the batch does.
func (f *fixture) loaded(t *testing.T, d *models.Deposit) *models.Deposit {
	t.Helper()
	var out models.Deposit
	require.NoError(t, f.db.Preload("User").Preload("Package").Where("id = ?", d.ID).Take(&out).Error)
	return &out
}

func (f *fixture) balance(t *testing.T, u *models.User) decimal.Decimal {
	t.Helper()
	var w models.Wallet
	err := f.db.Where("user_id = ?", u.ID).Take(&w).Error
	if err == gorm.ErrRecordNotFound {
		return decimal.Zero
	}
	require.NoError(t, err)
	return w.Balance
}

func (f *fixture) records(t *testing.T, depositID string) []models.ROIRecord {
	t.Helper()
	var recs []models.ROIRecord
	require.NoError(t, f.db.Where("deposit_id = ?", depositID).Order("level ASC").Order("credit_day ASC").Find(&recs).Error)
	return recs
}

func (f *fixture) audits(t *testing.T, action models.AuditAction) []models.AuditLog {
	t.Helper()
	var logs []models.AuditLog
	require.NoError(t, f.db.Where("action = ?", action).Order("created_at ASC").Find(&logs).Error)
	return logs
}

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(want).Equal(got.Round(AmountScale)),
		"amount: want %s, got %s", want, got.String())
}

func ptrTime(t time.Time) *time.Time {
	return &t
}

func decimalFrom(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
