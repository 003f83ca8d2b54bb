package workers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"roi-distribution-system/models"
	"roi-distribution-system/services"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newWorkerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:workers_"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
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

func TestInvestorSyncWorker_SyncOnce(t *testing.T) {
	// GIVEN: The profile service returns a referrer and the investor it referred
	// WHEN: Syncing once
	// THEN: Both are mirrored and the investor's chain points at the referrer

	updated := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	referrer := "tg-100"
	var since, token string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/public/profiles", r.URL.Path)
		since = r.URL.Query().Get("since")
		token = r.Header.Get("X-Service-Token")
		_ = json.NewEncoder(w).Encode(GetProfileChangesResponse{Users: []MirroredProfile{
			{ExternalID: "tg-200", Username: "bob", ReferredByID: &referrer, UpdatedAt: updated},
			{ExternalID: "tg-100", Username: "alice", UpdatedAt: updated.Add(-time.Hour)},
		}})
	}))
	defer srv.Close()

	db := newWorkerDB(t)
	log := zaptest.NewLogger(t)
	referrals := services.NewReferralService(db, log, clockwork.NewFakeClockAt(updated))
	w := NewInvestorSyncWorker(db, referrals, log, srv.URL, "svc-token", time.Minute)

	require.NoError(t, w.SyncOnce(context.Background()))
	assert.Equal(t, "svc-token", token)
	assert.Equal(t, "0001-01-01T00:00:00Z", since)

	var bob models.User
	require.NoError(t, db.Where("external_user_id = ?", "tg-200").Take(&bob).Error)
	assert.Equal(t, "bob", bob.Username)
	assert.Equal(t, []string{"tg-100"}, bob.ReferralChain)

	// second pass resumes from the newest profile and tolerates the existing link
	require.NoError(t, w.SyncOnce(context.Background()))
	assert.Equal(t, updated.Format(time.RFC3339), since)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)
}

func TestInvestorSyncWorker_DeletedAccount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(GetProfileChangesResponse{Users: []MirroredProfile{
			{ExternalID: "tg-300", AccountStatus: "deleted"},
		}})
	}))
	defer srv.Close()

	db := newWorkerDB(t)
	require.NoError(t, db.Create(&models.User{ExternalUserID: "tg-300"}).Error)

	log := zaptest.NewLogger(t)
	w := NewInvestorSyncWorker(db, services.NewReferralService(db, log, clockwork.NewRealClock()), log, srv.URL, "", 0)
	require.NoError(t, w.SyncOnce(context.Background()))

	var count int64
	require.NoError(t, db.Model(&models.User{}).Where("external_user_id = ?", "tg-300").Count(&count).Error)
	assert.Zero(t, count)
}

func TestInvestorSyncWorker_RestoresReturningAccount(t *testing.T) {
	// GIVEN: An investor that was soft-deleted by an earlier sync
	// WHEN: The profile service reports the account as active again
	// THEN: The investor is visible again with the fresh profile data

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(GetProfileChangesResponse{Users: []MirroredProfile{
			{ExternalID: "tg-300", Username: "carol", AccountStatus: "active"},
		}})
	}))
	defer srv.Close()

	db := newWorkerDB(t)
	u := &models.User{ExternalUserID: "tg-300", Username: "old"}
	require.NoError(t, db.Create(u).Error)
	require.NoError(t, db.Delete(u).Error)

	log := zaptest.NewLogger(t)
	w := NewInvestorSyncWorker(db, services.NewReferralService(db, log, clockwork.NewRealClock()), log, srv.URL, "", 0)
	require.NoError(t, w.SyncOnce(context.Background()))

	var restored models.User
	require.NoError(t, db.Where("external_user_id = ?", "tg-300").Take(&restored).Error)
	assert.Equal(t, u.ID, restored.ID)
	assert.Equal(t, "carol", restored.Username)
}

func TestInvestorSyncWorker_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	db := newWorkerDB(t)
	log := zaptest.NewLogger(t)
	w := NewInvestorSyncWorker(db, services.NewReferralService(db, log, clockwork.NewRealClock()), log, srv.URL, "", 0)
	err := w.SyncOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
