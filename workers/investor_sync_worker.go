// workers/investor_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"roi-distribution-system/models"
	"roi-distribution-system/services"
	"roi-distribution-system/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const accountStatusDeleted = "deleted"

// MirroredProfile matches the JSON the profile sync service returns.
type MirroredProfile struct {
	ExternalID    string    `json:"external_id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	AccountStatus string    `json:"account_status"`
	ReferredByID  *string   `json:"referred_by_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type GetProfileChangesResponse struct {
	Users []MirroredProfile `json:"users"`
}

// InvestorSyncWorker mirrors investor profiles into the users table and
// links each new investor to the referrer captured at onboarding.
type InvestorSyncWorker struct {
	db           *gorm.DB
	referrals    *services.ReferralService
	log          *zap.Logger
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client

	since time.Time
}

func NewInvestorSyncWorker(db *gorm.DB, referrals *services.ReferralService, log *zap.Logger, baseURL, serviceToken string, interval time.Duration) *InvestorSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &InvestorSyncWorker{
		db:           db,
		referrals:    referrals,
		log:          log,
		interval:     interval,
		baseURL:      baseURL,
		endpointPath: "/api/v1/public/profiles",
		serviceToken: serviceToken,
		httpClient:   utils.NewHTTPClient(30 * time.Second),
	}
}

func (w *InvestorSyncWorker) Start(ctx context.Context) {
	w.log.Info("🔁 Starting investor sync worker", zap.String("base_url", w.baseURL), zap.Duration("interval", w.interval))
	go w.run(ctx)
}

func (w *InvestorSyncWorker) run(ctx context.Context) {
	if err := w.SyncOnce(ctx); err != nil {
		w.log.Warn("⚠️ initial investor sync failed", zap.Error(err))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.SyncOnce(ctx); err != nil {
				w.log.Error("❌ investor sync batch failed", zap.Error(err))
			}
		case <-ctx.Done():
			w.log.Info("⏹️ Investor sync worker stopped")
			return
		}
	}
}

// SyncOnce pulls every profile changed since the last successful batch.
func (w *InvestorSyncWorker) SyncOnce(ctx context.Context) error {
	profiles, err := w.fetch(ctx, w.since)
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		return nil
	}

	var upserted, failed int
	latest := w.since
	for _, p := range profiles {
		if err := w.upsert(ctx, p); err != nil {
			failed++
			w.log.Warn("[SYNC] failed to upsert investor",
				zap.String("external_id", p.ExternalID), zap.Error(err))
			continue
		}
		upserted++
		if p.UpdatedAt.After(latest) {
			latest = p.UpdatedAt
		}
	}

	// Referrers may arrive in the same batch as the investors they referred.
	for _, p := range profiles {
		if p.ReferredByID == nil || *p.ReferredByID == "" || p.AccountStatus == accountStatusDeleted {
			continue
		}
		_, err := w.referrals.LinkReferrer(ctx, p.ExternalID, *p.ReferredByID, "sync")
		switch {
		case err == nil, errors.Is(err, services.ErrReferrerAlreadySet):
		default:
			w.log.Warn("[SYNC] failed to link referrer",
				zap.String("external_id", p.ExternalID),
				zap.String("referrer", *p.ReferredByID),
				zap.Error(err))
		}
	}

	if failed == 0 {
		w.since = latest
	}
	w.log.Info("[SYNC] ✅ investors synced",
		zap.Int("received", len(profiles)),
		zap.Int("upserted", upserted),
		zap.Int("failed", failed))
	return nil
}

func (w *InvestorSyncWorker) upsert(ctx context.Context, p MirroredProfile) error {
	db := w.db.WithContext(ctx)

	if p.AccountStatus == accountStatusDeleted {
		return db.Where("external_user_id = ?", p.ExternalID).Delete(&models.User{}).Error
	}

	user := models.User{
		ExternalUserID: p.ExternalID,
		Username:       p.Username,
		Email:          p.Email,
	}
	// deleted_at is NULL on the insert row, so a returning account is restored.
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "email", "updated_at", "deleted_at"}),
	}).Create(&user).Error
}

func (w *InvestorSyncWorker) fetch(ctx context.Context, since time.Time) ([]MirroredProfile, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid sync service URL %q: %w", w.baseURL, err)
	}
	endpoint := base.JoinPath(w.endpointPath)
	q := endpoint.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request to sync service failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sync service returned status %d: %s", resp.StatusCode, string(body))
	}

	var out GetProfileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode sync service response: %w", err)
	}
	return out.Users, nil
}
