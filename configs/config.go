package configs

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
}

// Enabled reports whether run summaries should be archived to R2.
func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.AccessKeySecret != "" && c.Bucket != ""
}

type Config struct {
	Env            string
	DatabaseURL    string
	Port           string
	ServiceToken   string
	AllowedOrigins []string

	// Daily distribution instant, "HH:MM" in UTC.
	RunAt        string
	RunOnStartup bool

	NotifyWebhookURL string
	NotifyQueueSize  int

	SyncServiceURL string
	SyncInterval   time.Duration

	R2 R2Config
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("APP_ENV", "production")
	v.SetDefault("PORT", "5200")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("ROI_RUN_AT", "00:00")
	v.SetDefault("ROI_RUN_ON_STARTUP", false)
	v.SetDefault("NOTIFY_QUEUE_SIZE", 1024)
	v.SetDefault("SYNC_INTERVAL", "1m")

	cfg := &Config{
		Env:              v.GetString("APP_ENV"),
		DatabaseURL:      v.GetString("DATABASE_URL"),
		Port:             v.GetString("PORT"),
		ServiceToken:     v.GetString("SERVICE_TOKEN"),
		AllowedOrigins:   splitList(v.GetString("ALLOWED_ORIGINS")),
		RunAt:            v.GetString("ROI_RUN_AT"),
		RunOnStartup:     v.GetBool("ROI_RUN_ON_STARTUP"),
		NotifyWebhookURL: v.GetString("NOTIFY_WEBHOOK_URL"),
		NotifyQueueSize:  v.GetInt("NOTIFY_QUEUE_SIZE"),
		SyncServiceURL:   v.GetString("SYNC_SERVICE_URL"),
		SyncInterval:     v.GetDuration("SYNC_INTERVAL"),
		R2: R2Config{
			AccountID:       v.GetString("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     v.GetString("R2_ACCESS_KEY_ID"),
			AccessKeySecret: v.GetString("R2_ACCESS_KEY_SECRET"),
			Bucket:          v.GetString("R2_BUCKET_NAME"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL environment variable not set")
	}
	if c.ServiceToken == "" {
		return errors.New("SERVICE_TOKEN environment variable not set")
	}
	if _, _, err := ParseRunAt(c.RunAt); err != nil {
		return err
	}
	if c.NotifyQueueSize <= 0 {
		return fmt.Errorf("NOTIFY_QUEUE_SIZE must be positive, got %d", c.NotifyQueueSize)
	}
	return nil
}

// ParseRunAt parses "HH:MM" (24h).
func ParseRunAt(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid ROI_RUN_AT %q (use HH:MM): %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
