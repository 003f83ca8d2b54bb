// workers/notification_dispatcher.go
package workers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"roi-distribution-system/services"
	"roi-distribution-system/utils"

	"go.uber.org/zap"
)

// Sender delivers one notification. Errors are logged by the dispatcher and
// never retried.
type Sender interface {
	Send(ctx context.Context, n services.Notification) error
}

// NotificationDispatcher queues credit notifications and delivers them off
// the ledger path. When the queue is full new notifications are dropped.
type NotificationDispatcher struct {
	sender Sender
	log    *zap.Logger
	queue  chan services.Notification

	sendTimeout time.Duration
	dropped     atomic.Int64
	wg          sync.WaitGroup
}

func NewNotificationDispatcher(sender Sender, queueSize int, log *zap.Logger) *NotificationDispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &NotificationDispatcher{
		sender:      sender,
		log:         log,
		queue:       make(chan services.Notification, queueSize),
		sendTimeout: 10 * time.Second,
	}
}

// Notify enqueues n without blocking.
func (d *NotificationDispatcher) Notify(_ context.Context, n services.Notification) {
	select {
	case d.queue <- n:
	default:
		d.dropped.Add(1)
		d.log.Warn("[Notify] queue full, notification dropped",
			zap.String("user_id", n.UserID),
			zap.String("kind", string(n.Kind)))
	}
}

// Dropped counts notifications discarded because the queue was full.
func (d *NotificationDispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Start runs the delivery loop until ctx is cancelled. Wait blocks until the
// loop has exited.
func (d *NotificationDispatcher) Start(ctx context.Context) {
	d.log.Info("🔔 Starting notification dispatcher", zap.Int("queue_size", cap(d.queue)))
	d.wg.Add(1)
	go d.run(ctx)
}

func (d *NotificationDispatcher) Wait() {
	d.wg.Wait()
}

func (d *NotificationDispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			d.log.Info("⏹️ Notification dispatcher stopped", zap.Int("pending", len(d.queue)))
			return
		case n := <-d.queue:
			d.deliver(ctx, n)
		}
	}
}

func (d *NotificationDispatcher) deliver(ctx context.Context, n services.Notification) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("[Notify] sender panicked", zap.Any("panic", r))
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	if err := d.sender.Send(sendCtx, n); err != nil {
		d.log.Warn("[Notify] delivery failed",
			zap.String("user_id", n.UserID),
			zap.String("kind", string(n.Kind)),
			zap.Error(err))
	}
}

// WebhookSender POSTs each notification as JSON with a rendered message.
type WebhookSender struct {
	URL        string
	Token      string
	HTTPClient *http.Client
}

func NewWebhookSender(url, token string) *WebhookSender {
	return &WebhookSender{
		URL:        url,
		Token:      token,
		HTTPClient: utils.NewHTTPClient(10 * time.Second),
	}
}

type webhookPayload struct {
	services.Notification
	Message string `json:"message"`
}

func (s *WebhookSender) Send(ctx context.Context, n services.Notification) error {
	body, err := json.Marshal(webhookPayload{Notification: n, Message: RenderMessage(n)})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.Token != "" {
		req.Header.Set("X-Service-Token", s.Token)
	}

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call notification webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notification webhook returned status %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}

// LogSender writes notifications to the log. Used when no webhook is set.
type LogSender struct {
	Log *zap.Logger
}

func (s LogSender) Send(_ context.Context, n services.Notification) error {
	s.Log.Info("[Notify] "+RenderMessage(n), zap.String("user_id", n.UserID))
	return nil
}

// RenderMessage is the user-facing text for n.
func RenderMessage(n services.Notification) string {
	amount := utils.FormatMoney(n.Amount)
	balance := utils.FormatMoney(n.NewBalance)
	switch n.Kind {
	case services.NotifyCommissionCredit:
		return fmt.Sprintf("You earned %s level %d referral commission. New balance: %s", amount, n.Level, balance)
	case services.NotifyManualCredit:
		return fmt.Sprintf("Your wallet was credited %s (%s). New balance: %s", amount, n.Type, balance)
	default:
		return fmt.Sprintf("Your daily ROI of %s has been credited. New balance: %s", amount, balance)
	}
}
