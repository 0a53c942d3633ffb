package task

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ticketing-commerce/pkg/config"
	pkgtask "ticketing-commerce/pkg/task"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Notifier delivers completed orders to the notification collaborator.
type Notifier interface {
	OrderCompleted(ctx context.Context, p pkgtask.OrderNotifyPayload) error
}

type webhookNotifier struct {
	url    string
	client *retryablehttp.Client
}

// zapLeveled adapts zap to retryablehttp.LeveledLogger.
type zapLeveled struct {
	s *zap.SugaredLogger
}

func (l zapLeveled) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l zapLeveled) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l zapLeveled) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l zapLeveled) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }

func NewNotifier(cfg *config.Config) Notifier {
	client := retryablehttp.NewClient()
	client.Logger = zapLeveled{s: zap.S().Named("notifier")}
	client.RetryWaitMin = 200 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.RetryMax = 3

	if cfg.Notification.MaxRetries > 0 {
		client.RetryMax = cfg.Notification.MaxRetries
	}
	client.HTTPClient.Timeout = 10 * time.Second
	if cfg.Notification.Timeout > 0 {
		client.HTTPClient.Timeout = cfg.Notification.Timeout
	}

	return &webhookNotifier{url: cfg.Notification.WebhookURL, client: client}
}

func (n *webhookNotifier) OrderCompleted(ctx context.Context, p pkgtask.OrderNotifyPayload) error {
	if n.url == "" {
		zap.L().Debug("notification webhook not configured, skipping", zap.String("order_id", p.OrderID))
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"type":  "order.completed",
		"order": p,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", asynq.SkipRetry)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %v: %w", err, asynq.SkipRetry)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "order-completed:"+p.OrderID)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode < 500:
		return fmt.Errorf("notification rejected with %d: %w", resp.StatusCode, asynq.SkipRetry)
	default:
		return fmt.Errorf("notification failed with %d", resp.StatusCode)
	}
}
