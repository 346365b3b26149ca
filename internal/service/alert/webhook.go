package alert

import (
	"context"
	"fmt"
	"time"

	"roadstream/internal/logger"

	"github.com/go-resty/resty/v2"
)

// webhookTimeout bounds one delivery.
const webhookTimeout = 5 * time.Second

// WebhookNotifier POSTs each event as JSON to a URL.
type WebhookNotifier struct {
	url    string
	client *resty.Client
	logger *logger.Logger
}

// NewWebhookNotifier returns a notifier posting to url.
func NewWebhookNotifier(url string, log *logger.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: resty.New().SetTimeout(webhookTimeout),
		logger: log,
	}
}

// Notify delivers ev in the background.
func (w *WebhookNotifier) Notify(_ context.Context, ev Event) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("Webhook delivery panic recovered: %v", r)
			}
		}()
		if err := w.deliver(ev); err != nil {
			w.logger.Warning("Webhook delivery of alert %s failed: %v", ev.ID, err)
		}
	}()
}

func (w *WebhookNotifier) deliver(ev Event) error {
	resp, err := w.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(ev).
		Post(w.url)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("unexpected status %d", resp.StatusCode())
	}
	return nil
}
