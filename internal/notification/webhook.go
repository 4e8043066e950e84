package notification

import (
	"context"
	"log"
	"net/http"
	"time"
)

// WebhookNotifier POSTs alerts as JSON to a generic HTTP endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{url: url, client: defaultClient()}
}

type webhookPayload struct {
	Alert
	TS time.Time `json:"ts"`
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	if err := postJSON(ctx, w.client, "webhook", w.url, webhookPayload{Alert: alert, TS: time.Now().UTC()}); err != nil {
		return err
	}
	log.Printf("[webhook] sent %s alert: %s", alert.Level, alert.Title)
	return nil
}
