package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"synchub/audit"
	"synchub/integration"
	"synchub/security"
)

const (
	dispatchTimeout  = 30 * time.Second
	dispatchAttempts = 3
)

// WebhookDispatcher delivers signed event payloads to organizer-configured
// webhook endpoints. The payload is signed with the endpoint's secret and
// sent with an X-Webhook-Signature header; transient failures get a bounded
// exponential retry.
type WebhookDispatcher struct {
	store      *integration.Store
	audit      *audit.Logger
	httpClient *http.Client
}

func NewWebhookDispatcher(store *integration.Store, auditLogger *audit.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		store:      store,
		audit:      auditLogger,
		httpClient: &http.Client{Timeout: dispatchTimeout},
	}
}

// DispatchEvent delivers one event to every active webhook of the organizer
// that subscribes to it. An empty Events list on a webhook subscribes it to
// everything.
func (d *WebhookDispatcher) DispatchEvent(ctx context.Context, organizerID, eventType string, payload map[string]interface{}) {
	hooks, err := d.store.ListWebhooks(ctx, organizerID)
	if err != nil {
		log.Printf("Warning: failed to list webhooks for %s: %v", organizerID, err)
		return
	}

	for _, hook := range hooks {
		if !hook.IsActive || !subscribed(hook, eventType) {
			continue
		}
		if err := d.Deliver(ctx, hook, eventType, payload); err != nil {
			log.Printf("Webhook delivery to %s failed: %v", hook.Name, err)
		}
	}
}

func subscribed(hook *integration.WebhookIntegration, eventType string) bool {
	if len(hook.Events) == 0 {
		return true
	}
	for _, e := range hook.Events {
		if e == eventType {
			return true
		}
	}
	return false
}

// Deliver posts one signed payload to a single webhook endpoint.
func (d *WebhookDispatcher) Deliver(ctx context.Context, hook *integration.WebhookIntegration, eventType string, payload map[string]interface{}) error {
	body := map[string]interface{}{
		"event":      eventType,
		"webhook_id": hook.ID,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"data":       payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	signature := security.SignPayload(data, hook.SecretKey)

	var lastErr error
deliver:
	for attempt := 1; attempt <= dispatchAttempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				lastErr = ctx.Err()
				break deliver
			case <-time.After(backoff):
			}
		}

		lastErr = d.post(ctx, hook.WebhookURL, data, signature)
		if lastErr == nil {
			break
		}
	}

	success := lastErr == nil
	message := fmt.Sprintf("Delivered %s webhook to %s", eventType, hook.Name)
	if lastErr != nil {
		message = fmt.Sprintf("Failed to deliver %s webhook to %s: %v", eventType, hook.Name, lastErr)
	}
	d.audit.Log(ctx, integration.LogEntry{
		OrganizerID:     hook.OrganizerID,
		LogType:         integration.LogWebhookSent,
		IntegrationType: "webhook",
		Message:         message,
		Success:         success,
		Details:         map[string]string{"event": eventType, "webhook_id": hook.ID},
	})
	return lastErr
}

func (d *WebhookDispatcher) post(ctx context.Context, url string, data []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "SyncHub/1.0")
	req.Header.Set("X-Webhook-Signature", signature)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
}
