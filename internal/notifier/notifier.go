/*

This file contains the best-effort webhook notifier. Notifications are
fire-and-forget: a delivery failure is logged and dropped, never surfaced to
the trading path.

*/

package notifier

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/mevforge/searcher/internal/logger"
)

var notifyLogger = logger.GetForComponent("notifier")

// Priority classifies a notification.
type Priority string

const (
	PriorityInfo     Priority = "info"
	PriorityWarning  Priority = "warning"
	PriorityCritical Priority = "critical"
)

// Notifier delivers operator notifications. Implementations must never block
// the caller on delivery problems.
type Notifier interface {
	Notify(message string, priority Priority)
}

// Webhook posts notifications as JSON to a configured endpoint.
type Webhook struct {
	url        string
	httpClient http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:        url,
		httpClient: http.Client{Timeout: 10 * time.Second},
	}
}

type webhookPayload struct {
	Text      string   `json:"text"`
	Priority  Priority `json:"priority"`
	Timestamp string   `json:"timestamp"`
}

func (w *Webhook) Notify(message string, priority Priority) {
	payload := webhookPayload{
		Text:      message,
		Priority:  priority,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		notifyLogger.Error().Err(err).Msg("Failed to encode notification")
		return
	}

	resp, err := w.httpClient.Post(w.url, "application/json", bytes.NewBuffer(body))
	if err != nil {
		notifyLogger.Warn().Err(err).Str("priority", string(priority)).Msg("Notification delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		notifyLogger.Warn().
			Int("status", resp.StatusCode).
			Str("priority", string(priority)).
			Msg("Notification rejected by webhook")
		return
	}
	notifyLogger.Debug().Str("priority", string(priority)).Msg("Notification delivered")
}

// Nop discards all notifications. Used when no webhook is configured.
type Nop struct{}

func (Nop) Notify(string, Priority) {}
