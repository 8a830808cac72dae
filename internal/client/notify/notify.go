// Package notify dispatches fire-and-forget events (appointment reminders)
// after records are acknowledged by the remote system.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/iudanet/medsync/internal/models"
)

// EventConsultationSynced отправляется после подтверждения консультации сервером
const EventConsultationSynced = "consultation.synced"

// DefaultTimeout ограничивает одну доставку
const DefaultTimeout = 5 * time.Second

// Event - уведомление о синхронизированной записи
type Event struct {
	Type      string           `json:"type"`
	Table     models.Table     `json:"table"`
	Operation models.Operation `json:"operation"`
	RecordID  string           `json:"record_id"`
	ScopeID   string           `json:"scope_id"`
	UserID    string           `json:"user_id,omitempty"`
	Data      json.RawMessage  `json:"data,omitempty"`
	At        int64            `json:"at"` // мс
}

// Notifier доставляет события. Ошибки доставки никогда не влияют на синхронизацию.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NopNotifier discards events.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Event) error { return nil }

// WebhookNotifier отправляет событие POST-запросом с JSON телом
type WebhookNotifier struct {
	http *http.Client
	url  string
}

// NewWebhookNotifier creates a notifier posting to url.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &WebhookNotifier{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

// StatusError - webhook ответил не 2xx
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("webhook http status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// New returns a WebhookNotifier for a non-empty url and NopNotifier otherwise.
func New(url string, timeout time.Duration) Notifier {
	if url == "" {
		return NopNotifier{}
	}
	return NewWebhookNotifier(url, timeout)
}
