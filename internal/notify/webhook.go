package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// WebhookSender posts notification payloads as JSON to per-channel endpoints.
// Channels without a configured endpoint fall back to structured logging, so
// email/slack/sms keep producing an auditable trail even when no gateway is
// wired up.
type WebhookSender struct {
	Endpoints map[string]string
	Client    *http.Client
	Logger    *slog.Logger
}

func NewWebhookSender(endpoints map[string]string, logger *slog.Logger) *WebhookSender {
	return &WebhookSender{
		Endpoints: endpoints,
		Client:    &http.Client{Timeout: 10 * time.Second},
		Logger:    logger,
	}
}

func (s *WebhookSender) Send(ctx context.Context, channel string, recipients []string, payload map[string]any) bool {
	endpoint := s.Endpoints[channel]
	if endpoint == "" {
		s.Logger.Info("notification (no endpoint configured)",
			slog.String("channel", channel),
			slog.Int("recipients", len(recipients)),
			slog.Any("payload", payload))
		return true
	}
	body, err := json.Marshal(map[string]any{
		"channel":    channel,
		"recipients": recipients,
		"payload":    payload,
	})
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.Client.Do(req)
	if err != nil {
		s.Logger.Error("notification delivery failed",
			slog.String("channel", channel), slog.String("error", err.Error()))
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		s.Logger.Error("notification endpoint rejected payload",
			slog.String("channel", channel), slog.Int("status", resp.StatusCode))
		return false
	}
	return true
}
