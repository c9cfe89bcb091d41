package notify

import (
	"context"
	"encoding/json"
	"time"
)

const (
	ChannelEmail   = "email"
	ChannelSlack   = "slack"
	ChannelSMS     = "sms"
	ChannelWebhook = "webhook"
)

// Sender delivers one notification on one channel. Implementations report
// success or failure and never panic into the caller.
type Sender interface {
	Send(ctx context.Context, channel string, recipients []string, payload map[string]any) bool
}

// LedgerEntry records one delivery attempt on an incident.
type LedgerEntry struct {
	Sent      bool      `json:"sent"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// Dispatch attempts delivery on every channel and returns the per-channel
// ledger. A failing channel is recorded, not propagated; delivery problems
// must never block incident state changes.
func Dispatch(ctx context.Context, sender Sender, channels, recipients []string, payload map[string]any) map[string]LedgerEntry {
	ledger := map[string]LedgerEntry{}
	for _, channel := range channels {
		ledger[channel] = attempt(ctx, sender, channel, recipients, payload)
	}
	return ledger
}

func attempt(ctx context.Context, sender Sender, channel string, recipients []string, payload map[string]any) (entry LedgerEntry) {
	entry.Timestamp = time.Now().UTC()
	defer func() {
		if r := recover(); r != nil {
			entry.Sent = false
			entry.Error = "sender panic"
		}
	}()
	entry.Sent = sender.Send(ctx, channel, recipients, payload)
	if !entry.Sent {
		entry.Error = "delivery failed"
	}
	return entry
}

// MarshalLedger encodes the ledger for the incident's notifications_sent
// column. Encoding failures yield an empty object rather than an error.
func MarshalLedger(ledger map[string]LedgerEntry) []byte {
	data, err := json.Marshal(ledger)
	if err != nil {
		return []byte("{}")
	}
	return data
}
