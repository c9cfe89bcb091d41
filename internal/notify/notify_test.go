package notify

import (
	"context"
	"testing"
)

type scriptedSender struct {
	results map[string]bool
	panics  map[string]bool
	calls   []string
}

func (s *scriptedSender) Send(ctx context.Context, channel string, recipients []string, payload map[string]any) bool {
	s.calls = append(s.calls, channel)
	if s.panics[channel] {
		panic("boom")
	}
	return s.results[channel]
}

func TestDispatchLedger(t *testing.T) {
	sender := &scriptedSender{results: map[string]bool{"email": true, "slack": false}}
	ledger := Dispatch(context.Background(), sender, []string{"email", "slack"}, nil, map[string]any{"k": "v"})
	if len(ledger) != 2 {
		t.Fatalf("expected 2 entries got %d", len(ledger))
	}
	if !ledger["email"].Sent {
		t.Fatalf("expected email sent")
	}
	if ledger["slack"].Sent || ledger["slack"].Error == "" {
		t.Fatalf("expected slack failure recorded: %+v", ledger["slack"])
	}
}

func TestDispatchSurvivesPanic(t *testing.T) {
	sender := &scriptedSender{results: map[string]bool{"webhook": true}, panics: map[string]bool{"sms": true}}
	ledger := Dispatch(context.Background(), sender, []string{"sms", "webhook"}, nil, nil)
	if ledger["sms"].Sent || ledger["sms"].Error != "sender panic" {
		t.Fatalf("expected panic captured: %+v", ledger["sms"])
	}
	if !ledger["webhook"].Sent {
		t.Fatalf("expected webhook attempted after panic")
	}
}
