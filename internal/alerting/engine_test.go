package alerting

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"integration-status-backend/internal/storage"
)

type fakeStore struct {
	mu           sync.Mutex
	rules        []storage.AlertRule
	integration  storage.Integration
	latestMetric *storage.HourlyMetric
	incidents    map[string]*storage.Incident
	triggerMarks map[string]int
	ledgerWrites map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		incidents:    map[string]*storage.Incident{},
		triggerMarks: map[string]int{},
		ledgerWrites: map[string][]byte{},
	}
}

func (f *fakeStore) ActiveRules(ctx context.Context, integrationID string) ([]storage.AlertRule, error) {
	return f.rules, nil
}

func (f *fakeStore) LatestHourlyMetric(ctx context.Context, integrationID string) (storage.HourlyMetric, error) {
	if f.latestMetric == nil {
		return storage.HourlyMetric{}, storage.ErrNotFound
	}
	return *f.latestMetric, nil
}

func (f *fakeStore) GetIntegration(ctx context.Context, id string) (storage.Integration, error) {
	return f.integration, nil
}

func (f *fakeStore) GetIncident(ctx context.Context, id string) (storage.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inc, ok := f.incidents[id]; ok {
		return *inc, nil
	}
	return storage.Incident{}, storage.ErrNotFound
}

func (f *fakeStore) OpenIncidentsByRule(ctx context.Context, ruleID string) ([]storage.Incident, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	results := []storage.Incident{}
	for _, inc := range f.incidents {
		if inc.AlertRuleID == ruleID && (inc.Status == storage.IncidentOpen || inc.Status == storage.IncidentAcknowledged) {
			results = append(results, *inc)
		}
	}
	return results, nil
}

func (f *fakeStore) CreateIncidentIfAbsent(ctx context.Context, inc storage.Incident) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.incidents {
		if existing.AlertRuleID == inc.AlertRuleID &&
			(existing.Status == storage.IncidentOpen || existing.Status == storage.IncidentAcknowledged) {
			return false, nil
		}
	}
	stored := inc
	f.incidents[inc.ID] = &stored
	return true, nil
}

func (f *fakeStore) UpdateIncidentTriggerValue(ctx context.Context, incidentID string, value float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if inc, ok := f.incidents[incidentID]; ok {
		inc.TriggerValue = value
	}
	return nil
}

func (f *fakeStore) SetIncidentNotifications(ctx context.Context, incidentID string, ledger []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ledgerWrites[incidentID] = ledger
	return nil
}

func (f *fakeStore) MarkRuleTriggered(ctx context.Context, ruleID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggerMarks[ruleID]++
	for i := range f.rules {
		if f.rules[i].ID == ruleID {
			stamped := at
			f.rules[i].LastTriggered = &stamped
			f.rules[i].TriggerCount++
		}
	}
	return nil
}

func (f *fakeStore) AcknowledgeIncident(ctx context.Context, incidentID, user, note string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inc, ok := f.incidents[incidentID]
	if !ok || inc.Status != storage.IncidentOpen {
		return false, nil
	}
	inc.Status = storage.IncidentAcknowledged
	inc.AcknowledgedBy = user
	inc.AcknowledgedAt = &at
	return true, nil
}

func (f *fakeStore) ResolveIncident(ctx context.Context, incidentID, user, note string, at time.Time, durationMinutes int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inc, ok := f.incidents[incidentID]
	if !ok || (inc.Status != storage.IncidentOpen && inc.Status != storage.IncidentAcknowledged) {
		return false, nil
	}
	inc.Status = storage.IncidentResolved
	inc.ResolvedBy = user
	inc.ResolvedAt = &at
	inc.ResolutionNote = note
	inc.DurationMinutes = &durationMinutes
	return true, nil
}

func (f *fakeStore) openCount(ruleID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, inc := range f.incidents {
		if inc.AlertRuleID == ruleID && (inc.Status == storage.IncidentOpen || inc.Status == storage.IncidentAcknowledged) {
			count++
		}
	}
	return count
}

type recordingSender struct {
	mu       sync.Mutex
	channels []string
}

func (s *recordingSender) Send(ctx context.Context, channel string, recipients []string, payload map[string]any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = append(s.channels, channel)
	return true
}

type recordingBus struct {
	mu       sync.Mutex
	subjects []string
}

func (b *recordingBus) Publish(subject string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subjects = append(b.subjects, subject)
	return nil
}

func testEngine(store *fakeStore) (*Engine, *recordingSender, *recordingBus) {
	sender := &recordingSender{}
	broadcaster := &recordingBus{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewEngine(store, sender, broadcaster, logger), sender, broadcaster
}

func failureRule() storage.AlertRule {
	return storage.AlertRule{
		ID:                   "rule-1",
		IntegrationID:        "int-1",
		Name:                 "failure streak",
		Metric:               "consecutive_failures",
		Operator:             ">=",
		Threshold:            1,
		Severity:             SeverityCritical,
		AutoResolve:          true,
		NotificationChannels: []string{"email", "slack", "sms"},
		IsActive:             true,
	}
}

func failedProbe() storage.ProbeResult {
	latency := 6001
	return storage.ProbeResult{
		IntegrationID:  "int-1",
		ResponseTimeMS: &latency,
		IsSuccessful:   false,
		HealthStatus:   storage.HealthCritical,
	}
}

func TestEvaluateOpensIncident(t *testing.T) {
	store := newFakeStore()
	store.integration = storage.Integration{ID: "int-1", Name: "payments", ConsecutiveFailures: 1}
	store.rules = []storage.AlertRule{failureRule()}
	engine, sender, broadcaster := testEngine(store)

	engine.Evaluate(context.Background(), store.integration, failedProbe())

	if store.openCount("rule-1") != 1 {
		t.Fatalf("expected one open incident got %d", store.openCount("rule-1"))
	}
	if store.triggerMarks["rule-1"] != 1 {
		t.Fatalf("expected rule marked triggered once")
	}
	if len(store.ledgerWrites) != 1 {
		t.Fatalf("expected one notification ledger write")
	}
	// critical severity: sms allowed alongside email and slack
	if len(sender.channels) != 3 {
		t.Fatalf("expected 3 channel deliveries got %v", sender.channels)
	}
	if len(broadcaster.subjects) != 1 || broadcaster.subjects[0] != "alert.new" {
		t.Fatalf("expected alert.new broadcast got %v", broadcaster.subjects)
	}
}

func TestEvaluateUpdatesExistingIncident(t *testing.T) {
	store := newFakeStore()
	store.integration = storage.Integration{ID: "int-1", Name: "payments", ConsecutiveFailures: 2}
	store.rules = []storage.AlertRule{failureRule()}
	engine, sender, _ := testEngine(store)

	engine.Evaluate(context.Background(), store.integration, failedProbe())
	firstDeliveries := len(sender.channels)
	store.integration.ConsecutiveFailures = 3
	engine.Evaluate(context.Background(), store.integration, failedProbe())

	if store.openCount("rule-1") != 1 {
		t.Fatalf("expected still one open incident")
	}
	if len(sender.channels) != firstDeliveries {
		t.Fatalf("expected no new notifications for an already-open incident")
	}
	for _, inc := range store.incidents {
		if inc.TriggerValue != 3 {
			t.Fatalf("expected refreshed trigger value 3 got %v", inc.TriggerValue)
		}
	}
	if store.triggerMarks["rule-1"] != 2 {
		t.Fatalf("expected trigger bookkeeping on every met evaluation")
	}
}

func TestAtMostOneOpenIncidentUnderConcurrency(t *testing.T) {
	store := newFakeStore()
	store.integration = storage.Integration{ID: "int-1", Name: "payments", ConsecutiveFailures: 5}
	rule := failureRule()
	rule.CooldownMinutes = 0
	store.rules = []storage.AlertRule{rule}
	engine, _, _ := testEngine(store)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			engine.Evaluate(context.Background(), store.integration, failedProbe())
		}()
	}
	wg.Wait()

	if store.openCount("rule-1") != 1 {
		t.Fatalf("invariant violated: %d open incidents", store.openCount("rule-1"))
	}
}

func TestCooldownSuppressesNewIncident(t *testing.T) {
	store := newFakeStore()
	store.integration = storage.Integration{ID: "int-1", Name: "payments", ConsecutiveFailures: 1}
	rule := failureRule()
	last := time.Now().UTC().Add(-10 * time.Minute)
	rule.LastTriggered = &last
	rule.CooldownMinutes = 30
	store.rules = []storage.AlertRule{rule}
	engine, sender, _ := testEngine(store)

	engine.Evaluate(context.Background(), store.integration, failedProbe())

	if store.openCount("rule-1") != 0 || len(sender.channels) != 0 {
		t.Fatalf("expected cooldown suppression")
	}
}

func TestCooldownExpiredFires(t *testing.T) {
	store := newFakeStore()
	store.integration = storage.Integration{ID: "int-1", Name: "payments", ConsecutiveFailures: 1}
	rule := failureRule()
	last := time.Now().UTC().Add(-31 * time.Minute)
	rule.LastTriggered = &last
	rule.CooldownMinutes = 30
	store.rules = []storage.AlertRule{rule}
	engine, _, _ := testEngine(store)

	engine.Evaluate(context.Background(), store.integration, failedProbe())

	if store.openCount("rule-1") != 1 {
		t.Fatalf("expected incident after cooldown expiry")
	}
}

func TestAutoResolve(t *testing.T) {
	store := newFakeStore()
	store.integration = storage.Integration{ID: "int-1", Name: "payments", ConsecutiveFailures: 0}
	store.rules = []storage.AlertRule{failureRule()}
	triggeredAt := time.Now().UTC().Add(-30 * time.Minute)
	store.incidents["inc-1"] = &storage.Incident{
		ID: "inc-1", AlertRuleID: "rule-1", IntegrationID: "int-1",
		TriggeredAt: triggeredAt, Status: storage.IncidentOpen, Message: "payments down",
	}
	engine, sender, broadcaster := testEngine(store)

	healthy := storage.ProbeResult{IsSuccessful: true}
	engine.Evaluate(context.Background(), store.integration, healthy)

	inc := store.incidents["inc-1"]
	if inc.Status != storage.IncidentResolved {
		t.Fatalf("expected resolved got %q", inc.Status)
	}
	if inc.DurationMinutes == nil || *inc.DurationMinutes < 29 || *inc.DurationMinutes > 31 {
		t.Fatalf("expected ~30 minute duration got %+v", inc.DurationMinutes)
	}
	if inc.ResolutionNote != autoResolveNote {
		t.Fatalf("unexpected note %q", inc.ResolutionNote)
	}
	for _, channel := range sender.channels {
		if channel == "sms" {
			t.Fatalf("resolution must not go out via sms")
		}
	}
	if len(broadcaster.subjects) != 1 || broadcaster.subjects[0] != "alert.resolved" {
		t.Fatalf("expected alert.resolved broadcast got %v", broadcaster.subjects)
	}
}

func TestNoAutoResolveWhenDisabled(t *testing.T) {
	store := newFakeStore()
	store.integration = storage.Integration{ID: "int-1", Name: "payments"}
	rule := failureRule()
	rule.AutoResolve = false
	store.rules = []storage.AlertRule{rule}
	store.incidents["inc-1"] = &storage.Incident{
		ID: "inc-1", AlertRuleID: "rule-1", Status: storage.IncidentOpen,
		TriggeredAt: time.Now().UTC().Add(-5 * time.Minute),
	}
	engine, _, _ := testEngine(store)

	engine.Evaluate(context.Background(), store.integration, storage.ProbeResult{IsSuccessful: true})

	if store.incidents["inc-1"].Status != storage.IncidentOpen {
		t.Fatalf("expected incident left open")
	}
}

func TestAcknowledgeLifecycle(t *testing.T) {
	store := newFakeStore()
	store.incidents["inc-1"] = &storage.Incident{
		ID: "inc-1", AlertRuleID: "rule-1", Status: storage.IncidentOpen,
		TriggeredAt: time.Now().UTC().Add(-10 * time.Minute),
	}
	engine, _, _ := testEngine(store)
	ctx := context.Background()

	if !engine.Acknowledge(ctx, "inc-1", "alice", "looking") {
		t.Fatalf("expected acknowledge to succeed")
	}
	if engine.Acknowledge(ctx, "inc-1", "bob", "") {
		t.Fatalf("acknowledge must only apply to open incidents")
	}
	if !engine.Resolve(ctx, "inc-1", "alice", "restarted upstream") {
		t.Fatalf("expected resolve from acknowledged to succeed")
	}
	if engine.Resolve(ctx, "inc-1", "alice", "again") {
		t.Fatalf("resolve on a resolved incident must fail")
	}
	if engine.Resolve(ctx, "missing", "alice", "note") {
		t.Fatalf("resolve on unknown incident must fail")
	}
}

func TestUnknownOperatorNeverFires(t *testing.T) {
	store := newFakeStore()
	store.integration = storage.Integration{ID: "int-1", Name: "payments", ConsecutiveFailures: 5}
	rule := failureRule()
	rule.Operator = "~"
	store.rules = []storage.AlertRule{rule}
	engine, _, _ := testEngine(store)

	engine.Evaluate(context.Background(), store.integration, failedProbe())

	if store.openCount("rule-1") != 0 {
		t.Fatalf("unknown operator must evaluate to false")
	}
}

func TestUnresolvableMetricSkipsRule(t *testing.T) {
	store := newFakeStore()
	store.integration = storage.Integration{ID: "int-1", Name: "payments"}
	rule := failureRule()
	rule.Metric = "uptime_percentage" // no hourly metric in the fake store
	store.rules = []storage.AlertRule{rule}
	engine, _, _ := testEngine(store)

	engine.Evaluate(context.Background(), store.integration, failedProbe())

	if store.openCount("rule-1") != 0 || store.triggerMarks["rule-1"] != 0 {
		t.Fatalf("expected rule skipped when metric is unresolvable")
	}
}

func TestResponseTimeRuleFires(t *testing.T) {
	store := newFakeStore()
	store.integration = storage.Integration{ID: "int-1", Name: "payments"}
	rule := failureRule()
	rule.Metric = "response_time"
	rule.Operator = ">"
	rule.Threshold = 5000
	store.rules = []storage.AlertRule{rule}
	engine, _, _ := testEngine(store)

	engine.Evaluate(context.Background(), store.integration, failedProbe())

	if store.openCount("rule-1") != 1 {
		t.Fatalf("expected response_time rule to fire at 6001ms")
	}
}

func TestTriggerChannelGating(t *testing.T) {
	channels := []string{"email", "slack", "sms", "webhook", "pager"}
	got := triggerChannels(channels, SeverityWarning)
	for _, channel := range got {
		if channel == "sms" {
			t.Fatalf("sms must be gated for warning severity")
		}
		if channel == "pager" {
			t.Fatalf("unknown channels must be dropped")
		}
	}
	got = triggerChannels(channels, SeverityUrgent)
	found := false
	for _, channel := range got {
		if channel == "sms" {
			found = true
		}
	}
	if !found {
		t.Fatalf("sms expected for urgent severity")
	}
}
