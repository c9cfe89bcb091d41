package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"integration-status-backend/internal/bus"
	"integration-status-backend/internal/notify"
	"integration-status-backend/internal/storage"
)

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
	SeverityUrgent   = "urgent"
)

const autoResolveNote = "Auto-resolved: condition no longer met"

// Store is the slice of the repository the alert engine needs. Implemented by
// *storage.Repository.
type Store interface {
	ActiveRules(ctx context.Context, integrationID string) ([]storage.AlertRule, error)
	LatestHourlyMetric(ctx context.Context, integrationID string) (storage.HourlyMetric, error)
	GetIntegration(ctx context.Context, id string) (storage.Integration, error)
	GetIncident(ctx context.Context, id string) (storage.Incident, error)
	OpenIncidentsByRule(ctx context.Context, ruleID string) ([]storage.Incident, error)
	CreateIncidentIfAbsent(ctx context.Context, inc storage.Incident) (bool, error)
	UpdateIncidentTriggerValue(ctx context.Context, incidentID string, value float64) error
	SetIncidentNotifications(ctx context.Context, incidentID string, ledger []byte) error
	MarkRuleTriggered(ctx context.Context, ruleID string, at time.Time) error
	AcknowledgeIncident(ctx context.Context, incidentID, user, note string, at time.Time) (bool, error)
	ResolveIncident(ctx context.Context, incidentID, user, note string, at time.Time, durationMinutes int) (bool, error)
}

type Broadcaster interface {
	Publish(subject string, payload any) error
}

// Engine evaluates alert rules against fresh probe outcomes and drives the
// incident lifecycle. Store errors abandon the current rule only; one broken
// rule never stops the rest of the evaluation pass.
type Engine struct {
	Store  Store
	Sender notify.Sender
	Bus    Broadcaster
	Logger *slog.Logger
}

func NewEngine(store Store, sender notify.Sender, broadcaster Broadcaster, logger *slog.Logger) *Engine {
	return &Engine{Store: store, Sender: sender, Bus: broadcaster, Logger: logger}
}

// Evaluate runs every active rule of the integration against the latest probe
// result. Called once per integration per probe cycle.
func (e *Engine) Evaluate(ctx context.Context, in storage.Integration, latest storage.ProbeResult) {
	rules, err := e.Store.ActiveRules(ctx, in.ID)
	if err != nil {
		e.Logger.Error("loading alert rules failed",
			slog.String("integration", in.ID), slog.String("error", err.Error()))
		return
	}
	for _, rule := range rules {
		e.evaluateRule(ctx, rule, in, latest)
	}
}

func (e *Engine) evaluateRule(ctx context.Context, rule storage.AlertRule, in storage.Integration, latest storage.ProbeResult) {
	value, ok := e.resolveMetric(ctx, ParseMetric(rule.Metric), in, latest)
	if !ok {
		return
	}
	if conditionMet(value, rule.Operator, rule.Threshold) {
		e.handleTriggered(ctx, rule, in, value)
	} else {
		e.handleConditionCleared(ctx, rule, in)
	}
}

func (e *Engine) handleTriggered(ctx context.Context, rule storage.AlertRule, in storage.Integration, value float64) {
	now := time.Now().UTC()
	if inCooldown(rule.LastTriggered, rule.CooldownMinutes, now) {
		return
	}
	if rule.BusinessHoursOnly && !withinBusinessHours(rule, time.Now()) {
		return
	}

	open, err := e.Store.OpenIncidentsByRule(ctx, rule.ID)
	if err != nil {
		e.Logger.Error("open incident lookup failed",
			slog.String("rule", rule.ID), slog.String("error", err.Error()))
		return
	}
	if len(open) > 0 {
		_ = e.Store.UpdateIncidentTriggerValue(ctx, open[0].ID, value)
	} else if !e.openIncident(ctx, rule, in, value, now) {
		return
	}

	if err := e.Store.MarkRuleTriggered(ctx, rule.ID, now); err != nil {
		e.Logger.Error("rule trigger bookkeeping failed",
			slog.String("rule", rule.ID), slog.String("error", err.Error()))
	}
}

// openIncident creates a new incident and fans out notifications. The insert
// is atomic against the rule's open/acknowledged uniqueness constraint: losing
// a race with a concurrent evaluation falls back to refreshing the winner's
// trigger value instead of creating a duplicate.
func (e *Engine) openIncident(ctx context.Context, rule storage.AlertRule, in storage.Integration, value float64, now time.Time) bool {
	inc := storage.Incident{
		ID:             uuid.NewString(),
		AlertRuleID:    rule.ID,
		IntegrationID:  in.ID,
		TriggeredAt:    now,
		Message:        alertMessage(rule, in, value),
		Severity:       rule.Severity,
		TriggerValue:   value,
		ThresholdValue: rule.Threshold,
		Status:         storage.IncidentOpen,
	}
	created, err := e.Store.CreateIncidentIfAbsent(ctx, inc)
	if err != nil {
		e.Logger.Error("incident creation failed",
			slog.String("rule", rule.ID), slog.String("error", err.Error()))
		return false
	}
	if !created {
		if open, err := e.Store.OpenIncidentsByRule(ctx, rule.ID); err == nil && len(open) > 0 {
			_ = e.Store.UpdateIncidentTriggerValue(ctx, open[0].ID, value)
		}
		return true
	}

	payload := map[string]any{
		"integration_name": integrationName(in),
		"alert_message":    inc.Message,
		"severity":         inc.Severity,
		"incident_id":      inc.ID,
		"trigger_value":    inc.TriggerValue,
		"threshold_value":  inc.ThresholdValue,
		"triggered_at":     inc.TriggeredAt,
	}
	ledger := notify.Dispatch(ctx, e.Sender,
		triggerChannels(rule.NotificationChannels, rule.Severity),
		rule.NotificationRecipients, payload)
	if err := e.Store.SetIncidentNotifications(ctx, inc.ID, notify.MarshalLedger(ledger)); err != nil {
		e.Logger.Error("notification ledger update failed",
			slog.String("incident", inc.ID), slog.String("error", err.Error()))
	}

	_ = e.Bus.Publish(bus.SubjectAlertNew, map[string]any{
		"id":               inc.ID,
		"integration_id":   in.ID,
		"integration_name": integrationName(in),
		"message":          inc.Message,
		"severity":         inc.Severity,
		"triggered_at":     inc.TriggeredAt,
	})
	return true
}

func (e *Engine) handleConditionCleared(ctx context.Context, rule storage.AlertRule, in storage.Integration) {
	if !rule.AutoResolve {
		return
	}
	open, err := e.Store.OpenIncidentsByRule(ctx, rule.ID)
	if err != nil {
		e.Logger.Error("open incident lookup failed",
			slog.String("rule", rule.ID), slog.String("error", err.Error()))
		return
	}
	for _, inc := range open {
		now := time.Now().UTC()
		duration := int(now.Sub(inc.TriggeredAt).Minutes())
		resolved, err := e.Store.ResolveIncident(ctx, inc.ID, "", autoResolveNote, now, duration)
		if err != nil || !resolved {
			continue
		}
		payload := map[string]any{
			"integration_name": integrationName(in),
			"alert_message":    "RESOLVED: " + inc.Message,
			"severity":         SeverityInfo,
			"incident_id":      inc.ID,
			"resolved_at":      now,
		}
		notify.Dispatch(ctx, e.Sender,
			resolutionChannels(rule.NotificationChannels),
			rule.NotificationRecipients, payload)
		_ = e.Bus.Publish(bus.SubjectAlertResolve, map[string]any{
			"alert_id":         inc.ID,
			"integration_id":   in.ID,
			"integration_name": integrationName(in),
			"resolved_at":      now,
		})
	}
}

// Acknowledge transitions an open incident to acknowledged. Returns false
// without mutating anything when the incident is not open.
func (e *Engine) Acknowledge(ctx context.Context, incidentID, user, note string) bool {
	ok, err := e.Store.AcknowledgeIncident(ctx, incidentID, user, note, time.Now().UTC())
	return err == nil && ok
}

// Resolve closes an open or acknowledged incident on behalf of an operator.
func (e *Engine) Resolve(ctx context.Context, incidentID, user, note string) bool {
	inc, err := e.Store.GetIncident(ctx, incidentID)
	if err != nil {
		return false
	}
	now := time.Now().UTC()
	duration := int(now.Sub(inc.TriggeredAt).Minutes())
	ok, err := e.Store.ResolveIncident(ctx, incidentID, user, note, now, duration)
	return err == nil && ok
}

func alertMessage(rule storage.AlertRule, in storage.Integration, value float64) string {
	return fmt.Sprintf("%s: %s - %s %s %v (current: %v)",
		in.Name, rule.Name, rule.Metric, rule.Operator, rule.Threshold, value)
}

func integrationName(in storage.Integration) string {
	if in.DisplayName != "" {
		return in.DisplayName
	}
	return in.Name
}

// triggerChannels filters the rule's channels for a new incident: SMS is
// reserved for critical and urgent severities.
func triggerChannels(channels []string, severity string) []string {
	out := make([]string, 0, len(channels))
	for _, channel := range channels {
		switch channel {
		case notify.ChannelEmail, notify.ChannelSlack, notify.ChannelWebhook:
			out = append(out, channel)
		case notify.ChannelSMS:
			if severity == SeverityCritical || severity == SeverityUrgent {
				out = append(out, channel)
			}
		}
	}
	return out
}

// resolutionChannels never includes SMS.
func resolutionChannels(channels []string) []string {
	out := make([]string, 0, len(channels))
	for _, channel := range channels {
		switch channel {
		case notify.ChannelEmail, notify.ChannelSlack, notify.ChannelWebhook:
			out = append(out, channel)
		}
	}
	return out
}
