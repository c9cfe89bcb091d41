package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"integration-status-backend/internal/bus"
	"integration-status-backend/internal/metrics"
	"integration-status-backend/internal/notify"
	"integration-status-backend/internal/storage"
)

const (
	JobProbeSweep       = "probe_sweep"
	JobAggregateMetrics = "aggregate_metrics"
	JobBaselines        = "baseline_calculation"
	JobEscalationSweep  = "escalation_sweep"
	JobCleanup          = "cleanup"
	JobHealthReport     = "health_report"
)

const (
	probeBatchSize  = 5
	probeStaleAfter = 5 * time.Minute

	defaultMetricsRetentionDays  = 90
	defaultCheckRetentionDays    = 30
	resolvedIncidentRetentionDay = 30
)

// Store is the slice of the repository the jobs need. Implemented by
// *storage.Repository.
type Store interface {
	DueIntegrations(ctx context.Context, cutoff time.Time) ([]storage.Integration, error)
	ActiveIntegrations(ctx context.Context) ([]storage.Integration, error)
	UpdateIntegrationStatus(ctx context.Context, id, status string, failures int, checkedAt time.Time, successful bool) error
	InsertProbeResult(ctx context.Context, rec storage.ProbeResult) error
	ProbeResultsBetween(ctx context.Context, integrationID string, start, end time.Time) ([]storage.ProbeResult, error)
	UpsertHourlyMetric(ctx context.Context, m storage.HourlyMetric) error
	HourlyMetricsSince(ctx context.Context, integrationID string, since time.Time) ([]storage.HourlyMetric, error)
	UpsertBaseline(ctx context.Context, b storage.Baseline) error
	EscalationCandidates(ctx context.Context) ([]storage.EscalationCandidate, error)
	EscalateIncident(ctx context.Context, incidentID string, level int, at time.Time, recipients []string) error
	OpenIncidentCount(ctx context.Context) (int, error)
	HealthStatusTally(ctx context.Context) (storage.HealthTally, error)
	DeleteOldHourlyMetrics(ctx context.Context, before time.Time) (int64, error)
	DeleteOldProbeResults(ctx context.Context, before time.Time) (int64, error)
	DeleteOldResolvedIncidents(ctx context.Context, before time.Time) (int64, error)
	ConfigInt(ctx context.Context, key string, fallback int) int
}

// Prober performs one health check without persisting anything.
type Prober interface {
	Check(ctx context.Context, in storage.Integration) storage.ProbeResult
}

// AlertEvaluator runs the rule set of one integration against a fresh result.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, in storage.Integration, latest storage.ProbeResult)
}

type Broadcaster interface {
	Publish(subject string, payload any) error
}

// Jobs holds the handlers behind the runner's schedule. All handlers swallow
// and log per-item errors so one bad integration cannot abort a sweep.
type Jobs struct {
	Store  Store
	Prober Prober
	Alerts AlertEvaluator
	Sender notify.Sender
	Bus    Broadcaster
	Logger *slog.Logger
}

// ProbeSweep checks every due integration in batches of five concurrent
// probes. Batches run sequentially to bound outbound pressure.
func (j *Jobs) ProbeSweep(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-probeStaleAfter)
	due, err := j.Store.DueIntegrations(ctx, cutoff)
	if err != nil {
		j.Logger.Error("due integration query failed", slog.String("error", err.Error()))
		return
	}
	for start := 0; start < len(due); start += probeBatchSize {
		end := start + probeBatchSize
		if end > len(due) {
			end = len(due)
		}
		var wg sync.WaitGroup
		for _, in := range due[start:end] {
			wg.Add(1)
			go func(in storage.Integration) {
				defer wg.Done()
				j.probeOne(ctx, in)
			}(in)
		}
		wg.Wait()
	}
}

func (j *Jobs) probeOne(ctx context.Context, in storage.Integration) {
	result := j.Prober.Check(ctx, in)
	if err := j.Store.InsertProbeResult(ctx, result); err != nil {
		j.Logger.Error("probe result insert failed",
			slog.String("integration", in.ID), slog.String("error", err.Error()))
	}

	failures := in.ConsecutiveFailures + 1
	if result.IsSuccessful {
		failures = 0
	}
	if err := j.Store.UpdateIntegrationStatus(ctx, in.ID, result.HealthStatus, failures,
		result.CheckedAt, result.IsSuccessful); err != nil {
		j.Logger.Error("integration status update failed",
			slog.String("integration", in.ID), slog.String("error", err.Error()))
	}

	if result.HealthStatus != in.HealthStatus {
		_ = j.Bus.Publish(bus.SubjectStatusUpdate, map[string]any{
			"integration_id":   in.ID,
			"integration_name": in.Name,
			"old_status":       in.HealthStatus,
			"new_status":       result.HealthStatus,
			"checked_at":       result.CheckedAt,
		})
	}

	j.Alerts.Evaluate(ctx, in, result)
}

// AggregateMetrics rolls the current hour's probe results into one metrics row
// per active integration. The upsert makes re-runs within the hour idempotent.
func (j *Jobs) AggregateMetrics(ctx context.Context) {
	active, err := j.Store.ActiveIntegrations(ctx)
	if err != nil {
		j.Logger.Error("active integration query failed", slog.String("error", err.Error()))
		return
	}
	now := time.Now().UTC()
	hourStart := now.Truncate(time.Hour)
	metricDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for _, in := range active {
		checks, err := j.Store.ProbeResultsBetween(ctx, in.ID, hourStart, hourStart.Add(time.Hour))
		if err != nil {
			j.Logger.Error("probe history query failed",
				slog.String("integration", in.ID), slog.String("error", err.Error()))
			continue
		}
		rollup, ok := metrics.HourlyRollup(in.ID, metricDate, now.Hour(), checks)
		if !ok {
			continue
		}
		if err := j.Store.UpsertHourlyMetric(ctx, rollup); err != nil {
			j.Logger.Error("metric upsert failed",
				slog.String("integration", in.ID), slog.String("error", err.Error()))
		}
	}
}

// ComputeBaselines rebuilds the rolling 30-day baseline for every active
// integration from its hourly metrics.
func (j *Jobs) ComputeBaselines(ctx context.Context) {
	active, err := j.Store.ActiveIntegrations(ctx)
	if err != nil {
		j.Logger.Error("active integration query failed", slog.String("error", err.Error()))
		return
	}
	now := time.Now().UTC()
	windowStart := now.AddDate(0, 0, -30)
	for _, in := range active {
		rows, err := j.Store.HourlyMetricsSince(ctx, in.ID, windowStart)
		if err != nil {
			j.Logger.Error("metric history query failed",
				slog.String("integration", in.ID), slog.String("error", err.Error()))
			continue
		}
		baseline, ok := metrics.ComputeBaseline(in.ID, rows, windowStart, now, now)
		if !ok {
			continue
		}
		if err := j.Store.UpsertBaseline(ctx, baseline); err != nil {
			j.Logger.Error("baseline upsert failed",
				slog.String("integration", in.ID), slog.String("error", err.Error()))
		}
	}
}

// shouldEscalate reports whether an unescalated incident has been open longer
// than its rule's escalation delay.
func shouldEscalate(c storage.EscalationCandidate, now time.Time) bool {
	if c.Incident.EscalationLevel != 0 || c.EscalationAfterMinutes <= 0 {
		return false
	}
	deadline := c.Incident.TriggeredAt.Add(time.Duration(c.EscalationAfterMinutes) * time.Minute)
	return !now.Before(deadline)
}

// EscalationSweep raises overdue incidents to escalation level one and
// notifies the rule's escalation recipients. Each incident escalates at most
// once.
func (j *Jobs) EscalationSweep(ctx context.Context) {
	candidates, err := j.Store.EscalationCandidates(ctx)
	if err != nil {
		j.Logger.Error("escalation candidate query failed", slog.String("error", err.Error()))
		return
	}
	now := time.Now().UTC()
	for _, c := range candidates {
		if !shouldEscalate(c, now) {
			continue
		}
		if err := j.Store.EscalateIncident(ctx, c.Incident.ID, 1, now, c.EscalationRecipients); err != nil {
			j.Logger.Error("incident escalation failed",
				slog.String("incident", c.Incident.ID), slog.String("error", err.Error()))
			continue
		}
		payload := map[string]any{
			"incident_id":    c.Incident.ID,
			"integration_id": c.Incident.IntegrationID,
			"severity":       c.Incident.Severity,
			"triggered_at":   c.Incident.TriggeredAt,
			"escalated_at":   now,
		}
		notify.Dispatch(ctx, j.Sender, []string{notify.ChannelEmail}, c.EscalationRecipients, payload)
		_ = j.Bus.Publish(bus.SubjectAlertEscalated, payload)
		j.Logger.Info("incident escalated",
			slog.String("incident", c.Incident.ID),
			slog.Int("after_minutes", c.EscalationAfterMinutes))
	}
}

// Cleanup prunes aged rows per the retention settings in the system config
// table.
func (j *Jobs) Cleanup(ctx context.Context) {
	now := time.Now().UTC()
	metricsDays := j.Store.ConfigInt(ctx, "metrics_retention_days", defaultMetricsRetentionDays)
	checkDays := j.Store.ConfigInt(ctx, "health_check_retention_days", defaultCheckRetentionDays)

	if n, err := j.Store.DeleteOldHourlyMetrics(ctx, now.AddDate(0, 0, -metricsDays)); err != nil {
		j.Logger.Error("metric cleanup failed", slog.String("error", err.Error()))
	} else if n > 0 {
		j.Logger.Info("old metrics deleted", slog.Int64("rows", n))
	}
	if n, err := j.Store.DeleteOldProbeResults(ctx, now.AddDate(0, 0, -checkDays)); err != nil {
		j.Logger.Error("probe result cleanup failed", slog.String("error", err.Error()))
	} else if n > 0 {
		j.Logger.Info("old probe results deleted", slog.Int64("rows", n))
	}
	if n, err := j.Store.DeleteOldResolvedIncidents(ctx, now.AddDate(0, 0, -resolvedIncidentRetentionDay)); err != nil {
		j.Logger.Error("incident cleanup failed", slog.String("error", err.Error()))
	} else if n > 0 {
		j.Logger.Info("old resolved incidents deleted", slog.Int64("rows", n))
	}
}

// HealthReport broadcasts the fleet-wide health summary.
func (j *Jobs) HealthReport(ctx context.Context) {
	tally, err := j.Store.HealthStatusTally(ctx)
	if err != nil {
		j.Logger.Error("health tally query failed", slog.String("error", err.Error()))
		return
	}
	openIncidents, err := j.Store.OpenIncidentCount(ctx)
	if err != nil {
		j.Logger.Error("open incident count failed", slog.String("error", err.Error()))
		return
	}
	_ = j.Bus.Publish(bus.SubjectHealthReport, map[string]any{
		"timestamp": time.Now().UTC(),
		"integrations": map[string]any{
			"total":    tally.Total,
			"healthy":  tally.Healthy,
			"warning":  tally.Warning,
			"critical": tally.Critical,
			"unknown":  tally.Unknown,
		},
		"active_incidents": openIncidents,
	})
}
