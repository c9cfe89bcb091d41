package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
)

type Repository struct {
	Store *Store
}

func NewRepository(store *Store) *Repository {
	return &Repository{Store: store}
}

const integrationColumns = `id, name, display_name, base_url, health_check_endpoint, http_method,
	request_body, custom_headers, auth_type, auth_config, timeout_seconds, expected_status_codes,
	expected_content, is_active, monitoring_enabled, current_health_status, consecutive_failures,
	last_health_check, last_successful_check`

func scanIntegration(row pgx.Row) (Integration, error) {
	var rec Integration
	err := row.Scan(&rec.ID, &rec.Name, &rec.DisplayName, &rec.BaseURL, &rec.HealthEndpoint,
		&rec.Method, &rec.RequestBody, &rec.CustomHeaders, &rec.AuthType, &rec.AuthConfig,
		&rec.TimeoutSeconds, &rec.ExpectedStatusCodes, &rec.ExpectedContent, &rec.IsActive,
		&rec.MonitoringEnabled, &rec.HealthStatus, &rec.ConsecutiveFailures,
		&rec.LastHealthCheck, &rec.LastSuccessfulCheck)
	return rec, err
}

func (r *Repository) GetIntegration(ctx context.Context, id string) (Integration, error) {
	row := r.Store.Pool.QueryRow(ctx, `SELECT `+integrationColumns+` FROM integrations WHERE id=$1`, id)
	rec, err := scanIntegration(row)
	if err != nil {
		return Integration{}, ErrNotFound
	}
	return rec, nil
}

// DueIntegrations returns active, monitoring-enabled integrations that were
// never checked or whose last check is older than the cutoff.
func (r *Repository) DueIntegrations(ctx context.Context, cutoff time.Time) ([]Integration, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT `+integrationColumns+` FROM integrations
		WHERE is_active = true AND monitoring_enabled = true
		AND (last_health_check IS NULL OR last_health_check < $1)`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []Integration{}
	for rows.Next() {
		rec, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

func (r *Repository) ActiveIntegrations(ctx context.Context) ([]Integration, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT `+integrationColumns+` FROM integrations WHERE is_active = true`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []Integration{}
	for rows.Next() {
		rec, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// UpdateIntegrationStatus applies the outcome of one probe. The successful
// flag resets the failure counter and stamps last_successful_check.
func (r *Repository) UpdateIntegrationStatus(ctx context.Context, id, status string, failures int, checkedAt time.Time, successful bool) error {
	if successful {
		_, err := r.Store.Pool.Exec(ctx, `
			UPDATE integrations SET current_health_status=$1, consecutive_failures=$2,
			last_health_check=$3, last_successful_check=$3, updated_at=now() WHERE id=$4`,
			status, failures, checkedAt, id)
		return err
	}
	_, err := r.Store.Pool.Exec(ctx, `
		UPDATE integrations SET current_health_status=$1, consecutive_failures=$2,
		last_health_check=$3, updated_at=now() WHERE id=$4`,
		status, failures, checkedAt, id)
	return err
}

func (r *Repository) HealthStatusTally(ctx context.Context) (HealthTally, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT current_health_status, count(*) FROM integrations
		WHERE is_active = true GROUP BY current_health_status`)
	if err != nil {
		return HealthTally{}, err
	}
	defer rows.Close()
	tally := HealthTally{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return HealthTally{}, err
		}
		tally.Total += count
		switch status {
		case HealthHealthy:
			tally.Healthy = count
		case HealthWarning:
			tally.Warning = count
		case HealthCritical:
			tally.Critical = count
		default:
			tally.Unknown += count
		}
	}
	return tally, rows.Err()
}

func (r *Repository) InsertProbeResult(ctx context.Context, rec ProbeResult) error {
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO integration_health_checks (id, integration_id, check_timestamp, response_time_ms,
			status_code, response_body, error_message, is_successful, health_status, check_type,
			availability_score, performance_score)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		rec.ID, rec.IntegrationID, rec.CheckedAt, rec.ResponseTimeMS, rec.StatusCode,
		rec.ResponseBody, rec.ErrorMessage, rec.IsSuccessful, rec.HealthStatus, rec.CheckType,
		rec.AvailabilityScore, rec.PerformanceScore)
	return err
}

func (r *Repository) ProbeResultsBetween(ctx context.Context, integrationID string, start, end time.Time) ([]ProbeResult, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT id, integration_id, check_timestamp, response_time_ms, status_code, response_body,
			error_message, is_successful, health_status, check_type, availability_score, performance_score
		FROM integration_health_checks
		WHERE integration_id=$1 AND check_timestamp >= $2 AND check_timestamp < $3
		ORDER BY check_timestamp ASC`, integrationID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []ProbeResult{}
	for rows.Next() {
		var rec ProbeResult
		if err := rows.Scan(&rec.ID, &rec.IntegrationID, &rec.CheckedAt, &rec.ResponseTimeMS,
			&rec.StatusCode, &rec.ResponseBody, &rec.ErrorMessage, &rec.IsSuccessful,
			&rec.HealthStatus, &rec.CheckType, &rec.AvailabilityScore, &rec.PerformanceScore); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// UpsertHourlyMetric is idempotent on (integration_id, metric_date, metric_hour);
// re-running an aggregation overwrites the row.
func (r *Repository) UpsertHourlyMetric(ctx context.Context, m HourlyMetric) error {
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO integration_metrics (integration_id, metric_date, metric_hour, total_checks,
			successful_checks, failed_checks, avg_response_time_ms, min_response_time_ms,
			max_response_time_ms, p50_response_time_ms, p95_response_time_ms, p99_response_time_ms,
			error_count, status_2xx_count, status_3xx_count, status_4xx_count, status_5xx_count,
			timeout_count, uptime_percentage, error_rate, availability_score, performance_score,
			reliability_score, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,now())
		ON CONFLICT (integration_id, metric_date, metric_hour) DO UPDATE SET
			total_checks=EXCLUDED.total_checks, successful_checks=EXCLUDED.successful_checks,
			failed_checks=EXCLUDED.failed_checks, avg_response_time_ms=EXCLUDED.avg_response_time_ms,
			min_response_time_ms=EXCLUDED.min_response_time_ms, max_response_time_ms=EXCLUDED.max_response_time_ms,
			p50_response_time_ms=EXCLUDED.p50_response_time_ms, p95_response_time_ms=EXCLUDED.p95_response_time_ms,
			p99_response_time_ms=EXCLUDED.p99_response_time_ms, error_count=EXCLUDED.error_count,
			status_2xx_count=EXCLUDED.status_2xx_count, status_3xx_count=EXCLUDED.status_3xx_count,
			status_4xx_count=EXCLUDED.status_4xx_count, status_5xx_count=EXCLUDED.status_5xx_count,
			timeout_count=EXCLUDED.timeout_count, uptime_percentage=EXCLUDED.uptime_percentage,
			error_rate=EXCLUDED.error_rate, availability_score=EXCLUDED.availability_score,
			performance_score=EXCLUDED.performance_score, reliability_score=EXCLUDED.reliability_score`,
		m.IntegrationID, m.MetricDate, m.MetricHour, m.TotalChecks, m.SuccessfulChecks,
		m.FailedChecks, m.AvgResponseTimeMS, m.MinResponseTimeMS, m.MaxResponseTimeMS,
		m.P50ResponseTimeMS, m.P95ResponseTimeMS, m.P99ResponseTimeMS, m.ErrorCount,
		m.Status2xxCount, m.Status3xxCount, m.Status4xxCount, m.Status5xxCount, m.TimeoutCount,
		m.UptimePercentage, m.ErrorRate, m.AvailabilityScore, m.PerformanceScore, m.ReliabilityScore)
	return err
}

func (r *Repository) LatestHourlyMetric(ctx context.Context, integrationID string) (HourlyMetric, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT integration_id, metric_date, metric_hour, total_checks, successful_checks, failed_checks,
			avg_response_time_ms, uptime_percentage, error_rate
		FROM integration_metrics WHERE integration_id=$1
		ORDER BY metric_date DESC, metric_hour DESC LIMIT 1`, integrationID)
	var m HourlyMetric
	if err := row.Scan(&m.IntegrationID, &m.MetricDate, &m.MetricHour, &m.TotalChecks,
		&m.SuccessfulChecks, &m.FailedChecks, &m.AvgResponseTimeMS, &m.UptimePercentage,
		&m.ErrorRate); err != nil {
		return HourlyMetric{}, ErrNotFound
	}
	return m, nil
}

func (r *Repository) HourlyMetricsSince(ctx context.Context, integrationID string, since time.Time) ([]HourlyMetric, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT integration_id, metric_date, metric_hour, total_checks, successful_checks, failed_checks,
			avg_response_time_ms, uptime_percentage, error_rate
		FROM integration_metrics WHERE integration_id=$1 AND metric_date >= $2
		ORDER BY metric_date ASC, metric_hour ASC`, integrationID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []HourlyMetric{}
	for rows.Next() {
		var m HourlyMetric
		if err := rows.Scan(&m.IntegrationID, &m.MetricDate, &m.MetricHour, &m.TotalChecks,
			&m.SuccessfulChecks, &m.FailedChecks, &m.AvgResponseTimeMS, &m.UptimePercentage,
			&m.ErrorRate); err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

func (r *Repository) UpsertBaseline(ctx context.Context, b Baseline) error {
	_, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO integration_baselines (integration_id, baseline_type, baseline_start_date,
			baseline_end_date, baseline_response_time_ms, baseline_uptime_percentage,
			baseline_error_rate, baseline_requests_per_hour, response_time_std_dev, uptime_std_dev,
			sample_size, confidence_level, is_active, last_calculated)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (integration_id, baseline_type, baseline_start_date) DO UPDATE SET
			baseline_end_date=EXCLUDED.baseline_end_date,
			baseline_response_time_ms=EXCLUDED.baseline_response_time_ms,
			baseline_uptime_percentage=EXCLUDED.baseline_uptime_percentage,
			baseline_error_rate=EXCLUDED.baseline_error_rate,
			baseline_requests_per_hour=EXCLUDED.baseline_requests_per_hour,
			response_time_std_dev=EXCLUDED.response_time_std_dev,
			uptime_std_dev=EXCLUDED.uptime_std_dev, sample_size=EXCLUDED.sample_size,
			confidence_level=EXCLUDED.confidence_level, is_active=EXCLUDED.is_active,
			last_calculated=EXCLUDED.last_calculated`,
		b.IntegrationID, b.BaselineType, b.WindowStart, b.WindowEnd, b.ResponseTimeMS,
		b.UptimePercentage, b.ErrorRate, b.RequestsPerHour, b.ResponseTimeStdDev, b.UptimeStdDev,
		b.SampleSize, b.ConfidenceLevel, b.IsActive, b.LastCalculated)
	return err
}

const ruleColumns = `id, integration_id, rule_name, rule_description, condition_metric,
	condition_operator, condition_threshold, condition_duration_minutes, severity, auto_resolve,
	cooldown_minutes, notification_channels, notification_recipients, escalation_enabled,
	escalation_after_minutes, escalation_recipients, is_active, last_triggered, trigger_count,
	business_hours_only, business_hours_start, business_hours_end, business_days`

func scanRule(row pgx.Row) (AlertRule, error) {
	var rec AlertRule
	err := row.Scan(&rec.ID, &rec.IntegrationID, &rec.Name, &rec.Description, &rec.Metric,
		&rec.Operator, &rec.Threshold, &rec.DurationMinutes, &rec.Severity, &rec.AutoResolve,
		&rec.CooldownMinutes, &rec.NotificationChannels, &rec.NotificationRecipients,
		&rec.EscalationEnabled, &rec.EscalationAfterMinutes, &rec.EscalationRecipients,
		&rec.IsActive, &rec.LastTriggered, &rec.TriggerCount, &rec.BusinessHoursOnly,
		&rec.BusinessHoursStart, &rec.BusinessHoursEnd, &rec.BusinessDays)
	return rec, err
}

func (r *Repository) ActiveRules(ctx context.Context, integrationID string) ([]AlertRule, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT `+ruleColumns+` FROM alert_rules
		WHERE integration_id=$1 AND is_active = true`, integrationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []AlertRule{}
	for rows.Next() {
		rec, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

func (r *Repository) MarkRuleTriggered(ctx context.Context, ruleID string, at time.Time) error {
	_, err := r.Store.Pool.Exec(ctx, `
		UPDATE alert_rules SET last_triggered=$1, trigger_count=trigger_count+1, updated_at=now()
		WHERE id=$2`, at, ruleID)
	return err
}

const incidentColumns = `id, alert_rule_id, integration_id, triggered_at, resolved_at, alert_message,
	severity, trigger_value, threshold_value, status, acknowledged_by, acknowledged_at, resolved_by,
	resolution_note, escalation_level, escalated_at, escalated_to, notifications_sent, duration_minutes`

func scanIncident(row pgx.Row) (Incident, error) {
	var rec Incident
	err := row.Scan(&rec.ID, &rec.AlertRuleID, &rec.IntegrationID, &rec.TriggeredAt, &rec.ResolvedAt,
		&rec.Message, &rec.Severity, &rec.TriggerValue, &rec.ThresholdValue, &rec.Status,
		&rec.AcknowledgedBy, &rec.AcknowledgedAt, &rec.ResolvedBy, &rec.ResolutionNote,
		&rec.EscalationLevel, &rec.EscalatedAt, &rec.EscalatedTo, &rec.NotificationsSent,
		&rec.DurationMinutes)
	return rec, err
}

func (r *Repository) GetIncident(ctx context.Context, id string) (Incident, error) {
	row := r.Store.Pool.QueryRow(ctx, `SELECT `+incidentColumns+` FROM alert_incidents WHERE id=$1`, id)
	rec, err := scanIncident(row)
	if err != nil {
		return Incident{}, ErrNotFound
	}
	return rec, nil
}

func (r *Repository) OpenIncidentsByRule(ctx context.Context, ruleID string) ([]Incident, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT `+incidentColumns+` FROM alert_incidents
		WHERE alert_rule_id=$1 AND status IN ('open','acknowledged')
		ORDER BY triggered_at ASC`, ruleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []Incident{}
	for rows.Next() {
		rec, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// CreateIncidentIfAbsent inserts the incident unless the rule already has an
// open or acknowledged one. The partial unique index
// uniq_open_incident_per_rule makes the check-and-insert atomic, so two
// concurrent evaluations of the same rule cannot both create an incident.
func (r *Repository) CreateIncidentIfAbsent(ctx context.Context, inc Incident) (bool, error) {
	tag, err := r.Store.Pool.Exec(ctx, `
		INSERT INTO alert_incidents (id, alert_rule_id, integration_id, triggered_at, alert_message,
			severity, trigger_value, threshold_value, status, escalation_level)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,'open',0)
		ON CONFLICT ON CONSTRAINT uniq_open_incident_per_rule DO NOTHING`,
		inc.ID, inc.AlertRuleID, inc.IntegrationID, inc.TriggeredAt, inc.Message,
		inc.Severity, inc.TriggerValue, inc.ThresholdValue)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *Repository) UpdateIncidentTriggerValue(ctx context.Context, incidentID string, value float64) error {
	_, err := r.Store.Pool.Exec(ctx, `
		UPDATE alert_incidents SET trigger_value=$1, updated_at=now() WHERE id=$2`, value, incidentID)
	return err
}

func (r *Repository) SetIncidentNotifications(ctx context.Context, incidentID string, ledger []byte) error {
	_, err := r.Store.Pool.Exec(ctx, `
		UPDATE alert_incidents SET notifications_sent=$1, updated_at=now() WHERE id=$2`, ledger, incidentID)
	return err
}

// AcknowledgeIncident transitions open -> acknowledged. Returns false when the
// incident is missing or not open.
func (r *Repository) AcknowledgeIncident(ctx context.Context, incidentID, user, note string, at time.Time) (bool, error) {
	tag, err := r.Store.Pool.Exec(ctx, `
		UPDATE alert_incidents SET status='acknowledged', acknowledged_by=$1, acknowledged_at=$2,
			resolution_note=$3, updated_at=now()
		WHERE id=$4 AND status='open'`, user, at, note, incidentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ResolveIncident transitions open|acknowledged -> resolved. Returns false when
// the incident is missing or already closed.
func (r *Repository) ResolveIncident(ctx context.Context, incidentID, user, note string, at time.Time, durationMinutes int) (bool, error) {
	tag, err := r.Store.Pool.Exec(ctx, `
		UPDATE alert_incidents SET status='resolved', resolved_by=$1, resolved_at=$2,
			resolution_note=$3, duration_minutes=$4, updated_at=now()
		WHERE id=$5 AND status IN ('open','acknowledged')`, user, at, note, durationMinutes, incidentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// EscalationCandidates returns open or acknowledged incidents that have never
// been escalated and whose rule has escalation enabled.
func (r *Repository) EscalationCandidates(ctx context.Context) ([]EscalationCandidate, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT i.id, i.alert_rule_id, i.integration_id, i.triggered_at, i.severity, i.status,
			i.escalation_level, r.escalation_after_minutes, r.escalation_recipients
		FROM alert_incidents i
		JOIN alert_rules r ON r.id = i.alert_rule_id
		WHERE i.status IN ('open','acknowledged') AND i.escalation_level = 0
			AND r.escalation_enabled = true`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []EscalationCandidate{}
	for rows.Next() {
		var c EscalationCandidate
		if err := rows.Scan(&c.Incident.ID, &c.Incident.AlertRuleID, &c.Incident.IntegrationID,
			&c.Incident.TriggeredAt, &c.Incident.Severity, &c.Incident.Status,
			&c.Incident.EscalationLevel, &c.EscalationAfterMinutes, &c.EscalationRecipients); err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func (r *Repository) EscalateIncident(ctx context.Context, incidentID string, level int, at time.Time, recipients []string) error {
	_, err := r.Store.Pool.Exec(ctx, `
		UPDATE alert_incidents SET escalation_level=$1, escalated_at=$2, escalated_to=$3, updated_at=now()
		WHERE id=$4`, level, at, recipients, incidentID)
	return err
}

func (r *Repository) OpenIncidentCount(ctx context.Context) (int, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT count(*) FROM alert_incidents WHERE status IN ('open','acknowledged')`)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *Repository) DeleteOldHourlyMetrics(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.Store.Pool.Exec(ctx, `DELETE FROM integration_metrics WHERE created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) DeleteOldProbeResults(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.Store.Pool.Exec(ctx, `DELETE FROM integration_health_checks WHERE check_timestamp < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) DeleteOldResolvedIncidents(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.Store.Pool.Exec(ctx, `
		DELETE FROM alert_incidents WHERE status='resolved' AND resolved_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ConfigInt reads an integer value from the system config table, falling back
// when the key is absent or malformed.
func (r *Repository) ConfigInt(ctx context.Context, key string, fallback int) int {
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT config_value FROM integration_system_config WHERE config_key=$1`, key)
	var raw string
	if err := row.Scan(&raw); err != nil {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
