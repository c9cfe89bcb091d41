package alerting

import (
	"context"

	"integration-status-backend/internal/storage"
)

// MetricKind is the closed set of metrics an alert rule can watch. Rules are
// stored with the wire name; unknown names parse to MetricUnknown and the
// rule is skipped.
type MetricKind int

const (
	MetricUnknown MetricKind = iota
	MetricUptimePercentage
	MetricResponseTime
	MetricConsecutiveFailures
	MetricErrorRate
	MetricAvailabilityScore
)

func ParseMetric(name string) MetricKind {
	switch name {
	case "uptime_percentage":
		return MetricUptimePercentage
	case "response_time":
		return MetricResponseTime
	case "consecutive_failures":
		return MetricConsecutiveFailures
	case "error_rate":
		return MetricErrorRate
	case "availability_score":
		return MetricAvailabilityScore
	default:
		return MetricUnknown
	}
}

func (k MetricKind) String() string {
	switch k {
	case MetricUptimePercentage:
		return "uptime_percentage"
	case MetricResponseTime:
		return "response_time"
	case MetricConsecutiveFailures:
		return "consecutive_failures"
	case MetricErrorRate:
		return "error_rate"
	case MetricAvailabilityScore:
		return "availability_score"
	default:
		return "unknown"
	}
}

// resolveMetric computes the current value for one metric kind. The second
// return value is false when the metric cannot be resolved, which skips the
// rule without surfacing an error.
func (e *Engine) resolveMetric(ctx context.Context, kind MetricKind, in storage.Integration, latest storage.ProbeResult) (float64, bool) {
	switch kind {
	case MetricUptimePercentage:
		metric, err := e.Store.LatestHourlyMetric(ctx, in.ID)
		if err != nil || metric.UptimePercentage == nil {
			return 0, false
		}
		return *metric.UptimePercentage, true
	case MetricResponseTime:
		if latest.ResponseTimeMS == nil {
			return 0, false
		}
		return float64(*latest.ResponseTimeMS), true
	case MetricConsecutiveFailures:
		// Re-read: the sweep updates the counter after the probe, so the
		// in-memory integration may be stale by one cycle.
		current, err := e.Store.GetIntegration(ctx, in.ID)
		if err != nil {
			return 0, false
		}
		return float64(current.ConsecutiveFailures), true
	case MetricErrorRate:
		metric, err := e.Store.LatestHourlyMetric(ctx, in.ID)
		if err != nil || metric.ErrorRate == nil {
			return 0, false
		}
		return *metric.ErrorRate, true
	case MetricAvailabilityScore:
		if latest.IsSuccessful {
			return 1.0, true
		}
		return 0.0, true
	default:
		return 0, false
	}
}

func conditionMet(value float64, operator string, threshold float64) bool {
	switch operator {
	case ">":
		return value > threshold
	case "<":
		return value < threshold
	case ">=":
		return value >= threshold
	case "<=":
		return value <= threshold
	case "==":
		return value == threshold
	case "!=":
		return value != threshold
	default:
		return false
	}
}
