package metrics

import (
	"strings"
	"time"

	"integration-status-backend/internal/storage"
)

// HourlyRollup summarizes one hour of probe results into a metric row. The
// second return value is false when there is nothing to aggregate, in which
// case no row should be written.
func HourlyRollup(integrationID string, date time.Time, hour int, checks []storage.ProbeResult) (storage.HourlyMetric, bool) {
	if len(checks) == 0 {
		return storage.HourlyMetric{}, false
	}

	m := storage.HourlyMetric{
		IntegrationID: integrationID,
		MetricDate:    date,
		MetricHour:    hour,
		TotalChecks:   len(checks),
	}

	latencies := []int{}
	for _, check := range checks {
		if check.IsSuccessful {
			m.SuccessfulChecks++
		}
		if check.ResponseTimeMS != nil {
			latencies = append(latencies, *check.ResponseTimeMS)
		}
		if check.StatusCode != nil {
			switch code := *check.StatusCode; {
			case code >= 200 && code < 300:
				m.Status2xxCount++
			case code >= 300 && code < 400:
				m.Status3xxCount++
			case code >= 400 && code < 500:
				m.Status4xxCount++
			case code >= 500:
				m.Status5xxCount++
			}
		}
		if strings.Contains(strings.ToLower(check.ErrorMessage), "timeout") {
			m.TimeoutCount++
		}
	}
	m.FailedChecks = m.TotalChecks - m.SuccessfulChecks
	m.ErrorCount = m.FailedChecks

	if len(latencies) > 0 {
		sorted := sortedInts(latencies)
		sum := 0
		for _, v := range sorted {
			sum += v
		}
		avg := float64(sum) / float64(len(sorted))
		m.AvgResponseTimeMS = &avg
		m.MinResponseTimeMS = intPtr(sorted[0])
		m.MaxResponseTimeMS = intPtr(sorted[len(sorted)-1])
		m.P50ResponseTimeMS = intPtr(Percentile(sorted, 0.5))
		m.P95ResponseTimeMS = intPtr(Percentile(sorted, 0.95))
		m.P99ResponseTimeMS = intPtr(Percentile(sorted, 0.99))
	}

	availability := float64(m.SuccessfulChecks) / float64(m.TotalChecks)
	m.AvailabilityScore = &availability
	uptime := availability * 100
	m.UptimePercentage = &uptime
	errorRate := float64(m.FailedChecks) / float64(m.TotalChecks) * 100
	m.ErrorRate = &errorRate

	performance := 1.0
	if m.AvgResponseTimeMS != nil {
		performance = PerformanceScore(*m.AvgResponseTimeMS)
		m.PerformanceScore = &performance
	}
	reliability := availability * performance
	m.ReliabilityScore = &reliability

	return m, true
}

func intPtr(v int) *int {
	return &v
}
