package metrics

import (
	"time"

	"integration-status-backend/internal/storage"
)

const BaselineRolling30d = "rolling_30d"

// ComputeBaseline derives a rolling baseline from the hourly metrics inside
// the window. Returns false when the window holds no usable response-time
// samples; such integrations are skipped rather than written with zeros.
func ComputeBaseline(integrationID string, rows []storage.HourlyMetric, windowStart, windowEnd, now time.Time) (storage.Baseline, bool) {
	responseTimes := []float64{}
	uptimes := []float64{}
	errorRates := []float64{}
	totalChecks := 0
	for _, row := range rows {
		if row.AvgResponseTimeMS != nil {
			responseTimes = append(responseTimes, *row.AvgResponseTimeMS)
		}
		if row.UptimePercentage != nil {
			uptimes = append(uptimes, *row.UptimePercentage)
		}
		if row.ErrorRate != nil {
			errorRates = append(errorRates, *row.ErrorRate)
		}
		totalChecks += row.TotalChecks
	}
	if len(responseTimes) == 0 {
		return storage.Baseline{}, false
	}

	return storage.Baseline{
		IntegrationID:      integrationID,
		BaselineType:       BaselineRolling30d,
		WindowStart:        windowStart,
		WindowEnd:          windowEnd,
		ResponseTimeMS:     Mean(responseTimes),
		UptimePercentage:   Mean(uptimes),
		ErrorRate:          Mean(errorRates),
		RequestsPerHour:    float64(totalChecks) / 24,
		ResponseTimeStdDev: StdDev(responseTimes),
		UptimeStdDev:       StdDev(uptimes),
		SampleSize:         len(responseTimes),
		ConfidenceLevel:    95.0,
		IsActive:           true,
		LastCalculated:     now,
	}, true
}
