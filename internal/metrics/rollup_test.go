package metrics

import (
	"math"
	"reflect"
	"testing"
	"time"

	"integration-status-backend/internal/storage"
)

func check(success bool, latency int, statusCode int, errMsg string) storage.ProbeResult {
	rec := storage.ProbeResult{IsSuccessful: success, ErrorMessage: errMsg}
	if latency >= 0 {
		rec.ResponseTimeMS = &latency
	}
	if statusCode > 0 {
		rec.StatusCode = &statusCode
	}
	return rec
}

func TestHourlyRollupEmpty(t *testing.T) {
	_, ok := HourlyRollup("int-1", time.Now(), 10, nil)
	if ok {
		t.Fatalf("expected no rollup for empty hour")
	}
}

func TestHourlyRollupCounts(t *testing.T) {
	date := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	checks := []storage.ProbeResult{
		check(true, 100, 200, ""),
		check(true, 200, 204, ""),
		check(true, 300, 301, ""),
		check(false, 400, 503, "server error"),
		check(false, -1, 0, "request timeout"),
	}
	m, ok := HourlyRollup("int-1", date, 14, checks)
	if !ok {
		t.Fatalf("expected rollup")
	}
	if m.TotalChecks != 5 || m.SuccessfulChecks != 3 || m.FailedChecks != 2 {
		t.Fatalf("unexpected counts: %+v", m)
	}
	if m.Status2xxCount != 2 || m.Status3xxCount != 1 || m.Status5xxCount != 1 {
		t.Fatalf("unexpected status class counts: %+v", m)
	}
	if m.TimeoutCount != 1 {
		t.Fatalf("expected 1 timeout got %d", m.TimeoutCount)
	}
	if *m.MinResponseTimeMS != 100 || *m.MaxResponseTimeMS != 400 {
		t.Fatalf("unexpected min/max: %d %d", *m.MinResponseTimeMS, *m.MaxResponseTimeMS)
	}
	if *m.AvgResponseTimeMS != 250 {
		t.Fatalf("expected avg 250 got %v", *m.AvgResponseTimeMS)
	}
	if *m.UptimePercentage != 60 {
		t.Fatalf("expected uptime 60 got %v", *m.UptimePercentage)
	}
	if *m.ErrorRate != 40 {
		t.Fatalf("expected error rate 40 got %v", *m.ErrorRate)
	}
	wantReliability := 0.6 * PerformanceScore(250)
	if math.Abs(*m.ReliabilityScore-wantReliability) > 1e-9 {
		t.Fatalf("expected reliability %v got %v", wantReliability, *m.ReliabilityScore)
	}
}

func TestHourlyRollupIdempotent(t *testing.T) {
	date := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	checks := []storage.ProbeResult{
		check(true, 120, 200, ""),
		check(false, 340, 500, "server error"),
	}
	first, _ := HourlyRollup("int-1", date, 9, checks)
	second, _ := HourlyRollup("int-1", date, 9, checks)
	if !reflect.DeepEqual(derefMetric(first), derefMetric(second)) {
		t.Fatalf("expected identical rollups")
	}
}

func derefMetric(m storage.HourlyMetric) map[string]any {
	out := map[string]any{
		"total": m.TotalChecks, "ok": m.SuccessfulChecks, "fail": m.FailedChecks,
	}
	if m.AvgResponseTimeMS != nil {
		out["avg"] = *m.AvgResponseTimeMS
	}
	if m.AvailabilityScore != nil {
		out["availability"] = *m.AvailabilityScore
	}
	if m.ReliabilityScore != nil {
		out["reliability"] = *m.ReliabilityScore
	}
	return out
}
