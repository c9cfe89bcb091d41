package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"integration-status-backend/internal/storage"
)

const (
	defaultTimeoutSeconds = 30
	maxStoredBodyBytes    = 1000
	criticalLatencyMS     = 10000
	warningLatencyMS      = 5000
)

// Checker performs a single health check against one integration and
// classifies the outcome. It never persists anything; recording results and
// mutating integration status belong to the caller.
type Checker struct {
	Executor Executor
}

func NewChecker(executor Executor) *Checker {
	return &Checker{Executor: executor}
}

func (c *Checker) Check(ctx context.Context, in storage.Integration) storage.ProbeResult {
	result := storage.ProbeResult{
		ID:            uuid.NewString(),
		IntegrationID: in.ID,
		CheckedAt:     time.Now().UTC(),
		CheckType:     storage.CheckAutomated,
	}

	target := targetURL(in)
	if target == "" {
		result.ErrorMessage = "no health check URL configured"
		result.HealthStatus = storage.HealthCritical
		return result
	}

	method := in.Method
	if method == "" {
		method = http.MethodGet
	}
	req := Request{Method: method, URL: target, Body: in.RequestBody, Headers: map[string]string{}}
	if len(in.CustomHeaders) > 0 {
		_ = json.Unmarshal(in.CustomHeaders, &req.Headers)
	}
	// Failed credential injection degrades to an unauthenticated request; the
	// probe itself still runs and classifies whatever comes back.
	_ = injectAuth(&req, in.AuthType, in.AuthConfig)

	timeout := in.TimeoutSeconds
	if timeout <= 0 {
		timeout = defaultTimeoutSeconds
	}
	execCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	resp, err := c.Executor.Execute(execCtx, req)
	if resp.LatencyMS > 0 {
		latency := resp.LatencyMS
		result.ResponseTimeMS = &latency
	}
	if resp.StatusCode > 0 {
		code := resp.StatusCode
		result.StatusCode = &code
	}
	result.ResponseBody = truncate(resp.Body, maxStoredBodyBytes)

	switch {
	case err != nil:
		result.ErrorMessage = errorMessage(err, timeout)
		result.HealthStatus = ClassifyFailure(result.ErrorMessage, result.StatusCode)
	case !statusExpected(resp.StatusCode, in.ExpectedStatusCodes):
		result.ErrorMessage = fmt.Sprintf("unexpected status code %d", resp.StatusCode)
		result.HealthStatus = ClassifyFailure(result.ErrorMessage, result.StatusCode)
	default:
		result.IsSuccessful = true
		result.AvailabilityScore = 1.0
		result.HealthStatus = classifySuccess(resp.LatencyMS, resp.Body, in.ExpectedContent)
	}

	if result.ResponseTimeMS != nil {
		score := performanceScore(*result.ResponseTimeMS)
		result.PerformanceScore = &score
	}
	return result
}

func targetURL(in storage.Integration) string {
	endpoint := strings.TrimSpace(in.HealthEndpoint)
	base := strings.TrimSpace(in.BaseURL)
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	if base == "" {
		return ""
	}
	if endpoint == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(endpoint, "/")
}

func statusExpected(code int, expected []int) bool {
	if len(expected) == 0 {
		return code == http.StatusOK
	}
	for _, want := range expected {
		if code == want {
			return true
		}
	}
	return false
}

func classifySuccess(latencyMS int, body, expectedContent string) string {
	if latencyMS > criticalLatencyMS {
		return storage.HealthCritical
	}
	if latencyMS > warningLatencyMS {
		return storage.HealthWarning
	}
	if expectedContent != "" && !strings.Contains(body, expectedContent) {
		return storage.HealthWarning
	}
	return storage.HealthHealthy
}

// ClassifyFailure maps a probe error onto the health taxonomy. Transport-level
// failures are critical; an authorization rejection means the service is
// reachable, so it only warrants a warning.
func ClassifyFailure(errMsg string, statusCode *int) string {
	msg := strings.ToLower(errMsg)
	transportTokens := []string{
		"timeout", "deadline exceeded", "connection refused", "no such host",
		"econnrefused", "enotfound", "etimedout",
	}
	for _, token := range transportTokens {
		if strings.Contains(msg, token) {
			return storage.HealthCritical
		}
	}
	if statusCode != nil {
		switch code := *statusCode; {
		case code >= 500:
			return storage.HealthCritical
		case code == http.StatusUnauthorized || code == http.StatusForbidden:
			return storage.HealthWarning
		case code >= 400:
			return storage.HealthWarning
		}
	}
	return storage.HealthCritical
}

func performanceScore(latencyMS int) float64 {
	score := (5000 - float64(latencyMS)) / 5000
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func errorMessage(err error, timeoutSeconds int) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("timeout after %ds", timeoutSeconds)
	}
	return err.Error()
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
