package storage

import "time"

const (
	HealthHealthy  = "healthy"
	HealthWarning  = "warning"
	HealthCritical = "critical"
	HealthUnknown  = "unknown"
)

const (
	IncidentOpen         = "open"
	IncidentAcknowledged = "acknowledged"
	IncidentResolved     = "resolved"
	IncidentSuppressed   = "suppressed"
)

const (
	CheckAutomated = "automated"
	CheckManual    = "manual"
)

type Integration struct {
	ID                  string
	Name                string
	DisplayName         string
	BaseURL             string
	HealthEndpoint      string
	Method              string
	RequestBody         string
	CustomHeaders       []byte
	AuthType            string
	AuthConfig          []byte
	TimeoutSeconds      int
	ExpectedStatusCodes []int
	ExpectedContent     string
	IsActive            bool
	MonitoringEnabled   bool
	HealthStatus        string
	ConsecutiveFailures int
	LastHealthCheck     *time.Time
	LastSuccessfulCheck *time.Time
}

type ProbeResult struct {
	ID                string
	IntegrationID     string
	CheckedAt         time.Time
	ResponseTimeMS    *int
	StatusCode        *int
	ResponseBody      string
	ErrorMessage      string
	IsSuccessful      bool
	HealthStatus      string
	CheckType         string
	AvailabilityScore float64
	PerformanceScore  *float64
}

type HourlyMetric struct {
	IntegrationID     string
	MetricDate        time.Time
	MetricHour        int
	TotalChecks       int
	SuccessfulChecks  int
	FailedChecks      int
	AvgResponseTimeMS *float64
	MinResponseTimeMS *int
	MaxResponseTimeMS *int
	P50ResponseTimeMS *int
	P95ResponseTimeMS *int
	P99ResponseTimeMS *int
	ErrorCount        int
	Status2xxCount    int
	Status3xxCount    int
	Status4xxCount    int
	Status5xxCount    int
	TimeoutCount      int
	UptimePercentage  *float64
	ErrorRate         *float64
	AvailabilityScore *float64
	PerformanceScore  *float64
	ReliabilityScore  *float64
}

type Baseline struct {
	IntegrationID      string
	BaselineType       string
	WindowStart        time.Time
	WindowEnd          time.Time
	ResponseTimeMS     float64
	UptimePercentage   float64
	ErrorRate          float64
	RequestsPerHour    float64
	ResponseTimeStdDev float64
	UptimeStdDev       float64
	SampleSize         int
	ConfidenceLevel    float64
	IsActive           bool
	LastCalculated     time.Time
}

type AlertRule struct {
	ID                     string
	IntegrationID          string
	Name                   string
	Description            string
	Metric                 string
	Operator               string
	Threshold              float64
	DurationMinutes        int
	Severity               string
	AutoResolve            bool
	CooldownMinutes        int
	NotificationChannels   []string
	NotificationRecipients []string
	EscalationEnabled      bool
	EscalationAfterMinutes int
	EscalationRecipients   []string
	IsActive               bool
	LastTriggered          *time.Time
	TriggerCount           int
	BusinessHoursOnly      bool
	BusinessHoursStart     string
	BusinessHoursEnd       string
	BusinessDays           []int
}

type Incident struct {
	ID                string
	AlertRuleID       string
	IntegrationID     string
	TriggeredAt       time.Time
	ResolvedAt        *time.Time
	Message           string
	Severity          string
	TriggerValue      float64
	ThresholdValue    float64
	Status            string
	AcknowledgedBy    string
	AcknowledgedAt    *time.Time
	ResolvedBy        string
	ResolutionNote    string
	EscalationLevel   int
	EscalatedAt       *time.Time
	EscalatedTo       []string
	NotificationsSent []byte
	DurationMinutes   *int
}

// EscalationCandidate pairs an unescalated open incident with the escalation
// settings of its rule.
type EscalationCandidate struct {
	Incident               Incident
	EscalationAfterMinutes int
	EscalationRecipients   []string
}

type HealthTally struct {
	Total    int
	Healthy  int
	Warning  int
	Critical int
	Unknown  int
}
