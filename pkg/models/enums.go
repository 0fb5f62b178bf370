package models

// TestType identifies which executor a scenario targets and which config
// payload it must carry.
type TestType string

const (
	TestTypeAPI           TestType = "API"
	TestTypeUI            TestType = "UI"
	TestTypeAIQuality     TestType = "AI_QUALITY"
	TestTypeIntegration   TestType = "INTEGRATION"
	TestTypePerformance   TestType = "PERFORMANCE"
	TestTypeSecurity      TestType = "SECURITY"
	TestTypeAccessibility TestType = "ACCESSIBILITY"
)

// IsValid reports whether the test type is a known value.
func (t TestType) IsValid() bool {
	switch t {
	case TestTypeAPI, TestTypeUI, TestTypeAIQuality, TestTypeIntegration,
		TestTypePerformance, TestTypeSecurity, TestTypeAccessibility:
		return true
	}
	return false
}

// QualityMetric is one of the six bounded [0,1] score axes over AI output
// quality.
type QualityMetric string

const (
	MetricCoherence   QualityMetric = "COHERENCE"
	MetricCreativity  QualityMetric = "CREATIVITY"
	MetricAccuracy    QualityMetric = "ACCURACY"
	MetricSafety      QualityMetric = "SAFETY"
	MetricRelevance   QualityMetric = "RELEVANCE"
	MetricConsistency QualityMetric = "CONSISTENCY"
)

// AllQualityMetrics lists every metric in a stable order.
var AllQualityMetrics = []QualityMetric{
	MetricCoherence,
	MetricCreativity,
	MetricAccuracy,
	MetricSafety,
	MetricRelevance,
	MetricConsistency,
}

// IsValid reports whether the metric is a known value.
func (m QualityMetric) IsValid() bool {
	switch m {
	case MetricCoherence, MetricCreativity, MetricAccuracy,
		MetricSafety, MetricRelevance, MetricConsistency:
		return true
	}
	return false
}

// Environment scopes a test context.
type Environment string

const (
	EnvTest       Environment = "test"
	EnvStaging    Environment = "staging"
	EnvProduction Environment = "production"
	EnvDebug      Environment = "debug"
)

// IsValid reports whether the environment is a known value.
func (e Environment) IsValid() bool {
	switch e {
	case EnvTest, EnvStaging, EnvProduction, EnvDebug:
		return true
	}
	return false
}

// BrowserType selects the engine a UI scenario runs under.
type BrowserType string

const (
	BrowserChromium BrowserType = "chromium"
	BrowserFirefox  BrowserType = "firefox"
	BrowserWebkit   BrowserType = "webkit"
)

// IsValid reports whether the browser type is a known value.
func (b BrowserType) IsValid() bool {
	switch b {
	case BrowserChromium, BrowserFirefox, BrowserWebkit:
		return true
	}
	return false
}

// DeviceType is an optional UI scenario hint for viewport selection.
type DeviceType string

const (
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
	DeviceDesktop DeviceType = "desktop"
)

// IsValid reports whether the device type is a known value.
func (d DeviceType) IsValid() bool {
	switch d {
	case DeviceMobile, DeviceTablet, DeviceDesktop:
		return true
	}
	return false
}

// ExecutionStatus is the lifecycle state of a TestExecution.
//
// Legal transitions:
//
//	PENDING -> RUNNING -> COMPLETED | FAILED | TIMEOUT | CANCELLED
//	PENDING -> CANCELLED
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "PENDING"
	ExecutionRunning   ExecutionStatus = "RUNNING"
	ExecutionCompleted ExecutionStatus = "COMPLETED"
	ExecutionFailed    ExecutionStatus = "FAILED"
	ExecutionTimeout   ExecutionStatus = "TIMEOUT"
	ExecutionCancelled ExecutionStatus = "CANCELLED"
)

// IsValid reports whether the status is a known value.
func (s ExecutionStatus) IsValid() bool {
	switch s {
	case ExecutionPending, ExecutionRunning, ExecutionCompleted,
		ExecutionFailed, ExecutionTimeout, ExecutionCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the status is final.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionTimeout, ExecutionCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is a legal step in
// the execution state machine.
func (s ExecutionStatus) CanTransitionTo(next ExecutionStatus) bool {
	switch s {
	case ExecutionPending:
		return next == ExecutionRunning || next == ExecutionCancelled
	case ExecutionRunning:
		return next.IsTerminal()
	}
	return false
}

// AlertPriority orders alerts for threshold comparisons and routing.
type AlertPriority string

const (
	PriorityLow      AlertPriority = "LOW"
	PriorityMedium   AlertPriority = "MEDIUM"
	PriorityHigh     AlertPriority = "HIGH"
	PriorityCritical AlertPriority = "CRITICAL"
	PriorityUrgent   AlertPriority = "URGENT"
)

// IsValid reports whether the priority is a known value.
func (p AlertPriority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical, PriorityUrgent:
		return true
	}
	return false
}

// Rank returns the ordinal of the priority, LOW=1 .. URGENT=5.
// Unknown priorities rank 0.
func (p AlertPriority) Rank() int {
	switch p {
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	case PriorityHigh:
		return 3
	case PriorityCritical:
		return 4
	case PriorityUrgent:
		return 5
	}
	return 0
}

// AtLeast reports whether p is at or above the given threshold priority.
func (p AlertPriority) AtLeast(threshold AlertPriority) bool {
	return p.Rank() >= threshold.Rank()
}

// NotificationStatus is the delivery state of one Notification.
type NotificationStatus string

const (
	NotificationPending   NotificationStatus = "PENDING"
	NotificationSent      NotificationStatus = "SENT"
	NotificationDelivered NotificationStatus = "DELIVERED"
	NotificationFailed    NotificationStatus = "FAILED"
	NotificationRetrying  NotificationStatus = "RETRYING"
)

// IsValid reports whether the status is a known value.
func (s NotificationStatus) IsValid() bool {
	switch s {
	case NotificationPending, NotificationSent, NotificationDelivered,
		NotificationFailed, NotificationRetrying:
		return true
	}
	return false
}

// ChannelType identifies a notification delivery mechanism.
type ChannelType string

const (
	ChannelEmail   ChannelType = "EMAIL"
	ChannelSlack   ChannelType = "SLACK"
	ChannelWebhook ChannelType = "WEBHOOK"
	ChannelConsole ChannelType = "CONSOLE"
	ChannelFile    ChannelType = "FILE"
)

// IsValid reports whether the channel type is a known value.
func (c ChannelType) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSlack, ChannelWebhook, ChannelConsole, ChannelFile:
		return true
	}
	return false
}

// JudgeStrategy selects how multiple judges are combined for an assessment.
type JudgeStrategy string

const (
	StrategySingleJudge JudgeStrategy = "SINGLE_JUDGE"
	StrategyMultiJudge  JudgeStrategy = "MULTI_JUDGE"
	StrategyEnsemble    JudgeStrategy = "ENSEMBLE"
	StrategySpecialized JudgeStrategy = "SPECIALIZED"
	StrategyComparative JudgeStrategy = "COMPARATIVE"
)

// IsValid reports whether the strategy is a known value.
func (s JudgeStrategy) IsValid() bool {
	switch s {
	case StrategySingleJudge, StrategyMultiJudge, StrategyEnsemble,
		StrategySpecialized, StrategyComparative:
		return true
	}
	return false
}

// TrendDirection classifies a metric's movement over the analysis window.
type TrendDirection string

const (
	TrendImproving TrendDirection = "IMPROVING"
	TrendDeclining TrendDirection = "DECLINING"
	TrendStable    TrendDirection = "STABLE"
	TrendVolatile  TrendDirection = "VOLATILE"
)

// ExportFormat selects the serialization of an aggregated report.
type ExportFormat string

const (
	FormatJSON     ExportFormat = "json"
	FormatCSV      ExportFormat = "csv"
	FormatMarkdown ExportFormat = "markdown"
	FormatHTML     ExportFormat = "html"
)

// IsValid reports whether the export format is a known value.
func (f ExportFormat) IsValid() bool {
	switch f {
	case FormatJSON, FormatCSV, FormatMarkdown, FormatHTML:
		return true
	}
	return false
}

// TestPhase names one stage of an orchestrated session plan.
type TestPhase string

const (
	PhaseAPIProbes          TestPhase = "api_probes"
	PhaseUIFlows            TestPhase = "ui_flows"
	PhaseQualityAssessments TestPhase = "quality_assessments"
	PhaseAggregation        TestPhase = "aggregation"
)

// SessionStatus is the lifecycle state of an orchestrated session.
type SessionStatus string

const (
	SessionPending   SessionStatus = "PENDING"
	SessionRunning   SessionStatus = "RUNNING"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionFailed    SessionStatus = "FAILED"
	SessionCancelled SessionStatus = "CANCELLED"
)

// IsTerminal reports whether the session status is final.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionCompleted, SessionFailed, SessionCancelled:
		return true
	}
	return false
}
