package models

import (
	"time"
)

type InstallOutcome string

const (
	OutcomeSuccess   InstallOutcome = "success"
	OutcomeFailure   InstallOutcome = "failure"
	OutcomeTimeout   InstallOutcome = "timeout"
	OutcomePartial   InstallOutcome = "partial" // installed but the first health check failed
	OutcomeCancelled InstallOutcome = "cancelled"
)

func (o InstallOutcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeFailure, OutcomeTimeout, OutcomePartial, OutcomeCancelled:
		return true
	}
	return false
}

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthTimeout   HealthStatus = "timeout"
	HealthUnknown   HealthStatus = "unknown"
)

func (s HealthStatus) Valid() bool {
	switch s {
	case HealthHealthy, HealthUnhealthy, HealthTimeout, HealthUnknown:
		return true
	}
	return false
}

type IssueCategory string

const (
	IssueConnection    IssueCategory = "connection"
	IssueConfiguration IssueCategory = "configuration"
	IssueDependencies  IssueCategory = "dependencies"
	IssuePerformance   IssueCategory = "performance"
	IssueCompatibility IssueCategory = "compatibility"
	IssueDocumentation IssueCategory = "documentation"
	IssueMaintenance   IssueCategory = "maintenance"
)

// IssueCategories lists every known category in declaration order.
var IssueCategories = []IssueCategory{
	IssueConnection,
	IssueConfiguration,
	IssueDependencies,
	IssuePerformance,
	IssueCompatibility,
	IssueDocumentation,
	IssueMaintenance,
}

func (c IssueCategory) Valid() bool {
	for _, known := range IssueCategories {
		if c == known {
			return true
		}
	}
	return false
}

type QualityTier string

const (
	TierExcellent QualityTier = "excellent"
	TierGood      QualityTier = "good"
	TierFair      QualityTier = "fair"
	TierPoor      QualityTier = "poor"
	TierCritical  QualityTier = "critical"
)

// Tiers lists tiers from best to worst.
var Tiers = []QualityTier{TierExcellent, TierGood, TierFair, TierPoor, TierCritical}

type MaintenanceStatus string

const (
	MaintenanceActive    MaintenanceStatus = "active"
	MaintenanceRecent    MaintenanceStatus = "recent"
	MaintenanceStale     MaintenanceStatus = "stale"
	MaintenanceAbandoned MaintenanceStatus = "abandoned"
	MaintenanceUnknown   MaintenanceStatus = "unknown"
)

// InstallAttempt is one recorded installation outcome. Natural key:
// (ComponentID, Timestamp, Outcome).
type InstallAttempt struct {
	ComponentID         string         `json:"component_id"`
	InstallID           string         `json:"install_id"`
	ComponentType       string         `json:"component_type,omitempty"`
	Outcome             InstallOutcome `json:"outcome"`
	Timestamp           time.Time      `json:"timestamp"`
	DurationSeconds     float64        `json:"duration_seconds"`
	ErrorMessage        string         `json:"error_message,omitempty"`
	ErrorCategory       IssueCategory  `json:"error_category,omitempty"`
	ClientVersion       string         `json:"client_version,omitempty"`
	Platform            string         `json:"platform,omitempty"`
	RuntimeVersion      string         `json:"runtime_version,omitempty"`
	OrchestratorVersion string         `json:"orchestrator_version,omitempty"`
}

// HealthCheck is one recorded probe result. Natural key:
// (ComponentID, Timestamp, Status).
type HealthCheck struct {
	ComponentID       string                 `json:"component_id"`
	Status            HealthStatus           `json:"status"`
	Timestamp         time.Time              `json:"timestamp"`
	ResponseTimeMS    *float64               `json:"response_time_ms,omitempty"`
	ErrorMessage      string                 `json:"error_message,omitempty"`
	ConnectionDetails map[string]interface{} `json:"connection_details,omitempty"`
}

// UserFeedback is one rating submission. Natural key:
// (ComponentID, SubmitterHash, Timestamp); an anonymous submission has an
// empty hash.
type UserFeedback struct {
	ComponentID            string          `json:"component_id"`
	Rating                 int             `json:"rating"`
	Timestamp              time.Time       `json:"timestamp"`
	Comment                string          `json:"comment,omitempty"`
	ReportedIssues         []IssueCategory `json:"reported_issues,omitempty"`
	RecommendedAlternative string          `json:"recommended_alternative,omitempty"`
	SubmitterHash          string          `json:"submitter_hash,omitempty"`
}

// IssueCount is one bucket of an issue histogram.
type IssueCount struct {
	Category IssueCategory `json:"category"`
	Count    int           `json:"count"`
}

// QualityMetrics is recomputed from raw events on every query and never
// persisted.
type QualityMetrics struct {
	ComponentID string `json:"component_id"`
	InstallID   string `json:"install_id"`

	TotalInstallAttempts int     `json:"total_install_attempts"`
	SuccessfulInstalls   int     `json:"successful_installs"`
	FailedInstalls       int     `json:"failed_installs"`
	SuccessRate          float64 `json:"success_rate"`

	TotalHealthChecks int      `json:"total_health_checks"`
	HealthyChecks     int      `json:"healthy_checks"`
	HealthRate        float64  `json:"health_rate"`
	AvgResponseTimeMS *float64 `json:"avg_response_time_ms,omitempty"`

	TotalRatings       int         `json:"total_ratings"`
	AverageRating      float64     `json:"average_rating"`
	RatingDistribution map[int]int `json:"rating_distribution"`

	CommonIssues   map[IssueCategory]int `json:"common_issues"`
	ReportedIssues map[IssueCategory]int `json:"reported_issues"`

	LastSuccessfulInstall *time.Time `json:"last_successful_install,omitempty"`
	LastHealthCheck       *time.Time `json:"last_health_check,omitempty"`
	FirstSeen             *time.Time `json:"first_seen,omitempty"`

	ReliabilityScore        float64           `json:"reliability_score"`
	QualityTier             QualityTier       `json:"quality_tier"`
	MaintenanceStatus       MaintenanceStatus `json:"maintenance_status"`
	RecommendedAlternatives []string          `json:"recommended_alternatives"`
}

// NewQualityMetrics returns a zeroed snapshot with the neutral defaults used
// when a component has no data.
func NewQualityMetrics(componentID, installID string) QualityMetrics {
	return QualityMetrics{
		ComponentID:             componentID,
		InstallID:               installID,
		RatingDistribution:      map[int]int{},
		CommonIssues:            map[IssueCategory]int{},
		ReportedIssues:          map[IssueCategory]int{},
		QualityTier:             TierCritical,
		MaintenanceStatus:       MaintenanceUnknown,
		RecommendedAlternatives: []string{},
	}
}

type InstallRecommendation string

const (
	RecommendInsufficientData InstallRecommendation = "insufficient_data"
	RecommendRecommended      InstallRecommendation = "recommended"
	RecommendAcceptable       InstallRecommendation = "acceptable"
	RecommendCaution          InstallRecommendation = "caution"
	RecommendNotRecommended   InstallRecommendation = "not_recommended"
)

type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDeclining TrendDirection = "declining"
	TrendStable    TrendDirection = "stable"
)

type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

type QualityReport struct {
	ComponentID string         `json:"component_id"`
	InstallID   string         `json:"install_id"`
	Metrics     QualityMetrics `json:"metrics"`

	RecentAttempts     []InstallAttempt `json:"recent_attempts"`
	RecentHealthChecks []HealthCheck    `json:"recent_health_checks"`
	RecentFeedback     []UserFeedback   `json:"recent_feedback"`

	TrendDirection  TrendDirection  `json:"trend_direction"`
	ConfidenceLevel ConfidenceLevel `json:"confidence_level"`

	InstallRecommendation  InstallRecommendation `json:"install_recommendation"`
	AlternativeSuggestions []string              `json:"alternative_suggestions"`
	TroubleshootingTips    []string              `json:"troubleshooting_tips"`
	Summary                string                `json:"summary"`
}

// CleanupCounts reports rows removed per event kind by a retention sweep.
type CleanupCounts struct {
	InstallAttempts int64 `json:"install_attempts"`
	HealthChecks    int64 `json:"health_checks"`
	UserFeedback    int64 `json:"user_feedback"`
}

func (c CleanupCounts) Total() int64 {
	return c.InstallAttempts + c.HealthChecks + c.UserFeedback
}

// EventKind names a raw event stream.
type EventKind string

const (
	KindInstallAttempt EventKind = "install_attempt"
	KindHealthCheck    EventKind = "health_check"
	KindUserFeedback   EventKind = "user_feedback"
)

// EventKinds lists every raw event kind.
var EventKinds = []EventKind{KindInstallAttempt, KindHealthCheck, KindUserFeedback}
