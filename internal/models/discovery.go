package models

// DiscoveredComponent is the shape the discovery provider hands over for
// enhancement. It is read, never modified.
type DiscoveredComponent struct {
	ID             string  `json:"id"`
	DisplayName    string  `json:"display_name"`
	Description    string  `json:"description,omitempty"`
	Package        string  `json:"package,omitempty"`
	ComponentType  string  `json:"component_type,omitempty"`
	InstallID      string  `json:"install_id,omitempty"`
	RelevanceScore float64 `json:"relevance_score"`
}

// EnhancedResult is a discovered component annotated with quality data.
// Metrics is nil when the component has no recorded attempts.
type EnhancedResult struct {
	Original               DiscoveredComponent `json:"original"`
	Metrics                *QualityMetrics     `json:"metrics,omitempty"`
	QualityBadge           string              `json:"quality_badge,omitempty"`
	WarningMessage         string              `json:"warning_message,omitempty"`
	RecommendationText     string              `json:"recommendation_text,omitempty"`
	Note                   string              `json:"note,omitempty"`
	AlternativeSuggestions []string            `json:"alternative_suggestions"`
}

// Score is the sort key used for enhanced listings.
func (r EnhancedResult) Score() float64 {
	if r.Metrics == nil {
		return 0
	}
	return r.Metrics.ReliabilityScore
}

// InstallSummary is the compact view shown before an install.
type InstallSummary struct {
	HasData          bool                  `json:"has_data"`
	Message          string                `json:"message,omitempty"`
	ReliabilityScore float64               `json:"reliability_score,omitempty"`
	SuccessRate      float64               `json:"success_rate,omitempty"`
	TotalAttempts    int                   `json:"total_attempts,omitempty"`
	QualityTier      QualityTier           `json:"quality_tier,omitempty"`
	Recommendation   InstallRecommendation `json:"recommendation,omitempty"`
	WarningMessage   string                `json:"warning_message,omitempty"`
	Alternatives     []string              `json:"alternatives,omitempty"`
}
