package ranking

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ILLUVRSE/serverquality/internal/aggregate"
	"github.com/ILLUVRSE/serverquality/internal/models"
	"github.com/ILLUVRSE/serverquality/internal/similarity"
)

// MinAttemptsForVerdict is the attempt count below which a report says
// insufficient_data.
const MinAttemptsForVerdict = 3

var troubleshootingTips = map[models.IssueCategory][]string{
	models.IssueConnection: {
		"Check that the host application is running and reachable",
		"Verify network connectivity and firewall settings",
	},
	models.IssueConfiguration: {
		"Review the component's configuration parameters",
		"Check directory permissions and paths",
	},
	models.IssueDependencies: {
		"Ensure all required dependencies are installed",
		"Try updating the Node.js or Python runtime",
	},
	models.IssuePerformance: {
		"Raise the timeout or the resources available to the component",
		"Check for slow upstream services the component calls",
	},
	models.IssueCompatibility: {
		"Confirm the component supports your platform and runtime version",
		"Try a different release of the component",
	},
	models.IssueDocumentation: {
		"Read the component's README and examples for required setup",
		"Search the project's issue tracker for setup guidance",
	},
	models.IssueMaintenance: {
		"Check whether the component is still maintained upstream",
		"Consider a maintained alternative",
	},
}

var tierLabels = map[models.QualityTier]string{
	models.TierExcellent: "Highly recommended",
	models.TierGood:      "Recommended",
	models.TierFair:      "Use with caution",
	models.TierPoor:      "Known issues",
	models.TierCritical:  "Not recommended",
}

// TierLabel is the short verdict shown next to a score.
func TierLabel(t models.QualityTier) string {
	if l, ok := tierLabels[t]; ok {
		return l
	}
	return tierLabels[models.TierCritical]
}

// BuildReport assembles metrics, the recent event windows and the derived
// advice for one component.
func (s *Service) BuildReport(ctx context.Context, componentID, installID string) models.QualityReport {
	m := s.GetQualityMetrics(ctx, componentID, installID)
	report := models.QualityReport{
		ComponentID:            componentID,
		InstallID:              m.InstallID,
		Metrics:                m,
		RecentAttempts:         []models.InstallAttempt{},
		RecentHealthChecks:     []models.HealthCheck{},
		RecentFeedback:         []models.UserFeedback{},
		AlternativeSuggestions: []string{},
	}

	rctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()
	log := s.logger.With(zap.String("component_id", componentID))
	if attempts, err := s.store.ListInstallAttempts(rctx, componentID, RecentWindow); err != nil {
		log.Warn("load recent attempts failed", zap.Error(err))
	} else if attempts != nil {
		report.RecentAttempts = attempts
	}
	if checks, err := s.store.ListHealthChecks(rctx, componentID, RecentWindow); err != nil {
		log.Warn("load recent health checks failed", zap.Error(err))
	} else if checks != nil {
		report.RecentHealthChecks = checks
	}
	if feedback, err := s.store.ListUserFeedback(rctx, componentID, RecentWindow); err != nil {
		log.Warn("load recent feedback failed", zap.Error(err))
	} else if feedback != nil {
		report.RecentFeedback = feedback
	}

	report.InstallRecommendation = Recommendation(m)
	report.TroubleshootingTips = TroubleshootingTips(m)
	report.TrendDirection = Trend(report.RecentAttempts)
	report.ConfidenceLevel = Confidence(m.TotalInstallAttempts)

	rankings := s.GetServerRankings(ctx, "", 0)
	report.AlternativeSuggestions = FindAlternatives(rankings, componentID, similarity.Keywords(componentID),
		m.ReliabilityScore, s.alternativeMargin, DefaultMaxAlternatives)

	report.Summary = Summary(m)
	return report
}

// Recommendation maps a snapshot to an install verdict.
func Recommendation(m models.QualityMetrics) models.InstallRecommendation {
	if m.TotalInstallAttempts < MinAttemptsForVerdict {
		return models.RecommendInsufficientData
	}
	switch m.QualityTier {
	case models.TierExcellent:
		return models.RecommendRecommended
	case models.TierGood:
		return models.RecommendAcceptable
	case models.TierFair:
		return models.RecommendCaution
	default:
		return models.RecommendNotRecommended
	}
}

// TroubleshootingTips lists the fixed hints for every observed issue
// category, most frequent category first, without repeats. Both install
// error categories and issues reported in feedback count.
func TroubleshootingTips(m models.QualityMetrics) []string {
	merged := map[models.IssueCategory]int{}
	for c, n := range m.CommonIssues {
		merged[c] += n
	}
	for c, n := range m.ReportedIssues {
		merged[c] += n
	}
	tips := []string{}
	seen := map[string]bool{}
	for _, ic := range aggregate.SortedIssues(merged) {
		for _, tip := range troubleshootingTips[ic.Category] {
			if !seen[tip] {
				seen[tip] = true
				tips = append(tips, tip)
			}
		}
	}
	return tips
}

// FindAlternatives picks up to max components from rankings that share a
// keyword with the subject and score more than margin points above score.
// rankings must already be sorted best first.
func FindAlternatives(rankings []Ranked, self string, keywords similarity.KeywordSet, score, margin float64, max int) []string {
	out := []string{}
	if len(keywords) == 0 {
		return out
	}
	for _, r := range rankings {
		if len(out) >= max {
			break
		}
		if r.ComponentID == self || r.Metrics.ReliabilityScore <= score+margin {
			continue
		}
		if keywords.Overlaps(similarity.Keywords(r.ComponentID)) {
			out = append(out, r.ComponentID)
		}
	}
	return out
}

const (
	trendMinAttempts = 4
	trendThreshold   = 0.2
)

// Trend compares the success rate of the newer half of attempts (given
// newest first) against the older half.
func Trend(recent []models.InstallAttempt) models.TrendDirection {
	if len(recent) < trendMinAttempts {
		return models.TrendStable
	}
	half := len(recent) / 2
	newer := successRate(recent[:half])
	older := successRate(recent[half:])
	switch {
	case newer-older >= trendThreshold:
		return models.TrendImproving
	case older-newer >= trendThreshold:
		return models.TrendDeclining
	default:
		return models.TrendStable
	}
}

func successRate(attempts []models.InstallAttempt) float64 {
	if len(attempts) == 0 {
		return 0
	}
	ok := 0
	for _, a := range attempts {
		if a.Outcome == models.OutcomeSuccess {
			ok++
		}
	}
	return float64(ok) / float64(len(attempts))
}

// Confidence grades how much evidence backs a score.
func Confidence(attempts int) models.ConfidenceLevel {
	switch {
	case attempts >= 20:
		return models.ConfidenceHigh
	case attempts >= 5:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

// Summary renders a one-line description of a snapshot.
func Summary(m models.QualityMetrics) string {
	parts := []string{
		fmt.Sprintf("Quality: %s (Score: %.1f/100)", TierLabel(m.QualityTier), m.ReliabilityScore),
		fmt.Sprintf("Success Rate: %.1f%% (%d/%d installs)", m.SuccessRate*100, m.SuccessfulInstalls, m.TotalInstallAttempts),
	}
	if m.TotalHealthChecks > 0 {
		parts = append(parts, fmt.Sprintf("Health Rate: %.1f%%", m.HealthRate*100))
	}
	if m.AverageRating > 0 {
		parts = append(parts, fmt.Sprintf("User Rating: %.1f/5.0 (%d reviews)", m.AverageRating, m.TotalRatings))
	}
	if top := aggregate.TopIssue(m.CommonIssues); top != "" {
		parts = append(parts, fmt.Sprintf("Top Issue: %s", top))
	}
	return strings.Join(parts, " | ")
}
