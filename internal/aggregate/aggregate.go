package aggregate

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ILLUVRSE/serverquality/internal/models"
)

// Events is the raw input for one component.
type Events struct {
	Attempts     []models.InstallAttempt
	HealthChecks []models.HealthCheck
	Feedback     []models.UserFeedback
}

// Compute derives counts, rates and histograms from raw events. Score, tier
// and maintenance status are left at their neutral defaults for the scorer
// to fill in. Empty input yields zeroed metrics. Values with an unknown enum
// are skipped and logged.
func Compute(componentID, installID string, ev Events, logger *zap.Logger) models.QualityMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.With(zap.String("component_id", componentID))
	m := models.NewQualityMetrics(componentID, installID)

	var firstSeen time.Time
	seen := func(ts time.Time) {
		if firstSeen.IsZero() || ts.Before(firstSeen) {
			firstSeen = ts
		}
	}

	for _, a := range ev.Attempts {
		if !a.Outcome.Valid() {
			log.Warn("skipping install attempt with unknown outcome", zap.String("outcome", string(a.Outcome)))
			continue
		}
		m.TotalInstallAttempts++
		seen(a.Timestamp)
		if a.Outcome == models.OutcomeSuccess {
			m.SuccessfulInstalls++
			if m.LastSuccessfulInstall == nil || a.Timestamp.After(*m.LastSuccessfulInstall) {
				ts := a.Timestamp
				m.LastSuccessfulInstall = &ts
			}
		}
		switch {
		case a.ErrorCategory == "":
		case a.ErrorCategory.Valid():
			m.CommonIssues[a.ErrorCategory]++
		default:
			log.Warn("ignoring unknown error category", zap.String("category", string(a.ErrorCategory)))
		}
	}
	m.FailedInstalls = m.TotalInstallAttempts - m.SuccessfulInstalls
	m.SuccessRate = ratio(m.SuccessfulInstalls, m.TotalInstallAttempts)

	var (
		rtSum   float64
		rtCount int
	)
	for _, h := range ev.HealthChecks {
		if !h.Status.Valid() {
			log.Warn("skipping health check with unknown status", zap.String("status", string(h.Status)))
			continue
		}
		m.TotalHealthChecks++
		seen(h.Timestamp)
		if h.Status == models.HealthHealthy {
			m.HealthyChecks++
		}
		if h.ResponseTimeMS != nil {
			rtSum += *h.ResponseTimeMS
			rtCount++
		}
		if m.LastHealthCheck == nil || h.Timestamp.After(*m.LastHealthCheck) {
			ts := h.Timestamp
			m.LastHealthCheck = &ts
		}
	}
	m.HealthRate = ratio(m.HealthyChecks, m.TotalHealthChecks)
	if rtCount > 0 {
		avg := rtSum / float64(rtCount)
		m.AvgResponseTimeMS = &avg
	}

	var ratingSum int
	alternatives := map[string]int{}
	for _, f := range ev.Feedback {
		if f.Rating < 1 || f.Rating > 5 {
			log.Warn("skipping feedback with out of range rating", zap.Int("rating", f.Rating))
			continue
		}
		seen(f.Timestamp)
		m.RatingDistribution[f.Rating]++
		m.TotalRatings++
		ratingSum += f.Rating
		for _, issue := range f.ReportedIssues {
			if !issue.Valid() {
				log.Warn("ignoring unknown reported issue", zap.String("category", string(issue)))
				continue
			}
			m.ReportedIssues[issue]++
		}
		if f.RecommendedAlternative != "" && f.RecommendedAlternative != componentID {
			alternatives[f.RecommendedAlternative]++
		}
	}
	if m.TotalRatings > 0 {
		m.AverageRating = float64(ratingSum) / float64(m.TotalRatings)
	}
	m.RecommendedAlternatives = rankAlternatives(alternatives)

	if !firstSeen.IsZero() {
		m.FirstSeen = &firstSeen
	}
	return m
}

func ratio(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

func rankAlternatives(counts map[string]int) []string {
	out := make([]string, 0, len(counts))
	for id := range counts {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		if counts[out[i]] != counts[out[j]] {
			return counts[out[i]] > counts[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

// SortedIssues returns a histogram ordered by count descending, ties broken
// by category name.
func SortedIssues(hist map[models.IssueCategory]int) []models.IssueCount {
	out := make([]models.IssueCount, 0, len(hist))
	for c, n := range hist {
		if n > 0 {
			out = append(out, models.IssueCount{Category: c, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// TopIssue returns the most frequent category, or "" when the histogram is
// empty.
func TopIssue(hist map[models.IssueCategory]int) models.IssueCategory {
	sorted := SortedIssues(hist)
	if len(sorted) == 0 {
		return ""
	}
	return sorted[0].Category
}
