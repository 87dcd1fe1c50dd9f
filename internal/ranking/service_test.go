package ranking

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ILLUVRSE/serverquality/internal/models"
	"github.com/ILLUVRSE/serverquality/internal/similarity"
	"github.com/ILLUVRSE/serverquality/internal/store"
)

var fixedNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestService(s store.Store, opts ...Option) *Service {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewService(s, zap.NewNop(), opts...)
}

// seedAttempts inserts n attempts one minute apart ending an hour before
// fixedNow; the first ok of them (oldest first) succeed.
func seedAttempts(t *testing.T, s store.Store, id string, n, ok int) {
	t.Helper()
	start := fixedNow.Add(-time.Hour).Add(-time.Duration(n) * time.Minute)
	for i := 0; i < n; i++ {
		ev := models.InstallAttempt{
			ComponentID: id,
			InstallID:   id,
			Outcome:     models.OutcomeSuccess,
			Timestamp:   start.Add(time.Duration(i) * time.Minute),
		}
		if i >= ok {
			ev.Outcome = models.OutcomeFailure
			ev.ErrorCategory = models.IssueDependencies
			ev.ErrorMessage = "module not found"
		}
		_, err := s.InsertInstallAttempt(context.Background(), ev)
		require.NoError(t, err)
	}
}

func seedChecks(t *testing.T, s store.Store, id string, n int, status models.HealthStatus) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := s.InsertHealthCheck(context.Background(), models.HealthCheck{
			ComponentID: id,
			Status:      status,
			Timestamp:   fixedNow.Add(-time.Duration(i+1) * time.Minute),
		})
		require.NoError(t, err)
	}
}

// seedRatings inserts n feedback entries with the given rating.
func seedRatings(t *testing.T, s store.Store, id string, n, rating int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := s.InsertUserFeedback(context.Background(), models.UserFeedback{
			ComponentID:   id,
			Rating:        rating,
			Timestamp:     fixedNow.Add(-time.Duration(i+1) * time.Minute),
			SubmitterHash: fmt.Sprintf("user-%d", i),
		})
		require.NoError(t, err)
	}
}

// seedAttempts puts the last success 61 minutes before fixedNow, which costs
// 61/43200 of the 30-day recency window.
const recencyLoss = 10 * 61.0 / 43200

const perfectRatedScore = 100 - recencyLoss

func TestGetServerRankings_Ordering(t *testing.T) {
	s := store.NewMemoryStore()
	seedAttempts(t, s, "A", 10, 10)
	seedChecks(t, s, "A", 10, models.HealthHealthy)
	seedRatings(t, s, "A", 3, 5)
	seedAttempts(t, s, "B", 10, 5)
	seedChecks(t, s, "C", 5, models.HealthHealthy)

	svc := newTestService(s)
	ranked := svc.GetServerRankings(context.Background(), "", 0)
	require.Len(t, ranked, 2, "components without attempts are not ranked")
	assert.Equal(t, "A", ranked[0].ComponentID)
	assert.Equal(t, "B", ranked[1].ComponentID)
	assert.Greater(t, ranked[0].Metrics.ReliabilityScore, ranked[1].Metrics.ReliabilityScore)
	assert.InDelta(t, perfectRatedScore, ranked[0].Metrics.ReliabilityScore, 1e-6)
	assert.Equal(t, models.TierExcellent, ranked[0].Metrics.QualityTier)

	limited := svc.GetServerRankings(context.Background(), "", 1)
	require.Len(t, limited, 1)
	assert.Equal(t, "A", limited[0].ComponentID)
}

func TestGetQualityMetrics_UnratedStopsShortOfExcellent(t *testing.T) {
	s := store.NewMemoryStore()
	seedAttempts(t, s, "A", 10, 10)
	seedChecks(t, s, "A", 10, models.HealthHealthy)

	m := newTestService(s).GetQualityMetrics(context.Background(), "A", "")
	assert.InDelta(t, 80-recencyLoss, m.ReliabilityScore, 1e-6)
	assert.Equal(t, models.TierGood, m.QualityTier)
}

func TestGetServerRankings_TiesBrokenByID(t *testing.T) {
	s := store.NewMemoryStore()
	seedAttempts(t, s, "zeta", 4, 2)
	seedAttempts(t, s, "alpha", 4, 2)

	ranked := newTestService(s).GetServerRankings(context.Background(), "", 0)
	require.Len(t, ranked, 2)
	assert.Equal(t, []string{"alpha", "zeta"}, []string{ranked[0].ComponentID, ranked[1].ComponentID})
}

func TestGetServerRankings_TypeFilter(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	for _, ev := range []models.InstallAttempt{
		{ComponentID: "fs", ComponentType: "mcp_server", Outcome: models.OutcomeSuccess, Timestamp: fixedNow.Add(-time.Hour)},
		{ComponentID: "lint", ComponentType: "hook", Outcome: models.OutcomeSuccess, Timestamp: fixedNow.Add(-time.Hour)},
	} {
		_, err := s.InsertInstallAttempt(ctx, ev)
		require.NoError(t, err)
	}
	ranked := newTestService(s).GetServerRankings(ctx, "hook", 0)
	require.Len(t, ranked, 1)
	assert.Equal(t, "lint", ranked[0].ComponentID)
}

type failingStore struct {
	*store.MemoryStore
}

func (failingStore) ListInstallAttempts(ctx context.Context, componentID string, limit int) ([]models.InstallAttempt, error) {
	return nil, errors.New("disk on fire")
}

func (failingStore) ListComponents(ctx context.Context, f store.ComponentFilter) ([]store.ComponentRef, error) {
	return nil, errors.New("disk on fire")
}

func TestGetQualityMetrics_StoreErrorYieldsZeroed(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	svc := NewService(failingStore{store.NewMemoryStore()}, zap.New(core),
		WithClock(func() time.Time { return fixedNow }))

	m := svc.GetQualityMetrics(context.Background(), "fs", "")
	assert.Equal(t, "fs", m.ComponentID)
	assert.Equal(t, "fs", m.InstallID)
	assert.Zero(t, m.TotalInstallAttempts)
	assert.Zero(t, m.ReliabilityScore)
	assert.Equal(t, models.TierCritical, m.QualityTier)
	assert.Equal(t, 1, logs.FilterMessage("compute metrics failed").Len())

	assert.Empty(t, svc.GetServerRankings(context.Background(), "", 0))
}

func TestGetQualityMetrics_InstallIDFromLatestAttempt(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	_, err := s.InsertInstallAttempt(ctx, models.InstallAttempt{
		ComponentID: "fs", InstallID: "npx-fs", Outcome: models.OutcomeSuccess, Timestamp: fixedNow.Add(-time.Hour),
	})
	require.NoError(t, err)

	svc := newTestService(s)
	assert.Equal(t, "npx-fs", svc.GetQualityMetrics(ctx, "fs", "").InstallID)
	assert.Equal(t, "explicit", svc.GetQualityMetrics(ctx, "fs", "explicit").InstallID)
}

func TestBuildReport(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	seedAttempts(t, s, "postgres-slow", 12, 3)
	seedAttempts(t, s, "postgres-fast", 10, 10)
	seedChecks(t, s, "postgres-fast", 4, models.HealthHealthy)
	seedAttempts(t, s, "weather", 10, 10)
	seedChecks(t, s, "weather", 4, models.HealthHealthy)
	_, err := s.InsertUserFeedback(ctx, models.UserFeedback{
		ComponentID:    "postgres-slow",
		Rating:         2,
		Timestamp:      fixedNow.Add(-time.Minute),
		ReportedIssues: []models.IssueCategory{models.IssueDocumentation},
	})
	require.NoError(t, err)

	report := newTestService(s).BuildReport(ctx, "postgres-slow", "")

	assert.Equal(t, "postgres-slow", report.ComponentID)
	assert.Equal(t, 12, report.Metrics.TotalInstallAttempts)
	assert.Len(t, report.RecentAttempts, RecentWindow)
	assert.Len(t, report.RecentFeedback, 1)
	assert.Empty(t, report.RecentHealthChecks)
	assert.Equal(t, models.RecommendNotRecommended, report.InstallRecommendation)
	assert.Equal(t, []string{"postgres-fast"}, report.AlternativeSuggestions)
	assert.Equal(t, models.TrendDeclining, report.TrendDirection)
	assert.Equal(t, models.ConfidenceMedium, report.ConfidenceLevel)
	assert.Equal(t, []string{
		"Ensure all required dependencies are installed",
		"Try updating the Node.js or Python runtime",
		"Read the component's README and examples for required setup",
		"Search the project's issue tracker for setup guidance",
	}, report.TroubleshootingTips)
	assert.Contains(t, report.Summary, "Success Rate: 25.0% (3/12 installs)")
	assert.Contains(t, report.Summary, "User Rating: 2.0/5.0 (1 reviews)")
	assert.Contains(t, report.Summary, "Top Issue: dependencies")
	assert.NotContains(t, report.Summary, "Health Rate")
}

func TestBuildReport_UnknownComponent(t *testing.T) {
	report := newTestService(store.NewMemoryStore()).BuildReport(context.Background(), "ghost", "")
	assert.Equal(t, models.RecommendInsufficientData, report.InstallRecommendation)
	assert.Equal(t, models.TrendStable, report.TrendDirection)
	assert.Equal(t, models.ConfidenceLow, report.ConfidenceLevel)
	assert.Empty(t, report.AlternativeSuggestions)
	assert.Empty(t, report.TroubleshootingTips)
	assert.NotNil(t, report.RecentAttempts)
}

func TestRecommendation(t *testing.T) {
	cases := []struct {
		attempts int
		tier     models.QualityTier
		want     models.InstallRecommendation
	}{
		{2, models.TierExcellent, models.RecommendInsufficientData},
		{3, models.TierExcellent, models.RecommendRecommended},
		{3, models.TierGood, models.RecommendAcceptable},
		{3, models.TierFair, models.RecommendCaution},
		{3, models.TierPoor, models.RecommendNotRecommended},
		{3, models.TierCritical, models.RecommendNotRecommended},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d-%s", tc.attempts, tc.tier), func(t *testing.T) {
			m := models.NewQualityMetrics("x", "x")
			m.TotalInstallAttempts = tc.attempts
			m.QualityTier = tc.tier
			assert.Equal(t, tc.want, Recommendation(m))
		})
	}
}

func TestTroubleshootingTips_EveryCategoryHasTips(t *testing.T) {
	for _, c := range models.IssueCategories {
		m := models.NewQualityMetrics("x", "x")
		m.CommonIssues[c] = 1
		assert.Len(t, TroubleshootingTips(m), 2, string(c))
	}
}

func attemptsFromPattern(pattern string) []models.InstallAttempt {
	out := make([]models.InstallAttempt, len(pattern))
	for i, ch := range pattern {
		out[i].Outcome = models.OutcomeFailure
		if ch == '+' {
			out[i].Outcome = models.OutcomeSuccess
		}
	}
	return out
}

func TestTrend(t *testing.T) {
	// newest first
	assert.Equal(t, models.TrendImproving, Trend(attemptsFromPattern("++++----")))
	assert.Equal(t, models.TrendDeclining, Trend(attemptsFromPattern("----++++")))
	assert.Equal(t, models.TrendStable, Trend(attemptsFromPattern("+-+-+-+-")))
	assert.Equal(t, models.TrendStable, Trend(attemptsFromPattern("++-")), "too few attempts")
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, models.ConfidenceLow, Confidence(4))
	assert.Equal(t, models.ConfidenceMedium, Confidence(5))
	assert.Equal(t, models.ConfidenceHigh, Confidence(20))
}

func TestSummary(t *testing.T) {
	m := models.NewQualityMetrics("fs", "fs")
	m.ReliabilityScore = 85.3
	m.QualityTier = models.TierExcellent
	m.TotalInstallAttempts = 10
	m.SuccessfulInstalls = 9
	m.SuccessRate = 0.9
	m.TotalHealthChecks = 4
	m.HealthRate = 1
	m.TotalRatings = 3
	m.AverageRating = 4.67
	m.CommonIssues[models.IssueConnection] = 1

	assert.Equal(t,
		"Quality: Highly recommended (Score: 85.3/100) | Success Rate: 90.0% (9/10 installs) | Health Rate: 100.0% | User Rating: 4.7/5.0 (3 reviews) | Top Issue: connection",
		Summary(m))
}

func TestFindAlternatives(t *testing.T) {
	mk := func(id string, score float64) Ranked {
		m := models.NewQualityMetrics(id, id)
		m.ReliabilityScore = score
		return Ranked{ComponentID: id, Metrics: m}
	}
	rankings := []Ranked{
		mk("github-a", 99), mk("weather", 98), mk("github-b", 90), mk("github-c", 85),
		mk("github-d", 80), mk("github-e", 60), mk("github-self", 40),
	}
	got := FindAlternatives(rankings, "github-self", similarity.Keywords("github-self"), 40, 20, 3)
	assert.Equal(t, []string{"github-a", "github-b", "github-c"}, got)

	got = FindAlternatives(rankings, "github-self", similarity.Keywords("github-self"), 75, 20, 3)
	assert.Equal(t, []string{"github-a"}, got, "must beat the score by more than the margin")

	assert.Empty(t, FindAlternatives(rankings, "weather", similarity.Keywords("weather"), 0, 0, 3))
}

func TestOverview(t *testing.T) {
	s := store.NewMemoryStore()
	seedAttempts(t, s, "A", 10, 10)
	seedChecks(t, s, "A", 10, models.HealthHealthy)
	seedRatings(t, s, "A", 3, 5)
	seedAttempts(t, s, "B", 10, 5)
	seedAttempts(t, s, "tiny", 2, 2)

	ov := newTestService(s).Overview(context.Background(), 5)
	assert.Equal(t, 3, ov.TrackedComponents)
	assert.Equal(t, 2, ov.WithSufficientData)
	assert.Equal(t, 22, ov.TotalInstallAttempts)
	assert.Equal(t, 17, ov.SuccessfulInstalls)
	assert.InDelta(t, 17.0/22.0, ov.OverallSuccessRate, 1e-9)
	assert.Equal(t, 1, ov.TierDistribution[models.TierExcellent])
	assert.Equal(t, 0, ov.TierDistribution[models.TierGood])
	require.Len(t, ov.Top, 2)
	assert.Equal(t, "A", ov.Top[0].ComponentID)
}
