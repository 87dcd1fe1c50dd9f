package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ILLUVRSE/serverquality/internal/models"
)

var now = time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)

func ptr(f float64) *float64 { return &f }

func TestCompute_Empty(t *testing.T) {
	m := Compute("ghost", "ghost@1", Events{}, nil)

	assert.Equal(t, "ghost", m.ComponentID)
	assert.Equal(t, "ghost@1", m.InstallID)
	assert.Zero(t, m.TotalInstallAttempts)
	assert.Zero(t, m.SuccessRate)
	assert.Zero(t, m.HealthRate)
	assert.Zero(t, m.AverageRating)
	assert.Nil(t, m.AvgResponseTimeMS)
	assert.Nil(t, m.LastSuccessfulInstall)
	assert.Nil(t, m.FirstSeen)
	assert.Empty(t, m.CommonIssues)
	assert.NotNil(t, m.RecommendedAlternatives)
	assert.Equal(t, models.MaintenanceUnknown, m.MaintenanceStatus)
}

func TestCompute_Scenario(t *testing.T) {
	var ev Events
	for i := 0; i < 9; i++ {
		ev.Attempts = append(ev.Attempts, models.InstallAttempt{
			ComponentID: "x", Outcome: models.OutcomeSuccess, Timestamp: now.AddDate(0, 0, -2-i),
		})
	}
	ev.Attempts = append(ev.Attempts, models.InstallAttempt{
		ComponentID: "x", Outcome: models.OutcomeFailure, Timestamp: now.AddDate(0, 0, -1),
		ErrorCategory: models.IssueDependencies,
	})
	for i := 0; i < 5; i++ {
		ev.HealthChecks = append(ev.HealthChecks, models.HealthCheck{
			ComponentID: "x", Status: models.HealthHealthy, Timestamp: now.Add(-time.Duration(i) * time.Hour),
			ResponseTimeMS: ptr(float64(10 * (i + 1))),
		})
	}
	for _, r := range []int{5, 5, 4} {
		ev.Feedback = append(ev.Feedback, models.UserFeedback{ComponentID: "x", Rating: r, Timestamp: now})
	}

	m := Compute("x", "x@1", ev, zap.NewNop())
	assert.Equal(t, 10, m.TotalInstallAttempts)
	assert.Equal(t, 9, m.SuccessfulInstalls)
	assert.Equal(t, 1, m.FailedInstalls)
	assert.Equal(t, m.TotalInstallAttempts, m.SuccessfulInstalls+m.FailedInstalls)
	assert.InDelta(t, 0.9, m.SuccessRate, 1e-9)
	assert.Equal(t, 1.0, m.HealthRate)
	require.NotNil(t, m.AvgResponseTimeMS)
	assert.InDelta(t, 30.0, *m.AvgResponseTimeMS, 1e-9)
	assert.InDelta(t, 4.6667, m.AverageRating, 1e-3)
	assert.Equal(t, map[int]int{5: 2, 4: 1}, m.RatingDistribution)
	assert.Equal(t, map[models.IssueCategory]int{models.IssueDependencies: 1}, m.CommonIssues)
	require.NotNil(t, m.LastSuccessfulInstall)
	assert.True(t, now.AddDate(0, 0, -2).Equal(*m.LastSuccessfulInstall), "newest success, not newest attempt")
	require.NotNil(t, m.FirstSeen)
	assert.True(t, now.AddDate(0, 0, -10).Equal(*m.FirstSeen))
}

func TestCompute_NonSuccessOutcomesCountAsFailed(t *testing.T) {
	ev := Events{Attempts: []models.InstallAttempt{
		{Outcome: models.OutcomeSuccess, Timestamp: now},
		{Outcome: models.OutcomeTimeout, Timestamp: now},
		{Outcome: models.OutcomePartial, Timestamp: now},
		{Outcome: models.OutcomeCancelled, Timestamp: now},
	}}
	m := Compute("x", "x", ev, nil)
	assert.Equal(t, 4, m.TotalInstallAttempts)
	assert.Equal(t, 3, m.FailedInstalls)
	assert.Equal(t, 0.25, m.SuccessRate)
}

func TestCompute_SkipsUnknownEnums(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	ev := Events{
		Attempts: []models.InstallAttempt{
			{Outcome: "exploded", Timestamp: now},
			{Outcome: models.OutcomeFailure, ErrorCategory: "cosmic_rays", Timestamp: now},
		},
		HealthChecks: []models.HealthCheck{{Status: "drowsy", Timestamp: now}},
		Feedback: []models.UserFeedback{
			{Rating: 3, ReportedIssues: []models.IssueCategory{"vibes", models.IssueDocumentation}, Timestamp: now},
		},
	}
	m := Compute("x", "x", ev, zap.New(core))

	assert.Equal(t, 1, m.TotalInstallAttempts)
	assert.Empty(t, m.CommonIssues)
	assert.Zero(t, m.TotalHealthChecks)
	assert.Equal(t, map[models.IssueCategory]int{models.IssueDocumentation: 1}, m.ReportedIssues)
	assert.Equal(t, 4, logs.Len())
}

func TestCompute_RecommendedAlternatives(t *testing.T) {
	ev := Events{Feedback: []models.UserFeedback{
		{Rating: 2, RecommendedAlternative: "fs-pro", Timestamp: now},
		{Rating: 2, RecommendedAlternative: "fs-lite", Timestamp: now},
		{Rating: 1, RecommendedAlternative: "fs-pro", Timestamp: now},
		{Rating: 1, RecommendedAlternative: "fs", Timestamp: now},
		{Rating: 1, RecommendedAlternative: "alpha", Timestamp: now},
	}}
	m := Compute("fs", "fs", ev, nil)
	assert.Equal(t, []string{"fs-pro", "alpha", "fs-lite"}, m.RecommendedAlternatives)
}

func TestSortedIssues(t *testing.T) {
	hist := map[models.IssueCategory]int{
		models.IssuePerformance:   2,
		models.IssueConnection:    5,
		models.IssueConfiguration: 2,
		models.IssueMaintenance:   0,
	}
	assert.Equal(t, []models.IssueCount{
		{Category: models.IssueConnection, Count: 5},
		{Category: models.IssueConfiguration, Count: 2},
		{Category: models.IssuePerformance, Count: 2},
	}, SortedIssues(hist))
	assert.Equal(t, models.IssueConnection, TopIssue(hist))
	assert.Equal(t, models.IssueCategory(""), TopIssue(nil))
}
