package ranking

import (
	"context"

	"github.com/ILLUVRSE/serverquality/internal/models"
)

// Overview is the fleet-wide status view.
type Overview struct {
	TrackedComponents    int                        `json:"tracked_components"`
	WithSufficientData   int                        `json:"with_sufficient_data"`
	MinAttempts          int                        `json:"min_attempts"`
	TierDistribution     map[models.QualityTier]int `json:"tier_distribution"`
	TotalInstallAttempts int                        `json:"total_install_attempts"`
	SuccessfulInstalls   int                        `json:"successful_installs"`
	OverallSuccessRate   float64                    `json:"overall_success_rate"`
	Top                  []Ranked                   `json:"top"`
}

const overviewTop = 5

// Overview summarises every tracked component. Tier counts and the top list
// only include components with at least minAttempts attempts.
func (s *Service) Overview(ctx context.Context, minAttempts int) Overview {
	all := s.GetServerRankings(ctx, "", 0)
	ov := Overview{
		TrackedComponents: len(all),
		MinAttempts:       minAttempts,
		TierDistribution:  map[models.QualityTier]int{},
		Top:               []Ranked{},
	}
	for _, tier := range models.Tiers {
		ov.TierDistribution[tier] = 0
	}
	for _, r := range all {
		ov.TotalInstallAttempts += r.Metrics.TotalInstallAttempts
		ov.SuccessfulInstalls += r.Metrics.SuccessfulInstalls
	}
	if ov.TotalInstallAttempts > 0 {
		ov.OverallSuccessRate = float64(ov.SuccessfulInstalls) / float64(ov.TotalInstallAttempts)
	}

	sufficient := FilterMinAttempts(all, minAttempts)
	ov.WithSufficientData = len(sufficient)
	for _, r := range sufficient {
		ov.TierDistribution[r.Metrics.QualityTier]++
	}
	if len(sufficient) > overviewTop {
		sufficient = sufficient[:overviewTop]
	}
	ov.Top = append(ov.Top, sufficient...)
	return ov
}
