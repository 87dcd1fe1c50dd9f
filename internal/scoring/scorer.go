package scoring

import (
	"math"
	"time"

	"github.com/ILLUVRSE/serverquality/internal/models"
)

// Weights are the maximum points each signal contributes. The defaults sum
// to 100.
type Weights struct {
	SuccessRate float64 // 40
	HealthRate  float64 // 30
	UserRating  float64 // 20
	Recency     float64 // 10

	// RecencyWindow is how long after the last success the recency bonus
	// decays to zero.
	RecencyWindow time.Duration
}

func DefaultWeights() Weights {
	return Weights{
		SuccessRate:   40,
		HealthRate:    30,
		UserRating:    20,
		Recency:       10,
		RecencyWindow: 30 * 24 * time.Hour,
	}
}

// Tier thresholds, inclusive lower bounds.
const (
	ExcellentMin = 80.0
	GoodMin      = 60.0
	FairMin      = 40.0
	PoorMin      = 20.0
)

// Maintenance thresholds on time since the last successful install.
const (
	ActiveWithin = 7 * 24 * time.Hour
	RecentWithin = 30 * 24 * time.Hour
	StaleWithin  = 90 * 24 * time.Hour
)

type Result struct {
	ReliabilityScore float64
	Tier             models.QualityTier
	Maintenance      models.MaintenanceStatus
	RecencyBonus     float64
}

type Scorer struct {
	weights Weights
}

func New(w Weights) Scorer {
	if w.RecencyWindow <= 0 {
		w.RecencyWindow = DefaultWeights().RecencyWindow
	}
	return Scorer{weights: w}
}

// Score is a pure function of the metrics and the supplied clock reading.
func (s Scorer) Score(m models.QualityMetrics, now time.Time) Result {
	w := s.weights
	score := m.SuccessRate*w.SuccessRate + m.HealthRate*w.HealthRate
	if m.AverageRating > 0 {
		score += ((m.AverageRating - 1) / 4) * w.UserRating
	}
	bonus := s.recencyBonus(m.LastSuccessfulInstall, now)
	score += bonus * w.Recency

	score = Clamp(score)
	return Result{
		ReliabilityScore: score,
		Tier:             Tier(score),
		Maintenance:      Maintenance(m.LastSuccessfulInstall, now),
		RecencyBonus:     bonus,
	}
}

// Apply writes the derived fields into m.
func (s Scorer) Apply(m *models.QualityMetrics, now time.Time) {
	r := s.Score(*m, now)
	m.ReliabilityScore = r.ReliabilityScore
	m.QualityTier = r.Tier
	m.MaintenanceStatus = r.Maintenance
}

func (s Scorer) recencyBonus(lastSuccess *time.Time, now time.Time) float64 {
	if lastSuccess == nil {
		return 0
	}
	age := now.Sub(*lastSuccess)
	if age < 0 {
		age = 0
	}
	return math.Max(0, 1-float64(age)/float64(s.weights.RecencyWindow))
}

// Score uses the default weights.
func Score(m models.QualityMetrics, now time.Time) Result {
	return New(DefaultWeights()).Score(m, now)
}

// Apply uses the default weights.
func Apply(m *models.QualityMetrics, now time.Time) {
	New(DefaultWeights()).Apply(m, now)
}

func Clamp(score float64) float64 {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func Tier(score float64) models.QualityTier {
	switch {
	case score >= ExcellentMin:
		return models.TierExcellent
	case score >= GoodMin:
		return models.TierGood
	case score >= FairMin:
		return models.TierFair
	case score >= PoorMin:
		return models.TierPoor
	default:
		return models.TierCritical
	}
}

func Maintenance(lastSuccess *time.Time, now time.Time) models.MaintenanceStatus {
	if lastSuccess == nil {
		return models.MaintenanceUnknown
	}
	age := now.Sub(*lastSuccess)
	switch {
	case age < ActiveWithin:
		return models.MaintenanceActive
	case age < RecentWithin:
		return models.MaintenanceRecent
	case age < StaleWithin:
		return models.MaintenanceStale
	default:
		return models.MaintenanceAbandoned
	}
}
