package enhance

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ILLUVRSE/serverquality/internal/aggregate"
	"github.com/ILLUVRSE/serverquality/internal/models"
	"github.com/ILLUVRSE/serverquality/internal/ranking"
	"github.com/ILLUVRSE/serverquality/internal/similarity"
	"github.com/ILLUVRSE/serverquality/internal/telemetry"
)

const (
	DefaultMinAttempts = 5
	DefaultConcurrency = 8

	// Components at or above this score never get alternatives.
	alternativesBelow = 60.0
	rankingPool       = 100

	noDataMessage = "No quality data available yet"
)

var badges = map[models.QualityTier]string{
	models.TierExcellent: "🏆",
	models.TierGood:      "✅",
	models.TierFair:      "⚠️",
	models.TierPoor:      "❗",
	models.TierCritical:  "❌",
}

// Adapter annotates discovery results with quality data.
type Adapter struct {
	svc         *ranking.Service
	metrics     *telemetry.Metrics
	logger      *zap.Logger
	minAttempts int
	margin      float64
	concurrency int
}

type Option func(*Adapter)

// WithMinAttempts sets how many attempts a component needs before it gets a
// badge.
func WithMinAttempts(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.minAttempts = n
		}
	}
}

func WithAlternativeMargin(points float64) Option {
	return func(a *Adapter) {
		if points >= 0 {
			a.margin = points
		}
	}
}

func WithConcurrency(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(a *Adapter) { a.metrics = m }
}

func NewAdapter(svc *ranking.Service, logger *zap.Logger, opts ...Option) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Adapter{
		svc:         svc,
		logger:      logger.Named("enhance"),
		minAttempts: DefaultMinAttempts,
		margin:      svc.AlternativeMargin(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Enhance returns one result per candidate, best score first and then by
// relevance. Candidates are never modified.
func (a *Adapter) Enhance(ctx context.Context, candidates []models.DiscoveredComponent) []models.EnhancedResult {
	results := make([]models.EnhancedResult, len(candidates))

	var (
		once     sync.Once
		rankings []ranking.Ranked
	)
	loadRankings := func() []ranking.Ranked {
		once.Do(func() {
			rankings = a.svc.GetServerRankings(ctx, "", rankingPool)
		})
		return rankings
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, c := range candidates {
		i, c := i, c
		g.Go(func() error {
			results[i] = a.enhanceOne(gctx, c, loadRankings)
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(results, func(i, j int) bool {
		si, sj := results[i].Score(), results[j].Score()
		if si != sj {
			return si > sj
		}
		return results[i].Original.RelevanceScore > results[j].Original.RelevanceScore
	})
	a.logger.Debug("enhanced discovery results", zap.Int("count", len(results)))
	return results
}

func (a *Adapter) enhanceOne(ctx context.Context, c models.DiscoveredComponent, loadRankings func() []ranking.Ranked) models.EnhancedResult {
	res := models.EnhancedResult{Original: c, AlternativeSuggestions: []string{}}
	m := a.svc.GetQualityMetrics(ctx, c.ID, c.InstallID)
	if m.TotalInstallAttempts == 0 {
		a.metrics.EnhanceCandidate(false)
		return res
	}
	res.Metrics = &m
	if m.TotalInstallAttempts < a.minAttempts {
		res.Note = fmt.Sprintf("Limited data (%d attempts)", m.TotalInstallAttempts)
		a.metrics.EnhanceCandidate(false)
		return res
	}
	a.metrics.EnhanceCandidate(true)

	res.QualityBadge = Badge(m.QualityTier)
	res.WarningMessage = Warning(m)
	res.RecommendationText = fmt.Sprintf("%s (Score: %.0f/100)", ranking.TierLabel(m.QualityTier), m.ReliabilityScore)
	if m.ReliabilityScore < alternativesBelow {
		res.AlternativeSuggestions = ranking.FindAlternatives(loadRankings(), c.ID,
			similarity.Keywords(c.ID, c.DisplayName, c.Description), m.ReliabilityScore, a.margin, ranking.DefaultMaxAlternatives)
	}
	return res
}

// InstallSummary is the compact quality view for an install prompt.
func (a *Adapter) InstallSummary(ctx context.Context, componentID, installID string) models.InstallSummary {
	m := a.svc.GetQualityMetrics(ctx, componentID, installID)
	if m.TotalInstallAttempts < a.minAttempts {
		return models.InstallSummary{HasData: false, Message: noDataMessage}
	}
	return models.InstallSummary{
		HasData:          true,
		ReliabilityScore: m.ReliabilityScore,
		SuccessRate:      m.SuccessRate,
		TotalAttempts:    m.TotalInstallAttempts,
		QualityTier:      m.QualityTier,
		Recommendation:   ranking.Recommendation(m),
		WarningMessage:   Warning(m),
		Alternatives:     m.RecommendedAlternatives,
	}
}

func Badge(t models.QualityTier) string {
	if b, ok := badges[t]; ok {
		return b
	}
	return badges[models.TierCritical]
}

// Warning joins every applicable caution into one line, or returns "".
func Warning(m models.QualityMetrics) string {
	var parts []string
	switch {
	case m.TotalInstallAttempts == 0:
	case m.SuccessRate < 0.3:
		parts = append(parts, fmt.Sprintf("Very low success rate (%.0f%%)", m.SuccessRate*100))
	case m.SuccessRate < 0.6:
		parts = append(parts, fmt.Sprintf("Low success rate (%.0f%%)", m.SuccessRate*100))
	}
	if m.TotalRatings > 0 && m.AverageRating < 2.5 {
		parts = append(parts, fmt.Sprintf("Low user rating (%.1f/5)", m.AverageRating))
	}
	switch m.MaintenanceStatus {
	case models.MaintenanceAbandoned:
		parts = append(parts, "Server appears abandoned")
	case models.MaintenanceStale:
		parts = append(parts, "Server may be stale")
	}
	if top := aggregate.TopIssue(m.CommonIssues); top != "" {
		parts = append(parts, "Common issue: "+title(string(top)))
	}
	return strings.Join(parts, " | ")
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
