package ranking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ILLUVRSE/serverquality/internal/aggregate"
	"github.com/ILLUVRSE/serverquality/internal/models"
	"github.com/ILLUVRSE/serverquality/internal/scoring"
	"github.com/ILLUVRSE/serverquality/internal/store"
)

const (
	DefaultReadTimeout       = 10 * time.Second
	DefaultAlternativeMargin = 20.0
	DefaultMaxAlternatives   = 3
	// RecentWindow is how many events of each kind a report carries.
	RecentWindow = 10

	rankingConcurrency = 8
)

// Ranked pairs a component with its freshly computed metrics.
type Ranked struct {
	ComponentID string                `json:"component_id"`
	Metrics     models.QualityMetrics `json:"metrics"`
}

// Service answers quality queries by recomputing metrics from raw events on
// every call. Query methods never fail: store errors are logged and yield
// zeroed metrics or shorter lists.
type Service struct {
	store             store.Store
	scorer            scoring.Scorer
	logger            *zap.Logger
	now               func() time.Time
	readTimeout       time.Duration
	alternativeMargin float64
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithScorer(sc scoring.Scorer) Option {
	return func(s *Service) { s.scorer = sc }
}

func WithReadTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

// WithAlternativeMargin sets how many points higher a component must score
// to be suggested as an alternative.
func WithAlternativeMargin(points float64) Option {
	return func(s *Service) {
		if points >= 0 {
			s.alternativeMargin = points
		}
	}
}

func NewService(st store.Store, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		store:             st,
		scorer:            scoring.New(scoring.DefaultWeights()),
		logger:            logger.Named("ranking"),
		now:               time.Now,
		readTimeout:       DefaultReadTimeout,
		alternativeMargin: DefaultAlternativeMargin,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) AlternativeMargin() float64 {
	return s.alternativeMargin
}

// GetQualityMetrics computes the snapshot for one component. An empty
// installID is filled from the component's latest attempt.
func (s *Service) GetQualityMetrics(ctx context.Context, componentID, installID string) models.QualityMetrics {
	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	m, err := s.compute(ctx, componentID, installID)
	if err != nil {
		s.logger.Error("compute metrics failed", zap.String("component_id", componentID), zap.Error(err))
		return s.zeroed(componentID, installID)
	}
	return m
}

func (s *Service) zeroed(componentID, installID string) models.QualityMetrics {
	if installID == "" {
		installID = componentID
	}
	m := models.NewQualityMetrics(componentID, installID)
	s.scorer.Apply(&m, s.now())
	return m
}

func (s *Service) compute(ctx context.Context, componentID, installID string) (models.QualityMetrics, error) {
	attempts, err := s.store.ListInstallAttempts(ctx, componentID, 0)
	if err != nil {
		return models.QualityMetrics{}, fmt.Errorf("load attempts: %w", err)
	}
	checks, err := s.store.ListHealthChecks(ctx, componentID, 0)
	if err != nil {
		return models.QualityMetrics{}, fmt.Errorf("load health checks: %w", err)
	}
	feedback, err := s.store.ListUserFeedback(ctx, componentID, 0)
	if err != nil {
		return models.QualityMetrics{}, fmt.Errorf("load feedback: %w", err)
	}
	if installID == "" {
		installID = componentID
		if len(attempts) > 0 && attempts[0].InstallID != "" {
			installID = attempts[0].InstallID
		}
	}
	m := aggregate.Compute(componentID, installID, aggregate.Events{
		Attempts:     attempts,
		HealthChecks: checks,
		Feedback:     feedback,
	}, s.logger)
	s.scorer.Apply(&m, s.now())
	return m, nil
}

// GetServerRankings returns components with at least one attempt, best
// score first, ties broken by component id. An empty componentType matches
// every component; limit <= 0 means no limit.
func (s *Service) GetServerRankings(ctx context.Context, componentType string, limit int) []Ranked {
	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()

	refs, err := s.store.ListComponents(ctx, store.ComponentFilter{Type: componentType})
	if err != nil {
		s.logger.Error("list components failed", zap.String("type", componentType), zap.Error(err))
		return []Ranked{}
	}

	results := make([]*Ranked, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rankingConcurrency)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			m, err := s.compute(gctx, ref.ComponentID, ref.InstallID)
			if err != nil {
				s.logger.Warn("skipping component in rankings", zap.String("component_id", ref.ComponentID), zap.Error(err))
				return nil
			}
			results[i] = &Ranked{ComponentID: ref.ComponentID, Metrics: m}
			return nil
		})
	}
	_ = g.Wait()

	ranked := make([]Ranked, 0, len(results))
	for _, r := range results {
		if r != nil {
			ranked = append(ranked, *r)
		}
	}
	SortRanked(ranked)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// SortRanked orders by reliability score descending, then component id.
func SortRanked(list []Ranked) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].Metrics.ReliabilityScore, list[j].Metrics.ReliabilityScore
		if a != b {
			return a > b
		}
		return list[i].ComponentID < list[j].ComponentID
	})
}

// FilterMinAttempts keeps entries with at least n install attempts.
func FilterMinAttempts(list []Ranked, n int) []Ranked {
	if n <= 0 {
		return list
	}
	out := make([]Ranked, 0, len(list))
	for _, r := range list {
		if r.Metrics.TotalInstallAttempts >= n {
			out = append(out, r)
		}
	}
	return out
}
