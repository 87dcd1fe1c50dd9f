package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/serverquality/internal/auth"
	"github.com/ILLUVRSE/serverquality/internal/enhance"
	"github.com/ILLUVRSE/serverquality/internal/models"
	"github.com/ILLUVRSE/serverquality/internal/ranking"
	"github.com/ILLUVRSE/serverquality/internal/store"
	"github.com/ILLUVRSE/serverquality/internal/tracker"
)

const (
	codeBadRequest   = "QUALITY_BAD_REQUEST"
	codeAuth         = "QUALITY_AUTH"
	codeForbidden    = "QUALITY_FORBIDDEN"
	codeUnavailable  = "QUALITY_STORE_UNAVAILABLE"
	codeInternal     = "QUALITY_INTERNAL"
	maxEventBytes    = 64 * 1024
	maxEnhanceBytes  = 1 << 20
	defaultRankLimit = 50
)

// Deps are the collaborators the router dispatches to.
type Deps struct {
	Store    store.Store
	Recorder *tracker.Recorder
	Ranking  *ranking.Service
	Enhancer *enhance.Adapter
	Verifier *auth.Verifier
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
	// MinAttempts is the overview default when the query omits it.
	MinAttempts int
}

type Server struct {
	deps   Deps
	logger *zap.Logger
}

func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{deps: deps, logger: deps.Logger.Named("http")}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/quality", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.requireScope(auth.ScopeWrite))
			r.Post("/install-attempts", s.handleInstallAttempt)
			r.Post("/install-outcomes", s.handleInstallOutcome)
			r.Post("/health-checks", s.handleHealthCheck)
			r.Post("/feedback", s.handleFeedback)
		})
		r.With(s.requireScope(auth.ScopeAdmin)).Post("/cleanup", s.handleCleanup)

		r.Get("/components/{id}/metrics", s.handleMetrics)
		r.Get("/components/{id}/report", s.handleReport)
		r.Get("/components/{id}/summary", s.handleSummary)
		r.Get("/rankings", s.handleRankings)
		r.Get("/overview", s.handleOverview)
		r.Post("/enhance", s.handleEnhance)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]interface{}{
		"ok":   true,
		"time": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := s.deps.Store.Ping(ctx); err != nil {
		status["ok"] = false
		status["db"] = "down"
		status["error"] = err.Error()
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	status["db"] = "up"
	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleInstallAttempt(w http.ResponseWriter, r *http.Request) {
	var ev models.InstallAttempt
	if err := decodeJSON(w, r, &ev, maxEventBytes); err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	res, err := s.deps.Recorder.RecordInstallAttempt(r.Context(), ev)
	respondRecord(w, res, err)
}

func (s *Server) handleInstallOutcome(w http.ResponseWriter, r *http.Request) {
	var in tracker.InstallOutcomeInput
	if err := decodeJSON(w, r, &in, maxEventBytes); err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	res, err := s.deps.Recorder.RecordInstallOutcome(r.Context(), in)
	respondRecord(w, res, err)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	var ev models.HealthCheck
	if err := decodeJSON(w, r, &ev, maxEventBytes); err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	res, err := s.deps.Recorder.RecordHealthCheck(r.Context(), ev)
	respondRecord(w, res, err)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var in tracker.FeedbackInput
	if err := decodeJSON(w, r, &in, maxEventBytes); err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	if in.SubmitterID == "" {
		if p, ok := auth.FromContext(r.Context()); ok {
			in.SubmitterID = p.Subject
		}
	}
	res, err := s.deps.Recorder.RecordUserFeedback(r.Context(), in)
	respondRecord(w, res, err)
}

// respondRecord maps a record call to 200, 400 on validation or 503 when the
// store could not take the write.
func respondRecord(w http.ResponseWriter, res tracker.Result, err error) {
	var verr *tracker.ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, codeBadRequest, verr.Error())
	case err != nil:
		respondError(w, http.StatusInternalServerError, codeInternal, err.Error())
	case res.Status == tracker.StatusFailed:
		respondJSON(w, http.StatusServiceUnavailable, res)
	default:
		respondJSON(w, http.StatusOK, res)
	}
}

type cleanupRequest struct {
	RetentionDays int  `json:"retention_days"`
	DryRun        bool `json:"dry_run"`
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := decodeJSON(w, r, &req, maxEventBytes); err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	run := s.deps.Recorder.Cleanup
	if req.DryRun {
		run = s.deps.Recorder.PendingCleanup
	}
	counts, err := run(r.Context(), req.RetentionDays)
	if err != nil {
		var verr *tracker.ValidationError
		if errors.As(err, &verr) {
			respondError(w, http.StatusBadRequest, codeBadRequest, verr.Error())
			return
		}
		s.logger.Error("cleanup failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, codeUnavailable, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"dry_run": req.DryRun,
		"counts":  counts,
		"total":   counts.Total(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m := s.deps.Ranking.GetQualityMetrics(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("install_id"))
	respondJSON(w, http.StatusOK, m)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report := s.deps.Ranking.BuildReport(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("install_id"))
	respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum := s.deps.Enhancer.InstallSummary(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("install_id"))
	respondJSON(w, http.StatusOK, sum)
}

func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), defaultRankLimit)
	if err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, "invalid limit")
		return
	}
	minAttempts, err := intParam(q.Get("min_attempts"), 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, "invalid min_attempts")
		return
	}
	// min_attempts filters before the limit applies.
	ranked := ranking.FilterMinAttempts(s.deps.Ranking.GetServerRankings(r.Context(), q.Get("type"), 0), minAttempts)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"rankings": ranked})
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	minAttempts, err := intParam(r.URL.Query().Get("min_attempts"), s.deps.MinAttempts)
	if err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, "invalid min_attempts")
		return
	}
	respondJSON(w, http.StatusOK, s.deps.Ranking.Overview(r.Context(), minAttempts))
}

type enhanceRequest struct {
	Candidates []models.DiscoveredComponent `json:"candidates"`
}

func (s *Server) handleEnhance(w http.ResponseWriter, r *http.Request) {
	var req enhanceRequest
	if err := decodeJSON(w, r, &req, maxEnhanceBytes); err != nil {
		respondError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return
	}
	results := s.deps.Enhancer.Enhance(r.Context(), req.Candidates)
	respondJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (s *Server) requireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.deps.Verifier.Enabled() {
				next.ServeHTTP(w, r)
				return
			}
			tok, err := auth.BearerToken(r)
			if err != nil {
				respondError(w, http.StatusUnauthorized, codeAuth, err.Error())
				return
			}
			p, err := s.deps.Verifier.Verify(tok, scope)
			if err != nil {
				if errors.Is(err, auth.ErrMissingScope) {
					respondError(w, http.StatusForbidden, codeForbidden, scope+" scope required")
					return
				}
				respondError(w, http.StatusUnauthorized, codeAuth, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("must be a non-negative integer")
	}
	return n, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, limit int64) error {
	if limit <= 0 {
		limit = 1 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, msg string) {
	respondJSON(w, status, map[string]string{
		"error": msg,
		"code":  code,
	})
}
