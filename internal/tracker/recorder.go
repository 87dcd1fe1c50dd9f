package tracker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ILLUVRSE/serverquality/internal/archive"
	"github.com/ILLUVRSE/serverquality/internal/models"
	"github.com/ILLUVRSE/serverquality/internal/store"
	"github.com/ILLUVRSE/serverquality/internal/stream"
	"github.com/ILLUVRSE/serverquality/internal/telemetry"
)

const DefaultWriteTimeout = 5 * time.Second

// Recorder validates and persists raw quality events. Record calls never fail
// the caller's workflow because of storage: a store error is logged and
// reported as Result{Status: StatusFailed} with a nil error. Stored events are
// published in the background; only the store write blocks the caller.
type Recorder struct {
	store        store.Store
	publisher    stream.Publisher
	archiver     archive.Archiver
	metrics      *telemetry.Metrics
	logger       *zap.Logger
	now          func() time.Time
	writeTimeout time.Duration
	publishing   sync.WaitGroup
}

type Option func(*Recorder)

// WithPublisher publishes every newly stored event.
func WithPublisher(p stream.Publisher) Option {
	return func(r *Recorder) { r.publisher = p }
}

// WithArchiver uploads events before a retention sweep deletes them.
func WithArchiver(a archive.Archiver) Option {
	return func(r *Recorder) { r.archiver = a }
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Recorder) { r.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.writeTimeout = d
		}
	}
}

func NewRecorder(s store.Store, logger *zap.Logger, opts ...Option) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		store:        s,
		publisher:    stream.NopPublisher{},
		logger:       logger.Named("recorder"),
		now:          time.Now,
		writeTimeout: DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) timestamp(ts time.Time) time.Time {
	if ts.IsZero() {
		ts = r.now()
	}
	return store.NormalizeTime(ts)
}

// RecordInstallAttempt stores one install outcome. A zero Timestamp means
// now; an empty InstallID defaults to the component id.
func (r *Recorder) RecordInstallAttempt(ctx context.Context, ev models.InstallAttempt) (Result, error) {
	ev.ComponentID = strings.TrimSpace(ev.ComponentID)
	if ev.ComponentID == "" {
		return r.rejected(models.KindInstallAttempt, invalid("component_id", "required"))
	}
	if !ev.Outcome.Valid() {
		return r.rejected(models.KindInstallAttempt, invalid("outcome", "unknown value %q", ev.Outcome))
	}
	if ev.ErrorCategory != "" && !ev.ErrorCategory.Valid() {
		return r.rejected(models.KindInstallAttempt, invalid("error_category", "unknown value %q", ev.ErrorCategory))
	}
	if ev.DurationSeconds < 0 || math.IsNaN(ev.DurationSeconds) || math.IsInf(ev.DurationSeconds, 0) {
		return r.rejected(models.KindInstallAttempt, invalid("duration_seconds", "must be a non-negative number"))
	}
	if ev.InstallID == "" {
		ev.InstallID = ev.ComponentID
	}
	ev.Timestamp = r.timestamp(ev.Timestamp)

	res := r.write(ctx, models.KindInstallAttempt, ev, ev.ComponentID, func(ctx context.Context) (bool, error) {
		return r.store.InsertInstallAttempt(ctx, ev)
	})
	return res, nil
}

// RecordHealthCheck stores one probe result.
func (r *Recorder) RecordHealthCheck(ctx context.Context, ev models.HealthCheck) (Result, error) {
	ev.ComponentID = strings.TrimSpace(ev.ComponentID)
	if ev.ComponentID == "" {
		return r.rejected(models.KindHealthCheck, invalid("component_id", "required"))
	}
	if !ev.Status.Valid() {
		return r.rejected(models.KindHealthCheck, invalid("status", "unknown value %q", ev.Status))
	}
	if ev.ResponseTimeMS != nil && (*ev.ResponseTimeMS < 0 || math.IsNaN(*ev.ResponseTimeMS)) {
		return r.rejected(models.KindHealthCheck, invalid("response_time_ms", "must be a non-negative number"))
	}
	ev.Timestamp = r.timestamp(ev.Timestamp)

	res := r.write(ctx, models.KindHealthCheck, ev, ev.ComponentID, func(ctx context.Context) (bool, error) {
		return r.store.InsertHealthCheck(ctx, ev)
	})
	return res, nil
}

// FeedbackInput is a user rating as submitted. SubmitterID is hashed before
// storage and never persisted.
type FeedbackInput struct {
	ComponentID            string                 `json:"component_id"`
	Rating                 int                    `json:"rating"`
	Comment                string                 `json:"comment,omitempty"`
	ReportedIssues         []models.IssueCategory `json:"reported_issues,omitempty"`
	RecommendedAlternative string                 `json:"recommended_alternative,omitempty"`
	SubmitterID            string                 `json:"submitter_id,omitempty"`
	Timestamp              time.Time              `json:"timestamp,omitempty"`
}

func (r *Recorder) RecordUserFeedback(ctx context.Context, in FeedbackInput) (Result, error) {
	componentID := strings.TrimSpace(in.ComponentID)
	if componentID == "" {
		return r.rejected(models.KindUserFeedback, invalid("component_id", "required"))
	}
	if in.Rating < 1 || in.Rating > 5 {
		return r.rejected(models.KindUserFeedback, invalid("rating", "must be between 1 and 5, got %d", in.Rating))
	}
	issues := make([]models.IssueCategory, 0, len(in.ReportedIssues))
	seen := map[models.IssueCategory]bool{}
	for _, c := range in.ReportedIssues {
		if !c.Valid() {
			return r.rejected(models.KindUserFeedback, invalid("reported_issues", "unknown value %q", c))
		}
		if !seen[c] {
			seen[c] = true
			issues = append(issues, c)
		}
	}

	ev := models.UserFeedback{
		ComponentID:            componentID,
		Rating:                 in.Rating,
		Timestamp:              r.timestamp(in.Timestamp),
		Comment:                in.Comment,
		ReportedIssues:         issues,
		RecommendedAlternative: strings.TrimSpace(in.RecommendedAlternative),
		SubmitterHash:          HashSubmitter(in.SubmitterID),
	}
	res := r.write(ctx, models.KindUserFeedback, ev, ev.ComponentID, func(ctx context.Context) (bool, error) {
		return r.store.InsertUserFeedback(ctx, ev)
	})
	return res, nil
}

// InstallOutcomeInput is the coarse report an install orchestrator makes.
type InstallOutcomeInput struct {
	ComponentID         string  `json:"component_id"`
	InstallID           string  `json:"install_id,omitempty"`
	ComponentType       string  `json:"component_type,omitempty"`
	Success             bool    `json:"success"`
	DurationSeconds     float64 `json:"duration_seconds"`
	ErrorMessage        string  `json:"error_message,omitempty"`
	ClientVersion       string  `json:"client_version,omitempty"`
	Platform            string  `json:"platform,omitempty"`
	RuntimeVersion      string  `json:"runtime_version,omitempty"`
	OrchestratorVersion string  `json:"orchestrator_version,omitempty"`
}

// RecordInstallOutcome derives outcome and error category from the error
// text, then records the attempt.
func (r *Recorder) RecordInstallOutcome(ctx context.Context, in InstallOutcomeInput) (Result, error) {
	outcome, category := Categorize(in.Success, in.ErrorMessage)
	res, err := r.RecordInstallAttempt(ctx, models.InstallAttempt{
		ComponentID:         in.ComponentID,
		InstallID:           in.InstallID,
		ComponentType:       in.ComponentType,
		Outcome:             outcome,
		DurationSeconds:     in.DurationSeconds,
		ErrorMessage:        in.ErrorMessage,
		ErrorCategory:       category,
		ClientVersion:       in.ClientVersion,
		Platform:            in.Platform,
		RuntimeVersion:      in.RuntimeVersion,
		OrchestratorVersion: in.OrchestratorVersion,
	})
	if err == nil {
		r.logger.Info("install outcome recorded",
			zap.String("component_id", in.ComponentID),
			zap.String("outcome", string(outcome)),
			zap.String("status", string(res.Status)))
	}
	return res, err
}

// HashSubmitter returns the truncated sha256 of a raw submitter identifier,
// or "" for anonymous feedback.
func HashSubmitter(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])[:16]
}

func (r *Recorder) rejected(kind models.EventKind, err *ValidationError) (Result, error) {
	r.metrics.EventRecorded(string(kind), "invalid")
	r.logger.Debug("event rejected", zap.String("kind", string(kind)), zap.Error(err))
	return Result{}, err
}

func (r *Recorder) write(ctx context.Context, kind models.EventKind, event interface{}, componentID string, insert func(context.Context) (bool, error)) Result {
	wctx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()

	start := time.Now()
	inserted, err := insert(wctx)
	r.metrics.ObserveStore("insert_"+string(kind), start)
	if err != nil {
		r.metrics.EventRecorded(string(kind), string(StatusFailed))
		r.logger.Error("store write failed",
			zap.String("kind", string(kind)),
			zap.String("component_id", componentID),
			zap.Error(err))
		return Result{Status: StatusFailed, Error: fmt.Sprintf("store %s: %v", kind, err)}
	}
	if !inserted {
		r.metrics.EventRecorded(string(kind), string(StatusDuplicate))
		r.logger.Debug("duplicate event ignored", zap.String("kind", string(kind)), zap.String("component_id", componentID))
		return Result{Status: StatusDuplicate}
	}

	r.metrics.EventRecorded(string(kind), string(StatusStored))
	r.publishing.Add(1)
	go r.publish(context.WithoutCancel(ctx), kind, event, componentID)
	return Result{Status: StatusStored}
}

func (r *Recorder) publish(ctx context.Context, kind models.EventKind, event interface{}, componentID string) {
	defer r.publishing.Done()
	ctx, cancel := context.WithTimeout(ctx, r.writeTimeout)
	defer cancel()
	if err := r.publisher.Publish(ctx, kind, event); err != nil {
		r.metrics.PublishFailed()
		r.logger.Warn("event stored but not published",
			zap.String("kind", string(kind)),
			zap.String("component_id", componentID),
			zap.Error(err))
	}
}

// Flush waits for in-flight publishes. Call it before closing the publisher.
func (r *Recorder) Flush() {
	r.publishing.Wait()
}
