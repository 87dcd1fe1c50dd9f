package store

import (
	"context"
	"time"

	"github.com/ILLUVRSE/serverquality/internal/models"
)

// Store is the append-only event persistence used by every component. Inserts
// are idempotent on each event's natural key: inserting a duplicate returns
// inserted=false and a nil error.
type Store interface {
	InsertInstallAttempt(ctx context.Context, ev models.InstallAttempt) (bool, error)
	InsertHealthCheck(ctx context.Context, ev models.HealthCheck) (bool, error)
	InsertUserFeedback(ctx context.Context, ev models.UserFeedback) (bool, error)

	// List* return events for one component, most recent first. limit <= 0
	// returns everything.
	ListInstallAttempts(ctx context.Context, componentID string, limit int) ([]models.InstallAttempt, error)
	ListHealthChecks(ctx context.Context, componentID string, limit int) ([]models.HealthCheck, error)
	ListUserFeedback(ctx context.Context, componentID string, limit int) ([]models.UserFeedback, error)

	// ListComponents returns every component with at least one install
	// attempt, ordered by component id.
	ListComponents(ctx context.Context, filter ComponentFilter) ([]ComponentRef, error)

	// ListBefore returns the events a DeleteBefore with the same cutoff would
	// remove.
	ListBefore(ctx context.Context, cutoff time.Time) (EventBatch, error)
	// DeleteBefore removes events strictly older than cutoff.
	DeleteBefore(ctx context.Context, cutoff time.Time) (models.CleanupCounts, error)

	Ping(ctx context.Context) error
	Close() error
}

type ComponentFilter struct {
	// Type restricts to components with at least one attempt recorded under
	// this component type. Empty matches all.
	Type string
}

// ComponentRef identifies a tracked component and the install id of its most
// recent attempt.
type ComponentRef struct {
	ComponentID string
	InstallID   string
}

type EventBatch struct {
	InstallAttempts []models.InstallAttempt
	HealthChecks    []models.HealthCheck
	UserFeedback    []models.UserFeedback
}

func (b EventBatch) Empty() bool {
	return len(b.InstallAttempts) == 0 && len(b.HealthChecks) == 0 && len(b.UserFeedback) == 0
}

// NormalizeTime converts t to the precision every backend stores: UTC,
// truncated to the microsecond. Natural keys compare on this value.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func toMicros(t time.Time) int64 {
	return NormalizeTime(t).UnixMicro()
}

func fromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}
