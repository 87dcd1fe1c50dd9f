package tracker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ILLUVRSE/serverquality/internal/models"
)

// cutoff returns the instant before which events fall outside a window of
// retentionDays days.
func (r *Recorder) cutoff(retentionDays int) (time.Time, error) {
	if retentionDays < 1 {
		return time.Time{}, invalid("retention_days", "must be at least 1, got %d", retentionDays)
	}
	return r.now().Add(-time.Duration(retentionDays) * 24 * time.Hour), nil
}

// Cleanup deletes every event strictly older than now minus retentionDays,
// across all three kinds, in one transaction. When an archiver is configured
// the doomed events are uploaded first and an upload failure aborts the
// sweep. Unlike record calls, storage errors are returned.
func (r *Recorder) Cleanup(ctx context.Context, retentionDays int) (models.CleanupCounts, error) {
	cutoff, err := r.cutoff(retentionDays)
	if err != nil {
		return models.CleanupCounts{}, err
	}
	log := r.logger.With(zap.Int("retention_days", retentionDays), zap.Time("cutoff", cutoff))

	if r.archiver != nil {
		batch, err := r.store.ListBefore(ctx, cutoff)
		if err != nil {
			return models.CleanupCounts{}, fmt.Errorf("list expired events: %w", err)
		}
		keys, err := r.archiver.Archive(ctx, batch, r.now())
		if err != nil {
			log.Error("archive failed, cleanup aborted", zap.Error(err))
			return models.CleanupCounts{}, fmt.Errorf("archive expired events: %w", err)
		}
		if len(keys) > 0 {
			log.Info("expired events archived", zap.Strings("keys", keys))
		}
	}

	start := time.Now()
	counts, err := r.store.DeleteBefore(ctx, cutoff)
	r.metrics.ObserveStore("delete_before", start)
	if err != nil {
		log.Error("cleanup failed", zap.Error(err))
		return models.CleanupCounts{}, fmt.Errorf("delete expired events: %w", err)
	}
	r.metrics.CleanupDeleted(string(models.KindInstallAttempt), counts.InstallAttempts)
	r.metrics.CleanupDeleted(string(models.KindHealthCheck), counts.HealthChecks)
	r.metrics.CleanupDeleted(string(models.KindUserFeedback), counts.UserFeedback)

	log.Info("cleanup complete",
		zap.Int64("install_attempts", counts.InstallAttempts),
		zap.Int64("health_checks", counts.HealthChecks),
		zap.Int64("user_feedback", counts.UserFeedback))
	return counts, nil
}

// PendingCleanup reports what Cleanup would delete without deleting it.
func (r *Recorder) PendingCleanup(ctx context.Context, retentionDays int) (models.CleanupCounts, error) {
	cutoff, err := r.cutoff(retentionDays)
	if err != nil {
		return models.CleanupCounts{}, err
	}
	batch, err := r.store.ListBefore(ctx, cutoff)
	if err != nil {
		return models.CleanupCounts{}, fmt.Errorf("list expired events: %w", err)
	}
	return models.CleanupCounts{
		InstallAttempts: int64(len(batch.InstallAttempts)),
		HealthChecks:    int64(len(batch.HealthChecks)),
		UserFeedback:    int64(len(batch.UserFeedback)),
	}, nil
}
