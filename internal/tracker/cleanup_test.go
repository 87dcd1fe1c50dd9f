package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/serverquality/internal/models"
	"github.com/ILLUVRSE/serverquality/internal/store"
)

type fakeArchiver struct {
	batches []store.EventBatch
	err     error
}

func (f *fakeArchiver) Archive(ctx context.Context, batch store.EventBatch, at time.Time) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, batch)
	return []string{"archive/quality/run/install_attempt.jsonl"}, nil
}

func seedAges(t *testing.T, r *Recorder, days ...int) {
	t.Helper()
	ctx := context.Background()
	for _, d := range days {
		ts := fixedNow.AddDate(0, 0, -d)
		_, err := r.RecordInstallAttempt(ctx, models.InstallAttempt{ComponentID: "fs", Outcome: models.OutcomeSuccess, Timestamp: ts})
		require.NoError(t, err)
		_, err = r.RecordHealthCheck(ctx, models.HealthCheck{ComponentID: "fs", Status: models.HealthHealthy, Timestamp: ts})
		require.NoError(t, err)
		_, err = r.RecordUserFeedback(ctx, FeedbackInput{ComponentID: "fs", Rating: 4, Timestamp: ts})
		require.NoError(t, err)
	}
}

func TestCleanup_RemovesOnlyOlderThanWindow(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	r := newTestRecorder(s)
	seedAges(t, r, 45, 31, 29, 1)

	pending, err := r.PendingCleanup(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, models.CleanupCounts{InstallAttempts: 2, HealthChecks: 2, UserFeedback: 2}, pending)
	assert.Equal(t, int64(12), s.Counts().Total(), "dry run deletes nothing")

	counts, err := r.Cleanup(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, pending, counts)

	attempts, err := s.ListInstallAttempts(ctx, "fs", 0)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.True(t, fixedNow.AddDate(0, 0, -29).Equal(attempts[1].Timestamp))
}

func TestCleanup_RejectsBadWindow(t *testing.T) {
	r := newTestRecorder(store.NewMemoryStore())
	for _, days := range []int{0, -5} {
		_, err := r.Cleanup(context.Background(), days)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		_, err = r.PendingCleanup(context.Background(), days)
		require.ErrorAs(t, err, &verr)
	}
}

func TestCleanup_ArchivesBeforeDeleting(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	arch := &fakeArchiver{}
	r := newTestRecorder(s, WithArchiver(arch))
	seedAges(t, r, 40, 2)

	counts, err := r.Cleanup(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts.Total())
	require.Len(t, arch.batches, 1)
	assert.Len(t, arch.batches[0].InstallAttempts, 1)
	assert.Len(t, arch.batches[0].HealthChecks, 1)
	assert.Len(t, arch.batches[0].UserFeedback, 1)
}

func TestCleanup_ArchiveFailureAborts(t *testing.T) {
	s := store.NewMemoryStore()
	r := newTestRecorder(s, WithArchiver(&fakeArchiver{err: errors.New("s3 unavailable")}))
	seedAges(t, r, 40)

	_, err := r.Cleanup(context.Background(), 30)
	require.Error(t, err)
	assert.Equal(t, int64(3), s.Counts().Total(), "nothing deleted")
}
