package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ILLUVRSE/serverquality/internal/models"
)

// MemoryStore provides an in-memory implementation useful for tests.
type MemoryStore struct {
	mu       sync.RWMutex
	attempts []models.InstallAttempt
	checks   []models.HealthCheck
	feedback []models.UserFeedback
	keys     map[string]struct{}

	// FailWrites makes every insert return the error, to exercise the
	// best-effort write path.
	FailWrites error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: map[string]struct{}{}}
}

func attemptKey(ev models.InstallAttempt) string {
	return "a|" + ev.ComponentID + "|" + ev.Timestamp.Format(time.RFC3339Nano) + "|" + string(ev.Outcome)
}

func checkKey(ev models.HealthCheck) string {
	return "h|" + ev.ComponentID + "|" + ev.Timestamp.Format(time.RFC3339Nano) + "|" + string(ev.Status)
}

func feedbackKey(ev models.UserFeedback) string {
	return "f|" + ev.ComponentID + "|" + ev.SubmitterHash + "|" + ev.Timestamp.Format(time.RFC3339Nano)
}

func (m *MemoryStore) InsertInstallAttempt(ctx context.Context, ev models.InstallAttempt) (bool, error) {
	if m.FailWrites != nil {
		return false, m.FailWrites
	}
	ev.Timestamp = NormalizeTime(ev.Timestamp)
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.claim(attemptKey(ev)) {
		return false, nil
	}
	m.attempts = append(m.attempts, ev)
	return true, nil
}

func (m *MemoryStore) InsertHealthCheck(ctx context.Context, ev models.HealthCheck) (bool, error) {
	if m.FailWrites != nil {
		return false, m.FailWrites
	}
	ev.Timestamp = NormalizeTime(ev.Timestamp)
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.claim(checkKey(ev)) {
		return false, nil
	}
	m.checks = append(m.checks, ev)
	return true, nil
}

func (m *MemoryStore) InsertUserFeedback(ctx context.Context, ev models.UserFeedback) (bool, error) {
	if m.FailWrites != nil {
		return false, m.FailWrites
	}
	ev.Timestamp = NormalizeTime(ev.Timestamp)
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.claim(feedbackKey(ev)) {
		return false, nil
	}
	ev.ReportedIssues = append([]models.IssueCategory(nil), ev.ReportedIssues...)
	m.feedback = append(m.feedback, ev)
	return true, nil
}

// claim must be called with mu held.
func (m *MemoryStore) claim(key string) bool {
	if _, ok := m.keys[key]; ok {
		return false
	}
	m.keys[key] = struct{}{}
	return true
}

func (m *MemoryStore) ListInstallAttempts(ctx context.Context, componentID string, limit int) ([]models.InstallAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.InstallAttempt
	for i := len(m.attempts) - 1; i >= 0; i-- {
		if m.attempts[i].ComponentID == componentID {
			out = append(out, m.attempts[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return truncate(out, limit), nil
}

func (m *MemoryStore) ListHealthChecks(ctx context.Context, componentID string, limit int) ([]models.HealthCheck, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.HealthCheck
	for i := len(m.checks) - 1; i >= 0; i-- {
		if m.checks[i].ComponentID == componentID {
			out = append(out, m.checks[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return truncate(out, limit), nil
}

func (m *MemoryStore) ListUserFeedback(ctx context.Context, componentID string, limit int) ([]models.UserFeedback, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.UserFeedback
	for i := len(m.feedback) - 1; i >= 0; i-- {
		if m.feedback[i].ComponentID == componentID {
			out = append(out, m.feedback[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return truncate(out, limit), nil
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func (m *MemoryStore) ListComponents(ctx context.Context, filter ComponentFilter) ([]ComponentRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	matched := map[string]bool{}
	latest := map[string]models.InstallAttempt{}
	for _, a := range m.attempts {
		if filter.Type == "" || a.ComponentType == filter.Type {
			matched[a.ComponentID] = true
		}
		if cur, ok := latest[a.ComponentID]; !ok || !a.Timestamp.Before(cur.Timestamp) {
			latest[a.ComponentID] = a
		}
	}
	out := make([]ComponentRef, 0, len(matched))
	for id := range matched {
		out = append(out, ComponentRef{ComponentID: id, InstallID: latest[id].InstallID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ComponentID < out[j].ComponentID })
	return out, nil
}

func (m *MemoryStore) ListBefore(ctx context.Context, cutoff time.Time) (EventBatch, error) {
	cutoff = NormalizeTime(cutoff)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var batch EventBatch
	for _, a := range m.attempts {
		if a.Timestamp.Before(cutoff) {
			batch.InstallAttempts = append(batch.InstallAttempts, a)
		}
	}
	for _, h := range m.checks {
		if h.Timestamp.Before(cutoff) {
			batch.HealthChecks = append(batch.HealthChecks, h)
		}
	}
	for _, f := range m.feedback {
		if f.Timestamp.Before(cutoff) {
			batch.UserFeedback = append(batch.UserFeedback, f)
		}
	}
	return batch, nil
}

func (m *MemoryStore) DeleteBefore(ctx context.Context, cutoff time.Time) (models.CleanupCounts, error) {
	cutoff = NormalizeTime(cutoff)
	m.mu.Lock()
	defer m.mu.Unlock()
	var counts models.CleanupCounts

	keptAttempts := m.attempts[:0]
	for _, a := range m.attempts {
		if a.Timestamp.Before(cutoff) {
			delete(m.keys, attemptKey(a))
			counts.InstallAttempts++
			continue
		}
		keptAttempts = append(keptAttempts, a)
	}
	m.attempts = keptAttempts

	keptChecks := m.checks[:0]
	for _, h := range m.checks {
		if h.Timestamp.Before(cutoff) {
			delete(m.keys, checkKey(h))
			counts.HealthChecks++
			continue
		}
		keptChecks = append(keptChecks, h)
	}
	m.checks = keptChecks

	keptFeedback := m.feedback[:0]
	for _, f := range m.feedback {
		if f.Timestamp.Before(cutoff) {
			delete(m.keys, feedbackKey(f))
			counts.UserFeedback++
			continue
		}
		keptFeedback = append(keptFeedback, f)
	}
	m.feedback = keptFeedback
	return counts, nil
}

// Counts returns the number of stored events per kind.
func (m *MemoryStore) Counts() models.CleanupCounts {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return models.CleanupCounts{
		InstallAttempts: int64(len(m.attempts)),
		HealthChecks:    int64(len(m.checks)),
		UserFeedback:    int64(len(m.feedback)),
	}
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
