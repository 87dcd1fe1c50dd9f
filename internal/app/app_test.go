package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ILLUVRSE/serverquality/internal/config"
	"github.com/ILLUVRSE/serverquality/internal/models"
	"github.com/ILLUVRSE/serverquality/internal/store"
	"github.com/ILLUVRSE/serverquality/internal/tracker"
)

func testConfig(t *testing.T, dsn string) *config.Config {
	t.Helper()
	t.Setenv("QUALITY_STORE_DSN", dsn)
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestNew_SQLiteEndToEnd(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t, store.MemoryDSN), zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.False(t, a.Verifier.Enabled())
	res, err := a.Recorder.RecordInstallAttempt(ctx, models.InstallAttempt{ComponentID: "fs", Outcome: models.OutcomeSuccess})
	require.NoError(t, err)
	assert.Equal(t, tracker.StatusStored, res.Status)

	m := a.Ranking.GetQualityMetrics(ctx, "fs", "")
	assert.Equal(t, 1, m.TotalInstallAttempts)

	rec := httptest.NewRecorder()
	a.Server().Router().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	a.Server().Router().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestNew_FileStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "quality.db")
	cfg := testConfig(t, path)

	a, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	_, err = a.Recorder.RecordHealthCheck(ctx, models.HealthCheck{ComponentID: "fs", Status: models.HealthHealthy})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	b, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, 1, b.Ranking.GetQualityMetrics(ctx, "fs", "").TotalHealthChecks)
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, err := OpenStore(context.Background(), config.StoreConfig{Driver: "mongo", DSN: "x"})
	assert.ErrorContains(t, err, "unknown store driver")
}
