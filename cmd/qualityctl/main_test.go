package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/serverquality/internal/auth"
	"github.com/ILLUVRSE/serverquality/internal/config"
	"github.com/ILLUVRSE/serverquality/internal/models"
	"github.com/ILLUVRSE/serverquality/internal/ranking"
	"github.com/ILLUVRSE/serverquality/internal/tracker"
)

// run executes one qualityctl invocation against the per-test database.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func useTempStore(t *testing.T) {
	t.Helper()
	t.Setenv("QUALITY_STORE_DSN", filepath.Join(t.TempDir(), "quality.db"))
}

func TestRecordAndQuery(t *testing.T) {
	useTempStore(t)

	out, err := run(t, "record", "install", "fs", "--duration", "2.5")
	require.NoError(t, err)
	assert.Equal(t, "stored\n", out)

	_, err = run(t, "record", "install", "fs", "--error", "ECONNREFUSED while connecting")
	require.NoError(t, err)
	_, err = run(t, "record", "health", "fs", "--response-ms", "12")
	require.NoError(t, err)
	_, err = run(t, "feedback", "fs", "--rating", "4", "--issue", "connection", "--submitter", "alice")
	require.NoError(t, err)

	out, err = run(t, "--json", "metrics", "fs")
	require.NoError(t, err)
	var m models.QualityMetrics
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.Equal(t, 2, m.TotalInstallAttempts)
	assert.Equal(t, 1, m.SuccessfulInstalls)
	assert.Equal(t, 1, m.CommonIssues[models.IssueConnection])
	assert.Equal(t, 1, m.TotalHealthChecks)
	require.NotNil(t, m.AvgResponseTimeMS)
	assert.Equal(t, 12.0, *m.AvgResponseTimeMS)
	assert.Equal(t, 4.0, m.AverageRating)

	out, err = run(t, "report", "fs")
	require.NoError(t, err)
	assert.Contains(t, out, "Success Rate: 50.0% (1/2 installs)")
	assert.Contains(t, out, "Verify network connectivity and firewall settings")

	out, err = run(t, "rankings")
	require.NoError(t, err)
	assert.Contains(t, out, "COMPONENT")
	assert.Contains(t, out, "fs")

	out, err = run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Tracked components:")
}

func TestRecordValidation(t *testing.T) {
	useTempStore(t)

	_, err := run(t, "feedback", "fs", "--rating", "6")
	var verr *tracker.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "rating", verr.Field)

	_, err = run(t, "feedback", "fs")
	assert.Error(t, err, "rating is required")

	_, err = run(t, "record", "install", "fs", "--outcome", "exploded")
	assert.ErrorAs(t, err, &verr)
}

func TestRankingsJSON(t *testing.T) {
	useTempStore(t)
	for _, args := range [][]string{
		{"record", "install", "good", "--outcome", "success"},
		{"record", "install", "bad", "--outcome", "failure", "--category", "dependencies"},
	} {
		_, err := run(t, args...)
		require.NoError(t, err)
	}

	out, err := run(t, "--json", "rankings")
	require.NoError(t, err)
	var ranked []ranking.Ranked
	require.NoError(t, json.Unmarshal([]byte(out), &ranked))
	require.Len(t, ranked, 2)
	assert.Equal(t, "good", ranked[0].ComponentID)

	out, err = run(t, "--json", "rankings", "--min-attempts", "2")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &ranked))
	assert.Empty(t, ranked)
}

func TestEnhance(t *testing.T) {
	useTempStore(t)
	_, err := run(t, "record", "install", "fs")
	require.NoError(t, err)

	file := filepath.Join(t.TempDir(), "candidates.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"candidates":[{"id":"fs","relevance_score":0.4},{"id":"other","relevance_score":0.9}]}`), 0o600))

	out, err := run(t, "--json", "enhance", "--file", file)
	require.NoError(t, err)
	var results []models.EnhancedResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "fs", results[0].Original.ID)
	assert.Equal(t, "Limited data (1 attempts)", results[0].Note)

	_, err = run(t, "enhance")
	assert.Error(t, err, "--file is required")
}

func TestCleanup(t *testing.T) {
	useTempStore(t)
	_, err := run(t, "record", "install", "fs")
	require.NoError(t, err)

	out, err := run(t, "cleanup", "--days", "30", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Would delete 0 events older than 30 days")

	_, err = run(t, "cleanup", "--days", "0")
	var verr *tracker.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestTokenKeygenAndMint(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, "token", "keygen", "--out-dir", dir)
	require.NoError(t, err)

	out, err := run(t, "token", "mint", "--key", filepath.Join(dir, "signing.pem"), "--sub", "ops", "--scope", "quality:admin")
	require.NoError(t, err)

	v, err := auth.NewVerifier(config.AuthConfig{PublicKeysFile: filepath.Join(dir, "public.pem")})
	require.NoError(t, err)
	p, err := v.Verify(strings.TrimSpace(out), auth.ScopeWrite)
	require.NoError(t, err)
	assert.Equal(t, "ops", p.Subject)

	_, err = run(t, "token", "mint", "--scope", "root")
	assert.ErrorContains(t, err, "unknown scope")
}

func TestTokenMintHMAC(t *testing.T) {
	t.Setenv("QUALITY_AUTH_HMAC_SECRET", "cli-secret")
	out, err := run(t, "token", "mint")
	require.NoError(t, err)

	v, err := auth.NewVerifier(config.AuthConfig{HMACSecret: "cli-secret"})
	require.NoError(t, err)
	_, err = v.Verify(strings.TrimSpace(out), auth.ScopeWrite)
	assert.NoError(t, err)
}
