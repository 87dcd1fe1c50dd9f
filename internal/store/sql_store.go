package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ILLUVRSE/serverquality/internal/models"
)

// SQLStore persists events through database/sql. Queries are written with
// Postgres-style $N placeholders and rebound for other dialects.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

type dialect struct {
	name   string
	schema string
	rebind func(query string) string
}

var numberedParam = regexp.MustCompile(`\$(\d+)`)

var (
	postgresDialect = dialect{
		name:   "postgres",
		schema: schemaPostgres,
		rebind: func(q string) string { return q },
	}
	sqliteDialect = dialect{
		name:   "sqlite",
		schema: schemaSQLite,
		rebind: func(q string) string { return numberedParam.ReplaceAllString(q, "?$1") },
	}
)

// NewPGStore wraps a Postgres handle opened with the lib/pq driver.
func NewPGStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, dialect: postgresDialect}
}

// Driver reports the SQL dialect in use.
func (s *SQLStore) Driver() string {
	return s.dialect.name
}

// EnsureSchema creates tables and indexes when missing. It is idempotent.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.schema); err != nil {
		return fmt.Errorf("ensure %s schema: %w", s.dialect.name, err)
	}
	return nil
}

func (s *SQLStore) q(query string) string {
	return s.dialect.rebind(query)
}

func nullable(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func nullStr(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func (s *SQLStore) InsertInstallAttempt(ctx context.Context, ev models.InstallAttempt) (bool, error) {
	query := `
		INSERT INTO install_attempts
		  (component_id, install_id, component_type, outcome, ts_micros, duration_seconds,
		   error_message, error_category, client_version, platform, runtime_version, orchestrator_version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (component_id, ts_micros, outcome) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, s.q(query),
		ev.ComponentID,
		ev.InstallID,
		nullable(ev.ComponentType),
		string(ev.Outcome),
		toMicros(ev.Timestamp),
		ev.DurationSeconds,
		nullable(ev.ErrorMessage),
		nullable(string(ev.ErrorCategory)),
		nullable(ev.ClientVersion),
		nullable(ev.Platform),
		nullable(ev.RuntimeVersion),
		nullable(ev.OrchestratorVersion),
	)
	if err != nil {
		return false, fmt.Errorf("insert install attempt: %w", err)
	}
	return inserted(res)
}

func (s *SQLStore) InsertHealthCheck(ctx context.Context, ev models.HealthCheck) (bool, error) {
	details, err := encodeDetails(ev.ConnectionDetails)
	if err != nil {
		return false, err
	}
	var rt sql.NullFloat64
	if ev.ResponseTimeMS != nil {
		rt = sql.NullFloat64{Float64: *ev.ResponseTimeMS, Valid: true}
	}
	query := `
		INSERT INTO health_checks
		  (component_id, status, ts_micros, response_time_ms, error_message, connection_details)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (component_id, ts_micros, status) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, s.q(query),
		ev.ComponentID,
		string(ev.Status),
		toMicros(ev.Timestamp),
		rt,
		nullable(ev.ErrorMessage),
		details,
	)
	if err != nil {
		return false, fmt.Errorf("insert health check: %w", err)
	}
	return inserted(res)
}

func (s *SQLStore) InsertUserFeedback(ctx context.Context, ev models.UserFeedback) (bool, error) {
	issues, err := encodeIssues(ev.ReportedIssues)
	if err != nil {
		return false, err
	}
	query := `
		INSERT INTO user_feedback
		  (component_id, rating, ts_micros, comment, reported_issues, recommended_alternative, submitter_hash)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (component_id, submitter_hash, ts_micros) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, s.q(query),
		ev.ComponentID,
		ev.Rating,
		toMicros(ev.Timestamp),
		nullable(ev.Comment),
		issues,
		nullable(ev.RecommendedAlternative),
		ev.SubmitterHash,
	)
	if err != nil {
		return false, fmt.Errorf("insert user feedback: %w", err)
	}
	return inserted(res)
}

func inserted(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

const attemptColumns = `component_id, install_id, component_type, outcome, ts_micros, duration_seconds,
	error_message, error_category, client_version, platform, runtime_version, orchestrator_version`

func (s *SQLStore) ListInstallAttempts(ctx context.Context, componentID string, limit int) ([]models.InstallAttempt, error) {
	query := `SELECT ` + attemptColumns + `
		FROM install_attempts
		WHERE component_id=$1
		ORDER BY ts_micros DESC, id DESC` + limitClause(limit)
	rows, err := s.db.QueryContext(ctx, s.q(query), componentID)
	if err != nil {
		return nil, fmt.Errorf("list install attempts: %w", err)
	}
	defer rows.Close()
	return scanAttempts(rows)
}

func scanAttempts(rows *sql.Rows) ([]models.InstallAttempt, error) {
	var out []models.InstallAttempt
	for rows.Next() {
		var (
			ev                                                    models.InstallAttempt
			outcome                                               string
			ts                                                    int64
			compType, errMsg, errCat, client, plat, rt, orchestr sql.NullString
		)
		if err := rows.Scan(&ev.ComponentID, &ev.InstallID, &compType, &outcome, &ts, &ev.DurationSeconds,
			&errMsg, &errCat, &client, &plat, &rt, &orchestr); err != nil {
			return nil, fmt.Errorf("scan install attempt: %w", err)
		}
		ev.ComponentType = nullStr(compType)
		ev.Outcome = models.InstallOutcome(outcome)
		ev.Timestamp = fromMicros(ts)
		ev.ErrorMessage = nullStr(errMsg)
		ev.ErrorCategory = models.IssueCategory(nullStr(errCat))
		ev.ClientVersion = nullStr(client)
		ev.Platform = nullStr(plat)
		ev.RuntimeVersion = nullStr(rt)
		ev.OrchestratorVersion = nullStr(orchestr)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate install attempts: %w", err)
	}
	return out, nil
}

const healthColumns = `component_id, status, ts_micros, response_time_ms, error_message, connection_details`

func (s *SQLStore) ListHealthChecks(ctx context.Context, componentID string, limit int) ([]models.HealthCheck, error) {
	query := `SELECT ` + healthColumns + `
		FROM health_checks
		WHERE component_id=$1
		ORDER BY ts_micros DESC, id DESC` + limitClause(limit)
	rows, err := s.db.QueryContext(ctx, s.q(query), componentID)
	if err != nil {
		return nil, fmt.Errorf("list health checks: %w", err)
	}
	defer rows.Close()
	return scanHealthChecks(rows)
}

func scanHealthChecks(rows *sql.Rows) ([]models.HealthCheck, error) {
	var out []models.HealthCheck
	for rows.Next() {
		var (
			ev             models.HealthCheck
			status         string
			ts             int64
			rt             sql.NullFloat64
			errMsg, detail sql.NullString
		)
		if err := rows.Scan(&ev.ComponentID, &status, &ts, &rt, &errMsg, &detail); err != nil {
			return nil, fmt.Errorf("scan health check: %w", err)
		}
		ev.Status = models.HealthStatus(status)
		ev.Timestamp = fromMicros(ts)
		if rt.Valid {
			v := rt.Float64
			ev.ResponseTimeMS = &v
		}
		ev.ErrorMessage = nullStr(errMsg)
		if detail.Valid && detail.String != "" && detail.String != "null" {
			var m map[string]interface{}
			if err := json.Unmarshal([]byte(detail.String), &m); err == nil {
				ev.ConnectionDetails = m
			} else {
				ev.ConnectionDetails = map[string]interface{}{"raw": detail.String}
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate health checks: %w", err)
	}
	return out, nil
}

const feedbackColumns = `component_id, rating, ts_micros, comment, reported_issues, recommended_alternative, submitter_hash`

func (s *SQLStore) ListUserFeedback(ctx context.Context, componentID string, limit int) ([]models.UserFeedback, error) {
	query := `SELECT ` + feedbackColumns + `
		FROM user_feedback
		WHERE component_id=$1
		ORDER BY ts_micros DESC, id DESC` + limitClause(limit)
	rows, err := s.db.QueryContext(ctx, s.q(query), componentID)
	if err != nil {
		return nil, fmt.Errorf("list user feedback: %w", err)
	}
	defer rows.Close()
	return scanFeedback(rows)
}

func scanFeedback(rows *sql.Rows) ([]models.UserFeedback, error) {
	var out []models.UserFeedback
	for rows.Next() {
		var (
			ev                   models.UserFeedback
			ts                   int64
			comment, issues, alt sql.NullString
		)
		if err := rows.Scan(&ev.ComponentID, &ev.Rating, &ts, &comment, &issues, &alt, &ev.SubmitterHash); err != nil {
			return nil, fmt.Errorf("scan user feedback: %w", err)
		}
		ev.Timestamp = fromMicros(ts)
		ev.Comment = nullStr(comment)
		ev.RecommendedAlternative = nullStr(alt)
		ev.ReportedIssues = decodeIssues(nullStr(issues))
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user feedback: %w", err)
	}
	return out, nil
}

func (s *SQLStore) ListComponents(ctx context.Context, filter ComponentFilter) ([]ComponentRef, error) {
	var (
		where string
		args  []interface{}
	)
	if filter.Type != "" {
		where = `WHERE component_type=$1`
		args = append(args, filter.Type)
	}
	query := `
		SELECT a.component_id, a.install_id
		FROM install_attempts a
		JOIN (
			SELECT component_id, MAX(ts_micros) AS latest
			FROM install_attempts
			` + where + `
			GROUP BY component_id
		) l ON a.component_id = l.component_id AND a.ts_micros = l.latest
		ORDER BY a.component_id, a.id DESC
	`
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list components: %w", err)
	}
	defer rows.Close()

	var out []ComponentRef
	for rows.Next() {
		var ref ComponentRef
		if err := rows.Scan(&ref.ComponentID, &ref.InstallID); err != nil {
			return nil, fmt.Errorf("scan component: %w", err)
		}
		// Two attempts may share the latest timestamp; keep the first row.
		if n := len(out); n > 0 && out[n-1].ComponentID == ref.ComponentID {
			continue
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate components: %w", err)
	}
	return out, nil
}

func (s *SQLStore) ListBefore(ctx context.Context, cutoff time.Time) (EventBatch, error) {
	var batch EventBatch
	cut := toMicros(cutoff)

	rows, err := s.db.QueryContext(ctx, s.q(`SELECT `+attemptColumns+` FROM install_attempts WHERE ts_micros < $1 ORDER BY ts_micros, id`), cut)
	if err != nil {
		return EventBatch{}, fmt.Errorf("list expired install attempts: %w", err)
	}
	batch.InstallAttempts, err = scanAttempts(rows)
	rows.Close()
	if err != nil {
		return EventBatch{}, err
	}

	rows, err = s.db.QueryContext(ctx, s.q(`SELECT `+healthColumns+` FROM health_checks WHERE ts_micros < $1 ORDER BY ts_micros, id`), cut)
	if err != nil {
		return EventBatch{}, fmt.Errorf("list expired health checks: %w", err)
	}
	batch.HealthChecks, err = scanHealthChecks(rows)
	rows.Close()
	if err != nil {
		return EventBatch{}, err
	}

	rows, err = s.db.QueryContext(ctx, s.q(`SELECT `+feedbackColumns+` FROM user_feedback WHERE ts_micros < $1 ORDER BY ts_micros, id`), cut)
	if err != nil {
		return EventBatch{}, fmt.Errorf("list expired user feedback: %w", err)
	}
	batch.UserFeedback, err = scanFeedback(rows)
	rows.Close()
	if err != nil {
		return EventBatch{}, err
	}
	return batch, nil
}

func (s *SQLStore) DeleteBefore(ctx context.Context, cutoff time.Time) (models.CleanupCounts, error) {
	cut := toMicros(cutoff)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.CleanupCounts{}, fmt.Errorf("begin cleanup: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var counts models.CleanupCounts
	targets := []struct {
		table string
		dst   *int64
	}{
		{"install_attempts", &counts.InstallAttempts},
		{"health_checks", &counts.HealthChecks},
		{"user_feedback", &counts.UserFeedback},
	}
	for _, t := range targets {
		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM `+t.table+` WHERE ts_micros < $1`), cut)
		if err != nil {
			return models.CleanupCounts{}, fmt.Errorf("delete expired %s: %w", t.table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return models.CleanupCounts{}, fmt.Errorf("rows affected %s: %w", t.table, err)
		}
		*t.dst = n
	}
	if err := tx.Commit(); err != nil {
		return models.CleanupCounts{}, fmt.Errorf("commit cleanup: %w", err)
	}
	return counts, nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func encodeDetails(details map[string]interface{}) (sql.NullString, error) {
	if len(details) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal connection details: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func encodeIssues(issues []models.IssueCategory) (sql.NullString, error) {
	if len(issues) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(issues)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal reported issues: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// decodeIssues keeps unrecognised category strings; the aggregator decides
// what to do with them.
func decodeIssues(raw string) []models.IssueCategory {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil
	}
	var issues []models.IssueCategory
	if err := json.Unmarshal([]byte(raw), &issues); err != nil {
		return nil
	}
	return issues
}
