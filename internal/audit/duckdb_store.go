// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/driftlight/heliopause/internal/logging"
)

// auditSchema creates the audit_events table and its indexes. The
// DuckDB driver executes one statement at a time, so CreateTable splits
// this on semicolons.
const auditSchema = `
	CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		type TEXT NOT NULL,
		severity TEXT NOT NULL,
		outcome TEXT NOT NULL,

		-- Request source
		source_ip TEXT NOT NULL,
		source_user_agent TEXT,
		source_hostname TEXT,

		-- Request coordinates
		method TEXT,
		path TEXT,

		-- Event details
		action TEXT NOT NULL,
		description TEXT NOT NULL,
		metadata JSON,

		request_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Indexes for common query patterns
	CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_type ON audit_events(type);
	CREATE INDEX IF NOT EXISTS idx_audit_severity ON audit_events(severity);
	CREATE INDEX IF NOT EXISTS idx_audit_outcome ON audit_events(outcome);
	CREATE INDEX IF NOT EXISTS idx_audit_source_ip ON audit_events(source_ip);
	CREATE INDEX IF NOT EXISTS idx_audit_path ON audit_events(path);
	CREATE INDEX IF NOT EXISTS idx_audit_request_id ON audit_events(request_id);
	CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_events(created_at DESC);
`

const insertEventSQL = `
	INSERT INTO audit_events (
		id, timestamp, type, severity, outcome,
		source_ip, source_user_agent, source_hostname,
		method, path,
		action, description, metadata,
		request_id, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// selectEventSQL lists columns in scanEvent order. The JSON metadata
// column is cast to VARCHAR so database/sql can scan it as a string.
const selectEventSQL = `
	SELECT
		id, timestamp, type, severity, outcome,
		source_ip, source_user_agent, source_hostname,
		method, path,
		action, description,
		CAST(metadata AS VARCHAR) AS metadata,
		request_id
	FROM audit_events
`

// sortableColumns are the ORDER BY targets Query accepts. The column
// name is interpolated into the statement, so anything not listed here
// falls back to timestamp.
var sortableColumns = map[string]bool{
	"timestamp":  true,
	"type":       true,
	"severity":   true,
	"outcome":    true,
	"source_ip":  true,
	"created_at": true,
}

// DuckDBStore implements Store on DuckDB, giving the trail a durable
// single-file home. Writes take the exclusive lock; DuckDB tolerates
// one writer at a time.
type DuckDBStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewDuckDBStore wraps an open DuckDB handle. Call CreateTable before
// first use.
func NewDuckDBStore(db *sql.DB) *DuckDBStore {
	return &DuckDBStore{db: db}
}

// CreateTable creates the audit_events table and indexes if missing.
func (s *DuckDBStore) CreateTable(ctx context.Context) error {
	for _, stmt := range strings.Split(auditSchema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement: %w", err)
		}
	}

	logging.Info().Msg("Audit schema ready")
	return nil
}

// Save persists one audit event.
func (s *DuckDBStore) Save(ctx context.Context, event *Event) error {
	if event == nil {
		return errors.New("nil event")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, insertEventSQL,
		event.ID,
		event.Timestamp,
		string(event.Type),
		string(event.Severity),
		string(event.Outcome),
		event.Source.IPAddress,
		event.Source.UserAgent,
		event.Source.Hostname,
		event.Method,
		event.Path,
		event.Action,
		event.Description,
		nullableJSON(event.Metadata),
		event.RequestID,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save audit event: %w", err)
	}
	return nil
}

// nullableJSON maps empty metadata to SQL NULL instead of an empty
// string, which the JSON column type would reject.
func nullableJSON(metadata json.RawMessage) any {
	if len(metadata) == 0 {
		return nil
	}
	return string(metadata)
}

// Get retrieves an event by ID, or ErrNotFound.
func (s *DuckDBStore) Get(ctx context.Context, id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, err := scanEvent(s.db.QueryRowContext(ctx, selectEventSQL+" WHERE id = ?", id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case err != nil:
		return nil, fmt.Errorf("get audit event: %w", err)
	}
	return event, nil
}

// Query returns the events matching filter, windowed and ordered the
// way the filter asks.
func (s *DuckDBStore) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := whereClause(filter)
	rows, err := s.db.QueryContext(ctx, selectEventSQL+where+orderAndLimit(filter), args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			logging.Warn().Err(err).Msg("Skipping unreadable audit row")
			continue
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

// Count returns the number of events matching the filter, ignoring
// pagination.
func (s *DuckDBStore) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := whereClause(filter)

	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events"+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return count, nil
}

// Delete removes events older than the given time and reports how many
// went.
func (s *DuckDBStore) Delete(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, "DELETE FROM audit_events WHERE timestamp < ?", olderThan)
	if err != nil {
		return 0, fmt.Errorf("delete expired audit events: %w", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deleted rows count: %w", err)
	}

	if count > 0 {
		logging.Info().Int64("deleted", count).Time("older_than", olderThan).Msg("Retention sweep removed expired audit events")
	}
	return count, nil
}

// GetStats returns aggregate statistics about the trail.
func (s *DuckDBStore) GetStats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events").Scan(&stats.TotalEvents); err != nil {
		return nil, fmt.Errorf("total event count: %w", err)
	}

	for _, group := range []struct {
		column string
		dest   *map[string]int64
	}{
		{"type", &stats.EventsByType},
		{"severity", &stats.EventsBySeverity},
		{"outcome", &stats.EventsByOutcome},
	} {
		counts, err := s.countByColumn(ctx, group.column)
		if err != nil {
			return nil, err
		}
		*group.dest = counts
	}

	var oldest, newest sql.NullTime
	err := s.db.QueryRowContext(ctx, "SELECT MIN(timestamp), MAX(timestamp) FROM audit_events").Scan(&oldest, &newest)
	if err == nil {
		if oldest.Valid {
			stats.OldestEvent = &oldest.Time
		}
		if newest.Valid {
			stats.NewestEvent = &newest.Time
		}
	}

	return stats, nil
}

// countByColumn runs a GROUP BY over one column.
func (s *DuckDBStore) countByColumn(ctx context.Context, column string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT %s, COUNT(*) FROM audit_events GROUP BY %s", column, column))
	if err != nil {
		return nil, fmt.Errorf("%s counts: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err == nil {
			counts[key] = n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s counts: %w", column, err)
	}
	return counts, nil
}

// whereClause renders a filter into a WHERE clause (with leading space)
// and its positional arguments. An empty filter yields an empty clause.
func whereClause(filter QueryFilter) (string, []any) {
	var conds []string
	var args []any

	in := func(column string, values []string) {
		if len(values) == 0 {
			return
		}
		marks := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
		conds = append(conds, fmt.Sprintf("%s IN (%s)", column, marks))
		for _, v := range values {
			args = append(args, v)
		}
	}
	in("type", asStrings(filter.Types))
	in("severity", asStrings(filter.Severities))
	in("outcome", asStrings(filter.Outcomes))

	for _, eq := range []struct{ column, value string }{
		{"source_ip", filter.SourceIP},
		{"method", filter.Method},
		{"request_id", filter.RequestID},
	} {
		if eq.value != "" {
			conds = append(conds, eq.column+" = ?")
			args = append(args, eq.value)
		}
	}

	if filter.PathPrefix != "" {
		// DuckDB's LIKE has no default escape character; name one so the
		// prefix is matched literally.
		conds = append(conds, `path LIKE ? ESCAPE '\'`)
		args = append(args, escapeLikePattern(filter.PathPrefix)+"%")
	}
	if filter.StartTime != nil {
		conds = append(conds, "timestamp >= ?")
		args = append(args, *filter.StartTime)
	}
	if filter.EndTime != nil {
		conds = append(conds, "timestamp <= ?")
		args = append(args, *filter.EndTime)
	}
	if filter.SearchText != "" {
		pattern := "%" + strings.ToLower(filter.SearchText) + "%"
		conds = append(conds, "(LOWER(description) LIKE ? OR LOWER(action) LIKE ?)")
		args = append(args, pattern, pattern)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// asStrings widens typed string slices for the IN helper.
func asStrings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

// escapeLikePattern escapes LIKE metacharacters in a literal prefix.
// The escape character itself goes first so the ones it adds survive.
func escapeLikePattern(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

// orderAndLimit renders the ORDER BY, LIMIT, and OFFSET clauses. An
// empty OrderBy means the trail's natural order, most recent first.
func orderAndLimit(filter QueryFilter) string {
	column := "timestamp"
	if sortableColumns[filter.OrderBy] {
		column = filter.OrderBy
	}
	desc := filter.OrderDesc
	if filter.OrderBy == "" {
		desc = true
	}

	direction := "ASC"
	if desc {
		direction = "DESC"
	}
	clause := fmt.Sprintf(" ORDER BY %s %s", column, direction)

	if filter.Limit > 0 {
		clause += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		clause += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}
	return clause
}

// rowScanner is the scan surface shared by sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEvent reads one row in selectEventSQL column order.
func scanEvent(row rowScanner) (*Event, error) {
	var (
		event    Event
		typ      string
		severity string
		outcome  string
		metadata sql.NullString
	)
	if err := row.Scan(
		&event.ID,
		&event.Timestamp,
		&typ,
		&severity,
		&outcome,
		&event.Source.IPAddress,
		&event.Source.UserAgent,
		&event.Source.Hostname,
		&event.Method,
		&event.Path,
		&event.Action,
		&event.Description,
		&metadata,
		&event.RequestID,
	); err != nil {
		return nil, err
	}

	event.Type = EventType(typ)
	event.Severity = Severity(severity)
	event.Outcome = Outcome(outcome)
	if metadata.Valid && metadata.String != "" {
		event.Metadata = json.RawMessage(metadata.String)
	}
	return &event, nil
}
