// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/sigil-dev/extpolicy/internal/store"
)

var _ store.ReportStore = (*ReportStore)(nil)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ReportStore implements store.ReportStore backed by a single SQLite database.
type ReportStore struct {
	db *sql.DB
}

// NewReportStore opens (or creates) a SQLite database at dbPath and
// initialises the reports table.
func NewReportStore(dbPath string) (*ReportStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening report db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging report db: %w", err)
	}

	if err := migrateReports(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating report db: %w", err)
	}

	return &ReportStore{db: db}, nil
}

func migrateReports(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS reports (
	id           TEXT PRIMARY KEY,
	timestamp    TEXT NOT NULL,
	kind         TEXT NOT NULL,
	extension_id TEXT NOT NULL,
	value        TEXT NOT NULL,
	details      TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_reports_timestamp ON reports(timestamp);
CREATE INDEX IF NOT EXISTS idx_reports_extension ON reports(extension_id, kind);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (s *ReportStore) Close() error { return s.db.Close() }

func (s *ReportStore) Append(ctx context.Context, report *store.Report) error {
	if err := report.Validate(); err != nil {
		return err
	}

	details := "{}"
	if report.Details != nil {
		b, err := json.Marshal(report.Details)
		if err != nil {
			return fmt.Errorf("marshalling report details: %w", err)
		}
		details = string(b)
	}

	const q = `INSERT INTO reports (id, timestamp, kind, extension_id, value, details)
VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		report.ID, formatTime(report.Timestamp), string(report.Kind),
		report.ExtensionID, report.Value, details,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("report %s: %w", report.ID, store.ErrConflict)
		}
		return fmt.Errorf("appending report %s: %w", report.ID, err)
	}
	return nil
}

func (s *ReportStore) Get(ctx context.Context, id string) (*store.Report, error) {
	const q = `SELECT id, timestamp, kind, extension_id, value, details FROM reports WHERE id = ?`

	r, err := scanReport(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting report %s: %w", id, err)
	}
	return r, nil
}

func (s *ReportStore) Query(ctx context.Context, filter store.ReportFilter) ([]*store.Report, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	var qb strings.Builder
	qb.WriteString(`SELECT id, timestamp, kind, extension_id, value, details FROM reports`)

	where, args := filterClause(filter)
	qb.WriteString(where)
	qb.WriteString(" ORDER BY timestamp ASC, rowid ASC")

	limit := filter.Limit
	if limit <= 0 {
		limit = store.DefaultQueryLimit
	}
	qb.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying reports: %w", err)
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var reports []*store.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reports: %w", err)
	}
	return reports, nil
}

func (s *ReportStore) Count(ctx context.Context, filter store.ReportFilter) (int64, error) {
	if err := filter.Validate(); err != nil {
		return 0, err
	}

	where, args := filterClause(filter)
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reports"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting reports: %w", err)
	}
	return n, nil
}

func filterClause(filter store.ReportFilter) (string, []any) {
	var conditions []string
	var args []any

	if filter.ExtensionID != "" {
		conditions = append(conditions, "extension_id = ?")
		args = append(args, filter.ExtensionID)
	}
	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Value != "" {
		conditions = append(conditions, "value = ?")
		args = append(args, filter.Value)
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, formatTime(filter.From))
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, formatTime(filter.To))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*store.Report, error) {
	var r store.Report
	var ts, kind, detailsJSON string
	if err := row.Scan(&r.ID, &ts, &kind, &r.ExtensionID, &r.Value, &detailsJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning report row: %w", err)
	}
	r.Kind = store.ReportKind(kind)

	var err error
	r.Timestamp, err = parseTime(ts)
	if err != nil {
		return nil, fmt.Errorf("parsing report %s timestamp: %w", r.ID, err)
	}
	if detailsJSON != "" && detailsJSON != "{}" {
		if err := json.Unmarshal([]byte(detailsJSON), &r.Details); err != nil {
			return nil, fmt.Errorf("unmarshalling report details: %w", err)
		}
	}
	return &r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}
