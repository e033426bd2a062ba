package source

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/ongoingai/llmcompare/internal/spans"
)

// SQLSource reads spans straight from the database a Phoenix server persists
// to. Phoenix keeps spans, traces, and projects in separate tables joined by
// row id; span attributes are a JSON document.
type SQLSource struct {
	name         string
	db           *sql.DB
	query        string
	projectQuery string
	rowLimit     int
}

const spansQueryTemplate = `SELECT
	s.span_id,
	t.trace_id,
	s.parent_id,
	s.name,
	s.span_kind,
	s.start_time,
	s.end_time,
	s.status_code,
	s.status_message,
	s.attributes
FROM spans s
JOIN traces t ON t.id = s.trace_rowid
JOIN projects p ON p.id = t.project_rowid
WHERE p.name = %s
ORDER BY s.start_time DESC`

// NewSQLiteSource opens a Phoenix SQLite database read-only. rowLimit caps the
// number of spans read; zero means no cap.
func NewSQLiteSource(path string, rowLimit int) (*SQLSource, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open sqlite database %q: %w", path, err)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	return &SQLSource{
		name:         "sqlite " + path,
		db:           db,
		query:        fmt.Sprintf(spansQueryTemplate, "?") + limitClause(rowLimit, "?"),
		projectQuery: "SELECT COUNT(*) FROM projects WHERE name = ?",
		rowLimit:     rowLimit,
	}, nil
}

// NewPostgresSource connects to a Phoenix Postgres database.
func NewPostgresSource(dsn string, rowLimit int) (*SQLSource, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn cannot be empty")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &SQLSource{
		name:         "postgres",
		db:           db,
		query:        fmt.Sprintf(spansQueryTemplate, "$1") + limitClause(rowLimit, "$2"),
		projectQuery: "SELECT COUNT(*) FROM projects WHERE name = $1",
		rowLimit:     rowLimit,
	}, nil
}

func limitClause(rowLimit int, placeholder string) string {
	if rowLimit <= 0 {
		return ""
	}
	return "\nLIMIT " + placeholder
}

func (s *SQLSource) Name() string {
	return s.name
}

// Check pings the database and confirms the Phoenix schema is present.
func (s *SQLSource) Check(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", s.name, err)
	}
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM projects").Scan(&count); err != nil {
		return fmt.Errorf("query projects: %w", err)
	}
	return nil
}

func (s *SQLSource) Fetch(ctx context.Context, project string) ([]spans.RawSpan, error) {
	project = strings.TrimSpace(project)
	if project == "" {
		return nil, errors.New("project name cannot be empty")
	}

	exists, err := s.projectExists(ctx, project)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrProjectNotFound
	}

	args := []any{project}
	if s.rowLimit > 0 {
		args = append(args, s.rowLimit)
	}
	rows, err := s.db.QueryContext(ctx, s.query, args...)
	if err != nil {
		return nil, fmt.Errorf("query spans: %w", err)
	}
	defer rows.Close()

	var out []spans.RawSpan
	for rows.Next() {
		var (
			spanID, traceID, parentID, name, kind sql.NullString
			statusCode, statusMessage, attributes sql.NullString
			startTime, endTime                    any
		)
		if err := rows.Scan(
			&spanID,
			&traceID,
			&parentID,
			&name,
			&kind,
			&startTime,
			&endTime,
			&statusCode,
			&statusMessage,
			&attributes,
		); err != nil {
			return nil, fmt.Errorf("scan span row: %w", err)
		}

		raw := spans.RawSpan{
			spans.KeyStartTime: startTime,
			spans.KeyEndTime:   endTime,
		}
		setString(raw, spans.KeySpanID, spanID)
		setString(raw, spans.KeyTraceID, traceID)
		setString(raw, "parent_id", parentID)
		setString(raw, spans.KeyName, name)
		setString(raw, spans.KeySpanKind, kind)
		setString(raw, spans.KeyStatusCode, statusCode)
		setString(raw, "status_message", statusMessage)
		if attributes.Valid && strings.TrimSpace(attributes.String) != "" {
			decoded, err := decodeAttributes(attributes.String)
			if err != nil {
				return nil, fmt.Errorf("decode attributes for span %q: %w", spanID.String, err)
			}
			spans.Flatten("attributes", decoded, raw)
		}
		out = append(out, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate span rows: %w", err)
	}
	return out, nil
}

func (s *SQLSource) projectExists(ctx context.Context, project string) (bool, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, s.projectQuery, project).Scan(&count); err != nil {
		return false, fmt.Errorf("query project %q: %w", project, err)
	}
	return count > 0, nil
}

func (s *SQLSource) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func setString(raw spans.RawSpan, key string, value sql.NullString) {
	if value.Valid {
		raw[key] = value.String
	}
}

func decodeAttributes(document string) (map[string]any, error) {
	decoder := json.NewDecoder(strings.NewReader(document))
	decoder.UseNumber()
	var out map[string]any
	if err := decoder.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
