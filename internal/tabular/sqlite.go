package tabular

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/easeaico/marketing-analyst/internal/dataframe"
	"github.com/easeaico/marketing-analyst/internal/platform"
)

// SQLiteSource reads platform tables from a SQLite database. Dates are
// stored as ISO-8601 TEXT.
type SQLiteSource struct {
	db *sql.DB
}

// NewSQLiteSource wraps an open database. The caller owns db.
func NewSQLiteSource(db *sql.DB) *SQLiteSource {
	return &SQLiteSource{db: db}
}

// InitSchema creates one table per platform if missing.
func (s *SQLiteSource) InitSchema(ctx context.Context) error {
	for _, p := range platform.All {
		cols := make([]string, 0, len(p.Columns()))
		for _, c := range p.Columns() {
			cols = append(cols, c+" REAL")
		}
		stmt := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				id_customer TEXT NOT NULL,
				%s TEXT,
				%s
			);
			CREATE INDEX IF NOT EXISTS idx_%s_customer ON %s(id_customer, %s);`,
			p.Table(), platform.DateColumn, strings.Join(cols, ",\n\t\t\t\t"),
			p.Table(), p.Table(), platform.DateColumn)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize %s table: %w", p, err)
		}
	}
	return nil
}

// ClientData returns the rows of clientID on p, ordered by date.
func (s *SQLiteSource) ClientData(ctx context.Context, clientID string, p platform.Platform, r dataframe.DateRange) (*dataframe.Frame, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w %q", platform.ErrUnknownPlatform, p)
	}

	query, args := sqliteDialect.query(clientID, p, r)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s data: %w", p, err)
	}
	defer rows.Close()

	frame := dataframe.New(platform.DateColumn, p.Columns())
	width := len(frame.Columns)
	for rows.Next() {
		var date sql.NullString
		nulls := make([]sql.NullFloat64, width)
		dest := make([]any, 0, width+1)
		dest = append(dest, &date)
		for i := range nulls {
			dest = append(dest, &nulls[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", p, err)
		}

		values := make([]*float64, width)
		for i, n := range nulls {
			if n.Valid {
				values[i] = dataframe.Float(n.Float64)
			}
		}

		var d time.Time
		if date.Valid {
			d, err = parseDate(date.String)
			if err != nil {
				return nil, err
			}
		}
		if err := frame.Append(d, values); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", p, err)
	}

	if frame.RowCount() == 0 {
		return nil, noData(clientID, p)
	}
	return frame, nil
}

// parseDate accepts the layouts SQLite date functions produce.
func parseDate(s string) (time.Time, error) {
	formats := []string{
		platform.DateLayout,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse date: %s", s)
}

var _ Source = (*SQLiteSource)(nil)
