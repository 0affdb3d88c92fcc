package tabular

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/easeaico/marketing-analyst/internal/dataframe"
	"github.com/easeaico/marketing-analyst/internal/platform"
)

// PostgresSource reads platform tables through a pgx pool. Each call
// acquires and releases its own connection.
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource wraps an existing pool. The caller owns the pool.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

// ClientData returns the rows of clientID on p, ordered by date.
func (s *PostgresSource) ClientData(ctx context.Context, clientID string, p platform.Platform, r dataframe.DateRange) (*dataframe.Frame, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w %q", platform.ErrUnknownPlatform, p)
	}

	query, args := postgresDialect.query(clientID, p, r)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s data: %w", p, err)
	}
	defer rows.Close()

	frame := dataframe.New(platform.DateColumn, p.Columns())
	width := len(frame.Columns)
	for rows.Next() {
		var date *time.Time
		values := make([]*float64, width)
		dest := make([]any, 0, width+1)
		dest = append(dest, &date)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", p, err)
		}

		var d time.Time
		if date != nil {
			d = *date
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

var _ Source = (*PostgresSource)(nil)
