// Package tabular reads the per-client time-series metrics of each platform
// from the relational store.
package tabular

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/easeaico/marketing-analyst/internal/dataframe"
	"github.com/easeaico/marketing-analyst/internal/platform"
)

// ErrNoData is returned when a client has no rows for a platform in the
// requested period.
var ErrNoData = errors.New("no data found")

// Source loads the rows of one client on one platform.
type Source interface {
	ClientData(ctx context.Context, clientID string, p platform.Platform, r dataframe.DateRange) (*dataframe.Frame, error)
}

// dialect captures the differences between the SQL drivers.
type dialect struct {
	placeholder func(n int) string
	floatType   string
	dateArg     func(t time.Time) any
	// dateBound is the expression compared with the range bounds.
	dateBound string
}

var postgresDialect = dialect{
	placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
	floatType:   "DOUBLE PRECISION",
	dateArg:     func(t time.Time) any { return t },
	dateBound:   platform.DateColumn,
}

var sqliteDialect = dialect{
	placeholder: func(int) string { return "?" },
	floatType:   "REAL",
	dateArg:     func(t time.Time) any { return t.Format(platform.DateLayout) },
	// TEXT dates may carry a time of day
	dateBound: "date(" + platform.DateColumn + ")",
}

// query renders the select for platform p. Identifiers come from the
// platform tables, never from callers.
func (d dialect) query(clientID string, p platform.Platform, r dataframe.DateRange) (string, []any) {
	cols := p.Columns()
	selects := make([]string, 0, len(cols)+1)
	selects = append(selects, platform.DateColumn)
	for _, c := range cols {
		selects = append(selects, fmt.Sprintf("CAST(%s AS %s)", c, d.floatType))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s WHERE CAST(id_customer AS TEXT) = %s",
		strings.Join(selects, ", "), p.Table(), d.placeholder(1))

	args := []any{clientID}
	if !r.Start.IsZero() {
		fmt.Fprintf(&sb, " AND %s >= %s", d.dateBound, d.placeholder(len(args)+1))
		args = append(args, d.dateArg(r.Start))
	}
	if !r.End.IsZero() {
		fmt.Fprintf(&sb, " AND %s <= %s", d.dateBound, d.placeholder(len(args)+1))
		args = append(args, d.dateArg(r.End))
	}
	fmt.Fprintf(&sb, " ORDER BY %s", platform.DateColumn)

	return sb.String(), args
}

func noData(clientID string, p platform.Platform) error {
	return fmt.Errorf("%w for client %s on %s", ErrNoData, clientID, p)
}
