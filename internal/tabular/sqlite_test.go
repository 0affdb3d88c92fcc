package tabular

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/easeaico/marketing-analyst/internal/database"
	"github.com/easeaico/marketing-analyst/internal/dataframe"
	"github.com/easeaico/marketing-analyst/internal/platform"
)

func newTestSource(t *testing.T) *SQLiteSource {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	src := NewSQLiteSource(db)
	if err := src.InitSchema(ctx); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO facebook (id_customer, data, page_impressions, page_impressions_unique, page_follows) VALUES
			('1', '2024-01-03', 300, 150, 5),
			('1', '2024-01-01', 100, 50, 3),
			('1', '2024-01-02', 200, 90, NULL),
			('1', '2024-02-01', 900, 400, 9),
			('2', '2024-01-01', 1, 1, 1)
	`)
	if err != nil {
		t.Fatalf("failed to insert rows: %v", err)
	}
	return src
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSQLiteSource_ClientData(t *testing.T) {
	src := newTestSource(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		r        dataframe.DateRange
		wantRows int
		first    time.Time
	}{
		{name: "open range", r: dataframe.DateRange{}, wantRows: 4, first: date(2024, 1, 1)},
		{name: "january", r: dataframe.DateRange{Start: date(2024, 1, 1), End: date(2024, 1, 31)}, wantRows: 3, first: date(2024, 1, 1)},
		{name: "start only", r: dataframe.DateRange{Start: date(2024, 1, 2)}, wantRows: 3, first: date(2024, 1, 2)},
		{name: "end only", r: dataframe.DateRange{End: date(2024, 1, 1)}, wantRows: 1, first: date(2024, 1, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := src.ClientData(ctx, "1", platform.Facebook, tt.r)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if frame.RowCount() != tt.wantRows {
				t.Fatalf("expected %d rows, got %d", tt.wantRows, frame.RowCount())
			}
			if !frame.Rows[0].Date.Equal(tt.first) {
				t.Errorf("expected first row on %v, got %v", tt.first, frame.Rows[0].Date)
			}
		})
	}
}

func TestSQLiteSource_ClientDataKeepsMissingValues(t *testing.T) {
	src := newTestSource(t)

	frame, err := src.ClientData(context.Background(), "1", platform.Facebook,
		dataframe.DateRange{Start: date(2024, 1, 2), End: date(2024, 1, 2)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	follows, _ := frame.Series("page_follows")
	if follows[0] != nil {
		t.Errorf("expected missing page_follows, got %v", *follows[0])
	}
	imps, _ := frame.Series("page_impressions")
	if imps[0] == nil || *imps[0] != 200 {
		t.Errorf("unexpected page_impressions %v", imps[0])
	}
}

func TestSQLiteSource_NoData(t *testing.T) {
	src := newTestSource(t)
	ctx := context.Background()

	_, err := src.ClientData(ctx, "404", platform.Facebook, dataframe.DateRange{})
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}

	_, err = src.ClientData(ctx, "1", platform.Instagram, dataframe.DateRange{})
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData for empty table, got %v", err)
	}
}

func TestSQLiteSource_UnknownPlatform(t *testing.T) {
	src := newTestSource(t)

	_, err := src.ClientData(context.Background(), "1", platform.Platform("tiktok"), dataframe.DateRange{})
	if !errors.Is(err, platform.ErrUnknownPlatform) {
		t.Fatalf("expected ErrUnknownPlatform, got %v", err)
	}
}

func TestDialectQuery(t *testing.T) {
	r := dataframe.DateRange{Start: date(2024, 1, 1), End: date(2024, 1, 31)}

	q, args := postgresDialect.query("7", platform.Instagram, r)
	for _, want := range []string{
		"FROM instagram",
		"CAST(id_customer AS TEXT) = $1",
		"data >= $2",
		"data <= $3",
		"CAST(followers AS DOUBLE PRECISION)",
		"ORDER BY data",
	} {
		if !strings.Contains(q, want) {
			t.Errorf("postgres query missing %q: %s", want, q)
		}
	}
	if len(args) != 3 || args[0] != "7" {
		t.Errorf("unexpected args %v", args)
	}

	q, args = sqliteDialect.query("7", platform.Instagram, dataframe.DateRange{End: r.End})
	if !strings.Contains(q, "date(data) <= ?") || strings.Contains(q, ">= ?") {
		t.Errorf("unexpected sqlite query: %s", q)
	}
	if len(args) != 2 || args[1] != "2024-01-31" {
		t.Errorf("unexpected sqlite args %v", args)
	}
}

func TestSQLiteSource_TimestampsOnBoundaryDays(t *testing.T) {
	src := newTestSource(t)
	ctx := context.Background()

	_, err := src.db.ExecContext(ctx, `
		INSERT INTO facebook (id_customer, data, page_impressions, page_impressions_unique, page_follows) VALUES
			('3', '2024-01-31 10:00:00', 10, 5, 1),
			('3', '2024-01-15 08:30:00', 20, 6, 2),
			('3', '2024-02-01 00:00:00', 30, 7, 3)
	`)
	if err != nil {
		t.Fatalf("failed to insert rows: %v", err)
	}

	frame, err := src.ClientData(ctx, "3", platform.Facebook,
		dataframe.DateRange{Start: date(2024, 1, 15), End: date(2024, 1, 31)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if frame.RowCount() != 2 {
		t.Fatalf("expected both january rows, got %d", frame.RowCount())
	}
	last := frame.Rows[1].Date
	if last.Year() != 2024 || last.Month() != time.January || last.Day() != 31 || last.Hour() != 10 {
		t.Errorf("unexpected last row date %v", last)
	}
}
