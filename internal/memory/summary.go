package memory

import (
	"fmt"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/easeaico/marketing-analyst/internal/dataframe"
	"github.com/easeaico/marketing-analyst/internal/platform"
)

// Facet is the rendered text of one summary document.
type Facet struct {
	Kind    Kind
	Content string
}

const timestampLayout = "2006-01-02 15:04:05"

// Summarize renders the descriptive facets of frame in SummaryKinds order.
func Summarize(clientID string, p platform.Platform, frame *dataframe.Frame) []Facet {
	s := frame.Describe()

	var info strings.Builder
	fmt.Fprintf(&info, "Dataset para cliente %s na plataforma %s contém %d linhas e %d colunas.\n",
		clientID, p, s.RowCount, s.ColumnCount)
	fmt.Fprintf(&info, "Colunas: %s\n", strings.Join(s.Columns, ", "))

	var types strings.Builder
	types.WriteString("Tipos de dados das colunas:\n")
	for _, t := range s.Types {
		fmt.Fprintf(&types, "- %s: %s\n", t.Name, t.DType)
	}

	var stats strings.Builder
	stats.WriteString("Estatísticas básicas para colunas numéricas:\n")
	if len(s.Stats) > 0 {
		stats.WriteString(statsTable(s.Stats))
	}

	var missing strings.Builder
	missing.WriteString("Valores ausentes:\n")
	for _, m := range s.Missing {
		fmt.Fprintf(&missing, "- %s: %d valores ausentes (%.2f%%)\n", m.Name, m.Count, m.Percent)
	}

	var dates strings.Builder
	dates.WriteString("Informações de datas:\n")
	if s.HasDates() {
		fmt.Fprintf(&dates, "- %s: de %s até %s\n", frame.DateColumn,
			s.DateMin.Format(timestampLayout), s.DateMax.Format(timestampLayout))
	} else {
		fmt.Fprintf(&dates, "- %s: não foi possível converter para datetime\n", frame.DateColumn)
	}

	return []Facet{
		{Kind: KindDatasetInfo, Content: info.String()},
		{Kind: KindDataTypes, Content: types.String()},
		{Kind: KindStatistics, Content: stats.String()},
		{Kind: KindMissingValues, Content: missing.String()},
		{Kind: KindDateInfo, Content: dates.String()},
	}
}

// statsTable lays the statistics out with one column per metric.
func statsTable(cols []dataframe.ColumnStats) string {
	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', tabwriter.AlignRight)

	header := []string{""}
	for _, c := range cols {
		header = append(header, c.Name)
	}
	fmt.Fprintln(w, strings.Join(header, "\t")+"\t")

	rows := []struct {
		label string
		value func(dataframe.ColumnStats) float64
	}{
		{"count", func(c dataframe.ColumnStats) float64 { return float64(c.Count) }},
		{"mean", func(c dataframe.ColumnStats) float64 { return c.Mean }},
		{"std", func(c dataframe.ColumnStats) float64 { return c.Std }},
		{"min", func(c dataframe.ColumnStats) float64 { return c.Min }},
		{"25%", func(c dataframe.ColumnStats) float64 { return c.Q25 }},
		{"50%", func(c dataframe.ColumnStats) float64 { return c.Median }},
		{"75%", func(c dataframe.ColumnStats) float64 { return c.Q75 }},
		{"max", func(c dataframe.ColumnStats) float64 { return c.Max }},
	}
	for _, r := range rows {
		line := []string{r.label}
		for _, c := range cols {
			line = append(line, formatStat(r.value(c)))
		}
		fmt.Fprintln(w, strings.Join(line, "\t")+"\t")
	}

	w.Flush()
	return sb.String()
}

func formatStat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return fmt.Sprintf("%.6f", v)
}
