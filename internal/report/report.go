// Package report groups aligned metric tables into per-cell statistics.
package report

import (
	"math"
	"slices"
	"time"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"

	"github.com/yardstick/benchalign/internal/align"
	"github.com/yardstick/benchalign/internal/metrics"
	"github.com/yardstick/benchalign/internal/pipeline"
	"github.com/yardstick/benchalign/internal/schema"
	"github.com/yardstick/benchalign/internal/trial"
)

// Metric is one reported column.
type Metric struct {
	Kind   schema.Kind `json:"kind"`
	Column string      `json:"column"`
	Title  string      `json:"title"`
	Unit   string      `json:"unit"`
}

// Label renders "Title [unit]".
func (m Metric) Label() string {
	return m.Title + " [" + m.Unit + "]"
}

// Metrics lists the reported columns in section order.
func Metrics() []Metric {
	return []Metric{
		{Kind: schema.KindCPU, Column: schema.ColumnUtilization, Title: "CPU utilization", Unit: "%"},
		{Kind: schema.KindMemory, Column: schema.ColumnUsedPercent, Title: "Memory usage", Unit: "%"},
		{Kind: schema.KindNetwork, Column: schema.ColumnSendRate, Title: "Send rate", Unit: "kbps"},
		{Kind: schema.KindNetwork, Column: schema.ColumnRecvRate, Title: "Receive rate", Unit: "kbps"},
		{Kind: schema.KindTick, Column: schema.ColumnTickDuration, Title: "Tick duration", Unit: "ms"},
	}
}

// MetricByColumn finds a reported column.
func MetricByColumn(column string) (Metric, bool) {
	return lo.Find(Metrics(), func(m Metric) bool { return m.Column == column })
}

// Stats summarises one group of samples.
type Stats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Count  int     `json:"count"`
}

// Summarize computes mean and sample standard deviation. Fewer than two
// samples report a standard deviation of zero.
func Summarize(values []float64) Stats {
	switch len(values) {
	case 0:
		return Stats{}
	case 1:
		return Stats{Mean: values[0], Count: 1}
	}
	mean, std := stat.MeanStdDev(values, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return Stats{Mean: mean, StdDev: std, Count: len(values)}
}

// CellStats is a (version, scale) aggregate.
type CellStats struct {
	Version trial.Label `json:"version"`
	Scale   trial.Label `json:"scale"`
	Stats
}

// TrialStats is a (version, scale, trial) aggregate.
type TrialStats struct {
	Version trial.Label `json:"version"`
	Scale   trial.Label `json:"scale"`
	Trial   trial.Label `json:"trial"`
	Stats
}

// Section is the report for one metric column.
type Section struct {
	Metric
	ByCell  []CellStats  `json:"by_cell"`
	ByTrial []TrialStats `json:"by_trial"`
}

// Report is the full analysis summary.
type Report struct {
	Root        string        `json:"root"`
	GeneratedAt time.Time     `json:"generated_at"`
	Offsets     []align.Entry `json:"offsets"`
	Sections    []Section     `json:"sections"`
}

// Empty reports whether every section was omitted.
func (r *Report) Empty() bool {
	return r == nil || len(r.Sections) == 0
}

// Section looks up a section by column.
func (r *Report) Section(column string) (Section, bool) {
	if r == nil {
		return Section{}, false
	}
	return lo.Find(r.Sections, func(s Section) bool { return s.Column == column })
}

// Columns lists the columns that have a section.
func (r *Report) Columns() []string {
	if r == nil {
		return nil
	}
	return lo.Map(r.Sections, func(s Section, _ int) string { return s.Column })
}

// Build summarises a pipeline result. Metrics whose table is empty get no
// section.
func Build(result *pipeline.Result) *Report {
	rep := &Report{
		Root:        result.Root,
		GeneratedAt: result.CompletedAt,
		Offsets:     result.OffsetEntries(),
	}
	for _, metric := range Metrics() {
		table := result.Table(metric.Kind)
		section, ok := BuildSection(metric, table)
		if !ok {
			continue
		}
		rep.Sections = append(rep.Sections, section)
	}
	return rep
}

// BuildSection aggregates one column of table. ok is false when the table has
// no rows or lacks the column.
func BuildSection(metric Metric, table *metrics.Table) (Section, bool) {
	idx := table.Index(metric.Column)
	if table.Empty() || idx < 0 {
		return Section{}, false
	}

	section := Section{Metric: metric}

	byCell := lo.GroupBy(table.Rows, func(row metrics.Row) trial.CellKey { return row.Identity.Cell() })
	cellKeys := lo.Keys(byCell)
	slices.SortFunc(cellKeys, trial.CellKey.Compare)
	for _, key := range cellKeys {
		section.ByCell = append(section.ByCell, CellStats{
			Version: key.Version,
			Scale:   key.Scale,
			Stats:   Summarize(values(byCell[key], idx)),
		})
	}

	byTrial := lo.GroupBy(table.Rows, func(row metrics.Row) trial.TrialKey { return row.Identity.TrialKey() })
	trialKeys := lo.Keys(byTrial)
	slices.SortFunc(trialKeys, trial.TrialKey.Compare)
	for _, key := range trialKeys {
		section.ByTrial = append(section.ByTrial, TrialStats{
			Version: key.Version,
			Scale:   key.Scale,
			Trial:   key.Trial,
			Stats:   Summarize(values(byTrial[key], idx)),
		})
	}
	return section, true
}

func values(rows []metrics.Row, idx int) []float64 {
	return lo.Map(rows, func(row metrics.Row, _ int) float64 { return row.Values[idx] })
}
