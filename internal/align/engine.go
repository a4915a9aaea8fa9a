package align

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/yardstick/benchalign/internal/metrics"
	"github.com/yardstick/benchalign/internal/schema"
	"github.com/yardstick/benchalign/internal/trial"
)

// Apply drops rows that fall before their cell's offset and shifts the rest so
// the offset becomes time zero. Rows are copied; the input is left untouched.
// A nil or empty map returns a copy of rows.
func Apply(rows []metrics.Row, offsets Map) []metrics.Row {
	out := make([]metrics.Row, 0, len(rows))
	for _, row := range rows {
		offset := offsets.Lookup(row.Identity.Cell())
		if row.Timestamp < offset {
			continue
		}
		out = append(out, metrics.Row{
			Identity:  row.Identity,
			Timestamp: row.Timestamp - offset,
			Values:    append([]float64(nil), row.Values...),
		})
	}
	return out
}

// Peaks returns, per (version, scale, trial), the timestamp of the first row
// holding the maximum of column.
func Peaks(table *metrics.Table, column string) (map[trial.TrialKey]float64, error) {
	idx := table.Index(column)
	if idx < 0 {
		return nil, fmt.Errorf("table %s has no column %q", table.Kind, column)
	}

	groups := lo.GroupBy(table.Rows, func(row metrics.Row) trial.TrialKey {
		return row.Identity.TrialKey()
	})

	peaks := make(map[trial.TrialKey]float64, len(groups))
	for key, rows := range groups {
		if len(rows) == 0 {
			continue
		}
		best := rows[0]
		for _, row := range rows[1:] {
			if row.Values[idx] > best.Values[idx] {
				best = row
			}
		}
		peaks[key] = best.Timestamp
	}
	return peaks, nil
}

// Compute derives offsets as Margin times the median per-trial peak time of
// column, for every cell with at least one peak.
func Compute(table *metrics.Table, column string) (Map, error) {
	peaks, err := Peaks(table, column)
	if err != nil {
		return nil, err
	}

	byCell := make(map[trial.CellKey][]float64)
	for key, ts := range peaks {
		byCell[key.Cell()] = append(byCell[key.Cell()], ts)
	}

	offsets := make(Map, len(byCell))
	for cell, values := range byCell {
		median, ok := Median(values)
		if !ok {
			continue
		}
		offsets[cell] = Margin * median
	}
	return offsets, nil
}

// ComputeFromCPU derives offsets from CPU utilization peaks.
func ComputeFromCPU(cpu *metrics.Table) (Map, error) {
	if cpu.Kind != schema.KindCPU {
		return nil, fmt.Errorf("compute offsets: expected %s table, got %s", schema.KindCPU, cpu.Kind)
	}
	return Compute(cpu, schema.ColumnUtilization)
}
