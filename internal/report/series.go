package report

import (
	"math"
	"slices"

	"github.com/samber/lo"

	"github.com/yardstick/benchalign/internal/metrics"
	"github.com/yardstick/benchalign/internal/trial"
)

// DefaultBucket is the time-series bucket width in seconds.
const DefaultBucket = 10.0

// Point is one bucket of a time series. Minutes is the bucket start.
type Point struct {
	Minutes float64 `json:"minutes"`
	Mean    float64 `json:"mean"`
	Count   int     `json:"count"`
}

// Series is the bucketed mean of one column for one cell.
type Series struct {
	Cell   trial.CellKey `json:"cell"`
	Points []Point       `json:"points"`
}

// BuildSeries buckets rows of column by aligned timestamp and cell. Rows from
// every trial and node of a cell share buckets.
func BuildSeries(table *metrics.Table, column string, bucket float64) []Series {
	idx := table.Index(column)
	if table.Empty() || idx < 0 {
		return nil
	}
	if bucket <= 0 {
		bucket = DefaultBucket
	}

	type acc struct {
		sum   float64
		count int
	}
	cells := make(map[trial.CellKey]map[float64]*acc)
	for _, row := range table.Rows {
		key := row.Identity.Cell()
		buckets, ok := cells[key]
		if !ok {
			buckets = make(map[float64]*acc)
			cells[key] = buckets
		}
		start := math.Floor(row.Timestamp/bucket) * bucket
		a, ok := buckets[start]
		if !ok {
			a = &acc{}
			buckets[start] = a
		}
		a.sum += row.Values[idx]
		a.count++
	}

	keys := lo.Keys(cells)
	slices.SortFunc(keys, trial.CellKey.Compare)

	out := make([]Series, 0, len(keys))
	for _, key := range keys {
		starts := lo.Keys(cells[key])
		slices.Sort(starts)
		series := Series{Cell: key, Points: make([]Point, 0, len(starts))}
		for _, start := range starts {
			a := cells[key][start]
			series.Points = append(series.Points, Point{
				Minutes: start / 60,
				Mean:    a.sum / float64(a.count),
				Count:   a.count,
			})
		}
		out = append(out, series)
	}
	return out
}
