// Package align computes and applies warmup offsets so that time zero marks
// the start of steady state for every trial of an experimental cell.
package align

import (
	"fmt"
	"math"
	"slices"

	"github.com/samber/lo"

	"github.com/yardstick/benchalign/internal/trial"
)

// Margin scales the median peak time into an offset.
const Margin = 2.0

// Map holds warmup offsets in seconds per (version, scale) cell.
type Map map[trial.CellKey]float64

// Lookup returns the offset for key, zero when absent.
func (m Map) Lookup(key trial.CellKey) float64 {
	return m[key]
}

// Keys returns the cells in natural order.
func (m Map) Keys() []trial.CellKey {
	keys := lo.Keys(m)
	slices.SortFunc(keys, trial.CellKey.Compare)
	return keys
}

// Clone returns an independent copy.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Validate rejects negative or non-finite offsets.
func (m Map) Validate() error {
	for _, key := range m.Keys() {
		value := m[key]
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return fmt.Errorf("offset %s: value must be finite", key)
		}
		if value < 0 {
			return fmt.Errorf("offset %s: value must be non-negative, got %g", key, value)
		}
	}
	return nil
}

// Merge returns explicit overlaid on computed: every explicit entry is kept
// verbatim and computed entries only fill the remaining keys.
func Merge(explicit, computed Map) Map {
	out := make(Map, len(explicit)+len(computed))
	for k, v := range explicit {
		out[k] = v
	}
	for k, v := range computed {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}

// Source reports where an offset came from.
type Source string

const (
	SourceExplicit Source = "explicit"
	SourceComputed Source = "computed"
)

// Entry is one resolved offset.
type Entry struct {
	Cell    trial.CellKey `json:"cell"`
	Seconds float64       `json:"seconds"`
	Source  Source        `json:"source"`
}

// Entries lists the merged map with provenance, in natural order.
func Entries(explicit, computed Map) []Entry {
	merged := Merge(explicit, computed)
	out := make([]Entry, 0, len(merged))
	for _, key := range merged.Keys() {
		source := SourceComputed
		if _, ok := explicit[key]; ok {
			source = SourceExplicit
		}
		out = append(out, Entry{Cell: key, Seconds: merged[key], Source: source})
	}
	return out
}

// Median returns the middle value; an even count averages the two middle values.
// The input is not modified. ok is false for an empty input.
func Median(values []float64) (median float64, ok bool) {
	if len(values) == 0 {
		return 0, false
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], true
	}
	return (sorted[mid-1] + sorted[mid]) / 2, true
}
