package align

import (
	"math"
	"testing"

	"github.com/yardstick/benchalign/internal/metrics"
	"github.com/yardstick/benchalign/internal/schema"
	"github.com/yardstick/benchalign/internal/trial"
)

func identity(version, scale, trialID string) trial.Identity {
	return trial.Identity{
		Version: trial.Some(version),
		Scale:   trial.Some(scale),
		Trial:   trial.Some(trialID),
		Node:    trial.Some("node1"),
	}
}

func cpuTable(rows ...metrics.Row) *metrics.Table {
	table := metrics.New(schema.CPU())
	table.Rows = rows
	return table
}

func cpuRow(id trial.Identity, ts, util float64) metrics.Row {
	return metrics.Row{Identity: id, Timestamp: ts, Values: []float64{util}}
}

func TestMedianRobustToOutlier(t *testing.T) {
	t.Parallel()

	cell := trial.CellKey{Version: trial.Some("A"), Scale: trial.Some("farms_5")}
	table := cpuTable(
		cpuRow(identity("A", "farms_5", "0"), 0, 10),
		cpuRow(identity("A", "farms_5", "0"), 10, 95),
		cpuRow(identity("A", "farms_5", "1"), 12, 90),
		cpuRow(identity("A", "farms_5", "1"), 20, 30),
		cpuRow(identity("A", "farms_5", "2"), 5, 50),
		cpuRow(identity("A", "farms_5", "2"), 1000, 99),
	)

	offsets, err := ComputeFromCPU(table)
	if err != nil {
		t.Fatalf("ComputeFromCPU returned error: %v", err)
	}
	if got := offsets[cell]; got != 24 {
		t.Fatalf("expected offset 24, got %v", got)
	}
}

func TestMedian(t *testing.T) {
	t.Parallel()

	tests := []struct {
		values []float64
		want   float64
	}{
		{[]float64{10, 12, 1000}, 12},
		{[]float64{1000, 10, 12}, 12},
		{[]float64{4, 1, 3, 2}, 2.5},
		{[]float64{7}, 7},
	}
	for _, tt := range tests {
		got, ok := Median(tt.values)
		if !ok || got != tt.want {
			t.Errorf("Median(%v) = %v, %v; want %v", tt.values, got, ok, tt.want)
		}
	}
	if _, ok := Median(nil); ok {
		t.Fatalf("expected no median for empty input")
	}
}

func TestPeakUsesFirstOccurrence(t *testing.T) {
	t.Parallel()

	id := identity("A", "farms_1", "0")
	peaks, err := Peaks(cpuTable(
		cpuRow(id, 0, 10),
		cpuRow(id, 30, 80),
		cpuRow(id, 60, 80),
	), schema.ColumnUtilization)
	if err != nil {
		t.Fatalf("Peaks returned error: %v", err)
	}
	if got := peaks[id.TrialKey()]; got != 30 {
		t.Fatalf("expected first peak at 30, got %v", got)
	}
}

func TestPeaksAcrossNodesOfOneTrial(t *testing.T) {
	t.Parallel()

	a := identity("A", "farms_1", "0")
	b := a
	b.Node = trial.Some("node2")
	peaks, err := Peaks(cpuTable(cpuRow(a, 10, 40), cpuRow(b, 50, 70)), schema.ColumnUtilization)
	if err != nil {
		t.Fatalf("Peaks returned error: %v", err)
	}
	if len(peaks) != 1 || peaks[a.TrialKey()] != 50 {
		t.Fatalf("unexpected peaks %v", peaks)
	}
}

func TestComputeEmptyTable(t *testing.T) {
	t.Parallel()

	offsets, err := ComputeFromCPU(cpuTable())
	if err != nil {
		t.Fatalf("ComputeFromCPU returned error: %v", err)
	}
	if len(offsets) != 0 {
		t.Fatalf("expected empty map, got %v", offsets)
	}
}

func TestComputeRejectsOtherKinds(t *testing.T) {
	t.Parallel()

	if _, err := ComputeFromCPU(metrics.New(schema.Memory())); err == nil {
		t.Fatalf("expected error for memory table")
	}
}

func TestComputeNullLabelsFormOwnGroup(t *testing.T) {
	t.Parallel()

	id := trial.Identity{Version: trial.Some("A")}
	offsets, err := ComputeFromCPU(cpuTable(cpuRow(id, 7, 50)))
	if err != nil {
		t.Fatalf("ComputeFromCPU returned error: %v", err)
	}
	if got, ok := offsets[trial.CellKey{Version: trial.Some("A")}]; !ok || got != 14 {
		t.Fatalf("expected null-scale cell with offset 14, got %v (present=%v)", got, ok)
	}
}

func TestMergeExplicitWins(t *testing.T) {
	t.Parallel()

	cell := trial.CellKey{Version: trial.Some("A"), Scale: trial.Some("farms_5")}
	other := trial.CellKey{Version: trial.Some("B"), Scale: trial.Some("farms_5")}
	explicit := Map{cell: 120}

	for _, computed := range []float64{0, 1, 119.5, 120, 121, 1e9} {
		merged := Merge(explicit, Map{cell: computed, other: 30})
		if merged[cell] != 120 {
			t.Fatalf("computed %v overrode explicit value: got %v", computed, merged[cell])
		}
		if merged[other] != 30 {
			t.Fatalf("computed entry for other cell lost: %v", merged)
		}
	}
	if explicit[other] != 0 || len(explicit) != 1 {
		t.Fatalf("Merge mutated explicit map: %v", explicit)
	}

	entries := Entries(explicit, Map{cell: 5, other: 30})
	if len(entries) != 2 || entries[0].Source != SourceExplicit || entries[1].Source != SourceComputed {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestApplyExcludesRowsBeforeOffset(t *testing.T) {
	t.Parallel()

	id := identity("A", "farms_5", "0")
	rows := []metrics.Row{
		cpuRow(id, 0, 1),
		cpuRow(id, 219, 2),
		cpuRow(id, 220, 3),
		cpuRow(id, 250, 4),
	}
	offsets := Map{id.Cell(): 220}

	out := Apply(rows, offsets)
	if len(out) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(out))
	}
	minTS := math.Inf(1)
	for _, row := range out {
		if row.Timestamp < 0 {
			t.Fatalf("row before offset survived: %+v", row)
		}
		minTS = math.Min(minTS, row.Timestamp)
	}
	if minTS != 220-220 {
		t.Fatalf("expected minimum timestamp 0, got %v", minTS)
	}
	if out[1].Timestamp != 30 {
		t.Fatalf("expected shifted timestamp 30, got %v", out[1].Timestamp)
	}
	if rows[3].Timestamp != 250 {
		t.Fatalf("Apply mutated input rows")
	}
}

func TestApplyDefaultsToZero(t *testing.T) {
	t.Parallel()

	id := identity("B", "farms_1", "0")
	out := Apply([]metrics.Row{cpuRow(id, 0, 1), cpuRow(id, 5, 1)}, Map{})
	if len(out) != 2 || out[0].Timestamp != 0 || out[1].Timestamp != 5 {
		t.Fatalf("unexpected rows %+v", out)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cell := trial.CellKey{Version: trial.Some("A"), Scale: trial.Some("farms_1")}
	if err := (Map{cell: 0}).Validate(); err != nil {
		t.Fatalf("zero offset rejected: %v", err)
	}
	if err := (Map{cell: -1}).Validate(); err == nil {
		t.Fatalf("expected error for negative offset")
	}
	if err := (Map{cell: math.Inf(1)}).Validate(); err == nil {
		t.Fatalf("expected error for infinite offset")
	}
}
