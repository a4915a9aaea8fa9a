package report

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/yardstick/benchalign/internal/align"
	"github.com/yardstick/benchalign/internal/metrics"
	"github.com/yardstick/benchalign/internal/pipeline"
	"github.com/yardstick/benchalign/internal/schema"
	"github.com/yardstick/benchalign/internal/trial"
)

func id(version, scale, trialID string) trial.Identity {
	return trial.Identity{Version: trial.Some(version), Scale: trial.Some(scale), Trial: trial.Some(trialID)}
}

func row(identity trial.Identity, ts float64, values ...float64) metrics.Row {
	return metrics.Row{Identity: identity, Timestamp: ts, Values: values}
}

func assertClose(t *testing.T, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %.6f, got %.6f", want, got)
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	stats := Summarize([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assertClose(t, stats.Mean, 5)
	assertClose(t, stats.StdDev, math.Sqrt(32.0/7.0))
	if stats.Count != 8 {
		t.Fatalf("unexpected count %d", stats.Count)
	}

	single := Summarize([]float64{3})
	if single.Mean != 3 || single.StdDev != 0 || single.Count != 1 {
		t.Fatalf("unexpected single-sample stats %+v", single)
	}
	if empty := Summarize(nil); empty != (Stats{}) {
		t.Fatalf("unexpected empty stats %+v", empty)
	}
}

func testResult() *pipeline.Result {
	cpu := metrics.New(schema.CPU())
	cpu.Rows = []metrics.Row{
		row(id("B", "farms_10", "0"), 0, 50),
		row(id("A", "farms_5", "0"), 0, 10),
		row(id("A", "farms_5", "0"), 10, 20),
		row(id("A", "farms_5", "1"), 0, 30),
		row(id("A", "farms_10", "0"), 0, 70),
	}
	net := metrics.New(schema.Network())
	cell := trial.CellKey{Version: trial.Some("A"), Scale: trial.Some("farms_5")}
	return &pipeline.Result{
		Root:        "/data",
		CompletedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Explicit:    align.Map{},
		Computed:    align.Map{cell: 24},
		Offsets:     align.Map{cell: 24},
		Tables: map[schema.Kind]*metrics.Table{
			schema.KindCPU:     cpu,
			schema.KindNetwork: net,
		},
	}
}

func TestBuildGroupsAndOmitsEmpty(t *testing.T) {
	t.Parallel()

	rep := Build(testResult())
	if got := rep.Columns(); len(got) != 1 || got[0] != schema.ColumnUtilization {
		t.Fatalf("expected only the cpu section, got %v", got)
	}
	if _, ok := rep.Section(schema.ColumnSendRate); ok {
		t.Fatalf("empty network table produced a section")
	}

	section, _ := rep.Section(schema.ColumnUtilization)
	if len(section.ByCell) != 3 {
		t.Fatalf("expected 3 cells, got %d", len(section.ByCell))
	}
	first := section.ByCell[0]
	if first.Version != trial.Some("A") || first.Scale != trial.Some("farms_5") {
		t.Fatalf("unexpected first cell %+v", first)
	}
	assertClose(t, first.Mean, 20)
	if first.Count != 3 {
		t.Fatalf("unexpected count %d", first.Count)
	}
	if section.ByCell[1].Scale != trial.Some("farms_10") {
		t.Fatalf("expected natural scale order, got %+v", section.ByCell[1])
	}

	if len(section.ByTrial) != 4 {
		t.Fatalf("expected 4 trials, got %d", len(section.ByTrial))
	}
	assertClose(t, section.ByTrial[0].Mean, 15)
	assertClose(t, section.ByTrial[1].Mean, 30)
}

func TestBuildAllEmpty(t *testing.T) {
	t.Parallel()

	rep := Build(&pipeline.Result{Root: "/empty"})
	if !rep.Empty() {
		t.Fatalf("expected empty report, got %v", rep.Columns())
	}
}

func TestBuildSeriesBuckets(t *testing.T) {
	t.Parallel()

	table := metrics.New(schema.Tick())
	table.Rows = []metrics.Row{
		row(id("A", "farms_1", "0"), 0, 40),
		row(id("A", "farms_1", "1"), 5, 60),
		row(id("A", "farms_1", "0"), 65, 10),
		row(id("B", "farms_1", "0"), 0, 1),
	}

	series := BuildSeries(table, schema.ColumnTickDuration, 60)
	if len(series) != 2 {
		t.Fatalf("expected 2 series, got %d", len(series))
	}
	points := series[0].Points
	if len(points) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(points))
	}
	if points[0].Minutes != 0 || points[0].Mean != 50 || points[0].Count != 2 {
		t.Fatalf("unexpected first bucket %+v", points[0])
	}
	if points[1].Minutes != 1 || points[1].Mean != 10 {
		t.Fatalf("unexpected second bucket %+v", points[1])
	}
	if BuildSeries(metrics.New(schema.Tick()), schema.ColumnTickDuration, 10) != nil {
		t.Fatalf("expected no series for empty table")
	}
}

func TestWriteText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteText(&buf, Build(testResult())); err != nil {
		t.Fatalf("WriteText returned error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"== Offsets ==", "CPU utilization [%]", "farms_5", "computed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Send rate") {
		t.Fatalf("summary contains omitted section:\n%s", out)
	}
}

func TestWriteJSONNullLabels(t *testing.T) {
	t.Parallel()

	cpu := metrics.New(schema.CPU())
	cpu.Rows = []metrics.Row{row(trial.Identity{Version: trial.Some("A")}, 0, 5)}
	rep := Build(&pipeline.Result{Tables: map[schema.Kind]*metrics.Table{schema.KindCPU: cpu}})

	var buf bytes.Buffer
	if err := WriteJSON(&buf, rep); err != nil {
		t.Fatalf("WriteJSON returned error: %v", err)
	}

	var decoded struct {
		Sections []struct {
			Column string `json:"column"`
			ByCell []struct {
				Version *string `json:"version"`
				Scale   *string `json:"scale"`
				StdDev  float64 `json:"stddev"`
			} `json:"by_cell"`
		} `json:"sections"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	cell := decoded.Sections[0].ByCell[0]
	if cell.Version == nil || *cell.Version != "A" || cell.Scale != nil {
		t.Fatalf("unexpected labels %+v", cell)
	}
}
