package loader

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yardstick/benchalign/internal/align"
	"github.com/yardstick/benchalign/internal/schema"
	"github.com/yardstick/benchalign/internal/trial"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newTestLoader(root string, opts Options) *Loader {
	return New(root, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func cpuLine(ts, cpu string, active, idle string) string {
	return ts + ",cpu,0," + cpu + ",host,0," + active + ",0,0," + idle + ",0,0,0,0,0,0,0\n"
}

func memLine(ts, used string) string {
	return memLineWidth(38, ts, used)
}

// memLineWidth builds a mem row with n fields. Linux agents write 37.
func memLineWidth(n int, ts, used string) string {
	fields := make([]string, n)
	for i := range fields {
		fields[i] = "0"
	}
	fields[0] = ts
	fields[1] = "mem"
	fields[2] = "node1"
	fields[schema.Memory().MustIndex("used_percent")] = used
	return strings.Join(fields, ",") + "\n"
}

func TestLoadCPUFiltersAggregateRow(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "exp", "version_A", "farms_5", "trial_0", "node1", "cpu.csv"),
		cpuLine("1000", "cpu-total", "30", "70")+
			cpuLine("1000", "cpu0", "90", "10")+
			cpuLine("1000", "cpu1", "10", "90")+
			cpuLine("1010", "cpu-total", "0", "0"))

	table, err := newTestLoader(root, Options{}).Load(context.Background(), schema.KindCPU, nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("expected 2 cpu-total rows, got %d", table.Len())
	}

	first := table.Rows[0]
	if first.Timestamp != 0 || first.Values[0] != 30 {
		t.Fatalf("unexpected first row %+v", first)
	}
	second := table.Rows[1]
	if second.Timestamp != 10 || second.Values[0] != 0 {
		t.Fatalf("unexpected second row %+v", second)
	}

	want := trial.Identity{
		Version: trial.Some("A"),
		Scale:   trial.Some("farms_5"),
		Trial:   trial.Some("0"),
		Node:    trial.Some("node1"),
	}
	if first.Identity != want {
		t.Fatalf("unexpected identity %+v", first.Identity)
	}
}

func TestLoadNetworkRates(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "version_A", "farms_1", "trial_0", "node1", "net.csv"), strings.Join([]string{
		"100,net,node1,eth0,0,0,1,2,3",
		"100,net,node1,lo,999,999",
		"110,net,node1,eth0,10240,20480",
		"110,net,node1,eth0,11264,20480",
	}, "\n")+"\n")

	table, err := newTestLoader(root, Options{}).Load(context.Background(), schema.KindNetwork, nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if table.Len() != 3 {
		t.Fatalf("expected 3 eth0 rows, got %d", table.Len())
	}

	want := [][]float64{{0, 0}, {1, 2}, {1, 0}}
	for i, row := range table.Rows {
		if row.Values[0] != want[i][0] || row.Values[1] != want[i][1] {
			t.Fatalf("row %d: got %v, want %v", i, row.Values, want[i])
		}
	}
	if table.Rows[2].Timestamp != 10 {
		t.Fatalf("unexpected rebased timestamp %v", table.Rows[2].Timestamp)
	}
}

func TestLoadNetworkCustomInterface(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "version_A", "net.csv"), "0,net,n,ens5,0,0\n0,net,n,eth0,0,0\n")

	table, err := newTestLoader(root, Options{Interface: "ens5"}).Load(context.Background(), schema.KindNetwork, nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if table.Len() != 1 {
		t.Fatalf("expected 1 row, got %d", table.Len())
	}
}

func TestRateGuardsElapsedTime(t *testing.T) {
	t.Parallel()

	if got := Rate(2048, 0); got != 2 {
		t.Fatalf("zero elapsed: got %v", got)
	}
	if got := Rate(2048, -5); got != 2 {
		t.Fatalf("negative elapsed: got %v", got)
	}
	if got := Utilization(0, 0); got != 0 {
		t.Fatalf("zero totals: got %v", got)
	}
}

func TestLoadEmptyRoot(t *testing.T) {
	t.Parallel()

	for _, root := range []string{t.TempDir(), filepath.Join(t.TempDir(), "missing")} {
		table, err := newTestLoader(root, Options{}).Load(context.Background(), schema.KindTick, nil)
		if err != nil {
			t.Fatalf("Load(%s) returned error: %v", root, err)
		}
		if !table.Empty() || table.Kind != schema.KindTick {
			t.Fatalf("expected empty tick table, got %+v", table)
		}
	}
}

func TestLoadMalformedIsFatal(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := filepath.Join(root, "version_A", "farms_1", "minecraft_tick_times.csv")
	writeFile(t, path, "0,tick,node1,ep,50\n1,tick,node1,ep\n")

	_, err := newTestLoader(root, Options{}).Load(context.Background(), schema.KindTick, nil)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if parseErr.Path != path || parseErr.Line != 2 {
		t.Fatalf("unexpected parse error location %s:%d", parseErr.Path, parseErr.Line)
	}
}

func TestLoadNonNumericIsFatal(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "version_A", "minecraft_tick_times.csv"), "0,tick,node1,ep,fast\n")

	_, err := newTestLoader(root, Options{}).Load(context.Background(), schema.KindTick, nil)
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if !strings.Contains(parseErr.Error(), "tick_duration_ms") {
		t.Fatalf("expected column name in error, got %v", parseErr)
	}
}

func TestLoadSkipMalformed(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "version_A", "trial_0", "minecraft_tick_times.csv"), "0,tick,node1,ep,50\n5,tick,node1,ep,55\n")
	writeFile(t, filepath.Join(root, "version_A", "trial_1", "minecraft_tick_times.csv"), "0,tick,node1\n")

	table, err := newTestLoader(root, Options{SkipMalformed: true}).Load(context.Background(), schema.KindTick, nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("expected rows from the valid file only, got %d", table.Len())
	}
	for _, row := range table.Rows {
		if row.Identity.Trial != trial.Some("0") {
			t.Fatalf("row from malformed file merged: %+v", row)
		}
	}
}

func TestLoadAppliesOffsets(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "version_1.20.1", "farms_5", "trial_0", "node1", "mem.csv"),
		memLine("1000", "40")+memLine("1050", "41")+memLine("1300", "42"))

	cell := trial.CellKey{Version: trial.Some("1.20.1"), Scale: trial.Some("farms_5")}
	table, err := newTestLoader(root, Options{}).Load(context.Background(), schema.KindMemory, align.Map{cell: 220})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if table.Len() != 1 {
		t.Fatalf("expected 1 row after alignment, got %d", table.Len())
	}
	if row := table.Rows[0]; row.Timestamp != 80 || row.Values[0] != 42 {
		t.Fatalf("unexpected aligned row %+v", row)
	}
}

func TestLoadMemoryAcceptsBothWidths(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	cell := filepath.Join(root, "version_A", "farms_5")
	writeFile(t, filepath.Join(cell, "trial_0", "node1", "mem.csv"),
		memLineWidth(37, "1000", "42")+memLineWidth(37, "1010", "43"))
	writeFile(t, filepath.Join(cell, "trial_1", "node1", "mem.csv"),
		memLineWidth(38, "2000", "50"))

	table, err := newTestLoader(root, Options{}).Load(context.Background(), schema.KindMemory, nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if table.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", table.Len())
	}
	if row := table.Rows[0]; row.Timestamp != 0 || row.Values[0] != 42 {
		t.Fatalf("unexpected 37-field row %+v", row)
	}
	if row := table.Rows[2]; row.Identity.Trial != trial.Some("1") || row.Values[0] != 50 {
		t.Fatalf("unexpected 38-field row %+v", row)
	}

	writeFile(t, filepath.Join(cell, "trial_2", "node1", "mem.csv"), memLineWidth(36, "3000", "60"))
	if _, err := newTestLoader(root, Options{}).Load(context.Background(), schema.KindMemory, nil); err == nil {
		t.Fatalf("expected 36-field memory row to be rejected")
	}
}

func TestDiscoverSortedAndRelative(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "version_outer")
	writeFile(t, filepath.Join(root, "version_B", "farms_10", "cpu.csv"), "")
	writeFile(t, filepath.Join(root, "version_B", "farms_5", "cpu.csv"), "")
	writeFile(t, filepath.Join(root, "version_A", "farms_1", "mem.csv"), "")

	files, err := newTestLoader(root, Options{}).Discover(schema.KindCPU)
	if err != nil {
		t.Fatalf("Discover returned error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 cpu files, got %d", len(files))
	}
	if files[0].Identity.Scale != trial.Some("farms_5") || files[1].Identity.Scale != trial.Some("farms_10") {
		t.Fatalf("unexpected order %+v", files)
	}
	if files[0].Identity.Version != trial.Some("B") {
		t.Fatalf("identity leaked from above the root: %+v", files[0].Identity)
	}
}

func TestDiscoverWarnsOnMissingCellTokens(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "version_outer", "farms_5")
	writeFile(t, filepath.Join(root, "trial_0", "node1", "cpu.csv"), "")

	var logs bytes.Buffer
	ld := New(root, Options{}, slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn})))
	files, err := ld.Discover(schema.KindCPU)
	if err != nil {
		t.Fatalf("Discover returned error: %v", err)
	}
	if len(files) != 1 || files[0].Identity.Version.Valid {
		t.Fatalf("unexpected files %+v", files)
	}
	if !strings.Contains(logs.String(), "level=WARN") || !strings.Contains(logs.String(), "no version or scale") {
		t.Fatalf("expected a warning, got %q", logs.String())
	}

	logs.Reset()
	full := t.TempDir()
	writeFile(t, filepath.Join(full, "version_A", "farms_5", "trial_0", "node1", "cpu.csv"), "")
	ld = New(full, Options{}, slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn})))
	if _, err := ld.Discover(schema.KindCPU); err != nil {
		t.Fatalf("Discover returned error: %v", err)
	}
	if logs.Len() != 0 {
		t.Fatalf("unexpected warning for a complete path: %q", logs.String())
	}
}
