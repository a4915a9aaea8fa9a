package loader

import (
	"github.com/yardstick/benchalign/internal/metrics"
	"github.com/yardstick/benchalign/internal/schema"
)

const (
	cpuTotal = "cpu-total"
	// kbps divides bytes per second by this.
	bytesPerKB = 1024
)

// deriveFunc filters records and computes the table's value columns.
type deriveFunc func(s schema.Schema, records []record, opts Options) []metrics.Row

func deriverFor(kind schema.Kind) deriveFunc {
	switch kind {
	case schema.KindCPU:
		return deriveCPU
	case schema.KindNetwork:
		return deriveNetwork
	default:
		return derivePassthrough
	}
}

// deriveCPU keeps the whole-machine row and computes busy time over busy+idle.
func deriveCPU(s schema.Schema, records []record, _ Options) []metrics.Row {
	tsIdx := s.MustIndex("timestamp")
	cpuIdx := s.MustIndex("cpu")
	activeIdx := s.MustIndex("time_active")
	idleIdx := s.MustIndex("time_idle")

	rows := make([]metrics.Row, 0, len(records))
	for _, rec := range records {
		if rec.text(cpuIdx) != cpuTotal {
			continue
		}
		rows = append(rows, metrics.Row{
			Timestamp: rec.float(tsIdx),
			Values:    []float64{Utilization(rec.float(activeIdx), rec.float(idleIdx))},
		})
	}
	return rows
}

// Utilization returns 100*active/(active+idle), or 0 when both are zero.
func Utilization(active, idle float64) float64 {
	total := active + idle
	if total <= 0 {
		return 0
	}
	return 100 * active / total
}

// deriveNetwork keeps one interface and turns cumulative byte counters into
// rates. Rows keep file order; the first row has rate zero.
func deriveNetwork(s schema.Schema, records []record, opts Options) []metrics.Row {
	tsIdx := s.MustIndex("timestamp")
	ifaceIdx := s.MustIndex("interface")
	sentIdx := s.MustIndex("bytes_sent")
	recvIdx := s.MustIndex("bytes_recv")

	rows := make([]metrics.Row, 0, len(records))
	var prev *record
	for i := range records {
		rec := &records[i]
		if rec.text(ifaceIdx) != opts.Interface {
			continue
		}
		var send, recv float64
		if prev != nil {
			dt := rec.float(tsIdx) - prev.float(tsIdx)
			send = Rate(rec.float(sentIdx)-prev.float(sentIdx), dt)
			recv = Rate(rec.float(recvIdx)-prev.float(recvIdx), dt)
		}
		rows = append(rows, metrics.Row{
			Timestamp: rec.float(tsIdx),
			Values:    []float64{send, recv},
		})
		prev = rec
	}
	return rows
}

// Rate converts a byte delta over dt seconds to kilobytes per second. A
// non-positive dt is treated as one second.
func Rate(deltaBytes, dt float64) float64 {
	if dt <= 0 {
		dt = 1
	}
	return deltaBytes / dt / bytesPerKB
}

// derivePassthrough copies the schema's value columns from the source columns
// of the same name.
func derivePassthrough(s schema.Schema, records []record, _ Options) []metrics.Row {
	tsIdx := s.MustIndex("timestamp")
	idx := make([]int, len(s.Values))
	for i, name := range s.Values {
		idx[i] = s.MustIndex(name)
	}

	rows := make([]metrics.Row, 0, len(records))
	for _, rec := range records {
		values := make([]float64, len(idx))
		for i, col := range idx {
			values[i] = rec.float(col)
		}
		rows = append(rows, metrics.Row{Timestamp: rec.float(tsIdx), Values: values})
	}
	return rows
}
