// Package schema declares the positional column layouts of the telemetry files.
package schema

import (
	"fmt"
	"strconv"
)

// Kind names a metric family.
type Kind string

const (
	KindCPU     Kind = "cpu"
	KindMemory  Kind = "memory"
	KindNetwork Kind = "network"
	KindTick    Kind = "tick"
)

// Type is the storage type of a column.
type Type int

const (
	Text Type = iota
	Float
)

func (t Type) String() string {
	switch t {
	case Float:
		return "float"
	default:
		return "text"
	}
}

// Column is a single positional field.
type Column struct {
	Name string
	Type Type
}

// Value column names produced by the loaders.
const (
	ColumnUtilization  = "utilization_percent"
	ColumnUsedPercent  = "used_percent"
	ColumnSendRate     = "send_rate_kbps"
	ColumnRecvRate     = "recv_rate_kbps"
	ColumnTickDuration = "tick_duration_ms"
)

// Schema describes one headerless CSV file kind.
type Schema struct {
	Kind     Kind
	FileName string
	Columns  []Column
	// Extra is the number of unnamed trailing columns that may follow Columns.
	Extra int
	// ExtraPrefix names trailing columns as ExtraPrefix+index.
	ExtraPrefix string
	// Values are the derived columns a loaded table carries, in order.
	Values []string
}

// Index returns the position of a named column or -1.
func (s Schema) Index(name string) int {
	for i, col := range s.Columns {
		if col.Name == name {
			return i
		}
	}
	return -1
}

// MustIndex is Index for names declared in this package.
func (s Schema) MustIndex(name string) int {
	idx := s.Index(name)
	if idx < 0 {
		panic(fmt.Sprintf("schema %s: unknown column %q", s.Kind, name))
	}
	return idx
}

// ColumnAt returns the column at position i, naming unnamed trailing fields.
func (s Schema) ColumnAt(i int) Column {
	if i < len(s.Columns) {
		return s.Columns[i]
	}
	return Column{Name: s.ExtraPrefix + strconv.Itoa(i-len(s.Columns)), Type: Text}
}

// CheckFieldCount validates the number of fields in a record.
func (s Schema) CheckFieldCount(n int) error {
	minFields := len(s.Columns)
	maxFields := minFields + s.Extra
	if n < minFields || n > maxFields {
		if minFields == maxFields {
			return fmt.Errorf("expected %d fields, got %d", minFields, n)
		}
		return fmt.Errorf("expected %d to %d fields, got %d", minFields, maxFields, n)
	}
	return nil
}

// For returns the schema of a kind.
func For(kind Kind) (Schema, bool) {
	for _, s := range All() {
		if s.Kind == kind {
			return s, true
		}
	}
	return Schema{}, false
}

// All returns every schema in report order.
func All() []Schema {
	return []Schema{CPU(), Memory(), Network(), Tick()}
}

// Kinds returns every metric kind in report order.
func Kinds() []Kind {
	return []Kind{KindCPU, KindMemory, KindNetwork, KindTick}
}

// ParseKind accepts kind names and their file stems.
func ParseKind(value string) (Kind, error) {
	switch value {
	case "cpu":
		return KindCPU, nil
	case "memory", "mem":
		return KindMemory, nil
	case "network", "net":
		return KindNetwork, nil
	case "tick", "minecraft_tick_times":
		return KindTick, nil
	}
	return "", fmt.Errorf("unknown metric kind %q", value)
}
