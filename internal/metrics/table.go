// Package metrics holds the in-memory tables produced by the loaders.
package metrics

import (
	"slices"

	"github.com/yardstick/benchalign/internal/schema"
	"github.com/yardstick/benchalign/internal/trial"
)

// Row is one aligned observation.
type Row struct {
	Identity  trial.Identity
	Timestamp float64
	// Values line up with Table.Columns.
	Values []float64
}

// Table is every row of one metric kind.
type Table struct {
	Kind    schema.Kind
	Columns []string
	Rows    []Row
}

// New returns an empty table shaped by the kind's schema.
func New(s schema.Schema) *Table {
	return &Table{Kind: s.Kind, Columns: slices.Clone(s.Values)}
}

// Len reports the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the table has no rows.
func (t *Table) Empty() bool {
	return t.Len() == 0
}

// Index returns the position of a value column or -1.
func (t *Table) Index(column string) int {
	return slices.Index(t.Columns, column)
}

// Rebase shifts timestamps so the smallest one becomes zero. Rows are updated
// in place; callers own the table.
func Rebase(rows []Row) {
	if len(rows) == 0 {
		return
	}
	minTS := rows[0].Timestamp
	for _, row := range rows[1:] {
		if row.Timestamp < minTS {
			minTS = row.Timestamp
		}
	}
	if minTS == 0 {
		return
	}
	for i := range rows {
		rows[i].Timestamp -= minTS
	}
}

// WithIdentity stamps every row with id.
func WithIdentity(rows []Row, id trial.Identity) {
	for i := range rows {
		rows[i].Identity = id
	}
}
