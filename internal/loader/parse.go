package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/yardstick/benchalign/internal/schema"
)

// record is one validated CSV line. Float columns are decoded into nums; text
// columns keep their raw value in fields.
type record struct {
	line   int
	fields []string
	nums   []float64
}

func (r record) text(idx int) string {
	return r.fields[idx]
}

func (r record) float(idx int) float64 {
	return r.nums[idx]
}

// parseRecords reads a headerless CSV stream against s. Any malformed line
// fails the whole stream.
func parseRecords(path string, in io.Reader, s schema.Schema) ([]record, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false

	var records []record
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			var csvErr *csv.ParseError
			if errors.As(err, &csvErr) {
				return nil, &ParseError{Path: path, Line: csvErr.Line, Err: csvErr.Err}
			}
			return nil, &ParseError{Path: path, Err: err}
		}
		line, _ := reader.FieldPos(0)

		if err := s.CheckFieldCount(len(fields)); err != nil {
			return nil, &ParseError{Path: path, Line: line, Err: err}
		}

		rec := record{line: line, fields: fields, nums: make([]float64, len(fields))}
		for i, raw := range fields {
			col := s.ColumnAt(i)
			if col.Type != schema.Float {
				rec.nums[i] = math.NaN()
				continue
			}
			value, err := parseFloat(raw)
			if err != nil {
				return nil, &ParseError{Path: path, Line: line, Err: fmt.Errorf("column %s: %w", col.Name, err)}
			}
			rec.nums[i] = value
		}
		records = append(records, rec)
	}
}

func parseFloat(raw string) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", raw)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("non-finite number %q", raw)
	}
	return value, nil
}
