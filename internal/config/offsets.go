package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yardstick/benchalign/internal/align"
	"github.com/yardstick/benchalign/internal/trial"
)

// OffsetFile is the YAML layout of an offsets override file.
type OffsetFile struct {
	Offsets []OffsetEntry `yaml:"offsets"`
}

// OffsetEntry pins the warmup offset of one cell. An empty version or scale
// matches files whose path carries no such token.
type OffsetEntry struct {
	Version string  `yaml:"version,omitempty"`
	Scale   string  `yaml:"scale,omitempty"`
	Seconds float64 `yaml:"seconds"`
	Source  string  `yaml:"source,omitempty"`
}

func (e OffsetEntry) cell() trial.CellKey {
	return trial.CellKey{Version: optional(e.Version), Scale: optional(e.Scale)}
}

func optional(value string) trial.Label {
	if value == "" {
		return trial.None()
	}
	return trial.Some(value)
}

// LoadOffsetsFile reads an override file.
func LoadOffsetsFile(path string) (align.Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open offsets file: %w", err)
	}
	defer f.Close()

	offsets, err := DecodeOffsets(f)
	if err != nil {
		return nil, fmt.Errorf("offsets file %s: %w", path, err)
	}
	return offsets, nil
}

// DecodeOffsets parses the YAML override format. Duplicate cells and negative
// values are rejected.
func DecodeOffsets(r io.Reader) (align.Map, error) {
	var doc OffsetFile
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return align.Map{}, nil
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	offsets := make(align.Map, len(doc.Offsets))
	for i, entry := range doc.Offsets {
		key := entry.cell()
		if _, dup := offsets[key]; dup {
			return nil, fmt.Errorf("entry %d: duplicate offset for %s", i, key)
		}
		if entry.Seconds < 0 || math.IsNaN(entry.Seconds) || math.IsInf(entry.Seconds, 0) {
			return nil, fmt.Errorf("entry %d: seconds must be a non-negative number, got %g", i, entry.Seconds)
		}
		offsets[key] = entry.Seconds
	}
	return offsets, nil
}

// EncodeOffsets writes entries in the override format so they can be pinned.
func EncodeOffsets(w io.Writer, entries []align.Entry) error {
	doc := OffsetFile{Offsets: make([]OffsetEntry, 0, len(entries))}
	for _, entry := range entries {
		doc.Offsets = append(doc.Offsets, OffsetEntry{
			Version: entry.Cell.Version.Value,
			Scale:   entry.Cell.Scale.Value,
			Seconds: entry.Seconds,
			Source:  string(entry.Source),
		})
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("encode offsets: %w", err)
	}
	return encoder.Close()
}

// ParseInlineOffsets parses "version/scale=seconds;..." overrides.
func ParseInlineOffsets(value string) (align.Map, error) {
	offsets := align.Map{}
	for _, item := range splitAndTrim(value, ";") {
		cellPart, secondsPart, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("entry %q: expected version/scale=seconds", item)
		}
		version, scale, ok := strings.Cut(strings.TrimSpace(cellPart), "/")
		if !ok {
			return nil, fmt.Errorf("entry %q: expected version/scale before '='", item)
		}
		version, scale = strings.TrimSpace(version), strings.TrimSpace(scale)
		if version == "" || scale == "" {
			return nil, fmt.Errorf("entry %q: version and scale must not be empty", item)
		}
		seconds, err := strconv.ParseFloat(strings.TrimSpace(secondsPart), 64)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", item, err)
		}
		if seconds < 0 || math.IsInf(seconds, 0) || math.IsNaN(seconds) {
			return nil, fmt.Errorf("entry %q: seconds must be a non-negative number", item)
		}
		key := trial.CellKey{Version: trial.Some(version), Scale: trial.Some(scale)}
		if _, dup := offsets[key]; dup {
			return nil, fmt.Errorf("entry %q: duplicate offset for %s", item, key)
		}
		offsets[key] = seconds
	}
	return offsets, nil
}
