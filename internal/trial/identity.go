// Package trial derives experiment metadata from the storage path of a metric file.
package trial

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// Label is a path-derived value that may be absent. The zero value is absent.
type Label struct {
	Value string
	Valid bool
}

// Some returns a present label.
func Some(value string) Label {
	return Label{Value: value, Valid: true}
}

// None returns an absent label.
func None() Label {
	return Label{}
}

// String renders absent labels as "<none>".
func (l Label) String() string {
	if !l.Valid {
		return "<none>"
	}
	return l.Value
}

// MarshalJSON encodes absent labels as null.
func (l Label) MarshalJSON() ([]byte, error) {
	if !l.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(l.Value)
}

// UnmarshalJSON accepts a string or null.
func (l *Label) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*l = Label{}
		return nil
	}
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("decode label: %w", err)
	}
	*l = Some(value)
	return nil
}

// Compare orders labels naturally ("farms_5" before "farms_10"); absent labels sort last.
func (l Label) Compare(other Label) int {
	switch {
	case !l.Valid && !other.Valid:
		return 0
	case !l.Valid:
		return 1
	case !other.Valid:
		return -1
	}
	return CompareNatural(l.Value, other.Value)
}

// Identity is the experiment metadata attached to every metric row.
type Identity struct {
	Version Label `json:"version"`
	Scale   Label `json:"scale"`
	Trial   Label `json:"trial"`
	Node    Label `json:"node"`
}

// Cell returns the (version, scale) grouping key.
func (id Identity) Cell() CellKey {
	return CellKey{Version: id.Version, Scale: id.Scale}
}

// TrialKey returns the (version, scale, trial) grouping key.
func (id Identity) TrialKey() TrialKey {
	return TrialKey{Version: id.Version, Scale: id.Scale, Trial: id.Trial}
}

// CellKey identifies an experimental cell. Absent labels form their own group.
type CellKey struct {
	Version Label `json:"version"`
	Scale   Label `json:"scale"`
}

func (k CellKey) String() string {
	return k.Version.String() + "/" + k.Scale.String()
}

// Compare orders by version, then scale.
func (k CellKey) Compare(other CellKey) int {
	if c := k.Version.Compare(other.Version); c != 0 {
		return c
	}
	return k.Scale.Compare(other.Scale)
}

// TrialKey identifies a single trial within a cell.
type TrialKey struct {
	Version Label `json:"version"`
	Scale   Label `json:"scale"`
	Trial   Label `json:"trial"`
}

// Cell drops the trial component.
func (k TrialKey) Cell() CellKey {
	return CellKey{Version: k.Version, Scale: k.Scale}
}

// Compare orders by cell, then trial.
func (k TrialKey) Compare(other TrialKey) int {
	if c := k.Cell().Compare(other.Cell()); c != 0 {
		return c
	}
	return k.Trial.Compare(other.Trial)
}

// Token describes how one identity field is recognised in a path segment.
type Token struct {
	Prefix string
	// KeepPrefix stores the whole segment ("farms_5") instead of the suffix.
	KeepPrefix bool
}

func (t Token) match(segment string) (string, bool) {
	if t.Prefix == "" || !strings.HasPrefix(segment, t.Prefix) {
		return "", false
	}
	if t.KeepPrefix {
		return segment, true
	}
	return segment[len(t.Prefix):], true
}

// Layout is the path-segment convention of an experiment tree.
type Layout struct {
	Version Token
	Scale   Token
	Trial   Token
	Node    Token
}

// DefaultLayout matches trees of the form .../version_<v>/farms_<n>/trial_<t>/node<id>/cpu.csv.
func DefaultLayout() Layout {
	return Layout{
		Version: Token{Prefix: "version_"},
		Scale:   Token{Prefix: "farms_", KeepPrefix: true},
		Trial:   Token{Prefix: "trial_"},
		Node:    Token{Prefix: "node", KeepPrefix: true},
	}
}

// Validate reports whether every token has a prefix.
func (l Layout) Validate() error {
	for name, token := range map[string]Token{
		"version": l.Version,
		"scale":   l.Scale,
		"trial":   l.Trial,
		"node":    l.Node,
	} {
		if strings.TrimSpace(token.Prefix) == "" {
			return fmt.Errorf("%s prefix must not be empty", name)
		}
	}
	return nil
}

// Parse extracts an Identity from a file path. Depth is irrelevant; unmatched
// fields stay absent and no error is raised.
func (l Layout) Parse(path string) Identity {
	cleaned := filepath.ToSlash(filepath.Clean(path))
	return l.ParseSegments(strings.Split(cleaned, "/"))
}

// ParseSegments scans ordered path segments. The first matching token wins for a
// segment; when a token matches several segments the deepest one is kept.
func (l Layout) ParseSegments(segments []string) Identity {
	var id Identity
	for _, segment := range segments {
		if segment == "" || segment == "." || segment == ".." {
			continue
		}
		if value, ok := l.Version.match(segment); ok {
			id.Version = Some(value)
		} else if value, ok := l.Scale.match(segment); ok {
			id.Scale = Some(value)
		} else if value, ok := l.Trial.match(segment); ok {
			id.Trial = Some(value)
		} else if value, ok := l.Node.match(segment); ok {
			id.Node = Some(value)
		}
	}
	return id
}
