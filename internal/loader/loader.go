// Package loader discovers telemetry files under an experiment tree and turns
// them into aligned metric tables.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/yardstick/benchalign/internal/align"
	"github.com/yardstick/benchalign/internal/metrics"
	"github.com/yardstick/benchalign/internal/schema"
	"github.com/yardstick/benchalign/internal/trial"
)

// DefaultInterface is the network interface kept from net.csv.
const DefaultInterface = "eth0"

// Options controls how files are interpreted.
type Options struct {
	Layout    trial.Layout
	Interface string
	// SkipMalformed logs and skips files that fail to parse instead of
	// aborting the load.
	SkipMalformed bool
}

// Loader reads metric files below a data root.
type Loader struct {
	root   string
	opts   Options
	logger *slog.Logger
}

// File is one discovered metric file.
type File struct {
	Path     string         `json:"path"`
	Kind     schema.Kind    `json:"kind"`
	Identity trial.Identity `json:"identity"`
}

// New constructs a Loader. Zero-valued options fall back to the default layout
// and interface.
func New(root string, opts Options, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Layout == (trial.Layout{}) {
		opts.Layout = trial.DefaultLayout()
	}
	if opts.Interface == "" {
		opts.Interface = DefaultInterface
	}
	return &Loader{
		root:   root,
		opts:   opts,
		logger: logger.With("component", "loader"),
	}
}

// Discover walks the data root for files of the given kind. Results are sorted
// by path. A missing root yields no files.
func (l *Loader) Discover(kind schema.Kind) ([]File, error) {
	s, ok := schema.For(kind)
	if !ok {
		return nil, fmt.Errorf("discover: unknown metric kind %q", kind)
	}

	var files []File
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == l.root {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || d.Name() != s.FileName {
			return nil
		}
		files = append(files, File{Path: path, Kind: kind, Identity: l.identify(path)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover %s files: %w", kind, err)
	}

	slices.SortFunc(files, func(a, b File) int {
		return trial.CompareNatural(a.Path, b.Path)
	})
	for _, f := range files {
		l.logger.Debug("discovered metric file", "kind", kind, "path", f.Path,
			"version", f.Identity.Version, "scale", f.Identity.Scale,
			"trial", f.Identity.Trial, "node", f.Identity.Node)
		if !f.Identity.Version.Valid || !f.Identity.Scale.Valid {
			// Only segments below the root are parsed.
			l.logger.Warn("metric file has no version or scale below the data root",
				"kind", kind, "path", f.Path, "root", l.root,
				"version", f.Identity.Version, "scale", f.Identity.Scale)
		}
	}
	return files, nil
}

func (l *Loader) identify(path string) trial.Identity {
	rel, err := filepath.Rel(l.root, path)
	if err != nil {
		rel = path
	}
	return l.opts.Layout.Parse(rel)
}

// Read parses one file into re-based rows stamped with the file's identity.
// Offsets are not applied.
func (l *Loader) Read(f File) ([]metrics.Row, error) {
	s, ok := schema.For(f.Kind)
	if !ok {
		return nil, fmt.Errorf("read %s: unknown metric kind %q", f.Path, f.Kind)
	}

	handle, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Path, err)
	}
	defer handle.Close()

	records, err := parseRecords(f.Path, handle, s)
	if err != nil {
		return nil, err
	}

	rows := deriverFor(f.Kind)(s, records, l.opts)
	metrics.Rebase(rows)
	metrics.WithIdentity(rows, f.Identity)
	return rows, nil
}

// Load reads every file of kind into one table. When offsets is non-nil each
// file's rows are aligned before they are appended. No matching files yields
// an empty table.
func (l *Loader) Load(ctx context.Context, kind schema.Kind, offsets align.Map) (*metrics.Table, error) {
	s, ok := schema.For(kind)
	if !ok {
		return nil, fmt.Errorf("load: unknown metric kind %q", kind)
	}

	files, err := l.Discover(kind)
	if err != nil {
		return nil, err
	}

	table := metrics.New(s)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, err := l.Read(f)
		if err != nil {
			var parseErr *ParseError
			if l.opts.SkipMalformed && errors.As(err, &parseErr) {
				l.logger.Warn("skipping malformed metric file", "kind", kind, "path", f.Path, "line", parseErr.Line, "err", parseErr.Err)
				continue
			}
			return nil, fmt.Errorf("load %s: %w", kind, err)
		}
		if offsets != nil {
			rows = align.Apply(rows, offsets)
		}
		table.Rows = append(table.Rows, rows...)
	}

	l.logger.Debug("loaded metric table", "kind", kind, "files", len(files), "rows", table.Len(), "aligned", offsets != nil)
	return table, nil
}
