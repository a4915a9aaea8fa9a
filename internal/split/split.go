// Package split separates combined telegraf CSV dumps into one file per
// measurement, next to the source file.
package split

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Pattern matches combined dumps.
const Pattern = "metrics-*.csv"

// Splitter routes lines of combined dumps by measurement.
type Splitter struct {
	logger *slog.Logger
}

// Result describes one processed dump.
type Result struct {
	Source  string   `json:"source"`
	Outputs []string `json:"outputs"`
	Lines   int      `json:"lines"`
	Skipped int      `json:"skipped"`
}

// New constructs a Splitter.
func New(logger *slog.Logger) *Splitter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Splitter{logger: logger.With("component", "split")}
}

// Discover finds combined dumps below root, sorted by path.
func Discover(root string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(Pattern, d.Name()); ok {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover dumps: %w", err)
	}
	slices.Sort(found)
	return found, nil
}

// Tree splits every dump below root.
func (s *Splitter) Tree(ctx context.Context, root string) ([]Result, error) {
	sources, err := Discover(root)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(sources))
	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := s.File(source)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// File splits one dump. Each line goes to <dir>/<measurement>.csv, where the
// measurement is the second comma-separated field. Existing outputs are
// truncated. Lines keep their order.
func (s *Splitter) File(source string) (Result, error) {
	in, err := os.Open(source)
	if err != nil {
		return Result{}, fmt.Errorf("open dump: %w", err)
	}
	defer in.Close()

	res := Result{Source: source}
	dir := filepath.Dir(source)
	writers := make(map[string]*output)
	var order []string

	reader := bufio.NewReader(in)
	for {
		line, readErr := reader.ReadString('\n')
		if line != "" {
			res.Lines++
			name, ok := Measurement(line)
			if !ok {
				res.Skipped++
			} else {
				out, exists := writers[name]
				if !exists {
					out, err = create(filepath.Join(dir, name+".csv"))
					if err != nil {
						return res, errors.Join(err, closeAll(writers))
					}
					writers[name] = out
					order = append(order, out.path)
				}
				if _, err := out.w.WriteString(line); err != nil {
					return res, errors.Join(fmt.Errorf("write %s: %w", out.path, err), closeAll(writers))
				}
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return res, errors.Join(fmt.Errorf("read dump %s: %w", source, readErr), closeAll(writers))
		}
	}

	if err := closeAll(writers); err != nil {
		return res, err
	}
	res.Outputs = order
	if res.Skipped > 0 {
		s.logger.Warn("skipped lines without a measurement field", "source", source, "count", res.Skipped)
	}
	s.logger.Info("split dump", "source", source, "lines", res.Lines, "measurements", len(order))
	return res, nil
}

// Measurement extracts the text between the first and second comma. Names that
// would escape the directory are rejected.
func Measurement(line string) (string, bool) {
	first := strings.IndexByte(line, ',')
	if first < 0 {
		return "", false
	}
	rest := line[first+1:]
	second := strings.IndexByte(rest, ',')
	if second < 0 {
		return "", false
	}
	name := rest[:second]
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", false
	}
	return name, true
}

type output struct {
	path string
	file *os.File
	w    *bufio.Writer
}

func create(path string) (*output, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	return &output{path: path, file: file, w: bufio.NewWriter(file)}, nil
}

func closeAll(writers map[string]*output) error {
	var errs []error
	for _, out := range writers {
		if err := out.w.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", out.path, err))
		}
		if err := out.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", out.path, err))
		}
	}
	clear(writers)
	return errors.Join(errs...)
}
