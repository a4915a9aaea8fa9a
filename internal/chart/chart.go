// Package chart renders aligned metric tables with gonum/plot.
package chart

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/samber/lo"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/yardstick/benchalign/internal/metrics"
	"github.com/yardstick/benchalign/internal/pipeline"
	"github.com/yardstick/benchalign/internal/report"
	"github.com/yardstick/benchalign/internal/schema"
	"github.com/yardstick/benchalign/internal/trial"
)

// Formats lists the supported output formats.
var Formats = []string{"png", "svg", "pdf"}

// Options controls chart output.
type Options struct {
	Dir    string
	Format string
	// Scales selects and orders time-series panels. Empty renders every scale
	// present in the data.
	Scales []string
	// Bucket is the time-series bucket width in seconds.
	Bucket float64
}

// Renderer writes chart files.
type Renderer struct {
	opts   Options
	logger *slog.Logger
}

// layout maps a reported column to its output subdirectory and file stem.
type layout struct {
	dir  string
	stem string
}

var layouts = map[string]layout{
	schema.ColumnUtilization:  {dir: "cpu", stem: "cpu_over_time"},
	schema.ColumnUsedPercent:  {dir: "mem", stem: "mem_over_time"},
	schema.ColumnSendRate:     {dir: "netio", stem: "netio_send_over_time"},
	schema.ColumnRecvRate:     {dir: "netio", stem: "netio_recv_over_time"},
	schema.ColumnTickDuration: {dir: "tick", stem: "tick_over_time"},
}

// New validates opts and returns a Renderer.
func New(opts Options, logger *slog.Logger) (*Renderer, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Format == "" {
		opts.Format = "png"
	}
	if !slices.Contains(Formats, opts.Format) {
		return nil, fmt.Errorf("unsupported chart format %q", opts.Format)
	}
	if opts.Dir == "" {
		return nil, fmt.Errorf("chart output directory is required")
	}
	if opts.Bucket <= 0 {
		opts.Bucket = report.DefaultBucket
	}
	return &Renderer{opts: opts, logger: logger.With("component", "chart")}, nil
}

// Render writes every chart for result and returns the written paths. Metrics
// without data produce no files.
func (r *Renderer) Render(result *pipeline.Result) ([]string, error) {
	var written []string
	for _, metric := range report.Metrics() {
		table := result.Table(metric.Kind)
		if table.Empty() {
			r.logger.Debug("no data for metric, skipping charts", "column", metric.Column)
			continue
		}

		paths, err := r.TimeSeries(metric, table)
		if err != nil {
			return written, err
		}
		written = append(written, paths...)

		path, err := r.Boxplot(metric, table)
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// TimeSeries writes one overlay per scale with a line per version.
func (r *Renderer) TimeSeries(metric report.Metric, table *metrics.Table) ([]string, error) {
	series := report.BuildSeries(table, metric.Column, r.opts.Bucket)
	if len(series) == 0 {
		return nil, nil
	}
	out, ok := layouts[metric.Column]
	if !ok {
		out = layout{dir: string(metric.Kind), stem: metric.Column + "_over_time"}
	}

	byScale := lo.GroupBy(series, func(s report.Series) string { return s.Cell.Scale.String() })

	var written []string
	for _, scale := range r.scaleOrder(lo.Keys(byScale)) {
		group, ok := byScale[scale]
		if !ok {
			continue
		}

		p := plot.New()
		p.Title.Text = fmt.Sprintf("%s, %s", metric.Title, scale)
		p.X.Label.Text = "Time [m]"
		p.Y.Label.Text = metric.Label()
		p.Add(plotter.NewGrid())
		p.Legend.Top = true

		for i, s := range group {
			pts := make(plotter.XYs, len(s.Points))
			for j, pt := range s.Points {
				pts[j].X = pt.Minutes
				pts[j].Y = pt.Mean
			}
			line, err := plotter.NewLine(pts)
			if err != nil {
				return written, fmt.Errorf("build %s line for %s: %w", metric.Column, s.Cell, err)
			}
			line.Color = plotutil.Color(i)
			line.Width = vg.Points(1.5)
			p.Add(line)
			p.Legend.Add(s.Cell.Version.String(), line)
		}

		path := filepath.Join(r.opts.Dir, out.dir, fmt.Sprintf("%s_%s.%s", out.stem, fileStem(scale), r.opts.Format))
		if err := save(p, 8*vg.Inch, 4*vg.Inch, path); err != nil {
			return written, err
		}
		r.logger.Debug("wrote time series", "column", metric.Column, "scale", scale, "path", path)
		written = append(written, path)
	}
	return written, nil
}

// Boxplot writes one box per (version, scale) cell over every aligned row.
func (r *Renderer) Boxplot(metric report.Metric, table *metrics.Table) (string, error) {
	idx := table.Index(metric.Column)
	if idx < 0 {
		return "", fmt.Errorf("table %s has no column %q", table.Kind, metric.Column)
	}

	groups := lo.GroupBy(table.Rows, func(row metrics.Row) trial.CellKey { return row.Identity.Cell() })
	cells := lo.Keys(groups)
	slices.SortFunc(cells, trial.CellKey.Compare)

	p := plot.New()
	p.Title.Text = metric.Title
	p.Y.Label.Text = metric.Label()
	p.Add(plotter.NewGrid())

	width := vg.Points(20)
	ticks := make([]plot.Tick, len(cells))
	for i, cell := range cells {
		values := make(plotter.Values, len(groups[cell]))
		for j, row := range groups[cell] {
			values[j] = row.Values[idx]
		}
		box, err := plotter.NewBoxPlot(width, float64(i), values)
		if err != nil {
			return "", fmt.Errorf("build %s boxplot for %s: %w", metric.Column, cell, err)
		}
		box.FillColor = plotutil.Color(i)
		p.Add(box)
		ticks[i] = plot.Tick{Value: float64(i), Label: cell.String()}
	}
	p.X.Tick.Marker = plot.ConstantTicks(ticks)

	path := filepath.Join(r.opts.Dir, "boxplots", fmt.Sprintf("boxplot_%s.%s", metric.Column, r.opts.Format))
	chartWidth := vg.Length(max(6, len(cells))) * vg.Inch
	if err := save(p, chartWidth, 4*vg.Inch, path); err != nil {
		return "", err
	}
	r.logger.Debug("wrote boxplot", "column", metric.Column, "cells", len(cells), "path", path)
	return path, nil
}

// scaleOrder returns the configured scales, or every present scale in
// natural order when none are configured.
func (r *Renderer) scaleOrder(present []string) []string {
	if len(r.opts.Scales) > 0 {
		return r.opts.Scales
	}
	slices.SortFunc(present, trial.CompareNatural)
	return present
}

// fileStem maps the absent-label placeholder to a name usable on every
// filesystem.
func fileStem(label string) string {
	if label == trial.None().String() {
		return "none"
	}
	return label
}

func save(p *plot.Plot, width, height vg.Length, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create chart directory: %w", err)
	}
	if err := p.Save(width, height, path); err != nil {
		return fmt.Errorf("save chart %s: %w", path, err)
	}
	return nil
}
