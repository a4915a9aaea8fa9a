// Package pipeline runs the two-phase analysis: offsets are derived from the
// raw CPU signal first, then every metric kind is loaded with them applied.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yardstick/benchalign/internal/align"
	"github.com/yardstick/benchalign/internal/loader"
	"github.com/yardstick/benchalign/internal/metrics"
	"github.com/yardstick/benchalign/internal/schema"
)

// DefaultWorkers bounds concurrent loads in the second phase.
const DefaultWorkers = 4

// Config is everything one run needs. It is passed by value so concurrent
// runs never share state.
type Config struct {
	Root     string
	Loader   loader.Options
	Explicit align.Map
	Workers  int
	Kinds    []schema.Kind
}

// Result is the outcome of one run.
type Result struct {
	Root        string
	CompletedAt time.Time
	Explicit    align.Map
	Computed    align.Map
	Offsets     align.Map
	Tables      map[schema.Kind]*metrics.Table
}

// Table returns the table of kind, never nil.
func (r *Result) Table(kind schema.Kind) *metrics.Table {
	if table, ok := r.Tables[kind]; ok && table != nil {
		return table
	}
	s, _ := schema.For(kind)
	return metrics.New(s)
}

// Empty reports whether no metric kind produced any row.
func (r *Result) Empty() bool {
	for _, table := range r.Tables {
		if !table.Empty() {
			return false
		}
	}
	return true
}

// OffsetEntries lists the applied offsets with their provenance.
func (r *Result) OffsetEntries() []align.Entry {
	return align.Entries(r.Explicit, r.Computed)
}

// Offsets runs only the first phase and returns the explicit, computed and
// merged maps.
func Offsets(ctx context.Context, cfg Config, logger *slog.Logger) (explicit, computed, merged align.Map, err error) {
	logger = baseLogger(logger)
	log := logger.With("component", "pipeline")

	explicit = cfg.Explicit.Clone()
	if err := explicit.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("explicit offsets: %w", err)
	}

	ld := loader.New(cfg.Root, cfg.Loader, logger)
	cpu, err := ld.Load(ctx, schema.KindCPU, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load raw cpu: %w", err)
	}
	computed, err = align.ComputeFromCPU(cpu)
	if err != nil {
		return nil, nil, nil, err
	}
	merged = align.Merge(explicit, computed)

	for _, entry := range align.Entries(explicit, computed) {
		log.Info("offset resolved",
			"version", entry.Cell.Version,
			"scale", entry.Cell.Scale,
			"seconds", entry.Seconds,
			"source", entry.Source,
		)
	}
	return explicit, computed, merged, nil
}

// Run executes both phases. The offset map is complete before any aligned
// load starts; aligned loads of different kinds then run concurrently.
func Run(ctx context.Context, cfg Config, logger *slog.Logger) (*Result, error) {
	logger = baseLogger(logger)
	log := logger.With("component", "pipeline")
	started := time.Now()

	explicit, computed, offsets, err := Offsets(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	kinds := cfg.Kinds
	if len(kinds) == 0 {
		kinds = schema.Kinds()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	ld := loader.New(cfg.Root, cfg.Loader, logger)
	tables := make([]*metrics.Table, len(kinds))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)
	for i, kind := range kinds {
		i, kind := i, kind
		group.Go(func() error {
			table, err := ld.Load(groupCtx, kind, offsets.Clone())
			if err != nil {
				return err
			}
			tables[i] = table
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("load aligned tables: %w", err)
	}

	result := &Result{
		Root:        cfg.Root,
		CompletedAt: time.Now().UTC(),
		Explicit:    explicit,
		Computed:    computed,
		Offsets:     offsets,
		Tables:      make(map[schema.Kind]*metrics.Table, len(kinds)),
	}
	for i, kind := range kinds {
		result.Tables[kind] = tables[i]
		log.Debug("aligned table ready", "kind", kind, "rows", tables[i].Len())
	}
	log.Info("analysis complete", "root", cfg.Root, "offsets", len(offsets), "duration", time.Since(started))
	return result, nil
}

func baseLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger
}
