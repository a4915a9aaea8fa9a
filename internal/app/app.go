// Package app wires configuration into the analysis pipeline and its sinks.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/yardstick/benchalign/internal/align"
	"github.com/yardstick/benchalign/internal/chart"
	"github.com/yardstick/benchalign/internal/config"
	"github.com/yardstick/benchalign/internal/httpserver"
	"github.com/yardstick/benchalign/internal/loader"
	"github.com/yardstick/benchalign/internal/pipeline"
	"github.com/yardstick/benchalign/internal/publish"
	"github.com/yardstick/benchalign/internal/report"
	"github.com/yardstick/benchalign/internal/results"
	"github.com/yardstick/benchalign/internal/split"
)

const (
	shutdownTimeout = 10 * time.Second

	SummaryFile = "summary.txt"
	ReportFile  = "report.json"
)

// PipelineConfig resolves explicit offsets and loader options from cfg.
func PipelineConfig(cfg config.Config) (pipeline.Config, error) {
	explicit, err := cfg.ExplicitOffsets()
	if err != nil {
		return pipeline.Config{}, err
	}
	return pipeline.Config{
		Root: cfg.DataRoot,
		Loader: loader.Options{
			Layout:        cfg.Layout,
			Interface:     cfg.NetworkInterface,
			SkipMalformed: cfg.SkipMalformed,
		},
		Explicit: explicit,
		Workers:  cfg.LoadWorkers,
	}, nil
}

// RunAnalyze executes one batch analysis and writes charts, summary.txt and
// report.json into cfg.OutputDir. A tree without data prints a notice to out
// and writes nothing.
func RunAnalyze(ctx context.Context, baseLogger *slog.Logger, cfg config.Config, out io.Writer) error {
	appLogger := baseLogger.With("component", "app")

	pcfg, err := PipelineConfig(cfg)
	if err != nil {
		return err
	}
	result, err := pipeline.Run(ctx, pcfg, baseLogger)
	if err != nil {
		return err
	}
	if result.Empty() {
		_, err := fmt.Fprintf(out, "no data found under %s\n", cfg.DataRoot)
		return err
	}

	rep := report.Build(result)

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	renderer, err := chart.New(chart.Options{
		Dir:    cfg.OutputDir,
		Format: cfg.ChartFormat,
		Scales: cfg.Scales,
		Bucket: cfg.BucketSeconds,
	}, baseLogger)
	if err != nil {
		return err
	}
	charts, err := renderer.Render(result)
	if err != nil {
		return fmt.Errorf("render charts: %w", err)
	}

	if err := writeFile(filepath.Join(cfg.OutputDir, SummaryFile), func(w io.Writer) error {
		return report.WriteText(w, rep)
	}); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(cfg.OutputDir, ReportFile), func(w io.Writer) error {
		return report.WriteJSON(w, rep)
	}); err != nil {
		return err
	}

	if err := report.WriteText(out, rep); err != nil {
		return fmt.Errorf("print summary: %w", err)
	}

	if cfg.MQTT.Enabled() {
		publishOnce(cfg.MQTT, baseLogger, rep)
	}

	appLogger.Info("analysis written",
		"output_dir", cfg.OutputDir,
		"charts", len(charts),
		"sections", len(rep.Sections),
	)
	return nil
}

// RunOffsets resolves offsets only and prints them in the override-file format.
func RunOffsets(ctx context.Context, baseLogger *slog.Logger, cfg config.Config, out io.Writer) error {
	pcfg, err := PipelineConfig(cfg)
	if err != nil {
		return err
	}
	explicit, computed, _, err := pipeline.Offsets(ctx, pcfg, baseLogger)
	if err != nil {
		return err
	}
	if err := config.EncodeOffsets(out, align.Entries(explicit, computed)); err != nil {
		return fmt.Errorf("encode offsets: %w", err)
	}
	return nil
}

// RunSplit splits every telegraf dump under root into per-measurement files.
func RunSplit(ctx context.Context, baseLogger *slog.Logger, root string, out io.Writer) error {
	splitter := split.New(baseLogger)
	splitResults, err := splitter.Tree(ctx, root)
	if err != nil {
		return err
	}
	for _, res := range splitResults {
		if _, err := fmt.Fprintf(out, "%s: %d lines, %d skipped, %d outputs\n",
			res.Source, res.Lines, res.Skipped, len(res.Outputs)); err != nil {
			return err
		}
	}
	return nil
}

// RunServe keeps the latest analysis available over HTTP until ctx ends.
func RunServe(ctx context.Context, baseLogger *slog.Logger, cfg config.Config) error {
	appLogger := baseLogger.With("component", "app")

	pcfg, err := PipelineConfig(cfg)
	if err != nil {
		return err
	}

	run := func(runCtx context.Context) (*pipeline.Result, error) {
		return pipeline.Run(runCtx, pcfg, baseLogger)
	}
	resultsManager, err := results.NewManager(run, cfg.RefreshInterval, baseLogger)
	if err != nil {
		return fmt.Errorf("init results manager: %w", err)
	}
	defer func() {
		if err := resultsManager.Close(); err != nil {
			appLogger.Warn("results manager close", "err", err)
		}
	}()

	managerCtx, managerCancel := context.WithCancel(ctx)
	defer managerCancel()

	managerErrCh := make(chan error, 1)
	go func() {
		managerErrCh <- resultsManager.Run(managerCtx)
	}()

	if cfg.MQTT.Enabled() {
		publisher, err := publish.Connect(cfg.MQTT, baseLogger)
		if err != nil {
			appLogger.Warn("mqtt publishing disabled", "err", err)
		} else {
			defer publisher.Close()
			go publisher.Follow(managerCtx, resultsManager)
		}
	}

	srv := httpserver.New(cfg, baseLogger, resultsManager)

	appLogger.Info("starting HTTP server", "listen_addr", cfg.ListenAddr, "data_root", cfg.DataRoot)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	for {
		select {
		case err := <-errCh:
			managerCancel()
			if err != nil {
				return err
			}
			if managerErrCh != nil {
				if managerErr := <-managerErrCh; managerErr != nil && !errors.Is(managerErr, context.Canceled) {
					return managerErr
				}
			}
			return nil
		case err := <-managerErrCh:
			managerErrCh = nil
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
		case <-ctx.Done():
			appLogger.Info("shutdown initiated", "reason", ctx.Err())

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("http shutdown: %w", err)
			}
			if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			managerCancel()
			if managerErrCh != nil {
				if managerErr := <-managerErrCh; managerErr != nil && !errors.Is(managerErr, context.Canceled) {
					return managerErr
				}
			}

			appLogger.Info("shutdown complete")
			return nil
		}
	}
}

// publishOnce pushes rep to the broker. Failures are logged; the local
// outputs are already written.
func publishOnce(cfg config.MQTTConfig, logger *slog.Logger, rep *report.Report) {
	publisher, err := publish.Connect(cfg, logger)
	if err != nil {
		logger.Warn("mqtt connect failed", "broker", cfg.Broker, "err", err)
		return
	}
	defer publisher.Close()
	if err := publisher.Publish(rep); err != nil {
		logger.Warn("mqtt publish failed", "err", err)
	}
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	if err := write(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
