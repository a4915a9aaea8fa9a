package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/yardstick/benchalign/internal/app"
	"github.com/yardstick/benchalign/internal/config"
	"github.com/yardstick/benchalign/internal/version"
)

// cliOptions holds flag values. Only flags the user set override the
// environment.
type cliOptions struct {
	root          string
	out           string
	offsetsFile   string
	listen        string
	format        string
	logLevel      string
	iface         string
	workers       int
	skipMalformed bool
	prometheus    bool

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&cliOptions{})
}

func buildRootCmd(opts *cliOptions) *cobra.Command {
	root := &cobra.Command{
		Use:   "benchalign",
		Short: "Align and summarise game-server benchmark metrics",
		Long: `benchalign reads per-node metric CSVs from a tree of
version_*/farms_*/trial_*/node* directories, removes each cell's warmup
window and reports per-version, per-scale statistics and charts.

Configuration comes from APP_* environment variables; flags override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Current().String(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.resolve(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.root, "root", "", "Data root (env: APP_DATA_ROOT)")
	f.StringVar(&opts.offsetsFile, "offsets-file", "", "YAML offset overrides (env: APP_OFFSETS_FILE)")
	f.StringVar(&opts.logLevel, "log-level", "", "DEBUG, INFO, WARN or ERROR (env: APP_LOG_LEVEL)")
	f.StringVar(&opts.iface, "interface", "", "Network interface to keep (env: APP_NETWORK_INTERFACE)")
	f.IntVar(&opts.workers, "workers", 0, "Concurrent aligned loads (env: APP_LOAD_WORKERS)")
	f.BoolVar(&opts.skipMalformed, "skip-malformed", false, "Skip files that fail to parse (env: APP_SKIP_MALFORMED)")

	root.AddCommand(
		newAnalyzeCmd(opts),
		newOffsetsCmd(opts),
		newServeCmd(opts),
		newSplitCmd(opts),
	)
	return root
}

func newAnalyzeCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one analysis and write charts, summary.txt and report.json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.RunAnalyze(cmd.Context(), opts.logger, opts.cfg, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.out, "out", "", "Output directory (env: APP_OUTPUT_DIR)")
	cmd.Flags().StringVar(&opts.format, "format", "", "Chart format: png, svg or pdf (env: APP_CHART_FORMAT)")
	return cmd
}

func newOffsetsCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "offsets",
		Short: "Print the resolved warmup offsets as an override file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.RunOffsets(cmd.Context(), opts.logger, opts.cfg, cmd.OutOrStdout())
		},
	}
}

func newServeCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the latest analysis over HTTP and WebSocket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.RunServe(cmd.Context(), opts.logger, opts.cfg)
		},
	}
	cmd.Flags().StringVar(&opts.listen, "listen", "", "Listen address (env: APP_LISTEN_ADDR)")
	cmd.Flags().BoolVar(&opts.prometheus, "prometheus", false, "Expose /metrics (env: APP_ENABLE_PROMETHEUS)")
	return cmd
}

func newSplitCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "split",
		Short: "Split telegraf metrics-*.csv dumps into per-measurement files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.RunSplit(cmd.Context(), opts.logger, opts.cfg.DataRoot, cmd.OutOrStdout())
		},
	}
}

// resolve loads the environment configuration, applies changed flags and
// builds the logger.
func (o *cliOptions) resolve(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := o.apply(cmd, &cfg); err != nil {
		return err
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})
	o.cfg = cfg
	o.logger = slog.New(handler)
	return nil
}

func (o *cliOptions) apply(cmd *cobra.Command, cfg *config.Config) error {
	changed := func(name string) bool {
		flag := cmd.Flags().Lookup(name)
		return flag != nil && flag.Changed
	}

	if changed("root") {
		cfg.DataRoot = o.root
	}
	if changed("out") {
		cfg.OutputDir = o.out
	}
	if changed("offsets-file") {
		cfg.OffsetsFile = o.offsetsFile
	}
	if changed("listen") {
		cfg.ListenAddr = o.listen
	}
	if changed("format") {
		cfg.ChartFormat = o.format
	}
	if changed("interface") {
		cfg.NetworkInterface = o.iface
	}
	if changed("skip-malformed") {
		cfg.SkipMalformed = o.skipMalformed
	}
	if changed("prometheus") {
		cfg.EnablePrometheus = o.prometheus
	}
	if changed("workers") {
		if o.workers <= 0 {
			return fmt.Errorf("--workers must be positive")
		}
		cfg.LoadWorkers = o.workers
	}
	if changed("log-level") {
		level, err := config.ParseLogLevel(o.logLevel)
		if err != nil {
			return err
		}
		cfg.LogLevel = level
	}
	return nil
}
