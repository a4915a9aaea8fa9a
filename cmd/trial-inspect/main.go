package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/yardstick/benchalign/internal/config"
	"github.com/yardstick/benchalign/internal/loader"
	"github.com/yardstick/benchalign/internal/schema"
	"github.com/yardstick/benchalign/internal/trial"
)

type options struct {
	root       string
	kind       string
	rows       bool
	jsonOutput bool
}

type fileReport struct {
	Path     string         `json:"path"`
	Kind     schema.Kind    `json:"kind"`
	Identity trial.Identity `json:"identity"`
	Rows     *int           `json:"rows,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func parseFlags(cfg config.Config) options {
	var opts options
	flag.StringVar(&opts.root, "root", cfg.DataRoot, "Data root to inspect")
	flag.StringVar(&opts.kind, "kind", "", "Limit to one metric kind (cpu, memory, network, tick)")
	flag.BoolVar(&opts.rows, "rows", false, "Parse each file and report its row count")
	flag.BoolVar(&opts.jsonOutput, "json", false, "Emit the listing as JSON")
	flag.Parse()
	return opts
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	opts := parseFlags(cfg)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	kinds := schema.Kinds()
	if opts.kind != "" {
		kind, err := schema.ParseKind(opts.kind)
		if err != nil {
			logger.Error("invalid kind", "err", err)
			os.Exit(2)
		}
		kinds = []schema.Kind{kind}
	}

	ld := loader.New(opts.root, loader.Options{
		Layout:    cfg.Layout,
		Interface: cfg.NetworkInterface,
	}, logger)

	var reports []fileReport
	for _, kind := range kinds {
		files, err := ld.Discover(kind)
		if err != nil {
			logger.Error("discovery failed", "kind", kind, "err", err)
			os.Exit(1)
		}
		for _, f := range files {
			rep := fileReport{Path: f.Path, Kind: f.Kind, Identity: f.Identity}
			if opts.rows {
				rows, err := ld.Read(f)
				if err != nil {
					rep.Error = err.Error()
				} else {
					n := len(rows)
					rep.Rows = &n
				}
			}
			reports = append(reports, rep)
		}
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			logger.Error("encode listing", "err", err)
			os.Exit(1)
		}
		return
	}

	if len(reports) == 0 {
		fmt.Printf("No metric files under %s\n", opts.root)
		return
	}
	fmt.Printf("Metric files under %s:\n", opts.root)
	for _, rep := range reports {
		id := rep.Identity
		fmt.Printf("- [%s] %s (version=%s scale=%s trial=%s node=%s)", rep.Kind, rep.Path, id.Version, id.Scale, id.Trial, id.Node)
		switch {
		case rep.Error != "":
			fmt.Printf(" error: %s", rep.Error)
		case rep.Rows != nil:
			fmt.Printf(" rows=%d", *rep.Rows)
		}
		fmt.Println()
	}
}
