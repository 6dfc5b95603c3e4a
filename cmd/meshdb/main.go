package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/japaniel/meshdb/pkg/config"
	"github.com/japaniel/meshdb/pkg/logging"
	"github.com/japaniel/meshdb/pkg/mesh"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	dbPath     string
	dataDir    string
	year       string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "meshdb",
		Short:         "Load and query the MeSH vocabulary",
		Long:          "meshdb downloads the NLM MeSH XML dumps, loads them into SQLite and serves lookups, normalization and namespace exports.",
		Version:       mesh.Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "meshdb.yaml", "Path to YAML config file")
	pf.StringVar(&a.dbPath, "db", "", "Path to SQLite database (overrides config)")
	pf.StringVar(&a.dataDir, "data-dir", "", "Directory for archives and caches (overrides config)")
	pf.StringVar(&a.year, "year", "", "MeSH release year (overrides config)")
	pf.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		newPopulateCmd(a),
		newDownloadCmd(a),
		newStatusCmd(a),
		newSearchCmd(a),
		newLookupCmd(a),
		newExportCmd(a),
		newNormalizeCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dataDir != "" {
		cfg.DataDir = a.dataDir
	}
	if a.year != "" {
		cfg.Year = a.year
	}
	if a.dbPath != "" {
		cfg.Database.Path = a.dbPath
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
