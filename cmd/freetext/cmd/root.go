// Package cmd provides the CLI commands for the freetext engine.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/zooragi/openEQUELLA/internal/config"
	"github.com/zooragi/openEQUELLA/internal/freetext"
	"github.com/zooragi/openEQUELLA/internal/logging"
)

var (
	configPath string
	indexPath  string
	logLevel   string
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "freetext",
		Short: "Near-real-time freetext index engine",
		Long: `freetext maintains a searchable text index with near-real-time
visibility: one writer mutates the index while searches run against
consistent snapshots.

Common usage:
  freetext index docs.yaml
  freetext search "title:alpha"
  freetext stats
  freetext reset`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	cmd.PersistentFlags().StringVarP(&indexPath, "index", "i", "", "Index storage location (overrides config)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newResetCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// loadConfig resolves the effective configuration from file, environment and
// flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if indexPath != "" {
		cfg.Index.Path = indexPath
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// setupLogging installs the default logger. Interactive terminals get a text
// handler on stderr; otherwise logs go to the rotating JSON file.
func setupLogging(cfg *config.Config) func() {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logging.ParseLevel(cfg.Logging.Level),
		})
		slog.SetDefault(slog.New(handler))
		return func() {}
	}

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	if cfg.Logging.FilePath != "" {
		logCfg.FilePath = cfg.Logging.FilePath
	}
	logCfg.WriteToStderr = false
	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		// Fall back to stderr-only logging.
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
		return func() {}
	}
	return cleanup
}

// openEngine builds an engine from the effective configuration.
func openEngine(cfg *config.Config) (*freetext.Engine, error) {
	fields := make([]string, 0, len(cfg.Analyzer.Fields))
	assignments := make(map[string]freetext.Pipeline, len(cfg.Analyzer.Fields))
	for field, pipeline := range cfg.Analyzer.Fields {
		fields = append(fields, field)
		assignments[field] = freetext.Pipeline(pipeline)
	}

	return freetext.Open(freetext.Config{
		Path:          cfg.Index.Path,
		Language:      cfg.Analyzer.Language,
		StopWordsPath: cfg.Analyzer.StopWordsPath,
		Fields:        fields,
		FieldPipeline: func(field string) freetext.Pipeline {
			if p, ok := assignments[field]; ok {
				return p
			}
			return freetext.PipelineNormal
		},
		ReopenTarget:   cfg.Scheduler.ReopenTarget,
		ReopenFloor:    cfg.Scheduler.ReopenFloor,
		CommitInterval: cfg.Scheduler.CommitInterval,
	})
}
