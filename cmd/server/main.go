/*
main.go - Application entry point

PURPOSE:
  Command-line interface of the evaluation engine. Serves the HTTP API and
  exposes introspection and one-off calculations from the terminal.

COMMANDS:
  serve       Start the HTTP server with graceful shutdown
  variables   List the variables of a system
  parameter   Resolve a legislation item at an instant
  calculate   Evaluate a batch file (the POST /api/calculate body)

CONFIGURATION:
  --config    YAML file (default: fisc.yaml, missing file means defaults)
  --db        SQLite database path, "" disables persistence
              Use ":memory:" for an in-memory database
  --legislation  Legislation file replacing the embedded one
  --log-level debug, info, warn, error
  Flags override the file; FISC_DB, FISC_PORT and FISC_LOG_LEVEL override
  the file for their keys.

EXAMPLES:
  # Run with file database
  fisc serve --db=./data/fisc.db

  # Run on different port
  fisc serve --port=3000

  # List the variables of a reform stack
  fisc variables --system=ir2007,no_tax_reductions

  # Evaluate a batch
  fisc calculate --file=household.json --system=plfr2014

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Configuration file
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/warp/fisc-engine/catalog"
	"github.com/warp/fisc-engine/config"
	"github.com/warp/fisc-engine/engine"
	"github.com/warp/fisc-engine/reforms"
	"go.uber.org/zap"
)

var (
	configPath      string
	dbPath          string
	legislationPath string
	logLevel        string
)

var rootCmd = &cobra.Command{
	Use:           "fisc",
	Short:         "Tax and benefit evaluation engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "fisc.yaml", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&legislationPath, "legislation", "", "legislation file, JSON or YAML (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(variablesCmd)
	rootCmd.AddCommand(parameterCmd)
	rootCmd.AddCommand(calculateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration file and applies the persistent flags
// the user actually set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Database.Path = dbPath
	}
	if flags.Changed("legislation") {
		cfg.Legislation.Path = legislationPath
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	return cfg, cfg.Validate()
}

// setup loads the configuration, the logger and the reference system.
func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, *engine.System, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := cfg.NewLogger()
	if err != nil {
		return nil, nil, nil, err
	}

	ref, err := referenceSystem(cfg)
	if err != nil {
		logger.Sync()
		return nil, nil, nil, err
	}
	return cfg, logger, ref, nil
}

func referenceSystem(cfg *config.Config) (*engine.System, error) {
	if cfg.Legislation.Path == "" {
		return catalog.NewSystem()
	}
	params, err := catalog.LoadLegislation(cfg.Legislation.Path)
	if err != nil {
		return nil, err
	}
	return catalog.NewSystemWith(params)
}

// resolveSystem builds the reform stack named on the command line.
func resolveSystem(ref *engine.System, stack string) (*engine.System, error) {
	return reforms.Build(ref, reforms.ParseStack(stack, ref.Name())...)
}
