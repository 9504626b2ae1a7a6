/*
main.go - Application entry point

PURPOSE:
  Command-line entry for the capture engine. Wires configuration, the
  SQLite store and every engine component, then runs one of the
  subcommands below.

COMMANDS:
  serve             HTTP API plus the cron scheduler (graceful shutdown)
  run <job>         Run one job to completion and print its Result
  seed              Write rule documents and the reward catalog
  jobs              List job names

CONFIGURATION:
  Environment variables (CAPTURE_*), optionally from a .env file.
  See config/config.go for the full list. --db overrides CAPTURE_DB.

EXAMPLES:
  # Serve with a file database
  capture serve --db=./data/capture.db

  # Seed defaults and load a demo scenario
  capture seed --scenario=starter-town

  # Replay decay as of a fixed instant
  capture run apply-decay --now=2026-03-01T00:05:00Z

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Cron wiring
  - jobs/registry.go: Job definitions
*/
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/warp/capture-engine/api"
	"github.com/warp/capture-engine/config"
	"github.com/warp/capture-engine/rules"
	"github.com/warp/capture-engine/store/sqlite"
)

var dbPath string

var rootCmd = &cobra.Command{
	Use:   "capture",
	Short: "Territory capture engine",
	Long: `Challenge, reward and progression engine for a location-based
territory capture game.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides CAPTURE_DB, \":memory:\" for in-memory)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app is the wired process: config, store and handler.
type app struct {
	cfg     config.Config
	store   *sqlite.Store
	handler *api.Handler
}

func openApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	handler := api.NewHandler(store, api.Options{
		Location:       loc,
		PageSize:       cfg.PageSize,
		Seed:           cfg.Seed,
		SessionRetries: cfg.SessionRetries,
	})
	return &app{cfg: cfg, store: store, handler: handler}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		log.Printf("Failed to close database: %v", err)
	}
}

// rulesFile loads CAPTURE_RULES_FILE, or the embedded defaults when unset.
func (a *app) rulesFile() (*rules.File, error) {
	if a.cfg.RulesFile == "" {
		return rules.Defaults()
	}
	data, err := os.ReadFile(a.cfg.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	f, err := rules.ParseTOML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.cfg.RulesFile, err)
	}
	return f, nil
}
