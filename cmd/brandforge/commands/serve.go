package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/brandforge/brandforge/config"
	"github.com/brandforge/brandforge/db"
	"github.com/brandforge/brandforge/engine"
	"github.com/brandforge/brandforge/errors"
	"github.com/brandforge/brandforge/generation"
	"github.com/brandforge/brandforge/logger"
	"github.com/brandforge/brandforge/server"
	"github.com/brandforge/brandforge/workflows"
)

// ServeCmd starts the job engine and HTTP API
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the BrandForge job engine and HTTP API",
	Long: `Start the asynchronous generation job engine: accepts job submissions over
HTTP, runs them against the configured generation backend, and serves progress
snapshots and WebSocket updates while they run.`,
	RunE: runServe,
}

var servePort int

func init() {
	ServeCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log := logger.Logger

	database, err := db.Open(cfg.Database.Path, log)
	if err != nil {
		return errors.Wrap(err, "failed to open database")
	}
	defer database.Close()

	if err := db.Migrate(database, log); err != nil {
		return errors.Wrap(err, "failed to migrate database")
	}

	// Engine wiring. The dispatcher's parent context outlives any single HTTP
	// request; cancelling it on shutdown fails jobs that never got a slot
	// instead of stranding them in pending.
	engineCtx, cancelEngine := context.WithCancel(context.Background())
	defer cancelEngine()

	store := engine.NewStore(database)
	runner := engine.NewRunner(store, cfg.Engine.ItemConcurrency, log)
	dispatcher := engine.NewDispatcher(engineCtx, store, runner, cfg.Engine.MaxInFlightJobs, log)
	reporter := engine.NewReporter(store, cfg.Progress.ExpectedSeconds, log)

	backend := generation.NewHTTPBackend(cfg.Generation, log)
	adapter := generation.NewAdapter(backend, generation.ConfigFrom(cfg.Generation), log)
	sink := workflows.NewFSArtifactSink(cfg.Artifacts.Dir)

	registry := engine.NewWorkflowRegistry()
	workflows.RegisterAll(registry, adapter, sink)

	port := servePort
	if port == 0 {
		port = config.DefaultServerPort
		if cfg.Server.Port != nil {
			port = *cfg.Server.Port
		}
	}

	srv := server.New(store, dispatcher, reporter, registry, port, log)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	log.Infow("BrandForge engine started",
		"port", port,
		"database", cfg.Database.Path,
		"kinds", registry.Kinds(),
		"max_in_flight_jobs", cfg.Engine.MaxInFlightJobs,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		log.Infow("Shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("Server shutdown error", "error", err)
	}

	// Let in-flight jobs finish; after the grace period, cancelling the engine
	// context finalizes anything still waiting for a slot.
	if !dispatcher.Drain(30 * time.Second) {
		log.Warnw("Jobs still running at shutdown deadline")
	}
	cancelEngine()
	dispatcher.Drain(5 * time.Second)

	return nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}
