package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/capture-engine/api"
)

var servePort int

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP server port (overrides CAPTURE_PORT)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the job scheduler",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	port := a.cfg.Port
	if servePort > 0 {
		port = servePort
	}

	// An explicit rules file replaces the stored documents on every start.
	if a.cfg.RulesFile != "" {
		f, err := a.rulesFile()
		if err != nil {
			return err
		}
		if err := a.handler.SeedRules(cmd.Context(), f); err != nil {
			return fmt.Errorf("failed to apply rules file: %w", err)
		}
		log.Printf("Loaded rules from %s", a.cfg.RulesFile)
	}

	if a.cfg.SchedulerEnabled {
		loc, _ := a.cfg.Location()
		sched, err := api.NewScheduler(a.handler.Jobs, api.SpecsFromConfig(a.cfg.Cron), loc)
		if err != nil {
			return err
		}
		a.handler.Scheduler = sched
		sched.Start()
		defer sched.Stop()
	} else {
		log.Println("[Scheduler] Disabled, not starting")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      api.NewRouter(a.handler, a.cfg.CORSOrigins...),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🚀 Server starting on http://localhost:%d", port)
		log.Printf("📊 API available at http://localhost:%d/api", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("Server stopped")
	return nil
}
