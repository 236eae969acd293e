/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the compliance engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load configuration
  2. Initialize SQLite store
  3. Build the mailer, dispatcher and scanner
  4. Configure HTTP router and pass scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to a config file (optional; env and defaults apply
           without one)

CONFIGURATION:
  All settings come from the config package: file, COMPLIANCE_*
  environment variables, or defaults. See config/config.go.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the pass scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with defaults (console mailer, compliance.db)
  ./server

  # Run against a config file
  ./server -config=./compliance.yaml

  # Override a single setting
  COMPLIANCE_PORT=3000 ./server

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Background passes
  - config/config.go: Configuration keys
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/compliance-engine/api"
	"github.com/warp/compliance-engine/config"
	"github.com/warp/compliance-engine/notify"
	"github.com/warp/compliance-engine/recompletion"
	"github.com/warp/compliance-engine/scanner"
	"github.com/warp/compliance-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	location, err := cfg.Location()
	if err != nil {
		log.Fatalf("Invalid timezone: %v", err)
	}

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Delivery
	from := notify.Address{Name: cfg.FromName, Email: cfg.FromEmail}
	var mailer notify.Mailer
	switch cfg.EmailBackend {
	case "sendgrid":
		mailer = &notify.SendgridMailer{Key: cfg.SendgridKey, From: from}
	default:
		mailer = &notify.ConsoleMailer{From: from, Logger: log.Default()}
	}
	dispatcher := &notify.Dispatcher{
		Mailer:     mailer,
		Events:     recompletion.DiscardEvents{},
		BaseURL:    cfg.BaseURL,
		ThirdParty: notify.Address{Name: cfg.ThirdPartyName, Email: cfg.ThirdPartyEmail},
		Logger:     log.Default(),
	}

	// Passes
	sc := scanner.New(store, dispatcher, recompletion.DiscardEvents{}, scanner.Options{
		NotifyHour: cfg.NotifyHour,
		BulkDay1:   cfg.BulkDay1,
		BulkDay2:   cfg.BulkDay2,
		Retention:  cfg.Retention(),
		Location:   location,
	}, log.Default())

	scheduler := api.NewPassScheduler(sc)
	scheduler.CheckInterval = cfg.CheckInterval
	scheduler.DailyInterval = cfg.DailyInterval
	scheduler.Start()
	defer scheduler.Stop()

	// HTTP surface
	handler := api.NewHandler(store, sc, recompletion.DiscardEvents{})
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Compliance engine listening on http://localhost:%d", cfg.Port)
		log.Printf("API available at http://localhost:%d/api", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
