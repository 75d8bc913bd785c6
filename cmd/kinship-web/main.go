// Command kinship-web serves the relationship API over HTTP.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scrypster/kinship/internal/config"
	"github.com/scrypster/kinship/internal/engine"
	"github.com/scrypster/kinship/internal/server"
	"github.com/scrypster/kinship/internal/session"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (default: $KINSHIP_CONFIG_FILE)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	s, err := session.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to open archive: %v", err)
	}
	defer s.Close()

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, err := startServer(ctx, cfg, s.Service)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("Kinship API running at http://%s", addr)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	cancel()
	time.Sleep(1 * time.Second) // Give time for connections to close
}

// startServer wraps server.Start for testability.
func startServer(ctx context.Context, cfg *config.Config, svc *engine.Service) (string, error) {
	addr, _, err := server.Start(ctx, cfg, svc)
	return addr, err
}
