// Command api runs the Guardian HTTP API on its own, configured from the
// environment and .env.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"guardian/internal/app"
	"guardian/internal/config"
	"guardian/internal/logger"
)

func main() {
	port := flag.String("port", "", "server port (defaults to $PORT or :8000)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if p := strings.TrimSpace(*port); p != "" {
		if !strings.HasPrefix(p, ":") {
			p = ":" + p
		}
		cfg.Port = p
	}
	lg := logger.New(cfg.Log, "guardian-api")

	a, err := app.New(context.Background(), cfg, lg)
	if err != nil {
		log.Fatalf("Failed to initialize app: %v", err)
	}
	defer a.Close()
	srv := a.Server()

	go func() {
		if err := srv.Start(); err != nil {
			lg.Error("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	lg.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		lg.Error("server forced to shutdown", "error", err)
		return
	}
	lg.Info("server exiting")
}
