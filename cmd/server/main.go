// Command server runs the Rally HTTP API.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rally/internal/bootstrap"
	"rally/internal/config"
	"rally/internal/middleware"
	"rally/internal/server"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{})
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	srv, err := server.NewServerWithDeps(cfg, rt.DB, rt.Redis, rt.Notifier)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	bootstrap.StartExpiryLoop(ctx, srv.Services().Posts, cfg.PostExpiryInterval)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		middleware.Logger.Info("Shutting down server...")
		stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		rt.ShutdownTracing(shutdownCtx)
	}()

	if err := srv.Start(); err != nil {
		log.Fatal(err)
	}
}
