package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rguptar/motion/internal/config"
	"github.com/rguptar/motion/internal/events/nats"
	"github.com/rguptar/motion/internal/logging"
	"github.com/rguptar/motion/internal/storage"
	storagememory "github.com/rguptar/motion/internal/storage/memory"
	storagemongo "github.com/rguptar/motion/internal/storage/mongo"
	"github.com/rguptar/motion/internal/store"
)

func main() {
	configPath := flag.String("config", "config/config.yml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if err := logging.Initialize(cfg.Logging); err != nil {
		log.Fatalf("Logging error: %v", err)
	}
	defer logging.Shutdown()

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	backend, err := openBackend(initCtx, cfg)
	if err != nil {
		slog.Error("Failed to open storage backend", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}

	var opts []store.Option
	if cfg.Events.Publisher == "nats" {
		publisher, err := nats.NewPublisher(nats.Options{
			URL:           cfg.Events.Nats.URL,
			SubjectPrefix: cfg.Events.Nats.SubjectPrefix,
			Name:          "motion",
		})
		if err != nil {
			slog.Error("Failed to connect to NATS", "url", cfg.Events.Nats.URL, "error", err)
			os.Exit(1)
		}
		opts = append(opts, store.WithExternalPublisher(publisher))
	}

	st := store.New(backend, opts...)
	for _, ns := range cfg.Namespaces {
		if err := st.AddNamespace(initCtx, ns.Name, ns.Schema); err != nil {
			slog.Error("Failed to create namespace", "namespace", ns.Name, "error", err)
			os.Exit(1)
		}
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	if err := st.Start(bgCtx); err != nil {
		slog.Error("Failed to start store", "error", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	bgCancel()
	if err := st.Close(shutdownCtx); err != nil {
		slog.Error("Shutdown error", "error", err)
	}
	slog.Info("Stopped")
}

func openBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case "mongo":
		return storagemongo.NewBackend(ctx, cfg.Storage.Mongo.URI, cfg.Storage.Mongo.Database)
	default:
		return storagememory.NewBackend(), nil
	}
}
