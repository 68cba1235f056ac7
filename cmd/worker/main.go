package main

import (
	"context"
	"time"

	"readerstudy/internal/activities"
	"readerstudy/internal/config"
	"readerstudy/internal/logger"
	"readerstudy/internal/storage"
	"readerstudy/internal/workflows"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

func main() {
	_ = godotenv.Load(".env")
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Fatal("dial temporal", "address", cfg.TemporalAddress, "error", err)
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Fatal("open store", "driver", cfg.StoreDriver, "error", err)
	}
	defer store.Close()
	roles, err := config.LoadRoles(cfg.RolesFile)
	if err != nil {
		log.Fatal("load roles", "error", err)
	}

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	workflows.Register(w)
	activities.Register(w, activities.New(cfg, store, log, roles))

	log.Info("readerstudy worker listening", "temporal", cfg.TemporalAddress, "queue", cfg.TemporalTaskQueue, "driver", cfg.StoreDriver)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatal("worker stopped", "error", err)
	}
}
