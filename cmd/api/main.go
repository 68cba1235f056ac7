package main

import (
	"context"
	"net/http"
	"time"

	"readerstudy/internal/api"
	"readerstudy/internal/config"
	"readerstudy/internal/logger"
	"readerstudy/internal/storage"

	"github.com/joho/godotenv"
	tclient "go.temporal.io/sdk/client"
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

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Fatal("open store", "driver", cfg.StoreDriver, "error", err)
	}
	defer store.Close()

	tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		log.Fatal("dial temporal", "address", cfg.TemporalAddress, "error", err)
	}
	defer tc.Close()

	h := api.NewServer(cfg, store, tc, log)
	log.Info("readerstudy api listening", "addr", cfg.APIAddr, "queue", cfg.TemporalTaskQueue)
	if err := http.ListenAndServe(cfg.APIAddr, h.Routes()); err != nil {
		log.Fatal("api stopped", "error", err)
	}
}
