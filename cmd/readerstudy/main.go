package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"readerstudy/internal/config"
	"readerstudy/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	store      string
}

func main() {
	_ = godotenv.Load(".env")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "readerstudy:", err)
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "readerstudy",
		Short: "Reader-study data import",
		Long: `readerstudy loads a diagnosis taxonomy and AI-scored cases into the reader-study store.

Imports are idempotent: rerunning with the same sources creates nothing and reports every row
as skipped. Per-row problems are collected as warnings; only unreadable sources, bad headers
and an unreachable store fail the command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (yaml, toml or json)")
	root.PersistentFlags().StringVar(&flags.store, "store", "", "store driver override: postgres, sqlite or memory")
	root.AddCommand(newImportCommand(flags), newMigrateCommand(flags))
	return root
}

func (f *rootFlags) load() (config.Config, *logger.Logger, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	if f.store != "" {
		cfg.StoreDriver = f.store
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}
