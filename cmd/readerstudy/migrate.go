package main

import (
	"fmt"

	"readerstudy/internal/storage"

	"github.com/spf13/cobra"
)

func newMigrateCommand(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the reader-study schema if it does not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := root.load()
			if err != nil {
				return err
			}
			defer log.Sync()

			store, err := storage.Open(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("migrate %s store: %w", cfg.StoreDriver, err)
			}
			defer store.Close()
			log.Info("schema ready", "driver", cfg.StoreDriver)
			return nil
		},
	}
}
