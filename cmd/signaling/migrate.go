package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mossy-p/reception-signaling/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the call history schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		if err := store.Close(db); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "migrated %s database\n", cfg.Database.Driver)
		return nil
	},
}
