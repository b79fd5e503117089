package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ridelens/trickline/internal/config"
	"github.com/ridelens/trickline/internal/storage"
)

// commandContext carries the flags and lazily-built dependencies shared by
// all subcommands.
type commandContext struct {
	configFlag *string
	dbFlag     *string
}

func (c *commandContext) tuning() (*config.TuningConfig, error) {
	if *c.configFlag == "" {
		return config.EmptyTuningConfig(), nil
	}
	cfg, err := config.LoadTuningConfig(*c.configFlag)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", *c.configFlag, err)
	}
	return cfg, nil
}

func (c *commandContext) openStore() (*storage.Store, error) {
	store, err := storage.Open(*c.dbFlag)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", *c.dbFlag, err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate database %s: %w", *c.dbFlag, err)
	}
	return store, nil
}

func newRootCommand() *cobra.Command {
	var configFlag string
	var dbFlag string

	ctx := &commandContext{configFlag: &configFlag, dbFlag: &dbFlag}

	rootCmd := &cobra.Command{
		Use:           "trickline",
		Short:         "Body pose processing pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Tuning configuration file path")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "trickline.db", "SQLite database path")

	rootCmd.AddCommand(newProcessCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newShowMappingCommand(ctx))

	return rootCmd
}
