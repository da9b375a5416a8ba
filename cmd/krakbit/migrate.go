package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/krakenlabs/krakbit/config"
	"github.com/krakenlabs/krakbit/internal/archive"
)

func migrateCMD() *cobra.Command {
	var migDir string
	var migDirDefault = "file://migrations"
	var direction string
	var steps int
	var cfgPath string

	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(cfgPath)
			dsn := cfg.Databases.Postgres.DSN()
			if dsn == "" {
				return fmt.Errorf("postgres not configured (databases.postgres)")
			}
			if migDir == "" {
				migDir = migDirDefault
			}
			return archive.Migrate(migDir, dsn, direction, steps)
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", migDirDefault, "migrations source (file://migrations)")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	migrate.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return migrate
}
