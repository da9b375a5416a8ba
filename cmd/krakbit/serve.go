package main

import (
	"github.com/spf13/cobra"

	"github.com/krakenlabs/krakbit/config"
	srv "github.com/krakenlabs/krakbit/internal/server"
)

func serveCMD() *cobra.Command {
	var cfgPath string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run the digest backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(cfgPath)

			return srv.Run(cfg)
		},
	}
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return serve
}
