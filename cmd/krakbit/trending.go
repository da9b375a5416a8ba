package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/krakenlabs/krakbit/config"
	"github.com/krakenlabs/krakbit/internal/query"
)

func trendingCMD() *cobra.Command {
	var cfgPath string
	var trending = &cobra.Command{
		Use:   "trending",
		Short: "Print the current trending feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(cfgPath)
			client := query.NewClient(cfg.Client.ServerURL, cfg.Client.RequestTimeout)

			posts, err := client.Trending(cmd.Context())
			if err != nil {
				return err
			}
			if len(posts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no trending posts")
				return nil
			}
			for _, p := range posts {
				fmt.Fprintf(cmd.OutOrStdout(), "@%s: %s\n", p.AuthorHandle, p.Text)
			}
			return nil
		},
	}
	trending.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return trending
}
