package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/krakenlabs/krakbit/config"
	"github.com/krakenlabs/krakbit/internal/query"
)

func askCMD() *cobra.Command {
	var cfgPath string
	var content string
	var ask = &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a follow-up question against digest content",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(cfgPath)
			client := query.NewClient(cfg.Client.ServerURL, cfg.Client.RequestTimeout)

			answer, err := client.AskQuestion(cmd.Context(), strings.Join(args, " "), content)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		},
	}
	ask.Flags().StringVar(&content, "content", "", "digest content to answer against")
	ask.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return ask
}
