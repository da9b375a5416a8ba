package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/krakenlabs/krakbit/config"
	"github.com/krakenlabs/krakbit/internal/comms"
	"github.com/krakenlabs/krakbit/internal/query"
	"github.com/krakenlabs/krakbit/internal/session"
)

func generateCMD() *cobra.Command {
	var cfgPath string
	var queryText string
	var timeout time.Duration
	var generate = &cobra.Command{
		Use:   "generate",
		Short: "Stream a digest generation to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(cfgPath)
			logger := log.New(os.Stderr, "[CLI] ", log.LstdFlags)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			conn := comms.NewManager(cfg.Client.WebSocketURL(), logger)
			if err := conn.Connect(ctx); err != nil {
				return fmt.Errorf("connect %s: %w", cfg.Client.WebSocketURL(), err)
			}
			defer conn.Close()

			single := query.NewClient(cfg.Client.ServerURL, cfg.Client.RequestTimeout)
			ctrl := session.NewController(conn, single, logger)
			if err := cfg.Carousel.Validate(); err != nil {
				return err
			}
			ctrl.SetWindowSize(cfg.Carousel.WindowSize)
			go ctrl.Run(ctx)

			var err error
			if queryText != "" {
				err = ctrl.GenerateFromQuery(ctx, queryText)
			} else {
				err = ctrl.GenerateDailyDigest(ctx)
			}
			if err != nil {
				return err
			}

			view, err := watchGeneration(ctx, ctrl, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			renderWindow(cmd.OutOrStdout(), view)
			return nil
		},
	}
	generate.Flags().StringVarP(&queryText, "query", "q", "", "focus the generation on a query (empty = daily digest)")
	generate.Flags().DurationVar(&timeout, "timeout", 3*time.Minute, "give up after this long")
	generate.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return generate
}

// watchGeneration polls the session until the stream settles, echoing status
// transitions and newly arrived items as they land.
func watchGeneration(ctx context.Context, ctrl *session.Controller, out io.Writer) (session.View, error) {
	var lastStatus string
	var seen int
	var settled time.Time

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return session.View{}, ctx.Err()
		case <-ticker.C:
		}
		view, err := ctrl.View(ctx)
		if err != nil {
			return session.View{}, err
		}
		if view.Status == session.StatusError {
			return view, fmt.Errorf("generation failed (%s): %s", view.Error, view.StatusMessage)
		}
		if view.StatusMessage != lastStatus && view.StatusMessage != "" {
			fmt.Fprintf(out, "... %s\n", view.StatusMessage)
			lastStatus = view.StatusMessage
		}
		if len(view.Items) > seen {
			for ; seen < len(view.Items); seen++ {
				item := view.Items[seen]
				fmt.Fprintf(out, "[%d] %s\n", seen+1, item.Headline)
			}
			settled = time.Now()
		}
		// no new items for a while means the stream is done
		if view.Status == session.StatusStreaming && !settled.IsZero() && time.Since(settled) > 2*time.Second {
			return view, nil
		}
	}
}

// renderWindow prints the carousel's visible slice with the selection marked,
// the way the reader sees it.
func renderWindow(out io.Writer, view session.View) {
	if len(view.Items) == 0 {
		fmt.Fprintln(out, "no items")
		return
	}
	end := view.WindowStart + view.WindowSize
	if end > len(view.Items) {
		end = len(view.Items)
	}
	fmt.Fprintln(out)
	for i := view.WindowStart; i < end; i++ {
		marker := "  "
		if i == view.Selected {
			marker = "> "
		}
		fmt.Fprintf(out, "%s%s\n", marker, view.Items[i].Headline)
	}
}
