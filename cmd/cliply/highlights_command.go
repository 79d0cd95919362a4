package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cliply/internal/config"
	"cliply/internal/highlight"
	"cliply/internal/logging"
	"cliply/internal/queue"
)

func newHighlightsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "highlights <video-id>",
		Short: "Extract highlight moments from a video's transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				video, err := findVideo(cmd, store, args[0])
				if err != nil {
					return err
				}

				service := highlight.NewService(cfg, store, logging.NewNop())
				highlights, err := service.Extract(cmd.Context(), video.ID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Extracted %d highlights for %s\n", len(highlights), video.Title)
				for _, h := range highlights {
					fmt.Fprintf(out, "  [%.1f-%.1f] %s\n", h.Start, h.End, h.Text)
				}
				return nil
			})
		},
	}
}
