package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cliply/internal/clips"
	"cliply/internal/config"
	"cliply/internal/logging"
	"cliply/internal/queue"
	"cliply/internal/storage"
)

func newClipCommand(ctx *commandContext) *cobra.Command {
	var start float64
	var end float64
	var text string
	var renderAll bool

	cmd := &cobra.Command{
		Use:   "clip <video-id>",
		Short: "Render clips from a video",
		Long: "Cuts a watermarked clip from the source video. With --all, " +
			"renders every stored highlight; otherwise --start and --end " +
			"select the range.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				video, err := findVideo(cmd, store, args[0])
				if err != nil {
					return err
				}

				service := clips.NewService(cfg, store, storage.NewFromConfig(cfg), logging.NewNop())
				out := cmd.OutOrStdout()

				if renderAll {
					rendered, err := service.RenderAll(cmd.Context(), video.ID)
					if err != nil {
						return err
					}
					for _, clip := range rendered {
						fmt.Fprintf(out, "Rendered %s [%.1f-%.1f] %s\n",
							clip.URL, clip.Start, clip.End, formatBytes(clip.FileSize))
					}
					return nil
				}

				if end <= start {
					return fmt.Errorf("--end must be greater than --start")
				}
				clip, err := service.Render(cmd.Context(), video.ID, queue.Highlight{
					Start: start,
					End:   end,
					Text:  text,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Rendered %s [%.1f-%.1f] %dx%d %s\n",
					clip.URL, clip.Start, clip.End, clip.Width, clip.Height, formatBytes(clip.FileSize))
				return nil
			})
		},
	}

	cmd.Flags().Float64Var(&start, "start", 0, "Clip start in seconds")
	cmd.Flags().Float64Var(&end, "end", 0, "Clip end in seconds")
	cmd.Flags().StringVar(&text, "text", "", "Watermark text (defaults to the video title)")
	cmd.Flags().BoolVar(&renderAll, "all", false, "Render every stored highlight")
	return cmd
}
