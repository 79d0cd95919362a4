package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"cliply/internal/config"
	"cliply/internal/logging"
	"cliply/internal/manual"
	"cliply/internal/queue"
	"cliply/internal/storage"
)

func newManualCommand(ctx *commandContext) *cobra.Command {
	manualCmd := &cobra.Command{
		Use:   "manual",
		Short: "Apply operator-supplied results to pending tasks",
	}

	manualCmd.AddCommand(newManualSubtitlesCommand(ctx))
	manualCmd.AddCommand(newManualAudioCommand(ctx))

	return manualCmd
}

func newManualSubtitlesCommand(ctx *commandContext) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "subtitles <task-id> <file>",
		Short: "Complete a pending subtitle task with a local document",
		Long: "Completes a pending subtitle_generation task with a document " +
			"produced outside the pipeline. A JSON array of {start, end, text} " +
			"segments is stored structured; any other format is kept verbatim.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			payload, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read subtitle document: %w", err)
			}
			if name == "" {
				name = filepath.Base(args[1])
			}

			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				service := manual.NewService(store, storage.NewFromConfig(cfg), logging.NewNop())
				if err := service.CompleteSubtitles(cmd.Context(), taskID, payload, name); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %d completed with manual subtitles\n", taskID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Stored artifact name (defaults to the file name)")
	return cmd
}

func newManualAudioCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "audio <task-id> [file]",
		Short: "Complete a pending audio task with a local audio file",
		Long: "Completes a pending audio_extraction task. Without a file " +
			"argument the task's own media reference is relocated into the " +
			"audio output location.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			var audioPath string
			if len(args) > 1 {
				audioPath, err = filepath.Abs(args[1])
				if err != nil {
					return fmt.Errorf("resolve audio path: %w", err)
				}
			}

			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				service := manual.NewService(store, storage.NewFromConfig(cfg), logging.NewNop())
				if err := service.CompleteAudio(cmd.Context(), taskID, audioPath); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %d completed with manual audio\n", taskID)
				return nil
			})
		},
	}
}

func parseTaskID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid task id %q", arg)
	}
	return id, nil
}
