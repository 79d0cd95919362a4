package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cliply/internal/config"
	"cliply/internal/preflight"
	"cliply/internal/queue"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check directories, tools, and collaborator endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			failed := 0
			for _, result := range preflight.RunAll(cmd.Context(), cfg) {
				fmt.Fprintln(out, renderCheckLine(result.Name, result.Passed, result.Detail, colorize))
				if !result.Passed {
					failed++
				}
			}

			queueErr := ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				return store.Health(cmd.Context())
			})
			if queueErr != nil {
				fmt.Fprintln(out, renderCheckLine("Queue database", false, queueErr.Error(), colorize))
				failed++
			} else {
				fmt.Fprintln(out, renderCheckLine("Queue database", true, "reachable", colorize))
			}

			if failed > 0 {
				return fmt.Errorf("%d health checks failed", failed)
			}
			fmt.Fprintln(out, "All checks passed")
			return nil
		},
	}
}
