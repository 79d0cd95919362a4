// Command cliplyd runs the clip pipeline daemon: it claims queued tasks,
// dispatches them to the registered handlers, and reclaims stale claims
// left behind by crashed workers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"cliply/internal/config"
	"cliply/internal/daemon"
)

func main() {
	var (
		configPath   = flag.String("config", "", "configuration file path")
		logLevel     = flag.String("log-level", "", "log level override (debug, info, warn, error)")
		batchSize    = flag.Int("batch-size", 0, "max tasks claimed per poll cycle (overrides config)")
		pollInterval = flag.Int("poll-interval", 0, "seconds between empty-queue polls (overrides config)")
	)
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cliplyd: %v\n", err)
		os.Exit(1)
	}
	if *batchSize > 0 {
		cfg.Workflow.BatchSize = *batchSize
	}
	if *pollInterval > 0 {
		cfg.Workflow.QueuePollInterval = *pollInterval
	}

	if err := daemon.Run(context.Background(), cfg, daemon.Options{LogLevel: *logLevel}); err != nil {
		fmt.Fprintf(os.Stderr, "cliplyd: %v\n", err)
		os.Exit(1)
	}
}
