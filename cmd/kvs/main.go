// Package main is the entry point for the local kvs store CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aiifabbf/kvs/internal/cli"
	"github.com/aiifabbf/kvs/internal/config"
)

func main() {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})
	slog.SetDefault(slog.New(handler))

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("main: failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := cli.NewLocalCommand(cfg).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
