package main

import (
	"log/slog"
	"os"

	"github.com/camvault/camvault/cmd"
	"github.com/camvault/camvault/internal/conf"
	"github.com/camvault/camvault/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	settings, err := conf.Load()
	if err != nil {
		logging.Init()
		logging.Fatal("Error loading configuration", "error", err)
	}
	settings.Version = version

	if settings.Debug {
		logging.InitWithLevel(slog.LevelDebug)
	} else {
		logging.Init()
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
