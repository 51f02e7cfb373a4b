// Package serve implements the long-running server command: HTTP API plus
// the background job queue.
package serve

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/camvault/camvault/internal/app"
	"github.com/camvault/camvault/internal/conf"
)

// Command returns the serve subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the web server and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.Build(settings)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			return a.RunServer(ctx)
		},
	}
}
