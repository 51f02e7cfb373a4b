// Package populate implements the one-shot bulk default-image population
// command.
package populate

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/camvault/camvault/internal/app"
	"github.com/camvault/camvault/internal/conf"
)

// Command returns the populate subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "populate",
		Short: "Fetch default images for every camera model lacking one",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.Build(settings)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			job, err := a.PopulateOnce(ctx, limit)
			if err != nil {
				return err
			}

			if result, ok := job.Result.(map[string]any); ok {
				fmt.Printf("Population run finished: %d targets, %d stored, %d skipped, %d failed\n",
					result["targets"], result["stored"], result["skipped"], result["failed"])
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of models to process, 0 for no cap")
	return cmd
}
