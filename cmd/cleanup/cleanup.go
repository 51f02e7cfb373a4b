// Package cleanup implements the one-shot cache expiry sweep command.
package cleanup

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/camvault/camvault/internal/app"
	"github.com/camvault/camvault/internal/conf"
)

// Command returns the cleanup subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired files from the image cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Build(settings)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			result := a.Cache.CleanupExpired()
			stats, err := a.Cache.Stats()
			if err != nil {
				return err
			}

			fmt.Printf("Cache cleanup finished: %d deleted, %d errors, %d files remain (%d bytes)\n",
				result.Deleted, result.Errors, stats.TotalFiles, stats.TotalSize)
			return nil
		},
	}
}
