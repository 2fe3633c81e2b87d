package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/letterflow/letterflow/internal/config"
	"github.com/letterflow/letterflow/internal/db"
	"github.com/letterflow/letterflow/internal/repository"
)

var cleanupMaxAge time.Duration

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove expired rate limit windows",
	Long: `Removes rate limit counter rows older than the retention period.
Intended to run periodically from cron or a systemd timer.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		database, err := db.New(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer database.Close()

		repo := repository.NewRateLimitRepository(database.DB)
		n, err := repo.DeleteExpired(time.Now().Add(-cleanupMaxAge))
		if err != nil {
			return err
		}

		fmt.Printf("removed %d expired rate limit windows\n", n)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupMaxAge, "max-age", 24*time.Hour, "remove windows older than this")
	rootCmd.AddCommand(cleanupCmd)
}
