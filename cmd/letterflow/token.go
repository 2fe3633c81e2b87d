package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var tokenCmd = &cobra.Command{
	Use:   "token <value>",
	Short: "Generate a bcrypt hash for the admin API token",
	Long: `Hashes the given token value for use as auth.admin_token_hash in the
configuration file. The plain token is what API clients send as the
bearer token.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash token: %w", err)
		}
		fmt.Println(string(hash))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
