package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/letterflow/letterflow/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration utilities",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		fmt.Printf("configuration OK\n")
		fmt.Printf("  listen:    %s\n", cfg.Server.ListenAddr)
		fmt.Printf("  database:  %s\n", cfg.Database.Path)
		fmt.Printf("  base_url:  %s\n", cfg.BaseURL)
		fmt.Printf("  provider:  %s\n", cfg.Provider.BaseURL)
		if cfg.Shortener.Enabled() {
			fmt.Printf("  shortener: %s\n", cfg.Shortener.BaseURL)
		} else {
			fmt.Printf("  shortener: disabled\n")
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
