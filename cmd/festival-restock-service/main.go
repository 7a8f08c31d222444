// Package main boots the festival restock service and its admin commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/festival-restock-service/internal/config"
	"github.com/fairyhunter13/festival-restock-service/internal/obs"
)

var (
	configFile string
	addr       string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "festival-restock-service",
	Short: "Festival demand predictions and restock request tracking",
	Long: `festival-restock-service serves festival demand predictions and keeps
restock requests in a JSON file shared with the inventory server.

Run without a subcommand to start the HTTP server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			if err := os.Setenv("CONFIG_FILE", configFile); err != nil {
				return err
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		obs.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// loadConfig applies command-line overrides on top of config.Load.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if addr != "" {
		cfg.HTTPAddr = addr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if err := obs.InitLogger(cfg.LogLevel); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(requestsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
