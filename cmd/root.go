package cmd

import (
	"fmt"
	"os"

	"github.com/jmehdipour/retreat-sync/cmd/worker"
	"github.com/jmehdipour/retreat-sync/internal/config"
	"github.com/jmehdipour/retreat-sync/internal/logger"
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	service string
	rootCmd = &cobra.Command{
		Use:   "retreat-sync",
		Short: "Retreat data sync CLI",
	}
)

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&service, "service", "", "service role (core | notification), overrides config")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(outboxCmd)
	rootCmd.AddCommand(worker.NewWorkerCmd())
}

// loadConfig loads the config and initializes the global logger from it.
func loadConfig() (config.Config, error) {
	cfg, err := config.LoadFor(cfgPath, service)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Service.Name)
	return cfg, nil
}
