package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ridedispatch/internal/config"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "ridedispatch",
	Short:         "Ride-hailing dispatch engine and simulation streamer",
	RunE:          serve,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "optional YAML configuration file")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
