package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"ridedispatch/internal/logger"
	"ridedispatch/internal/runner"
)

var createOpts struct {
	vehicles  int
	customers int
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a random scenario through the backend",
	RunE:  create,
}

func init() {
	createCmd.Flags().IntVar(&createOpts.vehicles, "vehicles", 5, "number of vehicles")
	createCmd.Flags().IntVar(&createOpts.customers, "customers", 10, "number of customers")
	rootCmd.AddCommand(createCmd)
}

func create(cmd *cobra.Command, args []string) error {
	if createOpts.vehicles < 1 || createOpts.customers < 1 {
		return fmt.Errorf("vehicles and customers must be at least 1")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	backend, err := runner.NewBackend(cfg.Backend.BaseURL, runner.Options{
		Timeout:    cfg.Backend.Timeout,
		MaxRetries: cfg.Backend.MaxRetries,
		Log:        logger.New("backend"),
	})
	if err != nil {
		return err
	}
	sc, err := backend.CreateScenario(cmd.Context(), createOpts.vehicles, createOpts.customers)
	if err != nil {
		return fmt.Errorf("create scenario: %w", err)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(sc)
}
