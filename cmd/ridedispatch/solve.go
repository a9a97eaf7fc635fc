package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ridedispatch/internal/model"
	"ridedispatch/internal/opt"
)

var solveOpts struct {
	iterations  int
	seed        int64
	localSearch bool
	timeout     time.Duration
}

var solveCmd = &cobra.Command{
	Use:   "solve <scenario.json|->",
	Short: "Plan a scenario snapshot offline with ALNS and print the plan",
	Args:  cobra.ExactArgs(1),
	RunE:  solve,
}

func init() {
	f := solveCmd.Flags()
	f.IntVarP(&solveOpts.iterations, "iterations", "n", 0, "ALNS iterations (0 uses the configured value)")
	f.Int64Var(&solveOpts.seed, "seed", 0, "RNG seed (0 uses the configured value, then the clock)")
	f.BoolVar(&solveOpts.localSearch, "local-search", false, "2-opt every candidate route")
	f.DurationVar(&solveOpts.timeout, "timeout", time.Minute, "abort the search after this long")
	rootCmd.AddCommand(solveCmd)
}

type solveOutput struct {
	ScenarioID string      `json:"scenarioId"`
	Vehicles   int         `json:"vehicles"`
	Customers  int         `json:"customers"`
	Plan       opt.Plan    `json:"plan"`
	Metrics    opt.Metrics `json:"metrics"`
}

func solve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	sc, err := readScenario(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	p := opt.Params{
		Iterations:      cfg.ALNS.Iterations,
		RemovalFraction: cfg.ALNS.RemovalFraction,
		InitialTemp:     cfg.ALNS.InitialTemp,
		Cooling:         cfg.ALNS.Cooling,
		LocalSearch:     cfg.ALNS.LocalSearch || solveOpts.localSearch,
	}
	if solveOpts.iterations > 0 {
		p.Iterations = solveOpts.iterations
	}
	seed := cfg.ALNS.Seed
	if solveOpts.seed != 0 {
		seed = solveOpts.seed
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	served := sc.ServedCustomerIDs()
	var pending []model.Customer
	for _, c := range sc.AwaitingCustomers() {
		if _, ok := served[c.ID]; !ok {
			pending = append(pending, c)
		}
	}
	vehicles := sc.AvailableVehicles()

	ctx, cancel := context.WithTimeout(cmd.Context(), solveOpts.timeout)
	defer cancel()
	res, err := opt.Solve(ctx, vehicles, pending, p, rand.New(rand.NewSource(seed)))
	if err != nil {
		return fmt.Errorf("solve %s: %w", sc.ID, err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(solveOutput{
		ScenarioID: sc.ID,
		Vehicles:   len(vehicles),
		Customers:  len(pending),
		Plan:       res.Plan,
		Metrics:    res.Metrics,
	})
}

func readScenario(stdin io.Reader, path string) (model.Scenario, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return model.Scenario{}, fmt.Errorf("open scenario: %w", err)
		}
		defer f.Close()
		r = f
	}
	var sc model.Scenario
	if err := json.NewDecoder(r).Decode(&sc); err != nil {
		return model.Scenario{}, fmt.Errorf("decode scenario: %w", err)
	}
	return sc, nil
}
