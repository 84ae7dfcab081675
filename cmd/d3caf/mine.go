package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/screa/d3caf/internal/crypto"
	logpkg "github.com/screa/d3caf/internal/logger"
	minerpkg "github.com/screa/d3caf/pkg/miner"
	"github.com/screa/d3caf/pkg/types"
)

func newMineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "Search for a salt bound to --solver that beats a request's best address",
		Long: `Search for a source salt whose solver-bound salt yields a CREATE2 address
at most 1/16 of the current best.

With --request the factory, bytecode hash and current best salt are read from
the auction. Without it, --factory and a bytecode flag describe the target and
--best-salt sets the salt to beat; with neither the miner looks for the lowest
address until interrupted.`,
		Args: cobra.NoArgs,
		RunE: runMiner,
	}
	addMinerFlags(cmd)
	f := cmd.Flags()
	f.String("solver", "", "Address the salt is bound to (required)")
	f.String("best-salt", "", "Salt whose address must be beaten")
	f.String("request", "", "Request id to mine for")
	f.Bool("submit", false, "Submit the salt to --request when found")
	return cmd
}

func runMiner(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if err := cfg.ValidateMiner(); err != nil {
		return err
	}
	logger, err := setupLogging()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	target, err := resolveTarget(cmd, logger)
	if err != nil {
		return err
	}

	logger.Printf("Starting d3caf miner with %d workers...", cfg.Workers)
	logger.Printf("Target: %s", cfg.GetTargetDescription())
	logger.Printf("Factory address: %s", target.Factory.Hex())
	logger.Printf("Bytecode hash: %s", target.BytecodeHash.Hex())
	logger.Printf("Solver: %s", target.Solver.Hex())

	miner := minerpkg.NewMiner(target, minerpkg.Options{
		Workers:     cfg.Workers,
		Verbose:     cfg.Verbose,
		LogInterval: time.Duration(cfg.LogInterval) * time.Second,
	}, logger)
	logger.Printf("Searching for %s", miner.Describe())

	resultChan := make(chan *types.Result, 1)
	go func() {
		resultChan <- miner.Mine(ctx)
	}()

	var result *types.Result
	select {
	case result = <-resultChan:
	case <-ctx.Done():
		logger.Printf("Received interrupt signal after %d attempts. Stopping miners...", miner.Attempts())
		miner.Stop()
		result = <-resultChan
	}

	if result == nil {
		logger.Println("No salt found.")
		return nil
	}
	printResult(logger, result)

	if !result.Match {
		if target.BestSalt != nil {
			logger.Println("Mining stopped before a salt beat the current best.")
		}
		return nil
	}
	if !cfg.Submit {
		return nil
	}

	id, err := crypto.ParseHash(cfg.Request)
	if err != nil {
		return fmt.Errorf("--request: %w", err)
	}
	client, err := newClient()
	if err != nil {
		return err
	}
	// a salt found just before an interrupt is still worth submitting
	submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	accepted, err := client.Submit(submitCtx, id, result.Salt)
	if err != nil {
		return fmt.Errorf("submit salt: %w", err)
	}
	if !accepted {
		logger.Println("Salt was not accepted: a better one was submitted first.")
		return nil
	}
	logger.Printf("Submitted salt %s to request %s", result.Salt.Hex(), id.Hex())
	logger.Printf("Keep the source salt %s to claim the reward after the deadline", result.SourceSalt.Hex())
	return nil
}

func resolveTarget(cmd *cobra.Command, logger *logpkg.Logger) (minerpkg.Target, error) {
	solver, err := cfg.SolverAddress()
	if err != nil {
		return minerpkg.Target{}, fmt.Errorf("--solver: %w", err)
	}
	target := minerpkg.Target{Solver: solver}

	if cfg.Request != "" {
		id, err := crypto.ParseHash(cfg.Request)
		if err != nil {
			return minerpkg.Target{}, fmt.Errorf("--request: %w", err)
		}
		client, err := newClient()
		if err != nil {
			return minerpkg.Target{}, err
		}
		view, err := client.Request(cmd.Context(), id)
		if err != nil {
			return minerpkg.Target{}, fmt.Errorf("fetch request: %w", err)
		}
		best := view.BestSalt
		target.Factory = view.Request.Factory
		target.BytecodeHash = view.Request.BytecodeHash
		target.BestSalt = &best
		logger.Printf("Request %s expires at block %d, best address %s", id.Hex(), view.Request.ExpireAt, view.BestAddress.Hex())
		return target, nil
	}

	if target.Factory, err = cfg.FactoryAddress(); err != nil {
		return minerpkg.Target{}, fmt.Errorf("--factory: %w", err)
	}
	if target.BytecodeHash, err = cfg.GetBytecodeHash(); err != nil {
		return minerpkg.Target{}, err
	}
	if cfg.BestSalt != "" {
		best, err := crypto.ParseHash(cfg.BestSalt)
		if err != nil {
			return minerpkg.Target{}, fmt.Errorf("--best-salt: %w", err)
		}
		target.BestSalt = &best
	}
	return target, nil
}

func printResult(logger *logpkg.Logger, result *types.Result) {
	if result.Match {
		logger.Println("Found match!")
	} else {
		logger.Println("Current best result (lowest address found):")
	}
	logger.Printf("Source salt: %s", result.SourceSalt.Hex())
	logger.Printf("Salt: %s", result.Salt.Hex())
	logger.Printf("Address: %s", result.Address.Hex())
	logger.Printf("Attempts: %d", result.Attempts)
	logger.Printf("Duration: %v", result.Duration)

	rate := 0.0
	if result.Duration.Seconds() > 0 {
		rate = float64(result.Attempts) / result.Duration.Seconds()
	}
	logger.Printf("Rate: %.2f hashes/sec", rate)
}
