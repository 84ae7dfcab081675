package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/screa/d3caf/internal/api"
	"github.com/screa/d3caf/internal/config"
	logpkg "github.com/screa/d3caf/internal/logger"
)

var (
	cfg        = config.NewConfig()
	configFile string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "d3caf",
		Short: "Decentralized CREATE2 address auction",
		Long: `d3caf runs a reward-escrowing auction for vanity CREATE2 salts and the
miner that competes in it. Requesters escrow a reward for a lower deployment
address; solvers submit salts that beat the current best by a factor of 16 and
claim the reward once the deadline passes.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return fmt.Errorf("bind flags: %w", err)
			}
			loaded, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			cfg = loaded
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Config file (yaml, json or toml)")
	pf.BoolP("verbose", "v", false, "Verbose output")
	pf.StringP("log-file", "l", "", "Log file (default: stdout)")
	pf.String("api", cfg.API, "Auction API base URL")
	pf.String("from", "", "Caller address sent with client requests (default: --solver)")

	rootCmd.AddCommand(
		newServeCmd(),
		newMineCmd(),
		newRegisterCmd(),
		newClaimCmd(),
		newWithdrawCmd(),
		newFaucetCmd(),
		newAdminCmd(),
		newSaltCmd(),
		newAddressCmd(),
	)
	return rootCmd
}

func setupLogging() (*logpkg.Logger, error) {
	if cfg.LogFile == "" {
		return logpkg.NewWriter(os.Stdout, cfg.Verbose), nil
	}
	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return logpkg.NewWriter(file, cfg.Verbose), nil
}

// newClient returns an API client acting as --from, or --solver when --from is unset
func newClient() (*api.Client, error) {
	from, err := cfg.FromAddress()
	if err != nil {
		return nil, fmt.Errorf("--from: %w", err)
	}
	return api.NewClient(cfg.API, from), nil
}

func addMinerFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntP("workers", "w", runtime.NumCPU(), "Number of worker goroutines")
	f.IntP("log-interval", "i", 5, "Logging interval in seconds")
	addTargetFlags(cmd, "")
}

// addTargetFlags adds the flags describing the contract to deploy
func addTargetFlags(cmd *cobra.Command, factory string) {
	f := cmd.Flags()
	f.StringP("bytecode", "B", "", "Contract bytecode for CREATE2 address calculation (hex)")
	f.StringP("bytecode-file", "F", "", "File containing contract bytecode (hex)")
	f.String("bytecode-hash", "", "keccak256 of the contract bytecode")
	f.String("factory", factory, "CREATE2 factory address")
}
