package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/screa/d3caf/internal/crypto"
	"github.com/screa/d3caf/pkg/auction"
)

func newSaltCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "salt <source-salt>",
		Short: "Print the salt a source salt yields when bound to --solver",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			solver, err := cfg.SolverAddress()
			if err != nil {
				return fmt.Errorf("--solver: %w", err)
			}
			source, err := crypto.ParseHash(args[0])
			if err != nil {
				return fmt.Errorf("source salt: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), auction.ComputeSalt(solver, source).Hex())
			return nil
		},
	}
	cmd.Flags().String("solver", "", "Solver address (required)")
	return cmd
}

func newAddressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "address <salt>",
		Short: "Print the CREATE2 address a salt yields for --factory and the bytecode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			salt, err := crypto.ParseHash(args[0])
			if err != nil {
				return fmt.Errorf("salt: %w", err)
			}
			factory, err := cfg.FactoryAddress()
			if err != nil {
				return fmt.Errorf("--factory: %w", err)
			}
			codeHash, err := cfg.GetBytecodeHash()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), crypto.Create2Address(factory, salt, codeHash).Hex())
			return nil
		},
	}
	addTargetFlags(cmd, testFactory)
	return cmd
}
