package main

import (
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/screa/d3caf/internal/crypto"
	"github.com/screa/d3caf/pkg/auction"
	"github.com/screa/d3caf/pkg/types"
)

// testFactory is the CREATE2 factory deployed on local test chains
const testFactory = "0x660CA455230Cddf3A28e6316F369064369A4494f"

// defaultDeadline is ten minutes of 12 second blocks
const defaultDeadline = 300 / 12

func parseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

func requestArg(args []string) (common.Hash, error) {
	id, err := crypto.ParseHash(args[0])
	if err != nil {
		return common.Hash{}, fmt.Errorf("request id: %w", err)
	}
	return id, nil
}

func newRegisterCmd() *cobra.Command {
	var (
		deadline       uint64
		reward         string
		rewardToken    string
		refundReceiver string
		sourceSalt     string
		fund           bool
	)
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Escrow a reward and register a CREATE2 salt request",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			client, err := newClient()
			if err != nil {
				return err
			}
			from := client.From()

			factory, err := cfg.FactoryAddress()
			if err != nil {
				return fmt.Errorf("--factory: %w", err)
			}
			codeHash, err := cfg.GetBytecodeHash()
			if err != nil {
				return err
			}
			amount, err := parseAmount(reward)
			if err != nil {
				return err
			}

			var source common.Hash
			if sourceSalt == "" {
				if _, err := rand.Read(source[:]); err != nil {
					return fmt.Errorf("generate source salt: %w", err)
				}
			} else if source, err = crypto.ParseHash(sourceSalt); err != nil {
				return fmt.Errorf("--source-salt: %w", err)
			}

			refund := from
			if refundReceiver != "" {
				if refund, err = crypto.ParseAddress(refundReceiver); err != nil {
					return fmt.Errorf("--refund-receiver: %w", err)
				}
			}

			chainView, err := client.Chain(ctx)
			if err != nil {
				return err
			}
			req := types.Request{
				Factory:        factory,
				BytecodeHash:   codeHash,
				ExpireAt:       chainView.Height + deadline,
				InitSalt:       auction.ComputeSalt(from, source),
				RewardType:     types.RewardNative,
				RewardAmount:   amount,
				RefundReceiver: refund,
			}
			value := amount
			if rewardToken != "" {
				if req.RewardToken, err = crypto.ParseAddress(rewardToken); err != nil {
					return fmt.Errorf("--reward-token: %w", err)
				}
				req.RewardType = types.RewardToken
				value = nil
			}

			if fund {
				if _, err := client.Deposit(ctx, req.Asset(), from, amount); err != nil {
					return fmt.Errorf("fund requester: %w", err)
				}
			}

			id, err := client.Register(ctx, req, value)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Request %s registered\n", id.Hex())
			fmt.Fprintf(out, "Expires at block %d (current %d)\n", req.ExpireAt, chainView.Height)
			fmt.Fprintf(out, "Initial address %s\n", auction.ComputeRequestAddress(&req, req.InitSalt).Hex())
			return nil
		},
	}
	addTargetFlags(cmd, testFactory)
	f := cmd.Flags()
	f.Uint64Var(&deadline, "deadline", defaultDeadline, "Blocks until the request expires")
	f.StringVar(&reward, "reward", "10000000000000000", "Reward amount in base units")
	f.StringVar(&rewardToken, "reward-token", "", "Token the reward is paid in (default: native)")
	f.StringVar(&refundReceiver, "refund-receiver", "", "Refund address (default: --from)")
	f.StringVar(&sourceSalt, "source-salt", "", "Source of the initial salt (default: random)")
	f.BoolVar(&fund, "fund", false, "Credit the reward to --from through the faucet first")
	return cmd
}

func newClaimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claim <request-id> <source-salt>",
		Short: "Reveal the source salt of the winning submission and pay the reward to --solver",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := requestArg(args)
			if err != nil {
				return err
			}
			source, err := crypto.ParseHash(args[1])
			if err != nil {
				return fmt.Errorf("source salt: %w", err)
			}
			solver, err := cfg.SolverAddress()
			if err != nil {
				return fmt.Errorf("--solver: %w", err)
			}
			client, err := newClient()
			if err != nil {
				return err
			}

			payout, err := client.Claim(cmd.Context(), id, solver, source)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Claimed request %s for %s\n", id.Hex(), payout.Solver.Hex())
			fmt.Fprintf(out, "Address: %s\n", payout.Address.Hex())
			fmt.Fprintf(out, "Paid: %s (commission %s of %s)\n", payout.SolverPaid.Dec(), payout.Commission.Dec(), payout.Reward.Dec())
			return nil
		},
	}
	cmd.Flags().String("solver", "", "Solver the salt is bound to (required)")
	return cmd
}

func newWithdrawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw <request-id>",
		Short: "Refund an expired request that no solver improved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := requestArg(args)
			if err != nil {
				return err
			}
			client, err := newClient()
			if err != nil {
				return err
			}
			if err := client.Withdraw(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Request %s refunded\n", id.Hex())
			return nil
		},
	}
}

func newFaucetCmd() *cobra.Command {
	var asset string
	cmd := &cobra.Command{
		Use:   "faucet <account> <amount>",
		Short: "Credit an account on a development ledger",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := crypto.ParseAddress(args[0])
			if err != nil {
				return fmt.Errorf("account: %w", err)
			}
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}
			token := types.NativeAsset
			if asset != "" {
				if token, err = crypto.ParseAddress(asset); err != nil {
					return fmt.Errorf("--asset: %w", err)
				}
			}
			client, err := newClient()
			if err != nil {
				return err
			}
			bal, err := client.Deposit(cmd.Context(), token, account, amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Balance of %s: %s\n", account.Hex(), bal.Balance.Dec())
			return nil
		},
	}
	cmd.Flags().StringVar(&asset, "asset", "", "Token address (default: native)")
	return cmd
}

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Inspect or change the auction configuration",
	}

	show := &cobra.Command{
		Use:   "config",
		Short: "Print the current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			c, err := client.Config(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Owner: %s\n", c.Owner.Hex())
			fmt.Fprintf(out, "Commission receiver: %s\n", c.CommissionReceiver.Hex())
			fmt.Fprintf(out, "Commission rate: %d bps\n", c.CommissionRateBasisPoints)
			fmt.Fprintf(out, "Max deadline: %d blocks\n", c.MaxDeadlineBlockDuration)
			return nil
		},
	}

	addressSetter := func(use, short string, set func(*cobra.Command, common.Address) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <address>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				addr, err := crypto.ParseAddress(args[0])
				if err != nil {
					return err
				}
				return set(cmd, addr)
			},
		}
	}
	numberSetter := func(use, short string, set func(*cobra.Command, uint64) error) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <value>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var n uint64
				if _, err := fmt.Sscan(args[0], &n); err != nil {
					return fmt.Errorf("invalid number %q: %w", args[0], err)
				}
				return set(cmd, n)
			},
		}
	}

	cmd.AddCommand(
		show,
		addressSetter("commission-receiver", "Set where commissions are paid", func(cmd *cobra.Command, a common.Address) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			return client.SetCommissionReceiver(cmd.Context(), a)
		}),
		numberSetter("commission-rate", "Set the commission rate in basis points", func(cmd *cobra.Command, n uint64) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			return client.SetCommissionRateBasisPoints(cmd.Context(), n)
		}),
		numberSetter("max-deadline", "Set the longest allowed deadline in blocks", func(cmd *cobra.Command, n uint64) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			return client.SetMaxDeadlineBlockDuration(cmd.Context(), n)
		}),
		addressSetter("transfer-ownership", "Hand administration to another address", func(cmd *cobra.Command, a common.Address) error {
			client, err := newClient()
			if err != nil {
				return err
			}
			return client.TransferOwnership(cmd.Context(), a)
		}),
	)
	return cmd
}
