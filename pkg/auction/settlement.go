package auction

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/screa/d3caf/pkg/chain"
	"github.com/screa/d3caf/pkg/types"
)

// Payout is what a successful claim paid out
type Payout struct {
	Solver     common.Address
	Address    common.Address
	Reward     *uint256.Int
	Commission *uint256.Int
	SolverPaid *uint256.Int
}

// SplitCommission splits reward at rate basis points. The parts always sum to reward.
func SplitCommission(reward *uint256.Int, rate uint64) (commission, rest *uint256.Int) {
	commission, _ = new(uint256.Int).MulDivOverflow(reward, uint256.NewInt(rate), uint256.NewInt(BasisPoints))
	rest = new(uint256.Int).Sub(reward, commission)
	return commission, rest
}

// ClaimReward pays the reward of an expired request to solver, minus the
// commission at the current rate. The caller reveals sourceSalt, and
// ComputeSalt(solver, sourceSalt) must equal the stored best salt. A request
// whose best salt is still its initial salt has no solver to pay.
func (a *Auction) ClaimReward(ctx context.Context, tx Tx, id common.Hash, solver common.Address, sourceSalt common.Hash) (*Payout, error) {
	if solver == a.address {
		return nil, fmt.Errorf("%w: solver is the escrow account", ErrBadValue)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	height := a.clock.Height()
	txn := a.store.Begin()
	sr, err := loadRequest(txn, id)
	if err != nil {
		return nil, err
	}
	if height < sr.Request.ExpireAt {
		return nil, fmt.Errorf("claim %s at height %d (expireAt %d): %w", id.Hex(), height, sr.Request.ExpireAt, ErrNotYetExpired)
	}
	if !sr.Improved() {
		return nil, fmt.Errorf("claim %s: best salt is still the initial salt: %w", id.Hex(), ErrSaltMismatch)
	}
	if ComputeSalt(solver, sourceSalt) != sr.BestSalt {
		return nil, fmt.Errorf("claim %s for %s: %w", id.Hex(), solver.Hex(), ErrSaltMismatch)
	}

	cfg, _, err := loadConfig(txn)
	if err != nil {
		return nil, err
	}
	reward := sr.Request.Amount()
	commission, solverPaid := SplitCommission(reward, cfg.CommissionRateBasisPoints)

	asset := sr.Request.Asset()
	if err := chain.Transfer(txn, asset, a.address, cfg.CommissionReceiver, commission); err != nil {
		return nil, fmt.Errorf("pay commission: %w", err)
	}
	if err := chain.Transfer(txn, asset, a.address, solver, solverPaid); err != nil {
		return nil, fmt.Errorf("pay solver: %w", err)
	}
	clearRequest(txn, id)
	if err := a.commit(txn, height); err != nil {
		return nil, err
	}
	a.settled(sr, "claimed")

	payout := &Payout{
		Solver:     solver,
		Address:    ComputeRequestAddress(&sr.Request, sr.BestSalt),
		Reward:     reward,
		Commission: commission,
		SolverPaid: solverPaid,
	}
	a.log.Info("reward claimed",
		zap.String("requestId", id.Hex()),
		zap.String("solver", solver.Hex()),
		zap.String("paid", solverPaid.Dec()),
		zap.String("commission", commission.Dec()),
		zap.String("address", payout.Address.Hex()),
	)
	a.emit(ctx,
		Event{
			Kind:         EventClaimed,
			RequestID:    id,
			Height:       height,
			Solver:       solver,
			RewardAmount: reward,
			Commission:   commission,
			Payout:       solverPaid,
			Address:      payout.Address,
		},
		Event{Kind: EventCleared, RequestID: id, Height: height},
	)
	return payout, nil
}

// RequesterWithdraw refunds the full reward of an expired request to its
// refund receiver. It fails once any solver has improved on the initial salt.
func (a *Auction) RequesterWithdraw(ctx context.Context, tx Tx, id common.Hash) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	height := a.clock.Height()
	txn := a.store.Begin()
	sr, err := loadRequest(txn, id)
	if err != nil {
		return err
	}
	if height < sr.Request.ExpireAt {
		return fmt.Errorf("withdraw %s at height %d (expireAt %d): %w", id.Hex(), height, sr.Request.ExpireAt, ErrNotYetExpired)
	}
	if sr.Improved() {
		return fmt.Errorf("withdraw %s: %w", id.Hex(), ErrImproved)
	}

	reward := sr.Request.Amount()
	if err := chain.Transfer(txn, sr.Request.Asset(), a.address, sr.Request.RefundReceiver, reward); err != nil {
		return fmt.Errorf("refund: %w", err)
	}
	clearRequest(txn, id)
	if err := a.commit(txn, height); err != nil {
		return err
	}
	a.settled(sr, "refunded")

	a.log.Info("request refunded",
		zap.String("requestId", id.Hex()),
		zap.String("receiver", sr.Request.RefundReceiver.Hex()),
		zap.String("amount", reward.Dec()),
		zap.String("by", tx.From.Hex()),
	)
	a.emit(ctx, Event{Kind: EventCleared, RequestID: id, Height: height, Refunded: true})
	return nil
}

func (a *Auction) settled(sr *types.StoredRequest, outcome string) {
	a.index.remove(sr.ID, sr.Request.ExpireAt)
	a.metrics.Settlements.WithLabelValues(outcome).Inc()
	a.metrics.PendingRequests.Set(float64(a.index.len()))
}
