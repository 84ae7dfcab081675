package auction

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/screa/d3caf/pkg/chain"
	"github.com/screa/d3caf/pkg/types"
)

// RegisterCreate2Request escrows the reward and stores req under its content
// derived id. Native rewards must be attached as tx.Value in full; token
// rewards are pulled from the sender's token balance and no value may be attached.
//
// An id that is still unresolved cannot be registered again, and the escrow
// account cannot register at all.
func (a *Auction) RegisterCreate2Request(ctx context.Context, tx Tx, req types.Request) (common.Hash, error) {
	if tx.From == a.address {
		return common.Hash{}, fmt.Errorf("register from escrow account: %w", ErrUnauthorized)
	}
	if req.RewardAmount == nil {
		req.RewardAmount = req.Amount()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	height := a.clock.Height()
	cfg, _, err := loadConfig(a.store)
	if err != nil {
		return common.Hash{}, err
	}
	if err := validateRequest(&req, tx, height, cfg); err != nil {
		return common.Hash{}, err
	}

	id, err := ComputeRequestID(&req)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: encode request: %v", ErrBadValue, err)
	}

	txn := a.store.Begin()
	exists, err := txn.Has(requestKey(id))
	if err != nil {
		return common.Hash{}, err
	}
	if exists {
		return common.Hash{}, fmt.Errorf("request %s: %w", id.Hex(), ErrAlreadyRegistered)
	}

	if err := chain.Transfer(txn, req.Asset(), tx.From, a.address, req.RewardAmount); err != nil {
		if errors.Is(err, chain.ErrInsufficientBalance) {
			return common.Hash{}, fmt.Errorf("%w: escrow reward: %v", ErrBadValue, err)
		}
		return common.Hash{}, err
	}

	sr := &types.StoredRequest{ID: id, Request: req, BestSalt: req.InitSalt}
	txn.Delete(settledKey(id))
	if err := putRequest(txn, sr); err != nil {
		return common.Hash{}, err
	}
	if err := a.commit(txn, height); err != nil {
		return common.Hash{}, err
	}

	a.index.add(id, req.ExpireAt)
	a.metrics.RequestsRegistered.Inc()
	a.metrics.PendingRequests.Set(float64(a.index.len()))
	a.log.Debug("request registered",
		zap.String("requestId", id.Hex()),
		zap.String("from", tx.From.Hex()),
		zap.Uint64("expireAt", req.ExpireAt),
	)

	reqCopy := req
	a.emit(ctx, Event{
		Kind:      EventRegistered,
		RequestID: id,
		Height:    height,
		Request:   &reqCopy,
	})
	return id, nil
}

func validateRequest(req *types.Request, tx Tx, height uint64, cfg Config) error {
	if req.ExpireAt < height {
		return fmt.Errorf("%w: expireAt %d is below current height %d", ErrBadValue, req.ExpireAt, height)
	}
	if req.ExpireAt-height > cfg.MaxDeadlineBlockDuration {
		return fmt.Errorf("%w: deadline %d blocks away exceeds max %d", ErrBadValue, req.ExpireAt-height, cfg.MaxDeadlineBlockDuration)
	}

	switch req.RewardType {
	case types.RewardNative:
		if !tx.value().Eq(req.RewardAmount) {
			return fmt.Errorf("%w: attached value %s does not match reward %s", ErrBadValue, tx.value().Dec(), req.RewardAmount.Dec())
		}
	case types.RewardToken:
		if req.RewardToken == (common.Address{}) {
			return fmt.Errorf("%w: token reward without token", ErrBadValue)
		}
		if !tx.value().IsZero() {
			return fmt.Errorf("%w: native value attached to a token reward", ErrBadValue)
		}
	default:
		return fmt.Errorf("%w: unknown reward type %s", ErrBadValue, req.RewardType)
	}
	return nil
}
