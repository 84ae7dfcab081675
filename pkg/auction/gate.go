package auction

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/screa/d3caf/internal/crypto"
)

// RegisterResponse offers salt as the new best for request id. It is accepted
// only if its address is at most the current best address divided by
// ImprovementFactor. A rejected salt is not an error: accepted is false and
// nothing changes.
func (a *Auction) RegisterResponse(ctx context.Context, tx Tx, id, salt common.Hash) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	height := a.clock.Height()
	txn := a.store.Begin()
	sr, err := loadRequest(txn, id)
	if err != nil {
		return false, err
	}
	if height >= sr.Request.ExpireAt {
		return false, fmt.Errorf("request %s at height %d (expireAt %d): %w", id.Hex(), height, sr.Request.ExpireAt, ErrExpired)
	}

	candidate := ComputeRequestAddress(&sr.Request, salt)
	best := ComputeRequestAddress(&sr.Request, sr.BestSalt)
	if !crypto.IsImprovement(candidate, best, ImprovementFactor) {
		a.metrics.Submissions.WithLabelValues("rejected").Inc()
		a.log.Debug("salt rejected",
			zap.String("requestId", id.Hex()),
			zap.String("candidate", candidate.Hex()),
			zap.String("best", best.Hex()),
		)
		return false, nil
	}

	sr.BestSalt = salt
	if err := putRequest(txn, sr); err != nil {
		return false, err
	}
	if err := a.commit(txn, height); err != nil {
		return false, err
	}

	a.metrics.Submissions.WithLabelValues("accepted").Inc()
	a.emit(ctx, Event{
		Kind:      EventNewSalt,
		RequestID: id,
		Height:    height,
		Salt:      salt,
		Submitter: tx.From,
		Address:   candidate,
	})
	return true, nil
}
