// Package auction runs CREATE2 salt mining auctions. A requester escrows a
// reward for the lowest deployment address solvers can find, solvers submit
// salts that must beat the current best by ImprovementFactor, and once the
// deadline passes the last accepted solver claims the reward, or the requester
// withdraws it if nobody improved on the initial salt.
//
// An Auction serializes every state-changing call and commits each one as a
// single storage batch, so balance movements and request updates either all
// land or none do.
package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/screa/d3caf/internal/logger"
	"github.com/screa/d3caf/internal/store"
	"github.com/screa/d3caf/pkg/chain"
	"github.com/screa/d3caf/pkg/types"
)

// DefaultAddress is the escrow account used when Options.Address is unset
var DefaultAddress = common.HexToAddress("0x000000000000000000000000000000000000d3CA")

var (
	requestPrefix = []byte("req/")
	settledPrefix = []byte("done/")
)

// Tx describes the caller of an operation and the native value attached to it
type Tx struct {
	From  common.Address
	Value *uint256.Int
}

func (tx Tx) value() *uint256.Int {
	if tx.Value == nil {
		return new(uint256.Int)
	}
	return tx.Value
}

// Options configures an Auction
type Options struct {
	// Address is the escrow account holding rewards
	Address common.Address
	// Owner administers a freshly created auction. Ignored when the store
	// already carries a configuration.
	Owner   common.Address
	Logger  *logger.Logger
	Metrics *Metrics
	Sinks   []EventSink
}

// Auction is the request ledger, submission gate and settlement engine over one store
type Auction struct {
	mu sync.Mutex

	store   *store.Store
	clock   chain.Clock
	address common.Address
	log     *logger.Logger
	metrics *Metrics
	sinks   []EventSink
	index   *expiryIndex
	seq     uint64
}

// New opens an auction over s. The expiry index is rebuilt from storage.
func New(s *store.Store, clock chain.Clock, opts Options) (*Auction, error) {
	a := &Auction{
		store:   s,
		clock:   clock,
		address: opts.Address,
		log:     opts.Logger,
		metrics: opts.Metrics,
		sinks:   opts.Sinks,
		index:   newExpiryIndex(),
	}
	if a.address == (common.Address{}) {
		a.address = DefaultAddress
	}
	if a.log == nil {
		a.log = logger.Nop()
	}
	a.log = a.log.Named("auction")
	if a.metrics == nil {
		a.metrics = NewMetrics(nil)
	}

	height, err := chain.Restore(s, clock)
	if err != nil {
		return nil, err
	}

	cfg, ok, err := loadConfig(s)
	if err != nil {
		return nil, err
	}
	if !ok {
		cfg = DefaultConfig(opts.Owner)
		txn := s.Begin()
		if err := putConfig(txn, cfg); err != nil {
			return nil, err
		}
		if err := a.commit(txn, height); err != nil {
			return nil, err
		}
	}
	a.metrics.CommissionRate.Set(float64(cfg.CommissionRateBasisPoints))

	err = s.Iterate(requestPrefix, func(_, value []byte) error {
		var sr types.StoredRequest
		if err := json.Unmarshal(value, &sr); err != nil {
			return fmt.Errorf("decode stored request: %w", err)
		}
		a.index.add(sr.ID, sr.Request.ExpireAt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.metrics.PendingRequests.Set(float64(a.index.len()))
	a.log.Info("auction opened",
		zap.String("address", a.address.Hex()),
		zap.String("owner", cfg.Owner.Hex()),
		zap.Int("pending", a.index.len()),
		zap.Uint64("height", height),
	)
	return a, nil
}

// Address returns the escrow account
func (a *Auction) Address() common.Address {
	return a.address
}

// Height returns the current block height
func (a *Auction) Height() uint64 {
	return a.clock.Height()
}

func requestKey(id common.Hash) []byte {
	return append(append([]byte{}, requestPrefix...), id[:]...)
}

func settledKey(id common.Hash) []byte {
	return append(append([]byte{}, settledPrefix...), id[:]...)
}

// loadRequest returns the unresolved request under id, distinguishing
// never-registered ids from settled ones
func loadRequest(r interface {
	Get([]byte) ([]byte, error)
	Has([]byte) (bool, error)
}, id common.Hash) (*types.StoredRequest, error) {
	v, err := r.Get(requestKey(id))
	if errors.Is(err, store.ErrNotFound) {
		settled, herr := r.Has(settledKey(id))
		if herr != nil {
			return nil, herr
		}
		if settled {
			return nil, fmt.Errorf("request %s: %w", id.Hex(), ErrAlreadySettled)
		}
		return nil, fmt.Errorf("request %s: %w", id.Hex(), ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var sr types.StoredRequest
	if err := json.Unmarshal(v, &sr); err != nil {
		return nil, fmt.Errorf("decode request %s: %w", id.Hex(), err)
	}
	return &sr, nil
}

func putRequest(txn *store.Txn, sr *types.StoredRequest) error {
	v, err := json.Marshal(sr)
	if err != nil {
		return fmt.Errorf("encode request %s: %w", sr.ID.Hex(), err)
	}
	txn.Put(requestKey(sr.ID), v)
	return nil
}

// clearRequest removes a settled request and leaves a tombstone. Only
// settlement calls it, inside the transaction that moves the escrow.
func clearRequest(txn *store.Txn, id common.Hash) {
	txn.Delete(requestKey(id))
	txn.Put(settledKey(id), nil)
}

// commit stamps height into txn and writes it. The stored height only grows,
// so a reopened auction never runs at a block earlier than one it acted on.
func (a *Auction) commit(txn *store.Txn, height uint64) error {
	if err := chain.PutHeight(txn, height); err != nil {
		return err
	}
	writes := txn.Len()
	if err := txn.Commit(); err != nil {
		return err
	}
	if writes > 0 {
		a.log.Debug("batch committed", zap.Int("writes", writes), zap.Uint64("height", height))
	}
	return nil
}

// Checkpoint records the current block height so a restart resumes from it
func (a *Auction) Checkpoint() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.commit(a.store.Begin(), a.clock.Height())
}

// emit delivers events in commit order. Called with a.mu held, after commit.
func (a *Auction) emit(ctx context.Context, events ...Event) {
	for _, ev := range events {
		a.seq++
		ev.Seq = a.seq
		for _, sink := range a.sinks {
			if err := sink.HandleEvent(ctx, ev); err != nil {
				a.log.Warn("event sink failed",
					zap.String("kind", string(ev.Kind)),
					zap.String("requestId", ev.RequestID.Hex()),
					zap.Error(err),
				)
			}
		}
	}
}

// GetCreate2Request returns the registered request under id
func (a *Auction) GetCreate2Request(id common.Hash) (*types.StoredRequest, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return loadRequest(a.store, id)
}

// GetCurrentBestSalt returns the best salt accepted so far, or the initial salt
func (a *Auction) GetCurrentBestSalt(id common.Hash) (common.Hash, error) {
	sr, err := a.GetCreate2Request(id)
	if err != nil {
		return common.Hash{}, err
	}
	return sr.BestSalt, nil
}

// GetFactory returns the deployer the request's addresses are derived from
func (a *Auction) GetFactory(id common.Hash) (common.Address, error) {
	sr, err := a.GetCreate2Request(id)
	if err != nil {
		return common.Address{}, err
	}
	return sr.Request.Factory, nil
}

// GetBytecodeHash returns the hash of the code the request deploys
func (a *Auction) GetBytecodeHash(id common.Hash) (common.Hash, error) {
	sr, err := a.GetCreate2Request(id)
	if err != nil {
		return common.Hash{}, err
	}
	return sr.Request.BytecodeHash, nil
}

// ComputeAddress derives the address the request's code gets when deployed with salt
func (a *Auction) ComputeAddress(id common.Hash, salt common.Hash) (common.Address, error) {
	sr, err := a.GetCreate2Request(id)
	if err != nil {
		return common.Address{}, err
	}
	return ComputeRequestAddress(&sr.Request, salt), nil
}

// Pending returns all unresolved requests, earliest deadline first
func (a *Auction) Pending() ([]*types.StoredRequest, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loadAll(a.index.all())
}

// Finalizable returns unresolved requests whose deadline is at or below height
func (a *Auction) Finalizable(height uint64) ([]*types.StoredRequest, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loadAll(a.index.expiredBy(height))
}

func (a *Auction) loadAll(ids []common.Hash) ([]*types.StoredRequest, error) {
	out := make([]*types.StoredRequest, 0, len(ids))
	for _, id := range ids {
		sr, err := loadRequest(a.store, id)
		if err != nil {
			return nil, err
		}
		out = append(out, sr)
	}
	return out, nil
}

// BalanceOf returns account's ledger balance of asset
func (a *Auction) BalanceOf(asset, account common.Address) (*uint256.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return chain.Balance(a.store, asset, account)
}

// Escrowed returns the total of asset held for unresolved requests
func (a *Auction) Escrowed(asset common.Address) (*uint256.Int, error) {
	return a.BalanceOf(asset, a.address)
}

// Deposit credits account with amount of asset. It is the faucet of a
// standalone ledger; balances enter the auction only through it.
func (a *Auction) Deposit(_ context.Context, asset, account common.Address, amount *uint256.Int) error {
	if account == a.address {
		return fmt.Errorf("%w: cannot deposit into the escrow account", ErrBadValue)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	txn := a.store.Begin()
	if err := chain.Credit(txn, asset, account, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrBadValue, err)
	}
	return a.commit(txn, a.clock.Height())
}

// Withdraw debits account's ledger balance, modelling value leaving the ledger
func (a *Auction) Withdraw(_ context.Context, tx Tx, asset common.Address, amount *uint256.Int) error {
	if tx.From == a.address {
		return fmt.Errorf("withdraw from escrow account: %w", ErrUnauthorized)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	txn := a.store.Begin()
	if err := chain.Debit(txn, asset, tx.From, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrBadValue, err)
	}
	return a.commit(txn, a.clock.Height())
}
