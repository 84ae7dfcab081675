package auction

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/screa/d3caf/internal/crypto"
	"github.com/screa/d3caf/internal/store"
	"github.com/screa/d3caf/pkg/chain"
	"github.com/screa/d3caf/pkg/types"
)

var (
	owner     = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	requester = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	solver    = common.HexToAddress("0x209992056d9e776f3beA884534b878b27B98cF15")
	factory   = common.HexToAddress("0x660CA455230Cddf3A28e6316F369064369A4494f")
	tokenAddr = common.HexToAddress("0x00000000000000000000000000000000000070c0")

	// 1.0 unit of native value
	oneEther = new(uint256.Int).Mul(uint256.NewInt(1_000_000_000), uint256.NewInt(1_000_000_000))
)

type fixture struct {
	auction  *Auction
	clock    *chain.ManualClock
	store    *store.Store
	recorder *Recorder
	registry *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	f := &fixture{
		clock:    chain.NewManualClock(1000),
		store:    s,
		recorder: &Recorder{},
		registry: prometheus.NewRegistry(),
	}
	f.auction, err = New(s, f.clock, Options{
		Owner:   owner,
		Metrics: NewMetrics(f.registry),
		Sinks:   []EventSink{f.recorder},
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) request(t *testing.T, blocks uint64) types.Request {
	t.Helper()
	return types.Request{
		Factory:        factory,
		BytecodeHash:   common.BytesToHash(crypto.Keccak256([]byte{0x60, 0x80, 0x60, 0x40, 0x52})),
		ExpireAt:       f.clock.Height() + blocks,
		InitSalt:       ComputeSalt(requester, common.HexToHash("0x5eed")),
		RewardType:     types.RewardNative,
		RewardAmount:   new(uint256.Int).Set(oneEther),
		RefundReceiver: requester,
	}
}

func (f *fixture) fund(t *testing.T, asset, account common.Address, amount *uint256.Int) {
	t.Helper()
	require.NoError(t, f.auction.Deposit(context.Background(), asset, account, amount))
}

func (f *fixture) register(t *testing.T, req types.Request) common.Hash {
	t.Helper()
	f.fund(t, types.NativeAsset, requester, req.Amount())
	id, err := f.auction.RegisterCreate2Request(context.Background(), Tx{From: requester, Value: req.Amount()}, req)
	require.NoError(t, err)
	return id
}

func (f *fixture) balance(t *testing.T, asset, account common.Address) *uint256.Int {
	t.Helper()
	bal, err := f.auction.BalanceOf(asset, account)
	require.NoError(t, err)
	return bal
}

// mineImproving searches source salts 1, 2, ... for one whose bound salt beats best
func mineImproving(t *testing.T, req *types.Request, best common.Hash, who common.Address, start uint64) (source, salt common.Hash) {
	t.Helper()
	bestAddr := ComputeRequestAddress(req, best)
	for i := start; i < start+1_000_000; i++ {
		source = common.BigToHash(new(uint256.Int).SetUint64(i).ToBig())
		salt = ComputeSalt(who, source)
		if crypto.IsImprovement(ComputeRequestAddress(req, salt), bestAddr, ImprovementFactor) {
			return source, salt
		}
	}
	t.Fatal("no improving salt found")
	return
}

// mineNonImproving returns a bound salt that does not beat best
func mineNonImproving(t *testing.T, req *types.Request, best common.Hash, who common.Address) common.Hash {
	t.Helper()
	bestAddr := ComputeRequestAddress(req, best)
	for i := uint64(1); i < 1000; i++ {
		salt := ComputeSalt(who, common.BigToHash(new(uint256.Int).SetUint64(i).ToBig()))
		if !crypto.IsImprovement(ComputeRequestAddress(req, salt), bestAddr, ImprovementFactor) {
			return salt
		}
	}
	t.Fatal("every salt improved")
	return common.Hash{}
}
