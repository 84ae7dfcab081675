package auction

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/screa/d3caf/internal/crypto"
	"github.com/screa/d3caf/pkg/types"
)

func TestSplitCommissionSpecExample(t *testing.T) {
	commission, rest := SplitCommission(oneEther, DefaultCommissionRateBasisPoints)
	assert.Equal(t, "50000000000000000", commission.Dec())
	assert.Equal(t, "950000000000000000", rest.Dec())
}

func TestSplitCommissionSumsToReward(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		reward := new(uint256.Int).SetBytes(rapid.SliceOfN(rapid.Byte(), 0, 32).Draw(t, "reward"))
		rate := rapid.Uint64Range(0, BasisPoints).Draw(t, "rate")

		commission, rest := SplitCommission(reward, rate)
		sum, overflow := new(uint256.Int).AddOverflow(commission, rest)
		if overflow || !sum.Eq(reward) {
			t.Fatalf("commission %s + rest %s != reward %s", commission.Dec(), rest.Dec(), reward.Dec())
		}
		if commission.Gt(reward) {
			t.Fatalf("commission %s exceeds reward %s", commission.Dec(), reward.Dec())
		}
		if rate == BasisPoints && !rest.IsZero() {
			t.Fatalf("full rate left %s for the solver", rest.Dec())
		}
	})
}

func TestComputeRequestIDIsContentAddressed(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		req := types.Request{
			Factory:        common.BytesToAddress(rapid.SliceOfN(rapid.Byte(), 20, 20).Draw(t, "factory")),
			BytecodeHash:   common.BytesToHash(rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "codeHash")),
			ExpireAt:       rapid.Uint64().Draw(t, "expireAt"),
			InitSalt:       common.BytesToHash(rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(t, "initSalt")),
			RewardType:     types.RewardType(rapid.IntRange(0, 1).Draw(t, "rewardType")),
			RewardAmount:   uint256.NewInt(rapid.Uint64().Draw(t, "amount")),
			RewardToken:    common.BytesToAddress(rapid.SliceOfN(rapid.Byte(), 20, 20).Draw(t, "token")),
			RefundReceiver: common.BytesToAddress(rapid.SliceOfN(rapid.Byte(), 20, 20).Draw(t, "refund")),
		}
		a, err := ComputeRequestID(&req)
		if err != nil {
			t.Fatal(err)
		}
		clone := req
		clone.RewardAmount = new(uint256.Int).Set(req.RewardAmount)
		b, err := ComputeRequestID(&clone)
		if err != nil {
			t.Fatal(err)
		}
		if a != b {
			t.Fatalf("identical requests got ids %s and %s", a.Hex(), b.Hex())
		}

		clone.ExpireAt++
		c, err := ComputeRequestID(&clone)
		if err != nil {
			t.Fatal(err)
		}
		if a == c {
			t.Fatal("changing expireAt did not change the id")
		}
	})
}

func TestEncodeRequestLayout(t *testing.T) {
	req := types.Request{
		Factory:        factory,
		ExpireAt:       0x0102,
		RewardType:     types.RewardToken,
		RewardAmount:   uint256.NewInt(7),
		RewardToken:    tokenAddr,
		RefundReceiver: requester,
	}
	enc, err := EncodeRequest(&req)
	require.NoError(t, err)
	require.Len(t, enc, 8*32)

	assert.Equal(t, factory.Bytes(), enc[12:32])
	assert.Equal(t, byte(0x01), enc[2*32+30])
	assert.Equal(t, byte(0x02), enc[2*32+31])
	assert.Equal(t, byte(types.RewardToken), enc[4*32+31])
	assert.Equal(t, byte(7), enc[5*32+31])
	assert.Equal(t, tokenAddr.Bytes(), enc[6*32+12:7*32])
	assert.Equal(t, requester.Bytes(), enc[7*32+12:8*32])
}

// Every accepted submission beats the previous best by ImprovementFactor, and
// nothing else ever changes the best salt.
func TestBestSaltOnlyImproves(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(t)
		req := f.request(t, 10)
		id := f.register(t, req)

		n := rapid.IntRange(1, 64).Draw(rt, "submissions")
		for i := 0; i < n; i++ {
			salt := common.BytesToHash(rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(rt, "salt"))
			before, err := f.auction.GetCurrentBestSalt(id)
			if err != nil {
				rt.Fatal(err)
			}
			accepted, err := f.auction.RegisterResponse(ctx, Tx{From: solver}, id, salt)
			if err != nil {
				rt.Fatal(err)
			}
			after, err := f.auction.GetCurrentBestSalt(id)
			if err != nil {
				rt.Fatal(err)
			}

			improves := crypto.IsImprovement(ComputeRequestAddress(&req, salt), ComputeRequestAddress(&req, before), ImprovementFactor)
			if accepted != improves {
				rt.Fatalf("accepted=%v but improves=%v", accepted, improves)
			}
			if accepted && after != salt {
				rt.Fatalf("accepted salt %s not stored", salt.Hex())
			}
			if !accepted && after != before {
				rt.Fatalf("rejected salt changed best from %s to %s", before.Hex(), after.Hex())
			}
		}
	})
}

// Exactly one settlement succeeds, and only once the deadline has passed.
func TestExactlyOneSettlement(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(t)
		req := f.request(t, 10)
		id := f.register(t, req)

		improve := rapid.Bool().Draw(rt, "improve")
		var source common.Hash
		if improve {
			var salt common.Hash
			source, salt = mineImproving(t, &req, req.InitSalt, solver, rapid.Uint64Range(1, 1000).Draw(rt, "start"))
			if _, err := f.auction.RegisterResponse(ctx, Tx{From: solver}, id, salt); err != nil {
				rt.Fatal(err)
			}
		}

		f.clock.Advance(rapid.Uint64Range(0, 20).Draw(rt, "advance"))
		expired := f.clock.Height() >= req.ExpireAt

		successes := 0
		for i := 0; i < 3; i++ {
			if _, err := f.auction.ClaimReward(ctx, Tx{From: solver}, id, solver, source); err == nil {
				successes++
			}
			if err := f.auction.RequesterWithdraw(ctx, Tx{From: requester}, id); err == nil {
				successes++
			}
		}

		want := 0
		if expired {
			want = 1
		}
		if successes != want {
			rt.Fatalf("expired=%v improve=%v: %d settlements succeeded", expired, improve, successes)
		}

		escrowed, err := f.auction.Escrowed(types.NativeAsset)
		if err != nil {
			rt.Fatal(err)
		}
		if expired != escrowed.IsZero() {
			rt.Fatalf("expired=%v but escrow holds %s", expired, escrowed.Dec())
		}
		paid := new(uint256.Int).Add(f.balance(t, types.NativeAsset, solver), f.balance(t, types.NativeAsset, owner))
		paid.Add(paid, f.balance(t, types.NativeAsset, requester))
		paid.Add(paid, escrowed)
		if !paid.Eq(oneEther) {
			rt.Fatalf("value not conserved: %s", paid.Dec())
		}
	})
}
