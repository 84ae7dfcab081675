package miner

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screa/d3caf/internal/crypto"
	"github.com/screa/d3caf/internal/logger"
)

func testTarget(best *common.Hash) Target {
	return Target{
		Solver:       common.HexToAddress("0x209992056d9e776f3beA884534b878b27B98cF15"),
		Factory:      common.HexToAddress("0x660CA455230Cddf3A28e6316F369064369A4494f"),
		BytecodeHash: common.BytesToHash(crypto.Keccak256(common.FromHex("0x608060405234801561001057600080fd5b50600436106100365760003560e01c8063"))),
		BestSalt:     best,
	}
}

func TestNewMiner(t *testing.T) {
	miner := NewMiner(testTarget(nil), Options{}, logger.Nop())
	require.NotNil(t, miner)
	assert.Greater(t, miner.options.Workers, 0)
	assert.Equal(t, 1000, miner.options.BatchSize)
	assert.Nil(t, miner.workerConfig.Threshold)
	assert.Equal(t, "lowest address", miner.Describe())
}

func TestMinerIsBetter(t *testing.T) {
	addr1 := [20]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}
	addr2 := [20]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2}
	tests := []struct {
		name     string
		newAddr  [20]byte
		oldAddr  [20]byte
		expected bool
	}{
		{
			name:     "new address is better",
			newAddr:  addr1,
			oldAddr:  addr2,
			expected: true,
		},
		{
			name:     "old address is better",
			newAddr:  addr2,
			oldAddr:  addr1,
			expected: false,
		},
		{
			name:     "addresses are equal",
			newAddr:  addr1,
			oldAddr:  addr1,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			miner := NewMiner(testTarget(nil), Options{}, logger.Nop())
			result := miner.isBetterBytes(tt.newAddr, tt.oldAddr)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestMineBeatsBestSalt(t *testing.T) {
	best := common.HexToHash("0x5eed")
	target := testTarget(&best)
	miner := NewMiner(target, Options{Workers: 2, BatchSize: 64, Verbose: true, LogInterval: time.Millisecond}, logger.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	result := miner.Mine(ctx)
	require.NotNil(t, result)
	require.True(t, result.Match)

	salt := crypto.ComputeSalt(target.Solver, result.SourceSalt)
	assert.Equal(t, salt, result.Salt)
	addr := crypto.Create2Address(target.Factory, salt, target.BytecodeHash)
	assert.Equal(t, addr, result.Address)

	bestAddr := crypto.Create2Address(target.Factory, best, target.BytecodeHash)
	assert.True(t, crypto.IsImprovement(addr, bestAddr, ImprovementFactor))
	assert.Greater(t, result.Attempts, int64(0))
}

func TestMineStopsOnCancel(t *testing.T) {
	miner := NewMiner(testTarget(nil), Options{Workers: 2, BatchSize: 16}, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	resultChan := make(chan bool, 1)
	go func() {
		result := miner.Mine(ctx)
		resultChan <- result != nil && !result.Match
	}()

	require.Eventually(t, func() bool { return miner.Attempts() > 100 }, 10*time.Second, time.Millisecond)
	cancel()

	select {
	case ok := <-resultChan:
		assert.True(t, ok, "stopped run returns the lowest address seen")
	case <-time.After(10 * time.Second):
		t.Fatal("miner did not stop")
	}

	best := miner.GetBestResult()
	require.NotNil(t, best)
	assert.Equal(t, crypto.Create2Address(testTarget(nil).Factory, best.Salt, testTarget(nil).BytecodeHash), best.Address)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestMinerLogsCarrySolver(t *testing.T) {
	var out lockedBuffer
	target := testTarget(nil)
	miner := NewMiner(target, Options{Workers: 1, BatchSize: 16, Verbose: true, LogInterval: time.Millisecond}, logger.NewWriter(&out, true))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	miner.Mine(ctx)

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "mining started") }, time.Second, time.Millisecond)
	assert.Contains(t, out.String(), target.Solver.Hex())
}
